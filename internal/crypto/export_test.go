package crypto

import (
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPKCS12(t *testing.T) {
	root, rootKey := testRoot(t)
	leafKey := testKey(t, 1)
	now := time.Now()

	for _, encoding := range []string{EncodingModern, EncodingLegacy} {
		t.Run("Round trip with "+encoding+" encoding", func(t *testing.T) {
			p, err := NewSoftwareProvider(encoding)
			require.NoError(t, err)

			csr, err := p.CreateCSR(leafKey, LeafTemplate(SubjectInfo{CommonName: "Jane Doe"}))
			require.NoError(t, err)
			leaf, err := p.SignCSR(csr, root, rootKey, big.NewInt(7), now, now.Add(24*time.Hour))
			require.NoError(t, err)

			data, err := p.EncodePKCS12(leafKey, leaf, []*x509.Certificate{root}, "s3cret!")
			require.NoError(t, err)
			assert.NotEmpty(t, data)

			bundle, err := p.DecodePKCS12(data, "s3cret!")
			require.NoError(t, err)
			assert.Equal(t, leaf.Raw, bundle.Certificate.Raw)
			require.Len(t, bundle.CACertificates, 1)
			assert.Equal(t, root.Raw, bundle.CACertificates[0].Raw)

			signer, err := bundle.Signer()
			require.NoError(t, err)
			assert.True(t, leafKey.PublicKey.Equal(signer.Public()))

			_, err = p.DecodePKCS12(data, "wrong")
			assert.ErrorIs(t, err, ErrIncorrectPassphrase)
		})
	}

	t.Run("Malformed input is not a wrong passphrase", func(t *testing.T) {
		p := testProvider(t)

		for name, input := range map[string][]byte{
			"empty":   nil,
			"garbage": []byte("this is not a pkcs12 container"),
			"pem":     EncodeCertificatePEM(root),
		} {
			_, err := p.DecodePKCS12(input, "anything")
			assert.ErrorIs(t, err, ErrMalformedContainer, name)
			assert.False(t, errors.Is(err, ErrIncorrectPassphrase), name)
		}
	})

	t.Run("Destroy wipes the key", func(t *testing.T) {
		p := testProvider(t)
		key, err := p.GenerateKey(2048)
		require.NoError(t, err)

		csr, err := p.CreateCSR(key, LeafTemplate(SubjectInfo{CommonName: "Wipe Me"}))
		require.NoError(t, err)
		leaf, err := p.SignCSR(csr, root, rootKey, big.NewInt(8), now, now.Add(time.Hour))
		require.NoError(t, err)
		data, err := p.EncodePKCS12(key, leaf, nil, "pw1234")
		require.NoError(t, err)

		bundle, err := p.DecodePKCS12(data, "pw1234")
		require.NoError(t, err)
		decoded := bundle.PrivateKey.(*rsa.PrivateKey)

		bundle.Destroy()
		assert.Nil(t, bundle.PrivateKey)
		assert.Equal(t, 0, decoded.D.Sign())
		for _, prime := range decoded.Primes {
			assert.Equal(t, 0, prime.Sign())
		}
	})
}

func TestCertificatePEM(t *testing.T) {
	root, _ := testRoot(t)

	t.Run("Round trip", func(t *testing.T) {
		parsed, err := ParseCertificatePEM(EncodeCertificatePEM(root))
		require.NoError(t, err)
		assert.Equal(t, root.Raw, parsed.Raw)
	})

	t.Run("Parses a bundle of certificates", func(t *testing.T) {
		data := append(EncodeCertificatePEM(root), EncodeCertificatePEM(root)...)
		certs, err := ParseCertificatesPEM(data)
		require.NoError(t, err)
		assert.Len(t, certs, 2)
	})

	t.Run("Invalid PEM fails", func(t *testing.T) {
		_, err := ParseCertificatePEM([]byte("invalid"))
		assert.Error(t, err)

		_, err = ParseCertificatesPEM([]byte("invalid"))
		assert.Error(t, err)
	})
}
