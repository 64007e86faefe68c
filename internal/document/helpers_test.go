package document

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"sync"
	"testing"
	"time"

	dscrypto "github.com/robcowart/docsign/internal/crypto"
	"github.com/stretchr/testify/require"
)

type testIdentity struct {
	root     *x509.Certificate
	rootPool *x509.CertPool
	leaf     *x509.Certificate
	key      *rsa.PrivateKey
}

var (
	identityOnce sync.Once
	identity     *testIdentity
	identityErr  error
)

// signingIdentity returns a root and a document signing leaf shared by the
// package tests.
func signingIdentity(t *testing.T) *testIdentity {
	t.Helper()
	identityOnce.Do(func() {
		identity, identityErr = newIdentity()
	})
	require.NoError(t, identityErr)
	return identity
}

func newIdentity() (*testIdentity, error) {
	p, err := dscrypto.NewSoftwareProvider(dscrypto.EncodingModern)
	if err != nil {
		return nil, err
	}

	rootKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC().Truncate(time.Second)
	root, err := p.SelfSignRoot(rootKey, pkix.Name{CommonName: "Document Test CA", Organization: []string{"docsign"}},
		big.NewInt(1), now.Add(-time.Hour), now.Add(24*time.Hour))
	if err != nil {
		return nil, err
	}

	leafKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	csr, err := p.CreateCSR(leafKey, dscrypto.LeafTemplate(dscrypto.SubjectInfo{
		CommonName:   "Jane Doe",
		Organization: "Acme",
		Country:      "EC",
		Email:        "jane@example.com",
	}))
	if err != nil {
		return nil, err
	}
	leaf, err := p.SignCSR(csr, root, rootKey, big.NewInt(2), now.Add(-time.Minute), now.Add(12*time.Hour))
	if err != nil {
		return nil, err
	}

	pool := x509.NewCertPool()
	pool.AddCert(root)

	return &testIdentity{root: root, rootPool: pool, leaf: leaf, key: leafKey}, nil
}
