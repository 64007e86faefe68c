package crypto

import (
	"crypto/rsa"
	"math/big"
)

// Wipe zeroes b in place.
func Wipe(b []byte) {
	clear(b)
}

// WipeRSAKey zeroes the private parts of key. The key must not be used
// afterwards.
func WipeRSAKey(key *rsa.PrivateKey) {
	if key == nil {
		return
	}
	wipeInt(key.D)
	for _, p := range key.Primes {
		wipeInt(p)
	}
	wipeInt(key.Precomputed.Dp)
	wipeInt(key.Precomputed.Dq)
	wipeInt(key.Precomputed.Qinv)
}

func wipeInt(x *big.Int) {
	if x == nil {
		return
	}
	words := x.Bits()
	clear(words)
	x.SetInt64(0)
}
