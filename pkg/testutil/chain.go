package testutil

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/code-payments/chain-fuzzer/pkg/chain"
)

// NewRandomAddress returns the address of a freshly generated key that isn't
// retained anywhere.
func NewRandomAddress(t *testing.T) chain.Address {
	address, err := chain.NewKeyStore().NewRandomKey("")
	require.NoError(t, err)
	return address
}

// NewRandomAccount generates a key in the provided store and returns its address.
func NewRandomAccount(t *testing.T, keys *chain.KeyStore, passphrase string) chain.Address {
	address, err := keys.NewRandomKey(passphrase)
	require.NoError(t, err)
	return address
}

func NewRandomHash(t *testing.T) chain.Hash {
	var h chain.Hash
	_, err := rand.Read(h[:])
	require.NoError(t, err)
	return h
}
