package chain

import (
	"bytes"
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

const (
	// HashSize is the size of a transaction hash, in bytes.
	HashSize = 32
)

// Quantity is an amount of the native coin or of an asset.
type Quantity uint64

// AssetType identifies a fungible asset class.
type AssetType string

// Address is a base58 encoded ed25519 public key identifying an account.
type Address string

// NewAddressFromPublicKey returns the address for the provided public key.
func NewAddressFromPublicKey(publicKey ed25519.PublicKey) Address {
	return Address(base58.Encode(publicKey))
}

// NewAddressFromString parses and validates a base58 encoded address.
func NewAddressFromString(value string) (Address, error) {
	a := Address(value)
	if err := a.Validate(); err != nil {
		return "", err
	}
	return a, nil
}

// PublicKey returns the public key the address encodes.
func (a Address) PublicKey() (ed25519.PublicKey, error) {
	decoded, err := base58.Decode(string(a))
	if err != nil {
		return nil, errors.Wrap(err, "error decoding address as base58")
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, errors.Errorf("address must be %d bytes, got %d", ed25519.PublicKeySize, len(decoded))
	}
	return decoded, nil
}

func (a Address) Validate() error {
	if len(a) == 0 {
		return errors.New("address is empty")
	}

	_, err := a.PublicKey()
	return err
}

func (a Address) String() string {
	return string(a)
}

// Hash identifies a transaction.
type Hash [HashSize]byte

// NewHashFromString parses a base58 encoded hash.
func NewHashFromString(value string) (Hash, error) {
	var h Hash

	decoded, err := base58.Decode(value)
	if err != nil {
		return h, errors.Wrap(err, "error decoding hash as base58")
	}
	if len(decoded) != HashSize {
		return h, errors.Errorf("hash must be %d bytes, got %d", HashSize, len(decoded))
	}

	copy(h[:], decoded)
	return h, nil
}

func (h Hash) String() string {
	return base58.Encode(h[:])
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Less orders hashes bytewise.
func (h Hash) Less(other Hash) bool {
	return bytes.Compare(h[:], other[:]) < 0
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := NewHashFromString(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
