package chain

import (
	"context"
	"crypto/ed25519"
	"sync"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

var (
	ErrUnknownAccount  = errors.New("no key for account")
	ErrWrongPassphrase = errors.New("wrong passphrase")
)

// MessageSigner signs messages on behalf of an account. Implementations may
// hold keys locally or delegate to a key manager.
type MessageSigner interface {
	SignMessage(ctx context.Context, account Address, passphrase string, message []byte) ([]byte, error)
}

// SignTransaction signs txn on behalf of its sender and attaches the signature.
func SignTransaction(ctx context.Context, signer MessageSigner, txn *Transaction, passphrase string) error {
	msg, err := txn.Message()
	if err != nil {
		return err
	}

	sig, err := signer.SignMessage(ctx, txn.Sender, passphrase, msg)
	if err != nil {
		return errors.Wrapf(err, "failed to sign transaction from %s", txn.Sender)
	}

	txn.Signature = sig
	return nil
}

// VerifyTransaction checks the signature of txn against its sender.
func VerifyTransaction(txn *Transaction) error {
	publicKey, err := txn.Sender.PublicKey()
	if err != nil {
		return err
	}

	msg, err := txn.Message()
	if err != nil {
		return err
	}

	if !ed25519.Verify(publicKey, msg, txn.Signature) {
		return errors.New("invalid signature")
	}
	return nil
}

type storedKey struct {
	privateKey ed25519.PrivateKey
	passphrase string
}

// KeyStore is an in-process MessageSigner backed by ed25519 private keys.
type KeyStore struct {
	mu   sync.RWMutex
	keys map[Address]*storedKey
}

func NewKeyStore() *KeyStore {
	return &KeyStore{
		keys: make(map[Address]*storedKey),
	}
}

// Add stores a private key, locked with passphrase, and returns its address.
func (s *KeyStore) Add(privateKey ed25519.PrivateKey, passphrase string) (Address, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return "", errors.New("key must be an ed25519 private key")
	}

	address := NewAddressFromPublicKey(privateKey.Public().(ed25519.PublicKey))

	s.mu.Lock()
	s.keys[address] = &storedKey{
		privateKey: privateKey,
		passphrase: passphrase,
	}
	s.mu.Unlock()

	return address, nil
}

// AddFromString stores a base58 encoded private key.
func (s *KeyStore) AddFromString(privateKey, passphrase string) (Address, error) {
	decoded, err := base58.Decode(privateKey)
	if err != nil {
		return "", errors.Wrap(err, "error decoding private key as base58")
	}
	return s.Add(decoded, passphrase)
}

// NewRandomKey generates and stores a new key.
func (s *KeyStore) NewRandomKey(passphrase string) (Address, error) {
	_, privateKey, err := ed25519.GenerateKey(nil)
	if err != nil {
		return "", errors.Wrap(err, "error generating private key")
	}
	return s.Add(privateKey, passphrase)
}

func (s *KeyStore) Has(account Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.keys[account]
	return ok
}

// SignMessage implements MessageSigner.SignMessage.
func (s *KeyStore) SignMessage(_ context.Context, account Address, passphrase string, message []byte) ([]byte, error) {
	s.mu.RLock()
	key, ok := s.keys[account]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrUnknownAccount
	}
	if key.passphrase != passphrase {
		return nil, ErrWrongPassphrase
	}

	return ed25519.Sign(key.privateKey, message), nil
}
