package chain

import (
	"encoding/json"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// Kind is the type of action a transaction carries.
type Kind string

const (
	KindPay               Kind = "pay"
	KindTransferAsset     Kind = "transferAsset"
	KindChangeAssetScheme Kind = "changeAssetScheme"
)

// Transaction is a chain transaction. Seq, Fee and Signature are filled in at
// submission time.
type Transaction struct {
	Sender Address  `json:"sender"`
	Seq    uint64   `json:"seq"`
	Fee    Quantity `json:"fee"`
	Kind   Kind     `json:"kind"`

	Pay               *Pay               `json:"pay,omitempty"`
	TransferAsset     *TransferAsset     `json:"transferAsset,omitempty"`
	ChangeAssetScheme *ChangeAssetScheme `json:"changeAssetScheme,omitempty"`

	Signature []byte `json:"signature,omitempty"`
}

// Pay moves native coin from the sender to a receiver.
type Pay struct {
	Receiver Address  `json:"receiver"`
	Quantity Quantity `json:"quantity"`
}

// AssetOutPoint references an unspent asset output.
type AssetOutPoint struct {
	TxHash    Hash      `json:"txHash"`
	Index     uint32    `json:"index"`
	AssetType AssetType `json:"assetType"`
	Owner     Address   `json:"owner"`
	Quantity  Quantity  `json:"quantity"`
}

// AssetOutput creates a new asset output owned by Receiver.
type AssetOutput struct {
	Receiver  Address   `json:"receiver"`
	AssetType AssetType `json:"assetType"`
	Quantity  Quantity  `json:"quantity"`
}

// TransferAsset consumes Inputs and produces Outputs.
type TransferAsset struct {
	Inputs  []AssetOutPoint `json:"inputs"`
	Outputs []AssetOutput   `json:"outputs"`
}

// ChangeAssetScheme mutates the scheme of AssetType. Nil fields are left as is.
type ChangeAssetScheme struct {
	AssetType AssetType `json:"assetType"`
	Registrar *Address  `json:"registrar,omitempty"`
	Metadata  *string   `json:"metadata,omitempty"`
}

// NewPayTransaction returns an unsigned pay transaction.
func NewPayTransaction(sender, receiver Address, quantity Quantity) *Transaction {
	return &Transaction{
		Sender: sender,
		Kind:   KindPay,
		Pay: &Pay{
			Receiver: receiver,
			Quantity: quantity,
		},
	}
}

// NewTransferAssetTransaction returns an unsigned asset transfer transaction.
func NewTransferAssetTransaction(sender Address, inputs []AssetOutPoint, outputs []AssetOutput) *Transaction {
	return &Transaction{
		Sender: sender,
		Kind:   KindTransferAsset,
		TransferAsset: &TransferAsset{
			Inputs:  inputs,
			Outputs: outputs,
		},
	}
}

// NewChangeAssetSchemeTransaction returns an unsigned asset scheme mutation.
func NewChangeAssetSchemeTransaction(sender Address, change *ChangeAssetScheme) *Transaction {
	return &Transaction{
		Sender:            sender,
		Kind:              KindChangeAssetScheme,
		ChangeAssetScheme: change,
	}
}

// Message returns the bytes covered by the signature.
func (t *Transaction) Message() ([]byte, error) {
	unsigned := *t
	unsigned.Signature = nil

	b, err := json.Marshal(&unsigned)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode transaction")
	}
	return b, nil
}

// Hash returns the blake2b-256 digest of the signed transaction.
func (t *Transaction) Hash() (Hash, error) {
	msg, err := t.Message()
	if err != nil {
		return Hash{}, err
	}

	h, err := blake2b.New256(nil)
	if err != nil {
		return Hash{}, err
	}
	h.Write(msg)
	h.Write(t.Signature)

	var out Hash
	copy(out[:], h.Sum(nil))
	return out, nil
}

func (t *Transaction) Validate() error {
	if err := t.Sender.Validate(); err != nil {
		return errors.Wrap(err, "invalid sender")
	}

	switch t.Kind {
	case KindPay:
		if t.Pay == nil {
			return errors.New("pay transaction is missing its payload")
		}
		return t.Pay.Receiver.Validate()
	case KindTransferAsset:
		if t.TransferAsset == nil {
			return errors.New("transfer transaction is missing its payload")
		}
		if len(t.TransferAsset.Inputs) == 0 {
			return errors.New("transfer transaction has no inputs")
		}
		return nil
	case KindChangeAssetScheme:
		if t.ChangeAssetScheme == nil {
			return errors.New("change asset scheme transaction is missing its payload")
		}
		return nil
	default:
		return errors.Errorf("unknown transaction kind %q", t.Kind)
	}
}
