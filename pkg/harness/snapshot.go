package harness

import (
	"github.com/pkg/errors"

	"github.com/code-payments/chain-fuzzer/pkg/chain"
	"github.com/code-payments/chain-fuzzer/pkg/pointer"
	"github.com/code-payments/chain-fuzzer/pkg/state"
)

// Snapshot is the chain state the harness starts from. It must match the
// chain at startup, since nothing is loaded from the node.
type Snapshot struct {
	Utxos        []SnapshotUtxo        `mapstructure:"utxos"`
	AssetSchemes []SnapshotAssetScheme `mapstructure:"asset_schemes"`
}

type SnapshotUtxo struct {
	TxHash    chain.Hash      `mapstructure:"tx_hash"`
	Index     uint32          `mapstructure:"index"`
	Owner     chain.Address   `mapstructure:"owner"`
	AssetType chain.AssetType `mapstructure:"asset_type"`
	Quantity  chain.Quantity  `mapstructure:"quantity"`
}

type SnapshotAssetScheme struct {
	AssetType chain.AssetType `mapstructure:"asset_type"`
	Metadata  string          `mapstructure:"metadata"`
	Supply    chain.Quantity  `mapstructure:"supply"`

	// Empty for immutable schemes
	Registrar chain.Address `mapstructure:"registrar"`
}

func (s *Snapshot) Validate() error {
	type outPoint struct {
		txHash chain.Hash
		index  uint32
	}

	seen := make(map[outPoint]struct{})
	for _, utxo := range s.Utxos {
		if utxo.TxHash.IsZero() {
			return errors.New("snapshot utxo is missing its tx hash")
		}
		if err := utxo.Owner.Validate(); err != nil {
			return errors.Wrapf(err, "invalid owner of %s:%d", utxo.TxHash, utxo.Index)
		}
		if len(utxo.AssetType) == 0 {
			return errors.Errorf("%s:%d is missing its asset type", utxo.TxHash, utxo.Index)
		}

		key := outPoint{utxo.TxHash, utxo.Index}
		if _, ok := seen[key]; ok {
			return errors.Errorf("duplicate snapshot utxo %s:%d", utxo.TxHash, utxo.Index)
		}
		seen[key] = struct{}{}
	}

	schemes := make(map[chain.AssetType]struct{})
	for _, scheme := range s.AssetSchemes {
		if len(scheme.AssetType) == 0 {
			return errors.New("snapshot asset scheme is missing its asset type")
		}
		if len(scheme.Registrar) > 0 {
			if err := scheme.Registrar.Validate(); err != nil {
				return errors.Wrapf(err, "invalid registrar of %s", scheme.AssetType)
			}
		}
		if _, ok := schemes[scheme.AssetType]; ok {
			return errors.Errorf("duplicate asset scheme %s", scheme.AssetType)
		}
		schemes[scheme.AssetType] = struct{}{}
	}

	return nil
}

// State builds the initial state model.
func (s *Snapshot) State() *state.State {
	res := state.New()

	for _, utxo := range s.Utxos {
		res.AddUtxo(&state.Utxo{
			TxHash:    utxo.TxHash,
			Index:     utxo.Index,
			Owner:     utxo.Owner,
			AssetType: utxo.AssetType,
			Quantity:  utxo.Quantity,
		})
	}

	for _, scheme := range s.AssetSchemes {
		res.SetAssetScheme(&state.AssetScheme{
			AssetType: scheme.AssetType,
			Metadata:  scheme.Metadata,
			Registrar: pointer.IfValid(len(scheme.Registrar) > 0, scheme.Registrar),
			Supply:    scheme.Supply,
		})
	}

	return res
}
