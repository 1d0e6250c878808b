package action

import (
	"github.com/code-payments/chain-fuzzer/pkg/chain"
	"github.com/code-payments/chain-fuzzer/pkg/pointer"
	"github.com/code-payments/chain-fuzzer/pkg/state"
)

// SchemeChanges lists the fields to update. Nil fields are left as is.
type SchemeChanges struct {
	Registrar *chain.Address
	Metadata  *string
}

type ChangeAssetSchemeParams struct {
	AssetType chain.AssetType
	Scheme    *state.AssetScheme
	Sender    chain.Address
	Changes   SchemeChanges
}

// ChangeAssetScheme mutates an asset scheme on behalf of its registrar.
type ChangeAssetScheme struct {
	sender    chain.Address
	assetType chain.AssetType
	changes   SchemeChanges
}

// NewChangeAssetScheme validates the params, including that the sender is the
// current registrar, and builds a ChangeAssetScheme.
func NewChangeAssetScheme(params ChangeAssetSchemeParams) (*ChangeAssetScheme, error) {
	if err := validateSchemeChange(params); err != nil {
		return nil, err
	}

	registrar := params.Scheme.Registrar
	if registrar == nil {
		return nil, newValidationError(chain.KindChangeAssetScheme, "asset scheme %s has no registrar", params.AssetType)
	}
	if *registrar != params.Sender {
		return nil, newValidationError(chain.KindChangeAssetScheme, "sender %s is not the registrar of %s", params.Sender, params.AssetType)
	}

	return newChangeAssetScheme(params), nil
}

// NewChangeAssetSchemeUnchecked builds a ChangeAssetScheme without checking
// the sender's authority, for transactions the chain is expected to reject.
func NewChangeAssetSchemeUnchecked(params ChangeAssetSchemeParams) (*ChangeAssetScheme, error) {
	if err := validateSchemeChange(params); err != nil {
		return nil, err
	}
	return newChangeAssetScheme(params), nil
}

func validateSchemeChange(params ChangeAssetSchemeParams) error {
	kind := chain.KindChangeAssetScheme

	if err := params.Sender.Validate(); err != nil {
		return newValidationError(kind, "invalid sender: %s", err.Error())
	}
	if params.Scheme == nil {
		return newValidationError(kind, "unknown asset type %s", params.AssetType)
	}
	if params.Scheme.AssetType != params.AssetType {
		return newValidationError(kind, "scheme is for %s, not %s", params.Scheme.AssetType, params.AssetType)
	}
	if params.Changes.Registrar == nil && params.Changes.Metadata == nil {
		return newValidationError(kind, "no changes")
	}
	if params.Changes.Registrar != nil {
		if err := params.Changes.Registrar.Validate(); err != nil {
			return newValidationError(kind, "invalid registrar: %s", err.Error())
		}
	}
	return nil
}

func newChangeAssetScheme(params ChangeAssetSchemeParams) *ChangeAssetScheme {
	return &ChangeAssetScheme{
		sender:    params.Sender,
		assetType: params.AssetType,
		changes: SchemeChanges{
			Registrar: pointer.Copy(params.Changes.Registrar),
			Metadata:  pointer.Copy(params.Changes.Metadata),
		},
	}
}

func (a *ChangeAssetScheme) Kind() chain.Kind {
	return chain.KindChangeAssetScheme
}

func (a *ChangeAssetScheme) Sender() chain.Address {
	return a.sender
}

func (a *ChangeAssetScheme) AssetType() chain.AssetType {
	return a.assetType
}

func (a *ChangeAssetScheme) Changes() SchemeChanges {
	return a.changes
}

func (a *ChangeAssetScheme) Transaction() *chain.Transaction {
	return chain.NewChangeAssetSchemeTransaction(a.sender, &chain.ChangeAssetScheme{
		AssetType: a.assetType,
		Registrar: a.changes.Registrar,
		Metadata:  a.changes.Metadata,
	})
}

func (a *ChangeAssetScheme) Apply(s *state.State, _ chain.Hash) {
	s.ApplyChangeAssetScheme(a.assetType, a.changes.Registrar, a.changes.Metadata)
}
