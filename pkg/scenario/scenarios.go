package scenario

import (
	"context"
	"math"

	"github.com/code-payments/chain-fuzzer/pkg/action"
	"github.com/code-payments/chain-fuzzer/pkg/chain"
	"github.com/code-payments/chain-fuzzer/pkg/state"
)

const (
	AirDropName                           = "airDrop"
	RegistrarCanChangeRegistrarName       = "registrarCanChangeRegistrar"
	NonRegistrarCannotChangeRegistrarName = "nonRegistrarCannotChangeRegistrar"
	ReturnToRegulatorName                 = "returnToRegulator"
	TransferMoreThanOwnedName             = "transferMoreThanOwned"

	airDropQuantity = 10
)

// DefaultTable returns the built-in scenarios.
func DefaultTable() Table {
	return Table{
		{
			Name:        AirDropName,
			Weight:      10,
			Description: "Airdrop",
			Scenario:    airDrop,
		},
		{
			Name:        RegistrarCanChangeRegistrarName,
			Weight:      1,
			Description: "Registrar can change registrar of AssetScheme",
			Scenario:    registrarCanChangeRegistrar,
		},
		{
			Name:        NonRegistrarCannotChangeRegistrarName,
			Weight:      1,
			Description: "Non-registrar cannot change registrar of AssetScheme",
			Scenario:    nonRegistrarCannotChangeRegistrar,
		},
		{
			Name:        ReturnToRegulatorName,
			Weight:      3,
			Description: "Asset account returns assets to the regulator",
			Scenario:    returnToRegulator,
		},
		{
			Name:        TransferMoreThanOwnedName,
			Weight:      1,
			Description: "Cannot transfer more than a utxo holds",
			Scenario:    transferMoreThanOwned,
		},
	}
}

func airDrop(_ context.Context, env *Env, s *state.State) (*Result, error) {
	regulator := env.Accounts.Regulator

	utxo, ok := PickRandom(env.Rand, s.GetUtxos(regulator), func(utxo *state.Utxo) bool {
		return utxo.Quantity >= airDropQuantity
	})
	if !ok {
		return nil, NewSkip("Asset is depleted")
	}

	receiver, ok := PickRandom(env.Rand, env.Accounts.AssetAccounts, nil)
	if !ok {
		return nil, NewSkip("No asset accounts")
	}

	outputs, err := action.Give(utxo, receiver, airDropQuantity)
	if err != nil {
		return nil, err
	}

	transfer, err := action.NewTransfer(action.TransferParams{
		Sender:  regulator,
		Inputs:  []*state.Utxo{utxo},
		Outputs: outputs,
	})
	if err != nil {
		return nil, err
	}
	return &Result{Expected: true, Action: transfer}, nil
}

func registrarCanChangeRegistrar(_ context.Context, env *Env, s *state.State) (*Result, error) {
	scheme, ok := pickRegulatedScheme(env, s)
	if !ok {
		return nil, NewSkip("No asset scheme with a known registrar")
	}

	current := *scheme.Registrar
	other := otherRegulator(env, current)

	change, err := action.NewChangeAssetScheme(action.ChangeAssetSchemeParams{
		AssetType: scheme.AssetType,
		Scheme:    scheme,
		Sender:    current,
		Changes:   action.SchemeChanges{Registrar: &other},
	})
	if err != nil {
		return nil, err
	}
	return &Result{Expected: true, Action: change}, nil
}

func nonRegistrarCannotChangeRegistrar(_ context.Context, env *Env, s *state.State) (*Result, error) {
	scheme, ok := pickRegulatedScheme(env, s)
	if !ok {
		return nil, NewSkip("No asset scheme with a known registrar")
	}

	// The other regulator tries to take over the scheme
	impostor := otherRegulator(env, *scheme.Registrar)

	change, err := action.NewChangeAssetSchemeUnchecked(action.ChangeAssetSchemeParams{
		AssetType: scheme.AssetType,
		Scheme:    scheme,
		Sender:    impostor,
		Changes:   action.SchemeChanges{Registrar: &impostor},
	})
	if err != nil {
		return nil, err
	}
	return &Result{Expected: false, Action: change}, nil
}

func returnToRegulator(_ context.Context, env *Env, s *state.State) (*Result, error) {
	utxo, ok := PickRandom(env.Rand, assetAccountUtxos(env, s), func(utxo *state.Utxo) bool {
		return utxo.Quantity > 0
	})
	if !ok {
		return nil, NewSkip("No asset account holds any asset")
	}

	limit := utxo.Quantity
	if limit > math.MaxInt64 {
		limit = math.MaxInt64
	}
	quantity := chain.Quantity(env.Rand.Int63n(int64(limit))) + 1

	outputs, err := action.Give(utxo, env.Accounts.Regulator, quantity)
	if err != nil {
		return nil, err
	}

	transfer, err := action.NewTransfer(action.TransferParams{
		Sender:  utxo.Owner,
		Inputs:  []*state.Utxo{utxo},
		Outputs: outputs,
	})
	if err != nil {
		return nil, err
	}
	return &Result{Expected: true, Action: transfer}, nil
}

func transferMoreThanOwned(_ context.Context, env *Env, s *state.State) (*Result, error) {
	utxo, ok := PickRandom(env.Rand, assetAccountUtxos(env, s), nil)
	if !ok {
		return nil, NewSkip("No asset account holds any asset")
	}

	// Always fails validation, so nothing is broadcast
	_, err := action.Give(utxo, env.Accounts.Regulator, utxo.Quantity+1)
	return &Result{Expected: false}, err
}

// pickRegulatedScheme samples an asset scheme whose registrar is one of the
// regulators, since those are the accounts scenarios can sign for.
func pickRegulatedScheme(env *Env, s *state.State) (*state.AssetScheme, bool) {
	return PickRandom(env.Rand, s.AllAssetSchemes(), func(scheme *state.AssetScheme) bool {
		if scheme.Registrar == nil {
			return false
		}
		return *scheme.Registrar == env.Accounts.Regulator || *scheme.Registrar == env.Accounts.RegulatorAlt
	})
}

func otherRegulator(env *Env, registrar chain.Address) chain.Address {
	if registrar == env.Accounts.Regulator {
		return env.Accounts.RegulatorAlt
	}
	return env.Accounts.Regulator
}

func assetAccountUtxos(env *Env, s *state.State) []*state.Utxo {
	var utxos []*state.Utxo
	for _, account := range env.Accounts.AssetAccounts {
		utxos = append(utxos, s.GetUtxos(account)...)
	}
	return utxos
}
