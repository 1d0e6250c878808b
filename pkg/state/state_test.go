package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/chain-fuzzer/pkg/chain"
	"github.com/code-payments/chain-fuzzer/pkg/testutil"
)

func TestState_UnknownKeys(t *testing.T) {
	s := New()

	assert.Empty(t, s.GetUtxos(testutil.NewRandomAddress(t)))
	assert.Empty(t, s.AllAssetSchemes())

	_, ok := s.GetAssetScheme("unknown")
	assert.False(t, ok)

	assert.False(t, s.RemoveUtxo(testutil.NewRandomAddress(t), chain.Hash{}, 0))
	s.ApplyChangeAssetScheme("unknown", nil, nil)
	assert.Empty(t, s.AllAssetSchemes())
}

func TestState_ApplyTransfer(t *testing.T) {
	s := New()
	owner := testutil.NewRandomAddress(t)
	receiver := testutil.NewRandomAddress(t)

	genesis := &Utxo{
		TxHash:    testutil.NewRandomHash(t),
		Index:     0,
		Owner:     owner,
		AssetType: "gold",
		Quantity:  15,
	}
	s.AddUtxo(genesis)
	require.Len(t, s.GetUtxos(owner), 1)

	txHash := testutil.NewRandomHash(t)
	s.ApplyTransfer(
		txHash,
		[]chain.AssetOutPoint{genesis.OutPoint()},
		[]chain.AssetOutput{
			{Receiver: owner, AssetType: "gold", Quantity: 5},
			{Receiver: receiver, AssetType: "gold", Quantity: 10},
		},
	)

	assert.False(t, s.HasUtxo(owner, genesis.TxHash, genesis.Index))
	assert.True(t, s.HasUtxo(owner, txHash, 0))
	assert.True(t, s.HasUtxo(receiver, txHash, 1))
	assert.EqualValues(t, 5, s.Balance(owner, "gold"))
	assert.EqualValues(t, 10, s.Balance(receiver, "gold"))
	assert.EqualValues(t, 0, s.Balance(receiver, "silver"))
	assert.Equal(t, 2, s.UtxoCount())
}

func TestState_QueriesReturnCopies(t *testing.T) {
	s := New()
	owner := testutil.NewRandomAddress(t)
	registrar := testutil.NewRandomAddress(t)

	s.AddUtxo(&Utxo{TxHash: testutil.NewRandomHash(t), Owner: owner, AssetType: "gold", Quantity: 1})
	s.SetAssetScheme(&AssetScheme{AssetType: "gold", Registrar: &registrar})

	utxos := s.GetUtxos(owner)
	utxos[0].Quantity = 1000
	assert.EqualValues(t, 1, s.Balance(owner, "gold"))

	schemes := s.AllAssetSchemes()
	*schemes[0].Registrar = owner
	scheme, ok := s.GetAssetScheme("gold")
	require.True(t, ok)
	assert.Equal(t, registrar, *scheme.Registrar)
}

func TestState_DeterministicOrdering(t *testing.T) {
	s := New()
	owner := testutil.NewRandomAddress(t)

	for i := 0; i < 20; i++ {
		s.AddUtxo(&Utxo{TxHash: testutil.NewRandomHash(t), Index: uint32(i % 3), Owner: owner, AssetType: "gold", Quantity: 1})
	}
	for _, assetType := range []chain.AssetType{"c", "a", "b"} {
		s.SetAssetScheme(&AssetScheme{AssetType: assetType})
	}

	utxos := s.GetUtxos(owner)
	for i := 1; i < len(utxos); i++ {
		assert.False(t, utxos[i].TxHash.Less(utxos[i-1].TxHash))
	}
	assert.Equal(t, utxos, s.GetUtxos(owner))

	schemes := s.AllAssetSchemes()
	require.Len(t, schemes, 3)
	assert.EqualValues(t, "a", schemes[0].AssetType)
	assert.EqualValues(t, "b", schemes[1].AssetType)
	assert.EqualValues(t, "c", schemes[2].AssetType)
}

func TestState_ApplyChangeAssetScheme(t *testing.T) {
	s := New()
	registrar := testutil.NewRandomAddress(t)
	next := testutil.NewRandomAddress(t)

	s.SetAssetScheme(&AssetScheme{AssetType: "gold", Metadata: "v1", Registrar: &registrar})

	metadata := "v2"
	s.ApplyChangeAssetScheme("gold", &next, &metadata)

	scheme, ok := s.GetAssetScheme("gold")
	require.True(t, ok)
	assert.Equal(t, next, *scheme.Registrar)
	assert.Equal(t, "v2", scheme.Metadata)

	s.ApplyChangeAssetScheme("gold", nil, nil)
	scheme, _ = s.GetAssetScheme("gold")
	assert.Equal(t, next, *scheme.Registrar)
}

func TestState_Clone(t *testing.T) {
	s := New()
	owner := testutil.NewRandomAddress(t)
	utxo := &Utxo{TxHash: testutil.NewRandomHash(t), Owner: owner, AssetType: "gold", Quantity: 3}
	s.AddUtxo(utxo)
	s.SetAssetScheme(&AssetScheme{AssetType: "gold"})

	cloned := s.Clone()
	assert.True(t, s.RemoveUtxo(owner, utxo.TxHash, utxo.Index))

	assert.Equal(t, 0, s.UtxoCount())
	assert.Equal(t, 1, cloned.UtxoCount())
	assert.Len(t, cloned.AllAssetSchemes(), 1)
}
