package async_fuzzer

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/chain-fuzzer/pkg/chain"
	"github.com/code-payments/chain-fuzzer/pkg/chain/memory"
	"github.com/code-payments/chain-fuzzer/pkg/confirmation"
	"github.com/code-payments/chain-fuzzer/pkg/scenario"
	"github.com/code-payments/chain-fuzzer/pkg/state"
	"github.com/code-payments/chain-fuzzer/pkg/testutil"
)

const (
	testPassphrase = "passphrase"
	testAssetType  = chain.AssetType("gold")
)

type testEnv struct {
	ctx           context.Context
	client        *memory.Client
	confirmations *confirmation.Engine
	state         *state.State
	accounts      scenario.Accounts
}

func setup(t *testing.T) *testEnv {
	t.Setenv(confirmation.PollIntervalConfigEnvName, "1ms")

	client := memory.NewClient()
	keys := chain.NewKeyStore()

	env := &testEnv{
		ctx:           context.Background(),
		client:        client,
		confirmations: confirmation.NewEngine(client, keys, confirmation.WithEnvConfigs()),
		state:         state.New(),
		accounts: scenario.Accounts{
			Regulator:    testutil.NewRandomAccount(t, keys, testPassphrase),
			RegulatorAlt: testutil.NewRandomAccount(t, keys, testPassphrase),
			AssetAccounts: []chain.Address{
				testutil.NewRandomAccount(t, keys, testPassphrase),
			},
		},
	}

	client.SetBalance(env.accounts.Regulator, 10_000)
	client.SetBalance(env.accounts.RegulatorAlt, 10_000)
	client.SetBalance(env.accounts.AssetAccounts[0], 10_000)

	return env
}

// runner returns a Runner that only ever picks the named scenario
func (e *testEnv) runner(t *testing.T, name string) *Runner {
	var table scenario.Table
	for _, entry := range scenario.DefaultTable() {
		if entry.Name == name {
			table = append(table, entry)
		}
	}
	require.Len(t, table, 1)

	engine, err := scenario.NewEngine(table, e.accounts, rand.New(rand.NewSource(0)))
	require.NoError(t, err)

	return NewRunner(engine, e.confirmations, e.state, testPassphrase)
}

func (e *testEnv) addUtxo(t *testing.T, owner chain.Address, quantity chain.Quantity) *state.Utxo {
	utxo := &state.Utxo{
		TxHash:    testutil.NewRandomHash(t),
		Owner:     owner,
		AssetType: testAssetType,
		Quantity:  quantity,
	}
	e.state.AddUtxo(utxo)
	return utxo
}

// addScheme registers the asset scheme locally with registrar, and on chain
// with onChainRegistrar.
func (e *testEnv) addScheme(registrar, onChainRegistrar chain.Address) {
	e.state.SetAssetScheme(&state.AssetScheme{
		AssetType: testAssetType,
		Registrar: &registrar,
		Supply:    1000,
	})
	e.client.SetAssetScheme(testAssetType, &onChainRegistrar)
}

func TestRunOnce_Confirmed(t *testing.T) {
	env := setup(t)
	runner := env.runner(t, scenario.AirDropName)

	spent := env.addUtxo(t, env.accounts.Regulator, 15)

	outcome, err := runner.RunOnce(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, outcome)

	broadcasts := env.client.GetBroadcasts()
	require.Len(t, broadcasts, 1)
	hash, err := broadcasts[0].Hash()
	require.NoError(t, err)

	assert.False(t, env.state.HasUtxo(spent.Owner, spent.TxHash, spent.Index))
	assert.EqualValues(t, 5, env.state.Balance(env.accounts.Regulator, testAssetType))
	assert.EqualValues(t, 10, env.state.Balance(env.accounts.AssetAccounts[0], testAssetType))
	for _, utxo := range env.state.GetUtxos(env.accounts.AssetAccounts[0]) {
		assert.Equal(t, hash, utxo.TxHash)
	}
	assert.Zero(t, env.confirmations.InFlight())
}

func TestRunOnce_Skipped(t *testing.T) {
	env := setup(t)
	runner := env.runner(t, scenario.AirDropName)

	outcome, err := runner.RunOnce(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Empty(t, env.client.GetBroadcasts())
}

func TestRunOnce_RejectedAsExpected(t *testing.T) {
	env := setup(t)
	runner := env.runner(t, scenario.NonRegistrarCannotChangeRegistrarName)

	env.addScheme(env.accounts.Regulator, env.accounts.Regulator)

	outcome, err := runner.RunOnce(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejectedAsExpected, outcome)

	require.Len(t, env.client.GetBroadcasts(), 1)

	scheme, ok := env.state.GetAssetScheme(testAssetType)
	require.True(t, ok)
	assert.Equal(t, env.accounts.Regulator, *scheme.Registrar)
}

func TestRunOnce_InvalidAsExpected(t *testing.T) {
	env := setup(t)
	runner := env.runner(t, scenario.TransferMoreThanOwnedName)

	env.addUtxo(t, env.accounts.AssetAccounts[0], 3)

	outcome, err := runner.RunOnce(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalidAsExpected, outcome)
	assert.Empty(t, env.client.GetBroadcasts())
	assert.EqualValues(t, 3, env.state.Balance(env.accounts.AssetAccounts[0], testAssetType))
}

func TestRunOnce_UnexpectedInclusion(t *testing.T) {
	env := setup(t)
	runner := env.runner(t, scenario.NonRegistrarCannotChangeRegistrarName)

	// The chain already considers the impostor to be the registrar
	env.addScheme(env.accounts.Regulator, env.accounts.RegulatorAlt)

	outcome, err := runner.RunOnce(env.ctx)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.True(t, IsFailure(err))
	assert.True(t, errors.Is(err, ErrUnexpectedInclusion))

	// The state follows the chain
	scheme, ok := env.state.GetAssetScheme(testAssetType)
	require.True(t, ok)
	assert.Equal(t, env.accounts.RegulatorAlt, *scheme.Registrar)
}

func TestRunOnce_UnexpectedRejection(t *testing.T) {
	env := setup(t)
	runner := env.runner(t, scenario.RegistrarCanChangeRegistrarName)

	env.addScheme(env.accounts.Regulator, testutil.NewRandomAddress(t))

	outcome, err := runner.RunOnce(env.ctx)
	assert.Equal(t, OutcomeFailed, outcome)
	require.True(t, IsFailure(err))

	inclusionErr, ok := confirmation.AsInclusionError(err)
	require.True(t, ok)
	assert.Equal(t, memory.HintInsufficientPermission, inclusionErr.Hint)

	scheme, ok := env.state.GetAssetScheme(testAssetType)
	require.True(t, ok)
	assert.Equal(t, env.accounts.Regulator, *scheme.Registrar)
}

func TestRunOnce_TransportError(t *testing.T) {
	env := setup(t)
	runner := env.runner(t, scenario.AirDropName)

	env.addUtxo(t, env.accounts.Regulator, 15)
	env.client.SimulateErrors()

	outcome, err := runner.RunOnce(env.ctx)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Error(t, err)
	assert.False(t, IsFailure(err))
	assert.EqualValues(t, 15, env.state.Balance(env.accounts.Regulator, testAssetType))
}

func TestRun(t *testing.T) {
	env := setup(t)
	runner := env.runner(t, scenario.AirDropName)

	env.addUtxo(t, env.accounts.Regulator, 25)

	stats, err := runner.Run(env.ctx, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Rounds)
	assert.EqualValues(t, 2, stats.Outcomes[OutcomeConfirmed])
	assert.EqualValues(t, 1, stats.Outcomes[OutcomeSkipped])
	assert.NoError(t, stats.LastError)

	assert.EqualValues(t, 5, env.state.Balance(env.accounts.Regulator, testAssetType))
	assert.EqualValues(t, 20, env.state.Balance(env.accounts.AssetAccounts[0], testAssetType))
}

func TestRun_StopsOnFailure(t *testing.T) {
	env := setup(t)
	runner := env.runner(t, scenario.NonRegistrarCannotChangeRegistrarName)

	env.addScheme(env.accounts.Regulator, env.accounts.RegulatorAlt)

	stats, err := runner.Run(env.ctx, 10)
	assert.True(t, IsFailure(err))
	assert.EqualValues(t, 1, stats.Rounds)
	assert.EqualValues(t, 1, stats.Outcomes[OutcomeFailed])
	assert.Equal(t, err, stats.LastError)
}

func TestRun_ContextCancellation(t *testing.T) {
	env := setup(t)
	runner := env.runner(t, scenario.AirDropName)

	ctx, cancel := context.WithTimeout(env.ctx, 20*time.Millisecond)
	defer cancel()

	stats, err := runner.Run(ctx, 0)
	assert.Equal(t, context.DeadlineExceeded, err)
	assert.NotZero(t, stats.Rounds)
	assert.Equal(t, stats.Rounds, stats.Outcomes[OutcomeSkipped])
}

func TestNewRunner_UniqueRunID(t *testing.T) {
	env := setup(t)

	first := env.runner(t, scenario.AirDropName)
	second := env.runner(t, scenario.AirDropName)
	assert.NotEmpty(t, first.RunID())
	assert.NotEqual(t, first.RunID(), second.RunID())
}
