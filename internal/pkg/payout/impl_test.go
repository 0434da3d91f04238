package payout_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vreid/enigma/internal/pkg/common"
	"github.com/vreid/enigma/internal/pkg/entry"
	"github.com/vreid/enigma/internal/pkg/event"
	"github.com/vreid/enigma/internal/pkg/guess"
	"github.com/vreid/enigma/internal/pkg/payout"
	"github.com/vreid/enigma/internal/pkg/registry"
	"github.com/vreid/enigma/internal/pkg/token"
	bolt "go.etcd.io/bbolt"
)

const riddleAnswer = "testanswer"

func newTestDB(t *testing.T) *common.DatabaseService {
	t.Helper()

	db, err := bolt.Open(filepath.Join(t.TempDir(), "enigma.db"), 0600, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Close()
	})

	require.NoError(t, common.InitBuckets(db))

	return &common.DatabaseService{DB: db}
}

func setupRiddle(t *testing.T, databaseService *common.DatabaseService, prizeType registry.PrizeType, prizePool int64) {
	t.Helper()

	registryService := &registry.RegistryService{
		DatabaseService: databaseService,
	}

	prizeToken := "mtk"
	if prizeType == registry.PrizeNative {
		prizeToken = ""
	}

	_, err := registryService.SetRiddle(registry.SetRiddleRequest{
		RiddleID:      1,
		AnswerHash:    guess.HashGuess(riddleAnswer),
		PrizeType:     prizeType,
		PrizeToken:    prizeToken,
		PrizePool:     prizePool,
		EntryFeeToken: "mtk",
	})
	require.NoError(t, err)
}

func fundVault(t *testing.T, databaseService *common.DatabaseService, tokenID string, amount int64) {
	t.Helper()

	err := databaseService.DB.Update(func(tx *bolt.Tx) error {
		return token.Mint(tx, tokenID, token.VaultAccount, amount)
	})
	require.NoError(t, err)
}

func addWinner(t *testing.T, databaseService *common.DatabaseService, player string) {
	t.Helper()

	err := databaseService.DB.Update(func(tx *bolt.Tx) error {
		err := token.Mint(tx, "mtk", player, 10)
		if err != nil {
			return err
		}

		return token.Approve(tx, "mtk", player, token.VaultAccount, 10)
	})
	require.NoError(t, err)

	entryService := &entry.EntryService{
		DatabaseService: databaseService,
		EntryFee:        1,
	}

	require.NoError(t, entryService.Enter(player, 1))

	guessService := &guess.GuessService{
		DatabaseService: databaseService,

		RetryCost:  1,
		MaxRetries: 3,
	}

	state, err := guessService.Submit(player, 1, guess.HashGuess(riddleAnswer))
	require.NoError(t, err)
	require.True(t, state.IsWinner)
}

func balanceOf(t *testing.T, databaseService *common.DatabaseService, tokenID, account string) int64 {
	t.Helper()

	var balance int64

	err := databaseService.DB.View(func(tx *bolt.Tx) error {
		balance = token.BalanceOf(tx, tokenID, account)

		return nil
	})
	require.NoError(t, err)

	return balance
}

func TestPayoutSplitsEvenly(t *testing.T) {
	t.Parallel()

	databaseService := newTestDB(t)
	setupRiddle(t, databaseService, registry.PrizeToken, 100)
	fundVault(t, databaseService, "mtk", 100)

	addWinner(t, databaseService, "alice")
	addWinner(t, databaseService, "bob")
	addWinner(t, databaseService, "carol")

	events := make(chan event.Event, 10)

	payoutService := &payout.PayoutService{
		DatabaseService: databaseService,
		EventSink:       events,
	}

	result, err := payoutService.Payout(1)
	require.NoError(t, err)

	assert.Equal(t, int64(33), result.Share)
	assert.Equal(t, int64(99), result.TotalDistributed)
	assert.Equal(t, int64(3), result.WinnerCount)

	for _, player := range []string{"alice", "bob", "carol"} {
		// 10 minted, 1 entry fee, 33 prize share.
		assert.Equal(t, int64(42), balanceOf(t, databaseService, "mtk", player))
	}

	// 100 funded plus 3 entry fees, minus 99 distributed: the rounding
	// remainder stays in the vault.
	assert.Equal(t, int64(4), balanceOf(t, databaseService, "mtk", token.VaultAccount))

	registryService := &registry.RegistryService{
		DatabaseService: databaseService,
	}

	riddle, err := registryService.Riddle(1)
	require.NoError(t, err)
	assert.True(t, riddle.PaidOut)
	assert.Equal(t, int64(0), riddle.PrizePool)

	emitted := <-events
	assert.Equal(t, event.RiddlePayout, emitted.Name)
	assert.Equal(t, int64(99), emitted.TotalDistributed)
	assert.Equal(t, int64(3), emitted.WinnerCount)
}

func TestPayoutSingleWinner(t *testing.T) {
	t.Parallel()

	databaseService := newTestDB(t)
	setupRiddle(t, databaseService, registry.PrizeToken, 100)
	fundVault(t, databaseService, "mtk", 100)

	addWinner(t, databaseService, "alice")

	payoutService := &payout.PayoutService{
		DatabaseService: databaseService,
	}

	result, err := payoutService.Payout(1)
	require.NoError(t, err)

	assert.Equal(t, int64(100), result.Share)
	assert.Equal(t, int64(100), result.TotalDistributed)
	assert.Equal(t, int64(109), balanceOf(t, databaseService, "mtk", "alice"))
	assert.Equal(t, int64(1), balanceOf(t, databaseService, "mtk", token.VaultAccount))
}

func TestPayoutNativePrize(t *testing.T) {
	t.Parallel()

	databaseService := newTestDB(t)
	setupRiddle(t, databaseService, registry.PrizeNative, 50)
	fundVault(t, databaseService, token.NativeToken, 50)

	addWinner(t, databaseService, "alice")

	payoutService := &payout.PayoutService{
		DatabaseService: databaseService,
	}

	_, err := payoutService.Payout(1)
	require.NoError(t, err)

	assert.Equal(t, int64(50), balanceOf(t, databaseService, token.NativeToken, "alice"))
	assert.Equal(t, int64(0), balanceOf(t, databaseService, token.NativeToken, token.VaultAccount))
}

func TestPayoutTwiceFails(t *testing.T) {
	t.Parallel()

	databaseService := newTestDB(t)
	setupRiddle(t, databaseService, registry.PrizeToken, 100)
	fundVault(t, databaseService, "mtk", 100)

	addWinner(t, databaseService, "alice")

	payoutService := &payout.PayoutService{
		DatabaseService: databaseService,
	}

	_, err := payoutService.Payout(1)
	require.NoError(t, err)

	before := balanceOf(t, databaseService, "mtk", "alice")

	_, err = payoutService.Payout(1)
	require.ErrorIs(t, err, common.ErrAlreadyProcessed)

	assert.Equal(t, before, balanceOf(t, databaseService, "mtk", "alice"))
}

func TestPayoutNoWinners(t *testing.T) {
	t.Parallel()

	databaseService := newTestDB(t)
	setupRiddle(t, databaseService, registry.PrizeToken, 100)
	fundVault(t, databaseService, "mtk", 100)

	payoutService := &payout.PayoutService{
		DatabaseService: databaseService,
	}

	_, err := payoutService.Payout(1)
	require.ErrorIs(t, err, common.ErrInvalidArgument)

	assert.Equal(t, int64(100), balanceOf(t, databaseService, "mtk", token.VaultAccount))
}

func TestPayoutUnknownRiddle(t *testing.T) {
	t.Parallel()

	databaseService := newTestDB(t)

	payoutService := &payout.PayoutService{
		DatabaseService: databaseService,
	}

	_, err := payoutService.Payout(99)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestPayoutInsufficientVaultFunds(t *testing.T) {
	t.Parallel()

	databaseService := newTestDB(t)
	setupRiddle(t, databaseService, registry.PrizeToken, 100)

	addWinner(t, databaseService, "alice")

	payoutService := &payout.PayoutService{
		DatabaseService: databaseService,
	}

	// The pool was never funded beyond the entry fee: the transfer fails
	// and the riddle stays payable.
	_, err := payoutService.Payout(1)
	require.ErrorIs(t, err, common.ErrInsufficientFunds)

	registryService := &registry.RegistryService{
		DatabaseService: databaseService,
	}

	riddle, err := registryService.Riddle(1)
	require.NoError(t, err)
	assert.False(t, riddle.PaidOut)
	assert.Equal(t, int64(100), riddle.PrizePool)
}
