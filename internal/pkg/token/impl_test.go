package token_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vreid/enigma/internal/pkg/common"
	"github.com/vreid/enigma/internal/pkg/token"
	bolt "go.etcd.io/bbolt"
)

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

func TestMintAndBalance(t *testing.T) {
	t.Parallel()

	databaseService := newTestDB(t)

	err := databaseService.DB.Update(func(tx *bolt.Tx) error {
		return token.Mint(tx, "mtk", "alice", 100)
	})
	require.NoError(t, err)

	assert.Equal(t, int64(100), balanceOf(t, databaseService, "mtk", "alice"))
	assert.Equal(t, int64(0), balanceOf(t, databaseService, "mtk", "bob"))
	assert.Equal(t, int64(0), balanceOf(t, databaseService, "other", "alice"))
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	t.Parallel()

	databaseService := newTestDB(t)

	err := databaseService.DB.Update(func(tx *bolt.Tx) error {
		err := token.Mint(tx, "mtk", "alice", 10)
		if err != nil {
			return err
		}

		return token.Approve(tx, "mtk", "alice", token.VaultAccount, 3)
	})
	require.NoError(t, err)

	err = databaseService.DB.Update(func(tx *bolt.Tx) error {
		return token.TransferFrom(tx, "mtk", "alice", token.VaultAccount, 2)
	})
	require.NoError(t, err)

	assert.Equal(t, int64(8), balanceOf(t, databaseService, "mtk", "alice"))
	assert.Equal(t, int64(2), balanceOf(t, databaseService, "mtk", token.VaultAccount))

	err = databaseService.DB.View(func(tx *bolt.Tx) error {
		assert.Equal(t, int64(1), token.Allowance(tx, "mtk", "alice", token.VaultAccount))

		return nil
	})
	require.NoError(t, err)
}

func TestTransferFromInsufficientAllowance(t *testing.T) {
	t.Parallel()

	databaseService := newTestDB(t)

	err := databaseService.DB.Update(func(tx *bolt.Tx) error {
		return token.Mint(tx, "mtk", "alice", 10)
	})
	require.NoError(t, err)

	err = databaseService.DB.Update(func(tx *bolt.Tx) error {
		return token.TransferFrom(tx, "mtk", "alice", token.VaultAccount, 1)
	})
	require.ErrorIs(t, err, token.ErrInsufficientAllowance)
	require.ErrorIs(t, err, common.ErrInsufficientFunds)

	assert.Equal(t, int64(10), balanceOf(t, databaseService, "mtk", "alice"))
	assert.Equal(t, int64(0), balanceOf(t, databaseService, "mtk", token.VaultAccount))
}

func TestTransferFromInsufficientBalance(t *testing.T) {
	t.Parallel()

	databaseService := newTestDB(t)

	err := databaseService.DB.Update(func(tx *bolt.Tx) error {
		err := token.Mint(tx, "mtk", "alice", 1)
		if err != nil {
			return err
		}

		return token.Approve(tx, "mtk", "alice", token.VaultAccount, 5)
	})
	require.NoError(t, err)

	err = databaseService.DB.Update(func(tx *bolt.Tx) error {
		return token.TransferFrom(tx, "mtk", "alice", token.VaultAccount, 5)
	})
	require.ErrorIs(t, err, token.ErrInsufficientBalance)

	assert.Equal(t, int64(1), balanceOf(t, databaseService, "mtk", "alice"))
	assert.Equal(t, int64(0), balanceOf(t, databaseService, "mtk", token.VaultAccount))
}

func TestTransferInsufficientBalance(t *testing.T) {
	t.Parallel()

	databaseService := newTestDB(t)

	err := databaseService.DB.Update(func(tx *bolt.Tx) error {
		return token.Transfer(tx, "mtk", token.VaultAccount, "alice", 1)
	})
	require.ErrorIs(t, err, token.ErrInsufficientBalance)

	assert.Equal(t, int64(0), balanceOf(t, databaseService, "mtk", "alice"))
}

func TestNegativeAmountsRejected(t *testing.T) {
	t.Parallel()

	databaseService := newTestDB(t)

	err := databaseService.DB.Update(func(tx *bolt.Tx) error {
		return token.Mint(tx, "mtk", "alice", -1)
	})
	require.ErrorIs(t, err, common.ErrInvalidArgument)

	err = databaseService.DB.Update(func(tx *bolt.Tx) error {
		return token.Transfer(tx, "mtk", "alice", "bob", -1)
	})
	require.ErrorIs(t, err, common.ErrInvalidArgument)
}
