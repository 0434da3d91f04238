package token

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
	"github.com/vreid/enigma/internal/pkg/common"
	"go.etcd.io/bbolt"
)

const (
	// VaultAccount holds entry fees, retry fees and prize pools in custody.
	VaultAccount = "vault"

	// NativeToken is the reserved token id for native-currency prizes,
	// tracked by the same ledger as every other token.
	NativeToken = "native"
)

var (
	ErrInsufficientBalance   = fmt.Errorf("%w: transfer amount exceeds balance", common.ErrInsufficientFunds)
	ErrInsufficientAllowance = fmt.Errorf("%w: transfer amount exceeds allowance", common.ErrInsufficientFunds)
)

func balanceKey(tokenID, account string) []byte {
	return []byte(fmt.Sprintf("%s|%s", tokenID, account))
}

func allowanceKey(tokenID, owner, spender string) []byte {
	return []byte(fmt.Sprintf("%s|%s|%s", tokenID, owner, spender))
}

func BalanceOf(tx *bbolt.Tx, tokenID, account string) int64 {
	balances := tx.Bucket([]byte(common.TokenBalancesBucket))

	return common.BytesToInt64(balances.Get(balanceKey(tokenID, account)), 0)
}

func Allowance(tx *bbolt.Tx, tokenID, owner, spender string) int64 {
	allowances := tx.Bucket([]byte(common.TokenAllowancesBucket))

	return common.BytesToInt64(allowances.Get(allowanceKey(tokenID, owner, spender)), 0)
}

func Mint(tx *bbolt.Tx, tokenID, account string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: mint amount cannot be negative", common.ErrInvalidArgument)
	}

	balances := tx.Bucket([]byte(common.TokenBalancesBucket))

	balance := common.BytesToInt64(balances.Get(balanceKey(tokenID, account)), 0)

	err := balances.Put(balanceKey(tokenID, account), common.Int64ToBytes(balance+amount))
	if err != nil {
		return fmt.Errorf("failed to put balance: %w", err)
	}

	return nil
}

func Approve(tx *bbolt.Tx, tokenID, owner, spender string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: allowance cannot be negative", common.ErrInvalidArgument)
	}

	allowances := tx.Bucket([]byte(common.TokenAllowancesBucket))

	err := allowances.Put(allowanceKey(tokenID, owner, spender), common.Int64ToBytes(amount))
	if err != nil {
		return fmt.Errorf("failed to put allowance: %w", err)
	}

	return nil
}

// Transfer moves tokens between two accounts, checking only the sender's
// balance. Used for prize pushes out of the vault.
func Transfer(tx *bbolt.Tx, tokenID, from, to string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: transfer amount cannot be negative", common.ErrInvalidArgument)
	}

	balances := tx.Bucket([]byte(common.TokenBalancesBucket))

	fromBalance := common.BytesToInt64(balances.Get(balanceKey(tokenID, from)), 0)
	if fromBalance < amount {
		return ErrInsufficientBalance
	}

	toBalance := common.BytesToInt64(balances.Get(balanceKey(tokenID, to)), 0)

	err := balances.Put(balanceKey(tokenID, from), common.Int64ToBytes(fromBalance-amount))
	if err != nil {
		return fmt.Errorf("failed to put sender balance: %w", err)
	}

	err = balances.Put(balanceKey(tokenID, to), common.Int64ToBytes(toBalance+amount))
	if err != nil {
		return fmt.Errorf("failed to put recipient balance: %w", err)
	}

	return nil
}

// TransferFrom moves tokens on behalf of the spender, consuming the
// owner's allowance. Used for fee pulls into the vault. It runs inside the
// caller's transaction, so a failed pull rolls back everything the caller
// did alongside it.
func TransferFrom(tx *bbolt.Tx, tokenID, from, spender string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: transfer amount cannot be negative", common.ErrInvalidArgument)
	}

	allowance := Allowance(tx, tokenID, from, spender)
	if allowance < amount {
		return ErrInsufficientAllowance
	}

	err := Transfer(tx, tokenID, from, spender, amount)
	if err != nil {
		return err
	}

	allowances := tx.Bucket([]byte(common.TokenAllowancesBucket))

	err = allowances.Put(allowanceKey(tokenID, from, spender), common.Int64ToBytes(allowance-amount))
	if err != nil {
		return fmt.Errorf("failed to put allowance: %w", err)
	}

	return nil
}

type TokenService struct {
	DatabaseService *common.DatabaseService
}

func NewTokenService(i do.Injector) (*TokenService, error) {
	databaseService := do.MustInvoke[*common.DatabaseService](i)

	result := &TokenService{
		DatabaseService: databaseService,
	}

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(func(e *echo.Echo) {
		apiGroup := e.Group("/api")

		tokenGroup := apiGroup.Group("/token")

		tokenGroup.POST("/approve", result.PostApprove)
		tokenGroup.GET("/balance", result.GetBalance)
	})

	echoService.RegisterOperator(func(g *echo.Group) {
		g.POST("/api/token/mint", result.PostMint)
	})

	return result, nil
}

func (s *TokenService) PostMint(c echo.Context) error {
	var request MintRequest

	err := c.Bind(&request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err = s.DatabaseService.DB.Update(func(tx *bbolt.Tx) error {
		return Mint(tx, request.Token, request.Account, request.Amount)
	})
	if err != nil {
		return common.HTTPError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *TokenService) PostApprove(c echo.Context) error {
	var request ApproveRequest

	err := c.Bind(&request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	spender := request.Spender
	if len(spender) == 0 {
		spender = VaultAccount
	}

	err = s.DatabaseService.DB.Update(func(tx *bbolt.Tx) error {
		return Approve(tx, request.Token, request.Owner, spender, request.Amount)
	})
	if err != nil {
		return common.HTTPError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *TokenService) GetBalance(c echo.Context) error {
	tokenID := c.QueryParam("token")
	account := c.QueryParam("account")

	var balance int64

	err := s.DatabaseService.DB.View(func(tx *bbolt.Tx) error {
		balance = BalanceOf(tx, tokenID, account)

		return nil
	})
	if err != nil {
		return common.HTTPError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, BalanceResponse{
		Token:   tokenID,
		Account: account,
		Balance: balance,
	})
}
