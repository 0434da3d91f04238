package payout

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
	"github.com/vreid/enigma/internal/pkg/common"
	"github.com/vreid/enigma/internal/pkg/event"
	"github.com/vreid/enigma/internal/pkg/guess"
	"github.com/vreid/enigma/internal/pkg/registry"
	"github.com/vreid/enigma/internal/pkg/token"
	"go.etcd.io/bbolt"
)

type PayoutService struct {
	DatabaseService *common.DatabaseService

	EventSink chan<- event.Event
}

func NewPayoutService(i do.Injector) (*PayoutService, error) {
	databaseService := do.MustInvoke[*common.DatabaseService](i)
	eventSink := do.MustInvokeNamed[chan<- event.Event](i, "event-sink")

	result := &PayoutService{
		DatabaseService: databaseService,

		EventSink: eventSink,
	}

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.RegisterOperator(func(g *echo.Group) {
		g.POST("/api/payout/:id", result.PostPayout)
	})

	return result, nil
}

// Payout splits the prize pool evenly among the riddle's winners. The
// integer-division remainder stays in the vault. All transfers, the pool
// zeroing and the paid-out flag commit in one transaction, so a riddle can
// never be paid twice or half-paid.
func (s *PayoutService) Payout(riddleID int64) (*Result, error) {
	var result *Result

	err := s.DatabaseService.DB.Update(func(tx *bbolt.Tx) error {
		riddle, err := registry.GetRiddle(tx, riddleID)
		if err != nil {
			return err
		}

		if riddle.PaidOut {
			return fmt.Errorf("%w: riddle already paid out", common.ErrAlreadyProcessed)
		}

		winners := guess.Winners(tx, riddleID)
		if len(winners) == 0 {
			return fmt.Errorf("%w: no winners recorded for riddle %d", common.ErrInvalidArgument, riddleID)
		}

		prizeToken := riddle.PrizeToken
		if riddle.PrizeType == registry.PrizeNative {
			prizeToken = token.NativeToken
		}

		winnerCount := int64(len(winners))
		share := riddle.PrizePool / winnerCount

		for _, winner := range winners {
			err = token.Transfer(tx, prizeToken, token.VaultAccount, winner, share)
			if err != nil {
				return err
			}
		}

		riddle.PrizePool = 0
		riddle.PaidOut = true

		err = registry.PutRiddle(tx, riddle)
		if err != nil {
			return err
		}

		result = &Result{
			RiddleID:         riddleID,
			Share:            share,
			TotalDistributed: share * winnerCount,
			WinnerCount:      winnerCount,
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.EventSink != nil {
		s.EventSink <- event.Event{
			Name:             event.RiddlePayout,
			RiddleID:         riddleID,
			TotalDistributed: result.TotalDistributed,
			WinnerCount:      result.WinnerCount,
			Timestamp:        time.Now().Unix(),
		}
	}

	return result, nil
}

func (s *PayoutService) PostPayout(c echo.Context) error {
	riddleID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid riddle id")
	}

	result, err := s.Payout(riddleID)
	if err != nil {
		return common.HTTPError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, result)
}
