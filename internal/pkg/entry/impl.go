package entry

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
	"github.com/vreid/enigma/internal/pkg/common"
	"github.com/vreid/enigma/internal/pkg/event"
	"github.com/vreid/enigma/internal/pkg/registry"
	"github.com/vreid/enigma/internal/pkg/token"
	"go.etcd.io/bbolt"
)

func entryKey(riddleID int64, player string) []byte {
	return []byte(fmt.Sprintf("%d|%s", riddleID, player))
}

// HasEntered reports whether the player's entry fee has been collected for
// the riddle. Entries are set once and never unset.
func HasEntered(tx *bbolt.Tx, riddleID int64, player string) bool {
	entries := tx.Bucket([]byte(common.EntryPlayersBucket))

	return len(entries.Get(entryKey(riddleID, player))) > 0
}

type EntryService struct {
	DatabaseService *common.DatabaseService

	EventSink chan<- event.Event

	EntryFee int64
}

func NewEntryService(i do.Injector) (*EntryService, error) {
	databaseService := do.MustInvoke[*common.DatabaseService](i)
	eventSink := do.MustInvokeNamed[chan<- event.Event](i, "event-sink")

	entryFee := do.MustInvokeNamed[int64](i, "entry-fee")

	result := &EntryService{
		DatabaseService: databaseService,

		EventSink: eventSink,

		EntryFee: entryFee,
	}

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(func(e *echo.Echo) {
		apiGroup := e.Group("/api")

		gameGroup := apiGroup.Group("/game")

		gameGroup.POST("/enter", result.PostEnter)
		gameGroup.GET("/entered", result.GetEntered)
	})

	return result, nil
}

// Enter collects the entry fee and records the entry in one transaction.
// Either the fee lands in the vault and the flag is set, or neither happens.
func (s *EntryService) Enter(player string, riddleID int64) error {
	if len(player) == 0 {
		return fmt.Errorf("%w: player cannot be empty", common.ErrInvalidArgument)
	}

	var events []event.Event

	err := s.DatabaseService.DB.Update(func(tx *bbolt.Tx) error {
		riddle, err := registry.RequireActive(tx, riddleID)
		if err != nil {
			return err
		}

		if riddle.PaidOut {
			return fmt.Errorf("%w: riddle already paid out", common.ErrAlreadyProcessed)
		}

		if HasEntered(tx, riddleID, player) {
			return fmt.Errorf("%w: player already entered this riddle", common.ErrAlreadyProcessed)
		}

		err = token.TransferFrom(tx, riddle.EntryFeeToken, player, token.VaultAccount, s.EntryFee)
		if err != nil {
			return err
		}

		entries := tx.Bucket([]byte(common.EntryPlayersBucket))

		err = entries.Put(entryKey(riddleID, player), []byte{1})
		if err != nil {
			return fmt.Errorf("failed to put entry: %w", err)
		}

		timestamp := time.Now().Unix()

		events = append(events,
			event.Event{
				Name:      event.PlayerEntered,
				RiddleID:  riddleID,
				Player:    player,
				Timestamp: timestamp,
			},
			event.Event{
				Name:      event.EntryFeeCollected,
				RiddleID:  riddleID,
				Player:    player,
				Token:     riddle.EntryFeeToken,
				Amount:    s.EntryFee,
				Timestamp: timestamp,
			})

		return nil
	})
	if err != nil {
		return err
	}

	if s.EventSink != nil {
		for _, e := range events {
			s.EventSink <- e
		}
	}

	return nil
}

func (s *EntryService) PostEnter(c echo.Context) error {
	var request EnterRequest

	err := c.Bind(&request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err = s.Enter(request.Player, request.RiddleID)
	if err != nil {
		return common.HTTPError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *EntryService) GetEntered(c echo.Context) error {
	riddleID, err := strconv.ParseInt(c.QueryParam("riddle_id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid riddle id")
	}

	player := c.QueryParam("player")

	var entered bool

	err = s.DatabaseService.DB.View(func(tx *bbolt.Tx) error {
		entered = HasEntered(tx, riddleID, player)

		return nil
	})
	if err != nil {
		return common.HTTPError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, EnteredResponse{
		RiddleID: riddleID,
		Player:   player,
		Entered:  entered,
	})
}
