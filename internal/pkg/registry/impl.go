package registry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
	"github.com/vreid/enigma/internal/pkg/common"
	"github.com/vreid/enigma/internal/pkg/event"
	"go.etcd.io/bbolt"
)

const activeKey = "active"

func riddleKey(riddleID int64) []byte {
	return []byte(strconv.FormatInt(riddleID, 10))
}

// GetRiddle loads a configured riddle within the caller's transaction.
func GetRiddle(tx *bbolt.Tx, riddleID int64) (*Riddle, error) {
	riddles := tx.Bucket([]byte(common.RegistryRiddlesBucket))

	raw := riddles.Get(riddleKey(riddleID))
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: riddle %d", common.ErrNotFound, riddleID)
	}

	var riddle Riddle

	err := json.Unmarshal(raw, &riddle)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal riddle: %w", err)
	}

	return &riddle, nil
}

func PutRiddle(tx *bbolt.Tx, riddle *Riddle) error {
	raw, err := json.Marshal(riddle)
	if err != nil {
		return fmt.Errorf("failed to marshal riddle: %w", err)
	}

	riddles := tx.Bucket([]byte(common.RegistryRiddlesBucket))

	err = riddles.Put(riddleKey(riddle.RiddleID), raw)
	if err != nil {
		return fmt.Errorf("failed to put riddle: %w", err)
	}

	return nil
}

// ActiveRiddleID returns the riddle currently open for entry and guessing,
// or zero when none has been configured yet.
func ActiveRiddleID(tx *bbolt.Tx) int64 {
	active := tx.Bucket([]byte(common.RegistryActiveBucket))

	return common.BytesToInt64(active.Get([]byte(activeKey)), 0)
}

// RequireActive loads a riddle after checking it is the active one.
func RequireActive(tx *bbolt.Tx, riddleID int64) (*Riddle, error) {
	if riddleID == 0 {
		return nil, fmt.Errorf("%w: riddle id cannot be zero", common.ErrInvalidArgument)
	}

	if riddleID != ActiveRiddleID(tx) {
		return nil, fmt.Errorf("%w: not the active riddle id", common.ErrInvalidArgument)
	}

	return GetRiddle(tx, riddleID)
}

type RegistryService struct {
	DatabaseService *common.DatabaseService

	EventSink chan<- event.Event
}

func NewRegistryService(i do.Injector) (*RegistryService, error) {
	databaseService := do.MustInvoke[*common.DatabaseService](i)
	eventSink := do.MustInvokeNamed[chan<- event.Event](i, "event-sink")

	result := &RegistryService{
		DatabaseService: databaseService,

		EventSink: eventSink,
	}

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(func(e *echo.Echo) {
		apiGroup := e.Group("/api")

		riddleGroup := apiGroup.Group("/riddle")

		riddleGroup.GET("/:id", result.GetRiddle)
		riddleGroup.GET("/:id/paid-out", result.GetPaidOut)
	})

	echoService.RegisterOperator(func(g *echo.Group) {
		g.POST("/api/riddle", result.PostRiddle)
	})

	return result, nil
}

// SetRiddle configures a riddle and makes it the active one. The record and
// the active pointer are written in one transaction so no partial riddle is
// ever observable.
func (s *RegistryService) SetRiddle(request SetRiddleRequest) (*Riddle, error) {
	if request.RiddleID == 0 {
		return nil, fmt.Errorf("%w: riddle id cannot be zero", common.ErrInvalidArgument)
	}

	if len(request.AnswerHash) == 0 {
		return nil, fmt.Errorf("%w: answer hash cannot be zero", common.ErrInvalidArgument)
	}

	if request.PrizeType != PrizeNative && request.PrizeType != PrizeToken {
		return nil, fmt.Errorf("%w: unknown prize type %q", common.ErrInvalidArgument, request.PrizeType)
	}

	if request.PrizeType == PrizeToken && len(request.PrizeToken) == 0 {
		return nil, fmt.Errorf("%w: prize token required for token prizes", common.ErrInvalidArgument)
	}

	if request.PrizePool < 0 {
		return nil, fmt.Errorf("%w: prize pool cannot be negative", common.ErrInvalidArgument)
	}

	if len(request.EntryFeeToken) == 0 {
		return nil, fmt.Errorf("%w: entry fee token required", common.ErrInvalidArgument)
	}

	riddle := &Riddle{
		RiddleID: request.RiddleID,

		AnswerHash: request.AnswerHash,

		PrizeType:  request.PrizeType,
		PrizeToken: request.PrizeToken,
		PrizePool:  request.PrizePool,

		EntryFeeToken: request.EntryFeeToken,

		PaidOut: false,
	}

	err := s.DatabaseService.DB.Update(func(tx *bbolt.Tx) error {
		err := PutRiddle(tx, riddle)
		if err != nil {
			return err
		}

		active := tx.Bucket([]byte(common.RegistryActiveBucket))

		err = active.Put([]byte(activeKey), common.Int64ToBytes(riddle.RiddleID))
		if err != nil {
			return fmt.Errorf("failed to put active riddle: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.EventSink != nil {
		s.EventSink <- event.Event{
			Name:      event.RiddleConfigured,
			RiddleID:  riddle.RiddleID,
			Token:     riddle.EntryFeeToken,
			GuessHash: riddle.AnswerHash,
			Amount:    riddle.PrizePool,
			Timestamp: time.Now().Unix(),
		}
	}

	return riddle, nil
}

func (s *RegistryService) Riddle(riddleID int64) (*Riddle, error) {
	var riddle *Riddle

	err := s.DatabaseService.DB.View(func(tx *bbolt.Tx) error {
		var err error

		riddle, err = GetRiddle(tx, riddleID)

		return err
	})
	if err != nil {
		return nil, err
	}

	return riddle, nil
}

func (s *RegistryService) PostRiddle(c echo.Context) error {
	var request SetRiddleRequest

	err := c.Bind(&request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	riddle, err := s.SetRiddle(request)
	if err != nil {
		return common.HTTPError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, riddle)
}

func (s *RegistryService) GetRiddle(c echo.Context) error {
	riddleID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid riddle id")
	}

	riddle, err := s.Riddle(riddleID)
	if err != nil {
		return common.HTTPError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, riddle)
}

func (s *RegistryService) GetPaidOut(c echo.Context) error {
	riddleID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid riddle id")
	}

	riddle, err := s.Riddle(riddleID)
	if err != nil {
		return common.HTTPError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, PaidOutResponse{
		RiddleID: riddle.RiddleID,
		PaidOut:  riddle.PaidOut,
	})
}
