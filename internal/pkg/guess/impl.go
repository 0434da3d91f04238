package guess

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
	"github.com/vreid/enigma/internal/pkg/common"
	"github.com/vreid/enigma/internal/pkg/entry"
	"github.com/vreid/enigma/internal/pkg/event"
	"github.com/vreid/enigma/internal/pkg/registry"
	"github.com/vreid/enigma/internal/pkg/token"
	"go.etcd.io/bbolt"
)

// HashGuess computes the canonical digest of a plaintext answer. The same
// digest is used for answer hashes, committed guesses and reveals.
func HashGuess(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))

	return hex.EncodeToString(sum[:])
}

func stateKey(riddleID int64, player string) []byte {
	return []byte(fmt.Sprintf("%d|%s", riddleID, player))
}

func getState(tx *bbolt.Tx, riddleID int64, player string) (*State, error) {
	states := tx.Bucket([]byte(common.GuessStatesBucket))

	raw := states.Get(stateKey(riddleID, player))
	if len(raw) == 0 {
		return &State{}, nil
	}

	var state State

	err := json.Unmarshal(raw, &state)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal guess state: %w", err)
	}

	return &state, nil
}

func putState(tx *bbolt.Tx, riddleID int64, player string, state *State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal guess state: %w", err)
	}

	states := tx.Bucket([]byte(common.GuessStatesBucket))

	err = states.Put(stateKey(riddleID, player), raw)
	if err != nil {
		return fmt.Errorf("failed to put guess state: %w", err)
	}

	return nil
}

// Retries returns a player's remaining retry budget. Absent players get the
// configured maximum, so the budget only materializes once it changes.
func Retries(tx *bbolt.Tx, player string, maxRetries int64) int64 {
	retries := tx.Bucket([]byte(common.GuessRetriesBucket))

	return common.BytesToInt64(retries.Get([]byte(player)), maxRetries)
}

func putRetries(tx *bbolt.Tx, player string, remaining int64) error {
	retries := tx.Bucket([]byte(common.GuessRetriesBucket))

	err := retries.Put([]byte(player), common.Int64ToBytes(remaining))
	if err != nil {
		return fmt.Errorf("failed to put retries: %w", err)
	}

	return nil
}

func IsWinner(tx *bbolt.Tx, riddleID int64, player string) bool {
	winners := tx.Bucket([]byte(common.GuessWinnersBucket))

	return len(winners.Get(stateKey(riddleID, player))) > 0
}

// Winners lists every winner of a riddle, byte-ordered by player.
func Winners(tx *bbolt.Tx, riddleID int64) []string {
	winners := tx.Bucket([]byte(common.GuessWinnersBucket))

	prefix := []byte(fmt.Sprintf("%d|", riddleID))

	var result []string

	c := winners.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		result = append(result, strings.TrimPrefix(string(k), string(prefix)))
	}

	return result
}

// markWinner is the single path to winner status, shared by immediate-hash
// submits and reveals so both keep identical bookkeeping.
func markWinner(tx *bbolt.Tx, riddleID int64, player string, state *State) error {
	state.IsWinner = true

	winners := tx.Bucket([]byte(common.GuessWinnersBucket))

	err := winners.Put(stateKey(riddleID, player), []byte{1})
	if err != nil {
		return fmt.Errorf("failed to put winner: %w", err)
	}

	return nil
}

type GuessService struct {
	DatabaseService *common.DatabaseService

	EventSink chan<- event.Event

	RetryCost          int64
	MaxRetries         int64
	RevealDelayMinutes int64

	// Now overrides the clock used for the commit-reveal delay.
	Now func() int64
}

func NewGuessService(i do.Injector) (*GuessService, error) {
	databaseService := do.MustInvoke[*common.DatabaseService](i)
	eventSink := do.MustInvokeNamed[chan<- event.Event](i, "event-sink")

	retryCost := do.MustInvokeNamed[int64](i, "retry-cost")
	maxRetries := do.MustInvokeNamed[int64](i, "max-retries")
	revealDelayMinutes := do.MustInvokeNamed[int64](i, "reveal-delay-minutes")

	result := &GuessService{
		DatabaseService: databaseService,

		EventSink: eventSink,

		RetryCost:          retryCost,
		MaxRetries:         maxRetries,
		RevealDelayMinutes: revealDelayMinutes,
	}

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(func(e *echo.Echo) {
		apiGroup := e.Group("/api")

		guessGroup := apiGroup.Group("/guess")

		guessGroup.POST("/submit", result.PostSubmit)
		guessGroup.POST("/reveal", result.PostReveal)
		guessGroup.POST("/retry", result.PostRetry)
		guessGroup.GET("/state", result.GetState)
		guessGroup.GET("/retries", result.GetRetries)
	})

	return result, nil
}

func (s *GuessService) now() int64 {
	if s.Now != nil {
		return s.Now()
	}

	return time.Now().Unix()
}

func (s *GuessService) emit(events []event.Event) {
	if s.EventSink == nil {
		return
	}

	for _, e := range events {
		s.EventSink <- e
	}
}

func (s *GuessService) requireParticipant(tx *bbolt.Tx, riddleID int64, player string) (*registry.Riddle, error) {
	riddle, err := registry.RequireActive(tx, riddleID)
	if err != nil {
		return nil, err
	}

	if riddle.PaidOut {
		return nil, fmt.Errorf("%w: riddle already paid out", common.ErrAlreadyProcessed)
	}

	if !entry.HasEntered(tx, riddleID, player) {
		return nil, common.ErrNotParticipated
	}

	return riddle, nil
}

// Submit evaluates a guess hash. A hash equal to the riddle's answer hash
// wins immediately without consuming a retry; any other hash becomes the
// pending commit, consuming one retry when it replaces a previous guess.
//
//nolint:cyclop,funlen
func (s *GuessService) Submit(player string, riddleID int64, guessHash string) (*State, error) {
	if len(player) == 0 {
		return nil, fmt.Errorf("%w: player cannot be empty", common.ErrInvalidArgument)
	}

	var (
		state  *State
		events []event.Event
	)

	err := s.DatabaseService.DB.Update(func(tx *bbolt.Tx) error {
		riddle, err := s.requireParticipant(tx, riddleID, player)
		if err != nil {
			return err
		}

		if len(guessHash) == 0 {
			return fmt.Errorf("%w: guess hash cannot be zero", common.ErrInvalidArgument)
		}

		state, err = getState(tx, riddleID, player)
		if err != nil {
			return err
		}

		if state.IsWinner {
			return fmt.Errorf("%w: player already solved this riddle", common.ErrAlreadyProcessed)
		}

		timestamp := s.now()
		correct := guessHash == riddle.AnswerHash

		if !correct && len(state.CommittedGuessHash) > 0 {
			remaining := Retries(tx, player, s.MaxRetries)
			if remaining == 0 {
				return common.ErrNoRetriesAvailable
			}

			err = putRetries(tx, player, remaining-1)
			if err != nil {
				return err
			}
		}

		state.CommittedGuessHash = guessHash
		state.CommittedAt = timestamp
		state.HasRevealed = false
		state.RevealedGuessHash = ""

		events = append(events, event.Event{
			Name:      event.GuessSubmitted,
			RiddleID:  riddleID,
			Player:    player,
			GuessHash: guessHash,
			Timestamp: timestamp,
		})

		if correct {
			err = markWinner(tx, riddleID, player, state)
			if err != nil {
				return err
			}

			events = append(events,
				event.Event{
					Name:      event.GuessEvaluated,
					RiddleID:  riddleID,
					Player:    player,
					Correct:   &correct,
					Timestamp: timestamp,
				},
				event.Event{
					Name:      event.WinnerFound,
					RiddleID:  riddleID,
					Player:    player,
					Timestamp: timestamp,
				})
		}

		return putState(tx, riddleID, player, state)
	})
	if err != nil {
		return nil, err
	}

	s.emit(events)

	return state, nil
}

// Reveal discloses the plaintext behind the pending commit. The digest must
// match the committed hash; whether it also matches the answer decides the
// outcome. An incorrect reveal leaves the retry budget untouched, the cost
// falls due on the next Submit.
//
//nolint:cyclop,funlen
func (s *GuessService) Reveal(player string, riddleID int64, plaintext string) (*State, error) {
	if len(player) == 0 {
		return nil, fmt.Errorf("%w: player cannot be empty", common.ErrInvalidArgument)
	}

	var (
		state  *State
		events []event.Event
	)

	err := s.DatabaseService.DB.Update(func(tx *bbolt.Tx) error {
		riddle, err := s.requireParticipant(tx, riddleID, player)
		if err != nil {
			return err
		}

		state, err = getState(tx, riddleID, player)
		if err != nil {
			return err
		}

		if state.IsWinner {
			return fmt.Errorf("%w: player already solved this riddle", common.ErrAlreadyProcessed)
		}

		if len(state.CommittedGuessHash) == 0 {
			return fmt.Errorf("%w: no guess committed", common.ErrInvalidArgument)
		}

		if state.HasRevealed {
			return fmt.Errorf("%w: guess already revealed", common.ErrAlreadyProcessed)
		}

		timestamp := s.now()

		revealAt := state.CommittedAt + s.RevealDelayMinutes*60
		if timestamp < revealAt {
			return fmt.Errorf("%w: reveal window not open yet", common.ErrInvalidArgument)
		}

		digest := HashGuess(plaintext)
		if digest != state.CommittedGuessHash {
			return common.ErrRevealMismatch
		}

		state.HasRevealed = true
		state.RevealedGuessHash = digest

		correct := digest == riddle.AnswerHash

		if correct {
			err = markWinner(tx, riddleID, player, state)
			if err != nil {
				return err
			}
		}

		events = append(events, event.Event{
			Name:      event.GuessEvaluated,
			RiddleID:  riddleID,
			Player:    player,
			Correct:   &correct,
			Timestamp: timestamp,
		})

		if correct {
			events = append(events, event.Event{
				Name:      event.WinnerFound,
				RiddleID:  riddleID,
				Player:    player,
				Timestamp: timestamp,
			})
		}

		return putState(tx, riddleID, player, state)
	})
	if err != nil {
		return nil, err
	}

	s.emit(events)

	return state, nil
}

// PurchaseRetry pulls the retry cost into the vault and grants one retry.
// There is no cap on purchases.
func (s *GuessService) PurchaseRetry(player string, riddleID int64) (int64, error) {
	if len(player) == 0 {
		return 0, fmt.Errorf("%w: player cannot be empty", common.ErrInvalidArgument)
	}

	var remaining int64

	err := s.DatabaseService.DB.Update(func(tx *bbolt.Tx) error {
		riddle, err := s.requireParticipant(tx, riddleID, player)
		if err != nil {
			return err
		}

		err = token.TransferFrom(tx, riddle.EntryFeeToken, player, token.VaultAccount, s.RetryCost)
		if err != nil {
			return err
		}

		remaining = Retries(tx, player, s.MaxRetries) + 1

		return putRetries(tx, player, remaining)
	})
	if err != nil {
		return 0, err
	}

	return remaining, nil
}

func (s *GuessService) PostSubmit(c echo.Context) error {
	var request SubmitRequest

	err := c.Bind(&request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	state, err := s.Submit(request.Player, request.RiddleID, request.GuessHash)
	if err != nil {
		return common.HTTPError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, SubmitResponse{
		RiddleID: request.RiddleID,
		IsWinner: state.IsWinner,
	})
}

func (s *GuessService) PostReveal(c echo.Context) error {
	var request RevealRequest

	err := c.Bind(&request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	state, err := s.Reveal(request.Player, request.RiddleID, request.Answer)
	if err != nil {
		return common.HTTPError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, RevealResponse{
		RiddleID:          request.RiddleID,
		RevealedGuessHash: state.RevealedGuessHash,
		IsWinner:          state.IsWinner,
	})
}

func (s *GuessService) PostRetry(c echo.Context) error {
	var request PurchaseRetryRequest

	err := c.Bind(&request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	remaining, err := s.PurchaseRetry(request.Player, request.RiddleID)
	if err != nil {
		return common.HTTPError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, RetriesResponse{
		Player:  request.Player,
		Retries: remaining,
	})
}

func (s *GuessService) GetState(c echo.Context) error {
	riddleID, err := strconv.ParseInt(c.QueryParam("riddle_id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid riddle id")
	}

	player := c.QueryParam("player")

	var state *State

	err = s.DatabaseService.DB.View(func(tx *bbolt.Tx) error {
		var err error

		state, err = getState(tx, riddleID, player)

		return err
	})
	if err != nil {
		return common.HTTPError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, StateResponse{
		RiddleID: riddleID,
		Player:   player,
		State:    *state,
	})
}

func (s *GuessService) GetRetries(c echo.Context) error {
	player := c.QueryParam("player")

	var remaining int64

	err := s.DatabaseService.DB.View(func(tx *bbolt.Tx) error {
		remaining = Retries(tx, player, s.MaxRetries)

		return nil
	})
	if err != nil {
		return common.HTTPError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, RetriesResponse{
		Player:  player,
		Retries: remaining,
	})
}
