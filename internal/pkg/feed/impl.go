package feed

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
	"github.com/vreid/enigma/internal/pkg/common"
	"github.com/vreid/enigma/internal/pkg/event"
	"go.etcd.io/bbolt"
)

const DefaultLimit = 50

type StoredEvent struct {
	ID string `json:"id"`

	event.Event
}

type FeedService struct {
	DatabaseService *common.DatabaseService

	EventSource <-chan event.Event
}

func NewFeedService(i do.Injector) (*FeedService, error) {
	databaseService := do.MustInvoke[*common.DatabaseService](i)
	eventSource := do.MustInvokeNamed[<-chan event.Event](i, "event-source")

	result := &FeedService{
		DatabaseService: databaseService,

		EventSource: eventSource,
	}

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(func(e *echo.Echo) {
		apiGroup := e.Group("/api")

		apiGroup.GET("/events", result.GetEvents)
	})

	return result, nil
}

func (s *FeedService) Start() {
	go s.processEvents()
}

func (s *FeedService) HandleEvent(e event.Event) {
	_id, err := uuid.NewV7()
	if err != nil {
		return
	}

	stored := StoredEvent{
		ID:    _id.String(),
		Event: e,
	}

	raw, err := json.Marshal(stored)
	if err != nil {
		return
	}

	_ = s.DatabaseService.DB.Update(func(tx *bbolt.Tx) error {
		events := tx.Bucket([]byte(common.FeedEventsBucket))

		seq, err := events.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get next sequence: %w", err)
		}

		err = events.Put(common.Uint64ToKey(seq), raw)
		if err != nil {
			return fmt.Errorf("failed to put event: %w", err)
		}

		return nil
	})
}

// Recent returns the newest events first, up to limit.
func (s *FeedService) Recent(limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	result := make([]StoredEvent, 0, limit)

	err := s.DatabaseService.DB.View(func(tx *bbolt.Tx) error {
		events := tx.Bucket([]byte(common.FeedEventsBucket))

		c := events.Cursor()
		for k, v := c.Last(); k != nil && len(result) < limit; k, v = c.Prev() {
			var stored StoredEvent

			err := json.Unmarshal(v, &stored)
			if err != nil {
				return fmt.Errorf("failed to unmarshal event: %w", err)
			}

			result = append(result, stored)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *FeedService) GetEvents(c echo.Context) error {
	limit := DefaultLimit

	if raw := c.QueryParam("limit"); len(raw) > 0 {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}

		limit = parsed
	}

	events, err := s.Recent(limit)
	if err != nil {
		return common.HTTPError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, events)
}

func (s *FeedService) processEvents() {
	for e := range s.EventSource {
		s.HandleEvent(e)
	}
}
