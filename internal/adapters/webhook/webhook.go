// Package webhook emits pipeline events to an external listener.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/scorepipe/internal/domain/model"
	"github.com/okian/scorepipe/internal/domain/types"
	"github.com/okian/scorepipe/pkg/logger"
	"github.com/okian/scorepipe/pkg/metrics"
)

// EventGoalsAchieved is sent once per goal evaluation that achieved at least
// one goal.
const EventGoalsAchieved = "goals-achieved/v1"

const defaultTimeout = 5 * time.Second

// GoalsAchievedContent is the payload of EventGoalsAchieved.
type GoalsAchievedContent struct {
	UserID string                 `json:"userID"`
	Game   types.Game             `json:"game"`
	Goals  []model.GoalImportInfo `json:"goals"`
}

// Event is one webhook delivery.
type Event struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Time    time.Time `json:"time"`
	Content any       `json:"content"`
}

// NewEvent builds an event with a fresh ID.
func NewEvent(eventType string, content any) Event {
	return Event{ID: uuid.NewString(), Type: eventType, Time: time.Now().UTC(), Content: content}
}

// Emitter delivers events.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
}

// HTTPEmitter POSTs events as JSON.
type HTTPEmitter struct {
	url     string
	client  *http.Client
	timeout time.Duration
	logger  logger.Logger
}

// NewHTTPEmitter creates an emitter that posts to url.
func NewHTTPEmitter(url string, opts ...Option) *HTTPEmitter {
	e := &HTTPEmitter{
		url:     url,
		client:  http.DefaultClient,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.Get().Named("webhook")
	}
	return e
}

// Emit implements Emitter. Non-2xx responses are errors.
func (e *HTTPEmitter) Emit(ctx context.Context, ev Event) error { //nolint:gocritic // hugeParam
	body, err := json.Marshal(ev)
	if err != nil {
		metrics.RecordWebhookEvent("encode_error")
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		metrics.RecordWebhookEvent("request_error")
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", ev.Type)

	resp, err := e.client.Do(req)
	if err != nil {
		metrics.RecordWebhookEvent("transport_error")
		e.logger.Warn(ctx, "webhook delivery failed", logger.String("eventID", ev.ID), logger.Error(err))
		return fmt.Errorf("deliver %s: %w", ev.Type, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RecordWebhookEvent("rejected")
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}
	metrics.RecordWebhookEvent("delivered")
	return nil
}

// Discard drops every event. Used when no webhook URL is configured.
type Discard struct{}

// Emit implements Emitter.
func (Discard) Emit(context.Context, Event) error {
	metrics.RecordWebhookEvent("discarded")
	return nil
}

// Recorder keeps every emitted event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Emitter.
func (r *Recorder) Emit(_ context.Context, ev Event) error { //nolint:gocritic // hugeParam
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
