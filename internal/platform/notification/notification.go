// Package notification carries the advisory toast events produced by
// scheduling mutations: an in-memory feed, fan-out to delivery sinks and
// Echo HTTP handlers.
package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

// Severity is the visual weight of a toast.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// TopicToasts is the topic every event is published under unless set.
const TopicToasts = "toasts"

// Event is a single {title, description, severity} notification.
type Event struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Severity     Severity  `json:"severity"`
	Topic        string    `json:"topic"`
	ResourceType string    `json:"resource_type,omitempty"`
	ResourceID   string    `json:"resource_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// New builds an event on the toasts topic.
func New(sev Severity, title, description string) Event {
	return Event{
		ID:          uuid.New().String(),
		Title:       title,
		Description: description,
		Severity:    sev,
		Topic:       TopicToasts,
		Timestamp:   time.Now().UTC(),
	}
}

// For tags the event with the resource it describes.
func (e Event) For(resourceType, resourceID string) Event {
	e.ResourceType = resourceType
	e.ResourceID = resourceID
	return e
}

// ---------------------------------------------------------------------------
// Sinks
// ---------------------------------------------------------------------------

// Sink delivers events to one outbound channel (websocket, queue, ...).
type Sink interface {
	Name() string
	Deliver(ctx context.Context, e Event) error
}

// MockSink is a test double that records delivered events.
type MockSink struct {
	mu         sync.Mutex
	events     []Event
	ShouldFail bool
}

func (m *MockSink) Name() string { return "mock" }

// Deliver records the event and optionally fails.
func (m *MockSink) Deliver(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	if m.ShouldFail {
		return errors.New("mock sink failure")
	}
	return nil
}

// Events returns a copy of the recorded events.
func (m *MockSink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// ---------------------------------------------------------------------------
// Feed
// ---------------------------------------------------------------------------

// Feed keeps the most recent events in memory, newest last.
type Feed struct {
	mu     sync.RWMutex
	events []Event
	max    int
}

// NewFeed creates a feed that retains up to max events.
func NewFeed(max int) *Feed {
	if max <= 0 {
		max = 200
	}
	return &Feed{max: max}
}

// Append stores events, evicting the oldest beyond capacity.
func (f *Feed) Append(events ...Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, events...)
	if over := len(f.events) - f.max; over > 0 {
		f.events = append([]Event(nil), f.events[over:]...)
	}
}

// Recent returns up to limit events, newest first.
func (f *Feed) Recent(limit int) []Event {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if limit <= 0 || limit > len(f.events) {
		limit = len(f.events)
	}
	out := make([]Event, 0, limit)
	for i := len(f.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.events[i])
	}
	return out
}

// Stats counts retained events by severity.
func (f *Feed) Stats() map[Severity]int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make(map[Severity]int)
	for _, e := range f.events {
		stats[e.Severity]++
	}
	return stats
}

// ---------------------------------------------------------------------------
// Dispatcher
// ---------------------------------------------------------------------------

// Dispatcher records events in the feed and hands them to sinks from a
// background worker. Publish never blocks and never fails: when the queue is
// full the event is dropped and logged.
type Dispatcher struct {
	logger zerolog.Logger
	feed   *Feed
	sinks  []Sink
	queue  chan Event
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher with a queue of the given size.
func NewDispatcher(logger zerolog.Logger, feed *Feed, queueSize int, sinks ...Sink) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Dispatcher{
		logger: logger,
		feed:   feed,
		sinks:  sinks,
		queue:  make(chan Event, queueSize),
	}
}

// AddSink registers another sink. Call before Start.
func (d *Dispatcher) AddSink(s Sink) {
	d.sinks = append(d.sinks, s)
}

// Feed returns the dispatcher's in-memory feed.
func (d *Dispatcher) Feed() *Feed { return d.feed }

// Publish records and enqueues events.
func (d *Dispatcher) Publish(events ...Event) {
	if len(events) == 0 {
		return
	}
	if d.feed != nil {
		d.feed.Append(events...)
	}
	for _, e := range events {
		select {
		case d.queue <- e:
		default:
			d.logger.Warn().Str("event_id", e.ID).Str("title", e.Title).Msg("notification queue full, dropping event")
		}
	}
}

// Start runs the delivery worker until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case e := <-d.queue:
				d.deliver(ctx, e)
			}
		}
	}()
}

// Wait blocks until the worker started by Start has returned.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) deliver(ctx context.Context, e Event) {
	for _, s := range d.sinks {
		sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := s.Deliver(sctx, e)
		cancel()
		if err != nil {
			d.logger.Error().Err(err).
				Str("sink", s.Name()).
				Str("event_id", e.ID).
				Msg("notification delivery failed")
		}
	}
}

// ---------------------------------------------------------------------------
// HTTP Handler
// ---------------------------------------------------------------------------

// Handler exposes the event feed over HTTP.
type Handler struct {
	feed *Feed
}

// NewHandler creates a Handler over feed.
func NewHandler(feed *Feed) *Handler {
	return &Handler{feed: feed}
}

// RegisterRoutes registers the feed routes on the given group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/notifications", h.HandleList)
	g.GET("/notifications/stats", h.HandleStats)
}

// HandleList handles GET /notifications?limit=N.
func (h *Handler) HandleList(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
		}
		limit = n
	}
	return c.JSON(http.StatusOK, h.feed.Recent(limit))
}

// HandleStats handles GET /notifications/stats.
func (h *Handler) HandleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.feed.Stats())
}
