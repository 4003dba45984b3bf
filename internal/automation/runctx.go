package automation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nexconsult/sri-invoices/internal/logger"
	"github.com/sirupsen/logrus"
)

// Event is one entry of a run's interaction history.
type Event struct {
	At      time.Time `json:"at"`
	Kind    string    `json:"kind"`
	Attempt int       `json:"attempt,omitempty"`
	Profile string    `json:"profile,omitempty"`
	Detail  string    `json:"detail,omitempty"`
}

// RunContext carries everything scoped to one run: its id, the taxpayer,
// a logger tagged with both and the interaction history. It is passed
// explicitly through the login machine and the retry engine.
type RunContext struct {
	ID        string
	RUC       string
	Logger    *logrus.Entry
	StartedAt time.Time

	mu     sync.Mutex
	events []Event
}

type runIDKey struct{}

// WithRunID makes the next run started with ctx use id instead of a fresh one.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFrom returns the id set by WithRunID, if any.
func RunIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok && id != ""
}

// NewRunContext creates a run with a fresh id.
func NewRunContext(log *logrus.Logger, ruc string, now time.Time) *RunContext {
	return newRunContext(log, uuid.NewString(), ruc, now)
}

func newRunContext(log *logrus.Logger, id, ruc string, now time.Time) *RunContext {
	return &RunContext{
		ID:        id,
		RUC:       ruc,
		Logger:    logger.ForRun(log, id, ruc),
		StartedAt: now,
	}
}

// Record appends an event to the history.
func (r *RunContext) Record(at time.Time, kind string, attempt int, profile, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{At: at, Kind: kind, Attempt: attempt, Profile: profile, Detail: detail})
}

// Events returns a copy of the history.
func (r *RunContext) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events of kind were recorded.
func (r *RunContext) Count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
