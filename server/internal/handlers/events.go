package handlers

import (
	"fmt"
	"sync"
	"time"

	"github.com/fhelabs/fhegas/internal/events"
	"github.com/fhelabs/fhegas/server/internal/database"
)

// EventRecorder persists observability notifications, delaying writes to
// batch the burst of events a single analyze call produces. Notifications
// are fire-and-forget: a lost batch is acceptable, a blocked analyze call
// is not.
type EventRecorder struct {
	db      *database.DB
	delay   time.Duration
	mu      sync.Mutex
	pending map[string]*pendingEvents
}

type pendingEvents struct {
	generation int
	events     []database.Event
}

// NewEventRecorder creates a recorder with the specified flush delay
func NewEventRecorder(db *database.DB, delay time.Duration) *EventRecorder {
	return &EventRecorder{
		db:      db,
		delay:   delay,
		pending: make(map[string]*pendingEvents),
	}
}

// Schedule queues an event for a user, resetting the timer if a batch is
// already pending
func (rec *EventRecorder) Schedule(userID string, event database.Event) {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if p, exists := rec.pending[userID]; exists {
		// Append and bump generation (invalidates old timer)
		p.events = append(p.events, event)
		p.generation++
		gen := p.generation
		time.AfterFunc(rec.delay, func() {
			rec.flush(userID, gen)
		})
		return
	}

	rec.pending[userID] = &pendingEvents{
		generation: 1,
		events:     []database.Event{event},
	}
	time.AfterFunc(rec.delay, func() {
		rec.flush(userID, 1)
	})
}

func (rec *EventRecorder) flush(userID string, generation int) {
	rec.mu.Lock()
	p, exists := rec.pending[userID]
	if !exists || p.generation != generation {
		// Stale timer or already flushed
		rec.mu.Unlock()
		return
	}
	delete(rec.pending, userID)
	rec.mu.Unlock()

	rec.db.InsertEvents(userID, p.events)
}

// ForUser returns an emitter that records a user's engine notifications.
func (rec *EventRecorder) ForUser(userID string) events.Emitter {
	return &userEmitter{rec: rec, userID: userID}
}

type userEmitter struct {
	rec    *EventRecorder
	userID string
}

func (e *userEmitter) CostUpdated(name string, baseCost, perByteCost uint64) {
	e.rec.Schedule(e.userID, database.Event{
		Type:      "cost-updated",
		SubjectID: "",
		Detail:    fmt.Sprintf("%s base=%d perByte=%d", name, baseCost, perByteCost),
		CreatedAt: time.Now(),
	})
}

func (e *userEmitter) SubjectAnalyzed(subjectID string, estimatedGas uint64) {
	e.rec.Schedule(e.userID, database.Event{
		Type:      "subject-analyzed",
		SubjectID: subjectID,
		Detail:    fmt.Sprintf("estimatedGas=%d", estimatedGas),
		CreatedAt: time.Now(),
	})
}

func (e *userEmitter) SuggestionEmitted(subjectID, suggestion string) {
	e.rec.Schedule(e.userID, database.Event{
		Type:      "suggestion-emitted",
		SubjectID: subjectID,
		Detail:    suggestion,
		CreatedAt: time.Now(),
	})
}
