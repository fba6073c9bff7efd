package orchestration

import (
	"sync"
	"time"
)

// State names one phase of a round workflow.
type State string

const (
	StateInit            State = "init"
	StateGenerating      State = "generating"
	StateCreatingRepo    State = "creating_repo"
	StateFetchingContext State = "fetching_context"
	StatePublishing      State = "publishing"
	StateEnablingHosting State = "enabling_hosting"
	StateReadingRevision State = "reading_revision"
	StateConverging      State = "converging"
	StateDone            State = "done"
	StateFailed          State = "failed"
)

// Event is one state transition of a running task.
type Event struct {
	RunID     string    `json:"run_id"`
	Task      string    `json:"task"`
	Round     int       `json:"round"`
	State     State     `json:"state"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventBus fans task progress events out to subscribers (the WebSocket
// stream). Delivery is best-effort: a slow subscriber drops events rather
// than stalling the orchestrator.
type EventBus struct {
	mu   sync.Mutex
	subs map[string][]chan Event
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[string][]chan Event)}
}

// Subscribe registers interest in one run's events. The returned cancel
// function must be called to release the subscription.
func (b *EventBus) Subscribe(runID string) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	b.mu.Lock()
	b.subs[runID] = append(b.subs[runID], ch)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		channels := b.subs[runID]
		for i, c := range channels {
			if c == ch {
				b.subs[runID] = append(channels[:i], channels[i+1:]...)
				close(c)
				break
			}
		}
		if len(b.subs[runID]) == 0 {
			delete(b.subs, runID)
		}
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber of its run.
func (b *EventBus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[ev.RunID] {
		select {
		case ch <- ev:
		default:
		}
	}
}
