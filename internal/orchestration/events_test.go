package orchestration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_SubscribePublish(t *testing.T) {
	bus := NewEventBus()

	ch, cancel := bus.Subscribe("run-1")
	defer cancel()

	bus.Publish(Event{RunID: "run-1", Task: "demo", Round: 1, State: StateGenerating})
	bus.Publish(Event{RunID: "other-run", Task: "demo", Round: 1, State: StateDone})

	require.Len(t, ch, 1)
	ev := <-ch
	assert.Equal(t, StateGenerating, ev.State)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestEventBus_CancelClosesChannel(t *testing.T) {
	bus := NewEventBus()

	ch, cancel := bus.Subscribe("run-1")
	cancel()

	_, open := <-ch
	assert.False(t, open)

	// Publishing after cancel must not panic.
	bus.Publish(Event{RunID: "run-1", State: StateDone})
}

func TestEventBus_SlowSubscriberDropsEvents(t *testing.T) {
	bus := NewEventBus()

	ch, cancel := bus.Subscribe("run-1")
	defer cancel()

	for i := 0; i < 40; i++ {
		bus.Publish(Event{RunID: "run-1", State: StatePublishing})
	}

	// Buffer is bounded; the publisher never blocked.
	assert.LessOrEqual(t, len(ch), 16)
}
