package progress

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(jobID string, percent int64) Event {
	return Event{
		JobID:   jobID,
		Phase:   PhaseImport,
		Status:  "running",
		Percent: percent,
		At:      time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC),
	}
}

func TestHub_ReplayBeforeSubscribe(t *testing.T) {
	hub := NewHub()

	hub.Publish("job-1", event("job-1", 25))
	hub.Publish("job-1", event("job-1", 50))

	sub, backlog, err := hub.Subscribe("job-1")
	require.NoError(t, err)
	defer sub.Close()

	require.Len(t, backlog, 2)
	assert.Equal(t, int64(25), backlog[0].Percent)
	assert.Equal(t, int64(50), backlog[1].Percent)
}

func TestHub_LiveDelivery(t *testing.T) {
	hub := NewHub()

	sub, backlog, err := hub.Subscribe("job-2")
	require.NoError(t, err)
	defer sub.Close()
	assert.Empty(t, backlog)

	hub.Publish("job-2", event("job-2", 75))

	select {
	case ev := <-sub.Events():
		assert.Equal(t, int64(75), ev.Percent)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestHub_BufferCapped(t *testing.T) {
	hub := NewHub()

	for i := 0; i < DefaultBufferSize+20; i++ {
		hub.Publish("job-3", event("job-3", int64(i)))
	}

	sub, backlog, err := hub.Subscribe("job-3")
	require.NoError(t, err)
	defer sub.Close()

	require.Len(t, backlog, DefaultBufferSize)
	assert.Equal(t, int64(20), backlog[0].Percent, "oldest events fall off")
	assert.Equal(t, int64(DefaultBufferSize+19), backlog[len(backlog)-1].Percent)
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub()

	sub, _, err := hub.Subscribe("job-4")
	require.NoError(t, err)
	defer sub.Close()

	// Never read from the subscription; publishing must still return.
	done := make(chan struct{})
	go func() {
		for i := 0; i < DefaultSubscriberBuffer*3; i++ {
			hub.Publish("job-4", event("job-4", int64(i)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestHub_IsolatesJobs(t *testing.T) {
	hub := NewHub()

	for i := 0; i < 3; i++ {
		hub.Publish(fmt.Sprintf("job-%d", i), event(fmt.Sprintf("job-%d", i), int64(i)))
	}

	sub, backlog, err := hub.Subscribe("job-1")
	require.NoError(t, err)
	defer sub.Close()

	require.Len(t, backlog, 1)
	assert.Equal(t, "job-1", backlog[0].JobID)
}

func TestHub_RetainsBacklogAfterLastSubscriberLeaves(t *testing.T) {
	hub := NewHub()

	terminal := event("job-6", 100)
	terminal.Status = "done"
	hub.Publish("job-6", terminal)

	first, _, err := hub.Subscribe("job-6")
	require.NoError(t, err)
	first.Close()

	// A subscriber arriving after everyone else left still sees the
	// terminal snapshot instead of an empty stream.
	second, backlog, err := hub.Subscribe("job-6")
	require.NoError(t, err)
	defer second.Close()

	require.Len(t, backlog, 1)
	assert.Equal(t, int64(100), backlog[0].Percent)
	assert.Equal(t, "done", backlog[0].Status)
}

func TestHub_CloseUnsubscribes(t *testing.T) {
	hub := NewHub()

	sub, _, err := hub.Subscribe("job-5")
	require.NoError(t, err)
	sub.Close()
	sub.Close() // idempotent

	// Publishing after close must not panic or deliver.
	hub.Publish("job-5", event("job-5", 10))
	select {
	case _, open := <-sub.Events():
		if open {
			t.Fatal("closed subscription received an event")
		}
	default:
	}
}
