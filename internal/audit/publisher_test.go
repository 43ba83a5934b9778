package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPublisher_StampsEvents(t *testing.T) {
	p := NewMemoryPublisher()
	require.NoError(t, p.Emit(context.Background(), Event{Action: ActionInvestigationCompleted, Subject: "Acme"}))

	events := p.Events()
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].ID)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestAsyncPublisher_ForwardsAndFlushes(t *testing.T) {
	sink := NewMemoryPublisher()
	p := NewAsyncPublisher(sink, 8, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Emit(ctx, Event{Action: ActionInvestigationCompleted, InvestigationID: "inv"}))
	}

	assert.Eventually(t, func() bool { return len(sink.Events()) == 3 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestAsyncPublisher_DropsWhenFull(t *testing.T) {
	sink := NewMemoryPublisher()
	p := NewAsyncPublisher(sink, 1, nil)

	// No worker running: the second event cannot be buffered.
	require.NoError(t, p.Emit(context.Background(), Event{Action: ActionInvestigationCompleted}))
	require.NoError(t, p.Emit(context.Background(), Event{Action: ActionInvestigationRejected}))

	assert.Len(t, p.inbox, 1)
}
