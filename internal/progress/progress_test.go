package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_NewIsIdleAndNotRunning(t *testing.T) {
	b := New()
	assert.False(t, b.IsRunning())
	assert.Equal(t, StateIdle, b.Snapshot().State)
}

func TestBroadcaster_SubscribeReceivesCurrentSnapshotImmediately(t *testing.T) {
	b := New()
	b.SetState(StateStarting, "starting run", "")

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	select {
	case ev := <-sub.C():
		assert.Equal(t, "snapshot", ev.Type)
		assert.Equal(t, StateStarting, ev.Snapshot.State)
	case <-time.After(time.Second):
		t.Fatal("expected an immediate snapshot on subscribe")
	}
}

func TestBroadcaster_SetStateStartingResetsCounters(t *testing.T) {
	b := New()
	b.SetStat("resources", 100)
	b.SetProgress(50, "", "")

	b.SetState(StateStarting, "", "")
	snap := b.Snapshot()
	assert.Equal(t, float64(0), snap.Progress)
	assert.Empty(t, snap.Stats)
	require.NotNil(t, snap.StartedAt)
	assert.Nil(t, snap.CompletedAt)
}

func TestBroadcaster_TerminalStateSetsCompletedAt(t *testing.T) {
	b := New()
	b.SetState(StateStarting, "", "")
	b.SetState(StateComplete, "", "")

	snap := b.Snapshot()
	assert.NotNil(t, snap.CompletedAt)
	assert.False(t, snap.IsRunning)
}

func TestBroadcaster_ErrorStateRecordsMessage(t *testing.T) {
	b := New()
	b.SetState(StateStarting, "", "")
	b.SetState(StateError, "upstream exploded", "")

	snap := b.Snapshot()
	assert.Equal(t, "upstream exploded", snap.Error)
}

func TestBroadcaster_SetProgressClampsToRange(t *testing.T) {
	b := New()
	b.SetProgress(150, "", "")
	assert.Equal(t, float64(100), b.Snapshot().Progress)

	b.SetProgress(-10, "", "")
	assert.Equal(t, float64(0), b.Snapshot().Progress)
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	b.Unsubscribe(sub)

	_, open := <-sub.C()
	assert.False(t, open)
}

func TestBroadcaster_FullQueueDropsSubscriberWithoutBlocking(t *testing.T) {
	b := New()
	sub := b.Subscribe()

	for i := 0; i < subscriberQueueSize+10; i++ {
		b.SetProgress(float64(i%100), "", "")
	}

	done := make(chan struct{})
	go func() {
		b.SetProgress(99, "", "")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full subscriber queue")
	}
	_ = sub
}

func TestBroadcaster_ResetReturnsToIdle(t *testing.T) {
	b := New()
	b.SetState(StateStarting, "", "")
	b.SetState(StateError, "boom", "")
	b.Reset()

	snap := b.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.Error)
	assert.Nil(t, snap.StartedAt)
}
