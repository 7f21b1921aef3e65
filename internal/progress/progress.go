// Package progress implements the in-memory pub/sub broadcaster that
// fans out run state, progress percentages, and stats to multiple
// subscribers (SSE clients, websocket clients, CLI poll handlers)
// without ever blocking on a slow consumer.
package progress

import (
	"sync"
	"time"
)

// State is one of the agent processing states.
type State string

const (
	StateIdle               State = "idle"
	StateStarting            State = "starting"
	StateAuthenticating      State = "authenticating"
	StateFetchingAccounts    State = "fetching_accounts"
	StateFetchingResources   State = "fetching_resources"
	StateFetchingTags        State = "fetching_tags"
	StateMapping             State = "mapping"
	StateWriting             State = "writing"
	StateComplete            State = "complete"
	StateError               State = "error"
	StateCancelled           State = "cancelled"
)

// terminalStates are the states is_running treats as not-running.
var terminalStates = map[State]bool{
	StateIdle:      true,
	StateComplete:  true,
	StateError:     true,
	StateCancelled: true,
}

// Snapshot is the JSON-serializable view pushed to subscribers.
type Snapshot struct {
	State           State                  `json:"state"`
	Progress        float64                `json:"progress"`
	Message         string                 `json:"message"`
	Detail          string                 `json:"detail"`
	StartedAt       *time.Time             `json:"started_at,omitempty"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
	ElapsedSeconds  *float64               `json:"elapsed_seconds,omitempty"`
	Error           string                 `json:"error,omitempty"`
	Stats           map[string]interface{} `json:"stats"`
	IsRunning       bool                   `json:"is_running"`
}

// subscriberQueueSize bounds each subscriber's channel; a publisher
// that would block on a full channel drops the subscriber instead.
const subscriberQueueSize = 64

// HeartbeatInterval is the maximum gap between keepalive pushes to a
// subscriber, used by transports (SSE) to detect disconnection.
const HeartbeatInterval = 30 * time.Second

// Event is one message delivered to a subscription: either a state
// snapshot or a heartbeat.
type Event struct {
	Type     string // "snapshot" or "heartbeat"
	Snapshot Snapshot
}

// Subscription is a bounded queue of events for one subscriber.
type Subscription struct {
	id uint64
	ch chan Event
}

// C returns the channel to range over for events.
func (s *Subscription) C() <-chan Event { return s.ch }

// Broadcaster tracks current run state and fans it out to subscribers.
type Broadcaster struct {
	mu          sync.Mutex
	state       State
	progress    float64
	message     string
	detail      string
	startedAt   *time.Time
	completedAt *time.Time
	err         string
	stats       map[string]interface{}

	subsMu  sync.Mutex
	subs    map[uint64]*Subscription
	nextID  uint64
}

// New returns an idle Broadcaster.
func New() *Broadcaster {
	return &Broadcaster{
		state: StateIdle,
		stats: make(map[string]interface{}),
		subs:  make(map[uint64]*Subscription),
	}
}

// Subscribe adds a bounded-queue subscription and immediately enqueues
// the current snapshot so new subscribers see full state, not just
// incremental updates.
func (b *Broadcaster) Subscribe() *Subscription {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()

	b.nextID++
	sub := &Subscription{id: b.nextID, ch: make(chan Event, subscriberQueueSize)}
	b.subs[sub.id] = sub

	snap := b.Snapshot()
	trySend(sub.ch, Event{Type: "snapshot", Snapshot: snap})

	return sub
}

// Unsubscribe removes a subscription.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	delete(b.subs, sub.id)
	close(sub.ch)
}

// trySend is a non-blocking send; a full channel means the subscriber
// is dropped by the caller rather than stalling the publisher.
func trySend(ch chan Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	default:
		return false
	}
}

// broadcast pushes ev to every live subscriber, dropping (and
// unsubscribing) any whose queue is full.
func (b *Broadcaster) broadcast(ev Event) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()

	for id, sub := range b.subs {
		if !trySend(sub.ch, ev) {
			delete(b.subs, id)
			close(sub.ch)
		}
	}
}

// Heartbeat pushes a heartbeat event to every subscriber; callers
// should invoke this on a ticker no slower than HeartbeatInterval.
func (b *Broadcaster) Heartbeat() {
	b.broadcast(Event{Type: "heartbeat", Snapshot: b.Snapshot()})
}

// SetState transitions to a new state, resetting counters on
// "starting" and recording a completion timestamp on any terminal
// state.
func (b *Broadcaster) SetState(state State, message, detail string) {
	b.mu.Lock()
	b.state = state
	b.message = message
	b.detail = detail

	switch {
	case state == StateStarting:
		now := time.Now()
		b.startedAt = &now
		b.completedAt = nil
		b.err = ""
		b.stats = make(map[string]interface{})
		b.progress = 0
	case terminalStates[state] && state != StateIdle:
		now := time.Now()
		b.completedAt = &now
		if state == StateError {
			b.err = message
		}
	}
	snap := b.snapshotLocked()
	b.mu.Unlock()

	b.broadcast(Event{Type: "snapshot", Snapshot: snap})
}

// SetProgress updates the progress percentage (clamped to [0,100]) and
// optional message/detail.
func (b *Broadcaster) SetProgress(pct float64, message, detail string) {
	b.mu.Lock()
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	b.progress = pct
	if message != "" {
		b.message = message
	}
	if detail != "" {
		b.detail = detail
	}
	snap := b.snapshotLocked()
	b.mu.Unlock()

	b.broadcast(Event{Type: "snapshot", Snapshot: snap})
}

// SetStat sets a single statistics value, visible in the next snapshot.
func (b *Broadcaster) SetStat(key string, value interface{}) {
	b.mu.Lock()
	b.stats[key] = value
	snap := b.snapshotLocked()
	b.mu.Unlock()

	b.broadcast(Event{Type: "snapshot", Snapshot: snap})
}

// Reset returns the broadcaster to idle with all counters cleared.
func (b *Broadcaster) Reset() {
	b.mu.Lock()
	b.state = StateIdle
	b.progress = 0
	b.message = ""
	b.detail = ""
	b.startedAt = nil
	b.completedAt = nil
	b.err = ""
	b.stats = make(map[string]interface{})
	snap := b.snapshotLocked()
	b.mu.Unlock()

	b.broadcast(Event{Type: "snapshot", Snapshot: snap})
}

// IsRunning reports whether the current state is not one of the
// terminal/idle states.
func (b *Broadcaster) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !terminalStates[b.state]
}

// Snapshot returns a copy of the current state.
func (b *Broadcaster) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Broadcaster) snapshotLocked() Snapshot {
	stats := make(map[string]interface{}, len(b.stats))
	for k, v := range b.stats {
		stats[k] = v
	}

	var elapsed *float64
	if b.startedAt != nil {
		end := time.Now()
		if b.completedAt != nil {
			end = *b.completedAt
		}
		e := end.Sub(*b.startedAt).Seconds()
		elapsed = &e
	}

	return Snapshot{
		State:          b.state,
		Progress:       b.progress,
		Message:        b.message,
		Detail:         b.detail,
		StartedAt:      b.startedAt,
		CompletedAt:    b.completedAt,
		ElapsedSeconds: elapsed,
		Error:          b.err,
		Stats:          stats,
		IsRunning:      !terminalStates[b.state],
	}
}
