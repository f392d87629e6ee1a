// Package events provides a publish/subscribe bus for hook activity.
// Coordinators publish a record of every decision, checkpoint and
// keyword activation; the websocket handler and the MQTT forwarder
// subscribe. The bus is nil-safe: Publish and Emit on a nil *Bus are
// no-ops, so coordinators built without a bus need no guard checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify which hook published an event.
const (
	// SourceStop identifies events from the stop coordinator.
	SourceStop = "stop"
	// SourceCompact identifies events from the compaction coordinator.
	SourceCompact = "compact"
	// SourcePrompt identifies events from the prompt keyword hook.
	SourcePrompt = "prompt"
	// SourceSession identifies events from the session-start hook.
	SourceSession = "session"
)

// Kind constants describe the type of event within a source.
const (
	// KindDecision signals a stop decision.
	// Data: session_id, rule, pattern.
	KindDecision = "decision"

	// KindCheckpointCreated signals a checkpoint was persisted.
	// Data: session_id, checkpoint_id, trigger, cwd, active_modes.
	KindCheckpointCreated = "checkpoint_created"
	// KindCheckpointFailed signals checkpoint creation failed and a
	// warning was returned instead.
	// Data: session_id, cwd, error.
	KindCheckpointFailed = "checkpoint_failed"
	// KindCheckpointShared signals a caller received the result of a
	// checkpoint already in flight for the same directory.
	// Data: session_id, cwd.
	KindCheckpointShared = "checkpoint_shared"

	// KindKeywordsDetected signals keywords were resolved from a prompt.
	// Data: session_id, keywords, activated.
	KindKeywordsDetected = "keywords_detected"

	// KindRecoveryServed signals a recovery message was returned.
	// Data: session_id, checkpoint_id.
	KindRecoveryServed = "recovery_served"
)

// Event represents a single hook event.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the hook that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu sync.RWMutex
	// subs is keyed by the receive-only view handed to the subscriber so
	// Unsubscribe can find the sendable channel without a conversion.
	subs map[<-chan Event]chan Event
	now  func() time.Time
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs: make(map[<-chan Event]chan Event),
		now:  time.Now,
	}
}

// Publish sends an event to all subscribers. If a subscriber's channel
// is full the event is dropped for that subscriber. Safe to call on a
// nil receiver.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Emit publishes an event stamped with the current time. Safe to call
// on a nil receiver.
func (b *Bus) Emit(source, kind string, data map[string]any) {
	if b == nil {
		return
	}
	b.Publish(Event{Timestamp: b.now(), Source: source, Kind: kind, Data: data})
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Unknown
// channels are ignored.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.subs[ch]
	if !ok {
		return
	}
	delete(b.subs, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
