package eventbus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Well-known event types published on the bus.
//
// The UI push channel subscribes to all of these; the paywall prompt is
// consumed by whatever surface renders upgrade nudges.
const (
	TypeNotificationReceived = "notification.received"
	TypeConversationUpdated  = "conversation.updated"
	TypeSummaryCreated       = "summary.created"
	TypePaywallPrompt        = "paywall.prompt"
)

// Event is a lightweight, in-memory signal used to decouple components.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers may drop events (bounded backpressure).
//   - Delivery is at-least-zero-times per subscriber; consumers that need
//     reliability must be idempotent (conversation.updated is).
//
// Data should be small and JSON-serializable.
type Event struct {
	ID   string
	Type string
	Time time.Time
	Data any
}

// NotificationReceived is the Data payload for TypeNotificationReceived.
type NotificationReceived struct {
	Source    string    `json:"source"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	MediaTag  string    `json:"mediaTag,omitempty"`
}

// ConversationUpdated is the Data payload for TypeConversationUpdated.
// The same payload may be delivered more than once; consumers key off
// ConversationID and treat it as a state refresh.
type ConversationUpdated struct {
	ConversationID int64     `json:"conversationId"`
	Name           string    `json:"name"`
	UnreadCount    int64     `json:"unreadCount"`
	LastMessage    string    `json:"lastMessage"`
	LastSender     string    `json:"lastSender"`
	LastTime       time.Time `json:"lastTime"`
	IsAutoSummary  bool      `json:"isAutoSummary,omitempty"`
	SummaryID      int64     `json:"summaryId,omitempty"`
}

// PaywallPrompt is the Data payload for TypePaywallPrompt.
type PaywallPrompt struct {
	ConversationID int64  `json:"conversationId"`
	Name           string `json:"name"`
	UnreadCount    int64  `json:"unreadCount"`
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns a simple in-memory fanout bus.
//
// It intentionally does not own any background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	// Snapshot subscribers so Publish doesn't hold locks while attempting sends.
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// Non-blocking delivery. If subscriber is slow, we drop.
		// If a subscriber unsubscribes concurrently and the channel closes,
		// recover from a possible panic (send on closed channel).
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			// Closing is safe because Publish recovers from send panics.
			close(ch)
		})
	}
	return ch, unsub
}
