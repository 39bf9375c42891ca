// Package worker – progress broker.
//
// The broker is the push half of the status reporter: workers publish named
// events per reading, and each SSE client holds one subscription. Publishing
// never blocks a worker: a subscriber that cannot keep up loses events and
// falls back to the pull-mode status query.
package worker

import (
	"sync"
)

// Event is one named record on the stream. Data is marshaled to JSON by the
// transport layer.
type Event struct {
	Name string
	Data any
}

// Stream event names, matching the reporter contract.
const (
	EventProgress = "progress"
	EventError    = "error"
	EventReading  = "reading"
	EventComplete = "complete"
)

// ProgressData is the payload of a progress event.
type ProgressData struct {
	Step    string `json:"step"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Broker fans events out to per-reading subscribers. Safe for concurrent use.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

// NewBroker constructs an empty Broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers a listener for readingID. The returned cancel function
// must be called when the client goes away; it closes the channel.
func (b *Broker) Subscribe(readingID string) (<-chan Event, func()) {
	ch := make(chan Event, 16)
	b.mu.Lock()
	if b.subs[readingID] == nil {
		b.subs[readingID] = make(map[chan Event]struct{})
	}
	b.subs[readingID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if set, ok := b.subs[readingID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(b.subs, readingID)
				}
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers an event to all subscribers of readingID without
// blocking: a full subscriber buffer drops the event for that subscriber.
func (b *Broker) Publish(readingID string, ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[readingID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers reports the current subscriber count for a reading (test hook).
func (b *Broker) Subscribers(readingID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[readingID])
}
