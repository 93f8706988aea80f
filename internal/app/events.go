package app

import (
	"sync"
	"time"

	"github.com/bryanchriswhite/DualCam/internal/snapshot"
	"github.com/google/uuid"
)

// EventType names an application event.
type EventType string

const (
	EventSnapshotSaved  EventType = "snapshot_saved"
	EventSnapshotFailed EventType = "snapshot_failed"
	EventReopened       EventType = "session_reopened"
	EventReopenFailed   EventType = "session_reopen_failed"
)

// Event is published to subscribers after something user visible happens.
type Event struct {
	ID       string           `json:"id"`
	Type     EventType        `json:"type"`
	Time     time.Time        `json:"time"`
	Message  string           `json:"message,omitempty"`
	Snapshot *snapshot.Record `json:"snapshot,omitempty"`
	Error    string           `json:"error,omitempty"`
}

type broadcaster struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[chan Event]struct{})}
}

func (b *broadcaster) subscribe() chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *broadcaster) unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// publish never blocks; a subscriber with a full buffer misses the event.
func (b *broadcaster) publish(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		close(ch)
	}
	b.subs = make(map[chan Event]struct{})
}
