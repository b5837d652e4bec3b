package status

import (
	"sync"

	"github.com/munifact/munifact/internal/entity"
)

// EventKind discriminates what changed.
type EventKind string

const (
	EventStep     EventKind = "step"
	EventDocument EventKind = "document"
)

// Event is one committed state transition, published after the store write.
type Event struct {
	Kind       EventKind
	DocumentID int64
	Step       *entity.Step
	Document   *entity.Document
}

// Notifier is an in-process pub/sub hub over pipeline transitions, the
// event-driven alternative to polling. Subscribers that fall behind lose
// events rather than block the pipeline; they can always re-read the store.
type Notifier struct {
	mu     sync.Mutex
	nextID int64
	subs   map[int64]*subscription
}

type subscription struct {
	id         int64
	documentID int64 // 0 = all documents
	ch         chan Event
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int64]*subscription)}
}

// Subscribe registers interest in transitions for one document (or all, with
// documentID 0). The returned cancel func closes the channel.
func (n *Notifier) Subscribe(documentID int64) (<-chan Event, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	sub := &subscription{
		id:         n.nextID,
		documentID: documentID,
		ch:         make(chan Event, 16),
	}
	n.subs[sub.id] = sub

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if _, ok := n.subs[sub.id]; ok {
			delete(n.subs, sub.id)
			close(sub.ch)
		}
	}
	return sub.ch, cancel
}

// Publish fans the event out without blocking the publisher.
func (n *Notifier) Publish(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, sub := range n.subs {
		if sub.documentID != 0 && sub.documentID != ev.DocumentID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}
