package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/munifact/munifact/internal/entity"
)

func TestNotifierDeliversToDocumentSubscriber(t *testing.T) {
	n := NewNotifier()
	ch, cancel := n.Subscribe(7)
	defer cancel()

	n.Publish(Event{Kind: EventStep, DocumentID: 7, Step: &entity.Step{DocumentID: 7}})

	select {
	case ev := <-ch:
		require.Equal(t, EventStep, ev.Kind)
		require.Equal(t, int64(7), ev.DocumentID)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestNotifierFiltersOtherDocuments(t *testing.T) {
	n := NewNotifier()
	ch, cancel := n.Subscribe(7)
	defer cancel()

	n.Publish(Event{Kind: EventStep, DocumentID: 8})

	select {
	case <-ch:
		t.Fatal("event for another document delivered")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotifierWildcardSubscriber(t *testing.T) {
	n := NewNotifier()
	ch, cancel := n.Subscribe(0)
	defer cancel()

	n.Publish(Event{Kind: EventDocument, DocumentID: 3})
	n.Publish(Event{Kind: EventDocument, DocumentID: 4})

	for i := 0; i < 2; i++ {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("missing event")
		}
	}
}

func TestNotifierCancelClosesChannel(t *testing.T) {
	n := NewNotifier()
	ch, cancel := n.Subscribe(1)
	cancel()

	_, open := <-ch
	require.False(t, open)

	// Publishing after cancel must not panic.
	n.Publish(Event{Kind: EventStep, DocumentID: 1})
	// Cancel twice is safe.
	cancel()
}

func TestNotifierDoesNotBlockOnSlowSubscriber(t *testing.T) {
	n := NewNotifier()
	_, cancel := n.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			n.Publish(Event{Kind: EventStep, DocumentID: 1})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on slow subscriber")
	}
}
