package inproc

import (
	"errors"
	"sync"

	"collabbot/internal/domain"
)

var ErrSubscriberQueueFull = errors.New("subscriber queue is full")

type subscription struct {
	projectID string
	ch        chan domain.RoundEvent
}

// Bus fans round events out to subscribers. Publishing never blocks: an
// event is dropped for a subscriber whose queue is full.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*subscription
	buffer int
}

func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		subs:   make(map[string]*subscription),
		buffer: buffer,
	}
}

// Subscribe registers id for the events of projectID, or of every project
// when projectID is empty. Subscribing an existing id returns its channel.
func (b *Bus) Subscribe(id, projectID string) <-chan domain.RoundEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[id]; ok {
		return sub.ch
	}
	sub := &subscription{
		projectID: projectID,
		ch:        make(chan domain.RoundEvent, b.buffer),
	}
	b.subs[id] = sub
	return sub.ch
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(sub.ch)
}

func (b *Bus) Publish(ev domain.RoundEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var dropped bool
	for _, sub := range b.subs {
		if sub.projectID != "" && sub.projectID != ev.ProjectID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			dropped = true
		}
	}
	if dropped {
		return ErrSubscriberQueueFull
	}
	return nil
}

func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
