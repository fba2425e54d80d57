package inproc

import (
	"errors"
	"testing"

	"collabbot/internal/domain"
)

func TestBusFiltersByProject(t *testing.T) {
	b := New(4)
	all := b.Subscribe("all", "")
	p1 := b.Subscribe("p1", "p1")

	if err := b.Publish(domain.RoundEvent{Kind: domain.RoundEventStarted, ProjectID: "p2"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := b.Publish(domain.RoundEvent{Kind: domain.RoundEventFinished, ProjectID: "p1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if got := len(all); got != 2 {
		t.Fatalf("unexpected events for wildcard subscriber: %d", got)
	}
	if got := len(p1); got != 1 {
		t.Fatalf("unexpected events for project subscriber: %d", got)
	}
	ev := <-p1
	if ev.Kind != domain.RoundEventFinished {
		t.Fatalf("unexpected event kind: %s", ev.Kind)
	}
}

func TestBusDropsWhenQueueFull(t *testing.T) {
	b := New(1)
	ch := b.Subscribe("slow", "")
	if err := b.Publish(domain.RoundEvent{ProjectID: "p1"}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	err := b.Publish(domain.RoundEvent{ProjectID: "p1"})
	if !errors.Is(err, ErrSubscriberQueueFull) {
		t.Fatalf("expected queue full, got %v", err)
	}
	if len(ch) != 1 {
		t.Fatalf("expected one queued event, got %d", len(ch))
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	b := New(0)
	ch := b.Subscribe("s", "")
	if again := b.Subscribe("s", "other"); again != ch {
		t.Fatalf("resubscribe returned a new channel")
	}
	b.Unsubscribe("s")
	b.Unsubscribe("s")
	if _, ok := <-ch; ok {
		t.Fatalf("channel still open")
	}
	if b.Len() != 0 {
		t.Fatalf("subscriber not removed")
	}
	if err := b.Publish(domain.RoundEvent{ProjectID: "p1"}); err != nil {
		t.Fatalf("publish without subscribers: %v", err)
	}
}
