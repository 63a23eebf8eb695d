package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

type fakeSender struct {
	name   string
	err    error
	titles []string
}

func (s *fakeSender) Send(ctx context.Context, title, message string) error {
	s.titles = append(s.titles, title)
	return s.err
}

func (s *fakeSender) Name() string { return s.name }

func TestNotifyFiltersEvents(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, []string{EventJobExhausted}, slog.Default())

	if err := n.Notify(context.Background(), EventError, "t", "m"); err != nil {
		t.Fatalf("Notify filtered event: %v", err)
	}
	if len(sender.titles) != 0 {
		t.Fatal("filtered event reached the sender")
	}

	if err := n.Notify(context.Background(), EventJobExhausted, "t", "m"); err != nil {
		t.Fatalf("Notify allowed event: %v", err)
	}
	if len(sender.titles) != 1 {
		t.Fatalf("allowed event delivered %d times, want 1", len(sender.titles))
	}
}

func TestDispatchContinuesPastFailingSender(t *testing.T) {
	bad := &fakeSender{name: "bad", err: errors.New("down")}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, slog.Default())

	err := n.NotifyAll(context.Background(), "t", "m")
	if err == nil {
		t.Fatal("expected combined sender error")
	}
	if !strings.Contains(err.Error(), "bad") {
		t.Errorf("error does not name the failing sender: %v", err)
	}
	if len(good.titles) != 1 {
		t.Error("healthy sender skipped after a failing one")
	}
}

func TestJobExhaustedUsesConfiguredEvent(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, []string{EventJobExhausted}, slog.Default())

	n.JobExhausted(context.Background(), "measure-fills", errors.New("boom"))

	if len(sender.titles) != 1 {
		t.Fatalf("exhaustion alert delivered %d times, want 1", len(sender.titles))
	}
}
