package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

type fakeSender struct {
	name string
	fail error
	sent []string
}

func (f *fakeSender) Send(_ context.Context, title, message string) error {
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, title+": "+message)
	return nil
}

func (f *fakeSender) Name() string { return f.name }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersByEvent(t *testing.T) {
	s := &fakeSender{name: "test"}
	n := NewNotifier([]Sender{s}, []string{"opportunity_found"}, discard())

	if err := n.Notify(context.Background(), "opportunity_found", "hit", "BTC/USDT"); err != nil {
		t.Fatalf("Notify(allowed) error: %v", err)
	}
	if err := n.Notify(context.Background(), "heartbeat", "ping", ""); err != nil {
		t.Fatalf("Notify(filtered) error: %v", err)
	}

	if len(s.sent) != 1 {
		t.Fatalf("sent %d messages, want 1 (filtered event must not deliver)", len(s.sent))
	}
	if !strings.HasPrefix(s.sent[0], "hit:") {
		t.Errorf("sent = %q", s.sent[0])
	}
}

func TestNotifyEmptyEventListAllowsAll(t *testing.T) {
	s := &fakeSender{name: "test"}
	n := NewNotifier([]Sender{s}, nil, discard())

	if err := n.Notify(context.Background(), "anything", "t", "m"); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}
	if len(s.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(s.sent))
	}
}

func TestDispatchContinuesPastFailingSender(t *testing.T) {
	bad := &fakeSender{name: "bad", fail: errors.New("boom")}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discard())

	err := n.NotifyAll(context.Background(), "t", "m")
	if err == nil {
		t.Fatal("NotifyAll() = nil, want combined error")
	}
	if !strings.Contains(err.Error(), "bad: boom") {
		t.Errorf("error = %v, want mention of failing sender", err)
	}
	if len(good.sent) != 1 {
		t.Fatalf("good sender got %d messages, want 1 despite sibling failure", len(good.sent))
	}
}

func TestNoSendersIsNoop(t *testing.T) {
	n := NewNotifier(nil, nil, discard())
	if err := n.NotifyAll(context.Background(), "t", "m"); err != nil {
		t.Fatalf("NotifyAll() with no senders = %v, want nil", err)
	}
}
