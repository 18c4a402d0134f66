package mail

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []Message
	errs int
}

func (s *recordingSender) Send(msg Message) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errs > 0 {
		s.errs--
		return Result{Err: errors.New("temporary failure")}
	}
	s.sent = append(s.sent, msg)
	return Result{OK: true}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatcher_DeliversQueuedMessages(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, testLogger(), 2, 0)

	for i := 0; i < 5; i++ {
		d.Enqueue(Message{To: "member@example.com", Subject: "Payment confirmed"})
	}
	d.Close()

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent) != 5 {
		t.Errorf("delivered %d messages, want 5", len(sender.sent))
	}
}

func TestDispatcher_RetriesTransientFailures(t *testing.T) {
	sender := &recordingSender{errs: 2}
	d := NewDispatcher(sender, testLogger(), 1, 3)

	d.Enqueue(Message{To: "member@example.com", Subject: "Payment confirmed"})
	d.Close()

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent) != 1 {
		t.Errorf("delivered %d messages, want 1 after retries", len(sender.sent))
	}
}

func TestDispatcher_GivesUpAfterMaxRetries(t *testing.T) {
	sender := &recordingSender{errs: 10}
	d := NewDispatcher(sender, testLogger(), 1, 0)

	d.Enqueue(Message{To: "member@example.com", Subject: "Payment confirmed"})
	d.Close()

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent) != 0 {
		t.Errorf("delivered %d messages, want 0", len(sender.sent))
	}
}

func TestFileSender_WritesMessageToDisk(t *testing.T) {
	dir := t.TempDir()
	sender := FileSender{Dir: dir}

	res := sender.Send(Message{
		To:      "member@example.com",
		Subject: "Payment confirmed: deposit",
		Text:    "Your deposit of 100 USD has been confirmed.",
	})
	if !res.OK {
		t.Fatalf("Send failed: %v", res.Err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 file, got %d", len(entries))
	}

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var payload map[string]string
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if payload["to"] != "member@example.com" {
		t.Errorf("to = %q, want member@example.com", payload["to"])
	}
	if payload["subject"] != "Payment confirmed: deposit" {
		t.Errorf("subject = %q", payload["subject"])
	}
}
