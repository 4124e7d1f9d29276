package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/iconidentify/clipgif/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHub(t *testing.T, size int) *Hub {
	t.Helper()
	h, err := NewHub(HubConfig{RingBufferSize: size}, testLogger())
	if err != nil {
		t.Fatalf("failed to create hub: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestHub_Publish(t *testing.T) {
	h := newTestHub(t, 10)

	h.PublishProgress(domain.ProgressUpdate{JobID: "job_1", Progress: 40, Status: domain.JobStatusProcessing, Stage: "encoding"}, "req-1", "popup")

	msgs := h.Recent(10, domain.MessageFilter{})
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	m := msgs[0]
	if m.ID == "" || m.Timestamp.IsZero() || m.Severity != domain.SeverityInfo {
		t.Errorf("defaults not filled: %+v", m)
	}
	if m.Type != domain.MessageTypeProgress || m.JobID != "job_1" || m.RequestID != "req-1" || m.Context != "popup" {
		t.Errorf("unexpected message: %+v", m)
	}

	var update domain.ProgressUpdate
	if err := json.Unmarshal(m.Payload, &update); err != nil || update.Progress != 40 {
		t.Errorf("payload = %s, %v", m.Payload, err)
	}
}

func TestHub_RingBuffer(t *testing.T) {
	h := newTestHub(t, 5)

	for i := 0; i < 10; i++ {
		h.PublishLog(domain.SeverityInfo, fmt.Sprintf("message %d", i))
	}

	msgs := h.Recent(10, domain.MessageFilter{})
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages (ring buffer size), got %d", len(msgs))
	}
	if msgs[0].Text != "message 9" {
		t.Errorf("expected newest first, got %q", msgs[0].Text)
	}
	if msgs[4].Text != "message 5" {
		t.Errorf("expected oldest kept to be 'message 5', got %q", msgs[4].Text)
	}
}

func TestHub_RecentFilter(t *testing.T) {
	h := newTestHub(t, 100)

	h.PublishProgress(domain.ProgressUpdate{JobID: "a"}, "r1", "popup")
	h.PublishResult("a", "r1", "popup", domain.SeveritySuccess, "done", nil)
	h.PublishProgress(domain.ProgressUpdate{JobID: "b"}, "r2", "tab-7")
	h.PublishLog(domain.SeverityWarning, "noise")

	result := domain.MessageTypeResult
	tests := []struct {
		name   string
		filter domain.MessageFilter
		want   int
	}{
		{"all", domain.MessageFilter{}, 4},
		{"by job", domain.MessageFilter{JobID: "a"}, 2},
		{"by type", domain.MessageFilter{Type: &result}, 1},
		{"by context", domain.MessageFilter{Context: "tab-7"}, 1},
		{"by request", domain.MessageFilter{RequestID: "r1", JobID: "a"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(h.Recent(50, tt.filter)); got != tt.want {
				t.Errorf("got %d messages, want %d", got, tt.want)
			}
		})
	}

	if got := len(h.Recent(2, domain.MessageFilter{})); got != 2 {
		t.Errorf("limit not applied: %d", got)
	}
}

func TestHub_Subscribe(t *testing.T) {
	h := newTestHub(t, 10)

	id, ch := h.Subscribe()
	if h.SubscriberCount() != 1 {
		t.Errorf("SubscriberCount = %d, want 1", h.SubscriberCount())
	}

	h.PublishLog(domain.SeverityInfo, "hello")

	select {
	case msg := <-ch:
		if msg.Text != "hello" {
			t.Errorf("got %q", msg.Text)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}

	h.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Unsubscribe")
	}
	if h.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount = %d, want 0", h.SubscriberCount())
	}
	h.Unsubscribe(id)
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	h := newTestHub(t, 10)
	_, _ = h.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			h.PublishLog(domain.SeverityInfo, "flood")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestHub_Stats(t *testing.T) {
	h := newTestHub(t, 10)
	h.PublishLog(domain.SeverityInfo, "one")
	h.Subscribe()

	stats := h.Stats()
	if stats.BufferSize != 10 || stats.BufferUsed != 1 || stats.Subscribers != 1 || stats.SQLiteEnabled {
		t.Errorf("stats = %+v", stats)
	}
}

func TestHub_SQLitePersistence(t *testing.T) {
	h, err := NewHub(HubConfig{
		RingBufferSize:  10,
		PersistToSQLite: true,
		SQLitePath:      filepath.Join(t.TempDir(), "messages.db"),
		RetentionDays:   7,
	}, testLogger())
	if err != nil {
		t.Fatalf("failed to create hub: %v", err)
	}
	defer h.Close()

	h.PublishProgress(domain.ProgressUpdate{JobID: "job_1"}, "", "")
	h.PublishResult("job_1", "req", "popup", domain.SeverityError, "Job timeout", map[string]any{"success": false})

	var got []domain.Message
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err = h.QueryHistorical(context.Background(), domain.MessageFilter{JobID: "job_1"}, 10, 0)
		if err != nil {
			t.Fatalf("QueryHistorical failed: %v", err)
		}
		if len(got) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if len(got) != 1 {
		t.Fatalf("expected only the result message persisted, got %d", len(got))
	}
	if got[0].Type != domain.MessageTypeResult || got[0].Text != "Job timeout" || got[0].Context != "popup" {
		t.Errorf("persisted message = %+v", got[0])
	}
	if string(got[0].Payload) != `{"success":false}` {
		t.Errorf("payload = %s", got[0].Payload)
	}

	if err := h.CleanupOld(context.Background()); err != nil {
		t.Errorf("CleanupOld failed: %v", err)
	}
	if !h.Stats().SQLiteEnabled {
		t.Error("stats should report sqlite enabled")
	}
}

func TestHub_QueryHistoricalWithoutDB(t *testing.T) {
	h := newTestHub(t, 10)
	got, err := h.QueryHistorical(context.Background(), domain.MessageFilter{}, 10, 0)
	if err != nil || len(got) != 0 {
		t.Errorf("got %v, %v", got, err)
	}
}
