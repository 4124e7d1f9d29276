package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iconidentify/clipgif/internal/domain"
)

// HubConfig configures the message hub.
type HubConfig struct {
	// RingBufferSize is the number of messages to keep in memory.
	// Default: 1000
	RingBufferSize int

	// PersistToSQLite enables SQLite persistence of result and log messages.
	// Progress messages are never persisted.
	PersistToSQLite bool

	// SQLitePath is the path to the SQLite database file.
	SQLitePath string

	// RetentionDays is how long to keep messages in SQLite (0 = forever).
	RetentionDays int
}

// DefaultHubConfig returns sensible defaults.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		RingBufferSize: 1000,
		RetentionDays:  7,
	}
}

// Hub fans progress, result and log messages out to SSE and websocket
// subscribers and keeps the most recent ones in a ring buffer.
type Hub struct {
	cfg    HubConfig
	logger *slog.Logger

	mu       sync.RWMutex
	messages []domain.Message
	head     int
	count    int
	seq      uint64

	db *sql.DB

	subMu       sync.RWMutex
	subscribers map[uint64]chan domain.Message
	subSeq      uint64
}

// NewHub creates a hub.
func NewHub(cfg HubConfig, logger *slog.Logger) (*Hub, error) {
	if cfg.RingBufferSize <= 0 {
		cfg.RingBufferSize = 1000
	}

	h := &Hub{
		cfg:         cfg,
		logger:      logger,
		messages:    make([]domain.Message, cfg.RingBufferSize),
		subscribers: make(map[uint64]chan domain.Message),
	}

	if cfg.PersistToSQLite && cfg.SQLitePath != "" {
		if err := h.initSQLite(); err != nil {
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
		logger.Info("message persistence enabled", "path", cfg.SQLitePath)
	}

	return h, nil
}

func (h *Hub) initSQLite() error {
	db, err := sql.Open("sqlite", h.cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	// Persisting happens from many goroutines; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			severity TEXT NOT NULL,
			job_id TEXT,
			request_id TEXT,
			context TEXT,
			message TEXT,
			payload TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);
		CREATE INDEX IF NOT EXISTS idx_messages_job ON messages(job_id);
	`)
	if err != nil {
		db.Close()
		return fmt.Errorf("create table: %w", err)
	}

	h.db = db
	return nil
}

// Close closes the hub's database, if any.
func (h *Hub) Close() error {
	if h.db != nil {
		return h.db.Close()
	}
	return nil
}

// Publish records msg and notifies subscribers.
func (h *Hub) Publish(msg domain.Message) {
	if msg.ID == "" {
		seq := atomic.AddUint64(&h.seq, 1)
		msg.ID = domain.MessageID(fmt.Sprintf("msg_%d_%d", time.Now().UnixNano(), seq))
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.Severity == "" {
		msg.Severity = domain.SeverityInfo
	}

	h.mu.Lock()
	h.messages[h.head] = msg
	h.head = (h.head + 1) % h.cfg.RingBufferSize
	if h.count < h.cfg.RingBufferSize {
		h.count++
	}
	h.mu.Unlock()

	if h.db != nil && msg.Type != domain.MessageTypeProgress {
		go h.persist(msg)
	}

	h.notify(msg)

	if msg.Type == domain.MessageTypeProgress {
		return
	}
	level := slog.LevelInfo
	switch msg.Severity {
	case domain.SeverityWarning:
		level = slog.LevelWarn
	case domain.SeverityError:
		level = slog.LevelError
	}
	h.logger.Log(context.Background(), level, "message published",
		"message_id", msg.ID,
		"type", msg.Type,
		"job_id", msg.JobID,
		"message", msg.Text,
	)
}

// PublishProgress publishes a progress update for a job.
func (h *Hub) PublishProgress(update domain.ProgressUpdate, requestID, requester string) {
	h.Publish(domain.Message{
		Type:      domain.MessageTypeProgress,
		JobID:     update.JobID,
		RequestID: requestID,
		Context:   requester,
		Text:      update.Message,
		Payload:   domain.MarshalPayload(update),
	})
}

// PublishResult publishes the outcome of a job.
func (h *Hub) PublishResult(jobID domain.JobID, requestID, requester string, severity domain.Severity, text string, payload any) {
	h.Publish(domain.Message{
		Type:      domain.MessageTypeResult,
		Severity:  severity,
		JobID:     jobID,
		RequestID: requestID,
		Context:   requester,
		Text:      text,
		Payload:   domain.MarshalPayload(payload),
	})
}

// PublishLog publishes a free-form log line.
func (h *Hub) PublishLog(severity domain.Severity, text string) {
	h.Publish(domain.Message{Type: domain.MessageTypeLog, Severity: severity, Text: text})
}

func (h *Hub) persist(msg domain.Message) {
	_, err := h.db.Exec(`
		INSERT INTO messages (id, type, timestamp, severity, job_id, request_id, context, message, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.Type, msg.Timestamp, msg.Severity, msg.JobID, msg.RequestID, msg.Context, msg.Text, string(msg.Payload))
	if err != nil {
		h.logger.Warn("failed to persist message", "message_id", msg.ID, "error", err)
	}
}

// Recent returns up to n messages matching filter, newest first.
func (h *Hub) Recent(n int, filter domain.MessageFilter) []domain.Message {
	if n <= 0 {
		n = 50
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]domain.Message, 0, min(n, h.count))
	for i := 0; i < h.count && len(result) < n; i++ {
		idx := (h.head - 1 - i + h.cfg.RingBufferSize) % h.cfg.RingBufferSize
		msg := h.messages[idx]
		if msg.ID == "" {
			continue
		}
		if filter.Matches(msg) {
			result = append(result, msg)
		}
	}
	return result
}

// QueryHistorical reads persisted messages, newest first.
func (h *Hub) QueryHistorical(ctx context.Context, filter domain.MessageFilter, limit, offset int) ([]domain.Message, error) {
	if h.db == nil {
		return []domain.Message{}, nil
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	var conditions []string
	var args []any
	if filter.Type != nil {
		conditions = append(conditions, "type = ?")
		args = append(args, *filter.Type)
	}
	if filter.JobID != "" {
		conditions = append(conditions, "job_id = ?")
		args = append(args, filter.JobID)
	}
	if filter.RequestID != "" {
		conditions = append(conditions, "request_id = ?")
		args = append(args, filter.RequestID)
	}
	if filter.Context != "" {
		conditions = append(conditions, "context = ?")
		args = append(args, filter.Context)
	}
	if filter.Since != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, *filter.Since)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	query := fmt.Sprintf(`
		SELECT id, type, timestamp, severity, job_id, request_id, context, message, payload
		FROM messages %s
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`, where)
	args = append(args, limit, offset)

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Message, 0, limit)
	for rows.Next() {
		var msg domain.Message
		var payload sql.NullString
		if err := rows.Scan(&msg.ID, &msg.Type, &msg.Timestamp, &msg.Severity, &msg.JobID, &msg.RequestID, &msg.Context, &msg.Text, &payload); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if payload.Valid && payload.String != "" {
			msg.Payload = json.RawMessage(payload.String)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// Subscribe registers a subscriber. The caller must call Unsubscribe when done.
func (h *Hub) Subscribe() (uint64, <-chan domain.Message) {
	h.subMu.Lock()
	defer h.subMu.Unlock()

	h.subSeq++
	id := h.subSeq
	ch := make(chan domain.Message, 100)
	h.subscribers[id] = ch

	h.logger.Debug("subscriber added", "subscriber_id", id, "total_subscribers", len(h.subscribers))
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id uint64) {
	h.subMu.Lock()
	defer h.subMu.Unlock()

	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
		h.logger.Debug("subscriber removed", "subscriber_id", id, "total_subscribers", len(h.subscribers))
	}
}

func (h *Hub) notify(msg domain.Message) {
	h.subMu.RLock()
	defer h.subMu.RUnlock()

	for id, ch := range h.subscribers {
		select {
		case ch <- msg:
		default:
			h.logger.Warn("subscriber buffer full, dropping message", "subscriber_id", id, "message_id", msg.ID)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.subMu.RLock()
	defer h.subMu.RUnlock()
	return len(h.subscribers)
}

// HubStats describes hub usage.
type HubStats struct {
	BufferSize    int  `json:"buffer_size"`
	BufferUsed    int  `json:"buffer_used"`
	Subscribers   int  `json:"subscribers"`
	SQLiteEnabled bool `json:"sqlite_enabled"`
}

func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	used := h.count
	h.mu.RUnlock()

	return HubStats{
		BufferSize:    h.cfg.RingBufferSize,
		BufferUsed:    used,
		Subscribers:   h.SubscriberCount(),
		SQLiteEnabled: h.db != nil,
	}
}

// CleanupOld removes persisted messages older than the retention period.
func (h *Hub) CleanupOld(ctx context.Context) error {
	if h.db == nil || h.cfg.RetentionDays <= 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -h.cfg.RetentionDays)
	result, err := h.db.ExecContext(ctx, "DELETE FROM messages WHERE timestamp < ?", cutoff)
	if err != nil {
		return fmt.Errorf("delete old messages: %w", err)
	}

	if deleted, _ := result.RowsAffected(); deleted > 0 {
		h.logger.Info("cleaned up old messages", "deleted", deleted, "cutoff", cutoff)
	}
	return nil
}
