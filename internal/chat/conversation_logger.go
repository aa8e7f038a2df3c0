package chat

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// ConversationLogEvent is one NDJSON transcript line.
type ConversationLogEvent struct {
	Timestamp string         `json:"timestamp"`
	VisitorID string         `json:"visitor_id"`
	Direction string         `json:"direction"` // outbound: visitor → model, inbound: model → visitor
	EventType string         `json:"event_type"`
	Content   string         `json:"content"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// ConversationLogger records chat transcripts for offline review.
type ConversationLogger interface {
	Log(ConversationLogEvent)
	Close() error
}

// ConversationLogConfig controls transcript logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// NoopConversationLogger discards all events.
type NoopConversationLogger struct{}

func (NoopConversationLogger) Log(ConversationLogEvent) {}
func (NoopConversationLogger) Close() error             { return nil }

type fileConversationLogger struct {
	cfg    ConversationLogConfig
	logger *slog.Logger
	queue  chan ConversationLogEvent
	done   chan struct{}
	once   sync.Once
}

// NewConversationLogger creates an async NDJSON transcript logger
// writing one file per visitor under cfg.Dir, plus an optional global
// file. Returns a no-op logger when disabled.
func NewConversationLogger(cfg ConversationLogConfig, logger *slog.Logger) (ConversationLogger, error) {
	if !cfg.Enabled && !cfg.GlobalEnabled {
		return NoopConversationLogger{}, nil
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Enabled {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return nil, fmt.Errorf("create conversation log dir: %w", err)
		}
	}
	if cfg.GlobalEnabled {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0755); err != nil {
			return nil, fmt.Errorf("create global conversation log dir: %w", err)
		}
	}

	l := &fileConversationLogger{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan ConversationLogEvent, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	go l.run()
	return l, nil
}

// Log enqueues an event, dropping it when the queue is full so chat
// latency never blocks on disk.
func (l *fileConversationLogger) Log(ev ConversationLogEvent) {
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	ev.Content = cleanForReadability(ev.Content)
	select {
	case l.queue <- ev:
	default:
		l.logger.Warn("Conversation log queue full, dropping event", "visitor_id", ev.VisitorID)
	}
}

// Close drains the queue and stops the writer goroutine.
func (l *fileConversationLogger) Close() error {
	l.once.Do(func() { close(l.queue) })
	<-l.done
	return nil
}

func (l *fileConversationLogger) run() {
	defer close(l.done)
	for ev := range l.queue {
		line, err := json.Marshal(ev)
		if err != nil {
			l.logger.Warn("Failed to marshal conversation log event", "error", err)
			continue
		}
		line = append(line, '\n')

		if l.cfg.Enabled {
			path := filepath.Join(l.cfg.Dir, sanitizeLogName(ev.VisitorID)+".ndjson")
			l.appendLine(path, line)
		}
		if l.cfg.GlobalEnabled {
			l.appendLine(l.cfg.GlobalPath, line)
		}
	}
}

func (l *fileConversationLogger) appendLine(path string, line []byte) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		l.logger.Warn("Failed to open conversation log file", "path", path, "error", err)
		return
	}
	if _, err := f.Write(line); err != nil {
		l.logger.Warn("Failed to write conversation log line", "path", path, "error", err)
	}
	if err := f.Close(); err != nil {
		l.logger.Warn("Failed to close conversation log file", "path", path, "error", err)
	}
}

var logNamePattern = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func sanitizeLogName(name string) string {
	clean := logNamePattern.ReplaceAllString(name, "_")
	if clean == "" {
		return "unknown"
	}
	return clean
}

var controlPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]|[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)

// cleanForReadability strips ANSI escapes and control characters so
// transcript lines stay greppable.
func cleanForReadability(s string) string {
	return strings.TrimSpace(controlPattern.ReplaceAllString(s, ""))
}
