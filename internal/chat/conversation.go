// Package chat implements the conversation state machine and its HTTP
// and WebSocket transports.
package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lemmaiot/sme-consultant/internal/consultant"
	"github.com/lemmaiot/sme-consultant/internal/domain"
	"github.com/lemmaiot/sme-consultant/internal/store"
)

// State is the lifecycle of one conversation. AwaitingLocation and
// ActiveChat double as the phase; Streaming implies an active chat, so a
// stream while awaiting a location is unrepresentable. The daily limit
// is an orthogonal flag that can trip in any state.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateAwaitingLocation
	StateActiveChat
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateAwaitingLocation:
		return "awaiting_location"
	case StateActiveChat:
		return "active_chat"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// DefaultDailyLimit is the number of chat exchanges a visitor may
// initiate per local calendar day.
const DefaultDailyLimit = 20

// User-facing copy for rejected location input and for stream iteration
// failures.
const (
	LocationErrorText     = "That doesn't look like a valid Nigerian state. Please check your spelling and try again (e.g., 'Lagos', 'Kano', 'Rivers')."
	ConnectivityErrorText = "I'm having trouble connecting right now. Please check your connection or try sending that again in a moment."
)

// StreamEvent is one transport-level notification emitted while a
// submission's response stream is being folded into the conversation.
type StreamEvent struct {
	Type    string          `json:"type"`
	Text    string          `json:"text,omitempty"`
	Sources []domain.Source `json:"sources,omitempty"`
}

// Stream event types.
const (
	EventDelta   = "delta"
	EventSources = "sources"
	EventError   = "error"
)

// EventSink receives stream events in emission order. It is called
// without the conversation lock held; a nil sink discards events.
type EventSink func(StreamEvent)

// Conversation owns the authoritative state for one visitor: message
// history, location-capture phase, daily usage, and the fold of the
// response stream. All persistence goes through it.
type Conversation struct {
	visitorID  string
	repo       store.Repository
	stream     consultant.Streamer
	dailyLimit int
	now        func() time.Time

	mu            sync.Mutex
	state         State
	limitReached  bool
	thinking      bool
	location      string
	locationError string
	usageCount    int
	messages      []domain.Message
	lastActive    time.Time
}

// NewConversation creates an uninitialized conversation for a visitor.
func NewConversation(visitorID string, repo store.Repository, streamer consultant.Streamer, dailyLimit int) *Conversation {
	if dailyLimit <= 0 {
		dailyLimit = DefaultDailyLimit
	}
	return &Conversation{
		visitorID:  visitorID,
		repo:       repo,
		stream:     streamer,
		dailyLimit: dailyLimit,
		now:        time.Now,
		state:      StateUninitialized,
	}
}

// Init restores usage and session state from the store. It runs at most
// once; later calls are no-ops. Load failures degrade to a fresh
// conversation rather than failing.
func (c *Conversation) Init(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateUninitialized {
		return
	}
	c.state = StateLoading
	now := c.now()

	usage, err := c.repo.GetUsage(ctx, c.visitorID)
	if err != nil {
		slog.Warn("Failed to load usage record", "visitor_id", c.visitorID, "error", err)
	}
	if usage != nil {
		if usage.SameDay(now) {
			c.usageCount = usage.Count
			if c.usageCount >= c.dailyLimit {
				c.limitReached = true
			}
		} else if err := c.repo.DeleteUsage(ctx, c.visitorID); err != nil {
			slog.Warn("Failed to discard stale usage record", "visitor_id", c.visitorID, "error", err)
		}
	}

	session, err := c.repo.GetSession(ctx, c.visitorID)
	if err != nil {
		slog.Warn("Failed to load session record", "visitor_id", c.visitorID, "error", err)
	}
	if session != nil && session.Location != "" {
		c.location = session.Location
		c.state = StateActiveChat
		if len(session.MessageHistory) > 0 {
			c.messages = session.MessageHistory
		} else {
			c.messages = []domain.Message{domain.ReadyGreeting()}
		}
	} else {
		c.state = StateAwaitingLocation
		c.messages = []domain.Message{domain.LocationGreeting()}
	}
	c.lastActive = now
}

// persistLocked rewrites the usage record unconditionally and the
// session record once a location is captured and history is non-empty.
// Write failures are logged and never touch in-memory state. Callers
// hold c.mu.
func (c *Conversation) persistLocked(ctx context.Context) {
	usage := &domain.UsageRecord{Count: c.usageCount}
	usage.Touch(c.now())
	if err := c.repo.PutUsage(ctx, c.visitorID, usage); err != nil {
		slog.Warn("Failed to persist usage record", "visitor_id", c.visitorID, "error", err)
	}

	if c.location != "" && len(c.messages) > 0 {
		session := &domain.SessionRecord{Location: c.location, MessageHistory: c.messages}
		if err := c.repo.PutSession(ctx, c.visitorID, session); err != nil {
			slog.Warn("Failed to persist session record", "visitor_id", c.visitorID, "error", err)
		}
	}
}

func (c *Conversation) cloneMessagesLocked() []domain.Message {
	out := make([]domain.Message, len(c.messages))
	for i, msg := range c.messages {
		out[i] = msg.Clone()
	}
	return out
}

// AwaitingLocation reports whether the next submission is interpreted
// as a location answer.
func (c *Conversation) AwaitingLocation() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateAwaitingLocation
}

// CanAccept reports whether a submission would currently be accepted,
// with a machine-readable reason when it would not. The answer can go
// stale; Submit re-checks under the lock.
func (c *Conversation) CanAccept() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.limitReached:
		return false, "limit_reached"
	case c.state == StateUninitialized || c.state == StateLoading:
		return false, "loading"
	case c.state == StateStreaming:
		return false, "busy"
	default:
		return true, ""
	}
}

// Submit handles one user submission and returns whether it was
// accepted into processing. While awaiting a location it validates the
// input against the state vocabulary; in active chat it appends the
// message, spends quota, and folds the response stream, forwarding
// events to sink as they arrive. Submit blocks until folding concludes.
func (c *Conversation) Submit(ctx context.Context, text string, sink EventSink) bool {
	trimmed := strings.TrimSpace(text)

	c.mu.Lock()
	if trimmed == "" || c.limitReached ||
		c.state == StateUninitialized || c.state == StateLoading || c.state == StateStreaming {
		c.mu.Unlock()
		return false
	}
	c.lastActive = c.now()

	if c.state == StateAwaitingLocation {
		canonical, ok := domain.CanonicalState(trimmed)
		if !ok {
			c.locationError = LocationErrorText
			c.mu.Unlock()
			return false
		}
		c.locationError = ""
		c.location = canonical
		c.state = StateActiveChat
		c.messages = append(c.messages, domain.NewUserMessage(canonical), domain.ReadyGreeting())
		c.persistLocked(ctx)
		c.mu.Unlock()
		return true
	}

	c.messages = append(c.messages, domain.NewUserMessage(trimmed))
	c.usageCount++
	if c.usageCount >= c.dailyLimit {
		c.limitReached = true
	}
	c.state = StateStreaming
	c.thinking = true
	history := c.cloneMessagesLocked()
	location := c.location
	c.persistLocked(ctx)
	c.mu.Unlock()

	c.consume(ctx, trimmed, history, location, sink)
	return true
}

// consume folds the response stream into a single new assistant
// message, strictly in emission order. Every path out of here leaves
// Streaming and clears the thinking indicator.
func (c *Conversation) consume(ctx context.Context, prompt string, history []domain.Message, location string, sink EventSink) {
	emit := func(ev StreamEvent) {
		if sink != nil {
			sink(ev)
		}
	}

	defer func() {
		c.mu.Lock()
		c.thinking = false
		c.state = StateActiveChat
		c.lastActive = c.now()
		c.mu.Unlock()
	}()

	assistantIdx := -1

	for frag, err := range c.stream.Stream(ctx, prompt, history, location) {
		if err != nil {
			slog.Error("Consultant stream iteration failed", "visitor_id", c.visitorID, "error", err)
			c.mu.Lock()
			c.thinking = false
			if assistantIdx < 0 {
				c.messages = append(c.messages, domain.NewAssistantMessage(ConnectivityErrorText))
			} else {
				c.messages[assistantIdx].Text = ConnectivityErrorText
			}
			c.persistLocked(ctx)
			c.mu.Unlock()
			emit(StreamEvent{Type: EventError, Text: ConnectivityErrorText})
			return
		}

		c.mu.Lock()
		if assistantIdx < 0 {
			c.thinking = false
			c.messages = append(c.messages, domain.NewAssistantMessage(""))
			assistantIdx = len(c.messages) - 1
		}

		var ev StreamEvent
		terminal := false
		switch {
		case frag.Err != "":
			c.messages[assistantIdx].Text = frag.Err
			ev = StreamEvent{Type: EventError, Text: frag.Err}
			terminal = true
		case frag.Sources != nil:
			sources := make([]domain.Source, len(frag.Sources))
			copy(sources, frag.Sources)
			c.messages[assistantIdx].Sources = sources
			ev = StreamEvent{Type: EventSources, Sources: frag.Sources}
		case frag.Text != "":
			c.messages[assistantIdx].Text += frag.Text
			ev = StreamEvent{Type: EventDelta, Text: frag.Text}
		default:
			c.mu.Unlock()
			continue
		}
		c.persistLocked(ctx)
		c.mu.Unlock()

		emit(ev)
		if terminal {
			return
		}
	}
}

// Clear resets the conversation to the location-capture phase and
// removes the persisted session. Daily usage is untouched: the quota is
// per-day, not per-conversation. Returns false while loading or
// streaming.
func (c *Conversation) Clear(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateUninitialized || c.state == StateLoading || c.state == StateStreaming {
		return false
	}

	if err := c.repo.DeleteSession(ctx, c.visitorID); err != nil {
		slog.Warn("Failed to delete session record", "visitor_id", c.visitorID, "error", err)
	}
	c.location = ""
	c.locationError = ""
	c.state = StateAwaitingLocation
	c.messages = []domain.Message{domain.LocationGreeting()}
	c.lastActive = c.now()
	c.persistLocked(ctx)
	return true
}

// idle reports whether the conversation has been inactive for longer
// than maxIdle and is safe to evict from memory.
func (c *Conversation) idle(maxIdle time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != StateStreaming && c.now().Sub(c.lastActive) > maxIdle
}
