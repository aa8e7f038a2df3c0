package chat

import (
	"github.com/lemmaiot/sme-consultant/internal/domain"
	"github.com/lemmaiot/sme-consultant/internal/markdown"
)

// MessageView is a read-only message snapshot for the presentation
// layer, with the body pre-rendered to safe HTML.
type MessageView struct {
	ID      string          `json:"id"`
	Sender  domain.Sender   `json:"sender"`
	Text    string          `json:"text"`
	HTML    string          `json:"html"`
	Sources []domain.Source `json:"sources,omitempty"`
}

// Snapshot is the state contract consumed by the presentation layer.
type Snapshot struct {
	Messages      []MessageView `json:"messages"`
	State         string        `json:"state"`
	Phase         string        `json:"phase"`
	Thinking      bool          `json:"thinking"`
	Location      string        `json:"location,omitempty"`
	LocationError string        `json:"location_error,omitempty"`
	UsageCount    int           `json:"usage_count"`
	UsageLeft     int           `json:"usage_left"`
	DailyLimit    int           `json:"daily_limit"`
	LimitReached  bool          `json:"limit_reached"`
}

// Snapshot returns a read-only copy of the conversation state.
func (c *Conversation) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	views := make([]MessageView, len(c.messages))
	for i, msg := range c.messages {
		clone := msg.Clone()
		views[i] = MessageView{
			ID:      clone.ID,
			Sender:  clone.Sender,
			Text:    clone.Text,
			HTML:    markdown.Render(clone.Text),
			Sources: clone.Sources,
		}
	}

	phase := "awaiting_location"
	if c.state == StateActiveChat || c.state == StateStreaming {
		phase = "active_chat"
	}

	left := c.dailyLimit - c.usageCount
	if left < 0 {
		left = 0
	}

	return Snapshot{
		Messages:      views,
		State:         c.state.String(),
		Phase:         phase,
		Thinking:      c.thinking,
		Location:      c.location,
		LocationError: c.locationError,
		UsageCount:    c.usageCount,
		UsageLeft:     left,
		DailyLimit:    c.dailyLimit,
		LimitReached:  c.limitReached,
	}
}
