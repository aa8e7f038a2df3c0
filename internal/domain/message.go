// Package domain contains core domain types for the consultant chat service.
package domain

import (
	"github.com/google/uuid"
)

// Sender identifies who authored a chat message.
type Sender string

const (
	// SenderUser marks a message typed by the visitor.
	SenderUser Sender = "user"
	// SenderAssistant marks a message produced by the consultant.
	SenderAssistant Sender = "assistant"
)

// Source is a grounding citation attached to an assistant message.
// Immutable once attached.
type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Message is one turn in the conversation. The text of an assistant
// message grows while its response stream is active and is frozen once
// the stream completes or errors.
type Message struct {
	ID      string   `json:"id"`
	Sender  Sender   `json:"sender"`
	Text    string   `json:"text"`
	Sources []Source `json:"sources,omitempty"`
}

// NewUserMessage creates a message authored by the visitor.
func NewUserMessage(text string) Message {
	return Message{ID: uuid.NewString(), Sender: SenderUser, Text: text}
}

// NewAssistantMessage creates a message authored by the consultant.
func NewAssistantMessage(text string) Message {
	return Message{ID: uuid.NewString(), Sender: SenderAssistant, Text: text}
}

// Clone returns a copy whose sources slice does not alias the original.
func (m Message) Clone() Message {
	out := m
	if m.Sources != nil {
		out.Sources = make([]Source, len(m.Sources))
		copy(out.Sources, m.Sources)
	}
	return out
}

// Standard assistant copy. The location greeting opens every fresh
// conversation; the ready greeting follows a captured location.
const (
	LocationGreetingText = "To get you the best help, which state in Nigeria are you based in?"
	ReadyGreetingText    = "Thanks! How can I help with your business tech today? Describe your problem or idea."
)

// LocationGreeting returns the assistant message that asks for the
// visitor's state.
func LocationGreeting() Message {
	return NewAssistantMessage(LocationGreetingText)
}

// ReadyGreeting returns the assistant message shown once a location has
// been captured.
func ReadyGreeting() Message {
	return NewAssistantMessage(ReadyGreetingText)
}
