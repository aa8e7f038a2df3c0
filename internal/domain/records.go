package domain

import (
	"encoding/json"
	"time"
)

// UsageRecord tracks how many chat exchanges a visitor has initiated
// today. Count never decreases within a calendar day; a record from a
// prior day is discarded on load.
type UsageRecord struct {
	Count        int   `json:"count"`
	LastActivity int64 `json:"last_activity"` // epoch milliseconds
}

// Touch stamps the record with the given instant.
func (r *UsageRecord) Touch(now time.Time) {
	r.LastActivity = now.UnixMilli()
}

// SameDay reports whether the record's last activity falls on the same
// local calendar date as now.
func (r *UsageRecord) SameDay(now time.Time) bool {
	last := time.UnixMilli(r.LastActivity).In(now.Location())
	y1, m1, d1 := last.Date()
	y2, m2, d2 := now.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// SessionRecord is the persisted conversation state for one visitor.
// It is only written once a location has been captured and the history
// is non-empty.
type SessionRecord struct {
	MessageHistory []Message `json:"message_history"`
	Location       string    `json:"location"`
}

// UnmarshalJSON tolerates a malformed message history: the location is
// restored and the history left nil so the caller can seed a greeting.
func (s *SessionRecord) UnmarshalJSON(data []byte) error {
	var raw struct {
		MessageHistory json.RawMessage `json:"message_history"`
		Location       string          `json:"location"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Location = raw.Location
	s.MessageHistory = nil
	if len(raw.MessageHistory) > 0 {
		var history []Message
		if err := json.Unmarshal(raw.MessageHistory, &history); err == nil {
			s.MessageHistory = history
		}
	}
	return nil
}
