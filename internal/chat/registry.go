package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lemmaiot/sme-consultant/internal/consultant"
	"github.com/lemmaiot/sme-consultant/internal/store"
)

// Registry hands out one Conversation per visitor, creating and
// initializing it lazily on first use. Evicted conversations are rebuilt
// from the store on the next request.
type Registry struct {
	repo       store.Repository
	stream     consultant.Streamer
	dailyLimit int

	mu            sync.Mutex
	conversations map[string]*Conversation
}

// NewRegistry creates a conversation registry.
func NewRegistry(repo store.Repository, streamer consultant.Streamer, dailyLimit int) *Registry {
	return &Registry{
		repo:          repo,
		stream:        streamer,
		dailyLimit:    dailyLimit,
		conversations: make(map[string]*Conversation),
	}
}

// Get returns the conversation for a visitor, initialized and ready.
func (r *Registry) Get(ctx context.Context, visitorID string) *Conversation {
	r.mu.Lock()
	conv, ok := r.conversations[visitorID]
	if !ok {
		conv = NewConversation(visitorID, r.repo, r.stream, r.dailyLimit)
		r.conversations[visitorID] = conv
	}
	r.mu.Unlock()

	conv.Init(ctx)
	return conv
}

// evictIdle drops conversations inactive for longer than maxIdle and
// returns how many were removed. Streaming conversations are never
// evicted.
func (r *Registry) evictIdle(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for visitorID, conv := range r.conversations {
		if conv.idle(maxIdle) {
			delete(r.conversations, visitorID)
			evicted++
		}
	}
	return evicted
}

// StartEviction runs a background sweep that drops idle conversations
// from memory until ctx is cancelled. State survives in the store.
func (r *Registry) StartEviction(ctx context.Context, interval, maxIdle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.evictIdle(maxIdle); n > 0 {
					slog.Info("Evicted idle conversations", "count", n)
				}
			}
		}
	}()
}
