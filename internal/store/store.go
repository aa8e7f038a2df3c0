// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/lemmaiot/sme-consultant/internal/domain"
)

// Repository persists per-visitor usage and session records. Records are
// JSON values under namespaced keys (usage:{visitorId}, session:{visitorId}).
// Writes are best-effort; a failed write must never corrupt the caller's
// in-memory state.
type Repository interface {
	// GetUsage retrieves the usage record for a visitor, nil when absent.
	GetUsage(ctx context.Context, visitorID string) (*domain.UsageRecord, error)

	// PutUsage creates or replaces the usage record for a visitor.
	PutUsage(ctx context.Context, visitorID string, rec *domain.UsageRecord) error

	// DeleteUsage removes the usage record for a visitor.
	DeleteUsage(ctx context.Context, visitorID string) error

	// GetSession retrieves the session record for a visitor, nil when absent.
	GetSession(ctx context.Context, visitorID string) (*domain.SessionRecord, error)

	// PutSession creates or replaces the session record for a visitor.
	PutSession(ctx context.Context, visitorID string, rec *domain.SessionRecord) error

	// DeleteSession removes the session record for a visitor.
	DeleteSession(ctx context.Context, visitorID string) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close closes the underlying store.
	Close() error
}
