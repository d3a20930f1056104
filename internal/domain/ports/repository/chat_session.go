package repository

import (
	"context"

	"invest-research-backend/internal/domain/model"
)

// -----------------------------
// Chat Sessions
// -----------------------------

type ChatSessionRepository interface {
	// ListByUser returns sessions newest-updated first, optionally filtered
	// to one type (empty typ means all), capped at limit. Messages are not
	// loaded; Preview carries what the list view needs.
	ListByUser(ctx context.Context, qx Tx, userID string, typ model.SessionType, limit int) ([]*model.ChatSession, error)

	// FindWithMessages loads a session and all of its messages oldest-first.
	// Returns domain.ErrNotFound when no such session exists.
	FindWithMessages(ctx context.Context, qx Tx, id string) (*model.ChatSession, error)

	// FindLatestByContext returns the most-recently-updated session matching
	// (userID, typ, contextID) exactly, without messages.
	FindLatestByContext(ctx context.Context, qx Tx, userID string, typ model.SessionType, contextID string) (*model.ChatSession, error)

	// Create unconditionally inserts a new session row. Duplicate avoidance
	// belongs to the get-or-create use case, not here.
	Create(ctx context.Context, qx Tx, session *model.ChatSession) error

	// AppendMessage inserts a message row, then updates the parent session's
	// preview and updated_at. A missing session surfaces as the driver's
	// foreign-key violation, not masked.
	AppendMessage(ctx context.Context, qx Tx, msg *model.ChatMessage) error

	// UpdateTitle overwrites title only; updated_at and preview are untouched.
	UpdateTitle(ctx context.Context, qx Tx, id, title string) error

	// Delete removes the session; messages go with it via cascade. Deleting
	// an unknown id is not an error.
	Delete(ctx context.Context, qx Tx, id string) error
}
