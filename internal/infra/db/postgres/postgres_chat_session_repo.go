// File: internal/infra/db/postgres/postgres_chat_session_repo.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"invest-research-backend/internal/domain"
	"invest-research-backend/internal/domain/model"
	"invest-research-backend/internal/domain/ports/repository"
	"invest-research-backend/internal/infra/redis"
)

// ChatSessionRepo is the default (and only) chat session repository.
//
// Tables:
//
//	chat_sessions(id, user_id, session_type, context_id, title, preview, created_at, updated_at)
//	chat_messages(id, session_id REFERENCES chat_sessions ON DELETE CASCADE, role, content, created_at)
var _ repository.ChatSessionRepository = (*ChatSessionRepo)(nil)

type ChatSessionRepo struct {
	pool  *pgxpool.Pool
	cache *redis.SessionCache
}

func NewChatSessionRepo(pool *pgxpool.Pool, cache *redis.SessionCache) *ChatSessionRepo {
	return &ChatSessionRepo{pool: pool, cache: cache}
}

func (r *ChatSessionRepo) ListByUser(ctx context.Context, qx repository.Tx, userID string, typ model.SessionType, limit int) ([]*model.ChatSession, error) {
	if limit <= 0 {
		limit = 20
	}
	const qAll = `
SELECT id, user_id, session_type, context_id, title, preview, created_at, updated_at
  FROM chat_sessions
 WHERE user_id = $1
 ORDER BY updated_at DESC
 LIMIT $2;`
	const qTyped = `
SELECT id, user_id, session_type, context_id, title, preview, created_at, updated_at
  FROM chat_sessions
 WHERE user_id = $1 AND session_type = $2
 ORDER BY updated_at DESC
 LIMIT $3;`

	var (
		rows pgx.Rows
		err  error
	)
	if typ == "" {
		rows, err = queryRows(ctx, r.pool, qx, qAll, userID, limit)
	} else {
		rows, err = queryRows(ctx, r.pool, qx, qTyped, userID, string(typ), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := make([]*model.ChatSession, 0, limit)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *ChatSessionRepo) FindWithMessages(ctx context.Context, qx repository.Tx, id string) (*model.ChatSession, error) {
	// Best-effort cache read; stale entries are invalidated on every append.
	if r.cache != nil && qx == nil {
		if s, err := r.cache.GetSession(ctx, id); err == nil && s != nil {
			return s, nil
		}
	}

	const qs = `
SELECT id, user_id, session_type, context_id, title, preview, created_at, updated_at
  FROM chat_sessions WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, qx, qs, id)
	if err != nil {
		return nil, err
	}
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	const qm = `
SELECT id, session_id, role, content, created_at
  FROM chat_messages WHERE session_id = $1 ORDER BY created_at ASC, id ASC;`
	rows, err := queryRows(ctx, r.pool, qx, qm, id)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m model.ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan msg: %w", err)
		}
		s.Messages = append(s.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}

	if r.cache != nil {
		_ = r.cache.StoreSession(ctx, s)
	}
	return s, nil
}

func (r *ChatSessionRepo) FindLatestByContext(ctx context.Context, qx repository.Tx, userID string, typ model.SessionType, contextID string) (*model.ChatSession, error) {
	const q = `
SELECT id, user_id, session_type, context_id, title, preview, created_at, updated_at
  FROM chat_sessions
 WHERE user_id = $1 AND session_type = $2 AND context_id = $3
 ORDER BY updated_at DESC
 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, qx, q, userID, string(typ), contextID)
	if err != nil {
		return nil, err
	}
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return s, nil
}

func (r *ChatSessionRepo) Create(ctx context.Context, qx repository.Tx, s *model.ChatSession) error {
	const q = `
INSERT INTO chat_sessions (id, user_id, session_type, context_id, title, preview, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,COALESCE($7,NOW()),COALESCE($8,NOW()));`
	var preview sql.NullString
	if s.Preview != "" {
		preview = sql.NullString{String: s.Preview, Valid: true}
	}
	_, err := execSQL(ctx, r.pool, qx, q,
		s.ID, s.UserID, string(s.Type), s.ContextID, s.Title, preview, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSessionCreate, err)
	}
	return nil
}

func (r *ChatSessionRepo) AppendMessage(ctx context.Context, qx repository.Tx, m *model.ChatMessage) error {
	const qi = `
INSERT INTO chat_messages (id, session_id, role, content, created_at)
VALUES ($1,$2,$3,$4,COALESCE($5,NOW()));`
	if _, err := execSQL(ctx, r.pool, qx, qi, m.ID, m.SessionID, m.Role, m.Content, m.CreatedAt); err != nil {
		// A missing parent session is a caller error; the FK violation
		// propagates wrapped but not masked.
		return fmt.Errorf("append message: %w", err)
	}

	const qu = `UPDATE chat_sessions SET preview = $2, updated_at = NOW() WHERE id = $1;`
	if _, err := execSQL(ctx, r.pool, qx, qu, m.SessionID, model.MessagePreview(m.Content)); err != nil {
		return fmt.Errorf("update preview: %w", err)
	}

	if r.cache != nil {
		_ = r.cache.DeleteSession(ctx, m.SessionID)
	}
	return nil
}

func (r *ChatSessionRepo) UpdateTitle(ctx context.Context, qx repository.Tx, id, title string) error {
	// Deliberately leaves preview and updated_at alone.
	const q = `UPDATE chat_sessions SET title = $2 WHERE id = $1;`
	if _, err := execSQL(ctx, r.pool, qx, q, id, title); err != nil {
		return fmt.Errorf("update title: %w", err)
	}
	if r.cache != nil {
		_ = r.cache.DeleteSession(ctx, id)
	}
	return nil
}

func (r *ChatSessionRepo) Delete(ctx context.Context, qx repository.Tx, id string) error {
	// Idempotent; messages go via ON DELETE CASCADE.
	const q = `DELETE FROM chat_sessions WHERE id = $1;`
	if _, err := execSQL(ctx, r.pool, qx, q, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if r.cache != nil {
		_ = r.cache.DeleteSession(ctx, id)
	}
	return nil
}

func scanSession(row pgx.Row) (*model.ChatSession, error) {
	var (
		s       model.ChatSession
		typ     string
		preview sql.NullString
	)
	if err := row.Scan(&s.ID, &s.UserID, &typ, &s.ContextID, &s.Title, &preview, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Type = model.SessionType(typ)
	if preview.Valid {
		s.Preview = preview.String
	}
	return &s, nil
}
