package redis

import (
	"context"
	"encoding/json"
	"time"

	"invest-research-backend/internal/domain/model"
	"invest-research-backend/internal/infra/metrics"
)

// SessionCache is a best-effort JSON cache of loaded sessions (with
// messages). Every write path invalidates, so callers can treat a hit as
// current.
type SessionCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewSessionCache(client RedisClient, ttl time.Duration) *SessionCache {
	return &SessionCache{client: client, ttl: ttl}
}

func key(sessionID string) string { return "chat_session:" + sessionID }

func (c *SessionCache) StoreSession(ctx context.Context, session *model.ChatSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(session.ID), data, c.ttl)
}

func (c *SessionCache) GetSession(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	data, err := c.client.Get(ctx, key(sessionID))
	if err != nil {
		metrics.IncCacheRequest("session", "miss")
		return nil, err
	}

	var session model.ChatSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		metrics.IncCacheRequest("session", "miss")
		return nil, err
	}
	metrics.IncCacheRequest("session", "hit")
	return &session, nil
}

func (c *SessionCache) DeleteSession(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, key(sessionID))
}
