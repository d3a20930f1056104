package model

import (
	"strings"
	"time"
)

// SessionType tags which research feature a session belongs to. It is an
// open string tag: the API boundary validates against the known set, but
// storage accepts any value so a new feature cannot corrupt old rows.
type SessionType string

const (
	SessionTypeFund             SessionType = "fund"
	SessionTypeStock            SessionType = "stock"
	SessionTypeFundIntelligence SessionType = "fund-intelligence"
	SessionTypeDiscovery        SessionType = "discovery"
)

// KnownSessionType reports whether t is one of the declared feature tags.
func KnownSessionType(t SessionType) bool {
	switch t {
	case SessionTypeFund, SessionTypeStock, SessionTypeFundIntelligence, SessionTypeDiscovery:
		return true
	}
	return false
}

// TemporaryIDPrefix marks sessions fabricated when the owning user could not
// be verified. Such sessions are never written to storage.
const TemporaryIDPrefix = "temp-"

// PreviewLimit is the number of content characters kept on the session row
// for list-view display.
const PreviewLimit = 100

// ChatMessage is one turn of a conversation. Messages are immutable once
// created; ordering is by CreatedAt ascending (IDs are ULIDs, so lexical
// order agrees with creation order).
type ChatMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Role      string    `json:"role"` // "user" | "model"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChatSession is the aggregate root for one research conversation, scoped
// to (user, type, context).
type ChatSession struct {
	ID        string        `json:"id"`
	UserID    string        `json:"userId"`
	Type      SessionType   `json:"type"`
	ContextID string        `json:"contextId"`
	Title     string        `json:"title"`
	Preview   string        `json:"preview,omitempty"`
	Messages  []ChatMessage `json:"messages,omitempty"`
	Temporary bool          `json:"temporary,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

func NewChatSession(id, userID string, typ SessionType, contextID, title string) *ChatSession {
	now := time.Now()
	return &ChatSession{
		ID:        id,
		UserID:    userID,
		Type:      typ,
		ContextID: contextID,
		Title:     title,
		Messages:  make([]ChatMessage, 0, 8),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewTemporarySession fabricates a non-persisted session for the degraded
// path where the user row is not visible yet (identity sync lag). It looks
// like a normal session to callers but will not survive a reload.
func NewTemporarySession(id, userID string, typ SessionType, contextID, title string) *ChatSession {
	s := NewChatSession(TemporaryIDPrefix+id, userID, typ, contextID, title)
	s.Temporary = true
	return s
}

// IsTemporary reports whether the session only exists in the current
// request, either by flag or by id prefix.
func (s *ChatSession) IsTemporary() bool {
	return s.Temporary || strings.HasPrefix(s.ID, TemporaryIDPrefix)
}

// RecentMessages returns up to n messages from the tail of the conversation.
func (s *ChatSession) RecentMessages(n int) []ChatMessage {
	if n <= 0 || len(s.Messages) <= n {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-n:]
}

// MessagePreview truncates content for the session list view: first
// PreviewLimit characters plus an ellipsis when longer, unchanged otherwise.
// Runs on runes so multi-byte tickers and names don't get split.
func MessagePreview(content string) string {
	r := []rune(content)
	if len(r) <= PreviewLimit {
		return content
	}
	return string(r[:PreviewLimit]) + "..."
}
