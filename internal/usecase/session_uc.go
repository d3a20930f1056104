// File: internal/usecase/session_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"invest-research-backend/internal/config"
	"invest-research-backend/internal/domain"
	"invest-research-backend/internal/domain/model"
	"invest-research-backend/internal/domain/ports/adapter"
	"invest-research-backend/internal/domain/ports/repository"
	ai "invest-research-backend/internal/infra/adapters/ai"
	"invest-research-backend/internal/infra/metrics"
)

// Compile-time check
var _ SessionUseCase = (*sessionUC)(nil)

// GetOrCreateResult carries the extra flags of the get-or-create contract.
type GetOrCreateResult struct {
	Session     *model.ChatSession
	IsNew       bool
	IsTemporary bool
}

type SessionUseCase interface {
	ListSessions(ctx context.Context, userID string, typ model.SessionType, limit int) ([]*model.ChatSession, error)
	GetSessionWithMessages(ctx context.Context, sessionID string) (*model.ChatSession, error)
	CreateSession(ctx context.Context, userID string, typ model.SessionType, contextID, title string) (*model.ChatSession, error)
	AppendMessage(ctx context.Context, sessionID, role, content string) (*model.ChatMessage, error)
	UpdateTitle(ctx context.Context, sessionID, title string) error
	DeleteSession(ctx context.Context, sessionID string) error
	GetOrCreateSession(ctx context.Context, userID string, typ model.SessionType, contextID, title string) (*GetOrCreateResult, error)
	GenerateSessionTitle(ctx context.Context, sessionID string, messages []model.ChatMessage) (string, error)
	SendMessage(ctx context.Context, sessionID, content string) (*model.ChatMessage, error)
}

type sessionUC struct {
	sessions   repository.ChatSessionRepository
	users      repository.UserRepository
	aiSvc      adapter.AIServiceAdapter
	model      string
	titleModel string
	retry      config.RetryConfig
	log        *zerolog.Logger
}

func NewSessionUseCase(
	sessions repository.ChatSessionRepository,
	users repository.UserRepository,
	aiSvc adapter.AIServiceAdapter,
	cfg config.AIConfig,
	log *zerolog.Logger,
) *sessionUC {
	return &sessionUC{
		sessions:   sessions,
		users:      users,
		aiSvc:      aiSvc,
		model:      cfg.DefaultModel,
		titleModel: cfg.TitleModel,
		retry:      cfg.Retry,
		log:        log,
	}
}

func (u *sessionUC) ListSessions(ctx context.Context, userID string, typ model.SessionType, limit int) ([]*model.ChatSession, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	out, err := u.sessions.ListByUser(ctx, nil, userID, typ, limit)
	metrics.IncSessionOp("list", err)
	return out, err
}

// GetSessionWithMessages returns (nil, nil) when no session exists; callers
// map that to their own not-found shape.
func (u *sessionUC) GetSessionWithMessages(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	s, err := u.sessions.FindWithMessages(ctx, nil, sessionID)
	if errors.Is(err, domain.ErrNotFound) {
		metrics.IncSessionOp("get", nil)
		return nil, nil
	}
	metrics.IncSessionOp("get", err)
	return s, err
}

func (u *sessionUC) CreateSession(ctx context.Context, userID string, typ model.SessionType, contextID, title string) (*model.ChatSession, error) {
	s := model.NewChatSession(uuid.NewString(), userID, typ, contextID, title)
	err := u.sessions.Create(ctx, nil, s)
	metrics.IncSessionOp("create", err)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (u *sessionUC) AppendMessage(ctx context.Context, sessionID, role, content string) (*model.ChatMessage, error) {
	if role != "user" && role != "model" {
		return nil, domain.ErrInvalidArgument
	}
	m := &model.ChatMessage{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	err := u.sessions.AppendMessage(ctx, nil, m)
	metrics.IncSessionOp("append", err)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (u *sessionUC) UpdateTitle(ctx context.Context, sessionID, title string) error {
	err := u.sessions.UpdateTitle(ctx, nil, sessionID, title)
	metrics.IncSessionOp("title", err)
	return err
}

func (u *sessionUC) DeleteSession(ctx context.Context, sessionID string) error {
	err := u.sessions.Delete(ctx, nil, sessionID)
	metrics.IncSessionOp("delete", err)
	return err
}

// GetOrCreateSession implements the continue-or-start rule. Identity lookup
// failures never surface: the auth provider and our users table sync with a
// lag, and a hard error here would break the chat UI for fresh accounts.
// The check-then-act sequence is not transactional; two concurrent calls
// with the same triple can race and create two sessions, which the
// list/latest queries tolerate (most-recently-updated wins).
func (u *sessionUC) GetOrCreateSession(ctx context.Context, userID string, typ model.SessionType, contextID, title string) (*GetOrCreateResult, error) {
	if _, err := u.users.FindByID(ctx, nil, userID); err != nil {
		// Lookup error or unknown user: degrade to a request-local session.
		u.log.Warn().Err(err).Str("user_id", userID).Msg("user not verified, issuing temporary session")
		metrics.IncSessionFallback()
		s := model.NewTemporarySession(uuid.NewString(), userID, typ, contextID, title)
		return &GetOrCreateResult{Session: s, IsNew: true, IsTemporary: true}, nil
	}

	existing, err := u.sessions.FindLatestByContext(ctx, nil, userID, typ, contextID)
	if err == nil {
		full, err := u.sessions.FindWithMessages(ctx, nil, existing.ID)
		if err != nil {
			metrics.IncSessionOp("get_or_create", err)
			return nil, err
		}
		metrics.IncSessionOp("get_or_create", nil)
		return &GetOrCreateResult{Session: full, IsNew: false}, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		metrics.IncSessionOp("get_or_create", err)
		return nil, err
	}

	s := model.NewChatSession(uuid.NewString(), userID, typ, contextID, title)
	if err := u.sessions.Create(ctx, nil, s); err != nil {
		metrics.IncSessionOp("get_or_create", err)
		return nil, err
	}
	metrics.IncSessionOp("get_or_create", nil)
	return &GetOrCreateResult{Session: s, IsNew: true}, nil
}

// GenerateSessionTitle asks the model for a short descriptive title based on
// the opening of the conversation. Every failure path returns ("", nil): a
// missing title is cosmetic and must never fail the request that asked.
func (u *sessionUC) GenerateSessionTitle(ctx context.Context, sessionID string, messages []model.ChatMessage) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}
	opening := messages
	if len(opening) > 3 {
		opening = opening[:3]
	}

	var sb strings.Builder
	sb.WriteString("Summarize this investment research conversation in a descriptive title of at most 6 words. Reply with the title only.\n\n")
	for _, m := range opening {
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
	}

	retryCfg := ai.RetryConfig{
		MaxRetries:   u.retry.MaxRetries,
		InitialDelay: u.retry.InitialDelay,
		MaxDelay:     u.retry.MaxDelay,
		Multiplier:   u.retry.Multiplier,
		Operation:    "title",
	}
	raw, err := ai.Retry(ctx, retryCfg, func(ctx context.Context) (string, error) {
		return u.aiSvc.Chat(ctx, u.titleModel, []adapter.Message{{Role: "user", Content: sb.String()}})
	})
	if err != nil {
		u.log.Debug().Err(err).Str("session_id", sessionID).Msg("title generation failed")
		return "", nil
	}

	title := cleanTitle(raw)
	if title == "" {
		return "", nil
	}
	if err := u.sessions.UpdateTitle(ctx, nil, sessionID, title); err != nil {
		u.log.Debug().Err(err).Str("session_id", sessionID).Msg("title persist failed")
		return "", nil
	}
	return title, nil
}

// SendMessage is the interactive chat flow: persist the user's message, ask
// the model with recent history, persist the reply. An AI failure after the
// user message is stored comes back to the caller; the stored message stays.
func (u *sessionUC) SendMessage(ctx context.Context, sessionID, content string) (*model.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domain.ErrInvalidArgument
	}
	s, err := u.sessions.FindWithMessages(ctx, nil, sessionID)
	if err != nil {
		return nil, err
	}

	if _, err := u.AppendMessage(ctx, sessionID, "user", content); err != nil {
		return nil, err
	}

	history := s.RecentMessages(15)
	msgs := make([]adapter.Message, 0, len(history)+1)
	for _, m := range history {
		msgs = append(msgs, adapter.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, adapter.Message{Role: "user", Content: content})

	retryCfg := ai.RetryConfig{
		MaxRetries:   u.retry.MaxRetries,
		InitialDelay: u.retry.InitialDelay,
		MaxDelay:     u.retry.MaxDelay,
		Multiplier:   u.retry.Multiplier,
		Operation:    "chat",
	}
	type chatOut struct {
		reply string
		usage adapter.Usage
	}
	start := time.Now()
	out, err := ai.Retry(ctx, retryCfg, func(ctx context.Context) (chatOut, error) {
		reply, usage, err := u.aiSvc.ChatWithUsage(ctx, u.model, msgs)
		return chatOut{reply: reply, usage: usage}, err
	})
	latencyMs := int(time.Since(start) / time.Millisecond)
	if err != nil {
		metrics.ObserveChatUsage(providerGuess(u.model), u.model, 0, 0, 0, latencyMs, false)
		return nil, err
	}
	metrics.ObserveChatUsage(providerGuess(u.model), u.model,
		out.usage.PromptTokens, out.usage.CompletionTokens, out.usage.TotalTokens, latencyMs, true)

	return u.AppendMessage(ctx, sessionID, "model", out.reply)
}

// cleanTitle strips whitespace and the quote characters models like to wrap
// titles in.
func cleanTitle(s string) string {
	return strings.Trim(strings.TrimSpace(s), "\"'“”‘’")
}

func providerGuess(model string) string {
	switch {
	case strings.HasPrefix(strings.ToLower(model), "gpt"):
		return "openai"
	case strings.HasPrefix(strings.ToLower(model), "gemini"):
		return "gemini"
	default:
		return "unknown"
	}
}
