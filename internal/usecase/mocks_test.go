// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"sort"
	"sync"

	"invest-research-backend/internal/domain"
	"invest-research-backend/internal/domain/model"
	"invest-research-backend/internal/domain/ports/adapter"
	"invest-research-backend/internal/domain/ports/repository"
)

// ---- Fakes ----

type fakeAI struct {
	mu       sync.Mutex
	calls    int
	ChatFunc func(ctx context.Context, model string, messages []adapter.Message) (string, error)
}

var _ adapter.AIServiceAdapter = (*fakeAI)(nil)

func (f *fakeAI) ListModels(ctx context.Context) ([]string, error) {
	return []string{"gemini-2.0-flash"}, nil
}

func (f *fakeAI) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	n := 0
	for _, m := range messages {
		n += len(m.Content)
	}
	return n, nil
}

func (f *fakeAI) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.ChatFunc != nil {
		return f.ChatFunc(ctx, model, messages)
	}
	return "ok", nil
}

func (f *fakeAI) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	reply, err := f.Chat(ctx, model, messages)
	return reply, adapter.Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2}, err
}

func (f *fakeAI) chatCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memUserRepo struct {
	mu   sync.Mutex
	byID map[string]*model.User

	FindByIDFunc func(ctx context.Context, qx repository.Tx, id string) (*model.User, error)
}

var _ repository.UserRepository = (*memUserRepo)(nil)

func newMemUserRepo(users ...*model.User) *memUserRepo {
	r := &memUserRepo{byID: map[string]*model.User{}}
	for _, u := range users {
		r.byID[u.ID] = u
	}
	return r
}

func (r *memUserRepo) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.User, error) {
	if r.FindByIDFunc != nil {
		return r.FindByIDFunc(ctx, qx, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

type memSessionRepo struct {
	mu   sync.Mutex
	byID map[string]*model.ChatSession

	CreateFunc      func(ctx context.Context, qx repository.Tx, s *model.ChatSession) error
	UpdateTitleFunc func(ctx context.Context, qx repository.Tx, id, title string) error
}

var _ repository.ChatSessionRepository = (*memSessionRepo)(nil)

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{byID: map[string]*model.ChatSession{}}
}

func (r *memSessionRepo) ListByUser(ctx context.Context, qx repository.Tx, userID string, typ model.SessionType, limit int) ([]*model.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.ChatSession
	for _, s := range r.byID {
		if s.UserID != userID {
			continue
		}
		if typ != "" && s.Type != typ {
			continue
		}
		cp := *s
		cp.Messages = nil
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memSessionRepo) FindWithMessages(ctx context.Context, qx repository.Tx, id string) (*model.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	cp.Messages = append([]model.ChatMessage(nil), s.Messages...)
	return &cp, nil
}

func (r *memSessionRepo) FindLatestByContext(ctx context.Context, qx repository.Tx, userID string, typ model.SessionType, contextID string) (*model.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *model.ChatSession
	for _, s := range r.byID {
		if s.UserID != userID || s.Type != typ || s.ContextID != contextID {
			continue
		}
		if latest == nil || s.UpdatedAt.After(latest.UpdatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	cp := *latest
	cp.Messages = nil
	return &cp, nil
}

func (r *memSessionRepo) Create(ctx context.Context, qx repository.Tx, s *model.ChatSession) error {
	if r.CreateFunc != nil {
		return r.CreateFunc(ctx, qx, s)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.byID[s.ID] = &cp
	return nil
}

func (r *memSessionRepo) AppendMessage(ctx context.Context, qx repository.Tx, m *model.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[m.SessionID]
	if !ok {
		return domain.ErrNotFound
	}
	s.Messages = append(s.Messages, *m)
	s.Preview = model.MessagePreview(m.Content)
	s.UpdatedAt = m.CreatedAt
	return nil
}

func (r *memSessionRepo) UpdateTitle(ctx context.Context, qx repository.Tx, id, title string) error {
	if r.UpdateTitleFunc != nil {
		return r.UpdateTitleFunc(ctx, qx, id, title)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.Title = title
	return nil
}

func (r *memSessionRepo) Delete(ctx context.Context, qx repository.Tx, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id) // idempotent, like ON DELETE CASCADE against a gone row
	return nil
}

func (r *memSessionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

type memJobRepo struct {
	mu   sync.Mutex
	byID map[string]*model.AnalysisJob
}

var _ repository.AnalysisJobRepository = (*memJobRepo)(nil)

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{byID: map[string]*model.AnalysisJob{}}
}

func (r *memJobRepo) Save(ctx context.Context, qx repository.Tx, job *model.AnalysisJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.byID[job.ID] = &cp
	return nil
}

func (r *memJobRepo) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.AnalysisJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *memJobRepo) FetchAndMarkProcessing(ctx context.Context) (*model.AnalysisJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var oldest *model.AnalysisJob
	for _, j := range r.byID {
		if j.Status != model.AnalysisJobStatusPending {
			continue
		}
		if oldest == nil || j.CreatedAt.Before(oldest.CreatedAt) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, domain.ErrNotFound
	}
	oldest.Status = model.AnalysisJobStatusProcessing
	cp := *oldest
	return &cp, nil
}
