// File: internal/infra/api/server_test.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"invest-research-backend/internal/config"
	"invest-research-backend/internal/domain"
	"invest-research-backend/internal/domain/model"
	"invest-research-backend/internal/usecase"
)

const testSecret = "test-secret"

// ---- Stub use cases ----

type stubSessionUC struct {
	sessions map[string]*model.ChatSession
}

var _ usecase.SessionUseCase = (*stubSessionUC)(nil)

func newStubSessionUC() *stubSessionUC {
	return &stubSessionUC{sessions: map[string]*model.ChatSession{}}
}

func (s *stubSessionUC) ListSessions(ctx context.Context, userID string, typ model.SessionType, limit int) ([]*model.ChatSession, error) {
	var out []*model.ChatSession
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *stubSessionUC) GetSessionWithMessages(ctx context.Context, id string) (*model.ChatSession, error) {
	return s.sessions[id], nil
}

func (s *stubSessionUC) CreateSession(ctx context.Context, userID string, typ model.SessionType, contextID, title string) (*model.ChatSession, error) {
	sess := model.NewChatSession("s-"+contextID, userID, typ, contextID, title)
	s.sessions[sess.ID] = sess
	return sess, nil
}

func (s *stubSessionUC) AppendMessage(ctx context.Context, sessionID, role, content string) (*model.ChatMessage, error) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	m := model.ChatMessage{ID: "m1", SessionID: sessionID, Role: role, Content: content, CreatedAt: time.Now()}
	sess.Messages = append(sess.Messages, m)
	return &m, nil
}

func (s *stubSessionUC) UpdateTitle(ctx context.Context, sessionID, title string) error {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrNotFound
	}
	sess.Title = title
	return nil
}

func (s *stubSessionUC) DeleteSession(ctx context.Context, sessionID string) error {
	delete(s.sessions, sessionID)
	return nil
}

func (s *stubSessionUC) GetOrCreateSession(ctx context.Context, userID string, typ model.SessionType, contextID, title string) (*usecase.GetOrCreateResult, error) {
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.Type == typ && sess.ContextID == contextID {
			return &usecase.GetOrCreateResult{Session: sess}, nil
		}
	}
	sess, _ := s.CreateSession(ctx, userID, typ, contextID, title)
	return &usecase.GetOrCreateResult{Session: sess, IsNew: true}, nil
}

func (s *stubSessionUC) GenerateSessionTitle(ctx context.Context, sessionID string, messages []model.ChatMessage) (string, error) {
	return "Generated Title", nil
}

func (s *stubSessionUC) SendMessage(ctx context.Context, sessionID, content string) (*model.ChatMessage, error) {
	if _, err := s.AppendMessage(ctx, sessionID, "user", content); err != nil {
		return nil, err
	}
	return s.AppendMessage(ctx, sessionID, "model", "reply")
}

type stubAnalysisUC struct{}

var _ usecase.AnalysisUseCase = (*stubAnalysisUC)(nil)

func (stubAnalysisUC) GenerateAnalysis(ctx context.Context, userID string, subjectType model.SessionType, subjectID string) (*usecase.AnalysisReport, error) {
	return &usecase.AnalysisReport{Summary: "fine", Outlook: "hold"}, nil
}

func (stubAnalysisUC) EnqueueAnalysis(ctx context.Context, userID string, subjectType model.SessionType, subjectID string) (*model.AnalysisJob, error) {
	return &model.AnalysisJob{ID: "job-1", Status: model.AnalysisJobStatusPending, UserID: userID}, nil
}

func (stubAnalysisUC) GetJob(ctx context.Context, jobID string) (*model.AnalysisJob, error) {
	if jobID != "job-1" {
		return nil, domain.ErrNotFound
	}
	return &model.AnalysisJob{ID: "job-1", Status: model.AnalysisJobStatusCompleted, UserID: "u1", Result: `{"summary":"fine"}`}, nil
}

// ---- Helpers ----

func newTestServer(t *testing.T) (*httptest.Server, *stubSessionUC) {
	t.Helper()
	l := zerolog.Nop()
	ucs := newStubSessionUC()
	srv := NewServer(ucs, stubAnalysisUC{}, config.ServerConfig{JWTSecret: testSecret, AIRateLimit: 100, AIRateWindow: time.Minute}, nil, &l)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, ucs
}

func mintToken(t *testing.T, sub string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

// ---- Tests ----

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestSessionsRequireAuth(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/sessions", "", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestSessionsRejectBadToken(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/sessions", "not-a-jwt", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestCreateAndGetSession(t *testing.T) {
	ts, _ := newTestServer(t)
	token := mintToken(t, "u1")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/sessions", token, map[string]string{
		"type": "stock", "contextId": "AAPL", "title": "Apple chat",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created model.ChatSession
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	resp2 := doJSON(t, http.MethodGet, ts.URL+"/api/v1/sessions/"+created.ID, token, nil)
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp2.StatusCode)
	}
}

func TestCreateSessionRejectsUnknownType(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/sessions", mintToken(t, "u1"), map[string]string{
		"type": "portfolio", "contextId": "X",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetSessionOfOtherUserIsNotFound(t *testing.T) {
	ts, ucs := newTestServer(t)
	sess, _ := ucs.CreateSession(context.Background(), "owner", model.SessionTypeFund, "FND-1", "")

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/sessions/"+sess.ID, mintToken(t, "intruder"), nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestMutationsOnOtherUsersSessionAreNotFound(t *testing.T) {
	ts, ucs := newTestServer(t)
	sess, _ := ucs.CreateSession(context.Background(), "owner", model.SessionTypeFund, "FND-1", "Before")
	ucs.AppendMessage(context.Background(), sess.ID, "user", "private question")
	token := mintToken(t, "intruder")

	cases := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"send message", http.MethodPost, "/messages", map[string]string{"content": "hi"}},
		{"update title", http.MethodPut, "/title", map[string]string{"title": "Hijacked"}},
		{"generate title", http.MethodPost, "/generate-title", nil},
		{"delete", http.MethodDelete, "", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doJSON(t, tc.method, ts.URL+"/api/v1/sessions/"+sess.ID+tc.path, token, tc.body)
			resp.Body.Close()
			if resp.StatusCode != http.StatusNotFound {
				t.Fatalf("status = %d, want 404", resp.StatusCode)
			}
		})
	}

	kept := ucs.sessions[sess.ID]
	if kept == nil {
		t.Fatal("session was deleted")
	}
	if kept.Title != "Before" {
		t.Fatalf("title = %q, want untouched", kept.Title)
	}
	if len(kept.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(kept.Messages))
	}
}

func TestGetOrCreateEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	token := mintToken(t, "u1")
	body := map[string]string{"type": "fund", "contextId": "FND-1"}

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/sessions/get-or-create", token, body)
	defer resp.Body.Close()
	var first struct {
		Session model.ChatSession `json:"session"`
		IsNew   bool              `json:"isNew"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !first.IsNew {
		t.Fatal("first call should create")
	}

	resp2 := doJSON(t, http.MethodPost, ts.URL+"/api/v1/sessions/get-or-create", token, body)
	defer resp2.Body.Close()
	var second struct {
		Session model.ChatSession `json:"session"`
		IsNew   bool              `json:"isNew"`
	}
	if err := json.NewDecoder(resp2.Body).Decode(&second); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if second.IsNew || second.Session.ID != first.Session.ID {
		t.Fatal("second call should return the same session")
	}
}

func TestDeleteSessionIdempotentOverHTTP(t *testing.T) {
	ts, ucs := newTestServer(t)
	token := mintToken(t, "u1")
	sess, _ := ucs.CreateSession(context.Background(), "u1", model.SessionTypeStock, "AAPL", "")

	for i := 0; i < 2; i++ {
		resp := doJSON(t, http.MethodDelete, ts.URL+"/api/v1/sessions/"+sess.ID, token, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("delete #%d status = %d", i+1, resp.StatusCode)
		}
	}
}

func TestAnalysisEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/analysis", mintToken(t, "u1"), map[string]any{
		"subjectType": "stock", "subjectId": "AAPL",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var report usecase.AnalysisReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Summary == "" {
		t.Fatal("empty report")
	}
}

func TestAnalysisAsyncReturnsJobID(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/analysis", mintToken(t, "u1"), map[string]any{
		"subjectType": "fund-intelligence", "subjectId": "FND-9", "async": true,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var out struct {
		JobID string `json:"jobId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.JobID == "" {
		t.Fatalf("bad job response: %v %+v", err, out)
	}
}
