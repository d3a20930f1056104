// File: internal/usecase/analysis_uc.go
package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"invest-research-backend/internal/config"
	"invest-research-backend/internal/domain"
	"invest-research-backend/internal/domain/model"
	"invest-research-backend/internal/domain/ports/adapter"
	"invest-research-backend/internal/domain/ports/repository"
	ai "invest-research-backend/internal/infra/adapters/ai"
	"invest-research-backend/internal/infra/metrics"
)

var _ AnalysisUseCase = (*analysisUC)(nil)

// AnalysisReport is the structured shape we require from the model; anything
// that does not parse into it counts as a failed generation.
type AnalysisReport struct {
	Summary   string   `json:"summary"`
	Strengths []string `json:"strengths"`
	Risks     []string `json:"risks"`
	Outlook   string   `json:"outlook"`
}

type AnalysisUseCase interface {
	// GenerateAnalysis runs a report synchronously with retries.
	GenerateAnalysis(ctx context.Context, userID string, subjectType model.SessionType, subjectID string) (*AnalysisReport, error)
	// EnqueueAnalysis queues a report for background generation.
	EnqueueAnalysis(ctx context.Context, userID string, subjectType model.SessionType, subjectID string) (*model.AnalysisJob, error)
	GetJob(ctx context.Context, jobID string) (*model.AnalysisJob, error)
}

type analysisUC struct {
	jobs  repository.AnalysisJobRepository
	aiSvc adapter.AIServiceAdapter
	model string
	retry config.RetryConfig
	log   *zerolog.Logger
}

func NewAnalysisUseCase(
	jobs repository.AnalysisJobRepository,
	aiSvc adapter.AIServiceAdapter,
	cfg config.AIConfig,
	log *zerolog.Logger,
) *analysisUC {
	return &analysisUC{
		jobs:  jobs,
		aiSvc: aiSvc,
		model: cfg.DefaultModel,
		retry: cfg.Retry,
		log:   log,
	}
}

func analysisPrompt(subjectType model.SessionType, subjectID string) string {
	var subject string
	switch subjectType {
	case model.SessionTypeFund, model.SessionTypeFundIntelligence:
		subject = fmt.Sprintf("the fund %q", subjectID)
	default:
		subject = fmt.Sprintf("the stock %q", subjectID)
	}
	return fmt.Sprintf(
		"Write an investment research report on %s. Respond with JSON only, "+
			"no prose around it, matching this shape: "+
			`{"summary": string, "strengths": [string], "risks": [string], "outlook": string}`,
		subject,
	)
}

func (u *analysisUC) GenerateAnalysis(ctx context.Context, userID string, subjectType model.SessionType, subjectID string) (*AnalysisReport, error) {
	if subjectID == "" {
		return nil, domain.ErrInvalidArgument
	}
	report, _, err := u.generate(ctx, subjectType, subjectID)
	return report, err
}

func (u *analysisUC) generate(ctx context.Context, subjectType model.SessionType, subjectID string) (*AnalysisReport, string, error) {
	retryCfg := ai.RetryConfig{
		MaxRetries:   u.retry.MaxRetries,
		InitialDelay: u.retry.InitialDelay,
		MaxDelay:     u.retry.MaxDelay,
		Multiplier:   u.retry.Multiplier,
		Operation:    "analysis",
	}
	raw, err := ai.Retry(ctx, retryCfg, func(ctx context.Context) (string, error) {
		return u.aiSvc.Chat(ctx, u.model, []adapter.Message{
			{Role: "user", Content: analysisPrompt(subjectType, subjectID)},
		})
	})
	if err != nil {
		return nil, "", err
	}

	cleaned := StripCodeFences(raw)
	var report AnalysisReport
	if err := json.Unmarshal([]byte(cleaned), &report); err != nil {
		return nil, "", fmt.Errorf("%w: analysis response is not valid JSON: %v", domain.ErrInvalidArgument, err)
	}
	return &report, cleaned, nil
}

func (u *analysisUC) EnqueueAnalysis(ctx context.Context, userID string, subjectType model.SessionType, subjectID string) (*model.AnalysisJob, error) {
	if subjectID == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	job := &model.AnalysisJob{
		ID:          uuid.NewString(),
		Status:      model.AnalysisJobStatusPending,
		UserID:      userID,
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Prompt:      analysisPrompt(subjectType, subjectID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := u.jobs.Save(ctx, nil, job); err != nil {
		return nil, err
	}
	metrics.IncAnalysisJob("enqueued")
	return job, nil
}

func (u *analysisUC) GetJob(ctx context.Context, jobID string) (*model.AnalysisJob, error) {
	return u.jobs.FindByID(ctx, nil, jobID)
}

// ProcessNextJob claims one pending job and runs it to completion or failure.
// Returns domain.ErrNotFound when the queue is empty; the worker treats that
// as "sleep until the next tick".
func (u *analysisUC) ProcessNextJob(ctx context.Context) error {
	job, err := u.jobs.FetchAndMarkProcessing(ctx)
	if err != nil {
		return err
	}

	_, cleaned, genErr := u.generate(ctx, job.SubjectType, job.SubjectID)
	job.UpdatedAt = time.Now()
	if genErr != nil {
		job.Status = model.AnalysisJobStatusFailed
		job.LastError = genErr.Error()
		job.Retries++
		metrics.IncAnalysisJob("failed")
	} else {
		job.Status = model.AnalysisJobStatusCompleted
		job.Result = cleaned
		job.LastError = ""
		metrics.IncAnalysisJob("completed")
	}
	if err := u.jobs.Save(ctx, nil, job); err != nil {
		u.log.Error().Err(err).Str("job_id", job.ID).Msg("failed to persist job outcome")
		return err
	}
	return nil
}

// StripCodeFences removes a surrounding markdown code fence (``` or
// ```json) that models often wrap JSON payloads in.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		// drop the language tag line, e.g. "json"
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
