package model

import "time"

type AnalysisJobStatus string

const (
	AnalysisJobStatusPending    AnalysisJobStatus = "pending"
	AnalysisJobStatusProcessing AnalysisJobStatus = "processing"
	AnalysisJobStatusCompleted  AnalysisJobStatus = "completed"
	AnalysisJobStatusFailed     AnalysisJobStatus = "failed"
)

// AnalysisJob is a queued request for an AI research report on a stock or
// fund. Long-running reports (fund intelligence) go through the queue; the
// interactive chat path calls the AI inline.
type AnalysisJob struct {
	ID          string
	Status      AnalysisJobStatus
	UserID      string
	SubjectType SessionType // stock | fund | fund-intelligence
	SubjectID   string      // ticker or fund id
	Prompt      string
	Result      string
	LastError   string
	Retries     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
