package repository

import (
	"context"

	"invest-research-backend/internal/domain/model"
)

type AnalysisJobRepository interface {
	Save(ctx context.Context, qx Tx, job *model.AnalysisJob) error
	FindByID(ctx context.Context, qx Tx, id string) (*model.AnalysisJob, error)
	// FetchAndMarkProcessing claims the oldest pending job, marking it
	// processing inside one transaction so concurrent workers never pick
	// the same job. Returns domain.ErrNotFound when the queue is empty.
	FetchAndMarkProcessing(ctx context.Context) (*model.AnalysisJob, error)
}
