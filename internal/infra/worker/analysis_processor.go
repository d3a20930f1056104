// File: internal/infra/worker/analysis_processor.go
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"invest-research-backend/internal/domain"
)

// JobRunner claims and completes one queued analysis job per call.
type JobRunner interface {
	ProcessNextJob(ctx context.Context) error
}

// AnalysisProcessor polls the analysis queue and hands claimed jobs to the
// pool. Claiming uses row locks, so several replicas can run this safely.
type AnalysisProcessor struct {
	runner JobRunner
	poll   time.Duration
	log    *zerolog.Logger
}

func NewAnalysisProcessor(runner JobRunner, poll time.Duration, log *zerolog.Logger) *AnalysisProcessor {
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	return &AnalysisProcessor{runner: runner, poll: poll, log: log}
}

// Start runs the poll loop until ctx is cancelled. Run it in a goroutine.
func (p *AnalysisProcessor) Start(ctx context.Context, pool *Pool) {
	p.log.Info().Msg("analysis processor started")
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("analysis processor stopping")
			return
		case <-ticker.C:
			_ = pool.Submit(func(ctx context.Context) error {
				start := time.Now()
				err := p.runner.ProcessNextJob(ctx)
				if err != nil {
					if errors.Is(err, domain.ErrNotFound) {
						return nil // queue empty
					}
					p.log.Error().Err(err).Msg("analysis job processing failed")
					return nil
				}
				p.log.Info().Dur("duration_ms", time.Since(start)).Msg("analysis job finished")
				return nil
			})
		}
	}
}
