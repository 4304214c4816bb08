package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/taskmesh/taskmesh-backend/internal/marketplace/escrow"
	"github.com/taskmesh/taskmesh-backend/internal/marketplace/metrics"
	"github.com/taskmesh/taskmesh-backend/internal/marketplace/repository"
	"github.com/taskmesh/taskmesh-backend/pkg/logging"
	"github.com/taskmesh/taskmesh-backend/pkg/types"
)

// Reconciler applies a ledger-reported terminal outcome to a job using the
// lifecycle controller's conditional update and stat path.
type Reconciler interface {
	ReconcileLedgerOutcome(ctx context.Context, job *types.Job, target types.JobStatus) (bool, error)
}

// LedgerReader is the slice of the escrow client the sweeper needs.
type LedgerReader interface {
	JobStatus(ctx context.Context, ledgerJobID uint64) (escrow.LedgerStatus, error)
}

// Config controls the sweep schedule and the settlement policy.
type Config struct {
	// Schedule is a cron expression. Empty disables the background schedule
	// and leaves only RunOnce.
	Schedule string

	// LenientSettlement treats any ledger-terminal settlement, verified or
	// mismatched, as locally completed. When false a mismatched settlement
	// maps to failed.
	LenientSettlement bool

	SweepTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Schedule:          "@every 1m",
		LenientSettlement: true,
		SweepTimeout:      30 * time.Second,
	}
}

// Sweeper is the safety net for lost confirmations. It periodically scans
// accepted jobs with a bound ledger id, asks the ledger for their current
// status, and corrects any that the ledger has already settled.
type Sweeper struct {
	jobs       repository.JobRepository
	ledger     LedgerReader
	reconciler Reconciler
	logger     logging.Logger
	config     Config

	cron *cron.Cron
}

func New(jobs repository.JobRepository, ledger LedgerReader, reconciler Reconciler, logger logging.Logger, config Config) *Sweeper {
	if config.SweepTimeout <= 0 {
		config.SweepTimeout = DefaultConfig().SweepTimeout
	}
	return &Sweeper{
		jobs:       jobs,
		ledger:     ledger,
		reconciler: reconciler,
		logger:     logger,
		config:     config,
	}
}

// Start schedules the periodic sweep.
func (s *Sweeper) Start() error {
	if s.config.Schedule == "" {
		return nil
	}

	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.config.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.SweepTimeout)
		defer cancel()
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Errorf("Sweep failed: %v", err)
			metrics.SweepRunsTotal.WithLabelValues("error").Inc()
			return
		}
		metrics.SweepRunsTotal.WithLabelValues("ok").Inc()
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.config.Schedule, err)
	}

	s.cron.Start()
	s.logger.Infof("Sweeper scheduled: %s (lenient settlement: %t)", s.config.Schedule, s.config.LenientSettlement)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// RunOnce performs a single sweep and returns how many jobs were corrected.
// Per-job failures are logged and retried by the next sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	jobs, err := s.jobs.ListByStatus(ctx, types.JobStatusAccepted)
	if err != nil {
		return 0, fmt.Errorf("failed to list accepted jobs: %w", err)
	}

	corrected := 0
	for _, job := range jobs {
		if job.LedgerJobID == 0 {
			continue
		}

		status, err := s.ledger.JobStatus(ctx, job.LedgerJobID)
		if err != nil {
			s.logger.Errorf("Failed to read ledger status for job %s (ledger id %d): %v", job.JobID, job.LedgerJobID, err)
			continue
		}
		if !status.IsTerminal() {
			continue
		}

		target := s.targetFor(status)
		applied, err := s.reconciler.ReconcileLedgerOutcome(ctx, job, target)
		if err != nil {
			s.logger.Errorf("Failed to reconcile job %s to %s: %v", job.JobID, target, err)
			continue
		}
		if applied {
			s.logger.Infof("Reconciled job %s to %s from ledger status %s", job.JobID, target, status)
			metrics.SweepCorrectionsTotal.Inc()
			corrected++
		}
	}

	return corrected, nil
}

func (s *Sweeper) targetFor(status escrow.LedgerStatus) types.JobStatus {
	switch status {
	case escrow.LedgerStatusCompletedVerified:
		return types.JobStatusCompleted
	case escrow.LedgerStatusCompletedMismatch:
		if s.config.LenientSettlement {
			return types.JobStatusCompleted
		}
		return types.JobStatusFailed
	case escrow.LedgerStatusTimedOut:
		return types.JobStatusFailed
	case escrow.LedgerStatusCancelled:
		return types.JobStatusCancelled
	}
	return types.JobStatusFailed
}
