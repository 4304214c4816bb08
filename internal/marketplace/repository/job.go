package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/gocql/gocql"

	"github.com/taskmesh/taskmesh-backend/internal/marketplace/repository/queries"
	"github.com/taskmesh/taskmesh-backend/pkg/database"
	"github.com/taskmesh/taskmesh-backend/pkg/logging"
	"github.com/taskmesh/taskmesh-backend/pkg/types"
)

type scyllaJobRepository struct {
	db     *database.Connection
	logger logging.Logger
}

var _ JobRepository = (*scyllaJobRepository)(nil)

func (r *scyllaJobRepository) Create(ctx context.Context, job *types.Job) error {
	if err := r.db.RetryableExec(ctx, queries.CreateJob,
		job.JobID,
		int64(job.LedgerJobID),
		job.PosterID,
		job.ExecutorID,
		job.CapabilityTag,
		job.Description,
		job.Payment,
		job.Collateral,
		job.Deadline,
		job.ExpectedToken,
		job.ManualReview,
		string(job.Result),
		job.ResultToken,
		string(job.Status),
		job.PostTxHash,
		job.AcceptTxHash,
		job.SettleTxHash,
		job.CreatedAt,
		job.UpdatedAt,
	); err != nil {
		r.logger.Errorf("Failed to create job %s: %v", job.JobID, err)
		return err
	}
	return nil
}

func (r *scyllaJobRepository) Get(ctx context.Context, jobID string) (*types.Job, error) {
	job, err := scanJob(r.db.Session().Query(queries.GetJob, jobID).WithContext(ctx))
	if err == gocql.ErrNotFound {
		return nil, ErrNotFound
	}
	return job, err
}

func (r *scyllaJobRepository) ListByStatus(ctx context.Context, status types.JobStatus) ([]*types.Job, error) {
	iter := r.db.RetryableIter(ctx, queries.ListJobsByStatus, string(status))
	defer func() {
		if err := iter.Close(); err != nil {
			r.logger.Errorf("Error closing job iterator: %v", err)
		}
	}()

	var jobs []*types.Job
	for {
		job, ok := scanJobFromIter(iter)
		if !ok {
			break
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (r *scyllaJobRepository) BindExecutor(ctx context.Context, jobID, executorID string) (bool, error) {
	var prev string
	applied, err := r.db.RetryableScanCAS(ctx, queries.BindExecutor,
		[]interface{}{executorID, string(types.JobStatusAccepted), time.Now().UTC(), jobID, string(types.JobStatusPending)},
		&prev,
	)
	if err != nil {
		return false, fmt.Errorf("failed to bind executor on job %s: %w", jobID, err)
	}
	if !applied {
		r.logger.Debugf("BindExecutor on job %s lost the race, current status %s", jobID, prev)
	}
	return applied, nil
}

func (r *scyllaJobRepository) TransitionStatus(ctx context.Context, jobID string, from, to types.JobStatus) (bool, error) {
	var prev string
	applied, err := r.db.RetryableScanCAS(ctx, queries.TransitionJobStatus,
		[]interface{}{string(to), time.Now().UTC(), jobID, string(from)},
		&prev,
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition job %s %s->%s: %w", jobID, from, to, err)
	}
	return applied, nil
}

func (r *scyllaJobRepository) RecordSubmission(ctx context.Context, jobID string, result json.RawMessage, token string, from, to types.JobStatus) (bool, error) {
	var prev string
	applied, err := r.db.RetryableScanCAS(ctx, queries.RecordJobSubmission,
		[]interface{}{string(result), token, string(to), time.Now().UTC(), jobID, string(from)},
		&prev,
	)
	if err != nil {
		return false, fmt.Errorf("failed to record submission on job %s: %w", jobID, err)
	}
	return applied, nil
}

func (r *scyllaJobRepository) SetTxHash(ctx context.Context, jobID string, action types.TxAction, txHash string) error {
	switch action {
	case types.TxActionAccept:
		return r.db.RetryableExec(ctx, queries.SetJobAcceptTxHash, txHash, time.Now().UTC(), jobID)
	case types.TxActionSubmit:
		return r.db.RetryableExec(ctx, queries.SetJobSettleTxHash, txHash, time.Now().UTC(), jobID)
	default:
		return fmt.Errorf("no tx hash column for action %s", action)
	}
}

func scanJob(q *gocql.Query) (*types.Job, error) {
	var (
		job         types.Job
		ledgerJobID int64
		result      string
		status      string
	)
	job.Payment = new(big.Int)
	job.Collateral = new(big.Int)

	if err := q.Scan(
		&job.JobID, &ledgerJobID, &job.PosterID, &job.ExecutorID,
		&job.CapabilityTag, &job.Description, job.Payment, job.Collateral,
		&job.Deadline, &job.ExpectedToken, &job.ManualReview,
		&result, &job.ResultToken, &status,
		&job.PostTxHash, &job.AcceptTxHash, &job.SettleTxHash,
		&job.CreatedAt, &job.UpdatedAt,
	); err != nil {
		return nil, err
	}

	job.LedgerJobID = uint64(ledgerJobID)
	job.Result = json.RawMessage(result)
	job.Status = types.JobStatus(status)
	return &job, nil
}

func scanJobFromIter(iter *gocql.Iter) (*types.Job, bool) {
	var (
		job         types.Job
		ledgerJobID int64
		result      string
		status      string
	)
	job.Payment = new(big.Int)
	job.Collateral = new(big.Int)

	if !iter.Scan(
		&job.JobID, &ledgerJobID, &job.PosterID, &job.ExecutorID,
		&job.CapabilityTag, &job.Description, job.Payment, job.Collateral,
		&job.Deadline, &job.ExpectedToken, &job.ManualReview,
		&result, &job.ResultToken, &status,
		&job.PostTxHash, &job.AcceptTxHash, &job.SettleTxHash,
		&job.CreatedAt, &job.UpdatedAt,
	) {
		return nil, false
	}

	job.LedgerJobID = uint64(ledgerJobID)
	job.Result = json.RawMessage(result)
	job.Status = types.JobStatus(status)
	return &job, true
}
