package repository

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/gocql/gocql"

	"github.com/taskmesh/taskmesh-backend/internal/marketplace/repository/queries"
	"github.com/taskmesh/taskmesh-backend/pkg/database"
	"github.com/taskmesh/taskmesh-backend/pkg/logging"
	"github.com/taskmesh/taskmesh-backend/pkg/types"
)

type scyllaTransactionRepository struct {
	db     *database.Connection
	logger logging.Logger
}

var _ TransactionRepository = (*scyllaTransactionRepository)(nil)

func (r *scyllaTransactionRepository) CreatePending(ctx context.Context, rec *types.TransactionRecord) error {
	applied, err := r.insertIfAbsent(ctx, rec)
	if err != nil {
		return err
	}
	if !applied {
		// The indexer can observe the hash first; the record already exists,
		// which satisfies exactly-one-record-per-hash.
		r.logger.Debugf("Transaction %s already recorded", rec.TxHash)
	}
	return nil
}

func (r *scyllaTransactionRepository) insertIfAbsent(ctx context.Context, rec *types.TransactionRecord) (bool, error) {
	gasFee := rec.GasFee
	if gasFee == nil {
		gasFee = big.NewInt(0)
	}
	applied, err := r.db.RetryableMapScanCAS(ctx, queries.InsertTransactionIfAbsent,
		[]interface{}{
			rec.TxHash, rec.AgentID, string(rec.Action), string(rec.Status),
			int64(rec.BlockNumber), gasFee, rec.Metadata, rec.ErrorCause,
			rec.CreatedAt, rec.UpdatedAt,
		},
		map[string]interface{}{},
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert transaction %s: %w", rec.TxHash, err)
	}
	return applied, nil
}

func (r *scyllaTransactionRepository) MarkConfirmed(ctx context.Context, txHash string, blockNumber uint64, gasFee *big.Int) error {
	return r.advanceStatus(ctx, txHash, types.TxStatusConfirmed, blockNumber, gasFee, "")
}

func (r *scyllaTransactionRepository) MarkFailed(ctx context.Context, txHash, cause string) error {
	return r.advanceStatus(ctx, txHash, types.TxStatusFailed, 0, big.NewInt(0), cause)
}

// advanceStatus moves pending -> terminal. The IF guard keeps the transition
// monotonic: a record already confirmed or failed is left alone.
func (r *scyllaTransactionRepository) advanceStatus(ctx context.Context, txHash string, to types.TxStatus, blockNumber uint64, gasFee *big.Int, cause string) error {
	if gasFee == nil {
		gasFee = big.NewInt(0)
	}
	var prev string
	applied, err := r.db.RetryableScanCAS(ctx, queries.UpdateTransactionStatus,
		[]interface{}{string(to), int64(blockNumber), gasFee, cause, time.Now().UTC(), txHash, string(types.TxStatusPending)},
		&prev,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction %s to %s: %w", txHash, to, err)
	}
	if !applied {
		r.logger.Debugf("Transaction %s already in state %s, not moving to %s", txHash, prev, to)
	}
	return nil
}

func (r *scyllaTransactionRepository) UpsertFromEvent(ctx context.Context, rec *types.TransactionRecord) error {
	applied, err := r.insertIfAbsent(ctx, rec)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	// Record exists; only advance, never regress.
	existing, err := r.GetByHash(ctx, rec.TxHash)
	if err != nil {
		return err
	}
	if rec.Status.Rank() <= existing.Status.Rank() {
		return nil
	}
	switch rec.Status {
	case types.TxStatusConfirmed:
		return r.MarkConfirmed(ctx, rec.TxHash, rec.BlockNumber, rec.GasFee)
	case types.TxStatusFailed:
		return r.MarkFailed(ctx, rec.TxHash, rec.ErrorCause)
	}
	return nil
}

func (r *scyllaTransactionRepository) GetByHash(ctx context.Context, txHash string) (*types.TransactionRecord, error) {
	var (
		rec         types.TransactionRecord
		action      string
		status      string
		blockNumber int64
	)
	rec.GasFee = new(big.Int)

	err := r.db.Session().Query(queries.GetTransaction, txHash).WithContext(ctx).Scan(
		&rec.TxHash, &rec.AgentID, &action, &status,
		&blockNumber, rec.GasFee, &rec.Metadata, &rec.ErrorCause,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err == gocql.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rec.Action = types.TxAction(action)
	rec.Status = types.TxStatus(status)
	rec.BlockNumber = uint64(blockNumber)
	return &rec, nil
}
