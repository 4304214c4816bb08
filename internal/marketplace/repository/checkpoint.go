package repository

import (
	"context"

	"github.com/gocql/gocql"

	"github.com/taskmesh/taskmesh-backend/internal/marketplace/repository/queries"
	"github.com/taskmesh/taskmesh-backend/pkg/database"
	"github.com/taskmesh/taskmesh-backend/pkg/logging"
)

type scyllaCheckpointRepository struct {
	db     *database.Connection
	logger logging.Logger
}

var _ CheckpointRepository = (*scyllaCheckpointRepository)(nil)

func (r *scyllaCheckpointRepository) GetLastProcessedBlock(ctx context.Context) (uint64, error) {
	var block int64
	err := r.db.Session().Query(queries.GetSyncCheckpoint).WithContext(ctx).Scan(&block)
	if err == gocql.ErrNotFound {
		// First run, start from the beginning the config dictates.
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(block), nil
}

func (r *scyllaCheckpointRepository) SetLastProcessedBlock(ctx context.Context, block uint64) error {
	return r.db.RetryableExec(ctx, queries.SetSyncCheckpoint, int64(block))
}
