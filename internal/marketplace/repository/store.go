// Package repository implements the projection store: a fast, queryable
// materialized view of job, transaction, and agent state. It is not
// authoritative; the escrow contract is. Correctness of concurrent writes
// rests on the lightweight-transaction guards in this package.
package repository

import (
	"github.com/taskmesh/taskmesh-backend/pkg/database"
	"github.com/taskmesh/taskmesh-backend/pkg/logging"
)

// Store bundles the gocql-backed repositories over one connection.
type Store struct {
	Jobs         JobRepository
	Transactions TransactionRepository
	Agents       AgentRepository
	Checkpoints  CheckpointRepository
}

// NewStore wires the scylla repositories.
func NewStore(conn *database.Connection, logger logging.Logger) *Store {
	return &Store{
		Jobs:         &scyllaJobRepository{db: conn, logger: logger},
		Transactions: &scyllaTransactionRepository{db: conn, logger: logger},
		Agents:       &scyllaAgentRepository{db: conn, logger: logger},
		Checkpoints:  &scyllaCheckpointRepository{db: conn, logger: logger},
	}
}
