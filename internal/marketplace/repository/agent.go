package repository

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/gocql/gocql"

	"github.com/taskmesh/taskmesh-backend/internal/marketplace/repository/queries"
	"github.com/taskmesh/taskmesh-backend/pkg/database"
	"github.com/taskmesh/taskmesh-backend/pkg/logging"
	"github.com/taskmesh/taskmesh-backend/pkg/types"
)

type scyllaAgentRepository struct {
	db     *database.Connection
	logger logging.Logger
}

var _ AgentRepository = (*scyllaAgentRepository)(nil)

func (r *scyllaAgentRepository) Create(ctx context.Context, agent *types.Agent) error {
	earned := agent.TotalEarned
	if earned == nil {
		earned = big.NewInt(0)
	}
	spent := agent.TotalSpent
	if spent == nil {
		spent = big.NewInt(0)
	}
	return r.db.RetryableExec(ctx, queries.CreateAgent,
		agent.AgentID,
		strings.ToLower(agent.WalletAddress),
		agent.Capabilities,
		agent.Reputation,
		earned,
		spent,
		agent.Active,
		agent.CreatedAt,
	)
}

func (r *scyllaAgentRepository) GetByID(ctx context.Context, agentID string) (*types.Agent, error) {
	var agent types.Agent
	agent.TotalEarned = new(big.Int)
	agent.TotalSpent = new(big.Int)

	err := r.db.Session().Query(queries.GetAgent, agentID).WithContext(ctx).Scan(
		&agent.AgentID, &agent.WalletAddress, &agent.Capabilities,
		&agent.Reputation, agent.TotalEarned, agent.TotalSpent,
		&agent.Active, &agent.CreatedAt,
	)
	if err == gocql.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

// ResolveWallet looks up the agents table first and falls back to the legacy
// wallets table; addresses are stored lowercased.
func (r *scyllaAgentRepository) ResolveWallet(ctx context.Context, walletAddress string) (string, error) {
	walletAddress = strings.ToLower(walletAddress)

	var agentID string
	err := r.db.Session().Query(queries.GetAgentByWallet, walletAddress).WithContext(ctx).Scan(&agentID)
	if err == nil {
		return agentID, nil
	}
	if err != gocql.ErrNotFound {
		return "", err
	}

	err = r.db.Session().Query(queries.GetWalletOwner, walletAddress).WithContext(ctx).Scan(&agentID)
	if err == gocql.ErrNotFound {
		return "", fmt.Errorf("agent not found for wallet %s: %w", walletAddress, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return agentID, nil
}

const applyOutcomeAttempts = 5

// ApplyJobOutcome adds the deltas to the agent's running totals. The write is
// guarded on the values just read, so two jobs settling concurrently for the
// same agent cannot interleave; a CAS miss re-reads and tries again.
func (r *scyllaAgentRepository) ApplyJobOutcome(ctx context.Context, agentID string, earned, spent *big.Int, reputationDelta int64) error {
	for attempt := 0; attempt < applyOutcomeAttempts; attempt++ {
		var reputation int64
		totalEarned := new(big.Int)
		totalSpent := new(big.Int)

		err := r.db.Session().Query(queries.GetAgentStats, agentID).WithContext(ctx).Scan(&reputation, totalEarned, totalSpent)
		if err == gocql.ErrNotFound {
			return fmt.Errorf("agent %s: %w", agentID, ErrNotFound)
		}
		if err != nil {
			return err
		}

		newReputation := reputation + reputationDelta
		newEarned := totalEarned
		newSpent := totalSpent
		if earned != nil {
			newEarned = new(big.Int).Add(totalEarned, earned)
		}
		if spent != nil {
			newSpent = new(big.Int).Add(totalSpent, spent)
		}

		applied, err := r.db.RetryableMapScanCAS(ctx, queries.UpdateAgentStats,
			[]interface{}{newReputation, newEarned, newSpent, agentID, reputation, totalEarned, totalSpent},
			map[string]interface{}{},
		)
		if err != nil {
			r.logger.Errorf("Failed to update stats for agent %s: %v", agentID, err)
			return err
		}
		if applied {
			return nil
		}
		r.logger.Debugf("Stats update for agent %s lost a race, retrying", agentID)
	}
	return fmt.Errorf("stats update for agent %s kept losing races after %d attempts", agentID, applyOutcomeAttempts)
}
