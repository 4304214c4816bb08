// Package queries holds the CQL statements for the marketplace keyspace.
package queries

const (
	CreateJob = `INSERT INTO taskmesh.jobs (
		job_id, ledger_job_id, poster_id, executor_id, capability_tag, description,
		payment, collateral, deadline, expected_token, manual_review,
		result, result_token, status, post_tx_hash, accept_tx_hash, settle_tx_hash,
		created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	GetJob = `SELECT job_id, ledger_job_id, poster_id, executor_id, capability_tag, description,
		payment, collateral, deadline, expected_token, manual_review,
		result, result_token, status, post_tx_hash, accept_tx_hash, settle_tx_hash,
		created_at, updated_at
		FROM taskmesh.jobs WHERE job_id = ?`

	ListJobsByStatus = `SELECT job_id, ledger_job_id, poster_id, executor_id, capability_tag, description,
		payment, collateral, deadline, expected_token, manual_review,
		result, result_token, status, post_tx_hash, accept_tx_hash, settle_tx_hash,
		created_at, updated_at
		FROM taskmesh.jobs WHERE status = ? ALLOW FILTERING`

	// Lightweight transactions: the IF clause is the compare-and-swap guard.
	BindExecutor = `UPDATE taskmesh.jobs
		SET executor_id = ?, status = ?, updated_at = ?
		WHERE job_id = ? IF status = ?`

	TransitionJobStatus = `UPDATE taskmesh.jobs
		SET status = ?, updated_at = ?
		WHERE job_id = ? IF status = ?`

	RecordJobSubmission = `UPDATE taskmesh.jobs
		SET result = ?, result_token = ?, status = ?, updated_at = ?
		WHERE job_id = ? IF status = ?`

	SetJobAcceptTxHash = `UPDATE taskmesh.jobs SET accept_tx_hash = ?, updated_at = ? WHERE job_id = ?`
	SetJobSettleTxHash = `UPDATE taskmesh.jobs SET settle_tx_hash = ?, updated_at = ? WHERE job_id = ?`

	// IF NOT EXISTS makes inserts idempotent under duplicate event delivery.
	InsertTransactionIfAbsent = `INSERT INTO taskmesh.transactions (
		tx_hash, agent_id, action, status, block_number, gas_fee, metadata, error_cause,
		created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`

	GetTransaction = `SELECT tx_hash, agent_id, action, status, block_number, gas_fee, metadata, error_cause,
		created_at, updated_at
		FROM taskmesh.transactions WHERE tx_hash = ?`

	UpdateTransactionStatus = `UPDATE taskmesh.transactions
		SET status = ?, block_number = ?, gas_fee = ?, error_cause = ?, updated_at = ?
		WHERE tx_hash = ? IF status = ?`

	CreateAgent = `INSERT INTO taskmesh.agents (
		agent_id, wallet_address, capabilities, reputation, total_earned, total_spent,
		active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	GetAgent = `SELECT agent_id, wallet_address, capabilities, reputation, total_earned, total_spent,
		active, created_at
		FROM taskmesh.agents WHERE agent_id = ?`

	GetAgentByWallet = `SELECT agent_id FROM taskmesh.agents WHERE wallet_address = ? ALLOW FILTERING`

	// Legacy wallets table, second leg of the wallet resolution fallback.
	GetWalletOwner = `SELECT agent_id FROM taskmesh.wallets WHERE wallet_address = ?`

	GetAgentStats = `SELECT reputation, total_earned, total_spent FROM taskmesh.agents WHERE agent_id = ?`

	// Guarded on the values just read so concurrent outcome applications
	// cannot interleave and drop a delta.
	UpdateAgentStats = `UPDATE taskmesh.agents
		SET reputation = ?, total_earned = ?, total_spent = ?
		WHERE agent_id = ?
		IF reputation = ? AND total_earned = ? AND total_spent = ?`

	GetSyncCheckpoint = `SELECT last_block FROM taskmesh.sync_state WHERE id = 'indexer'`
	SetSyncCheckpoint = `UPDATE taskmesh.sync_state SET last_block = ? WHERE id = 'indexer'`
)
