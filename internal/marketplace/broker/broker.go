package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/taskmesh/taskmesh-backend/internal/marketplace/escrow"
	"github.com/taskmesh/taskmesh-backend/internal/marketplace/metrics"
	"github.com/taskmesh/taskmesh-backend/internal/marketplace/repository"
	"github.com/taskmesh/taskmesh-backend/pkg/logging"
	"github.com/taskmesh/taskmesh-backend/pkg/retry"
	"github.com/taskmesh/taskmesh-backend/pkg/types"
)

// ErrReverted is wrapped into the error returned when a submitted transaction
// mined but the ledger reverted it.
var ErrReverted = fmt.Errorf("transaction reverted on ledger")

const asyncWaitTimeout = 5 * time.Minute

// Submission describes one outbound ledger call. Send performs the actual
// submission and returns the transaction hash.
type Submission struct {
	AgentID  string
	Action   types.TxAction
	Metadata map[string]string
	Send     func(ctx context.Context) (string, error)
}

// Broker funnels every outbound ledger call through the transaction log.
// A record is written as pending before anyone waits on the hash, so a crash
// between submission and confirmation leaves a visible pending row for the
// sweeper instead of a silently lost transaction.
type Broker struct {
	txs    repository.TransactionRepository
	ledger escrow.Ledger
	logger logging.Logger

	wg sync.WaitGroup
}

func New(txs repository.TransactionRepository, ledger escrow.Ledger, logger logging.Logger) *Broker {
	return &Broker{
		txs:    txs,
		ledger: ledger,
		logger: logger,
	}
}

// SubmitAndWait sends the transaction, records it as pending and blocks until
// it is mined. The record is marked confirmed or failed before returning.
func (b *Broker) SubmitAndWait(ctx context.Context, sub Submission) (*escrow.Receipt, error) {
	txHash, err := b.send(ctx, sub)
	if err != nil {
		return nil, err
	}

	receipt, err := b.ledger.WaitMined(ctx, txHash)
	if err != nil {
		// The transaction may still mine later; leave the record pending
		// for the sweeper to settle.
		return nil, fmt.Errorf("failed to await transaction %s: %w", txHash, err)
	}

	return receipt, b.record(ctx, sub.Action, txHash, receipt)
}

// SubmitAsync sends the transaction, records it as pending and returns the
// hash immediately. A background waiter settles the record and invokes
// onMined once the receipt is known. onMined may be nil.
func (b *Broker) SubmitAsync(ctx context.Context, sub Submission, onMined func(*escrow.Receipt)) (string, error) {
	txHash, err := b.send(ctx, sub)
	if err != nil {
		return "", err
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		waitCtx, cancel := context.WithTimeout(context.Background(), asyncWaitTimeout)
		defer cancel()

		receipt, err := retry.Retry(waitCtx, func() (*escrow.Receipt, error) {
			return b.ledger.WaitMined(waitCtx, txHash)
		}, retry.DefaultConfig(), b.logger)
		if err != nil {
			b.logger.Errorf("Gave up awaiting transaction %s: %v", txHash, err)
			return
		}

		if err := b.record(waitCtx, sub.Action, txHash, receipt); err != nil {
			b.logger.Errorf("Failed to settle transaction record %s: %v", txHash, err)
		}
		if onMined != nil {
			onMined(receipt)
		}
	}()

	return txHash, nil
}

// Close blocks until all background waiters have finished.
func (b *Broker) Close() {
	b.wg.Wait()
}

func (b *Broker) send(ctx context.Context, sub Submission) (string, error) {
	txHash, err := sub.Send(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to submit %s transaction: %w", sub.Action, err)
	}

	now := time.Now().UTC()
	rec := &types.TransactionRecord{
		TxHash:    txHash,
		AgentID:   sub.AgentID,
		Action:    sub.Action,
		Status:    types.TxStatusPending,
		Metadata:  sub.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := b.txs.CreatePending(ctx, rec); err != nil {
		// The transaction is already on the wire; the indexer will rebuild
		// the record from the ledger event.
		b.logger.Errorf("Failed to record pending transaction %s: %v", txHash, err)
	}

	metrics.LedgerTransactionsTotal.WithLabelValues(string(sub.Action), string(types.TxStatusPending)).Inc()
	b.logger.Infof("Submitted %s transaction %s for agent %s", sub.Action, txHash, sub.AgentID)
	return txHash, nil
}

func (b *Broker) record(ctx context.Context, action types.TxAction, txHash string, receipt *escrow.Receipt) error {
	if receipt.Success {
		metrics.LedgerTransactionsTotal.WithLabelValues(string(action), string(types.TxStatusConfirmed)).Inc()
		return b.txs.MarkConfirmed(ctx, txHash, receipt.BlockNumber, receipt.GasFee)
	}
	metrics.LedgerTransactionsTotal.WithLabelValues(string(action), string(types.TxStatusFailed)).Inc()
	if err := b.txs.MarkFailed(ctx, txHash, "reverted"); err != nil {
		return err
	}
	return fmt.Errorf("transaction %s: %w", txHash, ErrReverted)
}
