package indexer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/taskmesh/taskmesh-backend/internal/marketplace/escrow"
	"github.com/taskmesh/taskmesh-backend/internal/marketplace/metrics"
	"github.com/taskmesh/taskmesh-backend/internal/marketplace/repository"
	"github.com/taskmesh/taskmesh-backend/pkg/logging"
	"github.com/taskmesh/taskmesh-backend/pkg/types"
)

// Config tunes the event pipeline and backfill pacing.
type Config struct {
	Workers       int
	QueueSize     int
	BatchSize     uint64
	BatchDelay    time.Duration
	ReconnectWait time.Duration
}

func DefaultConfig() Config {
	return Config{
		Workers:       4,
		QueueSize:     256,
		BatchSize:     500,
		BatchDelay:    200 * time.Millisecond,
		ReconnectWait: 5 * time.Second,
	}
}

// ProgressFn reports backfill progress after each batch.
type ProgressFn func(processedBlocks, totalBlocks uint64)

// Indexer tails escrow contract events and folds each one into the
// transaction log. Folding is idempotent and tolerant of duplicate or
// reordered delivery: records are keyed by transaction hash and a record's
// status is never moved backwards. A malformed event is logged and skipped,
// never fatal.
type Indexer struct {
	source      escrow.EventSource
	txs         repository.TransactionRepository
	agents      repository.AgentRepository
	checkpoints repository.CheckpointRepository
	logger      logging.Logger
	config      Config

	queue    chan escrow.Event
	tailDone chan struct{}
	wg       sync.WaitGroup

	mu        sync.Mutex
	lastBlock uint64
}

func New(source escrow.EventSource, store *repository.Store, logger logging.Logger, config Config) *Indexer {
	if config.Workers <= 0 {
		config = DefaultConfig()
	}
	return &Indexer{
		source:      source,
		txs:         store.Transactions,
		agents:      store.Agents,
		checkpoints: store.Checkpoints,
		logger:      logger,
		config:      config,
		queue:       make(chan escrow.Event, config.QueueSize),
		tailDone:    make(chan struct{}),
	}
}

// Start catches up from the persisted checkpoint, then tails live events
// until ctx is cancelled. The subscription is re-established after drops.
func (ix *Indexer) Start(ctx context.Context) error {
	last, err := ix.checkpoints.GetLastProcessedBlock(ctx)
	if err != nil {
		return fmt.Errorf("failed to load indexer checkpoint: %w", err)
	}
	ix.lastBlock = last

	head, err := ix.source.CurrentBlock(ctx)
	if err != nil {
		return fmt.Errorf("failed to read ledger head: %w", err)
	}
	if head > last {
		if err := ix.Backfill(ctx, last+1, head, nil); err != nil {
			return err
		}
	}

	for i := 0; i < ix.config.Workers; i++ {
		ix.wg.Add(1)
		go ix.worker(ctx)
	}

	go func() {
		defer close(ix.tailDone)
		ix.tail(ctx)
	}()
	ix.logger.Infof("Indexer started at block %d with %d workers", head, ix.config.Workers)
	return nil
}

// Stop waits for the workers to drain. The context passed to Start must be
// cancelled first so the tail goroutine stops feeding the queue.
func (ix *Indexer) Stop() {
	<-ix.tailDone
	close(ix.queue)
	ix.wg.Wait()
}

func (ix *Indexer) tail(ctx context.Context) {
	for {
		events, err := ix.source.SubscribeEvents(ctx)
		if err != nil {
			ix.logger.Errorf("Failed to subscribe to escrow events: %v", err)
		} else {
		drain:
			for {
				select {
				case <-ctx.Done():
					return
				case event, ok := <-events:
					if !ok {
						break drain
					}
					select {
					case ix.queue <- event:
					case <-ctx.Done():
						return
					}
				}
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(ix.config.ReconnectWait):
			ix.logger.Infof("Re-establishing escrow event subscription")
		}
	}
}

func (ix *Indexer) worker(ctx context.Context) {
	defer ix.wg.Done()
	for event := range ix.queue {
		if err := ix.Process(ctx, event); err != nil {
			ix.logger.Errorf("Failed to index %s event in tx %s: %v", event.Name, event.TxHash, err)
		}
	}
}

// Process folds one event into the transaction log.
func (ix *Indexer) Process(ctx context.Context, event escrow.Event) error {
	action, ok := actionForEvent(event.Name)
	if !ok {
		ix.logger.Debugf("Skipping unrecognized event %q in tx %s", event.Name, event.TxHash)
		return nil
	}

	agentID := event.AgentID
	if agentID == "" && event.Wallet != (common.Address{}) {
		resolved, err := ix.agents.ResolveWallet(ctx, event.Wallet.Hex())
		switch {
		case err == nil:
			agentID = resolved
		case errors.Is(err, repository.ErrNotFound):
			ix.logger.Debugf("No agent known for wallet %s in tx %s", event.Wallet.Hex(), event.TxHash)
		default:
			return fmt.Errorf("failed to resolve wallet %s: %w", event.Wallet.Hex(), err)
		}
	}

	now := time.Now().UTC()
	rec := &types.TransactionRecord{
		TxHash:      event.TxHash,
		AgentID:     agentID,
		Action:      action,
		Status:      types.TxStatusConfirmed,
		BlockNumber: event.BlockNumber,
		Metadata:    map[string]string{"event": event.Name},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if event.LedgerJobID != 0 {
		rec.Metadata["ledger_job_id"] = strconv.FormatUint(event.LedgerJobID, 10)
	}

	if err := ix.txs.UpsertFromEvent(ctx, rec); err != nil {
		return err
	}

	metrics.EventsIndexedTotal.WithLabelValues(event.Name).Inc()
	ix.advanceCheckpoint(ctx, event.BlockNumber)
	return nil
}

// Backfill replays an inclusive block range in batches, persisting the
// checkpoint after each batch so an interrupted replay resumes.
func (ix *Indexer) Backfill(ctx context.Context, fromBlock, toBlock uint64, progress ProgressFn) error {
	if fromBlock > toBlock {
		return fmt.Errorf("invalid backfill range %d-%d", fromBlock, toBlock)
	}
	total := toBlock - fromBlock + 1
	ix.logger.Infof("Backfilling escrow events over blocks %d-%d", fromBlock, toBlock)

	for start := fromBlock; start <= toBlock; start += ix.config.BatchSize {
		end := start + ix.config.BatchSize - 1
		if end > toBlock {
			end = toBlock
		}

		events, err := ix.source.FilterRange(ctx, start, end)
		if err != nil {
			return fmt.Errorf("backfill stopped at block %d: %w", start, err)
		}
		for _, event := range events {
			if err := ix.Process(ctx, event); err != nil {
				ix.logger.Errorf("Skipping event in tx %s during backfill: %v", event.TxHash, err)
			}
		}

		ix.advanceCheckpoint(ctx, end)
		if progress != nil {
			progress(end-fromBlock+1, total)
		}

		if end < toBlock {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(ix.config.BatchDelay):
			}
		}
	}

	ix.logger.Infof("Backfill complete through block %d", toBlock)
	return nil
}

// advanceCheckpoint persists the high-water mark. Only forward moves are
// written so out-of-order workers cannot rewind the resume point.
func (ix *Indexer) advanceCheckpoint(ctx context.Context, block uint64) {
	ix.mu.Lock()
	if block <= ix.lastBlock {
		ix.mu.Unlock()
		return
	}
	ix.lastBlock = block
	ix.mu.Unlock()

	metrics.CurrentBlockNumber.Set(float64(block))
	if err := ix.checkpoints.SetLastProcessedBlock(ctx, block); err != nil {
		ix.logger.Errorf("Failed to persist indexer checkpoint %d: %v", block, err)
	}
}

func actionForEvent(name string) (types.TxAction, bool) {
	switch name {
	case escrow.EventJobPosted:
		return types.TxActionPost, true
	case escrow.EventJobAccepted:
		return types.TxActionAccept, true
	case escrow.EventJobSettled:
		return types.TxActionSubmit, true
	case escrow.EventJobCancelled:
		return types.TxActionWithdraw, true
	case escrow.EventAgentRegistered:
		return types.TxActionRegister, true
	}
	return "", false
}
