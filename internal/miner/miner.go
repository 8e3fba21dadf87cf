// Package miner implements the proof-of-work mining loop.
package miner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/goodnatureofminers/powledger/internal/clock"
	"github.com/goodnatureofminers/powledger/internal/model"
)

type (
	// ChainStore is the chain surface the miner depends on. Last followed by
	// Append is not atomic: a competing writer can win the race and make the
	// Append fail validation.
	ChainStore interface {
		Last() model.Block
		Append(block model.Block) error
		Difficulty() int
		Height() uint64
	}

	// TransactionPool hands out pending transaction batches.
	TransactionPool interface {
		Drain() []model.Transaction
	}

	// Metrics observes mining loop activity.
	Metrics interface {
		ObserveMine(err error, nonceAttempts uint64, started time.Time)
		ObserveBatch(transactions int)
		SetChainHeight(height uint64)
	}
)

// MiningExhaustedError reports that the nonce search for the block at Index
// ran through the whole nonce range without meeting the difficulty target.
// It is terminal for the mining run; the drained batch is discarded.
type MiningExhaustedError struct {
	Index uint64
}

func (e *MiningExhaustedError) Error() string {
	return fmt.Sprintf("no valid block was mined at index %d", e.Index)
}

// Config bounds a mining run.
type Config struct {
	// MaxBlocks stops the run after that many mined blocks; 0 means run
	// until the context is canceled.
	MaxBlocks uint64
	// MaxNonce bounds the nonce search for a single block.
	MaxNonce uint64
	// TxWaiting is how long to sleep when the pool is observed empty.
	TxWaiting time.Duration
}

// Miner drains the pool, searches for a nonce meeting the chain difficulty
// and appends mined blocks to the chain.
type Miner struct {
	logger  *zap.Logger
	chain   ChainStore
	pool    TransactionPool
	metrics Metrics
	cfg     Config
	sleep   func(context.Context, time.Duration) error
	now     func() int64
}

// New builds a Miner with the given dependencies.
func New(chain ChainStore, pool TransactionPool, metrics Metrics, cfg Config, logger *zap.Logger) (*Miner, error) {
	if chain == nil {
		return nil, errors.New("chain store is required")
	}
	if pool == nil {
		return nil, errors.New("transaction pool is required")
	}
	if metrics == nil {
		return nil, errors.New("miner metrics is required")
	}
	if cfg.MaxNonce == 0 {
		return nil, errors.New("max nonce must be positive")
	}
	return &Miner{
		logger:  logger.Named("miner"),
		chain:   chain,
		pool:    pool,
		metrics: metrics,
		cfg:     cfg,
		sleep:   clock.SleepWithContext,
		now:     clock.NowUnixMilli,
	}, nil
}

// Run mines blocks until the block limit is reached, a nonce search is
// exhausted, or the context is canceled. Exhaustion surfaces as a
// *MiningExhaustedError and is never retried; the batch drained for the
// failed attempt is lost. A validation failure on a freshly mined block is
// an internal inconsistency and is escalated as-is.
func (m *Miner) Run(ctx context.Context) error {
	m.logger.Info("start mining",
		zap.Int("difficulty", m.chain.Difficulty()),
		zap.Uint64("max_blocks", m.cfg.MaxBlocks),
		zap.Uint64("max_nonce", m.cfg.MaxNonce))

	var mined uint64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if m.cfg.MaxBlocks > 0 && mined >= m.cfg.MaxBlocks {
			m.logger.Info("block limit reached, stopping miner", zap.Uint64("mined", mined))
			return nil
		}

		batch := m.pool.Drain()
		if len(batch) == 0 {
			if err := m.sleep(ctx, m.cfg.TxWaiting); err != nil {
				return err
			}
			continue
		}
		m.metrics.ObserveBatch(len(batch))

		last := m.chain.Last()
		started := time.Now()
		block, attempts, err := m.mineBlock(last, batch)
		m.metrics.ObserveMine(err, attempts, started)
		if err != nil {
			m.logger.Error("mining exhausted", zap.Uint64("index", last.Index+1), zap.Error(err))
			return err
		}

		if err := m.chain.Append(block); err != nil {
			return fmt.Errorf("append freshly mined block %d: %w", block.Index, err)
		}
		mined++
		m.metrics.SetChainHeight(m.chain.Height())
		m.logger.Info("block mined",
			zap.Uint64("index", block.Index),
			zap.String("hash", block.Hash),
			zap.Uint64("nonce", block.Nonce),
			zap.Int("transactions", len(block.Transactions)))
	}
}

// mineBlock searches nonces from 0 to MaxNonce-1 for a candidate whose hash
// meets the chain difficulty. It returns the mined block and the number of
// nonces tried, or a *MiningExhaustedError when the range runs out.
func (m *Miner) mineBlock(last model.Block, batch []model.Transaction) (model.Block, uint64, error) {
	difficulty := m.chain.Difficulty()
	for nonce := uint64(0); nonce < m.cfg.MaxNonce; nonce++ {
		candidate := m.nextBlock(last, batch, nonce)
		if candidate.MeetsDifficulty(difficulty) {
			return candidate, nonce + 1, nil
		}
	}
	return model.Block{}, m.cfg.MaxNonce, &MiningExhaustedError{Index: last.Index + 1}
}

// nextBlock builds the candidate following last, stamped with the current
// wall-clock time.
func (m *Miner) nextBlock(last model.Block, batch []model.Transaction, nonce uint64) model.Block {
	return model.NewBlock(last.Index+1, m.now(), nonce, last.Hash, batch)
}
