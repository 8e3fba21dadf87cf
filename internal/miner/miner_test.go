package miner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/goodnatureofminers/powledger/internal/chain"
	"github.com/goodnatureofminers/powledger/internal/model"
	"github.com/goodnatureofminers/powledger/internal/pool"
)

// SHA-256 digests are 64 hex characters, so difficulty 256 can never be met.
const maxDifficulty = 256

type fakeMetrics struct {
	mines   atomic.Int64
	batches atomic.Int64
	height  atomic.Uint64
}

func (f *fakeMetrics) ObserveMine(error, uint64, time.Time) { f.mines.Add(1) }
func (f *fakeMetrics) ObserveBatch(int)                     { f.batches.Add(1) }
func (f *fakeMetrics) SetChainHeight(h uint64)              { f.height.Store(h) }

func newTestMiner(t *testing.T, difficulty int, maxNonce, maxBlocks uint64) (*Miner, *chain.Chain, *pool.Pool) {
	t.Helper()

	c := chain.New(difficulty)
	p := pool.New()
	m, err := New(c, p, &fakeMetrics{}, Config{
		MaxBlocks: maxBlocks,
		MaxNonce:  maxNonce,
		TxWaiting: time.Millisecond,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return m, c, p
}

func mockTransaction() model.Transaction {
	return model.Transaction{Sender: "1", Recipient: "2", Amount: 3}
}

func TestNew_validatesDependencies(t *testing.T) {
	t.Parallel()

	c := chain.New(1)
	p := pool.New()
	cfg := Config{MaxNonce: 1}

	tests := []struct {
		name string
		call func() (*Miner, error)
	}{
		{name: "nil chain", call: func() (*Miner, error) { return New(nil, p, &fakeMetrics{}, cfg, zap.NewNop()) }},
		{name: "nil pool", call: func() (*Miner, error) { return New(c, nil, &fakeMetrics{}, cfg, zap.NewNop()) }},
		{name: "nil metrics", call: func() (*Miner, error) { return New(c, p, nil, cfg, zap.NewNop()) }},
		{name: "zero max nonce", call: func() (*Miner, error) { return New(c, p, &fakeMetrics{}, Config{}, zap.NewNop()) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.call(); err == nil {
				t.Fatal("New() accepted an invalid dependency set")
			}
		})
	}
}

func TestMiner_nextBlock(t *testing.T) {
	t.Parallel()

	m, c, _ := newTestMiner(t, 1, 1, 1)
	last := c.Last()

	next := m.nextBlock(last, nil, 7)

	if next.Index != last.Index+1 {
		t.Errorf("next index = %d, want %d", next.Index, last.Index+1)
	}
	if next.PreviousHash != last.Hash {
		t.Errorf("next previous hash = %s, want %s", next.PreviousHash, last.Hash)
	}
	if next.Nonce != 7 {
		t.Errorf("next nonce = %d, want 7", next.Nonce)
	}
	if next.ComputeHash() != next.Hash {
		t.Error("candidate hash does not cover its contents")
	}
}

func TestMiner_mineBlock_found(t *testing.T) {
	t.Parallel()

	// Difficulty 1 with a thousand nonces is plenty to find a block.
	m, c, _ := newTestMiner(t, 1, 1_000, 1)
	last := c.Last()

	block, attempts, err := m.mineBlock(last, nil)
	if err != nil {
		t.Fatalf("mineBlock() error: %v", err)
	}
	if attempts == 0 || attempts > 1_000 {
		t.Fatalf("implausible attempt count %d", attempts)
	}
	if !block.MeetsDifficulty(1) {
		t.Fatalf("mined hash %s does not meet difficulty", block.Hash)
	}
	if block.Index != last.Index+1 || block.PreviousHash != last.Hash {
		t.Fatal("mined block does not follow the tip")
	}
}

func TestMiner_mineBlock_exhausted(t *testing.T) {
	t.Parallel()

	m, c, _ := newTestMiner(t, maxDifficulty, 10, 1)

	_, attempts, err := m.mineBlock(c.Last(), nil)

	var exhausted *MiningExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("mineBlock() error = %v, want MiningExhaustedError", err)
	}
	if exhausted.Index != 1 {
		t.Fatalf("exhausted index = %d, want 1", exhausted.Index)
	}
	if attempts != 10 {
		t.Fatalf("attempts = %d, want 10", attempts)
	}
}

func TestMiner_Run_minesPendingTransactions(t *testing.T) {
	t.Parallel()

	m, c, p := newTestMiner(t, 1, 1_000_000, 1)
	p.Add(mockTransaction())

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	blocks := c.Snapshot()
	if len(blocks) != 2 {
		t.Fatalf("chain length = %d, want 2", len(blocks))
	}

	mined := blocks[1]
	if mined.Index != 1 || mined.PreviousHash != blocks[0].Hash {
		t.Fatal("mined block does not follow genesis")
	}
	if !mined.MeetsDifficulty(c.Difficulty()) {
		t.Fatalf("mined hash %s does not meet difficulty", mined.Hash)
	}
	if len(mined.Transactions) != 1 || mined.Transactions[0] != mockTransaction() {
		t.Fatalf("mined transactions = %+v, want the pending transaction", mined.Transactions)
	}

	// The transaction moved into the block, so the pool is empty now.
	if batch := p.Drain(); len(batch) != 0 {
		t.Fatalf("pool still holds %d transactions", len(batch))
	}
}

func TestMiner_Run_miningExhausted(t *testing.T) {
	t.Parallel()

	m, c, p := newTestMiner(t, maxDifficulty, 10, 1)
	p.Add(mockTransaction())

	err := m.Run(context.Background())

	var exhausted *MiningExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Run() error = %v, want MiningExhaustedError", err)
	}
	if exhausted.Index != 1 {
		t.Fatalf("exhausted index = %d, want 1", exhausted.Index)
	}
	// The failed attempt's batch is discarded, not requeued.
	if batch := p.Drain(); len(batch) != 0 {
		t.Fatalf("pool holds %d transactions after exhaustion, want 0", len(batch))
	}
	if got := c.Height(); got != 1 {
		t.Fatalf("chain height = %d, want 1", got)
	}
}

func TestMiner_Run_sleepsWhilePoolEmpty(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestMiner(t, 1, 1_000, 1)

	var sleeps int
	sentinel := errors.New("slept")
	m.sleep = func(context.Context, time.Duration) error {
		sleeps++
		if sleeps >= 3 {
			return sentinel
		}
		return nil
	}

	err := m.Run(context.Background())
	if !errors.Is(err, sentinel) {
		t.Fatalf("Run() error = %v, want sentinel", err)
	}
	// Empty iterations sleep and retry without counting toward the block
	// limit.
	if sleeps != 3 {
		t.Fatalf("slept %d times, want 3", sleeps)
	}
}

func TestMiner_Run_stopsOnContextCancel(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestMiner(t, 1, 1_000, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
}

type rejectingChain struct {
	*chain.Chain
}

func (rejectingChain) Append(model.Block) error {
	return chain.ErrInvalidPreviousHash
}

// A validation failure on a block the miner just mined is an internal
// inconsistency and ends the run.
func TestMiner_Run_escalatesAppendFailure(t *testing.T) {
	t.Parallel()

	p := pool.New()
	p.Add(mockTransaction())

	m, err := New(rejectingChain{chain.New(0)}, p, &fakeMetrics{}, Config{
		MaxBlocks: 1,
		MaxNonce:  1_000,
		TxWaiting: time.Millisecond,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if err := m.Run(context.Background()); !errors.Is(err, chain.ErrInvalidPreviousHash) {
		t.Fatalf("Run() error = %v, want wrapped chain validation failure", err)
	}
}

func TestMiner_Run_observesMetrics(t *testing.T) {
	t.Parallel()

	c := chain.New(1)
	p := pool.New()
	metrics := &fakeMetrics{}
	m, err := New(c, p, metrics, Config{
		MaxBlocks: 1,
		MaxNonce:  1_000_000,
		TxWaiting: time.Millisecond,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	p.Add(mockTransaction())
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if metrics.mines.Load() != 1 || metrics.batches.Load() != 1 {
		t.Fatalf("metrics mines=%d batches=%d, want 1/1", metrics.mines.Load(), metrics.batches.Load())
	}
	if metrics.height.Load() != 2 {
		t.Fatalf("metrics height=%d, want 2", metrics.height.Load())
	}
}
