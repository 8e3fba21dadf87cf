// Package chain implements the append-only block store.
package chain

import (
	"errors"
	"fmt"
	"sync"

	"github.com/goodnatureofminers/powledger/internal/model"
)

// Validation failures returned by Append, in evaluation order. The chain is
// left untouched whenever one of them is returned.
var (
	ErrInvalidIndex        = errors.New("block index does not follow the chain tip")
	ErrInvalidPreviousHash = errors.New("previous hash does not match the chain tip")
	ErrInvalidHash         = errors.New("block hash does not match block contents")
	ErrInvalidDifficulty   = errors.New("block hash does not meet the difficulty target")
)

// Chain is an ordered sequence of blocks guarded by a single exclusive lock.
// It always holds at least the genesis block. Readers serialize with writers
// on the same lock; Last followed by Append is not atomic across the pair,
// so two concurrent miners can race to append competing children and only
// one of them wins.
type Chain struct {
	mu         sync.Mutex
	difficulty int
	blocks     []model.Block
}

// New creates a chain holding only the genesis block. The genesis block has
// index 0, no previous hash, an empty transaction list and a fixed zero
// timestamp; its hash is computed over its own contents and is not required
// to meet the configured difficulty.
func New(difficulty int) *Chain {
	genesis := model.NewBlock(0, 0, 0, "", []model.Transaction{})
	return &Chain{
		difficulty: difficulty,
		blocks:     []model.Block{genesis},
	}
}

// Difficulty returns the minimum count of leading zero hex characters a
// block hash must carry to be accepted.
func (c *Chain) Difficulty() int {
	return c.difficulty
}

// Append validates block against the current tip and appends it. Validation
// checks linkage (index, previous hash), hash integrity and the difficulty
// target, in that order, and returns the first failure unwrapped-matchable
// via errors.Is. On failure nothing is mutated.
func (c *Chain) Append(block model.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	last := c.blocks[len(c.blocks)-1]

	if block.Index != last.Index+1 {
		return fmt.Errorf("append block %d after tip %d: %w", block.Index, last.Index, ErrInvalidIndex)
	}
	if block.PreviousHash != last.Hash {
		return fmt.Errorf("append block %d: %w", block.Index, ErrInvalidPreviousHash)
	}
	if block.ComputeHash() != block.Hash {
		return fmt.Errorf("append block %d: %w", block.Index, ErrInvalidHash)
	}
	if !block.MeetsDifficulty(c.difficulty) {
		return fmt.Errorf("append block %d with hash %s: %w", block.Index, block.Hash, ErrInvalidDifficulty)
	}

	c.blocks = append(c.blocks, block.Clone())
	return nil
}

// Snapshot returns a defensive copy of the whole chain.
func (c *Chain) Snapshot() []model.Block {
	c.mu.Lock()
	defer c.mu.Unlock()

	blocks := make([]model.Block, len(c.blocks))
	for i, b := range c.blocks {
		blocks[i] = b.Clone()
	}
	return blocks
}

// Last returns a defensive copy of the most recently appended block.
func (c *Chain) Last() model.Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocks[len(c.blocks)-1].Clone()
}

// Height returns the number of blocks in the chain, genesis included.
func (c *Chain) Height() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint64(len(c.blocks))
}
