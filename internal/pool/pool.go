// Package pool implements the pending transaction pool.
package pool

import (
	"sync"

	"github.com/goodnatureofminers/powledger/internal/model"
)

// Pool is an insertion-ordered, unbounded sequence of pending transactions
// guarded by one exclusive lock. No deduplication is performed.
type Pool struct {
	mu           sync.Mutex
	transactions []model.Transaction
}

// New creates an empty pool.
func New() *Pool {
	return &Pool{}
}

// Add appends a transaction to the pool.
func (p *Pool) Add(tx model.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transactions = append(p.transactions, tx)
}

// Drain atomically copies the current contents and clears the pool. A
// transaction added concurrently is either fully included in the returned
// batch or left for the next drain, never observed partially. The batch
// belongs solely to the caller afterwards; it is not requeued on any
// downstream failure.
func (p *Pool) Drain() []model.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	batch := make([]model.Transaction, len(p.transactions))
	copy(batch, p.transactions)
	p.transactions = p.transactions[:0]
	return batch
}

// Size returns the number of pending transactions.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.transactions)
}
