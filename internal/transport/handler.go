// Package transport exposes the REST API over the chain and the pool.
package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/ratelimit"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/powledger/internal/model"
)

type (
	// ChainStore is the chain surface served to remote callers.
	ChainStore interface {
		Append(block model.Block) error
		Snapshot() []model.Block
	}

	// TransactionPool is the pool surface served to remote callers.
	TransactionPool interface {
		Add(tx model.Transaction)
		Drain() []model.Transaction
	}

	// Metrics observes handled requests.
	Metrics interface {
		ObserveRequest(route string, code int, started time.Time)
	}
)

// Handler serves the JSON API. Every route goes through the shared leaky
// bucket rate limiter before reaching the chain or the pool.
type Handler struct {
	logger  *zap.Logger
	chain   ChainStore
	pool    TransactionPool
	metrics Metrics
	rl      ratelimit.Limiter
}

// NewHandler builds the API handler. rps bounds accepted requests per
// second across all routes.
func NewHandler(chain ChainStore, pool TransactionPool, metrics Metrics, rps int, logger *zap.Logger) (*Handler, error) {
	if chain == nil {
		return nil, errors.New("chain store is required")
	}
	if pool == nil {
		return nil, errors.New("transaction pool is required")
	}
	if metrics == nil {
		return nil, errors.New("api metrics is required")
	}
	if rps <= 0 {
		return nil, errors.New("rate limit must be positive")
	}
	return &Handler{
		logger:  logger.Named("api"),
		chain:   chain,
		pool:    pool,
		metrics: metrics,
		rl:      ratelimit.New(rps),
	}, nil
}

// Router returns the route table.
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /blocks", h.handle("GET /blocks", h.getBlocks))
	mux.HandleFunc("POST /blocks", h.handle("POST /blocks", h.addBlock))
	mux.HandleFunc("GET /blocks/{index}", h.handle("GET /blocks/{index}", h.getBlockByIndex))
	mux.HandleFunc("GET /transactions", h.handle("GET /transactions", h.getTransactions))
	mux.HandleFunc("POST /transactions", h.handle("POST /transactions", h.addTransaction))
	mux.HandleFunc("GET /healthz", h.handle("GET /healthz", h.health))
	return mux
}

// handle wraps a route with rate limiting and request metrics.
func (h *Handler) handle(route string, next func(http.ResponseWriter, *http.Request) int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.rl.Take()
		started := time.Now()
		code := next(w, r)
		h.metrics.ObserveRequest(route, code, started)
	}
}

func (h *Handler) getBlocks(w http.ResponseWriter, _ *http.Request) int {
	return h.writeJSON(w, http.StatusOK, h.chain.Snapshot())
}

func (h *Handler) getBlockByIndex(w http.ResponseWriter, r *http.Request) int {
	index, err := strconv.ParseUint(r.PathValue("index"), 10, 64)
	if err != nil {
		return h.writeError(w, http.StatusBadRequest, "index must be a non-negative integer")
	}

	// Lookup is by position in a snapshot; out of range is a not-found,
	// never a crash.
	blocks := h.chain.Snapshot()
	if index >= uint64(len(blocks)) {
		return h.writeError(w, http.StatusNotFound, "no block at index "+strconv.FormatUint(index, 10))
	}
	return h.writeJSON(w, http.StatusOK, blocks[index])
}

// addBlock decodes a block, recomputes its hash over the submitted contents
// and appends it. Validation failures surface as 400 with the error text.
func (h *Handler) addBlock(w http.ResponseWriter, r *http.Request) int {
	var block model.Block
	if err := json.NewDecoder(r.Body).Decode(&block); err != nil {
		return h.writeError(w, http.StatusBadRequest, "invalid block payload: "+err.Error())
	}
	block.Hash = block.ComputeHash()

	if err := h.chain.Append(block); err != nil {
		h.logger.Warn("block rejected", zap.Uint64("index", block.Index), zap.Error(err))
		return h.writeError(w, http.StatusBadRequest, err.Error())
	}

	h.logger.Info("block accepted", zap.Uint64("index", block.Index), zap.String("hash", block.Hash))
	return h.writeJSON(w, http.StatusCreated, block)
}

// getTransactions drains the pool and returns the batch. The batch belongs
// to the caller; it is not requeued.
func (h *Handler) getTransactions(w http.ResponseWriter, _ *http.Request) int {
	return h.writeJSON(w, http.StatusOK, h.pool.Drain())
}

func (h *Handler) addTransaction(w http.ResponseWriter, r *http.Request) int {
	var tx model.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		return h.writeError(w, http.StatusBadRequest, "invalid transaction payload: "+err.Error())
	}

	h.pool.Add(tx)
	h.logger.Info("transaction added",
		zap.String("sender", tx.Sender),
		zap.String("recipient", tx.Recipient),
		zap.Uint64("amount", tx.Amount))
	return h.writeJSON(w, http.StatusCreated, tx)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) int {
	return h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v any) int {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("write response", zap.Error(err))
	}
	return code
}

func (h *Handler) writeError(w http.ResponseWriter, code int, msg string) int {
	return h.writeJSON(w, code, map[string]string{"error": msg})
}
