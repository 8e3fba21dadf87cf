// Package main runs the proof-of-work ledger node: a mining loop and a REST
// API sharing one in-memory chain and transaction pool.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/powledger/internal/chain"
	"github.com/goodnatureofminers/powledger/internal/metrics"
	"github.com/goodnatureofminers/powledger/internal/miner"
	"github.com/goodnatureofminers/powledger/internal/pool"
	"github.com/goodnatureofminers/powledger/internal/transport"
	"github.com/goodnatureofminers/powledger/pkg/runner"
)

type config struct {
	Addr       string        `long:"addr" env:"POWLEDGER_ADDR" description:"API listen address" default:":8000"`
	Difficulty int           `long:"difficulty" env:"POWLEDGER_DIFFICULTY" description:"leading zero hex characters required of a block hash" default:"4"`
	MaxBlocks  uint64        `long:"max-blocks" env:"POWLEDGER_MAX_BLOCKS" description:"stop mining after this many blocks (0 = unlimited)" default:"0"`
	MaxNonce   uint64        `long:"max-nonce" env:"POWLEDGER_MAX_NONCE" description:"nonce search bound per block" default:"1000000"`
	TxWaiting  time.Duration `long:"tx-waiting" env:"POWLEDGER_TX_WAITING" description:"sleep when the pool is empty" default:"1s"`
	APIRate    int           `long:"api-rps" env:"POWLEDGER_API_RPS" description:"API requests accepted per second" default:"100"`
}

func main() {
	cfg := config{}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic("can't initialize zap logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync()
	}()

	if _, err := flags.ParseArgs(&cfg, os.Args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		logger.Fatal("failed to parse flags", zap.Error(err))
	}

	if cfg.Difficulty < 0 {
		logger.Fatal("difficulty must be non-negative", zap.Int("difficulty", cfg.Difficulty))
	}

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("node failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	ledger := chain.New(cfg.Difficulty)
	pending := pool.New()

	mnr, err := miner.New(ledger, pending, metrics.NewMiner(), miner.Config{
		MaxBlocks: cfg.MaxBlocks,
		MaxNonce:  cfg.MaxNonce,
		TxWaiting: cfg.TxWaiting,
	}, logger)
	if err != nil {
		return err
	}

	handler, err := transport.NewHandler(ledger, pending, metrics.NewAPI(), cfg.APIRate, logger)
	if err != nil {
		return err
	}
	server := transport.NewServer(cfg.Addr, handler, logger)

	return runner.Run(ctx, mnr, server)
}
