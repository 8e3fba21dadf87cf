package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	minerMineTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "powledger",
		Subsystem: "miner",
		Name:      "mine_total",
		Help:      "Count of proof-of-work attempts per mined block.",
	}, []string{"status"})

	minerMineDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "powledger",
		Subsystem: "miner",
		Name:      "mine_duration_seconds",
		Help:      "Duration of the nonce search for one block.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})

	minerNonceAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "powledger",
		Subsystem: "miner",
		Name:      "nonce_attempts",
		Help:      "Number of nonces tried before a block was resolved.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 16), // 1..~1e9
	})

	minerBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "powledger",
		Subsystem: "miner",
		Name:      "batch_size",
		Help:      "Number of transactions drained from the pool per attempt.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1..2048
	})

	chainHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "powledger",
		Subsystem: "chain",
		Name:      "height",
		Help:      "Current chain length, genesis included.",
	})
)

// Miner records mining loop observations.
type Miner struct{}

// NewMiner returns a Miner metrics recorder.
func NewMiner() *Miner {
	return &Miner{}
}

func (m Miner) ObserveMine(err error, nonceAttempts uint64, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	minerMineTotal.WithLabelValues(status).Inc()
	minerMineDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
	minerNonceAttempts.Observe(float64(nonceAttempts))
}

func (m Miner) ObserveBatch(transactions int) {
	minerBatchSize.Observe(float64(transactions))
}

func (m Miner) SetChainHeight(height uint64) {
	chainHeight.Set(float64(height))
}
