package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "powledger",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Count of handled API requests.",
	}, []string{"route", "code"})

	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "powledger",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "Duration of handled API requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "code"})
)

// API records REST request observations.
type API struct{}

// NewAPI returns an API metrics recorder.
func NewAPI() *API {
	return &API{}
}

func (m API) ObserveRequest(route string, code int, started time.Time) {
	apiRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	apiRequestDuration.WithLabelValues(route, strconv.Itoa(code)).Observe(time.Since(started).Seconds())
}
