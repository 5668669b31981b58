package metrics

import (
	"errors"
	"time"

	"github.com/3Eeeecho/go-fastdb/internal/pkg/xerr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var queryDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "fastdb_query_duration_seconds",
		Help:    "Duration of lightcurve and object search queries",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
	},
	[]string{"operation"},
)

var queryErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fastdb_query_errors_total",
		Help: "Failed queries by operation and error kind",
	},
	[]string{"operation", "kind"},
)

var ingestRows = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fastdb_ingest_rows_total",
		Help: "Rows inserted by the ingest pipeline",
	},
	[]string{"table"},
)

var ingestRuns = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fastdb_ingest_runs_total",
		Help: "Ingest runs by outcome",
	},
	[]string{"status"},
)

var httpRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fastdb_http_requests_total",
		Help: "HTTP requests by route and status code",
	},
	[]string{"route", "code"},
)

var httpDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "fastdb_http_request_duration_seconds",
		Help: "HTTP request durations",
	},
	[]string{"route"},
)

// ErrorKind 把错误归类为低基数的标签值
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, xerr.ErrQueryTimeout):
		return "timeout"
	case errors.Is(err, xerr.ErrVersionIntegrity):
		return "integrity"
	case errors.Is(err, xerr.ErrUnknownVersion), errors.Is(err, xerr.ErrUnknownObject):
		return "not_found"
	case errors.Is(err, xerr.ErrUnknownFilter), errors.Is(err, xerr.ErrInconsistentFilter), errors.Is(err, xerr.ErrInvalidParams):
		return "validation"
	case errors.Is(err, xerr.ErrDatabaseError):
		return "database"
	}
	return "internal"
}

// ObserveQuery 用法: defer func() { metrics.ObserveQuery("object_search", start, err) }()
func ObserveQuery(operation string, start time.Time, err error) {
	queryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		queryErrors.WithLabelValues(operation, ErrorKind(err)).Inc()
	}
}

func AddIngestRows(table string, n int64) {
	if n > 0 {
		ingestRows.WithLabelValues(table).Add(float64(n))
	}
}

func IngestRun(status string) {
	ingestRuns.WithLabelValues(status).Inc()
}

func ObserveHTTP(route, code string, elapsed time.Duration) {
	httpRequests.WithLabelValues(route, code).Inc()
	httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
