package client

import (
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for retry behaviour.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_retries_total",
		Help: "Total retry attempts by error kind",
	}, []string{"kind"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_retry_exhausted_total",
		Help: "Total requests that ran out of retry attempts",
	}, []string{"kind"})
)

// withJitter spreads a backoff by +/-20% so simultaneous clients do not
// retry in lockstep.
func withJitter(backoff time.Duration) time.Duration {
	return time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
}

// nextBackoff advances the exponential backoff, capped at ceiling.
func nextBackoff(current time.Duration, multiplier float64, ceiling time.Duration) time.Duration {
	next := time.Duration(float64(current) * multiplier)
	if next > ceiling {
		return ceiling
	}
	return next
}

// retryAfterHint reads the Retry-After header. Both the delay-seconds
// form and the HTTP-date form occur.
func retryAfterHint(header http.Header) time.Duration {
	value := header.Get("Retry-After")
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}
	return 0
}
