package openalex

import (
	"math/rand"
	"time"
)

// Backoff between attempts on 429 and 5xx responses.
var retryDelays = []time.Duration{
	250 * time.Millisecond,
	750 * time.Millisecond,
	2 * time.Second,
}

const (
	// DefaultMaxAttempts includes the first request.
	DefaultMaxAttempts = 3

	// JitterFactor is the ±percentage of jitter applied to delays.
	JitterFactor = 0.2
)

// nextRetryDelay returns the backoff after attempt (0-indexed) with jitter.
func nextRetryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(retryDelays) {
		attempt = len(retryDelays) - 1
	}

	base := retryDelays[attempt]
	jitter := (rand.Float64()*2 - 1) * float64(base) * JitterFactor
	return time.Duration(float64(base) + jitter)
}

func shouldRetry(status int) bool {
	return status == 429 || status >= 500
}
