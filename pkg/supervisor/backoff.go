package supervisor

import "time"

// Reconnect defaults.
const (
	// DefaultMaxAttempts is the number of attempts in one reconnect cycle.
	DefaultMaxAttempts = 5

	// DefaultBaseDelay is the backoff unit; attempt k waits k * DefaultBaseDelay.
	DefaultBaseDelay = 2 * time.Second

	// DefaultResultWait is how long to wait after AutoConnect before judging it.
	DefaultResultWait = 5 * time.Second
)

// LinearDelay returns the wait before the given 1-based attempt.
func LinearDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base * time.Duration(attempt)
}

// DelaySequence returns the waits for attempts 1 through maxAttempts.
func DelaySequence(base time.Duration, maxAttempts int) []time.Duration {
	seq := make([]time.Duration, 0, maxAttempts)
	for k := 1; k <= maxAttempts; k++ {
		seq = append(seq, LinearDelay(base, k))
	}
	return seq
}

// WorstCaseCycle returns the longest a full cycle can take before giving up.
func WorstCaseCycle(base, resultWait time.Duration, maxAttempts int) time.Duration {
	var total time.Duration
	for _, d := range DelaySequence(base, maxAttempts) {
		total += d + resultWait
	}
	return total
}
