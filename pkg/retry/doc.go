// Package retry provides bounded execution and retry helpers.
//
// ExecuteWithTimeout runs an operation on its own goroutine and reports
// exactly one outcome: normal return, onTimeout or onError. Cancellation of
// a timed-out operation is cooperative: its context is cancelled, but the
// goroutine may keep running after onTimeout fires and any resources it
// holds are not guaranteed to be released.
//
// RetryWithBackoff calls an operation until it reports success, waiting
// between attempts with a doubling delay (1s, 2s, 4s, ...). No wait follows
// the final attempt. An error or panic from the operation counts as a
// failed attempt and is logged, never returned.
//
// Both report outcomes through callbacks only. Do is an error-returning
// wrapper around ExecuteWithTimeout for callers that prefer that shape.
package retry
