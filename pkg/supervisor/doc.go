// Package supervisor implements connection recovery for a mesh-proxy link.
//
// A Supervisor tracks whether the transport is connected and, when the link
// drops unexpectedly, drives a reconnect cycle against the MeshTransport:
//
//  1. Wait baseDelay * attempt (linear backoff: 2s, 4s, 6s, 8s, 10s)
//  2. Issue AutoConnect
//  3. Wait the result window (default 5s), then check the link
//  4. Connected: the cycle ends and counters reset
//  5. Still down, or AutoConnect failed: the next attempt is scheduled
//  6. After MaxAttempts the cycle gives up until ForceReconnect
//
// Every observed transport transition is forwarded to a single replaceable
// listener. Retry bookkeeping is not reported to the listener; it is written
// to the event journal (see package log) and to the slog logger.
//
// # Result Window
//
// Success is judged by polling the connected flag when the result window
// closes, not by a completion signal from AutoConnect. A link that comes up
// just after the window closes is counted as a failed attempt and costs one
// extra, harmless, reconnect.
//
// # Concurrency
//
// All state lives behind one mutex. Timers run on scheduler goroutines and
// re-enter under that mutex; Reset and Cleanup stop pending timers and bump
// an epoch so a timer that lost the race becomes a no-op.
package supervisor
