// Package scheduler provides the delayed-callback service used by the
// connection supervisor.
//
// A Scheduler arms one-shot callbacks and hands back a Handle that can stop
// them. Real uses time.AfterFunc; Manual drives callbacks from a virtual
// clock so reconnect schedules can be asserted without sleeping.
//
// # Groups
//
// Group wraps a Scheduler and tracks every callback it armed so they can be
// stopped together. A callback stopped by the group never runs, even when its
// underlying timer already expired and is racing the stop.
package scheduler
