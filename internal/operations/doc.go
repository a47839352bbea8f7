// Package operations orchestrates study runs as sequences of steps.
//
// A run executes the fixed step sequence fetch, align, entropy,
// signals, backtest, export. Steps share one study run carrier through
// the operation state; every state change is rebroadcast to WebSocket
// observers as a complete run snapshot, never as a delta.
//
// The Manager owns execution: per-step timeouts, retry with backoff
// for retryable failures, cancellation, and the registry of active
// runs. The StatusBroadcaster is the single authority for snapshot
// state; nothing else writes to observers.
package operations
