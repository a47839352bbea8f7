package operations

import (
	"emis/pkg/contracts/events"
)

// SnapshotHub is the WebSocket capability the broadcaster depends on
type SnapshotHub interface {
	BroadcastRunSnapshot(snapshot *events.RunSnapshot, traceID string)
}
