package websocket

import (
	"time"
)

// Connection is the transport surface the client pumps need. It is the
// seam that lets hub and pump tests run without a network socket.
type Connection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error

	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(string) error)

	RemoteAddr() string
}
