package websocket

import (
	"errors"
	"sync"
	"time"
)

// MockMessage is one frame recorded by or queued on a MockConnection.
type MockMessage struct {
	Type int
	Data []byte
	Err  error
}

// MockConnection is an in-memory Connection for pump and hub tests.
// Writes are recorded; reads are served from a queue and fail once it
// is exhausted, which is how tests make a pump terminate.
type MockConnection struct {
	mu sync.Mutex

	written []MockMessage
	queued  []MockMessage
	readIdx int

	Closed bool

	pongHandler func(string) error
	readLimit   int64
}

// NewMockConnection creates a mock connection
func NewMockConnection() *MockConnection {
	return &MockConnection{}
}

func (m *MockConnection) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Closed {
		return errors.New("connection closed")
	}
	m.written = append(m.written, MockMessage{Type: messageType, Data: data})
	return nil
}

func (m *MockConnection) ReadMessage() (int, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Closed {
		return 0, nil, errors.New("connection closed")
	}
	if m.readIdx < len(m.queued) {
		msg := m.queued[m.readIdx]
		m.readIdx++
		return msg.Type, msg.Data, msg.Err
	}
	return 0, nil, errors.New("no more messages")
}

func (m *MockConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Closed = true
	return nil
}

func (m *MockConnection) SetReadDeadline(time.Time) error  { return nil }
func (m *MockConnection) SetWriteDeadline(time.Time) error { return nil }

func (m *MockConnection) SetReadLimit(limit int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readLimit = limit
}

func (m *MockConnection) SetPongHandler(h func(string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pongHandler = h
}

func (m *MockConnection) RemoteAddr() string { return "127.0.0.1:0" }

// AddReadMessage queues a frame for ReadMessage to return
func (m *MockConnection) AddReadMessage(messageType int, data []byte, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued = append(m.queued, MockMessage{Type: messageType, Data: data, Err: err})
}

// GetWrittenMessages returns a copy of every frame written so far
func (m *MockConnection) GetWrittenMessages() []MockMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]MockMessage, len(m.written))
	copy(out, m.written)
	return out
}
