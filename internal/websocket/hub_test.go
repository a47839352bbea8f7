package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emis/pkg/contracts/events"
)

// connectClient registers a client over a mock connection and waits
// for the registration to land.
func connectClient(t *testing.T, hub *Hub) (*Client, *MockConnection) {
	t.Helper()

	conn := NewMockConnection()
	client := NewClientWithConnection(hub, conn, nil)
	hub.Register(client)

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	return client, conn
}

// drainOne receives one message from the client's send channel
func drainOne(t *testing.T, client *Client) []byte {
	t.Helper()

	select {
	case msg := <-client.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestHubRegisterSendsConnectMessage(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	defer hub.Stop()

	client, _ := connectClient(t, hub)

	var msg events.WebSocketMessage
	require.NoError(t, json.Unmarshal(drainOne(t, client), &msg))
	assert.Equal(t, events.MessageTypeConnect, msg.Type)
}

func TestHubBroadcastRunSnapshot(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	defer hub.Stop()

	client, _ := connectClient(t, hub)
	drainOne(t, client) // connect greeting

	snapshot := &events.RunSnapshot{
		RunID:       "run-7",
		Status:      "running",
		Progress:    40,
		CurrentStep: "entropy",
		Markets:     []string{"us", "japan"},
		StartedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	hub.BroadcastRunSnapshot(snapshot, "trace-1")

	raw := drainOne(t, client)

	var msg struct {
		events.BaseMessage
		Data events.RunSnapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &msg))

	assert.Equal(t, events.MessageTypeRunSnapshot, msg.Type)
	assert.Equal(t, "trace-1", msg.TraceID)
	assert.Equal(t, "run-7", msg.Data.RunID)
	assert.Equal(t, "running", msg.Data.Status)
	assert.Equal(t, 40, msg.Data.Progress)
	assert.Equal(t, []string{"us", "japan"}, msg.Data.Markets)
}

func TestHubBroadcastError(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	defer hub.Stop()

	client, _ := connectClient(t, hub)
	drainOne(t, client)

	hub.BroadcastError("study_failed", "volatility baseline unavailable", true)

	var msg struct {
		events.BaseMessage
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(drainOne(t, client), &msg))

	assert.Equal(t, events.MessageTypeError, msg.Type)
	assert.Equal(t, "study_failed", msg.Data["code"])
	assert.Equal(t, true, msg.Data["fatal"])
}

func TestHubStopClosesClients(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()

	client, _ := connectClient(t, hub)
	drainOne(t, client)

	hub.Stop()
	assert.Equal(t, 0, hub.ClientCount())

	_, open := <-client.send
	assert.False(t, open, "send channel closed on shutdown")
}

func TestHubStartIsIdempotent(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	hub.Start()
	defer hub.Stop()

	_, _ = connectClient(t, hub)
	assert.Equal(t, 1, hub.ClientCount())
}

func TestWritePumpDeliversFrames(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	defer hub.Stop()

	conn := NewMockConnection()
	client := NewClientWithConnection(hub, conn, nil)

	done := make(chan struct{})
	go func() {
		client.WritePump()
		close(done)
	}()

	client.send <- []byte(`{"type":"study:snapshot"}`)
	close(client.send)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("write pump did not stop")
	}

	written := conn.GetWrittenMessages()
	require.NotEmpty(t, written)
	assert.Equal(t, websocket.TextMessage, written[0].Type)
	assert.JSONEq(t, `{"type":"study:snapshot"}`, string(written[0].Data))

	// Closing the send channel emits a close frame.
	last := written[len(written)-1]
	assert.Equal(t, websocket.CloseMessage, last.Type)
}

func TestReadPumpUnregistersOnError(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	defer hub.Stop()

	client, conn := connectClient(t, hub)
	drainOne(t, client)

	// Heartbeat first, then the connection dies.
	conn.AddReadMessage(websocket.TextMessage, []byte(`{"type":"heartbeat"}`), nil)

	done := make(chan struct{})
	go func() {
		client.ReadPump()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("read pump did not stop")
	}

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, time.Second, 10*time.Millisecond)
	assert.True(t, conn.Closed)
}
