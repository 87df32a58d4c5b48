package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wicaksana/gema/domain/repositories"
	"github.com/wicaksana/gema/internal/protocol"
)

func writeControl(t *testing.T, conn *websocket.Conn, msg any) {
	t.Helper()
	data, err := protocol.Encode(msg)
	if err != nil {
		t.Fatalf("encode %T: %v", msg, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write %T: %v", msg, err)
	}
}

// A device that accepts the reply but stops reading mid stream must not pin
// its session: once the socket write times out, the session tears all the
// way down even with the reply still queued behind a full send buffer.
func TestStalledDeviceTearsDown(t *testing.T) {
	chunk := make([]byte, 64*1024)
	events := []repositories.PipelineEvent{
		{Kind: repositories.EventTranscript, Text: "tell me everything"},
	}
	for i := 0; i < 400; i++ {
		events = append(events, repositories.PipelineEvent{Kind: repositories.EventAudioChunk, Audio: chunk})
	}
	events = append(events, repositories.PipelineEvent{Kind: repositories.EventCompleted})

	pipeline := &scriptedPipeline{events: events}
	deps := testDeps(pipeline, &recordingSink{})
	deps.SendQueueSize = 1
	deps.WriteTimeout = 300 * time.Millisecond
	hub := NewHub(deps.Metrics, deps.Logger)

	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		ServeConn(conn, hub, "dev1", deps)
		close(done)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	writeControl(t, conn, hello())
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}
	msg, err := protocol.Parse(data)
	if err != nil {
		t.Fatalf("parse ack: %v", err)
	}
	if _, ok := msg.(protocol.HelloAck); !ok {
		t.Fatalf("first frame = %T, want HelloAck", msg)
	}

	writeControl(t, conn, stamped(protocol.TypeStartListen))
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0x01}); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	writeControl(t, conn, stamped(protocol.TypeStopListen))

	// Stop reading. The reply stream backs up until the socket write times
	// out, which must end the session.
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("session never tore down after the device stalled")
	}

	if _, ok := hub.Get("dev1"); ok {
		t.Error("stalled client still registered")
	}
}
