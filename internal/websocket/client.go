package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wicaksana/gema/domain/entities"
	"github.com/wicaksana/gema/domain/repositories"
	"github.com/wicaksana/gema/internal/observability"
	"github.com/wicaksana/gema/internal/protocol"
)

// Deps carries everything a connection needs beyond the socket itself.
type Deps struct {
	Pipeline repositories.ConversationPipeline
	Sink     repositories.ConnectivitySink
	Metrics  *observability.Metrics
	Logger   *zap.Logger

	HeartbeatInterval time.Duration
	LivenessTimeout   time.Duration
	WriteTimeout      time.Duration
	MaxMessageSize    int64
	MaxSpanBytes      int
	SendQueueSize     int
}

// outbound is one queued socket write.
type outbound struct {
	messageType int
	data        []byte
}

// Client owns one WebSocket connection. The read pump turns socket traffic
// into engine events; the write pump is the only goroutine that writes to
// the socket and also runs the liveness clock.
type Client struct {
	conn   *websocket.Conn
	engine *Engine
	deps   Deps

	send      chan outbound
	closed    chan struct{}
	closeOnce sync.Once

	// lastActivity is the unix-milli timestamp of the most recent inbound
	// message, read by the liveness ticker.
	lastActivity atomic.Int64
	state        atomic.Value
}

// ServeConn runs a device session over an upgraded connection and blocks
// until the session closes. authDeviceID is the identity proven by the
// transport credentials.
func ServeConn(conn *websocket.Conn, hub *Hub, authDeviceID string, deps Deps) {
	client := &Client{
		conn:   conn,
		deps:   deps,
		send:   make(chan outbound, deps.SendQueueSize),
		closed: make(chan struct{}),
	}
	client.engine = newEngine(client, hub, authDeviceID, deps)
	client.state.Store(entities.StateConnecting)
	client.touch()

	go client.writePump()
	go client.readPump()
	client.engine.Run()
}

func (c *Client) touch() {
	c.lastActivity.Store(time.Now().UnixMilli())
}

func (c *Client) idleFor() time.Duration {
	last := time.UnixMilli(c.lastActivity.Load())
	return time.Since(last)
}

func (c *Client) setPublishedState(state entities.SessionState) {
	c.state.Store(state)
}

func (c *Client) publishedState() entities.SessionState {
	return c.state.Load().(entities.SessionState)
}

// clientID is safe to read from other goroutines because the identity is
// set exactly once, before the client enters the registry.
func (c *Client) clientID() string {
	return c.engine.session.Identity.ClientID
}

// supersede tells the engine a newer connection took over this identity.
func (c *Client) supersede() {
	c.engine.enqueue(shutdownRequest{
		code:    protocol.CodeSuperseded,
		message: "session superseded by a newer connection",
	})
}

// sendControl queues a JSON control frame. It blocks under back-pressure
// and reports false once the connection is closed.
func (c *Client) sendControl(msg any) bool {
	data, err := protocol.Encode(msg)
	if err != nil {
		c.deps.Logger.Error("Failed to encode control frame", zap.Error(err))
		return true
	}
	return c.queue(outbound{messageType: websocket.TextMessage, data: data})
}

// sendAudio queues a binary audio frame.
func (c *Client) sendAudio(frame []byte) bool {
	return c.queue(outbound{messageType: websocket.BinaryMessage, data: frame})
}

func (c *Client) queue(ob outbound) bool {
	select {
	case c.send <- ob:
		return true
	case <-c.closed:
		return false
	}
}

// closeConnection starts teardown. The write pump flushes queued frames and
// closes the socket, which unblocks the read pump.
func (c *Client) closeConnection() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

// readPump feeds inbound traffic into the engine until the socket dies.
func (c *Client) readPump() {
	c.conn.SetReadLimit(c.deps.MaxMessageSize)

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.engine.enqueue(connectionClosed{err: err})
			return
		}
		c.touch()

		switch messageType {
		case websocket.TextMessage:
			msg, err := protocol.Parse(data)
			if err != nil {
				if !c.engine.enqueue(inboundBroken{err: err}) {
					return
				}
				continue
			}
			if !c.engine.enqueue(inboundControl{msg: msg}) {
				return
			}
		case websocket.BinaryMessage:
			if !c.engine.enqueue(inboundAudio{frame: data}) {
				return
			}
		}
	}
}

// writePump drains the send queue and runs the liveness clock. A device
// silent past the heartbeat interval gets a ping; silent past the liveness
// timeout, the session is declared dead.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.deps.HeartbeatInterval / 2)
	defer ticker.Stop()
	defer c.conn.Close()
	// Exiting for any reason unblocks senders stuck on a full queue.
	defer c.closeConnection()

	var lastPing time.Time

	for {
		select {
		case ob := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.deps.WriteTimeout))
			if err := c.conn.WriteMessage(ob.messageType, ob.data); err != nil {
				// Signal closure first: the engine may be blocked on a full
				// send queue, and nothing drains it once this pump exits.
				c.closeConnection()
				c.engine.enqueue(connectionClosed{err: err})
				return
			}

		case <-ticker.C:
			idle := c.idleFor()
			if idle >= c.deps.LivenessTimeout {
				c.closeConnection()
				c.engine.enqueue(livenessExpired{})
				return
			}
			if idle >= c.deps.HeartbeatInterval && time.Since(lastPing) >= c.deps.HeartbeatInterval {
				data, err := protocol.Encode(protocol.NewPing(time.Now()))
				if err != nil {
					continue
				}
				c.conn.SetWriteDeadline(time.Now().Add(c.deps.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
					c.closeConnection()
					c.engine.enqueue(connectionClosed{err: err})
					return
				}
				lastPing = time.Now()
			}

		case <-c.closed:
			// Flush whatever the engine queued before it shut down, then
			// say goodbye.
			for {
				select {
				case ob := <-c.send:
					c.conn.SetWriteDeadline(time.Now().Add(c.deps.WriteTimeout))
					if c.conn.WriteMessage(ob.messageType, ob.data) != nil {
						return
					}
				default:
					c.conn.SetWriteDeadline(time.Now().Add(c.deps.WriteTimeout))
					c.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}
