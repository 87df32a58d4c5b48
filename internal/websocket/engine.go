package websocket

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wicaksana/gema/domain/entities"
	"github.com/wicaksana/gema/domain/repositories"
	"github.com/wicaksana/gema/internal/audio"
	"github.com/wicaksana/gema/internal/observability"
	"github.com/wicaksana/gema/internal/protocol"
)

// ErrSessionBusy is returned when a push-speak request hits a session that
// is not idle.
var ErrSessionBusy = errors.New("session is busy")

// sender is the outbound half of a connection. The engine never touches the
// socket directly so tests can run against an in-memory implementation.
// Both send methods block under back-pressure and report false once the
// connection is gone.
type sender interface {
	sendControl(msg any) bool
	sendAudio(frame []byte) bool
	closeConnection()
}

// Engine events. Everything that can mutate a session funnels through one
// channel and is handled in strict arrival order by the Run goroutine.
type (
	inboundControl struct{ msg any }
	inboundAudio   struct{ frame []byte }
	inboundBroken  struct{ err error }

	pipelineSignal struct {
		exchangeID string
		event      repositories.PipelineEvent
	}

	speakRequest struct {
		text  string
		reply chan error
	}

	shutdownRequest struct {
		code    string
		message string
	}

	livenessExpired  struct{}
	connectionClosed struct{ err error }
)

// Engine owns one session: it validates every incoming event against the
// state machine, drives the pipeline exchange, and emits outbound frames.
type Engine struct {
	out      sender
	hub      *Hub
	pipeline repositories.ConversationPipeline
	sink     repositories.ConnectivitySink
	metrics  *observability.Metrics
	logger   *zap.Logger

	maxSpanBytes int

	// authDeviceID is the identity proven at the transport layer; the hello
	// frame must agree with it.
	authDeviceID string

	session *entities.Session
	span    *audio.Span

	exchangeID     string
	exchangeCancel context.CancelFunc
	exchangeStart  time.Time

	registered bool

	events chan any
	done   chan struct{}
}

func newEngine(out sender, hub *Hub, authDeviceID string, deps Deps) *Engine {
	return &Engine{
		out:          out,
		hub:          hub,
		pipeline:     deps.Pipeline,
		sink:         deps.Sink,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		maxSpanBytes: deps.MaxSpanBytes,
		authDeviceID: authDeviceID,
		session:      entities.NewSession(uuid.NewString()),
		events:       make(chan any, 64),
		done:         make(chan struct{}),
	}
}

// Run consumes events until the session closes. It is the session's single
// owning goroutine; nothing else reads or writes session state.
func (e *Engine) Run() {
	defer e.finalize()
	for ev := range e.events {
		if stop := e.handle(ev); stop {
			return
		}
	}
}

// enqueue delivers an event unless the engine has already stopped.
func (e *Engine) enqueue(ev any) bool {
	select {
	case e.events <- ev:
		return true
	case <-e.done:
		return false
	}
}

// Speak requests a server-initiated speaking cycle and waits for the engine
// to accept or reject it.
func (e *Engine) Speak(ctx context.Context, text string) error {
	req := speakRequest{text: text, reply: make(chan error, 1)}
	select {
	case e.events <- req:
	case <-e.done:
		return ErrDeviceNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-e.done:
		return ErrDeviceNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) handle(ev any) (stop bool) {
	now := time.Now()
	e.session.Touch(now)

	switch ev := ev.(type) {
	case inboundControl:
		return e.handleControl(ev.msg, now)
	case inboundAudio:
		return e.handleAudio(ev.frame)
	case inboundBroken:
		return e.violation(protocol.CodeInvalidMessage, ev.err.Error())
	case pipelineSignal:
		return e.handlePipeline(ev)
	case speakRequest:
		return e.handleSpeak(ev)
	case shutdownRequest:
		e.out.sendControl(protocol.NewErrorMessage(ev.code, ev.message))
		e.session.Fail()
		e.publishState()
		return true
	case livenessExpired:
		// The socket is unresponsive; no error frame, per the timeout policy.
		e.logger.Warn("Session timed out", zap.String("deviceID", e.deviceID()))
		return true
	case connectionClosed:
		return true
	default:
		e.logger.Error("Unknown engine event", zap.Any("event", ev))
		return false
	}
}

func (e *Engine) handleControl(msg any, now time.Time) (stop bool) {
	e.countInbound(msg)

	switch msg := msg.(type) {
	case protocol.Hello:
		return e.handleHello(msg)

	case protocol.Timestamped:
		switch msg.Type {
		case protocol.TypeWakewordDetected:
			if e.session.State() != entities.StateIdle {
				return e.violation(protocol.CodeProtocolViolation, "wakeword_detected outside idle")
			}
			// Informational: forwarded as a warm-up hint, never opens a cycle.
			e.pipeline.NotifyWakeword(e.session.Identity, time.UnixMilli(msg.Timestamp))
			return false

		case protocol.TypeStartListen:
			if err := e.session.BeginListening(); err != nil {
				return e.violation(protocol.CodeProtocolViolation, err.Error())
			}
			e.span = audio.NewSpan(e.session.Audio, e.maxSpanBytes)
			e.publishState()
			return false

		case protocol.TypeStopListen:
			return e.handleStopListen()

		case protocol.TypePing:
			if !e.out.sendControl(protocol.NewPong(now)) {
				return true
			}
			return false

		case protocol.TypePong:
			// Activity already recorded; nothing else to do.
			return false
		}
		return e.violation(protocol.CodeProtocolViolation, "unexpected message "+string(msg.Type))

	default:
		// Server-originated types arriving from the device are out of order.
		return e.violation(protocol.CodeProtocolViolation, "unexpected server-side message from device")
	}
}

func (e *Engine) handleHello(msg protocol.Hello) (stop bool) {
	if e.authDeviceID != "" && msg.DeviceID != e.authDeviceID {
		e.out.sendControl(protocol.NewErrorMessage(protocol.CodeUnauthorized, "device_id does not match credentials"))
		e.session.Fail()
		return true
	}

	identity := entities.DeviceIdentity{DeviceID: msg.DeviceID, ClientID: msg.ClientID}
	format := entities.AudioFormat{}
	if msg.AudioParams != nil {
		format = *msg.AudioParams
	}

	if err := e.session.Handshake(identity, msg.Version, format); err != nil {
		code := protocol.CodeInvalidMessage
		if errors.Is(err, entities.ErrUnsupportedVersion) {
			code = protocol.CodeUnsupportedVersion
		} else if errors.Is(err, entities.ErrBadTransition) {
			code = protocol.CodeProtocolViolation
		}
		return e.violation(code, err.Error())
	}

	e.hub.Register(identity.DeviceID, e.client())
	e.registered = true
	e.metrics.ActiveSessions.Inc()

	ack := protocol.NewHelloAck(e.session.ID, e.session.Version, e.session.Audio)
	if !e.out.sendControl(ack) {
		return true
	}
	e.publishState()
	e.logger.Info("Device connected",
		zap.String("deviceID", identity.DeviceID),
		zap.String("clientID", identity.ClientID),
		zap.String("sessionID", e.session.ID))
	return false
}

func (e *Engine) handleAudio(frame []byte) (stop bool) {
	e.metrics.WSMessages.WithLabelValues("in", "audio").Inc()

	if !e.session.CanAcceptAudio() {
		return e.violation(protocol.CodeProtocolViolation, "audio frame outside listening")
	}
	if err := e.span.Append(frame); err != nil {
		return e.violation(protocol.CodeProtocolViolation, err.Error())
	}
	return false
}

func (e *Engine) handleStopListen() (stop bool) {
	if err := e.session.FinishListening(); err != nil {
		return e.violation(protocol.CodeProtocolViolation, err.Error())
	}
	e.span.Close()
	e.publishState()

	e.logger.Info("Listening span closed",
		zap.String("deviceID", e.deviceID()),
		zap.Int("frames", e.span.FrameCount()),
		zap.Int("bytes", e.span.Bytes()),
		zap.Duration("duration", e.span.Duration()))

	req := repositories.ExchangeRequest{
		SessionID: e.session.ID,
		Identity:  e.session.Identity,
		Format:    e.session.Audio,
		Frames:    e.span.Frames(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	events, err := e.pipeline.Run(ctx, req)
	if err != nil {
		cancel()
		return e.pipelineFailure(err)
	}
	e.openExchange(cancel)
	go e.forwardPipeline(e.exchangeID, events)
	return false
}

func (e *Engine) handleSpeak(req speakRequest) (stop bool) {
	if err := e.session.BeginPush(); err != nil {
		req.reply <- ErrSessionBusy
		return false
	}
	e.publishState()

	ctx, cancel := context.WithCancel(context.Background())
	events, err := e.pipeline.Speak(ctx, e.session.Identity, req.text)
	if err != nil {
		cancel()
		req.reply <- err
		return e.pipelineFailure(err)
	}
	e.openExchange(cancel)
	go e.forwardPipeline(e.exchangeID, events)
	req.reply <- nil
	return false
}

func (e *Engine) handlePipeline(sig pipelineSignal) (stop bool) {
	if sig.exchangeID != e.exchangeID {
		// Stale event from an exchange that was already cancelled.
		return false
	}

	switch sig.event.Kind {
	case repositories.EventTranscript:
		if e.session.State() != entities.StateProcessing {
			return false
		}
		if !e.out.sendControl(protocol.NewRecognitionResult(sig.event.Text)) {
			return true
		}
		e.metrics.WSMessages.WithLabelValues("out", string(protocol.TypeRecognitionResult)).Inc()
		return false

	case repositories.EventAudioChunk:
		if e.session.State() == entities.StateProcessing {
			if err := e.session.BeginSpeaking(); err != nil {
				return e.violation(protocol.CodeServerError, err.Error())
			}
			if !e.out.sendControl(protocol.NewMarker(protocol.TypeTTSStart)) {
				return true
			}
			e.publishState()
		}
		if e.session.State() != entities.StateSpeaking {
			return false
		}
		if !e.out.sendAudio(sig.event.Audio) {
			return true
		}
		e.metrics.WSMessages.WithLabelValues("out", "audio").Inc()
		return false

	case repositories.EventCompleted:
		speaking := e.session.State() == entities.StateSpeaking
		if err := e.session.FinishExchange(); err != nil {
			return e.violation(protocol.CodeServerError, err.Error())
		}
		if speaking {
			if !e.out.sendControl(protocol.NewMarker(protocol.TypeTTSEnd)) {
				return true
			}
		}
		e.closeExchange()
		e.publishState()
		return false

	case repositories.EventFailed:
		return e.pipelineFailure(sig.event.Err)

	default:
		e.logger.Error("Unknown pipeline event", zap.String("kind", string(sig.event.Kind)))
		return false
	}
}

// pipelineFailure aborts the open exchange but keeps the session alive; the
// device may retry with a fresh start_listen.
func (e *Engine) pipelineFailure(err error) (stop bool) {
	e.metrics.PipelineFailures.Inc()
	e.logger.Error("Pipeline exchange failed",
		zap.String("deviceID", e.deviceID()),
		zap.Error(err))

	e.closeExchange()
	if !e.out.sendControl(protocol.NewErrorMessage(protocol.CodePipelineError, err.Error())) {
		return true
	}
	if ferr := e.session.FinishExchange(); ferr != nil {
		// Failure outside an open exchange is a server bug, not recoverable.
		return e.violation(protocol.CodeServerError, ferr.Error())
	}
	e.publishState()
	return false
}

// violation handles a fatal protocol error: best-effort error frame, Error
// state, then teardown.
func (e *Engine) violation(code, message string) (stop bool) {
	e.metrics.ProtocolErrors.WithLabelValues(code).Inc()
	e.logger.Warn("Protocol violation",
		zap.String("deviceID", e.deviceID()),
		zap.String("code", code),
		zap.String("detail", message))

	e.out.sendControl(protocol.NewErrorMessage(code, message))
	e.session.Fail()
	e.publishState()
	return true
}

// forwardPipeline relays pipeline events into the engine's event queue so
// they are serialized with socket traffic.
func (e *Engine) forwardPipeline(exchangeID string, events <-chan repositories.PipelineEvent) {
	for ev := range events {
		if !e.enqueue(pipelineSignal{exchangeID: exchangeID, event: ev}) {
			return
		}
	}
}

func (e *Engine) openExchange(cancel context.CancelFunc) {
	e.exchangeID = uuid.NewString()
	e.exchangeCancel = cancel
	e.exchangeStart = time.Now()
}

func (e *Engine) closeExchange() {
	if e.exchangeCancel != nil {
		e.exchangeCancel()
		e.exchangeCancel = nil
		e.metrics.ObserveExchange(time.Since(e.exchangeStart))
	}
	e.exchangeID = ""
}

// finalize releases everything the session owns. Runs exactly once, when
// the Run loop exits.
func (e *Engine) finalize() {
	close(e.done)
	e.closeExchange()
	e.session.Close()
	if e.registered {
		e.metrics.ActiveSessions.Dec()
		e.hub.Remove(e.session.Identity.DeviceID, e.client())
		e.publishState()
	}
	e.out.closeConnection()
}

// publishState mirrors the current state to the connectivity sink and the
// metrics, and caches it for registry snapshots.
func (e *Engine) publishState() {
	state := e.session.State()
	e.metrics.StateTransitions.WithLabelValues(string(state)).Inc()
	if c := e.client(); c != nil {
		c.setPublishedState(state)
	}
	if e.registered {
		e.sink.Publish(e.session.Identity.DeviceID, state)
	}
}

func (e *Engine) countInbound(msg any) {
	typ := "unknown"
	switch msg := msg.(type) {
	case protocol.Hello:
		typ = string(protocol.TypeHello)
	case protocol.Timestamped:
		typ = string(msg.Type)
	case protocol.Marker:
		typ = string(msg.Type)
	case protocol.ErrorMessage:
		typ = string(protocol.TypeError)
	}
	e.metrics.WSMessages.WithLabelValues("in", typ).Inc()
}

func (e *Engine) deviceID() string {
	return e.session.Identity.DeviceID
}

// client returns the concrete connection when the sender is one; engine
// tests use a bare fake and get nil.
func (e *Engine) client() *Client {
	c, _ := e.out.(*Client)
	return c
}
