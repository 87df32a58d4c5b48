package entities

import (
	"errors"
	"fmt"
	"time"
)

// ProtocolVersion is the only wire protocol version this server accepts.
const ProtocolVersion = 1

// SessionState enumerates the lifecycle of one connected terminal.
type SessionState string

const (
	StateConnecting SessionState = "connecting"
	StateIdle       SessionState = "idle"
	StateListening  SessionState = "listening"
	StateProcessing SessionState = "processing"
	StateSpeaking   SessionState = "speaking"
	StateError      SessionState = "error"
	StateClosed     SessionState = "closed"
)

var (
	ErrBadTransition      = errors.New("illegal session transition")
	ErrExchangeOpen       = errors.New("an exchange is already open")
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
)

// AudioFormat is the negotiated framing for device-side audio.
type AudioFormat struct {
	SampleRate      int `json:"sample_rate"`
	BitDepth        int `json:"bit_depth"`
	Channels        int `json:"channels"`
	FrameDurationMs int `json:"frame_duration_ms"`
}

// DefaultAudioFormat is used when the device proposes nothing at hello time.
func DefaultAudioFormat() AudioFormat {
	return AudioFormat{
		SampleRate:      16000,
		BitDepth:        16,
		Channels:        1,
		FrameDurationMs: 60,
	}
}

// Session holds the negotiated state for one live connection. It is owned by
// a single goroutine; none of these methods are safe for concurrent use.
type Session struct {
	ID           string
	Identity     DeviceIdentity
	Version      int
	Audio        AudioFormat
	CreatedAt    time.Time
	LastActivity time.Time

	state        SessionState
	exchangeOpen bool
}

// NewSession returns a pre-handshake session.
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		CreatedAt:    now,
		LastActivity: now,
		state:        StateConnecting,
	}
}

func (s *Session) State() SessionState { return s.state }

// ExchangeOpen reports whether a listen/speak cycle is in flight.
func (s *Session) ExchangeOpen() bool { return s.exchangeOpen }

// Terminal reports whether the session can never leave its current state.
func (s *Session) Terminal() bool { return s.state == StateClosed }

// Touch records activity; the liveness monitor reads it back via IdleFor.
func (s *Session) Touch(now time.Time) { s.LastActivity = now }

func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivity)
}

// Handshake consumes a hello and moves Connecting -> Idle. The format is
// taken as proposed; zero-valued fields fall back to the defaults.
func (s *Session) Handshake(identity DeviceIdentity, version int, format AudioFormat) error {
	if s.state != StateConnecting {
		return fmt.Errorf("%w: hello in state %s", ErrBadTransition, s.state)
	}
	if err := identity.Validate(); err != nil {
		return err
	}
	if version != ProtocolVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	def := DefaultAudioFormat()
	if format.SampleRate == 0 {
		format.SampleRate = def.SampleRate
	}
	if format.BitDepth == 0 {
		format.BitDepth = def.BitDepth
	}
	if format.Channels == 0 {
		format.Channels = def.Channels
	}
	if format.FrameDurationMs == 0 {
		format.FrameDurationMs = def.FrameDurationMs
	}
	s.Identity = identity
	s.Version = version
	s.Audio = format
	s.state = StateIdle
	return nil
}

// BeginListening opens a new exchange: Idle -> Listening.
func (s *Session) BeginListening() error {
	if s.exchangeOpen {
		return ErrExchangeOpen
	}
	if s.state != StateIdle {
		return fmt.Errorf("%w: start_listen in state %s", ErrBadTransition, s.state)
	}
	s.state = StateListening
	s.exchangeOpen = true
	return nil
}

// CanAcceptAudio reports whether inbound binary frames are legal right now.
func (s *Session) CanAcceptAudio() bool { return s.state == StateListening }

// FinishListening closes the inbound span: Listening -> Processing.
func (s *Session) FinishListening() error {
	if s.state != StateListening {
		return fmt.Errorf("%w: stop_listen in state %s", ErrBadTransition, s.state)
	}
	s.state = StateProcessing
	return nil
}

// BeginPush opens a server-initiated speak cycle with no listening phase:
// Idle -> Processing.
func (s *Session) BeginPush() error {
	if s.exchangeOpen {
		return ErrExchangeOpen
	}
	if s.state != StateIdle {
		return fmt.Errorf("%w: push speak in state %s", ErrBadTransition, s.state)
	}
	s.state = StateProcessing
	s.exchangeOpen = true
	return nil
}

// BeginSpeaking starts the reply audio span: Processing -> Speaking.
func (s *Session) BeginSpeaking() error {
	if s.state != StateProcessing {
		return fmt.Errorf("%w: tts_start in state %s", ErrBadTransition, s.state)
	}
	s.state = StateSpeaking
	return nil
}

// FinishExchange completes the cycle from either Processing (no speakable
// reply, or an aborted pipeline run) or Speaking, back to Idle.
func (s *Session) FinishExchange() error {
	if s.state != StateProcessing && s.state != StateSpeaking {
		return fmt.Errorf("%w: exchange end in state %s", ErrBadTransition, s.state)
	}
	s.state = StateIdle
	s.exchangeOpen = false
	return nil
}

// Fail moves any non-terminal state to Error. Idempotent.
func (s *Session) Fail() {
	if s.state != StateClosed {
		s.state = StateError
	}
}

// Close is the terminal transition, legal from every state.
func (s *Session) Close() {
	s.state = StateClosed
	s.exchangeOpen = false
}

// transitions is the full legal-move table; anything absent is a violation.
var transitions = map[SessionState][]SessionState{
	StateConnecting: {StateIdle, StateError, StateClosed},
	StateIdle:       {StateListening, StateProcessing, StateError, StateClosed},
	StateListening:  {StateProcessing, StateError, StateClosed},
	StateProcessing: {StateSpeaking, StateIdle, StateError, StateClosed},
	StateSpeaking:   {StateIdle, StateError, StateClosed},
	StateError:      {StateClosed},
	StateClosed:     {},
}

// ValidTransition reports whether from -> to appears in the transition table.
func ValidTransition(from, to SessionState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
