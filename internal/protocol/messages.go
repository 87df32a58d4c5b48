// Package protocol implements the control-frame codec for the device link.
// A connection carries two frame kinds: JSON control messages, handled here,
// and opaque binary audio frames, passed through untouched.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wicaksana/gema/domain/entities"
)

// Type tags a control message.
type Type string

const (
	TypeHello             Type = "hello"
	TypeHelloAck          Type = "hello_ack"
	TypeWakewordDetected  Type = "wakeword_detected"
	TypeStartListen       Type = "start_listen"
	TypeStopListen        Type = "stop_listen"
	TypeRecognitionResult Type = "recognition_result"
	TypeTTSStart          Type = "tts_start"
	TypeTTSEnd            Type = "tts_end"
	TypeError             Type = "error"
	TypePing              Type = "ping"
	TypePong              Type = "pong"
)

// Error codes carried by error frames.
const (
	CodeInvalidMessage     = "invalid_message"
	CodeUnauthorized       = "unauthorized"
	CodeServerError        = "server_error"
	CodeProtocolViolation  = "protocol_violation"
	CodePipelineError      = "pipeline_error"
	CodeSuperseded         = "superseded"
	CodeUnsupportedVersion = "unsupported_version"
)

// ErrMalformedMessage is returned for frames the codec refuses to parse:
// broken JSON, an unrecognized type tag, or missing required fields. The
// session layer must treat it as a protocol violation, never recover inline.
var ErrMalformedMessage = errors.New("malformed control message")

// Envelope is the minimal shape shared by every control message.
type Envelope struct {
	Type Type `json:"type"`
}

// Hello is the device's handshake.
type Hello struct {
	Type        Type                  `json:"type"`
	Version     int                   `json:"version"`
	DeviceID    string                `json:"device_id"`
	ClientID    string                `json:"client_id"`
	AudioParams *entities.AudioFormat `json:"audio_params,omitempty"`
}

// HelloAck confirms the handshake with the negotiated session parameters.
type HelloAck struct {
	Type        Type                 `json:"type"`
	Version     int                  `json:"version"`
	SessionID   string               `json:"session_id"`
	AudioParams entities.AudioFormat `json:"audio_params"`
}

// Timestamped covers wakeword_detected, start_listen, stop_listen, ping and
// pong: a type tag plus a unix-millisecond timestamp.
type Timestamped struct {
	Type      Type  `json:"type"`
	Timestamp int64 `json:"timestamp,omitempty"`
}

// Marker covers tts_start and tts_end, which carry no payload.
type Marker struct {
	Type Type `json:"type"`
}

// RecognitionResult delivers the recognized text for a closed span.
type RecognitionResult struct {
	Type Type   `json:"type"`
	Text string `json:"text"`
}

// ErrorMessage reports a failure with a machine-readable code.
type ErrorMessage struct {
	Type    Type   `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Parse decodes one text frame into its typed message. Any structural
// problem yields ErrMalformedMessage; there is no partial parsing.
func Parse(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch env.Type {
	case TypeHello:
		var msg Hello
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		if msg.Version == 0 || msg.DeviceID == "" || msg.ClientID == "" {
			return nil, fmt.Errorf("%w: hello requires version, device_id and client_id", ErrMalformedMessage)
		}
		return msg, nil

	case TypeHelloAck:
		var msg HelloAck
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return msg, nil

	case TypeWakewordDetected, TypeStartListen, TypeStopListen, TypePing:
		var msg Timestamped
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		if msg.Timestamp == 0 {
			return nil, fmt.Errorf("%w: %s requires timestamp", ErrMalformedMessage, env.Type)
		}
		return msg, nil

	case TypePong:
		var msg Timestamped
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return msg, nil

	case TypeTTSStart, TypeTTSEnd:
		return Marker{Type: env.Type}, nil

	case TypeRecognitionResult:
		var msg RecognitionResult
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		if msg.Text == "" {
			return nil, fmt.Errorf("%w: recognition_result requires text", ErrMalformedMessage)
		}
		return msg, nil

	case TypeError:
		var msg ErrorMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		if msg.Code == "" {
			return nil, fmt.Errorf("%w: error requires code", ErrMalformedMessage)
		}
		return msg, nil

	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, env.Type)
	}
}

// Encode serializes a control message for the wire.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func NewHelloAck(sessionID string, version int, format entities.AudioFormat) HelloAck {
	return HelloAck{Type: TypeHelloAck, Version: version, SessionID: sessionID, AudioParams: format}
}

func NewErrorMessage(code, message string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Code: code, Message: message}
}

func NewRecognitionResult(text string) RecognitionResult {
	return RecognitionResult{Type: TypeRecognitionResult, Text: text}
}

func NewPing(now time.Time) Timestamped {
	return Timestamped{Type: TypePing, Timestamp: now.UnixMilli()}
}

func NewPong(now time.Time) Timestamped {
	return Timestamped{Type: TypePong, Timestamp: now.UnixMilli()}
}

func NewMarker(t Type) Marker {
	return Marker{Type: t}
}
