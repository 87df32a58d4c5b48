// Package audio buffers device-side audio for the duration of a listening
// phase. Frames are opaque encoded payloads; the codec is never inspected.
package audio

import (
	"errors"
	"time"

	"github.com/wicaksana/gema/domain/entities"
)

var (
	// ErrSpanClosed is returned when a frame arrives after stop_listen.
	ErrSpanClosed = errors.New("audio span already closed")
	// ErrSpanOverflow is returned when a span exceeds its byte budget.
	ErrSpanOverflow = errors.New("audio span exceeds size limit")
	// ErrEmptyFrame is returned for zero-length binary frames.
	ErrEmptyFrame = errors.New("empty audio frame")
)

// DefaultMaxSpanBytes bounds one listening phase. At 16kHz/16-bit mono a
// minute of raw PCM is under 2MB; encoded audio is far smaller.
const DefaultMaxSpanBytes = 4 << 20

// Span accumulates the inbound frames of one listening phase, append-only
// and strictly in arrival order. It is owned by the session goroutine and is
// not safe for concurrent use.
type Span struct {
	format   entities.AudioFormat
	frames   [][]byte
	bytes    int
	maxBytes int
	closed   bool
}

// NewSpan starts an empty span. maxBytes <= 0 selects DefaultMaxSpanBytes.
func NewSpan(format entities.AudioFormat, maxBytes int) *Span {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxSpanBytes
	}
	return &Span{format: format, maxBytes: maxBytes}
}

// Append records one frame. Frames received after Close are errors, never
// silently dropped or appended.
func (s *Span) Append(frame []byte) error {
	if s.closed {
		return ErrSpanClosed
	}
	if len(frame) == 0 {
		return ErrEmptyFrame
	}
	if s.bytes+len(frame) > s.maxBytes {
		return ErrSpanOverflow
	}
	s.frames = append(s.frames, frame)
	s.bytes += len(frame)
	return nil
}

// Close seals the span; subsequent Append calls fail.
func (s *Span) Close() { s.closed = true }

func (s *Span) Closed() bool { return s.closed }

// Frames returns the buffered frames in arrival order. The slice is shared;
// callers take ownership only once the span is closed.
func (s *Span) Frames() [][]byte { return s.frames }

func (s *Span) FrameCount() int { return len(s.frames) }

func (s *Span) Bytes() int { return s.bytes }

// Duration is the nominal length of the span, derived from the negotiated
// per-frame duration rather than payload size.
func (s *Span) Duration() time.Duration {
	return time.Duration(len(s.frames)*s.format.FrameDurationMs) * time.Millisecond
}

// Segment splits a contiguous buffer into frames of at most size bytes,
// preserving order. Used on the outbound path when a synthesizer hands back
// one large buffer instead of a stream.
func Segment(data []byte, size int) [][]byte {
	if size <= 0 || len(data) == 0 {
		if len(data) == 0 {
			return nil
		}
		return [][]byte{data}
	}
	frames := make([][]byte, 0, (len(data)+size-1)/size)
	for start := 0; start < len(data); start += size {
		end := start + size
		if end > len(data) {
			end = len(data)
		}
		frames = append(frames, data[start:end])
	}
	return frames
}
