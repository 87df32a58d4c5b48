package repositories

import (
	"context"
	"time"

	"github.com/wicaksana/gema/domain/entities"
)

// PipelineEventKind tags events streamed back from the conversational
// pipeline during an exchange.
type PipelineEventKind string

const (
	// EventTranscript carries the recognized text for the submitted span.
	EventTranscript PipelineEventKind = "transcript"
	// EventAudioChunk carries one frame of synthesized reply audio.
	EventAudioChunk PipelineEventKind = "audio_chunk"
	// EventCompleted is the final event of a successful run.
	EventCompleted PipelineEventKind = "completed"
	// EventFailed is the final event of a failed run.
	EventFailed PipelineEventKind = "failed"
)

// PipelineEvent is one element of the stream a pipeline run produces.
// Exactly one terminal event (EventCompleted or EventFailed) ends the
// stream, after which the channel is closed.
type PipelineEvent struct {
	Kind  PipelineEventKind
	Text  string
	Audio []byte
	Err   error
}

// ExchangeRequest is a closed device->server audio span handed to the
// pipeline. Frames are in arrival order and must be consumed as such.
type ExchangeRequest struct {
	SessionID string
	Identity  entities.DeviceIdentity
	Format    entities.AudioFormat
	Frames    [][]byte
}

// ConversationPipeline abstracts the external conversational system that
// turns recognized speech into a reply. Implementations must honor ctx
// cancellation by terminating the event stream promptly; the caller treats
// cancellation as cooperative and never waits on it.
type ConversationPipeline interface {
	// Run submits one exchange and streams its events back.
	Run(ctx context.Context, req ExchangeRequest) (<-chan PipelineEvent, error)

	// Speak synthesizes reply audio for server-initiated speech; the event
	// stream carries audio chunks followed by a terminal event, with no
	// transcript.
	Speak(ctx context.Context, identity entities.DeviceIdentity, text string) (<-chan PipelineEvent, error)

	// NotifyWakeword forwards a device wake event as a warm-up hint. It must
	// not block and must not open an exchange.
	NotifyWakeword(identity entities.DeviceIdentity, detectedAt time.Time)
}
