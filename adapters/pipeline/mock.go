package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wicaksana/gema/domain/entities"
	"github.com/wicaksana/gema/domain/repositories"
)

// MockPipeline is a placeholder conversational pipeline for running the
// server without provider credentials. It fabricates a transcript from the
// span size and replies with patterned PCM audio.
type MockPipeline struct {
	logger *zap.Logger
}

func NewMockPipeline(logger *zap.Logger) *MockPipeline {
	return &MockPipeline{logger: logger}
}

func (m *MockPipeline) Run(ctx context.Context, req repositories.ExchangeRequest) (<-chan repositories.PipelineEvent, error) {
	var total int
	for _, frame := range req.Frames {
		total += len(frame)
	}
	m.logger.Info("Running mock exchange",
		zap.String("sessionID", req.SessionID),
		zap.Int("frames", len(req.Frames)),
		zap.Int("bytes", total))

	transcript := mockTranscript(total)

	events := make(chan repositories.PipelineEvent, eventBuffer)
	go func() {
		defer close(events)
		if !emitEvent(ctx, events, repositories.PipelineEvent{Kind: repositories.EventTranscript, Text: transcript}) {
			return
		}
		m.emitAudio(ctx, events, len(transcript))
		emitEvent(ctx, events, repositories.PipelineEvent{Kind: repositories.EventCompleted})
	}()
	return events, nil
}

func (m *MockPipeline) Speak(ctx context.Context, identity entities.DeviceIdentity, text string) (<-chan repositories.PipelineEvent, error) {
	m.logger.Info("Running mock push speak",
		zap.String("deviceID", identity.DeviceID),
		zap.String("text", text))

	events := make(chan repositories.PipelineEvent, eventBuffer)
	go func() {
		defer close(events)
		m.emitAudio(ctx, events, len(text))
		emitEvent(ctx, events, repositories.PipelineEvent{Kind: repositories.EventCompleted})
	}()
	return events, nil
}

func (m *MockPipeline) NotifyWakeword(identity entities.DeviceIdentity, detectedAt time.Time) {
	m.logger.Info("Mock wakeword hint",
		zap.String("deviceID", identity.DeviceID),
		zap.Time("detectedAt", detectedAt))
}

// emitAudio streams a few patterned frames sized like real 60ms PCM.
func (m *MockPipeline) emitAudio(ctx context.Context, events chan<- repositories.PipelineEvent, textLen int) {
	frames := 2 + textLen/16
	if frames > 25 {
		frames = 25
	}
	for i := 0; i < frames; i++ {
		frame := make([]byte, elevenLabsChunkSize)
		for j := range frame {
			frame[j] = byte((i + j) % 256)
		}
		if !emitEvent(ctx, events, repositories.PipelineEvent{Kind: repositories.EventAudioChunk, Audio: frame}) {
			return
		}
	}
}

// emitEvent delivers one event unless the exchange was cancelled.
func emitEvent(ctx context.Context, events chan<- repositories.PipelineEvent, ev repositories.PipelineEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func mockTranscript(spanBytes int) string {
	switch {
	case spanBytes > 100000:
		return "Tell me a long story about today."
	case spanBytes > 20000:
		return "What is the weather like right now?"
	case spanBytes > 2000:
		return "Hello there!"
	default:
		return "Hi"
	}
}
