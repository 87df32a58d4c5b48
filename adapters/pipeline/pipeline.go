// Package pipeline provides ConversationPipeline implementations: the
// built-in assist pipeline composing provider stages, and a scriptable mock
// for local development.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wicaksana/gema/domain/entities"
	"github.com/wicaksana/gema/domain/repositories"
)

const eventBuffer = 16

// AssistPipeline runs an exchange through three stages: speech recognition,
// reply generation and speech synthesis. Each stage is pluggable.
type AssistPipeline struct {
	transcriber repositories.Transcriber
	responder   repositories.Responder
	synthesizer repositories.Synthesizer
	language    string
	logger      *zap.Logger
}

func NewAssistPipeline(
	transcriber repositories.Transcriber,
	responder repositories.Responder,
	synthesizer repositories.Synthesizer,
	language string,
	logger *zap.Logger,
) *AssistPipeline {
	return &AssistPipeline{
		transcriber: transcriber,
		responder:   responder,
		synthesizer: synthesizer,
		language:    language,
		logger:      logger,
	}
}

func (p *AssistPipeline) Run(ctx context.Context, req repositories.ExchangeRequest) (<-chan repositories.PipelineEvent, error) {
	if len(req.Frames) == 0 {
		return nil, fmt.Errorf("exchange %s carries no audio", req.SessionID)
	}
	events := make(chan repositories.PipelineEvent, eventBuffer)
	go p.run(ctx, req, events)
	return events, nil
}

func (p *AssistPipeline) run(ctx context.Context, req repositories.ExchangeRequest, events chan<- repositories.PipelineEvent) {
	defer close(events)

	emit := func(ev repositories.PipelineEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(err error) {
		p.logger.Error("Exchange failed",
			zap.String("sessionID", req.SessionID),
			zap.Error(err))
		emit(repositories.PipelineEvent{Kind: repositories.EventFailed, Err: err})
	}

	stream, err := p.transcriber.OpenStream(ctx, repositories.AudioConfig{
		SampleRate: req.Format.SampleRate,
		Encoding:   "LINEAR16",
		Language:   p.language,
	})
	if err != nil {
		fail(fmt.Errorf("open recognition stream: %w", err))
		return
	}

	for _, frame := range req.Frames {
		if err := stream.Feed(frame); err != nil {
			fail(fmt.Errorf("feed recognition stream: %w", err))
			return
		}
	}

	transcript, err := stream.End()
	if err != nil {
		fail(fmt.Errorf("finish recognition: %w", err))
		return
	}
	if !emit(repositories.PipelineEvent{Kind: repositories.EventTranscript, Text: transcript}) {
		return
	}

	reply, err := p.responder.Reply(ctx, req.Identity.DeviceID, transcript)
	if err != nil {
		fail(fmt.Errorf("generate reply: %w", err))
		return
	}

	if reply == "" {
		emit(repositories.PipelineEvent{Kind: repositories.EventCompleted})
		return
	}
	if !p.synthesize(ctx, reply, emit, fail) {
		return
	}
	emit(repositories.PipelineEvent{Kind: repositories.EventCompleted})
}

func (p *AssistPipeline) Speak(ctx context.Context, identity entities.DeviceIdentity, text string) (<-chan repositories.PipelineEvent, error) {
	if text == "" {
		return nil, fmt.Errorf("nothing to speak for device %s", identity.DeviceID)
	}
	events := make(chan repositories.PipelineEvent, eventBuffer)
	go func() {
		defer close(events)
		emit := func(ev repositories.PipelineEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		fail := func(err error) {
			p.logger.Error("Push speak failed",
				zap.String("deviceID", identity.DeviceID),
				zap.Error(err))
			emit(repositories.PipelineEvent{Kind: repositories.EventFailed, Err: err})
		}
		if !p.synthesize(ctx, text, emit, fail) {
			return
		}
		emit(repositories.PipelineEvent{Kind: repositories.EventCompleted})
	}()
	return events, nil
}

// synthesize streams reply audio into the event channel. It reports false
// when the run must stop without a completion event.
func (p *AssistPipeline) synthesize(ctx context.Context, text string, emit func(repositories.PipelineEvent) bool, fail func(error)) bool {
	chunks, err := p.synthesizer.Synthesize(ctx, text)
	if err != nil {
		fail(fmt.Errorf("synthesize reply: %w", err))
		return false
	}
	for chunk := range chunks {
		if !emit(repositories.PipelineEvent{Kind: repositories.EventAudioChunk, Audio: chunk}) {
			return false
		}
	}
	return true
}

// NotifyWakeword is a warm-up hint only; the assist pipeline has no state to
// warm, so it just records the event.
func (p *AssistPipeline) NotifyWakeword(identity entities.DeviceIdentity, detectedAt time.Time) {
	p.logger.Debug("Wakeword detected",
		zap.String("deviceID", identity.DeviceID),
		zap.Time("detectedAt", detectedAt))
}
