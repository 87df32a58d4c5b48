package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	elevenLabsBaseURL   = "https://api.elevenlabs.io/v1"
	elevenLabsVoiceID   = "21m00Tcm4TlvDq8ikWAM"
	elevenLabsModelID   = "eleven_multilingual_v2"
	elevenLabsFormat    = "pcm_16000"
	elevenLabsChunkSize = 1920 // one 60ms frame at 16kHz/16-bit mono
	elevenLabsStability = 0.5
	elevenLabsClarity   = 0.75
)

// ElevenLabsSynthesizer implements Synthesizer against the ElevenLabs
// streaming endpoint. Reply audio is re-framed into fixed-size PCM chunks
// matching the device frame duration.
type ElevenLabsSynthesizer struct {
	apiKey    string
	baseURL   string
	voiceID   string
	modelID   string
	format    string
	chunkSize int
	client    *http.Client
	logger    *zap.Logger
}

func NewElevenLabsSynthesizer(apiKey, voiceID string, logger *zap.Logger) (*ElevenLabsSynthesizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("elevenlabs api key is required")
	}
	if voiceID == "" {
		voiceID = elevenLabsVoiceID
	}
	return &ElevenLabsSynthesizer{
		apiKey:    apiKey,
		baseURL:   elevenLabsBaseURL,
		voiceID:   voiceID,
		modelID:   elevenLabsModelID,
		format:    elevenLabsFormat,
		chunkSize: elevenLabsChunkSize,
		client:    &http.Client{Timeout: 60 * time.Second},
		logger:    logger,
	}, nil
}

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

func (e *ElevenLabsSynthesizer) Synthesize(ctx context.Context, text string) (<-chan []byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	body, err := json.Marshal(synthesisRequest{
		Text:    text,
		ModelID: e.modelID,
		VoiceSettings: voiceSettings{
			Stability:       elevenLabsStability,
			SimilarityBoost: elevenLabsClarity,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal synthesis request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s/stream?output_format=%s&enable_logging=false",
		e.baseURL, e.voiceID, e.format)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build synthesis request: %w", err)
	}
	req.Header.Set("Accept", "audio/pcm")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.apiKey)

	chunks := make(chan []byte, eventBuffer)
	go e.stream(ctx, req, chunks)
	return chunks, nil
}

func (e *ElevenLabsSynthesizer) stream(ctx context.Context, req *http.Request, chunks chan<- []byte) {
	defer close(chunks)

	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Error("Synthesis request failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(resp.Body)
		e.logger.Error("Synthesis rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("response", string(detail)))
		return
	}

	buffer := make([]byte, e.chunkSize)
	for {
		n, err := io.ReadFull(resp.Body, buffer)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buffer[:n])
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return
		}
		if err != nil {
			e.logger.Error("Error reading synthesis stream", zap.Error(err))
			return
		}
	}
}
