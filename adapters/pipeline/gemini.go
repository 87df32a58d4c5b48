package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	defaultGeminiModel  = "gemini-2.0-flash"
	geminiReplyTokens   = 256
	geminiReplyTimeout  = 20 * time.Second
	geminiReplyAttempts = 3
)

const replySystemPrompt = "You are the voice of a small home assistant " +
	"device. Answer in one or two short spoken sentences, in the language " +
	"the user spoke."

// GeminiResponder generates reply text with Google's Gemini API.
type GeminiResponder struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

func NewGeminiResponder(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GeminiResponder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiResponder{client: client, model: model, logger: logger}, nil
}

func (g *GeminiResponder) Reply(ctx context.Context, deviceID string, transcript string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(replySystemPrompt, genai.RoleUser),
		genai.NewContentFromText(transcript, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(0.7)),
		MaxOutputTokens: geminiReplyTokens,
	}

	ctx, cancel := context.WithTimeout(ctx, geminiReplyTimeout)
	defer cancel()

	var resp *genai.GenerateContentResponse
	var err error
	for attempt := 0; attempt < geminiReplyAttempts; attempt++ {
		resp, err = g.client.Models.GenerateContent(ctx, g.model, contents, config)
		if err == nil {
			break
		}
		g.logger.Warn("Gemini request failed, retrying",
			zap.String("deviceID", deviceID),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		if attempt < geminiReplyAttempts-1 {
			select {
			case <-time.After(time.Duration(attempt+1) * time.Second):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty gemini response")
	}
	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		text += part.Text
	}
	if text == "" {
		return "", fmt.Errorf("empty gemini response")
	}
	return text, nil
}
