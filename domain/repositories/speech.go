package repositories

import "context"

// The built-in pipeline composes three provider stages. External deployments
// can ignore these and implement ConversationPipeline directly.

// AudioConfig describes the audio handed to a transcriber stage.
type AudioConfig struct {
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language"`
}

// Transcriber abstracts streaming speech recognition.
type Transcriber interface {
	// OpenStream starts a streaming recognition session.
	OpenStream(ctx context.Context, config AudioConfig) (TranscribeStream, error)
}

// TranscribeStream accepts audio frames and yields the final transcript on
// End. Feed and End must be called from a single goroutine.
type TranscribeStream interface {
	Feed(data []byte) error
	End() (string, error)
}

// Responder turns a transcript into reply text.
type Responder interface {
	Reply(ctx context.Context, deviceID string, transcript string) (string, error)
}

// Synthesizer converts reply text to a stream of encoded audio chunks. The
// channel closes when synthesis completes or the context is cancelled.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (<-chan []byte, error)
}
