package pipeline

import (
	"context"
	"fmt"
	"io"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"

	"github.com/wicaksana/gema/domain/repositories"
)

// GoogleTranscriber implements Transcriber on Google Cloud Speech-to-Text
// streaming recognition. Credentials come from the ambient application
// default credentials.
type GoogleTranscriber struct{}

func NewGoogleTranscriber() *GoogleTranscriber {
	return &GoogleTranscriber{}
}

func (g *GoogleTranscriber) OpenStream(ctx context.Context, config repositories.AudioConfig) (repositories.TranscribeStream, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}

	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("open recognize stream: %w", err)
	}

	encoding, err := audioEncoding(config.Encoding)
	if err != nil {
		stream.CloseSend()
		client.Close()
		return nil, err
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        encoding,
					SampleRateHertz: int32(config.SampleRate),
					LanguageCode:    config.Language,
				},
				InterimResults:  false,
				SingleUtterance: true,
			},
		},
	}); err != nil {
		stream.CloseSend()
		client.Close()
		return nil, fmt.Errorf("send recognition config: %w", err)
	}

	s := &googleStream{
		client:  client,
		stream:  stream,
		ctx:     ctx,
		results: make(chan string, 1),
		errs:    make(chan error, 1),
	}
	go s.receive()
	return s, nil
}

type googleStream struct {
	client  *speech.Client
	stream  speechpb.Speech_StreamingRecognizeClient
	ctx     context.Context
	fed     bool
	results chan string
	errs    chan error
}

func (s *googleStream) Feed(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	s.fed = true
	if err := s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: data,
		},
	}); err != nil {
		return fmt.Errorf("send audio content: %w", err)
	}
	return nil
}

func (s *googleStream) End() (string, error) {
	defer s.client.Close()

	if !s.fed {
		return "", fmt.Errorf("no audio was fed")
	}
	if err := s.stream.CloseSend(); err != nil {
		return "", fmt.Errorf("close send stream: %w", err)
	}

	select {
	case <-s.ctx.Done():
		return "", fmt.Errorf("waiting for transcript: %w", s.ctx.Err())
	case err := <-s.errs:
		return "", err
	case transcript := <-s.results:
		if transcript == "" {
			return "", fmt.Errorf("no speech detected")
		}
		return transcript, nil
	}
}

// receive drains recognition responses, keeping the last final alternative.
func (s *googleStream) receive() {
	var transcript string
	for {
		resp, err := s.stream.Recv()
		if err == io.EOF {
			s.results <- transcript
			return
		}
		if err != nil {
			s.errs <- fmt.Errorf("receive recognition response: %w", err)
			return
		}
		for _, result := range resp.Results {
			if result.IsFinal && len(result.Alternatives) > 0 {
				transcript = result.Alternatives[0].Transcript
			}
		}
	}
}

func audioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch encoding {
	case "WAV", "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding %q", encoding)
	}
}
