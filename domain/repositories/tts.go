package repositories

import "context"

type TextToSpeech interface {
	// ConvertTextToSpeech streams 24 kHz mono 16-bit PCM for text
	ConvertTextToSpeech(ctx context.Context, text string) (<-chan []byte, error)
	// Synthesize returns the whole utterance as one PCM buffer
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
