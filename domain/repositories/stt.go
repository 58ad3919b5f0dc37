package repositories

import "context"

// SpeechToText turns the user's side of a voice session into caption text.
// One stream is opened per user turn.
type SpeechToText interface {
	InitTranscribeStreaming(ctx context.Context, config AudioConfig) (SpeechToTextStreaming, error)
}

// AudioConfig describes the PCM fed to a caption stream
type AudioConfig struct {
	SampleRate int
	// Encoding defaults to LINEAR16
	Encoding string
	Language string
}

// SpeechToTextStreaming accepts audio until End, which returns the joined
// final transcript. End errors when no audio arrived or nothing was recognized.
type SpeechToTextStreaming interface {
	Stream(data []byte) error
	End() (string, error)
}
