package stt

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/natashamaes/concierge/domain/repositories"
)

// MockSpeechToText returns canned captions sized by the amount of audio received
type MockSpeechToText struct {
	logger *zap.Logger
}

// NewMockSpeechToText creates a new mock speech-to-text service
func NewMockSpeechToText(logger *zap.Logger) *MockSpeechToText {
	return &MockSpeechToText{logger: logger}
}

// InitTranscribeStreaming creates a new mock streaming session
func (s *MockSpeechToText) InitTranscribeStreaming(ctx context.Context, config repositories.AudioConfig) (repositories.SpeechToTextStreaming, error) {
	s.logger.Debug("Initializing mock streaming transcription",
		zap.Int("sampleRate", config.SampleRate),
		zap.String("language", config.Language))

	return &MockSpeechToTextStream{logger: s.logger}, nil
}

// MockSpeechToTextStream is a mock implementation of streaming speech recognition
type MockSpeechToTextStream struct {
	logger *zap.Logger

	mu    sync.Mutex
	bytes int
}

// Stream implements mock streaming audio processing
func (m *MockSpeechToTextStream) Stream(data []byte) error {
	m.mu.Lock()
	m.bytes += len(data)
	m.mu.Unlock()
	return nil
}

// End returns the mock transcription result
func (m *MockSpeechToTextStream) End() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.bytes == 0 {
		return "", fmt.Errorf("no audio data received")
	}
	caption := mockCaption(m.bytes)
	m.logger.Debug("Ending mock transcription stream", zap.String("result", caption))
	return caption, nil
}

func mockCaption(size int) string {
	switch {
	case size > 32000:
		return "Hi Jessica, I'd like to book a tour of The Vault for my wedding."
	case size > 8000:
		return "What's the capacity of Liberty Palace?"
	default:
		return "Hello?"
	}
}
