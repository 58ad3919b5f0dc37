package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/natashamaes/concierge/domain/repositories"
)

// MockGeminiLLM answers chat messages locally, for running without an API key
type MockGeminiLLM struct {
	logger *zap.Logger
}

// NewMockGeminiLLM creates a new mock chat model
func NewMockGeminiLLM(logger *zap.Logger) *MockGeminiLLM {
	return &MockGeminiLLM{logger: logger}
}

// GenerateChat implements repositories.LargeLanguageModel
func (g *MockGeminiLLM) GenerateChat(ctx context.Context, systemInstruction string, history []repositories.ChatMessage) (repositories.ChatSession, error) {
	return &MockGeminiChatSession{history: history}, nil
}

// MockGeminiChatSession implements repositories.ChatSession
type MockGeminiChatSession struct {
	mu      sync.Mutex
	history []repositories.ChatMessage
}

// SendMessage implements repositories.ChatSession
func (g *MockGeminiChatSession) SendMessage(ctx context.Context, message repositories.ChatMessage) (repositories.ChatMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var response string
	switch {
	case len(message.Content) > 0:
		response = fmt.Sprintf("Thanks for asking about \"%s\"! I'd love to set you up with a VIP tour so you can see the space in person.", message.Content)
	default:
		response = "I'd be happy to discuss our pricing tiers and availability with you!"
	}

	responseMessage := repositories.ChatMessage{
		Role:    repositories.ModelRole,
		Content: response,
	}
	g.history = append(g.history, message, responseMessage)

	return responseMessage, nil
}

// History implements repositories.ChatSession
func (g *MockGeminiChatSession) History() ([]repositories.ChatMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]repositories.ChatMessage, len(g.history))
	copy(out, g.history)
	return out, nil
}

// MockGeminiLive is a realtime transport that answers every few captured frames
// with a short burst of silence
type MockGeminiLive struct {
	logger *zap.Logger
	// FramesPerReply is how many frames are consumed before a reply chunk is produced
	FramesPerReply int
	// ReplySamples is the length of each reply chunk at 24 kHz
	ReplySamples int
}

// NewMockGeminiLive creates a new mock realtime transport
func NewMockGeminiLive(logger *zap.Logger) *MockGeminiLive {
	return &MockGeminiLive{logger: logger, FramesPerReply: 4, ReplySamples: 2400}
}

// Connect implements repositories.RealtimeTransport
func (m *MockGeminiLive) Connect(ctx context.Context, config repositories.RealtimeConfig) (repositories.RealtimeConn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.logger.Info("Mock live session connected", zap.String("model", config.Model))
	return &mockLiveConn{
		framesPerReply: max(1, m.FramesPerReply),
		reply:          base64.StdEncoding.EncodeToString(make([]byte, m.ReplySamples*2)),
		out:            make(chan *repositories.ServerMessage, 16),
		closed:         make(chan struct{}),
	}, nil
}

type mockLiveConn struct {
	framesPerReply int
	reply          string

	mu     sync.Mutex
	frames int
	out    chan *repositories.ServerMessage
	closed chan struct{}
	once   sync.Once
}

func (c *mockLiveConn) Send(input repositories.RealtimeInput) error {
	select {
	case <-c.closed:
		return fmt.Errorf("mock live session closed")
	default:
	}

	c.mu.Lock()
	c.frames++
	due := c.frames%c.framesPerReply == 0
	c.mu.Unlock()

	if due {
		select {
		case c.out <- &repositories.ServerMessage{Audio: c.reply, MIMEType: "audio/pcm;rate=24000", TurnComplete: true}:
		default:
		}
	}
	return nil
}

func (c *mockLiveConn) Receive() (*repositories.ServerMessage, error) {
	select {
	case msg := <-c.out:
		return msg, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *mockLiveConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}
