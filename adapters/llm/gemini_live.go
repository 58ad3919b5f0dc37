package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/natashamaes/concierge/domain/repositories"
)

// GeminiLive implements RealtimeTransport over the Gemini Live API
type GeminiLive struct {
	client *genai.Client
	logger *zap.Logger
}

// NewGeminiLive creates a realtime transport sharing the given client
func NewGeminiLive(client *genai.Client, logger *zap.Logger) *GeminiLive {
	return &GeminiLive{client: client, logger: logger}
}

// Connect opens a live session with audio responses, a prebuilt voice and the persona prompt
func (g *GeminiLive) Connect(ctx context.Context, config repositories.RealtimeConfig) (repositories.RealtimeConn, error) {
	modalities := make([]genai.Modality, 0, len(config.ResponseModalities))
	for _, m := range config.ResponseModalities {
		modalities = append(modalities, genai.Modality(m))
	}

	liveConfig := &genai.LiveConnectConfig{
		ResponseModalities: modalities,
	}
	if config.Voice != "" {
		liveConfig.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: config.Voice},
			},
		}
	}
	if config.SystemInstruction != "" {
		liveConfig.SystemInstruction = genai.NewContentFromText(config.SystemInstruction, genai.RoleUser)
	}

	session, err := g.client.Live.Connect(ctx, config.Model, liveConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect live session: %w", err)
	}

	g.logger.Info("Live session connected",
		zap.String("model", config.Model),
		zap.String("voice", config.Voice))

	return &geminiLiveConn{session: session, logger: g.logger}, nil
}

type geminiLiveConn struct {
	session *genai.Session
	logger  *zap.Logger
}

func (c *geminiLiveConn) Send(input repositories.RealtimeInput) error {
	data, err := base64.StdEncoding.DecodeString(input.Data)
	if err != nil {
		return fmt.Errorf("invalid realtime payload: %w", err)
	}

	return c.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: data, MIMEType: input.MIMEType},
	})
}

func (c *geminiLiveConn) Receive() (*repositories.ServerMessage, error) {
	msg, err := c.session.Receive()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}

	out := &repositories.ServerMessage{}
	content := msg.ServerContent
	if content == nil {
		return out, nil
	}

	out.TurnComplete = content.TurnComplete
	out.Interrupted = content.Interrupted

	if content.ModelTurn != nil {
		for _, part := range content.ModelTurn.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil && out.Audio == "" {
				out.Audio = base64.StdEncoding.EncodeToString(part.InlineData.Data)
				out.MIMEType = part.InlineData.MIMEType
			}
			if part.Text != "" {
				out.Text += part.Text
			}
		}
	}

	return out, nil
}

func (c *geminiLiveConn) Close() error {
	return c.session.Close()
}
