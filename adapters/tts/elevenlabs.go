package tts

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

	"github.com/natashamaes/concierge/domain/repositories"
)

const (
	defaultAPIBaseURL   = "https://api.elevenlabs.io/v1"
	defaultVoiceID      = "EXAVITQu4vr4xnSDxMaL" // Sarah
	defaultModelID      = "eleven_turbo_v2_5"
	defaultOutputFormat = "pcm_24000" // widget playback rate
	defaultChunkSize    = 4800        // 100ms at 24 kHz
)

// ElevenLabsConfig configures the chat reply voice. Zero values take defaults.
type ElevenLabsConfig struct {
	APIKey       string
	APIBaseURL   string
	VoiceID      string
	ModelID      string
	OutputFormat string
	ChunkSize    int
	Stability    float64
	Clarity      float64
	HTTPClient   *http.Client
}

func (c ElevenLabsConfig) validate() error {
	switch {
	case c.APIKey == "":
		return fmt.Errorf("elevenlabs: api key is required")
	case c.Stability < 0 || c.Stability > 1:
		return fmt.Errorf("elevenlabs: stability %.2f outside [0,1]", c.Stability)
	case c.Clarity < 0 || c.Clarity > 1:
		return fmt.Errorf("elevenlabs: clarity %.2f outside [0,1]", c.Clarity)
	case c.ChunkSize < 0:
		return fmt.Errorf("elevenlabs: negative chunk size %d", c.ChunkSize)
	case c.OutputFormat != "" && !strings.HasPrefix(c.OutputFormat, "pcm_"):
		return fmt.Errorf("elevenlabs: output format %s is not raw pcm", c.OutputFormat)
	}
	return nil
}

func (c ElevenLabsConfig) withDefaults() ElevenLabsConfig {
	orString := func(v, def string) string {
		if v == "" {
			return def
		}
		return v
	}
	orFloat := func(v, def float64) float64 {
		if v == 0 {
			return def
		}
		return v
	}

	c.APIBaseURL = strings.TrimRight(orString(c.APIBaseURL, defaultAPIBaseURL), "/")
	c.VoiceID = orString(c.VoiceID, defaultVoiceID)
	c.ModelID = orString(c.ModelID, defaultModelID)
	c.OutputFormat = orString(c.OutputFormat, defaultOutputFormat)
	c.Stability = orFloat(c.Stability, 0.5)
	c.Clarity = orFloat(c.Clarity, 0.75)
	if c.ChunkSize == 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return c
}

// ElevenLabsTTS speaks chat replies through the ElevenLabs streaming endpoint
type ElevenLabsTTS struct {
	cfg    ElevenLabsConfig
	logger *zap.Logger
}

var _ repositories.TextToSpeech = (*ElevenLabsTTS)(nil)

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
	Normalization string        `json:"apply_text_normalization,omitempty"`
}

func NewElevenLabsTTS(config ElevenLabsConfig, logger *zap.Logger) (*ElevenLabsTTS, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	cfg := config.withDefaults()
	logger.Info("ElevenLabs voice configured",
		zap.String("voiceID", cfg.VoiceID),
		zap.String("modelID", cfg.ModelID),
		zap.String("format", cfg.OutputFormat))
	return &ElevenLabsTTS{cfg: cfg, logger: logger}, nil
}

// ConvertTextToSpeech streams synthesized PCM for text. HTTP failures are
// returned before any audio; the channel closes at end of stream or when ctx
// is cancelled.
func (e *ElevenLabsTTS) ConvertTextToSpeech(ctx context.Context, text string) (<-chan []byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	body, err := json.Marshal(synthesisRequest{
		Text:          text,
		ModelID:       e.cfg.ModelID,
		Normalization: "auto",
		VoiceSettings: voiceSettings{
			Stability:       e.cfg.Stability,
			SimilarityBoost: e.cfg.Clarity,
			UseSpeakerBoost: true,
		},
	})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s/stream?output_format=%s&enable_logging=false",
		e.cfg.APIBaseURL, e.cfg.VoiceID, e.cfg.OutputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "audio/pcm")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.cfg.APIKey)

	resp, err := e.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("elevenlabs returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	out := make(chan []byte, 10)
	go e.pump(ctx, resp.Body, out, len(text))
	return out, nil
}

// pump forwards sample-aligned chunks of the response body
func (e *ElevenLabsTTS) pump(ctx context.Context, body io.ReadCloser, out chan<- []byte, textLen int) {
	defer close(out)
	defer body.Close()

	buf := make([]byte, e.cfg.ChunkSize)
	total := 0
	for {
		n, err := io.ReadFull(body, buf)
		if n -= n % 2; n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			total += n
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}

		switch {
		case err == io.EOF || err == io.ErrUnexpectedEOF:
			e.logger.Debug("Reply synthesized", zap.Int("chars", textLen), zap.Int("bytes", total))
			return
		case err != nil:
			e.logger.Error("Reply audio stream broke", zap.Error(err), zap.Int("bytes", total))
			return
		}
	}
}

// Synthesize collects the whole utterance into one PCM buffer
func (e *ElevenLabsTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	audio, err := e.ConvertTextToSpeech(ctx, text)
	if err != nil {
		return nil, err
	}

	var pcm []byte
	for chunk := range audio {
		pcm = append(pcm, chunk...)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return pcm, nil
}
