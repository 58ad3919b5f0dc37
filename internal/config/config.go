package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the concierge server
type Config struct {
	// Server configuration
	Port      string `envconfig:"PORT" default:"8080"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"` // debug, info, warn, error
	JWTSecret string `envconfig:"JWT_SECRET" default:"change-me"`
	MockAI    bool   `envconfig:"MOCK_AI" default:"false"` // Use mock Gemini adapters (local development)

	// Gemini configuration
	GeminiAPIKey    string `envconfig:"GEMINI_API_KEY"`
	ChatModel       string `envconfig:"GEMINI_CHAT_MODEL" default:"gemini-3-pro-preview"`
	LiveModel       string `envconfig:"GEMINI_LIVE_MODEL" default:"gemini-2.5-flash-native-audio-preview-12-2025"`
	LiveVoice       string `envconfig:"GEMINI_LIVE_VOICE" default:"Kore"`
	ChatTimeoutSecs int    `envconfig:"GEMINI_CHAT_TIMEOUT" default:"30"`

	// Realtime voice session
	CaptureSampleRate  int    `envconfig:"CAPTURE_SAMPLE_RATE" default:"16000"`
	PlaybackSampleRate int    `envconfig:"PLAYBACK_SAMPLE_RATE" default:"24000"`
	FrameSize          int    `envconfig:"CAPTURE_FRAME_SIZE" default:"4096"`          // samples per captured frame
	ConnectTimeoutSecs int    `envconfig:"VOICE_CONNECT_TIMEOUT" default:"15"`         // 0 waits forever
	DuplicateStart     string `envconfig:"VOICE_DUPLICATE_START" default:"ignore"`     // ignore or reject
	MicRequestSecs     int    `envconfig:"VOICE_MIC_REQUEST_TIMEOUT" default:"30"`     // browser permission prompt
	WidgetIdleMinutes  int    `envconfig:"WIDGET_IDLE_MINUTES" default:"30"`           // idle widgets are closed
	CaptionsEnabled    bool   `envconfig:"VOICE_CAPTIONS_ENABLED" default:"false"`     // Google STT captions
	CaptionsLanguage   string `envconfig:"VOICE_CAPTIONS_LANGUAGE" default:"en-US"`

	// Eleven Labs TTS (spoken chat replies)
	ElevenLabsAPIKey  string `envconfig:"ELEVEN_LABS_API_KEY"`
	ElevenLabsVoiceID string `envconfig:"ELEVEN_LABS_VOICE_ID" default:"EXAVITQu4vr4xnSDxMaL"`
	ElevenLabsModelID string `envconfig:"ELEVEN_LABS_MODEL_ID"`

	// CRM database
	MongoURI      string `envconfig:"MONGODB_URI"`
	MongoDatabase string `envconfig:"MONGODB_DATABASE" default:"natashamaes"`

	// Google Workspace (calendar and call log)
	GoogleServiceAccountJSON string `envconfig:"GOOGLE_SERVICE_ACCOUNT_JSON"`
	GoogleRefreshToken       string `envconfig:"GOOGLE_REFRESH_TOKEN"`
	GoogleClientID           string `envconfig:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret       string `envconfig:"GOOGLE_CLIENT_SECRET"`
	CalendarID               string `envconfig:"CALENDAR_ID" default:"primary"`
	GoogleSheetID            string `envconfig:"GOOGLE_SHEET_ID"`

	// ClickSend SMS
	ClickSendUsername string `envconfig:"CLICKSEND_USERNAME"`
	ClickSendAPIKey   string `envconfig:"CLICKSEND_API_KEY"`

	// Call report email
	EmailSender   string `envconfig:"EMAIL_SENDER"`
	EmailPassword string `envconfig:"EMAIL_PASSWORD"`
	EmailReceiver string `envconfig:"EMAIL_RECEIVER"`
	SMTPAddr      string `envconfig:"SMTP_ADDR" default:"smtp.gmail.com:587"`

	// Public base URL used for webhook tool callbacks in the assistant definition
	PublicURL string `envconfig:"PUBLIC_URL" default:"https://natashavapi.onrender.com"`
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	if !c.MockAI && c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required unless MOCK_AI is set")
	}
	if c.CaptureSampleRate <= 0 || c.PlaybackSampleRate <= 0 {
		return fmt.Errorf("sample rates must be positive")
	}
	if c.FrameSize <= 0 {
		return fmt.Errorf("CAPTURE_FRAME_SIZE must be positive, got %d", c.FrameSize)
	}
	if c.ConnectTimeoutSecs < 0 {
		return fmt.Errorf("VOICE_CONNECT_TIMEOUT must not be negative, got %d", c.ConnectTimeoutSecs)
	}
	switch c.DuplicateStart {
	case "ignore", "reject":
	default:
		return fmt.Errorf("VOICE_DUPLICATE_START must be ignore or reject, got %q", c.DuplicateStart)
	}
	return nil
}

// ConnectTimeout returns the voice connect timeout; zero disables it.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSecs) * time.Second
}

// MicRequestTimeout returns how long the server waits for the browser permission prompt.
func (c *Config) MicRequestTimeout() time.Duration {
	return time.Duration(c.MicRequestSecs) * time.Second
}

// WidgetIdleTimeout returns how long a widget may stay idle before it is closed.
func (c *Config) WidgetIdleTimeout() time.Duration {
	return time.Duration(c.WidgetIdleMinutes) * time.Minute
}

// MailEnabled reports whether call reports can be emailed.
func (c *Config) MailEnabled() bool {
	return c.EmailSender != "" && c.EmailPassword != ""
}

// Masked returns a redacted view of the configuration for the debug endpoint.
func (c *Config) Masked() map[string]interface{} {
	serviceAccount := "MISSING"
	if c.GoogleServiceAccountJSON != "" {
		serviceAccount = "SET"
	}
	return map[string]interface{}{
		"email_sender":    Mask(c.EmailSender),
		"email_receiver":  Mask(c.EmailReceiver),
		"clicksend_user":  Mask(c.ClickSendUsername),
		"clicksend_key":   Mask(c.ClickSendAPIKey),
		"sheets_id":       Mask(c.GoogleSheetID),
		"calendar_id":     Mask(c.CalendarID),
		"gemini_key":      Mask(c.GeminiAPIKey),
		"eleven_labs_key": Mask(c.ElevenLabsAPIKey),
		"mongodb":         Mask(c.MongoURI),
		"service_account": serviceAccount,
		"mock_ai":         c.MockAI,
	}
}

// Mask shows the first and last four characters of long secrets.
func Mask(val string) string {
	switch {
	case len(val) > 8:
		return val[:4] + "..." + val[len(val)-4:]
	case val != "":
		return "SET"
	default:
		return "MISSING"
	}
}
