package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/natashamaes/concierge/adapters/clicksend"
	"github.com/natashamaes/concierge/adapters/google"
	"github.com/natashamaes/concierge/adapters/llm"
	"github.com/natashamaes/concierge/adapters/mail"
	"github.com/natashamaes/concierge/adapters/mongo"
	"github.com/natashamaes/concierge/adapters/stt"
	"github.com/natashamaes/concierge/adapters/tts"
	"github.com/natashamaes/concierge/domain/repositories"
	"github.com/natashamaes/concierge/internal/api"
	"github.com/natashamaes/concierge/internal/auth"
	"github.com/natashamaes/concierge/internal/config"
	"github.com/natashamaes/concierge/internal/realtime"
	"github.com/natashamaes/concierge/internal/websocket"
	"github.com/natashamaes/concierge/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// Initialize logger
	logger := newLogger(cfg)
	defer logger.Sync()

	ctx := context.Background()

	// Gemini chat and live audio
	var chatModel repositories.LargeLanguageModel
	var liveTransport repositories.RealtimeTransport
	if cfg.MockAI {
		logger.Warn("MOCK_AI is set, using mock Gemini adapters")
		chatModel = llm.NewMockGeminiLLM(logger)
		liveTransport = llm.NewMockGeminiLive(logger)
	} else {
		client, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey)
		if err != nil {
			logger.Fatal("Failed to create Gemini client", zap.Error(err))
		}
		gemini, err := llm.NewGeminiLLM(client, llm.GeminiConfig{
			APIKey:         cfg.GeminiAPIKey,
			Model:          cfg.ChatModel,
			TimeoutSeconds: cfg.ChatTimeoutSecs,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to create Gemini chat model", zap.Error(err))
		}
		chatModel = gemini
		liveTransport = llm.NewGeminiLive(client, logger)
	}

	// Spoken chat replies
	var speech repositories.TextToSpeech
	if cfg.ElevenLabsAPIKey != "" {
		elevenLabs, err := tts.NewElevenLabsTTS(tts.ElevenLabsConfig{
			APIKey:  cfg.ElevenLabsAPIKey,
			VoiceID: cfg.ElevenLabsVoiceID,
			ModelID: cfg.ElevenLabsModelID,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to create Eleven Labs TTS", zap.Error(err))
		}
		speech = elevenLabs
	}

	// Voice captions
	var captions repositories.SpeechToText
	if cfg.CaptionsEnabled {
		if cfg.MockAI {
			captions = stt.NewMockSpeechToText(logger)
		} else {
			speechClient, err := stt.NewGoogleSpeechToText(ctx, logger)
			if err != nil {
				logger.Fatal("Failed to create Google speech client", zap.Error(err))
			}
			defer speechClient.Close()
			captions = speechClient
		}
	}

	// Phone agent back office
	deps := usecase.ConciergeDeps{}

	if cfg.MongoURI != "" {
		crm, err := mongo.OpenCRM(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			logger.Error("CRM unavailable, continuing without caller history", zap.Error(err))
		} else {
			defer crm.Close(context.Background())
			deps.Customers = crm.Customers()
		}
	}

	creds := google.Credentials{
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		RefreshToken:       cfg.GoogleRefreshToken,
		ClientID:           cfg.GoogleClientID,
		ClientSecret:       cfg.GoogleClientSecret,
	}
	if creds.Configured() {
		calendar, err := google.NewCalendarFromCredentials(ctx, creds, cfg.CalendarID, logger)
		if err != nil {
			logger.Error("Calendar unavailable", zap.Error(err))
		} else {
			deps.Calendar = calendar
		}

		if cfg.GoogleSheetID != "" {
			sheet, err := google.NewCallLogSheetFromCredentials(ctx, creds, cfg.GoogleSheetID, logger)
			if err != nil {
				logger.Error("Call log sheet unavailable", zap.Error(err))
			} else {
				deps.CallLog = sheet
			}
		}
	} else {
		logger.Warn("No Google credentials, calendar and call log disabled")
	}

	if cfg.ClickSendUsername != "" && cfg.ClickSendAPIKey != "" {
		deps.SMS = clicksend.NewSMS(clicksend.Config{
			Username: cfg.ClickSendUsername,
			APIKey:   cfg.ClickSendAPIKey,
		}, logger)
	}

	if cfg.MailEnabled() {
		mailer, err := mail.NewSMTPMailer(mail.Config{
			Addr:     cfg.SMTPAddr,
			Sender:   cfg.EmailSender,
			Password: cfg.EmailPassword,
			Receiver: cfg.EmailReceiver,
		}, logger)
		if err != nil {
			logger.Error("Call report email disabled", zap.Error(err))
		} else {
			deps.Mailer = mailer
		}
	}

	// Initialize usecase services
	chatService := usecase.NewChatService(chatModel, speech, logger)
	widgets := usecase.NewWidgetRegistry(usecase.VoiceOptions{
		Session: realtime.Config{
			Model:              cfg.LiveModel,
			Voice:              cfg.LiveVoice,
			SystemInstruction:  usecase.WidgetSystemInstruction,
			CaptureSampleRate:  cfg.CaptureSampleRate,
			PlaybackSampleRate: cfg.PlaybackSampleRate,
			ConnectTimeout:     cfg.ConnectTimeout(),
			DuplicateStart:     realtime.DuplicateStartPolicy(cfg.DuplicateStart),
		},
		Transport:       liveTransport,
		Captions:        captions,
		CaptionLanguage: cfg.CaptionsLanguage,
	}, chatService, logger)

	concierge := usecase.NewConciergeService(deps, usecase.AssistantSettings{
		PublicURL: cfg.PublicURL,
		VoiceID:   cfg.ElevenLabsVoiceID,
	}, logger)

	tokens, err := auth.NewIssuer(cfg.JWTSecret)
	if err != nil {
		logger.Fatal("Invalid JWT configuration", zap.Error(err))
	}

	// Initialize WebSocket hub with the widget registry
	hub := websocket.NewHub(widgets, websocket.HubConfig{
		BrowserTimeout:    cfg.MicRequestTimeout(),
		CaptureSampleRate: cfg.CaptureSampleRate,
		FrameSize:         cfg.FrameSize,
	}, logger)
	go hub.Run()

	var cleanup *websocket.WidgetCleanupService
	if cfg.WidgetIdleMinutes > 0 {
		cleanup = websocket.NewWidgetCleanupService(widgets, cfg.WidgetIdleTimeout(), nil, logger)
		cleanup.Start()
	}

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize API routes
	api.InitRoutes(e, api.Dependencies{
		Config:    cfg,
		Hub:       hub,
		Widgets:   widgets,
		Concierge: concierge,
		Tokens:    tokens,
	}, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Concierge server started",
		zap.String("port", cfg.Port),
		zap.Bool("mockAI", cfg.MockAI),
		zap.Bool("captions", captions != nil),
		zap.Bool("speech", speech != nil))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	if cleanup != nil {
		cleanup.Stop()
	}
	widgets.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// newLogger builds a production logger, or a development one when LOG_LEVEL=debug
func newLogger(cfg *config.Config) *zap.Logger {
	zapConfig := zap.NewProductionConfig()
	if cfg.LogLevel == "debug" {
		zapConfig = zap.NewDevelopmentConfig()
	}
	if level, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
		zapConfig.Level = level
	}

	logger, err := zapConfig.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
