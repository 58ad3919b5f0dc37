package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/natashamaes/concierge/domain/entities"
	"github.com/natashamaes/concierge/domain/repositories"
	"github.com/natashamaes/concierge/internal/observability"
)

var ErrEmptyMessage = errors.New("message is empty")

// ChatReply is the model line appended for one user message, plus optional speech
type ChatReply struct {
	Entry entities.TranscriptEntry
	// Audio is 24 kHz mono 16-bit PCM, present only when speech was requested and synthesis succeeded
	Audio []byte
}

// ChatService handles the text chat fallback of the widget
type ChatService struct {
	llm    repositories.LargeLanguageModel
	tts    repositories.TextToSpeech
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]repositories.ChatSession
}

// NewChatService creates a new chat service. tts may be nil, in which case replies are never spoken.
func NewChatService(llm repositories.LargeLanguageModel, tts repositories.TextToSpeech, logger *zap.Logger) *ChatService {
	return &ChatService{
		llm:      llm,
		tts:      tts,
		logger:   logger,
		sessions: make(map[string]repositories.ChatSession),
	}
}

// Send appends the user line, asks the model once and appends its reply. Model
// failures never reach the caller: they become the fixed apology line.
func (s *ChatService) Send(ctx context.Context, transcript *entities.Transcript, text string, speak bool) (ChatReply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatReply{}, ErrEmptyMessage
	}

	widgetID := transcript.WidgetID()
	transcript.Append(entities.TranscriptEntry{
		Role:   entities.MessageRoleUser,
		Text:   text,
		Source: entities.MessageSourceText,
	})

	reply, err := s.ask(ctx, widgetID, text)
	if err != nil {
		s.logger.Error("Chat request failed",
			zap.String("widgetID", widgetID),
			zap.Error(err))
		observability.RecordChatRequest("failed")
		observability.RecordError("chat_request", "chat_service")

		entry := transcript.Append(entities.TranscriptEntry{
			Role:     entities.MessageRoleModel,
			Text:     ChatFallbackReply,
			Source:   entities.MessageSourceText,
			Fallback: true,
		})
		return ChatReply{Entry: entry}, nil
	}

	status := "ok"
	if reply == "" {
		reply = DefaultChatReply
		status = "empty"
	}
	observability.RecordChatRequest(status)

	entry := transcript.Append(entities.TranscriptEntry{
		Role:   entities.MessageRoleModel,
		Text:   reply,
		Source: entities.MessageSourceText,
	})

	result := ChatReply{Entry: entry}
	if speak {
		result.Audio = s.speak(ctx, widgetID, reply)
	}
	return result, nil
}

// Forget drops the model-side history of a widget
func (s *ChatService) Forget(widgetID string) {
	s.mu.Lock()
	delete(s.sessions, widgetID)
	s.mu.Unlock()
}

func (s *ChatService) ask(ctx context.Context, widgetID, text string) (string, error) {
	session, err := s.session(ctx, widgetID)
	if err != nil {
		return "", err
	}

	response, err := session.SendMessage(ctx, repositories.ChatMessage{
		Role:    repositories.UserRole,
		Content: text,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Content), nil
}

func (s *ChatService) session(ctx context.Context, widgetID string) (repositories.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[widgetID]; ok {
		return session, nil
	}

	session, err := s.llm.GenerateChat(ctx, WidgetSystemInstruction, nil)
	if err != nil {
		return nil, err
	}
	s.sessions[widgetID] = session
	return session, nil
}

func (s *ChatService) speak(ctx context.Context, widgetID, text string) []byte {
	if s.tts == nil {
		s.logger.Debug("Spoken reply requested but no TTS is configured", zap.String("widgetID", widgetID))
		return nil
	}

	audio, err := s.tts.Synthesize(ctx, text)
	if err != nil {
		s.logger.Warn("Failed to synthesize chat reply",
			zap.String("widgetID", widgetID),
			zap.Error(err))
		observability.RecordError("tts", "chat_service")
		return nil
	}
	return audio
}
