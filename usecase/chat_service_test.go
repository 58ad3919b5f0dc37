package usecase

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/natashamaes/concierge/domain/entities"
)

func TestChatServiceSend(t *testing.T) {
	llm := &fakeLLM{reply: "The Vault seats up to 250 guests."}
	service := NewChatService(llm, nil, zaptest.NewLogger(t))
	transcript := entities.NewTranscript("widget-1")

	reply, err := service.Send(context.Background(), transcript, "  How big is The Vault?  ", false)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if reply.Entry.Text != "The Vault seats up to 250 guests." {
		t.Errorf("Unexpected reply %q", reply.Entry.Text)
	}
	if reply.Entry.Fallback {
		t.Error("Reply should not be a fallback")
	}
	if reply.Audio != nil {
		t.Error("Expected no audio when speech was not requested")
	}

	entries := transcript.Entries()
	if len(entries) != 3 {
		t.Fatalf("Expected greeting, user and model lines, got %d", len(entries))
	}
	if entries[1].Role != entities.MessageRoleUser || entries[1].Text != "How big is The Vault?" {
		t.Errorf("Unexpected user line %+v", entries[1])
	}
	if entries[2].Role != entities.MessageRoleModel {
		t.Errorf("Expected model line, got %s", entries[2].Role)
	}

	if len(llm.prompts) != 1 || llm.prompts[0] != WidgetSystemInstruction {
		t.Error("Expected the widget persona as system instruction")
	}
}

func TestChatServiceKeepsSessionPerWidget(t *testing.T) {
	llm := &fakeLLM{reply: "Sure!"}
	service := NewChatService(llm, nil, zaptest.NewLogger(t))
	first := entities.NewTranscript("widget-1")
	second := entities.NewTranscript("widget-2")

	service.Send(context.Background(), first, "hello", false)
	service.Send(context.Background(), first, "again", false)
	service.Send(context.Background(), second, "hi", false)

	if llm.generated != 2 {
		t.Errorf("Expected one chat session per widget, got %d", llm.generated)
	}

	service.Forget("widget-1")
	service.Send(context.Background(), first, "back", false)
	if llm.generated != 3 {
		t.Errorf("Expected a fresh session after Forget, got %d sessions", llm.generated)
	}
}

func TestChatServiceEmptyReply(t *testing.T) {
	service := NewChatService(&fakeLLM{reply: "   "}, nil, zaptest.NewLogger(t))
	transcript := entities.NewTranscript("widget")

	reply, err := service.Send(context.Background(), transcript, "pricing?", false)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if reply.Entry.Text != DefaultChatReply {
		t.Errorf("Expected default reply, got %q", reply.Entry.Text)
	}
}

func TestChatServiceFailureBecomesApology(t *testing.T) {
	tests := []struct {
		name string
		llm  *fakeLLM
	}{
		{"send fails", &fakeLLM{sendErr: errors.New("deadline exceeded")}},
		{"session fails", &fakeLLM{genErr: errors.New("invalid api key")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := NewChatService(tt.llm, nil, zaptest.NewLogger(t))
			transcript := entities.NewTranscript("widget")

			reply, err := service.Send(context.Background(), transcript, "hello", true)
			if err != nil {
				t.Fatalf("Expected failure to be absorbed, got %v", err)
			}
			if reply.Entry.Text != ChatFallbackReply {
				t.Errorf("Expected apology, got %q", reply.Entry.Text)
			}
			if !reply.Entry.Fallback {
				t.Error("Expected fallback flag")
			}
			if transcript.Len() != 3 {
				t.Errorf("Expected user line and apology, got %d entries", transcript.Len())
			}
		})
	}
}

func TestChatServiceRejectsEmptyMessage(t *testing.T) {
	llm := &fakeLLM{reply: "ok"}
	service := NewChatService(llm, nil, zaptest.NewLogger(t))
	transcript := entities.NewTranscript("widget")

	if _, err := service.Send(context.Background(), transcript, "   ", false); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("Expected ErrEmptyMessage, got %v", err)
	}
	if transcript.Len() != 1 {
		t.Error("Empty message must not touch the transcript")
	}
	if len(llm.received) != 0 {
		t.Error("Empty message must not reach the model")
	}
}

func TestChatServiceSpokenReply(t *testing.T) {
	tts := &fakeTTS{audio: []byte{1, 0, 2, 0}}
	service := NewChatService(&fakeLLM{reply: "Welcome!"}, tts, zaptest.NewLogger(t))

	reply, err := service.Send(context.Background(), entities.NewTranscript("widget"), "hi", true)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(reply.Audio) != 4 {
		t.Errorf("Expected synthesized audio, got %d bytes", len(reply.Audio))
	}
	if len(tts.texts) != 1 || tts.texts[0] != "Welcome!" {
		t.Errorf("Expected reply text to be synthesized, got %v", tts.texts)
	}

	tts.err = errors.New("quota exceeded")
	reply, err = service.Send(context.Background(), entities.NewTranscript("widget-2"), "hi", true)
	if err != nil {
		t.Fatalf("TTS failure should not fail the chat: %v", err)
	}
	if reply.Audio != nil || reply.Entry.Text != "Welcome!" {
		t.Errorf("Expected text-only reply on TTS failure, got %+v", reply)
	}
}
