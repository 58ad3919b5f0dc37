package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/natashamaes/concierge/domain/entities"
	"github.com/natashamaes/concierge/domain/repositories"
	"github.com/natashamaes/concierge/internal/realtime"
)

func newTestRegistry(t *testing.T, transport *fakeTransport, captions repositories.SpeechToText) *WidgetRegistry {
	t.Helper()
	logger := zaptest.NewLogger(t)
	return NewWidgetRegistry(VoiceOptions{
		Session: realtime.Config{
			Model:             "gemini-live-test",
			Voice:             "Kore",
			SystemInstruction: WidgetSystemInstruction,
		},
		Transport:       transport,
		Captions:        captions,
		CaptionLanguage: "en-US",
	}, NewChatService(&fakeLLM{reply: "Happy to help!"}, nil, logger), logger)
}

func waitClientState(t *testing.T, client *fakeClient, want realtime.State) {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case got := <-client.states:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for state %s", want)
		}
	}
}

func receiveCapture(t *testing.T, client *fakeClient) *fakeCapture {
	t.Helper()
	select {
	case c := <-client.captures:
		return c
	case <-time.After(waitTimeout):
		t.Fatal("Timed out waiting for microphone")
		return nil
	}
}

func receiveConn(t *testing.T, transport *fakeTransport) *fakeConn {
	t.Helper()
	select {
	case c := <-transport.conns:
		return c
	case <-time.After(waitTimeout):
		t.Fatal("Timed out waiting for connection")
		return nil
	}
}

func TestWidgetRegistryCreateAndGet(t *testing.T) {
	registry := newTestRegistry(t, newFakeTransport(), nil)

	w := registry.Create()
	if w.ID() == "" {
		t.Fatal("Expected widget id")
	}

	entries := w.Transcript().Entries()
	if len(entries) != 1 || entries[0].Text != entities.Greeting {
		t.Errorf("Expected greeting-only transcript, got %+v", entries)
	}
	if w.IsOpen() {
		t.Error("New widget should not be open before a voice client attaches")
	}
	if w.VoiceState() != realtime.StateIdle {
		t.Errorf("Expected idle voice, got %s", w.VoiceState())
	}

	got, err := registry.Get(w.ID())
	if err != nil || got != w {
		t.Fatalf("Get returned %v, %v", got, err)
	}

	if _, err := registry.Get("missing"); !errors.Is(err, ErrWidgetNotFound) {
		t.Errorf("Expected ErrWidgetNotFound, got %v", err)
	}
}

func TestWidgetOpenStartsVoice(t *testing.T) {
	transport := newFakeTransport()
	registry := newTestRegistry(t, transport, nil)
	w := registry.Create()
	client := newFakeClient()

	if err := w.Open(context.Background(), client); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer w.Close()

	receiveConn(t, transport)
	waitClientState(t, client, realtime.StateOpen)

	if !w.IsOpen() {
		t.Error("Expected widget to be open")
	}
	if w.VoiceState() != realtime.StateOpen {
		t.Errorf("Expected open voice state, got %s", w.VoiceState())
	}
}

func TestWidgetToggleMic(t *testing.T) {
	transport := newFakeTransport()
	registry := newTestRegistry(t, transport, nil)
	w := registry.Create()

	if err := w.ToggleMic(context.Background()); !errors.Is(err, ErrVoiceUnavailable) {
		t.Errorf("Expected ErrVoiceUnavailable without a client, got %v", err)
	}

	client := newFakeClient()
	if err := w.Open(context.Background(), client); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer w.Close()

	capture := receiveCapture(t, client)
	receiveConn(t, transport)
	waitClientState(t, client, realtime.StateOpen)

	if err := w.ToggleMic(context.Background()); err != nil {
		t.Fatalf("ToggleMic (stop) failed: %v", err)
	}
	waitClientState(t, client, realtime.StateIdle)
	if !capture.isClosed() {
		t.Error("Expected microphone to be released")
	}

	if err := w.ToggleMic(context.Background()); err != nil {
		t.Fatalf("ToggleMic (start) failed: %v", err)
	}
	receiveConn(t, transport)
	waitClientState(t, client, realtime.StateOpen)
}

func TestWidgetOpenPermissionDenied(t *testing.T) {
	registry := newTestRegistry(t, newFakeTransport(), nil)
	w := registry.Create()
	client := newFakeClient()
	client.deny = true

	err := w.Open(context.Background(), client)
	if !errors.Is(err, repositories.ErrPermissionDenied) {
		t.Fatalf("Expected ErrPermissionDenied, got %v", err)
	}
	defer w.Close()

	select {
	case sig := <-client.signals:
		if sig != realtime.SignalPermissionDenied {
			t.Errorf("Expected permission denied signal, got %s", sig)
		}
	case <-time.After(waitTimeout):
		t.Fatal("Timed out waiting for signal")
	}

	if w.VoiceState() != realtime.StateIdle {
		t.Errorf("Expected idle voice, got %s", w.VoiceState())
	}
}

func TestWidgetCloseKeepsTranscript(t *testing.T) {
	transport := newFakeTransport()
	registry := newTestRegistry(t, transport, nil)
	w := registry.Create()
	client := newFakeClient()

	if err := w.Open(context.Background(), client); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	conn := receiveConn(t, transport)
	waitClientState(t, client, realtime.StateOpen)

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case <-conn.closed:
	case <-time.After(waitTimeout):
		t.Fatal("Expected transport to be closed")
	}
	if w.IsOpen() {
		t.Error("Expected widget to be closed")
	}
	if w.Transcript().Len() != 1 {
		t.Error("Close should keep the transcript")
	}

	if _, err := registry.Get(w.ID()); err != nil {
		t.Error("Closed widget should stay registered")
	}
}

func TestWidgetReleaseIgnoresStaleClient(t *testing.T) {
	transport := newFakeTransport()
	registry := newTestRegistry(t, transport, nil)
	w := registry.Create()

	stale := newFakeClient()
	if err := w.Open(context.Background(), stale); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	receiveConn(t, transport)

	current := newFakeClient()
	if err := w.Open(context.Background(), current); err != nil {
		t.Fatalf("Second Open failed: %v", err)
	}
	defer w.Close()
	receiveConn(t, transport)
	waitClientState(t, current, realtime.StateOpen)

	w.Release(stale)
	if !w.IsOpen() {
		t.Error("Releasing a stale client must not close the widget")
	}

	w.Release(current)
	if w.IsOpen() {
		t.Error("Releasing the current client should close the widget")
	}
}

func TestWidgetChatNotifiesClient(t *testing.T) {
	transport := newFakeTransport()
	registry := newTestRegistry(t, transport, nil)
	w := registry.Create()
	client := newFakeClient()

	if err := w.Open(context.Background(), client); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer w.Close()

	reply, err := w.Chat(context.Background(), "Do you do weddings?", false)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if reply.Entry.Text != "Happy to help!" {
		t.Errorf("Unexpected reply %q", reply.Entry.Text)
	}

	var roles []entities.MessageRole
	for len(roles) < 2 {
		select {
		case entry := <-client.transcripts:
			roles = append(roles, entry.Role)
		case <-time.After(waitTimeout):
			t.Fatalf("Timed out waiting for transcript lines, got %v", roles)
		}
	}
	if roles[0] != entities.MessageRoleUser || roles[1] != entities.MessageRoleModel {
		t.Errorf("Expected user then model lines, got %v", roles)
	}
}

func TestWidgetCaptions(t *testing.T) {
	transport := newFakeTransport()
	captions := &fakeCaptions{caption: "I'd like a tour of The Vault"}
	registry := newTestRegistry(t, transport, captions)
	w := registry.Create()
	client := newFakeClient()

	if err := w.Open(context.Background(), client); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer w.Close()

	capture := receiveCapture(t, client)
	conn := receiveConn(t, transport)
	waitClientState(t, client, realtime.StateOpen)

	capture.frames <- make([]float32, 4096)
	select {
	case <-conn.sent:
	case <-time.After(waitTimeout):
		t.Fatal("Frame was not forwarded to the transport")
	}

	if err := w.ToggleMic(context.Background()); err != nil {
		t.Fatalf("ToggleMic failed: %v", err)
	}

	select {
	case entry := <-client.transcripts:
		if entry.Source != entities.MessageSourceVoice || entry.Role != entities.MessageRoleUser {
			t.Errorf("Expected user voice line, got %+v", entry)
		}
		if entry.Text != "I'd like a tour of The Vault" {
			t.Errorf("Unexpected caption %q", entry.Text)
		}
	case <-time.After(waitTimeout):
		t.Fatal("Timed out waiting for caption")
	}

	captions.mu.Lock()
	streamed := captions.streams[0].streamed()
	captions.mu.Unlock()
	if streamed != 4096*2 {
		t.Errorf("Expected 8192 PCM bytes streamed, got %d", streamed)
	}
}

func TestWidgetRegistryRemoveAndReap(t *testing.T) {
	registry := newTestRegistry(t, newFakeTransport(), nil)

	removed := registry.Create()
	if err := registry.Remove(removed.ID()); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := registry.Remove(removed.ID()); !errors.Is(err, ErrWidgetNotFound) {
		t.Errorf("Expected ErrWidgetNotFound on second remove, got %v", err)
	}

	registry.Create()
	registry.Create()
	if registry.Len() != 2 {
		t.Fatalf("Expected 2 widgets, got %d", registry.Len())
	}

	if n := registry.ReapIdle(time.Now(), 30*time.Minute); n != 0 {
		t.Errorf("Expected nothing reaped, got %d", n)
	}
	if n := registry.ReapIdle(time.Now().Add(31*time.Minute), 30*time.Minute); n != 2 {
		t.Errorf("Expected 2 widgets reaped, got %d", n)
	}
	if registry.Len() != 0 {
		t.Errorf("Expected empty registry, got %d", registry.Len())
	}
}

func TestWidgetRegistryReapSkipsActiveVoice(t *testing.T) {
	transport := newFakeTransport()
	registry := newTestRegistry(t, transport, nil)
	w := registry.Create()
	client := newFakeClient()

	if err := w.Open(context.Background(), client); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer registry.CloseAll()
	receiveConn(t, transport)
	waitClientState(t, client, realtime.StateOpen)

	if n := registry.ReapIdle(time.Now().Add(time.Hour), 30*time.Minute); n != 0 {
		t.Errorf("Widget in a voice call must not be reaped, got %d", n)
	}
}
