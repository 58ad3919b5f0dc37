package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/natashamaes/concierge/domain/entities"
	"github.com/natashamaes/concierge/domain/repositories"
	"github.com/natashamaes/concierge/internal/observability"
	"github.com/natashamaes/concierge/internal/realtime"
)

var (
	ErrWidgetNotFound   = errors.New("widget not found")
	ErrVoiceUnavailable = errors.New("no voice client attached to widget")
)

// VoiceClient is the browser end of a widget. It owns the microphone and the
// audio contexts and is told about state changes and new transcript lines.
type VoiceClient interface {
	repositories.Microphone
	repositories.AudioDevices
	realtime.Observer
	TranscriptAppended(entry entities.TranscriptEntry)
}

// VoiceOptions are shared by the voice sessions of every widget
type VoiceOptions struct {
	Session   realtime.Config
	Transport repositories.RealtimeTransport
	// Captions is optional; when set, user speech is transcribed into the widget transcript.
	Captions        repositories.SpeechToText
	CaptionLanguage string
	Clock           clock.Clock
}

// Widget is one floating chat widget: a transcript, a text chat and an optional voice session
type Widget struct {
	id         string
	transcript *entities.Transcript
	voice      VoiceOptions
	chat       *ChatService
	logger     *zap.Logger

	mu      sync.Mutex
	open    bool
	client  VoiceClient
	session *realtime.Session
}

// ID returns the widget id
func (w *Widget) ID() string {
	return w.id
}

// Transcript returns the visible conversation
func (w *Widget) Transcript() *entities.Transcript {
	return w.transcript
}

// IsOpen reports whether a voice client is attached
func (w *Widget) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open
}

// VoiceState returns the state shown on the mic button
func (w *Widget) VoiceState() realtime.State {
	w.mu.Lock()
	session := w.session
	w.mu.Unlock()

	if session == nil {
		return realtime.StateIdle
	}
	return session.State()
}

// Open attaches a voice client and starts talking right away. A previously
// attached client is dropped.
func (w *Widget) Open(ctx context.Context, client VoiceClient) error {
	var mic repositories.Microphone = client
	if w.voice.Captions != nil {
		mic = &captionMicrophone{
			mic: client,
			stt: w.voice.Captions,
			config: repositories.AudioConfig{
				SampleRate: w.voice.Session.CaptureSampleRate,
				Encoding:   "LINEAR16",
				Language:   w.voice.CaptionLanguage,
			},
			onCaption: w.appendCaption,
			logger:    w.logger,
		}
	}

	session, err := realtime.New(w.voice.Session, realtime.Deps{
		Transport:  w.voice.Transport,
		Microphone: mic,
		Devices:    client,
		Observer:   &widgetObserver{transcript: w.transcript, client: client},
		Clock:      w.voice.Clock,
	}, w.logger.With(zap.String("widgetID", w.id)))
	if err != nil {
		return fmt.Errorf("failed to create voice session: %w", err)
	}

	w.mu.Lock()
	previous := w.session
	wasOpen := w.open
	w.session = session
	w.client = client
	w.open = true
	w.mu.Unlock()

	if previous != nil {
		previous.Close()
	}
	if !wasOpen {
		observability.WidgetOpened()
	}

	w.logger.Info("Widget opened", zap.String("widgetID", w.id))
	w.transcript.Touch()
	return session.Start(ctx)
}

// ToggleMic starts the voice session when idle and stops it otherwise
func (w *Widget) ToggleMic(ctx context.Context) error {
	w.mu.Lock()
	session := w.session
	w.mu.Unlock()

	if session == nil {
		return ErrVoiceUnavailable
	}

	w.transcript.Touch()
	if session.Active() {
		return session.Stop()
	}
	return session.Start(ctx)
}

// Chat sends a typed message and tells the voice client about the new lines
func (w *Widget) Chat(ctx context.Context, text string, speak bool) (ChatReply, error) {
	before := w.transcript.Len()
	reply, err := w.chat.Send(ctx, w.transcript, text, speak)
	if err != nil {
		return reply, err
	}

	if client := w.currentClient(); client != nil {
		for _, entry := range w.transcript.Entries()[before:] {
			client.TranscriptAppended(entry)
		}
	}
	return reply, nil
}

// Close stops the voice session and detaches the client. The transcript is kept.
func (w *Widget) Close() error {
	w.mu.Lock()
	session := w.session
	wasOpen := w.open
	w.session = nil
	w.client = nil
	w.open = false
	w.mu.Unlock()

	if session != nil {
		session.Close()
	}
	if wasOpen {
		observability.WidgetClosed()
		w.logger.Info("Widget closed", zap.String("widgetID", w.id))
	}
	return nil
}

// Release closes the widget only if client is still the attached one
func (w *Widget) Release(client VoiceClient) error {
	if w.currentClient() != client {
		return nil
	}
	return w.Close()
}

func (w *Widget) currentClient() VoiceClient {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.client
}

func (w *Widget) appendCaption(text string) {
	entry := w.transcript.Append(entities.TranscriptEntry{
		Role:   entities.MessageRoleUser,
		Text:   text,
		Source: entities.MessageSourceVoice,
	})
	if client := w.currentClient(); client != nil {
		client.TranscriptAppended(entry)
	}
}

// widgetObserver keeps the transcript warm while voice is in use
type widgetObserver struct {
	transcript *entities.Transcript
	client     VoiceClient
}

func (o *widgetObserver) StateChanged(state realtime.State) {
	o.transcript.Touch()
	o.client.StateChanged(state)
}

func (o *widgetObserver) Signal(signal realtime.Signal, err error) {
	o.client.Signal(signal, err)
}

// WidgetRegistry keeps every widget by id
type WidgetRegistry struct {
	voice  VoiceOptions
	chat   *ChatService
	logger *zap.Logger

	mu      sync.RWMutex
	widgets map[string]*Widget
}

// NewWidgetRegistry creates an empty registry
func NewWidgetRegistry(voice VoiceOptions, chat *ChatService, logger *zap.Logger) *WidgetRegistry {
	return &WidgetRegistry{
		voice:   voice,
		chat:    chat,
		logger:  logger,
		widgets: make(map[string]*Widget),
	}
}

// Create registers a new widget whose transcript starts with the greeting
func (r *WidgetRegistry) Create() *Widget {
	id := uuid.NewString()
	w := &Widget{
		id:         id,
		transcript: entities.NewTranscript(id),
		voice:      r.voice,
		chat:       r.chat,
		logger:     r.logger,
	}

	r.mu.Lock()
	r.widgets[id] = w
	r.mu.Unlock()

	r.logger.Debug("Widget created", zap.String("widgetID", id))
	return w
}

// Get looks a widget up by id
func (r *WidgetRegistry) Get(id string) (*Widget, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.widgets[id]
	if !ok {
		return nil, ErrWidgetNotFound
	}
	return w, nil
}

// Remove closes a widget and forgets it
func (r *WidgetRegistry) Remove(id string) error {
	r.mu.Lock()
	w, ok := r.widgets[id]
	delete(r.widgets, id)
	r.mu.Unlock()

	if !ok {
		return ErrWidgetNotFound
	}

	r.chat.Forget(id)
	return w.Close()
}

// Len returns the number of registered widgets
func (r *WidgetRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.widgets)
}

// ReapIdle removes widgets without an active voice session that have been idle longer than maxIdle
func (r *WidgetRegistry) ReapIdle(now time.Time, maxIdle time.Duration) int {
	r.mu.RLock()
	var expired []string
	for id, w := range r.widgets {
		if w.VoiceState() == realtime.StateIdle && w.transcript.IdleFor(now) > maxIdle {
			expired = append(expired, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range expired {
		if err := r.Remove(id); err != nil && !errors.Is(err, ErrWidgetNotFound) {
			r.logger.Warn("Failed to remove idle widget", zap.String("widgetID", id), zap.Error(err))
		}
	}
	return len(expired)
}

// CloseAll closes every widget, used on shutdown
func (r *WidgetRegistry) CloseAll() {
	r.mu.Lock()
	widgets := r.widgets
	r.widgets = make(map[string]*Widget)
	r.mu.Unlock()

	for id, w := range widgets {
		r.chat.Forget(id)
		w.Close()
	}
}

// captionMicrophone tees captured frames into a speech-to-text stream
type captionMicrophone struct {
	mic       repositories.Microphone
	stt       repositories.SpeechToText
	config    repositories.AudioConfig
	onCaption func(text string)
	logger    *zap.Logger
}

func (m *captionMicrophone) Open(ctx context.Context) (repositories.CaptureStream, error) {
	capture, err := m.mic.Open(ctx)
	if err != nil {
		return nil, err
	}

	// The stream outlives the Start call that opened the microphone.
	streamCtx, cancel := context.WithCancel(context.Background())
	stream, err := m.stt.InitTranscribeStreaming(streamCtx, m.config)
	if err != nil {
		cancel()
		m.logger.Warn("Captions unavailable, continuing without them", zap.Error(err))
		observability.RecordError("captions", "widget")
		return capture, nil
	}

	c := &captionCapture{
		inner:     capture,
		stream:    stream,
		cancel:    cancel,
		onCaption: m.onCaption,
		logger:    m.logger,
		out:       make(chan []float32, 16),
		done:      make(chan struct{}),
	}
	c.wg.Add(1)
	go c.tee()
	return c, nil
}

type captionCapture struct {
	inner     repositories.CaptureStream
	stream    repositories.SpeechToTextStreaming
	cancel    context.CancelFunc
	onCaption func(text string)
	logger    *zap.Logger

	out  chan []float32
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func (c *captionCapture) Frames() <-chan []float32 {
	return c.out
}

func (c *captionCapture) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.inner.Close()
		go c.finish()
	})
	return err
}

func (c *captionCapture) tee() {
	defer c.wg.Done()

	failed := false
	frames := c.inner.Frames()
	for {
		select {
		case <-c.done:
			return
		case frame, ok := <-frames:
			if !ok {
				close(c.out)
				return
			}
			if !failed {
				if err := c.stream.Stream(realtime.EncodePCM16(frame)); err != nil {
					c.logger.Warn("Caption stream failed", zap.Error(err))
					failed = true
				}
			}
			select {
			case c.out <- frame:
			case <-c.done:
				return
			}
		}
	}
}

func (c *captionCapture) finish() {
	defer c.cancel()
	c.wg.Wait()

	text, err := c.stream.End()
	if err != nil {
		c.logger.Debug("No caption for voice turn", zap.Error(err))
		return
	}
	if text != "" {
		c.onCaption(text)
	}
}
