package usecase

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/natashamaes/concierge/domain/entities"
	"github.com/natashamaes/concierge/domain/repositories"
	"github.com/natashamaes/concierge/internal/realtime"
)

const waitTimeout = 2 * time.Second

type fakeLLM struct {
	reply   string
	sendErr error
	genErr  error

	mu        sync.Mutex
	generated int
	prompts   []string
	received  []string
}

func (f *fakeLLM) GenerateChat(ctx context.Context, systemInstruction string, history []repositories.ChatMessage) (repositories.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.genErr != nil {
		return nil, f.genErr
	}
	f.generated++
	f.prompts = append(f.prompts, systemInstruction)
	return &fakeChatSession{llm: f}, nil
}

type fakeChatSession struct {
	llm *fakeLLM
}

func (s *fakeChatSession) SendMessage(ctx context.Context, message repositories.ChatMessage) (repositories.ChatMessage, error) {
	s.llm.mu.Lock()
	defer s.llm.mu.Unlock()
	s.llm.received = append(s.llm.received, message.Content)
	if s.llm.sendErr != nil {
		return repositories.ChatMessage{}, s.llm.sendErr
	}
	return repositories.ChatMessage{Role: repositories.ModelRole, Content: s.llm.reply}, nil
}

func (s *fakeChatSession) History() ([]repositories.ChatMessage, error) {
	return nil, nil
}

type fakeTTS struct {
	audio []byte
	err   error
	texts []string
}

func (f *fakeTTS) ConvertTextToSpeech(ctx context.Context, text string) (<-chan []byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan []byte, 1)
	ch <- f.audio
	close(ch)
	return ch, nil
}

func (f *fakeTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return f.audio, nil
}

type fakeCustomers struct {
	customer *entities.Customer
	err      error
	lookups  []string
	upserts  []*entities.Customer
}

func (f *fakeCustomers) GetByPhone(ctx context.Context, phone string) (*entities.Customer, error) {
	f.lookups = append(f.lookups, phone)
	return f.customer, f.err
}

func (f *fakeCustomers) Upsert(ctx context.Context, customer *entities.Customer) error {
	f.upserts = append(f.upserts, customer)
	return f.err
}

type fakeCalendar struct {
	events   []repositories.CalendarEvent
	err      error
	link     string
	queried  [][2]time.Time
	inserted []repositories.CalendarEvent
}

func (f *fakeCalendar) ListEvents(ctx context.Context, start, end time.Time) ([]repositories.CalendarEvent, error) {
	f.queried = append(f.queried, [2]time.Time{start, end})
	return f.events, f.err
}

func (f *fakeCalendar) Insert(ctx context.Context, event repositories.CalendarEvent) (repositories.CalendarEvent, error) {
	f.inserted = append(f.inserted, event)
	if f.err != nil {
		return repositories.CalendarEvent{}, f.err
	}
	event.HTMLLink = f.link
	return event, nil
}

type fakeCallLog struct {
	rows [][]interface{}
	err  error
}

func (f *fakeCallLog) Append(ctx context.Context, row []interface{}) error {
	f.rows = append(f.rows, row)
	return f.err
}

type sentSMS struct {
	to, body string
}

type fakeSMS struct {
	err  error
	sent []sentSMS
}

func (f *fakeSMS) Send(ctx context.Context, to, body string) error {
	f.sent = append(f.sent, sentSMS{to: to, body: body})
	return f.err
}

type sentMail struct {
	subject, body string
}

type fakeMailer struct {
	err  error
	sent []sentMail
}

func (f *fakeMailer) Send(ctx context.Context, subject, body string) error {
	f.sent = append(f.sent, sentMail{subject: subject, body: body})
	return f.err
}

// fakeTransport dials connections that stay open until closed
type fakeTransport struct {
	conns chan *fakeConn
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{conns: make(chan *fakeConn, 8)}
}

func (t *fakeTransport) Connect(ctx context.Context, config repositories.RealtimeConfig) (repositories.RealtimeConn, error) {
	conn := &fakeConn{closed: make(chan struct{}), sent: make(chan repositories.RealtimeInput, 64)}
	t.conns <- conn
	return conn, nil
}

type fakeConn struct {
	sent   chan repositories.RealtimeInput
	closed chan struct{}
	once   sync.Once
}

func (c *fakeConn) Send(input repositories.RealtimeInput) error {
	select {
	case <-c.closed:
		return errors.New("connection closed")
	case c.sent <- input:
		return nil
	}
}

func (c *fakeConn) Receive() (*repositories.ServerMessage, error) {
	<-c.closed
	return nil, io.EOF
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// fakeClient is a browser that grants the microphone and plays nothing
type fakeClient struct {
	deny bool

	states      chan realtime.State
	signals     chan realtime.Signal
	transcripts chan entities.TranscriptEntry
	captures    chan *fakeCapture
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		states:      make(chan realtime.State, 64),
		signals:     make(chan realtime.Signal, 64),
		transcripts: make(chan entities.TranscriptEntry, 64),
		captures:    make(chan *fakeCapture, 8),
	}
}

func (c *fakeClient) Open(ctx context.Context) (repositories.CaptureStream, error) {
	if c.deny {
		return nil, repositories.ErrPermissionDenied
	}
	capture := &fakeCapture{frames: make(chan []float32, 16)}
	c.captures <- capture
	return capture, nil
}

func (c *fakeClient) OpenInput(sampleRate int) (repositories.AudioContext, error) {
	return &fakeContext{rate: sampleRate}, nil
}

func (c *fakeClient) OpenOutput(sampleRate int) (repositories.OutputContext, error) {
	return &fakeContext{rate: sampleRate}, nil
}

func (c *fakeClient) StateChanged(state realtime.State) {
	c.states <- state
}

func (c *fakeClient) Signal(signal realtime.Signal, err error) {
	c.signals <- signal
}

func (c *fakeClient) TranscriptAppended(entry entities.TranscriptEntry) {
	c.transcripts <- entry
}

type fakeCapture struct {
	frames chan []float32
	mu     sync.Mutex
	closed bool
}

func (c *fakeCapture) Frames() <-chan []float32 {
	return c.frames
}

func (c *fakeCapture) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeCapture) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeContext struct {
	rate int
}

func (c *fakeContext) SampleRate() int                  { return c.rate }
func (c *fakeContext) State() repositories.ContextState { return repositories.ContextRunning }
func (c *fakeContext) Resume(ctx context.Context) error { return nil }
func (c *fakeContext) CurrentTime() time.Duration       { return 0 }
func (c *fakeContext) Close() error                     { return nil }

func (c *fakeContext) Play(buf repositories.Buffer, at time.Duration, onEnded func()) (repositories.Source, error) {
	return fakeSource{}, nil
}

type fakeSource struct{}

func (fakeSource) Stop() {}

// fakeCaptions records what was streamed and returns a fixed caption
type fakeCaptions struct {
	caption string

	mu      sync.Mutex
	streams []*fakeCaptionStream
}

func (f *fakeCaptions) InitTranscribeStreaming(ctx context.Context, config repositories.AudioConfig) (repositories.SpeechToTextStreaming, error) {
	stream := &fakeCaptionStream{caption: f.caption}
	f.mu.Lock()
	f.streams = append(f.streams, stream)
	f.mu.Unlock()
	return stream, nil
}

type fakeCaptionStream struct {
	caption string

	mu    sync.Mutex
	bytes int
}

func (s *fakeCaptionStream) Stream(data []byte) error {
	s.mu.Lock()
	s.bytes += len(data)
	s.mu.Unlock()
	return nil
}

func (s *fakeCaptionStream) End() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bytes == 0 {
		return "", errors.New("no audio data received")
	}
	return s.caption, nil
}

func (s *fakeCaptionStream) streamed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}
