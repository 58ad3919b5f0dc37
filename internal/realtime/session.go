package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/natashamaes/concierge/domain/repositories"
	"github.com/natashamaes/concierge/internal/observability"
)

// State is the lifecycle state of a voice session
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	// StateError is transient; the session always settles back to StateIdle.
	StateError State = "error"
)

// Signal is a user-visible condition raised by a session
type Signal string

const (
	SignalPermissionDenied Signal = "permission_denied"
	SignalTransportError   Signal = "transport_error"
)

// DuplicateStartPolicy controls Start while a session is already connecting or open
type DuplicateStartPolicy string

const (
	DuplicateStartIgnore DuplicateStartPolicy = "ignore"
	DuplicateStartReject DuplicateStartPolicy = "reject"
)

var (
	ErrSessionActive  = errors.New("voice session already active")
	ErrSessionClosed  = errors.New("voice session closed")
	ErrConnectTimeout = errors.New("timed out connecting to realtime endpoint")
	// ErrStartCancelled is returned by a Start that was stopped before it connected.
	ErrStartCancelled = errors.New("voice session stopped while starting")
)

const (
	defaultCaptureSampleRate  = 16000
	defaultPlaybackSampleRate = 24000
	eventQueueSize            = 64
)

// Observer receives state changes and signals. It is called from the session
// goroutine and must not call back into the session synchronously.
type Observer interface {
	StateChanged(state State)
	Signal(signal Signal, err error)
}

type nopObserver struct{}

func (nopObserver) StateChanged(State)   {}
func (nopObserver) Signal(Signal, error) {}

// Config is the fixed configuration of a voice session
type Config struct {
	Model              string
	Voice              string
	SystemInstruction  string
	CaptureSampleRate  int
	PlaybackSampleRate int
	// ConnectTimeout bounds the Connecting state; zero waits forever.
	ConnectTimeout time.Duration
	DuplicateStart DuplicateStartPolicy
}

func (c Config) realtimeConfig() repositories.RealtimeConfig {
	return repositories.RealtimeConfig{
		Model:              c.Model,
		ResponseModalities: []repositories.Modality{repositories.ModalityAudio},
		Voice:              c.Voice,
		SystemInstruction:  c.SystemInstruction,
	}
}

// Deps are the collaborators of a voice session
type Deps struct {
	Transport  repositories.RealtimeTransport
	Microphone repositories.Microphone
	Devices    repositories.AudioDevices
	Observer   Observer
	Clock      clock.Clock
}

type eventKind int

const (
	evStart eventKind = iota
	evStop
	evClose
	evConnected
	evConnectFailed
	evConnectTimeout
	evMessage
	evReceiveFailed
	evRemoteClosed
	evSourceEnded
	evMicGranted
	evStartFailed
	evResumed
)

type event struct {
	kind    eventKind
	gen     uint64
	ctx     context.Context
	conn    repositories.RealtimeConn
	capture repositories.CaptureStream
	msg     *repositories.ServerMessage
	err     error
	id      uint64
	reply   chan error
}

// Session is one realtime voice conversation between a widget and the assistant.
// All state lives on a single goroutine fed by an event queue; public methods
// post events and wait for the result.
type Session struct {
	cfg       Config
	deps      Deps
	logger    *zap.Logger
	inputMIME string

	events    chan event
	done      chan struct{}
	closeOnce sync.Once

	mu    sync.RWMutex
	state State

	// starting is set while Start waits on the browser, before Connecting
	starting bool

	// owned by the event loop
	gen          uint64
	input        repositories.AudioContext
	output       repositories.OutputContext
	playback     *Playback
	conn         repositories.RealtimeConn
	capture      repositories.CaptureStream
	captureStop  chan struct{}
	cancelDial   context.CancelFunc
	connectTimer *clock.Timer
	pending      *pendingStart
}

// pendingStart is a Start waiting for the microphone grant and context resumes
type pendingStart struct {
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
	reply  chan error
}

// New creates an idle session and starts its event loop
func New(cfg Config, deps Deps, logger *zap.Logger) (*Session, error) {
	if deps.Transport == nil {
		return nil, fmt.Errorf("realtime transport is required")
	}
	if deps.Microphone == nil {
		return nil, fmt.Errorf("microphone is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("audio devices are required")
	}
	if cfg.ConnectTimeout < 0 {
		return nil, fmt.Errorf("connect timeout must not be negative, got %s", cfg.ConnectTimeout)
	}

	if cfg.CaptureSampleRate == 0 {
		cfg.CaptureSampleRate = defaultCaptureSampleRate
	}
	if cfg.PlaybackSampleRate == 0 {
		cfg.PlaybackSampleRate = defaultPlaybackSampleRate
	}
	switch cfg.DuplicateStart {
	case "":
		cfg.DuplicateStart = DuplicateStartIgnore
	case DuplicateStartIgnore, DuplicateStartReject:
	default:
		return nil, fmt.Errorf("unknown duplicate start policy %q", cfg.DuplicateStart)
	}

	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Session{
		cfg:       cfg,
		deps:      deps,
		logger:    logger,
		inputMIME: InputMIMEType(cfg.CaptureSampleRate),
		events:    make(chan event, eventQueueSize),
		done:      make(chan struct{}),
		state:     StateIdle,
	}
	go s.run()
	return s, nil
}

// State returns the current session state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Active reports whether the session is starting, connecting or open
func (s *Session) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state != StateIdle || s.starting
}

// Start requests the microphone, opens the audio contexts and dials the assistant.
// It returns once the session is Connecting; the transition to Open is reported
// through the observer. A Stop while the browser is still prompting makes Start
// return ErrStartCancelled.
func (s *Session) Start(ctx context.Context) error {
	return s.call(ctx, event{kind: evStart, ctx: ctx})
}

// Stop tears the conversation down and releases the microphone. Stopping an idle
// session is a no-op.
func (s *Session) Stop() error {
	err := s.call(context.Background(), event{kind: evStop})
	if errors.Is(err, ErrSessionClosed) {
		return nil
	}
	return err
}

// Close stops the session, closes the audio contexts and ends the event loop
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		reply := make(chan error, 1)
		select {
		case s.events <- event{kind: evClose, reply: reply}:
		case <-s.done:
		}
	})
	<-s.done
	return nil
}

func (s *Session) call(ctx context.Context, ev event) error {
	ev.reply = make(chan error, 1)
	select {
	case s.events <- ev:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-ev.reply:
		return err
	case <-s.done:
		select {
		case err := <-ev.reply:
			return err
		default:
			return ErrSessionClosed
		}
	}
}

// post is used by helper goroutines; it gives up once the loop has exited.
func (s *Session) post(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) run() {
	defer close(s.done)

	for ev := range s.events {
		switch ev.kind {
		case evStart:
			s.handleStart(ev)

		case evMicGranted:
			s.handleMicGranted(ev)

		case evStartFailed:
			s.handleStartFailed(ev)

		case evResumed:
			s.handleResumed(ev)

		case evStop:
			s.teardown()
			ev.reply <- nil

		case evClose:
			s.teardown()
			s.closeContexts()
			ev.reply <- nil
			return

		case evConnected:
			s.handleConnected(ev)

		case evConnectFailed:
			if ev.gen == s.gen {
				s.fail(fmt.Errorf("failed to connect: %w", ev.err))
			}

		case evConnectTimeout:
			if ev.gen == s.gen && s.State() == StateConnecting {
				s.fail(ErrConnectTimeout)
			}

		case evMessage:
			if ev.gen == s.gen && s.State() == StateOpen {
				s.handleMessage(ev.msg)
			}

		case evReceiveFailed:
			if ev.gen == s.gen {
				s.fail(ev.err)
			}

		case evRemoteClosed:
			if ev.gen == s.gen {
				s.logger.Info("Realtime connection closed by remote")
				s.teardown()
			}

		case evSourceEnded:
			if s.playback != nil {
				s.playback.Remove(ev.id)
			}
		}
	}
}

func (s *Session) handleStart(ev event) {
	if s.State() != StateIdle || s.pending != nil {
		if s.cfg.DuplicateStart == DuplicateStartReject {
			ev.reply <- ErrSessionActive
			return
		}
		s.logger.Debug("Ignoring start on active session", zap.String("state", string(s.State())))
		ev.reply <- nil
		return
	}

	s.gen++
	ctx, cancel := context.WithCancel(ev.ctx)
	s.pending = &pendingStart{gen: s.gen, ctx: ctx, cancel: cancel, reply: ev.reply}
	s.setStarting(true)

	go s.requestMicrophone(ctx, s.gen)
}

// requestMicrophone waits for the permission prompt off the event loop
func (s *Session) requestMicrophone(ctx context.Context, gen uint64) {
	capture, err := s.deps.Microphone.Open(ctx)
	if err != nil {
		s.post(event{kind: evStartFailed, gen: gen, err: err})
		return
	}
	if !s.post(event{kind: evMicGranted, gen: gen, capture: capture}) {
		capture.Close()
	}
}

func (s *Session) handleMicGranted(ev event) {
	if s.pending == nil || ev.gen != s.pending.gen {
		// Stopped while the prompt was open.
		s.releaseCapture(ev.capture)
		return
	}
	s.capture = ev.capture

	suspended, err := s.openContexts()
	if err != nil {
		s.abortStart(err)
		return
	}
	go s.resumeContexts(s.pending.ctx, ev.gen, suspended)
}

func (s *Session) handleStartFailed(ev event) {
	if s.pending == nil || ev.gen != s.pending.gen {
		return
	}
	if errors.Is(ev.err, repositories.ErrPermissionDenied) {
		s.logger.Info("Microphone permission denied")
		s.signal(SignalPermissionDenied, ev.err)
		s.abortStart(ev.err)
		return
	}
	s.abortStart(fmt.Errorf("failed to open microphone: %w", ev.err))
}

func (s *Session) handleResumed(ev event) {
	if s.pending == nil || ev.gen != s.pending.gen {
		return
	}
	if ev.err != nil {
		s.abortStart(ev.err)
		return
	}

	p := s.pending
	s.pending = nil
	p.cancel()

	dialCtx, cancel := context.WithCancel(context.Background())
	s.cancelDial = cancel
	gen := p.gen
	if s.cfg.ConnectTimeout > 0 {
		s.connectTimer = s.deps.Clock.AfterFunc(s.cfg.ConnectTimeout, func() {
			s.post(event{kind: evConnectTimeout, gen: gen})
		})
	}

	s.setState(StateConnecting)
	s.setStarting(false)
	go s.dial(dialCtx, gen)
	p.reply <- nil
}

// abortStart answers the pending Start with err and releases the microphone
func (s *Session) abortStart(err error) {
	p := s.pending
	s.pending = nil
	p.cancel()

	s.releaseCapture(s.capture)
	s.capture = nil
	s.setStarting(false)
	p.reply <- err
}

func (s *Session) releaseCapture(capture repositories.CaptureStream) {
	if capture == nil {
		return
	}
	if err := capture.Close(); err != nil {
		s.logger.Warn("Failed to release microphone", zap.Error(err))
	}
}

// openContexts creates missing audio contexts and returns those still suspended
func (s *Session) openContexts() ([]repositories.AudioContext, error) {
	if s.input == nil || s.input.State() == repositories.ContextClosed {
		input, err := s.deps.Devices.OpenInput(s.cfg.CaptureSampleRate)
		if err != nil {
			return nil, fmt.Errorf("failed to open input context: %w", err)
		}
		s.input = input
	}

	if s.output == nil || s.output.State() == repositories.ContextClosed {
		output, err := s.deps.Devices.OpenOutput(s.cfg.PlaybackSampleRate)
		if err != nil {
			return nil, fmt.Errorf("failed to open output context: %w", err)
		}
		s.output = output
		s.playback = NewPlayback(output)
	}

	var suspended []repositories.AudioContext
	for _, c := range []repositories.AudioContext{s.input, s.output} {
		if c.State() == repositories.ContextSuspended {
			suspended = append(suspended, c)
		}
	}
	return suspended, nil
}

// resumeContexts resumes contexts created before a user gesture; they stay
// silent until the browser confirms.
func (s *Session) resumeContexts(ctx context.Context, gen uint64, contexts []repositories.AudioContext) {
	var err error
	for _, c := range contexts {
		if err = c.Resume(ctx); err != nil {
			err = fmt.Errorf("failed to resume audio context: %w", err)
			break
		}
	}
	s.post(event{kind: evResumed, gen: gen, err: err})
}

func (s *Session) dial(ctx context.Context, gen uint64) {
	s.logger.Info("Connecting to realtime endpoint", zap.String("model", s.cfg.Model))

	conn, err := s.deps.Transport.Connect(ctx, s.cfg.realtimeConfig())
	if err != nil {
		s.post(event{kind: evConnectFailed, gen: gen, err: err})
		return
	}

	if !s.post(event{kind: evConnected, gen: gen, conn: conn}) {
		conn.Close()
	}
}

func (s *Session) handleConnected(ev event) {
	if ev.gen != s.gen || s.State() != StateConnecting {
		// Torn down while dialing.
		ev.conn.Close()
		return
	}

	s.stopConnectTimer()
	s.conn = ev.conn
	s.captureStop = make(chan struct{})
	s.setState(StateOpen)

	go s.receive(ev.gen, ev.conn)
	go s.pump(ev.conn, s.capture.Frames(), s.captureStop)
}

func (s *Session) receive(gen uint64, conn repositories.RealtimeConn) {
	for {
		msg, err := conn.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.post(event{kind: evRemoteClosed, gen: gen})
			} else {
				s.post(event{kind: evReceiveFailed, gen: gen, err: err})
			}
			return
		}

		if !s.post(event{kind: evMessage, gen: gen, msg: msg}) {
			return
		}
	}
}

// pump sends captured frames in capture order. Sends are fire-and-forget.
func (s *Session) pump(conn repositories.RealtimeConn, frames <-chan []float32, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			input := repositories.RealtimeInput{
				Data:     EncodeFrame(frame),
				MIMEType: s.inputMIME,
			}
			if err := conn.Send(input); err != nil {
				s.logger.Debug("Dropped audio frame", zap.Error(err))
				continue
			}
			observability.RecordFrameSent()
		}
	}
}

func (s *Session) handleMessage(msg *repositories.ServerMessage) {
	if msg.Interrupted {
		s.playback.StopAll()
	}
	if msg.Audio == "" {
		return
	}

	samples, err := DecodeChunk(msg.Audio)
	if err != nil {
		s.logger.Warn("Discarding malformed audio chunk", zap.Error(err))
		return
	}

	buf := repositories.Buffer{Samples: samples, SampleRate: s.cfg.PlaybackSampleRate}
	id, start, err := s.playback.Schedule(buf, func(id uint64) {
		s.post(event{kind: evSourceEnded, id: id})
	})
	if err != nil {
		s.logger.Warn("Failed to schedule audio chunk", zap.Error(err))
		return
	}

	observability.RecordChunkScheduled()
	s.logger.Debug("Scheduled audio chunk",
		zap.Uint64("id", id),
		zap.Duration("start", start),
		zap.Duration("duration", buf.Duration()))
}

func (s *Session) fail(err error) {
	s.logger.Warn("Voice session failed", zap.Error(err))
	s.setState(StateError)
	s.teardown()
	s.signal(SignalTransportError, err)
}

// teardown releases the connection, the microphone and every scheduled source.
// Events from the previous connection are ignored afterwards.
func (s *Session) teardown() {
	if s.pending != nil {
		s.gen++
		s.abortStart(ErrStartCancelled)
		return
	}
	if s.State() == StateIdle {
		return
	}

	s.gen++
	s.stopConnectTimer()

	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
	if s.captureStop != nil {
		close(s.captureStop)
		s.captureStop = nil
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Debug("Error closing realtime connection", zap.Error(err))
		}
		s.conn = nil
	}
	s.releaseCapture(s.capture)
	s.capture = nil
	if s.playback != nil {
		s.playback.StopAll()
	}

	s.setState(StateIdle)
}

func (s *Session) closeContexts() {
	if s.input != nil {
		if err := s.input.Close(); err != nil {
			s.logger.Debug("Error closing input context", zap.Error(err))
		}
		s.input = nil
	}
	if s.output != nil {
		if err := s.output.Close(); err != nil {
			s.logger.Debug("Error closing output context", zap.Error(err))
		}
		s.output = nil
		s.playback = nil
	}
}

func (s *Session) stopConnectTimer() {
	if s.connectTimer != nil {
		s.connectTimer.Stop()
		s.connectTimer = nil
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()

	if prev == state {
		return
	}

	active := 0
	if prev == StateIdle {
		active = 1
	} else if state == StateIdle {
		active = -1
	}
	observability.RecordVoiceState(string(state), active)

	s.logger.Debug("Voice session state changed",
		zap.String("from", string(prev)),
		zap.String("to", string(state)))
	s.deps.Observer.StateChanged(state)
}

func (s *Session) setStarting(starting bool) {
	s.mu.Lock()
	s.starting = starting
	s.mu.Unlock()
}

func (s *Session) signal(sig Signal, err error) {
	observability.RecordVoiceSignal(string(sig))
	s.deps.Observer.Signal(sig, err)
}
