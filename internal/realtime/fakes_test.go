package realtime

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/natashamaes/concierge/domain/repositories"
)

const waitTimeout = 2 * time.Second

// fakeTransport hands out fakeConns, or blocks until the dial context is done when hang is set
type fakeTransport struct {
	hang    bool
	failErr error
	dials   atomic.Int32
	conns   chan *fakeConn
	configs chan repositories.RealtimeConfig
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		conns:   make(chan *fakeConn, 8),
		configs: make(chan repositories.RealtimeConfig, 8),
	}
}

func (t *fakeTransport) Connect(ctx context.Context, config repositories.RealtimeConfig) (repositories.RealtimeConn, error) {
	t.dials.Add(1)
	t.configs <- config

	if t.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if t.failErr != nil {
		return nil, t.failErr
	}

	conn := newFakeConn()
	t.conns <- conn
	return conn, nil
}

type fakeConn struct {
	sent     chan repositories.RealtimeInput
	inbound  chan *repositories.ServerMessage
	failures chan error
	closed   chan struct{}
	once     sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		sent:     make(chan repositories.RealtimeInput, 64),
		inbound:  make(chan *repositories.ServerMessage, 64),
		failures: make(chan error, 1),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) Send(input repositories.RealtimeInput) error {
	select {
	case <-c.closed:
		return errors.New("connection closed")
	default:
	}
	c.sent <- input
	return nil
}

func (c *fakeConn) Receive() (*repositories.ServerMessage, error) {
	select {
	case msg, ok := <-c.inbound:
		if !ok {
			return nil, io.EOF
		}
		return msg, nil
	case err := <-c.failures:
		return nil, err
	case <-c.closed:
		return nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// fakeMicrophone grants immediately, or holds the prompt open until grant is
// closed when grant is set. A held prompt ignores cancellation, like a browser
// that answers late.
type fakeMicrophone struct {
	deny    bool
	grant   chan struct{}
	asked   chan struct{}
	opens   atomic.Int32
	streams chan *fakeCapture
}

func newFakeMicrophone() *fakeMicrophone {
	return &fakeMicrophone{
		asked:   make(chan struct{}, 8),
		streams: make(chan *fakeCapture, 8),
	}
}

func (m *fakeMicrophone) Open(ctx context.Context) (repositories.CaptureStream, error) {
	m.opens.Add(1)
	select {
	case m.asked <- struct{}{}:
	default:
	}
	if m.deny {
		return nil, repositories.ErrPermissionDenied
	}
	if m.grant != nil {
		<-m.grant
	}
	c := &fakeCapture{frames: make(chan []float32, 16)}
	m.streams <- c
	return c, nil
}

type fakeCapture struct {
	frames chan []float32
	closed atomic.Bool
}

func (c *fakeCapture) Frames() <-chan []float32 {
	return c.frames
}

func (c *fakeCapture) Close() error {
	c.closed.Store(true)
	return nil
}

type fakeDevices struct {
	clock     *clock.Mock
	suspended bool

	mu     sync.Mutex
	input  *fakeInput
	output *fakeOutput
}

func (d *fakeDevices) OpenInput(sampleRate int) (repositories.AudioContext, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	state := repositories.ContextRunning
	if d.suspended {
		state = repositories.ContextSuspended
	}
	d.input = &fakeInput{rate: sampleRate, state: state}
	return d.input, nil
}

func (d *fakeDevices) OpenOutput(sampleRate int) (repositories.OutputContext, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.output = &fakeOutput{
		clock:  d.clock,
		epoch:  d.clock.Now(),
		rate:   sampleRate,
		played: make(chan playedBuffer, 16),
	}
	return d.output, nil
}

func (d *fakeDevices) outputContext() *fakeOutput {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.output
}

func (d *fakeDevices) inputContext() *fakeInput {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.input
}

type fakeInput struct {
	mu      sync.Mutex
	rate    int
	state   repositories.ContextState
	resumes int
}

func (c *fakeInput) SampleRate() int { return c.rate }

func (c *fakeInput) State() repositories.ContextState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeInput) Resume(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resumes++
	c.state = repositories.ContextRunning
	return nil
}

func (c *fakeInput) CurrentTime() time.Duration { return 0 }

func (c *fakeInput) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = repositories.ContextClosed
	return nil
}

type playedBuffer struct {
	at       time.Duration
	duration time.Duration
	source   *fakeSource
}

// fakeOutput is an output context driven by a mock clock
type fakeOutput struct {
	clock  *clock.Mock
	epoch  time.Time
	rate   int
	played chan playedBuffer

	mu     sync.Mutex
	closed bool
}

func (o *fakeOutput) SampleRate() int { return o.rate }

func (o *fakeOutput) State() repositories.ContextState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return repositories.ContextClosed
	}
	return repositories.ContextRunning
}

func (o *fakeOutput) Resume(ctx context.Context) error { return nil }

func (o *fakeOutput) CurrentTime() time.Duration {
	return o.clock.Now().Sub(o.epoch)
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

func (o *fakeOutput) Play(buf repositories.Buffer, at time.Duration, onEnded func()) (repositories.Source, error) {
	src := &fakeSource{}
	end := at + buf.Duration() - o.CurrentTime()
	src.timer = o.clock.AfterFunc(end, func() {
		if !src.stopped.Load() && onEnded != nil {
			onEnded()
		}
	})
	o.played <- playedBuffer{at: at, duration: buf.Duration(), source: src}
	return src, nil
}

type fakeSource struct {
	timer   *clock.Timer
	stopped atomic.Bool
}

func (s *fakeSource) Stop() {
	s.stopped.Store(true)
	s.timer.Stop()
}

// recordingObserver buffers every notification
type recordingObserver struct {
	states  chan State
	signals chan Signal
	errs    chan error
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		states:  make(chan State, 64),
		signals: make(chan Signal, 64),
		errs:    make(chan error, 64),
	}
}

func (o *recordingObserver) StateChanged(state State) {
	o.states <- state
}

func (o *recordingObserver) Signal(signal Signal, err error) {
	o.signals <- signal
	o.errs <- err
}

func (o *recordingObserver) waitState(t *testing.T, want State) {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case got := <-o.states:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for state %s", want)
		}
	}
}

func (o *recordingObserver) waitSignal(t *testing.T) (Signal, error) {
	t.Helper()
	select {
	case sig := <-o.signals:
		return sig, <-o.errs
	case <-time.After(waitTimeout):
		t.Fatal("Timed out waiting for signal")
		return "", nil
	}
}

func (o *recordingObserver) expectNoSignal(t *testing.T) {
	t.Helper()
	select {
	case sig := <-o.signals:
		t.Errorf("Unexpected signal %s", sig)
	case <-time.After(50 * time.Millisecond):
	}
}

func receiveSent(t *testing.T, conn *fakeConn) repositories.RealtimeInput {
	t.Helper()
	select {
	case input := <-conn.sent:
		return input
	case <-time.After(waitTimeout):
		t.Fatal("Timed out waiting for sent frame")
		return repositories.RealtimeInput{}
	}
}

func receivePlayed(t *testing.T, output *fakeOutput) playedBuffer {
	t.Helper()
	select {
	case p := <-output.played:
		return p
	case <-time.After(waitTimeout):
		t.Fatal("Timed out waiting for scheduled playback")
		return playedBuffer{}
	}
}

func receiveConn(t *testing.T, transport *fakeTransport) *fakeConn {
	t.Helper()
	select {
	case conn := <-transport.conns:
		return conn
	case <-time.After(waitTimeout):
		t.Fatal("Timed out waiting for connection")
		return nil
	}
}
