package websocket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/natashamaes/concierge/domain/repositories"
	"github.com/natashamaes/concierge/internal/realtime"
)

const captureBuffer = 32

// Open implements repositories.Microphone by asking the browser for the microphone
func (c *Client) Open(ctx context.Context) (repositories.CaptureStream, error) {
	// Drop an answer left over from an earlier prompt.
	select {
	case <-c.micReplies:
	default:
	}

	request := &MicRequestMessage{
		BaseMessage: newBase(MessageTypeMicRequest),
		SampleRate:  c.hub.config.CaptureSampleRate,
		FrameSize:   c.hub.config.FrameSize,
	}
	if !c.sendJSON(request) {
		return nil, ErrClientGone
	}

	timer := c.hub.config.Clock.Timer(c.hub.config.BrowserTimeout)
	defer timer.Stop()

	select {
	case granted := <-c.micReplies:
		if !granted {
			return nil, repositories.ErrPermissionDenied
		}
	case <-timer.C:
		return nil, fmt.Errorf("%w: no answer to microphone prompt", repositories.ErrPermissionDenied)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, ErrClientGone
	}

	capture := &socketCapture{
		client: c,
		frames: make(chan []float32, captureBuffer),
	}

	c.mu.Lock()
	previous := c.capture
	c.capture = capture
	c.mu.Unlock()

	if previous != nil {
		previous.Close()
	}
	c.logger.Debug("Microphone granted")
	return capture, nil
}

// OpenInput implements repositories.AudioDevices
func (c *Client) OpenInput(sampleRate int) (repositories.AudioContext, error) {
	ctx := c.newContext(ContextInput, sampleRate)
	if !ctx.announce() {
		return nil, ErrClientGone
	}
	return ctx, nil
}

// OpenOutput implements repositories.AudioDevices
func (c *Client) OpenOutput(sampleRate int) (repositories.OutputContext, error) {
	out := &socketOutput{
		socketContext: c.newContext(ContextOutput, sampleRate),
		sources:       make(map[uint64]*socketSource),
	}
	if !out.announce() {
		return nil, ErrClientGone
	}
	return out, nil
}

func (c *Client) newContext(kind string, sampleRate int) *socketContext {
	clk := c.hub.config.Clock
	return &socketContext{
		client: c,
		kind:   kind,
		rate:   sampleRate,
		clock:  clk,
		epoch:  clk.Now(),
		// Browsers create audio contexts suspended until a user gesture resumes them.
		state: repositories.ContextSuspended,
	}
}

// socketCapture receives the frames the browser captures
type socketCapture struct {
	client *Client

	mu     sync.Mutex
	frames chan []float32
	closed bool
}

func (s *socketCapture) Frames() <-chan []float32 {
	return s.frames
}

func (s *socketCapture) push(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	select {
	case s.frames <- samples:
	default:
		s.client.logger.Warn("Capture buffer full, dropping frame")
	}
}

func (s *socketCapture) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.frames)
	s.mu.Unlock()

	c := s.client
	c.mu.Lock()
	if c.capture == s {
		c.capture = nil
	}
	c.mu.Unlock()

	c.sendJSON(&BaseMessage{Type: MessageTypeMicRelease, Timestamp: time.Now().Format(time.RFC3339)})
	return nil
}

// socketContext mirrors a browser AudioContext. Its clock restarts when the
// browser confirms a resume, since a suspended browser context does not advance.
type socketContext struct {
	client *Client
	kind   string
	rate   int
	clock  clock.Clock

	mu    sync.Mutex
	state repositories.ContextState
	epoch time.Time
}

func (s *socketContext) announce() bool {
	return s.client.sendJSON(&AudioContextMessage{
		BaseMessage: newBase(MessageTypeOpenAudio),
		Context:     s.kind,
		SampleRate:  s.rate,
	})
}

func (s *socketContext) SampleRate() int {
	return s.rate
}

func (s *socketContext) State() repositories.ContextState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Resume asks the browser to resume the context and waits for confirmation
func (s *socketContext) Resume(ctx context.Context) error {
	if s.State() == repositories.ContextRunning {
		return nil
	}

	c := s.client
	if !c.sendJSON(&AudioContextMessage{BaseMessage: newBase(MessageTypeResumeAudio), Context: s.kind}) {
		return ErrClientGone
	}

	timer := s.clock.Timer(c.hub.config.BrowserTimeout)
	defer timer.Stop()

	for {
		select {
		case kind := <-c.resumeReplies:
			if kind != s.kind {
				c.logger.Debug("Ignoring resume answer for other context", zap.String("context", kind))
				continue
			}
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.state == repositories.ContextClosed {
				return fmt.Errorf("%s audio context closed while resuming", s.kind)
			}
			s.state = repositories.ContextRunning
			s.epoch = s.clock.Now()
			return nil
		case <-timer.C:
			return fmt.Errorf("browser did not resume %s audio", s.kind)
		case <-ctx.Done():
			return ctx.Err()
		case <-c.ctx.Done():
			return ErrClientGone
		}
	}
}

func (s *socketContext) CurrentTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Since(s.epoch)
}

func (s *socketContext) Close() error {
	s.mu.Lock()
	if s.state == repositories.ContextClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = repositories.ContextClosed
	s.mu.Unlock()

	s.client.sendJSON(&AudioContextMessage{BaseMessage: newBase(MessageTypeCloseAudio), Context: s.kind})
	return nil
}

// socketOutput ships scheduled buffers to the browser and tracks when they end
type socketOutput struct {
	*socketContext

	srcMu   sync.Mutex
	nextID  uint64
	sources map[uint64]*socketSource
}

func (o *socketOutput) Play(buf repositories.Buffer, at time.Duration, onEnded func()) (repositories.Source, error) {
	if o.State() == repositories.ContextClosed {
		return nil, fmt.Errorf("output context closed")
	}

	o.srcMu.Lock()
	o.nextID++
	id := o.nextID
	o.srcMu.Unlock()

	duration := buf.Duration()
	c := o.client
	if !c.sendJSON(&PlayMessage{
		BaseMessage: newBase(MessageTypePlay),
		ID:          id,
		StartMs:     at.Milliseconds(),
		DurationMs:  duration.Milliseconds(),
		SampleRate:  buf.SampleRate,
	}) {
		return nil, ErrClientGone
	}
	if !c.enqueue(WriteData{Type: websocket.BinaryMessage, Payload: realtime.EncodePCM16(buf.Samples)}) {
		return nil, ErrClientGone
	}

	src := &socketSource{output: o, id: id}
	o.srcMu.Lock()
	o.sources[id] = src
	o.srcMu.Unlock()

	src.timer = o.clock.AfterFunc(at+duration-o.CurrentTime(), func() {
		if o.forget(id) && onEnded != nil {
			onEnded()
		}
	})
	return src, nil
}

// forget reports whether the source was still scheduled
func (o *socketOutput) forget(id uint64) bool {
	o.srcMu.Lock()
	defer o.srcMu.Unlock()
	if _, ok := o.sources[id]; !ok {
		return false
	}
	delete(o.sources, id)
	return true
}

type socketSource struct {
	output *socketOutput
	id     uint64
	timer  *clock.Timer
}

func (s *socketSource) Stop() {
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.output.forget(s.id) {
		s.output.client.sendJSON(&StopAudioMessage{BaseMessage: newBase(MessageTypeStopAudio), ID: s.id})
	}
}
