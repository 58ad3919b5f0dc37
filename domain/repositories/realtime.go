package repositories

import (
	"context"
	"errors"
	"time"
)

// ErrPermissionDenied is returned by a Microphone when the user refuses capture.
var ErrPermissionDenied = errors.New("microphone permission denied")

// Modality is the response modality requested from the realtime endpoint
type Modality string

const ModalityAudio Modality = "AUDIO"

// RealtimeConfig is the fixed connect configuration of a voice session
type RealtimeConfig struct {
	Model              string
	ResponseModalities []Modality
	Voice              string
	SystemInstruction  string
}

// RealtimeInput is one outbound realtime media message
type RealtimeInput struct {
	Data     string // base64 encoded payload
	MIMEType string
}

// ServerMessage is one inbound realtime message.
// Audio is the base64 payload of the first inline-data part of the model turn, if any.
type ServerMessage struct {
	Audio        string
	MIMEType     string
	Text         string
	TurnComplete bool
	Interrupted  bool
}

// RealtimeTransport opens realtime connections to the remote assistant
type RealtimeTransport interface {
	Connect(ctx context.Context, config RealtimeConfig) (RealtimeConn, error)
}

// RealtimeConn is a live bidirectional connection. Receive returns io.EOF once the
// remote side closed the connection in an orderly way.
type RealtimeConn interface {
	Send(input RealtimeInput) error
	Receive() (*ServerMessage, error)
	Close() error
}

// Microphone is a permission-gated capture device
type Microphone interface {
	// Open asks for capture permission and starts producing frames.
	// It returns ErrPermissionDenied when the user refuses.
	Open(ctx context.Context) (CaptureStream, error)
}

// CaptureStream yields fixed-size frames of normalized float samples
type CaptureStream interface {
	Frames() <-chan []float32
	// Close stops capture and releases the device
	Close() error
}

// ContextState mirrors the platform audio context states
type ContextState string

const (
	ContextRunning   ContextState = "running"
	ContextSuspended ContextState = "suspended"
	ContextClosed    ContextState = "closed"
)

// AudioContext is an audio device context running at a fixed sample rate
type AudioContext interface {
	SampleRate() int
	State() ContextState
	// Resume recovers a context suspended by the platform autoplay policy
	Resume(ctx context.Context) error
	// CurrentTime is the context clock
	CurrentTime() time.Duration
	Close() error
}

// Buffer is a playable block of mono float samples
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the playback length of the buffer
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}

// OutputContext is an AudioContext that can schedule buffers
type OutputContext interface {
	AudioContext
	// Play schedules buf to start at the given context time. onEnded runs once the
	// buffer finished naturally; it is not called after Stop.
	Play(buf Buffer, at time.Duration, onEnded func()) (Source, error)
}

// Source is a scheduled or playing buffer
type Source interface {
	// Stop cuts playback immediately
	Stop()
}

// AudioDevices opens the audio contexts of one client
type AudioDevices interface {
	OpenInput(sampleRate int) (AudioContext, error)
	OpenOutput(sampleRate int) (OutputContext, error)
}
