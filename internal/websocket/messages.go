package websocket

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/natashamaes/concierge/domain/entities"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Server to browser
const (
	MessageTypeMicRequest  MessageType = "mic_request"
	MessageTypeMicRelease  MessageType = "mic_release"
	MessageTypeOpenAudio   MessageType = "open_audio"
	MessageTypeCloseAudio  MessageType = "close_audio"
	MessageTypeResumeAudio MessageType = "resume_audio"
	MessageTypeState       MessageType = "state"
	MessageTypePlay        MessageType = "play"
	MessageTypeStopAudio   MessageType = "stop_audio"
	MessageTypeTranscript  MessageType = "transcript"
	MessageTypeError       MessageType = "error"
	MessageTypePong        MessageType = "pong"
)

// Browser to server
const (
	MessageTypeMicGranted   MessageType = "mic_granted"
	MessageTypeMicDenied    MessageType = "mic_denied"
	MessageTypeAudioResumed MessageType = "audio_resumed"
	MessageTypeMicToggle    MessageType = "mic_toggle"
	MessageTypePing         MessageType = "ping"
)

// Audio context kinds
const (
	ContextInput  = "input"
	ContextOutput = "output"
)

// Error codes sent to the browser
const (
	ErrorCodePermissionDenied = "permission_denied"
	ErrorCodeTransport        = "transport_error"
	ErrorCodeInvalidMessage   = "invalid_message"
	ErrorCodeVoice            = "voice_error"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{Type: t, Timestamp: time.Now().Format(time.RFC3339)}
}

// MicRequestMessage asks the browser for the microphone and tells it how to capture
type MicRequestMessage struct {
	BaseMessage
	SampleRate int `json:"sample_rate"`
	FrameSize  int `json:"frame_size"`
}

// AudioContextMessage opens, closes or resumes a browser audio context
type AudioContextMessage struct {
	BaseMessage
	Context    string `json:"context"`
	SampleRate int    `json:"sample_rate,omitempty"`
}

// StateMessage reports the voice session state for the mic button
type StateMessage struct {
	BaseMessage
	State string `json:"state"`
}

// PlayMessage announces the PCM buffer in the next binary message. StartMs is
// on the output context timeline, counted from open_audio.
type PlayMessage struct {
	BaseMessage
	ID         uint64 `json:"id"`
	StartMs    int64  `json:"start_ms"`
	DurationMs int64  `json:"duration_ms"`
	SampleRate int    `json:"sample_rate"`
}

// StopAudioMessage cuts a scheduled buffer
type StopAudioMessage struct {
	BaseMessage
	ID uint64 `json:"id"`
}

// TranscriptMessage carries one new line of the widget transcript
type TranscriptMessage struct {
	BaseMessage
	Entry entities.TranscriptEntry `json:"entry"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// ClientMessage is any JSON message from the browser
type ClientMessage struct {
	BaseMessage
	Context string `json:"context,omitempty"`
	Data    string `json:"data,omitempty"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage parses and checks a JSON message from the browser
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(messageBytes, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch msg.Type {
	case MessageTypeMicGranted, MessageTypeMicDenied, MessageTypeMicToggle, MessageTypePing:
	case MessageTypeAudioResumed:
		if msg.Context != ContextInput && msg.Context != ContextOutput {
			return nil, fmt.Errorf("context must be input or output, got %q", msg.Context)
		}
	case "":
		return nil, fmt.Errorf("message type is required")
	default:
		return nil, fmt.Errorf("unsupported message type: %s", msg.Type)
	}

	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().Format(time.RFC3339)
	}
	return &msg, nil
}

// DecodeFrame reads a captured frame of little-endian float32 samples
func DecodeFrame(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("frame length %d is not a multiple of 4", len(data))
	}

	samples := make([]float32, len(data)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return samples, nil
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: newBase(MessageTypeError),
		Code:        code,
		Message:     message,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: newBase(MessageTypePong),
		Data:        data,
	}
}
