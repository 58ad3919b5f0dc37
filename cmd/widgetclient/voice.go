package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/natashamaes/concierge/domain/entities"
	"github.com/natashamaes/concierge/internal/realtime"
	ws "github.com/natashamaes/concierge/internal/websocket"
)

var voiceCmd = &cobra.Command{
	Use:   "voice",
	Short: "Open a widget and hold a voice conversation",
	Long: `Open a chat widget, connect its voice socket and stream speech from a file.

The client answers the microphone prompt and audio resume requests the way a
browser would, streams the input in real time and writes every played reply
buffer to --out as 16-bit mono PCM.

Examples:
  widgetclient voice --audio question.wav --out reply.pcm
  widgetclient voice --audio question.raw --rate 16000 --listen 10s`,
	RunE: func(cmd *cobra.Command, args []string) error {
		audioPath, _ := cmd.Flags().GetString("audio")
		rawRate, _ := cmd.Flags().GetInt("rate")
		out, _ := cmd.Flags().GetString("out")
		listen, _ := cmd.Flags().GetDuration("listen")

		widget, err := openWidget()
		if err != nil {
			return err
		}
		defer closeWidget(widget)

		conv, err := dialVoice(widget.Token)
		if err != nil {
			return err
		}
		defer conv.close()

		if out != "" {
			file, err := os.Create(out)
			if err != nil {
				return err
			}
			defer file.Close()
			conv.output = file
		}

		go conv.readLoop()
		return conv.run(audioPath, rawRate, listen)
	},
}

func init() {
	voiceCmd.Flags().StringP("audio", "a", "", "speech to send (WAV or raw 16-bit mono PCM); silence when empty")
	voiceCmd.Flags().Int("rate", 16000, "sample rate of raw PCM input")
	voiceCmd.Flags().StringP("out", "o", "", "write played reply PCM to this file")
	voiceCmd.Flags().Duration("listen", 5*time.Second, "how long to keep listening after the input ends")
}

// serverMessage is the union of the JSON messages the socket sends
type serverMessage struct {
	Type       ws.MessageType           `json:"type"`
	Context    string                   `json:"context"`
	SampleRate int                      `json:"sample_rate"`
	FrameSize  int                      `json:"frame_size"`
	State      string                   `json:"state"`
	ID         uint64                   `json:"id"`
	DurationMs int64                    `json:"duration_ms"`
	Entry      entities.TranscriptEntry `json:"entry"`
	Code       string                   `json:"error_code"`
	Message    string                   `json:"message"`
}

// conversation plays the browser side of one voice socket
type conversation struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	output       *os.File
	replyBuffers int

	// capture settings from mic_request
	sampleRate int
	frameSize  int

	opened chan struct{}
	idle   chan struct{}
	done   chan struct{}
	failed chan string
}

func dialVoice(token string) (*conversation, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, err
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = "/ws/voice"

	headers := http.Header{}
	headers.Add("Authorization", "Bearer "+token)

	logger.Info("Connecting", zap.String("url", u.String()))
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), headers)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	return &conversation{
		conn:   conn,
		opened: make(chan struct{}),
		idle:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		failed: make(chan string, 1),
	}, nil
}

func (c *conversation) run(audioPath string, rawRate int, listen time.Duration) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	select {
	case <-c.opened:
	case reason := <-c.failed:
		return fmt.Errorf("voice did not start: %s", reason)
	case <-c.done:
		return fmt.Errorf("socket closed before voice opened")
	case <-interrupt:
		return nil
	}

	samples := make([]float32, c.sampleRate*2)
	if audioPath != "" {
		var err error
		samples, err = loadSpeech(audioPath, rawRate, c.sampleRate)
		if err != nil {
			return err
		}
	}

	frameDuration := time.Duration(c.frameSize) * time.Second / time.Duration(c.sampleRate)
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	logger.Info("Streaming speech",
		zap.Int("samples", len(samples)),
		zap.Duration("frame", frameDuration))

	for start := 0; start < len(samples); start += c.frameSize {
		end := start + c.frameSize
		frame := make([]float32, c.frameSize)
		if end > len(samples) {
			end = len(samples)
		}
		copy(frame, samples[start:end])

		if err := c.write(websocket.BinaryMessage, encodeFrame(frame)); err != nil {
			return err
		}

		select {
		case <-ticker.C:
		case <-c.done:
			return fmt.Errorf("socket closed while streaming")
		case <-interrupt:
			return nil
		}
	}

	logger.Info("Input finished, listening", zap.Duration("listen", listen))
	select {
	case <-time.After(listen):
	case <-c.done:
		return nil
	case <-interrupt:
	}

	if err := c.writeJSON(map[string]string{"type": string(ws.MessageTypeMicToggle)}); err != nil {
		return err
	}

	select {
	case <-c.idle:
	case <-time.After(5 * time.Second):
		logger.Warn("Voice did not settle to idle")
	}

	logger.Info("Conversation finished", zap.Int("replyBuffers", c.replyBuffers))
	return nil
}

func (c *conversation) readLoop() {
	defer close(c.done)

	var openedOnce sync.Once
	expectAudio := false

	for {
		messageType, payload, err := c.conn.ReadMessage()
		if err != nil {
			logger.Debug("Socket read ended", zap.Error(err))
			return
		}

		if messageType == websocket.BinaryMessage {
			if !expectAudio {
				logger.Warn("Unannounced binary payload", zap.Int("bytes", len(payload)))
				continue
			}
			expectAudio = false
			c.replyBuffers++
			if c.output != nil {
				if _, err := c.output.Write(payload); err != nil {
					logger.Error("Failed to write reply audio", zap.Error(err))
				}
			}
			continue
		}

		var msg serverMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			logger.Warn("Invalid server message", zap.Error(err))
			continue
		}

		switch msg.Type {
		case ws.MessageTypeMicRequest:
			c.sampleRate, c.frameSize = msg.SampleRate, msg.FrameSize
			logger.Info("Microphone requested",
				zap.Int("sampleRate", msg.SampleRate),
				zap.Int("frameSize", msg.FrameSize))
			c.writeJSON(map[string]string{"type": string(ws.MessageTypeMicGranted)})

		case ws.MessageTypeResumeAudio:
			c.writeJSON(map[string]string{"type": string(ws.MessageTypeAudioResumed), "context": msg.Context})

		case ws.MessageTypeState:
			logger.Info("Voice state", zap.String("state", msg.State))
			switch realtime.State(msg.State) {
			case realtime.StateOpen:
				openedOnce.Do(func() { close(c.opened) })
			case realtime.StateIdle:
				select {
				case c.idle <- struct{}{}:
				default:
				}
			}

		case ws.MessageTypePlay:
			expectAudio = true
			logger.Debug("Reply buffer", zap.Uint64("id", msg.ID), zap.Int64("durationMs", msg.DurationMs))

		case ws.MessageTypeStopAudio:
			logger.Info("Playback interrupted", zap.Uint64("id", msg.ID))

		case ws.MessageTypeTranscript:
			fmt.Printf("%s: %s\n", msg.Entry.Role, msg.Entry.Text)

		case ws.MessageTypeError:
			logger.Error("Server error", zap.String("code", msg.Code), zap.String("message", msg.Message))
			select {
			case c.failed <- msg.Code + ": " + msg.Message:
			default:
			}

		default:
			logger.Debug("Ignoring message", zap.String("type", string(msg.Type)))
		}
	}
}

func (c *conversation) writeJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, data)
}

func (c *conversation) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(messageType, data)
}

func (c *conversation) close() {
	c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	select {
	case <-c.done:
	case <-time.After(time.Second):
	}
	c.conn.Close()
}
