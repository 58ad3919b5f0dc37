package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/natashamaes/concierge/domain/entities"
	"github.com/natashamaes/concierge/domain/repositories"
	"github.com/natashamaes/concierge/internal/observability"
	"github.com/natashamaes/concierge/internal/realtime"
	"github.com/natashamaes/concierge/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio frames

	defaultBrowserTimeout = 30 * time.Second
	defaultCaptureRate    = 16000
	defaultFrameSize      = 4096
)

// ErrClientGone is returned to the voice session once the socket is closed
var ErrClientGone = errors.New("browser disconnected")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// HubConfig tunes the browser handshakes
type HubConfig struct {
	// BrowserTimeout bounds the microphone prompt and audio resume handshakes
	BrowserTimeout time.Duration
	// CaptureSampleRate and FrameSize are sent with the microphone prompt
	CaptureSampleRate int
	FrameSize         int
	Clock             clock.Clock
}

// Hub maintains the set of active clients, one per widget.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	widgets *usecase.WidgetRegistry
	config  HubConfig

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(widgets *usecase.WidgetRegistry, config HubConfig, logger *zap.Logger) *Hub {
	if config.BrowserTimeout <= 0 {
		config.BrowserTimeout = defaultBrowserTimeout
	}
	if config.CaptureSampleRate <= 0 {
		config.CaptureSampleRate = defaultCaptureRate
	}
	if config.FrameSize <= 0 {
		config.FrameSize = defaultFrameSize
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}

	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		widgets:    widgets,
		config:     config,
		logger:     logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			previous, ok := h.clients[client.widgetID]
			h.clients[client.widgetID] = client
			h.mu.Unlock()
			if ok {
				h.logger.Info("Replacing widget connection", zap.String("widgetID", client.widgetID))
				previous.closeSend()
			}
			h.logger.Info("Client registered", zap.String("widgetID", client.widgetID))

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.widgetID]; ok && current == client {
				delete(h.clients, client.widgetID)
			}
			h.mu.Unlock()
			client.closeSend()
			h.logger.Info("Client unregistered", zap.String("widgetID", client.widgetID))
		}
	}
}

// ClientCount returns the number of connected widgets
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// WriteData is one outbound websocket frame
type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and a widget. It is
// the widget's microphone, its two audio contexts and its status display.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send       chan WriteData
	sendMu     sync.Mutex
	sendClosed bool

	widget   *usecase.Widget
	widgetID string

	logger    *zap.Logger
	validator *MessageValidator

	// Actions that may block on the browser run here, off the read pump.
	actions chan func(ctx context.Context)
	ctx     context.Context
	cancel  context.CancelFunc

	micReplies    chan bool
	resumeReplies chan string

	mu      sync.Mutex
	capture *socketCapture
}

var _ usecase.VoiceClient = (*Client)(nil)

// HandleWebSocketWithAuth handles websocket requests for an authenticated widget
func HandleWebSocketWithAuth(hub *Hub, c echo.Context, widgetID string, logger *zap.Logger) error {
	widget, err := hub.widgets.Get(widgetID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "widget not found")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		hub:           hub,
		conn:          conn,
		send:          make(chan WriteData, 256),
		widget:        widget,
		widgetID:      widgetID,
		logger:        logger.With(zap.String("widgetID", widgetID)),
		validator:     NewMessageValidator(),
		actions:       make(chan func(ctx context.Context), 8),
		ctx:           ctx,
		cancel:        cancel,
		micReplies:    make(chan bool, 1),
		resumeReplies: make(chan string, 2),
	}

	client.hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()
	go client.actionLoop()

	// Opening the widget starts the conversation right away.
	client.do(func(ctx context.Context) {
		if err := widget.Open(ctx, client); err != nil {
			client.reportVoiceError(err)
		}
	})
	return nil
}

// readPump pumps messages from the websocket connection to the widget.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
		c.shutdown()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			c.processFrame(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the send queue to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) actionLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case action := <-c.actions:
			action(c.ctx)
		}
	}
}

func (c *Client) do(action func(ctx context.Context)) {
	select {
	case c.actions <- action:
	case <-c.ctx.Done():
	default:
		c.logger.Warn("Dropping widget action, queue full")
	}
}

// processMessage processes incoming JSON messages from the browser
func (c *Client) processMessage(message []byte) {
	msg, err := c.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Invalid message", zap.Error(err))
		c.sendJSON(CreateErrorMessage(ErrorCodeInvalidMessage, err.Error()))
		return
	}

	switch msg.Type {
	case MessageTypeMicGranted:
		c.reply(c.micReplies, true)
	case MessageTypeMicDenied:
		c.reply(c.micReplies, false)
	case MessageTypeAudioResumed:
		select {
		case c.resumeReplies <- msg.Context:
		default:
		}
	case MessageTypeMicToggle:
		c.do(func(ctx context.Context) {
			if err := c.widget.ToggleMic(ctx); err != nil {
				c.reportVoiceError(err)
			}
		})
	case MessageTypePing:
		c.sendJSON(CreatePongMessage(msg.Data))
	}
}

func (c *Client) reply(ch chan bool, v bool) {
	select {
	case ch <- v:
	default:
		c.logger.Debug("Ignoring unsolicited microphone answer")
	}
}

// processFrame forwards a captured frame to the open capture stream
func (c *Client) processFrame(data []byte) {
	samples, err := DecodeFrame(data)
	if err != nil {
		c.logger.Warn("Invalid audio frame", zap.Error(err))
		return
	}

	c.mu.Lock()
	capture := c.capture
	c.mu.Unlock()

	if capture == nil {
		c.logger.Debug("Dropping frame, microphone not open")
		return
	}
	capture.push(samples)
}

// reportVoiceError tells the browser about start failures the session did not signal itself
func (c *Client) reportVoiceError(err error) {
	switch {
	case errors.Is(err, repositories.ErrPermissionDenied),
		errors.Is(err, realtime.ErrStartCancelled),
		errors.Is(err, ErrClientGone),
		errors.Is(err, context.Canceled):
		return
	}
	c.logger.Warn("Voice action failed", zap.Error(err))
	observability.RecordError("voice_action", "websocket")
	c.sendJSON(CreateErrorMessage(ErrorCodeVoice, err.Error()))
}

// StateChanged implements realtime.Observer
func (c *Client) StateChanged(state realtime.State) {
	c.sendJSON(&StateMessage{BaseMessage: newBase(MessageTypeState), State: string(state)})
}

// Signal implements realtime.Observer
func (c *Client) Signal(signal realtime.Signal, err error) {
	code := ErrorCodeTransport
	message := "Voice connection lost. Tap the microphone to try again."
	if signal == realtime.SignalPermissionDenied {
		code = ErrorCodePermissionDenied
		message = "Microphone access denied. Please enable microphone permissions."
	}
	c.sendJSON(CreateErrorMessage(code, message))
}

// TranscriptAppended implements usecase.VoiceClient
func (c *Client) TranscriptAppended(entry entities.TranscriptEntry) {
	c.sendJSON(&TranscriptMessage{BaseMessage: newBase(MessageTypeTranscript), Entry: entry})
}

func (c *Client) sendJSON(v interface{}) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return false
	}
	return c.enqueue(WriteData{Type: websocket.TextMessage, Payload: payload})
}

func (c *Client) enqueue(data WriteData) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		c.logger.Warn("Send queue full, dropping message")
		return false
	}
}

func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

func (c *Client) shutdown() {
	c.cancel()
	if err := c.widget.Release(c); err != nil {
		c.logger.Warn("Failed to release widget", zap.Error(err))
	}
}
