package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Voice session metrics
	activeVoiceSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "concierge_voice_sessions_active",
		Help: "Number of voice sessions not in the idle state",
	})

	voiceSessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concierge_voice_state_transitions_total",
		Help: "Voice session state transitions",
	}, []string{"state"})

	voiceSignals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concierge_voice_signals_total",
		Help: "Signals raised by voice sessions",
	}, []string{"signal"})

	audioFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concierge_audio_frames_total",
		Help: "Audio frames sent upstream or chunks scheduled for playback",
	}, []string{"direction"}) // direction: "in" or "out"

	// Chat metrics
	chatRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concierge_chat_requests_total",
		Help: "Text chat requests by outcome",
	}, []string{"status"})

	activeWidgets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "concierge_widgets_active",
		Help: "Number of open chat widgets",
	})

	// Phone agent webhooks
	webhookRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concierge_webhook_requests_total",
		Help: "Phone agent webhook requests",
	}, []string{"endpoint", "type"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concierge_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})
)

// RecordVoiceState counts a state transition and tracks active sessions.
// active is the change in the number of non-idle sessions (-1, 0 or +1).
func RecordVoiceState(state string, active int) {
	voiceSessionTransitions.WithLabelValues(state).Inc()
	if active != 0 {
		activeVoiceSessions.Add(float64(active))
	}
}

// RecordVoiceSignal counts a permission or transport signal
func RecordVoiceSignal(signal string) {
	voiceSignals.WithLabelValues(signal).Inc()
}

// RecordFrameSent counts one captured frame handed to the transport
func RecordFrameSent() {
	audioFrames.WithLabelValues("in").Inc()
}

// RecordChunkScheduled counts one inbound chunk scheduled for playback
func RecordChunkScheduled() {
	audioFrames.WithLabelValues("out").Inc()
}

// RecordChatRequest records a text chat outcome ("ok", "empty", "fallback")
func RecordChatRequest(status string) {
	chatRequests.WithLabelValues(status).Inc()
}

// WidgetOpened increments the open widget gauge
func WidgetOpened() {
	activeWidgets.Inc()
}

// WidgetClosed decrements the open widget gauge
func WidgetClosed() {
	activeWidgets.Dec()
}

// RecordWebhook counts a phone agent webhook call
func RecordWebhook(endpoint, messageType string) {
	webhookRequests.WithLabelValues(endpoint, messageType).Inc()
}

// RecordError records an error
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}
