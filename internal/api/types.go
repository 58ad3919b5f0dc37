package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/natashamaes/concierge/domain/entities"
)

// WidgetResponse is returned when a chat widget is opened
type WidgetResponse struct {
	WidgetID   string                     `json:"widget_id"`
	Token      string                     `json:"token"`
	ExpiresAt  time.Time                  `json:"expires_at"`
	Transcript []entities.TranscriptEntry `json:"transcript"`
}

// TranscriptResponse lists the lines of one widget
type TranscriptResponse struct {
	WidgetID   string                     `json:"widget_id"`
	Transcript []entities.TranscriptEntry `json:"transcript"`
}

// ChatRequest is a typed message from the widget input box
type ChatRequest struct {
	Message string `json:"message"`
	Speak   bool   `json:"speak"`
}

// ChatResponse carries the concierge reply; audio is base64 raw PCM when speech was requested
type ChatResponse struct {
	Reply entities.TranscriptEntry `json:"reply"`
	Audio []byte                   `json:"audio,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WebhookRequest is the envelope the phone agent posts to every endpoint
type WebhookRequest struct {
	Message WebhookMessage `json:"message"`
}

// WebhookMessage is the part of the phone agent payload the server reads
type WebhookMessage struct {
	Type         string       `json:"type"`
	Summary      *string      `json:"summary"`
	Transcript   *string      `json:"transcript"`
	EndedReason  string       `json:"endedReason"`
	Call         WebhookCall  `json:"call"`
	Customer     CallCustomer `json:"customer"`
	ToolCalls    []ToolCall   `json:"toolCalls"`
	ToolCallList []ToolCall   `json:"toolCallList"`
}

// WebhookCall is the call object attached to phone agent messages
type WebhookCall struct {
	Customer    CallCustomer    `json:"customer"`
	Duration    json.RawMessage `json:"duration"`
	EndedReason string          `json:"endedReason"`
}

// CallCustomer identifies the caller
type CallCustomer struct {
	Name   string `json:"name"`
	Number string `json:"number"`
}

// ToolCall is one function invocation requested by the phone agent
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments ToolArguments  `json:"arguments"`
	Function  *ToolCallInner `json:"function"`
}

// ToolCallInner is the OpenAI style function block of a tool call
type ToolCallInner struct {
	Name      string        `json:"name"`
	Arguments ToolArguments `json:"arguments"`
}

// ToolArguments accepts arguments either as an object or as a JSON encoded string
type ToolArguments map[string]interface{}

// UnmarshalJSON implements json.Unmarshaler
func (a *ToolArguments) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = nil
		return nil
	}

	if data[0] == '"' {
		var encoded string
		if err := json.Unmarshal(data, &encoded); err != nil {
			return err
		}
		if strings.TrimSpace(encoded) == "" {
			*a = nil
			return nil
		}
		data = []byte(encoded)
	}

	var args map[string]interface{}
	if err := json.Unmarshal(data, &args); err != nil {
		return fmt.Errorf("invalid tool arguments: %w", err)
	}
	*a = args
	return nil
}

// String returns the argument as text, or empty when missing
func (a ToolArguments) String(key string) string {
	switch v := a[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Bool returns the argument as a boolean, accepting "true" strings
func (a ToolArguments) Bool(key string) bool {
	switch v := a[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}

// ToolResult is one answer in a tool call response
type ToolResult struct {
	ToolCallID *string `json:"toolCallId"`
	Result     string  `json:"result"`
}

// ToolResponse is the body returned to the phone agent for tool calls
type ToolResponse struct {
	Results []ToolResult `json:"results"`
}

// StatusResponse acknowledges a webhook
type StatusResponse struct {
	Status string `json:"status"`
}
