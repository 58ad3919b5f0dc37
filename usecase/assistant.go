package usecase

import "strings"

// Assistant is the phone agent definition returned for an assistant-request
type Assistant struct {
	FirstMessage   string         `json:"firstMessage"`
	Model          AssistantModel `json:"model"`
	ServerMessages []string       `json:"serverMessages"`
	Transcriber    Transcriber    `json:"transcriber"`
	Voice          AssistantVoice `json:"voice"`
}

type AssistantModel struct {
	Provider string          `json:"provider"`
	Model    string          `json:"model"`
	Messages []PromptMessage `json:"messages"`
	Tools    []Tool          `json:"tools"`
}

type PromptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
	Server   ToolServer   `json:"server"`
}

type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  ToolParameters `json:"parameters"`
}

type ToolParameters struct {
	Type       string                  `json:"type"`
	Properties map[string]ToolProperty `json:"properties"`
	Required   []string                `json:"required"`
}

type ToolProperty struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

type ToolServer struct {
	URL string `json:"url"`
}

type Transcriber struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Language string `json:"language"`
}

type AssistantVoice struct {
	Provider string `json:"provider"`
	VoiceID  string `json:"voiceId"`
}

// Phone agent tool names
const (
	ToolSendSMSLink       = "send_sms_link"
	ToolCheckAvailability = "check_availability"
	ToolBookAppointment   = "book_appointment"
)

// SMSLinkTypes are the link kinds the phone agent may text
var SMSLinkTypes = []string{"tour", "packages", "registration", "invoice", "vault_map", "liberty_map", "frankford_map"}

// AssistantSettings are the provider choices of the phone agent
type AssistantSettings struct {
	// PublicURL is where the tool webhooks of this server are reachable
	PublicURL string
	VoiceID   string
}

func newAssistant(settings AssistantSettings, systemPrompt string) Assistant {
	base := strings.TrimRight(settings.PublicURL, "/")
	smsServer := ToolServer{URL: base + "/send-sms"}
	calendarServer := ToolServer{URL: base + "/calendar-tool"}

	return Assistant{
		FirstMessage: PhoneFirstMessage,
		Model: AssistantModel{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			Messages: []PromptMessage{{Role: "system", Content: systemPrompt}},
			Tools: []Tool{
				{
					Type: "function",
					Function: ToolFunction{
						Name:        ToolSendSMSLink,
						Description: "Sends a text message with a clickable link. REQUIRED whenever user asks for text/info.",
						Parameters: ToolParameters{
							Type: "object",
							Properties: map[string]ToolProperty{
								"type": {Type: "string", Enum: SMSLinkTypes},
							},
							Required: []string{"type"},
						},
					},
					Server: smsServer,
				},
				{
					Type: "function",
					Function: ToolFunction{
						Name:        ToolCheckAvailability,
						Description: "Checks if a specific date/time slot is available on the calendar.",
						Parameters: ToolParameters{
							Type: "object",
							Properties: map[string]ToolProperty{
								"start_time": {Type: "string", Description: "ISO 8601 start datetime with timezone, e.g. 2026-06-15T18:00:00-04:00"},
								"end_time":   {Type: "string", Description: "ISO 8601 end datetime with timezone, e.g. 2026-06-16T00:00:00-04:00"},
								"is_event":   {Type: "boolean", Description: "true for events/weddings (adds setup+cleanup buffers), false for tours"},
							},
							Required: []string{"start_time", "end_time", "is_event"},
						},
					},
					Server: calendarServer,
				},
				{
					Type: "function",
					Function: ToolFunction{
						Name:        ToolBookAppointment,
						Description: "Books a tour or event on the calendar after availability is confirmed.",
						Parameters: ToolParameters{
							Type: "object",
							Properties: map[string]ToolProperty{
								"summary":        {Type: "string", Description: "Event title: 'EventType - Venue - CustomerName'"},
								"start_time":     {Type: "string", Description: "ISO 8601 start datetime with timezone"},
								"end_time":       {Type: "string", Description: "ISO 8601 end datetime with timezone"},
								"is_event":       {Type: "boolean", Description: "true for events (adds buffers), false for tours"},
								"attendee_email": {Type: "string", Description: "Optional: customer email for calendar invite"},
								"description":    {Type: "string", Description: "Optional: notes about the booking"},
							},
							Required: []string{"summary", "start_time", "end_time", "is_event"},
						},
					},
					Server: calendarServer,
				},
			},
		},
		ServerMessages: []string{"conversation-update", "end-of-call-report", "speech-update", "status-update", "tool-calls"},
		Transcriber:    Transcriber{Provider: "deepgram", Model: "nova-2", Language: "en-US"},
		Voice:          AssistantVoice{Provider: "11labs", VoiceID: settings.VoiceID},
	}
}
