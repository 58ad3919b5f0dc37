package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/natashamaes/concierge/domain/entities"
	"github.com/natashamaes/concierge/internal/observability"
	"github.com/natashamaes/concierge/usecase"
)

const (
	messageTypeAssistantRequest = "assistant-request"
	messageTypeEndOfCallReport  = "end-of-call-report"
	messageTypeToolCalls        = "tool-calls"

	unknownCalendarTool = "Error: Unknown calendar tool."
)

// webhookHandler serves the phone agent callbacks
type webhookHandler struct {
	concierge *usecase.ConciergeService
	logger    *zap.Logger
}

// webhookPayload is a decoded request body; raw keeps the top level object for
// callers that post bare arguments
type webhookPayload struct {
	WebhookRequest
	raw ToolArguments
}

func (h *webhookHandler) decode(c echo.Context, endpoint string) webhookPayload {
	var payload webhookPayload

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		h.logger.Warn("Failed to read webhook body", zap.String("endpoint", endpoint), zap.Error(err))
		return payload
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return payload
	}

	if err := json.Unmarshal(body, &payload.WebhookRequest); err != nil {
		h.logger.Warn("Failed to parse webhook body",
			zap.String("endpoint", endpoint),
			zap.Error(err))
		payload.WebhookRequest = WebhookRequest{}
	}
	if err := json.Unmarshal(body, &payload.raw); err != nil {
		payload.raw = nil
	}
	return payload
}

// inbound dispatches on message.type
func (h *webhookHandler) inbound(c echo.Context) error {
	payload := h.decode(c, "inbound")
	msg := payload.Message

	h.logger.Info("Inbound webhook", zap.String("type", msg.Type))
	observability.RecordWebhook("inbound", msg.Type)

	switch msg.Type {
	case messageTypeEndOfCallReport:
		h.concierge.ReportCall(c.Request().Context(), callReport(msg))
		return c.JSON(http.StatusOK, StatusResponse{Status: "OK"})

	case messageTypeAssistantRequest:
		assistant := h.concierge.AssistantDefinition(c.Request().Context(), callerNumber(msg))
		return c.JSON(http.StatusOK, map[string]interface{}{"assistant": assistant})

	case messageTypeToolCalls:
		return h.respondSMS(c, payload)
	}

	return c.JSON(http.StatusOK, StatusResponse{Status: "acknowledged"})
}

// sendSMS is the direct endpoint for the send_sms_link tool
func (h *webhookHandler) sendSMS(c echo.Context) error {
	payload := h.decode(c, "send-sms")
	observability.RecordWebhook("send-sms", usecase.ToolSendSMSLink)
	return h.respondSMS(c, payload)
}

func (h *webhookHandler) respondSMS(c echo.Context, payload webhookPayload) error {
	msg := payload.Message

	var toolCallID *string
	var args ToolArguments
	switch {
	case len(msg.ToolCallList) > 0:
		call := msg.ToolCallList[0]
		toolCallID = optionalID(call.ID)
		args = call.Arguments
	case len(msg.ToolCalls) > 0:
		call := msg.ToolCalls[0]
		toolCallID = optionalID(call.ID)
		if call.Function != nil {
			args = call.Function.Arguments
		}
	default:
		args = payload.raw
	}

	phone := callerNumber(msg)
	if phone == "" {
		phone = args.String("phone")
	}

	linkType := args.String("type")
	if linkType == "" {
		linkType = "default"
	}

	result := h.concierge.SendSMSLink(c.Request().Context(), phone, linkType)
	return c.JSON(http.StatusOK, ToolResponse{Results: []ToolResult{{ToolCallID: toolCallID, Result: result}}})
}

// calendarTool answers check_availability and book_appointment
func (h *webhookHandler) calendarTool(c echo.Context) error {
	payload := h.decode(c, "calendar-tool")
	msg := payload.Message

	calls := msg.ToolCalls
	if len(calls) == 0 {
		calls = msg.ToolCallList
	}

	var toolCallID *string
	var name string
	var args ToolArguments
	if len(calls) > 0 {
		call := calls[0]
		toolCallID = optionalID(call.ID)
		if call.Function != nil {
			name = call.Function.Name
			args = call.Function.Arguments
		}
		if name == "" {
			name = call.Name
			args = call.Arguments
		}
	}

	h.logger.Info("Calendar tool request", zap.String("function", name))
	observability.RecordWebhook("calendar-tool", name)

	ctx := c.Request().Context()
	result := unknownCalendarTool
	switch name {
	case usecase.ToolCheckAvailability:
		result = h.concierge.CheckAvailability(ctx,
			args.String("start_time"),
			args.String("end_time"),
			args.Bool("is_event"))

	case usecase.ToolBookAppointment:
		result = h.concierge.BookAppointment(ctx, usecase.Booking{
			Summary:       args.String("summary"),
			StartTime:     firstNonEmpty(args.String("start_time"), args.String("start_time_iso")),
			EndTime:       firstNonEmpty(args.String("end_time"), args.String("end_time_iso")),
			IsEvent:       args.Bool("is_event"),
			AttendeeEmail: args.String("attendee_email"),
			Description:   args.String("description"),
		})
	}

	return c.JSON(http.StatusOK, ToolResponse{Results: []ToolResult{{ToolCallID: toolCallID, Result: result}}})
}

// callerNumber prefers the call's customer over the message's customer
func callerNumber(msg WebhookMessage) string {
	return firstNonEmpty(msg.Call.Customer.Number, msg.Customer.Number)
}

func callReport(msg WebhookMessage) entities.CallReport {
	report := entities.CallReport{
		CustomerName: firstNonEmpty(msg.Call.Customer.Name, "Unknown"),
		Phone:        firstNonEmpty(msg.Call.Customer.Number, "N/A"),
		Summary:      "No summary.",
		Transcript:   "No transcript.",
		Duration:     duration(msg.Call.Duration),
		EndedReason:  firstNonEmpty(msg.Call.EndedReason, msg.EndedReason, "N/A"),
	}
	if msg.Summary != nil {
		report.Summary = *msg.Summary
	}
	if msg.Transcript != nil {
		report.Transcript = *msg.Transcript
	}
	return report
}

// duration renders the reported call length, which arrives as a number or a string
func duration(raw json.RawMessage) string {
	value := strings.TrimSpace(string(raw))
	if value == "" || value == "null" {
		return "0"
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return value
}

func optionalID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
