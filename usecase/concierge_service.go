package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/natashamaes/concierge/domain/entities"
	"github.com/natashamaes/concierge/domain/repositories"
	"github.com/natashamaes/concierge/internal/observability"
)

// Events block the calendar for setup before and cleanup after.
const eventBuffer = time.Hour

const callReportSubject = "New Inquiry: Natasha Mae's"

// Booking is a book_appointment request
type Booking struct {
	Summary       string
	StartTime     string
	EndTime       string
	IsEvent       bool
	AttendeeEmail string
	Description   string
}

// ConciergeDeps are the back office collaborators of the phone agent. Every one is optional.
type ConciergeDeps struct {
	Customers repositories.CustomerRepository
	Calendar  repositories.Calendar
	CallLog   repositories.CallLog
	SMS       repositories.SMSSender
	Mailer    repositories.Mailer
	Clock     clock.Clock
}

// ConciergeService answers the phone agent webhooks
type ConciergeService struct {
	deps     ConciergeDeps
	settings AssistantSettings
	eastern  *time.Location
	logger   *zap.Logger
}

// NewConciergeService creates the phone agent service
func NewConciergeService(deps ConciergeDeps, settings AssistantSettings, logger *zap.Logger) *ConciergeService {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}

	eastern, err := time.LoadLocation("America/New_York")
	if err != nil {
		logger.Warn("Eastern time zone unavailable, using fixed offset", zap.Error(err))
		eastern = time.FixedZone("EST", -5*60*60)
	}

	return &ConciergeService{
		deps:     deps,
		settings: settings,
		eastern:  eastern,
		logger:   logger,
	}
}

// AssistantDefinition builds the phone agent for a call, with CRM history when the caller is known
func (s *ConciergeService) AssistantDefinition(ctx context.Context, callerPhone string) Assistant {
	prompt := PhoneSystemPrompt

	if callerPhone != "" && s.deps.Customers != nil {
		s.logger.Info("CRM lookup", zap.String("phone", callerPhone))
		customer, err := s.deps.Customers.GetByPhone(ctx, callerPhone)
		switch {
		case err != nil:
			s.logger.Warn("CRM lookup failed (non-fatal)", zap.String("phone", callerPhone), zap.Error(err))
			observability.RecordError("crm_lookup", "concierge")
		case customer != nil:
			prompt += customer.FormatHistory()
			s.logger.Info("CRM history injected", zap.String("phone", callerPhone))
		}
	}

	return newAssistant(s.settings, prompt)
}

// ReportCall emails the call summary, logs it to the call sheet and remembers the caller.
// Failures are logged and never returned.
func (s *ConciergeService) ReportCall(ctx context.Context, report entities.CallReport) {
	if s.deps.Mailer != nil {
		body := fmt.Sprintf("Call Summary:\n%s\n\n---\n\nTranscript:\n%s", report.Summary, report.Transcript)
		if err := s.deps.Mailer.Send(ctx, callReportSubject, body); err != nil {
			s.logger.Error("Failed to email call report", zap.Error(err))
			observability.RecordError("call_report_mail", "concierge")
		}
	}

	if s.deps.CallLog != nil {
		s.logger.Info("Logging call to sheet", zap.String("phone", report.Phone))
		if err := s.deps.CallLog.Append(ctx, report.Row(s.deps.Clock.Now())); err != nil {
			s.logger.Error("Failed to log call to sheet", zap.Error(err))
			observability.RecordError("call_report_sheet", "concierge")
		}
	}

	if s.deps.Customers != nil && entities.NormalizePhone(report.Phone) != "" && report.Phone != "N/A" {
		customer := &entities.Customer{Phone: report.Phone}
		if report.CustomerName != "Unknown" {
			customer.Name = report.CustomerName
		}
		if err := s.deps.Customers.Upsert(ctx, customer); err != nil {
			s.logger.Warn("Failed to record caller in CRM", zap.Error(err))
			observability.RecordError("crm_upsert", "concierge")
		}
	}
}

// SendSMSLink texts the caller the link for linkType and returns the tool result
func (s *ConciergeService) SendSMSLink(ctx context.Context, phone, linkType string) string {
	to := entities.E164(phone)
	body := SMSMessage(strings.ToLower(linkType))

	if s.deps.SMS == nil {
		s.logger.Warn("SMS requested but ClickSend is not configured")
		return "Error: Missing ClickSend credentials"
	}

	err := s.deps.SMS.Send(ctx, to, body)
	if err == nil {
		return "SMS sent successfully to " + to
	}

	s.logger.Error("Failed to send SMS", zap.String("to", to), zap.Error(err))
	observability.RecordError("sms", "concierge")

	var rejected *repositories.DeliveryError
	switch {
	case errors.Is(err, repositories.ErrSenderNotConfigured):
		return "Error: Missing ClickSend credentials"
	case errors.As(err, &rejected):
		return rejected.Error()
	default:
		return "SMS error: " + err.Error()
	}
}

// CheckAvailability answers "available" or lists the conflicting events
func (s *ConciergeService) CheckAvailability(ctx context.Context, startTime, endTime string, isEvent bool) string {
	if s.deps.Calendar == nil {
		return "Error: Calendar service unavailable."
	}

	start, end, err := s.window(startTime, endTime, isEvent)
	if err != nil {
		return "Error: " + err.Error()
	}

	s.logger.Info("Checking availability",
		zap.Time("start", start),
		zap.Time("end", end),
		zap.Bool("isEvent", isEvent))

	events, err := s.deps.Calendar.ListEvents(ctx, start, end)
	if err != nil {
		s.logger.Error("Availability lookup failed", zap.Error(err))
		observability.RecordError("calendar_list", "concierge")
		return "Error: " + err.Error()
	}

	if len(events) == 0 {
		return "available"
	}

	conflicts := make([]string, 0, len(events))
	for _, event := range events {
		summary := event.Summary
		if summary == "" {
			summary = "Busy"
		}
		conflicts = append(conflicts, fmt.Sprintf("%s at %s", summary, formatEventStart(event)))
	}
	return "Conflict: " + strings.Join(conflicts, ", ")
}

// BookAppointment creates the calendar event and returns the tool result
func (s *ConciergeService) BookAppointment(ctx context.Context, booking Booking) string {
	if s.deps.Calendar == nil {
		return "Error: Calendar service unavailable."
	}

	start, end, err := s.window(booking.StartTime, booking.EndTime, booking.IsEvent)
	if err != nil {
		return "Error: " + err.Error()
	}

	s.logger.Info("Booking appointment",
		zap.String("summary", booking.Summary),
		zap.Time("start", start),
		zap.Time("end", end))

	created, err := s.deps.Calendar.Insert(ctx, repositories.CalendarEvent{
		Summary:       booking.Summary,
		Description:   booking.Description,
		Start:         start,
		End:           end,
		AttendeeEmail: booking.AttendeeEmail,
	})
	if err != nil {
		s.logger.Error("Failed to create event", zap.Error(err))
		observability.RecordError("calendar_insert", "concierge")
		return "Error creating event: " + err.Error()
	}
	return "Success: Event created. Link: " + created.HTMLLink
}

func (s *ConciergeService) window(startTime, endTime string, isEvent bool) (time.Time, time.Time, error) {
	start, err := s.parseTime(startTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start_time %q", startTime)
	}
	end, err := s.parseTime(endTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end_time %q", endTime)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end_time must be after start_time")
	}

	if isEvent {
		start = start.Add(-eventBuffer)
		end = end.Add(eventBuffer)
	}
	return start, end, nil
}

// parseTime accepts RFC 3339 and, for times without an offset, assumes Eastern time
func (s *ConciergeService) parseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05", value, s.eastern)
}

func formatEventStart(event repositories.CalendarEvent) string {
	if event.AllDay {
		return event.Start.Format("2006-01-02")
	}
	return event.Start.Format(time.RFC3339)
}
