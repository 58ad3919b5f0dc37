package google

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/natashamaes/concierge/domain/repositories"
)

// Calendar implements repositories.Calendar on Google Calendar
type Calendar struct {
	service    *calendar.Service
	calendarID string
	logger     *zap.Logger
}

var _ repositories.Calendar = (*Calendar)(nil)

// NewCalendar creates a calendar adapter. opts are passed to the API client.
func NewCalendar(ctx context.Context, calendarID string, logger *zap.Logger, opts ...option.ClientOption) (*Calendar, error) {
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	if calendarID == "" {
		calendarID = "primary"
	}

	return &Calendar{service: service, calendarID: calendarID, logger: logger}, nil
}

// NewCalendarFromCredentials authenticates with creds
func NewCalendarFromCredentials(ctx context.Context, creds Credentials, calendarID string, logger *zap.Logger) (*Calendar, error) {
	ts, err := creds.TokenSource(ctx, CalendarEventsScope)
	if err != nil {
		return nil, err
	}
	return NewCalendar(ctx, calendarID, logger, option.WithTokenSource(ts))
}

// ListEvents implements repositories.Calendar
func (c *Calendar) ListEvents(ctx context.Context, start, end time.Time) ([]repositories.CalendarEvent, error) {
	c.logger.Info("Checking availability",
		zap.Time("start", start),
		zap.Time("end", end))

	result, err := c.service.Events.List(c.calendarID).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	events := make([]repositories.CalendarEvent, 0, len(result.Items))
	for _, item := range result.Items {
		event := repositories.CalendarEvent{
			Summary:     item.Summary,
			Description: item.Description,
			HTMLLink:    item.HtmlLink,
		}
		if item.Start != nil {
			event.Start, event.AllDay = parseEventTime(item.Start)
		}
		if item.End != nil {
			event.End, _ = parseEventTime(item.End)
		}
		events = append(events, event)
	}
	return events, nil
}

// Insert implements repositories.Calendar. An attendee gets an invitation.
func (c *Calendar) Insert(ctx context.Context, event repositories.CalendarEvent) (repositories.CalendarEvent, error) {
	body := &calendar.Event{
		Summary:     event.Summary,
		Description: event.Description,
		Start:       &calendar.EventDateTime{DateTime: event.Start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: event.End.Format(time.RFC3339)},
	}
	if event.AttendeeEmail != "" {
		body.Attendees = []*calendar.EventAttendee{{Email: event.AttendeeEmail}}
	}

	c.logger.Info("Booking event",
		zap.String("summary", event.Summary),
		zap.Time("start", event.Start))

	created, err := c.service.Events.Insert(c.calendarID, body).Context(ctx).Do()
	if err != nil {
		return repositories.CalendarEvent{}, fmt.Errorf("failed to create event: %w", err)
	}

	event.HTMLLink = created.HtmlLink
	return event, nil
}

func parseEventTime(t *calendar.EventDateTime) (time.Time, bool) {
	if t.DateTime != "" {
		parsed, err := time.Parse(time.RFC3339, t.DateTime)
		if err == nil {
			return parsed, false
		}
	}
	if t.Date != "" {
		parsed, err := time.Parse("2006-01-02", t.Date)
		if err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
