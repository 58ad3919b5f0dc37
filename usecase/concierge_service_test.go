package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap/zaptest"

	"github.com/natashamaes/concierge/domain/entities"
	"github.com/natashamaes/concierge/domain/repositories"
)

var testSettings = AssistantSettings{
	PublicURL: "https://natashavapi.onrender.com/",
	VoiceID:   "EXAVITQu4vr4xnSDxMaL",
}

func TestAssistantDefinition(t *testing.T) {
	service := NewConciergeService(ConciergeDeps{}, testSettings, zaptest.NewLogger(t))

	assistant := service.AssistantDefinition(context.Background(), "")

	if assistant.FirstMessage != PhoneFirstMessage {
		t.Errorf("Unexpected first message %q", assistant.FirstMessage)
	}
	if assistant.Model.Provider != "openai" || assistant.Model.Model != "gpt-4o-mini" {
		t.Errorf("Unexpected model %+v", assistant.Model)
	}
	if len(assistant.Model.Messages) != 1 || assistant.Model.Messages[0].Content != PhoneSystemPrompt {
		t.Error("Expected the phone system prompt as the only message")
	}

	wantTools := map[string]string{
		ToolSendSMSLink:       "https://natashavapi.onrender.com/send-sms",
		ToolCheckAvailability: "https://natashavapi.onrender.com/calendar-tool",
		ToolBookAppointment:   "https://natashavapi.onrender.com/calendar-tool",
	}
	if len(assistant.Model.Tools) != len(wantTools) {
		t.Fatalf("Expected %d tools, got %d", len(wantTools), len(assistant.Model.Tools))
	}
	for _, tool := range assistant.Model.Tools {
		if want := wantTools[tool.Function.Name]; tool.Server.URL != want {
			t.Errorf("Tool %s: expected server %s, got %s", tool.Function.Name, want, tool.Server.URL)
		}
	}

	if assistant.Voice.Provider != "11labs" || assistant.Voice.VoiceID != "EXAVITQu4vr4xnSDxMaL" {
		t.Errorf("Unexpected voice %+v", assistant.Voice)
	}
	if assistant.Transcriber.Model != "nova-2" {
		t.Errorf("Unexpected transcriber %+v", assistant.Transcriber)
	}

	body, err := json.Marshal(assistant)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	for _, key := range []string{`"firstMessage"`, `"serverMessages"`, `"voiceId"`, `"enum":["tour"`} {
		if !strings.Contains(string(body), key) {
			t.Errorf("Expected JSON to contain %s", key)
		}
	}
}

func TestAssistantDefinitionInjectsHistory(t *testing.T) {
	customers := &fakeCustomers{customer: &entities.Customer{Name: "Sarah Johnson", Phone: "12676550230"}}
	service := NewConciergeService(ConciergeDeps{Customers: customers}, testSettings, zaptest.NewLogger(t))

	assistant := service.AssistantDefinition(context.Background(), "+1 (267) 655-0230")

	prompt := assistant.Model.Messages[0].Content
	if !strings.HasPrefix(prompt, PhoneSystemPrompt) {
		t.Error("History must be appended to the system prompt")
	}
	if !strings.Contains(prompt, "Sarah Johnson") {
		t.Error("Expected customer name in the prompt")
	}
	if len(customers.lookups) != 1 {
		t.Errorf("Expected one CRM lookup, got %d", len(customers.lookups))
	}
}

func TestAssistantDefinitionLookupFailureIsNonFatal(t *testing.T) {
	customers := &fakeCustomers{err: errors.New("connection refused")}
	service := NewConciergeService(ConciergeDeps{Customers: customers}, testSettings, zaptest.NewLogger(t))

	assistant := service.AssistantDefinition(context.Background(), "2676550230")
	if assistant.Model.Messages[0].Content != PhoneSystemPrompt {
		t.Error("Expected the plain prompt when lookup fails")
	}
}

func TestReportCall(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 6, 15, 18, 0, 0, 0, time.UTC))

	mailer := &fakeMailer{}
	callLog := &fakeCallLog{}
	customers := &fakeCustomers{}
	service := NewConciergeService(ConciergeDeps{
		Mailer:    mailer,
		CallLog:   callLog,
		Customers: customers,
		Clock:     mock,
	}, testSettings, zaptest.NewLogger(t))

	service.ReportCall(context.Background(), entities.CallReport{
		CustomerName: "Sarah Johnson",
		Phone:        "+12676550230",
		Summary:      "Booked a tour",
		Transcript:   "AI: Hello\nUser: Hi",
		Duration:     "93",
		EndedReason:  "customer-ended-call",
	})

	if len(mailer.sent) != 1 {
		t.Fatalf("Expected one email, got %d", len(mailer.sent))
	}
	if mailer.sent[0].subject != "New Inquiry: Natasha Mae's" {
		t.Errorf("Unexpected subject %q", mailer.sent[0].subject)
	}
	if mailer.sent[0].body != "Call Summary:\nBooked a tour\n\n---\n\nTranscript:\nAI: Hello\nUser: Hi" {
		t.Errorf("Unexpected body %q", mailer.sent[0].body)
	}

	if len(callLog.rows) != 1 {
		t.Fatalf("Expected one sheet row, got %d", len(callLog.rows))
	}
	row := callLog.rows[0]
	if row[0] != "2026-06-15 18:00:00" || row[1] != "Sarah Johnson" || row[4] != "93s" || row[5] != "customer-ended-call" {
		t.Errorf("Unexpected row %v", row)
	}

	if len(customers.upserts) != 1 || customers.upserts[0].Name != "Sarah Johnson" {
		t.Errorf("Expected caller to be recorded, got %v", customers.upserts)
	}
}

func TestReportCallFailuresAreSwallowed(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("auth failed")}
	callLog := &fakeCallLog{err: errors.New("sheet not found")}
	customers := &fakeCustomers{}
	service := NewConciergeService(ConciergeDeps{
		Mailer:    mailer,
		CallLog:   callLog,
		Customers: customers,
	}, testSettings, zaptest.NewLogger(t))

	service.ReportCall(context.Background(), entities.CallReport{
		CustomerName: "Unknown",
		Phone:        "N/A",
		Summary:      "No summary.",
		Transcript:   "No transcript.",
		Duration:     "0",
		EndedReason:  "N/A",
	})

	if len(callLog.rows) != 1 {
		t.Error("Sheet should still be attempted after a mail failure")
	}
	if len(customers.upserts) != 0 {
		t.Error("Unknown callers must not be written to the CRM")
	}
}

func TestSendSMSLink(t *testing.T) {
	tests := []struct {
		name     string
		sms      *fakeSMS
		phone    string
		linkType string
		wantTo   string
		wantBody string
		want     string
	}{
		{
			name:     "tour",
			sms:      &fakeSMS{},
			phone:    "(267) 655-0230",
			linkType: "tour",
			wantTo:   "+12676550230",
			wantBody: "Natasha Mae's: Schedule your VIP tour here: https://www.natashamaes.com/contact-us",
			want:     "SMS sent successfully to +12676550230",
		},
		{
			name:     "type is case insensitive",
			sms:      &fakeSMS{},
			phone:    "+12676550230",
			linkType: "VAULT_MAP",
			wantTo:   "+12676550230",
			wantBody: "The Vault: 120 High St, Burlington NJ - GPS: https://maps.app.goo.gl/vaultburlington",
			want:     "SMS sent successfully to +12676550230",
		},
		{
			name:     "unknown type falls back",
			sms:      &fakeSMS{},
			phone:    "2676550230",
			linkType: "brochure",
			wantTo:   "+12676550230",
			wantBody: "Natasha Mae's: Visit us at https://www.natashamaes.com",
			want:     "SMS sent successfully to +12676550230",
		},
		{
			name:     "gateway rejects",
			sms:      &fakeSMS{err: &repositories.DeliveryError{StatusCode: 401}},
			phone:    "2676550230",
			linkType: "packages",
			wantTo:   "+12676550230",
			wantBody: "Natasha Mae's: View our full packages: https://www.natashamaes.com/packages",
			want:     "SMS send failed: 401",
		},
		{
			name:     "missing credentials",
			sms:      &fakeSMS{err: repositories.ErrSenderNotConfigured},
			phone:    "2676550230",
			linkType: "invoice",
			wantTo:   "+12676550230",
			wantBody: "Natasha Mae's: View your invoice: https://www.natashamaes.com/payment",
			want:     "Error: Missing ClickSend credentials",
		},
		{
			name:     "transport error",
			sms:      &fakeSMS{err: errors.New("timeout")},
			phone:    "2676550230",
			linkType: "registration",
			wantTo:   "+12676550230",
			wantBody: "Natasha Mae's: Register here: https://www.natashamaes.com/register",
			want:     "SMS error: timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := NewConciergeService(ConciergeDeps{SMS: tt.sms}, testSettings, zaptest.NewLogger(t))

			got := service.SendSMSLink(context.Background(), tt.phone, tt.linkType)
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
			if len(tt.sms.sent) != 1 {
				t.Fatalf("Expected one SMS, got %d", len(tt.sms.sent))
			}
			if tt.sms.sent[0].to != tt.wantTo {
				t.Errorf("Expected recipient %s, got %s", tt.wantTo, tt.sms.sent[0].to)
			}
			if tt.sms.sent[0].body != tt.wantBody {
				t.Errorf("Expected body %q, got %q", tt.wantBody, tt.sms.sent[0].body)
			}
		})
	}
}

func TestSendSMSLinkWithoutSender(t *testing.T) {
	service := NewConciergeService(ConciergeDeps{}, testSettings, zaptest.NewLogger(t))
	if got := service.SendSMSLink(context.Background(), "2676550230", "tour"); got != "Error: Missing ClickSend credentials" {
		t.Errorf("Unexpected result %q", got)
	}
}

func TestCheckAvailability(t *testing.T) {
	calendar := &fakeCalendar{}
	service := NewConciergeService(ConciergeDeps{Calendar: calendar}, testSettings, zaptest.NewLogger(t))

	got := service.CheckAvailability(context.Background(), "2026-06-15T18:00:00-04:00", "2026-06-16T00:00:00-04:00", true)
	if got != "available" {
		t.Errorf("Expected available, got %q", got)
	}

	window := calendar.queried[0]
	wantStart := time.Date(2026, 6, 15, 21, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2026, 6, 16, 5, 0, 0, 0, time.UTC)
	if !window[0].Equal(wantStart) || !window[1].Equal(wantEnd) {
		t.Errorf("Expected buffered window %s - %s, got %s - %s", wantStart, wantEnd, window[0], window[1])
	}

	service.CheckAvailability(context.Background(), "2026-03-10T14:00:00-04:00", "2026-03-10T15:00:00-04:00", false)
	window = calendar.queried[1]
	if !window[0].Equal(time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)) {
		t.Errorf("Tours must not be buffered, got start %s", window[0])
	}
}

func TestCheckAvailabilityConflicts(t *testing.T) {
	eastern := time.FixedZone("EDT", -4*60*60)
	calendar := &fakeCalendar{events: []repositories.CalendarEvent{
		{Summary: "Wedding - The Vault - Johnson", Start: time.Date(2026, 6, 15, 17, 0, 0, 0, eastern)},
		{Start: time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC), AllDay: true},
	}}
	service := NewConciergeService(ConciergeDeps{Calendar: calendar}, testSettings, zaptest.NewLogger(t))

	got := service.CheckAvailability(context.Background(), "2026-06-15T18:00:00-04:00", "2026-06-16T00:00:00-04:00", false)
	want := "Conflict: Wedding - The Vault - Johnson at 2026-06-15T17:00:00-04:00, Busy at 2026-06-15"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestCheckAvailabilityErrors(t *testing.T) {
	service := NewConciergeService(ConciergeDeps{}, testSettings, zaptest.NewLogger(t))
	if got := service.CheckAvailability(context.Background(), "a", "b", false); got != "Error: Calendar service unavailable." {
		t.Errorf("Unexpected result %q", got)
	}

	calendar := &fakeCalendar{err: errors.New("forbidden")}
	service = NewConciergeService(ConciergeDeps{Calendar: calendar}, testSettings, zaptest.NewLogger(t))

	if got := service.CheckAvailability(context.Background(), "tomorrow", "2026-06-16T00:00:00-04:00", false); !strings.HasPrefix(got, "Error: invalid start_time") {
		t.Errorf("Expected parse error, got %q", got)
	}
	if got := service.CheckAvailability(context.Background(), "2026-06-15T18:00:00Z", "2026-06-15T20:00:00Z", false); got != "Error: forbidden" {
		t.Errorf("Expected calendar error, got %q", got)
	}
}

func TestBookAppointment(t *testing.T) {
	calendar := &fakeCalendar{link: "https://calendar.google.com/event?eid=abc"}
	service := NewConciergeService(ConciergeDeps{Calendar: calendar}, testSettings, zaptest.NewLogger(t))

	got := service.BookAppointment(context.Background(), Booking{
		Summary:       "Wedding - The Vault - Sarah Johnson",
		StartTime:     "2026-06-15T18:00:00-04:00",
		EndTime:       "2026-06-16T00:00:00-04:00",
		IsEvent:       true,
		AttendeeEmail: "sarah@example.com",
		Description:   "Booked by phone",
	})
	if got != "Success: Event created. Link: https://calendar.google.com/event?eid=abc" {
		t.Errorf("Unexpected result %q", got)
	}

	event := calendar.inserted[0]
	if !event.Start.Equal(time.Date(2026, 6, 15, 21, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected setup buffer, got start %s", event.Start)
	}
	if !event.End.Equal(time.Date(2026, 6, 16, 5, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected cleanup buffer, got end %s", event.End)
	}
	if event.AttendeeEmail != "sarah@example.com" || event.Description != "Booked by phone" {
		t.Errorf("Unexpected event %+v", event)
	}
}

func TestBookAppointmentFailure(t *testing.T) {
	calendar := &fakeCalendar{err: errors.New("quota exceeded")}
	service := NewConciergeService(ConciergeDeps{Calendar: calendar}, testSettings, zaptest.NewLogger(t))

	got := service.BookAppointment(context.Background(), Booking{
		Summary:   "VIP Tour",
		StartTime: "2026-03-10T14:00:00",
		EndTime:   "2026-03-10T15:00:00",
	})
	if got != "Error creating event: quota exceeded" {
		t.Errorf("Unexpected result %q", got)
	}
}
