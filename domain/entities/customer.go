package entities

import (
	"fmt"
	"strings"
	"time"
)

// Customer is a CRM record keyed by normalized phone number
type Customer struct {
	Phone             string    `json:"phone" bson:"phone"`
	Name              string    `json:"name,omitempty" bson:"name,omitempty"`
	Email             string    `json:"email,omitempty" bson:"email,omitempty"`
	LastPaymentAmount string    `json:"last_payment_amount,omitempty" bson:"last_payment_amount,omitempty"`
	LastPaymentDate   string    `json:"last_payment_date,omitempty" bson:"last_payment_date,omitempty"`
	EventType         string    `json:"event_type,omitempty" bson:"event_type,omitempty"`
	Venue             string    `json:"venue,omitempty" bson:"venue,omitempty"`
	EventDate         string    `json:"event_date,omitempty" bson:"event_date,omitempty"`
	Notes             string    `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedAt         time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" bson:"updated_at"`
}

var phoneReplacer = strings.NewReplacer("+", "", " ", "", "-", "", "(", "", ")", "")

// NormalizePhone strips formatting and prefixes ten digit US numbers with 1.
func NormalizePhone(phone string) string {
	clean := phoneReplacer.Replace(phone)
	if len(clean) == 10 {
		clean = "1" + clean
	}
	return clean
}

// E164 returns the normalized number with a leading plus, as SMS gateways expect.
func E164(phone string) string {
	clean := NormalizePhone(phone)
	if !strings.HasPrefix(clean, "+") {
		clean = "+" + clean
	}
	return clean
}

// FormatHistory renders the customer for the assistant system prompt
func (c *Customer) FormatHistory() string {
	if c == nil {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\n## CUSTOMER HISTORY ##\n")
	fmt.Fprintf(&sb, "- **Name:** %s\n", orNA(c.Name))
	fmt.Fprintf(&sb, "- **Email:** %s\n", orNA(c.Email))

	if c.LastPaymentAmount != "" {
		fmt.Fprintf(&sb, "- **Last Payment:** $%s on %s\n", c.LastPaymentAmount, orNA(c.LastPaymentDate))
	}

	if c.EventType != "" && c.Venue != "" {
		fmt.Fprintf(&sb, "- **Previous Interest:** %s at %s on %s\n", c.EventType, c.Venue, orNA(c.EventDate))
	}

	if c.Notes != "" {
		fmt.Fprintf(&sb, "- **Notes:** %s\n", c.Notes)
	}

	sb.WriteString("**Jessica:** Greet them as a returning customer and reference their previous details naturally.\n")
	return sb.String()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// CallReport is the end-of-call summary sent by the phone agent
type CallReport struct {
	CustomerName string
	Phone        string
	Summary      string
	Transcript   string
	Duration     string // seconds, as reported
	EndedReason  string
}

// Row returns the call log spreadsheet row, timestamp first
func (r CallReport) Row(now time.Time) []interface{} {
	return []interface{}{
		now.Format("2006-01-02 15:04:05"),
		r.CustomerName,
		r.Phone,
		r.Summary,
		r.Duration + "s",
		r.EndedReason,
	}
}
