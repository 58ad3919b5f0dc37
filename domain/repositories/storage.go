package repositories

import (
	"context"
	"time"

	"github.com/natashamaes/concierge/domain/entities"
)

// CustomerRepository is the CRM directory, keyed by normalized phone number
type CustomerRepository interface {
	// GetByPhone returns nil, nil when the customer is unknown
	GetByPhone(ctx context.Context, phone string) (*entities.Customer, error)
	Upsert(ctx context.Context, customer *entities.Customer) error
}

// CallLog appends end-of-call rows to the shared call sheet
type CallLog interface {
	Append(ctx context.Context, row []interface{}) error
}

// CalendarEvent is a busy slot or a booking
type CalendarEvent struct {
	Summary       string
	Description   string
	Start         time.Time
	End           time.Time
	AllDay        bool
	AttendeeEmail string
	HTMLLink      string
}

// Calendar is the venue booking calendar
type Calendar interface {
	// ListEvents returns events overlapping [start, end) ordered by start time
	ListEvents(ctx context.Context, start, end time.Time) ([]CalendarEvent, error)
	Insert(ctx context.Context, event CalendarEvent) (CalendarEvent, error)
}
