package repositories

import (
	"context"
	"errors"
	"fmt"
)

// ErrSenderNotConfigured is returned by senders without account credentials
var ErrSenderNotConfigured = errors.New("missing sender credentials")

// SMSSender delivers a single text message
type SMSSender interface {
	Send(ctx context.Context, to, body string) error
}

// DeliveryError is a non-success answer from an SMS gateway
type DeliveryError struct {
	StatusCode int
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("SMS send failed: %d", e.StatusCode)
}

// Mailer delivers plain-text email
type Mailer interface {
	Send(ctx context.Context, subject, body string) error
}
