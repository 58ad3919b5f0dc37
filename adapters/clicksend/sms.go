package clicksend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/natashamaes/concierge/domain/repositories"
)

const defaultAPIBaseURL = "https://rest.clicksend.com/v3"

// ErrMissingCredentials is returned when no ClickSend account is configured
var ErrMissingCredentials = repositories.ErrSenderNotConfigured

// Config holds the ClickSend account
type Config struct {
	Username   string
	APIKey     string
	APIBaseURL string
	HTTPClient *http.Client
}

// SMS sends text messages through the ClickSend REST API
type SMS struct {
	username   string
	apiKey     string
	apiBaseURL string
	client     *http.Client
	logger     *zap.Logger
}

var _ repositories.SMSSender = (*SMS)(nil)

type message struct {
	Body   string `json:"body"`
	To     string `json:"to"`
	From   string `json:"from"`
	Source string `json:"source"`
}

type sendRequest struct {
	Messages []message `json:"messages"`
}

// NewSMS creates a ClickSend sender. Missing credentials are reported on Send.
func NewSMS(config Config, logger *zap.Logger) *SMS {
	baseURL := config.APIBaseURL
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	return &SMS{
		username:   config.Username,
		apiKey:     config.APIKey,
		apiBaseURL: strings.TrimRight(baseURL, "/"),
		client:     client,
		logger:     logger,
	}
}

// Send implements repositories.SMSSender
func (s *SMS) Send(ctx context.Context, to, body string) error {
	if s.username == "" || s.apiKey == "" {
		return ErrMissingCredentials
	}

	payload, err := json.Marshal(sendRequest{
		Messages: []message{{Body: body, To: to, Source: "sdk"}},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiBaseURL+"/sms/send", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.SetBasicAuth(s.username, s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	s.logger.Info("ClickSend response", zap.Int("statusCode", resp.StatusCode), zap.String("to", to))

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		s.logger.Error("ClickSend returned error",
			zap.Int("statusCode", resp.StatusCode),
			zap.String("response", string(errorBody)))
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

// StatusError is a non-200 answer from ClickSend
type StatusError = repositories.DeliveryError
