package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const defaultTimeout = 5 * time.Second

// Options configures the notification service client.
type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RetryCount int
}

// Client implements booking.Notifier by posting messages to a delivery service.
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

type message struct {
	Kind      string            `json:"kind"`
	Recipient string            `json:"recipient"`
	Payload   map[string]string `json:"payload,omitempty"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func New(options Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(options.BaseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(options.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetHeader("Content-Type", "application/json")
	if options.APIKey != "" {
		httpClient.SetAuthToken(options.APIKey)
	}
	return &Client{httpClient: httpClient, logger: logger}
}

func (client *Client) Send(ctx context.Context, kind string, recipient string, payload map[string]string) error {
	var failure errorResponse
	resp, err := client.httpClient.R().
		SetContext(ctx).
		SetBody(message{Kind: kind, Recipient: recipient, Payload: payload}).
		SetError(&failure).
		Post("/notifications")
	if err != nil {
		return fmt.Errorf("send %s notification: %w", kind, err)
	}
	if resp.IsError() {
		return fmt.Errorf("send %s notification: service returned %d: %s", kind, resp.StatusCode(), failure.Message)
	}
	client.logger.Debug("notification accepted", zap.String("kind", kind), zap.Int("status_code", resp.StatusCode()))
	return nil
}

// LogNotifier implements booking.Notifier by logging messages. Recipients are
// left out of the log line.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return LogNotifier{logger: logger}
}

func (notifier LogNotifier) Send(_ context.Context, kind string, _ string, payload map[string]string) error {
	fields := []zap.Field{zap.String("kind", kind)}
	for key, value := range payload {
		fields = append(fields, zap.String(key, value))
	}
	notifier.logger.Info("notification", fields...)
	return nil
}
