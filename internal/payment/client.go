package payment

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/tablebook/pkg/booking"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultCurrency = "USD"

	idempotencyHeader = "Idempotency-Key"

	statusCaptured   = "captured"
	statusAuthorized = "authorized"
	statusDeclined   = "declined"
)

// Options configures the payment provider client.
type Options struct {
	BaseURL    string
	APIKey     string
	Currency   string
	Timeout    time.Duration
	RetryCount int
}

// Client implements booking.PaymentGateway against a JSON deposit API.
type Client struct {
	httpClient *resty.Client
	currency   string
	logger     *zap.Logger
}

type captureRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Reference   string `json:"reference"`
}

type refundRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

type providerResponse struct {
	Status      string `json:"status"`
	ExternalRef string `json:"external_ref"`
	Message     string `json:"message"`
}

// New builds a client. Requests carry the reservation id as idempotency key
// so resty retries never double-charge.
func New(options Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	currency := strings.ToUpper(strings.TrimSpace(options.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(options.BaseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(options.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if options.APIKey != "" {
		httpClient.SetAuthToken(options.APIKey)
	}
	return &Client{httpClient: httpClient, currency: currency, logger: logger}
}

// AuthorizeOrCapture captures a deposit. A decline is a result, not an error.
func (client *Client) AuthorizeOrCapture(ctx context.Context, amount booking.AmountCents, reference string) (booking.PaymentResult, error) {
	var response providerResponse
	resp, err := client.httpClient.R().
		SetContext(ctx).
		SetHeader(idempotencyHeader, "capture-"+reference).
		SetBody(captureRequest{AmountCents: amount.Int64(), Currency: client.currency, Reference: reference}).
		SetResult(&response).
		SetError(&response).
		Post("/deposits")
	if err != nil {
		client.logger.Error("deposit capture call failed", zap.String("reference", reference), zap.Error(err))
		return booking.PaymentResult{}, fmt.Errorf("capture deposit %s: %w", reference, err)
	}
	if resp.StatusCode() == http.StatusPaymentRequired || response.Status == statusDeclined {
		client.logger.Info("deposit declined", zap.String("reference", reference), zap.String("message", response.Message))
		return booking.PaymentResult{Success: false}, nil
	}
	if resp.IsError() {
		return booking.PaymentResult{}, fmt.Errorf("capture deposit %s: provider returned %d: %s", reference, resp.StatusCode(), response.Message)
	}
	switch response.Status {
	case statusCaptured, statusAuthorized:
		return booking.PaymentResult{Success: true, ExternalRef: response.ExternalRef}, nil
	default:
		return booking.PaymentResult{}, fmt.Errorf("capture deposit %s: unexpected status %q", reference, response.Status)
	}
}

// Refund returns part or all of a captured deposit.
func (client *Client) Refund(ctx context.Context, externalRef string, amount booking.AmountCents) error {
	if strings.TrimSpace(externalRef) == "" {
		return fmt.Errorf("refund: external reference is required")
	}
	var response providerResponse
	resp, err := client.httpClient.R().
		SetContext(ctx).
		SetHeader(idempotencyHeader, fmt.Sprintf("refund-%s-%d", externalRef, amount.Int64())).
		SetPathParam("ref", externalRef).
		SetBody(refundRequest{AmountCents: amount.Int64(), Currency: client.currency}).
		SetError(&response).
		Post("/deposits/{ref}/refunds")
	if err != nil {
		client.logger.Error("deposit refund call failed", zap.String("external_ref", externalRef), zap.Error(err))
		return fmt.Errorf("refund deposit %s: %w", externalRef, err)
	}
	if resp.IsError() {
		return fmt.Errorf("refund deposit %s: provider returned %d: %s", externalRef, resp.StatusCode(), response.Message)
	}
	return nil
}
