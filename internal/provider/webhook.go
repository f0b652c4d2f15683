package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
)

const (
	WebhookProviderName   = "webhook"
	defaultWebhookTimeout = 10 * time.Second
)

type webhookRequest struct {
	NotificationID string                  `json:"notificationId"`
	TenantID       string                  `json:"tenantId,omitempty"`
	Name           string                  `json:"name"`
	Severity       string                  `json:"severity"`
	CreationTime   time.Time               `json:"creationTime"`
	Data           domain.NotificationData `json:"data"`
	Users          []domain.UserIdentifier `json:"users"`
}

// WebhookProvider posts notifications as JSON to an HTTP endpoint.
type WebhookProvider struct {
	client   *resty.Client
	endpoint string
}

func NewWebhookProvider(endpoint string) (*WebhookProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultWebhookTimeout)

	return NewWebhookProviderWithClient(endpoint, client)
}

func NewWebhookProviderWithClient(endpoint string, client *resty.Client) (*WebhookProvider, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("webhook endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid webhook endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultWebhookTimeout)
	}
	// redelivery belongs to the retry queue
	client.SetRetryCount(0)

	return &WebhookProvider{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (p *WebhookProvider) Name() string { return WebhookProviderName }

func (p *WebhookProvider) Publish(ctx context.Context, n *domain.Notification, users []domain.UserIdentifier) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("provider is not initialized")
	}
	if n == nil {
		return &ProviderError{Provider: WebhookProviderName, Message: "notification is required"}
	}

	reqBody := webhookRequest{
		NotificationID: n.ID,
		TenantID:       n.TenantID,
		Name:           n.Name,
		Severity:       n.Severity.String(),
		CreationTime:   n.CreationTime,
		Data:           n.Data,
		Users:          users,
	}

	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Notification-Id", n.ID).
		SetBody(reqBody).
		Post(p.endpoint)
	if err != nil {
		return &ProviderError{
			Provider:  WebhookProviderName,
			Message:   "provider request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return &ProviderError{
			Provider:  WebhookProviderName,
			Message:   "provider returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	return &ProviderError{
		Provider:   WebhookProviderName,
		StatusCode: statusCode,
		Message:    providerErrorMessage(statusCode, strings.TrimSpace(response.String())),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusRequestTimeout ||
		(statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func providerErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("provider returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
