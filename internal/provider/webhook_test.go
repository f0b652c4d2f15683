package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
)

func testNotification() *domain.Notification {
	return &domain.Notification{
		ID:       "7f1d3c4e-5b6a-4c8d-9e0f-112233445566",
		TenantID: "tenant-1",
		Name:     "order.shipped",
		Severity: domain.SeverityWarn,
		Data: domain.NotificationData{
			Title:   "Shipped",
			Message: "on the way",
		},
		CreationTime: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
	}
}

func TestWebhookProviderPublishSuccess(t *testing.T) {
	t.Parallel()

	var gotBody webhookRequest
	var gotHeader string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		gotHeader = r.Header.Get("X-Notification-Id")

		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}

		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	p, err := NewWebhookProvider(server.URL)
	if err != nil {
		t.Fatalf("NewWebhookProvider() error = %v", err)
	}
	if p.Name() != WebhookProviderName {
		t.Fatalf("Name() = %q", p.Name())
	}

	n := testNotification()
	users := []domain.UserIdentifier{{UserID: "u1"}, {UserID: "u2", UserName: "bob"}}
	if err := p.Publish(context.Background(), n, users); err != nil {
		t.Fatalf("Publish() unexpected error: %v", err)
	}

	if gotHeader != n.ID {
		t.Fatalf("X-Notification-Id = %q, want %q", gotHeader, n.ID)
	}
	if gotBody.NotificationID != n.ID || gotBody.TenantID != "tenant-1" || gotBody.Severity != "WARN" {
		t.Fatalf("unexpected request body: %+v", gotBody)
	}
	if len(gotBody.Users) != 2 || gotBody.Users[1].UserName != "bob" {
		t.Fatalf("unexpected users: %+v", gotBody.Users)
	}
	if gotBody.Data.Title != "Shipped" {
		t.Fatalf("request.data.title = %q", gotBody.Data.Title)
	}
}

func TestWebhookProviderPublishStatusClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		statusCode    int
		wantTransient bool
	}{
		{name: "too many requests is transient", statusCode: http.StatusTooManyRequests, wantTransient: true},
		{name: "request timeout is transient", statusCode: http.StatusRequestTimeout, wantTransient: true},
		{name: "bad request is permanent", statusCode: http.StatusBadRequest, wantTransient: false},
		{name: "not found is permanent", statusCode: http.StatusNotFound, wantTransient: false},
		{name: "bad gateway is transient", statusCode: http.StatusBadGateway, wantTransient: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
				_, _ = w.Write([]byte("provider failed"))
			}))
			defer server.Close()

			p, err := NewWebhookProvider(server.URL)
			if err != nil {
				t.Fatalf("NewWebhookProvider() error = %v", err)
			}

			err = p.Publish(context.Background(), testNotification(), []domain.UserIdentifier{{UserID: "u1"}})
			if err == nil {
				t.Fatal("expected error")
			}

			if got := IsTransient(err); got != tc.wantTransient {
				t.Fatalf("IsTransient() = %v, want %v", got, tc.wantTransient)
			}

			var providerErr *ProviderError
			if !errors.As(err, &providerErr) {
				t.Fatalf("expected ProviderError, got %T", err)
			}
			if providerErr.StatusCode != tc.statusCode || providerErr.Provider != WebhookProviderName {
				t.Fatalf("unexpected ProviderError: %+v", providerErr)
			}
			if code := StatusCode(err); code == nil || *code != tc.statusCode {
				t.Fatalf("StatusCode() = %v, want %d", code, tc.statusCode)
			}
		})
	}
}

func TestWebhookProviderPublishTimeoutIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := resty.New()
	client.SetTimeout(30 * time.Millisecond)

	p, err := NewWebhookProviderWithClient(server.URL, client)
	if err != nil {
		t.Fatalf("NewWebhookProviderWithClient() error = %v", err)
	}

	err = p.Publish(context.Background(), testNotification(), []domain.UserIdentifier{{UserID: "u1"}})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !IsTransient(err) {
		t.Fatalf("IsTransient() = false, want true (err=%v)", err)
	}
}

func TestNewWebhookProviderValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewWebhookProvider(""); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
	if _, err := NewWebhookProvider("not a url"); err == nil {
		t.Fatal("expected error for invalid endpoint")
	}
	if _, err := NewWebhookProviderWithClient("http://localhost", nil); err == nil {
		t.Fatal("expected error for nil client")
	}
}
