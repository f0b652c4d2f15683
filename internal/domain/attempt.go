package domain

import "time"

// DeliveryAttempt records one provider publish attempt for a notification.
type DeliveryAttempt struct {
	ID             string
	TenantID       string
	NotificationID string
	ProviderName   string
	AttemptNumber  int
	RecipientCount int
	StatusCode     *int
	Error          *string
	CreatedAt      time.Time
}

// Succeeded reports whether the attempt completed without error.
func (a DeliveryAttempt) Succeeded() bool {
	return a.Error == nil
}
