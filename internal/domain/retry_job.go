package domain

import (
	"fmt"
	"strings"
)

// RetryJob describes exactly one failed provider publish. Its JSON form is
// replayed by independently deployed retry workers: fields may be added but
// never renamed or removed.
type RetryJob struct {
	NotificationID string           `json:"notificationId"`
	ProviderName   string           `json:"providerName"`
	Users          []UserIdentifier `json:"users"`
	TenantID       string           `json:"tenantId,omitempty"`
	// Attempt counts replays already performed, zero for a fresh job.
	Attempt int `json:"attempt,omitempty"`
}

func (j RetryJob) Validate() error {
	if strings.TrimSpace(j.NotificationID) == "" {
		return fmt.Errorf("%w: notificationId is required", ErrValidation)
	}
	if strings.TrimSpace(j.ProviderName) == "" {
		return fmt.Errorf("%w: providerName is required", ErrValidation)
	}
	if len(j.Users) == 0 {
		return fmt.Errorf("%w: users are required", ErrValidation)
	}
	return nil
}
