package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const RealtimeProviderName = "realtime"

type realtimeMessage struct {
	NotificationID string                  `json:"notificationId"`
	Name           string                  `json:"name"`
	Severity       string                  `json:"severity"`
	CreationTime   time.Time               `json:"creationTime"`
	Data           domain.NotificationData `json:"data"`
}

// RealtimeProvider pushes notifications to connected clients over Redis
// pub/sub, one channel per (tenant, user).
type RealtimeProvider struct {
	client *goredis.Client
}

func NewRealtimeProvider(client *goredis.Client) (*RealtimeProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &RealtimeProvider{client: client}, nil
}

func (p *RealtimeProvider) Name() string { return RealtimeProviderName }

// UserChannel is the pub/sub channel a client of userID in tenantID listens on.
func UserChannel(tenantID string, userID string) string {
	if tenantID == "" {
		tenantID = "host"
	}
	return fmt.Sprintf("notifications:%s:%s", tenantID, userID)
}

func (p *RealtimeProvider) Publish(ctx context.Context, n *domain.Notification, users []domain.UserIdentifier) error {
	if n == nil {
		return &ProviderError{Provider: RealtimeProviderName, Message: "notification is required"}
	}
	if len(users) == 0 {
		return nil
	}

	payload, err := json.Marshal(realtimeMessage{
		NotificationID: n.ID,
		Name:           n.Name,
		Severity:       n.Severity.String(),
		CreationTime:   n.CreationTime,
		Data:           n.Data,
	})
	if err != nil {
		return &ProviderError{Provider: RealtimeProviderName, Message: "failed to encode message", Cause: err}
	}

	_, err = p.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, u := range users {
			pipe.Publish(ctx, UserChannel(n.TenantID, u.UserID), payload)
		}
		return nil
	})
	if err != nil {
		return &ProviderError{
			Provider:  RealtimeProviderName,
			Message:   "failed to publish to redis",
			Transient: true,
			Cause:     err,
		}
	}
	return nil
}
