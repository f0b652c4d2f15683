package subscription

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
)

// Resolver narrows a candidate audience to the users actually subscribed.
type Resolver interface {
	// Resolve returns every subscriber of name in tenantID when candidates is
	// empty, otherwise the subscribed subset of candidates in candidate order.
	Resolve(ctx context.Context, tenantID string, name string, candidates []domain.UserIdentifier) ([]domain.UserIdentifier, error)
}

type RepoResolver struct {
	repo repository.SubscriptionRepository
}

func NewRepoResolver(repo repository.SubscriptionRepository) *RepoResolver {
	return &RepoResolver{repo: repo}
}

func (r *RepoResolver) Resolve(
	ctx context.Context,
	tenantID string,
	name string,
	candidates []domain.UserIdentifier,
) ([]domain.UserIdentifier, error) {
	subs, err := r.repo.GetUserSubscriptions(ctx, tenantID, name, domain.UserIDs(candidates))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve subscriptions: %w", err)
	}

	subscribed := make(map[string]domain.Subscription, len(subs))
	for _, s := range subs {
		subscribed[s.UserID] = s
	}

	if len(candidates) == 0 {
		users := make([]domain.UserIdentifier, 0, len(subs))
		for _, s := range subs {
			users = append(users, domain.UserIdentifier{UserID: s.UserID, UserName: s.UserName})
		}
		return users, nil
	}

	users := make([]domain.UserIdentifier, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if _, ok := subscribed[c.UserID]; !ok {
			continue
		}
		if _, dup := seen[c.UserID]; dup {
			continue
		}
		seen[c.UserID] = struct{}{}
		users = append(users, c)
	}
	return users, nil
}
