package subscription

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
)

type fakeSubscriptionRepo struct {
	getUserSubscriptionsFn func(ctx context.Context, tenantID, name string, userIDs []string) ([]domain.Subscription, error)
}

func (f *fakeSubscriptionRepo) GetUserSubscriptions(ctx context.Context, tenantID, name string, userIDs []string) ([]domain.Subscription, error) {
	return f.getUserSubscriptionsFn(ctx, tenantID, name, userIDs)
}

func (f *fakeSubscriptionRepo) Subscribe(context.Context, *domain.Subscription) error { return nil }

func (f *fakeSubscriptionRepo) Unsubscribe(context.Context, string, string, string) error { return nil }

func subscribers(ids ...string) *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{
		getUserSubscriptionsFn: func(_ context.Context, _, _ string, userIDs []string) ([]domain.Subscription, error) {
			var out []domain.Subscription
			for _, id := range ids {
				if len(userIDs) == 0 || slices.Contains(userIDs, id) {
					out = append(out, domain.Subscription{UserID: id, UserName: "name-" + id})
				}
			}
			return out, nil
		},
	}
}

func TestRepoResolver_Resolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		subscribed []string
		candidates []domain.UserIdentifier
		want       []string
	}{
		{name: "no candidates returns all subscribers", subscribed: []string{"a", "b"}, want: []string{"a", "b"}},
		{name: "candidates intersect subscribers", subscribed: []string{"a", "b"}, candidates: []domain.UserIdentifier{{UserID: "b"}, {UserID: "c"}}, want: []string{"b"}},
		{name: "duplicate candidates collapse", subscribed: []string{"a"}, candidates: []domain.UserIdentifier{{UserID: "a"}, {UserID: "a"}}, want: []string{"a"}},
		{name: "nobody subscribed", subscribed: nil, candidates: []domain.UserIdentifier{{UserID: "a"}}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := NewRepoResolver(subscribers(tt.subscribed...)).Resolve(context.Background(), "t1", "n", tt.candidates)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if ids := domain.UserIDs(got); !slices.Equal(ids, tt.want) {
				t.Fatalf("Resolve() = %v, want %v", ids, tt.want)
			}
		})
	}
}

func TestRepoResolver_ResolvePassesScope(t *testing.T) {
	t.Parallel()

	var gotTenant, gotName string
	repo := &fakeSubscriptionRepo{getUserSubscriptionsFn: func(_ context.Context, tenantID, name string, _ []string) ([]domain.Subscription, error) {
		gotTenant, gotName = tenantID, name
		return []domain.Subscription{{UserID: "a", UserName: "Alice"}}, nil
	}}

	users, err := NewRepoResolver(repo).Resolve(context.Background(), "t9", "order.shipped", nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if gotTenant != "t9" || gotName != "order.shipped" {
		t.Fatalf("unexpected scope %q/%q", gotTenant, gotName)
	}
	if users[0].UserName != "Alice" {
		t.Fatalf("expected user name from subscription, got %+v", users[0])
	}
}

func TestRepoResolver_ResolveError(t *testing.T) {
	t.Parallel()

	boom := errors.New("db down")
	repo := &fakeSubscriptionRepo{getUserSubscriptionsFn: func(context.Context, string, string, []string) ([]domain.Subscription, error) {
		return nil, boom
	}}
	if _, err := NewRepoResolver(repo).Resolve(context.Background(), "", "n", nil); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
