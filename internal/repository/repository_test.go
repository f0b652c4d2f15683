package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(
		&NotificationModel{},
		&UserNotificationModel{},
		&SubscriptionModel{},
		&TenantModel{},
		&TemplateModel{},
		&DeliveryAttemptModel{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	return db
}

func newNotification(tenantID string) *domain.Notification {
	return &domain.Notification{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Name:     "order.shipped",
		Severity: domain.SeverityInfo,
		Scope:    domain.ScopeTenant,
		Lifetime: domain.LifetimePersistent,
		Data: domain.NotificationData{
			Title:   "Shipped",
			Message: "Your order is on the way",
			ExtraProperties: map[string]any{
				"orderId": "A-1",
			},
		},
		CreationTime: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestNotificationStore_InsertAndGet(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	store := NewGormNotificationStore(db)
	ctx := context.Background()

	n := newNotification("tenant-a")
	if err := store.InsertNotification(ctx, n); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := store.GetNotification(ctx, "tenant-a", n.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != n.Name || got.Data.Title != "Shipped" {
		t.Fatalf("unexpected notification: %+v", got)
	}
	if got.Data.ExtraProperties["orderId"] != "A-1" {
		t.Fatalf("expected extra property to round trip, got %v", got.Data.ExtraProperties)
	}

	if _, err := store.GetNotification(ctx, "tenant-b", n.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other tenant, got %v", err)
	}
}

func TestNotificationStore_DuplicatePerTenant(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	store := NewGormNotificationStore(db)
	ctx := context.Background()

	n := newNotification("tenant-a")
	if err := store.InsertNotification(ctx, n); err != nil {
		t.Fatalf("insert: %v", err)
	}

	dup := n.Clone()
	if err := store.InsertNotification(ctx, &dup); !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	sameIDOtherTenant := n.Clone()
	sameIDOtherTenant.TenantID = "tenant-b"
	if err := store.InsertNotification(ctx, &sameIDOtherTenant); err != nil {
		t.Fatalf("same id in another tenant should insert: %v", err)
	}

	host := n.Clone()
	host.TenantID = ""
	if err := store.InsertNotification(ctx, &host); err != nil {
		t.Fatalf("host insert: %v", err)
	}
	if _, err := store.GetNotification(ctx, "", n.ID); err != nil {
		t.Fatalf("host get: %v", err)
	}
}

func TestNotificationStore_UserNotificationsAndReadState(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	store := NewGormNotificationStore(db)
	ctx := context.Background()

	n := newNotification("tenant-a")
	if err := store.InsertNotification(ctx, n); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.InsertUserNotifications(ctx, n, []string{"u1", "u2"}); err != nil {
		t.Fatalf("insert user notifications: %v", err)
	}

	views, total, err := store.ListUserNotifications(ctx, UserNotificationListParams{TenantID: "tenant-a", UserID: "u1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(views) != 1 {
		t.Fatalf("expected one entry, got total=%d len=%d", total, len(views))
	}
	if views[0].ReadState != domain.ReadStateUnread {
		t.Fatalf("expected UNREAD, got %s", views[0].ReadState)
	}
	if views[0].Notification.ID != n.ID {
		t.Fatalf("expected joined notification %s, got %s", n.ID, views[0].Notification.ID)
	}

	if err := store.ChangeReadState(ctx, "tenant-a", "u1", n.ID, domain.ReadStateRead); err != nil {
		t.Fatalf("change read state: %v", err)
	}

	read := domain.ReadStateRead
	views, total, err = store.ListUserNotifications(ctx, UserNotificationListParams{
		TenantID:  "tenant-a",
		UserID:    "u1",
		ReadState: &read,
	})
	if err != nil {
		t.Fatalf("list read: %v", err)
	}
	if total != 1 || len(views) != 1 {
		t.Fatalf("expected one READ entry, got total=%d", total)
	}

	err = store.ChangeReadState(ctx, "tenant-a", "nobody", n.ID, domain.ReadStateRead)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNotificationStore_InsertUserNotificationsEmpty(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	store := NewGormNotificationStore(db)

	if err := store.InsertUserNotifications(context.Background(), newNotification("t"), nil); err != nil {
		t.Fatalf("expected nil for no users, got %v", err)
	}

	var count int64
	db.Model(&UserNotificationModel{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no rows, got %d", count)
	}
}

func TestSubscriptionRepo_SubscribeResolveDelete(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	subs := NewGormSubscriptionRepo(db)
	store := NewGormNotificationStore(db)
	ctx := context.Background()

	for _, userID := range []string{"u1", "u2", "u3"} {
		err := subs.Subscribe(ctx, &domain.Subscription{TenantID: "t1", UserID: userID, NotificationName: "order.shipped"})
		if err != nil {
			t.Fatalf("subscribe %s: %v", userID, err)
		}
	}
	// repeated subscribe is a no-op
	if err := subs.Subscribe(ctx, &domain.Subscription{TenantID: "t1", UserID: "u1", NotificationName: "order.shipped"}); err != nil {
		t.Fatalf("repeat subscribe: %v", err)
	}
	if err := subs.Subscribe(ctx, &domain.Subscription{TenantID: "t2", UserID: "u1", NotificationName: "order.shipped"}); err != nil {
		t.Fatalf("subscribe other tenant: %v", err)
	}

	all, err := subs.GetUserSubscriptions(ctx, "t1", "order.shipped", nil)
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 subscribers, got %d", len(all))
	}

	some, err := subs.GetUserSubscriptions(ctx, "t1", "order.shipped", []string{"u2", "u9"})
	if err != nil {
		t.Fatalf("get filtered: %v", err)
	}
	if len(some) != 1 || some[0].UserID != "u2" {
		t.Fatalf("expected only u2, got %+v", some)
	}

	users := []domain.UserIdentifier{{UserID: "u1"}, {UserID: "u2"}}
	if err := store.DeleteSubscriptions(ctx, "t1", users, "order.shipped"); err != nil {
		t.Fatalf("delete subscriptions: %v", err)
	}

	left, err := subs.GetUserSubscriptions(ctx, "t1", "order.shipped", nil)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if len(left) != 1 || left[0].UserID != "u3" {
		t.Fatalf("expected only u3 left, got %+v", left)
	}

	other, err := subs.GetUserSubscriptions(ctx, "t2", "order.shipped", nil)
	if err != nil {
		t.Fatalf("get other tenant: %v", err)
	}
	if len(other) != 1 {
		t.Fatalf("other tenant subscriptions must be untouched, got %d", len(other))
	}
}

func TestSubscriptionRepo_UnsubscribeAndValidation(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	subs := NewGormSubscriptionRepo(db)
	ctx := context.Background()

	if err := subs.Subscribe(ctx, &domain.Subscription{UserID: "u1"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	if err := subs.Subscribe(ctx, &domain.Subscription{UserID: "u1", NotificationName: "n"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := subs.Unsubscribe(ctx, "", "u1", "n"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if err := subs.Unsubscribe(ctx, "", "u1", "n"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second unsubscribe, got %v", err)
	}
}

func TestTenantRepo_ListActive(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewGormTenantRepo(db)

	rows := []TenantModel{
		{ID: "b", Name: "Beta", IsActive: true},
		{ID: "a", Name: "Alpha", IsActive: true},
		{ID: "c", Name: "Gamma", IsActive: true},
	}
	if err := db.Create(&rows).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := db.Model(&TenantModel{}).Where("id = ?", "c").Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	tenants, err := repo.ListActive(context.Background())
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(tenants) != 2 || tenants[0].ID != "a" || tenants[1].ID != "b" {
		t.Fatalf("unexpected tenants: %+v", tenants)
	}
}

func TestTemplateRepo_GetAndCultures(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewGormTemplateRepo(db)
	ctx := context.Background()

	rows := []TemplateModel{
		{Name: "welcome", Culture: "en", Content: "Hello {{.name}}"},
		{Name: "welcome", Culture: "tr", Content: "Merhaba {{.name}}"},
		{Name: "other", Culture: "en", Content: "x"},
	}
	if err := db.Create(&rows).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := repo.Get(ctx, "welcome", "tr")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content != "Merhaba {{.name}}" {
		t.Fatalf("unexpected content %q", got.Content)
	}

	if _, err := repo.Get(ctx, "welcome", "de"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	cultures, err := repo.ListCultures(ctx, "welcome")
	if err != nil {
		t.Fatalf("cultures: %v", err)
	}
	if len(cultures) != 2 || cultures[0] != "en" || cultures[1] != "tr" {
		t.Fatalf("unexpected cultures %v", cultures)
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].Name != "other" {
		t.Fatalf("unexpected list %+v", all)
	}
}

func TestAttemptRepo_CreateAndList(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewGormAttemptRepo(db)
	ctx := context.Background()

	status := 503
	msg := "service unavailable"
	attempts := []*domain.DeliveryAttempt{
		{ID: uuid.NewString(), TenantID: "t1", NotificationID: "n1", ProviderName: "webhook", AttemptNumber: 1, RecipientCount: 2, StatusCode: &status, Error: &msg},
		{ID: uuid.NewString(), TenantID: "t1", NotificationID: "n1", ProviderName: "webhook", AttemptNumber: 2, RecipientCount: 2},
	}
	for _, a := range attempts {
		if err := repo.Create(ctx, a); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := repo.GetByNotificationID(ctx, "t1", "n1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(got))
	}
	if got[0].Succeeded() || !got[1].Succeeded() {
		t.Fatalf("unexpected success flags: %+v", got)
	}
}

func TestGormTransactor_RollbackDiscardsWrites(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	tx := NewGormTransactor(db)
	store := NewGormNotificationStore(db)
	ctx := context.Background()

	n := newNotification("t1")
	boom := errors.New("boom")
	err := tx.WithTx(ctx, func(ctx context.Context) error {
		if err := store.InsertNotification(ctx, n); err != nil {
			return err
		}
		if err := store.InsertUserNotifications(ctx, n, []string{"u1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}

	if _, err := store.GetNotification(ctx, "t1", n.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected rollback to discard notification, got %v", err)
	}

	var count int64
	db.Model(&UserNotificationModel{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no user notifications after rollback, got %d", count)
	}
}

func TestGormTransactor_CommitAndJoin(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	tx := NewGormTransactor(db)
	store := NewGormNotificationStore(db)
	ctx := context.Background()

	n := newNotification("t1")
	err := tx.WithTx(ctx, func(ctx context.Context) error {
		if err := store.InsertNotification(ctx, n); err != nil {
			return err
		}
		return tx.WithTx(ctx, func(ctx context.Context) error {
			return store.InsertUserNotifications(ctx, n, []string{"u1"})
		})
	})
	if err != nil {
		t.Fatalf("with tx: %v", err)
	}

	views, total, err := store.ListUserNotifications(ctx, UserNotificationListParams{TenantID: "t1", UserID: "u1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(views) != 1 {
		t.Fatalf("expected committed entry, got total=%d", total)
	}
}
