package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"djassa/internal/amqp"
	"djassa/internal/auth"
	"djassa/internal/cache"
	"djassa/internal/core"
	"djassa/internal/storage"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *mockPublisher) PublishDebtReminder(ctx context.Context, msg *amqp.DebtReminderMessage) error {
	return m.Called(ctx, msg).Error(0)
}

type testDeps struct {
	repo      *storage.SQLiteRepository
	responses *cache.LRUCache[any]
}

func newTestDeps(t *testing.T) testDeps {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "djassa.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return testDeps{repo: repo, responses: cache.NewLRUCache[any](50, time.Minute)}
}

func (d testDeps) authService() *AuthService {
	return NewAuthService(d.repo, auth.NewIssuer("test-secret", time.Hour), d.responses,
		AuthConfig{MaxAttempts: 3, LockDuration: 15 * time.Minute})
}

func (d testDeps) shop(t *testing.T, phone string, plan core.Plan) core.Shop {
	t.Helper()
	shop, err := d.repo.CreateShop(context.Background(),
		core.Shop{Name: "Chez Fatou", Phone: phone, PINHash: "hash", Plan: plan, Features: core.PlanFeatures(plan)},
		storage.Session{TokenHash: "tok-" + phone, ExpiresAt: time.Now().Add(time.Hour)},
		storage.AuditMeta{})
	require.NoError(t, err)
	return shop
}
