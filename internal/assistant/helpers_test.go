package assistant

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"djassa/internal/core"
	"djassa/internal/middleware/ratelimit"
	"djassa/internal/services"
	"djassa/internal/storage"
)

type mockModel struct {
	mock.Mock
}

func (m *mockModel) Generate(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

// promptContaining matches prompts that include every fragment.
func promptContaining(fragments ...string) any {
	return mock.MatchedBy(func(prompt string) bool {
		for _, f := range fragments {
			if !strings.Contains(prompt, f) {
				return false
			}
		}
		return true
	})
}

type fixture struct {
	repo     *storage.SQLiteRepository
	ledger   *services.LedgerService
	reports  *services.ReportService
	limiter  *ratelimit.Limiter
	recorder *AutoRecorder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "djassa.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	limiter := ratelimit.NewLimiter(ratelimit.Config{Limit: 10, Window: time.Hour})
	t.Cleanup(limiter.Stop)

	ledger := services.NewLedgerService(repo, nil, nil)
	return fixture{
		repo:     repo,
		ledger:   ledger,
		reports:  services.NewReportService(repo, nil),
		limiter:  limiter,
		recorder: NewAutoRecorder(ledger, repo, limiter, 0.8),
	}
}

func (f fixture) shop(t *testing.T, phone string, plan core.Plan) core.Shop {
	t.Helper()
	shop, err := f.repo.CreateShop(context.Background(),
		core.Shop{Name: "Chez Awa", Phone: phone, PINHash: "hash", Plan: plan},
		storage.Session{TokenHash: "tok-" + phone, ExpiresAt: time.Now().Add(time.Hour)},
		storage.AuditMeta{})
	require.NoError(t, err)
	return shop
}

func (f fixture) product(t *testing.T, shopID, name string, price int64, stock int) core.Product {
	t.Helper()
	p, err := f.repo.CreateProduct(context.Background(),
		core.Product{ShopID: shopID, Name: name, UnitPrice: price, Stock: stock}, storage.AuditMeta{})
	require.NoError(t, err)
	return p
}

func (f fixture) assistant(t *testing.T, model Model) *Assistant {
	t.Helper()
	detector, err := NewIntentDetector(model)
	require.NoError(t, err)
	return New(model, f.repo, f.reports, detector, f.recorder)
}
