package assistant

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"djassa/internal/core"
	"djassa/internal/middleware/ratelimit"
	"djassa/internal/storage"
)

func TestRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	shop := f.shop(t, "0700000001", core.PlanFree)
	savon := f.product(t, shop.ID, "Savon Lux", 500, 10)
	f.product(t, shop.ID, "Lait", 800, 0)

	t.Run("records a confident sale", func(t *testing.T) {
		out := f.recorder.Record(ctx, shop, Intent{
			HasTransaction: true,
			Type:           IntentSale,
			Details:        Details{ProductName: "savon", Quantity: 3},
			Confidence:     0.9,
		}, French, "10.0.0.1")

		require.NotNil(t, out.Recorded)
		assert.Equal(t, IntentSale, out.Recorded.Type)
		assert.Equal(t, "Vente enregistrée: 3x Savon Lux = 1 500 FCFA", out.Recorded.Message)
		assert.Empty(t, out.Feedback)

		p, err := f.repo.GetProduct(ctx, shop.ID, savon.ID)
		require.NoError(t, err)
		assert.Equal(t, 7, p.Stock)

		n, err := f.repo.CountAuditSince(ctx, shop.ID, "create_auto", time.Now().Add(-time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("ignores low confidence", func(t *testing.T) {
		out := f.recorder.Record(ctx, shop, Intent{
			HasTransaction: true,
			Type:           IntentExpense,
			Details:        Details{TotalAmount: 2000},
			Confidence:     0.5,
		}, French, "")
		assert.Equal(t, Outcome{}, out)
	})

	t.Run("expense defaults its category", func(t *testing.T) {
		out := f.recorder.Record(ctx, shop, Intent{
			HasTransaction: true,
			Type:           IntentExpense,
			Details:        Details{TotalAmount: 20000, Description: "facture"},
			Confidence:     0.85,
		}, English, "")
		require.NotNil(t, out.Recorded)
		assert.Equal(t, "Expense recorded: 20 000 FCFA (Autre)", out.Recorded.Message)
	})

	t.Run("debt below minimum gives feedback", func(t *testing.T) {
		out := f.recorder.Record(ctx, shop, Intent{
			HasTransaction: true,
			Type:           IntentDebt,
			Details:        Details{CustomerName: "Mamadou", TotalAmount: 200},
			Confidence:     0.95,
		}, French, "")
		assert.Nil(t, out.Recorded)
		assert.Equal(t, "Précisez le montant de la dette (minimum 500 FCFA).", out.Feedback)
	})

	t.Run("unknown product gives feedback", func(t *testing.T) {
		out := f.recorder.Record(ctx, shop, Intent{
			HasTransaction: true,
			Type:           IntentSale,
			Details:        Details{ProductName: "Riz", Quantity: 1},
			Confidence:     0.9,
		}, French, "")
		assert.Nil(t, out.Recorded)
		assert.Equal(t, "Produit 'Riz' non trouvé. Ajoutez-le dans le stock d'abord.", out.Feedback)
	})

	t.Run("insufficient stock gives feedback", func(t *testing.T) {
		out := f.recorder.Record(ctx, shop, Intent{
			HasTransaction: true,
			Type:           IntentSale,
			Details:        Details{ProductName: "Lait", Quantity: 2},
			Confidence:     0.9,
		}, French, "")
		assert.Nil(t, out.Recorded)
		assert.Contains(t, out.Feedback, "Stock insuffisant pour Lait (0 disponible)")
	})

	t.Run("stock intake adds to stock", func(t *testing.T) {
		out := f.recorder.Record(ctx, shop, Intent{
			HasTransaction: true,
			Type:           IntentStock,
			Details:        Details{ProductName: "lait", Quantity: 12},
			Confidence:     0.9,
		}, French, "")
		require.NotNil(t, out.Recorded)
		assert.Equal(t, "Stock mis à jour: +12 Lait (12 en stock)", out.Recorded.Message)
	})
}

func TestRecordRateLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	shop := f.shop(t, "0700000001", core.PlanFree)

	limiter := ratelimit.NewLimiter(ratelimit.Config{Limit: 1, Window: time.Hour})
	t.Cleanup(limiter.Stop)
	recorder := NewAutoRecorder(f.ledger, f.repo, limiter, 0.8)

	expense := Intent{HasTransaction: true, Type: IntentExpense, Details: Details{TotalAmount: 1000}, Confidence: 0.9}

	failed := recorder.Record(ctx, shop, Intent{HasTransaction: true, Type: IntentExpense, Details: Details{TotalAmount: 50}, Confidence: 0.9}, French, "")
	assert.Nil(t, failed.Recorded)
	assert.True(t, recorder.HasCapacity(shop.ID), "rejected writes must not consume the window")

	first := recorder.Record(ctx, shop, expense, French, "")
	require.NotNil(t, first.Recorded)
	assert.False(t, recorder.HasCapacity(shop.ID))

	second := recorder.Record(ctx, shop, expense, French, "")
	assert.Nil(t, second.Recorded)
	assert.Equal(t, tooManyFeedback(French), second.Feedback)
}

// slowLedger holds each expense write long enough for concurrent callers to overlap.
type slowLedger struct {
	Ledger
	delay    time.Duration
	fail     bool
	expenses atomic.Int64
}

func (l *slowLedger) CreateExpense(ctx context.Context, e core.Expense, meta storage.AuditMeta) (core.Expense, error) {
	time.Sleep(l.delay)
	if l.fail {
		return core.Expense{}, errors.New("disk full")
	}
	l.expenses.Add(1)
	e.ID = storage.NewID()
	return e, nil
}

func TestRecordConcurrentWritesRespectWindow(t *testing.T) {
	ctx := context.Background()
	shop := core.Shop{ID: "shop-1", Name: "Chez Awa"}
	expense := Intent{HasTransaction: true, Type: IntentExpense, Details: Details{TotalAmount: 1000}, Confidence: 0.9}

	run := func(recorder *AutoRecorder, n int) (recorded, refused int64) {
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				out := recorder.Record(ctx, shop, expense, French, "")
				switch {
				case out.Recorded != nil:
					atomic.AddInt64(&recorded, 1)
				case out.Feedback == tooManyFeedback(French):
					atomic.AddInt64(&refused, 1)
				}
			}()
		}
		wg.Wait()
		return recorded, refused
	}

	t.Run("at most limit writes per window", func(t *testing.T) {
		limiter := ratelimit.NewLimiter(ratelimit.Config{Limit: 10, Window: 5 * time.Minute})
		t.Cleanup(limiter.Stop)
		ledger := &slowLedger{delay: 20 * time.Millisecond}

		recorded, refused := run(NewAutoRecorder(ledger, nil, limiter, 0.8), 30)

		assert.Equal(t, int64(10), recorded)
		assert.Equal(t, int64(20), refused)
		assert.Equal(t, int64(10), ledger.expenses.Load())
		assert.Zero(t, limiter.Remaining(shop.ID))
	})

	t.Run("failed writes give their slot back", func(t *testing.T) {
		limiter := ratelimit.NewLimiter(ratelimit.Config{Limit: 10, Window: 5 * time.Minute})
		t.Cleanup(limiter.Stop)
		ledger := &slowLedger{delay: 5 * time.Millisecond, fail: true}

		recorded, _ := run(NewAutoRecorder(ledger, nil, limiter, 0.8), 30)

		assert.Zero(t, recorded)
		assert.Equal(t, 10, limiter.Remaining(shop.ID))
	})
}
