package cache

import (
	"context"
	"testing"
	"time"

	"stock-ledger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func product(company, barcode string, qty int) *models.Product {
	return &models.Product{ID: "p-" + barcode, CompanyID: company, SKU: barcode, Barcode: &barcode, Quantity: qty}
}

func TestProductCache_L1OnlyRoundTrip(t *testing.T) {
	pc := NewProductCache(nil, 10, time.Minute, zap.NewNop())
	ctx := context.Background()

	_, err := pc.GetProduct(ctx, "c1", "780")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, pc.SetProduct(ctx, product("c1", "780", 4)))

	got, err := pc.GetProduct(ctx, "c1", "780")
	require.NoError(t, err)
	assert.Equal(t, 4, got.Quantity)

	// misma barra en otra empresa no colisiona
	_, err = pc.GetProduct(ctx, "c2", "780")
	assert.ErrorIs(t, err, ErrCacheMiss)

	stats := pc.GetStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.InDelta(t, 1.0/3.0, stats.HitRate, 0.0001)
	assert.False(t, stats.RedisEnabled)
}

func TestProductCache_Invalidate(t *testing.T) {
	pc := NewProductCache(nil, 10, time.Minute, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, pc.SetProduct(ctx, product("c1", "780", 4)))
	require.NoError(t, pc.InvalidateProduct(ctx, "c1", "780"))

	_, err := pc.GetProduct(ctx, "c1", "780")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestProductCache_SkipsProductsWithoutBarcode(t *testing.T) {
	pc := NewProductCache(nil, 10, time.Minute, zap.NewNop())

	require.NoError(t, pc.SetProduct(context.Background(), &models.Product{ID: "p1", CompanyID: "c1"}))
	assert.Zero(t, pc.GetStats().TotalKeys)
}

func TestProductCache_ExpiresEntries(t *testing.T) {
	pc := NewProductCache(nil, 10, time.Minute, zap.NewNop())
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	pc.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, pc.SetProduct(ctx, product("c1", "780", 4)))

	now = now.Add(2 * time.Minute)
	_, err := pc.GetProduct(ctx, "c1", "780")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, 1, pc.removeExpired())
	assert.Zero(t, pc.GetStats().TotalKeys)
}

func TestProductCache_EvictsWhenFull(t *testing.T) {
	pc := NewProductCache(nil, 2, time.Minute, zap.NewNop())
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	pc.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, pc.SetProduct(ctx, product("c1", "a", 1)))
	now = now.Add(time.Second)
	require.NoError(t, pc.SetProduct(ctx, product("c1", "b", 1)))
	now = now.Add(time.Second)
	require.NoError(t, pc.SetProduct(ctx, product("c1", "c", 1)))

	assert.Equal(t, 2, pc.GetStats().TotalKeys)
	_, err := pc.GetProduct(ctx, "c1", "a")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = pc.GetProduct(ctx, "c1", "c")
	assert.NoError(t, err)
}
