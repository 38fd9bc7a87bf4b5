package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"stock-ledger/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ErrCacheMiss el producto no está en ningún nivel.
var ErrCacheMiss = errors.New("product not in cache")

// CacheStats estadísticas del caché
type CacheStats struct {
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	TotalRequests int64   `json:"total_requests"`
	TotalKeys     int     `json:"total_keys"`
	HitRate       float64 `json:"hit_rate"`
	RedisEnabled  bool    `json:"redis_enabled"`
}

type l1Entry struct {
	product   models.Product
	expiresAt time.Time
}

// ProductCache caché de dos niveles para búsquedas por código de barras en el POS.
// L1 es un mapa en memoria y L2 es Redis; sin cliente Redis funciona solo con L1.
type ProductCache struct {
	l1Cache map[string]l1Entry
	l1Mutex sync.RWMutex

	redisClient *redis.Client

	maxL1Size int
	ttl       time.Duration

	logger *zap.Logger
	now    func() time.Time

	statsMutex sync.RWMutex
	hits       int64
	misses     int64
}

func NewProductCache(redisClient *redis.Client, maxL1Size int, ttl time.Duration, logger *zap.Logger) *ProductCache {
	if maxL1Size <= 0 {
		maxL1Size = 1000
	}
	return &ProductCache{
		l1Cache:     make(map[string]l1Entry),
		redisClient: redisClient,
		maxL1Size:   maxL1Size,
		ttl:         ttl,
		logger:      logger,
		now:         time.Now,
	}
}

func productKey(companyID, barcode string) string {
	return fmt.Sprintf("product:%s:%s", companyID, barcode)
}

// GetStats retorna estadísticas del caché
func (pc *ProductCache) GetStats() CacheStats {
	pc.statsMutex.RLock()
	hits, misses := pc.hits, pc.misses
	pc.statsMutex.RUnlock()

	pc.l1Mutex.RLock()
	totalKeys := len(pc.l1Cache)
	pc.l1Mutex.RUnlock()

	stats := CacheStats{
		Hits:          hits,
		Misses:        misses,
		TotalRequests: hits + misses,
		TotalKeys:     totalKeys,
		RedisEnabled:  pc.redisClient != nil,
	}
	if stats.TotalRequests > 0 {
		stats.HitRate = float64(hits) / float64(stats.TotalRequests)
	}
	return stats
}

// GetProduct busca en L1 y luego en L2. Devuelve ErrCacheMiss si no está.
func (pc *ProductCache) GetProduct(ctx context.Context, companyID, barcode string) (*models.Product, error) {
	start := time.Now()
	key := productKey(companyID, barcode)

	if product := pc.getFromL1(key); product != nil {
		pc.recordHit()
		pc.logger.Debug("L1 cache hit",
			zap.String("key", key),
			zap.Duration("latency", time.Since(start)))
		return product, nil
	}

	if product, err := pc.getFromL2(ctx, key); err == nil && product != nil {
		pc.setToL1(key, product)
		pc.recordHit()
		pc.logger.Debug("L2 cache hit",
			zap.String("key", key),
			zap.Duration("latency", time.Since(start)))
		return product, nil
	} else if err != nil && !errors.Is(err, redis.Nil) {
		pc.logger.Warn("L2 cache read failed", zap.String("key", key), zap.Error(err))
	}

	pc.recordMiss()
	pc.logger.Debug("Cache miss",
		zap.String("key", key),
		zap.Duration("latency", time.Since(start)))

	return nil, ErrCacheMiss
}

func (pc *ProductCache) recordHit() {
	pc.statsMutex.Lock()
	pc.hits++
	pc.statsMutex.Unlock()
}

func (pc *ProductCache) recordMiss() {
	pc.statsMutex.Lock()
	pc.misses++
	pc.statsMutex.Unlock()
}

// SetProduct almacena un producto en ambos niveles. Sin código de barras no hace nada.
func (pc *ProductCache) SetProduct(ctx context.Context, product *models.Product) error {
	barcode := product.BarcodeValue()
	if barcode == "" {
		return nil
	}
	key := productKey(product.CompanyID, barcode)

	pc.setToL1(key, product)
	return pc.setToL2(ctx, key, product)
}

// InvalidateProduct invalida un producto en ambos niveles.
func (pc *ProductCache) InvalidateProduct(ctx context.Context, companyID, barcode string) error {
	if barcode == "" {
		return nil
	}
	key := productKey(companyID, barcode)

	pc.l1Mutex.Lock()
	delete(pc.l1Cache, key)
	pc.l1Mutex.Unlock()

	if pc.redisClient == nil {
		return nil
	}
	return pc.redisClient.Del(ctx, key).Err()
}

func (pc *ProductCache) getFromL1(key string) *models.Product {
	pc.l1Mutex.RLock()
	entry, ok := pc.l1Cache[key]
	pc.l1Mutex.RUnlock()

	if !ok || pc.now().After(entry.expiresAt) {
		return nil
	}
	product := entry.product
	return &product
}

func (pc *ProductCache) setToL1(key string, product *models.Product) {
	pc.l1Mutex.Lock()
	defer pc.l1Mutex.Unlock()

	if _, exists := pc.l1Cache[key]; !exists && len(pc.l1Cache) >= pc.maxL1Size {
		pc.evictOne()
	}

	pc.l1Cache[key] = l1Entry{product: *product, expiresAt: pc.now().Add(pc.ttl)}
}

// evictOne elimina la entrada que vence primero. Requiere l1Mutex tomado.
func (pc *ProductCache) evictOne() {
	var (
		oldestKey string
		oldest    time.Time
	)
	for key, entry := range pc.l1Cache {
		if oldestKey == "" || entry.expiresAt.Before(oldest) {
			oldestKey, oldest = key, entry.expiresAt
		}
	}
	delete(pc.l1Cache, oldestKey)
}

func (pc *ProductCache) getFromL2(ctx context.Context, key string) (*models.Product, error) {
	if pc.redisClient == nil {
		return nil, nil
	}

	data, err := pc.redisClient.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	var product models.Product
	if err := json.Unmarshal([]byte(data), &product); err != nil {
		return nil, err
	}

	return &product, nil
}

func (pc *ProductCache) setToL2(ctx context.Context, key string, product *models.Product) error {
	if pc.redisClient == nil {
		return nil
	}

	data, err := json.Marshal(product)
	if err != nil {
		return err
	}

	return pc.redisClient.Set(ctx, key, data, pc.ttl).Err()
}

// RunCleanup elimina periódicamente las entradas vencidas de L1 hasta que ctx termine.
func (pc *ProductCache) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := pc.removeExpired()
			pc.logger.Debug("L1 cache cleanup", zap.Int("removed", removed))
		}
	}
}

func (pc *ProductCache) removeExpired() int {
	pc.l1Mutex.Lock()
	defer pc.l1Mutex.Unlock()

	now := pc.now()
	removed := 0
	for key, entry := range pc.l1Cache {
		if now.After(entry.expiresAt) {
			delete(pc.l1Cache, key)
			removed++
		}
	}
	return removed
}
