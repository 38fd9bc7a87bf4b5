package services

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"stock-ledger/internal/cache"
	"stock-ledger/internal/config"
	"stock-ledger/internal/ledger"
	"stock-ledger/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	slowRequestThreshold = time.Second
	maxTrackedEntries    = 100
)

type MonitoringService interface {
	ledger.Recorder

	RecordRequest(data models.RequestData)
	GetMetrics(ctx context.Context) *models.MonitoringResponse
	GetSummary() *models.MetricsSummary
	GetLedgerStats() models.LedgerMetrics
}

type monitoringService struct {
	logger       *zap.Logger
	config       *config.Config
	redisClient  *redis.Client
	dbPool       *sql.DB
	productCache *cache.ProductCache

	requestsMutex sync.RWMutex
	requests      map[string]*models.EndpointMetrics
	slowRequests  []models.SlowRequest
	errors        []models.RequestError
	totalRequests int64

	// contadores del ledger
	applied          atomic.Int64
	rejected         atomic.Int64
	auditDivergences atomic.Int64
	auditFailures    atomic.Int64
	versionConflicts atomic.Int64
	failed           atomic.Int64

	startTime time.Time
}

// NewMonitoringService redisClient, dbPool y productCache pueden ser nil.
func NewMonitoringService(
	logger *zap.Logger,
	cfg *config.Config,
	redisClient *redis.Client,
	dbPool *sql.DB,
	productCache *cache.ProductCache,
) MonitoringService {
	return &monitoringService{
		logger:       logger,
		config:       cfg,
		redisClient:  redisClient,
		dbPool:       dbPool,
		productCache: productCache,
		requests:     make(map[string]*models.EndpointMetrics),
		startTime:    time.Now(),
	}
}

// RecordAdjustment cuenta el resultado de un intento de ajuste del ledger.
func (s *monitoringService) RecordAdjustment(outcome ledger.Outcome) {
	switch outcome {
	case ledger.OutcomeApplied:
		s.applied.Add(1)
	case ledger.OutcomeRejected:
		s.rejected.Add(1)
	case ledger.OutcomeAuditDivergence:
		// el ajuste sí se aplicó
		s.applied.Add(1)
		s.auditDivergences.Add(1)
	case ledger.OutcomeAuditFailed:
		s.auditFailures.Add(1)
	case ledger.OutcomeVersionConflict:
		s.versionConflicts.Add(1)
	case ledger.OutcomeFailed:
		s.failed.Add(1)
	}
}

func (s *monitoringService) GetLedgerStats() models.LedgerMetrics {
	return models.LedgerMetrics{
		AuditMode:        s.config.Ledger.AuditMode,
		Concurrency:      s.config.Ledger.Concurrency,
		RouteAllPaths:    s.config.Ledger.RouteAllPaths,
		Applied:          s.applied.Load(),
		Rejected:         s.rejected.Load(),
		AuditDivergences: s.auditDivergences.Load(),
		AuditFailures:    s.auditFailures.Load(),
		VersionConflicts: s.versionConflicts.Load(),
		Failed:           s.failed.Load(),
	}
}

func (s *monitoringService) RecordRequest(data models.RequestData) {
	s.requestsMutex.Lock()
	defer s.requestsMutex.Unlock()

	endpointKey := fmt.Sprintf("%s %s", data.Method, data.Endpoint)

	metrics, exists := s.requests[endpointKey]
	if !exists {
		metrics = &models.EndpointMetrics{}
		s.requests[endpointKey] = metrics
	}

	durationMs := data.Duration.Milliseconds()
	metrics.Count++
	metrics.TotalMs += durationMs
	metrics.AvgTimeMs = float64(metrics.TotalMs) / float64(metrics.Count)
	if durationMs > metrics.MaxMs {
		metrics.MaxMs = durationMs
	}

	s.totalRequests++

	if data.Duration > slowRequestThreshold {
		s.slowRequests = appendBounded(s.slowRequests, models.SlowRequest{
			Endpoint:   endpointKey,
			DurationMs: durationMs,
			Timestamp:  data.Timestamp,
		})
	}

	if data.StatusCode >= 400 {
		s.errors = appendBounded(s.errors, models.RequestError{
			Endpoint:   endpointKey,
			StatusCode: data.StatusCode,
			Timestamp:  data.Timestamp,
		})
	}
}

// appendBounded conserva solo las últimas maxTrackedEntries entradas.
func appendBounded[T any](items []T, item T) []T {
	items = append(items, item)
	if len(items) > maxTrackedEntries {
		items = items[len(items)-maxTrackedEntries:]
	}
	return items
}

func (s *monitoringService) GetMetrics(ctx context.Context) *models.MonitoringResponse {
	s.requestsMutex.RLock()
	requestMetrics := s.calculateRequestMetrics()
	performance := s.calculatePerformanceMetrics()
	s.requestsMutex.RUnlock()

	return &models.MonitoringResponse{
		Requests:    requestMetrics,
		Performance: performance,
		Ledger:      s.GetLedgerStats(),
		Cache:       s.getCacheStats(),
		Database:    s.getDatabaseStats(),
		System:      s.getSystemStats(),
		Redis:       s.getRedisStats(ctx),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}

func (s *monitoringService) GetSummary() *models.MetricsSummary {
	s.requestsMutex.RLock()
	total := s.totalRequests
	errorsCount := len(s.errors)
	performance := s.calculatePerformanceMetrics()
	s.requestsMutex.RUnlock()

	return &models.MetricsSummary{
		TotalRequests:    total,
		ErrorsCount:      errorsCount,
		AvgResponseMs:    performance.AvgResponseMs,
		Adjustments:      s.applied.Load(),
		AuditDivergences: s.auditDivergences.Load(),
		VersionConflicts: s.versionConflicts.Load(),
		CacheHitRate:     s.getCacheStats().HitRate,
		UptimeSeconds:    time.Since(s.startTime).Seconds(),
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
	}
}

// calculateRequestMetrics requiere requestsMutex tomado.
func (s *monitoringService) calculateRequestMetrics() models.RequestMetrics {
	byEndpoint := make(map[string]models.EndpointMetrics, len(s.requests))
	top := make([]models.TopEndpoint, 0, len(s.requests))
	for key, metrics := range s.requests {
		byEndpoint[key] = *metrics
		top = append(top, models.TopEndpoint{Endpoint: key, Count: metrics.Count, AvgTimeMs: metrics.AvgTimeMs})
	}

	sort.Slice(top, func(i, j int) bool {
		if top[i].Count == top[j].Count {
			return top[i].Endpoint < top[j].Endpoint
		}
		return top[i].Count > top[j].Count
	})
	if len(top) > 10 {
		top = top[:10]
	}

	return models.RequestMetrics{
		TotalRequests:     s.totalRequests,
		ByEndpoint:        byEndpoint,
		SlowRequests:      append([]models.SlowRequest(nil), s.slowRequests...),
		Errors:            append([]models.RequestError(nil), s.errors...),
		SlowRequestsCount: len(s.slowRequests),
		ErrorsCount:       len(s.errors),
		TopEndpoints:      top,
	}
}

// calculatePerformanceMetrics requiere requestsMutex tomado.
func (s *monitoringService) calculatePerformanceMetrics() models.PerformanceMetrics {
	var (
		totalMs int64
		maxMs   int64
		count   int
	)
	for _, metrics := range s.requests {
		totalMs += metrics.TotalMs
		count += metrics.Count
		if metrics.MaxMs > maxMs {
			maxMs = metrics.MaxMs
		}
	}

	var avg float64
	if count > 0 {
		avg = float64(totalMs) / float64(count)
	}

	return models.PerformanceMetrics{AvgResponseMs: avg, MaxResponseMs: maxMs}
}

func (s *monitoringService) getCacheStats() models.CacheMetrics {
	if s.productCache == nil {
		return models.CacheMetrics{}
	}
	stats := s.productCache.GetStats()
	return models.CacheMetrics{
		RedisEnabled:  stats.RedisEnabled,
		TotalKeys:     stats.TotalKeys,
		HitRate:       stats.HitRate,
		TotalHits:     stats.Hits,
		TotalMisses:   stats.Misses,
		TotalRequests: stats.TotalRequests,
	}
}

func (s *monitoringService) getDatabaseStats() models.DatabaseMetrics {
	if s.dbPool == nil {
		return models.DatabaseMetrics{Status: "offline"}
	}
	stats := s.dbPool.Stats()
	return models.DatabaseMetrics{
		Status:          "online",
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		Idle:            stats.Idle,
		WaitCount:       stats.WaitCount,
	}
}

func (s *monitoringService) getSystemStats() models.SystemMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return models.SystemMetrics{
		HeapAllocMB:   bytesToMB(m.HeapAlloc),
		HeapSysMB:     bytesToMB(m.HeapSys),
		SysMB:         bytesToMB(m.Sys),
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: time.Since(s.startTime).Seconds(),
		GoVersion:     runtime.Version(),
		Platform:      runtime.GOOS + "/" + runtime.GOARCH,
		Environment:   s.config.Logging.Environment,
	}
}

func bytesToMB(b uint64) float64 {
	return float64(b) / 1024 / 1024
}

func (s *monitoringService) getRedisStats(ctx context.Context) models.RedisMetrics {
	if s.redisClient == nil {
		return models.RedisMetrics{Status: "disabled"}
	}

	if err := s.redisClient.Ping(ctx).Err(); err != nil {
		return models.RedisMetrics{Status: "offline"}
	}

	metrics := models.RedisMetrics{Connected: true, Status: "online"}

	if keys, err := s.redisClient.DBSize(ctx).Result(); err == nil {
		metrics.Keys = keys
	}

	if info, err := s.redisClient.Info(ctx, "memory").Result(); err == nil {
		metrics.MemoryMB = parseUsedMemory(info)
	}

	return metrics
}

// parseUsedMemory extrae used_memory de la salida de INFO memory.
func parseUsedMemory(info string) string {
	for _, line := range strings.Split(info, "\n") {
		value, ok := strings.CutPrefix(strings.TrimSpace(line), "used_memory:")
		if !ok {
			continue
		}
		bytes, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return ""
		}
		return fmt.Sprintf("%.2f MB", float64(bytes)/1024/1024)
	}
	return ""
}
