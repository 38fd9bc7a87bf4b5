package models

import "time"

// MonitoringResponse respuesta completa del sistema de monitoring
type MonitoringResponse struct {
	Requests    RequestMetrics     `json:"requests"`
	Performance PerformanceMetrics `json:"performance"`
	Ledger      LedgerMetrics      `json:"ledger"`
	Cache       CacheMetrics       `json:"cache"`
	Database    DatabaseMetrics    `json:"database"`
	System      SystemMetrics      `json:"system"`
	Redis       RedisMetrics       `json:"redis"`
	Timestamp   string             `json:"timestamp"`
}

// MetricsSummary versión resumida para paneles
type MetricsSummary struct {
	TotalRequests    int64   `json:"total_requests"`
	ErrorsCount      int     `json:"errors_count"`
	AvgResponseMs    float64 `json:"avg_response_ms"`
	Adjustments      int64   `json:"adjustments"`
	AuditDivergences int64   `json:"audit_divergences"`
	VersionConflicts int64   `json:"version_conflicts"`
	CacheHitRate     float64 `json:"cache_hit_rate"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
	Timestamp        string  `json:"timestamp"`
}

// RequestMetrics métricas de requests
type RequestMetrics struct {
	TotalRequests     int64                      `json:"total_requests"`
	ByEndpoint        map[string]EndpointMetrics `json:"by_endpoint"`
	SlowRequests      []SlowRequest              `json:"slow_requests"`
	Errors            []RequestError             `json:"errors"`
	SlowRequestsCount int                        `json:"slow_requests_count"`
	ErrorsCount       int                        `json:"errors_count"`
	TopEndpoints      []TopEndpoint              `json:"top_endpoints"`
}

// EndpointMetrics métricas por endpoint
type EndpointMetrics struct {
	Count     int     `json:"count"`
	AvgTimeMs float64 `json:"avg_time_ms"`
	TotalMs   int64   `json:"total_ms"`
	MaxMs     int64   `json:"max_ms"`
}

// SlowRequest request lento
type SlowRequest struct {
	Endpoint   string    `json:"endpoint"`
	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// RequestError error de request
type RequestError struct {
	Endpoint   string    `json:"endpoint"`
	StatusCode int       `json:"status_code"`
	Timestamp  time.Time `json:"timestamp"`
}

// TopEndpoint endpoint más usado
type TopEndpoint struct {
	Endpoint  string  `json:"endpoint"`
	Count     int     `json:"count"`
	AvgTimeMs float64 `json:"avg_time_ms"`
}

// PerformanceMetrics métricas de rendimiento
type PerformanceMetrics struct {
	AvgResponseMs float64 `json:"avg_response_ms"`
	MaxResponseMs int64   `json:"max_response_ms"`
}

// LedgerMetrics contadores de ajustes de stock por resultado
type LedgerMetrics struct {
	AuditMode        string `json:"audit_mode"`
	Concurrency      string `json:"concurrency"`
	RouteAllPaths    bool   `json:"route_all_paths"`
	Applied          int64  `json:"applied"`
	Rejected         int64  `json:"rejected"`
	AuditDivergences int64  `json:"audit_divergences"`
	AuditFailures    int64  `json:"audit_failures"`
	VersionConflicts int64  `json:"version_conflicts"`
	Failed           int64  `json:"failed"`
}

// CacheMetrics métricas de cache
type CacheMetrics struct {
	RedisEnabled  bool    `json:"redis_enabled"`
	TotalKeys     int     `json:"total_keys"`
	HitRate       float64 `json:"hit_rate"`
	TotalHits     int64   `json:"total_hits"`
	TotalMisses   int64   `json:"total_misses"`
	TotalRequests int64   `json:"total_requests"`
}

// DatabaseMetrics métricas del pool de conexiones
type DatabaseMetrics struct {
	Status          string `json:"status"`
	OpenConnections int    `json:"open_connections"`
	InUse           int    `json:"in_use"`
	Idle            int    `json:"idle"`
	WaitCount       int64  `json:"wait_count"`
}

// SystemMetrics métricas del proceso
type SystemMetrics struct {
	HeapAllocMB   float64 `json:"heap_alloc_mb"`
	HeapSysMB     float64 `json:"heap_sys_mb"`
	SysMB         float64 `json:"sys_mb"`
	Goroutines    int     `json:"goroutines"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	GoVersion     string  `json:"go_version"`
	Platform      string  `json:"platform"`
	Environment   string  `json:"environment"`
}

// RedisMetrics métricas de Redis
type RedisMetrics struct {
	Connected bool   `json:"connected"`
	Keys      int64  `json:"keys"`
	MemoryMB  string `json:"memory_mb,omitempty"`
	Status    string `json:"status"`
}

// RequestData datos de un request individual
type RequestData struct {
	Endpoint   string
	Method     string
	Duration   time.Duration
	StatusCode int
	Timestamp  time.Time
}
