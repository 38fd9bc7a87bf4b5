package services

import (
	"context"
	"testing"
	"time"

	"stock-ledger/internal/config"
	"stock-ledger/internal/ledger"
	"stock-ledger/internal/models"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func newTestMonitoring(t *testing.T) MonitoringService {
	cfg := &config.Config{
		Ledger: config.LedgerConfig{
			AuditMode:     config.AuditStrict,
			Concurrency:   config.ConcurrencyOptimistic,
			RouteAllPaths: true,
		},
		Logging: config.LoggingConfig{Environment: "test"},
	}
	return NewMonitoringService(zaptest.NewLogger(t), cfg, nil, nil, nil)
}

func TestMonitoringService_RecordAdjustment(t *testing.T) {
	svc := newTestMonitoring(t)

	for _, outcome := range []ledger.Outcome{
		ledger.OutcomeApplied,
		ledger.OutcomeApplied,
		ledger.OutcomeAuditDivergence,
		ledger.OutcomeRejected,
		ledger.OutcomeVersionConflict,
		ledger.OutcomeVersionConflict,
		ledger.OutcomeAuditFailed,
		ledger.OutcomeFailed,
	} {
		svc.RecordAdjustment(outcome)
	}

	stats := svc.GetLedgerStats()
	assert.Equal(t, int64(3), stats.Applied)
	assert.Equal(t, int64(1), stats.AuditDivergences)
	assert.Equal(t, int64(1), stats.Rejected)
	assert.Equal(t, int64(2), stats.VersionConflicts)
	assert.Equal(t, int64(1), stats.AuditFailures)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, config.AuditStrict, stats.AuditMode)
	assert.True(t, stats.RouteAllPaths)
}

func TestMonitoringService_RecordRequest(t *testing.T) {
	svc := newTestMonitoring(t)
	now := time.Now()

	svc.RecordRequest(models.RequestData{Method: "POST", Endpoint: "/api/v1/stock/:company/adjust", StatusCode: 200, Duration: 20 * time.Millisecond, Timestamp: now})
	svc.RecordRequest(models.RequestData{Method: "POST", Endpoint: "/api/v1/stock/:company/adjust", StatusCode: 422, Duration: 40 * time.Millisecond, Timestamp: now})
	svc.RecordRequest(models.RequestData{Method: "GET", Endpoint: "/health", StatusCode: 200, Duration: 2 * time.Second, Timestamp: now})

	metrics := svc.GetMetrics(context.Background())

	assert.Equal(t, int64(3), metrics.Requests.TotalRequests)
	adjust := metrics.Requests.ByEndpoint["POST /api/v1/stock/:company/adjust"]
	assert.Equal(t, 2, adjust.Count)
	assert.Equal(t, int64(40), adjust.MaxMs)
	assert.InDelta(t, 30.0, adjust.AvgTimeMs, 0.001)
	assert.Equal(t, 1, metrics.Requests.ErrorsCount)
	assert.Equal(t, 1, metrics.Requests.SlowRequestsCount)
	assert.Equal(t, "POST /api/v1/stock/:company/adjust", metrics.Requests.TopEndpoints[0].Endpoint)
	assert.Equal(t, "disabled", metrics.Redis.Status)
	assert.Equal(t, "offline", metrics.Database.Status)

	summary := svc.GetSummary()
	assert.Equal(t, int64(3), summary.TotalRequests)
	assert.Equal(t, 1, summary.ErrorsCount)
}

func TestAppendBounded(t *testing.T) {
	var items []int
	for i := 0; i < maxTrackedEntries+5; i++ {
		items = appendBounded(items, i)
	}
	assert.Len(t, items, maxTrackedEntries)
	assert.Equal(t, 5, items[0])
}

func TestParseUsedMemory(t *testing.T) {
	info := "# Memory\r\nused_memory:2097152\r\nused_memory_human:2.00M\r\n"
	assert.Equal(t, "2.00 MB", parseUsedMemory(info))
	assert.Equal(t, "", parseUsedMemory("# Memory\r\n"))
}
