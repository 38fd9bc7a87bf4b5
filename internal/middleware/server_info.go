package middleware

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"stock-ledger/internal/config"

	"go.uber.org/zap"
)

// ServerInfo muestra el banner del servidor al iniciar
func ServerInfo(cfg *config.Config, logger *zap.Logger) {
	hostname, _ := os.Hostname()
	goVersion := runtime.Version()
	numCPU := runtime.NumCPU()
	startTime := time.Now().Format("2006-01-02 15:04:05")
	port := cfg.Server.Port

	kafka := "disabled (log publisher)"
	if cfg.Kafka.Enabled {
		kafka = fmt.Sprintf("%v", cfg.Kafka.Brokers)
	}

	fmt.Println("")
	fmt.Println(boldColor + "Stock Ledger API" + resetColor)
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println("Started at:  " + startTime)
	fmt.Println("Server URL:  " + cyanColor + "http://localhost:" + port + resetColor)
	fmt.Println("Hostname:    " + hostname)
	fmt.Println("Go Version:  " + goVersion)
	fmt.Printf("CPU Cores:   %d\n", numCPU)
	fmt.Println("")
	fmt.Println(boldColor + "Ledger:" + resetColor)
	fmt.Println("   Audit mode:      " + cfg.Ledger.AuditMode)
	fmt.Println("   Concurrency:     " + cfg.Ledger.Concurrency)
	fmt.Printf("   Route all paths: %t\n", cfg.Ledger.RouteAllPaths)
	fmt.Println("")
	fmt.Println(boldColor + "Endpoints:" + resetColor)
	fmt.Println("   GET  " + greenColor + "/health" + resetColor + "                 - Health Check")
	fmt.Println("   POST " + blueColor + "/api/v1/stock/:company/adjust" + resetColor + " - Ledger adjustment")
	fmt.Println("   GET  " + greenColor + "/api/v1/monitoring/metrics" + resetColor + " - Metrics")
	fmt.Println("")
	fmt.Println("Events: " + kafka)
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println("")

	logger.Info("Server started successfully",
		zap.String("port", port),
		zap.String("hostname", hostname),
		zap.String("go_version", goVersion),
		zap.Int("cpu_cores", numCPU),
		zap.String("audit_mode", cfg.Ledger.AuditMode),
		zap.String("concurrency", cfg.Ledger.Concurrency),
		zap.Bool("route_all_paths", cfg.Ledger.RouteAllPaths),
	)
}
