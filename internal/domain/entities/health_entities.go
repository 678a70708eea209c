package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CheckStatus is the verdict of a single subsystem check
type CheckStatus string

const (
	CheckHealthy CheckStatus = "healthy"
	CheckWarning CheckStatus = "warning"
	CheckError   CheckStatus = "error"
)

// HealthStatus is the aggregated verdict
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// Level maps the status onto the metrics gauge
func (s HealthStatus) Level() float64 {
	switch s {
	case HealthWarning:
		return 1
	case HealthCritical:
		return 2
	default:
		return 0
	}
}

// CheckResult is a single subsystem check outcome
type CheckResult struct {
	Status  CheckStatus            `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// HealthMetrics is the numeric snapshot captured with each check
type HealthMetrics struct {
	UptimeSeconds  int64           `json:"uptime_seconds"`
	HeapAllocBytes uint64          `json:"heap_alloc_bytes"`
	HeapSysBytes   uint64          `json:"heap_sys_bytes"`
	Goroutines     int             `json:"goroutines"`
	SolPrice       decimal.Decimal `json:"sol_price"`
	BotBalance     decimal.Decimal `json:"bot_balance"`
	RPCLatencyMS   int64           `json:"rpc_latency_ms"`
	Users          UserStats       `json:"user_stats"`
	Monitor        MonitorStatus   `json:"monitoring_status"`
}

// HealthSnapshot is one point-in-time health verdict
type HealthSnapshot struct {
	ID        uuid.UUID              `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Status    HealthStatus           `json:"status"`
	Checks    map[string]CheckResult `json:"checks"`
	Metrics   HealthMetrics          `json:"metrics"`
	Warnings  []string               `json:"warnings"`
	Errors    []string               `json:"errors"`
}

// HealthReport is a snapshot plus advisory recommendations
type HealthReport struct {
	Snapshot        *HealthSnapshot `json:"snapshot"`
	Recommendations []string        `json:"recommendations"`
}
