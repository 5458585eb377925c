// Package domain defines the per-gateway health record used for failover decisions.
package domain

import (
	"time"

	messageDomain "github.com/allisson/courier/internal/message/domain"
)

// Record is the health of one (channel, gateway) pair.
type Record struct {
	Channel             messageDomain.Channel `json:"channel"`
	Gateway             string                `json:"gateway"`
	Healthy             bool                  `json:"healthy"`
	CircuitOpen         bool                  `json:"circuit_open"`
	SuccessRate1h       float64               `json:"success_rate_1h"`
	SuccessRate24h      float64               `json:"success_rate_24h"`
	Samples1h           int                   `json:"samples_1h"`
	AvgLatencyMs        int64                 `json:"avg_latency_ms"`
	CurrentRatePerSec   float64               `json:"current_rate_per_sec"`
	MaxRatePerSec       int                   `json:"max_rate_per_sec"`
	ConsecutiveFailures int                   `json:"consecutive_failures"`
	LastCheckAt         time.Time             `json:"last_check_at"`
	LastFailureAt       *time.Time            `json:"last_failure_at,omitempty"`
	FailureReason       *string               `json:"failure_reason,omitempty"`
}

// Key identifies a gateway serving a channel.
type Key struct {
	Channel messageDomain.Channel
	Gateway string
}
