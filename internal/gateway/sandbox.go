package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/allisson/courier/internal/config"
	messageDomain "github.com/allisson/courier/internal/message/domain"
)

// SandboxAdapter accepts every message without contacting a provider. It logs each
// send and emulates the provider's own per-second throttle, answering with a
// transient throttled failure when it is exceeded.
type SandboxAdapter struct {
	name      string
	channel   messageDomain.Channel
	batchSize int
	perSecond int
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewSandboxAdapter creates a SandboxAdapter for a configured gateway.
func NewSandboxAdapter(policy config.GatewayPolicy, logger *slog.Logger) *SandboxAdapter {
	limit := rate.Inf
	burst := 0
	if policy.Ceiling.PerSecond > 0 {
		limit = rate.Limit(policy.Ceiling.PerSecond)
		burst = policy.Ceiling.PerSecond
	}
	batchSize := policy.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}
	return &SandboxAdapter{
		name:      policy.Name,
		channel:   policy.Channel,
		batchSize: batchSize,
		perSecond: policy.Ceiling.PerSecond,
		limiter:   rate.NewLimiter(limit, burst),
		logger:    logger,
	}
}

// NewSandboxRegistry registers a SandboxAdapter for every gateway of the policy.
func NewSandboxRegistry(policy *config.Policy, logger *slog.Logger) (*Registry, error) {
	adapters := make([]Adapter, 0, len(policy.Gateways))
	for _, gw := range policy.Gateways {
		adapters = append(adapters, NewSandboxAdapter(gw, logger))
	}
	return NewRegistry(adapters...)
}

func (a *SandboxAdapter) Name() string { return a.name }

func (a *SandboxAdapter) Channel() messageDomain.Channel { return a.channel }

func (a *SandboxAdapter) MaxBatchSize() int { return a.batchSize }

// Send logs the message and returns a synthetic external id.
func (a *SandboxAdapter) Send(ctx context.Context, msg OutboundMessage) (Result, error) {
	if err := ctx.Err(); err != nil {
		gwErr := AsError(a.name, err)
		return Result{MessageID: msg.MessageID, Err: gwErr}, gwErr
	}
	if !a.limiter.Allow() {
		gwErr := &Error{
			Gateway:    a.name,
			Class:      ClassTransient,
			Code:       CodeThrottled,
			StatusCode: 429,
			Message:    "sandbox throughput exceeded",
		}
		return Result{MessageID: msg.MessageID, StatusCode: 429, Err: gwErr}, gwErr
	}

	externalID := "sandbox-" + uuid.NewString()
	if a.logger != nil {
		a.logger.Info("sandbox send",
			slog.String("gateway", a.name),
			slog.String("channel", string(msg.Channel)),
			slog.String("message_id", msg.MessageID.String()),
			slog.String("ip_pool", msg.IPPool),
			slog.String("external_id", externalID),
		)
	}
	return Result{MessageID: msg.MessageID, ExternalID: externalID, StatusCode: 202}, nil
}

// SendBatch sends each message in turn and reports per-item results.
func (a *SandboxAdapter) SendBatch(ctx context.Context, msgs []OutboundMessage) ([]Result, error) {
	results := make([]Result, len(msgs))
	for i, msg := range msgs {
		results[i], _ = a.Send(ctx, msg)
	}
	return results, nil
}

func (a *SandboxAdapter) IsAvailable(context.Context) bool { return true }

func (a *SandboxAdapter) GetRateStatus(context.Context) RateStatus {
	tokens := a.limiter.Tokens()
	return RateStatus{
		Gateway:   a.name,
		PerSecond: a.perSecond,
		Available: tokens,
		Throttled: a.perSecond > 0 && tokens < 1,
		CheckedAt: time.Now().UTC(),
	}
}
