package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/allisson/courier/internal/config"
	deliveryDomain "github.com/allisson/courier/internal/delivery/domain"
	"github.com/allisson/courier/internal/dispatch/service"
	"github.com/allisson/courier/internal/gateway"
	messageDomain "github.com/allisson/courier/internal/message/domain"
	"github.com/allisson/courier/internal/metrics"
	"github.com/allisson/courier/internal/notification"
	rateLimitDomain "github.com/allisson/courier/internal/ratelimit/domain"
)

const defaultSendTimeout = 30 * time.Second

// Outcome labels recorded per processed message.
const (
	outcomeSuppressed  = "suppressed"
	outcomeRateLimited = "rate_limited"
)

var kinds = map[messageDomain.Status]notification.Kind{
	messageDomain.StatusSent:           notification.KindMessageSent,
	messageDomain.StatusRetryScheduled: notification.KindMessageRetryScheduled,
	messageDomain.StatusFailed:         notification.KindMessageFailed,
	messageDomain.StatusExpired:        notification.KindMessageExpired,
}

// admitted is a claimed message that passed every gate and waits for its gateway call.
type admitted struct {
	msg      *messageDomain.Message
	token    uuid.UUID
	route    service.Route
	adapter  gateway.Adapter
	timeout  time.Duration
	deadline time.Time
}

// batchKey groups messages that may share one SendBatch call.
type batchKey struct {
	gateway  string
	template string
	pool     string
}

type dispatcher struct {
	cfg         Config
	policy      *config.Policy
	messages    MessageRepository
	suppression SuppressionChecker
	router      GatewayRouter
	limiter     Limiter
	registry    *gateway.Registry
	attempts    AttemptRecorder
	publisher   notification.Publisher
	metrics     metrics.DispatchMetrics
	backoff     *service.Backoff
	logger      *slog.Logger
	wake        chan struct{}
	now         func() time.Time
}

// NewDispatcher creates a Dispatcher. publisher and dispatchMetrics may be nil.
func NewDispatcher(
	cfg Config,
	policy *config.Policy,
	messages MessageRepository,
	suppression SuppressionChecker,
	router GatewayRouter,
	limiter Limiter,
	registry *gateway.Registry,
	attempts AttemptRecorder,
	publisher notification.Publisher,
	dispatchMetrics metrics.DispatchMetrics,
	logger *slog.Logger,
) Dispatcher {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if publisher == nil {
		publisher = notification.Discard{}
	}
	if dispatchMetrics == nil {
		dispatchMetrics = metrics.NoOpDispatchMetrics{}
	}
	return &dispatcher{
		cfg:         cfg,
		policy:      policy,
		messages:    messages,
		suppression: suppression,
		router:      router,
		limiter:     limiter,
		registry:    registry,
		attempts:    attempts,
		publisher:   publisher,
		metrics:     dispatchMetrics,
		backoff:     service.NewBackoff(),
		logger:      logger,
		wake:        make(chan struct{}, 1),
		now:         time.Now,
	}
}

// Wake signals one idle worker to poll now.
func (d *dispatcher) Wake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run starts the workers and blocks until ctx is done.
func (d *dispatcher) Run(ctx context.Context) error {
	if d.logger != nil {
		d.logger.Info("starting dispatcher",
			slog.String("worker_id", d.cfg.WorkerID),
			slog.Int("workers", d.cfg.Workers),
			slog.Int("batch_size", d.cfg.BatchSize),
			slog.Duration("poll_interval", d.cfg.PollInterval),
		)
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.cfg.Workers; i++ {
		workerID := fmt.Sprintf("%s-%d", d.cfg.WorkerID, i)
		g.Go(func() error {
			return d.work(ctx, workerID)
		})
	}
	err := g.Wait()

	if d.logger != nil {
		d.logger.Info("stopping dispatcher")
	}
	return err
}

func (d *dispatcher) work(ctx context.Context, workerID string) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		case <-d.wake:
		}

		n, err := d.runOnce(ctx, workerID)
		if err != nil && ctx.Err() == nil && d.logger != nil {
			d.logger.Error("dispatch poll failed", slog.String("worker_id", workerID), slog.Any("error", err))
		}

		// a full batch means more rows are probably due
		delay := d.cfg.PollInterval
		if n >= d.cfg.BatchSize {
			delay = 0
		}
		timer.Reset(delay)
	}
}

// RunOnce claims and processes one batch under the configured worker id.
func (d *dispatcher) RunOnce(ctx context.Context) (int, error) {
	return d.runOnce(ctx, d.cfg.WorkerID)
}

func (d *dispatcher) runOnce(ctx context.Context, workerID string) (int, error) {
	msgs, err := d.claim(ctx, workerID)
	if err != nil {
		return len(msgs), err
	}
	if len(msgs) == 0 {
		return 0, nil
	}
	d.process(ctx, msgs)
	return len(msgs), nil
}

// claim locks up to BatchSize due rows. Each tier first takes its weighted quota;
// capacity a tier leaves unused spills over to tiers that still have due rows,
// highest priority first.
func (d *dispatcher) claim(ctx context.Context, workerID string) ([]*messageDomain.Message, error) {
	now := d.now().UTC()
	lock := messageDomain.Lock{WorkerID: workerID, Token: uuid.New(), At: now}
	quotas := service.PlanQuotas(d.policy.Weights(), d.cfg.BatchSize)

	var claimed [messageDomain.PriorityCount]int
	batch := make([]*messageDomain.Message, 0, d.cfg.BatchSize)

	claimTier := func(rank, limit int) error {
		priority := messageDomain.Priorities[rank]
		rows, err := d.messages.ClaimDue(ctx, messageDomain.ClaimRequest{
			Lock:        lock,
			Priority:    priority,
			Now:         now,
			StaleBefore: now.Add(-d.cfg.LockStaleAfter),
			Limit:       limit,
		})
		if err != nil {
			return err
		}
		claimed[rank] += len(rows)
		batch = append(batch, rows...)
		d.metrics.RecordClaimed(ctx, string(priority), len(rows))
		return nil
	}

	for rank, quota := range quotas {
		if quota == 0 {
			continue
		}
		if err := claimTier(rank, quota); err != nil {
			return batch, err
		}
	}

	for rank := range quotas {
		remaining := d.cfg.BatchSize - len(batch)
		if remaining <= 0 {
			break
		}
		// a tier that came up short has nothing more due
		if claimed[rank] < quotas[rank] {
			continue
		}
		if err := claimTier(rank, remaining); err != nil {
			return batch, err
		}
	}

	sort.SliceStable(batch, func(i, j int) bool {
		ri, rj := batch[i].Priority.Rank(), batch[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return batch[i].ScheduledFor.Before(batch[j].ScheduledFor)
	})
	return batch, nil
}

// process gates every claimed row in order, then sends the admitted rows grouped
// by (gateway, template, pool).
func (d *dispatcher) process(ctx context.Context, msgs []*messageDomain.Message) {
	groups := make(map[batchKey][]*admitted)
	order := make([]batchKey, 0)

	for _, msg := range msgs {
		item := d.gate(ctx, msg)
		if item == nil {
			continue
		}
		key := batchKey{gateway: item.route.Gateway, pool: item.route.IPPool}
		if msg.Template != nil {
			key.template = *msg.Template
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], item)
	}

	for _, key := range order {
		d.sendGroup(ctx, groups[key])
	}
}

// gate runs expiry, suppression, routing and rate limiting. Rows that stop at a gate
// are completed here and nil is returned.
func (d *dispatcher) gate(ctx context.Context, msg *messageDomain.Message) *admitted {
	if msg.LockToken == nil {
		return nil
	}
	now := d.now().UTC()
	tier := d.policy.Tier(msg.Priority)
	deadline := msg.Deadline(tier.MaxAge)

	if msg.IsExpired(tier.MaxAge, now) {
		d.stop(ctx, msg, messageDomain.StatusExpired, messageDomain.ReasonExpired, string(messageDomain.StatusExpired))
		return nil
	}

	suppressed, _, err := d.suppression.IsSuppressed(ctx, msg.Channel, msg.RecipientAddress, msg.CommunityID)
	if err != nil {
		if d.logger != nil {
			d.logger.Error("suppression check failed",
				slog.String("message_id", msg.ID.String()), slog.Any("error", err))
		}
		d.reschedule(ctx, msg, capAt(now.Add(d.backoff.Delay(tier, 1)), deadline),
			messageDomain.ReasonSuppressionUnavailable)
		return nil
	}
	if suppressed {
		d.stop(ctx, msg, messageDomain.StatusFailed, messageDomain.ReasonSuppressed, outcomeSuppressed)
		return nil
	}

	route, err := d.router.SelectGateway(msg.Channel, msg)
	if err != nil {
		d.stop(ctx, msg, messageDomain.StatusFailed, messageDomain.ReasonChannelDisabled, string(messageDomain.StatusFailed))
		return nil
	}
	adapter, err := d.registry.Get(route.Gateway)
	if err != nil {
		if d.logger != nil {
			d.logger.Error("no adapter for routed gateway",
				slog.String("message_id", msg.ID.String()), slog.String("gateway", route.Gateway))
		}
		d.stop(ctx, msg, messageDomain.StatusFailed, gateway.CodeUnavailable, string(messageDomain.StatusFailed))
		return nil
	}

	gwPolicy, _ := d.policy.Gateway(route.Gateway)
	decision, err := d.admit(ctx, msg.Channel, route, gwPolicy)
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("rate limit check failed",
				slog.String("message_id", msg.ID.String()), slog.Any("error", err))
		}
		decision.RetryAfter = now.Add(d.backoff.Delay(tier, 1))
	}
	if err != nil || !decision.Admitted {
		d.reschedule(ctx, msg, capAt(decision.RetryAfter, deadline), messageDomain.ReasonRateLimited)
		return nil
	}

	timeout := gwPolicy.Timeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &admitted{
		msg:      msg,
		token:    *msg.LockToken,
		route:    route,
		adapter:  adapter,
		timeout:  timeout,
		deadline: deadline,
	}
}

// admit checks the pool ceiling, when the gateway scopes one for the route's pool,
// and then the gateway ceiling. A pool admission followed by a gateway denial
// keeps the pool slot.
func (d *dispatcher) admit(
	ctx context.Context,
	channel messageDomain.Channel,
	route service.Route,
	gw config.GatewayPolicy,
) (rateLimitDomain.Decision, error) {
	if pool, ok := gw.Pool(route.IPPool); ok {
		key := rateLimitDomain.PoolKey(string(channel), route.Gateway, pool.Name)
		decision, err := d.limiter.TryAdmit(ctx, key, pool.Ceiling)
		if err != nil || !decision.Admitted {
			return decision, err
		}
	}
	return d.limiter.TryAdmit(ctx, rateLimitDomain.GatewayKey(string(channel), route.Gateway), gw.Ceiling)
}

func (d *dispatcher) sendGroup(ctx context.Context, items []*admitted) {
	size := items[0].adapter.MaxBatchSize()
	if size < 1 {
		size = 1
	}
	for start := 0; start < len(items); start += size {
		d.sendChunk(ctx, items[start:min(start+size, len(items))])
	}
}

func outbound(item *admitted) gateway.OutboundMessage {
	msg := item.msg
	return gateway.OutboundMessage{
		MessageID: msg.ID,
		Priority:  msg.Priority,
		Channel:   msg.Channel,
		Address:   msg.RecipientAddress,
		Subject:   msg.Subject,
		Body:      msg.Body,
		Template:  msg.Template,
		Variables: msg.Variables,
		IPPool:    item.route.IPPool,
		Metadata: map[string]string{
			"message_id":   msg.ID.String(),
			"message_type": string(msg.MessageType),
			"priority":     string(msg.Priority),
		},
	}
}

// sendChunk moves the rows to sending and makes one gateway call for them. Earlier
// chunks may have used up a row's deadline, so expiry is checked again first. Batch
// results are resolved per recipient.
func (d *dispatcher) sendChunk(ctx context.Context, chunk []*admitted) {
	now := d.now().UTC()
	ready := make([]*admitted, 0, len(chunk))
	for _, item := range chunk {
		if item.msg.IsExpired(d.policy.Tier(item.msg.Priority).MaxAge, now) {
			d.stop(ctx, item.msg, messageDomain.StatusExpired, messageDomain.ReasonExpired,
				string(messageDomain.StatusExpired))
			continue
		}
		if err := d.messages.MarkSending(ctx, item.msg.ID, item.token, now); err != nil {
			d.logCompleteError(item.msg, err)
			continue
		}
		item.msg.Status = messageDomain.StatusSending
		ready = append(ready, item)
	}
	if len(ready) == 0 {
		return
	}

	adapter := ready[0].adapter
	sendCtx, cancel := context.WithTimeout(ctx, ready[0].timeout)
	start := time.Now()

	results := make([]gateway.Result, len(ready))
	if len(ready) == 1 {
		res, err := adapter.Send(sendCtx, outbound(ready[0]))
		if err != nil && res.Err == nil {
			res.Err = err
		}
		results[0] = res
	} else {
		msgs := make([]gateway.OutboundMessage, len(ready))
		for i, item := range ready {
			msgs[i] = outbound(item)
		}
		res, err := adapter.SendBatch(sendCtx, msgs)
		if err == nil && len(res) != len(ready) {
			err = gateway.Unavailable(adapter.Name(), 0,
				fmt.Sprintf("batch returned %d results for %d messages", len(res), len(ready)))
		}
		if err != nil {
			for i := range results {
				results[i] = gateway.Result{MessageID: ready[i].msg.ID, Err: err}
			}
		} else {
			copy(results, res)
		}
	}
	if sendCtx.Err() != nil {
		for i := range results {
			if results[i].Err != nil {
				results[i].Err = gateway.AsError(adapter.Name(), sendCtx.Err())
			}
		}
	}
	cancel()

	latency := time.Since(start)
	d.metrics.RecordSendLatency(ctx, adapter.Name(), len(ready) > 1, latency)

	for i, item := range ready {
		d.resolve(ctx, item, results[i], latency)
	}
}

// resolve writes the outcome of one gateway call: sent, a retry with backoff for
// transient failures, or failed for permanent failures and exhausted attempts.
func (d *dispatcher) resolve(ctx context.Context, item *admitted, res gateway.Result, latency time.Duration) {
	msg := item.msg
	now := d.now().UTC()
	gw := item.route.Gateway

	c := messageDomain.Completion{
		Gateway:  &gw,
		Attempts: msg.Attempts + 1,
		At:       now,
	}
	if item.route.IPPool != "" {
		pool := item.route.IPPool
		c.IPPool = &pool
	}

	var gwErr *gateway.Error
	if res.Err == nil {
		c.Status = messageDomain.StatusSent
		c.SentAt = &now
		if res.ExternalID != "" {
			externalID := res.ExternalID
			c.ExternalID = &externalID
		}
	} else {
		gwErr = gateway.AsError(gw, res.Err)
		reason := gwErr.Code
		maxAttempts := msg.MaxAttempts
		if maxAttempts < 1 {
			maxAttempts = d.policy.Tier(msg.Priority).RetryAttempts
		}

		switch {
		case !gwErr.Retryable():
			c.Status = messageDomain.StatusFailed
		case c.Attempts >= maxAttempts:
			c.Status = messageDomain.StatusFailed
			reason = messageDomain.ReasonMaxAttemptsExceeded
		default:
			c.Status = messageDomain.StatusRetryScheduled
			next := d.backoff.Next(d.policy.Tier(msg.Priority), c.Attempts, now, item.deadline)
			c.NextRetryAt = &next
		}
		c.LastError = &reason
	}

	if !d.finish(ctx, msg, c, string(c.Status), true) {
		return
	}

	if gwErr != nil && gwErr.Class == gateway.ClassInvalidRecipient {
		return
	}
	attempt := deliveryDomain.Attempt{
		Message:    msg,
		Gateway:    gw,
		IPPool:     item.route.IPPool,
		ExternalID: res.ExternalID,
		Success:    gwErr == nil,
		Latency:    latency,
		At:         now,
	}
	if gwErr != nil {
		attempt.Reason = gwErr.Code
	}
	if err := d.attempts.RecordAttempt(ctx, attempt); err != nil && d.logger != nil {
		d.logger.Error("failed to record attempt",
			slog.String("message_id", msg.ID.String()), slog.Any("error", err))
	}
}

// stop completes a row that never reached a gateway. Attempts are unchanged.
func (d *dispatcher) stop(ctx context.Context, msg *messageDomain.Message, status messageDomain.Status, reason, outcome string) {
	d.finish(ctx, msg, messageDomain.Completion{
		Status:    status,
		Attempts:  msg.Attempts,
		LastError: &reason,
		At:        d.now().UTC(),
	}, outcome, true)
}

// reschedule releases a row to retry at next without consuming an attempt.
func (d *dispatcher) reschedule(ctx context.Context, msg *messageDomain.Message, next time.Time, reason string) {
	d.finish(ctx, msg, messageDomain.Completion{
		Status:      messageDomain.StatusRetryScheduled,
		Attempts:    msg.Attempts,
		LastError:   &reason,
		NextRetryAt: &next,
		At:          d.now().UTC(),
	}, outcomeRateLimited, false)
}

// finish writes the completion under the row's lock token and reports whether it
// was applied.
func (d *dispatcher) finish(
	ctx context.Context,
	msg *messageDomain.Message,
	c messageDomain.Completion,
	outcome string,
	notify bool,
) bool {
	if err := d.messages.Complete(ctx, msg.ID, *msg.LockToken, c); err != nil {
		d.logCompleteError(msg, err)
		return false
	}
	msg.Apply(c)

	gw := ""
	if msg.Gateway != nil {
		gw = *msg.Gateway
	}
	reason := ""
	if c.LastError != nil {
		reason = *c.LastError
	}
	d.metrics.RecordAttempt(ctx, string(msg.Channel), gw, string(msg.Priority), outcome)

	if d.logger != nil {
		d.logger.Info("message attempt finished",
			slog.String("message_id", msg.ID.String()),
			slog.String("priority", string(msg.Priority)),
			slog.String("status", string(c.Status)),
			slog.String("gateway", gw),
			slog.Int("attempts", c.Attempts),
			slog.String("reason", reason),
		)
	}

	if kind, ok := kinds[c.Status]; ok && notify {
		d.publisher.Publish(ctx, notification.ForMessage(kind, msg, reason, c.At))
	}
	return true
}

func (d *dispatcher) logCompleteError(msg *messageDomain.Message, err error) {
	if d.logger == nil {
		return
	}
	if errors.Is(err, messageDomain.ErrLockLost) {
		d.logger.Warn("lock lost, row was reclaimed by another worker",
			slog.String("message_id", msg.ID.String()))
		return
	}
	d.logger.Error("failed to update message",
		slog.String("message_id", msg.ID.String()), slog.Any("error", err))
}

func capAt(t, deadline time.Time) time.Time {
	if !deadline.IsZero() && t.After(deadline) {
		return deadline
	}
	return t
}
