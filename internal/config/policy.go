package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	messageDomain "github.com/allisson/courier/internal/message/domain"
	rateLimitDomain "github.com/allisson/courier/internal/ratelimit/domain"
)

// TierPolicy is the deadline and retry budget of one priority tier.
type TierPolicy struct {
	MaxAge        time.Duration
	RetryAttempts int
	QueueName     string
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
	// Weight is the tier's share of each claim batch under weighted round-robin.
	Weight int
}

// ChannelPolicy selects the gateways serving a channel.
type ChannelPolicy struct {
	Enabled         bool
	DefaultGateway  string
	FailoverGateway string
}

// PoolPolicy is an IP pool with its own ceiling on a gateway.
type PoolPolicy struct {
	Name    string
	Ceiling rateLimitDomain.Ceiling
}

// GatewayPolicy configures one gateway adapter.
type GatewayPolicy struct {
	Name          string
	Channel       messageDomain.Channel
	DefaultIPPool string
	BatchSize     int
	Timeout       time.Duration
	Ceiling       rateLimitDomain.Ceiling
	Pools         []PoolPolicy
}

// Pool returns the ceiling of the named pool, if the gateway scopes one.
func (g GatewayPolicy) Pool(name string) (PoolPolicy, bool) {
	for _, p := range g.Pools {
		if p.Name == name {
			return p, true
		}
	}
	return PoolPolicy{}, false
}

// SuppressionPolicy drives bounce and complaint processing.
type SuppressionPolicy struct {
	HardBouncePermanent bool
	HardBounceTTL       time.Duration // used when HardBouncePermanent is false
	SoftBounceThreshold int
	SoftBounceTTL       time.Duration // expiry of suppressions created by soft bounces
	ComplaintPermanent  bool
	ComplaintTTL        time.Duration // used when ComplaintPermanent is false
}

// HealthPolicy decides when a gateway is considered unhealthy.
type HealthPolicy struct {
	MinSuccessRate   float64 // 1h success rate floor, 0..1
	MinSamples       int     // samples required before the success rate is trusted
	FailureThreshold int     // consecutive failures that open the circuit
	OpenTimeout      time.Duration
}

// Policy is the statically typed dispatch configuration. Tiers and channels are
// fixed-size arrays indexed by Priority.Rank and Channel.Index so every tier and
// channel is always configured.
type Policy struct {
	Tiers       [messageDomain.PriorityCount]TierPolicy
	Channels    [messageDomain.ChannelCount]ChannelPolicy
	Gateways    []GatewayPolicy
	Suppression SuppressionPolicy
	Health      HealthPolicy
}

// Tier returns the policy of the given priority. Unknown priorities get the lowest tier.
func (p *Policy) Tier(priority messageDomain.Priority) TierPolicy {
	rank := priority.Rank()
	if rank < 0 {
		rank = messageDomain.PriorityCount - 1
	}
	return p.Tiers[rank]
}

// Channel returns the policy of the given channel; unknown channels are disabled.
func (p *Policy) Channel(channel messageDomain.Channel) ChannelPolicy {
	idx := channel.Index()
	if idx < 0 {
		return ChannelPolicy{}
	}
	return p.Channels[idx]
}

// Gateway looks up a gateway by name.
func (p *Policy) Gateway(name string) (GatewayPolicy, bool) {
	for _, g := range p.Gateways {
		if g.Name == name {
			return g, true
		}
	}
	return GatewayPolicy{}, false
}

// CheckLockWindow fails when a gateway call may outlive staleAfter, which would let
// another worker reclaim a row that is still in flight.
func (p *Policy) CheckLockWindow(staleAfter time.Duration) error {
	for _, g := range p.Gateways {
		if g.Timeout >= staleAfter {
			return fmt.Errorf("gateway %s: timeout %s must be shorter than the lock stale window %s",
				g.Name, g.Timeout, staleAfter)
		}
	}
	return nil
}

// Weights returns the fairness weight of every tier in rank order.
func (p *Policy) Weights() [messageDomain.PriorityCount]int {
	var w [messageDomain.PriorityCount]int
	for i, t := range p.Tiers {
		w[i] = t.Weight
	}
	return w
}

// Validate checks cross references between channels and gateways.
func (p *Policy) Validate() error {
	for i, t := range p.Tiers {
		prio := messageDomain.Priorities[i]
		if t.MaxAge <= 0 {
			return fmt.Errorf("tier %s: max age must be positive", prio)
		}
		if t.RetryAttempts < 1 {
			return fmt.Errorf("tier %s: retry attempts must be at least 1", prio)
		}
		if t.Weight < 1 {
			return fmt.Errorf("tier %s: weight must be at least 1", prio)
		}
	}

	for i, c := range p.Channels {
		channel := messageDomain.Channels[i]
		if !c.Enabled {
			continue
		}
		for _, name := range []string{c.DefaultGateway, c.FailoverGateway} {
			if name == "" {
				continue
			}
			g, ok := p.Gateway(name)
			if !ok {
				return fmt.Errorf("channel %s: unknown gateway %q", channel, name)
			}
			if g.Channel != channel {
				return fmt.Errorf("channel %s: gateway %q serves %s", channel, name, g.Channel)
			}
		}
		if c.DefaultGateway == "" {
			return fmt.Errorf("channel %s: default gateway is required", channel)
		}
	}

	if p.Suppression.SoftBounceThreshold < 1 {
		return fmt.Errorf("suppression: soft bounce threshold must be at least 1")
	}
	return nil
}

// DefaultPolicy returns the built-in dispatch policy.
func DefaultPolicy() *Policy {
	return &Policy{
		Tiers: [messageDomain.PriorityCount]TierPolicy{
			{
				MaxAge: 5 * time.Minute, RetryAttempts: 5, QueueName: "messages-p0",
				BaseBackoff: 2 * time.Second, MaxBackoff: 30 * time.Second, Weight: 16,
			},
			{
				MaxAge: 15 * time.Minute, RetryAttempts: 5, QueueName: "messages-p1",
				BaseBackoff: 5 * time.Second, MaxBackoff: 2 * time.Minute, Weight: 8,
			},
			{
				MaxAge: 6 * time.Hour, RetryAttempts: 4, QueueName: "messages-p2",
				BaseBackoff: 30 * time.Second, MaxBackoff: 15 * time.Minute, Weight: 4,
			},
			{
				MaxAge: 24 * time.Hour, RetryAttempts: 3, QueueName: "messages-p3",
				BaseBackoff: time.Minute, MaxBackoff: time.Hour, Weight: 2,
			},
			{
				MaxAge: 48 * time.Hour, RetryAttempts: 3, QueueName: "messages-p4",
				BaseBackoff: 2 * time.Minute, MaxBackoff: 2 * time.Hour, Weight: 1,
			},
		},
		Channels: [messageDomain.ChannelCount]ChannelPolicy{
			{Enabled: true, DefaultGateway: "postal", FailoverGateway: "ses"},
			{Enabled: true, DefaultGateway: "twilio"},
			{Enabled: true, DefaultGateway: "firebase"},
		},
		Gateways: []GatewayPolicy{
			{
				Name: "postal", Channel: messageDomain.ChannelEmail, DefaultIPPool: "transactional",
				BatchSize: 100, Timeout: 10 * time.Second,
				Ceiling: rateLimitDomain.Ceiling{PerSecond: 50, PerHour: 100000, PerDay: 1000000},
				Pools: []PoolPolicy{
					{Name: "emergency", Ceiling: rateLimitDomain.Ceiling{PerSecond: 20}},
					{Name: "alerts", Ceiling: rateLimitDomain.Ceiling{PerSecond: 20}},
				},
			},
			{
				Name: "ses", Channel: messageDomain.ChannelEmail, DefaultIPPool: "transactional",
				BatchSize: 50, Timeout: 10 * time.Second,
				Ceiling: rateLimitDomain.Ceiling{PerSecond: 14, PerDay: 50000},
			},
			{
				Name: "twilio", Channel: messageDomain.ChannelSMS,
				BatchSize: 1, Timeout: 5 * time.Second,
				Ceiling: rateLimitDomain.Ceiling{PerSecond: 10},
			},
			{
				Name: "firebase", Channel: messageDomain.ChannelPush,
				BatchSize: 500, Timeout: 5 * time.Second,
				Ceiling: rateLimitDomain.Ceiling{PerSecond: 100},
			},
		},
		Suppression: SuppressionPolicy{
			HardBouncePermanent: true,
			HardBounceTTL:       90 * 24 * time.Hour,
			SoftBounceThreshold: 3,
			SoftBounceTTL:       7 * 24 * time.Hour,
			ComplaintPermanent:  true,
			ComplaintTTL:        365 * 24 * time.Hour,
		},
		Health: HealthPolicy{
			MinSuccessRate:   0.80,
			MinSamples:       20,
			FailureThreshold: 5,
			OpenTimeout:      time.Minute,
		},
	}
}

// The raw* types mirror the YAML document. Every field is optional and overrides
// the matching default.

type rawTier struct {
	MaxAgeSeconds      *int    `yaml:"max_age_seconds"`
	RetryAttempts      *int    `yaml:"retry_attempts"`
	QueueName          *string `yaml:"queue_name"`
	BaseBackoffSeconds *int    `yaml:"base_backoff_seconds"`
	MaxBackoffSeconds  *int    `yaml:"max_backoff_seconds"`
	Weight             *int    `yaml:"weight"`
}

type rawChannel struct {
	Enabled         *bool   `yaml:"enabled"`
	DefaultGateway  *string `yaml:"default_gateway"`
	FailoverGateway *string `yaml:"failover_gateway"`
}

type rawPool struct {
	Name    string                  `yaml:"name"`
	Ceiling rateLimitDomain.Ceiling `yaml:",inline"`
}

type rawGateway struct {
	Name           string                  `yaml:"name"`
	Channel        string                  `yaml:"channel"`
	DefaultIPPool  string                  `yaml:"default_ip_pool"`
	BatchSize      int                     `yaml:"batch_size"`
	TimeoutSeconds int                     `yaml:"timeout_seconds"`
	Ceiling        rateLimitDomain.Ceiling `yaml:",inline"`
	Pools          []rawPool               `yaml:"pools"`
}

type rawSuppression struct {
	HardBouncePermanent *bool `yaml:"hard_bounce_permanent"`
	HardBounceTTLDays   *int  `yaml:"hard_bounce_ttl_days"`
	SoftBounceThreshold *int  `yaml:"soft_bounce_threshold"`
	SoftBounceTTLDays   *int  `yaml:"soft_bounce_ttl_days"`
	ComplaintPermanent  *bool `yaml:"complaint_permanent"`
	ComplaintTTLDays    *int  `yaml:"complaint_ttl_days"`
}

type rawHealth struct {
	MinSuccessRate     *float64 `yaml:"min_success_rate"`
	MinSamples         *int     `yaml:"min_samples"`
	FailureThreshold   *int     `yaml:"failure_threshold"`
	OpenTimeoutSeconds *int     `yaml:"open_timeout_seconds"`
}

type rawPolicy struct {
	Tiers       map[string]rawTier    `yaml:"tiers"`
	Channels    map[string]rawChannel `yaml:"channels"`
	Gateways    []rawGateway          `yaml:"gateways"`
	Suppression *rawSuppression       `yaml:"suppression"`
	Health      *rawHealth            `yaml:"health"`
}

// LoadPolicy reads the YAML policy file at path. An empty path returns DefaultPolicy.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	return ParsePolicy(data)
}

// ParsePolicy decodes a YAML policy document over the defaults and validates it.
func ParsePolicy(data []byte) (*Policy, error) {
	var raw rawPolicy
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode policy: %w", err)
	}

	policy := DefaultPolicy()

	for key, t := range raw.Tiers {
		prio, err := messageDomain.ParsePriority(key)
		if err != nil {
			return nil, fmt.Errorf("tiers: %w", err)
		}
		tier := &policy.Tiers[prio.Rank()]
		setSeconds(&tier.MaxAge, t.MaxAgeSeconds)
		setInt(&tier.RetryAttempts, t.RetryAttempts)
		if t.QueueName != nil {
			tier.QueueName = *t.QueueName
		}
		setSeconds(&tier.BaseBackoff, t.BaseBackoffSeconds)
		setSeconds(&tier.MaxBackoff, t.MaxBackoffSeconds)
		setInt(&tier.Weight, t.Weight)
	}

	if len(raw.Gateways) > 0 {
		gateways := make([]GatewayPolicy, 0, len(raw.Gateways))
		for _, g := range raw.Gateways {
			channel, err := messageDomain.ParseChannel(g.Channel)
			if err != nil {
				return nil, fmt.Errorf("gateway %q: %w", g.Name, err)
			}
			if g.Name == "" {
				return nil, fmt.Errorf("gateway name is required")
			}
			pools := make([]PoolPolicy, 0, len(g.Pools))
			for _, p := range g.Pools {
				pools = append(pools, PoolPolicy{Name: p.Name, Ceiling: p.Ceiling})
			}
			batch := g.BatchSize
			if batch < 1 {
				batch = 1
			}
			timeout := time.Duration(g.TimeoutSeconds) * time.Second
			if timeout <= 0 {
				timeout = 10 * time.Second
			}
			gateways = append(gateways, GatewayPolicy{
				Name:          g.Name,
				Channel:       channel,
				DefaultIPPool: g.DefaultIPPool,
				BatchSize:     batch,
				Timeout:       timeout,
				Ceiling:       g.Ceiling,
				Pools:         pools,
			})
		}
		policy.Gateways = gateways
	}

	for key, c := range raw.Channels {
		channel, err := messageDomain.ParseChannel(key)
		if err != nil {
			return nil, fmt.Errorf("channels: %w", err)
		}
		cp := &policy.Channels[channel.Index()]
		if c.Enabled != nil {
			cp.Enabled = *c.Enabled
		}
		if c.DefaultGateway != nil {
			cp.DefaultGateway = *c.DefaultGateway
		}
		if c.FailoverGateway != nil {
			cp.FailoverGateway = *c.FailoverGateway
		}
	}

	if s := raw.Suppression; s != nil {
		setBool(&policy.Suppression.HardBouncePermanent, s.HardBouncePermanent)
		setDays(&policy.Suppression.HardBounceTTL, s.HardBounceTTLDays)
		setInt(&policy.Suppression.SoftBounceThreshold, s.SoftBounceThreshold)
		setDays(&policy.Suppression.SoftBounceTTL, s.SoftBounceTTLDays)
		setBool(&policy.Suppression.ComplaintPermanent, s.ComplaintPermanent)
		setDays(&policy.Suppression.ComplaintTTL, s.ComplaintTTLDays)
	}

	if h := raw.Health; h != nil {
		if h.MinSuccessRate != nil {
			policy.Health.MinSuccessRate = *h.MinSuccessRate
		}
		setInt(&policy.Health.MinSamples, h.MinSamples)
		setInt(&policy.Health.FailureThreshold, h.FailureThreshold)
		setSeconds(&policy.Health.OpenTimeout, h.OpenTimeoutSeconds)
	}

	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return policy, nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setSeconds(dst *time.Duration, v *int) {
	if v != nil {
		*dst = time.Duration(*v) * time.Second
	}
}

func setDays(dst *time.Duration, v *int) {
	if v != nil {
		*dst = time.Duration(*v) * 24 * time.Hour
	}
}
