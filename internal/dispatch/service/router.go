// Package service holds the dispatcher's pure decision logic: gateway routing, retry
// backoff and cross-tier claim quotas.
package service

import (
	"github.com/allisson/courier/internal/config"
	"github.com/allisson/courier/internal/errors"
	messageDomain "github.com/allisson/courier/internal/message/domain"
)

// ErrChannelDisabled indicates the channel is switched off in the policy.
var ErrChannelDisabled = errors.Wrap(errors.ErrInvalidInput, "channel disabled")

// HealthChecker answers whether a gateway should keep receiving traffic.
type HealthChecker interface {
	IsHealthy(channel messageDomain.Channel, gateway string) bool
}

// Route is the gateway and IP pool chosen for one attempt.
type Route struct {
	Gateway  string
	IPPool   string
	Failover bool
}

// Router picks the gateway for each attempt from the channel policy and gateway health.
type Router struct {
	policy *config.Policy
	health HealthChecker
}

// NewRouter creates a Router. health may be nil, in which case every gateway is healthy.
func NewRouter(policy *config.Policy, health HealthChecker) *Router {
	return &Router{policy: policy, health: health}
}

func (r *Router) healthy(channel messageDomain.Channel, gateway string) bool {
	return r.health == nil || r.health.IsHealthy(channel, gateway)
}

// SelectGateway returns the channel's default gateway, or its failover while the
// default is unhealthy. Without a failover the default is kept and the attempt fails
// normally. The IP pool is the message override, else the gateway's default pool.
func (r *Router) SelectGateway(channel messageDomain.Channel, msg *messageDomain.Message) (Route, error) {
	cp := r.policy.Channel(channel)
	if !cp.Enabled || cp.DefaultGateway == "" {
		return Route{}, ErrChannelDisabled
	}

	route := Route{Gateway: cp.DefaultGateway}
	if cp.FailoverGateway != "" && !r.healthy(channel, cp.DefaultGateway) {
		route.Gateway = cp.FailoverGateway
		route.Failover = true
	}

	if msg != nil && msg.IPPool != nil && *msg.IPPool != "" {
		route.IPPool = *msg.IPPool
	} else if gw, ok := r.policy.Gateway(route.Gateway); ok {
		route.IPPool = gw.DefaultIPPool
	}
	return route, nil
}
