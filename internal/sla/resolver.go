package sla

import (
	"go.uber.org/zap"

	"github.com/veritrail/sla-monitor/internal/model"
)

// Resolver finds the most specific SLA configuration applicable to an
// order. Configs are passed in per sweep; the resolver holds no state
// beyond its logger.
type Resolver struct {
	logger *zap.Logger
}

// NewResolver creates a new config resolver
func NewResolver(logger *zap.Logger) *Resolver {
	return &Resolver{logger: logger.Named("sla-resolver")}
}

// Resolve returns the most specific active config matching the order, or
// nil when no tier matches (the order is exempt from SLA tracking, not an
// error). Match tiers, in strict order:
//
//	1. client + package + service type
//	2. client + service type, package wildcard
//	3. service type only
//	4. global default (all wildcards)
//
// Within a tier the first config in list order wins, keeping resolution
// deterministic even if operators leave overlapping configs behind.
func (r *Resolver) Resolve(order *model.OrderSLAInfo, configs []*model.SLAConfig) *model.SLAConfig {
	tiers := []func(*model.SLAConfig) bool{
		func(c *model.SLAConfig) bool {
			return matches(c.ClientID, order.ClientID) &&
				matches(c.PackageID, order.PackageID) &&
				matches(c.ServiceType, order.ServiceType)
		},
		func(c *model.SLAConfig) bool {
			return matches(c.ClientID, order.ClientID) &&
				c.PackageID == nil &&
				matches(c.ServiceType, order.ServiceType)
		},
		func(c *model.SLAConfig) bool {
			return c.ClientID == nil && c.PackageID == nil &&
				matches(c.ServiceType, order.ServiceType)
		},
		func(c *model.SLAConfig) bool {
			return c.ClientID == nil && c.PackageID == nil && c.ServiceType == nil
		},
	}

	for tier, match := range tiers {
		for _, config := range configs {
			if !config.IsActive {
				continue
			}
			if match(config) {
				r.logger.Debug("Resolved SLA config",
					zap.String("order_id", order.ID),
					zap.String("config_id", config.ID),
					zap.Int("tier", tier+1))
				return config
			}
		}
	}

	return nil
}

func matches(scope *string, value string) bool {
	return scope != nil && *scope == value
}
