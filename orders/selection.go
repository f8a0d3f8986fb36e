package orders

import (
	"context"
	"strings"

	"github.com/velohost/velohub/constants"
	"github.com/velohost/velohub/db"
	"github.com/velohost/velohub/logger"
)

// SelectProvider resolves which backend should host an order. An
// explicit provider on the order always wins, then an explicit catalog
// tag. Product-name and IP-prefix heuristics are a last resort kept
// for legacy catalog entries that carry no tag; anything without a
// signal falls back to manual fulfillment.
func (svc *ordersService) SelectProvider(ctx context.Context, order *db.Order) string {
	if order.Provider != "" {
		return order.Provider
	}

	if svc.catalogSvc != nil {
		item, err := svc.catalogSvc.GetItem(ctx, order.ProductName)
		if err == nil {
			if tagged := item.Provider(); tagged != "" {
				return tagged
			}
		}
	}

	if inferred := inferProviderFromDescriptor(order); inferred != "" {
		logger.Logger.Warn().
			Str("order_id", order.ID).
			Str("provider", inferred).
			Msg("Provider inferred from product descriptor heuristics, consider tagging the catalog item")
		return inferred
	}

	return constants.PROVIDER_MANUAL
}

func inferProviderFromDescriptor(order *db.Order) string {
	name := strings.ToLower(order.ProductName)

	switch {
	case strings.Contains(name, "skyvirt"), strings.Contains(name, "⚡"):
		return constants.PROVIDER_SKYVIRT
	case strings.Contains(name, "rackvm"), strings.Contains(name, "rack"):
		return constants.PROVIDER_RACKVM
	}

	// legacy stock was pinned to provider subnets
	switch {
	case strings.HasPrefix(order.IPAddress, "103.15."):
		return constants.PROVIDER_SKYVIRT
	case strings.HasPrefix(order.IPAddress, "45.129."):
		return constants.PROVIDER_RACKVM
	}

	return ""
}

// InferOS derives the install image from the product descriptor.
// Defaults to the ubuntu LTS image when the name carries no signal.
func (svc *ordersService) InferOS(order *db.Order) string {
	if order.OS != "" {
		return order.OS
	}

	name := strings.ToLower(order.ProductName)
	switch {
	case strings.Contains(name, "windows"):
		return "windows-2022"
	case strings.Contains(name, "debian"):
		return "debian-12"
	case strings.Contains(name, "centos"):
		return "centos-9"
	case strings.Contains(name, "arch"):
		return "archlinux"
	}
	return "ubuntu-22.04"
}
