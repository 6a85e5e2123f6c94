package pricing

import (
	"strings"

	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/domain"
)

// Zone is a flat-rate shipping zone measured from the store.
type Zone int

const (
	ZoneRegional Zone = 1
	ZoneStandard Zone = 2
	ZoneNational Zone = 3
)

// FreeShippingThreshold is the subtotal, in cents, at which shipping is free.
const FreeShippingThreshold int64 = 7500

// Rate describes the charge for one zone.
type Rate struct {
	Standard      int64  `json:"standard"`
	Description   string `json:"description"`
	EstimatedDays string `json:"estimatedDays"`
}

// KY borders WV but sits in zone 2 because carrier rates there are higher.
var stateZones = map[string]Zone{
	"WV": ZoneRegional, "VA": ZoneRegional, "MD": ZoneRegional, "PA": ZoneRegional, "OH": ZoneRegional,

	"KY": ZoneStandard, "NC": ZoneStandard, "SC": ZoneStandard, "TN": ZoneStandard,
	"GA": ZoneStandard, "IN": ZoneStandard, "MI": ZoneStandard, "NY": ZoneStandard,
	"NJ": ZoneStandard, "DE": ZoneStandard, "DC": ZoneStandard, "CT": ZoneStandard,
	"MA": ZoneStandard, "RI": ZoneStandard, "VT": ZoneStandard, "NH": ZoneStandard,
	"ME": ZoneStandard, "AL": ZoneStandard, "MS": ZoneStandard, "IL": ZoneStandard,
	"WI": ZoneStandard,
}

var zoneRates = map[Zone]Rate{
	ZoneRegional: {Standard: 899, Description: "Regional shipping", EstimatedDays: "3-5 business days"},
	ZoneStandard: {Standard: 1199, Description: "Standard shipping", EstimatedDays: "5-7 business days"},
	ZoneNational: {Standard: 1499, Description: "Standard shipping", EstimatedDays: "7-10 business days"},
}

// ZoneFor returns the zone for a two-letter state code; unknown states are national.
func ZoneFor(state string) Zone {
	if z, ok := stateZones[strings.ToUpper(strings.TrimSpace(state))]; ok {
		return z
	}
	return ZoneNational
}

// Quote is a computed shipping charge.
type Quote struct {
	Rate
	Cost   int64 `json:"cost"`
	IsFree bool  `json:"isFree"`
}

// Shipping prices delivery to state for the given subtotal.
func Shipping(state string, subtotal int64) Quote {
	rate := zoneRates[ZoneFor(state)]
	if QualifiesForFreeShipping(subtotal) {
		return Quote{Rate: rate, IsFree: true}
	}
	return Quote{Rate: rate, Cost: rate.Standard}
}

// QualifiesForFreeShipping reports whether subtotal meets the threshold.
func QualifiesForFreeShipping(subtotal int64) bool {
	return subtotal >= FreeShippingThreshold
}

// AmountForFreeShipping returns how much more the shopper must spend, never negative.
func AmountForFreeShipping(subtotal int64) int64 {
	if remaining := FreeShippingThreshold - subtotal; remaining > 0 {
		return remaining
	}
	return 0
}

// ShippingDisplay is the label shown next to the shipping line.
func ShippingDisplay(state string, subtotal int64) string {
	if strings.TrimSpace(state) == "" {
		return "Enter address for shipping"
	}
	return FormatShipping(Shipping(state, subtotal).Cost)
}

// Method is a convenience for building destinations from query strings.
func Method(s string) (domain.FulfillmentMethod, bool) {
	switch domain.FulfillmentMethod(strings.ToLower(s)) {
	case domain.FulfillmentShip:
		return domain.FulfillmentShip, true
	case domain.FulfillmentPickup:
		return domain.FulfillmentPickup, true
	}
	return "", false
}
