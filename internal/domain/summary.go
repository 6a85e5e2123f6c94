package domain

// FulfillmentMethod is how an order leaves the store.
type FulfillmentMethod string

const (
	FulfillmentShip   FulfillmentMethod = "ship"
	FulfillmentPickup FulfillmentMethod = "pickup"
)

// Destination describes where an order is going. A nil destination means the
// shopper has not chosen yet; shipping and tax are then left at zero.
type Destination struct {
	Method FulfillmentMethod `json:"method"`
	State  string            `json:"state,omitempty"`
}

// Totals is what the shipping/tax collaborator returns.
type Totals struct {
	Subtotal     int64 `json:"subtotal"`
	Shipping     int64 `json:"shipping"`
	Tax          int64 `json:"tax"`
	Total        int64 `json:"total"`
	FreeShipping bool  `json:"freeShipping"`
}

// Calculator computes shipping and tax for a set of items. Implementations
// must be pure.
type Calculator interface {
	ComputeSummary(items Items, dest *Destination) Totals
}

// Summary is the derived, never-stored view of a cart.
type Summary struct {
	ItemCount               int                 `json:"itemCount"`
	Subtotal                int64               `json:"subtotal"`
	HasShippableItems       bool                `json:"hasShippableItems"`
	HasPickupOnlyItems      bool                `json:"hasPickupOnlyItems"`
	HasFirearms             bool                `json:"hasFirearms"`
	RequiresAgeVerification bool                `json:"requiresAgeVerification"`
	FulfillmentOptions      []FulfillmentMethod `json:"fulfillmentOptions"`
	Shipping                int64               `json:"shipping"`
	Tax                     int64               `json:"tax"`
	Total                   int64               `json:"total"`
	FreeShipping            bool                `json:"freeShipping"`
}

// Summarize derives counts and fulfillment flags from items. Shipping and tax
// are left zero and Total equals Subtotal until WithTotals merges them.
func Summarize(it Items) Summary {
	s := Summary{
		ItemCount: it.ItemCount(),
		Subtotal:  it.Subtotal(),
	}
	for _, item := range it {
		switch {
		case item.Reserved():
			s.HasFirearms = true
		case item.FulfillmentType == FulfillmentPickupOnly:
			s.HasPickupOnlyItems = true
		case item.FulfillmentType == FulfillmentShipOrPickup:
			s.HasShippableItems = true
		}
		if item.AgeRestriction != 0 {
			s.RequiresAgeVerification = true
		}
	}

	// Firearms force the whole order to pickup. Pickup-only lines in a mixed
	// cart are split out at checkout, so shipping stays available.
	if s.HasShippableItems && !s.HasFirearms {
		s.FulfillmentOptions = []FulfillmentMethod{FulfillmentShip, FulfillmentPickup}
	} else {
		s.FulfillmentOptions = []FulfillmentMethod{FulfillmentPickup}
	}
	s.Total = s.Subtotal
	return s
}

// WithTotals merges collaborator-computed shipping and tax into the summary.
func (s Summary) WithTotals(t Totals) Summary {
	s.Shipping = t.Shipping
	s.Tax = t.Tax
	s.Total = s.Subtotal + t.Shipping + t.Tax
	s.FreeShipping = t.FreeShipping
	return s
}
