package domain

// FulfillmentType is the tier a line item belongs to. It decides which cart
// rules apply and how the order can be fulfilled.
type FulfillmentType string

const (
	// FulfillmentShipOrPickup items can be shipped or picked up in store.
	FulfillmentShipOrPickup FulfillmentType = "ship_or_pickup"
	// FulfillmentPickupOnly items (ammunition and similar) are pickup only.
	FulfillmentPickupOnly FulfillmentType = "pickup_only"
	// FulfillmentReserveHold items are regulated firearms held for in-store
	// transfer. They never stack and are capped per order.
	FulfillmentReserveHold FulfillmentType = "reserve_hold"
)

// Valid reports whether t is one of the known tiers.
func (t FulfillmentType) Valid() bool {
	switch t {
	case FulfillmentShipOrPickup, FulfillmentPickupOnly, FulfillmentReserveHold:
		return true
	}
	return false
}

// LineItem is one product line in the cart. Prices are integer cents.
type LineItem struct {
	ProductID       string          `json:"productId" validate:"required"`
	SKU             string          `json:"sku" validate:"required"`
	Name            string          `json:"name" validate:"required"`
	ShortName       string          `json:"shortName,omitempty"`
	Price           int64           `json:"price" validate:"gte=0"`
	Quantity        int             `json:"quantity"`
	MaxQuantity     int             `json:"maxQuantity" validate:"gte=1"`
	FulfillmentType FulfillmentType `json:"fulfillmentType" validate:"required,oneof=ship_or_pickup pickup_only reserve_hold"`
	FFLRequired     bool            `json:"fflRequired"`
	AgeRestriction  int             `json:"ageRestriction,omitempty" validate:"omitempty,oneof=18 21"`
	ImageURL        string          `json:"imageUrl,omitempty"`
}

// Reserved reports whether the item follows reserve-hold rules. An item that
// requires an FFL transfer is treated as reserve_hold whatever its tier says.
func (i LineItem) Reserved() bool {
	return i.FulfillmentType == FulfillmentReserveHold || i.FFLRequired
}

// LineTotal returns price × quantity in cents.
func (i LineItem) LineTotal() int64 {
	return i.Price * int64(i.Quantity)
}

// DisplayName is the label used in shopper-facing messages.
func (i LineItem) DisplayName() string {
	if i.ShortName != "" {
		return i.ShortName
	}
	return i.Name
}

// ClampQuantity bounds n to [1, MaxQuantity].
func (i LineItem) ClampQuantity(n int) int {
	if n > i.MaxQuantity {
		n = i.MaxQuantity
	}
	if n < 1 {
		n = 1
	}
	return n
}

// InBounds reports whether the stored quantity satisfies 1 ≤ quantity ≤ maxQuantity.
func (i LineItem) InBounds() bool {
	return i.MaxQuantity >= 1 && i.Quantity >= 1 && i.Quantity <= i.MaxQuantity
}
