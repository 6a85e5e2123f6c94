package pricing

import (
	"strings"

	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/domain"
)

// StoreState is where pickup orders are taxed.
const StoreState = "WV"

// taxBasisPoints is the WV sales tax rate (6%) in hundredths of a percent.
const taxBasisPoints = 600

// Tax returns sales tax in cents. Pickup is always taxed at the store rate;
// shipped orders are taxed only when delivered in-state.
func Tax(subtotal int64, dest domain.Destination) int64 {
	if subtotal <= 0 {
		return 0
	}
	if dest.Method == domain.FulfillmentShip && !strings.EqualFold(strings.TrimSpace(dest.State), StoreState) {
		return 0
	}
	// Round half up on integer cents.
	return (subtotal*taxBasisPoints + 5000) / 10000
}

// Calculator is the flat-rate shipping and WV tax implementation of
// domain.Calculator.
type Calculator struct{}

// NewCalculator returns the default calculator.
func NewCalculator() Calculator {
	return Calculator{}
}

// ComputeSummary prices items for dest. A nil destination yields subtotal only.
func (Calculator) ComputeSummary(items domain.Items, dest *domain.Destination) domain.Totals {
	t := domain.Totals{Subtotal: items.Subtotal()}
	if dest == nil || len(items) == 0 {
		t.Total = t.Subtotal
		return t
	}

	if dest.Method == domain.FulfillmentShip {
		q := Shipping(dest.State, t.Subtotal)
		t.Shipping = q.Cost
		t.FreeShipping = q.IsFree
	}
	t.Tax = Tax(t.Subtotal, *dest)
	t.Total = t.Subtotal + t.Shipping + t.Tax
	return t
}
