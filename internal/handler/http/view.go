package http

import (
	"sort"

	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/domain"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/engine"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/persistence"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/pricing"
)

// LineView is a cart line with its display strings.
type LineView struct {
	domain.LineItem
	LineTotal        int64  `json:"lineTotal"`
	PriceDisplay     string `json:"priceDisplay"`
	LineTotalDisplay string `json:"lineTotalDisplay"`
}

// CartView is the JSON representation of a shopper's cart.
type CartView struct {
	SessionID       string           `json:"sessionId"`
	Status          domain.Status    `json:"status"`
	Items           []LineView       `json:"items"`
	ItemCount       int              `json:"itemCount"`
	Subtotal        int64            `json:"subtotal"`
	SubtotalDisplay string           `json:"subtotalDisplay"`
	IsOpen          bool             `json:"isOpen"`
	Persistence     persistence.Mode `json:"persistence"`
	RestoreFailed   bool             `json:"restoreFailed"`
	Summary         domain.Summary   `json:"summary"`
}

// MutationResponse pairs the shopper-facing message with the resulting cart.
type MutationResponse struct {
	Message string   `json:"message,omitempty"`
	Cart    CartView `json:"cart"`
}

// SummaryView is the cart summary with display strings for the drawer footer.
type SummaryView struct {
	domain.Summary
	Destination           *domain.Destination `json:"destination,omitempty"`
	SubtotalDisplay       string              `json:"subtotalDisplay"`
	ShippingDisplay       string              `json:"shippingDisplay"`
	TaxDisplay            string              `json:"taxDisplay"`
	TotalDisplay          string              `json:"totalDisplay"`
	AmountForFreeShipping int64               `json:"amountForFreeShipping"`
}

// DrawerView reports the drawer state after a toggle.
type DrawerView struct {
	IsOpen bool `json:"isOpen"`
}

func newCartView(e *engine.Engine) CartView {
	items := e.Items()
	lines := make([]LineView, 0, len(items))
	for _, it := range items {
		lines = append(lines, LineView{
			LineItem:         it,
			LineTotal:        it.LineTotal(),
			PriceDisplay:     pricing.FormatPrice(it.Price),
			LineTotalDisplay: pricing.FormatPrice(it.LineTotal()),
		})
	}
	// Map iteration order is random; responses should be stable.
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	subtotal := items.Subtotal()
	return CartView{
		SessionID:       e.SessionID(),
		Status:          domain.StatusOf(items),
		Items:           lines,
		ItemCount:       items.ItemCount(),
		Subtotal:        subtotal,
		SubtotalDisplay: pricing.FormatPrice(subtotal),
		IsOpen:          e.IsOpen(),
		Persistence:     e.PersistenceMode(),
		RestoreFailed:   e.RestoreFailed(),
		Summary:         domain.Summarize(items),
	}
}

func newSummaryView(s domain.Summary, dest *domain.Destination) SummaryView {
	v := SummaryView{
		Summary:               s,
		Destination:           dest,
		SubtotalDisplay:       pricing.FormatPrice(s.Subtotal),
		TaxDisplay:            pricing.FormatPrice(s.Tax),
		TotalDisplay:          pricing.FormatPrice(s.Total),
		AmountForFreeShipping: pricing.AmountForFreeShipping(s.Subtotal),
	}
	switch {
	case dest == nil:
		v.ShippingDisplay = pricing.ShippingDisplay("", s.Subtotal)
	case dest.Method == domain.FulfillmentPickup:
		v.ShippingDisplay = pricing.FormatShipping(0)
	default:
		v.ShippingDisplay = pricing.ShippingDisplay(dest.State, s.Subtotal)
	}
	return v
}
