package event

import (
	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/domain"
)

// Type is the analytics event name.
type Type string

const (
	TypeAddToCart      Type = "add_to_cart"
	TypeRemoveFromCart Type = "remove_from_cart"
	TypeBeginCheckout  Type = "begin_checkout"
)

// Analytics is one cart analytics event. Which fields are set depends on Type.
type Analytics struct {
	Event     Type   `json:"event"`
	ProductID string `json:"productId,omitempty"`
	SKU       string `json:"sku,omitempty"`
	Quantity  int    `json:"quantity,omitempty"`
	Price     int64  `json:"price,omitempty"`
	ItemCount int    `json:"itemCount,omitempty"`
	Subtotal  int64  `json:"subtotal,omitempty"`
}

// AddToCart describes a successful add of quantity units of item.
func AddToCart(item domain.LineItem, quantity int) Analytics {
	return Analytics{
		Event:     TypeAddToCart,
		ProductID: item.ProductID,
		SKU:       item.SKU,
		Quantity:  quantity,
		Price:     item.Price,
	}
}

// RemoveFromCart describes a line leaving the cart.
func RemoveFromCart(item domain.LineItem) Analytics {
	return Analytics{
		Event:     TypeRemoveFromCart,
		ProductID: item.ProductID,
		SKU:       item.SKU,
	}
}

// BeginCheckout describes the cart handed to checkout.
func BeginCheckout(itemCount int, subtotal int64) Analytics {
	return Analytics{
		Event:     TypeBeginCheckout,
		ItemCount: itemCount,
		Subtotal:  subtotal,
	}
}
