// Package rules decides, without side effects, whether a proposed cart
// mutation is legal given the current items and the item's tier.
package rules

import (
	"errors"
	"fmt"

	apperrors "github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/errors"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/validator"

	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/domain"
)

// MaxReservationsPerOrder caps distinct reserve-hold lines in one cart.
const MaxReservationsPerOrder = 3

// Shopper-facing rejection messages. The UI shows them verbatim.
const (
	MsgQuantityTooLow       = "Quantity must be at least 1"
	MsgMaxQuantityExceeded  = "Maximum quantity exceeded."
	MsgAlreadyReserved      = "Item already reserved"
	MsgMaxReservationsOrder = "Maximum 3 firearms per order."
)

// CheckContract reports a malformed item. A non-nil error is a caller bug and
// wraps apperrors.ErrContractViolation.
func CheckContract(item domain.LineItem) error {
	if err := validator.Validate(item); err != nil {
		var valErr *validator.ValidationError
		if errors.As(err, &valErr) {
			return apperrors.ContractViolation(valErr.Error())
		}
		return apperrors.ContractViolation(err.Error())
	}
	return nil
}

// ValidateAdd evaluates the add rules in order; the first failing rule wins.
// items must not be mutated by the caller while this runs.
func ValidateAdd(items domain.Items, item domain.LineItem) domain.Result {
	if item.Quantity < 1 {
		return domain.Reject(MsgQuantityTooLow)
	}
	if item.Quantity > item.MaxQuantity {
		return domain.Reject(MsgMaxQuantityExceeded)
	}

	existing, inCart := items[item.ProductID]
	if item.Reserved() || (inCart && existing.Reserved()) {
		if inCart || items.HasReservedSKU(item.SKU) {
			return domain.Reject(MsgAlreadyReserved)
		}
		if items.ReservationCount() >= MaxReservationsPerOrder {
			return domain.Reject(MsgMaxReservationsOrder)
		}
	}

	return domain.Ok(fmt.Sprintf("%s added to cart", item.DisplayName()))
}

// MergedQuantity is the quantity a stackable re-add produces: the sum, clamped
// to the stored line's cap.
func MergedQuantity(existing domain.LineItem, added int) int {
	return existing.ClampQuantity(existing.Quantity + added)
}

// UpdateAction is what an UpdateQuantity call resolves to.
type UpdateAction int

const (
	// UpdateNoop leaves the cart untouched (absent id).
	UpdateNoop UpdateAction = iota
	// UpdateRemove drops the line (n ≤ 0).
	UpdateRemove
	// UpdateSet replaces the quantity with Quantity.
	UpdateSet
)

func (a UpdateAction) String() string {
	switch a {
	case UpdateRemove:
		return "remove"
	case UpdateSet:
		return "set"
	default:
		return "noop"
	}
}

// UpdateDecision is the outcome of ValidateUpdate.
type UpdateDecision struct {
	Action   UpdateAction
	Quantity int
	Clamped  bool
}

// ValidateUpdate resolves updateQuantity(productID, n). Non-positive n is a
// removal, values above the cap are clamped and absent ids are a no-op.
func ValidateUpdate(items domain.Items, productID string, n int) UpdateDecision {
	existing, ok := items[productID]
	if !ok {
		return UpdateDecision{Action: UpdateNoop}
	}
	if n <= 0 {
		return UpdateDecision{Action: UpdateRemove}
	}
	q := existing.ClampQuantity(n)
	return UpdateDecision{Action: UpdateSet, Quantity: q, Clamped: q != n}
}
