package domain

// Items maps productId to its line. Insertion order is irrelevant.
type Items map[string]LineItem

// Clone returns an independent copy. LineItem holds only value fields, so a
// shallow map copy is enough.
func (it Items) Clone() Items {
	out := make(Items, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

// ItemCount returns the sum of quantities.
func (it Items) ItemCount() int {
	var count int
	for _, item := range it {
		count += item.Quantity
	}
	return count
}

// Subtotal returns the sum of price × quantity in cents.
func (it Items) Subtotal() int64 {
	var total int64
	for _, item := range it {
		total += item.LineTotal()
	}
	return total
}

// ReservationCount returns the number of distinct reserve-hold lines.
func (it Items) ReservationCount() int {
	var n int
	for _, item := range it {
		if item.Reserved() {
			n++
		}
	}
	return n
}

// HasReservedSKU reports whether a reserve-hold line with the given SKU exists.
func (it Items) HasReservedSKU(sku string) bool {
	for _, item := range it {
		if item.Reserved() && item.SKU == sku {
			return true
		}
	}
	return false
}

// Status is the per-cart state machine position.
type Status string

const (
	StatusEmpty     Status = "EMPTY"
	StatusPopulated Status = "POPULATED"
)

// StatusOf derives the state machine position from the items.
func StatusOf(it Items) Status {
	if len(it) == 0 {
		return StatusEmpty
	}
	return StatusPopulated
}

// Result is the outcome of a cart mutation as surfaced to the shopper.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Ok builds a successful Result.
func Ok(message string) Result {
	return Result{Success: true, Message: message}
}

// Reject builds a failed Result.
func Reject(message string) Result {
	return Result{Success: false, Message: message}
}
