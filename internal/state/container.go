// Package state holds the canonical cart and its atomic transitions. Derived
// views are computed from the items on every read and never stored.
package state

import (
	"sync"

	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/domain"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/rules"
)

// Operation names a container transition.
type Operation string

const (
	OpAdd     Operation = "add"
	OpRemove  Operation = "remove"
	OpUpdate  Operation = "update"
	OpClear   Operation = "clear"
	OpHydrate Operation = "hydrate"
)

// Change is delivered to subscribers after every transition that altered the
// items. Items is a private copy.
type Change struct {
	Op        Operation
	ProductID string
	Items     domain.Items
}

// Listener observes container changes. It must not call back into the
// container's mutators.
type Listener func(Change)

// Container owns the live cart. Nothing outside it holds a mutable reference
// to the items map.
type Container struct {
	mu     sync.RWMutex
	items  domain.Items
	isOpen bool

	subMu     sync.Mutex
	listeners map[int]Listener
	nextID    int
}

// New creates an empty container.
func New() *Container {
	return &Container{
		items:     domain.Items{},
		listeners: make(map[int]Listener),
	}
}

// AddItem validates and applies an add. A contract violation returns an error;
// a rule rejection returns the failed Result and leaves state unchanged.
func (c *Container) AddItem(item domain.LineItem) (domain.Result, error) {
	if err := rules.CheckContract(item); err != nil {
		return domain.Result{}, err
	}

	c.mu.Lock()
	res := rules.ValidateAdd(c.items, item)
	if !res.Success {
		c.mu.Unlock()
		return res, nil
	}
	if existing, ok := c.items[item.ProductID]; ok {
		existing.Quantity = rules.MergedQuantity(existing, item.Quantity)
		c.items[item.ProductID] = existing
	} else {
		c.items[item.ProductID] = item
	}
	snapshot := c.items.Clone()
	c.mu.Unlock()

	c.notify(Change{Op: OpAdd, ProductID: item.ProductID, Items: snapshot})
	return res, nil
}

// RemoveItem drops a line. Removing an absent id is a no-op and reports false.
func (c *Container) RemoveItem(productID string) (domain.LineItem, bool) {
	c.mu.Lock()
	removed, ok := c.items[productID]
	if !ok {
		c.mu.Unlock()
		return domain.LineItem{}, false
	}
	delete(c.items, productID)
	snapshot := c.items.Clone()
	c.mu.Unlock()

	c.notify(Change{Op: OpRemove, ProductID: productID, Items: snapshot})
	return removed, true
}

// UpdateQuantity sets a line's quantity. n ≤ 0 removes the line, values over
// the cap are clamped and absent ids are ignored. The previous line is
// returned for removals so callers can describe what left the cart.
func (c *Container) UpdateQuantity(productID string, n int) (rules.UpdateDecision, domain.LineItem) {
	c.mu.Lock()
	d := rules.ValidateUpdate(c.items, productID, n)
	prev := c.items[productID]
	switch d.Action {
	case rules.UpdateNoop:
		c.mu.Unlock()
		return d, domain.LineItem{}
	case rules.UpdateRemove:
		delete(c.items, productID)
	case rules.UpdateSet:
		if prev.Quantity == d.Quantity {
			c.mu.Unlock()
			return d, prev
		}
		updated := prev
		updated.Quantity = d.Quantity
		c.items[productID] = updated
	}
	snapshot := c.items.Clone()
	c.mu.Unlock()

	op := OpUpdate
	if d.Action == rules.UpdateRemove {
		op = OpRemove
	}
	c.notify(Change{Op: op, ProductID: productID, Items: snapshot})
	return d, prev
}

// ClearCart empties the cart and returns how many lines were dropped.
func (c *Container) ClearCart() int {
	c.mu.Lock()
	n := len(c.items)
	c.items = domain.Items{}
	c.mu.Unlock()

	if n > 0 {
		c.notify(Change{Op: OpClear, Items: domain.Items{}})
	}
	return n
}

// Hydrate replaces the items with a restored snapshot. Lines that violate
// 1 ≤ quantity ≤ maxQuantity are clamped; lines that cannot be made valid
// are dropped. It returns the number of lines dropped.
func (c *Container) Hydrate(items domain.Items) int {
	clean, dropped := Sanitize(items)

	c.mu.Lock()
	c.items = clean
	snapshot := c.items.Clone()
	c.mu.Unlock()

	c.notify(Change{Op: OpHydrate, Items: snapshot})
	return dropped
}

// Sanitize returns a copy of items that satisfies the stored-item invariant.
func Sanitize(items domain.Items) (domain.Items, int) {
	clean := make(domain.Items, len(items))
	dropped := 0
	for key, item := range items {
		if item.ProductID == "" {
			item.ProductID = key
		}
		if key != item.ProductID || rules.CheckContract(item) != nil {
			dropped++
			continue
		}
		item.Quantity = item.ClampQuantity(item.Quantity)
		clean[key] = item
	}
	return clean, dropped
}

// Items returns a read-only copy of the current lines.
func (c *Container) Items() domain.Items {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items.Clone()
}

// Get returns one line by product id.
func (c *Container) Get(productID string) (domain.LineItem, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[productID]
	return item, ok
}

// Len returns the number of distinct lines.
func (c *Container) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// ItemCount returns the sum of quantities.
func (c *Container) ItemCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items.ItemCount()
}

// Subtotal returns the sum of price × quantity in cents.
func (c *Container) Subtotal() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items.Subtotal()
}

// Summary returns the derived summary without shipping or tax.
func (c *Container) Summary() domain.Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.Summarize(c.items)
}

// Status returns EMPTY or POPULATED.
func (c *Container) Status() domain.Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.StatusOf(c.items)
}

// IsOpen reports the transient drawer flag.
func (c *Container) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isOpen
}

// SetOpen sets the drawer flag. It is never persisted and does not notify.
func (c *Container) SetOpen(open bool) {
	c.mu.Lock()
	c.isOpen = open
	c.mu.Unlock()
}

// Toggle flips the drawer flag and returns the new value.
func (c *Container) Toggle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isOpen = !c.isOpen
	return c.isOpen
}

// Subscribe registers fn for future changes and returns an unsubscribe func.
func (c *Container) Subscribe(fn Listener) func() {
	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.listeners, id)
		c.subMu.Unlock()
	}
}

func (c *Container) notify(ch Change) {
	c.subMu.Lock()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.subMu.Unlock()

	for _, l := range listeners {
		l(ch)
	}
}
