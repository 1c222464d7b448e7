package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrCartNotFound is returned when the user has no cart.
	ErrCartNotFound = newKindError(ErrNotFound, "cart not found")
	// ErrCartAlreadyExists is returned when creating a second cart for a user.
	ErrCartAlreadyExists = newKindError(ErrConflict, "cart already exists")
	// ErrCartVersionMismatch is returned when a cart changed between load and save.
	ErrCartVersionMismatch = newKindError(ErrConflict, "cart version mismatch")
	// ErrItemNotFound is returned when removing a product that is not in the cart.
	ErrItemNotFound = newKindError(ErrNotFound, "item not found")
	// ErrInvalidItem is returned for an empty product id, a non-positive quantity or a negative price.
	ErrInvalidItem = newKindError(ErrInvalidArgument, "invalid item")
)

// LineItem is one product line in a cart. Price is the unit price captured
// when the product was first added.
type LineItem struct {
	ProductID string          `json:"productId"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// NewLineItem validates the inputs and returns a line with its subtotal set.
func NewLineItem(productID string, quantity int64, price decimal.Decimal) (LineItem, error) {
	switch {
	case productID == "":
		return LineItem{}, fmt.Errorf("%w: empty product id", ErrInvalidItem)
	case quantity < 1:
		return LineItem{}, fmt.Errorf("%w: quantity %d", ErrInvalidItem, quantity)
	case price.IsNegative():
		return LineItem{}, fmt.Errorf("%w: price %s", ErrInvalidItem, price)
	}

	item := LineItem{ProductID: productID, Quantity: quantity, Price: price}
	item.recalculate()

	return item, nil
}

func (it *LineItem) recalculate() {
	it.Subtotal = it.Price.Mul(decimal.NewFromInt(it.Quantity))
}

// Cart is the per-user cart. TotalPrice always equals the sum of the item subtotals.
type Cart struct {
	UserID     string          `json:"userId"`
	Items      []LineItem      `json:"items"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	Version    uint64          `json:"version"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// NewCart builds a cart holding a single line.
func NewCart(userID string, first LineItem) Cart {
	cart := Cart{
		UserID: userID,
		Items:  []LineItem{first},
	}
	cart.Recalculate()

	return cart
}

// IndexOf returns the position of the first line for productID, or -1.
func (c *Cart) IndexOf(productID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}

	return -1
}

// AddItem merges into an existing line or appends a new one.
// A merge keeps the line's stored price; the incoming price only applies to new lines.
// A merge whose quantity would overflow is rejected and leaves the cart unchanged.
func (c *Cart) AddItem(item LineItem) error {
	if item.Quantity < 1 {
		return fmt.Errorf("%w: quantity %d", ErrInvalidItem, item.Quantity)
	}

	if i := c.IndexOf(item.ProductID); i >= 0 {
		if c.Items[i].Quantity > math.MaxInt64-item.Quantity {
			return fmt.Errorf("%w: quantity of %s overflows", ErrInvalidItem, item.ProductID)
		}

		c.Items[i].Quantity += item.Quantity
		c.Items[i].recalculate()
	} else {
		c.Items = append(c.Items, item)
	}

	c.Recalculate()

	return nil
}

// RemoveItem drops the line for productID.
func (c *Cart) RemoveItem(productID string) error {
	i := c.IndexOf(productID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrItemNotFound, productID)
	}

	c.Items = append(c.Items[:i:i], c.Items[i+1:]...)
	c.Recalculate()

	return nil
}

// Recalculate recomputes the total from scratch.
func (c *Cart) Recalculate() {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.Subtotal)
	}

	c.TotalPrice = total
}

// Clone returns a deep copy, so callers can mutate without touching a stored value.
func (c Cart) Clone() Cart {
	c.Items = append([]LineItem(nil), c.Items...)

	return c
}
