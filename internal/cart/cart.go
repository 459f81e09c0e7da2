// Package cart keeps an in-progress sale draft bounded by the stock
// known at read time. The bound is advisory: nothing is reserved, and
// the store re-checks stock when the sale commits.
package cart

import (
	"errors"

	"warungpos/backend/internal/domain"
)

var (
	ErrStockExceeded = errors.New("cart: quantity exceeds available stock")
	ErrNotInCart     = errors.New("cart: product not in cart")
	ErrInactive      = errors.New("cart: product is inactive")
	ErrBadQuantity   = errors.New("cart: quantity must be positive")
)

type Line struct {
	Product  domain.Product
	Quantity int
}

// Cart is not safe for concurrent use. Each terminal session owns one.
type Cart struct {
	lines []Line
	index map[string]int
}

func New() *Cart {
	return &Cart{
		lines: make([]Line, 0, 8),
		index: make(map[string]int, 8),
	}
}

// Add puts quantity more of product into the cart. A rejected add
// leaves the cart exactly as it was.
func (c *Cart) Add(product domain.Product, quantity int) error {
	if quantity < 1 {
		return ErrBadQuantity
	}
	if !product.Active {
		return ErrInactive
	}

	if pos, exists := c.index[product.ID]; exists {
		next := c.lines[pos].Quantity + quantity
		if next > product.Stock {
			return ErrStockExceeded
		}
		c.lines[pos].Quantity = next
		c.lines[pos].Product = product
		return nil
	}

	if quantity > product.Stock {
		return ErrStockExceeded
	}
	c.index[product.ID] = len(c.lines)
	c.lines = append(c.lines, Line{Product: product, Quantity: quantity})
	return nil
}

// SetQuantity replaces the quantity of an existing line. Setting zero
// removes the line.
func (c *Cart) SetQuantity(productID string, quantity int) error {
	pos, exists := c.index[productID]
	if !exists {
		return ErrNotInCart
	}
	if quantity < 0 {
		return ErrBadQuantity
	}
	if quantity == 0 {
		return c.Remove(productID)
	}
	if quantity > c.lines[pos].Product.Stock {
		return ErrStockExceeded
	}
	c.lines[pos].Quantity = quantity
	return nil
}

func (c *Cart) Remove(productID string) error {
	pos, exists := c.index[productID]
	if !exists {
		return ErrNotInCart
	}
	c.lines = append(c.lines[:pos], c.lines[pos+1:]...)
	delete(c.index, productID)
	for i := pos; i < len(c.lines); i++ {
		c.index[c.lines[i].Product.ID] = i
	}
	return nil
}

func (c *Cart) Clear() {
	c.lines = c.lines[:0]
	c.index = make(map[string]int, 8)
}

func (c *Cart) Len() int {
	return len(c.lines)
}

// Lines returns the cart content in insertion order.
func (c *Cart) Lines() []Line {
	result := make([]Line, len(c.lines))
	copy(result, c.lines)
	return result
}

// Subtotal is the sum of quantity times sell price over all lines.
func (c *Cart) Subtotal() int64 {
	var total int64
	for _, line := range c.lines {
		total += int64(line.Quantity) * line.Product.SellPrice
	}
	return total
}

// ToSaleLines converts the cart into the commit request shape.
func (c *Cart) ToSaleLines() []domain.SaleLine {
	result := make([]domain.SaleLine, 0, len(c.lines))
	for _, line := range c.lines {
		result = append(result, domain.SaleLine{
			ProductID: line.Product.ID,
			Quantity:  line.Quantity,
			UnitPrice: line.Product.SellPrice,
		})
	}
	return result
}
