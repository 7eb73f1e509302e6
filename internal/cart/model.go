package cart

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Money goes over the wire as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Storage limits: quantity is an INT column, unit prices NUMERIC(14,4) and
// subtotals/totals NUMERIC(18,4).
const (
	MaxQuantity = math.MaxInt32
	MoneyScale  = 4
)

var (
	maxPrice  = decimal.New(1, 10)
	maxAmount = decimal.New(1, 14)
)

type Item struct {
	ProductID     string          `json:"productId"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Quantity      int             `json:"quantity"`
	SubTotalPrice decimal.Decimal `json:"subTotalPrice"`
}

type Cart struct {
	ID         string          `json:"cartId"`
	UserID     string          `json:"userId"`
	Items      []Item          `json:"items"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	Version    int64           `json:"version"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// ItemInput is what a caller asks to put in the cart.
type ItemInput struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

func (c *Cart) indexOf(productID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// recalculate rebuilds TotalPrice from the line subtotals.
func (c *Cart) recalculate() {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.SubTotalPrice)
	}
	c.TotalPrice = total
}

// Clone returns a deep copy so stores never share item slices with callers.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	out := *c
	out.Items = make([]Item, len(c.Items))
	copy(out.Items, c.Items)
	return &out
}
