package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const DefaultMaxAttempts = 3

// Engine applies cart mutations on top of a Store. Every mutation is a
// read-modify-save cycle guarded by the cart version, retried when another
// writer got there first.
type Engine struct {
	store       Store
	maxAttempts int
	now         func() time.Time
	log         zerolog.Logger
}

type EngineOption func(*Engine)

func WithMaxAttempts(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

func WithLogger(l zerolog.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:       store,
		maxAttempts: DefaultMaxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) GetCart(ctx context.Context, userID string) (*Cart, error) {
	return e.store.FindByUser(ctx, userID)
}

// AddItem creates the cart on first use, appends new products and merges
// repeated ones. A merged line keeps the unit price already stored in the cart.
func (e *Engine) AddItem(ctx context.Context, userID string, in ItemInput) (*Cart, error) {
	if err := validateItem(userID, in); err != nil {
		return nil, err
	}

	return e.withRetry(ctx, userID, func() (*Cart, error) {
		c, err := e.store.FindByUser(ctx, userID)
		if errors.Is(err, ErrNotFound) {
			c, err = e.newCart(userID, in)
			if err != nil {
				return nil, err
			}
			if err := e.store.Create(ctx, c); err != nil {
				return nil, err
			}
			return c, nil
		}
		if err != nil {
			return nil, fmt.Errorf("load cart: %w", err)
		}

		if err := addLine(c, in); err != nil {
			return nil, err
		}
		c.UpdatedAt = e.now()
		if err := e.store.Save(ctx, c); err != nil {
			return nil, err
		}
		return c, nil
	})
}

// RemoveItem drops one product line. A missing cart or line is ErrNotFound and
// nothing is written.
func (e *Engine) RemoveItem(ctx context.Context, userID, productID string) (*Cart, error) {
	return e.withRetry(ctx, userID, func() (*Cart, error) {
		c, err := e.store.FindByUser(ctx, userID)
		if err != nil {
			return nil, err
		}

		idx := c.indexOf(productID)
		if idx < 0 {
			return nil, fmt.Errorf("product %q not in cart: %w", productID, ErrNotFound)
		}

		// An emptied cart is kept with a zero total.
		c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
		c.recalculate()
		c.UpdatedAt = e.now()
		if err := e.store.Save(ctx, c); err != nil {
			return nil, err
		}
		return c, nil
	})
}

func (e *Engine) DeleteCart(ctx context.Context, userID string) (*Cart, error) {
	return e.store.DeleteByUser(ctx, userID)
}

func (e *Engine) withRetry(ctx context.Context, userID string, op func() (*Cart, error)) (*Cart, error) {
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		c, err := op()
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrVersionConflict) && !errors.Is(err, ErrAlreadyExists) {
			return nil, err
		}
		e.log.Debug().
			Str("user_id", userID).
			Int("attempt", attempt).
			Err(err).
			Msg("cart write lost race, retrying")
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	e.log.Warn().Str("user_id", userID).Int("attempts", e.maxAttempts).Msg("cart write gave up")
	return nil, ErrConflict
}

func (e *Engine) newCart(userID string, in ItemInput) (*Cart, error) {
	c := &Cart{
		ID:        uuid.NewString(),
		UserID:    userID,
		UpdatedAt: e.now(),
	}
	if err := addLine(c, in); err != nil {
		return nil, err
	}
	return c, nil
}

// addLine appends or merges in. On error c is left untouched.
func addLine(c *Cart, in ItemInput) error {
	idx := c.indexOf(in.ProductID)
	if idx < 0 {
		sub := in.Price.Mul(decimal.NewFromInt(int64(in.Quantity)))
		if err := checkAmounts(sub, c.TotalPrice.Add(sub)); err != nil {
			return err
		}
		c.Items = append(c.Items, Item{
			ProductID:     in.ProductID,
			Name:          in.Name,
			Price:         in.Price,
			Quantity:      in.Quantity,
			SubTotalPrice: sub,
		})
		c.recalculate()
		return nil
	}

	it := &c.Items[idx]
	merged := int64(it.Quantity) + int64(in.Quantity)
	if merged > MaxQuantity {
		return fmt.Errorf("%w: quantity for %s would exceed %d", ErrInvalidItem, in.ProductID, MaxQuantity)
	}
	qty := decimal.NewFromInt(int64(in.Quantity))
	existing := decimal.NewFromInt(int64(it.Quantity))
	sub := qty.Mul(it.Price).Add(it.Price.Mul(existing))
	if err := checkAmounts(sub, c.TotalPrice.Sub(it.SubTotalPrice).Add(sub)); err != nil {
		return err
	}
	it.SubTotalPrice = sub
	it.Quantity = int(merged)
	c.recalculate()
	return nil
}

func checkAmounts(sub, total decimal.Decimal) error {
	if sub.GreaterThanOrEqual(maxAmount) || total.GreaterThanOrEqual(maxAmount) {
		return fmt.Errorf("%w: cart amount must stay below %s", ErrInvalidItem, maxAmount)
	}
	return nil
}

// ValidPrice reports whether p is non-negative, fits the price column and has
// at most MoneyScale decimal places.
func ValidPrice(p decimal.Decimal) bool {
	return !p.IsNegative() && p.LessThan(maxPrice) && p.Equal(p.Truncate(MoneyScale))
}

func validateItem(userID string, in ItemInput) error {
	switch {
	case userID == "":
		return fmt.Errorf("%w: user id is required", ErrInvalidItem)
	case in.ProductID == "":
		return fmt.Errorf("%w: productId is required", ErrInvalidItem)
	case in.Quantity < 1:
		return fmt.Errorf("%w: quantity must be at least 1", ErrInvalidItem)
	case in.Quantity > MaxQuantity:
		return fmt.Errorf("%w: quantity must be at most %d", ErrInvalidItem, MaxQuantity)
	case in.Price.IsNegative():
		return fmt.Errorf("%w: price must not be negative", ErrInvalidItem)
	case !ValidPrice(in.Price):
		return fmt.Errorf("%w: price must be below %s with at most %d decimals", ErrInvalidItem, maxPrice, MoneyScale)
	}
	return nil
}
