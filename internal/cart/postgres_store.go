package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DBPool matches the methods from *pgxpool.Pool that we use.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

const (
	selectCartSQL = `SELECT id, user_id, total_price::text, version, updated_at FROM carts WHERE user_id = $1`

	selectItemsSQL = `SELECT product_id, name, price::text, quantity, sub_total_price::text
FROM cart_items WHERE cart_id = $1 ORDER BY position`

	insertCartSQL = `INSERT INTO carts (id, user_id, total_price, version, updated_at)
VALUES ($1, $2, $3::numeric, 1, $4)
ON CONFLICT (user_id) DO NOTHING`

	updateCartSQL = `UPDATE carts SET total_price = $3::numeric, version = version + 1, updated_at = $4
WHERE user_id = $1 AND version = $2`

	deleteItemsSQL = `DELETE FROM cart_items WHERE cart_id = $1`

	insertItemSQL = `INSERT INTO cart_items (cart_id, position, product_id, name, price, quantity, sub_total_price)
VALUES ($1, $2, $3, $4, $5::numeric, $6, $7::numeric)`

	deleteCartSQL = `DELETE FROM carts WHERE id = $1`
)

type PostgresStore struct {
	pool DBPool
}

func NewPostgresStore(pool DBPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var snapshotTx = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

// FindByUser reads the cart row and its lines from one snapshot so the total
// always matches the items.
func (s *PostgresStore) FindByUser(ctx context.Context, userID string) (*Cart, error) {
	tx, err := s.pool.BeginTx(ctx, snapshotTx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	c, err := loadCart(ctx, tx, selectCartSQL, userID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) Create(ctx context.Context, c *Cart) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, insertCartSQL, c.ID, c.UserID, c.TotalPrice.String(), c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert cart: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	if err := insertItems(ctx, tx, c); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	c.Version = 1
	return nil
}

// Save replaces the cart's lines, but only if nobody saved since c was read.
func (s *PostgresStore) Save(ctx context.Context, c *Cart) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, updateCartSQL, c.UserID, c.Version, c.TotalPrice.String(), c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update cart: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	if _, err := tx.Exec(ctx, deleteItemsSQL, c.ID); err != nil {
		return fmt.Errorf("clear items: %w", err)
	}
	if err := insertItems(ctx, tx, c); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	c.Version++
	return nil
}

func (s *PostgresStore) DeleteByUser(ctx context.Context, userID string) (*Cart, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	c, err := loadCart(ctx, tx, selectCartSQL+" FOR UPDATE", userID)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, deleteCartSQL, c.ID); err != nil {
		return nil, fmt.Errorf("delete cart: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return c, nil
}

func loadCart(ctx context.Context, q querier, query, userID string) (*Cart, error) {
	var (
		c     Cart
		total string
	)
	err := q.QueryRow(ctx, query, userID).Scan(&c.ID, &c.UserID, &total, &c.Version, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select cart: %w", err)
	}
	if c.TotalPrice, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}

	rows, err := q.Query(ctx, selectItemsSQL, c.ID)
	if err != nil {
		return nil, fmt.Errorf("select items: %w", err)
	}
	defer rows.Close()

	c.Items = make([]Item, 0)
	for rows.Next() {
		var (
			it              Item
			price, subTotal string
		)
		if err := rows.Scan(&it.ProductID, &it.Name, &price, &it.Quantity, &subTotal); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if it.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		if it.SubTotalPrice, err = decimal.NewFromString(subTotal); err != nil {
			return nil, fmt.Errorf("parse subtotal: %w", err)
		}
		c.Items = append(c.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return &c, nil
}

func insertItems(ctx context.Context, tx execer, c *Cart) error {
	for i, it := range c.Items {
		_, err := tx.Exec(ctx, insertItemSQL,
			c.ID, i, it.ProductID, it.Name, it.Price.String(), it.Quantity, it.SubTotalPrice.String())
		if err != nil {
			return fmt.Errorf("insert item %s: %w", it.ProductID, err)
		}
	}
	return nil
}
