package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("not found")

type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type Repository interface {
	List(ctx context.Context) ([]Product, error)
	Get(ctx context.Context, id string) (Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) (Product, error)
}

const (
	productColumns = `id, name, description, price::text, category, created_at, updated_at`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY created_at, id`
	getProductSQL   = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	insertProductSQL = `INSERT INTO products (id, name, description, price, category, created_at, updated_at)
VALUES ($1, $2, $3, $4::numeric, $5, $6, $6)`

	updateProductSQL = `UPDATE products
SET name = $2, description = $3, price = $4::numeric, category = $5, updated_at = $6
WHERE id = $1
RETURNING created_at`

	deleteProductSQL = `DELETE FROM products WHERE id = $1 RETURNING ` + productColumns
)

type PostgresRepository struct {
	pool DBPool
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) List(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, getProductSQL, id))
}

func (r *PostgresRepository) Create(ctx context.Context, p *Product) error {
	_, err := r.pool.Exec(ctx, insertProductSQL,
		p.ID, p.Name, p.Description, p.Price.String(), p.Category, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, p *Product) error {
	err := r.pool.QueryRow(ctx, updateProductSQL,
		p.ID, p.Name, p.Description, p.Price.String(), p.Category, p.UpdatedAt).Scan(&p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) (Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, deleteProductSQL, id))
}

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p     Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Category, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("scan product: %w", err)
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return Product{}, fmt.Errorf("parse price: %w", err)
	}
	p.Price = d
	return p, nil
}
