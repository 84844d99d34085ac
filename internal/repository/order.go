package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/coffee-store/internal/domain/order"
)

const (
	orderColumns = `id::text, owner_id, lines, original_price, discount, discount_rule, price, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders
		(id, owner_id, lines, original_price, discount, discount_rule, price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	updateOrderSQL = `UPDATE orders
		SET lines = $3, original_price = $4, discount = $5, discount_rule = $6, price = $7, updated_at = $8
		WHERE id = $1 AND owner_id = $2`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND owner_id = $2`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders WHERE owner_id = $1
		ORDER BY created_at DESC, id`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1 AND owner_id = $2`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. Lines are serialized to the JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	_, err := r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.OwnerID, encodeLines(o.Lines),
		o.OriginalPrice, o.Discount, nullString(o.Rule), o.Price,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "create order %q", o.ID)
	}
	return nil
}

// Update replaces the priced contents of an order owned by o.OwnerID.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	tag, err := r.pool.Exec(ctx, updateOrderSQL,
		o.ID, o.OwnerID, encodeLines(o.Lines),
		o.OriginalPrice, o.Discount, nullString(o.Rule), o.Price,
		o.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "update order %q", o.ID)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// Get returns an order of ownerID.
func (r *OrderRepository) Get(ctx context.Context, ownerID, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id, ownerID)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	return &o, nil
}

// ListByOwner returns the orders of ownerID, newest first.
func (r *OrderRepository) ListByOwner(ctx context.Context, ownerID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return pgx.CollectRows(rows, scanOrder)
}

// Delete removes an order of ownerID if present.
func (r *OrderRepository) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := r.pool.Exec(ctx, deleteOrderSQL, id, ownerID); err != nil {
		return errors.Wrapf(err, "delete order %q", id)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o             order.Order
		lines         []byte
		originalPrice decimal.NullDecimal
		discount      decimal.NullDecimal
		rule          *string
	)
	if err := row.Scan(
		&o.ID, &o.OwnerID, &lines, &originalPrice, &discount, &rule, &o.Price,
		&o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return o, err
	}

	decoded, err := decodeLines(lines)
	if err != nil {
		return o, errors.Wrapf(err, "order %q", o.ID)
	}
	o.Lines = decoded
	o.OriginalPrice = originalPrice
	o.Discount = discount
	if rule != nil {
		o.Rule = *rule
	}
	return o, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
