package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/coffee-store/internal/domain/pricing"
)

// ErrNotFound is returned when an order does not exist or belongs to
// another owner.
var ErrNotFound = errors.New("order not found")

// Order is a persisted, priced order. The embedded pricing.Order holds the
// line snapshots and the final price as computed when the order was last
// placed or updated.
type Order struct {
	ID      string
	OwnerID string
	pricing.Order
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository defines persistence operations for orders. Every read and
// write is scoped to an owner.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	// Update replaces the lines and prices of an existing order. It returns
	// ErrNotFound when no order with o.ID belongs to o.OwnerID.
	Update(ctx context.Context, o *Order) error
	Get(ctx context.Context, ownerID, id string) (*Order, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Order, error)
	// Delete removes the order if it exists. Deleting a missing order is
	// not an error.
	Delete(ctx context.Context, ownerID, id string) error
}
