// Package catalog holds the drinks and toppings an order can reference.
package catalog

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind distinguishes the two catalog collections.
type Kind string

const (
	// KindDrink is a base drink; every order line has exactly one.
	KindDrink Kind = "drink"
	// KindTopping is an add-on; a line may carry any number of them.
	KindTopping Kind = "topping"
)

// Valid reports whether k is a known catalog kind.
func (k Kind) Valid() bool {
	return k == KindDrink || k == KindTopping
}

var (
	// ErrNotFound is matched by every lookup miss, whatever the kind.
	ErrNotFound = errors.New("catalog item not found")
	// ErrInvalidItem is returned when catalog input fails validation.
	ErrInvalidItem = errors.New("invalid catalog item")
)

// ItemNotFoundError names the missing item. It matches ErrNotFound.
type ItemNotFoundError struct {
	Kind Kind
	ID   int64
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

// Is makes errors.Is(err, ErrNotFound) hold for any missing item.
func (e *ItemNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Item is a priced catalog entry.
type Item struct {
	ID    int64
	Kind  Kind
	Name  string
	Price decimal.Decimal
}

// Input carries the user supplied fields of an item.
type Input struct {
	Name  string
	Price decimal.Decimal
}

// Repository defines persistence for catalog items.
type Repository interface {
	List(ctx context.Context, kind Kind) ([]Item, error)
	Get(ctx context.Context, kind Kind, id int64) (*Item, error)
	GetByIDs(ctx context.Context, kind Kind, ids []int64) ([]Item, error)
	Create(ctx context.Context, kind Kind, in Input) (*Item, error)
	Update(ctx context.Context, kind Kind, id int64, in Input) (*Item, error)
	Delete(ctx context.Context, kind Kind, id int64) error
}
