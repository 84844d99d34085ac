package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// MaxPriceDecimals is the number of fractional digits a catalog price may carry.
	MaxPriceDecimals = 2
	// MaxPriceDigits is the number of integer digits a catalog price may carry,
	// matching the NUMERIC(12,2) price columns.
	MaxPriceDigits = 10

	// maxPriceScale bounds trailing fractional zeros such as 1.5000.
	maxPriceScale = 18
)

// ValidatePrice checks that p is a positive amount that fits the price
// columns. The exponent is bounded before any rescaling, so inputs such as
// 1e1000000000 are rejected without expanding them.
func ValidatePrice(p decimal.Decimal) error {
	if !p.IsPositive() {
		return &InvalidItemError{Field: "price", Reason: "must be greater than 0"}
	}
	exp := int(p.Exponent())
	if exp > 0 && p.NumDigits()+exp > MaxPriceDigits {
		return &InvalidItemError{Field: "price", Reason: "must have at most 10 integer digits"}
	}
	if exp < -maxPriceScale || !p.Equal(p.Truncate(MaxPriceDecimals)) {
		return &InvalidItemError{Field: "price", Reason: "must have at most 2 decimal places"}
	}
	if p.Truncate(0).NumDigits() > MaxPriceDigits {
		return &InvalidItemError{Field: "price", Reason: "must have at most 10 integer digits"}
	}
	return nil
}

// InvalidItemError describes which input field was rejected.
// It matches ErrInvalidItem.
type InvalidItemError struct {
	Field  string
	Reason string
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidItem) hold.
func (e *InvalidItemError) Is(target error) bool {
	return target == ErrInvalidItem
}

// Service manages catalog items and resolves item ids for pricing. Every
// lookup is answered by the repository, so items written by other processes
// are visible immediately.
type Service struct {
	repo Repository
}

// NewService creates a catalog Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns every item of the given kind.
func (s *Service) List(ctx context.Context, kind Kind) ([]Item, error) {
	if !kind.Valid() {
		return nil, &InvalidItemError{Field: "kind", Reason: "unknown catalog kind"}
	}
	items, err := s.repo.List(ctx, kind)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s items", kind)
	}
	return items, nil
}

// Get returns a single item.
func (s *Service) Get(ctx context.Context, kind Kind, id int64) (*Item, error) {
	if !kind.Valid() {
		return nil, &InvalidItemError{Field: "kind", Reason: "unknown catalog kind"}
	}
	return s.repo.Get(ctx, kind, id)
}

// Drink resolves a single drink by id.
func (s *Service) Drink(ctx context.Context, id int64) (Item, error) {
	return s.lookup(ctx, KindDrink, id)
}

// Topping resolves a single topping by id.
func (s *Service) Topping(ctx context.Context, id int64) (Item, error) {
	return s.lookup(ctx, KindTopping, id)
}

func (s *Service) lookup(ctx context.Context, kind Kind, id int64) (Item, error) {
	it, err := s.Get(ctx, kind, id)
	if err != nil {
		return Item{}, err
	}
	return *it, nil
}

// Create validates and stores a new item.
func (s *Service) Create(ctx context.Context, kind Kind, in Input) (*Item, error) {
	if err := validate(kind, in); err != nil {
		return nil, err
	}
	it, err := s.repo.Create(ctx, kind, normalize(in))
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", kind)
	}
	zctx.From(ctx).Debug("Catalog item created",
		zap.String("kind", string(kind)),
		zap.Int64("id", it.ID),
	)
	return it, nil
}

// Update replaces the name and price of an existing item. Orders placed
// earlier keep the prices they were computed with.
func (s *Service) Update(ctx context.Context, kind Kind, id int64, in Input) (*Item, error) {
	if err := validate(kind, in); err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, kind, id, normalize(in))
}

// Delete removes an item. Deleting a missing item is not an error.
func (s *Service) Delete(ctx context.Context, kind Kind, id int64) error {
	if !kind.Valid() {
		return &InvalidItemError{Field: "kind", Reason: "unknown catalog kind"}
	}
	if err := s.repo.Delete(ctx, kind, id); err != nil {
		return errors.Wrapf(err, "delete %s %d", kind, id)
	}
	return nil
}

// Resolve fetches every referenced drink and topping with one query per kind
// and returns them as a Snapshot. Missing ids fail the whole call with an
// ItemNotFoundError naming the first one, drinks checked before toppings.
func (s *Service) Resolve(ctx context.Context, drinkIDs, toppingIDs []int64) (*Snapshot, error) {
	drinks, err := s.resolveKind(ctx, KindDrink, drinkIDs)
	if err != nil {
		return nil, err
	}
	toppings, err := s.resolveKind(ctx, KindTopping, toppingIDs)
	if err != nil {
		return nil, err
	}
	return &Snapshot{drinks: drinks, toppings: toppings}, nil
}

func (s *Service) resolveKind(ctx context.Context, kind Kind, ids []int64) (map[int64]Item, error) {
	unique := dedupe(ids)
	if len(unique) == 0 {
		return map[int64]Item{}, nil
	}
	fetched, err := s.repo.GetByIDs(ctx, kind, unique)
	if err != nil {
		return nil, errors.Wrapf(err, "get %s items", kind)
	}
	byID := make(map[int64]Item, len(fetched))
	for _, it := range fetched {
		byID[it.ID] = it
	}
	for _, id := range unique {
		if _, ok := byID[id]; !ok {
			return nil, &ItemNotFoundError{Kind: kind, ID: id}
		}
	}
	return byID, nil
}

// dedupe returns ids without repetitions, keeping first-seen order.
func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func validate(kind Kind, in Input) error {
	if !kind.Valid() {
		return &InvalidItemError{Field: "kind", Reason: "unknown catalog kind"}
	}
	if strings.TrimSpace(in.Name) == "" {
		return &InvalidItemError{Field: "name", Reason: "must not be blank"}
	}
	return ValidatePrice(in.Price)
}

func normalize(in Input) Input {
	return Input{
		Name:  strings.TrimSpace(in.Name),
		Price: in.Price.Round(MaxPriceDecimals),
	}
}

// Snapshot is an in-memory view of the catalog items one request refers to.
// Prices are frozen at the time Resolve ran.
type Snapshot struct {
	drinks   map[int64]Item
	toppings map[int64]Item
}

// NewSnapshot builds a Snapshot from already loaded items.
func NewSnapshot(items ...Item) *Snapshot {
	s := &Snapshot{drinks: map[int64]Item{}, toppings: map[int64]Item{}}
	for _, it := range items {
		switch it.Kind {
		case KindDrink:
			s.drinks[it.ID] = it
		case KindTopping:
			s.toppings[it.ID] = it
		}
	}
	return s
}

// Drink returns a drink from the snapshot.
func (s *Snapshot) Drink(_ context.Context, id int64) (Item, error) {
	it, ok := s.drinks[id]
	if !ok {
		return Item{}, &ItemNotFoundError{Kind: KindDrink, ID: id}
	}
	return it, nil
}

// Topping returns a topping from the snapshot.
func (s *Snapshot) Topping(_ context.Context, id int64) (Item, error) {
	it, ok := s.toppings[id]
	if !ok {
		return Item{}, &ItemNotFoundError{Kind: KindTopping, ID: id}
	}
	return it, nil
}
