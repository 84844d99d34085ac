package pricing

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/coffee-store/internal/domain/catalog"
)

// Catalog resolves item ids to their current name and price. Lookups for
// unknown ids return a *catalog.ItemNotFoundError.
type Catalog interface {
	Drink(ctx context.Context, id int64) (catalog.Item, error)
	Topping(ctx context.Context, id int64) (catalog.Item, error)
}

// LinePricer prices single order lines against a Catalog.
type LinePricer struct {
	catalog Catalog
}

// NewLinePricer creates a LinePricer backed by c.
func NewLinePricer(c Catalog) *LinePricer {
	return &LinePricer{catalog: c}
}

// Price resolves the drink and every topping of req and returns the priced
// line. A topping listed twice is priced twice. Lookup errors are returned
// unchanged.
func (p *LinePricer) Price(ctx context.Context, req LineRequest) (Line, error) {
	drink, err := p.catalog.Drink(ctx, req.DrinkID)
	if err != nil {
		return Line{}, err
	}

	price := drink.Price
	toppings := make([]catalog.Item, 0, len(req.ToppingIDs))
	for _, id := range req.ToppingIDs {
		t, err := p.catalog.Topping(ctx, id)
		if err != nil {
			return Line{}, err
		}
		toppings = append(toppings, t)
		price = price.Add(t.Price)
	}

	return Line{
		Drink:    drink,
		Toppings: toppings,
		Price:    price,
	}, nil
}

// PriceAll prices every request in order. The first failure aborts.
func (p *LinePricer) PriceAll(ctx context.Context, reqs []LineRequest) ([]Line, error) {
	lines := make([]Line, 0, len(reqs))
	for _, req := range reqs {
		l, err := p.Price(ctx, req)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, nil
}

// Total sums line prices. Decimal addition is exact, so the result does not
// depend on the order of lines.
func Total(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Price)
	}
	return sum
}

// Quote prices lines, aggregates them and applies the best discount.
func Quote(ctx context.Context, c Catalog, sel *Selector, reqs []LineRequest) (Order, error) {
	if err := ValidateLines(reqs); err != nil {
		return Order{}, err
	}
	lines, err := NewLinePricer(c).PriceAll(ctx, reqs)
	if err != nil {
		return Order{}, err
	}
	o := Order{
		Lines: lines,
		Price: Total(lines),
	}
	return sel.Select(ctx, o), nil
}
