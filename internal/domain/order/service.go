package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/coffee-store/internal/domain/auth"
	"github.com/xenking/coffee-store/internal/domain/catalog"
	"github.com/xenking/coffee-store/internal/domain/pricing"
)

const instrumentationName = "github.com/xenking/coffee-store/internal/domain/order"

// CatalogResolver loads the catalog items an order refers to in one batch.
type CatalogResolver interface {
	Resolve(ctx context.Context, drinkIDs, toppingIDs []int64) (*catalog.Snapshot, error)
}

// Option configures a Service.
type Option func(*Service)

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider. Defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service assembles priced orders for the calling owner and manages their
// persistence.
type Service struct {
	catalog  CatalogResolver
	selector *pricing.Selector
	orders   Repository
	now      func() time.Time

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         trace.Tracer
	priced         metric.Int64Counter
	discounts      metric.Int64Counter
}

// NewService creates an order Service.
func NewService(
	resolver CatalogResolver,
	selector *pricing.Selector,
	orders Repository,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		catalog:        resolver,
		selector:       selector,
		orders:         orders,
		now:            time.Now,
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, o := range opts {
		o(s)
	}

	s.tracer = s.tracerProvider.Tracer(instrumentationName)
	meter := s.meterProvider.Meter(instrumentationName)

	var err error
	if s.priced, err = meter.Int64Counter("coffee.orders.priced",
		metric.WithDescription("Orders priced, by operation"),
	); err != nil {
		return nil, errors.Wrap(err, "create priced counter")
	}
	if s.discounts, err = meter.Int64Counter("coffee.orders.discounts",
		metric.WithDescription("Discounts applied, by rule"),
	); err != nil {
		return nil, errors.Wrap(err, "create discounts counter")
	}
	return s, nil
}

// Quote prices lines for the calling owner without persisting anything.
func (s *Service) Quote(ctx context.Context, lines []pricing.LineRequest) (_ pricing.Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Quote")
	defer func() { endSpan(span, rerr) }()

	if _, err := auth.Require(ctx); err != nil {
		return pricing.Order{}, err
	}
	return s.price(ctx, "quote", lines)
}

// Place prices lines and stores the result as a new order of the caller.
func (s *Service) Place(ctx context.Context, lines []pricing.LineRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Place")
	defer func() { endSpan(span, rerr) }()

	id, err := auth.Require(ctx)
	if err != nil {
		return nil, err
	}
	priced, err := s.price(ctx, "place", lines)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	o := &Order{
		ID:        uuid.NewString(),
		OwnerID:   id.UserID,
		Order:     priced,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	span.SetAttributes(attribute.String("order.id", o.ID))

	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("owner", o.OwnerID),
		zap.Stringer("price", o.Price),
	)
	return o, nil
}

// Update re-prices an existing order of the caller from lines and replaces
// its contents. Prices are recomputed from the current catalog.
func (s *Service) Update(ctx context.Context, orderID string, lines []pricing.LineRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Update",
		trace.WithAttributes(attribute.String("order.id", orderID)),
	)
	defer func() { endSpan(span, rerr) }()

	id, err := auth.Require(ctx)
	if err != nil {
		return nil, err
	}
	existing, err := s.get(ctx, id.UserID, orderID)
	if err != nil {
		return nil, err
	}
	priced, err := s.price(ctx, "update", lines)
	if err != nil {
		return nil, err
	}

	o := &Order{
		ID:        existing.ID,
		OwnerID:   existing.OwnerID,
		Order:     priced,
		CreatedAt: existing.CreatedAt,
		UpdatedAt: s.now().UTC(),
	}
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, errors.Wrap(err, "update order")
	}

	zctx.From(ctx).Info("Order updated",
		zap.String("order_id", o.ID),
		zap.String("owner", o.OwnerID),
		zap.Stringer("price", o.Price),
	)
	return o, nil
}

// Get returns an order of the caller.
func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	id, err := auth.Require(ctx)
	if err != nil {
		return nil, err
	}
	return s.get(ctx, id.UserID, orderID)
}

// List returns every order of the caller, newest first.
func (s *Service) List(ctx context.Context) ([]Order, error) {
	id, err := auth.Require(ctx)
	if err != nil {
		return nil, err
	}
	orders, err := s.orders.ListByOwner(ctx, id.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// Delete removes an order of the caller. Deleting an order that does not
// exist succeeds.
func (s *Service) Delete(ctx context.Context, orderID string) error {
	id, err := auth.Require(ctx)
	if err != nil {
		return err
	}
	if uuid.Validate(orderID) != nil {
		return nil
	}
	if err := s.orders.Delete(ctx, id.UserID, orderID); err != nil {
		return errors.Wrap(err, "delete order")
	}
	return nil
}

func (s *Service) get(ctx context.Context, ownerID, orderID string) (*Order, error) {
	if uuid.Validate(orderID) != nil {
		return nil, ErrNotFound
	}
	o, err := s.orders.Get(ctx, ownerID, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

// price validates lines, resolves the catalog items they reference and
// runs them through the pricing pipeline.
func (s *Service) price(ctx context.Context, op string, lines []pricing.LineRequest) (pricing.Order, error) {
	if err := pricing.ValidateLines(lines); err != nil {
		return pricing.Order{}, err
	}

	var drinkIDs, toppingIDs []int64
	for _, l := range lines {
		drinkIDs = append(drinkIDs, l.DrinkID)
		toppingIDs = append(toppingIDs, l.ToppingIDs...)
	}
	snap, err := s.catalog.Resolve(ctx, drinkIDs, toppingIDs)
	if err != nil {
		return pricing.Order{}, errors.Wrap(err, "resolve catalog")
	}

	o, err := pricing.Quote(ctx, snap, s.selector, lines)
	if err != nil {
		return pricing.Order{}, err
	}

	s.priced.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.Bool("discounted", o.Discounted()),
	))
	if o.Discounted() {
		s.discounts.Add(ctx, 1, metric.WithAttributes(attribute.String("rule", o.Rule)))
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int("order.lines", len(o.Lines)),
		attribute.String("order.price", o.Price.StringFixed(pricing.Scale)),
		attribute.String("order.discount_rule", o.Rule),
	)
	return o, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
