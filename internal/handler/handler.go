// Package handler exposes the catalog and order services over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/xenking/coffee-store/internal/domain/catalog"
	"github.com/xenking/coffee-store/internal/domain/order"
	"github.com/xenking/coffee-store/internal/domain/pricing"
)

// CatalogService is the catalog surface the handler needs.
type CatalogService interface {
	List(ctx context.Context, kind catalog.Kind) ([]catalog.Item, error)
	Get(ctx context.Context, kind catalog.Kind, id int64) (*catalog.Item, error)
	Create(ctx context.Context, kind catalog.Kind, in catalog.Input) (*catalog.Item, error)
	Update(ctx context.Context, kind catalog.Kind, id int64, in catalog.Input) (*catalog.Item, error)
	Delete(ctx context.Context, kind catalog.Kind, id int64) error
}

// OrderService is the order surface the handler needs.
type OrderService interface {
	Quote(ctx context.Context, lines []pricing.LineRequest) (pricing.Order, error)
	Place(ctx context.Context, lines []pricing.LineRequest) (*order.Order, error)
	Update(ctx context.Context, id string, lines []pricing.LineRequest) (*order.Order, error)
	Get(ctx context.Context, id string) (*order.Order, error)
	List(ctx context.Context) ([]order.Order, error)
	Delete(ctx context.Context, id string) error
}

// Handler serves the /api/v1 routes.
type Handler struct {
	catalog CatalogService
	orders  OrderService
}

// NewHandler constructs a Handler with the required domain services.
func NewHandler(catalogs CatalogService, orders OrderService) *Handler {
	return &Handler{catalog: catalogs, orders: orders}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	for _, c := range []struct {
		path string
		kind catalog.Kind
	}{
		{path: "/api/v1/drinks", kind: catalog.KindDrink},
		{path: "/api/v1/toppings", kind: catalog.KindTopping},
	} {
		mux.HandleFunc("GET "+c.path, h.listItems(c.kind))
		mux.HandleFunc("POST "+c.path, h.createItem(c.kind))
		mux.HandleFunc("GET "+c.path+"/{id}", h.getItem(c.kind))
		mux.HandleFunc("PUT "+c.path+"/{id}", h.updateItem(c.kind))
		mux.HandleFunc("DELETE "+c.path+"/{id}", h.deleteItem(c.kind))
	}

	mux.HandleFunc("GET /api/v1/orders", h.listOrders)
	mux.HandleFunc("POST /api/v1/orders", h.placeOrder)
	mux.HandleFunc("POST /api/v1/orders/quote", h.quoteOrder)
	mux.HandleFunc("GET /api/v1/orders/{id}", h.getOrder)
	mux.HandleFunc("PUT /api/v1/orders/{id}", h.updateOrder)
	mux.HandleFunc("DELETE /api/v1/orders/{id}", h.deleteOrder)
}
