package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/coffee-store/internal/domain/auth"
	"github.com/xenking/coffee-store/internal/domain/catalog"
	"github.com/xenking/coffee-store/internal/domain/order"
	"github.com/xenking/coffee-store/internal/domain/pricing"
	"github.com/xenking/coffee-store/pkg/httpmiddleware"
)

const testPepper = "pepper"

// --- In-memory repositories ---

type memCatalog struct {
	mu     sync.Mutex
	items  map[catalog.Kind][]catalog.Item
	nextID int64
}

func newMemCatalog(items ...catalog.Item) *memCatalog {
	m := &memCatalog{items: map[catalog.Kind][]catalog.Item{}, nextID: 100}
	for _, it := range items {
		m.items[it.Kind] = append(m.items[it.Kind], it)
	}
	return m
}

func (m *memCatalog) find(kind catalog.Kind, id int64) int {
	return slices.IndexFunc(m.items[kind], func(it catalog.Item) bool { return it.ID == id })
}

func (m *memCatalog) List(_ context.Context, kind catalog.Kind) ([]catalog.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.items[kind]), nil
}

func (m *memCatalog) Get(_ context.Context, kind catalog.Kind, id int64) (*catalog.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.find(kind, id)
	if i < 0 {
		return nil, &catalog.ItemNotFoundError{Kind: kind, ID: id}
	}
	it := m.items[kind][i]
	return &it, nil
}

func (m *memCatalog) GetByIDs(_ context.Context, kind catalog.Kind, ids []int64) ([]catalog.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []catalog.Item
	for _, it := range m.items[kind] {
		if slices.Contains(ids, it.ID) {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memCatalog) Create(_ context.Context, kind catalog.Kind, in catalog.Input) (*catalog.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	it := catalog.Item{ID: m.nextID, Kind: kind, Name: in.Name, Price: in.Price}
	m.items[kind] = append(m.items[kind], it)
	return &it, nil
}

func (m *memCatalog) Update(_ context.Context, kind catalog.Kind, id int64, in catalog.Input) (*catalog.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.find(kind, id)
	if i < 0 {
		return nil, &catalog.ItemNotFoundError{Kind: kind, ID: id}
	}
	m.items[kind][i].Name = in.Name
	m.items[kind][i].Price = in.Price
	it := m.items[kind][i]
	return &it, nil
}

func (m *memCatalog) Delete(_ context.Context, kind catalog.Kind, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.find(kind, id); i >= 0 {
		m.items[kind] = slices.Delete(m.items[kind], i, i+1)
	}
	return nil
}

type memOrders struct {
	mu   sync.Mutex
	byID map[string]order.Order
}

func (m *memOrders) Create(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[o.ID] = *o
	return nil
}

func (m *memOrders) Update(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.byID[o.ID]; !ok || cur.OwnerID != o.OwnerID {
		return order.ErrNotFound
	}
	m.byID[o.ID] = *o
	return nil
}

func (m *memOrders) Get(_ context.Context, ownerID, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok || o.OwnerID != ownerID {
		return nil, order.ErrNotFound
	}
	return &o, nil
}

func (m *memOrders) ListByOwner(_ context.Context, ownerID string) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []order.Order
	for _, o := range m.byID {
		if o.OwnerID == ownerID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memOrders) Delete(_ context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.byID[id]; ok && o.OwnerID == ownerID {
		delete(m.byID, id)
	}
	return nil
}

type memKeys struct {
	byHash map[string]*auth.APIKey
	err    error
}

func (m *memKeys) FindByHash(_ context.Context, hash string) (*auth.APIKey, error) {
	if m.err != nil {
		return nil, m.err
	}
	k, ok := m.byHash[hash]
	if !ok {
		return nil, auth.ErrUnauthenticated
	}
	return k, nil
}

func newKeys(keys map[string]*auth.APIKey) *memKeys {
	m := &memKeys{byHash: map[string]*auth.APIKey{}}
	for raw, k := range keys {
		k.KeyHash = auth.HashKey(testPepper, raw)
		m.byHash[k.KeyHash] = k
	}
	return m
}

// --- Server fixture ---

func item(kind catalog.Kind, id int64, name, price string) catalog.Item {
	return catalog.Item{ID: id, Kind: kind, Name: name, Price: decimal.RequireFromString(price)}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	catalogs := catalog.NewService(newMemCatalog(
		item(catalog.KindDrink, 1, "Black Coffee", "4.00"),
		item(catalog.KindDrink, 2, "Latte", "5.00"),
		item(catalog.KindDrink, 4, "Tea", "3.00"),
		item(catalog.KindTopping, 1, "Milk", "2.00"),
		item(catalog.KindTopping, 3, "Chocolate sauce", "5.00"),
	))

	rules, err := pricing.BuildRules([]pricing.RuleConfig{
		{Kind: pricing.KindPercentageAboveThreshold, Threshold: decimal.RequireFromString("12.00"), Rate: decimal.RequireFromString("0.25")},
		{Kind: pricing.KindFreeCheapestItem, MinCount: 3},
	})
	require.NoError(t, err)
	orders, err := order.NewService(catalogs, pricing.NewSelector(rules...), &memOrders{byID: map[string]order.Order{}})
	require.NoError(t, err)

	authn := NewAuthenticator(newKeys(map[string]*auth.APIKey{
		"alice-key": {ID: "k1", UserID: "alice", Name: "alice"},
		"bob-key":   {ID: "k2", UserID: "bob", Name: "bob"},
		"admin-key": {ID: "k3", UserID: "barista", Name: "admin", Scopes: []string{auth.ScopeCatalogWrite}},
	}), testPepper)

	mux := http.NewServeMux()
	NewHandler(catalogs, orders).Register(mux)
	srv := httptest.NewServer(httpmiddleware.Wrap(mux, authn.Middleware()))
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, key, body string) (int, string) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	require.NoError(t, err)
	if key != "" {
		req.Header.Set(HeaderAPIKey, key)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(raw)
}

// --- Tests ---

func TestCatalogRoutes(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name     string
		method   string
		path     string
		key      string
		body     string
		wantCode int
		wantBody string
	}{
		{
			name:     "list drinks",
			method:   http.MethodGet,
			path:     "/api/v1/drinks",
			wantCode: http.StatusOK,
			wantBody: `[{"id":1,"name":"Black Coffee","price":4.00},{"id":2,"name":"Latte","price":5.00},{"id":4,"name":"Tea","price":3.00}]`,
		},
		{
			name:     "get topping",
			method:   http.MethodGet,
			path:     "/api/v1/toppings/3",
			wantCode: http.StatusOK,
			wantBody: `{"id":3,"name":"Chocolate sauce","price":5.00}`,
		},
		{
			name:     "missing topping",
			method:   http.MethodGet,
			path:     "/api/v1/toppings/9",
			wantCode: http.StatusNotFound,
			wantBody: `{"code":404,"message":"topping 9 not found"}`,
		},
		{
			name:     "invalid id",
			method:   http.MethodGet,
			path:     "/api/v1/drinks/abc",
			wantCode: http.StatusBadRequest,
			wantBody: `{"code":400,"message":"invalid id \"abc\""}`,
		},
		{
			name:     "create without key",
			method:   http.MethodPost,
			path:     "/api/v1/drinks",
			body:     `{"name":"Mocha","price":6}`,
			wantCode: http.StatusUnauthorized,
			wantBody: `{"code":401,"message":"authentication required"}`,
		},
		{
			name:     "create without scope",
			method:   http.MethodPost,
			path:     "/api/v1/drinks",
			key:      "alice-key",
			body:     `{"name":"Mocha","price":6}`,
			wantCode: http.StatusForbidden,
			wantBody: `{"code":403,"message":"forbidden"}`,
		},
		{
			name:     "create",
			method:   http.MethodPost,
			path:     "/api/v1/drinks",
			key:      "admin-key",
			body:     `{"name":" Mocha ","price":"6.5"}`,
			wantCode: http.StatusCreated,
			wantBody: `{"id":101,"name":"Mocha","price":6.50}`,
		},
		{
			name:     "create with too many decimals",
			method:   http.MethodPost,
			path:     "/api/v1/toppings",
			key:      "admin-key",
			body:     `{"name":"Cream","price":1.234}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "create with huge exponent",
			method:   http.MethodPost,
			path:     "/api/v1/toppings",
			key:      "admin-key",
			body:     `{"name":"Gold leaf","price":1e1000000000}`,
			wantCode: http.StatusBadRequest,
			wantBody: `{"code":400,"message":"price: must have at most 10 integer digits"}`,
		},
		{
			name:     "create with malformed body",
			method:   http.MethodPost,
			path:     "/api/v1/toppings",
			key:      "admin-key",
			body:     `{"name":`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "update",
			method:   http.MethodPut,
			path:     "/api/v1/toppings/1",
			key:      "admin-key",
			body:     `{"name":"Oat milk","price":2.50}`,
			wantCode: http.StatusOK,
			wantBody: `{"id":1,"name":"Oat milk","price":2.50}`,
		},
		{
			name:     "update missing",
			method:   http.MethodPut,
			path:     "/api/v1/toppings/77",
			key:      "admin-key",
			body:     `{"name":"Oat milk","price":2.50}`,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "delete is idempotent",
			method:   http.MethodDelete,
			path:     "/api/v1/drinks/77",
			key:      "admin-key",
			wantCode: http.StatusNoContent,
		},
		{
			name:     "unknown key",
			method:   http.MethodGet,
			path:     "/api/v1/drinks",
			key:      "stolen",
			wantCode: http.StatusUnauthorized,
			wantBody: `{"code":401,"message":"invalid api key"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := call(t, srv, tt.method, tt.path, tt.key, tt.body)
			assert.Equal(t, tt.wantCode, code, body)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, body)
			}
		})
	}
}

func TestOrderRoutes_QuoteDiscounts(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantBody string
	}{
		{
			name:     "percentage above threshold",
			body:     `{"items":[{"drinkId":1,"toppingIds":[3,3]}]}`,
			wantCode: http.StatusOK,
			wantBody: `{"originalPrice":14.00,"discount":3.50,"discountRule":"percentage_above_threshold","price":10.50,
				"items":[{"drink":{"id":1,"name":"Black Coffee","price":4.00},
				"toppings":[{"id":3,"name":"Chocolate sauce","price":5.00},{"id":3,"name":"Chocolate sauce","price":5.00}],
				"price":14.00}]}`,
		},
		{
			name:     "free cheapest item",
			body:     `{"items":[{"drinkId":1},{"drinkId":4},{"drinkId":4}]}`,
			wantCode: http.StatusOK,
			wantBody: `{"originalPrice":10.00,"discount":3.00,"discountRule":"free_cheapest_item","price":7.00,
				"items":[{"drink":{"id":1,"name":"Black Coffee","price":4.00},"toppings":[],"price":4.00},
				{"drink":{"id":4,"name":"Tea","price":3.00},"toppings":[],"price":3.00},
				{"drink":{"id":4,"name":"Tea","price":3.00},"toppings":[],"price":3.00}]}`,
		},
		{
			name:     "no discount",
			body:     `{"items":[{"drinkId":2,"toppingIds":[1]}]}`,
			wantCode: http.StatusOK,
			wantBody: `{"price":7.00,"items":[{"drink":{"id":2,"name":"Latte","price":5.00},
				"toppings":[{"id":1,"name":"Milk","price":2.00}],"price":7.00}]}`,
		},
		{
			name:     "missing drink",
			body:     `{"items":[{"drinkId":1},{"drinkId":99}]}`,
			wantCode: http.StatusNotFound,
			wantBody: `{"code":404,"message":"drink 99 not found"}`,
		},
		{
			name:     "empty cart",
			body:     `{"items":[]}`,
			wantCode: http.StatusBadRequest,
			wantBody: `{"code":400,"message":"items: at least one item is required"}`,
		},
		{
			name:     "invalid topping id",
			body:     `{"items":[{"drinkId":1,"toppingIds":[0]}]}`,
			wantCode: http.StatusBadRequest,
			wantBody: `{"code":400,"message":"items[0].toppingIds[0]: must be greater than 0"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := call(t, srv, http.MethodPost, "/api/v1/orders/quote", "alice-key", tt.body)
			assert.Equal(t, tt.wantCode, code, body)
			assert.JSONEq(t, tt.wantBody, body)
		})
	}
}

func TestOrderRoutes_Lifecycle(t *testing.T) {
	srv := newTestServer(t)

	code, _ := call(t, srv, http.MethodPost, "/api/v1/orders", "", `{"items":[{"drinkId":1}]}`)
	require.Equal(t, http.StatusUnauthorized, code)

	code, body := call(t, srv, http.MethodPost, "/api/v1/orders", "alice-key",
		`{"items":[{"drinkId":1,"toppingIds":[3,3]}]}`)
	require.Equal(t, http.StatusCreated, code, body)
	id := extractID(t, body)
	assert.Contains(t, body, `"owner":"alice"`)
	assert.Contains(t, body, `"price":10.50`)

	code, body = call(t, srv, http.MethodGet, "/api/v1/orders/"+id, "alice-key", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Contains(t, body, `"discountRule":"percentage_above_threshold"`)

	code, _ = call(t, srv, http.MethodGet, "/api/v1/orders/"+id, "bob-key", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, body = call(t, srv, http.MethodPut, "/api/v1/orders/"+id, "alice-key",
		`{"items":[{"drinkId":1},{"drinkId":4},{"drinkId":4}]}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Contains(t, body, `"price":7.00`)
	assert.Contains(t, body, `"discountRule":"free_cheapest_item"`)

	code, body = call(t, srv, http.MethodGet, "/api/v1/orders", "alice-key", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, id)

	code, body = call(t, srv, http.MethodGet, "/api/v1/orders", "bob-key", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, body)

	code, _ = call(t, srv, http.MethodDelete, "/api/v1/orders/"+id, "alice-key", "")
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = call(t, srv, http.MethodDelete, "/api/v1/orders/"+id, "alice-key", "")
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = call(t, srv, http.MethodGet, "/api/v1/orders/"+id, "alice-key", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func extractID(t *testing.T, body string) string {
	t.Helper()
	const prefix = `"id":"`
	i := strings.Index(body, prefix)
	require.GreaterOrEqual(t, i, 0, body)
	rest := body[i+len(prefix):]
	j := strings.IndexByte(rest, '"')
	require.Greater(t, j, 0)
	return rest[:j]
}

func TestAuthenticator(t *testing.T) {
	keys := newKeys(map[string]*auth.APIKey{
		"secret": {ID: "k1", UserID: "alice", Scopes: []string{auth.ScopeCatalogWrite}},
	})
	a := NewAuthenticator(keys, testPepper)
	ctx := context.Background()

	id, err := a.Authenticate(ctx, "secret")
	require.NoError(t, err)
	assert.Equal(t, "alice", id.UserID)
	assert.True(t, id.HasScope(auth.ScopeCatalogWrite))

	_, err = a.Authenticate(ctx, "")
	require.ErrorIs(t, err, auth.ErrUnauthenticated)
	_, err = a.Authenticate(ctx, "guess")
	require.ErrorIs(t, err, auth.ErrUnauthenticated)

	wrongPepper := NewAuthenticator(keys, "other")
	_, err = wrongPepper.Authenticate(ctx, "secret")
	require.ErrorIs(t, err, auth.ErrUnauthenticated)

	keys.err = errors.New("connection reset")
	_, err = a.Authenticate(ctx, "secret")
	require.Error(t, err)
	assert.NotErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestAuthenticator_StoredHashMismatch(t *testing.T) {
	keys := &memKeys{byHash: map[string]*auth.APIKey{
		auth.HashKey(testPepper, "secret"): {ID: "k1", UserID: "alice", KeyHash: "tampered"},
	}}
	_, err := NewAuthenticator(keys, testPepper).Authenticate(context.Background(), "secret")
	require.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestDecodeMoney(t *testing.T) {
	for _, tc := range []struct {
		body    string
		want    string
		wantErr bool
	}{
		{body: `{"name":"x","price":4}`, want: "4"},
		{body: `{"name":"x","price":4.25}`, want: "4.25"},
		{body: `{"name":"x","price":"4.25"}`, want: "4.25"},
		{body: `{"name":"x","price":true}`, wantErr: true},
		{body: `{"name":"x","price":"four"}`, wantErr: true},
		{body: `{"name":"x"}`, wantErr: true},
	} {
		in, err := decodeItemInput([]byte(tc.body))
		if tc.wantErr {
			assert.Error(t, err, tc.body)
			continue
		}
		require.NoError(t, err, tc.body)
		assert.True(t, decimal.RequireFromString(tc.want).Equal(in.Price), tc.body)
	}
}
