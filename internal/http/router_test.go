package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/auth"
	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/events"
	httpapi "github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/http"
	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/metrics"
	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/product"
	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/user"
)

type userRepo struct {
	mu    sync.Mutex
	users map[string]user.User
}

func (r *userRepo) Create(_ context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.Username]; ok {
		return user.ErrDuplicate
	}
	r.users[u.Username] = *u
	return nil
}

func (r *userRepo) FindByUsername(_ context.Context, username string) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[username]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

type productRepo struct {
	mu       sync.Mutex
	products []product.Product
}

func (r *productRepo) List(context.Context) ([]product.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]product.Product(nil), r.products...), nil
}

func (r *productRepo) Get(_ context.Context, id string) (product.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.products {
		if p.ID == id {
			return p, nil
		}
	}
	return product.Product{}, product.ErrNotFound
}

func (r *productRepo) Create(_ context.Context, p *product.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products = append(r.products, *p)
	return nil
}

func (r *productRepo) Update(_ context.Context, p *product.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.products {
		if r.products[i].ID == p.ID {
			r.products[i] = *p
			return nil
		}
	}
	return product.ErrNotFound
}

func (r *productRepo) Delete(_ context.Context, id string) (product.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.products {
		if p.ID == id {
			r.products = append(r.products[:i], r.products[i+1:]...)
			return p, nil
		}
	}
	return product.Product{}, product.ErrNotFound
}

type recordedEvent struct {
	name string
	meta events.EventMeta
	cart cart.Cart
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []recordedEvent
	err  error
}

func (p *recordingPublisher) record(name string, meta events.EventMeta, c *cart.Cart) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, recordedEvent{name: name, meta: meta, cart: *c.Clone()})
	return nil
}

func (p *recordingPublisher) PublishCartUpdated(_ context.Context, meta events.EventMeta, c *cart.Cart) error {
	return p.record("updated", meta, c)
}

func (p *recordingPublisher) PublishCartDeleted(_ context.Context, meta events.EventMeta, c *cart.Cart) error {
	return p.record("deleted", meta, c)
}

type testApp struct {
	handler   http.Handler
	publisher *recordingPublisher
	products  *productRepo
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	tokens, err := auth.NewTokenMaker("0123456789abcdef0123456789abcdef", time.Hour)
	require.NoError(t, err)
	users := user.NewService(&userRepo{users: map[string]user.User{}}, user.WithHashCost(bcrypt.MinCost))

	products := &productRepo{products: []product.Product{
		{ID: "1", Name: "Product 1", Description: "A phone", Price: decimal.NewFromInt(100), Category: "electronics"},
		{ID: "2", Name: "Product 2", Description: "Another phone", Price: decimal.NewFromInt(200), Category: "electronics"},
		{ID: "3", Name: "Product 3", Description: "A novel", Price: decimal.NewFromInt(15), Category: "books"},
	}}
	productSvc, err := product.NewService(products, 16)
	require.NoError(t, err)

	publisher := &recordingPublisher{}
	handler := httpapi.NewRouter(httpapi.Deps{
		Cart:           cart.NewEngine(cart.NewMemoryStore()),
		Products:       productSvc,
		Auth:           auth.NewService(users, tokens, true),
		Events:         publisher,
		Logger:         zerolog.Nop(),
		Metrics:        metrics.NewServerMetrics("test", prometheus.NewRegistry()),
		AllowedOrigins: []string{"*"},
	})
	return &testApp{handler: handler, publisher: publisher, products: products}
}

func (a *testApp) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) signUp(t *testing.T, username string, roles ...user.Role) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"username": username,
		"email":    username + "@test.com",
		"password": "secret",
		"roles":    roles,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "secret")

	rec = a.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": username, "password": "secret"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotEmpty(t, res.AccessToken)
	return res.AccessToken
}

func decodeCart(t *testing.T, rec *httptest.ResponseRecorder) cart.Cart {
	t.Helper()
	var c cart.Cart
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	return c
}

func requireMoney(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, decimal.NewFromInt(want).Equal(got), "want %d, got %s", want, got)
}

func TestCartFlow(t *testing.T) {
	app := newTestApp(t)
	token := app.signUp(t, "shopper", user.RoleUser)

	rec := app.do(t, http.MethodGet, "/api/cart", token, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	for _, item := range []map[string]any{
		{"productId": "p1", "name": "Product 1", "price": 10, "quantity": 2},
		{"productId": "p2", "name": "Product 2", "price": 10, "quantity": 100},
	} {
		rec = app.do(t, http.MethodPost, "/api/cart/items", token, item)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec = app.do(t, http.MethodPost, "/api/cart/items", token, map[string]any{"productId": "p1", "price": 20, "quantity": 10})
	require.Equal(t, http.StatusOK, rec.Code)
	c := decodeCart(t, rec)
	require.Len(t, c.Items, 2)
	assert.Equal(t, 12, c.Items[0].Quantity)
	requireMoney(t, 10, c.Items[0].Price)
	requireMoney(t, 120, c.Items[0].SubTotalPrice)
	requireMoney(t, 1120, c.TotalPrice)
	assert.Contains(t, rec.Body.String(), `"totalPrice":1120`)

	rec = app.do(t, http.MethodDelete, "/api/cart/items/nope", token, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.do(t, http.MethodDelete, "/api/cart/items/p2", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	requireMoney(t, 120, decodeCart(t, rec).TotalPrice)

	rec = app.do(t, http.MethodGet, "/api/cart", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeCart(t, rec).Items, 1)

	rec = app.do(t, http.MethodDelete, "/api/cart", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, c.ID, decodeCart(t, rec).ID)

	rec = app.do(t, http.MethodDelete, "/api/cart", token, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	names := make([]string, 0, len(app.publisher.sent))
	for _, ev := range app.publisher.sent {
		names = append(names, ev.name)
		assert.NotEmpty(t, ev.meta.CorrelationID)
	}
	assert.Equal(t, []string{"updated", "updated", "updated", "updated", "deleted"}, names)
}

func TestCartValidation(t *testing.T) {
	app := newTestApp(t)
	token := app.signUp(t, "shopper", user.RoleUser)

	tests := []struct {
		name string
		body any
		want int
	}{
		{name: "malformed json", body: "{", want: http.StatusBadRequest},
		{name: "zero quantity", body: map[string]any{"productId": "p1", "price": 1, "quantity": 0}, want: http.StatusBadRequest},
		{name: "negative price", body: map[string]any{"productId": "p1", "price": -1, "quantity": 1}, want: http.StatusBadRequest},
		{name: "missing product", body: map[string]any{"price": 1, "quantity": 1}, want: http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := app.do(t, http.MethodPost, "/api/cart/items", token, tc.body)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
	assert.Empty(t, app.publisher.sent)
}

func TestCartPublishFailureStillSucceeds(t *testing.T) {
	app := newTestApp(t)
	token := app.signUp(t, "shopper", user.RoleUser)
	app.publisher.err = errors.New("broker down")

	rec := app.do(t, http.MethodPost, "/api/cart/items", token, map[string]any{"productId": "p1", "price": 5, "quantity": 1})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(t, http.MethodGet, "/api/cart", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthGuards(t *testing.T) {
	app := newTestApp(t)
	userToken := app.signUp(t, "test", user.RoleUser)
	adminToken := app.signUp(t, "admin", user.RoleAdmin)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{name: "cart without token", method: http.MethodGet, path: "/api/cart", want: http.StatusUnauthorized},
		{name: "cart with garbage token", method: http.MethodGet, path: "/api/cart", token: "garbage", want: http.StatusUnauthorized},
		{name: "cart as admin only", method: http.MethodGet, path: "/api/cart", token: adminToken, want: http.StatusForbidden},
		{name: "profile as user", method: http.MethodGet, path: "/api/auth/profile", token: userToken, want: http.StatusOK},
		{name: "profile as admin", method: http.MethodGet, path: "/api/auth/profile", token: adminToken, want: http.StatusOK},
		{name: "dashboard as user", method: http.MethodGet, path: "/api/auth/dashboard", token: userToken, want: http.StatusForbidden},
		{name: "dashboard as admin", method: http.MethodGet, path: "/api/auth/dashboard", token: adminToken, want: http.StatusOK},
		{name: "product create as user", method: http.MethodPost, path: "/api/store/products", token: userToken, want: http.StatusForbidden},
		{name: "product delete anonymous", method: http.MethodDelete, path: "/api/store/products/1", want: http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := app.do(t, tc.method, tc.path, tc.token, nil)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}

	rec := app.do(t, http.MethodGet, "/api/auth/dashboard", adminToken, nil)
	var p auth.Principal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "admin", p.Username)
	assert.Equal(t, []user.Role{user.RoleAdmin}, p.Roles)
}

func TestAuthErrors(t *testing.T) {
	app := newTestApp(t)
	app.signUp(t, "test", user.RoleUser)

	rec := app.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"username": "test", "email": "again@test.com", "password": "x",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "test", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{"username": "x", "email": "bad", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProducts(t *testing.T) {
	app := newTestApp(t)
	adminToken := app.signUp(t, "admin", user.RoleAdmin)

	listIDs := func(t *testing.T, query string) []string {
		t.Helper()
		rec := app.do(t, http.MethodGet, "/api/store/products"+query, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var products []product.Product
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &products))
		ids := make([]string, 0, len(products))
		for _, p := range products {
			ids = append(ids, p.ID)
		}
		return ids
	}

	assert.Equal(t, []string{"1", "2", "3"}, listIDs(t, ""))
	assert.Equal(t, []string{"1"}, listIDs(t, "?category=electronics&search=Product+1"))
	assert.Equal(t, []string{"3"}, listIDs(t, "?category=books"))

	rec := app.do(t, http.MethodGet, "/api/store/products/a1", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/store/products", adminToken, map[string]any{
		"name": "product1", "category": "electronics", "price": 100, "description": "Sample description",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created product.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = app.do(t, http.MethodPut, "/api/store/products/"+created.ID, adminToken, map[string]any{
		"name": "product1", "category": "electronics", "price": 90, "description": "Cheaper",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(t, http.MethodGet, "/api/store/products/"+created.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "Cheaper"))

	rec = app.do(t, http.MethodDelete, "/api/store/products/"+created.ID, adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(t, http.MethodDelete, "/api/store/products/"+created.ID, adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/store/products", adminToken, map[string]any{"price": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = app.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "storefront_test_http_requests_total")
}

func TestCorrelationIDPropagatesToEvents(t *testing.T) {
	app := newTestApp(t)
	token := app.signUp(t, "shopper", user.RoleUser)

	req := httptest.NewRequest(http.MethodPost, "/api/cart/items", strings.NewReader(`{"productId":"p1","price":1,"quantity":1}`))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Correlation-Id", "corr-42")
	req.Header.Set("X-Causation-Id", "cmd-7")
	rec := httptest.NewRecorder()
	app.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "corr-42", rec.Header().Get("X-Correlation-Id"))
	require.Len(t, app.publisher.sent, 1)
	assert.Equal(t, events.EventMeta{CorrelationID: "corr-42", CausationID: "cmd-7"}, app.publisher.sent[0].meta)

	rec = app.do(t, http.MethodGet, "/api/cart", token, nil)
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-Id"))
}
