// Package integration exercises the HTTP API against PostgreSQL, Redis and a stub
// payment provider.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"storefront/internal/auth"
	"storefront/internal/cache"
	"storefront/internal/cart"
	"storefront/internal/database/databasetest"
	"storefront/internal/gateway"
	"storefront/internal/handler"
	"storefront/internal/metrics"
	"storefront/internal/pricing"
	"storefront/internal/repository"
	"storefront/internal/router"
	"storefront/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	testAPIKey    = "test-api-key"
	testKeyID     = "rzp_test_key"
	testKeySecret = "gateway-test-secret"
)

// FakeGateway is a minimal stand-in for the payment provider's order and link endpoints.
type FakeGateway struct {
	server *httptest.Server
	seq    atomic.Int64
	down   atomic.Bool
}

func newFakeGateway(t *testing.T) *FakeGateway {
	t.Helper()
	g := &FakeGateway{}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/orders", func(w http.ResponseWriter, r *http.Request) {
		if g.down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var req gateway.CreateOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeBody(w, gateway.OrderResponse{
			ID:          fmt.Sprintf("order_%08d", g.seq.Add(1)),
			Entity:      "order",
			AmountMinor: req.AmountMinor,
			Currency:    req.Currency,
			Receipt:     req.Receipt,
			Status:      "created",
		})
	})
	mux.HandleFunc("POST /v1/payment_links", func(w http.ResponseWriter, r *http.Request) {
		if g.down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		id := fmt.Sprintf("plink_%08d", g.seq.Add(1))
		writeBody(w, map[string]any{
			"id":        id,
			"entity":    "payment_link",
			"short_url": "https://pay.test/" + id,
		})
	})

	g.server = httptest.NewServer(mux)
	t.Cleanup(g.server.Close)
	return g
}

// SetDown makes every provider call fail with 503.
func (g *FakeGateway) SetDown(down bool) {
	g.down.Store(down)
}

func writeBody(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// TestServer is the fully wired API.
type TestServer struct {
	Handler        http.Handler
	Pool           *pgxpool.Pool
	Redis          *miniredis.Miniredis
	Gateway        *FakeGateway
	Outbox         repository.OutboxRepository
	Tokens         *auth.Manager
	Reconciliation service.ReconciliationService
}

// SetupTestServer starts the dependencies and wires the API the way cmd/api does.
func SetupTestServer(t *testing.T) *TestServer {
	t.Helper()

	logger := zerolog.Nop()
	pool, _ := databasetest.Setup(t)
	SeedProducts(t, pool)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	fake := newFakeGateway(t)
	gw := gateway.NewClient(gateway.Config{
		BaseURL:   fake.server.URL,
		KeyID:     testKeyID,
		KeySecret: testKeySecret,
		Currency:  "INR",
		Timeout:   2 * time.Second,
	}, logger)

	m := metrics.New()
	tokens := auth.NewManager("integration-secret-integration-secret", "storefront", time.Hour)

	productRepo := repository.NewProductRepository(pool, logger)
	orderRepo := repository.NewOrderRepository(pool, logger)
	outboxRepo := repository.NewOutboxRepository(pool, logger)

	productService := service.NewProductService(productRepo, logger)
	cartService := service.NewCartService(cart.NewRedisPersister(rdb, time.Hour), productService, logger)
	checkoutService := service.NewCheckoutService(cartService, orderRepo, pricing.NewEngine(pricing.DefaultConfig(), nil), gw, m, "https://shop.test/return", logger)
	reconciliationService := service.NewReconciliationService(orderRepo, productRepo, outboxRepo, gw,
		cache.NewRedisLocker(rdb, "confirm", 30*time.Second), cartService, m, logger)

	h := router.New(router.Handlers{
		Product:  handler.NewProductHandler(productService, logger),
		Cart:     handler.NewCartHandler(cartService, logger),
		Checkout: handler.NewCheckoutHandler(checkoutService, logger),
		Payment:  handler.NewPaymentHandler(reconciliationService, logger),
		Order:    handler.NewOrderHandler(reconciliationService, logger),
		Internal: handler.NewInternalHandler(checkoutService, logger),
	}, tokens, m, testAPIKey, logger)

	return &TestServer{
		Handler:        h,
		Pool:           pool,
		Redis:          mr,
		Gateway:        fake,
		Outbox:         outboxRepo,
		Tokens:         tokens,
		Reconciliation: reconciliationService,
	}
}

// Token issues a bearer token for userID.
func (s *TestServer) Token(t *testing.T, userID string) string {
	t.Helper()
	token, err := s.Tokens.Issue(auth.User{ID: userID, Email: userID + "@example.com", Name: "Shopper " + userID})
	require.NoError(t, err)
	return token
}

// Do sends a request with an optional bearer token and JSON body.
func (s *TestServer) Do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Handler.ServeHTTP(w, req)
	return w
}

// Count runs a COUNT(*) query.
func (s *TestServer) Count(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, s.Pool.QueryRow(context.Background(), query, args...).Scan(&n))
	return n
}

// Decode unmarshals the recorded body into v.
func Decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), "body: %s", w.Body.String())
}

// StockOf reads a product's stock.
func (s *TestServer) StockOf(t *testing.T, id string) int {
	t.Helper()
	var stock int
	require.NoError(t, s.Pool.QueryRow(context.Background(), `SELECT stock FROM products WHERE id = $1`, id).Scan(&stock))
	return stock
}

// SeedProducts inserts test product data into the database.
func SeedProducts(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()

	products := []struct {
		id       string
		name     string
		price    string
		category string
		seller   string
		stock    int
	}{
		{"P001", "Desk Lamp", "250.00", "Home", "S-ACME", 5},
		{"P002", "Headphones", "1000.00", "Electronics", "S-SOUND", 2},
		{"P003", "Notebook", "45.50", "Stationery", "S-PAPER", 100},
		{"P004", "Coffee Mug", "120.00", "Home", "S-ACME", 10},
		{"P005", "Backpack", "1450.00", "Accessories", "S-TRAVEL", 0},
	}

	for _, p := range products {
		_, err := pool.Exec(ctx,
			"INSERT INTO products (id, name, price, category, seller_id, stock) VALUES ($1, $2, $3, $4, $5, $6)",
			p.id, p.name, decimal.RequireFromString(p.price), p.category, p.seller, p.stock,
		)
		if err != nil {
			t.Fatalf("failed to seed product %s: %v", p.id, err)
		}
	}
}
