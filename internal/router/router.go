package router

import (
	"net/http"

	"storefront/internal/handler"
	"storefront/internal/metrics"
	"storefront/internal/middleware"

	"github.com/rs/zerolog"
)

// Handlers groups every HTTP handler the router serves.
type Handlers struct {
	Product  *handler.ProductHandler
	Cart     *handler.CartHandler
	Checkout *handler.CheckoutHandler
	Payment  *handler.PaymentHandler
	Order    *handler.OrderHandler
	Internal *handler.InternalHandler
}

// New creates a new HTTP router with all routes and middleware configured.
func New(
	h Handlers,
	verifier middleware.TokenVerifier,
	m *metrics.Metrics,
	apiKey string,
	logger zerolog.Logger,
) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint (no authentication required)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})
	mux.Handle("GET /metrics", m.Handler())

	// Catalogue is public
	mux.HandleFunc("GET /api/products", h.Product.List)
	mux.HandleFunc("GET /api/products/{id}", h.Product.Get)

	authed := middleware.Authenticate(verifier, logger)
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, authed(fn))
	}

	handle("GET /api/cart", h.Cart.Get)
	handle("DELETE /api/cart", h.Cart.Clear)
	handle("POST /api/cart/items", h.Cart.AddItem)
	handle("PUT /api/cart/items/{productId}", h.Cart.SetQuantity)
	handle("DELETE /api/cart/items/{productId}", h.Cart.RemoveItem)

	handle("POST /api/checkout/quote", h.Checkout.Quote)
	handle("POST /api/checkout/intents", h.Checkout.CreateIntent)
	handle("GET /api/checkout/intents/{id}", h.Checkout.GetIntent)
	handle("POST /api/checkout/intents/{id}/retry", h.Checkout.RetryIntent)

	handle("POST /api/payments/confirm/embedded", h.Payment.ConfirmEmbedded)
	handle("POST /api/payments/confirm/payment-link", h.Payment.ConfirmPaymentLink)
	handle("POST /api/payments/confirm/manual", h.Payment.ConfirmManual)

	handle("GET /api/orders/{id}", h.Order.GetByID)

	// Operator endpoints use the shared API key instead of a user token
	mux.Handle("GET /internal/orders/pending", middleware.APIKeyAuth(apiKey, logger)(http.HandlerFunc(h.Internal.ListPending)))

	// Apply middleware in order: RequestID -> Recovery -> Logging -> Metrics -> CORS
	var handler http.Handler = mux
	handler = middleware.CORS(handler)
	handler = middleware.Metrics(m)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Recovery(logger)(handler)
	handler = middleware.RequestID(handler)

	return handler
}
