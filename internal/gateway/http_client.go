package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storefront/internal/model"

	"github.com/rs/zerolog"
)

const defaultTimeout = 10 * time.Second

// httpClient implements Client against the provider's REST API.
type httpClient struct {
	cfg    Config
	http   *http.Client
	logger zerolog.Logger
}

// NewClient creates a new provider client.
func NewClient(cfg Config, logger zerolog.Logger) Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &httpClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.With().Str("component", "gateway").Logger(),
	}
}

func (c *httpClient) KeyID() string {
	return c.cfg.KeyID
}

func (c *httpClient) Currency() string {
	return c.cfg.Currency
}

// CreateOrder creates a provider order for an embedded checkout.
func (c *httpClient) CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderResponse, error) {
	if req.AmountMinor <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %d", req.AmountMinor)
	}
	if req.Currency == "" {
		req.Currency = c.cfg.Currency
	}

	var out OrderResponse
	if err := c.post(ctx, "/v1/orders", req, &out); err != nil {
		return nil, err
	}

	if out.Entity != entityOrder || out.ID == "" {
		c.logger.Error().
			Str("entity", out.Entity).
			Str("receipt", req.Receipt).
			Msg("gateway returned an unrecognised order")
		return nil, fmt.Errorf("%w: %w: expected order entity, got %q", model.ErrUpstreamUnavailable, ErrUnexpectedResponse, out.Entity)
	}

	c.logger.Info().
		Str("gateway_order_id", out.ID).
		Str("receipt", req.Receipt).
		Int64("amount", out.AmountMinor).
		Msg("gateway order created")

	return &out, nil
}

type paymentLinkPayload struct {
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Description string            `json:"description,omitempty"`
	ReferenceID string            `json:"reference_id"`
	Customer    LinkCustomer      `json:"customer"`
	Notify      map[string]bool   `json:"notify"`
	Notes       map[string]string `json:"notes,omitempty"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Method      string            `json:"callback_method,omitempty"`
}

// CreatePaymentLink creates a hosted payment link.
func (c *httpClient) CreatePaymentLink(ctx context.Context, req PaymentLinkRequest) (*PaymentLinkResponse, error) {
	if req.AmountMinor <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %d", req.AmountMinor)
	}
	if req.Currency == "" {
		req.Currency = c.cfg.Currency
	}

	payload := paymentLinkPayload{
		Amount:      req.AmountMinor,
		Currency:    req.Currency,
		Description: req.Description,
		ReferenceID: req.ReferenceID,
		Customer:    req.Customer,
		Notify:      map[string]bool{"sms": req.Customer.Contact != "", "email": req.Customer.Email != ""},
		Notes:       linkNotes(req),
		CallbackURL: req.CallbackURL,
	}
	if payload.CallbackURL != "" {
		payload.Method = "get"
	}

	var out PaymentLinkResponse
	if err := c.post(ctx, "/v1/payment_links", payload, &out); err != nil {
		return nil, err
	}

	if out.Entity != entityPaymentLink || out.ID == "" || out.ShortURL == "" {
		c.logger.Error().
			Str("entity", out.Entity).
			Str("reference_id", req.ReferenceID).
			Msg("gateway returned an unrecognised payment link")
		return nil, fmt.Errorf("%w: %w: expected payment_link entity with short_url", model.ErrUpstreamUnavailable, ErrUnexpectedResponse)
	}

	c.logger.Info().
		Str("payment_link_id", out.ID).
		Str("reference_id", req.ReferenceID).
		Msg("payment link created")

	return &out, nil
}

// VerifyPaymentSignature checks an embedded checkout success callback.
func (c *httpClient) VerifyPaymentSignature(gatewayOrderID, paymentID, signature string) bool {
	return verifySignature(c.cfg.KeySecret, gatewayOrderID, paymentID, signature)
}

func linkNotes(req PaymentLinkRequest) map[string]string {
	notes := make(map[string]string, len(req.Items)+2)
	for i, item := range req.Items {
		notes["item_"+strconv.Itoa(i+1)] = fmt.Sprintf("%s x%d @%d", item.Name, item.Quantity, item.AmountMinor)
	}

	a := req.Address
	parts := make([]string, 0, 7)
	for _, p := range []string{a.Name, a.Line1, a.Line2, a.City, a.State, a.PostalCode, a.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) > 0 {
		notes["shipping_address"] = strings.Join(parts, ", ")
	}
	if a.Phone != "" {
		notes["shipping_phone"] = a.Phone
	}
	return notes
}

func (c *httpClient) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("path", path).Msg("gateway request failed")
		return fmt.Errorf("%w: %w", model.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: failed to read gateway response: %w", model.ErrUpstreamUnavailable, err)
	}

	c.logger.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("gateway response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error().
			Str("path", path).
			Int("status", resp.StatusCode).
			Str("body", truncate(string(respBody), 256)).
			Msg("gateway returned non-2xx status")
		return fmt.Errorf("%w: %s returned status %d", model.ErrUpstreamUnavailable, path, resp.StatusCode)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: %w: %w", model.ErrUpstreamUnavailable, ErrUnexpectedResponse, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
