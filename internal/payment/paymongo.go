package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultBaseURL = "https://api.paymongo.com"
	Currency       = "PHP"

	genericMessage = "Failed to create checkout session"
)

var (
	ErrGateway       = errors.New("payment gateway error")
	ErrNotConfigured = errors.New("paymongo secret key is not configured")
)

// GatewayError is a failed checkout session request. Error returns the
// gateway's own detail when it sent one.
type GatewayError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return genericMessage
}

func (e *GatewayError) Is(target error) bool { return target == ErrGateway }

func (e *GatewayError) Unwrap() error { return e.Err }

// LineItem is one frozen cart line sent for payment
type LineItem struct {
	ID                 string
	Name               string
	Price              decimal.Decimal
	VariationPrice     *decimal.Decimal
	Quantity           int
	Thumbnail          string
	SelectedVariations map[string]string
}

func (li LineItem) unitPrice() decimal.Decimal {
	if li.VariationPrice != nil {
		return *li.VariationPrice
	}
	return li.Price
}

type Request struct {
	OrderID string
	Amount  decimal.Decimal
	Items   []LineItem
}

type Session struct {
	ID          string
	CheckoutURL string
}

type Config struct {
	SecretKey     string
	BaseURL       string
	PublicBaseURL string
	HTTPClient    *http.Client
}

type PayMongoClient struct {
	secretKey     string
	baseURL       string
	publicBaseURL string
	client        *http.Client
}

func NewPayMongoClient(cfg Config) *PayMongoClient {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &PayMongoClient{
		secretKey:     cfg.SecretKey,
		baseURL:       strings.TrimRight(base, "/"),
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		client:        hc,
	}
}

type checkoutSessionRequest struct {
	Data struct {
		Attributes checkoutAttributes `json:"attributes"`
	} `json:"data"`
}

type checkoutAttributes struct {
	SendEmailReceipt   bool              `json:"send_email_receipt"`
	ShowDescription    bool              `json:"show_description"`
	ShowLineItems      bool              `json:"show_line_items"`
	PaymentMethodTypes []string          `json:"payment_method_types"`
	LineItems          []lineItem        `json:"line_items"`
	PaymentIntentData  paymentIntentData `json:"payment_intent_data"`
	ReferenceNumber    string            `json:"reference_number"`
	SuccessURL         string            `json:"success_url"`
	CancelURL          string            `json:"cancel_url"`
	Description        string            `json:"description"`
	Billing            *struct{}         `json:"billing"`
}

type lineItem struct {
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

type paymentIntentData struct {
	CaptureType string `json:"capture_type"`
}

type checkoutSessionResponse struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			CheckoutURL string `json:"checkout_url"`
		} `json:"attributes"`
	} `json:"data"`
}

type errorResponse struct {
	Errors []struct {
		Code   string `json:"code"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// CreateCheckoutSession opens a hosted checkout page for the order
func (c *PayMongoClient) CreateCheckoutSession(ctx context.Context, req Request) (*Session, error) {
	if c.secretKey == "" {
		return nil, ErrNotConfigured
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	// the redirect URLs carry '&' and a literal {CHECKOUT_SESSION_ID}
	enc.SetEscapeHTML(false)
	if err := enc.Encode(c.buildRequest(req)); err != nil {
		return nil, fmt.Errorf("failed to encode checkout session: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkout_sessions", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to build checkout session request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.SetBasicAuth(c.secretKey, "")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		log.Printf("[Payment] Error calling PayMongo for order %s: %v", req.OrderID, err)
		return nil, &GatewayError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &GatewayError{StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("[Payment] PayMongo API error for order %s: status=%d body=%s", req.OrderID, resp.StatusCode, raw)
		gerr := &GatewayError{StatusCode: resp.StatusCode}
		var er errorResponse
		if json.Unmarshal(raw, &er) == nil && len(er.Errors) > 0 {
			gerr.Detail = er.Errors[0].Detail
		}
		return nil, gerr
	}

	var out checkoutSessionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &GatewayError{StatusCode: resp.StatusCode, Err: err}
	}
	if out.Data.Attributes.CheckoutURL == "" {
		return nil, &GatewayError{StatusCode: resp.StatusCode, Err: errors.New("response has no checkout_url")}
	}

	log.Printf("[Payment] Checkout session %s created for order %s (%s %s)", out.Data.ID, req.OrderID, req.Amount.StringFixed(2), Currency)
	return &Session{ID: out.Data.ID, CheckoutURL: out.Data.Attributes.CheckoutURL}, nil
}

func (c *PayMongoClient) buildRequest(req Request) checkoutSessionRequest {
	items := make([]lineItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, lineItem{
			Name:        it.Name,
			Quantity:    it.Quantity,
			Amount:      MinorUnits(it.unitPrice()),
			Currency:    Currency,
			Description: describe(it),
		})
	}

	order := url.QueryEscape(req.OrderID)

	var body checkoutSessionRequest
	body.Data.Attributes = checkoutAttributes{
		ShowDescription:    true,
		ShowLineItems:      true,
		PaymentMethodTypes: []string{"card", "gcash"},
		LineItems:          items,
		PaymentIntentData:  paymentIntentData{CaptureType: "automatic"},
		ReferenceNumber:    req.OrderID,
		SuccessURL:         c.publicBaseURL + "/payment/success?session_id={CHECKOUT_SESSION_ID}&order_id=" + order,
		CancelURL:          c.publicBaseURL + "/checkout?canceled=true&order_id=" + order,
		Description:        fmt.Sprintf("Order for %d items", len(req.Items)),
	}
	return body
}

// MinorUnits converts an amount to centavos, rounding half away from zero
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func describe(it LineItem) string {
	if len(it.SelectedVariations) == 0 {
		return it.Name + " - Standard item"
	}
	keys := make([]string, 0, len(it.SelectedVariations))
	for k := range it.SelectedVariations {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+it.SelectedVariations[k])
	}
	return strings.Join(parts, ", ")
}
