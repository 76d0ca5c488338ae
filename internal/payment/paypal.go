package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	paypalSandboxBase = "https://api-m.sandbox.paypal.com"
	paypalLiveBase    = "https://api-m.paypal.com"
)

// PayPal implements the Orders v2 redirect flow with intent CAPTURE.
type PayPal struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	BrandName    string
	Production   bool
	HTTP         Doer
	// TokenClient performs the OAuth2 client-credentials exchange; nil uses http.DefaultClient.
	TokenClient *http.Client
}

// Method implements Provider.
func (PayPal) Method() Method { return MethodPayPal }

type paypalAmount struct {
	CurrencyCode string          `json:"currency_code"`
	Value        decimal.Decimal `json:"value"`
}

type paypalOrder struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		ReferenceID string `json:"reference_id"`
		Payments    struct {
			Captures []struct {
				ID     string       `json:"id"`
				Status string       `json:"status"`
				Amount paypalAmount `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
	Links []struct {
		Href   string `json:"href"`
		Rel    string `json:"rel"`
		Method string `json:"method"`
	} `json:"links"`
}

// Initiate creates an order and returns its approval link.
func (p PayPal) Initiate(ctx context.Context, intent Intent) (Initiation, error) {
	if err := intent.Validate(); err != nil {
		return Initiation{}, err
	}
	token, err := p.accessToken(ctx)
	if err != nil {
		return Initiation{}, err
	}
	appCtx := map[string]string{
		"return_url":          intent.SuccessURL,
		"cancel_url":          intent.FailureURL,
		"user_action":         "PAY_NOW",
		"shipping_preference": "NO_SHIPPING",
	}
	if p.BrandName != "" {
		appCtx["brand_name"] = p.BrandName
	}
	value, err := paypalValue(intent.currency(), intent.Amount)
	if err != nil {
		return Initiation{}, err
	}
	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"reference_id": intent.OrderID,
			"custom_id":    intent.OrderID,
			"description":  truncate(intent.purpose(), 120),
			"amount": map[string]string{
				"currency_code": intent.currency(),
				"value":         value,
			},
		}},
		"application_context": appCtx,
	}
	var order paypalOrder
	raw, err := exchange(ctx, p.HTTP, http.MethodPost, p.base()+"/v2/checkout/orders", bearer(token), body, &order)
	if err != nil {
		return Initiation{}, fmt.Errorf("%w: paypal create order: %v", ErrGateway, err)
	}
	for _, l := range order.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return Initiation{Method: MethodPayPal, RedirectURL: l.Href, Reference: order.ID}, nil
		}
	}
	return Initiation{}, fmt.Errorf("%w: paypal order without approve link: %s", ErrGateway, truncate(string(raw), 200))
}

// Verify captures the approved order. A repeated capture of the same order is
// answered from the order itself, so verification can be retried safely.
func (p PayPal) Verify(ctx context.Context, ref Reference) Result {
	orderID := ref.ProviderRef
	if orderID == "" {
		orderID = ref.extra("token")
	}
	if orderID == "" {
		return failedResult(nil, "paypal order id is required")
	}
	token, err := p.accessToken(ctx)
	if err != nil {
		return failedResult(nil, "%v", err)
	}
	headers := bearer(token)
	headers["PayPal-Request-Id"] = "capture-" + orderID
	headers["Prefer"] = "return=representation"

	orderURL := p.base() + "/v2/checkout/orders/" + url.PathEscape(orderID)
	var order paypalOrder
	raw, err := exchange(ctx, p.HTTP, http.MethodPost, orderURL+"/capture", headers, struct{}{}, &order)
	if err != nil {
		var se *statusError
		if !errors.As(err, &se) || se.Status != http.StatusUnprocessableEntity || !strings.Contains(string(se.Body), "ORDER_ALREADY_CAPTURED") {
			return failedResult(raw, "paypal capture: %v", err)
		}
		order = paypalOrder{}
		raw, err = exchange(ctx, p.HTTP, http.MethodGet, orderURL, bearer(token), nil, &order)
		if err != nil {
			return failedResult(raw, "paypal get order: %v", err)
		}
	}
	switch order.Status {
	case "COMPLETED":
		txn, amount := order.capture()
		if ref.Amount.IsPositive() && !amount.Equal(ref.Amount) {
			return failedResult(raw, "amount mismatch: expected %s got %s", ref.Amount, amount)
		}
		return verifiedResult(txn, amount, raw)
	case "CREATED", "SAVED", "APPROVED", "PAYER_ACTION_REQUIRED":
		return pendingResult(raw, "paypal status "+order.Status)
	default:
		return failedResult(raw, "paypal status %q", order.Status)
	}
}

// paypalZeroDecimal lists the currencies PayPal rejects fractional amounts for.
var paypalZeroDecimal = map[string]bool{"HUF": true, "JPY": true, "TWD": true}

func paypalValue(currency string, amount decimal.Decimal) (string, error) {
	if !paypalZeroDecimal[currency] {
		return amount.StringFixed(2), nil
	}
	if !amount.Equal(amount.Truncate(0)) {
		return "", fmt.Errorf("%w: %s amounts must be whole units", ErrInvalidIntent, currency)
	}
	return amount.StringFixed(0), nil
}

func (o paypalOrder) capture() (string, decimal.Decimal) {
	var firstID string
	var firstAmount decimal.Decimal
	for _, pu := range o.PurchaseUnits {
		for _, c := range pu.Payments.Captures {
			if firstID == "" {
				firstID, firstAmount = c.ID, c.Amount.Value
			}
			if c.Status == "COMPLETED" {
				return c.ID, c.Amount.Value
			}
		}
	}
	return firstID, firstAmount
}

func (p PayPal) accessToken(ctx context.Context) (string, error) {
	if strings.TrimSpace(p.ClientID) == "" || strings.TrimSpace(p.ClientSecret) == "" {
		return "", notConfigured(MethodPayPal, "client credentials")
	}
	cfg := clientcredentials.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		TokenURL:     p.base() + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	if p.TokenClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.TokenClient)
	}
	tok, err := cfg.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: paypal token: %v", ErrGateway, err)
	}
	return tok.AccessToken, nil
}

func (p PayPal) base() string {
	return envBase(p.BaseURL, paypalSandboxBase, paypalLiveBase, p.Production)
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
