package payment

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
)

// Stripe implements hosted Checkout Sessions with a single synthetic line item.
type Stripe struct {
	SecretKey string
	// BaseURL overrides the API host (tests, proxies).
	BaseURL    string
	HTTPClient *http.Client
	MaxRetries int64
}

// Method implements Provider.
func (Stripe) Method() Method { return MethodStripe }

func (s Stripe) api() *client.API {
	cfg := &stripe.BackendConfig{
		HTTPClient:        s.HTTPClient,
		MaxNetworkRetries: stripe.Int64(s.MaxRetries),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}
	if s.BaseURL != "" {
		cfg.URL = stripe.String(strings.TrimRight(s.BaseURL, "/"))
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, cfg)
	return client.New(s.SecretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
}

// Initiate creates a Checkout Session; the session id is the Reference.
func (s Stripe) Initiate(ctx context.Context, intent Intent) (Initiation, error) {
	if err := intent.Validate(); err != nil {
		return Initiation{}, err
	}
	if strings.TrimSpace(s.SecretKey) == "" {
		return Initiation{}, notConfigured(MethodStripe, "secret key")
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(intent.SuccessURL),
		CancelURL:         stripe.String(intent.FailureURL),
		ClientReferenceID: stripe.String(intent.OrderID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(intent.currency())),
				UnitAmount: stripe.Int64(ToMinorUnits(intent.Amount)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(intent.purpose()),
				},
			},
			Quantity: stripe.Int64(1),
		}},
	}
	if email := strings.TrimSpace(intent.Customer.Email); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	params.AddMetadata("order_id", intent.OrderID)
	params.Context = ctx

	sess, err := s.api().CheckoutSessions.New(params)
	if err != nil {
		return Initiation{}, fmt.Errorf("%w: stripe session: %v", ErrGateway, err)
	}
	if sess.URL == "" {
		return Initiation{}, fmt.Errorf("%w: stripe session %s has no url", ErrGateway, sess.ID)
	}
	return Initiation{Method: MethodStripe, RedirectURL: sess.URL, Reference: sess.ID}, nil
}

// Verify retrieves the session; payment_status "paid" is the only success.
func (s Stripe) Verify(ctx context.Context, ref Reference) Result {
	if strings.TrimSpace(s.SecretKey) == "" {
		return failedResult(nil, "%v", notConfigured(MethodStripe, "secret key"))
	}
	id := ref.ProviderRef
	if id == "" {
		id = ref.extra("session_id")
	}
	if id == "" {
		return failedResult(nil, "stripe session id is required")
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := s.api().CheckoutSessions.Get(id, params)
	if err != nil {
		return failedResult(nil, "stripe retrieve session: %v", err)
	}
	var raw []byte
	if sess.LastResponse != nil {
		raw = sess.LastResponse.RawJSON
	}
	switch sess.PaymentStatus {
	case stripe.CheckoutSessionPaymentStatusPaid:
		txn := ""
		if sess.PaymentIntent != nil {
			txn = sess.PaymentIntent.ID
		}
		amount := FromMinorUnits(sess.AmountTotal)
		if !ref.Amount.IsZero() && sess.AmountTotal != ToMinorUnits(ref.Amount) {
			return failedResult(raw, "amount mismatch: expected %s got %s", ref.Amount, amount)
		}
		return verifiedResult(txn, amount, raw)
	case stripe.CheckoutSessionPaymentStatusUnpaid:
		if sess.Status == stripe.CheckoutSessionStatusOpen {
			return pendingResult(raw, "stripe session open")
		}
		return failedResult(raw, "stripe session %s unpaid", sess.Status)
	default:
		return failedResult(raw, "stripe payment_status %q", sess.PaymentStatus)
	}
}
