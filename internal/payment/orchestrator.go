package payment

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MotionAge/sn-sub000/internal/obs"
)

// Orchestrator dispatches initiation and verification to the adapter registered
// for a method. It keeps no per-payment state.
type Orchestrator struct {
	providers       map[Method]Provider
	instructionsURL string
	logger          zerolog.Logger
}

// Verification is what the orchestrator reports back to settlement.
type Verification struct {
	Verified      bool
	TransactionID string
	Result        Result
}

// NewOrchestrator registers providers by their Method. instructionsURL is the
// site page that explains bank and cash payments.
func NewOrchestrator(instructionsURL string, logger zerolog.Logger, providers ...Provider) *Orchestrator {
	o := &Orchestrator{
		providers:       make(map[Method]Provider, len(providers)),
		instructionsURL: instructionsURL,
		logger:          obs.Component(logger, "payment.orchestrator"),
	}
	for _, p := range providers {
		if p == nil {
			continue
		}
		o.providers[p.Method()] = p
	}
	return o
}

// Methods lists the methods callers may choose, gateways first then manual ones.
func (o *Orchestrator) Methods() []Method {
	out := make([]Method, 0, len(o.providers)+2)
	for m := range o.providers {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return append(out, MethodBank, MethodCash)
}

// Provider returns the adapter registered for m.
func (o *Orchestrator) Provider(m Method) (Provider, bool) {
	p, ok := o.providers[m]
	return p, ok
}

// InitiatePayment starts a payment. Bank and cash never reach a gateway; they
// redirect to the instructions page carrying the order id.
func (o *Orchestrator) InitiatePayment(ctx context.Context, method Method, intent Intent) (Initiation, error) {
	ctx, span := otel.Tracer("payment.Orchestrator").Start(ctx, "Orchestrator.InitiatePayment")
	defer span.End()
	span.SetAttributes(attribute.String("payment.method", string(method)), attribute.String("payment.order_id", intent.OrderID))

	init, err := o.initiate(ctx, method, intent)
	result := "success"
	if err != nil {
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Warn().Err(err).Str("method", string(method)).Str("order_id", intent.OrderID).Msg("payment_initiate_failed")
	}
	obs.PaymentInitiateTotal.WithLabelValues(string(method), result).Inc()
	return init, err
}

func (o *Orchestrator) initiate(ctx context.Context, method Method, intent Intent) (Initiation, error) {
	if method.Manual() {
		if strings.TrimSpace(intent.OrderID) == "" {
			return Initiation{}, fmt.Errorf("%w: orderId", ErrInvalidIntent)
		}
		return Initiation{Method: method, RedirectURL: o.instructionsFor(method, intent.OrderID), Reference: intent.OrderID}, nil
	}
	p, ok := o.providers[method]
	if !ok {
		return Initiation{}, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	init, err := p.Initiate(ctx, intent)
	if err != nil {
		return Initiation{}, err
	}
	init.Method = method
	return init, nil
}

func (o *Orchestrator) instructionsFor(method Method, orderID string) string {
	q := url.Values{}
	q.Set("method", string(method))
	q.Set("orderId", orderID)
	sep := "?"
	if strings.Contains(o.instructionsURL, "?") {
		sep = "&"
	}
	return o.instructionsURL + sep + q.Encode()
}

// VerifyPayment confirms a payment with its gateway. Unknown and manual methods
// are reported as unverified.
func (o *Orchestrator) VerifyPayment(ctx context.Context, method Method, ref Reference) Verification {
	ctx, span := otel.Tracer("payment.Orchestrator").Start(ctx, "Orchestrator.VerifyPayment")
	defer span.End()
	span.SetAttributes(attribute.String("payment.method", string(method)), attribute.String("payment.order_id", ref.OrderID))

	var res Result
	if p, ok := o.providers[method]; ok {
		res = p.Verify(ctx, ref)
	} else {
		res = failedResult(nil, "no gateway registered for method %q", method)
	}
	if !res.Verified() && res.Status == StatusVerified {
		res = failedResult(res.Raw, "verified without transaction id")
	}

	span.SetAttributes(attribute.String("payment.status", string(res.Status)))
	obs.PaymentVerifyTotal.WithLabelValues(string(method), string(res.Status)).Inc()
	level := zerolog.InfoLevel
	if !res.Verified() {
		level = zerolog.WarnLevel
	}
	o.logger.WithLevel(level).
		Str("reason", res.Reason).
		Str("method", string(method)).
		Str("order_id", ref.OrderID).
		Str("status", string(res.Status)).
		Str("transaction_id", res.TransactionID).
		Msg("payment_verify")

	return Verification{Verified: res.Verified(), TransactionID: res.TransactionID, Result: res}
}
