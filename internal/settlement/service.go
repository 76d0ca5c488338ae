// Package settlement confirms gateway callbacks and applies their consequences
// to the payment and the donation, membership or registration it pays for.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/MotionAge/sn-sub000/internal/document"
	"github.com/MotionAge/sn-sub000/internal/events"
	"github.com/MotionAge/sn-sub000/internal/obs"
	"github.com/MotionAge/sn-sub000/internal/payment"
	"github.com/MotionAge/sn-sub000/internal/store"
)

var (
	// ErrPaymentNotFound is returned when no payment exists for the order id.
	ErrPaymentNotFound = errors.New("settlement: payment not found")
	// ErrGatewayMismatch is returned when a callback names a different gateway than the payment used.
	ErrGatewayMismatch = errors.New("settlement: gateway does not match payment")
	// ErrManualMethod is returned for bank and cash payments, which staff reconcile.
	ErrManualMethod = errors.New("settlement: manual payments are not verified by gateway")
)

// Verifier confirms a payment with its gateway.
type Verifier interface {
	VerifyPayment(ctx context.Context, method payment.Method, ref payment.Reference) payment.Verification
}

// Store is the persistence settlement needs; *store.Queries satisfies it.
type Store interface {
	GetPaymentByOrderID(ctx context.Context, orderID string) (store.Payment, error)
	InsertVerification(ctx context.Context, v store.Verification) error
	CompletePayment(ctx context.Context, orderID, transactionID string) (store.Payment, bool, error)
	FailPayment(ctx context.Context, orderID string) error

	CompleteDonation(ctx context.Context, id, method, transactionID, receiptNumber string) (store.Donation, error)
	SetDonationReceiptURL(ctx context.Context, id, url string) error
	GetMembership(ctx context.Context, id string) (store.Membership, error)
	ActivateMembership(ctx context.Context, arg store.ActivateMembershipParams) (store.Membership, error)
	SetMembershipCertificateURL(ctx context.Context, id, url string) error
	ConfirmEventRegistration(ctx context.Context, id, transactionID, registrationNumber string) (store.EventRegistration, error)
	SetEventRegistrationReceiptURL(ctx context.Context, id, url string) error
}

// Documents renders and stores receipts and certificates.
type Documents interface {
	GenerateCertificate(ctx context.Context, req document.CertificateRequest) (document.Artifact, error)
	GenerateDonationReceipt(ctx context.Context, req document.ReceiptRequest) (document.Artifact, error)
	GenerateEventReceipt(ctx context.Context, req document.EventReceiptRequest) (document.Artifact, error)
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error)
}

// Locker serialises settlement of one order across replicas.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Callback is what a gateway return redirect or the verify endpoint reports.
type Callback struct {
	Gateway       string
	OrderID       string
	TransactionID string
	Extras        map[string]string
}

// Outcome is the result reported to the payer. Verified reflects only the
// gateway's answer; Settled is true for the single call that moved the payment
// to completed and ran the follow-up work.
type Outcome struct {
	OrderID       string
	Method        payment.Method
	Verified      bool
	TransactionID string
	Status        payment.Status
	Settled       bool
}

// Service verifies callbacks and fans out the follow-up work.
type Service struct {
	Verifier Verifier
	Store    Store
	Docs     Documents
	Events   Emitter
	// Lock is optional; without it the conditional update alone prevents double fan-out.
	Lock    Locker
	LockTTL time.Duration
	Logger  zerolog.Logger
	Now     func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Settle verifies the callback and, the first time a payment is confirmed,
// updates the referenced record, generates its document and emits events.
// Follow-up failures are logged and never change the outcome.
func (s *Service) Settle(ctx context.Context, cb Callback) (Outcome, error) {
	ctx, span := otel.Tracer("settlement.Service").Start(ctx, "Service.Settle")
	defer span.End()
	span.SetAttributes(attribute.String("payment.order_id", cb.OrderID), attribute.String("payment.gateway", cb.Gateway))

	orderID := strings.TrimSpace(cb.OrderID)
	if orderID == "" {
		return Outcome{}, fmt.Errorf("%w: empty order id", ErrPaymentNotFound)
	}
	if s.Lock == nil {
		return s.settle(ctx, orderID, cb)
	}

	var out Outcome
	var settleErr error
	err := s.Lock.WithLock(ctx, "settle:"+orderID, s.lockTTL(), func(ctx context.Context) error {
		out, settleErr = s.settle(ctx, orderID, cb)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, err
		}
		s.Logger.Warn().Err(err).Str("order_id", orderID).Msg("settlement_lock_unavailable")
		return s.settle(ctx, orderID, cb)
	}
	return out, settleErr
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL <= 0 {
		return 30 * time.Second
	}
	return s.LockTTL
}

func (s *Service) settle(ctx context.Context, orderID string, cb Callback) (Outcome, error) {
	p, err := s.Store.GetPaymentByOrderID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return Outcome{}, fmt.Errorf("%w: %s", ErrPaymentNotFound, orderID)
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("settlement: load payment: %w", err)
	}
	method := payment.ParseMethod(p.Method)
	if gw := strings.TrimSpace(cb.Gateway); gw != "" && payment.ParseMethod(gw) != method {
		return Outcome{}, fmt.Errorf("%w: callback %s, payment %s", ErrGatewayMismatch, gw, method)
	}
	if method.Manual() {
		return Outcome{}, fmt.Errorf("%w: %s", ErrManualMethod, method)
	}

	ref := payment.Reference{
		OrderID:       p.OrderID,
		ProviderRef:   p.ProviderRef,
		TransactionID: strings.TrimSpace(cb.TransactionID),
		Amount:        p.Amount,
		Currency:      p.Currency,
		Extras:        cb.Extras,
	}
	v := s.Verifier.VerifyPayment(ctx, method, ref)
	out := Outcome{
		OrderID:       p.OrderID,
		Method:        method,
		Verified:      v.Verified,
		TransactionID: v.TransactionID,
		Status:        v.Result.Status,
	}

	if err := s.Store.InsertVerification(ctx, store.Verification{
		OrderID:       p.OrderID,
		Method:        string(method),
		Status:        string(v.Result.Status),
		TransactionID: v.TransactionID,
		Reason:        v.Result.Reason,
		Raw:           v.Result.Raw,
	}); err != nil {
		s.Logger.Error().Err(err).Str("order_id", p.OrderID).Msg("settlement_record_verification_failed")
	}

	if !v.Verified {
		if v.Result.Status == payment.StatusFailed && p.Status == store.PaymentPending {
			s.markFailed(ctx, p)
		}
		return out, nil
	}

	completed, transitioned, err := s.Store.CompletePayment(ctx, p.OrderID, v.TransactionID)
	if err != nil {
		s.Logger.Error().Err(err).Str("order_id", p.OrderID).Msg("settlement_complete_payment_failed")
		s.sideEffect("complete_payment", err)
		return out, nil
	}
	if !transitioned {
		s.Logger.Info().Str("order_id", p.OrderID).Str("status", p.Status).Msg("settlement_already_settled")
		return out, nil
	}
	out.Settled = true

	fanCtx := context.WithoutCancel(ctx)
	var payer contact
	switch completed.ReferenceType {
	case store.RefDonation:
		payer = s.settleDonation(fanCtx, completed)
	case store.RefMembership:
		payer = s.settleMembership(fanCtx, completed)
	case store.RefEventRegistration:
		payer = s.settleEventRegistration(fanCtx, completed)
	}
	s.emit(fanCtx, events.TopicPaymentSucceeded, completed.OrderID, paymentPayload(completed, payer))
	return out, nil
}

func (s *Service) markFailed(ctx context.Context, p store.Payment) {
	err := s.Store.FailPayment(ctx, p.OrderID)
	s.sideEffect("fail_payment", err)
	if err != nil {
		s.Logger.Error().Err(err).Str("order_id", p.OrderID).Msg("settlement_fail_payment_failed")
		return
	}
	s.emit(ctx, events.TopicPaymentFailed, p.OrderID, map[string]any{
		"orderId": p.OrderID,
		"method":  p.Method,
		"name":    p.CustomerName,
		"email":   p.CustomerEmail,
	})
}

// contact is the payer as recorded on the settled donation, membership or
// registration. Payments may be initiated without customer details.
type contact struct {
	name  string
	email string
}

func (s *Service) settleDonation(ctx context.Context, p store.Payment) contact {
	d, err := s.Store.CompleteDonation(ctx, p.ReferenceID, p.Method, p.TransactionID, serial("RCP-D", s.now()))
	s.sideEffect("update_record", err)
	if err != nil {
		s.Logger.Error().Err(err).Str("order_id", p.OrderID).Str("donation_id", p.ReferenceID).Msg("settlement_donation_update_failed")
		return contact{}
	}
	url := d.ReceiptURL
	art, err := s.Docs.GenerateDonationReceipt(ctx, document.ReceiptRequest{
		ReceiptNumber: d.ReceiptNumber,
		DonorName:     d.DonorName,
		DonorEmail:    d.DonorEmail,
		DonorPhone:    d.DonorPhone,
		DonorAddress:  d.DonorAddress,
		Amount:        d.Amount,
		Currency:      d.Currency,
		Purpose:       d.Purpose,
		PaymentMethod: displayMethod(p.Method),
		TransactionID: p.TransactionID,
		Date:          paidAt(d.PaidAt, s.now()),
	})
	if s.documentDone(p, err) {
		url = art.URL
		s.attach("attach_receipt", p, s.Store.SetDonationReceiptURL(ctx, d.ID, url))
	}
	s.emit(ctx, events.TopicDonationCompleted, d.ID, map[string]any{
		"orderId":       p.OrderID,
		"name":          d.DonorName,
		"email":         firstNonEmpty(d.DonorEmail, p.CustomerEmail),
		"amount":        d.Amount.StringFixed(2),
		"currency":      d.Currency,
		"purpose":       d.Purpose,
		"receiptNumber": d.ReceiptNumber,
		"receiptUrl":    url,
	})
	return contact{name: d.DonorName, email: d.DonorEmail}
}

func (s *Service) settleMembership(ctx context.Context, p store.Payment) contact {
	start := s.now()
	current, err := s.Store.GetMembership(ctx, p.ReferenceID)
	var m store.Membership
	if err == nil {
		m, err = s.Store.ActivateMembership(ctx, store.ActivateMembershipParams{
			ID:                p.ReferenceID,
			TransactionID:     p.TransactionID,
			CertificateNumber: serial("CERT-M", start),
			StartDate:         start,
			ValidUntil:        validUntil(current.MembershipType, start),
		})
	}
	s.sideEffect("update_record", err)
	if err != nil {
		s.Logger.Error().Err(err).Str("order_id", p.OrderID).Str("membership_id", p.ReferenceID).Msg("settlement_membership_update_failed")
		return contact{name: current.MemberName, email: current.Email}
	}
	url := m.CertificateURL
	art, err := s.Docs.GenerateCertificate(ctx, document.CertificateRequest{
		Kind:           document.KindMembership,
		RecipientName:  m.MemberName,
		SerialNumber:   m.CertificateNumber,
		IssueDate:      paidAt(m.StartDate, start),
		MembershipType: m.MembershipType,
		ValidUntil:     m.ValidUntil,
	})
	if s.documentDone(p, err) {
		url = art.URL
		s.attach("attach_certificate", p, s.Store.SetMembershipCertificateURL(ctx, m.ID, url))
	}
	payload := map[string]any{
		"orderId":           p.OrderID,
		"name":              m.MemberName,
		"email":             firstNonEmpty(m.Email, p.CustomerEmail),
		"membershipType":    m.MembershipType,
		"certificateNumber": m.CertificateNumber,
		"certificateUrl":    url,
	}
	if m.ValidUntil != nil {
		payload["validUntil"] = m.ValidUntil.Format("2006-01-02")
	}
	s.emit(ctx, events.TopicMembershipActivated, m.ID, payload)
	return contact{name: m.MemberName, email: m.Email}
}

func (s *Service) settleEventRegistration(ctx context.Context, p store.Payment) contact {
	e, err := s.Store.ConfirmEventRegistration(ctx, p.ReferenceID, p.TransactionID, serial("EVT", s.now()))
	s.sideEffect("update_record", err)
	if err != nil {
		s.Logger.Error().Err(err).Str("order_id", p.OrderID).Str("registration_id", p.ReferenceID).Msg("settlement_registration_update_failed")
		return contact{}
	}
	url := e.ReceiptURL
	art, err := s.Docs.GenerateEventReceipt(ctx, document.EventReceiptRequest{
		RegistrationNumber: e.RegistrationNumber,
		ParticipantName:    e.ParticipantName,
		Email:              e.Email,
		Phone:              e.Phone,
		EventName:          e.EventName,
		EventDate:          e.EventDate,
		Amount:             e.Amount,
		Currency:           e.Currency,
		PaymentMethod:      displayMethod(p.Method),
		TransactionID:      p.TransactionID,
		Date:               paidAt(p.CompletedAt, s.now()),
	})
	if s.documentDone(p, err) {
		url = art.URL
		s.attach("attach_receipt", p, s.Store.SetEventRegistrationReceiptURL(ctx, e.ID, url))
	}
	s.emit(ctx, events.TopicEventRegistrationConfirmed, e.ID, map[string]any{
		"orderId":            p.OrderID,
		"name":               e.ParticipantName,
		"email":              firstNonEmpty(e.Email, p.CustomerEmail),
		"eventName":          e.EventName,
		"registrationNumber": e.RegistrationNumber,
		"receiptUrl":         url,
	})
	return contact{name: e.ParticipantName, email: e.Email}
}

func (s *Service) documentDone(p store.Payment, err error) bool {
	s.sideEffect("generate_document", err)
	if err != nil {
		s.Logger.Error().Err(err).Str("order_id", p.OrderID).Str("reference_type", p.ReferenceType).Msg("settlement_document_failed")
		return false
	}
	return true
}

func (s *Service) attach(step string, p store.Payment, err error) {
	s.sideEffect(step, err)
	if err != nil {
		s.Logger.Error().Err(err).Str("order_id", p.OrderID).Str("step", step).Msg("settlement_attach_failed")
	}
}

func (s *Service) emit(ctx context.Context, topic, aggregateID string, payload map[string]any) {
	if s.Events == nil {
		return
	}
	_, err := s.Events.Emit(ctx, topic, aggregateID, payload)
	s.sideEffect("emit_"+topic, err)
	if err != nil {
		s.Logger.Error().Err(err).Str("topic", topic).Str("aggregate_id", aggregateID).Msg("settlement_emit_failed")
	}
}

func (s *Service) sideEffect(step string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	obs.SettlementSideEffectTotal.WithLabelValues(step, result).Inc()
}

func paymentPayload(p store.Payment, payer contact) map[string]any {
	return map[string]any{
		"orderId":       p.OrderID,
		"name":          firstNonEmpty(p.CustomerName, payer.name),
		"email":         firstNonEmpty(p.CustomerEmail, payer.email),
		"amount":        p.Amount.StringFixed(2),
		"currency":      p.Currency,
		"method":        displayMethod(p.Method),
		"transactionId": p.TransactionID,
		"purpose":       p.Purpose,
		"referenceType": p.ReferenceType,
		"referenceId":   p.ReferenceID,
	}
}

// serial builds identifiers such as RCP-D-2024-3F9A1C.
func serial(prefix string, now time.Time) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("%s-%d-%s", prefix, now.Year(), id[:8])
}

func lifetime(membershipType string) bool {
	return strings.Contains(strings.ToLower(membershipType), "life")
}

// validUntil is one year after start unless the type is a lifetime membership.
func validUntil(membershipType string, start time.Time) *time.Time {
	if lifetime(membershipType) {
		return nil
	}
	end := start.AddDate(1, 0, 0)
	return &end
}

func paidAt(t *time.Time, fallback time.Time) time.Time {
	if t != nil && !t.IsZero() {
		return *t
	}
	return fallback
}

var methodNames = map[payment.Method]string{
	payment.MethodESewa:      "eSewa",
	payment.MethodKhalti:     "Khalti",
	payment.MethodPayPal:     "PayPal",
	payment.MethodStripe:     "Stripe",
	payment.MethodIMEPay:     "IME Pay",
	payment.MethodConnectIPS: "ConnectIPS",
	payment.MethodBank:       "Bank transfer",
	payment.MethodCash:       "Cash",
}

func displayMethod(m string) string {
	if name, ok := methodNames[payment.ParseMethod(m)]; ok {
		return name
	}
	return m
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
