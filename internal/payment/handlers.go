package payment

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/MotionAge/sn-sub000/internal/common"
	"github.com/MotionAge/sn-sub000/internal/store"
)

// Initiator is satisfied by *Orchestrator.
type Initiator interface {
	InitiatePayment(ctx context.Context, method Method, intent Intent) (Initiation, error)
	Methods() []Method
}

// PaymentStore persists payment records around initiation.
type PaymentStore interface {
	CreatePayment(ctx context.Context, arg store.CreatePaymentParams) (store.Payment, error)
	GetPaymentByOrderID(ctx context.Context, orderID string) (store.Payment, error)
	SetPaymentProviderRef(ctx context.Context, orderID, providerRef string) error
}

// Handler exposes HTTP endpoints for payment initiation and status polling.
type Handler struct {
	Orchestrator Initiator
	Store        PaymentStore
	// CallbackBaseURL is the public URL of the gateway return route, without the trailing gateway segment.
	CallbackBaseURL string
	Validate        *validator.Validate
	Logger          zerolog.Logger
	Now             func() time.Time
}

// NewHandler returns h with a validator attached when none was supplied.
func NewHandler(h Handler) *Handler {
	if h.Validate == nil {
		h.Validate = common.NewValidator()
	}
	return &h
}

type customerReq struct {
	Name  string `json:"name" validate:"max=120"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone" validate:"max=20"`
}

type initiateReq struct {
	Method        string          `json:"method" validate:"required"`
	OrderID       string          `json:"orderId" validate:"required,max=64,excludesall=/?#& "`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency" validate:"omitempty,len=3,alpha"`
	Purpose       string          `json:"purpose" validate:"max=200"`
	ReferenceType string          `json:"referenceType" validate:"omitempty,oneof=donation membership event_registration"`
	ReferenceID   string          `json:"referenceId" validate:"required_with=ReferenceType,omitempty,uuid"`
	Customer      customerReq     `json:"customer"`
}

type initiateResp struct {
	Success     bool   `json:"success"`
	OrderID     string `json:"orderId"`
	Method      Method `json:"method"`
	RedirectURL string `json:"redirectUrl,omitempty"`
	FormHTML    string `json:"formHtml,omitempty"`
	Reference   string `json:"reference,omitempty"`
}

// Initiate records a pending payment and starts it with the chosen gateway.
// With ?render=html a form-post gateway answers with the auto-submitting page.
func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Orchestrator == nil || h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	var req initiateReq
	if err := common.DecodeJSON(w, r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	req.OrderID = strings.TrimSpace(req.OrderID)
	if err := common.ValidateStruct(h.validator(), req, "invalid payment request"); err != nil {
		common.WriteError(w, err)
		return
	}
	if !req.Amount.IsPositive() || !hasMinorUnitPrecision(req.Amount) {
		common.WriteError(w, common.ValidationError("invalid payment request", []string{"amount"}))
		return
	}
	method := ParseMethod(req.Method)
	if !h.supports(method) {
		common.JSONError(w, http.StatusBadRequest, "UNKNOWN_METHOD", "unsupported payment method", map[string]any{"methods": h.Orchestrator.Methods()})
		return
	}
	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = "NPR"
	}

	ctx := r.Context()
	if err := h.recordPayment(ctx, method, currency, req); err != nil {
		common.WriteError(w, err)
		return
	}

	intent := Intent{
		OrderID:   req.OrderID,
		Amount:    req.Amount,
		Currency:  currency,
		Purpose:   req.Purpose,
		Customer:  Customer{Name: req.Customer.Name, Email: req.Customer.Email, Phone: req.Customer.Phone},
		CreatedAt: h.now(),
	}
	intent.SuccessURL, intent.FailureURL = h.returnURLs(method, req.OrderID)

	init, err := h.Orchestrator.InitiatePayment(ctx, method, intent)
	if err != nil {
		common.WriteError(w, initiateError(err))
		return
	}
	if init.Reference != "" {
		if err := h.Store.SetPaymentProviderRef(ctx, req.OrderID, init.Reference); err != nil {
			h.Logger.Error().Err(err).Str("order_id", req.OrderID).Msg("payment_provider_ref_save_failed")
		}
	}

	if r.URL.Query().Get("render") == "html" && init.FormHTML != "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(init.FormHTML))
		return
	}
	common.JSON(w, http.StatusOK, initiateResp{
		Success:     true,
		OrderID:     req.OrderID,
		Method:      method,
		RedirectURL: init.RedirectURL,
		FormHTML:    init.FormHTML,
		Reference:   init.Reference,
	})
}

// recordPayment inserts the pending row. Re-initiating a still-pending order with
// the same amount is allowed so a payer can retry after abandoning a gateway.
func (h *Handler) recordPayment(ctx context.Context, method Method, currency string, req initiateReq) error {
	_, err := h.Store.CreatePayment(ctx, store.CreatePaymentParams{
		OrderID:       req.OrderID,
		Method:        string(method),
		Amount:        req.Amount,
		Currency:      currency,
		Purpose:       req.Purpose,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		CustomerName:  req.Customer.Name,
		CustomerEmail: req.Customer.Email,
		CustomerPhone: req.Customer.Phone,
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrConflict) {
		h.Logger.Error().Err(err).Str("order_id", req.OrderID).Msg("payment_record_create_failed")
		return common.NewAppError("INTERNAL", "could not record payment", http.StatusInternalServerError, err)
	}
	existing, getErr := h.Store.GetPaymentByOrderID(ctx, req.OrderID)
	if getErr != nil {
		return common.NewAppError("INTERNAL", "could not record payment", http.StatusInternalServerError, getErr)
	}
	if existing.Status != store.PaymentPending || !existing.Amount.Equal(req.Amount) || existing.Method != string(method) {
		return common.NewAppError("ORDER_EXISTS", "order already has a payment", http.StatusConflict, err)
	}
	return nil
}

func (h *Handler) returnURLs(method Method, orderID string) (string, string) {
	base := strings.TrimRight(h.CallbackBaseURL, "/") + "/" + string(method) + "/" + url.PathEscape(orderID)
	success := base
	if method == MethodStripe {
		// Stripe substitutes the placeholder; it must stay unescaped.
		success += "?session_id={CHECKOUT_SESSION_ID}"
	}
	return success, base + "?outcome=cancel"
}

func (h *Handler) supports(m Method) bool {
	for _, known := range h.Orchestrator.Methods() {
		if known == m {
			return true
		}
	}
	return false
}

func initiateError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidIntent):
		return common.NewAppError("INVALID_PAYMENT", "invalid payment request", http.StatusBadRequest, err)
	case errors.Is(err, ErrUnknownMethod):
		return common.NewAppError("UNKNOWN_METHOD", "unsupported payment method", http.StatusBadRequest, err)
	case errors.Is(err, ErrNotConfigured):
		return common.NewAppError("METHOD_UNAVAILABLE", "payment method is temporarily unavailable", http.StatusServiceUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		return common.NewAppError("GATEWAY_TIMEOUT", "payment gateway timed out", http.StatusGatewayTimeout, err)
	default:
		return common.NewAppError("GATEWAY_ERROR", "payment gateway rejected the request", http.StatusBadGateway, err)
	}
}

type statusResp struct {
	OrderID       string     `json:"orderId"`
	Status        string     `json:"status"`
	Method        string     `json:"method"`
	Amount        string     `json:"amount"`
	Currency      string     `json:"currency"`
	TransactionID string     `json:"transactionId,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// Status reports the stored state of a payment for the success and failure pages.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "orderId is required", nil)
		return
	}
	p, err := h.Store.GetPaymentByOrderID(r.Context(), orderID)
	if errors.Is(err, store.ErrNotFound) {
		common.JSONError(w, http.StatusNotFound, "PAYMENT_NOT_FOUND", "payment not found", nil)
		return
	}
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, statusResp{
		OrderID:       p.OrderID,
		Status:        p.Status,
		Method:        p.Method,
		Amount:        p.Amount.StringFixed(2),
		Currency:      p.Currency,
		TransactionID: p.TransactionID,
		CompletedAt:   p.CompletedAt,
	})
}

// Methods lists the selectable payment methods.
func (h *Handler) Methods(w http.ResponseWriter, _ *http.Request) {
	common.JSON(w, http.StatusOK, map[string]any{"methods": h.Orchestrator.Methods()})
}

func (h *Handler) validator() *validator.Validate {
	if h.Validate != nil {
		return h.Validate
	}
	return common.NewValidator()
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
