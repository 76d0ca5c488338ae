package settlement

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/MotionAge/sn-sub000/internal/common"
	"github.com/MotionAge/sn-sub000/internal/payment"
)

const verificationFailed = "payment verification failed"

// Settler is satisfied by *Service.
type Settler interface {
	Settle(ctx context.Context, cb Callback) (Outcome, error)
}

// Handler exposes the verify endpoint and the gateway return route.
type Handler struct {
	Svc Settler
	// SiteBaseURL is where the browser lands after a gateway return.
	SiteBaseURL string
	Validate    *validator.Validate
	Logger      zerolog.Logger
}

// NewHandler returns h with a validator attached when none was supplied.
func NewHandler(h Handler) *Handler {
	if h.Validate == nil {
		h.Validate = common.NewValidator()
	}
	return &h
}

type verifyReq struct {
	Gateway       string            `json:"gateway" validate:"required"`
	OrderID       string            `json:"orderId" validate:"required,max=64"`
	TransactionID string            `json:"transactionId"`
	Pidx          string            `json:"pidx"`
	SessionID     string            `json:"sessionId"`
	Token         string            `json:"token"`
	RefID         string            `json:"refId"`
	Data          string            `json:"data"`
	Msisdn        string            `json:"msisdn"`
	Extras        map[string]string `json:"extras"`
}

// extras maps the body onto the query names gateways use on their return redirects.
func (r verifyReq) extras() map[string]string {
	out := make(map[string]string, len(r.Extras)+6)
	for k, v := range r.Extras {
		out[k] = v
	}
	set := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			out[key] = value
		}
	}
	set("pidx", r.Pidx)
	set("session_id", r.SessionID)
	set("token", r.Token)
	set("RefId", r.RefID)
	set("TXNID", r.RefID)
	set("data", r.Data)
	set("Msisdn", r.Msisdn)
	set("TransactionId", r.TransactionID)
	return out
}

type verifyResp struct {
	Success       bool        `json:"success"`
	TransactionID string      `json:"transactionId,omitempty"`
	Error         string      `json:"error,omitempty"`
	Data          *verifyData `json:"data,omitempty"`
}

type verifyData struct {
	OrderID string `json:"orderId"`
	Method  string `json:"method"`
	Status  string `json:"status"`
}

// Verify confirms a payment reported by the site after a gateway return.
// Gateway diagnostics are logged, never returned.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyReq
	if err := common.DecodeJSON(w, r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := common.ValidateStruct(h.validator(), req, "invalid verification request"); err != nil {
		common.WriteError(w, err)
		return
	}
	out, err := h.Svc.Settle(r.Context(), Callback{
		Gateway:       req.Gateway,
		OrderID:       req.OrderID,
		TransactionID: req.TransactionID,
		Extras:        req.extras(),
	})
	if err != nil {
		h.Logger.Warn().Err(err).Str("order_id", req.OrderID).Str("gateway", req.Gateway).Msg("payment_verify_rejected")
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, ErrPaymentNotFound):
			status = http.StatusNotFound
		case errors.Is(err, ErrGatewayMismatch), errors.Is(err, ErrManualMethod):
			status = http.StatusBadRequest
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusGatewayTimeout
		}
		common.JSON(w, status, verifyResp{Success: false, Error: verificationFailed})
		return
	}
	data := &verifyData{OrderID: out.OrderID, Method: string(out.Method), Status: string(out.Status)}
	if !out.Verified {
		common.JSON(w, http.StatusBadRequest, verifyResp{Success: false, Error: verificationFailed, Data: data})
		return
	}
	common.JSON(w, http.StatusOK, verifyResp{Success: true, TransactionID: out.TransactionID, Data: data})
}

// callbackParams are the query names gateways append to their return URLs.
var callbackParams = []string{"data", "pidx", "session_id", "token", "PayerID", "RefId", "TransactionId", "Msisdn", "TXNID", "transaction_id"}

// Callback is the gateway return URL. It settles the payment and sends the
// browser to the site's success or failure page.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	gateway := chi.URLParam(r, "gateway")
	orderID := chi.URLParam(r, "orderId")
	q := r.URL.Query()

	if strings.EqualFold(q.Get("outcome"), "cancel") {
		h.Logger.Info().Str("order_id", orderID).Str("gateway", gateway).Msg("payment_cancelled_by_payer")
		http.Redirect(w, r, h.sitePage("failure", orderID, "", "cancelled"), http.StatusSeeOther)
		return
	}

	extras := make(map[string]string, len(callbackParams))
	for _, name := range callbackParams {
		if v := strings.TrimSpace(q.Get(name)); v != "" {
			extras[name] = v
		}
	}
	txnID := firstNonEmpty(q.Get("TransactionId"), q.Get("transaction_id"))
	out, err := h.Svc.Settle(r.Context(), Callback{Gateway: gateway, OrderID: orderID, TransactionID: txnID, Extras: extras})
	if err != nil {
		h.Logger.Warn().Err(err).Str("order_id", orderID).Str("gateway", gateway).Msg("payment_callback_rejected")
		http.Redirect(w, r, h.sitePage("failure", orderID, "", "verification_failed"), http.StatusSeeOther)
		return
	}
	if !out.Verified {
		reason := "verification_failed"
		if out.Status == payment.StatusPending {
			reason = "pending"
		}
		http.Redirect(w, r, h.sitePage("failure", orderID, "", reason), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, h.sitePage("success", orderID, out.TransactionID, ""), http.StatusSeeOther)
}

func (h *Handler) sitePage(page, orderID, txnID, reason string) string {
	v := url.Values{}
	v.Set("orderId", orderID)
	if txnID != "" {
		v.Set("transactionId", txnID)
	}
	if reason != "" {
		v.Set("reason", reason)
	}
	return strings.TrimRight(h.SiteBaseURL, "/") + "/payment/" + page + "?" + v.Encode()
}

func (h *Handler) validator() *validator.Validate {
	if h.Validate != nil {
		return h.Validate
	}
	return common.NewValidator()
}
