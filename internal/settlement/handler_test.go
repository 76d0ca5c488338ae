package settlement_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/MotionAge/sn-sub000/internal/payment"
	"github.com/MotionAge/sn-sub000/internal/settlement"
)

type stubSettler struct {
	out   settlement.Outcome
	err   error
	calls []settlement.Callback
}

func (s *stubSettler) Settle(_ context.Context, cb settlement.Callback) (settlement.Outcome, error) {
	s.calls = append(s.calls, cb)
	return s.out, s.err
}

func newRouter(svc settlement.Settler) http.Handler {
	h := &settlement.Handler{Svc: svc, SiteBaseURL: "https://site.example.org/", Logger: zerolog.Nop()}
	r := chi.NewRouter()
	r.Post("/api/v1/payments/verify", h.Verify)
	r.Get("/api/v1/payments/callback/{gateway}/{orderId}", h.Callback)
	return r
}

func postVerify(t *testing.T, router http.Handler, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/verify", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return rr, resp
}

func TestVerifyEndpointSuccess(t *testing.T) {
	svc := &stubSettler{out: settlement.Outcome{OrderID: "E2024001-R1", Method: payment.MethodKhalti, Verified: true, TransactionID: "TXN1", Status: payment.StatusVerified}}
	rr, resp := postVerify(t, newRouter(svc), `{"gateway":"khalti","orderId":"E2024001-R1","pidx":"abc"}`)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, true, resp["success"])
	require.Equal(t, "TXN1", resp["transactionId"])
	require.Len(t, svc.calls, 1)
	require.Equal(t, "abc", svc.calls[0].Extras["pidx"])
	require.Equal(t, "khalti", svc.calls[0].Gateway)
}

func TestVerifyEndpointMapsBodyToGatewayParams(t *testing.T) {
	svc := &stubSettler{out: settlement.Outcome{Verified: true, TransactionID: "T"}}
	postVerify(t, newRouter(svc), `{"gateway":"imepay","orderId":"O1","refId":"R1","transactionId":"X1","msisdn":"98","sessionId":"cs_1","token":"tok","data":"b64","extras":{"custom":"v"}}`)

	ex := svc.calls[0].Extras
	require.Equal(t, "R1", ex["RefId"])
	require.Equal(t, "R1", ex["TXNID"])
	require.Equal(t, "X1", ex["TransactionId"])
	require.Equal(t, "98", ex["Msisdn"])
	require.Equal(t, "cs_1", ex["session_id"])
	require.Equal(t, "tok", ex["token"])
	require.Equal(t, "b64", ex["data"])
	require.Equal(t, "v", ex["custom"])
	require.Equal(t, "X1", svc.calls[0].TransactionID)
}

func TestVerifyEndpointHidesGatewayReasons(t *testing.T) {
	svc := &stubSettler{out: settlement.Outcome{OrderID: "O1", Status: payment.StatusFailed}}
	rr, resp := postVerify(t, newRouter(svc), `{"gateway":"esewa","orderId":"O1"}`)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, false, resp["success"])
	require.Equal(t, "payment verification failed", resp["error"])
	require.NotContains(t, rr.Body.String(), "gateway said")
}

func TestVerifyEndpointErrors(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{settlement.ErrPaymentNotFound, http.StatusNotFound},
		{settlement.ErrGatewayMismatch, http.StatusBadRequest},
		{settlement.ErrManualMethod, http.StatusBadRequest},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errBoom, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr, resp := postVerify(t, newRouter(&stubSettler{err: tc.err}), `{"gateway":"esewa","orderId":"O1"}`)
		require.Equal(t, tc.code, rr.Code, tc.err.Error())
		require.Equal(t, "payment verification failed", resp["error"])
		require.NotContains(t, rr.Body.String(), "boom")
	}
}

func TestVerifyEndpointValidation(t *testing.T) {
	svc := &stubSettler{}
	rr, _ := postVerify(t, newRouter(svc), `{"orderId":"O1"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "gateway")
	require.Empty(t, svc.calls)
}

func getCallback(router http.Handler, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestCallbackRedirectsToSuccess(t *testing.T) {
	svc := &stubSettler{out: settlement.Outcome{OrderID: "S1", Verified: true, TransactionID: "pi_123"}}
	rr := getCallback(newRouter(svc), "/api/v1/payments/callback/stripe/S1?session_id=cs_test_1")

	require.Equal(t, http.StatusSeeOther, rr.Code)
	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "site.example.org", loc.Host)
	require.Equal(t, "/payment/success", loc.Path)
	require.Equal(t, "S1", loc.Query().Get("orderId"))
	require.Equal(t, "pi_123", loc.Query().Get("transactionId"))

	require.Equal(t, "stripe", svc.calls[0].Gateway)
	require.Equal(t, "S1", svc.calls[0].OrderID)
	require.Equal(t, "cs_test_1", svc.calls[0].Extras["session_id"])
}

func TestCallbackPassesGatewayParams(t *testing.T) {
	svc := &stubSettler{out: settlement.Outcome{Verified: true, TransactionID: "T"}}
	router := newRouter(svc)
	getCallback(router, "/api/v1/payments/callback/imepay/I1?RefId=I1&TransactionId=IME77&Msisdn=98")
	getCallback(router, "/api/v1/payments/callback/connectips/C1?TXNID=C1")
	getCallback(router, "/api/v1/payments/callback/esewa/E1?data=eyJ9")

	require.Equal(t, "IME77", svc.calls[0].TransactionID)
	require.Equal(t, "I1", svc.calls[0].Extras["RefId"])
	require.Equal(t, "C1", svc.calls[1].Extras["TXNID"])
	require.Equal(t, "eyJ9", svc.calls[2].Extras["data"])
}

func TestCallbackCancelSkipsVerification(t *testing.T) {
	svc := &stubSettler{}
	rr := getCallback(newRouter(svc), "/api/v1/payments/callback/paypal/P1?outcome=cancel&token=EC-1")

	require.Equal(t, http.StatusSeeOther, rr.Code)
	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/payment/failure", loc.Path)
	require.Equal(t, "cancelled", loc.Query().Get("reason"))
	require.Empty(t, svc.calls)
}

func TestCallbackFailureReasons(t *testing.T) {
	pending := &stubSettler{out: settlement.Outcome{Status: payment.StatusPending}}
	rr := getCallback(newRouter(pending), "/api/v1/payments/callback/khalti/K1?pidx=p")
	loc, _ := url.Parse(rr.Header().Get("Location"))
	require.Equal(t, "/payment/failure", loc.Path)
	require.Equal(t, "pending", loc.Query().Get("reason"))

	broken := &stubSettler{err: settlement.ErrPaymentNotFound}
	rr = getCallback(newRouter(broken), "/api/v1/payments/callback/khalti/K2?pidx=p")
	loc, _ = url.Parse(rr.Header().Get("Location"))
	require.Equal(t, "/payment/failure", loc.Path)
	require.Equal(t, "verification_failed", loc.Query().Get("reason"))
	require.Equal(t, "K2", loc.Query().Get("orderId"))
}
