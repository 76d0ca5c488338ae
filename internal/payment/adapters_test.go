package payment_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/MotionAge/sn-sub000/internal/payment"
)

func testIntent(orderID string, amount int64) payment.Intent {
	return payment.Intent{
		OrderID:    orderID,
		Amount:     decimal.NewFromInt(amount),
		Currency:   "NPR",
		Purpose:    "Donation",
		Customer:   payment.Customer{Name: "Test User", Email: "test@example.org", Phone: "9800000000"},
		SuccessURL: "https://api.example.org/api/v1/payments/callback/x/" + orderID,
		FailureURL: "https://api.example.org/api/v1/payments/callback/x/" + orderID + "?outcome=cancel",
		CreatedAt:  time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC),
	}
}

func TestESewaSignatureMatchesPublishedExample(t *testing.T) {
	e := payment.ESewa{ProductCode: "EPAYTEST", SecretKey: "8gBm/:&EnhH.1/q"}
	require.Equal(t, "i94zsd3oXF6ZsSr/kGqT4sSzYQzjj1W/waxjWyRwaME=", e.Signature("110", "241028", "EPAYTEST"))
	require.Equal(t, "5DZywcrTKD0gia/rsSMcrRHmJl+4Tbol6S+lWgdJ94E=", e.Signature("100", "11-201-13", "EPAYTEST"))
}

func TestESewaInitiateBuildsSignedForm(t *testing.T) {
	e := payment.ESewa{ProductCode: "EPAYTEST", SecretKey: "8gBm/:&EnhH.1/q"}
	init, err := e.Initiate(context.Background(), testIntent("E2024001-R1", 1500))
	require.NoError(t, err)

	names := make([]string, 0, len(init.Fields))
	for _, f := range init.Fields {
		names = append(names, f.Name)
	}
	require.Equal(t, []string{
		"amount", "tax_amount", "total_amount", "transaction_uuid", "product_code",
		"product_service_charge", "product_delivery_charge", "success_url", "failure_url",
		"signed_field_names", "signature",
	}, names)
	require.Equal(t, "1500", init.Field("total_amount"))
	require.Equal(t, payment.ESewaSignedFieldNames, init.Field("signed_field_names"))
	require.Equal(t, e.Signature("1500", "E2024001-R1", "EPAYTEST"), init.Field("signature"))
	require.Equal(t, "https://rc-epay.esewa.com.np/api/epay/main/v2/form", init.FormAction)
	require.Contains(t, init.FormHTML, `name="transaction_uuid" value="E2024001-R1"`)
	require.Empty(t, init.RedirectURL)
}

func TestESewaInitiateRequiresCredentials(t *testing.T) {
	_, err := payment.ESewa{ProductCode: "EPAYTEST"}.Initiate(context.Background(), testIntent("E1", 10))
	require.ErrorIs(t, err, payment.ErrNotConfigured)
}

func esewaCallbackData(t *testing.T, secret string, fields map[string]any) string {
	t.Helper()
	names := []string{"transaction_code", "status", "total_amount", "transaction_uuid", "product_code", "signed_field_names"}
	fields["signed_field_names"] = strings.Join(names, ",")
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, n+"="+jsonLiteral(fields[n]))
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(parts, ",")))
	fields["signature"] = base64.StdEncoding.EncodeToString(mac.Sum(nil))
	buf, err := json.Marshal(fields)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(buf)
}

func jsonLiteral(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		buf, _ := json.Marshal(t)
		return string(buf)
	}
}

func TestESewaVerifyChecksCallbackAndStatus(t *testing.T) {
	var statusCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&statusCalls, 1)
		require.Equal(t, "E2024001-R1", r.URL.Query().Get("transaction_uuid"))
		require.Equal(t, "1500", r.URL.Query().Get("total_amount"))
		_, _ = w.Write([]byte(`{"product_code":"EPAYTEST","transaction_uuid":"E2024001-R1","total_amount":1500.0,"status":"COMPLETE","ref_id":"000AE01"}`))
	}))
	defer srv.Close()

	e := payment.ESewa{ProductCode: "EPAYTEST", SecretKey: "secret", StatusURL: srv.URL, HTTP: payment.PlainDoer(srv.Client())}
	data := esewaCallbackData(t, "secret", map[string]any{
		"transaction_code": "000AE01",
		"status":           "COMPLETE",
		"total_amount":     json.Number("1500.0"),
		"transaction_uuid": "E2024001-R1",
		"product_code":     "EPAYTEST",
	})

	res := e.Verify(context.Background(), payment.Reference{OrderID: "E2024001-R1", Amount: decimal.NewFromInt(1500), Extras: map[string]string{"data": data}})
	require.True(t, res.Verified(), res.Reason)
	require.Equal(t, "000AE01", res.TransactionID)
	require.EqualValues(t, 1, atomic.LoadInt32(&statusCalls))

	tampered := esewaCallbackData(t, "other-secret", map[string]any{
		"transaction_code": "000AE01",
		"status":           "COMPLETE",
		"total_amount":     json.Number("1500.0"),
		"transaction_uuid": "E2024001-R1",
		"product_code":     "EPAYTEST",
	})
	res = e.Verify(context.Background(), payment.Reference{OrderID: "E2024001-R1", Amount: decimal.NewFromInt(1500), Extras: map[string]string{"data": tampered}})
	require.False(t, res.Verified())
	require.Equal(t, payment.StatusFailed, res.Status)
	require.EqualValues(t, 1, atomic.LoadInt32(&statusCalls))
}

func TestESewaVerifyPending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"PENDING","ref_id":null}`))
	}))
	defer srv.Close()
	e := payment.ESewa{ProductCode: "EPAYTEST", SecretKey: "secret", StatusURL: srv.URL, HTTP: payment.PlainDoer(srv.Client())}
	res := e.Verify(context.Background(), payment.Reference{OrderID: "E9", Amount: decimal.NewFromInt(10)})
	require.Equal(t, payment.StatusPending, res.Status)
	require.False(t, res.Verified())
}

func TestKhaltiInitiateSendsPaisa(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/epayment/initiate/", r.URL.Path)
		require.Equal(t, "Key live_secret", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.EqualValues(t, 150000, body["amount"])
		require.Equal(t, "E2024001-R1", body["purchase_order_id"])
		require.Equal(t, "https://example.org", body["website_url"])
		_, _ = w.Write([]byte(`{"pidx":"PIDX1","payment_url":"https://test-pay.khalti.com/?pidx=PIDX1"}`))
	}))
	defer srv.Close()

	k := payment.Khalti{SecretKey: "live_secret", BaseURL: srv.URL, WebsiteURL: "https://example.org", HTTP: payment.PlainDoer(srv.Client())}
	init, err := k.Initiate(context.Background(), testIntent("E2024001-R1", 1500))
	require.NoError(t, err)
	require.Equal(t, "PIDX1", init.Reference)
	require.Equal(t, "https://test-pay.khalti.com/?pidx=PIDX1", init.RedirectURL)
}

func TestKhaltiInitiateGatewayRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"amount":["Amount should be greater than Rs. 10"]}`))
	}))
	defer srv.Close()
	k := payment.Khalti{SecretKey: "s", BaseURL: srv.URL, HTTP: payment.PlainDoer(srv.Client())}
	_, err := k.Initiate(context.Background(), testIntent("E1", 1))
	require.ErrorIs(t, err, payment.ErrGateway)
}

func TestKhaltiVerifyStatuses(t *testing.T) {
	reply := `{"pidx":"PIDX1","total_amount":150000,"status":"Completed","transaction_id":"TXN1"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/epayment/lookup/", r.URL.Path)
		_, _ = w.Write([]byte(reply))
	}))
	defer srv.Close()
	k := payment.Khalti{SecretKey: "s", BaseURL: srv.URL, HTTP: payment.PlainDoer(srv.Client())}
	ref := payment.Reference{OrderID: "E2024001-R1", ProviderRef: "PIDX1", Amount: decimal.NewFromInt(1500)}

	res := k.Verify(context.Background(), ref)
	require.True(t, res.Verified())
	require.Equal(t, "TXN1", res.TransactionID)
	require.True(t, res.Amount.Equal(decimal.NewFromInt(1500)))

	reply = `{"pidx":"PIDX1","total_amount":100000,"status":"Completed","transaction_id":"TXN1"}`
	res = k.Verify(context.Background(), ref)
	require.Equal(t, payment.StatusFailed, res.Status)

	reply = `{"pidx":"PIDX1","status":"Pending"}`
	require.Equal(t, payment.StatusPending, k.Verify(context.Background(), ref).Status)

	reply = `{"pidx":"PIDX1","status":"User canceled"}`
	require.Equal(t, payment.StatusFailed, k.Verify(context.Background(), ref).Status)

	reply = `{"pidx":"PIDX1","status":"Completed","transaction_id":""}`
	res = k.Verify(context.Background(), ref)
	require.False(t, res.Verified())
	require.Equal(t, payment.StatusFailed, res.Status)
}

func newPayPalStub(t *testing.T, alreadyCaptured bool) (*httptest.Server, *int32) {
	t.Helper()
	var captures int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "cid", user)
		require.Equal(t, "csecret", pass)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"AT1","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer AT1", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "CAPTURE", body["intent"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"PPORDER1","status":"CREATED","links":[{"href":"https://api-m.sandbox.paypal.com/v2/checkout/orders/PPORDER1","rel":"self"},{"href":"https://www.sandbox.paypal.com/checkoutnow?token=PPORDER1","rel":"approve"}]}`))
	})
	completed := `{"id":"PPORDER1","status":"COMPLETED","purchase_units":[{"reference_id":"E2024001-R1","payments":{"captures":[{"id":"CAP1","status":"COMPLETED","amount":{"currency_code":"USD","value":"15.00"}}]}}]}`
	mux.HandleFunc("/v2/checkout/orders/PPORDER1/capture", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&captures, 1)
		require.Equal(t, "capture-PPORDER1", r.Header.Get("PayPal-Request-Id"))
		w.Header().Set("Content-Type", "application/json")
		if alreadyCaptured || n > 1 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"ORDER_ALREADY_CAPTURED"}]}`))
			return
		}
		_, _ = w.Write([]byte(completed))
	})
	mux.HandleFunc("/v2/checkout/orders/PPORDER1", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(completed))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &captures
}

func TestPayPalInitiateAndCapture(t *testing.T) {
	srv, captures := newPayPalStub(t, false)
	p := payment.PayPal{ClientID: "cid", ClientSecret: "csecret", BaseURL: srv.URL, HTTP: payment.PlainDoer(srv.Client()), TokenClient: srv.Client()}

	intent := testIntent("E2024001-R1", 15)
	intent.Currency = "USD"
	init, err := p.Initiate(context.Background(), intent)
	require.NoError(t, err)
	require.Equal(t, "PPORDER1", init.Reference)
	require.Equal(t, "https://www.sandbox.paypal.com/checkoutnow?token=PPORDER1", init.RedirectURL)

	res := p.Verify(context.Background(), payment.Reference{OrderID: "E2024001-R1", ProviderRef: init.Reference})
	require.True(t, res.Verified(), res.Reason)
	require.Equal(t, "CAP1", res.TransactionID)
	require.True(t, res.Amount.Equal(decimal.NewFromInt(15)))
	require.EqualValues(t, 1, atomic.LoadInt32(captures))
}

func TestPayPalVerifyAlreadyCapturedFallsBackToOrder(t *testing.T) {
	srv, _ := newPayPalStub(t, true)
	p := payment.PayPal{ClientID: "cid", ClientSecret: "csecret", BaseURL: srv.URL, HTTP: payment.PlainDoer(srv.Client()), TokenClient: srv.Client()}

	res := p.Verify(context.Background(), payment.Reference{OrderID: "E2024001-R1", Extras: map[string]string{"token": "PPORDER1"}})
	require.True(t, res.Verified(), res.Reason)
	require.Equal(t, "CAP1", res.TransactionID)

	res = p.Verify(context.Background(), payment.Reference{OrderID: "E2024001-R1", ProviderRef: "PPORDER1", Amount: decimal.NewFromInt(20)})
	require.Equal(t, payment.StatusFailed, res.Status)
	require.Contains(t, res.Reason, "amount mismatch")
}

func TestPayPalZeroDecimalCurrency(t *testing.T) {
	var value string
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"AT1","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			PurchaseUnits []struct {
				Amount struct {
					Value string `json:"value"`
				} `json:"amount"`
			} `json:"purchase_units"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		value = body.PurchaseUnits[0].Amount.Value
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"PPORDER2","status":"CREATED","links":[{"href":"https://www.sandbox.paypal.com/checkoutnow?token=PPORDER2","rel":"approve"}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	p := payment.PayPal{ClientID: "cid", ClientSecret: "csecret", BaseURL: srv.URL, HTTP: payment.PlainDoer(srv.Client()), TokenClient: srv.Client()}

	intent := testIntent("E2024002", 1500)
	intent.Currency = "JPY"
	_, err := p.Initiate(context.Background(), intent)
	require.NoError(t, err)
	require.Equal(t, "1500", value)

	intent.Currency = "USD"
	_, err = p.Initiate(context.Background(), intent)
	require.NoError(t, err)
	require.Equal(t, "1500.00", value)

	intent.Currency = "JPY"
	intent.Amount = decimal.RequireFromString("10.50")
	_, err = p.Initiate(context.Background(), intent)
	require.ErrorIs(t, err, payment.ErrInvalidIntent)
}

func TestPayPalWithoutCredentials(t *testing.T) {
	_, err := payment.PayPal{}.Initiate(context.Background(), testIntent("E1", 10))
	require.ErrorIs(t, err, payment.ErrNotConfigured)
}

func TestStripeCheckoutSession(t *testing.T) {
	var created int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/checkout/sessions":
			atomic.AddInt32(&created, 1)
			raw, _ := io.ReadAll(r.Body)
			form := string(raw)
			require.Contains(t, form, "mode=payment")
			require.Contains(t, form, "client_reference_id=E2024001-R1")
			require.Contains(t, form, "150000")
			_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_1","payment_status":"unpaid","status":"open"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/checkout/sessions/cs_test_1":
			_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","payment_status":"paid","status":"complete","amount_total":150000,"payment_intent":"pi_123"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/checkout/sessions/cs_open":
			_, _ = w.Write([]byte(`{"id":"cs_open","object":"checkout.session","payment_status":"unpaid","status":"open"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"no such session"}}`))
		}
	}))
	defer srv.Close()

	s := payment.Stripe{SecretKey: "sk_test_123", BaseURL: srv.URL, HTTPClient: srv.Client()}
	init, err := s.Initiate(context.Background(), testIntent("E2024001-R1", 1500))
	require.NoError(t, err)
	require.Equal(t, "cs_test_1", init.Reference)
	require.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", init.RedirectURL)
	require.EqualValues(t, 1, atomic.LoadInt32(&created))

	res := s.Verify(context.Background(), payment.Reference{OrderID: "E2024001-R1", ProviderRef: "cs_test_1", Amount: decimal.NewFromInt(1500)})
	require.True(t, res.Verified(), res.Reason)
	require.Equal(t, "pi_123", res.TransactionID)
	require.True(t, res.Amount.Equal(decimal.NewFromInt(1500)))

	res = s.Verify(context.Background(), payment.Reference{OrderID: "E2024001-R1", ProviderRef: "cs_test_1", Amount: decimal.NewFromInt(1000)})
	require.Equal(t, payment.StatusFailed, res.Status)
	require.Contains(t, res.Reason, "amount mismatch")

	res = s.Verify(context.Background(), payment.Reference{OrderID: "E2", Extras: map[string]string{"session_id": "cs_open"}})
	require.Equal(t, payment.StatusPending, res.Status)

	res = s.Verify(context.Background(), payment.Reference{OrderID: "E3", ProviderRef: "cs_missing"})
	require.Equal(t, payment.StatusFailed, res.Status)
}

func TestIMEPayTokenAndForm(t *testing.T) {
	p := payment.IMEPay{MerchantCode: "SHARED", Module: "SHARED", Username: "u", Password: "pw"}
	sum := sha256.Sum256([]byte("SHAREDE2024001-R11500SHAREDpw"))
	want := strings.ToUpper(hex.EncodeToString(sum[:]))
	require.Equal(t, want, p.Token("E2024001-R1", "1500"))

	init, err := p.Initiate(context.Background(), testIntent("E2024001-R1", 1500))
	require.NoError(t, err)
	require.Equal(t, want, init.Field("TokenId"))
	require.Equal(t, "1500", init.Field("TranAmount"))
	require.Equal(t, "E2024001-R1", init.Field("RefId"))
	require.NotEmpty(t, init.FormHTML)
}

func TestIMEPayVerifyUsesConfirmReply(t *testing.T) {
	reply := `{"ResponseCode":0,"ResponseDescription":"Success","TransactionId":"IME1"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/Confirm", r.URL.Path)
		require.Equal(t, base64.StdEncoding.EncodeToString([]byte("SHARED")), r.Header.Get("Module"))
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "u", user)
		require.Equal(t, "pw", pass)
		_, _ = w.Write([]byte(reply))
	}))
	defer srv.Close()
	p := payment.IMEPay{MerchantCode: "SHARED", Module: "SHARED", Username: "u", Password: "pw", BaseURL: srv.URL, HTTP: payment.PlainDoer(srv.Client())}
	ref := payment.Reference{OrderID: "E2024001-R1", Amount: decimal.NewFromInt(1500)}

	res := p.Verify(context.Background(), ref)
	require.True(t, res.Verified(), res.Reason)
	require.Equal(t, "IME1", res.TransactionID)

	reply = `{"ResponseCode":1,"ResponseDescription":"Failed"}`
	require.Equal(t, payment.StatusFailed, p.Verify(context.Background(), ref).Status)
}

func TestConnectIPSTokenAndValidate(t *testing.T) {
	c := payment.ConnectIPS{MerchantID: "M1", AppID: "APP1", AppName: "Sanatan", Password: "pw"}
	init, err := c.Initiate(context.Background(), testIntent("E2024001-R1", 1500))
	require.NoError(t, err)
	require.Equal(t, "150000", init.Field("TXNAMT"))
	require.Equal(t, "09-03-2024", init.Field("TXNDATE"))
	msg := "MERCHANTID=M1,APPID=APP1,APPNAME=Sanatan,TXNID=E2024001-R1,TXNDATE=09-03-2024,TXNCRNCY=NPR,TXNAMT=150000,REFERENCEID=E2024001-R1,REMARKS=Donation,PARTICULARS=E2024001-R1,TOKEN=TOKEN"
	require.Equal(t, "687FB493616F57843AEA3CB1D30D1EC29C1A1F72DD7F2751D86DFCFEAD7EFF2A", c.Token(msg))
	require.Equal(t, c.Token(msg), init.Field("TOKEN"))

	status := "SUCCESS"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "F52A7DDDBE417606BECB7E66E6AEFEF7E6B1EEE819A789F6BECC38365C79E837", body["token"])
		_, _ = w.Write([]byte(`{"merchantId":"M1","appId":"APP1","referenceId":"E2024001-R1","txnAmt":"150000","status":"` + status + `","statusDesc":"ok"}`))
	}))
	defer srv.Close()
	c.ValidateURL = srv.URL
	c.HTTP = payment.PlainDoer(srv.Client())

	res := c.Verify(context.Background(), payment.Reference{OrderID: "E2024001-R1", Amount: decimal.NewFromInt(1500)})
	require.True(t, res.Verified(), res.Reason)
	require.Equal(t, "E2024001-R1", res.TransactionID)

	status = "FAILED"
	require.Equal(t, payment.StatusFailed, c.Verify(context.Background(), payment.Reference{OrderID: "E2024001-R1", Amount: decimal.NewFromInt(1500)}).Status)
}

func TestVerifyTwiceReturnsSameStatus(t *testing.T) {
	serve := func(t *testing.T, body string) *httptest.Server {
		t.Helper()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		}))
		t.Cleanup(srv.Close)
		return srv
	}
	amount := decimal.NewFromInt(1500)

	cases := []struct {
		name  string
		setup func(t *testing.T) (payment.Provider, payment.Reference)
		txn   string
	}{
		{
			name: "esewa",
			setup: func(t *testing.T) (payment.Provider, payment.Reference) {
				srv := serve(t, `{"product_code":"EPAYTEST","transaction_uuid":"E2024001-R1","total_amount":1500.0,"status":"COMPLETE","ref_id":"000AE01"}`)
				data := esewaCallbackData(t, "secret", map[string]any{
					"transaction_code": "000AE01",
					"status":           "COMPLETE",
					"total_amount":     json.Number("1500.0"),
					"transaction_uuid": "E2024001-R1",
					"product_code":     "EPAYTEST",
				})
				p := payment.ESewa{ProductCode: "EPAYTEST", SecretKey: "secret", StatusURL: srv.URL, HTTP: payment.PlainDoer(srv.Client())}
				return p, payment.Reference{OrderID: "E2024001-R1", Amount: amount, Extras: map[string]string{"data": data}}
			},
			txn: "000AE01",
		},
		{
			name: "khalti",
			setup: func(t *testing.T) (payment.Provider, payment.Reference) {
				srv := serve(t, `{"pidx":"PIDX1","total_amount":150000,"status":"Completed","transaction_id":"TXN1"}`)
				p := payment.Khalti{SecretKey: "s", BaseURL: srv.URL, HTTP: payment.PlainDoer(srv.Client())}
				return p, payment.Reference{OrderID: "E2024001-R1", ProviderRef: "PIDX1", Amount: amount}
			},
			txn: "TXN1",
		},
		{
			name: "paypal capture then already captured",
			setup: func(t *testing.T) (payment.Provider, payment.Reference) {
				srv, _ := newPayPalStub(t, false)
				p := payment.PayPal{ClientID: "cid", ClientSecret: "csecret", BaseURL: srv.URL, HTTP: payment.PlainDoer(srv.Client()), TokenClient: srv.Client()}
				return p, payment.Reference{OrderID: "E2024001-R1", ProviderRef: "PPORDER1"}
			},
			txn: "CAP1",
		},
		{
			name: "stripe",
			setup: func(t *testing.T) (payment.Provider, payment.Reference) {
				srv := serve(t, `{"id":"cs_test_1","object":"checkout.session","payment_status":"paid","status":"complete","amount_total":150000,"payment_intent":"pi_123"}`)
				p := payment.Stripe{SecretKey: "sk_test_123", BaseURL: srv.URL, HTTPClient: srv.Client()}
				return p, payment.Reference{OrderID: "E2024001-R1", ProviderRef: "cs_test_1", Amount: amount}
			},
			txn: "pi_123",
		},
		{
			name: "imepay",
			setup: func(t *testing.T) (payment.Provider, payment.Reference) {
				srv := serve(t, `{"ResponseCode":0,"ResponseDescription":"Success","TransactionId":"IME1"}`)
				p := payment.IMEPay{MerchantCode: "SHARED", Module: "SHARED", Username: "u", Password: "pw", BaseURL: srv.URL, HTTP: payment.PlainDoer(srv.Client())}
				return p, payment.Reference{OrderID: "E2024001-R1", Amount: amount}
			},
			txn: "IME1",
		},
		{
			name: "connectips",
			setup: func(t *testing.T) (payment.Provider, payment.Reference) {
				srv := serve(t, `{"merchantId":"M1","appId":"APP1","referenceId":"E2024001-R1","txnAmt":"150000","status":"SUCCESS","statusDesc":"ok"}`)
				p := payment.ConnectIPS{MerchantID: "M1", AppID: "APP1", AppName: "Sanatan", Password: "pw", ValidateURL: srv.URL, HTTP: payment.PlainDoer(srv.Client())}
				return p, payment.Reference{OrderID: "E2024001-R1", Amount: amount}
			},
			txn: "E2024001-R1",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, ref := tc.setup(t)
			first := p.Verify(context.Background(), ref)
			second := p.Verify(context.Background(), ref)
			require.True(t, first.Verified(), first.Reason)
			require.Equal(t, first.Status, second.Status, second.Reason)
			require.Equal(t, tc.txn, first.TransactionID)
			require.Equal(t, first.TransactionID, second.TransactionID)
		})
	}
}

func TestMinorUnits(t *testing.T) {
	require.EqualValues(t, 150000, payment.ToMinorUnits(decimal.NewFromInt(1500)))
	require.EqualValues(t, 1050, payment.ToMinorUnits(decimal.RequireFromString("10.499")))
	require.True(t, payment.FromMinorUnits(150000).Equal(decimal.NewFromInt(1500)))
}
