package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func serve(h Headers, req *http.Request) *httptest.ResponseRecorder {
	handler := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestHeadersMiddlewareSetsSecurityHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "https://api.example.org/api/v1/payments/methods", nil)
	req.TLS = &tls.ConnectionState{}
	rr := serve(Headers{EnableHSTS: true, HSTSIncludeSubdomains: true}, req)

	h := rr.Header()
	require.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", h.Get("X-Frame-Options"))
	require.Equal(t, "max-age=31536000; includeSubDomains", h.Get("Strict-Transport-Security"))
	require.Contains(t, h.Get("Content-Security-Policy"), "frame-ancestors 'none'")
}

func TestHeadersSkipHSTSOverPlainHTTP(t *testing.T) {
	rr := serve(Headers{EnableHSTS: true}, httptest.NewRequest(http.MethodGet, "http://localhost/", nil))
	require.Empty(t, rr.Header().Get("Strict-Transport-Security"))
}

func TestHeadersAllowGatewayFormActions(t *testing.T) {
	rr := serve(Headers{FormActions: []string{"https://rc-epay.esewa.com.np", "", "https://uat.connectips.com"}},
		httptest.NewRequest(http.MethodPost, "/api/v1/payments/initiate?render=html", nil))

	csp := rr.Header().Get("Content-Security-Policy")
	require.True(t, strings.HasSuffix(csp, "form-action 'self' https://rc-epay.esewa.com.np https://uat.connectips.com"), csp)
}
