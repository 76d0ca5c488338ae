package payment

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	imePaySandboxBase     = "https://stg.imepay.com.np:7979/api/Web"
	imePayLiveBase        = "https://payment.imepay.com.np:7979/api/Web"
	imePaySandboxCheckout = "https://stg.imepay.com.np:7979/WebCheckout/Checkout"
	imePayLiveCheckout    = "https://payment.imepay.com.np:7979/WebCheckout/Checkout"
)

// IMEPay implements the IME Pay web checkout form-post flow.
type IMEPay struct {
	MerchantCode string
	Module       string
	Username     string
	Password     string
	BaseURL      string
	CheckoutURL  string
	Production   bool
	HTTP         Doer
}

// Method implements Provider.
func (IMEPay) Method() Method { return MethodIMEPay }

// Token is upper(hex(SHA-256(merchantCode + refId + amount + module + password))).
func (p IMEPay) Token(refID, amount string) string {
	sum := sha256.Sum256([]byte(p.MerchantCode + refID + amount + p.Module + p.Password))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// FormAction is the URL the payment form posts to.
func (p IMEPay) FormAction() string {
	return envBase(p.CheckoutURL, imePaySandboxCheckout, imePayLiveCheckout, p.Production)
}

// Initiate renders the checkout form.
func (p IMEPay) Initiate(_ context.Context, intent Intent) (Initiation, error) {
	if err := intent.Validate(); err != nil {
		return Initiation{}, err
	}
	if err := p.configured(); err != nil {
		return Initiation{}, err
	}
	amount := formatAmount(intent.Amount)
	fields := []FormField{
		{Name: "TokenId", Value: p.Token(intent.OrderID, amount)},
		{Name: "MerchantCode", Value: p.MerchantCode},
		{Name: "RefId", Value: intent.OrderID},
		{Name: "TranAmount", Value: amount},
		{Name: "Method", Value: "GET"},
		{Name: "RespUrl", Value: intent.SuccessURL},
		{Name: "CancelUrl", Value: intent.FailureURL},
	}
	return formInitiation(MethodIMEPay, p.FormAction(), fields, intent.OrderID)
}

// Verify confirms the transaction and hands the reply to parseIMEConfirmation.
func (p IMEPay) Verify(ctx context.Context, ref Reference) Result {
	if err := p.configured(); err != nil {
		return failedResult(nil, "%v", err)
	}
	refID := ref.OrderID
	if refID == "" {
		refID = ref.extra("RefId")
	}
	if refID == "" || !ref.Amount.IsPositive() {
		return failedResult(nil, "ref id and amount are required")
	}
	txnID := ref.TransactionID
	if txnID == "" {
		txnID = ref.extra("TransactionId")
	}
	body := map[string]string{
		"MerchantCode":  p.MerchantCode,
		"RefId":         refID,
		"TokenId":       p.Token(refID, formatAmount(ref.Amount)),
		"TransactionId": txnID,
		"Msisdn":        ref.extra("Msisdn"),
	}
	headers := map[string]string{
		"Authorization": "Basic " + base64.StdEncoding.EncodeToString([]byte(p.Username+":"+p.Password)),
		"Module":        base64.StdEncoding.EncodeToString([]byte(p.Module)),
	}
	base := envBase(p.BaseURL, imePaySandboxBase, imePayLiveBase, p.Production)
	raw, err := exchange(ctx, p.HTTP, http.MethodPost, base+"/Confirm", headers, body, nil)
	if err != nil {
		return failedResult(raw, "imepay confirm: %v", err)
	}
	conf := parseIMEConfirmation(raw)
	if !conf.Success {
		return failedResult(raw, "imepay not successful: %s", conf.Description)
	}
	if conf.TransactionID != "" {
		txnID = conf.TransactionID
	}
	return verifiedResult(txnID, ref.Amount, raw)
}

func (p IMEPay) configured() error {
	if strings.TrimSpace(p.MerchantCode) == "" || strings.TrimSpace(p.Module) == "" {
		return notConfigured(MethodIMEPay, "merchant code/module")
	}
	if strings.TrimSpace(p.Password) == "" {
		return notConfigured(MethodIMEPay, "password")
	}
	return nil
}

type imeConfirmation struct {
	Success       bool
	TransactionID string
	Description   string
}

// parseIMEConfirmation interprets the Confirm reply. The JSON reply signals
// success with ResponseCode 0, or with a "SUCCESS" status/description when no
// code is present. Bodies that are not JSON fall back to a literal "SUCCESS"
// substring match, which is how older merchant integrations detect success.
func parseIMEConfirmation(body []byte) imeConfirmation {
	var reply struct {
		ResponseCode        json.RawMessage `json:"ResponseCode"`
		ResponseDescription string          `json:"ResponseDescription"`
		Status              string          `json:"Status"`
		TransactionID       string          `json:"TransactionId"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return imeConfirmation{
			Success:     strings.Contains(string(body), "SUCCESS"),
			Description: truncate(strings.TrimSpace(string(body)), 120),
		}
	}
	desc := reply.ResponseDescription
	if desc == "" {
		desc = reply.Status
	}
	code := strings.Trim(strings.TrimSpace(string(reply.ResponseCode)), `"`)
	success := false
	if code != "" && code != "null" {
		success = code == "0"
	} else {
		success = strings.EqualFold(desc, "SUCCESS")
	}
	return imeConfirmation{
		Success:       success,
		TransactionID: strings.TrimSpace(reply.TransactionID),
		Description:   fmt.Sprintf("code=%s %s", code, desc),
	}
}
