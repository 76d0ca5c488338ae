package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	esewaSandboxForm   = "https://rc-epay.esewa.com.np/api/epay/main/v2/form"
	esewaLiveForm      = "https://epay.esewa.com.np/api/epay/main/v2/form"
	esewaSandboxStatus = "https://rc.esewa.com.np/api/epay/transaction/status/"
	esewaLiveStatus    = "https://epay.esewa.com.np/api/epay/transaction/status/"

	// ESewaSignedFieldNames lists, in order, the fields covered by the request signature.
	ESewaSignedFieldNames = "total_amount,transaction_uuid,product_code"
)

// ESewa implements the eSewa ePay v2 form-post flow.
type ESewa struct {
	ProductCode string
	SecretKey   string
	FormURL     string
	StatusURL   string
	Production  bool
	HTTP        Doer
}

// Method implements Provider.
func (ESewa) Method() Method { return MethodESewa }

// FormAction is the URL the payment form posts to.
func (e ESewa) FormAction() string {
	return envBase(e.FormURL, esewaSandboxForm, esewaLiveForm, e.Production)
}

// Initiate renders the signed form that posts the payer to eSewa.
func (e ESewa) Initiate(_ context.Context, intent Intent) (Initiation, error) {
	if err := intent.Validate(); err != nil {
		return Initiation{}, err
	}
	if err := e.configured(); err != nil {
		return Initiation{}, err
	}
	total := formatAmount(intent.Amount)
	fields := []FormField{
		{Name: "amount", Value: total},
		{Name: "tax_amount", Value: "0"},
		{Name: "total_amount", Value: total},
		{Name: "transaction_uuid", Value: intent.OrderID},
		{Name: "product_code", Value: e.ProductCode},
		{Name: "product_service_charge", Value: "0"},
		{Name: "product_delivery_charge", Value: "0"},
		{Name: "success_url", Value: intent.SuccessURL},
		{Name: "failure_url", Value: intent.FailureURL},
		{Name: "signed_field_names", Value: ESewaSignedFieldNames},
		{Name: "signature", Value: e.Signature(total, intent.OrderID, e.ProductCode)},
	}
	return formInitiation(MethodESewa, e.FormAction(), fields, intent.OrderID)
}

// Signature computes base64(HMAC-SHA256) over the three signed fields.
func (e ESewa) Signature(totalAmount, transactionUUID, productCode string) string {
	msg := fmt.Sprintf("total_amount=%s,transaction_uuid=%s,product_code=%s", totalAmount, transactionUUID, productCode)
	return esewaSign(e.SecretKey, msg)
}

func esewaSign(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify confirms the transaction through the status endpoint. When the
// redirect's base64 data parameter is present in Extras["data"], its response
// signature is checked first.
func (e ESewa) Verify(ctx context.Context, ref Reference) Result {
	if err := e.configured(); err != nil {
		return failedResult(nil, "%v", err)
	}
	uuid := ref.OrderID
	amount := ref.Amount
	if data := ref.extra("data"); data != "" {
		cb, err := DecodeESewaCallback(data)
		if err != nil {
			return failedResult([]byte(data), "decode callback: %v", err)
		}
		if !e.CallbackSignatureValid(cb) {
			return failedResult([]byte(data), "callback signature mismatch")
		}
		if uuid == "" {
			uuid = cb.TransactionUUID
		}
		if amount.IsZero() {
			amount, _ = decimal.NewFromString(cb.TotalAmount)
		}
	}
	if uuid == "" || !amount.IsPositive() {
		return failedResult(nil, "transaction uuid and amount are required")
	}

	q := url.Values{}
	q.Set("product_code", e.ProductCode)
	q.Set("total_amount", formatAmount(amount))
	q.Set("transaction_uuid", uuid)
	endpoint := envBase(e.StatusURL, esewaSandboxStatus, esewaLiveStatus, e.Production) + "?" + q.Encode()

	var reply struct {
		ProductCode     string          `json:"product_code"`
		TransactionUUID string          `json:"transaction_uuid"`
		TotalAmount     decimal.Decimal `json:"total_amount"`
		Status          string          `json:"status"`
		RefID           string          `json:"ref_id"`
	}
	raw, err := exchange(ctx, e.HTTP, http.MethodGet, endpoint, nil, nil, &reply)
	if err != nil {
		return failedResult(raw, "esewa status: %v", err)
	}
	switch strings.ToUpper(strings.TrimSpace(reply.Status)) {
	case "COMPLETE":
		if !reply.TotalAmount.IsZero() && !reply.TotalAmount.Equal(amount) {
			return failedResult(raw, "amount mismatch: expected %s got %s", amount, reply.TotalAmount)
		}
		txn := reply.RefID
		if txn == "" {
			txn = reply.TransactionUUID
		}
		return verifiedResult(txn, amount, raw)
	case "PENDING", "AMBIENT":
		return pendingResult(raw, "esewa status "+reply.Status)
	default:
		return failedResult(raw, "esewa status %q", reply.Status)
	}
}

func (e ESewa) configured() error {
	if strings.TrimSpace(e.ProductCode) == "" {
		return notConfigured(MethodESewa, "product code")
	}
	if strings.TrimSpace(e.SecretKey) == "" {
		return notConfigured(MethodESewa, "secret key")
	}
	return nil
}

// ESewaCallback is the decoded data parameter eSewa appends to success_url.
type ESewaCallback struct {
	TransactionCode  string
	Status           string
	TotalAmount      string
	TransactionUUID  string
	ProductCode      string
	SignedFieldNames string
	Signature        string
	fields           map[string]string
}

// DecodeESewaCallback parses the base64 JSON document from the success redirect.
// Numbers keep their literal text because the signature covers it verbatim.
func DecodeESewaCallback(data string) (ESewaCallback, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		decoded, err = base64.URLEncoding.DecodeString(strings.TrimSpace(data))
		if err != nil {
			return ESewaCallback{}, fmt.Errorf("base64: %w", err)
		}
	}
	dec := json.NewDecoder(bytes.NewReader(decoded))
	dec.UseNumber()
	var generic map[string]any
	if err := dec.Decode(&generic); err != nil {
		return ESewaCallback{}, fmt.Errorf("json: %w", err)
	}
	fields := make(map[string]string, len(generic))
	for k, v := range generic {
		switch t := v.(type) {
		case string:
			fields[k] = t
		case json.Number:
			fields[k] = t.String()
		case nil:
			fields[k] = ""
		default:
			fields[k] = fmt.Sprint(t)
		}
	}
	cb := ESewaCallback{
		TransactionCode:  fields["transaction_code"],
		Status:           fields["status"],
		TotalAmount:      fields["total_amount"],
		TransactionUUID:  fields["transaction_uuid"],
		ProductCode:      fields["product_code"],
		SignedFieldNames: fields["signed_field_names"],
		Signature:        fields["signature"],
		fields:           fields,
	}
	if cb.TransactionUUID == "" {
		return ESewaCallback{}, errors.New("transaction_uuid missing")
	}
	return cb, nil
}

// CallbackSignatureValid recomputes the response signature over signed_field_names.
func (e ESewa) CallbackSignatureValid(cb ESewaCallback) bool {
	if cb.SignedFieldNames == "" || cb.Signature == "" {
		return false
	}
	names := strings.Split(cb.SignedFieldNames, ",")
	parts := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		parts = append(parts, name+"="+cb.fields[name])
	}
	expected := esewaSign(e.SecretKey, strings.Join(parts, ","))
	return hmac.Equal([]byte(expected), []byte(cb.Signature))
}
