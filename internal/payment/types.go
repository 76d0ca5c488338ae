package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Method names a payment channel selectable on the public forms.
type Method string

const (
	MethodESewa      Method = "esewa"
	MethodKhalti     Method = "khalti"
	MethodPayPal     Method = "paypal"
	MethodStripe     Method = "stripe"
	MethodIMEPay     Method = "imepay"
	MethodConnectIPS Method = "connectips"
	// MethodBank and MethodCash are settled out of band and never reach a gateway.
	MethodBank Method = "bank"
	MethodCash Method = "cash"
)

// ParseMethod normalises user input into a Method. It does not check registration.
func ParseMethod(v string) Method {
	m := strings.ToLower(strings.TrimSpace(v))
	switch m {
	case "ime", "ime_pay", "ime-pay":
		return MethodIMEPay
	case "connect_ips", "connect-ips", "ips":
		return MethodConnectIPS
	}
	return Method(m)
}

// Manual reports whether the method is reconciled by staff instead of a gateway.
func (m Method) Manual() bool { return m == MethodBank || m == MethodCash }

var (
	// ErrUnknownMethod is returned when no adapter is registered for a method.
	ErrUnknownMethod = errors.New("payment: unknown method")
	// ErrNotConfigured is returned when a gateway is used without credentials.
	ErrNotConfigured = errors.New("payment: gateway not configured")
	// ErrInvalidIntent marks an intent that failed validation.
	ErrInvalidIntent = errors.New("payment: invalid intent")
	// ErrGateway wraps a rejection or malformed reply from a gateway during initiation.
	ErrGateway = errors.New("payment: gateway error")
)

func notConfigured(m Method, field string) error {
	return fmt.Errorf("%w: %s %s missing", ErrNotConfigured, m, field)
}

// Customer identifies the payer as entered on the form.
type Customer struct {
	Name  string
	Email string
	Phone string
}

// Intent is the immutable description of a payment the caller wants to collect.
type Intent struct {
	OrderID    string
	Amount     decimal.Decimal
	Currency   string
	Purpose    string
	Customer   Customer
	SuccessURL string
	FailureURL string
	CreatedAt  time.Time
}

// Validate checks the fields every gateway needs.
func (i Intent) Validate() error {
	var missing []string
	if strings.TrimSpace(i.OrderID) == "" {
		missing = append(missing, "orderId")
	}
	if !i.Amount.IsPositive() || !hasMinorUnitPrecision(i.Amount) {
		missing = append(missing, "amount")
	}
	if strings.TrimSpace(i.SuccessURL) == "" {
		missing = append(missing, "successUrl")
	}
	if strings.TrimSpace(i.FailureURL) == "" {
		missing = append(missing, "failureUrl")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidIntent, strings.Join(missing, ", "))
	}
	return nil
}

func (i Intent) currency() string {
	if c := strings.ToUpper(strings.TrimSpace(i.Currency)); c != "" {
		return c
	}
	return "NPR"
}

func (i Intent) purpose() string {
	if p := strings.TrimSpace(i.Purpose); p != "" {
		return p
	}
	return "Payment " + i.OrderID
}

func (i Intent) createdAt() time.Time {
	if i.CreatedAt.IsZero() {
		return time.Now()
	}
	return i.CreatedAt
}

// FormField is one hidden input of a form-post initiation.
type FormField struct {
	Name  string
	Value string
}

// Initiation tells the caller how to move the browser to the gateway. Exactly one
// of RedirectURL or FormHTML is set.
type Initiation struct {
	Method      Method
	RedirectURL string
	FormHTML    string
	FormAction  string
	Fields      []FormField
	// Reference must be retained by the caller and handed back on verification.
	Reference string
}

// Field returns the value of a form field by name.
func (in Initiation) Field(name string) string {
	for _, f := range in.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// Reference carries what a gateway needs to confirm a payment.
type Reference struct {
	OrderID string
	// ProviderRef is the value returned in Initiation.Reference (pidx, session id, PayPal order id).
	ProviderRef string
	// TransactionID is the gateway transaction id reported on the return redirect, if any.
	TransactionID string
	Amount        decimal.Decimal
	Currency      string
	Extras        map[string]string
}

func (r Reference) extra(key string) string {
	if r.Extras == nil {
		return ""
	}
	return strings.TrimSpace(r.Extras[key])
}

// Status is the normalised verification outcome.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusFailed   Status = "failed"
)

// Result is the outcome of one verification attempt. A verified Result always
// carries a non-empty TransactionID.
type Result struct {
	Status        Status
	TransactionID string
	Amount        decimal.Decimal
	Raw           []byte
	// Reason is an internal diagnostic; it is logged but never shown to payers.
	Reason string
}

// Verified reports whether the payment was confirmed.
func (r Result) Verified() bool { return r.Status == StatusVerified && r.TransactionID != "" }

func verifiedResult(txnID string, amount decimal.Decimal, raw []byte) Result {
	txnID = strings.TrimSpace(txnID)
	if txnID == "" {
		return Result{Status: StatusFailed, Raw: raw, Reason: "gateway confirmed payment without a transaction id"}
	}
	return Result{Status: StatusVerified, TransactionID: txnID, Amount: amount, Raw: raw}
}

func failedResult(raw []byte, format string, args ...any) Result {
	return Result{Status: StatusFailed, Raw: raw, Reason: fmt.Sprintf(format, args...)}
}

func pendingResult(raw []byte, reason string) Result {
	return Result{Status: StatusPending, Raw: raw, Reason: reason}
}

// Provider is implemented by each gateway adapter. Verify never returns an
// error: transport or decoding problems become a failed Result.
type Provider interface {
	Method() Method
	Initiate(ctx context.Context, intent Intent) (Initiation, error)
	Verify(ctx context.Context, ref Reference) Result
}

// hasMinorUnitPrecision reports whether amount fits the two decimal places
// payments are stored with. eSewa and IME Pay sign the amount, so initiate and
// verify must see the same value.
func hasMinorUnitPrecision(amount decimal.Decimal) bool {
	return amount.Equal(amount.Round(2))
}

// ToMinorUnits converts a major-unit amount into the smallest currency unit (×100).
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// FromMinorUnits converts a smallest-unit amount back to major units.
func FromMinorUnits(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}

func formatAmount(amount decimal.Decimal) string {
	return amount.String()
}
