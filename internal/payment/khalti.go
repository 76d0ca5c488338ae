package payment

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const (
	khaltiSandboxBase = "https://dev.khalti.com/api/v2"
	khaltiLiveBase    = "https://khalti.com/api/v2"
)

// Khalti implements the Khalti ePayment (KPG-2) redirect flow. Amounts are sent in paisa.
type Khalti struct {
	SecretKey  string
	BaseURL    string
	WebsiteURL string
	Production bool
	HTTP       Doer
}

// Method implements Provider.
func (Khalti) Method() Method { return MethodKhalti }

type khaltiCustomer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type khaltiInitiateRequest struct {
	ReturnURL         string          `json:"return_url"`
	WebsiteURL        string          `json:"website_url"`
	Amount            int64           `json:"amount"`
	PurchaseOrderID   string          `json:"purchase_order_id"`
	PurchaseOrderName string          `json:"purchase_order_name"`
	CustomerInfo      *khaltiCustomer `json:"customer_info,omitempty"`
}

// Initiate registers the payment and returns Khalti's hosted payment URL.
// The returned Reference is the pidx needed for lookup.
func (k Khalti) Initiate(ctx context.Context, intent Intent) (Initiation, error) {
	if err := intent.Validate(); err != nil {
		return Initiation{}, err
	}
	if strings.TrimSpace(k.SecretKey) == "" {
		return Initiation{}, notConfigured(MethodKhalti, "secret key")
	}
	body := khaltiInitiateRequest{
		ReturnURL:         intent.SuccessURL,
		WebsiteURL:        k.websiteURL(intent),
		Amount:            ToMinorUnits(intent.Amount),
		PurchaseOrderID:   intent.OrderID,
		PurchaseOrderName: intent.purpose(),
	}
	if c := intent.Customer; c.Name != "" || c.Email != "" || c.Phone != "" {
		body.CustomerInfo = &khaltiCustomer{Name: c.Name, Email: c.Email, Phone: c.Phone}
	}
	var reply struct {
		Pidx       string `json:"pidx"`
		PaymentURL string `json:"payment_url"`
	}
	raw, err := exchange(ctx, k.HTTP, http.MethodPost, k.base()+"/epayment/initiate/", k.headers(), body, &reply)
	if err != nil {
		return Initiation{}, fmt.Errorf("%w: khalti initiate: %v", ErrGateway, err)
	}
	if reply.Pidx == "" || reply.PaymentURL == "" {
		return Initiation{}, fmt.Errorf("%w: khalti initiate: incomplete reply %s", ErrGateway, truncate(string(raw), 200))
	}
	return Initiation{Method: MethodKhalti, RedirectURL: reply.PaymentURL, Reference: reply.Pidx}, nil
}

// Verify looks up the pidx. Only "Completed" counts as paid.
func (k Khalti) Verify(ctx context.Context, ref Reference) Result {
	if strings.TrimSpace(k.SecretKey) == "" {
		return failedResult(nil, "%v", notConfigured(MethodKhalti, "secret key"))
	}
	pidx := ref.ProviderRef
	if pidx == "" {
		pidx = ref.extra("pidx")
	}
	if pidx == "" {
		return failedResult(nil, "pidx is required")
	}
	var reply struct {
		Pidx          string `json:"pidx"`
		TotalAmount   int64  `json:"total_amount"`
		Status        string `json:"status"`
		TransactionID string `json:"transaction_id"`
	}
	raw, err := exchange(ctx, k.HTTP, http.MethodPost, k.base()+"/epayment/lookup/", k.headers(), map[string]string{"pidx": pidx}, &reply)
	if err != nil {
		return failedResult(raw, "khalti lookup: %v", err)
	}
	switch reply.Status {
	case "Completed":
		amount := FromMinorUnits(reply.TotalAmount)
		if ref.Amount.IsPositive() && reply.TotalAmount > 0 && !amount.Equal(ref.Amount) {
			return failedResult(raw, "amount mismatch: expected %s got %s", ref.Amount, amount)
		}
		return verifiedResult(reply.TransactionID, amount, raw)
	case "Pending", "Initiated":
		return pendingResult(raw, "khalti status "+reply.Status)
	default:
		return failedResult(raw, "khalti status %q", reply.Status)
	}
}

func (k Khalti) base() string {
	return envBase(k.BaseURL, khaltiSandboxBase, khaltiLiveBase, k.Production)
}

func (k Khalti) headers() map[string]string {
	return map[string]string{"Authorization": "Key " + k.SecretKey}
}

func (k Khalti) websiteURL(intent Intent) string {
	if k.WebsiteURL != "" {
		return k.WebsiteURL
	}
	if u, err := parseOrigin(intent.SuccessURL); err == nil {
		return u
	}
	return intent.SuccessURL
}
