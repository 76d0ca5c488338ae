package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

const (
	connectIPSSandboxGateway  = "https://uat.connectips.com/connectipswebgw/loginpage"
	connectIPSLiveGateway     = "https://login.connectips.com/connectipswebgw/loginpage"
	connectIPSSandboxValidate = "https://uat.connectips.com/connectipswebws/api/creditor/validatetxn"
	connectIPSLiveValidate    = "https://login.connectips.com/connectipswebws/api/creditor/validatetxn"
)

// ConnectIPS implements the NCHL ConnectIPS login-page form-post flow.
type ConnectIPS struct {
	MerchantID  string
	AppID       string
	AppName     string
	Password    string
	GatewayURL  string
	ValidateURL string
	Production  bool
	HTTP        Doer
}

// Method implements Provider.
func (ConnectIPS) Method() Method { return MethodConnectIPS }

// Token is upper(hex(HMAC-SHA256(password, message))).
func (c ConnectIPS) Token(message string) string {
	mac := hmac.New(sha256.New, []byte(c.Password))
	mac.Write([]byte(message))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

// FormAction is the URL the payment form posts to.
func (c ConnectIPS) FormAction() string {
	return envBase(c.GatewayURL, connectIPSSandboxGateway, connectIPSLiveGateway, c.Production)
}

// Initiate renders the signed login-page form. Amounts are in paisa.
func (c ConnectIPS) Initiate(_ context.Context, intent Intent) (Initiation, error) {
	if err := intent.Validate(); err != nil {
		return Initiation{}, err
	}
	if err := c.configured(); err != nil {
		return Initiation{}, err
	}
	fields := []FormField{
		{Name: "MERCHANTID", Value: c.MerchantID},
		{Name: "APPID", Value: c.AppID},
		{Name: "APPNAME", Value: c.AppName},
		{Name: "TXNID", Value: intent.OrderID},
		{Name: "TXNDATE", Value: intent.createdAt().Format("02-01-2006")},
		{Name: "TXNCRNCY", Value: intent.currency()},
		{Name: "TXNAMT", Value: strconv.FormatInt(ToMinorUnits(intent.Amount), 10)},
		{Name: "REFERENCEID", Value: intent.OrderID},
		{Name: "REMARKS", Value: truncate(intent.purpose(), 50)},
		{Name: "PARTICULARS", Value: intent.OrderID},
	}
	parts := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		parts = append(parts, f.Name+"="+f.Value)
	}
	parts = append(parts, "TOKEN=TOKEN")
	fields = append(fields, FormField{Name: "TOKEN", Value: c.Token(strings.Join(parts, ","))})

	return formInitiation(MethodConnectIPS, c.FormAction(), fields, intent.OrderID)
}

// Verify calls the validate-transaction API. "SUCCESS" is the only paid status;
// the reference id doubles as the transaction id.
func (c ConnectIPS) Verify(ctx context.Context, ref Reference) Result {
	if err := c.configured(); err != nil {
		return failedResult(nil, "%v", err)
	}
	refID := ref.OrderID
	if refID == "" {
		refID = ref.extra("TXNID")
	}
	if refID == "" || !ref.Amount.IsPositive() {
		return failedResult(nil, "reference id and amount are required")
	}
	amt := strconv.FormatInt(ToMinorUnits(ref.Amount), 10)
	msg := fmt.Sprintf("MERCHANTID=%s,APPID=%s,REFERENCEID=%s,TXNAMT=%s", c.MerchantID, c.AppID, refID, amt)
	body := map[string]string{
		"merchantId":  c.MerchantID,
		"appId":       c.AppID,
		"referenceId": refID,
		"txnAmt":      amt,
		"token":       c.Token(msg),
	}
	headers := map[string]string{
		"Authorization": "Basic " + base64.StdEncoding.EncodeToString([]byte(c.AppID+":"+c.Password)),
	}
	var reply struct {
		ReferenceID string `json:"referenceId"`
		TxnAmt      string `json:"txnAmt"`
		Status      string `json:"status"`
		StatusDesc  string `json:"statusDesc"`
	}
	endpoint := envBase(c.ValidateURL, connectIPSSandboxValidate, connectIPSLiveValidate, c.Production)
	raw, err := exchange(ctx, c.HTTP, http.MethodPost, endpoint, headers, body, &reply)
	if err != nil {
		return failedResult(raw, "connectips validate: %v", err)
	}
	if strings.ToUpper(strings.TrimSpace(reply.Status)) != "SUCCESS" {
		return failedResult(raw, "connectips status %q: %s", reply.Status, reply.StatusDesc)
	}
	txn := reply.ReferenceID
	if txn == "" {
		txn = refID
	}
	return verifiedResult(txn, ref.Amount, raw)
}

func (c ConnectIPS) configured() error {
	if strings.TrimSpace(c.MerchantID) == "" || strings.TrimSpace(c.AppID) == "" {
		return notConfigured(MethodConnectIPS, "merchant/app id")
	}
	if strings.TrimSpace(c.Password) == "" {
		return notConfigured(MethodConnectIPS, "password")
	}
	return nil
}
