// Package document renders certificates and receipts as PDF and stores them.
package document

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind selects the certificate template.
type Kind string

const (
	KindMembership         Kind = "membership"
	KindDonation           Kind = "donation"
	KindEventParticipation Kind = "event_participation"
	KindAchievement        Kind = "achievement"
)

// ParseKind accepts the canonical names plus the short "event" alias.
func ParseKind(v string) (Kind, bool) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(v))); k {
	case KindMembership, KindDonation, KindEventParticipation, KindAchievement:
		return k, true
	case "event", "participation":
		return KindEventParticipation, true
	}
	return "", false
}

// ErrInvalidRequest marks a request that cannot be rendered.
var ErrInvalidRequest = errors.New("document: invalid request")

// Date accepts "2006-01-02" as well as RFC 3339 timestamps in JSON.
type Date struct{ time.Time }

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t
			return nil
		}
	}
	return errors.New("date must be YYYY-MM-DD or RFC 3339")
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(d.Format("2006-01-02"))
}

// CertificateRequest describes one certificate. SerialNumber is printed
// verbatim and names the stored object.
type CertificateRequest struct {
	Kind             Kind
	RecipientName    string
	SerialNumber     string
	IssueDate        time.Time
	MembershipType   string
	DonationAmount   decimal.Decimal
	Currency         string
	EventName        string
	AchievementTitle string
	ValidUntil       *time.Time
}

// ReceiptRequest is the donation receipt shape the other receipts are reshaped into.
type ReceiptRequest struct {
	ReceiptNumber string
	// Title overrides the banner subtitle, e.g. "Membership Fee Receipt".
	Title         string
	DonorName     string
	DonorEmail    string
	DonorPhone    string
	DonorAddress  string
	Amount        decimal.Decimal
	Currency      string
	Purpose       string
	PaymentMethod string
	TransactionID string
	Date          time.Time
}

// MembershipReceiptRequest is reshaped into a ReceiptRequest.
type MembershipReceiptRequest struct {
	ReceiptNumber  string
	MemberName     string
	Email          string
	Phone          string
	Address        string
	MembershipType string
	Amount         decimal.Decimal
	Currency       string
	PaymentMethod  string
	TransactionID  string
	Date           time.Time
}

// EventReceiptRequest is reshaped into a ReceiptRequest.
type EventReceiptRequest struct {
	RegistrationNumber string
	ParticipantName    string
	Email              string
	Phone              string
	EventName          string
	EventDate          *time.Time
	Amount             decimal.Decimal
	Currency           string
	PaymentMethod      string
	TransactionID      string
	Date               time.Time
}

// Artifact is a stored document.
type Artifact struct {
	URL   string
	Key   string
	Bytes []byte
}

// Organization is the issuer identity printed on every document.
type Organization struct {
	Name            string
	Transliteration string
	Address         string
	Phone           string
	Email           string
	Website         string
	VerifyURL       string
}
