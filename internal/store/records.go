package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Donation is one row of donations.
type Donation struct {
	ID            string
	DonorName     string
	DonorEmail    string
	DonorPhone    string
	DonorAddress  string
	Amount        decimal.Decimal
	Currency      string
	Purpose       string
	PaymentStatus string
	PaymentMethod string
	TransactionID string
	ReceiptNumber string
	ReceiptURL    string
	PaidAt        *time.Time
	CreatedAt     time.Time
}

const donationColumns = `id::text, donor_name, COALESCE(donor_email, ''), COALESCE(donor_phone, ''),
	COALESCE(donor_address, ''), amount::text, currency, COALESCE(purpose, ''), payment_status,
	COALESCE(payment_method, ''), COALESCE(transaction_id, ''), COALESCE(receipt_number, ''),
	COALESCE(receipt_url, ''), paid_at, created_at`

func scanDonation(row scanner) (Donation, error) {
	var d Donation
	var amount string
	err := row.Scan(&d.ID, &d.DonorName, &d.DonorEmail, &d.DonorPhone, &d.DonorAddress, &amount, &d.Currency,
		&d.Purpose, &d.PaymentStatus, &d.PaymentMethod, &d.TransactionID, &d.ReceiptNumber, &d.ReceiptURL,
		&d.PaidAt, &d.CreatedAt)
	if err != nil {
		return Donation{}, translate(err)
	}
	if d.Amount, err = parseAmount(amount); err != nil {
		return Donation{}, err
	}
	return d, nil
}

// GetDonation loads a donation by id.
func (q *Queries) GetDonation(ctx context.Context, id string) (Donation, error) {
	return scanDonation(q.db.QueryRow(ctx, `SELECT `+donationColumns+` FROM donations WHERE id = $1::uuid`, id))
}

// CompleteDonation marks a donation paid. An existing receipt number is kept.
func (q *Queries) CompleteDonation(ctx context.Context, id, method, transactionID, receiptNumber string) (Donation, error) {
	row := q.db.QueryRow(ctx, `UPDATE donations
		SET payment_status = 'completed', payment_method = $2, transaction_id = $3,
			receipt_number = COALESCE(receipt_number, $4), paid_at = COALESCE(paid_at, now()), updated_at = now()
		WHERE id = $1::uuid
		RETURNING `+donationColumns, id, method, transactionID, receiptNumber)
	return scanDonation(row)
}

// SetDonationReceiptURL attaches the generated receipt.
func (q *Queries) SetDonationReceiptURL(ctx context.Context, id, url string) error {
	return q.exec1(ctx, `UPDATE donations SET receipt_url = $2, updated_at = now() WHERE id = $1::uuid`, id, url)
}

// Membership is one row of memberships.
type Membership struct {
	ID                string
	MemberName        string
	Email             string
	Phone             string
	MembershipType    string
	Fee               decimal.Decimal
	Currency          string
	Status            string
	IsActive          bool
	PaymentStatus     string
	TransactionID     string
	CertificateNumber string
	CertificateURL    string
	StartDate         *time.Time
	ValidUntil        *time.Time
	CreatedAt         time.Time
}

const membershipColumns = `id::text, member_name, COALESCE(email, ''), COALESCE(phone, ''), membership_type,
	fee::text, currency, status, is_active, payment_status, COALESCE(transaction_id, ''),
	COALESCE(certificate_number, ''), COALESCE(certificate_url, ''), start_date, valid_until, created_at`

func scanMembership(row scanner) (Membership, error) {
	var m Membership
	var fee string
	err := row.Scan(&m.ID, &m.MemberName, &m.Email, &m.Phone, &m.MembershipType, &fee, &m.Currency, &m.Status,
		&m.IsActive, &m.PaymentStatus, &m.TransactionID, &m.CertificateNumber, &m.CertificateURL,
		&m.StartDate, &m.ValidUntil, &m.CreatedAt)
	if err != nil {
		return Membership{}, translate(err)
	}
	if m.Fee, err = parseAmount(fee); err != nil {
		return Membership{}, err
	}
	return m, nil
}

// GetMembership loads a membership by id.
func (q *Queries) GetMembership(ctx context.Context, id string) (Membership, error) {
	return scanMembership(q.db.QueryRow(ctx, `SELECT `+membershipColumns+` FROM memberships WHERE id = $1::uuid`, id))
}

// ActivateMembershipParams describe a paid membership.
type ActivateMembershipParams struct {
	ID                string
	TransactionID     string
	CertificateNumber string
	StartDate         time.Time
	// ValidUntil is nil for lifetime memberships.
	ValidUntil *time.Time
}

// ActivateMembership marks the membership paid and active. An existing certificate number is kept.
func (q *Queries) ActivateMembership(ctx context.Context, arg ActivateMembershipParams) (Membership, error) {
	row := q.db.QueryRow(ctx, `UPDATE memberships
		SET status = 'active', is_active = true, payment_status = 'completed', transaction_id = $2,
			certificate_number = COALESCE(certificate_number, $3), start_date = COALESCE(start_date, $4::date),
			valid_until = COALESCE(valid_until, $5::date), updated_at = now()
		WHERE id = $1::uuid
		RETURNING `+membershipColumns, arg.ID, arg.TransactionID, arg.CertificateNumber, arg.StartDate, arg.ValidUntil)
	return scanMembership(row)
}

// SetMembershipCertificateURL attaches the generated certificate.
func (q *Queries) SetMembershipCertificateURL(ctx context.Context, id, url string) error {
	return q.exec1(ctx, `UPDATE memberships SET certificate_url = $2, updated_at = now() WHERE id = $1::uuid`, id, url)
}

// EventRegistration is one row of event_registrations.
type EventRegistration struct {
	ID                 string
	EventName          string
	EventDate          *time.Time
	ParticipantName    string
	Email              string
	Phone              string
	Amount             decimal.Decimal
	Currency           string
	Status             string
	PaymentStatus      string
	TransactionID      string
	RegistrationNumber string
	ReceiptURL         string
	CreatedAt          time.Time
}

const eventRegistrationColumns = `id::text, event_name, event_date, participant_name, COALESCE(email, ''),
	COALESCE(phone, ''), amount::text, currency, status, payment_status, COALESCE(transaction_id, ''),
	COALESCE(registration_number, ''), COALESCE(receipt_url, ''), created_at`

func scanEventRegistration(row scanner) (EventRegistration, error) {
	var e EventRegistration
	var amount string
	err := row.Scan(&e.ID, &e.EventName, &e.EventDate, &e.ParticipantName, &e.Email, &e.Phone, &amount,
		&e.Currency, &e.Status, &e.PaymentStatus, &e.TransactionID, &e.RegistrationNumber, &e.ReceiptURL, &e.CreatedAt)
	if err != nil {
		return EventRegistration{}, translate(err)
	}
	if e.Amount, err = parseAmount(amount); err != nil {
		return EventRegistration{}, err
	}
	return e, nil
}

// GetEventRegistration loads a registration by id.
func (q *Queries) GetEventRegistration(ctx context.Context, id string) (EventRegistration, error) {
	return scanEventRegistration(q.db.QueryRow(ctx, `SELECT `+eventRegistrationColumns+` FROM event_registrations WHERE id = $1::uuid`, id))
}

// ConfirmEventRegistration marks the registration paid and confirmed.
func (q *Queries) ConfirmEventRegistration(ctx context.Context, id, transactionID, registrationNumber string) (EventRegistration, error) {
	row := q.db.QueryRow(ctx, `UPDATE event_registrations
		SET status = 'confirmed', payment_status = 'completed', transaction_id = $2,
			registration_number = COALESCE(registration_number, $3), updated_at = now()
		WHERE id = $1::uuid
		RETURNING `+eventRegistrationColumns, id, transactionID, registrationNumber)
	return scanEventRegistration(row)
}

// SetEventRegistrationReceiptURL attaches the generated receipt.
func (q *Queries) SetEventRegistrationReceiptURL(ctx context.Context, id, url string) error {
	return q.exec1(ctx, `UPDATE event_registrations SET receipt_url = $2, updated_at = now() WHERE id = $1::uuid`, id, url)
}

func (q *Queries) exec1(ctx context.Context, sql string, args ...any) error {
	tag, err := q.db.Exec(ctx, sql, args...)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
