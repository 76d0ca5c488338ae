package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Payment statuses stored in payments.status.
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
)

// Reference types a payment can settle.
const (
	RefDonation          = "donation"
	RefMembership        = "membership"
	RefEventRegistration = "event_registration"
)

// Payment is one row of payments.
type Payment struct {
	ID            string
	OrderID       string
	Method        string
	Amount        decimal.Decimal
	Currency      string
	Purpose       string
	ReferenceType string
	ReferenceID   string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	ProviderRef   string
	Status        string
	TransactionID string
	CompletedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreatePaymentParams are the fields set when a payment is initiated.
type CreatePaymentParams struct {
	OrderID       string
	Method        string
	Amount        decimal.Decimal
	Currency      string
	Purpose       string
	ReferenceType string
	ReferenceID   string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
}

const paymentColumns = `id::text, order_id, method, amount::text, currency, COALESCE(purpose, ''),
	COALESCE(reference_type, ''), COALESCE(reference_id::text, ''), COALESCE(customer_name, ''),
	COALESCE(customer_email, ''), COALESCE(customer_phone, ''), COALESCE(provider_ref, ''), status,
	COALESCE(transaction_id, ''), completed_at, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanPayment(row scanner) (Payment, error) {
	var p Payment
	var amount string
	err := row.Scan(&p.ID, &p.OrderID, &p.Method, &amount, &p.Currency, &p.Purpose,
		&p.ReferenceType, &p.ReferenceID, &p.CustomerName, &p.CustomerEmail, &p.CustomerPhone,
		&p.ProviderRef, &p.Status, &p.TransactionID, &p.CompletedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Payment{}, translate(err)
	}
	if p.Amount, err = parseAmount(amount); err != nil {
		return Payment{}, err
	}
	return p, nil
}

// CreatePayment inserts a pending payment. A repeated order id yields ErrConflict.
func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	row := q.db.QueryRow(ctx, `INSERT INTO payments (order_id, method, amount, currency, purpose, reference_type,
		reference_id, customer_name, customer_email, customer_phone)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7::uuid, $8, $9, $10)
		RETURNING `+paymentColumns,
		arg.OrderID, arg.Method, arg.Amount.String(), arg.Currency, nullable(arg.Purpose), nullable(arg.ReferenceType),
		nullable(arg.ReferenceID), nullable(arg.CustomerName), nullable(arg.CustomerEmail), nullable(arg.CustomerPhone))
	return scanPayment(row)
}

// GetPaymentByOrderID loads a payment by its caller-assigned order id.
func (q *Queries) GetPaymentByOrderID(ctx context.Context, orderID string) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1`, orderID))
}

// SetPaymentProviderRef stores the gateway reference returned at initiation.
func (q *Queries) SetPaymentProviderRef(ctx context.Context, orderID, providerRef string) error {
	tag, err := q.db.Exec(ctx, `UPDATE payments SET provider_ref = $2, updated_at = now() WHERE order_id = $1`, orderID, providerRef)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CompletePayment moves a payment from pending to completed. The boolean is false
// when the row was not pending, which means another caller already settled it.
func (q *Queries) CompletePayment(ctx context.Context, orderID, transactionID string) (Payment, bool, error) {
	row := q.db.QueryRow(ctx, `UPDATE payments
		SET status = 'completed', transaction_id = $2, completed_at = now(), updated_at = now()
		WHERE order_id = $1 AND status = 'pending'
		RETURNING `+paymentColumns, orderID, transactionID)
	p, err := scanPayment(row)
	if errors.Is(err, ErrNotFound) {
		return Payment{}, false, nil
	}
	if err != nil {
		return Payment{}, false, err
	}
	return p, true, nil
}

// FailPayment marks a pending payment failed. Completed payments are left alone.
func (q *Queries) FailPayment(ctx context.Context, orderID string) error {
	_, err := q.db.Exec(ctx, `UPDATE payments SET status = 'failed', updated_at = now()
		WHERE order_id = $1 AND status = 'pending'`, orderID)
	return translate(err)
}

// Verification is one append-only verification attempt.
type Verification struct {
	OrderID       string
	Method        string
	Status        string
	TransactionID string
	Reason        string
	Raw           []byte
}

// InsertVerification records a verification attempt.
func (q *Queries) InsertVerification(ctx context.Context, v Verification) error {
	_, err := q.db.Exec(ctx, `INSERT INTO payment_verifications (order_id, method, status, transaction_id, reason, raw)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		v.OrderID, v.Method, v.Status, nullable(v.TransactionID), nullable(v.Reason), nullable(cleanText(v.Raw)))
	return translate(err)
}

func cleanText(b []byte) string {
	s := strings.ToValidUTF8(string(b), "")
	return strings.ReplaceAll(s, "\x00", "")
}
