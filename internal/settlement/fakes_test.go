package settlement_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MotionAge/sn-sub000/internal/document"
	"github.com/MotionAge/sn-sub000/internal/payment"
	"github.com/MotionAge/sn-sub000/internal/store"
)

type memStore struct {
	mu            sync.Mutex
	payments      map[string]store.Payment
	donations     map[string]store.Donation
	memberships   map[string]store.Membership
	registrations map[string]store.EventRegistration
	verifications []store.Verification
	completeCalls int
	failRecord    error
}

func newMemStore() *memStore {
	return &memStore{
		payments:      map[string]store.Payment{},
		donations:     map[string]store.Donation{},
		memberships:   map[string]store.Membership{},
		registrations: map[string]store.EventRegistration{},
	}
}

func (m *memStore) addPayment(p store.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Status == "" {
		p.Status = store.PaymentPending
	}
	if p.Currency == "" {
		p.Currency = "NPR"
	}
	m.payments[p.OrderID] = p
}

func (m *memStore) payment(orderID string) store.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payments[orderID]
}

func (m *memStore) GetPaymentByOrderID(_ context.Context, orderID string) (store.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[orderID]
	if !ok {
		return store.Payment{}, store.ErrNotFound
	}
	return p, nil
}

func (m *memStore) InsertVerification(_ context.Context, v store.Verification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifications = append(m.verifications, v)
	return nil
}

func (m *memStore) CompletePayment(_ context.Context, orderID, txnID string) (store.Payment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completeCalls++
	p, ok := m.payments[orderID]
	if !ok || p.Status != store.PaymentPending {
		return store.Payment{}, false, nil
	}
	now := time.Now()
	p.Status = store.PaymentCompleted
	p.TransactionID = txnID
	p.CompletedAt = &now
	m.payments[orderID] = p
	return p, true, nil
}

func (m *memStore) FailPayment(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.payments[orderID]; ok && p.Status == store.PaymentPending {
		p.Status = store.PaymentFailed
		m.payments[orderID] = p
	}
	return nil
}

func (m *memStore) CompleteDonation(_ context.Context, id, method, txnID, receiptNumber string) (store.Donation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRecord != nil {
		return store.Donation{}, m.failRecord
	}
	d, ok := m.donations[id]
	if !ok {
		return store.Donation{}, store.ErrNotFound
	}
	d.PaymentStatus = "completed"
	d.PaymentMethod = method
	d.TransactionID = txnID
	if d.ReceiptNumber == "" {
		d.ReceiptNumber = receiptNumber
	}
	m.donations[id] = d
	return d, nil
}

func (m *memStore) SetDonationReceiptURL(_ context.Context, id, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.donations[id]
	d.ReceiptURL = url
	m.donations[id] = d
	return nil
}

func (m *memStore) GetMembership(_ context.Context, id string) (store.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.memberships[id]
	if !ok {
		return store.Membership{}, store.ErrNotFound
	}
	return ms, nil
}

func (m *memStore) ActivateMembership(_ context.Context, arg store.ActivateMembershipParams) (store.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.memberships[arg.ID]
	if !ok {
		return store.Membership{}, store.ErrNotFound
	}
	ms.Status = "active"
	ms.IsActive = true
	ms.PaymentStatus = "completed"
	ms.TransactionID = arg.TransactionID
	if ms.CertificateNumber == "" {
		ms.CertificateNumber = arg.CertificateNumber
	}
	start := arg.StartDate
	ms.StartDate = &start
	ms.ValidUntil = arg.ValidUntil
	m.memberships[arg.ID] = ms
	return ms, nil
}

func (m *memStore) SetMembershipCertificateURL(_ context.Context, id, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms := m.memberships[id]
	ms.CertificateURL = url
	m.memberships[id] = ms
	return nil
}

func (m *memStore) ConfirmEventRegistration(_ context.Context, id, txnID, registrationNumber string) (store.EventRegistration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.registrations[id]
	if !ok {
		return store.EventRegistration{}, store.ErrNotFound
	}
	e.Status = "confirmed"
	e.PaymentStatus = "completed"
	e.TransactionID = txnID
	if e.RegistrationNumber == "" {
		e.RegistrationNumber = registrationNumber
	}
	m.registrations[id] = e
	return e, nil
}

func (m *memStore) SetEventRegistrationReceiptURL(_ context.Context, id, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.registrations[id]
	e.ReceiptURL = url
	m.registrations[id] = e
	return nil
}

type stubVerifier struct {
	mu      sync.Mutex
	result  payment.Verification
	calls   int
	methods []payment.Method
	refs    []payment.Reference
}

func verified(txn string) *stubVerifier {
	return &stubVerifier{result: payment.Verification{
		Verified:      true,
		TransactionID: txn,
		Result:        payment.Result{Status: payment.StatusVerified, TransactionID: txn},
	}}
}

func unverified(status payment.Status) *stubVerifier {
	return &stubVerifier{result: payment.Verification{Result: payment.Result{Status: status, Reason: "gateway said no"}}}
}

func (v *stubVerifier) VerifyPayment(_ context.Context, method payment.Method, ref payment.Reference) payment.Verification {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	v.methods = append(v.methods, method)
	v.refs = append(v.refs, ref)
	return v.result
}

type stubDocs struct {
	mu           sync.Mutex
	err          error
	certificates []document.CertificateRequest
	receipts     []document.ReceiptRequest
	events       []document.EventReceiptRequest
}

func (d *stubDocs) GenerateCertificate(_ context.Context, req document.CertificateRequest) (document.Artifact, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.certificates = append(d.certificates, req)
	if d.err != nil {
		return document.Artifact{}, d.err
	}
	key := document.CertificateKey(req.Kind, req.SerialNumber)
	return document.Artifact{Key: key, URL: "https://files.test/" + key}, nil
}

func (d *stubDocs) GenerateDonationReceipt(_ context.Context, req document.ReceiptRequest) (document.Artifact, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.receipts = append(d.receipts, req)
	if d.err != nil {
		return document.Artifact{}, d.err
	}
	key := document.ReceiptKey(req.ReceiptNumber)
	return document.Artifact{Key: key, URL: "https://files.test/" + key}, nil
}

func (d *stubDocs) GenerateEventReceipt(_ context.Context, req document.EventReceiptRequest) (document.Artifact, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, req)
	if d.err != nil {
		return document.Artifact{}, d.err
	}
	key := document.ReceiptKey(req.RegistrationNumber)
	return document.Artifact{Key: key, URL: "https://files.test/" + key}, nil
}

var errBoom = errors.New("boom")

func npr(v int64) decimal.Decimal { return decimal.NewFromInt(v) }
