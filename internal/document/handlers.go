package document

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/MotionAge/sn-sub000/internal/common"
)

// Service is the generator surface used by the HTTP handler.
type Service interface {
	GenerateCertificate(ctx context.Context, req CertificateRequest) (Artifact, error)
	GenerateDonationReceipt(ctx context.Context, req ReceiptRequest) (Artifact, error)
	GenerateMembershipReceipt(ctx context.Context, req MembershipReceiptRequest) (Artifact, error)
	GenerateEventReceipt(ctx context.Context, req EventReceiptRequest) (Artifact, error)
}

// Handler exposes document generation over HTTP.
type Handler struct {
	Svc      Service
	Validate *validator.Validate
	Logger   zerolog.Logger
}

// NewHandler returns h with a validator attached when none was supplied.
func NewHandler(h Handler) *Handler {
	if h.Validate == nil {
		h.Validate = common.NewValidator()
	}
	return &h
}

type generateReq struct {
	Type string          `json:"type" validate:"required,oneof=certificate donation-receipt membership-receipt event-receipt"`
	Data json.RawMessage `json:"data" validate:"required"`
}

type certificateData struct {
	CertificateType  string          `json:"certificateType" validate:"required,oneof=membership donation event_participation event achievement"`
	RecipientName    string          `json:"recipientName" validate:"required,max=120"`
	SerialNumber     string          `json:"serialNumber" validate:"required,max=64"`
	IssueDate        Date            `json:"issueDate"`
	MembershipType   string          `json:"membershipType" validate:"max=60"`
	DonationAmount   decimal.Decimal `json:"donationAmount"`
	Currency         string          `json:"currency" validate:"omitempty,len=3"`
	EventName        string          `json:"eventName" validate:"max=200"`
	AchievementTitle string          `json:"achievementTitle" validate:"max=200"`
	ValidUntil       *Date           `json:"validUntil"`
}

type donationReceiptData struct {
	ReceiptNumber string          `json:"receiptNumber" validate:"required,max=64"`
	DonorName     string          `json:"donorName" validate:"required,max=120"`
	DonorEmail    string          `json:"donorEmail" validate:"omitempty,email"`
	DonorPhone    string          `json:"donorPhone" validate:"max=20"`
	DonorAddress  string          `json:"donorAddress" validate:"max=200"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency" validate:"omitempty,len=3"`
	Purpose       string          `json:"purpose" validate:"max=200"`
	PaymentMethod string          `json:"paymentMethod" validate:"max=40"`
	TransactionID string          `json:"transactionId" validate:"max=120"`
	Date          Date            `json:"date"`
}

type membershipReceiptData struct {
	ReceiptNumber  string          `json:"receiptNumber" validate:"required,max=64"`
	MemberName     string          `json:"memberName" validate:"required,max=120"`
	Email          string          `json:"email" validate:"omitempty,email"`
	Phone          string          `json:"phone" validate:"max=20"`
	Address        string          `json:"address" validate:"max=200"`
	MembershipType string          `json:"membershipType" validate:"required,max=60"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency" validate:"omitempty,len=3"`
	PaymentMethod  string          `json:"paymentMethod" validate:"max=40"`
	TransactionID  string          `json:"transactionId" validate:"max=120"`
	Date           Date            `json:"date"`
}

type eventReceiptData struct {
	RegistrationNumber string          `json:"registrationNumber" validate:"required,max=64"`
	ParticipantName    string          `json:"participantName" validate:"required,max=120"`
	Email              string          `json:"email" validate:"omitempty,email"`
	Phone              string          `json:"phone" validate:"max=20"`
	EventName          string          `json:"eventName" validate:"required,max=200"`
	EventDate          *Date           `json:"eventDate"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency" validate:"omitempty,len=3"`
	PaymentMethod      string          `json:"paymentMethod" validate:"max=40"`
	TransactionID      string          `json:"transactionId" validate:"max=120"`
	Date               Date            `json:"date"`
}

// Generate handles POST /documents/generate.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateReq
	if err := common.DecodeJSON(w, r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	v := h.validator()
	if err := common.ValidateStruct(v, req, "invalid document request"); err != nil {
		common.WriteError(w, err)
		return
	}

	ctx := r.Context()
	var (
		art Artifact
		err error
	)
	switch req.Type {
	case "certificate":
		var d certificateData
		if err := h.decodeData(req.Data, &d); err != nil {
			common.WriteError(w, err)
			return
		}
		kind, _ := ParseKind(d.CertificateType)
		if d.IssueDate.IsZero() {
			common.WriteError(w, common.ValidationError("missing required fields", []string{"data.issueDate"}))
			return
		}
		art, err = h.Svc.GenerateCertificate(ctx, CertificateRequest{
			Kind:             kind,
			RecipientName:    d.RecipientName,
			SerialNumber:     d.SerialNumber,
			IssueDate:        d.IssueDate.Time,
			MembershipType:   d.MembershipType,
			DonationAmount:   d.DonationAmount,
			Currency:         d.Currency,
			EventName:        d.EventName,
			AchievementTitle: d.AchievementTitle,
			ValidUntil:       datePtr(d.ValidUntil),
		})
	case "donation-receipt":
		var d donationReceiptData
		if err := h.decodeData(req.Data, &d); err != nil {
			common.WriteError(w, err)
			return
		}
		if fields := missingMoneyFields(d.Amount, d.Date); len(fields) > 0 {
			common.WriteError(w, common.ValidationError("missing required fields", fields))
			return
		}
		art, err = h.Svc.GenerateDonationReceipt(ctx, ReceiptRequest{
			ReceiptNumber: d.ReceiptNumber,
			DonorName:     d.DonorName,
			DonorEmail:    d.DonorEmail,
			DonorPhone:    d.DonorPhone,
			DonorAddress:  d.DonorAddress,
			Amount:        d.Amount,
			Currency:      d.Currency,
			Purpose:       d.Purpose,
			PaymentMethod: d.PaymentMethod,
			TransactionID: d.TransactionID,
			Date:          d.Date.Time,
		})
	case "membership-receipt":
		var d membershipReceiptData
		if err := h.decodeData(req.Data, &d); err != nil {
			common.WriteError(w, err)
			return
		}
		if fields := missingMoneyFields(d.Amount, d.Date); len(fields) > 0 {
			common.WriteError(w, common.ValidationError("missing required fields", fields))
			return
		}
		art, err = h.Svc.GenerateMembershipReceipt(ctx, MembershipReceiptRequest{
			ReceiptNumber:  d.ReceiptNumber,
			MemberName:     d.MemberName,
			Email:          d.Email,
			Phone:          d.Phone,
			Address:        d.Address,
			MembershipType: d.MembershipType,
			Amount:         d.Amount,
			Currency:       d.Currency,
			PaymentMethod:  d.PaymentMethod,
			TransactionID:  d.TransactionID,
			Date:           d.Date.Time,
		})
	case "event-receipt":
		var d eventReceiptData
		if err := h.decodeData(req.Data, &d); err != nil {
			common.WriteError(w, err)
			return
		}
		if fields := missingMoneyFields(d.Amount, d.Date); len(fields) > 0 {
			common.WriteError(w, common.ValidationError("missing required fields", fields))
			return
		}
		art, err = h.Svc.GenerateEventReceipt(ctx, EventReceiptRequest{
			RegistrationNumber: d.RegistrationNumber,
			ParticipantName:    d.ParticipantName,
			Email:              d.Email,
			Phone:              d.Phone,
			EventName:          d.EventName,
			EventDate:          datePtr(d.EventDate),
			Amount:             d.Amount,
			Currency:           d.Currency,
			PaymentMethod:      d.PaymentMethod,
			TransactionID:      d.TransactionID,
			Date:               d.Date.Time,
		})
	}
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		h.Logger.Error().Err(err).Str("type", req.Type).Msg("document_generate_request_failed")
		common.JSONError(w, http.StatusInternalServerError, "DOCUMENT_GENERATION_FAILED", "failed to generate document", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"success": true, "pdfUrl": art.URL})
}

func (h *Handler) decodeData(raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return common.NewAppError("INVALID_BODY", "invalid document data", http.StatusBadRequest, err)
	}
	if err := h.validator().Struct(dst); err != nil {
		fields := common.InvalidFields(err)
		for i, f := range fields {
			fields[i] = "data." + f
		}
		return common.ValidationError("missing required fields", fields)
	}
	return nil
}

func missingMoneyFields(amount decimal.Decimal, date Date) []string {
	var fields []string
	if !amount.IsPositive() {
		fields = append(fields, "data.amount")
	}
	if date.IsZero() {
		fields = append(fields, "data.date")
	}
	return fields
}

func datePtr(d *Date) *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

func (h *Handler) validator() *validator.Validate {
	if h.Validate != nil {
		return h.Validate
	}
	return common.NewValidator()
}
