package document

import (
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

const taxDisclaimer = "This receipt acknowledges a voluntary contribution. No goods or services were " +
	"provided in exchange. Please retain this receipt for your records and consult your tax " +
	"advisor regarding deductibility under applicable law."

// Validate reports the fields a receipt cannot be rendered without.
func (r ReceiptRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.ReceiptNumber) == "" {
		missing = append(missing, "receiptNumber")
	}
	if strings.TrimSpace(r.DonorName) == "" {
		missing = append(missing, "donorName")
	}
	if !r.Amount.IsPositive() {
		missing = append(missing, "amount")
	}
	if r.Date.IsZero() {
		missing = append(missing, "date")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	return nil
}

// RenderReceipt lays out an A4 portrait receipt.
func (g *Generator) RenderReceipt(req ReceiptRequest) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	pdf := g.newPDF("P", req.Date)
	pdf.SetTitle("Receipt "+req.ReceiptNumber, false)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	w, h := pdf.GetPageSize()
	const margin = 45.0

	// banner
	pdf.SetFillColor(122, 31, 31)
	pdf.Rect(0, 0, w, 92, "F")
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 20)
	pdf.Text(margin, 42, tr(g.Org.Name))
	title := req.Title
	if title == "" {
		title = "Donation Receipt"
	}
	pdf.SetFont("Helvetica", "", 12)
	pdf.Text(margin, 66, tr(title))

	pdf.SetTextColor(40, 40, 40)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetXY(w-margin-220, 110)
	pdf.CellFormat(220, 16, "Receipt No: "+tr(req.ReceiptNumber), "", 2, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(220, 16, "Date: "+formatDate(req.Date), "", 2, "R", false, 0, "")

	y := sectionHeading(pdf, margin, 165, w, "DONOR INFORMATION")
	y = labelled(pdf, tr, margin, y, "Name", req.DonorName)
	if req.DonorEmail != "" {
		y = labelled(pdf, tr, margin, y, "Email", req.DonorEmail)
	}
	if req.DonorPhone != "" {
		y = labelled(pdf, tr, margin, y, "Phone", req.DonorPhone)
	}
	if req.DonorAddress != "" {
		y = labelled(pdf, tr, margin, y, "Address", req.DonorAddress)
	}

	y = sectionHeading(pdf, margin, y+20, w, "DONATION DETAILS")
	pdf.SetDrawColor(122, 31, 31)
	pdf.SetLineWidth(1.2)
	pdf.Rect(margin, y, w-2*margin, 64, "D")
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(110, 110, 110)
	pdf.Text(margin+12, y+16, "Amount Received")
	pdf.SetFont("Helvetica", "B", 26)
	pdf.SetTextColor(20, 20, 20)
	amount := FormatAmount(req.Currency, req.Amount)
	pdf.Text((w-pdf.GetStringWidth(amount))/2, y+48, amount)
	y += 86

	if req.Purpose != "" {
		y = labelled(pdf, tr, margin, y, "Purpose", req.Purpose)
	}
	if req.PaymentMethod != "" {
		y = labelled(pdf, tr, margin, y, "Payment Method", humanize(req.PaymentMethod))
	}
	if req.TransactionID != "" {
		y = labelled(pdf, tr, margin, y, "Transaction ID", req.TransactionID)
	}

	pdf.SetFont("Helvetica", "I", 9)
	pdf.SetTextColor(90, 90, 90)
	pdf.SetXY(margin, y+18)
	pdf.MultiCell(w-2*margin, 13, taxDisclaimer, "", "L", false)

	y = pdf.GetY() + 18
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetTextColor(40, 40, 40)
	pdf.Text(margin, y, tr(g.Org.Name))
	pdf.SetFont("Helvetica", "", 9)
	for _, line := range contactLines(g.Org) {
		y += 13
		pdf.Text(margin, y, tr(line))
	}

	pdf.SetDrawColor(200, 200, 200)
	pdf.SetLineWidth(0.5)
	pdf.Line(margin, h-70, w-margin, h-70)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetTextColor(122, 31, 31)
	thanks := "Thank you for your generous support!"
	pdf.Text((w-pdf.GetStringWidth(thanks))/2, h-50, thanks)
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetTextColor(130, 130, 130)
	stamp := "Generated on " + g.now().UTC().Format("2006-01-02 15:04 MST")
	pdf.Text((w-pdf.GetStringWidth(stamp))/2, h-34, stamp)

	return finish(pdf)
}

func sectionHeading(pdf *gofpdf.Fpdf, x, y, pageW float64, title string) float64 {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetTextColor(122, 31, 31)
	pdf.Text(x, y, title)
	pdf.SetDrawColor(122, 31, 31)
	pdf.SetLineWidth(0.6)
	pdf.Line(x, y+5, pageW-x, y+5)
	return y + 24
}

func labelled(pdf *gofpdf.Fpdf, tr func(string) string, x, y float64, label, value string) float64 {
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetTextColor(80, 80, 80)
	pdf.Text(x, y, label+":")
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(20, 20, 20)
	pdf.Text(x+110, y, tr(value))
	return y + 17
}

func contactLines(org Organization) []string {
	var out []string
	if org.Address != "" {
		out = append(out, org.Address)
	}
	var parts []string
	if org.Phone != "" {
		parts = append(parts, "Phone: "+org.Phone)
	}
	if org.Email != "" {
		parts = append(parts, "Email: "+org.Email)
	}
	if len(parts) > 0 {
		out = append(out, strings.Join(parts, "  |  "))
	}
	if org.Website != "" {
		out = append(out, org.Website)
	}
	return out
}

// receiptFromMembership reshapes a membership payment into the donation receipt layout.
func receiptFromMembership(r MembershipReceiptRequest) ReceiptRequest {
	purpose := "Membership fee"
	if mt := humanize(r.MembershipType); mt != "" {
		purpose = mt + " membership fee"
	}
	return ReceiptRequest{
		ReceiptNumber: r.ReceiptNumber,
		Title:         "Membership Fee Receipt",
		DonorName:     r.MemberName,
		DonorEmail:    r.Email,
		DonorPhone:    r.Phone,
		DonorAddress:  r.Address,
		Amount:        r.Amount,
		Currency:      r.Currency,
		Purpose:       purpose,
		PaymentMethod: r.PaymentMethod,
		TransactionID: r.TransactionID,
		Date:          r.Date,
	}
}

// receiptFromEvent reshapes an event registration into the donation receipt layout.
func receiptFromEvent(r EventReceiptRequest) ReceiptRequest {
	purpose := "Event registration"
	if r.EventName != "" {
		purpose = "Registration: " + r.EventName
		if r.EventDate != nil && !r.EventDate.IsZero() {
			purpose += " (" + r.EventDate.Format(time.DateOnly) + ")"
		}
	}
	return ReceiptRequest{
		ReceiptNumber: r.RegistrationNumber,
		Title:         "Event Registration Receipt",
		DonorName:     r.ParticipantName,
		DonorEmail:    r.Email,
		DonorPhone:    r.Phone,
		Amount:        r.Amount,
		Currency:      r.Currency,
		Purpose:       purpose,
		PaymentMethod: r.PaymentMethod,
		TransactionID: r.TransactionID,
		Date:          r.Date,
	}
}
