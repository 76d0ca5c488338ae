package document

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

type certificateTemplate struct {
	title    string
	subtitle string
}

var certificateTemplates = map[Kind]certificateTemplate{
	KindMembership:         {title: "CERTIFICATE OF MEMBERSHIP", subtitle: "This certificate is proudly presented to"},
	KindDonation:           {title: "CERTIFICATE OF APPRECIATION", subtitle: "In grateful recognition of the generosity of"},
	KindEventParticipation: {title: "CERTIFICATE OF PARTICIPATION", subtitle: "This is to certify that"},
	KindAchievement:        {title: "CERTIFICATE OF ACHIEVEMENT", subtitle: "This certificate is awarded to"},
}

const (
	nameMaxSize = 32.0
	nameMinSize = 16.0
)

// Validate reports the fields a certificate cannot be rendered without.
func (r CertificateRequest) Validate() error {
	var missing []string
	if _, ok := certificateTemplates[r.Kind]; !ok {
		missing = append(missing, "certificateType")
	}
	if strings.TrimSpace(r.RecipientName) == "" {
		missing = append(missing, "recipientName")
	}
	if strings.TrimSpace(r.SerialNumber) == "" {
		missing = append(missing, "serialNumber")
	}
	if r.IssueDate.IsZero() {
		missing = append(missing, "issueDate")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	return nil
}

// RenderCertificate lays out an A4 landscape certificate. Output depends only
// on the request, the organisation and the compression flag.
func (g *Generator) RenderCertificate(req CertificateRequest) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	tpl := certificateTemplates[req.Kind]
	pdf := g.newPDF("L", req.IssueDate)
	pdf.SetTitle(tpl.title+" "+req.SerialNumber, false)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	w, h := pdf.GetPageSize()

	// double border
	pdf.SetDrawColor(153, 115, 38)
	pdf.SetLineWidth(4)
	pdf.Rect(18, 18, w-36, h-36, "D")
	pdf.SetLineWidth(1)
	pdf.Rect(30, 30, w-60, h-60, "D")

	pdf.SetTextColor(90, 30, 20)
	pdf.SetFont("Times", "B", 24)
	centerText(pdf, w, 78, tr(g.Org.Name))
	if t := strings.TrimSpace(g.Org.Transliteration); t != "" && latin1(t) {
		pdf.SetFont("Times", "I", 13)
		centerText(pdf, w, 100, tr(t))
	}

	pdf.SetTextColor(153, 115, 38)
	pdf.SetFont("Times", "B", 34)
	centerText(pdf, w, 160, tpl.title)

	pdf.SetTextColor(60, 60, 60)
	pdf.SetFont("Helvetica", "", 14)
	centerText(pdf, w, 200, tpl.subtitle)

	name := tr(strings.TrimSpace(req.RecipientName))
	size := fitFontSize(pdf, "Times", "BI", name, w-220, nameMaxSize, nameMinSize)
	pdf.SetTextColor(20, 20, 20)
	pdf.SetFont("Times", "BI", size)
	centerText(pdf, w, 250, name)
	pdf.SetDrawColor(153, 115, 38)
	pdf.SetLineWidth(0.8)
	pdf.Line(w/2-200, 262, w/2+200, 262)

	pdf.SetTextColor(60, 60, 60)
	pdf.SetFont("Helvetica", "", 13)
	pdf.SetXY(120, 285)
	pdf.MultiCell(w-240, 18, tr(certificateSentence(req, g.Org.Name)), "", "C", false)

	// metadata block, bottom left
	pdf.SetFont("Helvetica", "", 11)
	pdf.SetTextColor(40, 40, 40)
	y := h - 130
	pdf.Text(60, y, "Certificate No: "+tr(req.SerialNumber))
	pdf.Text(60, y+16, "Issue Date: "+formatDate(req.IssueDate))
	if req.ValidUntil != nil && !req.ValidUntil.IsZero() {
		pdf.Text(60, y+32, "Valid Until: "+formatDate(*req.ValidUntil))
	}

	// seal placeholder
	pdf.SetDrawColor(153, 115, 38)
	pdf.SetLineWidth(1.5)
	pdf.Circle(w/2, h-110, 42, "D")
	pdf.SetLineWidth(0.5)
	pdf.Circle(w/2, h-110, 36, "D")
	pdf.SetFont("Times", "B", 11)
	pdf.SetTextColor(153, 115, 38)
	centerText(pdf, w, h-106, "SEAL")

	// signature line
	pdf.SetDrawColor(40, 40, 40)
	pdf.SetLineWidth(0.8)
	pdf.Line(w-260, h-100, w-80, h-100)
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(40, 40, 40)
	sig := "Authorized Signature"
	pdf.Text(w-170-pdf.GetStringWidth(sig)/2, h-86, sig)

	pdf.SetFont("Helvetica", "I", 9)
	pdf.SetTextColor(110, 110, 110)
	centerText(pdf, w, h-42, tr(verificationFooter(g.Org)))

	return finish(pdf)
}

func certificateSentence(req CertificateRequest, org string) string {
	if org == "" {
		org = "our organization"
	}
	switch req.Kind {
	case KindMembership:
		kind := "a"
		if mt := humanize(req.MembershipType); mt != "" {
			kind = article(mt) + " " + mt
		}
		return fmt.Sprintf("has been admitted as %s member of %s and is entitled to all the rights and privileges of membership.", kind, org)
	case KindDonation:
		if req.DonationAmount.IsPositive() {
			return fmt.Sprintf("for the generous donation of %s in support of the mission of %s.", FormatAmount(req.Currency, req.DonationAmount), org)
		}
		return fmt.Sprintf("for a generous donation in support of the mission of %s.", org)
	case KindEventParticipation:
		event := strings.TrimSpace(req.EventName)
		if event == "" {
			event = "the event"
		}
		return fmt.Sprintf("has successfully participated in %s organized by %s.", event, org)
	default:
		title := strings.TrimSpace(req.AchievementTitle)
		if title == "" {
			title = "outstanding contribution"
		}
		return fmt.Sprintf("in recognition of %s, presented by %s.", title, org)
	}
}

func article(word string) string {
	if word != "" && strings.ContainsRune("AEIOUaeiou", rune(word[0])) {
		return "an"
	}
	return "a"
}

func verificationFooter(org Organization) string {
	if org.VerifyURL != "" {
		return "Verify this certificate at " + org.VerifyURL + " using the certificate number above."
	}
	return "This certificate can be verified with the issuing organization using the certificate number above."
}

// centerText draws s centred on the page using measured glyph widths.
func centerText(pdf *gofpdf.Fpdf, pageW, y float64, s string) {
	pdf.Text((pageW-pdf.GetStringWidth(s))/2, y, s)
}

// fitFontSize returns the largest size not above hi that fits s into width.
func fitFontSize(pdf *gofpdf.Fpdf, family, style, s string, width, hi, lo float64) float64 {
	size := hi
	for size > lo {
		pdf.SetFont(family, style, size)
		if pdf.GetStringWidth(s) <= width {
			return size
		}
		size--
	}
	return lo
}

func finish(pdf *gofpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
