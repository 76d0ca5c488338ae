package document

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MotionAge/sn-sub000/internal/obs"
	"github.com/MotionAge/sn-sub000/internal/storage"
)

const contentTypePDF = "application/pdf"

// Generator renders documents and uploads them through Store.
type Generator struct {
	Store storage.Uploader
	Org   Organization
	// Compress enables PDF stream compression. Tests turn it off to inspect text.
	Compress bool
	Logger   zerolog.Logger
	Now      func() time.Time
}

func (g *Generator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g *Generator) newPDF(orientation string, created time.Time) *gofpdf.Fpdf {
	pdf := gofpdf.New(orientation, "pt", "A4", "")
	pdf.SetCompression(g.Compress)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(created)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAuthor(g.Org.Name, false)
	pdf.SetCreator(g.Org.Name, false)
	pdf.AddPage()
	return pdf
}

// CertificateKey is the object key for a certificate; regenerating the same
// serial overwrites the previous object.
func CertificateKey(kind Kind, serial string) string {
	return fmt.Sprintf("certificates/%s-%s.pdf", kind, safeKeyPart(serial))
}

// ReceiptKey is the object key shared by all receipt variants.
func ReceiptKey(receiptNumber string) string {
	return fmt.Sprintf("receipts/donation-%s.pdf", safeKeyPart(receiptNumber))
}

func safeKeyPart(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(s))
}

// GenerateCertificate renders and uploads a certificate.
func (g *Generator) GenerateCertificate(ctx context.Context, req CertificateRequest) (Artifact, error) {
	return g.produce(ctx, string(req.Kind)+"_certificate", CertificateKey(req.Kind, req.SerialNumber), func() ([]byte, error) {
		return g.RenderCertificate(req)
	})
}

// GenerateDonationReceipt renders and uploads a donation receipt.
func (g *Generator) GenerateDonationReceipt(ctx context.Context, req ReceiptRequest) (Artifact, error) {
	return g.produce(ctx, "donation_receipt", ReceiptKey(req.ReceiptNumber), func() ([]byte, error) {
		return g.RenderReceipt(req)
	})
}

// GenerateMembershipReceipt renders a membership fee receipt in the donation receipt layout.
func (g *Generator) GenerateMembershipReceipt(ctx context.Context, req MembershipReceiptRequest) (Artifact, error) {
	return g.GenerateDonationReceipt(ctx, receiptFromMembership(req))
}

// GenerateEventReceipt renders an event registration receipt in the donation receipt layout.
func (g *Generator) GenerateEventReceipt(ctx context.Context, req EventReceiptRequest) (Artifact, error) {
	return g.GenerateDonationReceipt(ctx, receiptFromEvent(req))
}

func (g *Generator) produce(ctx context.Context, kind, key string, render func() ([]byte, error)) (Artifact, error) {
	ctx, span := otel.Tracer("document.Generator").Start(ctx, "Generator.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("document.kind", kind), attribute.String("document.key", key))

	art, err := g.renderAndUpload(ctx, key, render)
	result := "success"
	if err != nil {
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.Logger.Error().Err(err).Str("kind", kind).Str("key", key).Msg("document_generate_failed")
	} else {
		g.Logger.Info().Str("kind", kind).Str("key", key).Int("bytes", len(art.Bytes)).Msg("document_generated")
	}
	obs.DocumentGenerateTotal.WithLabelValues(kind, result).Inc()
	return art, err
}

func (g *Generator) renderAndUpload(ctx context.Context, key string, render func() ([]byte, error)) (Artifact, error) {
	body, err := render()
	if err != nil {
		return Artifact{}, err
	}
	if g.Store == nil {
		return Artifact{}, fmt.Errorf("document: no storage configured")
	}
	url, err := g.Store.Upload(ctx, key, body, contentTypePDF)
	if err != nil {
		return Artifact{}, fmt.Errorf("upload %s: %w", key, err)
	}
	return Artifact{URL: url, Key: key, Bytes: body}, nil
}
