// Package extract turns recognized text or a raw invoice image into an InvoiceRecord
// using a generative model.
//
// Model answers are parsed leniently: the first balanced {...} region is taken from
// the reply, decoded, and checked against a small JSON schema. Anything around the
// region is ignored.
package extract

import (
	"context"

	"facturas/internal/cedula"
	"facturas/pkg/models"
)

const (
	VariantText   = "text"
	VariantVision = "vision"
)

// TextExtractor extracts a record from recognized text plus an optional ID hint.
type TextExtractor interface {
	FromText(ctx context.Context, text, hint string) (*models.InvoiceRecord, error)
}

// ImageExtractor extracts a record directly from image bytes.
type ImageExtractor interface {
	FromImage(ctx context.Context, image []byte, mimeType string) (*models.InvoiceRecord, error)
}

// Extractor offers both variants.
type Extractor interface {
	TextExtractor
	ImageExtractor
}

// ApplyHint replaces a missing or implausibly short patient ID with the cedula hint.
// It reports whether the record was changed.
func ApplyHint(rec *models.InvoiceRecord, hint string) bool {
	if rec == nil || hint == "" {
		return false
	}
	if cedula.Plausible(rec.PatientID) {
		return false
	}
	rec.PatientID = hint
	return true
}
