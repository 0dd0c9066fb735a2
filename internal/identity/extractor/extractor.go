// Package extractor turns raw OCR text from an identity document into
// structured fields. Every function here is pure: no I/O, no clock, no
// randomness, and no input makes it fail. Rules that find nothing leave
// their field empty.
package extractor

import (
	"github.com/avivago/avivago-backend/internal/identity/domain"
)

// Strategy extracts fields for one family of document layouts.
// New layouts are added as new strategies; existing ones are not touched.
type Strategy interface {
	// Name returns the strategy name for logging
	Name() string

	// CanExtract returns true if this strategy reads the given document type
	CanExtract(docType domain.DocumentType) bool

	// Extract fills the fields this layout carries
	Extract(doc *Document) domain.ExtractedIdentity
}

// Registry holds strategies in priority order
type Registry struct {
	strategies []Strategy
}

// NewRegistry creates a registry; earlier strategies win
func NewRegistry(strategies ...Strategy) *Registry {
	return &Registry{strategies: strategies}
}

// DefaultRegistry reads Mexican national ID cards and ICAO passports
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewNationalIDStrategy(),
		NewPassportStrategy(),
	)
}

// Find returns the first strategy that reads docType, or nil
func (r *Registry) Find(docType domain.DocumentType) Strategy {
	for _, s := range r.strategies {
		if s.CanExtract(docType) {
			return s
		}
	}
	return nil
}

// Extract runs the matching strategy. Unknown document types yield a result
// that only echoes the inputs.
func (r *Registry) Extract(rawText string, docType domain.DocumentType) domain.ExtractedIdentity {
	var out domain.ExtractedIdentity
	if s := r.Find(docType); s != nil {
		out = s.Extract(NewDocument(rawText))
	}
	out.DocumentType = docType
	out.RawText = rawText
	return out
}

var defaultRegistry = DefaultRegistry()

// Extract reads rawText with the default registry
func Extract(rawText string, docType domain.DocumentType) domain.ExtractedIdentity {
	return defaultRegistry.Extract(rawText, docType)
}
