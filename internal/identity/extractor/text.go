package extractor

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Document is OCR text prepared for matching.
type Document struct {
	// Lines are the trimmed, non-empty OCR lines as read
	Lines []string
	// folded holds the upper-cased, accent-free copy of each line used for anchors
	folded []string
	// Compact is the whole text folded with all whitespace removed,
	// so codes split across OCR lines still match
	Compact string
}

// NewDocument splits raw text into lines and builds the matching views
func NewDocument(raw string) *Document {
	doc := &Document{}
	for _, line := range strings.FieldsFunc(raw, func(r rune) bool { return r == '\n' || r == '\r' }) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		doc.Lines = append(doc.Lines, line)
		doc.folded = append(doc.folded, fold(line))
	}
	doc.Compact = stripSpace(fold(raw))
	return doc
}

// fold upper-cases s and removes diacritics so DOMICÍLIO matches DOMICILIO.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToUpper(out)
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// alnum upper-cases s and drops everything but ASCII letters and digits
func alnum(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		default:
			return -1
		}
	}, s)
}

// anchor returns the index of the first line containing any token, or -1
func (d *Document) anchor(tokens ...string) int {
	if all := d.anchors(tokens...); len(all) > 0 {
		return all[0]
	}
	return -1
}

// anchors returns the indexes of every line containing any token
func (d *Document) anchors(tokens ...string) []int {
	var idx []int
	for i, line := range d.folded {
		if containsAny(line, tokens) {
			idx = append(idx, i)
		}
	}
	return idx
}

// collectAfter joins the lines following the first line containing anchor,
// stopping before the first line for which stop reports true.
func (d *Document) collectAfter(anchor string, stop func(folded string) bool) string {
	start := d.anchor(anchor)
	if start < 0 {
		return ""
	}

	var parts []string
	for i := start + 1; i < len(d.Lines); i++ {
		if stop(d.folded[i]) {
			break
		}
		parts = append(parts, d.Lines[i])
	}
	return strings.Join(parts, " ")
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
