package extractor

import (
	"regexp"
	"strings"

	"github.com/avivago/avivago-backend/internal/identity/domain"
)

const (
	mrzMinCandidateLength = 31
	mrzMinDataLength      = 28
)

var (
	// Second MRZ line: document number (9, fillers allowed) then its check digit.
	// OCR reads < as K often enough that K is accepted here too.
	mrzDataLine    = regexp.MustCompile(`^[A-Z0-9<K]{9}\d`)
	passportNumber = regexp.MustCompile(`[A-Z0-9]{6,9}`)
)

// PassportStrategy reads the two-line TD3 machine readable zone of a passport,
// falling back to the printed passport number label.
type PassportStrategy struct{}

func NewPassportStrategy() *PassportStrategy {
	return &PassportStrategy{}
}

func (s *PassportStrategy) Name() string {
	return "passport"
}

func (s *PassportStrategy) CanExtract(docType domain.DocumentType) bool {
	return docType == domain.DocumentTypePassport
}

func (s *PassportStrategy) Extract(doc *Document) domain.ExtractedIdentity {
	var out domain.ExtractedIdentity

	if line1, line2, ok := findMRZ(doc); ok {
		out.Name = mrzName(line1)
		out.MachineReadableZone = line1 + "\n" + line2

		data := strings.ReplaceAll(line2, "K", "<")
		if len(data) >= mrzMinDataLength {
			out.PassportNumber = cleanMRZ(data[0:9])
			out.Nationality = cleanMRZ(data[10:13])
			out.BirthDate = fromYYMMDD(data[13:19], birthYear)
			out.Sex = mrzSex(data[20:21])
			out.ExpirationDate = fromYYMMDD(data[21:27], expiryYear)
		}
	}

	if out.PassportNumber == "" {
		out.PassportNumber = firstOf(passportNumberAfterLabel)(doc)
	}

	return out
}

// findMRZ picks the name line and the data line out of the MRZ candidates.
func findMRZ(doc *Document) (line1, line2 string, ok bool) {
	var candidates []string
	for _, line := range doc.Lines {
		compact := stripSpace(strings.ToUpper(line))
		if len(compact) >= mrzMinCandidateLength && (strings.Contains(compact, "<") || strings.Contains(compact, "KK")) {
			candidates = append(candidates, compact)
		}
	}
	if len(candidates) < 2 {
		return "", "", false
	}

	first := -1
	for i, c := range candidates {
		if strings.IndexAny(c[:1], "PIA") == 0 && !mrzDataLine.MatchString(c) {
			first = i
			break
		}
	}
	if first < 0 {
		for i, c := range candidates {
			if strings.IndexAny(c[:1], "PIA") == 0 {
				first = i
				break
			}
		}
	}
	if first < 0 {
		return "", "", false
	}

	for i, c := range candidates {
		if i != first && mrzDataLine.MatchString(c) {
			return candidates[first], c, true
		}
	}
	return "", "", false
}

// mrzName reads "SURNAME<<GIVEN<NAMES" after the five-character header
// and returns "GIVEN NAMES SURNAME".
func mrzName(line1 string) string {
	if len(line1) <= 5 {
		return ""
	}
	segments := strings.Split(line1[5:], "<<")
	if len(segments) < 2 {
		return ""
	}
	surname := cleanMRZName(segments[0])
	given := cleanMRZName(segments[1])
	if surname == "" || given == "" {
		return ""
	}
	return given + " " + surname
}

// mrzSex keeps M, F or X. The < filler means unspecified and reads as empty.
func mrzSex(s string) string {
	switch s {
	case "M", "F", "X":
		return s
	default:
		return ""
	}
}

func passportNumberAfterLabel(doc *Document) (string, bool) {
	i := doc.anchor("PASSPORT", "PASAPORTE")
	if i < 0 || i+1 >= len(doc.Lines) {
		return "", false
	}
	m := passportNumber.FindString(strings.ToUpper(doc.Lines[i+1]))
	return m, m != ""
}

func cleanMRZ(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "<", ""))
}

func cleanMRZName(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "<", " "))
}
