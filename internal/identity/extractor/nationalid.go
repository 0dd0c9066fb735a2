package extractor

import (
	"regexp"
	"strings"

	"github.com/avivago/avivago-backend/internal/identity/domain"
)

var (
	// CURP: 4 letters, YYMMDD, sex, 5 letters, 2 alphanumerics
	nationalIDCode = regexp.MustCompile(`[A-Z]{4}\d{6}[HM][A-Z]{5}[A-Z0-9]{2}`)

	// Clave de elector. The 15th character is the sex letter, but OCR
	// often reads it as a digit.
	electoralCode       = regexp.MustCompile(`[A-Z]{6}\d{8}[HM0-9]\d{3}`)
	electoralCodePrefix = regexp.MustCompile(`^[A-Z]{6}\d{8}`)

	// Date-of-birth block on the front of some cards: YYMMDD, optional
	// check digit, sex, 5-8 digits, MEX
	embeddedBirthDate = regexp.MustCompile(`(\d{6})\d?[HMF]\d{5,8}MEX`)
)

const electoralCodeLength = 18

var (
	nameTerminators    = []string{"DOMICILIO", "CLAVE", "SEXO", "FECHA"}
	addressTerminators = []string{"CLAVE", "CURP", "FOLIO"}
)

// NationalIDStrategy reads the Mexican voter card (INE/IFE) front and back.
type NationalIDStrategy struct {
	nationalIDCode func(*Document) string
	electoralCode  func(*Document) string
	name           func(*Document) string
	address        func(*Document) string
	birthDate      func(*Document) string
	nationality    func(*Document) string
}

func NewNationalIDStrategy() *NationalIDStrategy {
	return &NationalIDStrategy{
		nationalIDCode: firstOf(curpAnywhere),
		electoralCode:  firstOf(electoralNearAnchor, electoralLinePrefix),
		name:           firstOf(nameBlock),
		address:        firstOf(addressBlock),
		birthDate:      firstOf(birthDateAfterAnchor, birthDateEmbedded),
		nationality:    firstOf(mexicanMarker),
	}
}

func (s *NationalIDStrategy) Name() string {
	return "national_id"
}

func (s *NationalIDStrategy) CanExtract(docType domain.DocumentType) bool {
	return docType == domain.DocumentTypeNationalID || docType == domain.DocumentTypeINE
}

func (s *NationalIDStrategy) Extract(doc *Document) domain.ExtractedIdentity {
	return domain.ExtractedIdentity{
		Name:           s.name(doc),
		Address:        s.address(doc),
		NationalIDCode: s.nationalIDCode(doc),
		ElectoralCode:  s.electoralCode(doc),
		BirthDate:      s.birthDate(doc),
		Nationality:    s.nationality(doc),
	}
}

func curpAnywhere(doc *Document) (string, bool) {
	m := nationalIDCode.FindString(doc.Compact)
	return alnum(m), m != ""
}

// electoralNearAnchor scans each ELECTOR line and the two lines after it.
// Card headers read "INSTITUTO NACIONAL ELECTORAL", so the first anchor is
// often not the one next to the code.
func electoralNearAnchor(doc *Document) (string, bool) {
	for _, start := range doc.anchors("ELECTOR") {
		for i := start; i < len(doc.Lines) && i <= start+2; i++ {
			if m := electoralCode.FindString(stripSpace(strings.ToUpper(doc.Lines[i]))); m != "" {
				return alnum(m), true
			}
		}
	}
	return "", false
}

func electoralLinePrefix(doc *Document) (string, bool) {
	for _, line := range doc.Lines {
		compact := stripSpace(strings.ToUpper(line))
		if len(compact) >= electoralCodeLength && electoralCodePrefix.MatchString(compact) {
			return alnum(compact[:electoralCodeLength]), true
		}
	}
	return "", false
}

func nameBlock(doc *Document) (string, bool) {
	name := doc.collectAfter("NOMBRE", func(line string) bool {
		return containsAny(line, nameTerminators)
	})
	return name, name != ""
}

func addressBlock(doc *Document) (string, bool) {
	address := doc.collectAfter("DOMICILIO", func(line string) bool {
		return containsAny(line, addressTerminators) || nationalIDCode.MatchString(stripSpace(line))
	})
	return address, address != ""
}

func birthDateAfterAnchor(doc *Document) (string, bool) {
	i := doc.anchor("NACIMIENTO")
	if i < 0 || i+1 >= len(doc.Lines) {
		return "", false
	}
	date := fromDayMonthYear(doc.Lines[i+1])
	return date, date != ""
}

// birthDateEmbedded only applies when the card has no NACIMIENTO label.
func birthDateEmbedded(doc *Document) (string, bool) {
	if doc.anchor("NACIMIENTO") >= 0 {
		return "", false
	}
	m := embeddedBirthDate.FindStringSubmatch(doc.Compact)
	if m == nil {
		return "", false
	}
	date := fromYYMMDD(m[1], birthYear)
	return date, date != ""
}

// mexicanMarker is a deliberately coarse check: any MEX in the text counts.
func mexicanMarker(doc *Document) (string, bool) {
	if strings.Contains(doc.Compact, "MEX") {
		return domain.NationalityMexican, true
	}
	return "", false
}
