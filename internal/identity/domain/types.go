package domain

import "time"

// DocumentType represents the type of identity document being read
type DocumentType string

const (
	DocumentTypeNationalID DocumentType = "national_id"
	DocumentTypePassport   DocumentType = "passport"
	// DocumentTypeINE is the value the upload UI sends for the Mexican voter
	// card. It is read the same way as national_id.
	DocumentTypeINE DocumentType = "ine"
)

// Nationality reported when the text carries the MEX marker
const NationalityMexican = "MEXICANA"

// ExtractedIdentity holds the fields read from an identity document's OCR text.
// Missing fields are empty strings.
type ExtractedIdentity struct {
	Name                string       `json:"name"`
	Address             string       `json:"address"`
	NationalIDCode      string       `json:"national_id_code"`
	ElectoralCode       string       `json:"electoral_code"`
	PassportNumber      string       `json:"passport_number"`
	MachineReadableZone string       `json:"machine_readable_zone"`
	BirthDate           string       `json:"birth_date"`
	ExpirationDate      string       `json:"expiration_date"`
	Sex                 string       `json:"sex"`
	Nationality         string       `json:"nationality"`
	DocumentType        DocumentType `json:"document_type"`
	RawText             string       `json:"raw_text"`
}

// FieldsFound lists the JSON names of the non-empty extracted fields,
// excluding the echoed document type and raw text.
func (e *ExtractedIdentity) FieldsFound() []string {
	fields := []struct {
		name  string
		value string
	}{
		{"name", e.Name},
		{"address", e.Address},
		{"national_id_code", e.NationalIDCode},
		{"electoral_code", e.ElectoralCode},
		{"passport_number", e.PassportNumber},
		{"machine_readable_zone", e.MachineReadableZone},
		{"birth_date", e.BirthDate},
		{"expiration_date", e.ExpirationDate},
		{"sex", e.Sex},
		{"nationality", e.Nationality},
	}

	found := []string{}
	for _, f := range fields {
		if f.value != "" {
			found = append(found, f.name)
		}
	}
	return found
}

// ExtractionStatus represents the processing state of an extraction job
type ExtractionStatus string

const (
	StatusPending    ExtractionStatus = "pending"
	StatusProcessing ExtractionStatus = "processing"
	StatusCompleted  ExtractionStatus = "completed"
	StatusFailed     ExtractionStatus = "failed"
)

// ExtractionJob tracks one upload through OCR and field extraction
type ExtractionJob struct {
	JobID            string             `json:"job_id"`
	UserID           string             `json:"user_id"`
	DocumentType     DocumentType       `json:"document_type"`
	Status           ExtractionStatus   `json:"status"`
	Result           *ExtractedIdentity `json:"result,omitempty"`
	Error            string             `json:"error,omitempty"`
	ProcessingTimeMs int64              `json:"processing_time_ms,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	CompletedAt      *time.Time         `json:"completed_at,omitempty"`
}

// Finished reports whether the job reached a terminal state
func (j *ExtractionJob) Finished() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// VerificationAuditEntry records a finished extraction without any field values
type VerificationAuditEntry struct {
	ID           string     `json:"id" db:"id"`
	JobID        string     `json:"job_id" db:"job_id"`
	UserID       string     `json:"user_id" db:"user_id"`
	DocumentType string     `json:"document_type" db:"document_type"`
	Status       string     `json:"status" db:"status"`
	FieldsFound  []string   `json:"fields_found" db:"fields_found"`
	ErrorMessage *string    `json:"error_message,omitempty" db:"error_message"`
	ConsentAt    *time.Time `json:"consent_at,omitempty" db:"consent_at"`
	ProcessingMs int        `json:"processing_ms" db:"processing_ms"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}
