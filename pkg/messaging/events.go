package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Identity events
	EventIdentityDocumentExtracted = "identity.document.extracted"
	EventIdentityExtractionFailed  = "identity.document.failed"

	// Driver events
	EventDriverProfileCreated = "driver.profile.created"
	EventDriverStatusChanged  = "driver.status.changed"
)

// Exchange names
const (
	ExchangeIdentityEvents = "identity.events"
	ExchangeDriverEvents   = "driver.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Identity Events

// IdentityDocumentExtractedEvent is published when an extraction job completes.
// It names the fields that were found, never their values.
type IdentityDocumentExtractedEvent struct {
	JobID        string    `json:"job_id"`
	UserID       string    `json:"user_id"`
	DocumentType string    `json:"document_type"`
	FieldsFound  []string  `json:"fields_found"`
	ExtractedAt  time.Time `json:"extracted_at"`
}

// IdentityExtractionFailedEvent is published when an extraction job fails
type IdentityExtractionFailedEvent struct {
	JobID        string `json:"job_id"`
	UserID       string `json:"user_id"`
	DocumentType string `json:"document_type"`
	Error        string `json:"error"`
}

// Driver Events

// DriverProfileCreatedEvent is published when an account opts into driving
type DriverProfileCreatedEvent struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

// DriverStatusChangedEvent is published after every accepted status transition
type DriverStatusChangedEvent struct {
	UserID     string `json:"user_id"`
	Event      string `json:"event"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	Reason     string `json:"reason,omitempty"`
	ActorID    string `json:"actor_id"`
	Visible    bool   `json:"visible"`
}
