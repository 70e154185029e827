package models

import "time"

// GeneratedDocument is the registry record for a final PDF produced for a
// request. There is at most one per (request, template) pair.
type GeneratedDocument struct {
	ID              string           `json:"id"`
	RequestID       int64            `json:"requestId"`
	TemplateSlug    string           `json:"templateSlug"`
	TemplateVersion int              `json:"templateVersion"`
	FileName        string           `json:"fileName"`
	StorageKey      string           `json:"storageKey"`
	FileURL         string           `json:"fileUrl"`
	MimeType        string           `json:"mimeType"`
	FileSize        int64            `json:"fileSize"`
	Checksum        string           `json:"checksum"`
	PageCount       int              `json:"pageCount"`
	Metadata        DocumentMetadata `json:"metadata"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// DocumentMetadata records how a document came to be.
type DocumentMetadata struct {
	GeneratedAt     time.Time `json:"generatedAt"`
	GeneratedBy     string    `json:"generatedBy"`
	TemplateSlug    string    `json:"templateSlug"`
	TemplateVersion int       `json:"templateVersion"`
	Trigger         string    `json:"trigger,omitempty"`
}

// Generation states reported from the outbox for a request.
const (
	GenerationPending   = "PENDING"
	GenerationDelivered = "DELIVERED"
	GenerationFailed    = "FAILED"
)

// GenerationState is the latest asynchronous generation marker for a
// request, as seen by the relay.
type GenerationState struct {
	EventID   string    `json:"eventId"`
	State     string    `json:"state"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"lastError,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}
