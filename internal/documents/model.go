package documents

import "time"

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// NotFoundPlaceholder marks a patient field the pipeline could not locate.
// Completed documents always carry all three fields, using this value for
// the ones that were absent from the source.
const NotFoundPlaceholder = "Not Found"

func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Document represents an uploaded intake document owned by a user.
type Document struct {
	ID               string         `json:"id"`
	UserID           string         `json:"userId"`
	FileName         string         `json:"fileName"`
	OriginalName     string         `json:"originalName"`
	SizeBytes        int64          `json:"sizeBytes"`
	ContentType      string         `json:"contentType"`
	StorageKey       string         `json:"-"`
	PatientFirstName string         `json:"patientFirstName,omitempty"`
	PatientLastName  string         `json:"patientLastName,omitempty"`
	PatientDOB       string         `json:"patientDob,omitempty"`
	Extracted        map[string]any `json:"extracted,omitempty"`
	ExtractionStatus string         `json:"extractionStatus"`
	ExtractionError  string         `json:"extractionError,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}
