package activities

import "time"

// Actions recorded in the activity trail.
const (
	ActionRegister        = "register"
	ActionLogin           = "login"
	ActionOrderCreate     = "order_create"
	ActionOrderUpdate     = "order_update"
	ActionOrderDelete     = "order_delete"
	ActionDocumentUpload  = "document_upload"
	ActionDocumentDelete  = "document_delete"
	ActionExtractionStart = "extraction_start"
	ActionApplyExtraction = "apply_extraction"
)

// Resource types referenced by activity rows.
const (
	ResourceUser     = "user"
	ResourceOrder    = "order"
	ResourceDocument = "document"
)

// Activity is one append-only audit row. Rows are never updated or deleted.
type Activity struct {
	ID           string         `json:"id"`
	UserID       string         `json:"userId"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resourceType"`
	ResourceID   string         `json:"resourceId,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	IPAddress    string         `json:"ipAddress,omitempty"`
	UserAgent    string         `json:"userAgent,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}
