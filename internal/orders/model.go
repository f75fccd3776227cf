package orders

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusShipped   = "shipped"
	StatusDelivered = "delivered"
	StatusCancelled = "cancelled"
)

func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusApproved, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

type Order struct {
	ID               string    `json:"id"`
	OrderNumber      string    `json:"orderNumber"`
	UserID           string    `json:"userId"`
	DocumentID       string    `json:"documentId,omitempty"`
	PatientFirstName string    `json:"patientFirstName"`
	PatientLastName  string    `json:"patientLastName"`
	PatientDOB       string    `json:"patientDob"`
	Status           string    `json:"status"`
	OrderType        string    `json:"orderType"`
	Description      string    `json:"description,omitempty"`
	Quantity         int       `json:"quantity"`
	UnitPrice        float64   `json:"unitPrice"`
	TotalAmount      float64   `json:"totalAmount"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// NewOrderNumber returns an ORD- prefixed 8-char uppercase hex reference.
func NewOrderNumber() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ORD-" + strings.ToUpper(raw[:8])
}
