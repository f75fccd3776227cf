package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"dme-backend/internal/documents"
)

var (
	ErrDocumentNotFound   = errors.New("document not found")
	ErrExtractionNotReady = errors.New("document extraction is not completed")
)

// ValidationError reports the first field that failed order checks.
type ValidationError struct {
	Field string
	Issue string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Issue }

const createAttempts = 3

type Service struct {
	Repo Repo
	Docs documents.Repo
}

func NewService(repo Repo, docs documents.Repo) *Service {
	return &Service{Repo: repo, Docs: docs}
}

type CreateOrderInput struct {
	PatientFirstName string
	PatientLastName  string
	PatientDOB       string
	OrderType        string
	Description      string
	Quantity         int
	UnitPrice        float64
}

func (s *Service) Create(ctx context.Context, userID string, input CreateOrderInput) (Order, error) {
	input.PatientFirstName = strings.TrimSpace(input.PatientFirstName)
	input.PatientLastName = strings.TrimSpace(input.PatientLastName)
	input.PatientDOB = strings.TrimSpace(input.PatientDOB)
	input.OrderType = strings.TrimSpace(input.OrderType)

	if input.PatientFirstName == "" {
		return Order{}, &ValidationError{Field: "patientFirstName", Issue: "is required"}
	}
	if input.PatientLastName == "" {
		return Order{}, &ValidationError{Field: "patientLastName", Issue: "is required"}
	}
	if err := validateDOB(input.PatientDOB); err != nil {
		return Order{}, err
	}
	if input.OrderType == "" {
		return Order{}, &ValidationError{Field: "orderType", Issue: "is required"}
	}
	if input.Quantity < 1 {
		return Order{}, &ValidationError{Field: "quantity", Issue: "must be at least 1"}
	}
	if input.UnitPrice < 0 {
		return Order{}, &ValidationError{Field: "unitPrice", Issue: "must not be negative"}
	}

	now := time.Now().UTC()
	order := Order{
		ID:               uuid.NewString(),
		UserID:           userID,
		PatientFirstName: input.PatientFirstName,
		PatientLastName:  input.PatientLastName,
		PatientDOB:       input.PatientDOB,
		Status:           StatusPending,
		OrderType:        input.OrderType,
		Description:      strings.TrimSpace(input.Description),
		Quantity:         input.Quantity,
		UnitPrice:        input.UnitPrice,
		TotalAmount:      float64(input.Quantity) * input.UnitPrice,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	// Order numbers are random; retry a fresh one on the rare collision.
	var err error
	for attempt := 0; attempt < createAttempts; attempt++ {
		order.OrderNumber = NewOrderNumber()
		err = s.Repo.Create(ctx, order)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, ErrConflict) {
			return Order{}, err
		}
	}
	return Order{}, err
}

func (s *Service) Get(ctx context.Context, actorID string, admin bool, orderID string) (Order, error) {
	order, err := s.Repo.GetByID(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !admin && order.UserID != actorID {
		return Order{}, ErrNotFound
	}
	return order, nil
}

// List scopes non-admin callers to their own orders.
func (s *Service) List(ctx context.Context, actorID string, admin bool, filter ListFilter) ([]Order, int, error) {
	if !admin {
		filter.UserID = actorID
	}
	return s.Repo.List(ctx, filter)
}

type UpdateOrderInput struct {
	PatientFirstName *string
	PatientLastName  *string
	PatientDOB       *string
	Status           *string
	OrderType        *string
	Description      *string
	Quantity         *int
	UnitPrice        *float64
}

// Update applies the provided fields and recomputes the total whenever
// quantity or unit price change. Returns the previous status for audit.
func (s *Service) Update(ctx context.Context, actorID string, admin bool, orderID string, input UpdateOrderInput) (Order, string, error) {
	order, err := s.Get(ctx, actorID, admin, orderID)
	if err != nil {
		return Order{}, "", err
	}
	prevStatus := order.Status

	if input.PatientFirstName != nil {
		name := strings.TrimSpace(*input.PatientFirstName)
		if name == "" {
			return Order{}, "", &ValidationError{Field: "patientFirstName", Issue: "must not be empty"}
		}
		order.PatientFirstName = name
	}
	if input.PatientLastName != nil {
		name := strings.TrimSpace(*input.PatientLastName)
		if name == "" {
			return Order{}, "", &ValidationError{Field: "patientLastName", Issue: "must not be empty"}
		}
		order.PatientLastName = name
	}
	if input.PatientDOB != nil {
		dob := strings.TrimSpace(*input.PatientDOB)
		if err := validateDOB(dob); err != nil {
			return Order{}, "", err
		}
		order.PatientDOB = dob
	}
	if input.Status != nil {
		if !ValidStatus(*input.Status) {
			return Order{}, "", &ValidationError{Field: "status", Issue: "must be one of pending, approved, shipped, delivered, cancelled"}
		}
		order.Status = *input.Status
	}
	if input.OrderType != nil {
		orderType := strings.TrimSpace(*input.OrderType)
		if orderType == "" {
			return Order{}, "", &ValidationError{Field: "orderType", Issue: "must not be empty"}
		}
		order.OrderType = orderType
	}
	if input.Description != nil {
		order.Description = strings.TrimSpace(*input.Description)
	}
	if input.Quantity != nil {
		if *input.Quantity < 1 {
			return Order{}, "", &ValidationError{Field: "quantity", Issue: "must be at least 1"}
		}
		order.Quantity = *input.Quantity
	}
	if input.UnitPrice != nil {
		if *input.UnitPrice < 0 {
			return Order{}, "", &ValidationError{Field: "unitPrice", Issue: "must not be negative"}
		}
		order.UnitPrice = *input.UnitPrice
	}

	order.TotalAmount = float64(order.Quantity) * order.UnitPrice
	order.UpdatedAt = time.Now().UTC()

	if err := s.Repo.Update(ctx, order); err != nil {
		return Order{}, "", err
	}
	return order, prevStatus, nil
}

// ApplyExtraction copies the patient fields of a completed document into the
// order. Placeholder values for fields the pipeline could not find are skipped
// so they never overwrite user-entered data.
func (s *Service) ApplyExtraction(ctx context.Context, actorID string, admin bool, orderID, documentID string) (Order, error) {
	order, err := s.Get(ctx, actorID, admin, orderID)
	if err != nil {
		return Order{}, err
	}

	docScope := actorID
	if admin {
		docScope = ""
	}
	doc, err := s.Docs.GetByID(ctx, docScope, documentID)
	if err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			return Order{}, ErrDocumentNotFound
		}
		return Order{}, err
	}
	if doc.ExtractionStatus != documents.StatusCompleted {
		return Order{}, ErrExtractionNotReady
	}

	if found(doc.PatientFirstName) {
		order.PatientFirstName = doc.PatientFirstName
	}
	if found(doc.PatientLastName) {
		order.PatientLastName = doc.PatientLastName
	}
	if found(doc.PatientDOB) {
		order.PatientDOB = doc.PatientDOB
	}
	order.DocumentID = doc.ID
	order.UpdatedAt = time.Now().UTC()

	if err := s.Repo.Update(ctx, order); err != nil {
		return Order{}, err
	}
	return order, nil
}

func (s *Service) Delete(ctx context.Context, actorID string, admin bool, orderID string) (Order, error) {
	order, err := s.Get(ctx, actorID, admin, orderID)
	if err != nil {
		return Order{}, err
	}
	if err := s.Repo.Delete(ctx, order.ID); err != nil {
		return Order{}, err
	}
	return order, nil
}

func found(value string) bool {
	return value != "" && value != documents.NotFoundPlaceholder
}

func validateDOB(dob string) error {
	if dob == "" {
		return &ValidationError{Field: "patientDob", Issue: "is required"}
	}
	if _, err := time.Parse("2006-01-02", dob); err != nil {
		return &ValidationError{Field: "patientDob", Issue: "must be formatted YYYY-MM-DD"}
	}
	return nil
}
