package orders

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dme-backend/internal/activities"
	"dme-backend/internal/shared/metrics"
	"dme-backend/internal/shared/server/middleware"
	"dme-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the orders service.
type Handler struct {
	Svc      *Service
	Activity *activities.Service
}

func NewHandler(svc *Service, activity *activities.Service) *Handler {
	return &Handler{Svc: svc, Activity: activity}
}

// RegisterRoutes attaches order routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/orders", h.create)
	rg.GET("/orders", h.list)
	rg.GET("/orders/:id", h.get)
	rg.GET("/orders/:id/status", h.status)
	rg.PUT("/orders/:id", h.update)
	rg.POST("/orders/:id/apply-extraction", h.applyExtraction)
	rg.DELETE("/orders/:id", h.remove)
}

type createOrderRequest struct {
	PatientFirstName string   `json:"patientFirstName"`
	PatientLastName  string   `json:"patientLastName"`
	PatientDOB       string   `json:"patientDob"`
	OrderType        string   `json:"orderType"`
	Description      string   `json:"description"`
	Quantity         *int     `json:"quantity"`
	UnitPrice        *float64 `json:"unitPrice"`
}

func (h *Handler) create(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	input := CreateOrderInput{
		PatientFirstName: req.PatientFirstName,
		PatientLastName:  req.PatientLastName,
		PatientDOB:       req.PatientDOB,
		OrderType:        req.OrderType,
		Description:      req.Description,
		Quantity:         1,
	}
	if req.Quantity != nil {
		input.Quantity = *req.Quantity
	}
	if req.UnitPrice != nil {
		input.UnitPrice = *req.UnitPrice
	}

	order, err := h.Svc.Create(c.Request.Context(), userID, input)
	if err != nil {
		respondOrderError(c, err, "failed to create order")
		return
	}

	c.Set("orderId", order.ID)
	metrics.IncOrderCreated()
	h.Activity.Log(c.Request.Context(), activities.Activity{
		UserID:       userID,
		Action:       activities.ActionOrderCreate,
		ResourceType: activities.ResourceOrder,
		ResourceID:   order.ID,
		Details:      map[string]any{"orderNumber": order.OrderNumber},
		IPAddress:    c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
	})

	respond.JSON(c, http.StatusCreated, order)
}

func (h *Handler) list(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	admin := middleware.RoleFromContext(c) == middleware.RoleAdmin
	limit, skip := pageParams(c)

	status := c.Query("status")
	if status != "" && !ValidStatus(status) {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unknown status filter", nil)
		return
	}

	filter := ListFilter{
		Status:  status,
		Patient: c.Query("patient"),
		Limit:   limit,
		Offset:  skip,
	}
	items, total, err := h.Svc.List(c.Request.Context(), userID, admin, filter)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list orders", nil)
		return
	}

	respond.JSON(c, http.StatusOK, respond.NewPage(items, total, skip/limit+1, limit))
}

func (h *Handler) get(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	admin := middleware.RoleFromContext(c) == middleware.RoleAdmin
	orderID := c.Param("id")
	c.Set("orderId", orderID)

	order, err := h.Svc.Get(c.Request.Context(), userID, admin, orderID)
	if err != nil {
		respondOrderError(c, err, "failed to fetch order")
		return
	}
	respond.JSON(c, http.StatusOK, order)
}

func (h *Handler) status(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	admin := middleware.RoleFromContext(c) == middleware.RoleAdmin
	orderID := c.Param("id")
	c.Set("orderId", orderID)

	order, err := h.Svc.Get(c.Request.Context(), userID, admin, orderID)
	if err != nil {
		respondOrderError(c, err, "failed to fetch order status")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"status":      order.Status,
		"createdAt":   order.CreatedAt,
		"updatedAt":   order.UpdatedAt,
	})
}

type updateOrderRequest struct {
	PatientFirstName *string  `json:"patientFirstName"`
	PatientLastName  *string  `json:"patientLastName"`
	PatientDOB       *string  `json:"patientDob"`
	Status           *string  `json:"status"`
	OrderType        *string  `json:"orderType"`
	Description      *string  `json:"description"`
	Quantity         *int     `json:"quantity"`
	UnitPrice        *float64 `json:"unitPrice"`
}

func (h *Handler) update(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	admin := middleware.RoleFromContext(c) == middleware.RoleAdmin
	orderID := c.Param("id")
	c.Set("orderId", orderID)

	var req updateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	input := UpdateOrderInput{
		PatientFirstName: req.PatientFirstName,
		PatientLastName:  req.PatientLastName,
		PatientDOB:       req.PatientDOB,
		Status:           req.Status,
		OrderType:        req.OrderType,
		Description:      req.Description,
		Quantity:         req.Quantity,
		UnitPrice:        req.UnitPrice,
	}
	order, prevStatus, err := h.Svc.Update(c.Request.Context(), userID, admin, orderID, input)
	if err != nil {
		respondOrderError(c, err, "failed to update order")
		return
	}

	details := map[string]any{"orderNumber": order.OrderNumber}
	if prevStatus != order.Status {
		c.Set("statusTransition", prevStatus+"->"+order.Status)
		details["statusTransition"] = prevStatus + "->" + order.Status
	}
	h.Activity.Log(c.Request.Context(), activities.Activity{
		UserID:       userID,
		Action:       activities.ActionOrderUpdate,
		ResourceType: activities.ResourceOrder,
		ResourceID:   order.ID,
		Details:      details,
		IPAddress:    c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
	})

	respond.JSON(c, http.StatusOK, order)
}

type applyExtractionRequest struct {
	DocumentID string `json:"documentId"`
}

func (h *Handler) applyExtraction(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	admin := middleware.RoleFromContext(c) == middleware.RoleAdmin
	orderID := c.Param("id")
	c.Set("orderId", orderID)

	var req applyExtractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if req.DocumentID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "documentId is required", nil)
		return
	}
	c.Set("documentId", req.DocumentID)

	order, err := h.Svc.ApplyExtraction(c.Request.Context(), userID, admin, orderID, req.DocumentID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "order not found", nil)
		case errors.Is(err, ErrDocumentNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		case errors.Is(err, ErrExtractionNotReady):
			respond.Error(c, http.StatusConflict, "conflict", "document extraction is not completed", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to apply extraction", nil)
		}
		return
	}

	h.Activity.Log(c.Request.Context(), activities.Activity{
		UserID:       userID,
		Action:       activities.ActionApplyExtraction,
		ResourceType: activities.ResourceOrder,
		ResourceID:   order.ID,
		Details:      map[string]any{"orderNumber": order.OrderNumber, "documentId": req.DocumentID},
		IPAddress:    c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
	})

	respond.JSON(c, http.StatusOK, order)
}

func (h *Handler) remove(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	admin := middleware.RoleFromContext(c) == middleware.RoleAdmin
	orderID := c.Param("id")
	c.Set("orderId", orderID)

	order, err := h.Svc.Delete(c.Request.Context(), userID, admin, orderID)
	if err != nil {
		respondOrderError(c, err, "failed to delete order")
		return
	}

	h.Activity.Log(c.Request.Context(), activities.Activity{
		UserID:       userID,
		Action:       activities.ActionOrderDelete,
		ResourceType: activities.ResourceOrder,
		ResourceID:   order.ID,
		Details:      map[string]any{"orderNumber": order.OrderNumber},
		IPAddress:    c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
	})

	c.Status(http.StatusNoContent)
}

func respondOrderError(c *gin.Context, err error, fallback string) {
	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr):
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid order request", []map[string]string{
			{"field": vErr.Field, "issue": vErr.Issue},
		})
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "order not found", nil)
	case errors.Is(err, ErrConflict):
		respond.Error(c, http.StatusConflict, "conflict", "order number collision, retry the request", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}

func pageParams(c *gin.Context) (limit, skip int) {
	limit = 100
	skip = 0

	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 1000 {
		limit = 1000
	}

	if v := c.Query("skip"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			skip = parsed
		}
	}
	if skip < 0 {
		skip = 0
	}
	return limit, skip
}
