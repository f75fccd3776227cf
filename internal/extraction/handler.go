package extraction

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dme-backend/internal/activities"
	"dme-backend/internal/documents"
	"dme-backend/internal/shared/server/middleware"
	"dme-backend/internal/shared/server/respond"
)

// Handler owns the manual extraction trigger.
type Handler struct {
	Svc      *Service
	Activity *activities.Service
}

func NewHandler(svc *Service, activity *activities.Service) *Handler {
	return &Handler{Svc: svc, Activity: activity}
}

// RegisterRoutes attaches the trigger route to the authenticated API group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents/:id/extract", h.trigger)
}

func (h *Handler) trigger(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}
	admin := middleware.RoleFromContext(c) == middleware.RoleAdmin

	ctx := withRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	doc, cached, err := h.Svc.Trigger(ctx, userID, admin, c.Param("id"))
	if err != nil {
		respondTriggerError(c, h.Svc.RetryAfterSeconds(), err)
		return
	}

	if !cached {
		h.Activity.Log(ctx, activities.Activity{
			UserID:       userID,
			Action:       activities.ActionExtractionStart,
			ResourceType: activities.ResourceDocument,
			ResourceID:   doc.ID,
			Details:      map[string]any{"status": doc.ExtractionStatus},
			IPAddress:    c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
		})
	}
	respond.JSON(c, http.StatusOK, gin.H{
		"cached":   cached,
		"document": doc,
	})
}

func respondTriggerError(c *gin.Context, retryAfter int, err error) {
	var pipeErr *PipelineError
	switch {
	case errors.Is(err, ErrCooldown):
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		respond.Error(c, http.StatusTooManyRequests, "rate_limited", "extraction was just triggered, retry shortly", gin.H{"retryAfter": retryAfter})
	case errors.Is(err, ErrInProgress):
		respond.Error(c, http.StatusConflict, "conflict", "extraction is already in progress", nil)
	case errors.Is(err, ErrNotConfigured):
		respond.Error(c, http.StatusServiceUnavailable, "inference_error", "extraction is not available", nil)
	case errors.Is(err, documents.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
	case errors.As(err, &pipeErr):
		if pipeErr.Code == ErrorCodeStorage {
			respond.Error(c, http.StatusInternalServerError, "storage_error", "object storage failure", nil)
			return
		}
		respond.Error(c, http.StatusBadGateway, "inference_error", sanitizeError(pipeErr), gin.H{"code": pipeErr.Code})
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to run extraction", nil)
	}
}
