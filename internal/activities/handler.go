package activities

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dme-backend/internal/shared/server/middleware"
	"dme-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the activity service.
type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches activity routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/activities", h.listMine)
	rg.GET("/activities/all", middleware.RequireAdmin(), h.listAll)
}

func (h *Handler) listMine(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	limit, skip := pageParams(c)

	entries, total, err := h.Svc.ListByUser(c.Request.Context(), userID, limit, skip)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list activities", nil)
		return
	}

	respond.JSON(c, http.StatusOK, respond.NewPage(entries, total, skip/limit+1, limit))
}

func (h *Handler) listAll(c *gin.Context) {
	action := c.Query("action")
	limit, skip := pageParams(c)

	entries, total, err := h.Svc.ListAll(c.Request.Context(), action, limit, skip)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list activities", nil)
		return
	}

	respond.JSON(c, http.StatusOK, respond.NewPage(entries, total, skip/limit+1, limit))
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
