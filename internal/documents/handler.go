package documents

import (
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"dme-backend/internal/activities"
	"dme-backend/internal/shared/metrics"
	"dme-backend/internal/shared/server/middleware"
	"dme-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the documents service.
type Handler struct {
	Svc      *Service
	Activity *activities.Service
}

func NewHandler(svc *Service, activity *activities.Service) *Handler {
	return &Handler{Svc: svc, Activity: activity}
}

// RegisterRoutes attaches document routes to the router group. The manual
// extraction trigger lives in the extraction package.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents", h.upload)
	rg.GET("/documents", h.list)
	rg.GET("/documents/:id", h.get)
	rg.GET("/documents/:id/download", h.download)
	rg.DELETE("/documents/:id", h.remove)
}

func (h *Handler) upload(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize+4096)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		if strings.Contains(err.Error(), "request body too large") {
			respond.Error(c, http.StatusBadRequest, "validation_error", "file exceeds the 10 MiB limit", nil)
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	if fileHeader.Size > maxUploadSize {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file exceeds the 10 MiB limit", nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	declared := fileHeader.Header.Get("Content-Type")
	doc, err := h.Svc.Upload(c.Request.Context(), userID, fileHeader.Filename, declared, fileHeader.Size, file)
	if err != nil {
		respondDocumentError(c, err, "failed to upload document")
		return
	}

	c.Set("documentId", doc.ID)
	metrics.IncDocumentUploaded()
	h.Activity.Log(c.Request.Context(), activities.Activity{
		UserID:       userID,
		Action:       activities.ActionDocumentUpload,
		ResourceType: activities.ResourceDocument,
		ResourceID:   doc.ID,
		Details:      map[string]any{"fileName": doc.FileName, "originalName": doc.OriginalName, "sizeBytes": doc.SizeBytes},
		IPAddress:    c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
	})

	respond.JSON(c, http.StatusCreated, doc)
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

	items, total, err := h.Svc.List(c.Request.Context(), userID, admin, ListFilter{
		Status: status,
		Limit:  limit,
		Offset: skip,
	})
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list documents", nil)
		return
	}

	respond.JSON(c, http.StatusOK, respond.NewPage(items, total, skip/limit+1, limit))
}

func (h *Handler) get(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	admin := middleware.RoleFromContext(c) == middleware.RoleAdmin
	documentID := c.Param("id")
	c.Set("documentId", documentID)

	doc, err := h.Svc.Get(c.Request.Context(), userID, admin, documentID)
	if err != nil {
		respondDocumentError(c, err, "failed to fetch document")
		return
	}
	respond.JSON(c, http.StatusOK, doc)
}

func (h *Handler) download(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	admin := middleware.RoleFromContext(c) == middleware.RoleAdmin
	documentID := c.Param("id")
	c.Set("documentId", documentID)

	doc, url, rc, err := h.Svc.Download(c.Request.Context(), userID, admin, documentID)
	if err != nil {
		respondDocumentError(c, err, "failed to download document")
		return
	}

	if url != "" {
		respond.JSON(c, http.StatusOK, gin.H{
			"url":       url,
			"expiresIn": 3600,
			"fileName":  doc.OriginalName,
		})
		return
	}

	defer rc.Close()
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": doc.OriginalName})
	c.DataFromReader(http.StatusOK, doc.SizeBytes, doc.ContentType, rc, map[string]string{
		"Content-Disposition": disposition,
	})
}

func (h *Handler) remove(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	admin := middleware.RoleFromContext(c) == middleware.RoleAdmin
	documentID := c.Param("id")
	c.Set("documentId", documentID)

	doc, err := h.Svc.Delete(c.Request.Context(), userID, admin, documentID)
	if err != nil {
		respondDocumentError(c, err, "failed to delete document")
		return
	}

	h.Activity.Log(c.Request.Context(), activities.Activity{
		UserID:       userID,
		Action:       activities.ActionDocumentDelete,
		ResourceType: activities.ResourceDocument,
		ResourceID:   doc.ID,
		Details:      map[string]any{"fileName": doc.FileName, "originalName": doc.OriginalName},
		IPAddress:    c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
	})

	c.Status(http.StatusNoContent)
}

func respondDocumentError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
	case errors.Is(err, ErrStorage):
		respond.Error(c, http.StatusInternalServerError, "storage_error", "object storage failure", nil)
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
