package users

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dme-backend/internal/activities"
	"dme-backend/internal/shared/server/middleware"
	"dme-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the users service.
type Handler struct {
	Svc      *Service
	Activity *activities.Service
}

func NewHandler(svc *Service, activity *activities.Service) *Handler {
	return &Handler{Svc: svc, Activity: activity}
}

// RegisterRoutes attaches auth routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/auth/register", h.register)
	rg.POST("/auth/login", h.login)
	rg.GET("/auth/me", h.me)
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	user, err := h.Svc.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		var vErr *ValidationError
		switch {
		case errors.As(err, &vErr):
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid registration request", []map[string]string{
				{"field": vErr.Field, "issue": vErr.Issue},
			})
		case errors.Is(err, ErrConflict):
			respond.Error(c, http.StatusConflict, "conflict", "username or email already registered", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to register user", nil)
		}
		return
	}

	h.Activity.Log(c.Request.Context(), activities.Activity{
		UserID:       user.ID,
		Action:       activities.ActionRegister,
		ResourceType: activities.ResourceUser,
		ResourceID:   user.ID,
		Details:      map[string]any{"username": user.Username},
		IPAddress:    c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
	})

	respond.JSON(c, http.StatusCreated, user)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	user, token, err := h.Svc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "invalid username or password", nil)
		case errors.Is(err, ErrUserInactive):
			respond.Error(c, http.StatusForbidden, "forbidden", "account is inactive", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to log in", nil)
		}
		return
	}

	h.Activity.Log(c.Request.Context(), activities.Activity{
		UserID:       user.ID,
		Action:       activities.ActionLogin,
		ResourceType: activities.ResourceUser,
		ResourceID:   user.ID,
		Details:      map[string]any{"username": user.Username},
		IPAddress:    c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
	})

	respond.JSON(c, http.StatusOK, gin.H{
		"accessToken": token,
		"tokenType":   "bearer",
		"expiresIn":   int(h.Svc.Tokens.TTL().Seconds()),
	})
}

func (h *Handler) me(c *gin.Context) {
	if h.Svc == nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "service unavailable", nil)
		return
	}
	userID := middleware.UserIDFromContext(c)
	user, err := h.Svc.GetByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "user not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load user", nil)
		return
	}
	respond.JSON(c, http.StatusOK, user)
}
