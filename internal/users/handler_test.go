package users

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"dme-backend/internal/activities"
	"dme-backend/internal/shared/auth"
)

func setupUsersRouter(t *testing.T) (*gin.Engine, *Service, *activities.MemoryRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens := auth.NewManager("users-handler-secret", "dme-backend", 30*time.Minute)
	svc := NewService(NewMemoryRepo(), tokens)
	activityRepo := activities.NewMemoryRepo()
	handler := NewHandler(svc, activities.NewService(activityRepo))

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "); token != "" {
			if claims, err := tokens.Verify(token); err == nil {
				c.Set("userId", claims.Subject)
				c.Set("userRole", claims.Role)
			}
		}
		c.Next()
	})
	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)
	return router, svc, activityRepo
}

func postJSON(t *testing.T, router *gin.Engine, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestRegisterEndpointCreatesUser(t *testing.T) {
	router, _, activityRepo := setupUsersRouter(t)

	resp := postJSON(t, router, "/api/v1/auth/register", map[string]string{
		"username": "jane_doe",
		"email":    "jane@example.com",
		"password": "secret1",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if decoded["username"] != "jane_doe" {
		t.Fatalf("expected username in response, got %v", decoded)
	}
	if _, leaked := decoded["passwordHash"]; leaked {
		t.Fatalf("password hash must not be serialized: %v", decoded)
	}
	if _, leaked := decoded["password_hash"]; leaked {
		t.Fatalf("password hash must not be serialized: %v", decoded)
	}

	_, total, err := activityRepo.ListAll(context.Background(), activities.ActionRegister, 10, 0)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected 1 register activity, got %d", total)
	}
}

func TestRegisterEndpointValidationDetails(t *testing.T) {
	router, _, _ := setupUsersRouter(t)

	resp := postJSON(t, router, "/api/v1/auth/register", map[string]string{
		"username": "jane_doe",
		"email":    "jane@example.com",
		"password": "123",
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}

	var decoded struct {
		Error struct {
			Code    string              `json:"code"`
			Details []map[string]string `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if decoded.Error.Code != "validation_error" {
		t.Fatalf("expected validation_error, got %q", decoded.Error.Code)
	}
	if len(decoded.Error.Details) != 1 || decoded.Error.Details[0]["field"] != "password" {
		t.Fatalf("expected password detail, got %+v", decoded.Error.Details)
	}
}

func TestRegisterEndpointDuplicateConflict(t *testing.T) {
	router, _, _ := setupUsersRouter(t)

	payload := map[string]string{"username": "jane_doe", "email": "jane@example.com", "password": "secret1"}
	if resp := postJSON(t, router, "/api/v1/auth/register", payload); resp.Code != http.StatusCreated {
		t.Fatalf("first register: expected 201, got %d", resp.Code)
	}
	resp := postJSON(t, router, "/api/v1/auth/register", payload)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
}

func TestLoginEndpointReturnsToken(t *testing.T) {
	router, svc, _ := setupUsersRouter(t)
	if _, err := svc.Register(context.Background(), "jane_doe", "jane@example.com", "secret1"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	resp := postJSON(t, router, "/api/v1/auth/login", map[string]string{
		"username": "jane_doe",
		"password": "secret1",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var decoded struct {
		AccessToken string `json:"accessToken"`
		TokenType   string `json:"tokenType"`
		ExpiresIn   int    `json:"expiresIn"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if decoded.TokenType != "bearer" {
		t.Fatalf("expected bearer token type, got %q", decoded.TokenType)
	}
	if decoded.ExpiresIn != 1800 {
		t.Fatalf("expected expiresIn 1800, got %d", decoded.ExpiresIn)
	}
	if _, err := svc.Tokens.Verify(decoded.AccessToken); err != nil {
		t.Fatalf("expected verifiable token: %v", err)
	}
}

func TestLoginEndpointRejectsBadPassword(t *testing.T) {
	router, svc, _ := setupUsersRouter(t)
	if _, err := svc.Register(context.Background(), "jane_doe", "jane@example.com", "secret1"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	resp := postJSON(t, router, "/api/v1/auth/login", map[string]string{
		"username": "jane_doe",
		"password": "wrong",
	})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
}

func TestMeEndpointReturnsCurrentUser(t *testing.T) {
	router, svc, _ := setupUsersRouter(t)
	user, err := svc.Register(context.Background(), "jane_doe", "jane@example.com", "secret1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	token, err := svc.Tokens.Sign(user.ID, user.Email, user.Username, user.Role)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var decoded User
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if decoded.ID != user.ID || decoded.Username != "jane_doe" {
		t.Fatalf("unexpected user: %+v", decoded)
	}
}
