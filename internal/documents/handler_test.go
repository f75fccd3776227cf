package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"dme-backend/internal/activities"
	"dme-backend/internal/shared/storage/object/local"
)

func setupDocumentRouter(svc *Service, userID, role string) (*gin.Engine, *activities.Service) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("userId", userID)
		c.Set("userRole", role)
		c.Next()
	})
	activitySvc := activities.NewService(activities.NewMemoryRepo())
	api := router.Group("/api/v1")
	NewHandler(svc, activitySvc).RegisterRoutes(api)
	return router, activitySvc
}

func uploadRequest(router *gin.Engine, fileName, contentType string, payload []byte) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err == nil {
		_, err = part.Write(payload)
	}
	if err == nil {
		err = writer.Close()
	}
	if err != nil {
		panic(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestUploadEndpointCreatesDocument(t *testing.T) {
	svc, _, enqueuer := setupDocumentService(t)
	router, activitySvc := setupDocumentRouter(svc, "user-1", "user")

	resp := uploadRequest(router, "intake scan.png", "image/png", pngPayload)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if doc.OriginalName != "intake scan.png" || doc.ExtractionStatus != StatusPending {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if len(enqueuer.ids) != 1 || enqueuer.ids[0] != doc.ID {
		t.Fatalf("expected extraction enqueued for %q, got %v", doc.ID, enqueuer.ids)
	}

	entries, total, err := activitySvc.ListByUser(context.Background(), "user-1", 10, 0)
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	if total != 1 || entries[0].Action != activities.ActionDocumentUpload {
		t.Fatalf("expected one document_upload activity, got %d %+v", total, entries)
	}
}

func TestUploadEndpointRequiresFile(t *testing.T) {
	svc, _, _ := setupDocumentService(t)
	router, _ := setupDocumentRouter(svc, "user-1", "user")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), "file is required") {
		t.Fatalf("unexpected body: %s", resp.Body.String())
	}
}

func TestUploadEndpointRejectsMismatchedContent(t *testing.T) {
	svc, _, _ := setupDocumentService(t)
	router, _ := setupDocumentRouter(svc, "user-1", "user")

	resp := uploadRequest(router, "scan.png", "image/png", []byte("plain text pretending to be png"))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", resp.Code, resp.Body.String())
	}

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Error.Code != "validation_error" || !strings.Contains(body.Error.Message, "does not match") {
		t.Fatalf("unexpected error: %+v", body.Error)
	}
}

func TestListDocumentsEndpoint(t *testing.T) {
	svc, _, _ := setupDocumentService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("scan-%d.png", i)
		if _, err := svc.Upload(ctx, "user-1", name, "image/png", int64(len(pngPayload)), bytes.NewReader(pngPayload)); err != nil {
			t.Fatalf("Upload: %v", err)
		}
	}
	router, _ := setupDocumentRouter(svc, "user-1", "user")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents?limit=2", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var page struct {
		Items []Document `json:"items"`
		Total int        `json:"total"`
		Pages int        `json:"pages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if page.Total != 3 || len(page.Items) != 2 || page.Pages != 2 {
		t.Fatalf("unexpected envelope: %+v", page)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/documents?status=bogus", nil)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for unknown status, got %d", resp.Code)
	}
}

func TestGetDocumentEndpointScopes(t *testing.T) {
	svc, _, _ := setupDocumentService(t)
	ctx := context.Background()

	doc, err := svc.Upload(ctx, "user-1", "scan.png", "image/png", int64(len(pngPayload)), bytes.NewReader(pngPayload))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	owner, _ := setupDocumentRouter(svc, "user-1", "user")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+doc.ID, nil)
	resp := httptest.NewRecorder()
	owner.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("owner get: %d: %s", resp.Code, resp.Body.String())
	}

	other, _ := setupDocumentRouter(svc, "user-2", "user")
	req = httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+doc.ID, nil)
	resp = httptest.NewRecorder()
	other.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for foreign document, got %d", resp.Code)
	}

	admin, _ := setupDocumentRouter(svc, "admin-1", "admin")
	req = httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+doc.ID, nil)
	resp = httptest.NewRecorder()
	admin.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 for admin, got %d", resp.Code)
	}
}

func TestDownloadEndpointStreamsFile(t *testing.T) {
	svc, _, _ := setupDocumentService(t)
	ctx := context.Background()

	doc, err := svc.Upload(ctx, "user-1", "intake scan.png", "image/png", int64(len(pngPayload)), bytes.NewReader(pngPayload))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	router, _ := setupDocumentRouter(svc, "user-1", "user")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+doc.ID+"/download", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !bytes.Equal(body, pngPayload) {
		t.Fatalf("downloaded bytes diverge: %d vs %d", len(body), len(pngPayload))
	}
	if resp.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("expected image/png, got %q", resp.Header().Get("Content-Type"))
	}
	disposition := resp.Header().Get("Content-Disposition")
	if !strings.Contains(disposition, "intake scan.png") {
		t.Fatalf("expected filename in disposition, got %q", disposition)
	}
}

func TestDownloadEndpointPresigns(t *testing.T) {
	store := &presignStore{ObjectStore: local.New(t.TempDir())}
	svc := NewService(NewMemoryRepo(), store, nil)
	ctx := context.Background()

	doc, err := svc.Upload(ctx, "user-1", "scan.png", "image/png", int64(len(pngPayload)), bytes.NewReader(pngPayload))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	router, _ := setupDocumentRouter(svc, "user-1", "user")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+doc.ID+"/download", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var body struct {
		URL       string `json:"url"`
		ExpiresIn int    `json:"expiresIn"`
		FileName  string `json:"fileName"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.HasPrefix(body.URL, "https://signed.example/") || body.ExpiresIn != 3600 {
		t.Fatalf("unexpected body: %+v", body)
	}
	if body.FileName != "scan.png" {
		t.Fatalf("expected original name, got %q", body.FileName)
	}
}

func TestDeleteDocumentEndpoint(t *testing.T) {
	svc, _, _ := setupDocumentService(t)
	ctx := context.Background()

	doc, err := svc.Upload(ctx, "user-1", "scan.png", "image/png", int64(len(pngPayload)), bytes.NewReader(pngPayload))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	router, activitySvc := setupDocumentRouter(svc, "user-1", "user")

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/documents/"+doc.ID, nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d: %s", resp.Code, resp.Body.String())
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/documents/"+doc.ID, nil)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 after delete, got %d", resp.Code)
	}

	entries, _, err := activitySvc.ListByUser(context.Background(), "user-1", 10, 0)
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != activities.ActionDocumentDelete {
		t.Fatalf("expected document_delete activity, got %+v", entries)
	}
}
