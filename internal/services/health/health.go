package health

import (
	"context"
	"database/sql"
	"time"
)

const pingTimeout = 2 * time.Second

// Service reports process and database health.
type Service struct {
	DB *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{DB: db}
}

// Status returns the health payload. The database check is skipped when the
// app runs on in-memory repositories.
func (s *Service) Status(ctx context.Context) (map[string]any, bool) {
	status := map[string]any{"ok": true}
	if s == nil || s.DB == nil {
		status["database"] = "skipped"
		return status, true
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := s.DB.PingContext(pingCtx); err != nil {
		status["ok"] = false
		status["database"] = "unreachable"
		return status, false
	}
	status["database"] = "ok"
	return status, true
}
