package activities

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"dme-backend/internal/shared/telemetry"
)

type Service struct {
	Repo Repo
}

func NewService(repo Repo) *Service {
	return &Service{Repo: repo}
}

// Log appends one audit row. Failures are reported through telemetry and
// swallowed so the primary action is never rolled back by audit trouble.
func (s *Service) Log(ctx context.Context, activity Activity) {
	if s == nil || s.Repo == nil {
		return
	}
	if strings.TrimSpace(activity.UserID) == "" || strings.TrimSpace(activity.Action) == "" {
		return
	}
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}
	if err := s.Repo.Insert(ctx, activity); err != nil {
		telemetry.Error("activity.log_failed", map[string]any{
			"user_id": activity.UserID,
			"action":  activity.Action,
			"error":   err.Error(),
		})
	}
}

func (s *Service) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Activity, int, error) {
	return s.Repo.ListByUser(ctx, userID, limit, offset)
}

func (s *Service) ListAll(ctx context.Context, action string, limit, offset int) ([]Activity, int, error) {
	return s.Repo.ListAll(ctx, action, limit, offset)
}
