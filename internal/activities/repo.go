package activities

import "context"

type Repo interface {
	Insert(ctx context.Context, activity Activity) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Activity, int, error)
	ListAll(ctx context.Context, action string, limit, offset int) ([]Activity, int, error)
}
