package activities

import (
	"context"
	"database/sql"
	"encoding/json"
)

type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Insert(ctx context.Context, activity Activity) error {
	const query = `
INSERT INTO user_activities (id, user_id, action, resource_type, resource_id, details, ip_address, user_agent, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`

	var details any
	if len(activity.Details) > 0 {
		payload, err := json.Marshal(activity.Details)
		if err != nil {
			return err
		}
		details = payload
	}

	_, err := r.DB.ExecContext(ctx, query,
		activity.ID,
		activity.UserID,
		activity.Action,
		activity.ResourceType,
		nullableString(activity.ResourceID),
		details,
		nullableString(activity.IPAddress),
		nullableString(activity.UserAgent),
	)
	return err
}

// ListByUser lists a user's activity newest-first.
func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Activity, int, error) {
	limit, offset = clampPage(limit, offset)

	const countQuery = `SELECT COUNT(*) FROM user_activities WHERE user_id = $1`
	var total int
	if err := r.DB.QueryRowContext(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	const query = `
SELECT id, user_id, action, resource_type, resource_id, details, ip_address, user_agent, created_at
FROM user_activities
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`

	rows, err := r.DB.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out, err := scanActivities(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ListAll lists activity across users, optionally filtered by action.
func (r *PGRepo) ListAll(ctx context.Context, action string, limit, offset int) ([]Activity, int, error) {
	limit, offset = clampPage(limit, offset)

	const countQuery = `SELECT COUNT(*) FROM user_activities WHERE ($1 = '' OR action = $1)`
	var total int
	if err := r.DB.QueryRowContext(ctx, countQuery, action).Scan(&total); err != nil {
		return nil, 0, err
	}

	const query = `
SELECT id, user_id, action, resource_type, resource_id, details, ip_address, user_agent, created_at
FROM user_activities
WHERE ($1 = '' OR action = $1)
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`

	rows, err := r.DB.QueryContext(ctx, query, action, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out, err := scanActivities(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func scanActivities(rows *sql.Rows) ([]Activity, error) {
	var out []Activity
	for rows.Next() {
		var a Activity
		var resourceID sql.NullString
		var details []byte
		var ipAddress sql.NullString
		var userAgent sql.NullString
		if err := rows.Scan(
			&a.ID,
			&a.UserID,
			&a.Action,
			&a.ResourceType,
			&resourceID,
			&details,
			&ipAddress,
			&userAgent,
			&a.CreatedAt,
		); err != nil {
			return nil, err
		}
		if resourceID.Valid {
			a.ResourceID = resourceID.String
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &a.Details)
		}
		if ipAddress.Valid {
			a.IPAddress = ipAddress.String
		}
		if userAgent.Valid {
			a.UserAgent = userAgent.String
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
