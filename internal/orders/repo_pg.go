package orders

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

type PGRepo struct {
	DB *sql.DB
}

const uniqueViolation = "23505"

func (r *PGRepo) Create(ctx context.Context, order Order) error {
	const query = `
INSERT INTO orders (id, order_number, user_id, document_id, patient_first_name, patient_last_name, patient_dob,
                    status, order_type, description, quantity, unit_price, total_amount, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())`
	_, err := r.DB.ExecContext(ctx, query,
		order.ID,
		order.OrderNumber,
		order.UserID,
		nullableString(order.DocumentID),
		order.PatientFirstName,
		order.PatientLastName,
		order.PatientDOB,
		order.Status,
		order.OrderType,
		nullableString(order.Description),
		order.Quantity,
		order.UnitPrice,
		order.TotalAmount,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrConflict
		}
		return err
	}
	return nil
}

const orderColumns = `id, order_number, user_id, document_id, patient_first_name, patient_last_name, patient_dob,
       status, order_type, description, quantity, unit_price, total_amount, created_at, updated_at`

func (r *PGRepo) GetByID(ctx context.Context, orderID string) (Order, error) {
	query := `
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1
LIMIT 1`
	row := r.DB.QueryRowContext(ctx, query, orderID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	return order, nil
}

// List returns orders newest-first with the total matching count. Empty filter
// fields are skipped inside the query itself so the statement stays static.
func (r *PGRepo) List(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	limit, offset := clampPage(filter.Limit, filter.Offset)

	const countQuery = `
SELECT COUNT(*)
FROM orders
WHERE ($1 = '' OR user_id = $1)
  AND ($2 = '' OR status = $2)
  AND ($3 = '' OR patient_first_name ILIKE '%' || $3 || '%' OR patient_last_name ILIKE '%' || $3 || '%')`
	var total int
	if err := r.DB.QueryRowContext(ctx, countQuery, filter.UserID, filter.Status, filter.Patient).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
SELECT ` + orderColumns + `
FROM orders
WHERE ($1 = '' OR user_id = $1)
  AND ($2 = '' OR status = $2)
  AND ($3 = '' OR patient_first_name ILIKE '%' || $3 || '%' OR patient_last_name ILIKE '%' || $3 || '%')
ORDER BY created_at DESC
LIMIT $4 OFFSET $5`
	rows, err := r.DB.QueryContext(ctx, query, filter.UserID, filter.Status, filter.Patient, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *PGRepo) Update(ctx context.Context, order Order) error {
	const query = `
UPDATE orders SET
  document_id = $2,
  patient_first_name = $3,
  patient_last_name = $4,
  patient_dob = $5,
  status = $6,
  order_type = $7,
  description = $8,
  quantity = $9,
  unit_price = $10,
  total_amount = $11,
  updated_at = now()
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query,
		order.ID,
		nullableString(order.DocumentID),
		order.PatientFirstName,
		order.PatientLastName,
		order.PatientDOB,
		order.Status,
		order.OrderType,
		nullableString(order.Description),
		order.Quantity,
		order.UnitPrice,
		order.TotalAmount,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) Delete(ctx context.Context, orderID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (Order, error) {
	var order Order
	var documentID sql.NullString
	var description sql.NullString
	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.UserID,
		&documentID,
		&order.PatientFirstName,
		&order.PatientLastName,
		&order.PatientDOB,
		&order.Status,
		&order.OrderType,
		&description,
		&order.Quantity,
		&order.UnitPrice,
		&order.TotalAmount,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return Order{}, err
	}
	if documentID.Valid {
		order.DocumentID = documentID.String
	}
	if description.Valid {
		order.Description = description.String
	}
	return order, nil
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
