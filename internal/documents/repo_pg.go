package documents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Insert(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO documents (id, user_id, file_name, original_name, size_bytes, content_type, storage_key,
                       extraction_status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())`
	_, err := r.DB.ExecContext(ctx, query,
		doc.ID,
		doc.UserID,
		doc.FileName,
		doc.OriginalName,
		doc.SizeBytes,
		doc.ContentType,
		doc.StorageKey,
		doc.ExtractionStatus,
	)
	return err
}

const documentColumns = `id, user_id, file_name, original_name, size_bytes, content_type, storage_key,
       patient_first_name, patient_last_name, patient_dob, extracted_data, extraction_status, extraction_error,
       created_at, updated_at`

func (r *PGRepo) GetByID(ctx context.Context, userID, documentID string) (Document, error) {
	query := `
SELECT ` + documentColumns + `
FROM documents
WHERE id = $2 AND ($1 = '' OR user_id = $1)
LIMIT 1`
	row := r.DB.QueryRowContext(ctx, query, userID, documentID)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

func (r *PGRepo) List(ctx context.Context, filter ListFilter) ([]Document, int, error) {
	limit, offset := clampPage(filter.Limit, filter.Offset)

	const countQuery = `
SELECT COUNT(*)
FROM documents
WHERE ($1 = '' OR user_id = $1)
  AND ($2 = '' OR extraction_status = $2)`
	var total int
	if err := r.DB.QueryRowContext(ctx, countQuery, filter.UserID, filter.Status).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
SELECT ` + documentColumns + `
FROM documents
WHERE ($1 = '' OR user_id = $1)
  AND ($2 = '' OR extraction_status = $2)
ORDER BY created_at DESC
LIMIT $3 OFFSET $4`
	rows, err := r.DB.QueryContext(ctx, query, filter.UserID, filter.Status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ClaimForProcessing performs the guarded status transition that hands a
// document to exactly one worker. Failed documents can be re-claimed.
func (r *PGRepo) ClaimForProcessing(ctx context.Context, documentID string) (bool, error) {
	const query = `
UPDATE documents
SET extraction_status = 'processing', extraction_error = NULL, updated_at = now()
WHERE id = $1 AND extraction_status IN ('pending', 'failed')`
	res, err := r.DB.ExecContext(ctx, query, documentID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *PGRepo) MarkCompleted(ctx context.Context, documentID, firstName, lastName, dob string, raw []byte) error {
	const query = `
UPDATE documents
SET patient_first_name = $2,
    patient_last_name = $3,
    patient_dob = $4,
    extracted_data = $5,
    extraction_status = 'completed',
    extraction_error = NULL,
    updated_at = now()
WHERE id = $1 AND extraction_status = 'processing'`
	var rawValue any
	if len(raw) > 0 {
		rawValue = raw
	}
	res, err := r.DB.ExecContext(ctx, query, documentID, firstName, lastName, dob, rawValue)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotProcessing
	}
	return nil
}

func (r *PGRepo) MarkFailed(ctx context.Context, documentID, message string) error {
	const query = `
UPDATE documents
SET extraction_status = 'failed',
    extraction_error = $2,
    updated_at = now()
WHERE id = $1 AND extraction_status = 'processing'`
	res, err := r.DB.ExecContext(ctx, query, documentID, message)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotProcessing
	}
	return nil
}

func (r *PGRepo) Delete(ctx context.Context, userID, documentID string) error {
	const query = `DELETE FROM documents WHERE id = $2 AND ($1 = '' OR user_id = $1)`
	res, err := r.DB.ExecContext(ctx, query, userID, documentID)
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

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var firstName sql.NullString
	var lastName sql.NullString
	var dob sql.NullString
	var extracted []byte
	var extractionError sql.NullString
	err := row.Scan(
		&doc.ID,
		&doc.UserID,
		&doc.FileName,
		&doc.OriginalName,
		&doc.SizeBytes,
		&doc.ContentType,
		&doc.StorageKey,
		&firstName,
		&lastName,
		&dob,
		&extracted,
		&doc.ExtractionStatus,
		&extractionError,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return Document{}, err
	}
	if firstName.Valid {
		doc.PatientFirstName = firstName.String
	}
	if lastName.Valid {
		doc.PatientLastName = lastName.String
	}
	if dob.Valid {
		doc.PatientDOB = dob.String
	}
	if len(extracted) > 0 {
		_ = json.Unmarshal(extracted, &doc.Extracted)
	}
	if extractionError.Valid {
		doc.ExtractionError = extractionError.String
	}
	return doc, nil
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
