// Package uploads provides the entity store for uploads, their fields and
// their files.
package uploads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/intake/internal/common"
	"github.com/dmitrijs2005/intake/internal/dbx"
	"github.com/dmitrijs2005/intake/internal/server/models"
)

const defaultListLimit = 100

// PostgresRepository implements upload storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, u *models.Upload) error {
	query := `INSERT INTO uploads (id, form_name, status, error, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(ctx, query,
		u.ID, u.FormName, string(u.Status), u.Error, u.CreatedBy, u.CreatedAt); err != nil {
		return fmt.Errorf("insert upload: %w", err)
	}

	for i, f := range u.Fields {
		query := `INSERT INTO upload_fields (upload_id, position, name, value) VALUES ($1, $2, $3, $4)`
		if _, err := r.db.ExecContext(ctx, query, u.ID, i, f.Name, f.Value); err != nil {
			return fmt.Errorf("insert upload field %s: %w", f.Name, err)
		}
	}

	for i, f := range u.Files {
		query := `INSERT INTO upload_files (upload_id, position, role, data_name, path, sha1hex, size)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`
		if _, err := r.db.ExecContext(ctx, query, u.ID, i, f.Role, f.DataName, f.Path, f.SHA1Hex, f.Size); err != nil {
			return fmt.Errorf("insert upload file %s: %w", f.Role, err)
		}
	}
	return nil
}

func (r *PostgresRepository) LockSubmission(ctx context.Context, formName, sid, timePoint string) error {
	key := strings.ToLower(formName) + "\x00" + sid + "\x00" + timePoint
	if _, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CountEquivalent(ctx context.Context, formName, sid, timePoint, excludeID string) (int, error) {
	query := `SELECT COUNT(*) FROM uploads u
		JOIN upload_fields s ON s.upload_id = u.id AND s.name = 'sid' AND s.value = $2
		JOIN upload_fields t ON t.upload_id = u.id AND t.name = 'time_point' AND t.value = $3
		WHERE lower(u.form_name) = lower($1) AND u.status <> $4 AND u.id <> $5`

	var n int
	err := r.db.QueryRowContext(ctx, query,
		formName, sid, timePoint, string(models.StatusRejected), excludeID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count equivalent uploads: %w", err)
	}
	return n, nil
}

const uploadColumns = `id, form_name, status, error, created_by, created_at`

func (r *PostgresRepository) SelectByStatus(ctx context.Context, formName string, status models.Status) ([]*models.Upload, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploads
		WHERE lower(form_name) = lower($1) AND status = $2
		ORDER BY created_at, id`

	result, err := r.queryUploads(ctx, query, formName, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to select uploads: %w", err)
	}
	if err := r.loadChildren(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Upload, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploads WHERE id = $1`

	u, err := scanUpload(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get upload: %w", err)
	}
	if err := r.loadChildren(ctx, []*models.Upload{u}); err != nil {
		return nil, err
	}
	return u, nil
}

func (r *PostgresRepository) List(ctx context.Context, f ListFilter) ([]*models.Upload, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.FormName != "" {
		where = append(where, "lower(u.form_name) = lower("+arg(f.FormName)+")")
	}
	if f.Status != "" {
		where = append(where, "u.status = "+arg(string(f.Status)))
	}
	if f.Centre != "" {
		where = append(where, "EXISTS (SELECT 1 FROM upload_fields c WHERE c.upload_id = u.id AND c.name = 'centre' AND c.value = "+arg(f.Centre)+")")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT u.id, u.form_name, u.status, u.error, u.created_by, u.created_at FROM uploads u`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY u.created_at DESC, u.id LIMIT " + arg(limit)

	result, err := r.queryUploads(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	if err := r.loadChildren(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) SetStatus(ctx context.Context, id string, status models.Status, errMsg *string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE uploads SET status = $2, error = $3 WHERE id = $1`,
		id, string(status), errMsg)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return dbx.ExpectOneRow(res)
}

func (r *PostgresRepository) Dashboard(ctx context.Context, f DashboardFilter) ([]models.DashboardCell, error) {
	query := `SELECT u.id, s.value, t.value, u.form_name, u.status FROM uploads u
		JOIN upload_fields s ON s.upload_id = u.id AND s.name = 'sid'
		JOIN upload_fields t ON t.upload_id = u.id AND t.name = 'time_point'`

	var args []any
	switch {
	case f.Centre != "":
		query += ` WHERE EXISTS (SELECT 1 FROM upload_fields c WHERE c.upload_id = u.id AND c.name = 'centre' AND c.value = $1)`
		args = append(args, f.Centre)
	case f.CreatedBy != "":
		query += ` WHERE u.created_by = $1`
		args = append(args, f.CreatedBy)
	}
	query += ` ORDER BY s.value, t.value, u.form_name, u.created_at`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select dashboard: %w", err)
	}
	defer rows.Close()

	var result []models.DashboardCell
	for rows.Next() {
		var (
			c      models.DashboardCell
			status string
		)
		if err := rows.Scan(&c.UploadID, &c.SubjectID, &c.TimePoint, &c.FormName, &status); err != nil {
			return nil, err
		}
		c.Status = models.Status(status)
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUpload(row rowScanner) (*models.Upload, error) {
	var (
		u       models.Upload
		status  string
		errText sql.NullString
	)
	if err := row.Scan(&u.ID, &u.FormName, &status, &errText, &u.CreatedBy, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Status = models.Status(status)
	if errText.Valid {
		u.Error = &errText.String
	}
	return &u, nil
}

func (r *PostgresRepository) queryUploads(ctx context.Context, query string, args ...any) ([]*models.Upload, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*models.Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// loadChildren fills Fields and Files of every upload, keeping insertion order.
func (r *PostgresRepository) loadChildren(ctx context.Context, list []*models.Upload) error {
	for _, u := range list {
		fields, err := r.selectFields(ctx, u.ID)
		if err != nil {
			return fmt.Errorf("load fields of %s: %w", u.ID, err)
		}
		u.Fields = fields

		files, err := r.selectFiles(ctx, u.ID)
		if err != nil {
			return fmt.Errorf("load files of %s: %w", u.ID, err)
		}
		u.Files = files
	}
	return nil
}

func (r *PostgresRepository) selectFields(ctx context.Context, uploadID string) ([]models.UploadField, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name, value FROM upload_fields WHERE upload_id = $1 ORDER BY position`, uploadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.UploadField
	for rows.Next() {
		var f models.UploadField
		if err := rows.Scan(&f.Name, &f.Value); err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (r *PostgresRepository) selectFiles(ctx context.Context, uploadID string) ([]models.UploadFile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT role, data_name, path, sha1hex, size FROM upload_files WHERE upload_id = $1 ORDER BY position`, uploadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.UploadFile
	for rows.Next() {
		var f models.UploadFile
		if err := rows.Scan(&f.Role, &f.DataName, &f.Path, &f.SHA1Hex, &f.Size); err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, rows.Err()
}
