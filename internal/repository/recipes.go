package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/recipeworks/photo-worker/constants"
	"github.com/recipeworks/photo-worker/internal/common"
)

// RecipeRow is one row in recipes. The id equals the job id.
type RecipeRow struct {
	ID            string
	RawObjectKey  string
	ContentSHA256 string
	Status        constants.RecipeStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OCRRow is the 1:1 OCR metadata row attached to a recipe.
type OCRRow struct {
	RecipeID      string
	OCRObjectKey  string
	EngineName    string
	EngineVersion string
	PageCount     int
	CreatedAt     time.Time
}

// TagRow is one additive tagging result, keyed by (recipe, schema version).
type TagRow struct {
	RecipeID      string
	SchemaVersion int
	TagsObjectKey string
	CreatedAt     time.Time
}

// RecipeWithOCR is one row of the recipes ⋈ recipe_ocr read view.
type RecipeWithOCR struct {
	RecipeRow
	OCR *OCRRow
}

type RecipeRepository interface {
	// UpsertRecipe inserts or forward-updates the recipe row and returns its
	// current state. Status never moves backward and terminal rows are never
	// touched; a skipped update is reported through the returned row, not an
	// error.
	UpsertRecipe(ctx context.Context, id, rawKey, digest string, status constants.RecipeStatus, now time.Time) (*RecipeRow, error)
	// SetStatus flips the status, honoring the forward-only rule. Returns
	// false when the row was terminal (or absent) and nothing changed.
	SetStatus(ctx context.Context, id string, status constants.RecipeStatus, now time.Time) (bool, error)
	GetRecipe(ctx context.Context, id string) (*RecipeRow, error)
	UpsertOCR(ctx context.Context, row OCRRow) error
	GetOCR(ctx context.Context, recipeID string) (*OCRRow, error)
	UpsertTag(ctx context.Context, row TagRow) error
	ListWithOCR(ctx context.Context) ([]RecipeWithOCR, error)
}

type recipeRepo struct {
	db      *sql.DB
	dialect Dialect
	log     *slog.Logger
}

func NewRecipeRepository(db *sql.DB, dialect Dialect, log *slog.Logger) RecipeRepository {
	if log == nil {
		log = slog.Default()
	}
	return &recipeRepo{db: db, dialect: dialect, log: log}
}

// Identity fields (s3_raw_key, content_sha256, created_at) are written once
// at insert and never changed by later upserts; only the status may advance.
const upsertRecipeSQL = `
INSERT INTO recipes (id, s3_raw_key, content_sha256, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    status     = excluded.status,
    updated_at = excluded.updated_at
WHERE recipes.status NOT IN ('succeeded', 'failed')
  AND (CASE recipes.status WHEN 'queued' THEN 0 WHEN 'running' THEN 1 ELSE 2 END)
      <= (CASE excluded.status WHEN 'queued' THEN 0 WHEN 'running' THEN 1 ELSE 2 END)`

func (r *recipeRepo) UpsertRecipe(ctx context.Context, id, rawKey, digest string, status constants.RecipeStatus, now time.Time) (*RecipeRow, error) {
	if !status.Valid() {
		return nil, common.Wrapf(common.ErrConflict, "unknown recipe status %q", status)
	}
	_, err := r.db.ExecContext(ctx, rebind(r.dialect, upsertRecipeSQL),
		id, rawKey, digest, string(status), now, now)
	if err != nil {
		r.log.Error("recipe upsert failed", "recipe_id", id, "error", err)
		return nil, err
	}
	row, err := r.GetRecipe(ctx, id)
	if err != nil {
		return nil, err
	}
	r.log.Debug("recipe upserted", "recipe_id", id, "status", row.Status)
	return row, nil
}

const setStatusSQL = `
UPDATE recipes
SET status = ?, updated_at = ?
WHERE id = ?
  AND status NOT IN ('succeeded', 'failed')
  AND (CASE status WHEN 'queued' THEN 0 WHEN 'running' THEN 1 ELSE 2 END)
      <= (CASE ? WHEN 'queued' THEN 0 WHEN 'running' THEN 1 ELSE 2 END)`

func (r *recipeRepo) SetStatus(ctx context.Context, id string, status constants.RecipeStatus, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, rebind(r.dialect, setStatusSQL),
		string(status), now, id, string(status))
	if err != nil {
		r.log.Error("recipe status update failed", "recipe_id", id, "status", status, "error", err)
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

const getRecipeSQL = `
SELECT id, s3_raw_key, content_sha256, status, created_at, updated_at
FROM recipes WHERE id = ?`

func (r *recipeRepo) GetRecipe(ctx context.Context, id string) (*RecipeRow, error) {
	var (
		row    RecipeRow
		status string
	)
	err := r.db.QueryRowContext(ctx, rebind(r.dialect, getRecipeSQL), id).Scan(
		&row.ID, &row.RawObjectKey, &row.ContentSHA256, &status, &row.CreatedAt, &row.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	row.Status = constants.RecipeStatus(status)
	return &row, nil
}

const upsertOCRSQL = `
INSERT INTO recipe_ocr (recipe_id, s3_ocr_key, ocr_engine, ocr_version, page_count, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (recipe_id) DO UPDATE SET
    s3_ocr_key  = excluded.s3_ocr_key,
    ocr_engine  = excluded.ocr_engine,
    ocr_version = excluded.ocr_version,
    page_count  = excluded.page_count`

func (r *recipeRepo) UpsertOCR(ctx context.Context, row OCRRow) error {
	_, err := r.db.ExecContext(ctx, rebind(r.dialect, upsertOCRSQL),
		row.RecipeID, row.OCRObjectKey, row.EngineName, row.EngineVersion, row.PageCount, row.CreatedAt)
	if err != nil {
		r.log.Error("ocr upsert failed", "recipe_id", row.RecipeID, "error", err)
		return err
	}
	return nil
}

const getOCRSQL = `
SELECT recipe_id, s3_ocr_key, ocr_engine, ocr_version, page_count, created_at
FROM recipe_ocr WHERE recipe_id = ?`

func (r *recipeRepo) GetOCR(ctx context.Context, recipeID string) (*OCRRow, error) {
	var row OCRRow
	err := r.db.QueryRowContext(ctx, rebind(r.dialect, getOCRSQL), recipeID).Scan(
		&row.RecipeID, &row.OCRObjectKey, &row.EngineName, &row.EngineVersion, &row.PageCount, &row.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

const upsertTagSQL = `
INSERT INTO recipe_tags (recipe_id, schema_version, s3_tags_key, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (recipe_id, schema_version) DO UPDATE SET
    s3_tags_key = excluded.s3_tags_key`

func (r *recipeRepo) UpsertTag(ctx context.Context, row TagRow) error {
	_, err := r.db.ExecContext(ctx, rebind(r.dialect, upsertTagSQL),
		row.RecipeID, row.SchemaVersion, row.TagsObjectKey, row.CreatedAt)
	if err != nil {
		r.log.Error("tag upsert failed", "recipe_id", row.RecipeID, "schema_version", row.SchemaVersion, "error", err)
		return err
	}
	return nil
}

const listWithOCRSQL = `
SELECT id, s3_raw_key, content_sha256, status, created_at, updated_at,
       s3_ocr_key, ocr_engine, ocr_version, page_count
FROM recipe_ocr_view
ORDER BY created_at`

func (r *recipeRepo) ListWithOCR(ctx context.Context) ([]RecipeWithOCR, error) {
	rows, err := r.db.QueryContext(ctx, rebind(r.dialect, listWithOCRSQL))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RecipeWithOCR
	for rows.Next() {
		var (
			rec       RecipeWithOCR
			status    string
			ocrKey    sql.NullString
			engine    sql.NullString
			version   sql.NullString
			pageCount sql.NullInt64
		)
		if err := rows.Scan(
			&rec.ID, &rec.RawObjectKey, &rec.ContentSHA256, &status, &rec.CreatedAt, &rec.UpdatedAt,
			&ocrKey, &engine, &version, &pageCount,
		); err != nil {
			return nil, err
		}
		rec.Status = constants.RecipeStatus(status)
		if ocrKey.Valid {
			rec.OCR = &OCRRow{
				RecipeID:      rec.ID,
				OCRObjectKey:  ocrKey.String,
				EngineName:    engine.String,
				EngineVersion: version.String,
				PageCount:     int(pageCount.Int64),
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
