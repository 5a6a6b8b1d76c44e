package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/staffly/approvalflow/pkg/models"
	"github.com/staffly/approvalflow/pkg/persistence"
)

// TemplateRepository handles template-related database operations.
type TemplateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(db *sql.DB, logger *slog.Logger) *TemplateRepository {
	return &TemplateRepository{db: db, logger: logger}
}

const templateColumns = `
	id
  , name
  , description
  , batch_type
  , is_active
  , is_default
  , steps
  , created_at
  , updated_at
`

// Templates returns all templates, newest first.
func (r *TemplateRepository) Templates(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM workflow_templates ORDER BY created_at DESC`

	return r.queryTemplates(ctx, query)
}

// TemplatesByBatchType returns all templates configured for a batch type.
func (r *TemplateRepository) TemplatesByBatchType(ctx context.Context, batchType models.BatchType) ([]*models.WorkflowTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM workflow_templates WHERE batch_type = $1 ORDER BY created_at DESC`

	return r.queryTemplates(ctx, query, string(batchType))
}

// DefaultTemplate returns the default template for the batch type, or nil.
func (r *TemplateRepository) DefaultTemplate(ctx context.Context, batchType models.BatchType) (*models.WorkflowTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM workflow_templates WHERE batch_type = $1 AND is_default`

	row := r.db.QueryRowContext(ctx, query, string(batchType))

	template, err := r.scanTemplate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan default template: %w", err)
	}

	return template, nil
}

// GetByID returns a template by its ID, or nil when not found.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM workflow_templates WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)

	template, err := r.scanTemplate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, persistence.NewTemplateError("GetByID", id, err)
	}

	return template, nil
}

// Save upserts a template. Clearing the previous default for the batch type
// happens in the same transaction so exactly one default survives.
func (r *TemplateRepository) Save(ctx context.Context, template *models.WorkflowTemplate) error {
	now := time.Now().UTC()

	if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}

	template.UpdatedAt = now

	if template.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate template ID: %w", err)
		}

		template.ID = id.String()
	}

	stepsJSON, err := json.Marshal(template.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if template.IsDefault {
		_, err = tx.ExecContext(ctx,
			`UPDATE workflow_templates SET is_default = FALSE WHERE batch_type = $1 AND id <> $2`,
			string(template.BatchType), template.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to clear previous default: %w", err)
		}
	}

	query := `
		INSERT INTO workflow_templates (
			id, name, description, batch_type, is_active, is_default, steps, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			batch_type = EXCLUDED.batch_type,
			is_active = EXCLUDED.is_active,
			is_default = EXCLUDED.is_default,
			steps = EXCLUDED.steps,
			updated_at = EXCLUDED.updated_at
	`

	_, err = tx.ExecContext(ctx, query,
		template.ID,
		template.Name,
		template.Description,
		string(template.BatchType),
		template.IsActive,
		template.IsDefault,
		stepsJSON,
		template.CreatedAt,
		template.UpdatedAt,
	)
	if err != nil {
		return persistence.NewTemplateError("Save", template.ID, err)
	}

	err = tx.Commit()
	if err != nil {
		return persistence.NewTemplateError("Save", template.ID, err)
	}

	return nil
}

// Delete removes a template by its ID.
func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM workflow_templates WHERE id = $1`, id)
	if err != nil {
		return persistence.NewTemplateError("Delete", id, err)
	}

	return nil
}

func (r *TemplateRepository) queryTemplates(ctx context.Context, query string, args ...any) ([]*models.WorkflowTemplate, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	templates := make([]*models.WorkflowTemplate, 0)

	for rows.Next() {
		template, err := r.scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}

		templates = append(templates, template)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	return templates, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *TemplateRepository) scanTemplate(row rowScanner) (*models.WorkflowTemplate, error) {
	var (
		template  models.WorkflowTemplate
		batchType string
		stepsJSON []byte
	)

	err := row.Scan(
		&template.ID,
		&template.Name,
		&template.Description,
		&batchType,
		&template.IsActive,
		&template.IsDefault,
		&stepsJSON,
		&template.CreatedAt,
		&template.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	template.BatchType = models.BatchType(batchType)

	err = json.Unmarshal(stepsJSON, &template.Steps)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
	}

	return &template, nil
}
