package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/staffly/approvalflow/pkg/models"
	"github.com/staffly/approvalflow/pkg/persistence"
)

// InstanceRepository handles workflow instance database operations.
type InstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewInstanceRepository creates a new instance repository.
func NewInstanceRepository(db *sql.DB, logger *slog.Logger) *InstanceRepository {
	return &InstanceRepository{db: db, logger: logger}
}

const instanceColumns = `
	id
  , template_id
  , entity_type
  , entity_id
  , status
  , current_step_index
  , steps
  , created_date
  , completed_date
`

// GetByID returns an instance by its ID, or nil when not found.
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)

	instance, err := r.scanInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, persistence.NewInstanceError("GetByID", id, err)
	}

	return instance, nil
}

// Save upserts the full instance state. The engine serializes all mutation
// per instance, so a whole-row write never races another writer.
func (r *InstanceRepository) Save(ctx context.Context, instance *models.WorkflowInstance) error {
	stepsJSON, err := json.Marshal(instance.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}

	query := `
		INSERT INTO workflow_instances (
			id, template_id, entity_type, entity_id, status, current_step_index, steps, created_date, completed_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			current_step_index = EXCLUDED.current_step_index,
			steps = EXCLUDED.steps,
			completed_date = EXCLUDED.completed_date
	`

	_, err = r.db.ExecContext(ctx, query,
		instance.ID,
		instance.TemplateID,
		string(instance.EntityType),
		instance.EntityID,
		string(instance.Status),
		instance.CurrentStepIndex,
		stepsJSON,
		instance.CreatedDate,
		instance.CompletedDate,
	)
	if err != nil {
		return persistence.NewInstanceError("Save", instance.ID, err)
	}

	return nil
}

// ListByStatus returns all instances in the given status, oldest first.
func (r *InstanceRepository) ListByStatus(ctx context.Context, status models.InstanceStatus) ([]*models.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE status = $1 ORDER BY created_date ASC`

	rows, err := r.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	instances := make([]*models.WorkflowInstance, 0)

	for rows.Next() {
		instance, err := r.scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}

		instances = append(instances, instance)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}

	return instances, nil
}

func (r *InstanceRepository) scanInstance(row rowScanner) (*models.WorkflowInstance, error) {
	var (
		instance   models.WorkflowInstance
		entityType string
		status     string
		stepsJSON  []byte
	)

	err := row.Scan(
		&instance.ID,
		&instance.TemplateID,
		&entityType,
		&instance.EntityID,
		&status,
		&instance.CurrentStepIndex,
		&stepsJSON,
		&instance.CreatedDate,
		&instance.CompletedDate,
	)
	if err != nil {
		return nil, err
	}

	instance.EntityType = models.BatchType(entityType)
	instance.Status = models.InstanceStatus(status)

	err = json.Unmarshal(stepsJSON, &instance.Steps)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
	}

	return &instance, nil
}
