package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/staffly/approvalflow/pkg/models"
)

// InstanceRepository handles workflow instance file operations.
type InstanceRepository struct {
	root string
}

// NewInstanceRepository creates a new instance repository.
func NewInstanceRepository(root string) *InstanceRepository {
	return &InstanceRepository{root: root}
}

// GetByID retrieves an instance by its ID from the file system.
func (ir *InstanceRepository) GetByID(_ context.Context, instanceID string) (*models.WorkflowInstance, error) {
	filePath := filepath.Clean(path.Join(ir.root, "instances", instanceID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch instance %s: %w", instanceID, err)
	}

	var instance models.WorkflowInstance

	err = json.Unmarshal(body, &instance)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal instance %s: %w", instanceID, err)
	}

	return &instance, nil
}

// Save writes an instance to the file system.
func (ir *InstanceRepository) Save(_ context.Context, instance *models.WorkflowInstance) error {
	err := os.MkdirAll(path.Join(ir.root, "instances"), 0750)
	if err != nil {
		return fmt.Errorf("failed to create instances directory: %w", err)
	}

	data, err := json.MarshalIndent(instance, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal instance %s: %w", instance.ID, err)
	}

	filePath := path.Join(ir.root, "instances", instance.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}

// ListByStatus returns all instances in the given status, oldest first so the
// escalation sweep visits the longest-waiting instances before newer ones.
func (ir *InstanceRepository) ListByStatus(ctx context.Context, status models.InstanceStatus) ([]*models.WorkflowInstance, error) {
	root := os.DirFS(path.Join(ir.root, "instances"))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list instance files: %w", err)
	}

	instances := make([]*models.WorkflowInstance, 0)

	for _, file := range jsonFiles {
		instanceID := file[:len(file)-5]

		instance, err := ir.GetByID(ctx, instanceID)
		if err != nil {
			return nil, fmt.Errorf("failed to load instance %s: %w", instanceID, err)
		}

		if instance != nil && instance.Status == status {
			instances = append(instances, instance)
		}
	}

	sort.Slice(instances, func(i, j int) bool {
		return instances[i].CreatedDate.Before(instances[j].CreatedDate)
	})

	return instances, nil
}
