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
	"time"

	"github.com/staffly/approvalflow/pkg/models"
)

// TemplateRepository handles template-related file operations.
type TemplateRepository struct {
	root string // File system root for storing templates
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(root string) *TemplateRepository {
	return &TemplateRepository{root: root}
}

// Templates returns all templates sorted by creation time, newest first.
func (tr *TemplateRepository) Templates(_ context.Context) ([]*models.WorkflowTemplate, error) {
	root := os.DirFS(path.Join(tr.root, "templates"))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list template files: %w", err)
	}

	templates := make([]*models.WorkflowTemplate, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		templateID := file[:len(file)-5] // Remove .json extension

		template, err := tr.getByID(templateID)
		if err != nil {
			return nil, fmt.Errorf("failed to load template %s: %w", templateID, err)
		}

		if template != nil {
			templates = append(templates, template)
		}
	}

	sort.Slice(templates, func(i, j int) bool {
		return templates[i].CreatedAt.After(templates[j].CreatedAt)
	})

	return templates, nil
}

// TemplatesByBatchType returns all templates configured for a batch type.
func (tr *TemplateRepository) TemplatesByBatchType(ctx context.Context, batchType models.BatchType) ([]*models.WorkflowTemplate, error) {
	all, err := tr.Templates(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.WorkflowTemplate, 0)

	for _, template := range all {
		if template.BatchType == batchType {
			filtered = append(filtered, template)
		}
	}

	return filtered, nil
}

// DefaultTemplate returns the default template for the batch type, or nil.
func (tr *TemplateRepository) DefaultTemplate(ctx context.Context, batchType models.BatchType) (*models.WorkflowTemplate, error) {
	templates, err := tr.TemplatesByBatchType(ctx, batchType)
	if err != nil {
		return nil, err
	}

	for _, template := range templates {
		if template.IsDefault {
			return template, nil
		}
	}

	return nil, nil
}

// GetByID retrieves a template by its ID from the file system.
func (tr *TemplateRepository) GetByID(_ context.Context, templateID string) (*models.WorkflowTemplate, error) {
	return tr.getByID(templateID)
}

func (tr *TemplateRepository) getByID(templateID string) (*models.WorkflowTemplate, error) {
	filePath := filepath.Clean(path.Join(tr.root, "templates", templateID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch template %s: %w", templateID, err)
	}

	var template models.WorkflowTemplate

	err = json.Unmarshal(body, &template)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal template %s: %w", templateID, err)
	}

	return &template, nil
}

// Save writes a template to the file system. Saving a default template
// demotes any other default of the same batch type so at most one survives.
func (tr *TemplateRepository) Save(ctx context.Context, template *models.WorkflowTemplate) error {
	err := os.MkdirAll(path.Join(tr.root, "templates"), 0750)
	if err != nil {
		return fmt.Errorf("failed to create templates directory: %w", err)
	}

	now := time.Now().UTC()
	if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}

	template.UpdatedAt = now

	if template.IsDefault {
		err := tr.demoteOtherDefaults(ctx, template)
		if err != nil {
			return err
		}
	}

	return tr.write(template)
}

func (tr *TemplateRepository) demoteOtherDefaults(ctx context.Context, template *models.WorkflowTemplate) error {
	siblings, err := tr.TemplatesByBatchType(ctx, template.BatchType)
	if err != nil {
		return fmt.Errorf("failed to demote previous default: %w", err)
	}

	for _, sibling := range siblings {
		if sibling.ID == template.ID || !sibling.IsDefault {
			continue
		}

		sibling.IsDefault = false

		err := tr.write(sibling)
		if err != nil {
			return fmt.Errorf("failed to demote previous default %s: %w", sibling.ID, err)
		}
	}

	return nil
}

func (tr *TemplateRepository) write(template *models.WorkflowTemplate) error {
	data, err := json.MarshalIndent(template, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal template %s: %w", template.ID, err)
	}

	filePath := path.Join(tr.root, "templates", template.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}

// Delete removes a template by its ID.
func (tr *TemplateRepository) Delete(_ context.Context, id string) error {
	filePath := path.Join(tr.root, "templates", id+".json")

	err := os.Remove(filePath)

	if err != nil && os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to delete template %s: %w", id, err)
	}

	return nil
}
