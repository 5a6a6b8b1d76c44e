package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/staffly/approvalflow/pkg/models"
	"github.com/staffly/approvalflow/pkg/persistence"
	"github.com/xeipuuv/gojsonschema"
)

// Template manages workflow template configuration.
type Template struct {
	persistence persistence.Persistence
	validator   *validator.Validate
	schema      *gojsonschema.Schema
}

// NewTemplate creates a new template service.
func NewTemplate(persistence persistence.Persistence) (*Template, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(templateImportSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile template import schema: %w", err)
	}

	return &Template{
		persistence: persistence,
		validator:   validator.New(),
		schema:      schema,
	}, nil
}

// HealthCheck checks the health of the persistence layer.
func (s *Template) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List retrieves all templates.
func (s *Template) List(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	templates, err := s.persistence.TemplateRepository().Templates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	return templates, nil
}

// ListByBatchType retrieves all templates for a batch type.
func (s *Template) ListByBatchType(ctx context.Context, batchType models.BatchType) ([]*models.WorkflowTemplate, error) {
	if !batchType.IsValid() {
		return nil, NewValidationError("ListByBatchType", "INVALID_BATCH_TYPE",
			fmt.Sprintf("invalid batch type '%s'", batchType), ErrInvalidBatchType)
	}

	templates, err := s.persistence.TemplateRepository().TemplatesByBatchType(ctx, batchType)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	return templates, nil
}

// FetchByID retrieves a template by its ID.
func (s *Template) FetchByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	template, err := s.persistence.TemplateRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if template == nil {
		return nil, ErrTemplateNotFound
	}

	return template, nil
}

// Create adds a new template.
func (s *Template) Create(ctx context.Context, template *models.WorkflowTemplate) (*models.WorkflowTemplate, error) {
	if template == nil {
		return nil, ErrTemplateNil
	}

	err := s.validate(ctx, "Create", template)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	template.ID = uuid.New().String()
	template.CreatedAt = now
	template.UpdatedAt = now

	s.assignStepIDs(template)
	template.NormalizeStepOrder()

	err = s.persistence.TemplateRepository().Save(ctx, template)
	if err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	return template, nil
}

// Update modifies an existing template by its ID. Running instances keep
// their instantiated copy of the old steps.
func (s *Template) Update(ctx context.Context, templateID string, template *models.WorkflowTemplate) (*models.WorkflowTemplate, error) {
	if template == nil {
		return nil, ErrTemplateNil
	}

	existing, err := s.FetchByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	err = s.validate(ctx, "Update", template)
	if err != nil {
		return nil, err
	}

	template.ID = templateID
	template.CreatedAt = existing.CreatedAt
	template.UpdatedAt = time.Now().UTC()

	s.assignStepIDs(template)
	template.NormalizeStepOrder()

	err = s.persistence.TemplateRepository().Save(ctx, template)
	if err != nil {
		return nil, fmt.Errorf("failed to update template: %w", err)
	}

	return template, nil
}

// Delete removes a template. The default template of a batch type must be
// demoted before it can be deleted.
func (s *Template) Delete(ctx context.Context, templateID string) error {
	existing, err := s.FetchByID(ctx, templateID)
	if err != nil {
		return err
	}

	if existing.IsDefault {
		return ErrTemplateInUseDefault
	}

	err = s.persistence.TemplateRepository().Delete(ctx, templateID)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	return nil
}

// Duplicate creates a copy of an existing template with fresh IDs. The copy
// is never the default.
func (s *Template) Duplicate(ctx context.Context, templateID string) (*models.WorkflowTemplate, error) {
	existing, err := s.FetchByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(existing)
	if err != nil {
		return nil, fmt.Errorf("failed to copy template: %w", err)
	}

	var copied models.WorkflowTemplate

	err = json.Unmarshal(raw, &copied)
	if err != nil {
		return nil, fmt.Errorf("failed to copy template: %w", err)
	}

	name, err := s.availableCopyName(ctx, existing)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	copied.ID = uuid.New().String()
	copied.Name = name
	copied.IsDefault = false
	copied.CreatedAt = now
	copied.UpdatedAt = now

	for _, step := range copied.Steps {
		step.ID = uuid.New().String()
	}

	err = s.persistence.TemplateRepository().Save(ctx, &copied)
	if err != nil {
		return nil, fmt.Errorf("failed to save duplicated template: %w", err)
	}

	return &copied, nil
}

// availableCopyName returns "<name> (copy)", suffixed with a counter when a
// template of that name already exists for the batch type.
func (s *Template) availableCopyName(ctx context.Context, template *models.WorkflowTemplate) (string, error) {
	siblings, err := s.persistence.TemplateRepository().TemplatesByBatchType(ctx, template.BatchType)
	if err != nil {
		return "", fmt.Errorf("failed to check name uniqueness: %w", err)
	}

	taken := make(map[string]bool, len(siblings))
	for _, sibling := range siblings {
		taken[strings.ToLower(sibling.Name)] = true
	}

	candidate := template.Name + " (copy)"
	for counter := 2; taken[strings.ToLower(candidate)]; counter++ {
		candidate = fmt.Sprintf("%s (copy %d)", template.Name, counter)
	}

	return candidate, nil
}

// SetDefault promotes the template to be the default for its batch type,
// demoting any previous default.
func (s *Template) SetDefault(ctx context.Context, templateID string) (*models.WorkflowTemplate, error) {
	template, err := s.FetchByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	if !template.IsActive {
		return nil, ErrTemplateNotActive
	}

	template.IsDefault = true
	template.UpdatedAt = time.Now().UTC()

	err = s.persistence.TemplateRepository().Save(ctx, template)
	if err != nil {
		return nil, fmt.Errorf("failed to set default template: %w", err)
	}

	return template, nil
}

// ImportJSON validates a raw template document against the import schema and
// creates it. Imported templates are never the default.
func (s *Template) ImportJSON(ctx context.Context, raw []byte) (*models.WorkflowTemplate, error) {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, NewValidationError("ImportJSON", "INVALID_JSON",
			fmt.Sprintf("document is not valid JSON: %v", err), ErrInvalidImport)
	}

	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, issue := range result.Errors() {
			issues = append(issues, issue.String())
		}

		return nil, NewValidationError("ImportJSON", "SCHEMA_VIOLATION",
			strings.Join(issues, "; "), ErrInvalidImport)
	}

	var template models.WorkflowTemplate

	err = json.Unmarshal(raw, &template)
	if err != nil {
		return nil, NewValidationError("ImportJSON", "INVALID_JSON",
			fmt.Sprintf("failed to decode template: %v", err), ErrInvalidImport)
	}

	template.IsDefault = false

	return s.Create(ctx, &template)
}

// validate checks the struct tags, batch type, name uniqueness and the step
// ordering invariant.
func (s *Template) validate(ctx context.Context, op string, template *models.WorkflowTemplate) error {
	err := s.validator.Struct(template)
	if err != nil {
		return NewValidationError(op, "INVALID_TEMPLATE", err.Error(), ErrInvalidRequest)
	}

	if !template.BatchType.IsValid() {
		return NewValidationError(op, "INVALID_BATCH_TYPE",
			fmt.Sprintf("invalid batch type '%s'", template.BatchType), ErrInvalidBatchType)
	}

	err = template.ValidateSteps()
	if err != nil {
		return NewValidationError(op, "INVALID_STEPS", err.Error(), ErrInvalidRequest)
	}

	siblings, err := s.persistence.TemplateRepository().TemplatesByBatchType(ctx, template.BatchType)
	if err != nil {
		return fmt.Errorf("failed to check name uniqueness: %w", err)
	}

	for _, sibling := range siblings {
		if sibling.ID != template.ID && strings.EqualFold(sibling.Name, template.Name) {
			return NewValidationError(op, "NAME_TAKEN",
				fmt.Sprintf("template name '%s' already exists for batch type '%s'", template.Name, template.BatchType),
				ErrTemplateNameTaken)
		}
	}

	return nil
}

func (s *Template) assignStepIDs(template *models.WorkflowTemplate) {
	for _, step := range template.Steps {
		if step.ID == "" {
			step.ID = uuid.New().String()
		}
	}
}
