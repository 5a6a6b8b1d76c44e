package services

import (
	"testing"

	"github.com/staffly/approvalflow/pkg/models"
	"github.com/staffly/approvalflow/pkg/persistence"
	"github.com/staffly/approvalflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTemplateService(t *testing.T) (*Template, persistence.Persistence) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())

	service, err := NewTemplate(store)
	require.NoError(t, err)

	return service, store
}

func validTemplate() *models.WorkflowTemplate {
	return &models.WorkflowTemplate{
		Name:      "Payroll approval",
		BatchType: models.BatchTypePayroll,
		IsActive:  true,
		Steps: []*models.ApprovalStepTemplate{
			{Order: 0, Name: "Manager Review", ApproverRole: "manager"},
			{Order: 1, Name: "Finance Review", ApproverRole: "finance"},
		},
	}
}

func TestTemplateCreate(t *testing.T) {
	service, _ := newTemplateService(t)

	created, err := service.Create(t.Context(), validTemplate())
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	for _, step := range created.Steps {
		assert.NotEmpty(t, step.ID)
	}

	fetched, err := service.FetchByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, fetched.Name)
}

func TestTemplateCreateValidation(t *testing.T) {
	service, _ := newTemplateService(t)

	tests := []struct {
		name   string
		mutate func(*models.WorkflowTemplate)
	}{
		{"short name", func(tpl *models.WorkflowTemplate) { tpl.Name = "ab" }},
		{"unknown batch type", func(tpl *models.WorkflowTemplate) { tpl.BatchType = "lunch-orders" }},
		{"no steps", func(tpl *models.WorkflowTemplate) { tpl.Steps = nil }},
		{"gapped order", func(tpl *models.WorkflowTemplate) { tpl.Steps[1].Order = 5 }},
		{"step missing approver role", func(tpl *models.WorkflowTemplate) { tpl.Steps[0].ApproverRole = "" }},
		{"step missing name", func(tpl *models.WorkflowTemplate) { tpl.Steps[0].Name = "" }},
		{"parallel step without roster", func(tpl *models.WorkflowTemplate) {
			tpl.Steps[0].IsParallel = true
			tpl.Steps[0].ParallelApprovalMode = models.ParallelModeMajority
		}},
		{"parallel step without mode", func(tpl *models.WorkflowTemplate) {
			tpl.Steps[0].IsParallel = true
			tpl.Steps[0].ParallelApprovers = []*models.ParallelApproverTemplate{{ApproverID: "u1"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			template := validTemplate()
			tt.mutate(template)

			_, err := service.Create(t.Context(), template)
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestTemplateCreateDuplicateName(t *testing.T) {
	service, _ := newTemplateService(t)

	_, err := service.Create(t.Context(), validTemplate())
	require.NoError(t, err)

	second := validTemplate()
	second.Name = "PAYROLL APPROVAL"

	_, err = service.Create(t.Context(), second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTemplateNameTaken)

	// Same name under a different batch type is fine
	third := validTemplate()
	third.BatchType = models.BatchTypeInvoice

	_, err = service.Create(t.Context(), third)
	require.NoError(t, err)
}

func TestTemplateUpdatePreservesCreatedAt(t *testing.T) {
	service, _ := newTemplateService(t)

	created, err := service.Create(t.Context(), validTemplate())
	require.NoError(t, err)

	updated := validTemplate()
	updated.Name = "Payroll approval v2"

	result, err := service.Update(t.Context(), created.ID, updated)
	require.NoError(t, err)

	assert.Equal(t, created.ID, result.ID)
	assert.Equal(t, created.CreatedAt, result.CreatedAt)
	assert.Equal(t, "Payroll approval v2", result.Name)
}

func TestTemplateUpdateNotFound(t *testing.T) {
	service, _ := newTemplateService(t)

	_, err := service.Update(t.Context(), "missing", validTemplate())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestTemplateDelete(t *testing.T) {
	service, _ := newTemplateService(t)

	created, err := service.Create(t.Context(), validTemplate())
	require.NoError(t, err)

	require.NoError(t, service.Delete(t.Context(), created.ID))

	_, err = service.FetchByID(t.Context(), created.ID)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestTemplateDeleteDefaultRefused(t *testing.T) {
	service, _ := newTemplateService(t)

	created, err := service.Create(t.Context(), validTemplate())
	require.NoError(t, err)

	_, err = service.SetDefault(t.Context(), created.ID)
	require.NoError(t, err)

	err = service.Delete(t.Context(), created.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTemplateInUseDefault)
}

func TestTemplateDuplicate(t *testing.T) {
	service, _ := newTemplateService(t)

	created, err := service.Create(t.Context(), validTemplate())
	require.NoError(t, err)

	_, err = service.SetDefault(t.Context(), created.ID)
	require.NoError(t, err)

	copied, err := service.Duplicate(t.Context(), created.ID)
	require.NoError(t, err)

	assert.NotEqual(t, created.ID, copied.ID)
	assert.Equal(t, "Payroll approval (copy)", copied.Name)
	assert.False(t, copied.IsDefault)
	require.Len(t, copied.Steps, 2)

	for i, step := range copied.Steps {
		assert.NotEqual(t, created.Steps[i].ID, step.ID)
		assert.Equal(t, created.Steps[i].Name, step.Name)
	}
}

func TestTemplateDuplicateNamesStayUnique(t *testing.T) {
	service, _ := newTemplateService(t)

	created, err := service.Create(t.Context(), validTemplate())
	require.NoError(t, err)

	first, err := service.Duplicate(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Payroll approval (copy)", first.Name)

	second, err := service.Duplicate(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Payroll approval (copy 2)", second.Name)

	third, err := service.Duplicate(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Payroll approval (copy 3)", third.Name)
}

func TestTemplateSetDefaultDemotesPrevious(t *testing.T) {
	service, store := newTemplateService(t)
	ctx := t.Context()

	first, err := service.Create(ctx, validTemplate())
	require.NoError(t, err)

	second := validTemplate()
	second.Name = "Payroll approval strict"

	created, err := service.Create(ctx, second)
	require.NoError(t, err)

	_, err = service.SetDefault(ctx, first.ID)
	require.NoError(t, err)

	_, err = service.SetDefault(ctx, created.ID)
	require.NoError(t, err)

	defaultTemplate, err := store.TemplateRepository().DefaultTemplate(ctx, models.BatchTypePayroll)
	require.NoError(t, err)
	require.NotNil(t, defaultTemplate)
	assert.Equal(t, created.ID, defaultTemplate.ID)

	demoted, err := service.FetchByID(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, demoted.IsDefault)
}

func TestTemplateSetDefaultInactive(t *testing.T) {
	service, _ := newTemplateService(t)

	template := validTemplate()
	template.IsActive = false

	created, err := service.Create(t.Context(), template)
	require.NoError(t, err)

	_, err = service.SetDefault(t.Context(), created.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTemplateNotActive)
}

func TestTemplateImportJSON(t *testing.T) {
	service, _ := newTemplateService(t)

	raw := []byte(`{
		"name": "Imported expense flow",
		"batch_type": "expense",
		"is_active": true,
		"is_default": true,
		"steps": [
			{
				"order": 0,
				"name": "Line Manager",
				"approver_role": "manager",
				"escalation_rules": [
					{"hours_until_escalation": 24, "escalate_to": "senior-manager"}
				]
			}
		]
	}`)

	imported, err := service.ImportJSON(t.Context(), raw)
	require.NoError(t, err)

	assert.NotEmpty(t, imported.ID)
	assert.Equal(t, models.BatchTypeExpense, imported.BatchType)
	// Imports never become the default, whatever the document claims
	assert.False(t, imported.IsDefault)
	require.Len(t, imported.Steps, 1)
	assert.Equal(t, 24, imported.Steps[0].EscalationRules[0].HoursUntilEscalation)
}

func TestTemplateImportJSONRejectsSchemaViolations(t *testing.T) {
	service, _ := newTemplateService(t)

	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{"name": `},
		{"missing steps", `{"name": "Flow name", "batch_type": "payroll"}`},
		{"bad operator", `{
			"name": "Flow name", "batch_type": "payroll",
			"steps": [{"order": 0, "name": "S", "approver_role": "r",
				"skip_conditions": [{"field": "x", "operator": "matches"}]}]
		}`},
		{"bad batch type", `{"name": "Flow name", "batch_type": "snacks", "steps": [{"order": 0, "name": "S", "approver_role": "r"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.ImportJSON(t.Context(), []byte(tt.raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidImport)
		})
	}
}
