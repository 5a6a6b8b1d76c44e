package file

import (
	"testing"
	"time"

	"github.com/staffly/approvalflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTemplate(id string, batchType models.BatchType, isDefault bool) *models.WorkflowTemplate {
	return &models.WorkflowTemplate{
		ID:        id,
		Name:      "Template " + id,
		BatchType: batchType,
		IsActive:  true,
		IsDefault: isDefault,
		Steps: []*models.ApprovalStepTemplate{
			{ID: id + "-step-0", Order: 0, Name: "Manager Review", ApproverRole: "manager"},
		},
	}
}

func TestTemplateRepository_SaveAndGet(t *testing.T) {
	persistence := NewPersistence(t.TempDir())
	repo := persistence.TemplateRepository()

	template := testTemplate("tpl-1", models.BatchTypePayroll, false)
	require.NoError(t, repo.Save(t.Context(), template))

	fetched, err := repo.GetByID(t.Context(), "tpl-1")
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, "Template tpl-1", fetched.Name)
	assert.Equal(t, models.BatchTypePayroll, fetched.BatchType)
	require.Len(t, fetched.Steps, 1)
	assert.Equal(t, "manager", fetched.Steps[0].ApproverRole)
	assert.False(t, fetched.CreatedAt.IsZero())
}

func TestTemplateRepository_GetByID_NotFound(t *testing.T) {
	persistence := NewPersistence(t.TempDir())

	fetched, err := persistence.TemplateRepository().GetByID(t.Context(), "missing")
	require.NoError(t, err)
	assert.Nil(t, fetched)
}

func TestTemplateRepository_TemplatesByBatchType(t *testing.T) {
	persistence := NewPersistence(t.TempDir())
	repo := persistence.TemplateRepository()

	require.NoError(t, repo.Save(t.Context(), testTemplate("tpl-payroll", models.BatchTypePayroll, false)))
	require.NoError(t, repo.Save(t.Context(), testTemplate("tpl-expense", models.BatchTypeExpense, false)))

	templates, err := repo.TemplatesByBatchType(t.Context(), models.BatchTypePayroll)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "tpl-payroll", templates[0].ID)
}

func TestTemplateRepository_DefaultTemplate(t *testing.T) {
	persistence := NewPersistence(t.TempDir())
	repo := persistence.TemplateRepository()

	require.NoError(t, repo.Save(t.Context(), testTemplate("tpl-a", models.BatchTypeInvoice, false)))
	require.NoError(t, repo.Save(t.Context(), testTemplate("tpl-b", models.BatchTypeInvoice, true)))

	fallback, err := repo.DefaultTemplate(t.Context(), models.BatchTypePayroll)
	require.NoError(t, err)
	assert.Nil(t, fallback)

	def, err := repo.DefaultTemplate(t.Context(), models.BatchTypeInvoice)
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, "tpl-b", def.ID)
}

func TestTemplateRepository_SaveDemotesPreviousDefault(t *testing.T) {
	persistence := NewPersistence(t.TempDir())
	repo := persistence.TemplateRepository()

	require.NoError(t, repo.Save(t.Context(), testTemplate("tpl-a", models.BatchTypeInvoice, true)))
	require.NoError(t, repo.Save(t.Context(), testTemplate("tpl-b", models.BatchTypeInvoice, true)))

	previous, err := repo.GetByID(t.Context(), "tpl-a")
	require.NoError(t, err)
	require.NotNil(t, previous)
	assert.False(t, previous.IsDefault)

	def, err := repo.DefaultTemplate(t.Context(), models.BatchTypeInvoice)
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, "tpl-b", def.ID)
}

func TestTemplateRepository_Delete(t *testing.T) {
	persistence := NewPersistence(t.TempDir())
	repo := persistence.TemplateRepository()

	require.NoError(t, repo.Save(t.Context(), testTemplate("tpl-1", models.BatchTypePayroll, false)))
	require.NoError(t, repo.Delete(t.Context(), "tpl-1"))

	fetched, err := repo.GetByID(t.Context(), "tpl-1")
	require.NoError(t, err)
	assert.Nil(t, fetched)

	// Deleting a missing template is a no-op
	require.NoError(t, repo.Delete(t.Context(), "tpl-1"))
}

func TestInstanceRepository_SaveAndGet(t *testing.T) {
	persistence := NewPersistence(t.TempDir())
	repo := persistence.InstanceRepository()

	instance := &models.WorkflowInstance{
		ID:          "inst-1",
		TemplateID:  "tpl-1",
		EntityType:  models.BatchTypeTimesheet,
		EntityID:    "ts-42",
		Status:      models.InstanceStatusInProgress,
		CreatedDate: time.Now().UTC(),
		Steps: []*models.ApprovalStep{
			{ID: "s-0", Order: 0, Status: models.StepStatusPending, ApproverRole: "manager"},
		},
	}
	require.NoError(t, repo.Save(t.Context(), instance))

	fetched, err := repo.GetByID(t.Context(), "inst-1")
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, "ts-42", fetched.EntityID)
	require.Len(t, fetched.Steps, 1)
	assert.Equal(t, models.StepStatusPending, fetched.Steps[0].Status)
}

func TestInstanceRepository_ListByStatus(t *testing.T) {
	persistence := NewPersistence(t.TempDir())
	repo := persistence.InstanceRepository()

	older := &models.WorkflowInstance{
		ID:          "inst-old",
		Status:      models.InstanceStatusInProgress,
		CreatedDate: time.Now().UTC().Add(-2 * time.Hour),
	}
	newer := &models.WorkflowInstance{
		ID:          "inst-new",
		Status:      models.InstanceStatusInProgress,
		CreatedDate: time.Now().UTC(),
	}
	terminal := &models.WorkflowInstance{
		ID:          "inst-done",
		Status:      models.InstanceStatusApproved,
		CreatedDate: time.Now().UTC(),
	}

	for _, instance := range []*models.WorkflowInstance{newer, older, terminal} {
		require.NoError(t, repo.Save(t.Context(), instance))
	}

	inProgress, err := repo.ListByStatus(t.Context(), models.InstanceStatusInProgress)
	require.NoError(t, err)
	require.Len(t, inProgress, 2)

	// Oldest first
	assert.Equal(t, "inst-old", inProgress[0].ID)
	assert.Equal(t, "inst-new", inProgress[1].ID)
}

func TestPersistence_HealthCheck(t *testing.T) {
	persistence := NewPersistence(t.TempDir())
	require.NoError(t, persistence.HealthCheck(t.Context()))

	missing := NewPersistence("/nonexistent/approvalflow-test")
	assert.Error(t, missing.HealthCheck(t.Context()))
}
