package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/staffly/approvalflow/pkg/engine"
	"github.com/staffly/approvalflow/pkg/models"
	"github.com/staffly/approvalflow/pkg/persistence/file"
	"github.com/staffly/approvalflow/pkg/services"
	"github.com/staffly/approvalflow/pkg/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) (*fiber.App, *services.Template, *services.Instance) {
	t.Helper()

	persistence := file.NewPersistence(t.TempDir())
	eng := engine.New(persistence.InstanceRepository(), nil, slog.Default())

	templateService, err := services.NewTemplate(persistence)
	require.NoError(t, err)

	instanceService := services.NewInstance(persistence, eng)

	handlers := web.NewAPIHandlers(templateService, instanceService, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()

	tg := app.Group("/templates")
	tg.Get("/", handlers.GetTemplates)
	tg.Post("/", handlers.CreateTemplate)
	tg.Post("/import", handlers.ImportTemplate)
	tg.Get("/:id", handlers.GetTemplate)
	tg.Put("/:id", handlers.UpdateTemplate)
	tg.Delete("/:id", handlers.DeleteTemplate)
	tg.Post("/:id/duplicate", handlers.DuplicateTemplate)
	tg.Post("/:id/set-default", handlers.SetDefaultTemplate)

	ig := app.Group("/instances")
	ig.Get("/", handlers.GetInstances)
	ig.Post("/", handlers.SubmitInstance)
	ig.Get("/:id", handlers.GetInstance)
	ig.Post("/:id/advance", handlers.AdvanceInstance)
	ig.Post("/:id/steps/:stepId/approve", handlers.ApproveStep)
	ig.Post("/:id/steps/:stepId/reject", handlers.RejectStep)

	return app, templateService, instanceService
}

func doJSON(t *testing.T, app *fiber.App, method, path string, payload any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	if payload != nil {
		body, err := json.Marshal(payload)
		require.NoError(t, err)

		reader = bytes.NewBuffer(body)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	return resp, body
}

func testTemplate() *models.WorkflowTemplate {
	return &models.WorkflowTemplate{
		Name:      "Invoice approval",
		BatchType: models.BatchTypeInvoice,
		IsActive:  true,
		Steps: []*models.ApprovalStepTemplate{
			{Order: 0, Name: "Manager Review", ApproverRole: "manager"},
		},
	}
}

func TestCreateAndGetTemplate(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/templates/", testTemplate())
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.WorkflowTemplate
	require.NoError(t, json.Unmarshal(body, &created))
	assert.NotEmpty(t, created.ID)

	resp, body = doJSON(t, app, http.MethodGet, "/templates/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var fetched models.WorkflowTemplate
	require.NoError(t, json.Unmarshal(body, &fetched))
	assert.Equal(t, "Invoice approval", fetched.Name)
}

func TestCreateTemplateValidationError(t *testing.T) {
	app, _, _ := setupTestApp(t)

	template := testTemplate()
	template.Name = "ab"

	resp, body := doJSON(t, app, http.MethodPost, "/templates/", template)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "validation_error")
}

func TestGetTemplateNotFound(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/templates/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetTemplatesByBatchType(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/templates/", testTemplate())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, app, http.MethodGet, "/templates/?batch_type=invoice", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var templates []*models.WorkflowTemplate
	require.NoError(t, json.Unmarshal(body, &templates))
	assert.Len(t, templates, 1)

	resp, _ = doJSON(t, app, http.MethodGet, "/templates/?batch_type=snacks", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteDefaultTemplateConflict(t *testing.T) {
	app, templateService, _ := setupTestApp(t)

	created, err := templateService.Create(t.Context(), testTemplate())
	require.NoError(t, err)

	_, err = templateService.SetDefault(t.Context(), created.ID)
	require.NoError(t, err)

	resp, body := doJSON(t, app, http.MethodDelete, "/templates/"+created.ID, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(body), "conflict")
}

func TestImportTemplate(t *testing.T) {
	app, _, _ := setupTestApp(t)

	raw := map[string]any{
		"name":       "Imported flow",
		"batch_type": "timesheet",
		"is_active":  true,
		"steps": []map[string]any{
			{"order": 0, "name": "Review", "approver_role": "manager"},
		},
	}

	resp, body := doJSON(t, app, http.MethodPost, "/templates/import", raw)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var imported models.WorkflowTemplate
	require.NoError(t, json.Unmarshal(body, &imported))
	assert.Equal(t, models.BatchTypeTimesheet, imported.BatchType)

	raw["batch_type"] = "snacks"
	resp, _ = doJSON(t, app, http.MethodPost, "/templates/import", raw)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func submitTestInstance(t *testing.T, app *fiber.App, templateService *services.Template) *models.WorkflowInstance {
	t.Helper()

	created, err := templateService.Create(t.Context(), testTemplate())
	require.NoError(t, err)

	resp, body := doJSON(t, app, http.MethodPost, "/instances/", web.SubmitInstanceRequest{
		BatchType:  "invoice",
		EntityID:   "inv-100",
		TemplateID: created.ID,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var instance models.WorkflowInstance
	require.NoError(t, json.Unmarshal(body, &instance))

	return &instance
}

func TestSubmitInstance(t *testing.T) {
	app, templateService, _ := setupTestApp(t)

	instance := submitTestInstance(t, app, templateService)

	assert.Equal(t, models.InstanceStatusInProgress, instance.Status)
	assert.Equal(t, "inv-100", instance.EntityID)
	require.Len(t, instance.Steps, 1)
}

func TestSubmitInstanceWithoutDefaultTemplate(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/instances/", web.SubmitInstanceRequest{
		BatchType: "invoice",
		EntityID:  "inv-101",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(body), "no default template")
}

func TestApproveStepEndpoint(t *testing.T) {
	app, templateService, _ := setupTestApp(t)

	instance := submitTestInstance(t, app, templateService)
	stepID := instance.Steps[0].ID

	resp, body := doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/steps/"+stepID+"/approve", web.VoteRequest{
		ApproverID: "mgr-1",
		Comments:   "approved",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var updated models.WorkflowInstance
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, models.InstanceStatusApproved, updated.Status)

	// A second vote on the terminal instance conflicts
	resp, body = doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/steps/"+stepID+"/approve", web.VoteRequest{
		ApproverID: "mgr-2",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(body), "terminal_instance")
}

func TestRejectStepEndpoint(t *testing.T) {
	app, templateService, _ := setupTestApp(t)

	instance := submitTestInstance(t, app, templateService)
	stepID := instance.Steps[0].ID

	resp, body := doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/steps/"+stepID+"/reject", web.VoteRequest{
		ApproverID: "mgr-1",
		Comments:   "missing receipts",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var updated models.WorkflowInstance
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, models.InstanceStatusRejected, updated.Status)
}

func TestVoteRequiresApproverID(t *testing.T) {
	app, templateService, _ := setupTestApp(t)

	instance := submitTestInstance(t, app, templateService)
	stepID := instance.Steps[0].ID

	resp, _ := doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/steps/"+stepID+"/approve", web.VoteRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetInstancesByStatus(t *testing.T) {
	app, templateService, _ := setupTestApp(t)

	submitTestInstance(t, app, templateService)

	resp, body := doJSON(t, app, http.MethodGet, "/instances/?status=in-progress", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var instances []*models.WorkflowInstance
	require.NoError(t, json.Unmarshal(body, &instances))
	assert.Len(t, instances, 1)

	resp, _ = doJSON(t, app, http.MethodGet, "/instances/", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdvanceEndpoint(t *testing.T) {
	app, templateService, _ := setupTestApp(t)

	template := testTemplate()
	template.Steps[0].CanSkip = true
	template.Steps[0].SkipConditions = []models.StepCondition{
		{Field: "amount", Operator: models.OperatorLessThan, Value: 500},
	}

	created, err := templateService.Create(t.Context(), template)
	require.NoError(t, err)

	// Submitted with a large amount, the step waits
	resp, body := doJSON(t, app, http.MethodPost, "/instances/", web.SubmitInstanceRequest{
		BatchType:  "invoice",
		EntityID:   "inv-102",
		TemplateID: created.ID,
		Entity:     models.EntitySnapshot{"amount": 900},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var instance models.WorkflowInstance
	require.NoError(t, json.Unmarshal(body, &instance))
	require.Equal(t, models.StepStatusPending, instance.Steps[0].Status)

	// Re-advance with a corrected snapshot skips the step
	resp, body = doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/advance", web.AdvanceRequest{
		Entity: models.EntitySnapshot{"amount": 120},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var advanced models.WorkflowInstance
	require.NoError(t, json.Unmarshal(body, &advanced))
	assert.Equal(t, models.StepStatusSkipped, advanced.Steps[0].Status)
	assert.Equal(t, models.InstanceStatusApproved, advanced.Status)
}
