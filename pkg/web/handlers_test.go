package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukex/flowmirror/pkg/auth"
	"github.com/dukex/flowmirror/pkg/backup"
	"github.com/dukex/flowmirror/pkg/engine"
	"github.com/dukex/flowmirror/pkg/lock"
	"github.com/dukex/flowmirror/pkg/mocks"
	"github.com/dukex/flowmirror/pkg/models"
	"github.com/dukex/flowmirror/pkg/persistence/file"
	"github.com/dukex/flowmirror/pkg/services"
	"github.com/dukex/flowmirror/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	userToken  = "user-token"
	adminToken = "admin-token"
	serviceKey = "service-secret"
)

type fakeAuthenticator map[string]*auth.Caller

func (f fakeAuthenticator) Authenticate(_ context.Context, token string) (*auth.Caller, error) {
	if token == "" {
		return nil, auth.ErrMissingToken
	}

	caller, ok := f[token]
	if !ok {
		return nil, auth.ErrInvalidToken
	}

	return caller, nil
}

type testEnv struct {
	app         *fiber.App
	engine      *mocks.MockEngine
	persistence *file.Persistence
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	eng := &mocks.MockEngine{}

	p, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	store, err := backup.NewStore(logger, t.TempDir(), backup.DefaultGenerations)
	require.NoError(t, err)

	importer, err := services.NewImporter(eng, store, logger)
	require.NoError(t, err)

	handlers := web.NewAPIHandlers(web.Services{
		Listing:        services.NewListing(p),
		Sync:           services.NewSync(eng, store, p, lock.NewLocal(), nil, logger, services.SyncConfig{}),
		Importer:       importer,
		Dispatch:       services.NewDispatch(eng, nil, logger),
		Activation:     services.NewActivation(eng, p, nil, logger),
		Overlays:       services.NewOverlays(p),
		ServiceContext: services.NewServiceContext(p),
	}, validator.New(validator.WithRequiredStructEnabled()), logger, 1024)

	middleware := web.NewMiddleware(fakeAuthenticator{
		userToken:  {UserID: "u1"},
		adminToken: {UserID: "root", Roles: []string{"admin"}, Admin: true},
	}, auth.NewServiceKey(serviceKey))

	app := fiber.New()
	web.Register(app, handlers, middleware)

	return &testEnv{app: app, engine: eng, persistence: p}
}

func (e *testEnv) do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()

	resp, err := e.app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, body
}

func jsonRequest(method, target, token string, body any) *http.Request {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

func problemType(t *testing.T, body []byte) string {
	t.Helper()

	var problem map[string]any
	require.NoError(t, json.Unmarshal(body, &problem))

	kind, _ := problem["type"].(string)

	return kind
}

func (e *testEnv) mirror(t *testing.T, id string, tags ...string) *models.Workflow {
	t.Helper()

	workflow := &models.Workflow{ExternalID: id, Name: id, Active: true, Tags: tags}
	require.NoError(t, e.persistence.Workflows().Mirror(t.Context(), workflow))

	return workflow
}

func TestAPI_GetWorkflows(t *testing.T) {
	env := setupTestApp(t)
	env.mirror(t, "wf-start", "start")
	env.mirror(t, "wf-hidden", "internal")

	resp, body := env.do(t, jsonRequest(http.MethodGet, "/workflows", "", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", problemType(t, body))

	resp, _ = env.do(t, jsonRequest(http.MethodGet, "/workflows", "forged", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = env.do(t, jsonRequest(http.MethodGet, "/workflows", userToken, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var workflows []models.Workflow
	require.NoError(t, json.Unmarshal(body, &workflows))
	require.Len(t, workflows, 1)
	assert.Equal(t, "wf-start", workflows[0].ExternalID)
	require.NotNil(t, workflows[0].EnabledForCaller)
	assert.True(t, *workflows[0].EnabledForCaller)
}

func TestAPI_BackupRequiresAdmin(t *testing.T) {
	env := setupTestApp(t)

	resp, body := env.do(t, jsonRequest(http.MethodPost, "/workflows/backup", userToken, nil))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "forbidden", problemType(t, body))

	env.engine.On("ListWorkflows", mock.Anything).Return([]engine.WorkflowSummary{{ID: "wf-1", Name: "Daily Digest"}}, nil)
	env.engine.On("GetWorkflow", mock.Anything, "wf-1").
		Return(&engine.WorkflowDetail{ID: "wf-1", Name: "Daily Digest", Raw: []byte(`{"id":"wf-1","name":"Daily Digest"}`)}, nil)

	resp, body = env.do(t, jsonRequest(http.MethodPost, "/workflows/backup", adminToken, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report services.SyncReport
	require.NoError(t, json.Unmarshal(body, &report))
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 0, report.Failed)
	require.Len(t, report.Files, 1)
	assert.True(t, strings.HasSuffix(report.Files[0], "daily_digest.json"))
}

func TestAPI_BackupEngineUnavailable(t *testing.T) {
	env := setupTestApp(t)
	env.engine.On("ListWorkflows", mock.Anything).Return(nil, &engine.Error{Op: "ListWorkflows", Err: engine.ErrUnavailable})

	resp, body := env.do(t, jsonRequest(http.MethodPost, "/workflows/backup", adminToken, nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "upstream_unavailable", problemType(t, body))
}

func TestAPI_ActivateEngineFailureLeavesMirror(t *testing.T) {
	env := setupTestApp(t)
	env.mirror(t, "wf-1", "start")

	env.engine.On("UpdateWorkflow", mock.Anything, "wf-1", map[string]any{"active": false}).
		Return(nil, &engine.Error{Op: "UpdateWorkflow", StatusCode: 502, Err: engine.ErrUnavailable})

	resp, _ := env.do(t, jsonRequest(http.MethodPost, "/workflows/wf-1/deactivate", adminToken, nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	workflow, err := env.persistence.Workflows().GetByExternalID(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.True(t, workflow.Active)
}

func TestAPI_ExecuteJSON(t *testing.T) {
	env := setupTestApp(t)

	env.engine.On("GetWorkflow", mock.Anything, "wf-1").Return(&engine.WorkflowDetail{ID: "wf-1", Nodes: []engine.Node{
		{Name: "Hook", Type: engine.NodeTypeWebhook, Parameters: map[string]any{"path": "chat"}},
	}}, nil)
	env.engine.On("TriggerWebhook", mock.Anything, "chat", "application/json", mock.MatchedBy(func(body []byte) bool {
		return strings.Contains(string(body), `"userId":"u1"`) && strings.Contains(string(body), `"chatInput":"hello"`)
	})).Return(&engine.Response{StatusCode: 200, ContentType: "text/plain", Body: []byte("hi there")}, nil)

	resp, body := env.do(t, jsonRequest(http.MethodPost, "/workflows/wf-1/execute", userToken, map[string]string{"input": "hello"}))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hi there", string(body))
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
}

func TestAPI_ExecuteMultipartWithFile(t *testing.T) {
	env := setupTestApp(t)

	var form bytes.Buffer

	writer := multipart.NewWriter(&form)
	require.NoError(t, writer.WriteField("input", "read this"))
	require.NoError(t, writer.WriteField("trigger_path", "upload"))
	part, err := writer.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	env.engine.On("TriggerWebhook", mock.Anything, "upload", "application/json", mock.MatchedBy(func(body []byte) bool {
		return strings.Contains(string(body), `"filename":"notes.txt"`) && strings.Contains(string(body), `"data":"aGVsbG8="`)
	})).Return(&engine.Response{StatusCode: 200, ContentType: "application/json", Body: []byte(`{"ok":true}`)}, nil)

	req := httptest.NewRequest(http.MethodPost, "/workflows/wf-1/execute", &form)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+userToken)

	resp, body := env.do(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	env.engine.AssertNotCalled(t, "GetWorkflow", mock.Anything, mock.Anything)
}

func TestAPI_ExecuteRejectsOversizedFile(t *testing.T) {
	env := setupTestApp(t)

	var form bytes.Buffer

	writer := multipart.NewWriter(&form)
	part, err := writer.CreateFormFile("file", "big.bin")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte("x"), 2048))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/workflows/wf-1/execute", &form)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+userToken)

	resp, body := env.do(t, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Equal(t, "file_too_large", problemType(t, body))
	env.engine.AssertNotCalled(t, "TriggerWebhook", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAPI_ExecuteErrors(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(eng *mocks.MockEngine)
		wantStatus int
		wantType   string
	}{
		{
			name: "no trigger configured",
			setup: func(eng *mocks.MockEngine) {
				eng.On("GetWorkflow", mock.Anything, "wf-1").Return(&engine.WorkflowDetail{ID: "wf-1"}, nil)
			},
			wantStatus: http.StatusBadRequest,
			wantType:   "no_trigger_configured",
		},
		{
			name: "workflow unknown to the engine",
			setup: func(eng *mocks.MockEngine) {
				eng.On("GetWorkflow", mock.Anything, "wf-1").Return(nil, &engine.Error{Op: "GetWorkflow", StatusCode: 404, Err: engine.ErrNotFound})
			},
			wantStatus: http.StatusNotFound,
			wantType:   "not_found",
		},
		{
			name: "engine rejects execution",
			setup: func(eng *mocks.MockEngine) {
				eng.On("GetWorkflow", mock.Anything, "wf-1").Return(&engine.WorkflowDetail{ID: "wf-1", Nodes: []engine.Node{
					{Name: "Hook", Type: engine.NodeTypeWebhook, Parameters: map[string]any{"path": "chat"}},
				}}, nil)
				eng.On("TriggerWebhook", mock.Anything, "chat", mock.Anything, mock.Anything).
					Return(&engine.Response{StatusCode: 404, Body: []byte("webhook not registered")}, nil)
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   "upstream_rejected",
		},
		{
			name: "engine down",
			setup: func(eng *mocks.MockEngine) {
				eng.On("GetWorkflow", mock.Anything, "wf-1").Return(nil, &engine.Error{Op: "GetWorkflow", Err: engine.ErrUnavailable})
			},
			wantStatus: http.StatusServiceUnavailable,
			wantType:   "upstream_unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestApp(t)
			tt.setup(env.engine)

			resp, body := env.do(t, jsonRequest(http.MethodPost, "/workflows/wf-1/execute", userToken, map[string]string{"input": "hi"}))
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantType, problemType(t, body))
		})
	}
}

func TestAPI_RelayWebhookIsVerbatim(t *testing.T) {
	env := setupTestApp(t)

	env.engine.On("ForwardWebhook", mock.Anything, mock.MatchedBy(func(in engine.WebhookRequest) bool {
		return in.Path == "telegram/bot-1" &&
			in.Query == "x=1&y=two" &&
			in.Header.Get("Content-Type") == "application/json" &&
			in.Header.Get("X-Auth") == "k" &&
			string(in.Body) == `{"update_id":7}`
	})).Return(&engine.Response{StatusCode: 404, ContentType: "application/json", Body: []byte(`{"code":404}`)}, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhook/telegram/bot-1?x=1&y=two", strings.NewReader(`{"update_id":7}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Auth", "k")

	resp, body := env.do(t, req)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"code":404}`, string(body))
}

func TestAPI_PromptAndSettings(t *testing.T) {
	env := setupTestApp(t)
	env.mirror(t, "wf-1", "start")

	resp, body := env.do(t, jsonRequest(http.MethodGet, "/workflows/wf-1/prompt", userToken, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"content":""`)

	resp, _ = env.do(t, jsonRequest(http.MethodPost, "/workflows/wf-1/prompt", userToken, map[string]string{"content": "be brief"}))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = env.do(t, jsonRequest(http.MethodGet, "/workflows/wf-1/prompt", userToken, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"content":"be brief"`)

	resp, body = env.do(t, jsonRequest(http.MethodPost, "/workflows/wf-1/settings", userToken, map[string]any{}))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", problemType(t, body))

	resp, _ = env.do(t, jsonRequest(http.MethodPost, "/workflows/wf-1/settings", userToken, map[string]any{"is_enabled": false}))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = env.do(t, jsonRequest(http.MethodGet, "/workflows/wf-1/settings", userToken, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"is_enabled":false`)

	resp, body = env.do(t, jsonRequest(http.MethodGet, "/workflows/missing/settings", userToken, nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", problemType(t, body))
}

func TestAPI_EligibleUsers(t *testing.T) {
	env := setupTestApp(t)
	ctx := t.Context()

	workflow := env.mirror(t, "wf-1", "start")

	for _, id := range []string{"u1", "u2", "u3"} {
		require.NoError(t, env.persistence.Users().SaveUser(ctx, &models.User{ID: id, Username: id, IsActive: true}))
	}

	require.NoError(t, env.persistence.Overlays().SaveSetting(ctx, &models.WorkflowUserSetting{UserID: "u2", IsEnabled: false}, workflow.ID))

	users := func(body []byte) int {
		var result services.EligibleUsers
		require.NoError(t, json.Unmarshal(body, &result))

		return len(result.Users)
	}

	req := jsonRequest(http.MethodPost, "/workflows/wf-1/users", "", nil)
	resp, _ := env.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req = jsonRequest(http.MethodPost, "/workflows/wf-1/users", userToken, nil)
	resp, _ = env.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "end-user tokens are not service keys")

	req = jsonRequest(http.MethodPost, "/workflows/wf-1/users", "", nil)
	req.Header.Set(web.ServiceKeyHeader, serviceKey)
	resp, body := env.do(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, users(body))

	req = jsonRequest(http.MethodPost, "/workflows/wf-1/users", "", map[string]bool{"only_enabled": false})
	req.Header.Set(web.ServiceKeyHeader, serviceKey)
	resp, body = env.do(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, users(body))

	req = jsonRequest(http.MethodPost, "/workflows/missing/users", "", nil)
	req.Header.Set(web.ServiceKeyHeader, serviceKey)
	resp, _ = env.do(t, req)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_HealthCheck(t *testing.T) {
	env := setupTestApp(t)

	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"healthy"`)
}
