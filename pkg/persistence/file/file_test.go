package file_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/flowmirror/pkg/models"
	"github.com/dukex/flowmirror/pkg/persistence"
	"github.com/dukex/flowmirror/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPersistence(t *testing.T) (*file.Persistence, string) {
	t.Helper()

	root := t.TempDir()

	p, err := file.NewPersistence("file://" + root)
	require.NoError(t, err)

	return p, root
}

func TestPersistence_HealthCheck(t *testing.T) {
	p, root := newPersistence(t)

	require.NoError(t, p.HealthCheck(t.Context()))
	require.NoError(t, os.RemoveAll(root))
	require.Error(t, p.HealthCheck(t.Context()))
}

func TestWorkflowRepository_MirrorIsIdempotent(t *testing.T) {
	p, root := newPersistence(t)
	ctx := t.Context()

	require.NoError(t, p.Workflows().Mirror(ctx, &models.Workflow{
		ExternalID: "wf-1", Name: "Daily Digest", Active: true, VersionID: "v1", Tags: []string{"start", "Ops"},
	}))

	before, err := os.ReadFile(filepath.Join(root, "mirror.json"))
	require.NoError(t, err)

	again := &models.Workflow{ExternalID: "wf-1", Name: "Daily Digest", Active: true, VersionID: "v1", Tags: []string{"ops", "start", "START"}}
	require.NoError(t, p.Workflows().Mirror(ctx, again))
	assert.Equal(t, int64(1), again.ID)

	after, err := os.ReadFile(filepath.Join(root, "mirror.json"))
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))

	got, err := p.Workflows().GetByExternalID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ops", "start"}, got.Tags)
}

func TestWorkflowRepository_MirrorReplacesAssociations(t *testing.T) {
	p, _ := newPersistence(t)
	ctx := t.Context()

	require.NoError(t, p.Workflows().Mirror(ctx, &models.Workflow{ExternalID: "wf-1", Name: "A", Tags: []string{"start", "ops"}}))
	require.NoError(t, p.Workflows().Mirror(ctx, &models.Workflow{ExternalID: "wf-1", Name: "A", Tags: []string{"archive"}}))

	got, err := p.Workflows().GetByExternalID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"archive"}, got.Tags)
}

func TestWorkflowRepository_ReloadsFromDisk(t *testing.T) {
	p, root := newPersistence(t)
	ctx := t.Context()

	require.NoError(t, p.Workflows().Mirror(ctx, &models.Workflow{ExternalID: "wf-1", Name: "A", Tags: []string{"start"}}))

	reopened, err := file.NewPersistence(root)
	require.NoError(t, err)

	got, err := reopened.Workflows().GetByExternalID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "A", got.Name)
	assert.Equal(t, []string{"start"}, got.Tags)

	require.NoError(t, reopened.Workflows().Mirror(ctx, &models.Workflow{ExternalID: "wf-2", Name: "B"}))

	second, err := reopened.Workflows().GetByExternalID(ctx, "wf-2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.ID)
}

func TestWorkflowRepository_SetActive(t *testing.T) {
	p, _ := newPersistence(t)
	ctx := t.Context()

	err := p.Workflows().SetActive(ctx, "missing", true, "")
	assert.True(t, persistence.IsWorkflowNotFound(err))

	require.NoError(t, p.Workflows().Mirror(ctx, &models.Workflow{ExternalID: "wf-1", Name: "A", VersionID: "v1"}))
	require.NoError(t, p.Workflows().SetActive(ctx, "wf-1", true, ""))

	got, err := p.Workflows().GetByExternalID(ctx, "wf-1")
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.Equal(t, "v1", got.VersionID)

	require.NoError(t, p.Workflows().SetActive(ctx, "wf-1", false, "v2"))

	got, err = p.Workflows().GetByExternalID(ctx, "wf-1")
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, "v2", got.VersionID)
}

func TestWorkflowRepository_ListWithCallerOverlay(t *testing.T) {
	p, _ := newPersistence(t)
	ctx := t.Context()

	beta := &models.Workflow{ExternalID: "wf-1", Name: "Beta"}
	alpha := &models.Workflow{ExternalID: "wf-2", Name: "alpha"}

	require.NoError(t, p.Workflows().Mirror(ctx, beta))
	require.NoError(t, p.Workflows().Mirror(ctx, alpha))
	require.NoError(t, p.Overlays().SaveSetting(ctx, &models.WorkflowUserSetting{UserID: "u1", IsEnabled: false}, beta.ID))

	workflows, err := p.Workflows().List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, workflows, 2)
	assert.Equal(t, "alpha", workflows[0].Name)
	assert.True(t, *workflows[0].EnabledForCaller)
	assert.False(t, *workflows[1].EnabledForCaller)

	anonymous, err := p.Workflows().List(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, anonymous[0].EnabledForCaller)
}

func TestWorkflowRepository_EligibleUsers(t *testing.T) {
	p, _ := newPersistence(t)
	ctx := t.Context()

	for _, user := range []*models.User{
		{ID: "u1", Username: "ana", IsActive: true},
		{ID: "u2", Username: "bo", IsActive: true},
		{ID: "u3", Username: "cy", IsActive: true},
		{ID: "u4", Username: "gone", IsActive: false},
	} {
		require.NoError(t, p.Users().SaveUser(ctx, user))
	}

	require.NoError(t, p.Users().SaveCredential(ctx, &models.Credential{UserID: "u3", Provider: "telegram", ExternalID: "99", DisplayName: "@cy"}))
	require.ErrorIs(t, p.Users().SaveCredential(ctx, &models.Credential{UserID: "nobody", Provider: "telegram"}), persistence.ErrUserNotFound)

	workflow := &models.Workflow{ExternalID: "wf-1", Name: "Notify"}
	require.NoError(t, p.Workflows().Mirror(ctx, workflow))
	require.NoError(t, p.Overlays().SaveSetting(ctx, &models.WorkflowUserSetting{UserID: "u2", IsEnabled: false}, workflow.ID))

	enabled, err := p.Workflows().EligibleUsers(ctx, workflow.ID, true)
	require.NoError(t, err)
	require.Len(t, enabled, 2)
	assert.Equal(t, []string{"u1", "u3"}, []string{enabled[0].ID, enabled[1].ID})
	assert.Equal(t, "@cy", enabled[1].Credentials[0].DisplayName)

	all, err := p.Workflows().EligibleUsers(ctx, workflow.ID, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestOverlayRepository(t *testing.T) {
	p, _ := newPersistence(t)
	ctx := t.Context()

	_, err := p.Overlays().Setting(ctx, "u1", 1)
	require.ErrorIs(t, err, persistence.ErrSettingNotFound)

	_, err = p.Overlays().Prompt(ctx, "u1", 1)
	require.ErrorIs(t, err, persistence.ErrPromptNotFound)

	prompt := &models.WorkflowPrompt{UserID: "u1", Content: "first"}
	require.NoError(t, p.Overlays().SavePrompt(ctx, prompt, 1))

	created := prompt.CreatedAt

	prompt.Content = "second"
	require.NoError(t, p.Overlays().SavePrompt(ctx, prompt, 1))
	assert.Equal(t, created, prompt.CreatedAt)

	got, err := p.Overlays().Prompt(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Content)

	// Overlays are scoped per user.
	_, err = p.Overlays().Prompt(ctx, "u2", 1)
	require.ErrorIs(t, err, persistence.ErrPromptNotFound)
}
