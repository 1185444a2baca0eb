package services

import (
	"testing"

	"github.com/dukex/flowmirror/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListing_TagPolicy(t *testing.T) {
	p := newFilePersistence(t)
	ctx := t.Context()

	mirror := map[string][]string{
		"wf-exec":     {"Executable"},
		"wf-start":    {"start", "ops"},
		"wf-edit":     {"EDITABLE"},
		"wf-startexe": {"start-executable"},
		"wf-archived": {"start", "Archive"},
		"wf-plain":    {"ops"},
		"wf-none":     nil,
	}

	for id, tags := range mirror {
		require.NoError(t, p.Workflows().Mirror(ctx, &models.Workflow{ExternalID: id, Name: id, Tags: tags}))
	}

	listing := NewListing(p)

	workflows, err := listing.ListWorkflows(ctx, "")
	require.NoError(t, err)

	ids := make([]string, 0, len(workflows))
	for _, workflow := range workflows {
		ids = append(ids, workflow.ExternalID)
	}

	assert.ElementsMatch(t, []string{"wf-exec", "wf-start", "wf-edit", "wf-startexe"}, ids)
}

func TestListing_ReflectsMirrorOnEveryCall(t *testing.T) {
	p := newFilePersistence(t)
	ctx := t.Context()
	listing := NewListing(p)

	require.NoError(t, p.Workflows().Mirror(ctx, &models.Workflow{ExternalID: "wf-1", Name: "One", Tags: []string{"start"}}))

	workflows, err := listing.ListWorkflows(ctx, "")
	require.NoError(t, err)
	require.Len(t, workflows, 1)

	require.NoError(t, p.Workflows().Mirror(ctx, &models.Workflow{ExternalID: "wf-1", Name: "One", Tags: []string{"start", "archive"}}))

	workflows, err = listing.ListWorkflows(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, workflows)
}

func TestListing_CallerOverlay(t *testing.T) {
	p := newFilePersistence(t)
	ctx := t.Context()

	workflow := &models.Workflow{ExternalID: "wf-1", Name: "One", Tags: []string{"start"}}
	require.NoError(t, p.Workflows().Mirror(ctx, workflow))
	require.NoError(t, p.Overlays().SaveSetting(ctx, &models.WorkflowUserSetting{UserID: "u1", IsEnabled: false}, workflow.ID))

	workflows, err := NewListing(p).ListWorkflows(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, workflows, 1)
	require.NotNil(t, workflows[0].EnabledForCaller)
	assert.False(t, *workflows[0].EnabledForCaller)
}

func TestListing_HealthCheck(t *testing.T) {
	message, ok := NewListing(newFilePersistence(t)).HealthCheck(t.Context())
	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", message)

	message, ok = NewListing(nil).HealthCheck(t.Context())
	assert.False(t, ok)
	assert.Equal(t, "Persistence layer not initialized", message)
}
