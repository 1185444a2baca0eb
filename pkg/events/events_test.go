package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseEvent(t *testing.T) {
	first := NewBaseEvent(WorkflowSyncedEvent, "wf-1")
	second := NewBaseEvent(WorkflowSyncedEvent, "wf-1")

	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, WorkflowSyncedEvent, first.Type)
	assert.False(t, first.Timestamp.IsZero())
}

func TestWorkflowSynced_JSONShape(t *testing.T) {
	event := WorkflowSynced{
		BaseEvent: NewBaseEvent(WorkflowSyncedEvent, "wf-1"),
		Name:      "Daily Digest",
		File:      "daily_digest.json",
		Tags:      []string{"start"},
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "workflow.synced", decoded["type"])
	assert.Equal(t, "wf-1", decoded["workflow_id"])
	assert.Equal(t, "daily_digest.json", decoded["file"])
	assert.Equal(t, WorkflowSyncedEvent, event.GetType())
}
