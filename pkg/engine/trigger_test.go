package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindTriggerPath(t *testing.T) {
	tests := []struct {
		name  string
		nodes []Node
		want  string
		found bool
	}{
		{
			name: "webhook path parameter",
			nodes: []Node{
				{Name: "Set", Type: "n8n-nodes-base.set"},
				{Name: "Hook", Type: NodeTypeWebhook, Parameters: map[string]any{"path": "todo-intake"}},
			},
			want:  "todo-intake",
			found: true,
		},
		{
			name:  "webhook id fallback",
			nodes: []Node{{Type: NodeTypeWebhook, WebhookID: "453c17e9"}},
			want:  "453c17e9",
			found: true,
		},
		{
			name: "disabled trigger skipped",
			nodes: []Node{
				{Type: NodeTypeWebhook, Disabled: true, Parameters: map[string]any{"path": "old"}},
				{Type: NodeTypeWebhook, Parameters: map[string]any{"path": "new"}},
			},
			want:  "new",
			found: true,
		},
		{
			name:  "chat trigger",
			nodes: []Node{{Type: NodeTypeChatTrigger, WebhookID: "c1"}},
			want:  "c1/chat",
			found: true,
		},
		{
			name:  "no trigger",
			nodes: []Node{{Type: "n8n-nodes-base.scheduleTrigger"}, {Type: "n8n-nodes-base.httpRequest"}},
		},
		{
			name:  "trigger without any path",
			nodes: []Node{{Type: NodeTypeWebhook, Parameters: map[string]any{"path": 42}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := FindTriggerPath(tt.nodes)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCleanTriggerPath(t *testing.T) {
	got, err := CleanTriggerPath(" /todo intake/step/ ")
	require.NoError(t, err)
	assert.Equal(t, "todo%20intake/step", got)

	for _, bad := range []string{"", "/", "a//b", "../x", "a/./b"} {
		_, err := CleanTriggerPath(bad)
		assert.ErrorIs(t, err, ErrInvalidPath, bad)
	}
}

func TestIsTrigger(t *testing.T) {
	assert.True(t, IsTrigger(NodeTypeWebhook))
	assert.False(t, IsTrigger("n8n-nodes-base.set"))
}
