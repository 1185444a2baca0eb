package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkflow_Listable(t *testing.T) {
	tests := []struct {
		name string
		tags []string
		want bool
	}{
		{name: "archive wins over executable", tags: []string{"archive", "executable"}, want: false},
		{name: "start only", tags: []string{"start"}, want: true},
		{name: "no tags", tags: nil, want: false},
		{name: "unrelated tags", tags: []string{"internal", "cron"}, want: false},
		{name: "start-executable", tags: []string{"start-executable"}, want: true},
		{name: "editable", tags: []string{"editable", "misc"}, want: true},
		{name: "case insensitive", tags: []string{"Executable"}, want: true},
		{name: "case insensitive archive", tags: []string{"ARCHIVE", "start"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &Workflow{Tags: tt.tags}
			assert.Equal(t, tt.want, w.Listable())
		})
	}
}

func TestNormalizeTags(t *testing.T) {
	got := NormalizeTags([]string{" start ", "Ops", "", "ops", "Archive", "start"})

	assert.Equal(t, []string{"Archive", "Ops", "start"}, got)
}

func TestNormalizeTags_Empty(t *testing.T) {
	assert.Empty(t, NormalizeTags(nil))
	assert.NotNil(t, NormalizeTags(nil))
}
