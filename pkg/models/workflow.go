// Package models defines the domain models shared by the sync, listing and dispatch services.
package models

import (
	"sort"
	"strings"
	"time"
)

// Tags that make a workflow visible to end users.
var visibleTags = []string{"executable", "start-executable", "start", "editable"}

// TagArchive hides a workflow from end users regardless of its other tags.
const TagArchive = "archive"

// Workflow is the local mirror of a workflow owned by the external engine.
type Workflow struct {
	ID         int64     `json:"-"`
	ExternalID string    `json:"id"`
	Name       string    `json:"name"`
	Active     bool      `json:"active"`
	VersionID  string    `json:"version_id,omitempty"`
	Tags       []string  `json:"tags"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// EnabledForCaller is only set when the listing was requested for a caller.
	EnabledForCaller *bool `json:"enabled_for_caller,omitempty"`
}

// HasTag reports whether the workflow carries the tag, compared case-insensitively.
func (w *Workflow) HasTag(tag string) bool {
	for _, t := range w.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}

	return false
}

// Listable applies the end-user visibility policy: at least one visible tag
// and no archive tag.
func (w *Workflow) Listable() bool {
	if w.HasTag(TagArchive) {
		return false
	}

	for _, tag := range visibleTags {
		if w.HasTag(tag) {
			return true
		}
	}

	return false
}

// NormalizeTags trims, drops empty names and removes case-insensitive
// duplicates, keeping the first spelling seen. The result is sorted.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))

	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}

		key := strings.ToLower(tag)
		if _, ok := seen[key]; ok {
			continue
		}

		seen[key] = struct{}{}
		out = append(out, tag)
	}

	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i]) < strings.ToLower(out[j])
	})

	return out
}

// WorkflowUserSetting is the per-user enablement overlay. Absent rows mean enabled.
type WorkflowUserSetting struct {
	UserID     string    `json:"user_id"`
	WorkflowID string    `json:"workflow_id"`
	IsEnabled  bool      `json:"is_enabled"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// WorkflowPrompt is the per-user prompt text attached to a workflow.
type WorkflowPrompt struct {
	UserID     string    `json:"user_id"`
	WorkflowID string    `json:"workflow_id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at,omitzero"`
	UpdatedAt  time.Time `json:"updated_at,omitzero"`
}
