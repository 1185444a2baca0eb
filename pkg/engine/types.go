package engine

import (
	"encoding/json"
	"net/http"
)

// Tag as reported by the engine.
type Tag struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// WorkflowSummary is one entry of the workflow listing.
type WorkflowSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
	Tags   []Tag  `json:"tags,omitempty"`
}

// Node is a generic node of a workflow graph. The engine's node vocabulary is
// open-ended, so only the fields every node shares are typed.
type Node struct {
	ID         string         `json:"id,omitempty"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Disabled   bool           `json:"disabled,omitempty"`
	WebhookID  string         `json:"webhookId,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// WorkflowDetail is the full definition of a workflow. Raw keeps the document
// exactly as the engine returned it, which is what gets backed up.
type WorkflowDetail struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Active      bool            `json:"active"`
	VersionID   string          `json:"versionId,omitempty"`
	Nodes       []Node          `json:"nodes"`
	Connections json.RawMessage `json:"connections,omitempty"`
	Settings    json.RawMessage `json:"settings,omitempty"`
	Tags        []Tag           `json:"tags,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// TagNames returns the names of the workflow's tags in engine order.
func (d *WorkflowDetail) TagNames() []string {
	names := make([]string, 0, len(d.Tags))
	for _, tag := range d.Tags {
		names = append(names, tag.Name)
	}

	return names
}

// WebhookRequest is an inbound call forwarded to a trigger path. Query is
// the raw query string without the leading "?".
type WebhookRequest struct {
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// Response is a trigger response, passed through to callers untouched.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

type listPage struct {
	Data       []WorkflowSummary `json:"data"`
	NextCursor *string           `json:"nextCursor"`
}

type errorBody struct {
	Message string `json:"message"`
}
