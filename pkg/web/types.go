// Package web provides HTTP request and response types for the workflow API.
package web

// ExecuteWorkflowRequest is the JSON form of an execution. Multipart requests
// carry the same fields as form values plus an optional file part.
type ExecuteWorkflowRequest struct {
	Input       string `json:"input"        validate:"max=100000"`
	TriggerPath string `json:"trigger_path" validate:"omitempty,max=512"`
}

type SavePromptRequest struct {
	Content string `json:"content" validate:"max=20000"`
}

type SaveSettingsRequest struct {
	IsEnabled *bool `json:"is_enabled" validate:"required"`
}

// EligibleUsersRequest defaults OnlyEnabled to true when it is omitted.
type EligibleUsersRequest struct {
	OnlyEnabled *bool `json:"only_enabled"`
}

func (r EligibleUsersRequest) onlyEnabled() bool {
	return r.OnlyEnabled == nil || *r.OnlyEnabled
}
