package services

import (
	"context"
	"strings"

	"github.com/dukex/flowmirror/pkg/models"
	"github.com/dukex/flowmirror/pkg/persistence"
)

// Overlays manages each user's own settings and prompt for a workflow.
type Overlays struct {
	persistence persistence.Persistence
}

func NewOverlays(persistence persistence.Persistence) *Overlays {
	return &Overlays{persistence: persistence}
}

func (o *Overlays) resolve(ctx context.Context, callerID, externalID string) (*models.Workflow, error) {
	if strings.TrimSpace(callerID) == "" {
		return nil, ErrUnauthorized
	}

	return o.persistence.Workflows().GetByExternalID(ctx, externalID)
}

// GetSetting returns the caller's setting, enabled when none was saved.
func (o *Overlays) GetSetting(ctx context.Context, callerID, externalID string) (*models.WorkflowUserSetting, error) {
	workflow, err := o.resolve(ctx, callerID, externalID)
	if err != nil {
		return nil, err
	}

	setting, err := o.persistence.Overlays().Setting(ctx, callerID, workflow.ID)
	if persistence.IsSettingNotFound(err) {
		setting, err = &models.WorkflowUserSetting{UserID: callerID, IsEnabled: true}, nil
	}

	if err != nil {
		return nil, err
	}

	setting.WorkflowID = externalID

	return setting, nil
}

func (o *Overlays) SaveSetting(ctx context.Context, callerID, externalID string, enabled bool) (*models.WorkflowUserSetting, error) {
	workflow, err := o.resolve(ctx, callerID, externalID)
	if err != nil {
		return nil, err
	}

	setting := &models.WorkflowUserSetting{UserID: callerID, WorkflowID: externalID, IsEnabled: enabled}

	err = o.persistence.Overlays().SaveSetting(ctx, setting, workflow.ID)
	if err != nil {
		return nil, err
	}

	return setting, nil
}

// GetPrompt returns the caller's prompt, empty when none was saved.
func (o *Overlays) GetPrompt(ctx context.Context, callerID, externalID string) (*models.WorkflowPrompt, error) {
	workflow, err := o.resolve(ctx, callerID, externalID)
	if err != nil {
		return nil, err
	}

	prompt, err := o.persistence.Overlays().Prompt(ctx, callerID, workflow.ID)
	if persistence.IsPromptNotFound(err) {
		prompt, err = &models.WorkflowPrompt{UserID: callerID}, nil
	}

	if err != nil {
		return nil, err
	}

	prompt.WorkflowID = externalID

	return prompt, nil
}

func (o *Overlays) SavePrompt(ctx context.Context, callerID, externalID, content string) (*models.WorkflowPrompt, error) {
	workflow, err := o.resolve(ctx, callerID, externalID)
	if err != nil {
		return nil, err
	}

	prompt := &models.WorkflowPrompt{UserID: callerID, WorkflowID: externalID, Content: content}

	err = o.persistence.Overlays().SavePrompt(ctx, prompt, workflow.ID)
	if err != nil {
		return nil, err
	}

	return prompt, nil
}
