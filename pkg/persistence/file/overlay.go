package file

import (
	"context"
	"time"

	"github.com/dukex/flowmirror/pkg/models"
	"github.com/dukex/flowmirror/pkg/persistence"
)

type OverlayRepository struct {
	p *Persistence
}

func (r *OverlayRepository) Setting(_ context.Context, userID string, workflowID int64) (*models.WorkflowUserSetting, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	record, ok := r.p.state.Settings[overlayKey(userID, workflowID)]
	if !ok {
		return nil, persistence.ErrSettingNotFound
	}

	return &models.WorkflowUserSetting{UserID: userID, IsEnabled: record.IsEnabled, UpdatedAt: record.UpdatedAt}, nil
}

func (r *OverlayRepository) SaveSetting(_ context.Context, setting *models.WorkflowUserSetting, workflowID int64) error {
	setting.UpdatedAt = time.Now().UTC()

	return r.p.update(func(s *state) error {
		s.Settings[overlayKey(setting.UserID, workflowID)] = &settingRecord{
			IsEnabled: setting.IsEnabled,
			UpdatedAt: setting.UpdatedAt,
		}

		return nil
	})
}

func (r *OverlayRepository) Prompt(_ context.Context, userID string, workflowID int64) (*models.WorkflowPrompt, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	record, ok := r.p.state.Prompts[overlayKey(userID, workflowID)]
	if !ok {
		return nil, persistence.ErrPromptNotFound
	}

	return &models.WorkflowPrompt{
		UserID:    userID,
		Content:   record.Content,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}, nil
}

func (r *OverlayRepository) SavePrompt(_ context.Context, prompt *models.WorkflowPrompt, workflowID int64) error {
	now := time.Now().UTC()

	return r.p.update(func(s *state) error {
		key := overlayKey(prompt.UserID, workflowID)

		record, ok := s.Prompts[key]
		if !ok {
			record = &promptRecord{CreatedAt: now}
			s.Prompts[key] = record
		}

		record.Content = prompt.Content
		record.UpdatedAt = now

		prompt.CreatedAt = record.CreatedAt
		prompt.UpdatedAt = record.UpdatedAt

		return nil
	})
}
