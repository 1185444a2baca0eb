package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/flowmirror/pkg/models"
	"github.com/dukex/flowmirror/pkg/persistence"
)

// OverlayRepository stores per-user workflow settings and prompts.
type OverlayRepository struct {
	db *sql.DB
}

func NewOverlayRepository(db *sql.DB) *OverlayRepository {
	return &OverlayRepository{db: db}
}

func (r *OverlayRepository) Setting(ctx context.Context, userID string, workflowID int64) (*models.WorkflowUserSetting, error) {
	setting := &models.WorkflowUserSetting{UserID: userID}

	err := r.db.QueryRowContext(ctx,
		"SELECT is_enabled, updated_at FROM workflow_user_settings WHERE user_id = $1 AND workflow_id = $2",
		userID, workflowID,
	).Scan(&setting.IsEnabled, &setting.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrSettingNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query workflow setting: %w", err)
	}

	return setting, nil
}

func (r *OverlayRepository) SaveSetting(ctx context.Context, setting *models.WorkflowUserSetting, workflowID int64) error {
	setting.UpdatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO workflow_user_settings (user_id, workflow_id, is_enabled, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, workflow_id) DO UPDATE SET
			is_enabled = EXCLUDED.is_enabled,
			updated_at = EXCLUDED.updated_at
	`, setting.UserID, workflowID, setting.IsEnabled, setting.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save workflow setting: %w", err)
	}

	return nil
}

func (r *OverlayRepository) Prompt(ctx context.Context, userID string, workflowID int64) (*models.WorkflowPrompt, error) {
	prompt := &models.WorkflowPrompt{UserID: userID}

	err := r.db.QueryRowContext(ctx,
		"SELECT content, created_at, updated_at FROM workflow_prompts WHERE user_id = $1 AND workflow_id = $2",
		userID, workflowID,
	).Scan(&prompt.Content, &prompt.CreatedAt, &prompt.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrPromptNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query workflow prompt: %w", err)
	}

	return prompt, nil
}

func (r *OverlayRepository) SavePrompt(ctx context.Context, prompt *models.WorkflowPrompt, workflowID int64) error {
	now := time.Now().UTC()

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO workflow_prompts (user_id, workflow_id, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_id, workflow_id) DO UPDATE SET
			content = EXCLUDED.content,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at
	`, prompt.UserID, workflowID, prompt.Content, now).Scan(&prompt.CreatedAt, &prompt.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save workflow prompt: %w", err)
	}

	return nil
}
