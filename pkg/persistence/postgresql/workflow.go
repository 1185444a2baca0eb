package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowmirror/pkg/models"
	"github.com/dukex/flowmirror/pkg/persistence"
	"github.com/lib/pq"
)

// WorkflowRepository handles workflow, tag and association rows.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const selectWorkflows = `
	SELECT
		w.id
	  , w.external_id
	  , w.name
	  , w.active
	  , w.version_id
	  , w.created_at
	  , w.updated_at
	  , COALESCE(array_agg(t.name ORDER BY lower(t.name)) FILTER (WHERE t.id IS NOT NULL), '{}') AS tags
	  , COALESCE(s.is_enabled, TRUE) AS enabled
	FROM workflows w
	LEFT JOIN workflow_tags wt ON wt.workflow_id = w.id
	LEFT JOIN tags t ON t.id = wt.tag_id
	LEFT JOIN workflow_user_settings s ON s.workflow_id = w.id AND s.user_id = $1
`

// Mirror upserts the workflow and rebuilds its tag associations. updated_at
// only moves when name, active or version changed.
func (r *WorkflowRepository) Mirror(ctx context.Context, workflow *models.Workflow) (err error) {
	now := time.Now().UTC()
	tags := models.NormalizeTags(workflow.Tags)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	upsert := `
		INSERT INTO workflows (external_id, name, active, version_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (external_id) DO UPDATE SET
			name = EXCLUDED.name,
			active = EXCLUDED.active,
			version_id = EXCLUDED.version_id,
			updated_at = CASE
				WHEN (workflows.name, workflows.active, workflows.version_id)
					IS DISTINCT FROM (EXCLUDED.name, EXCLUDED.active, EXCLUDED.version_id)
				THEN EXCLUDED.updated_at
				ELSE workflows.updated_at
			END
		RETURNING id, created_at, updated_at
	`

	err = tx.QueryRowContext(ctx, upsert,
		workflow.ExternalID,
		workflow.Name,
		workflow.Active,
		workflow.VersionID,
		now,
	).Scan(&workflow.ID, &workflow.CreatedAt, &workflow.UpdatedAt)
	if err != nil {
		return persistence.NewWorkflowError("Mirror", workflow.ExternalID, fmt.Errorf("failed to upsert workflow: %w", err))
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM workflow_tags WHERE workflow_id = $1", workflow.ID)
	if err != nil {
		return persistence.NewWorkflowError("Mirror", workflow.ExternalID, fmt.Errorf("failed to delete tag associations: %w", err))
	}

	for _, tag := range tags {
		var tagID int64

		err = tx.QueryRowContext(ctx, `
			INSERT INTO tags (name) VALUES ($1)
			ON CONFLICT ((lower(name))) DO UPDATE SET name = tags.name
			RETURNING id
		`, tag).Scan(&tagID)
		if err != nil {
			return persistence.NewWorkflowError("Mirror", workflow.ExternalID, fmt.Errorf("failed to upsert tag %q: %w", tag, err))
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO workflow_tags (workflow_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			workflow.ID, tagID)
		if err != nil {
			return persistence.NewWorkflowError("Mirror", workflow.ExternalID, fmt.Errorf("failed to associate tag %q: %w", tag, err))
		}
	}

	err = tx.Commit()
	if err != nil {
		return persistence.NewWorkflowError("Mirror", workflow.ExternalID, fmt.Errorf("failed to commit transaction: %w", err))
	}

	workflow.Tags = tags

	return nil
}

func (r *WorkflowRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Workflow, error) {
	query := selectWorkflows + `
		WHERE w.external_id = $2
		GROUP BY w.id, s.is_enabled
	`

	row := r.db.QueryRowContext(ctx, query, "", externalID)

	workflow, _, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewWorkflowError("GetByExternalID", externalID, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	return workflow, nil
}

func (r *WorkflowRepository) SetActive(ctx context.Context, externalID string, active bool, versionID string) error {
	query := `
		UPDATE workflows SET
			active = $2,
			version_id = COALESCE(NULLIF($3, ''), version_id),
			updated_at = CASE
				WHEN (active, version_id) IS DISTINCT FROM ($2, COALESCE(NULLIF($3, ''), version_id)) THEN $4
				ELSE updated_at
			END
		WHERE external_id = $1
	`

	result, err := r.db.ExecContext(ctx, query, externalID, active, versionID, time.Now().UTC())
	if err != nil {
		return persistence.NewWorkflowError("SetActive", externalID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewWorkflowError("SetActive", externalID, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func (r *WorkflowRepository) List(ctx context.Context, callerID string) ([]*models.Workflow, error) {
	query := selectWorkflows + `
		GROUP BY w.id, s.is_enabled
		ORDER BY lower(w.name), w.id
	`

	rows, err := r.db.QueryContext(ctx, query, callerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, enabled, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		if callerID != "" {
			workflow.EnabledForCaller = &enabled
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

func (r *WorkflowRepository) EligibleUsers(ctx context.Context, workflowID int64, onlyEnabled bool) ([]*models.User, error) {
	query := `
		SELECT
			u.id
		  , u.username
		  , u.email
		  , c.provider
		  , c.external_id
		  , c.display_name
		FROM users u
		LEFT JOIN workflow_user_settings s ON s.user_id = u.id AND s.workflow_id = $1
		LEFT JOIN user_credentials c ON c.user_id = u.id
		WHERE u.is_active
		  AND (NOT $2::boolean OR COALESCE(s.is_enabled, TRUE))
		ORDER BY u.id, c.provider
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID, onlyEnabled)
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible users: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	users := make([]*models.User, 0)

	var current *models.User

	for rows.Next() {
		var (
			user                              models.User
			provider, externalID, displayName sql.NullString
		)

		err := rows.Scan(&user.ID, &user.Username, &user.Email, &provider, &externalID, &displayName)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}

		if current == nil || current.ID != user.ID {
			user.IsActive = true
			user.Credentials = make([]models.Credential, 0)
			current = &user
			users = append(users, current)
		}

		if provider.Valid {
			current.Credentials = append(current.Credentials, models.Credential{
				UserID:      current.ID,
				Provider:    provider.String,
				ExternalID:  externalID.String,
				DisplayName: displayName.String,
			})
		}
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row scanner) (*models.Workflow, bool, error) {
	var (
		workflow models.Workflow
		tags     pq.StringArray
		enabled  bool
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.ExternalID,
		&workflow.Name,
		&workflow.Active,
		&workflow.VersionID,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
		&tags,
		&enabled,
	)
	if err != nil {
		return nil, false, err
	}

	workflow.Tags = []string(tags)
	if workflow.Tags == nil {
		workflow.Tags = []string{}
	}

	return &workflow, enabled, nil
}
