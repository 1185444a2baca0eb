// Package persistence defines the relational mirror of the engine's workflows
// and the per-user overlays stored next to it.
package persistence

import (
	"context"

	"github.com/dukex/flowmirror/pkg/models"
)

type Persistence interface {
	Workflows() WorkflowRepository
	Overlays() OverlayRepository
	Users() UserRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository owns the workflow, tag and association rows. Only the
// sync and activation paths write through it.
type WorkflowRepository interface {
	// Mirror upserts the workflow by external id and replaces its tag
	// associations with workflow.Tags in one transaction. workflow.ID is
	// set to the mirror row id.
	Mirror(ctx context.Context, workflow *models.Workflow) error

	// GetByExternalID returns the workflow with its tags, or ErrWorkflowNotFound.
	GetByExternalID(ctx context.Context, externalID string) (*models.Workflow, error)

	// SetActive records the engine's activation state and, when versionID
	// is not empty, the version it reported along with it.
	SetActive(ctx context.Context, externalID string, active bool, versionID string) error

	// List returns every mirrored workflow with its tags. When callerID is
	// not empty, EnabledForCaller is resolved from the caller's settings.
	List(ctx context.Context, callerID string) ([]*models.Workflow, error)

	// EligibleUsers returns the active users with their credentials, skipping
	// users that disabled the workflow when onlyEnabled is set.
	EligibleUsers(ctx context.Context, workflowID int64, onlyEnabled bool) ([]*models.User, error)
}

// OverlayRepository stores per-user settings and prompts keyed by the mirror
// row id of the workflow.
type OverlayRepository interface {
	Setting(ctx context.Context, userID string, workflowID int64) (*models.WorkflowUserSetting, error)
	SaveSetting(ctx context.Context, setting *models.WorkflowUserSetting, workflowID int64) error
	Prompt(ctx context.Context, userID string, workflowID int64) (*models.WorkflowPrompt, error)
	SavePrompt(ctx context.Context, prompt *models.WorkflowPrompt, workflowID int64) error
}

// UserRepository seeds users and their shareable credentials. The product's
// own user management stays outside this service.
type UserRepository interface {
	SaveUser(ctx context.Context, user *models.User) error
	SaveCredential(ctx context.Context, credential *models.Credential) error
}
