package services

import (
	"context"
	"fmt"

	"github.com/dukex/flowmirror/pkg/models"
	"github.com/dukex/flowmirror/pkg/persistence"
)

// WorkflowMeta is the workflow part of an eligible-users answer.
type WorkflowMeta struct {
	ID         int64    `json:"id"`
	ExternalID string   `json:"external_id"`
	Name       string   `json:"name"`
	Active     bool     `json:"active"`
	Tags       []string `json:"tags"`
}

type EligibleUsers struct {
	Workflow WorkflowMeta   `json:"workflow"`
	Users    []*models.User `json:"users"`
}

// ServiceContext answers the engine's questions about the product's users.
// Callers are authenticated with the service key before reaching it.
type ServiceContext struct {
	persistence persistence.Persistence
}

func NewServiceContext(persistence persistence.Persistence) *ServiceContext {
	return &ServiceContext{persistence: persistence}
}

// GetEligibleUsers returns the active users a workflow may target. An unknown
// workflow is an error, not an empty list.
func (s *ServiceContext) GetEligibleUsers(ctx context.Context, externalID string, onlyEnabled bool) (*EligibleUsers, error) {
	workflow, err := s.persistence.Workflows().GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}

	users, err := s.persistence.Workflows().EligibleUsers(ctx, workflow.ID, onlyEnabled)
	if err != nil {
		return nil, fmt.Errorf("failed to load eligible users: %w", err)
	}

	return &EligibleUsers{
		Workflow: WorkflowMeta{
			ID:         workflow.ID,
			ExternalID: workflow.ExternalID,
			Name:       workflow.Name,
			Active:     workflow.Active,
			Tags:       workflow.Tags,
		},
		Users: users,
	}, nil
}
