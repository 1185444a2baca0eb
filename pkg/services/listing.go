package services

import (
	"context"
	"fmt"

	"github.com/dukex/flowmirror/pkg/models"
	"github.com/dukex/flowmirror/pkg/persistence"
)

// Listing serves the end-user workflow list from the mirror.
type Listing struct {
	persistence persistence.Persistence
}

func NewListing(persistence persistence.Persistence) *Listing {
	return &Listing{persistence: persistence}
}

// ListWorkflows returns the workflows visible to end users. The tag policy is
// applied to the mirror's current state on every call.
func (l *Listing) ListWorkflows(ctx context.Context, callerID string) ([]*models.Workflow, error) {
	workflows, err := l.persistence.Workflows().List(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	visible := make([]*models.Workflow, 0, len(workflows))

	for _, workflow := range workflows {
		if workflow.Listable() {
			visible = append(visible, workflow)
		}
	}

	return visible, nil
}

// HealthCheck checks the health of the persistence layer.
func (l *Listing) HealthCheck(ctx context.Context) (string, bool) {
	if l.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := l.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}
