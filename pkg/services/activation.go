package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/flowmirror/pkg/eventbus"
	"github.com/dukex/flowmirror/pkg/events"
	"github.com/dukex/flowmirror/pkg/models"
	"github.com/dukex/flowmirror/pkg/persistence"
)

// Activation flips a workflow on or off, engine first.
type Activation struct {
	engine      Engine
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

func NewActivation(engine Engine, persistence persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *Activation {
	return &Activation{
		engine:      engine,
		persistence: persistence,
		publisher:   publisher,
		logger:      logger.With("module", "activation"),
	}
}

// SetActive patches the engine and, only once it confirmed, the mirror. A
// workflow the mirror has not seen yet is mirrored from the engine's answer.
func (a *Activation) SetActive(ctx context.Context, externalID string, active bool) (*models.Workflow, error) {
	detail, err := a.engine.UpdateWorkflow(ctx, externalID, map[string]any{"active": active})
	if err != nil {
		return nil, translateEngineError("SetActive", err)
	}

	// The engine already changed; finish the mirror write even if the caller left.
	ctx = context.WithoutCancel(ctx)
	repo := a.persistence.Workflows()

	err = repo.SetActive(ctx, externalID, detail.Active, detail.VersionID)
	if persistence.IsWorkflowNotFound(err) {
		if detail.ID == "" {
			detail.ID = externalID
		}

		err = repo.Mirror(ctx, &models.Workflow{
			ExternalID: detail.ID,
			Name:       detail.Name,
			Active:     detail.Active,
			VersionID:  detail.VersionID,
			Tags:       detail.TagNames(),
		})
	}

	if err != nil {
		return nil, fmt.Errorf("engine updated but mirror write failed: %w", err)
	}

	if a.publisher != nil {
		err = a.publisher.Publish(ctx, externalID, events.WorkflowActivationChanged{
			BaseEvent: events.NewBaseEvent(events.WorkflowActivationChangedEvent, externalID),
			Active:    detail.Active,
		})
		if err != nil {
			a.logger.WarnContext(ctx, "failed to publish event", "workflow_id", externalID, "error", err)
		}
	}

	a.logger.InfoContext(ctx, "workflow activation changed", "workflow_id", externalID, "active", detail.Active)

	return repo.GetByExternalID(ctx, externalID)
}
