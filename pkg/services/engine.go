package services

import (
	"context"

	"github.com/dukex/flowmirror/pkg/engine"
	"github.com/dukex/flowmirror/pkg/otelhelper"
)

var tracer = otelhelper.Tracer("github.com/dukex/flowmirror/pkg/services")

// Engine is the part of the engine client the services depend on. The
// process builds one client and hands it to every service.
type Engine interface {
	ListWorkflows(ctx context.Context) ([]engine.WorkflowSummary, error)
	GetWorkflow(ctx context.Context, id string) (*engine.WorkflowDetail, error)
	UpdateWorkflow(ctx context.Context, id string, patch map[string]any) (*engine.WorkflowDetail, error)
	CreateWorkflow(ctx context.Context, definition map[string]any) (*engine.WorkflowDetail, error)
	TriggerWebhook(ctx context.Context, path, contentType string, body []byte) (*engine.Response, error)
	ForwardWebhook(ctx context.Context, req engine.WebhookRequest) (*engine.Response, error)
}
