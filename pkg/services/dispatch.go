package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/flowmirror/pkg/engine"
	"github.com/dukex/flowmirror/pkg/eventbus"
	"github.com/dukex/flowmirror/pkg/events"
	"github.com/dukex/flowmirror/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
)

const (
	anonymousCaller = "anonymous"
	maxErrorDetail  = 512
)

// FileAttachment is a file sent along with an execution.
type FileAttachment struct {
	Filename  string
	MediaType string
	Data      []byte
}

type ExecuteRequest struct {
	WorkflowID  string
	Input       string
	CallerID    string
	TriggerPath string
	File        *FileAttachment
}

type filePayload struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimetype"`
	Size     int    `json:"size"`
	Data     string `json:"data"`
}

// executionPayload is what trigger nodes receive. Field names match what the
// existing workflows read.
type executionPayload struct {
	ChatInput string       `json:"chatInput"`
	UserID    string       `json:"userId"`
	Timestamp string       `json:"timestamp"`
	File      *filePayload `json:"file,omitempty"`
}

// Dispatch hands executions to the engine. It never interprets what the
// workflow returns.
type Dispatch struct {
	engine    Engine
	publisher eventbus.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewDispatch(engine Engine, publisher eventbus.EventPublisher, logger *slog.Logger) *Dispatch {
	return &Dispatch{
		engine:    engine,
		publisher: publisher,
		logger:    logger.With("module", "dispatch"),
		now:       time.Now,
	}
}

// ResolveTriggerPath returns the explicit path when given, otherwise the path
// of the first enabled trigger node of the live workflow.
func (d *Dispatch) ResolveTriggerPath(ctx context.Context, workflowID, explicit string) (string, error) {
	if path := strings.TrimSpace(explicit); path != "" {
		return path, nil
	}

	detail, err := d.engine.GetWorkflow(ctx, workflowID)
	if err != nil {
		return "", translateEngineError("ResolveTriggerPath", err)
	}

	path, ok := engine.FindTriggerPath(detail.Nodes)
	if !ok {
		return "", &ServiceError{
			Op:      "ResolveTriggerPath",
			Code:    "no_trigger_configured",
			Message: fmt.Sprintf("workflow %q has no enabled webhook trigger; pass trigger_path or add a webhook node", workflowID),
			Err:     ErrNoTriggerConfigured,
		}
	}

	return path, nil
}

// Execute posts one execution to the workflow's trigger and returns the
// engine's response. Error statuses from the engine are returned as errors.
// Cancelling ctx abandons the call.
func (d *Dispatch) Execute(ctx context.Context, req ExecuteRequest) (*engine.Response, error) {
	if strings.TrimSpace(req.WorkflowID) == "" {
		return nil, NewValidationError("Execute", "workflow id is required", ErrInvalidRequest)
	}

	ctx, span := otelhelper.StartSpan(ctx, tracer, "dispatch.execute",
		attribute.String(otelhelper.WorkflowIDKey, req.WorkflowID),
		attribute.String(otelhelper.CallerIDKey, req.CallerID),
	)
	defer span.End()

	path, err := d.ResolveTriggerPath(ctx, req.WorkflowID, req.TriggerPath)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.TriggerPathKey, path))

	body, err := json.Marshal(d.payload(req))
	if err != nil {
		return nil, fmt.Errorf("failed to encode execution payload: %w", err)
	}

	resp, err := d.engine.TriggerWebhook(ctx, path, "application/json", body)
	if err != nil {
		err = translateEngineError("Execute", err)
		otelhelper.SetError(span, err)

		return nil, err
	}

	d.publish(ctx, req.WorkflowID, events.WorkflowDispatched{
		BaseEvent:   events.NewBaseEvent(events.WorkflowDispatchedEvent, req.WorkflowID),
		TriggerPath: path,
		CallerID:    callerOrAnonymous(req.CallerID),
		StatusCode:  resp.StatusCode,
		HasFile:     req.File != nil,
	})

	if err := classifyTriggerStatus(resp); err != nil {
		otelhelper.SetError(span, err)

		d.logger.WarnContext(ctx, "engine refused execution",
			"workflow_id", req.WorkflowID, "trigger_path", path, "status", resp.StatusCode)

		return nil, err
	}

	d.logger.InfoContext(ctx, "workflow dispatched",
		"workflow_id", req.WorkflowID, "trigger_path", path, "status", resp.StatusCode, "has_file", req.File != nil)

	return resp, nil
}

// RelayWebhook forwards an inbound call to its trigger path unchanged and
// returns the engine's answer verbatim, whatever its status.
func (d *Dispatch) RelayWebhook(ctx context.Context, req engine.WebhookRequest) (*engine.Response, error) {
	ctx, span := otelhelper.StartSpan(ctx, tracer, "dispatch.relay",
		attribute.String(otelhelper.TriggerPathKey, req.Path),
	)
	defer span.End()

	resp, err := d.engine.ForwardWebhook(ctx, req)
	if err != nil {
		err = translateEngineError("RelayWebhook", err)
		otelhelper.SetError(span, err)

		return nil, err
	}

	return resp, nil
}

func (d *Dispatch) payload(req ExecuteRequest) executionPayload {
	payload := executionPayload{
		ChatInput: req.Input,
		UserID:    callerOrAnonymous(req.CallerID),
		Timestamp: d.now().UTC().Format(time.RFC3339Nano),
	}

	if req.File != nil {
		mediaType := req.File.MediaType
		if mediaType == "" {
			mediaType = "application/octet-stream"
		}

		payload.File = &filePayload{
			Filename: req.File.Filename,
			MimeType: mediaType,
			Size:     len(req.File.Data),
			Data:     base64.StdEncoding.EncodeToString(req.File.Data),
		}
	}

	return payload
}

func (d *Dispatch) publish(ctx context.Context, key string, event eventbus.Event) {
	if d.publisher == nil {
		return
	}

	err := d.publisher.Publish(ctx, key, event)
	if err != nil {
		d.logger.WarnContext(ctx, "failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func classifyTriggerStatus(resp *engine.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	detail := strings.TrimSpace(string(resp.Body))
	if len(detail) > maxErrorDetail {
		detail = detail[:maxErrorDetail]
	}

	if resp.StatusCode >= 500 {
		return &ServiceError{
			Op:      "Execute",
			Code:    "upstream_unavailable",
			Message: fmt.Sprintf("engine answered %d: %s", resp.StatusCode, detail),
			Err:     ErrUpstreamUnavailable,
		}
	}

	return &ServiceError{
		Op:      "Execute",
		Code:    "upstream_rejected",
		Message: fmt.Sprintf("engine answered %d: %s", resp.StatusCode, detail),
		Err:     ErrUpstreamRejected,
	}
}

func callerOrAnonymous(callerID string) string {
	if strings.TrimSpace(callerID) == "" {
		return anonymousCaller
	}

	return callerID
}
