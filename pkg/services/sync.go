package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowmirror/pkg/backup"
	"github.com/dukex/flowmirror/pkg/engine"
	"github.com/dukex/flowmirror/pkg/eventbus"
	"github.com/dukex/flowmirror/pkg/events"
	"github.com/dukex/flowmirror/pkg/lock"
	"github.com/dukex/flowmirror/pkg/models"
	"github.com/dukex/flowmirror/pkg/otelhelper"
	"github.com/dukex/flowmirror/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

const (
	syncLockKey            = "sync"
	DefaultLockWaitTimeout = 5 * time.Second
)

// WorkflowResult is the outcome of one workflow in a sync run.
type WorkflowResult struct {
	WorkflowID string `json:"workflow_id"`
	Name       string `json:"name"`
	File       string `json:"file,omitempty"`
	Rotated    bool   `json:"rotated"`
	Unchanged  bool   `json:"unchanged"`
	Error      string `json:"error,omitempty"`

	Err error `json:"-"`
}

func (r *WorkflowResult) Failed() bool {
	return r.Err != nil
}

// SyncReport is the outcome of a whole sync run.
type SyncReport struct {
	Succeeded    int              `json:"succeeded"`
	Failed       int              `json:"failed"`
	Results      []WorkflowResult `json:"results"`
	Files        []string         `json:"files"`
	Archive      string           `json:"archive,omitempty"`
	ArchiveFiles int              `json:"archive_files"`
	ArchiveError string           `json:"archive_error,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
}

// Failures returns the failed workflow results.
func (r *SyncReport) Failures() []WorkflowResult {
	failures := make([]WorkflowResult, 0, r.Failed)

	for _, result := range r.Results {
		if result.Failed() {
			failures = append(failures, result)
		}
	}

	return failures
}

// Err returns ErrPartialBatchFailure when at least one workflow failed.
func (r *SyncReport) Err() error {
	if r.Failed == 0 {
		return nil
	}

	return fmt.Errorf("%w: %d of %d", ErrPartialBatchFailure, r.Failed, r.Failed+r.Succeeded)
}

type SyncConfig struct {
	// LockWaitTimeout bounds how long a run waits for a run already in progress.
	LockWaitTimeout time.Duration
}

// Sync pulls every workflow from the engine into the backup store and the
// relational mirror. It is the only writer of workflow, tag and association rows
// besides activation.
type Sync struct {
	engine      Engine
	store       *backup.Store
	persistence persistence.Persistence
	locker      lock.Locker
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	config      SyncConfig
}

func NewSync(
	engine Engine,
	store *backup.Store,
	persistence persistence.Persistence,
	locker lock.Locker,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	config SyncConfig,
) *Sync {
	if config.LockWaitTimeout <= 0 {
		config.LockWaitTimeout = DefaultLockWaitTimeout
	}

	return &Sync{
		engine:      engine,
		store:       store,
		persistence: persistence,
		locker:      locker,
		publisher:   publisher,
		logger:      logger.With("module", "sync"),
		config:      config,
	}
}

// Synchronize runs one full pass. Individual workflow failures are recorded
// in the report; the returned error is reserved for failures that prevent the
// run itself (lock busy, listing unavailable).
//
// Once the lock is held the run ignores cancellation of ctx so the mirror and
// backups are never left half written. If the lock is lost mid-run, the
// remaining workflows are reported as failed and the archive is left as is.
func (s *Sync) Synchronize(ctx context.Context) (*SyncReport, error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.config.LockWaitTimeout)
	held, release, err := s.locker.Lock(lockCtx, syncLockKey)

	cancel()

	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, &ServiceError{Op: "Synchronize", Code: "sync_in_progress", Err: fmt.Errorf("%w: %w", ErrSyncInProgress, err)}
		}

		return nil, err
	}

	defer release()

	ctx, span := otelhelper.StartSpan(held, tracer, "sync.run")
	defer span.End()

	report := &SyncReport{
		StartedAt: time.Now().UTC(),
		Results:   make([]WorkflowResult, 0),
		Files:     make([]string, 0),
	}

	summaries, err := s.engine.ListWorkflows(ctx)
	if err != nil {
		err = translateEngineError("Synchronize", err)
		otelhelper.SetError(span, err)
		s.logger.ErrorContext(ctx, "failed to list workflows", "error", err)

		return nil, err
	}

	// Listed workflows keyed by id, with the base name they back up to now.
	listed := make(map[string]string, len(summaries))
	for _, summary := range summaries {
		listed[summary.ID] = backup.BaseName(summary.Name)
	}

	claimed := make(map[string]string, len(summaries))

	for _, summary := range summaries {
		if lost := lockLost(ctx); lost != nil {
			report.Results = append(report.Results, WorkflowResult{
				WorkflowID: summary.ID,
				Name:       summary.Name,
				Err:        lost,
				Error:      lost.Error(),
			})
			report.Failed++

			continue
		}

		result := s.syncWorkflow(ctx, summary, listed, claimed)
		report.Results = append(report.Results, result)

		if result.Failed() {
			report.Failed++

			s.logger.WarnContext(ctx, "workflow sync failed",
				"workflow_id", result.WorkflowID, "name", result.Name, "error", result.Err)

			continue
		}

		report.Succeeded++
		report.Files = append(report.Files, result.File)
	}

	// The archive reflects what is on disk after rotation and pruning.
	if lost := lockLost(ctx); lost != nil {
		report.ArchiveError = lost.Error()
		s.logger.ErrorContext(ctx, "sync lock lost, archive not rebuilt", "error", lost)
	} else if count, err := s.store.RebuildArchive(); err != nil {
		report.ArchiveError = err.Error()
		s.logger.ErrorContext(ctx, "failed to rebuild backup archive", "error", err)
	} else {
		report.Archive = "versions/all-workflows.zip"
		report.ArchiveFiles = count
	}

	report.FinishedAt = time.Now().UTC()

	span.SetAttributes(
		attribute.Int(otelhelper.SucceededKey, report.Succeeded),
		attribute.Int(otelhelper.FailedKey, report.Failed),
	)

	s.publish(ctx, "sync", events.SyncCompleted{
		BaseEvent: events.NewBaseEvent(events.SyncCompletedEvent, ""),
		Succeeded: report.Succeeded,
		Failed:    report.Failed,
		Duration:  report.FinishedAt.Sub(report.StartedAt),
	})

	s.logger.InfoContext(ctx, "sync run finished",
		"succeeded", report.Succeeded, "failed", report.Failed, "archive_files", report.ArchiveFiles)

	return report, nil
}

func (s *Sync) syncWorkflow(
	ctx context.Context,
	summary engine.WorkflowSummary,
	listed map[string]string,
	claimed map[string]string,
) WorkflowResult {
	ctx, span := otelhelper.StartSpan(ctx, tracer, "sync.workflow",
		attribute.String(otelhelper.WorkflowIDKey, summary.ID),
		attribute.String(otelhelper.WorkflowNameKey, summary.Name),
	)
	defer span.End()

	result := WorkflowResult{WorkflowID: summary.ID, Name: summary.Name}

	fail := func(err error) WorkflowResult {
		result.Err = err
		result.Error = err.Error()
		otelhelper.SetError(span, err)

		return result
	}

	detail, err := s.engine.GetWorkflow(ctx, summary.ID)
	if err != nil {
		return fail(translateEngineError("GetWorkflow", err))
	}

	if detail.ID == "" {
		detail.ID = summary.ID
	}

	if detail.Name != "" {
		result.Name = detail.Name
	}

	base := backup.BaseName(result.Name)
	span.SetAttributes(attribute.String(otelhelper.BaseNameKey, base))

	// The backup and the mirror are updated independently; a failure in
	// one does not stop the other.
	backupErr := s.backupWorkflow(detail, base, listed, claimed, &result)

	mirrorErr := s.persistence.Workflows().Mirror(ctx, &models.Workflow{
		ExternalID: detail.ID,
		Name:       result.Name,
		Active:     detail.Active,
		VersionID:  detail.VersionID,
		Tags:       detail.TagNames(),
	})

	err = errors.Join(backupErr, mirrorErr)
	if err != nil {
		return fail(err)
	}

	s.publish(ctx, detail.ID, events.WorkflowSynced{
		BaseEvent: events.NewBaseEvent(events.WorkflowSyncedEvent, detail.ID),
		Name:      result.Name,
		File:      result.File,
		Rotated:   result.Rotated,
		Unchanged: result.Unchanged,
		Tags:      models.NormalizeTags(detail.TagNames()),
	})

	return result
}

// backupWorkflow writes the current file for base unless another live
// workflow still backs up under that name.
func (s *Sync) backupWorkflow(
	detail *engine.WorkflowDetail,
	base string,
	listed map[string]string,
	claimed map[string]string,
	result *WorkflowResult,
) error {
	if owner, ok := claimed[base]; ok && owner != detail.ID {
		return fmt.Errorf("%w: %s is used by workflow %s", ErrBaseNameCollision, base, owner)
	}

	owner, err := s.store.Owner(base)
	if err != nil {
		return fmt.Errorf("failed to read backup owner: %w", err)
	}

	// A file left by a workflow that was deleted or renamed away is inherited.
	if current, alive := listed[owner]; alive && owner != detail.ID && current == base {
		return fmt.Errorf("%w: %s is used by workflow %s", ErrBaseNameCollision, base, owner)
	}

	claimed[base] = detail.ID

	raw := detail.Raw
	if len(raw) == 0 {
		raw, err = json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("failed to encode workflow: %w", err)
		}
	}

	saved, err := s.store.Save(base, raw)
	if err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}

	result.File = saved.File
	result.Rotated = saved.Rotated
	result.Unchanged = saved.Unchanged

	return nil
}

func (s *Sync) publish(ctx context.Context, key string, event eventbus.Event) {
	if s.publisher == nil {
		return
	}

	err := s.publisher.Publish(ctx, key, event)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

// lockLost reports why the run lost its lock, if it did.
func lockLost(ctx context.Context) error {
	if cause := context.Cause(ctx); errors.Is(cause, lock.ErrLost) {
		return cause
	}

	return nil
}
