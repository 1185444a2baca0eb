package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/flowmirror/pkg/backup"
	"github.com/xeipuuv/gojsonschema"
)

// workflowSchema is the minimum shape a backup file needs to be re-created.
const workflowSchema = `{
  "type": "object",
  "required": ["name", "nodes", "connections"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "nodes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "type"],
        "properties": {
          "name": {"type": "string"},
          "type": {"type": "string"}
        }
      }
    },
    "connections": {"type": "object"},
    "settings": {"type": ["object", "null"]}
  }
}`

// importFields are the only fields the engine accepts on create. Everything
// else in a backup (id, active, tags, versionId, timestamps) is server owned.
var importFields = []string{"name", "nodes", "connections", "settings", "staticData"}

type ImportResult struct {
	File       string `json:"file"`
	Name       string `json:"name,omitempty"`
	WorkflowID string `json:"workflow_id,omitempty"`
	Error      string `json:"error,omitempty"`

	Err error `json:"-"`
}

type ImportReport struct {
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Results   []ImportResult `json:"results"`
}

// Err returns ErrPartialBatchFailure when at least one file failed.
func (r *ImportReport) Err() error {
	if r.Failed == 0 {
		return nil
	}

	return fmt.Errorf("%w: %d of %d", ErrPartialBatchFailure, r.Failed, r.Failed+r.Succeeded)
}

// Importer re-creates workflows on the engine from the current backup files.
type Importer struct {
	engine Engine
	store  *backup.Store
	schema *gojsonschema.Schema
	logger *slog.Logger
}

func NewImporter(engine Engine, store *backup.Store, logger *slog.Logger) (*Importer, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(workflowSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile workflow schema: %w", err)
	}

	return &Importer{
		engine: engine,
		store:  store,
		schema: schema,
		logger: logger.With("module", "importer"),
	}, nil
}

// ImportAll creates one engine workflow per current backup file. A file that
// fails does not stop the others.
func (i *Importer) ImportAll(ctx context.Context) (*ImportReport, error) {
	bases, err := i.store.CurrentFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to list backup files: %w", err)
	}

	report := &ImportReport{Results: make([]ImportResult, 0, len(bases))}

	for _, base := range bases {
		result := i.importFile(ctx, base)
		if result.Err != nil {
			result.Error = result.Err.Error()
			report.Failed++

			i.logger.WarnContext(ctx, "workflow import failed", "base_name", base, "error", result.Err)
		} else {
			report.Succeeded++
		}

		report.Results = append(report.Results, result)
	}

	i.logger.InfoContext(ctx, "import completed", "succeeded", report.Succeeded, "failed", report.Failed)

	return report, nil
}

func (i *Importer) importFile(ctx context.Context, base string) ImportResult {
	result := ImportResult{File: i.store.CurrentPath(base)}

	data, err := i.store.Read(base)
	if err != nil {
		result.Err = err
		return result
	}

	definition, err := i.Definition(data)
	if err != nil {
		result.Err = err
		return result
	}

	result.Name, _ = definition["name"].(string)

	created, err := i.engine.CreateWorkflow(ctx, definition)
	if err != nil {
		result.Err = translateEngineError("ImportWorkflow", err)
		return result
	}

	result.WorkflowID = created.ID

	return result
}

// Definition validates a backup document and reduces it to the fields the
// engine accepts on create.
func (i *Importer) Definition(data []byte) (map[string]any, error) {
	validation, err := i.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, NewValidationError("ImportWorkflow", "backup is not valid JSON", fmt.Errorf("%w: %w", ErrInvalidRequest, err))
	}

	if !validation.Valid() {
		messages := make([]string, 0, len(validation.Errors()))
		for _, desc := range validation.Errors() {
			messages = append(messages, desc.String())
		}

		return nil, NewValidationError("ImportWorkflow", strings.Join(messages, "; "), ErrInvalidRequest)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, NewValidationError("ImportWorkflow", "backup is not valid JSON", fmt.Errorf("%w: %w", ErrInvalidRequest, err))
	}

	definition := make(map[string]any, len(importFields))

	for _, field := range importFields {
		if value, ok := doc[field]; ok && value != nil {
			definition[field] = value
		}
	}

	if _, ok := definition["settings"]; !ok {
		definition["settings"] = map[string]any{}
	}

	return definition, nil
}
