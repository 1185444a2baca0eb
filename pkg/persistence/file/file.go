// Package file provides a file-backed workflow mirror. All state lives in a
// single JSON document that is rewritten on every change, which suits local
// development and tests.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dukex/flowmirror/pkg/persistence"
)

const stateFile = "mirror.json"

type workflowRecord struct {
	ID         int64     `json:"id"`
	ExternalID string    `json:"external_id"`
	Name       string    `json:"name"`
	Active     bool      `json:"active"`
	VersionID  string    `json:"version_id"`
	TagIDs     []int64   `json:"tag_ids"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type tagRecord struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type settingRecord struct {
	IsEnabled bool      `json:"is_enabled"`
	UpdatedAt time.Time `json:"updated_at"`
}

type promptRecord struct {
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type userRecord struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type credentialRecord struct {
	UserID      string `json:"user_id"`
	Provider    string `json:"provider"`
	ExternalID  string `json:"external_id"`
	DisplayName string `json:"display_name"`
}

type state struct {
	LastWorkflowID int64                      `json:"last_workflow_id"`
	LastTagID      int64                      `json:"last_tag_id"`
	Workflows      map[string]*workflowRecord `json:"workflows"`
	Tags           []*tagRecord               `json:"tags"`
	Settings       map[string]*settingRecord  `json:"settings"`
	Prompts        map[string]*promptRecord   `json:"prompts"`
	Users          map[string]*userRecord     `json:"users"`
	Credentials    []*credentialRecord        `json:"credentials"`
}

func newState() *state {
	return &state{
		Workflows: make(map[string]*workflowRecord),
		Settings:  make(map[string]*settingRecord),
		Prompts:   make(map[string]*promptRecord),
		Users:     make(map[string]*userRecord),
	}
}

// overlayKey is "<user id>/<workflow row id>".
func overlayKey(userID string, workflowID int64) string {
	return userID + "/" + strconv.FormatInt(workflowID, 10)
}

// Persistence implements persistence.Persistence on top of one JSON file.
type Persistence struct {
	root  string
	mu    sync.RWMutex
	state *state
}

// NewPersistence loads (or initialises) the mirror stored under root. root
// may carry a file:// prefix.
func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	err := os.MkdirAll(cleanRoot, 0o750)
	if err != nil {
		return nil, fmt.Errorf("failed to create mirror directory: %w", err)
	}

	p := &Persistence{root: cleanRoot, state: newState()}

	data, err := os.ReadFile(filepath.Join(cleanRoot, stateFile))
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read mirror state: %w", err)
	}

	err = json.Unmarshal(data, p.state)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mirror state: %w", err)
	}

	// Maps may be missing from hand-edited or older files.
	fresh := newState()
	if p.state.Workflows == nil {
		p.state.Workflows = fresh.Workflows
	}

	if p.state.Settings == nil {
		p.state.Settings = fresh.Settings
	}

	if p.state.Prompts == nil {
		p.state.Prompts = fresh.Prompts
	}

	if p.state.Users == nil {
		p.state.Users = fresh.Users
	}

	return p, nil
}

//nolint:ireturn
func (p *Persistence) Workflows() persistence.WorkflowRepository {
	return &WorkflowRepository{p: p}
}

//nolint:ireturn
func (p *Persistence) Overlays() persistence.OverlayRepository {
	return &OverlayRepository{p: p}
}

//nolint:ireturn
func (p *Persistence) Users() persistence.UserRepository {
	return &UserRepository{p: p}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// flush writes the state. Callers hold p.mu for writing.
func (p *Persistence) flush() error {
	data, err := json.MarshalIndent(p.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode mirror state: %w", err)
	}

	tmp, err := os.CreateTemp(p.root, "."+stateFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to write mirror state: %w", err)
	}

	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	_, err = tmp.Write(data)
	if err != nil {
		_ = tmp.Close()

		return fmt.Errorf("failed to write mirror state: %w", err)
	}

	err = tmp.Close()
	if err != nil {
		return fmt.Errorf("failed to write mirror state: %w", err)
	}

	err = os.Rename(tmp.Name(), filepath.Join(p.root, stateFile))
	if err != nil {
		return fmt.Errorf("failed to replace mirror state: %w", err)
	}

	return nil
}

// update runs fn on a copy of the state and keeps it only when fn succeeds
// and the copy was written to disk.
func (p *Persistence) update(fn func(s *state) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	previous, err := json.Marshal(p.state)
	if err != nil {
		return err
	}

	err = fn(p.state)
	if err == nil {
		err = p.flush()
	}

	if err != nil {
		restored := newState()
		_ = json.Unmarshal(previous, restored)
		p.state = restored

		return err
	}

	return nil
}
