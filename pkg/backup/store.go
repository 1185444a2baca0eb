// Package backup keeps the on-disk history of workflow definitions: one
// current file per workflow, a bounded set of numbered prior generations and
// a combined archive of every generation.
package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

const (
	DefaultGenerations = 3

	versionsDir = "versions"
	fileExt     = ".json"
)

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

	ErrInvalidBaseName = errors.New("invalid backup base name")
)

// BaseName turns a display name into a filesystem-safe base name.
func BaseName(name string) string {
	base := strings.ToLower(unsafeChars.ReplaceAllString(name, "_"))
	if strings.Trim(base, "_") == "" {
		return "workflow"
	}

	return base
}

// Canonical re-encodes a JSON document with two-space indentation so that
// equal definitions produce equal bytes.
func Canonical(raw []byte) ([]byte, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var doc any

	err := decoder.Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("invalid workflow document: %w", err)
	}

	var buf bytes.Buffer

	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")

	err = encoder.Encode(doc)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Generation is one numbered prior version of a workflow.
type Generation struct {
	Number int
	Path   string
}

// SaveResult describes what Save did to the current file.
type SaveResult struct {
	File      string `json:"file"`
	Rotated   bool   `json:"rotated"`
	Unchanged bool   `json:"unchanged"`
}

type Store struct {
	dir         string
	generations int
	logger      *slog.Logger
	mu          sync.Mutex
}

// NewStore creates the directory layout under dir. generations is the number
// of prior versions kept per workflow.
func NewStore(logger *slog.Logger, dir string, generations int) (*Store, error) {
	if generations <= 0 {
		generations = DefaultGenerations
	}

	err := os.MkdirAll(filepath.Join(dir, versionsDir), 0o750)
	if err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	return &Store{
		dir:         dir,
		generations: generations,
		logger:      logger.With("module", "backup"),
	}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// CurrentPath is <dir>/<base>.json.
func (s *Store) CurrentPath(base string) string {
	return filepath.Join(s.dir, base+fileExt)
}

func (s *Store) generationPath(base string, n int) string {
	return filepath.Join(s.dir, versionsDir, base, base+".v"+strconv.Itoa(n)+fileExt)
}

func (s *Store) ArchivePath() string {
	return filepath.Join(s.dir, versionsDir, archiveName)
}

func validBase(base string) error {
	if base == "" || unsafeChars.MatchString(strings.ReplaceAll(base, "_", "a")) {
		return fmt.Errorf("%w: %q", ErrInvalidBaseName, base)
	}

	return nil
}

// Save writes data as the current file of base. When the canonical content
// equals the current file nothing is touched. Otherwise the existing history
// is rotated first.
func (s *Store) Save(base string, data []byte) (*SaveResult, error) {
	err := validBase(base)
	if err != nil {
		return nil, err
	}

	content, err := Canonical(data)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.CurrentPath(base)
	result := &SaveResult{File: filepath.Base(current)}

	existing, err := os.ReadFile(current)

	switch {
	case err == nil && bytes.Equal(existing, content):
		result.Unchanged = true

		return result, nil
	case err == nil:
		err = s.rotate(base)
		if err != nil {
			return nil, err
		}

		result.Rotated = true
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("failed to read current backup: %w", err)
	}

	err = writeAtomic(current, content)
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Rotate shifts the history of base by one: generations beyond the limit are
// pruned oldest first, the rest move up one number and the current file
// becomes v1. Files are only renamed, never rewritten.
func (s *Store) Rotate(base string) error {
	err := validBase(base)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rotate(base)
}

func (s *Store) rotate(base string) error {
	gens, err := s.listGenerations(base)
	if err != nil {
		return err
	}

	for len(gens) > s.generations-1 {
		oldest := gens[len(gens)-1]

		err = os.Remove(oldest.Path)
		if err != nil {
			return fmt.Errorf("failed to prune generation %d: %w", oldest.Number, err)
		}

		s.logger.Debug("pruned backup generation", "base_name", base, "generation", oldest.Number)

		gens = gens[:len(gens)-1]
	}

	for i := len(gens) - 1; i >= 0; i-- {
		target := s.generationPath(base, i+2)
		if gens[i].Path == target {
			continue
		}

		err = os.Rename(gens[i].Path, target)
		if err != nil {
			return fmt.Errorf("failed to shift generation %d: %w", gens[i].Number, err)
		}
	}

	current := s.CurrentPath(base)

	_, err = os.Stat(current)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	err = os.MkdirAll(filepath.Join(s.dir, versionsDir, base), 0o750)
	if err != nil {
		return fmt.Errorf("failed to create versions directory: %w", err)
	}

	err = os.Rename(current, s.generationPath(base, 1))
	if err != nil {
		return fmt.Errorf("failed to move current backup to v1: %w", err)
	}

	return nil
}

// Generations lists the numbered versions of base, most recent (v1) first.
func (s *Store) Generations(base string) ([]Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.listGenerations(base)
}

func (s *Store) listGenerations(base string) ([]Generation, error) {
	dir := filepath.Join(s.dir, versionsDir, base)

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read versions of %s: %w", base, err)
	}

	prefix := base + ".v"
	gens := make([]Generation, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, fileExt) {
			continue
		}

		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, prefix), fileExt))
		if err != nil || n < 1 {
			continue
		}

		gens = append(gens, Generation{Number: n, Path: filepath.Join(dir, name)})
	}

	sort.Slice(gens, func(i, j int) bool { return gens[i].Number < gens[j].Number })

	return gens, nil
}

// Read returns the current file of base.
func (s *Store) Read(base string) ([]byte, error) {
	err := validBase(base)
	if err != nil {
		return nil, err
	}

	return os.ReadFile(s.CurrentPath(base))
}

// Owner returns the engine id recorded in the current file of base, or ""
// when there is no current file.
func (s *Store) Owner(base string) (string, error) {
	data, err := s.Read(base)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}

	if err != nil {
		return "", err
	}

	var doc struct {
		ID json.RawMessage `json:"id"`
	}

	err = json.Unmarshal(data, &doc)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", filepath.Base(s.CurrentPath(base)), err)
	}

	var id string

	if json.Unmarshal(doc.ID, &id) == nil {
		return id, nil
	}

	return strings.TrimSpace(string(doc.ID)), nil
}

// CurrentFiles returns the base names that have a current file, sorted.
func (s *Store) CurrentFiles() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+fileExt))
	if err != nil {
		return nil, err
	}

	bases := make([]string, 0, len(matches))
	for _, match := range matches {
		bases = append(bases, strings.TrimSuffix(filepath.Base(match), fileExt))
	}

	sort.Strings(bases)

	return bases, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	_, err = tmp.Write(data)
	if err != nil {
		_ = tmp.Close()

		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}

	err = tmp.Sync()
	if err != nil {
		_ = tmp.Close()

		return fmt.Errorf("failed to sync %s: %w", filepath.Base(path), err)
	}

	err = tmp.Close()
	if err != nil {
		return err
	}

	err = os.Chmod(tmp.Name(), 0o644) // #nosec G302
	if err != nil {
		return err
	}

	err = os.Rename(tmp.Name(), path)
	if err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}

	return nil
}
