package taskdoc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrTaskNotFound is returned when a task document does not exist.
	ErrTaskNotFound = errors.New("task document not found")

	// ErrTaskExists is returned by Create when the task document is already present.
	ErrTaskExists = errors.New("task document already exists")

	// ErrTemplateNotFound is returned by Create when the role template is absent.
	ErrTemplateNotFound = errors.New("task template not found")
)

// InstructionsLabel is the section Create injects instructions into.
const InstructionsLabel = "📋 AGENT INSTRUCTIONS"

const (
	tasksDir     = "agents/tasks"
	templatesDir = "agents/templates"
	statusFile   = "NOW.md"
	statusHeader = "# NOW - Current Project Status\n\n"
	docExt       = ".md"
)

// Store reads and writes task documents under a PM root.
// Writes are whole-file rewrites; concurrent writers to the same document
// are not coordinated and the last writer wins.
type Store struct {
	root string
	now  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for status log timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a Store rooted at pmRoot.
func NewStore(pmRoot string, opts ...Option) *Store {
	s := &Store{root: pmRoot, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the PM root the store is bound to.
func (s *Store) Root() string {
	return s.root
}

// Path resolves the canonical path of a task document.
func (s *Store) Path(ref Ref) string {
	return filepath.Join(s.root, tasksDir, ref.Date, ref.ID+docExt)
}

// RelPath is Path relative to the PM root, as agents are told to open it.
func (s *Store) RelPath(ref Ref) string {
	return filepath.ToSlash(filepath.Join(tasksDir, ref.Date, ref.ID+docExt))
}

// Exists reports whether the task document is present.
func (s *Store) Exists(ref Ref) (bool, error) {
	if err := ref.Validate(); err != nil {
		return false, err
	}
	_, err := os.Stat(s.Path(ref))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat task %s: %w", ref, err)
}

// Read returns the full text of a task document.
func (s *Store) Read(ref Ref) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(s.Path(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrTaskNotFound, s.Path(ref))
		}
		return "", fmt.Errorf("read task %s: %w", ref, err)
	}
	return string(data), nil
}

// Section returns the body of one section of a task document.
func (s *Store) Section(ref Ref, label string) (string, bool, error) {
	doc, err := s.Read(ref)
	if err != nil {
		return "", false, err
	}
	body, ok := FindSection(doc, label)
	return body, ok, nil
}

// UpsertSection rewrites the document with label's body replaced, or appended
// when the document does not have that section yet.
func (s *Store) UpsertSection(ref Ref, label, body string) error {
	doc, err := s.Read(ref)
	if err != nil {
		return err
	}
	return s.write(s.Path(ref), UpsertSection(doc, label, body))
}

// Create instantiates a task document from the role template and injects
// instructions into its Agent Instructions section. kind is "fe"/"frontend"
// or "be"/"backend".
func (s *Store) Create(ref Ref, kind, instructions string) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}

	prefix, err := templatePrefix(kind)
	if err != nil {
		return "", err
	}

	exists, err := s.Exists(ref)
	if err != nil {
		return "", err
	}
	if exists {
		return "", fmt.Errorf("%w: %s", ErrTaskExists, s.Path(ref))
	}

	tplPath := filepath.Join(s.root, templatesDir, prefix+"-task-template.md")
	tpl, err := os.ReadFile(tplPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, tplPath)
		}
		return "", fmt.Errorf("read template: %w", err)
	}

	path := s.Path(ref)
	if err := s.write(path, UpsertSection(string(tpl), InstructionsLabel, instructions)); err != nil {
		return "", err
	}
	return path, nil
}

// StatusPath returns the location of NOW.md under the PM root.
func (s *Store) StatusPath() string {
	return filepath.Join(s.root, statusFile)
}

// Status returns the contents of NOW.md and whether it exists.
func (s *Store) Status() (string, bool, error) {
	data, err := os.ReadFile(s.StatusPath())
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", statusFile, err)
	}
	return string(data), true, nil
}

// AppendStatus appends a timestamped update block to NOW.md under the PM
// root, creating the file with its title when absent.
func (s *Store) AppendStatus(update string) error {
	path := s.StatusPath()
	content := statusHeader
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		content = string(data)
	case !os.IsNotExist(err):
		return fmt.Errorf("read %s: %w", statusFile, err)
	}

	content += "\n\n## Update: " + s.now().UTC().Format(time.RFC3339) + "\n" + strings.TrimRight(update, "\n") + "\n"
	return s.write(path, content)
}

// write replaces path atomically via a temp file in the same directory.
func (s *Store) write(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".task-*.md.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func templatePrefix(kind string) (string, error) {
	switch strings.ToLower(kind) {
	case "fe", "frontend":
		return "fe", nil
	case "be", "backend":
		return "be", nil
	default:
		return "", fmt.Errorf("unknown template kind %q (want fe or be)", kind)
	}
}
