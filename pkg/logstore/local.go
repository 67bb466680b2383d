package logstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/entrhq/transcripts/pkg/logging"
)

// LocalStore serves projects from a directory tree:
//
//	<root>/<encoded-project-dir>/<session-id>.jsonl
//
// Hidden entries (leading ".") are never listed.
type LocalStore struct {
	root   string
	filter *projectFilter
	logger *logging.Logger
}

// LocalOption configures a LocalStore.
type LocalOption func(*localOptions)

type localOptions struct {
	ignore []string
	logger *logging.Logger
}

// WithIgnorePatterns hides project directories matching any of the glob patterns.
func WithIgnorePatterns(patterns []string) LocalOption {
	return func(o *localOptions) {
		o.ignore = append(o.ignore, patterns...)
	}
}

// WithLocalLogger sets the logger used to report skipped files.
func WithLocalLogger(logger *logging.Logger) LocalOption {
	return func(o *localOptions) {
		o.logger = logger
	}
}

// NewLocalStore creates a store rooted at root. The root does not need to
// exist; a missing root lists as empty.
func NewLocalStore(root string, opts ...LocalOption) (*LocalStore, error) {
	if root == "" {
		return nil, errors.New("logstore: local root is required")
	}
	o := &localOptions{logger: logging.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	filter, err := newProjectFilter(o.ignore)
	if err != nil {
		return nil, fmt.Errorf("logstore: %w", err)
	}
	return &LocalStore{
		root:   filepath.Clean(root),
		filter: filter,
		logger: o.logger,
	}, nil
}

// Root returns the directory the store reads from.
func (s *LocalStore) Root() string {
	return s.root
}

// ListProjects returns one project per visible directory under the root,
// ordered by display name.
func (s *LocalStore) ListProjects(ctx context.Context) ([]Project, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return []Project{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("logstore: list projects in %s: %w", s.root, err)
	}

	projects := []Project{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || s.filter.Ignored(name) {
			continue
		}
		dir := filepath.Join(s.root, name)
		if !isDir(entry, dir) {
			continue
		}
		sessions, err := sessionFileNames(dir)
		if err != nil {
			s.logger.Warnf("skipping project %s: %v", dir, err)
			continue
		}
		projects = append(projects, newProject(name, DecodeProjectPath(name), sessions, SourceLocal))
	}

	sort.SliceStable(projects, func(i, j int) bool {
		if projects[i].Name != projects[j].Name {
			return projects[i].Name < projects[j].Name
		}
		return projects[i].ID < projects[j].ID
	})
	return projects, nil
}

// ListSessions describes every session file of a project, newest first.
// Unknown projects yield an empty list.
func (s *LocalStore) ListSessions(ctx context.Context, projectID string) ([]Session, error) {
	dir, ok := s.projectDir(projectID)
	if !ok {
		return []Session{}, nil
	}
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return []Session{}, nil
	}
	names, err := sessionFileNames(dir)
	if err != nil {
		return nil, fmt.Errorf("logstore: list sessions of %s: %w", projectID, err)
	}

	sessions := make([]Session, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		session, err := loadLocalSession(filepath.Join(dir, name))
		if err != nil {
			s.logger.Warnf("skipping session file %s: %v", filepath.Join(dir, name), err)
			continue
		}
		sessions = append(sessions, session)
	}
	sortSessions(sessions)
	return sessions, nil
}

// ParseSession returns the valid JSON lines of a session file. Unknown
// projects or sessions yield an empty list.
func (s *LocalStore) ParseSession(ctx context.Context, projectID, sessionID string) ([]Message, error) {
	dir, ok := s.projectDir(projectID)
	if !ok || !validName(sessionID) {
		return []Message{}, nil
	}
	path := filepath.Join(dir, sessionID+SessionSuffix)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("logstore: open session %s: %w", path, err)
	}
	defer f.Close()

	messages, err := parseMessages(f)
	if err != nil {
		return nil, fmt.Errorf("logstore: read session %s: %w", path, err)
	}
	return messages, nil
}

// projectDir maps a project id to its directory, rejecting ids that would
// leave the root.
func (s *LocalStore) projectDir(projectID string) (string, bool) {
	if !validName(projectID) {
		return "", false
	}
	return filepath.Join(s.root, projectID), true
}

// validName accepts a single, non-special path element.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.ContainsRune(name, filepath.Separator)
}

// isDir follows symlinks so linked project directories are listed too.
func isDir(entry fs.DirEntry, path string) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// sessionFileNames returns the sorted names of the session files in dir.
func sessionFileNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || !IsSessionFile(name) || isDir(entry, filepath.Join(dir, name)) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func loadLocalSession(path string) (Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return Session{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Session{}, err
	}
	count, err := countMessages(f)
	if err != nil {
		return Session{}, err
	}
	return newSession(filepath.Base(path), path, info.Size(), info.ModTime(), count, SourceLocal), nil
}
