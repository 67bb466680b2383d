package logstore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/transcripts/pkg/logging"
)

// writeSession creates root/project/name with content and the given mtime.
func writeSession(t *testing.T, root, project, name, content string, modified time.Time) string {
	t.Helper()
	dir := filepath.Join(root, project)
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	if !modified.IsZero() {
		require.NoError(t, os.Chtimes(path, modified, modified))
	}
	return path
}

func newLocal(t *testing.T, root string, opts ...LocalOption) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(root, opts...)
	require.NoError(t, err)
	return s
}

func TestLocalStoreEndToEnd(t *testing.T) {
	root := t.TempDir()
	content := "{\"type\":\"user\",\"text\":\"hi\"}\n{\"type\":\"assistant\",\"text\":\"hello\"}\n\n{\"type\":\"user\",\"text\":\"bye\"}\n"
	path := writeSession(t, root, "-Users-dev-myapp", "abc123.jsonl", content, time.Time{})

	s := newLocal(t, root)
	ctx := context.Background()

	projects, err := s.ListProjects(ctx)
	require.NoError(t, err)
	want := []Project{{
		ID:           "-Users-dev-myapp",
		Name:         "myapp",
		EncodedPath:  "-Users-dev-myapp",
		SessionCount: 1,
		Sessions:     []string{"abc123.jsonl"},
		Source:       SourceLocal,
	}}
	if diff := cmp.Diff(want, projects); diff != "" {
		t.Errorf("ListProjects mismatch (-want +got):\n%s", diff)
	}

	sessions, err := s.ListSessions(ctx, "-Users-dev-myapp")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "abc123", sessions[0].ID)
	assert.Equal(t, "abc123.jsonl", sessions[0].FileName)
	assert.Equal(t, path, sessions[0].FilePath)
	assert.Equal(t, 3, sessions[0].MessageCount)
	assert.Equal(t, int64(len(content)), sessions[0].FileSize)
	assert.Equal(t, SourceLocal, sessions[0].Source)
	assert.Equal(t, sessions[0].ModifiedAt.Local().Format("Jan 02, 2006 03:04 PM"), sessions[0].ModifiedDisplay)

	messages, err := s.ParseSession(ctx, "-Users-dev-myapp", "abc123")
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.JSONEq(t, `{"type":"user","text":"hi"}`, string(messages[0]))
	assert.JSONEq(t, `{"type":"assistant","text":"hello"}`, string(messages[1]))
	assert.JSONEq(t, `{"type":"user","text":"bye"}`, string(messages[2]))
}

func TestLocalStoreListProjects(t *testing.T) {
	ctx := context.Background()

	t.Run("missing root is empty", func(t *testing.T) {
		s := newLocal(t, filepath.Join(t.TempDir(), "does-not-exist"))
		projects, err := s.ListProjects(ctx)
		require.NoError(t, err)
		assert.NotNil(t, projects)
		assert.Empty(t, projects)
	})

	t.Run("skips hidden entries and plain files", func(t *testing.T) {
		root := t.TempDir()
		writeSession(t, root, ".cache", "a.jsonl", "{}\n", time.Time{})
		writeSession(t, root, "-home-me-visible", "a.jsonl", "{}\n", time.Time{})
		require.NoError(t, os.WriteFile(filepath.Join(root, "stray.jsonl"), []byte("{}\n"), 0644))

		projects, err := newLocal(t, root).ListProjects(ctx)
		require.NoError(t, err)
		require.Len(t, projects, 1)
		assert.Equal(t, "-home-me-visible", projects[0].ID)
	})

	t.Run("ignore patterns", func(t *testing.T) {
		root := t.TempDir()
		writeSession(t, root, "-tmp-scratch", "a.jsonl", "{}\n", time.Time{})
		writeSession(t, root, "-home-me-keep", "a.jsonl", "{}\n", time.Time{})

		projects, err := newLocal(t, root, WithIgnorePatterns([]string{"-tmp-*"})).ListProjects(ctx)
		require.NoError(t, err)
		require.Len(t, projects, 1)
		assert.Equal(t, "keep", projects[0].Name)
	})

	t.Run("counts only session files", func(t *testing.T) {
		root := t.TempDir()
		writeSession(t, root, "proj", "b.jsonl", "{}\n", time.Time{})
		writeSession(t, root, "proj", "a.jsonl", "{}\n", time.Time{})
		writeSession(t, root, "proj", "notes.txt", "hello", time.Time{})
		writeSession(t, root, "proj", ".hidden.jsonl", "{}\n", time.Time{})
		require.NoError(t, os.MkdirAll(filepath.Join(root, "proj", "dir.jsonl"), 0755))

		projects, err := newLocal(t, root).ListProjects(ctx)
		require.NoError(t, err)
		require.Len(t, projects, 1)
		assert.Equal(t, []string{"a.jsonl", "b.jsonl"}, projects[0].Sessions)
		assert.Equal(t, 2, projects[0].SessionCount)
	})

	t.Run("ordered by display name", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(root, "-x-zeta"), 0755))
		require.NoError(t, os.MkdirAll(filepath.Join(root, "-y-alpha"), 0755))
		require.NoError(t, os.MkdirAll(filepath.Join(root, "middle"), 0755))

		projects, err := newLocal(t, root).ListProjects(ctx)
		require.NoError(t, err)
		var names []string
		for _, p := range projects {
			names = append(names, p.Name)
			assert.Equal(t, len(p.Sessions), p.SessionCount)
		}
		assert.Equal(t, []string{"alpha", "middle", "zeta"}, names)
	})

	t.Run("invalid ignore pattern", func(t *testing.T) {
		_, err := NewLocalStore(t.TempDir(), WithIgnorePatterns([]string{"[unclosed"}))
		require.Error(t, err)
	})

	t.Run("empty root", func(t *testing.T) {
		_, err := NewLocalStore("")
		require.Error(t, err)
	})
}

func TestLocalStoreListSessions(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	base := time.Date(2025, 3, 4, 14, 15, 0, 0, time.UTC)
	writeSession(t, root, "proj", "old.jsonl", "{}\n", base.Add(-2*time.Hour))
	writeSession(t, root, "proj", "new.jsonl", "{}\n{}\n", base)
	writeSession(t, root, "proj", "tie-b.jsonl", "{}\n", base.Add(-time.Hour))
	writeSession(t, root, "proj", "tie-a.jsonl", "{}\n", base.Add(-time.Hour))

	s := newLocal(t, root)
	sessions, err := s.ListSessions(ctx, "proj")
	require.NoError(t, err)

	var ids []string
	for _, sess := range sessions {
		ids = append(ids, sess.ID)
		assert.Equal(t, sess.ID+SessionSuffix, sess.FileName)
	}
	assert.Equal(t, []string{"new", "tie-a", "tie-b", "old"}, ids)
	assert.Equal(t, 2, sessions[0].MessageCount)

	for _, projectID := range []string{"missing", "", ".", "..", "../proj", "proj/.."} {
		t.Run("unknown project "+projectID, func(t *testing.T) {
			sessions, err := s.ListSessions(ctx, projectID)
			require.NoError(t, err)
			assert.Empty(t, sessions)
		})
	}

	t.Run("project that is a file", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(root, "plain"), []byte("x"), 0644))
		sessions, err := s.ListSessions(ctx, "plain")
		require.NoError(t, err)
		assert.Empty(t, sessions)
	})
}

func TestLocalStoreParseSession(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeSession(t, root, "proj", "mixed.jsonl", "{\"n\":1}\nnot json\n\n  {\"n\":2}  \n[1,2]\n{\"n\":", time.Time{})
	writeSession(t, root, "other", "secret.jsonl", "{\"secret\":true}\n", time.Time{})

	s := newLocal(t, root)

	messages, err := s.ParseSession(ctx, "proj", "mixed")
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, `{"n":1}`, string(messages[0]))
	assert.Equal(t, `{"n":2}`, string(messages[1]))
	assert.Equal(t, `[1,2]`, string(messages[2]))

	tests := []struct {
		name      string
		projectID string
		sessionID string
	}{
		{"missing session", "proj", "nope"},
		{"missing project", "nope", "mixed"},
		{"session traversal", "proj", "../other/secret"},
		{"project traversal", "..", "secret"},
		{"empty ids", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			messages, err := s.ParseSession(ctx, tt.projectID, tt.sessionID)
			require.NoError(t, err)
			assert.NotNil(t, messages)
			assert.Empty(t, messages)
		})
	}
}

func TestLocalStoreLogsSkippedFiles(t *testing.T) {
	root := t.TempDir()
	writeSession(t, root, "proj", "good.jsonl", "{}\n", time.Time{})
	// A dangling symlink is listed by name but cannot be opened.
	require.NoError(t, os.Symlink(filepath.Join(root, "gone"), filepath.Join(root, "proj", "broken.jsonl")))

	var buf bytes.Buffer
	s := newLocal(t, root, WithLocalLogger(logging.New("test", &buf)))

	sessions, err := s.ListSessions(context.Background(), "proj")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "good", sessions[0].ID)
	assert.Contains(t, buf.String(), "broken.jsonl")
}

func TestLocalStoreLongLines(t *testing.T) {
	root := t.TempDir()
	long := `{"text":"` + string(bytes.Repeat([]byte("a"), 256*1024)) + `"}`
	writeSession(t, root, "proj", "long.jsonl", long+"\n{}\n", time.Time{})

	messages, err := newLocal(t, root).ParseSession(context.Background(), "proj", "long")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Len(t, messages[0], len(long))
}
