package logstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompositeStore(t *testing.T) {
	root := t.TempDir()
	writeSession(t, root, "-Users-dev-myapp", "local.jsonl", "{\"from\":\"disk\"}\n", time.Time{})

	remote := newRemoteFixture(t)
	c := NewCompositeStore(newLocal(t, root), remote.store)
	ctx := as(visitorA)

	t.Run("local only until something is uploaded", func(t *testing.T) {
		projects, err := c.ListProjects(ctx)
		require.NoError(t, err)
		require.Len(t, projects, 1)
		assert.Equal(t, SourceLocal, projects[0].Source)
	})

	_, err := c.SaveUploadedFile(ctx, []byte("{\"from\":\"upload\"}\n"), "remote.jsonl")
	require.NoError(t, err)

	t.Run("local projects come first", func(t *testing.T) {
		projects, err := c.ListProjects(ctx)
		require.NoError(t, err)
		require.Len(t, projects, 2)
		assert.Equal(t, "-Users-dev-myapp", projects[0].ID)
		assert.Equal(t, UploadedProjectID, projects[1].ID)
	})

	t.Run("routes by project id", func(t *testing.T) {
		sessions, err := c.ListSessions(ctx, UploadedProjectID)
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		assert.Equal(t, SourceUploaded, sessions[0].Source)

		sessions, err = c.ListSessions(ctx, "-Users-dev-myapp")
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		assert.Equal(t, SourceLocal, sessions[0].Source)

		messages, err := c.ParseSession(ctx, UploadedProjectID, "remote")
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.JSONEq(t, `{"from":"upload"}`, string(messages[0]))

		messages, err = c.ParseSession(ctx, "-Users-dev-myapp", "local")
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.JSONEq(t, `{"from":"disk"}`, string(messages[0]))
	})

	t.Run("upload operations go to the remote store", func(t *testing.T) {
		files, err := c.ListUploadedFiles(ctx)
		require.NoError(t, err)
		require.Len(t, files, 1)

		exists, err := c.UploadedFileExists(ctx, "remote.jsonl")
		require.NoError(t, err)
		assert.True(t, exists)

		data, err := c.ReadUploadedFile(ctx, "remote.jsonl")
		require.NoError(t, err)
		assert.Contains(t, string(data), "upload")

		deleted, err := c.DeleteUploadedFile(ctx, "remote.jsonl")
		require.NoError(t, err)
		assert.True(t, deleted)
	})

	t.Run("other visitors see only local projects", func(t *testing.T) {
		projects, err := c.ListProjects(context.Background())
		require.NoError(t, err)
		require.Len(t, projects, 1)
		assert.Equal(t, SourceLocal, projects[0].Source)
	})
}
