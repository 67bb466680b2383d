package logstore

import "context"

// CompositeStore merges a local and a remote store. Listings show local
// projects first; the reserved UploadedProjectID is routed to the remote
// store and every other id to the local one. Upload operations always go to
// the remote store.
type CompositeStore struct {
	local  LogStore
	remote RemoteLogStore
}

// NewCompositeStore combines local and remote.
func NewCompositeStore(local LogStore, remote RemoteLogStore) *CompositeStore {
	return &CompositeStore{local: local, remote: remote}
}

func (c *CompositeStore) route(projectID string) LogStore {
	if projectID == UploadedProjectID {
		return c.remote
	}
	return c.local
}

// ListProjects returns local projects followed by remote ones.
func (c *CompositeStore) ListProjects(ctx context.Context) ([]Project, error) {
	local, err := c.local.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	remote, err := c.remote.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	projects := make([]Project, 0, len(local)+len(remote))
	projects = append(projects, local...)
	return append(projects, remote...), nil
}

func (c *CompositeStore) ListSessions(ctx context.Context, projectID string) ([]Session, error) {
	return c.route(projectID).ListSessions(ctx, projectID)
}

func (c *CompositeStore) ParseSession(ctx context.Context, projectID, sessionID string) ([]Message, error) {
	return c.route(projectID).ParseSession(ctx, projectID, sessionID)
}

func (c *CompositeStore) SaveUploadedFile(ctx context.Context, data []byte, requestedName string) (string, error) {
	return c.remote.SaveUploadedFile(ctx, data, requestedName)
}

func (c *CompositeStore) DeleteUploadedFile(ctx context.Context, fileName string) (bool, error) {
	return c.remote.DeleteUploadedFile(ctx, fileName)
}

func (c *CompositeStore) ListUploadedFiles(ctx context.Context) ([]UploadedFile, error) {
	return c.remote.ListUploadedFiles(ctx)
}

func (c *CompositeStore) UploadedFileExists(ctx context.Context, fileName string) (bool, error) {
	return c.remote.UploadedFileExists(ctx, fileName)
}

func (c *CompositeStore) ReadUploadedFile(ctx context.Context, fileName string) ([]byte, error) {
	return c.remote.ReadUploadedFile(ctx, fileName)
}
