package logstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/entrhq/transcripts/pkg/blob"
	"github.com/entrhq/transcripts/pkg/logging"
)

const (
	// maxNameAttempts bounds the "<stem>_<n>.jsonl" search for a free upload name.
	maxNameAttempts = 1000
	// defaultCountConcurrency is how many uploaded files are read in parallel when counting messages.
	defaultCountConcurrency = 8
	// fallbackUploadName is used when sanitizing leaves nothing of the requested name.
	fallbackUploadName = "upload"
)

// VisitorFunc extracts the visitor id a request belongs to. An empty id
// means the caller has no namespace.
type VisitorFunc func(ctx context.Context) string

// RemoteStore serves files uploaded into a bucket. Every visitor owns the
// namespace "<visitor-id>/" and can only see its own files, which are
// exposed as the single pseudo-project UploadedProjectID.
//
// A nil bucket puts the store in degraded mode: listings are empty and
// uploads fail with ErrStorageNotConfigured.
type RemoteStore struct {
	bucket           blob.Bucket
	visitor          VisitorFunc
	maxUploadSize    int64
	countConcurrency int
	logger           *logging.Logger
}

// RemoteOption configures a RemoteStore.
type RemoteOption func(*RemoteStore)

// WithVisitorFunc sets how the visitor id is read from a request context.
func WithVisitorFunc(fn VisitorFunc) RemoteOption {
	return func(s *RemoteStore) {
		if fn != nil {
			s.visitor = fn
		}
	}
}

// WithMaxUploadSize rejects uploads larger than n bytes. Zero disables the check.
func WithMaxUploadSize(n int64) RemoteOption {
	return func(s *RemoteStore) {
		s.maxUploadSize = n
	}
}

// WithCountConcurrency bounds parallel reads while building session listings.
func WithCountConcurrency(n int) RemoteOption {
	return func(s *RemoteStore) {
		if n > 0 {
			s.countConcurrency = n
		}
	}
}

// WithRemoteLogger sets the logger used for degraded-mode and skip reports.
func WithRemoteLogger(logger *logging.Logger) RemoteOption {
	return func(s *RemoteStore) {
		s.logger = logger
	}
}

// NewRemoteStore creates a store over bucket and makes sure the bucket
// exists. Provisioning failures are logged and the store keeps going; later
// operations surface their own errors.
func NewRemoteStore(ctx context.Context, bucket blob.Bucket, opts ...RemoteOption) *RemoteStore {
	s := &RemoteStore{
		bucket:           bucket,
		visitor:          func(context.Context) string { return "" },
		countConcurrency: defaultCountConcurrency,
		logger:           logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if bucket == nil {
		s.logger.Warnf("remote storage is not configured; uploads are disabled")
		return s
	}
	if err := bucket.Ensure(ctx); err != nil {
		s.logger.Warnf("bucket provisioning failed, continuing without it: %v", err)
	}
	return s
}

// Configured reports whether a bucket backs the store.
func (s *RemoteStore) Configured() bool {
	return s.bucket != nil
}

// namespace returns the key prefix owned by the caller.
func (s *RemoteStore) namespace(ctx context.Context) (string, error) {
	if s.bucket == nil {
		return "", ErrStorageNotConfigured
	}
	id := s.visitor(ctx)
	if id == "" || !validName(id) {
		return "", ErrNoVisitor
	}
	return id + "/", nil
}

// objectKey resolves fileName inside the caller's namespace.
func (s *RemoteStore) objectKey(ctx context.Context, fileName string) (string, error) {
	prefix, err := s.namespace(ctx)
	if err != nil {
		return "", err
	}
	name := SanitizeFilename(fileName)
	if name == "" {
		return "", fmt.Errorf("logstore: invalid file name %q: %w", fileName, blob.ErrInvalidKey)
	}
	return prefix + name, nil
}

// ListUploadedFiles returns the caller's session files, newest first. An
// unconfigured store, a missing visitor or a failing listing all yield an
// empty list.
func (s *RemoteStore) ListUploadedFiles(ctx context.Context) ([]UploadedFile, error) {
	prefix, err := s.namespace(ctx)
	if err != nil {
		return []UploadedFile{}, nil
	}
	objects, err := s.bucket.List(ctx, prefix)
	if err != nil {
		s.logger.Warnf("listing uploads under %s failed: %v", prefix, err)
		return []UploadedFile{}, nil
	}

	files := []UploadedFile{}
	for _, obj := range objects {
		name := strings.TrimPrefix(obj.Key, prefix)
		if strings.Contains(name, "/") || !IsSessionFile(name) {
			continue
		}
		files = append(files, UploadedFile{
			Name:       name,
			Key:        obj.Key,
			Size:       obj.Size,
			UploadedAt: obj.Created,
		})
	}
	sort.SliceStable(files, func(i, j int) bool {
		if !files[i].UploadedAt.Equal(files[j].UploadedAt) {
			return files[i].UploadedAt.After(files[j].UploadedAt)
		}
		return files[i].Name < files[j].Name
	})
	return files, nil
}

// ListProjects returns the uploads pseudo-project when the caller has at
// least one file, and nothing otherwise.
func (s *RemoteStore) ListProjects(ctx context.Context) ([]Project, error) {
	files, err := s.ListUploadedFiles(ctx)
	if err != nil || len(files) == 0 {
		return []Project{}, err
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return []Project{newProject(UploadedProjectID, UploadedProjectName, names, SourceUploaded)}, nil
}

// ListSessions describes the caller's uploaded files. Any project other
// than UploadedProjectID yields an empty list. Files are read concurrently
// to count their messages; unreadable files are logged and skipped.
func (s *RemoteStore) ListSessions(ctx context.Context, projectID string) ([]Session, error) {
	if projectID != UploadedProjectID {
		return []Session{}, nil
	}
	files, err := s.ListUploadedFiles(ctx)
	if err != nil {
		return nil, err
	}

	counts := make([]int, len(files))
	ok := make([]bool, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.countConcurrency)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := s.bucket.Read(gctx, f.Key)
			if err != nil {
				s.logger.Warnf("skipping uploaded file %s: %v", f.Key, err)
				return nil
			}
			n, err := countMessages(bytes.NewReader(data))
			if err != nil {
				s.logger.Warnf("skipping uploaded file %s: %v", f.Key, err)
				return nil
			}
			counts[i], ok[i] = n, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sessions := make([]Session, 0, len(files))
	for i, f := range files {
		if !ok[i] {
			continue
		}
		sessions = append(sessions, newSession(f.Name, f.Key, f.Size, f.UploadedAt, counts[i], SourceUploaded))
	}
	sortSessions(sessions)
	return sessions, nil
}

// ParseSession returns the valid JSON lines of one uploaded file.
func (s *RemoteStore) ParseSession(ctx context.Context, projectID, sessionID string) ([]Message, error) {
	if projectID != UploadedProjectID || !validName(sessionID) {
		return []Message{}, nil
	}
	prefix, err := s.namespace(ctx)
	if err != nil {
		return []Message{}, nil
	}
	key := prefix + sessionID + SessionSuffix
	data, err := s.bucket.Read(ctx, key)
	if err != nil {
		if !errors.Is(err, blob.ErrNotExist) {
			s.logger.Warnf("reading uploaded file %s failed: %v", key, err)
		}
		return []Message{}, nil
	}
	return parseMessages(bytes.NewReader(data))
}

// SaveUploadedFile stores data in the caller's namespace and returns the
// name it was stored under. The requested name is sanitized and given the
// session suffix; when it is taken, "<stem>_1.jsonl", "<stem>_2.jsonl", ...
// are tried. Every attempt is a create-if-absent write, so concurrent
// uploads of the same name never overwrite each other.
func (s *RemoteStore) SaveUploadedFile(ctx context.Context, data []byte, requestedName string) (string, error) {
	prefix, err := s.namespace(ctx)
	if err != nil {
		return "", err
	}
	if s.maxUploadSize > 0 && int64(len(data)) > s.maxUploadSize {
		return "", fmt.Errorf("%w: %d bytes exceeds the limit of %d bytes", ErrFileTooLarge, len(data), s.maxUploadSize)
	}

	name := SanitizeFilename(requestedName)
	if name == "" {
		name = fallbackUploadName
	}
	if !IsSessionFile(name) {
		name += SessionSuffix
	}
	stem := SessionID(name)

	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		candidate := name
		if attempt > 0 {
			candidate = fmt.Sprintf("%s_%d%s", stem, attempt, SessionSuffix)
		}
		err := s.bucket.Write(ctx, prefix+candidate, data, blob.WriteOptions{
			ContentType: UploadContentType,
			IfAbsent:    true,
		})
		if err == nil {
			s.logger.Infof("stored upload %s (%d bytes)", prefix+candidate, len(data))
			return candidate, nil
		}
		if !errors.Is(err, blob.ErrExists) {
			return "", fmt.Errorf("logstore: upload %s: %w", candidate, err)
		}
	}
	return "", fmt.Errorf("logstore: no free name for %q after %d attempts", name, maxNameAttempts)
}

// DeleteUploadedFile removes one of the caller's files. It reports false
// when the file did not exist.
func (s *RemoteStore) DeleteUploadedFile(ctx context.Context, fileName string) (bool, error) {
	key, err := s.objectKey(ctx, fileName)
	if err != nil {
		if errors.Is(err, blob.ErrInvalidKey) {
			return false, nil
		}
		return false, err
	}
	deleted, err := s.bucket.Delete(ctx, key)
	if err != nil {
		return false, fmt.Errorf("logstore: delete %s: %w", key, err)
	}
	if deleted {
		s.logger.Infof("deleted upload %s", key)
	}
	return deleted, nil
}

// UploadedFileExists reports whether the caller has a file named fileName.
func (s *RemoteStore) UploadedFileExists(ctx context.Context, fileName string) (bool, error) {
	key, err := s.objectKey(ctx, fileName)
	if err != nil {
		if errors.Is(err, blob.ErrInvalidKey) {
			return false, nil
		}
		return false, err
	}
	return s.bucket.Exists(ctx, key)
}

// ReadUploadedFile returns the raw content of one of the caller's files.
func (s *RemoteStore) ReadUploadedFile(ctx context.Context, fileName string) ([]byte, error) {
	key, err := s.objectKey(ctx, fileName)
	if err != nil {
		if errors.Is(err, blob.ErrInvalidKey) {
			return nil, ErrUploadNotFound
		}
		return nil, err
	}
	data, err := s.bucket.Read(ctx, key)
	if errors.Is(err, blob.ErrNotExist) {
		return nil, ErrUploadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("logstore: read %s: %w", key, err)
	}
	return data, nil
}
