// Package logstore exposes conversation-log archives (line-delimited JSON
// session files) through one read-oriented contract, LogStore, with three
// implementations:
//
//   - LocalStore reads a directory tree of <project>/<session>.jsonl files.
//   - RemoteStore reads files uploaded into a blob.Bucket, isolated per visitor.
//   - CompositeStore merges the two, routing the reserved project id
//     "uploaded" to the remote store and everything else to the local one.
//
// Missing projects, sessions and files are never errors: every read path
// resolves them to an empty result. Malformed lines are skipped silently and
// a file that cannot be read during a listing is logged and skipped.
package logstore

import (
	"context"
	"errors"
)

const (
	// SessionSuffix identifies session log files.
	SessionSuffix = ".jsonl"
	// UploadedProjectID is the reserved id of the pseudo-project holding uploads.
	UploadedProjectID = "uploaded"
	// UploadedProjectName is the display name of the uploads pseudo-project.
	UploadedProjectName = "Uploaded Files"
	// UploadContentType is the content type stored with uploaded objects.
	UploadContentType = "application/x-ndjson"
)

var (
	// ErrStorageNotConfigured is returned by upload operations when no bucket is available.
	ErrStorageNotConfigured = errors.New("logstore: storage not configured")
	// ErrNoVisitor is returned by upload operations when the request carries no visitor id.
	ErrNoVisitor = errors.New("logstore: no visitor session")
	// ErrFileTooLarge is returned when an upload exceeds the configured maximum size.
	ErrFileTooLarge = errors.New("logstore: file too large")
	// ErrUploadNotFound is returned when reading an uploaded file that does not exist.
	ErrUploadNotFound = errors.New("logstore: uploaded file not found")
)

// LogStore is the read contract shared by every backend.
type LogStore interface {
	// ListProjects returns every project visible to the caller.
	ListProjects(ctx context.Context) ([]Project, error)
	// ListSessions returns the sessions of a project, most recently modified first.
	ListSessions(ctx context.Context, projectID string) ([]Session, error)
	// ParseSession returns the messages of one session in file order.
	ParseSession(ctx context.Context, projectID, sessionID string) ([]Message, error)
}

// UploadStore manages the files a visitor uploaded.
type UploadStore interface {
	// SaveUploadedFile stores data and returns the resolved file name.
	SaveUploadedFile(ctx context.Context, data []byte, requestedName string) (string, error)
	// DeleteUploadedFile removes a file and reports whether it existed.
	DeleteUploadedFile(ctx context.Context, fileName string) (bool, error)
	// ListUploadedFiles returns the visitor's files, newest first.
	ListUploadedFiles(ctx context.Context) ([]UploadedFile, error)
	// UploadedFileExists reports whether the visitor has a file named fileName.
	UploadedFileExists(ctx context.Context, fileName string) (bool, error)
	// ReadUploadedFile returns the raw content of an uploaded file.
	ReadUploadedFile(ctx context.Context, fileName string) ([]byte, error)
}

// RemoteLogStore is a LogStore that also accepts uploads.
type RemoteLogStore interface {
	LogStore
	UploadStore
}
