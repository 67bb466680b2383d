// Package blob provides a minimal key/value object store used to hold
// uploaded session files. Keys are slash-separated; the first segment of a
// key is its namespace.
//
// Three implementations are available: GCSBucket (Google Cloud Storage),
// DirBucket (a local directory) and MemoryBucket (in-process, for tests and
// single-instance development).
package blob

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"
)

var (
	// ErrNotExist is returned when an object does not exist.
	ErrNotExist = errors.New("blob: object does not exist")
	// ErrExists is returned by create-if-absent writes when the key is taken.
	ErrExists = errors.New("blob: object already exists")
	// ErrPolicyViolation is returned when a write breaks the bucket policy.
	ErrPolicyViolation = errors.New("blob: policy violation")
	// ErrInvalidKey is returned for empty keys or keys that escape the bucket.
	ErrInvalidKey = errors.New("blob: invalid key")
)

// Bucket is the storage contract the log store relies on.
type Bucket interface {
	// Ensure verifies the bucket exists and creates it when missing.
	Ensure(ctx context.Context) error
	// List returns the objects whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]ObjectAttrs, error)
	// Namespaces returns each first key segment with its last-modified time.
	Namespaces(ctx context.Context) ([]Namespace, error)
	// Read returns the full content of an object, or ErrNotExist.
	Read(ctx context.Context, key string) ([]byte, error)
	// Write stores data under key, honouring opts.
	Write(ctx context.Context, key string, data []byte, opts WriteOptions) error
	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes an object. It reports false, nil when nothing existed.
	Delete(ctx context.Context, key string) (bool, error)
	// DeletePrefix removes every object under prefix and returns how many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	// Close releases client resources.
	Close() error
}

// ObjectAttrs describes one stored object.
type ObjectAttrs struct {
	Key         string
	Size        int64
	ContentType string
	Created     time.Time
	Updated     time.Time
}

// Namespace is a first-level key segment.
type Namespace struct {
	Name    string
	Updated time.Time
}

// WriteOptions controls a single write.
type WriteOptions struct {
	ContentType string
	// IfAbsent makes the write fail with ErrExists instead of overwriting.
	IfAbsent bool
}

// Policy restricts what a bucket accepts. Zero values disable a check.
type Policy struct {
	MaxObjectSize       int64
	AllowedContentTypes []string
}

// Check validates an object of the given size and content type against p.
func (p Policy) Check(size int64, contentType string) error {
	if p.MaxObjectSize > 0 && size > p.MaxObjectSize {
		return fmt.Errorf("%w: object of %d bytes exceeds limit of %d bytes", ErrPolicyViolation, size, p.MaxObjectSize)
	}
	if len(p.AllowedContentTypes) == 0 || contentType == "" {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return fmt.Errorf("%w: malformed content type %q", ErrPolicyViolation, contentType)
	}
	for _, allowed := range p.AllowedContentTypes {
		if strings.EqualFold(mediaType, allowed) {
			return nil
		}
	}
	return fmt.Errorf("%w: content type %q is not allowed", ErrPolicyViolation, mediaType)
}

// ValidateKey rejects keys that are empty, absolute, or contain "." / ".." segments.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

// namespaceOf returns the first segment of key, or "" for top-level keys.
func namespaceOf(key string) string {
	if i := strings.IndexByte(key, '/'); i > 0 {
		return key[:i]
	}
	return ""
}
