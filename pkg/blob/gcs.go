package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"cloud.google.com/go/storage"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSOptions configures a Google Cloud Storage bucket.
type GCSOptions struct {
	Bucket string
	// ProjectID is needed only to create a missing bucket.
	ProjectID string
	Location  string
	// Endpoint points the client at an emulator; authentication is disabled when set.
	Endpoint        string
	CredentialsFile string
	Policy          Policy
}

// GCSBucket implements Bucket on Google Cloud Storage. GCS has no native
// per-object size cap or content type allow-list, so the policy is enforced
// client-side and recorded as bucket labels on creation.
type GCSBucket struct {
	client *storage.Client
	handle *storage.BucketHandle
	opts   GCSOptions
}

// NewGCSBucket creates a storage client for opts.Bucket.
func NewGCSBucket(ctx context.Context, opts GCSOptions) (*GCSBucket, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("blob: gcs bucket name cannot be empty")
	}

	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint), option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("blob: new storage client: %w", err)
	}

	return &GCSBucket{
		client: client,
		handle: client.Bucket(opts.Bucket),
		opts:   opts,
	}, nil
}

func (b *GCSBucket) object(key string) *storage.ObjectHandle {
	return b.handle.Object(key).Retryer(
		storage.WithBackoff(gax.Backoff{
			Initial:    200 * time.Millisecond,
			Max:        5 * time.Second,
			Multiplier: 2,
		}),
		storage.WithPolicy(storage.RetryIdempotent),
	)
}

// Ensure checks the bucket and creates it with the policy labels when missing.
func (b *GCSBucket) Ensure(ctx context.Context) error {
	_, err := b.handle.Attrs(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("blob: get bucket %s: %w", b.opts.Bucket, err)
	}
	if b.opts.ProjectID == "" {
		return fmt.Errorf("blob: bucket %s does not exist and no project id is configured to create it", b.opts.Bucket)
	}

	attrs := &storage.BucketAttrs{
		Location: b.opts.Location,
		Labels: map[string]string{
			"managed-by": "transcripts",
		},
	}
	if b.opts.Policy.MaxObjectSize > 0 {
		attrs.Labels["max-object-size"] = strconv.FormatInt(b.opts.Policy.MaxObjectSize, 10)
	}
	if err := b.handle.Create(ctx, b.opts.ProjectID, attrs); err != nil {
		return fmt.Errorf("blob: create bucket %s: %w", b.opts.Bucket, err)
	}
	return nil
}

// List iterates objects under prefix.
func (b *GCSBucket) List(ctx context.Context, prefix string) ([]ObjectAttrs, error) {
	query := &storage.Query{Prefix: prefix}
	if err := query.SetAttrSelection([]string{"Name", "Size", "ContentType", "Created", "Updated"}); err != nil {
		return nil, fmt.Errorf("blob: build query: %w", err)
	}

	var out []ObjectAttrs
	it := b.handle.Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("blob: list %q: %w", prefix, mapGCSError(err))
		}
		out = append(out, ObjectAttrs{
			Key:         attrs.Name,
			Size:        attrs.Size,
			ContentType: attrs.ContentType,
			Created:     attrs.Created,
			Updated:     attrs.Updated,
		})
	}
	return out, nil
}

// Namespaces lists the whole bucket and reports the newest update per namespace.
func (b *GCSBucket) Namespaces(ctx context.Context) ([]Namespace, error) {
	objects, err := b.List(ctx, "")
	if err != nil {
		return nil, err
	}
	latest := make(map[string]time.Time)
	for _, obj := range objects {
		ns := namespaceOf(obj.Key)
		if ns == "" {
			continue
		}
		if obj.Updated.After(latest[ns]) {
			latest[ns] = obj.Updated
		}
	}
	return sortedNamespaces(latest), nil
}

// Read downloads the object content.
func (b *GCSBucket) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	r, err := b.object(key).NewReader(ctx)
	if err != nil {
		return nil, mapGCSError(err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("blob: read %s: %w", key, mapGCSError(err))
	}
	return data, nil
}

// Write uploads data. IfAbsent maps to a DoesNotExist precondition.
func (b *GCSBucket) Write(ctx context.Context, key string, data []byte, opts WriteOptions) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := b.opts.Policy.Check(int64(len(data)), opts.ContentType); err != nil {
		return err
	}

	obj := b.object(key)
	if opts.IfAbsent {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	}

	w := obj.NewWriter(ctx)
	w.ContentType = opts.ContentType
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("blob: write %s: %w", key, mapGCSError(err))
	}
	if err := w.Close(); err != nil {
		mapped := mapGCSError(err)
		if errors.Is(mapped, ErrExists) {
			return ErrExists
		}
		return fmt.Errorf("blob: write %s: %w", key, mapped)
	}
	return nil
}

// Exists fetches object attributes.
func (b *GCSBucket) Exists(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	_, err := b.object(key).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(mapGCSError(err), ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("blob: stat %s: %w", key, err)
}

// Delete removes the object; a missing object is reported as false, nil.
func (b *GCSBucket) Delete(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	err := b.object(key).Delete(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(mapGCSError(err), ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("blob: delete %s: %w", key, err)
}

// DeletePrefix deletes every object under prefix one by one.
func (b *GCSBucket) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, ErrInvalidKey
	}
	objects, err := b.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, obj := range objects {
		ok, err := b.Delete(ctx, obj.Key)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// Close closes the storage client.
func (b *GCSBucket) Close() error {
	return b.client.Close()
}

// mapGCSError converts storage and HTTP status errors to package sentinels.
func mapGCSError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%w: %v", ErrNotExist, err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", ErrNotExist, err)
		case http.StatusPreconditionFailed:
			return fmt.Errorf("%w: %v", ErrExists, err)
		}
	}
	return err
}
