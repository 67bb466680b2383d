package blob

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memObject struct {
	data        []byte
	contentType string
	created     time.Time
	updated     time.Time
}

// MemoryBucket keeps objects in process memory. It is safe for concurrent use.
type MemoryBucket struct {
	policy  Policy
	now     func() time.Time
	objects map[string]memObject
	mu      sync.RWMutex
}

// NewMemoryBucket creates an empty in-memory bucket.
func NewMemoryBucket(policy Policy) *MemoryBucket {
	return &MemoryBucket{
		policy:  policy,
		now:     time.Now,
		objects: make(map[string]memObject),
	}
}

// SetClock replaces the time source used for object timestamps.
func (b *MemoryBucket) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// Ensure always succeeds.
func (b *MemoryBucket) Ensure(context.Context) error {
	return nil
}

// List returns the objects under prefix ordered by key.
func (b *MemoryBucket) List(ctx context.Context, prefix string) ([]ObjectAttrs, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []ObjectAttrs
	for key, obj := range b.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, obj.attrs(key))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Namespaces groups objects by first key segment.
func (b *MemoryBucket) Namespaces(ctx context.Context) ([]Namespace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	latest := make(map[string]time.Time)
	for key, obj := range b.objects {
		ns := namespaceOf(key)
		if ns == "" {
			continue
		}
		if obj.updated.After(latest[ns]) {
			latest[ns] = obj.updated
		}
	}
	return sortedNamespaces(latest), nil
}

// Read returns a copy of the object content.
func (b *MemoryBucket) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, ok := b.objects[key]
	if !ok {
		return nil, ErrNotExist
	}
	return append([]byte(nil), obj.data...), nil
}

// Write stores a copy of data.
func (b *MemoryBucket) Write(ctx context.Context, key string, data []byte, opts WriteOptions) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := b.policy.Check(int64(len(data)), opts.ContentType); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	created := now
	if existing, ok := b.objects[key]; ok {
		if opts.IfAbsent {
			return ErrExists
		}
		created = existing.created
	}
	b.objects[key] = memObject{
		data:        append([]byte(nil), data...),
		contentType: opts.ContentType,
		created:     created,
		updated:     now,
	}
	return nil
}

// Exists reports whether key is stored.
func (b *MemoryBucket) Exists(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.objects[key]
	return ok, ctx.Err()
}

// Delete removes key.
func (b *MemoryBucket) Delete(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.objects[key]; !ok {
		return false, nil
	}
	delete(b.objects, key)
	return true, nil
}

// DeletePrefix removes every key under prefix.
func (b *MemoryBucket) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, ErrInvalidKey
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for key := range b.objects {
		if strings.HasPrefix(key, prefix) {
			delete(b.objects, key)
			removed++
		}
	}
	return removed, nil
}

// Close is a no-op.
func (b *MemoryBucket) Close() error {
	return nil
}

func (o memObject) attrs(key string) ObjectAttrs {
	return ObjectAttrs{
		Key:         key,
		Size:        int64(len(o.data)),
		ContentType: o.contentType,
		Created:     o.created,
		Updated:     o.updated,
	}
}

func sortedNamespaces(latest map[string]time.Time) []Namespace {
	out := make([]Namespace, 0, len(latest))
	for name, updated := range latest {
		out = append(out, Namespace{Name: name, Updated: updated})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
