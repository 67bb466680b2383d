package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// tmpPrefix marks in-flight writes; such files are never listed.
const tmpPrefix = ".upload-"

// DirBucket stores objects as files below a root directory. Each namespace
// is a subdirectory, so its modification time tracks the latest write or
// delete inside it.
type DirBucket struct {
	root   string
	policy Policy
}

// NewDirBucket creates a bucket rooted at root. The directory is created by Ensure.
func NewDirBucket(root string, policy Policy) (*DirBucket, error) {
	if root == "" {
		return nil, fmt.Errorf("blob: directory bucket root cannot be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("blob: abs root: %w", err)
	}
	return &DirBucket{root: abs, policy: policy}, nil
}

// Root returns the absolute root directory.
func (b *DirBucket) Root() string {
	return b.root
}

// Ensure creates the root directory when missing.
func (b *DirBucket) Ensure(context.Context) error {
	if err := os.MkdirAll(b.root, 0o750); err != nil {
		return fmt.Errorf("blob: init directory %s: %w", b.root, err)
	}
	return nil
}

func (b *DirBucket) pathForKey(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	resolved := filepath.Join(b.root, filepath.FromSlash(key))
	if !strings.HasPrefix(resolved, b.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path traversal detected for key %q", ErrInvalidKey, key)
	}
	return resolved, nil
}

// List walks the directory that contains prefix and returns matching files.
func (b *DirBucket) List(ctx context.Context, prefix string) ([]ObjectAttrs, error) {
	start := b.root
	if dir := path.Dir(prefix + "x"); dir != "." {
		p, err := b.pathForKey(dir)
		if err != nil {
			return nil, err
		}
		start = p
	}

	var out []ObjectAttrs
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tmpPrefix) {
			return nil
		}
		rel, err := filepath.Rel(b.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		out = append(out, ObjectAttrs{
			Key:     key,
			Size:    info.Size(),
			Created: info.ModTime(),
			Updated: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("blob: list %q: %w", prefix, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Namespaces returns the subdirectories of the root with their modification times.
func (b *DirBucket) Namespaces(ctx context.Context) ([]Namespace, error) {
	entries, err := os.ReadDir(b.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("blob: list %s: %w", b.root, err)
	}

	var out []Namespace
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed concurrently
			continue
		}
		out = append(out, Namespace{Name: e.Name(), Updated: info.ModTime()})
	}
	return out, nil
}

// Read returns the file content for key.
func (b *DirBucket) Read(_ context.Context, key string) ([]byte, error) {
	p, err := b.pathForKey(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("blob: read %s: %w", key, err)
	}
	return data, nil
}

// Write persists data atomically via a temporary file. With IfAbsent the
// final step is a hard link, which fails when the key already exists.
func (b *DirBucket) Write(_ context.Context, key string, data []byte, opts WriteOptions) error {
	p, err := b.pathForKey(key)
	if err != nil {
		return err
	}
	if err := b.policy.Check(int64(len(data)), opts.ContentType); err != nil {
		return err
	}

	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("blob: create directory for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("blob: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // best-effort cleanup; a no-op after rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("blob: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("blob: close temp file: %w", err)
	}

	if opts.IfAbsent {
		if err := os.Link(tmpPath, p); err != nil {
			if errors.Is(err, fs.ErrExist) {
				return ErrExists
			}
			return fmt.Errorf("blob: link %s: %w", key, err)
		}
		return nil
	}

	if err := os.Rename(tmpPath, p); err != nil {
		return fmt.Errorf("blob: atomic rename %s: %w", key, err)
	}
	return nil
}

// Exists reports whether a regular file is stored under key.
func (b *DirBucket) Exists(_ context.Context, key string) (bool, error) {
	p, err := b.pathForKey(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("blob: stat %s: %w", key, err)
	}
	return info.Mode().IsRegular(), nil
}

// Delete removes the file for key. The namespace directory is left in place.
func (b *DirBucket) Delete(_ context.Context, key string) (bool, error) {
	p, err := b.pathForKey(key)
	if err != nil {
		return false, err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("blob: delete %s: %w", key, err)
	}
	return true, nil
}

// DeletePrefix removes every object under prefix. A prefix naming a whole
// namespace ("ns/") removes the namespace directory itself.
func (b *DirBucket) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, ErrInvalidKey
	}
	objects, err := b.List(ctx, prefix)
	if err != nil {
		return 0, err
	}

	ns := strings.TrimSuffix(prefix, "/")
	if strings.HasSuffix(prefix, "/") && !strings.Contains(ns, "/") {
		dir, err := b.pathForKey(ns)
		if err != nil {
			return 0, err
		}
		if err := os.RemoveAll(dir); err != nil {
			return 0, fmt.Errorf("blob: remove %s: %w", ns, err)
		}
		return len(objects), nil
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

// Close is a no-op.
func (b *DirBucket) Close() error {
	return nil
}
