package blob

import (
	"context"
	"fmt"

	"github.com/entrhq/transcripts/pkg/config"
)

// Open builds the bucket described by cfg. It does not call Ensure.
func Open(ctx context.Context, cfg config.RemoteConfig, policy Policy) (Bucket, error) {
	switch cfg.Backend {
	case config.BackendGCS:
		return NewGCSBucket(ctx, GCSOptions{
			Bucket:          cfg.Bucket,
			ProjectID:       cfg.ProjectID,
			Location:        cfg.Location,
			Endpoint:        cfg.Endpoint,
			CredentialsFile: cfg.CredentialsFile,
			Policy:          policy,
		})
	case config.BackendFilesystem:
		return NewDirBucket(cfg.Root, policy)
	case config.BackendMemory:
		return NewMemoryBucket(policy), nil
	default:
		return nil, fmt.Errorf("blob: unknown backend %q", cfg.Backend)
	}
}
