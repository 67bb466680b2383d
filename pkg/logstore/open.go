package logstore

import (
	"context"
	"fmt"

	"github.com/entrhq/transcripts/pkg/blob"
	"github.com/entrhq/transcripts/pkg/config"
	"github.com/entrhq/transcripts/pkg/logging"
)

// UploadPolicy is the bucket policy applied to uploaded session files.
func UploadPolicy(maxSize int64) blob.Policy {
	return blob.Policy{
		MaxObjectSize:       maxSize,
		AllowedContentTypes: []string{UploadContentType, "application/jsonl", "application/json", "text/plain", "application/octet-stream"},
	}
}

// Open builds the store selected by cfg.Mode. bucket may be nil, in which
// case the remote side runs degraded. The returned store implements
// RemoteLogStore in cloud and hybrid modes.
func Open(ctx context.Context, cfg *config.Config, bucket blob.Bucket, visitor VisitorFunc, logger *logging.Logger) (LogStore, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	newLocal := func() (*LocalStore, error) {
		return NewLocalStore(cfg.Local.Root,
			WithIgnorePatterns(cfg.Local.Ignore),
			WithLocalLogger(logger.With("logstore.local")),
		)
	}
	newRemote := func() *RemoteStore {
		return NewRemoteStore(ctx, bucket,
			WithVisitorFunc(visitor),
			WithMaxUploadSize(int64(cfg.Uploads.MaxSize)),
			WithRemoteLogger(logger.With("logstore.remote")),
		)
	}

	switch cfg.Mode {
	case config.ModeLocal:
		return newLocal()
	case config.ModeCloud:
		return newRemote(), nil
	case config.ModeHybrid:
		local, err := newLocal()
		if err != nil {
			return nil, err
		}
		return NewCompositeStore(local, newRemote()), nil
	default:
		return nil, fmt.Errorf("logstore: unknown mode %q", cfg.Mode)
	}
}
