// Package main runs the transcripts server, which serves conversation-log
// archives from a local directory tree, from uploaded files held in object
// storage, or from both.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	"github.com/entrhq/transcripts/pkg/api"
	"github.com/entrhq/transcripts/pkg/blob"
	"github.com/entrhq/transcripts/pkg/config"
	"github.com/entrhq/transcripts/pkg/logging"
	"github.com/entrhq/transcripts/pkg/logstore"
	"github.com/entrhq/transcripts/pkg/visitor"
)

const (
	version         = "0.1.0"
	shutdownTimeout = 10 * time.Second
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigFile  string
	Addr        string
	Mode        string
	ShowVersion bool
}

func main() {
	cli := parseFlags()

	if cli.ShowVersion {
		fmt.Printf("transcripts v%s\n", version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cli); err != nil {
		stop()
		log.Printf("transcripts failed: %v", err)
		os.Exit(1)
	}
}

func parseFlags() *CLIConfig {
	cli := &CLIConfig{}

	flag.StringVar(&cli.ConfigFile, "config", "", "Path to configuration file (YAML)")
	flag.StringVar(&cli.Addr, "addr", "", "Listen address (overrides config)")
	flag.StringVar(&cli.Mode, "mode", "", "Storage mode: local, cloud or hybrid (overrides config)")
	flag.BoolVar(&cli.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "transcripts - conversation log archive server\n\n")
		fmt.Fprintf(os.Stderr, "Usage: transcripts [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Browse ~/.claude/projects on :5000\n")
		fmt.Fprintf(os.Stderr, "  transcripts\n\n")
		fmt.Fprintf(os.Stderr, "  # Accept uploads into a GCS bucket\n")
		fmt.Fprintf(os.Stderr, "  TRANSCRIPTS_BUCKET=my-bucket transcripts -mode cloud\n\n")
	}

	flag.Parse()
	return cli
}

func loadConfig(cli *CLIConfig) (*config.Config, error) {
	cfg, err := config.Load(cli.ConfigFile)
	if err != nil {
		return nil, err
	}
	if cli.Addr != "" {
		cfg.Server.Addr = cli.Addr
	}
	if cli.Mode != "" {
		cfg.Mode = config.Mode(cli.Mode)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	if cfg.Logging.Dir != "" {
		logging.SetLogDirectory(cfg.Logging.Dir)
	}
	logger, err := logging.NewLogger("transcripts")
	if err != nil {
		return nil, err
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)
	return logger, nil
}

// openBucket returns nil when the deployment has no usable remote storage;
// the store then runs degraded.
func openBucket(ctx context.Context, cfg *config.Config, logger *logging.Logger) blob.Bucket {
	if !cfg.UsesRemote() {
		return nil
	}
	if !cfg.RemoteConfigured() {
		logger.Warnf("remote storage is not configured (backend %q); uploads are disabled", cfg.Remote.Backend)
		return nil
	}
	bucket, err := blob.Open(ctx, cfg.Remote, logstore.UploadPolicy(int64(cfg.Uploads.MaxSize)))
	if err != nil {
		logger.Warnf("failed to open %s bucket: %v; uploads are disabled", cfg.Remote.Backend, err)
		return nil
	}
	return bucket
}

func run(ctx context.Context, cli *CLIConfig) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logger.Close()
	logger.Infof("starting transcripts v%s in %s mode (log: %s)", version, cfg.Mode, logger.LogPath())

	bucket := openBucket(ctx, cfg, logger)
	if bucket != nil {
		defer bucket.Close()
	}

	store, err := logstore.Open(ctx, cfg, bucket, visitor.FromContext, logger)
	if err != nil {
		return fmt.Errorf("failed to open log store: %w", err)
	}

	var sweeper *logstore.Sweeper
	if bucket != nil {
		sweeper = logstore.NewSweeper(bucket, cfg.Uploads.Retention, cfg.Uploads.SweepInterval, logger.With("sweeper"))
	}

	server := api.New(api.Options{
		Config:   cfg,
		Store:    store,
		Registry: visitor.NewRegistry(visitor.DefaultKey),
		Sweeper:  sweeper,
		Logger:   logger.With("api"),
	})

	return serve(ctx, cfg.Server, server.Handler(), logger)
}

// serve listens until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, cfg config.ServerConfig, handler http.Handler, logger *logging.Logger) error {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}
	if cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.MaxConnections)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Infof("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
