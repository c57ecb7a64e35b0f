// Package config reads the server settings from METAREV_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

type Config struct {
	DatabaseURL string     // METAREV_DATABASE_URL; empty keeps posts in memory
	HTTPAddr    string     // METAREV_HTTP_ADDR
	GRPCAddr    string     // METAREV_GRPC_ADDR; health and reflection only
	NATSURL     string     // METAREV_NATS_URL; empty disables the event bus
	AuthToken   string     // METAREV_AUTH_TOKEN; empty disables auth
	FieldsFile  string     // METAREV_FIELDS_FILE, TOML or YAML
	FormSecret  string     // METAREV_FORM_SECRET; empty means random per process
	LogLevel    slog.Level // METAREV_LOG_LEVEL

	// LockTTL is how long an edit lock lives without a heartbeat
	// (METAREV_LOCK_TTL).
	LockTTL time.Duration

	// Export of revision history. Zero SyncInterval turns it off; so does
	// configuring no destination.
	SyncInterval   time.Duration // METAREV_SYNC_INTERVAL
	SyncS3Bucket   string        // METAREV_SYNC_S3_BUCKET
	SyncS3Endpoint string        // METAREV_SYNC_S3_ENDPOINT, for MinIO and the like
	SyncS3Region   string        // METAREV_SYNC_S3_REGION
	SyncS3Key      string        // METAREV_SYNC_S3_KEY
	SyncGitRepo    string        // METAREV_SYNC_GIT_REPO, path of a local clone
	SyncGitFile    string        // METAREV_SYNC_GIT_FILE
	SyncGitBranch  string        // METAREV_SYNC_GIT_BRANCH
}

// Defaults for unset variables.
const (
	DefaultHTTPAddr     = ":8080"
	DefaultGRPCAddr     = ":9090"
	DefaultLockTTL      = 150 * time.Second
	DefaultSyncInterval = 3 * time.Minute
)

// Load builds a Config from the environment. Every malformed variable is
// reported, not just the first.
func Load() (*Config, error) {
	var env loader
	c := &Config{
		DatabaseURL: env.str("METAREV_DATABASE_URL", ""),
		HTTPAddr:    env.str("METAREV_HTTP_ADDR", DefaultHTTPAddr),
		GRPCAddr:    env.str("METAREV_GRPC_ADDR", DefaultGRPCAddr),
		NATSURL:     env.str("METAREV_NATS_URL", ""),
		AuthToken:   env.str("METAREV_AUTH_TOKEN", ""),
		FieldsFile:  env.str("METAREV_FIELDS_FILE", ""),
		FormSecret:  env.str("METAREV_FORM_SECRET", ""),
		LogLevel:    env.level("METAREV_LOG_LEVEL", slog.LevelInfo),
		LockTTL:     env.duration("METAREV_LOCK_TTL", DefaultLockTTL),

		SyncInterval:   env.duration("METAREV_SYNC_INTERVAL", DefaultSyncInterval),
		SyncS3Bucket:   env.str("METAREV_SYNC_S3_BUCKET", ""),
		SyncS3Endpoint: env.str("METAREV_SYNC_S3_ENDPOINT", ""),
		SyncS3Region:   env.str("METAREV_SYNC_S3_REGION", "us-east-1"),
		SyncS3Key:      env.str("METAREV_SYNC_S3_KEY", "metarev/revisions.jsonl"),
		SyncGitRepo:    env.str("METAREV_SYNC_GIT_REPO", ""),
		SyncGitFile:    env.str("METAREV_SYNC_GIT_FILE", "metarev.jsonl"),
		SyncGitBranch:  env.str("METAREV_SYNC_GIT_BRANCH", "main"),
	}
	if c.LockTTL == 0 {
		env.fail("METAREV_LOCK_TTL", errors.New("must be positive"))
	}
	if err := errors.Join(env.errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// SyncEnabled reports whether the export should run.
func (c *Config) SyncEnabled() bool {
	if c.SyncInterval <= 0 {
		return false
	}
	return c.SyncS3Bucket != "" || c.SyncGitRepo != ""
}

// loader reads variables and remembers what failed to parse.
type loader struct {
	errs []error
}

func (l *loader) fail(key string, err error) {
	l.errs = append(l.errs, fmt.Errorf("%s: %w", key, err))
}

func (l *loader) str(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func (l *loader) duration(key string, fallback time.Duration) time.Duration {
	raw := l.str(key, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		l.fail(key, err)
		return fallback
	}
	if d < 0 {
		l.fail(key, errors.New("must not be negative"))
		return fallback
	}
	return d
}

func (l *loader) level(key string, fallback slog.Level) slog.Level {
	raw := l.str(key, "")
	if raw == "" {
		return fallback
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(raw)); err != nil {
		l.fail(key, err)
		return fallback
	}
	return lvl
}
