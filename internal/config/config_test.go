package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

// isolate blanks every variable Load reads, so the host environment does
// not leak into a test.
func isolate(t *testing.T, env map[string]string) {
	t.Helper()
	for _, key := range []string{
		"METAREV_DATABASE_URL", "METAREV_HTTP_ADDR", "METAREV_GRPC_ADDR", "METAREV_NATS_URL",
		"METAREV_AUTH_TOKEN", "METAREV_FIELDS_FILE", "METAREV_FORM_SECRET",
		"METAREV_LOG_LEVEL", "METAREV_LOCK_TTL",
		"METAREV_SYNC_INTERVAL", "METAREV_SYNC_S3_BUCKET", "METAREV_SYNC_S3_ENDPOINT",
		"METAREV_SYNC_S3_REGION", "METAREV_SYNC_S3_KEY", "METAREV_SYNC_GIT_REPO",
		"METAREV_SYNC_GIT_FILE", "METAREV_SYNC_GIT_BRANCH",
	} {
		t.Setenv(key, env[key])
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t, nil)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	want := Config{
		HTTPAddr:      ":8080",
		GRPCAddr:      ":9090",
		LogLevel:      slog.LevelInfo,
		LockTTL:       150 * time.Second,
		SyncInterval:  3 * time.Minute,
		SyncS3Region:  "us-east-1",
		SyncS3Key:     "metarev/revisions.jsonl",
		SyncGitFile:   "metarev.jsonl",
		SyncGitBranch: "main",
	}
	if *cfg != want {
		t.Errorf("Load() = %+v\nwant %+v", *cfg, want)
	}
	if cfg.SyncEnabled() {
		t.Error("sync enabled without a destination")
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	isolate(t, map[string]string{
		"METAREV_DATABASE_URL":     "postgres://db:5432/metarev",
		"METAREV_HTTP_ADDR":        ":3000",
		"METAREV_GRPC_ADDR":        "127.0.0.1:3001",
		"METAREV_NATS_URL":         "nats://localhost:4222",
		"METAREV_AUTH_TOKEN":       "s3cret",
		"METAREV_FIELDS_FILE":      "/etc/metarev/fields.yaml",
		"METAREV_FORM_SECRET":      "form",
		"METAREV_LOG_LEVEL":        "DEBUG",
		"METAREV_LOCK_TTL":         "30s",
		"METAREV_SYNC_INTERVAL":    "10m",
		"METAREV_SYNC_S3_BUCKET":   "history",
		"METAREV_SYNC_S3_ENDPOINT": "http://minio:9000",
		"METAREV_SYNC_S3_REGION":   "eu-west-1",
		"METAREV_SYNC_S3_KEY":      "blog/history.jsonl",
		"METAREV_SYNC_GIT_REPO":    "/srv/history",
		"METAREV_SYNC_GIT_FILE":    "blog.jsonl",
		"METAREV_SYNC_GIT_BRANCH":  " export ",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	want := Config{
		DatabaseURL:    "postgres://db:5432/metarev",
		HTTPAddr:       ":3000",
		GRPCAddr:       "127.0.0.1:3001",
		NATSURL:        "nats://localhost:4222",
		AuthToken:      "s3cret",
		FieldsFile:     "/etc/metarev/fields.yaml",
		FormSecret:     "form",
		LogLevel:       slog.LevelDebug,
		LockTTL:        30 * time.Second,
		SyncInterval:   10 * time.Minute,
		SyncS3Bucket:   "history",
		SyncS3Endpoint: "http://minio:9000",
		SyncS3Region:   "eu-west-1",
		SyncS3Key:      "blog/history.jsonl",
		SyncGitRepo:    "/srv/history",
		SyncGitFile:    "blog.jsonl",
		SyncGitBranch:  "export",
	}
	if *cfg != want {
		t.Errorf("Load() = %+v\nwant %+v", *cfg, want)
	}
	if !cfg.SyncEnabled() {
		t.Error("sync disabled with two destinations")
	}
}

func TestLoad_ReportsEveryBadVariable(t *testing.T) {
	isolate(t, map[string]string{
		"METAREV_LOG_LEVEL":     "loud",
		"METAREV_SYNC_INTERVAL": "-1m",
		"METAREV_LOCK_TTL":      "soon",
	})

	_, err := Load()
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, key := range []string{"METAREV_LOG_LEVEL", "METAREV_SYNC_INTERVAL", "METAREV_LOCK_TTL"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error does not mention %s: %v", key, err)
		}
	}
}

func TestLoad_ZeroLockTTL(t *testing.T) {
	isolate(t, map[string]string{"METAREV_LOCK_TTL": "0s"})
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "must be positive") {
		t.Fatalf("err = %v", err)
	}
}

func TestSyncEnabled(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  Config
		want bool
	}{
		{"no destination", Config{SyncInterval: time.Minute}, false},
		{"s3", Config{SyncInterval: time.Minute, SyncS3Bucket: "b"}, true},
		{"git", Config{SyncInterval: time.Minute, SyncGitRepo: "/r"}, true},
		{"zero interval", Config{SyncS3Bucket: "b", SyncGitRepo: "/r"}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cfg.SyncEnabled(); got != tc.want {
				t.Errorf("SyncEnabled() = %v, want %v", got, tc.want)
			}
		})
	}
}
