package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/alfredjeanlab/metarev/internal/client"
	"github.com/alfredjeanlab/metarev/internal/config"
)

const testFieldsFile = `
[[fields]]
content_type = "post"
kind = "meta"
name = "color"
label = "Color"

[[fields]]
content_type = "post"
kind = "taxonomy"
name = "category"
label = "Categories"
`

// startTestApp wires a full in-memory server the way serve does and
// returns its URL.
func startTestApp(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fields.toml")
	if err := os.WriteFile(path, []byte(testFieldsFile), 0o644); err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := newApp(&config.Config{FieldsFile: path, FormSecret: "test-secret"}, logger)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	srv := httptest.NewServer(a.server.NewHTTPHandler(""))
	t.Cleanup(func() {
		srv.Close()
		a.close()
	})
	return srv.URL
}

// runCLI executes one metarev command against serverURL and returns its
// output.
func runCLI(t *testing.T, serverURL string, args ...string) string {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(append([]string{"--url", serverURL, "--no-color", "--actor", "alice"}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("metarev %s: %v\n%s", strings.Join(args, " "), err, buf.String())
	}
	return buf.String()
}

var createdPattern = regexp.MustCompile(`Created post (\d+)`)

func TestCLI_RevisionLifecycle(t *testing.T) {
	serverURL := startTestApp(t)
	ctx := context.Background()
	c := client.NewHTTPClient(serverURL, "")

	out := runCLI(t, serverURL, "create", "Hello", "-c", "first draft", "-m", "color=red", "--terms", "category=news")
	m := createdPattern.FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("unexpected create output %q", out)
	}
	postID, _ := strconv.ParseInt(m[1], 10, 64)

	out = runCLI(t, serverURL, "update", m[1], "--title", "Hello again", "-m", "color=blue")
	if !strings.Contains(out, "Title:       Hello again") || !strings.Contains(out, "color: blue") {
		t.Fatalf("unexpected update output:\n%s", out)
	}

	revs, err := c.ListRevisions(ctx, postID)
	if err != nil {
		t.Fatal(err)
	}
	if len(revs) != 1 {
		t.Fatalf("expected one revision after the update, got %d", len(revs))
	}
	revID := strconv.FormatInt(revs[0].ID, 10)

	out = runCLI(t, serverURL, "revisions", m[1])
	if !strings.Contains(out, "REVISION") || !strings.Contains(out, revID) {
		t.Errorf("expected revision %s in list:\n%s", revID, out)
	}

	out = runCLI(t, serverURL, "diff", revID, m[1])
	for _, want := range []string{"Title:", "-Hello", "+Hello again", "Color:", "-red", "+blue"} {
		if !strings.Contains(out, want) {
			t.Errorf("diff output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Categories:") {
		t.Errorf("unchanged taxonomy should not be listed:\n%s", out)
	}

	out = runCLI(t, serverURL, "restore", revID)
	if want := fmt.Sprintf("Restored post %d to revision %s", postID, revID); !strings.Contains(out, want) {
		t.Fatalf("restore output %q, want %q", out, want)
	}

	out = runCLI(t, serverURL, "show", m[1])
	for _, want := range []string{"Title:       Hello\n", "color: red", "category: news"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}

	revs, err = c.ListRevisions(ctx, postID)
	if err != nil {
		t.Fatal(err)
	}
	if len(revs) != 2 {
		t.Fatalf("expected restore to save the pre-restore state, got %d revisions", len(revs))
	}
	if got := revs[0].Meta["color"]; len(got) != 1 || got[0] != "blue" {
		t.Errorf("newest revision color = %v, want [blue]", got)
	}
}

func TestCLI_TypesAndHealth(t *testing.T) {
	serverURL := startTestApp(t)

	out := runCLI(t, serverURL, "types")
	if !strings.Contains(out, "post") || !strings.Contains(out, "color") {
		t.Errorf("expected post type with its color field:\n%s", out)
	}

	out = runCLI(t, serverURL, "health")
	if !strings.Contains(out, "ok") {
		t.Errorf("unexpected health output %q", out)
	}
}

func TestCLI_HealthGRPC(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := newApp(&config.Config{FormSecret: "test-secret"}, logger)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	srv := httptest.NewServer(a.server.NewHTTPHandler(""))
	grpcServer, _ := a.server.NewGRPCServer()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = grpcServer.Serve(lis) }()
	t.Cleanup(func() {
		grpcServer.Stop()
		srv.Close()
		a.close()
		_ = healthCmd.Flags().Set("grpc", "")
	})

	out := runCLI(t, srv.URL, "health", "--grpc", lis.Addr().String())
	if want := "grpc " + lis.Addr().String() + ": serving"; !strings.Contains(out, want) {
		t.Errorf("health output %q, want %q", out, want)
	}
}
