package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitDestination commits each export to a file in a local clone and
// pushes it.
type GitDestination struct {
	repo    string
	file    string
	branch  string
	message string
}

// NewGitDestination returns a destination writing file on branch of the
// clone at repo.
func NewGitDestination(repo, file, branch string) *GitDestination {
	return &GitDestination{
		repo:    repo,
		file:    file,
		branch:  branch,
		message: "metarev: update revision export",
	}
}

// WithMessage sets the commit message used for each export.
func (d *GitDestination) WithMessage(msg string) *GitDestination {
	d.message = msg
	return d
}

// Write replaces the export file, then commits and pushes when it changed.
func (d *GitDestination) Write(ctx context.Context, data []byte) error {
	if err := d.git(ctx, "checkout", d.branch); err != nil {
		return err
	}
	// The remote branch may not exist yet.
	_ = d.git(ctx, "pull", "--ff-only", "origin", d.branch)

	path := filepath.Join(d.repo, d.file)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	if err := d.git(ctx, "add", d.file); err != nil {
		return err
	}

	changed, err := d.staged(ctx)
	if err != nil || !changed {
		return err
	}
	if err := d.git(ctx, "commit", "-m", d.message); err != nil {
		return err
	}
	return d.git(ctx, "push", "origin", d.branch)
}

// staged reports whether the index differs from HEAD.
func (d *GitDestination) staged(ctx context.Context) (bool, error) {
	err := d.git(ctx, "diff", "--cached", "--quiet")
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return false, nil
	case errors.As(err, &exitErr) && exitErr.ExitCode() == 1:
		return true, nil
	default:
		return false, err
	}
}

// git runs a git subcommand in the clone. Failures carry git's output.
func (d *GitDestination) git(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = d.repo
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(out.String()))
	}
	return nil
}
