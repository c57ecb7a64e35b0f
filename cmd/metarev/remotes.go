package main

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// Remote is a named metarev server the CLI can talk to.
type Remote struct {
	URL     string `toml:"url"`
	Token   string `toml:"token,omitempty"`
	NATSURL string `toml:"nats_url,omitempty"`
	// Actor overrides the default revision author for this server.
	Actor string `toml:"actor,omitempty"`
}

// remoteFile is the on-disk list of remotes.
type remoteFile struct {
	Current string            `toml:"current"`
	Remotes map[string]Remote `toml:"remotes"`
}

var errNoRemote = errors.New("no such remote")

func (f *remoteFile) lookup(name string) (Remote, error) {
	r, ok := f.Remotes[name]
	if !ok {
		return Remote{}, fmt.Errorf("%w: %s", errNoRemote, name)
	}
	return r, nil
}

func (f *remoteFile) sortedNames() []string {
	return slices.Sorted(maps.Keys(f.Remotes))
}

// remotesPath is $METAREV_REMOTES, or remotes.toml in the user config dir.
func remotesPath() (string, error) {
	if p := os.Getenv("METAREV_REMOTES"); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config dir: %w", err)
	}
	return filepath.Join(dir, "metarev", "remotes.toml"), nil
}

// readRemotes loads the remotes file. A missing file is an empty list.
func readRemotes() (*remoteFile, error) {
	path, err := remotesPath()
	if err != nil {
		return nil, err
	}
	f := &remoteFile{}
	if _, err := toml.DecodeFile(path, f); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if f.Remotes == nil {
		f.Remotes = make(map[string]Remote)
	}
	return f, nil
}

// write replaces the remotes file. It can hold tokens, so it is private
// to the user.
func (f *remoteFile) write() error {
	path, err := remotesPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(out).Encode(f); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("encoding remotes: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// editRemotes reads the remotes file, applies fn and writes the result
// back unless fn fails.
func editRemotes(fn func(*remoteFile) error) error {
	f, err := readRemotes()
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		return err
	}
	return f.write()
}

// currentRemote is the remote selected with "metarev remote use", read
// once per process. The zero Remote means none.
var currentRemote = sync.OnceValue(func() Remote {
	f, err := readRemotes()
	if err != nil || f.Current == "" {
		return Remote{}
	}
	return f.Remotes[f.Current]
})

// redact shows the first n bytes of a secret. The rest becomes "..." or,
// with a fill string, one fill per hidden byte.
func redact(secret string, n int, fill string) string {
	if len(secret) <= n {
		return secret
	}
	if fill == "" {
		return secret[:n] + "..."
	}
	return secret[:n] + strings.Repeat(fill, len(secret)-n)
}
