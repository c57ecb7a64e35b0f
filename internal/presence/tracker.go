// Package presence tracks which actors currently have a post open on the
// edit screen.
//
// The server records a heartbeat every time the edit form is rendered or
// submitted. A post is locked by the most recent actor whose heartbeat is
// younger than the stale threshold; other actors see a takeover warning.
// A background reaper releases locks whose holders stopped sending
// heartbeats and evicts released entries after a while.
package presence

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultStaleAfter is how long a lock survives without a heartbeat.
const DefaultStaleAfter = 150 * time.Second

// Entry is a snapshot of one actor's lock on a post.
type Entry struct {
	PostID     int64     `json:"post_id"`
	Actor      string    `json:"actor"`
	Screen     string    `json:"screen,omitempty"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	IdleSecs   float64   `json:"idle_secs"`
	Heartbeats int64     `json:"heartbeats"`
	Released   bool      `json:"released,omitempty"`
	ReleasedAt time.Time `json:"released_at,omitempty"`
}

// Heartbeat is what the server knows about an actor touching a post.
type Heartbeat struct {
	PostID int64
	Actor  string
	Screen string // e.g. "post-edit"
}

// ReaperConfig configures the background lock reaper.
type ReaperConfig struct {
	// StaleAfter is how long a holder may stay silent before the lock is
	// released. Default: DefaultStaleAfter.
	StaleAfter time.Duration

	// EvictAfter is how long a released entry is kept for the roster.
	// Default: 10 minutes.
	EvictAfter time.Duration

	// SweepInterval is how often the reaper scans for stale locks.
	// Default: 30 seconds.
	SweepInterval time.Duration

	// OnRelease is called for each lock the reaper releases, outside the lock.
	OnRelease func(postID int64, actor string)
}

type key struct {
	postID int64
	actor  string
}

// Tracker maintains an in-memory table of edit locks.
type Tracker struct {
	mu         sync.RWMutex
	entries    map[key]*lockState
	staleAfter time.Duration
	now        func() time.Time

	reaperStop chan struct{}
	reaperDone chan struct{}
}

type lockState struct {
	screen     string
	firstSeen  time.Time
	lastSeen   time.Time
	heartbeats int64
	released   bool
	releasedAt time.Time
}

// New creates a new tracker. A zero staleAfter uses DefaultStaleAfter.
func New(staleAfter time.Duration) *Tracker {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Tracker{
		entries:    make(map[key]*lockState),
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Touch records a heartbeat and returns the other actor currently holding
// the post, or "" when the caller is alone.
func (t *Tracker) Touch(hb Heartbeat) string {
	if hb.Actor == "" || hb.PostID == 0 {
		return ""
	}

	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	other := t.holderLocked(hb.PostID, hb.Actor, now)

	k := key{hb.PostID, hb.Actor}
	state, ok := t.entries[k]
	if !ok {
		state = &lockState{firstSeen: now}
		t.entries[k] = state
	}
	if state.released {
		slog.Info("presence: lock reacquired", "post_id", hb.PostID, "actor", hb.Actor)
		state.released = false
		state.releasedAt = time.Time{}
	}
	state.lastSeen = now
	state.heartbeats++
	if hb.Screen != "" {
		state.screen = hb.Screen
	}
	return other
}

// Holder returns the most recently active actor other than exclude holding
// a live lock on the post.
func (t *Tracker) Holder(postID int64, exclude string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.holderLocked(postID, exclude, t.now())
}

func (t *Tracker) holderLocked(postID int64, exclude string, now time.Time) string {
	var (
		holder string
		latest time.Time
	)
	for k, state := range t.entries {
		if k.postID != postID || k.actor == exclude || state.released {
			continue
		}
		if now.Sub(state.lastSeen) > t.staleAfter {
			continue
		}
		if state.lastSeen.After(latest) {
			holder, latest = k.actor, state.lastSeen
		}
	}
	return holder
}

// Release drops the actor's lock on the post.
func (t *Tracker) Release(postID int64, actor string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if state, ok := t.entries[key{postID, actor}]; ok && !state.released {
		state.released = true
		state.releasedAt = t.now()
	}
}

// Roster returns a snapshot of the locks on postID (0 for all posts),
// sorted by most recently active.
func (t *Tracker) Roster(postID int64) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	entries := make([]Entry, 0, len(t.entries))
	for k, state := range t.entries {
		if postID != 0 && k.postID != postID {
			continue
		}
		entries = append(entries, Entry{
			PostID:     k.postID,
			Actor:      k.actor,
			Screen:     state.screen,
			FirstSeen:  state.firstSeen,
			LastSeen:   state.lastSeen,
			IdleSecs:   now.Sub(state.lastSeen).Seconds(),
			Heartbeats: state.heartbeats,
			Released:   state.released,
			ReleasedAt: state.releasedAt,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastSeen.After(entries[j].LastSeen)
	})
	return entries
}

// StartReaper launches a background goroutine that periodically releases
// stale locks. Call Stop() to shut it down.
func (t *Tracker) StartReaper(cfg *ReaperConfig) {
	if cfg == nil {
		cfg = &ReaperConfig{}
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = t.staleAfter
	}
	if cfg.EvictAfter == 0 {
		cfg.EvictAfter = 10 * time.Minute
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 30 * time.Second
	}

	t.reaperStop = make(chan struct{})
	t.reaperDone = make(chan struct{})

	go t.reapLoop(cfg)
	slog.Info("presence: reaper started",
		"stale_after", cfg.StaleAfter,
		"sweep_interval", cfg.SweepInterval)
}

// Stop shuts down the reaper goroutine.
func (t *Tracker) Stop() {
	if t.reaperStop != nil {
		close(t.reaperStop)
		<-t.reaperDone
		t.reaperStop = nil
		t.reaperDone = nil
	}
}

func (t *Tracker) reapLoop(cfg *ReaperConfig) {
	defer close(t.reaperDone)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.reaperStop:
			return
		case <-ticker.C:
			t.sweep(cfg)
		}
	}
}

func (t *Tracker) sweep(cfg *ReaperConfig) {
	now := t.now()
	var released []key

	t.mu.Lock()
	for k, state := range t.entries {
		if state.released {
			if !state.releasedAt.IsZero() && now.Sub(state.releasedAt) > cfg.EvictAfter {
				delete(t.entries, k)
			}
			continue
		}
		if now.Sub(state.lastSeen) > cfg.StaleAfter {
			state.released = true
			state.releasedAt = now
			released = append(released, k)
		}
	}
	t.mu.Unlock()

	for _, k := range released {
		slog.Info("presence: reaper released stale lock",
			"post_id", k.postID,
			"actor", k.actor,
			"stale_after", cfg.StaleAfter)
		if cfg.OnRelease != nil {
			cfg.OnRelease(k.postID, k.actor)
		}
	}
}
