package sync

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/metarev/internal/idgen"
	"github.com/alfredjeanlab/metarev/internal/model"
)

// Destination is the interface for a sync target (S3, git, etc.).
type Destination interface {
	// Write sends the JSONL payload to the destination.
	Write(ctx context.Context, data []byte) error
}

// Scheduler exports the store on an interval and whenever a post or
// revision changes. Exports identical to the last one written are skipped.
type Scheduler struct {
	source       Source
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger

	kick chan struct{}

	mu   sync.Mutex
	last [sha256.Size]byte
	have bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that exports from src to the given
// destinations at the specified interval.
func NewScheduler(src Source, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		source:       src,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
		kick:         make(chan struct{}, 1),
	}
}

// Start runs an initial sync, then syncs on each tick and on Notify.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for a running sync to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Notify asks for a sync as soon as the current one (if any) finishes.
// Requests made while one is already pending are merged.
func (s *Scheduler) Notify() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Broadcast implements events.Broadcaster: post and revision events
// trigger an early sync.
func (s *Scheduler) Broadcast(event *model.Event) {
	if strings.HasPrefix(event.Topic, "metarev.post.") || strings.HasPrefix(event.Topic, "metarev.revision.") {
		s.Notify()
	}
}

func (s *Scheduler) run(ctx context.Context) {
	s.syncOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.kick:
		}
		s.syncOnce(ctx)
	}
}

// SyncOnce exports once and writes the result to every destination. A
// failing destination does not stop the others; their errors are joined.
func (s *Scheduler) SyncOnce(ctx context.Context) error {
	logger := s.logger.With("run", idgen.ExportID())
	var buf bytes.Buffer
	if err := ExportJSONL(ctx, s.source, &buf); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	data := buf.Bytes()

	// The header line carries the export time; compare what follows it.
	sum := sha256.Sum256(data[bytes.IndexByte(data, '\n')+1:])
	s.mu.Lock()
	unchanged := s.have && sum == s.last
	s.mu.Unlock()
	if unchanged {
		logger.Debug("sync skipped, export unchanged")
		return nil
	}

	var errs []error
	for i, dest := range s.destinations {
		if err := dest.Write(ctx, data); err != nil {
			errs = append(errs, fmt.Errorf("destination %d: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	s.mu.Lock()
	s.last, s.have = sum, true
	s.mu.Unlock()
	logger.Info("sync completed", "destinations", len(s.destinations), "bytes", len(data))
	return nil
}

func (s *Scheduler) syncOnce(ctx context.Context) {
	if err := s.SyncOnce(ctx); err != nil {
		s.logger.Error("sync failed", "err", err)
	}
}
