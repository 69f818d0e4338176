// SPDX-License-Identifier: MIT

package recorder

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/HoloArchivists/hoshinova-go/internal/bus"
	"github.com/HoloArchivists/hoshinova-go/internal/config"
	"github.com/HoloArchivists/hoshinova-go/internal/task"
	"github.com/HoloArchivists/hoshinova-go/internal/util"
)

// spawnQueueCapacity bounds the internal spawn queue between the message
// loop and the spawner loop. It is sized generously rather than made
// genuinely unbounded: the admission-control set already caps the number of
// videos that can be in flight or queued to the number of distinct channels
// configured, which in practice never approaches this capacity.
const spawnQueueCapacity = 4096

// Option configures a Supervisor at construction time.
type Option func(*Supervisor)

// WithLogger attaches a structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// spawnRequest pairs a task with the configuration snapshot in effect when
// it was admitted, so a config reload mid-queue doesn't change the command
// line of an already-queued recording.
type spawnRequest struct {
	task task.Task
	cfg  *config.Config
}

// Supervisor is the Recorder Supervisor: it consumes ToRecord messages from
// the bus, admission-controls them against currently-recording video ids,
// and runs each admitted recording to completion.
type Supervisor struct {
	store     *config.Store
	bus       *bus.Bus[task.BusMessage]
	logger    *slog.Logger
	logWriter io.Writer
	backends  map[string]Backend

	mu     sync.Mutex
	active map[string]struct{}
}

// New constructs a Supervisor reading configuration from store and
// publishing/consuming on b.
func New(store *config.Store, b *bus.Bus[task.BusMessage], opts ...Option) *Supervisor {
	s := &Supervisor{
		store:    store,
		bus:      b,
		logger:   slog.Default(),
		backends: backendsFor(),
		active:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logWriter = util.SlogWriter{Logger: s.logger}
	return s
}

// Name identifies this service to the outer supervision tree.
func (s *Supervisor) Name() string { return "recorder" }

// ActiveCount reports how many recordings are currently admitted (queued or
// running). Exposed for status reporting.
func (s *Supervisor) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Run consumes ToRecord messages until ctx is cancelled or the bus closes.
func (s *Supervisor) Run(ctx context.Context) error {
	rx := s.bus.AddRx()
	defer s.bus.RemoveRx(rx)
	tx := s.bus.AddTx()

	spawnCh := make(chan spawnRequest, spawnQueueCapacity)
	var spawner sync.WaitGroup
	spawner.Add(1)
	go func() {
		defer spawner.Done()
		s.spawnLoop(ctx, spawnCh, tx)
	}()
	defer func() {
		close(spawnCh)
		spawner.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-rx:
			if !ok {
				return nil
			}
			if msg.Kind != task.KindToRecord {
				continue
			}
			s.admit(ctx, msg.ToRecord, spawnCh)
		}
	}
}

// admit checks the admission-control set and, if t's video id is not already
// active, marks it active and enqueues a spawn request against the current
// config snapshot. The check and the insert happen under the same lock
// acquisition so two ToRecord messages for the same video id arriving close
// together can't both be admitted before either reaches spawnLoop.
func (s *Supervisor) admit(ctx context.Context, t task.Task, spawnCh chan<- spawnRequest) {
	s.mu.Lock()
	if _, active := s.active[t.VideoID]; active {
		s.mu.Unlock()
		s.logger.Warn("task already active, skipping", "video_id", t.VideoID)
		return
	}
	s.active[t.VideoID] = struct{}{}
	s.mu.Unlock()

	select {
	case spawnCh <- spawnRequest{task: t, cfg: s.store.Get()}:
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.active, t.VideoID)
		s.mu.Unlock()
	}
}

// spawnLoop drains the spawn queue, launching one recording task at a time
// and rate-limiting starts by each backend's configured inter-spawn delay so
// a burst of simultaneous admissions doesn't stampede the upstream.
func (s *Supervisor) spawnLoop(ctx context.Context, spawnCh <-chan spawnRequest, tx *bus.Producer[task.BusMessage]) {
	for req := range spawnCh {
		backend, ok := s.backends[req.task.Recorder]
		if !ok {
			s.logger.Error("unknown recorder backend", "video_id", req.task.VideoID, "recorder", req.task.Recorder)
			s.mu.Lock()
			delete(s.active, req.task.VideoID)
			s.mu.Unlock()
			continue
		}

		// One task's goroutine panicking (a backend bug, a nil dereference
		// in output parsing) must not take down every other recording in
		// flight, so this runs under SafeGo rather than a bare go func.
		util.SafeGo("recorder-task-"+req.task.VideoID, s.logWriter, func() {
			defer func() {
				s.mu.Lock()
				delete(s.active, req.task.VideoID)
				s.mu.Unlock()
			}()
			if err := s.runTask(ctx, backend, req.cfg, req.task, tx); err != nil {
				s.logger.Error("recording task failed", "video_id", req.task.VideoID, "recorder", req.task.Recorder, "err", err)
			}
		}, nil)

		delay := time.Duration(backend.DelayStart(req.cfg))
		if delay <= 0 {
			continue
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}
