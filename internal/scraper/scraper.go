// SPDX-License-Identifier: MIT

// Package scraper implements the Feed Poller: it polls each configured
// channel's YouTube RSS feed on a fixed interval, fills in missing channel
// avatars, and emits a ToRecord task for every previously-unseen video that
// matches a channel's filters.
package scraper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/HoloArchivists/hoshinova-go/internal/bus"
	"github.com/HoloArchivists/hoshinova-go/internal/config"
	"github.com/HoloArchivists/hoshinova-go/internal/task"
	"github.com/HoloArchivists/hoshinova-go/internal/util"
	"github.com/HoloArchivists/hoshinova-go/internal/youtube"
)

// feedConcurrency bounds how many channels are polled at once, mirroring
// the original implementation's buffer_unordered(4).
const feedConcurrency = 4

// shutdownPollInterval is how often the sleep between passes checks for
// context cancellation.
const shutdownPollInterval = 100 * time.Millisecond

// Client is the subset of *youtube.Client the poller needs, narrowed to an
// interface so tests can fake feed/avatar responses without a real server.
type Client interface {
	FetchFeed(ctx context.Context, channelID string) ([]youtube.FeedEntry, error)
	FetchAvatar(ctx context.Context, channelID string) (string, error)
}

// Poller is the Feed Poller.
type Poller struct {
	store  *config.Store
	bus    *bus.Bus[task.BusMessage]
	client Client
	logger *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

// Option configures a Poller at construction time.
type Option func(*Poller)

// WithLogger attaches a structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// WithClient overrides the YouTube client, chiefly for tests.
func WithClient(c Client) Option {
	return func(p *Poller) { p.client = c }
}

// New constructs a Poller reading configuration from store and publishing
// onto b.
func New(store *config.Store, b *bus.Bus[task.BusMessage], opts ...Option) *Poller {
	p := &Poller{
		store:  store,
		bus:    b,
		client: youtube.NewClient(),
		logger: slog.Default(),
		seen:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name identifies this service to the outer supervision tree.
func (p *Poller) Name() string { return "scraper" }

// Run repeatedly polls every configured channel until ctx is cancelled,
// sleeping the configured poll interval between passes.
func (p *Poller) Run(ctx context.Context) error {
	tx := p.bus.AddTx()

	for {
		if err := p.pass(ctx, tx); err != nil {
			return err
		}

		cfg := p.store.Get()
		interval := time.Duration(cfg.Scraper.RSS.PollInterval)
		if interval <= 0 {
			interval = time.Minute
		}
		wakeup := time.Now().Add(interval)
		for time.Now().Before(wakeup) {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(shutdownPollInterval):
			}
		}
	}
}

// pass runs one poll of every configured channel with bounded concurrency
// and publishes a ToRecord for each newly-qualifying entry.
func (p *Poller) pass(ctx context.Context, tx *bus.Producer[task.BusMessage]) error {
	cfg := p.store.Get()

	sem := make(chan struct{}, feedConcurrency)
	var wg sync.WaitGroup
	var sendErrMu sync.Mutex
	var sendErr error

	logWriter := util.SlogWriter{Logger: p.logger}
	for i := range cfg.Channel {
		channel := cfg.Channel[i]
		wg.Add(1)
		sem <- struct{}{}
		util.SafeGo("scraper-channel-"+channel.ID, logWriter, func() {
			defer wg.Done()
			defer func() { <-sem }()

			p.ensureAvatar(ctx, channel)

			tasks, err := p.qualifyingTasks(ctx, cfg, channel)
			if err != nil {
				p.logger.Error("failed to poll channel feed", "channel_id", channel.ID, "err", err)
				return
			}
			for _, t := range tasks {
				if err := tx.Send(ctx, task.NewToRecord(t)); err != nil {
					sendErrMu.Lock()
					if sendErr == nil {
						sendErr = err
					}
					sendErrMu.Unlock()
					return
				}
			}
		}, nil)
	}
	wg.Wait()

	return sendErr
}

// ensureAvatar fills in channel's cached avatar URL if absent. Failure is
// logged and does not abort the channel's feed poll.
func (p *Poller) ensureAvatar(ctx context.Context, channel config.ChannelSpec) {
	if channel.PictureURL != "" {
		return
	}
	url, err := p.client.FetchAvatar(ctx, channel.ID)
	if err != nil {
		p.logger.Warn("failed to fetch channel avatar", "channel_id", channel.ID, "err", err)
		return
	}
	p.store.SetChannelAvatar(channel.ID, url)
}

// qualifyingTasks fetches channel's feed and returns a Task for every entry
// that is unseen, within the configured age cutoff, and filter-matching.
func (p *Poller) qualifyingTasks(ctx context.Context, cfg *config.Config, channel config.ChannelSpec) ([]task.Task, error) {
	entries, err := p.client.FetchFeed(ctx, channel.ID)
	if err != nil {
		return nil, err
	}

	cutoff := time.Duration(cfg.Scraper.RSS.IgnoreOlderThan)

	var tasks []task.Task
	for _, e := range entries {
		if cutoff > 0 && time.Since(e.Updated) > cutoff {
			continue
		}
		matched, err := channel.Matches(e.Title, e.Description)
		if err != nil {
			p.logger.Error("invalid filter pattern", "channel_id", channel.ID, "err", err)
			continue
		}
		if !matched {
			continue
		}
		if !p.markSeen(e.VideoID) {
			continue
		}

		tasks = append(tasks, task.Task{
			VideoID:         e.VideoID,
			Title:           e.Title,
			VideoPicture:    e.Thumbnail,
			ChannelID:       channel.ID,
			ChannelName:     e.ChannelName,
			ChannelPicture:  channel.PictureURL,
			OutputDirectory: channel.OutPath,
			Recorder:        channel.Recorder,
		})
	}
	return tasks, nil
}

// markSeen inserts videoID into the process-lifetime seen set and reports
// whether it was newly added.
func (p *Poller) markSeen(videoID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.seen[videoID]; exists {
		return false
	}
	p.seen[videoID] = struct{}{}
	return true
}
