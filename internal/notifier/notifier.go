// SPDX-License-Identifier: MIT

// Package notifier implements the Discord-shaped webhook notifier: it
// consumes ToNotify bus messages and posts a rich embed describing the
// task's new status, filtered by the configured notify_on set.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/HoloArchivists/hoshinova-go/internal/bus"
	"github.com/HoloArchivists/hoshinova-go/internal/buildinfo"
	"github.com/HoloArchivists/hoshinova-go/internal/config"
	"github.com/HoloArchivists/hoshinova-go/internal/task"
)

// webhookMessage is the top-level Discord webhook payload.
type webhookMessage struct {
	Content string  `json:"content"`
	Embeds  []embed `json:"embeds"`
}

type embed struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Color       int             `json:"color"`
	Author      embedAuthor     `json:"author"`
	Footer      embedFooter     `json:"footer"`
	Timestamp   string          `json:"timestamp"`
	Thumbnail   embedThumbnail  `json:"thumbnail"`
}

type embedAuthor struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	IconURL string `json:"icon_url,omitempty"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type embedThumbnail struct {
	URL string `json:"url"`
}

// titleAndColor maps a TaskStatus onto the embed's title and accent color,
// carried over unchanged from the notifications this program has always
// sent.
func titleAndColor(status task.TaskStatus) (string, int) {
	switch status {
	case task.TaskWaiting:
		return "Waiting for Live", 0xebd045
	case task.TaskRecording:
		return "Recording", 0x58b9ff
	case task.TaskDone:
		return "Done", 0x45eb45
	case task.TaskFailed:
		return "Failed", 0xeb4545
	default:
		return status.String(), 0x808080
	}
}

// Discord is the Discord webhook notifier.
type Discord struct {
	store      *config.Store
	bus        *bus.Bus[task.BusMessage]
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Discord notifier at construction time.
type Option func(*Discord)

// WithLogger attaches a structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Discord) { d.logger = l }
}

// WithHTTPClient overrides the HTTP client used to send webhooks, chiefly
// for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Discord) { d.httpClient = c }
}

// New constructs a Discord notifier reading configuration from store and
// consuming ToNotify messages from b.
func New(store *config.Store, b *bus.Bus[task.BusMessage], opts ...Option) *Discord {
	d := &Discord{
		store:      store,
		bus:        b,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name identifies this service to the outer supervision tree.
func (d *Discord) Name() string { return "notifier" }

// Run consumes ToNotify messages until ctx is cancelled or the bus closes.
func (d *Discord) Run(ctx context.Context) error {
	rx := d.bus.AddRx()
	defer d.bus.RemoveRx(rx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-rx:
			if !ok {
				return nil
			}
			if msg.Kind != task.KindToNotify {
				continue
			}
			d.handle(ctx, msg.ToNotify)
		}
	}
}

func (d *Discord) handle(ctx context.Context, n task.Notification) {
	cfg := d.store.Get()
	if cfg.Notifier == nil || cfg.Notifier.Discord == nil {
		return
	}
	discordCfg := cfg.Notifier.Discord
	if discordCfg.WebhookURL == "" {
		return
	}

	notify := false
	for _, s := range discordCfg.NotifyOn {
		if parsed, ok := task.ParseTaskStatus(s); ok && parsed == n.Status {
			notify = true
			break
		}
	}
	if !notify {
		d.logger.Debug("not notifying on status", "status", n.Status.String(), "video_id", n.Task.VideoID)
		return
	}

	if err := d.send(ctx, discordCfg.WebhookURL, n); err != nil {
		d.logger.Warn("failed to send discord webhook", "video_id", n.Task.VideoID, "err", err)
		return
	}
	d.logger.Info("sent discord webhook", "video_id", n.Task.VideoID, "status", n.Status.String())
}

func (d *Discord) send(ctx context.Context, webhookURL string, n task.Notification) error {
	title, color := titleAndColor(n.Status)

	payload := webhookMessage{
		Embeds: []embed{{
			Title:       title,
			Description: fmt.Sprintf("[%s](https://youtu.be/%s)", n.Task.Title, n.Task.VideoID),
			Color:       color,
			Author: embedAuthor{
				Name:    n.Task.ChannelName,
				URL:     fmt.Sprintf("https://www.youtube.com/channel/%s", n.Task.ChannelID),
				IconURL: n.Task.ChannelPicture,
			},
			Footer:    embedFooter{Text: buildinfo.AppName},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Thumbnail: embedThumbnail{URL: n.Task.VideoPicture},
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notifier: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notifier: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notifier: send webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notifier: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
