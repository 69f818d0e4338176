// SPDX-License-Identifier: MIT

package scraper

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HoloArchivists/hoshinova-go/internal/bus"
	"github.com/HoloArchivists/hoshinova-go/internal/config"
	"github.com/HoloArchivists/hoshinova-go/internal/task"
	"github.com/HoloArchivists/hoshinova-go/internal/youtube"
)

func newTestStore(t *testing.T, cfg *config.Config) *config.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, cfg.Save(path))
	store, err := config.NewStore(path)
	require.NoError(t, err)
	return store
}

type fakeClient struct {
	entries []youtube.FeedEntry
	avatar  string
	calls   int
}

func (f *fakeClient) FetchFeed(ctx context.Context, channelID string) ([]youtube.FeedEntry, error) {
	f.calls++
	return f.entries, nil
}

func (f *fakeClient) FetchAvatar(ctx context.Context, channelID string) (string, error) {
	return f.avatar, nil
}

func TestPoller_DedupAcrossPasses(t *testing.T) {
	cfg := &config.Config{
		Channel: []config.ChannelSpec{
			{ID: "UCabc", Name: "Channel", Filters: []string{`^\[LIVE\]`}, OutPath: "/out", Recorder: "ytarchive", PictureURL: "cached"},
		},
	}
	require.NoError(t, cfg.Validate())
	store := newTestStore(t, cfg)

	client := &fakeClient{entries: []youtube.FeedEntry{
		{VideoID: "v1", Title: "[LIVE] A", ChannelName: "Channel", Updated: time.Now()},
		{VideoID: "v2", Title: "Vlog", ChannelName: "Channel", Updated: time.Now()},
	}}

	b := bus.New[task.BusMessage](16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Start(ctx)

	p := New(store, b, WithClient(client))
	rx := b.AddRx()

	require.NoError(t, p.pass(ctx, b.AddTx()))
	require.NoError(t, p.pass(ctx, b.AddTx()))

	var toRecordCount int
	deadline := time.After(200 * time.Millisecond)
loop:
	for {
		select {
		case msg := <-rx:
			if msg.Kind == task.KindToRecord {
				toRecordCount++
				assert.Equal(t, "v1", msg.ToRecord.VideoID)
			}
		case <-deadline:
			break loop
		}
	}
	assert.Equal(t, 1, toRecordCount)
}

func TestPoller_AgeCutoffExcludesOldEntries(t *testing.T) {
	cfg := &config.Config{
		Scraper: config.ScraperConfig{RSS: config.ScraperRSSConfig{IgnoreOlderThan: config.Duration(24 * time.Hour)}},
		Channel: []config.ChannelSpec{
			{ID: "UCabc", Name: "Channel", Filters: []string{`^\[LIVE\]`}, OutPath: "/out", Recorder: "ytarchive", PictureURL: "cached"},
		},
	}
	require.NoError(t, cfg.Validate())
	store := newTestStore(t, cfg)

	client := &fakeClient{entries: []youtube.FeedEntry{
		{VideoID: "v3", Title: "[LIVE] Old", ChannelName: "Channel", Updated: time.Now().Add(-48 * time.Hour)},
	}}

	b := bus.New[task.BusMessage](16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Start(ctx)

	p := New(store, b, WithClient(client))
	tasks, err := p.qualifyingTasks(ctx, store.Get(), store.Get().Channel[0])
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestPoller_FillsMissingAvatar(t *testing.T) {
	cfg := &config.Config{
		Channel: []config.ChannelSpec{
			{ID: "UCabc", Name: "Channel", Filters: []string{"live"}, OutPath: "/out", Recorder: "ytarchive"},
		},
	}
	require.NoError(t, cfg.Validate())
	store := newTestStore(t, cfg)

	client := &fakeClient{avatar: "https://example.com/avatar.jpg"}
	b := bus.New[task.BusMessage](16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Start(ctx)

	p := New(store, b, WithClient(client))
	p.ensureAvatar(ctx, store.Get().Channel[0])

	assert.Equal(t, "https://example.com/avatar.jpg", store.Get().Channel[0].PictureURL)
}

func TestPoller_DescriptionMatchWhenEnabled(t *testing.T) {
	cfg := &config.Config{
		Channel: []config.ChannelSpec{
			{ID: "UCabc", Name: "Channel", Filters: []string{"concert"}, OutPath: "/out", Recorder: "ytarchive", MatchDescription: true, PictureURL: "x"},
		},
	}
	require.NoError(t, cfg.Validate())
	store := newTestStore(t, cfg)

	client := &fakeClient{entries: []youtube.FeedEntry{
		{VideoID: "v4", Title: "Untitled stream", Description: "live concert tonight", ChannelName: "Channel", Updated: time.Now()},
	}}

	b := bus.New[task.BusMessage](16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Start(ctx)

	p := New(store, b, WithClient(client))
	tasks, err := p.qualifyingTasks(ctx, store.Get(), store.Get().Channel[0])
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "v4", tasks[0].VideoID)
}
