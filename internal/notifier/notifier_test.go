// SPDX-License-Identifier: MIT

package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HoloArchivists/hoshinova-go/internal/bus"
	"github.com/HoloArchivists/hoshinova-go/internal/config"
	"github.com/HoloArchivists/hoshinova-go/internal/task"
)

func newTestStore(t *testing.T, cfg *config.Config) *config.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, cfg.Save(path))
	store, err := config.NewStore(path)
	require.NoError(t, err)
	return store
}

func baseConfig() *config.Config {
	return &config.Config{
		Channel: []config.ChannelSpec{
			{ID: "c1", Name: "Channel", Filters: []string{"live"}, OutPath: "{id}", Recorder: "ytarchive"},
		},
	}
}

func TestDiscord_SendsWebhookOnMatchingStatus(t *testing.T) {
	var received int32
	var gotPayload webhookMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	cfg := baseConfig()
	cfg.Notifier = &config.NotifierConfig{Discord: &config.NotifierDiscordConfig{
		WebhookURL: server.URL,
		NotifyOn:   []string{"done"},
	}}
	require.NoError(t, cfg.Validate())
	store := newTestStore(t, cfg)

	b := bus.New[task.BusMessage](8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Start(ctx)

	d := New(store, b)
	go d.Run(ctx)
	time.Sleep(20 * time.Millisecond)

	tx := b.AddTx()
	require.NoError(t, tx.Send(ctx, task.NewToNotify(task.Notification{
		Task:   task.Task{VideoID: "abc", Title: "Stream", ChannelID: "c1", ChannelName: "Channel"},
		Status: task.TaskDone,
	})))

	require.Eventually(t, func() bool { return atomic.LoadInt32(&received) == 1 }, time.Second, 10*time.Millisecond)
	require.Len(t, gotPayload.Embeds, 1)
	assert.Equal(t, "Done", gotPayload.Embeds[0].Title)
	assert.Equal(t, "[Stream](https://youtu.be/abc)", gotPayload.Embeds[0].Description)
}

func TestDiscord_SkipsStatusNotInNotifyOn(t *testing.T) {
	var received int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	cfg := baseConfig()
	cfg.Notifier = &config.NotifierConfig{Discord: &config.NotifierDiscordConfig{
		WebhookURL: server.URL,
		NotifyOn:   []string{"waiting"},
	}}
	require.NoError(t, cfg.Validate())
	store := newTestStore(t, cfg)

	b := bus.New[task.BusMessage](8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Start(ctx)

	d := New(store, b)
	go d.Run(ctx)
	time.Sleep(20 * time.Millisecond)

	tx := b.AddTx()
	require.NoError(t, tx.Send(ctx, task.NewToNotify(task.Notification{
		Task:   task.Task{VideoID: "abc"},
		Status: task.TaskDone,
	})))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&received))
}

func TestDiscord_NoOpWhenWebhookNotConfigured(t *testing.T) {
	cfg := baseConfig()
	require.NoError(t, cfg.Validate())
	store := newTestStore(t, cfg)

	b := bus.New[task.BusMessage](8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Start(ctx)

	d := New(store, b)
	go d.Run(ctx)
	time.Sleep(20 * time.Millisecond)

	tx := b.AddTx()
	require.NoError(t, tx.Send(ctx, task.NewToNotify(task.Notification{Task: task.Task{VideoID: "abc"}, Status: task.TaskDone})))
	time.Sleep(50 * time.Millisecond)
}
