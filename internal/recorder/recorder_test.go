// SPDX-License-Identifier: MIT

package recorder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HoloArchivists/hoshinova-go/internal/bus"
	"github.com/HoloArchivists/hoshinova-go/internal/config"
	"github.com/HoloArchivists/hoshinova-go/internal/task"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// newTestStore builds a config.Store backed by a temp file, going through
// the real Save/Load round trip rather than hand-writing TOML.
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

func TestSupervisor_RecordsAndRelocatesOnFinish(t *testing.T) {
	workDir := t.TempDir()
	outDir := t.TempDir()
	srcFile := filepath.Join(t.TempDir(), "raw_output.mp4")

	script := fmt.Sprintf(`
printf '%%s\n' 'ytarchive 0.3.1-test' 'Selected quality: 1080p60 (h264)' 'Video Fragments: 5; Audio Fragments: 5; Total Downloaded: 1.0MiB'
printf 'hello' > '%s'
echo 'Final file: %s'
`, srcFile, srcFile)

	cfg := baseConfig()
	cfg.Ytarchive = config.YtarchiveConfig{
		ExecutablePath:   "sh",
		WorkingDirectory: workDir,
		Args:             []string{"-c", script},
		Quality:          "best",
		DelayStart:       config.Duration(time.Millisecond),
	}
	require.NoError(t, cfg.Validate())

	store := newTestStore(t, cfg)
	b := bus.New[task.BusMessage](64)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go b.Start(ctx)

	sup := New(store, b, WithLogger(discardLogger()))

	observer := b.AddRx()
	go sup.Run(ctx)
	// Give Run's own AddRx a chance to register before publishing, so the
	// ToRecord message isn't broadcast only to the observer above.
	time.Sleep(50 * time.Millisecond)

	producer := b.AddTx()
	require.NoError(t, producer.Send(ctx, task.NewToRecord(task.Task{
		VideoID:         "abc123",
		ChannelID:       "c1",
		ChannelName:     "Channel",
		Title:           "Stream",
		OutputDirectory: outDir,
		Recorder:        "ytarchive",
	})))

	var sawFinished, sawDoneNotification bool
	deadline := time.After(8 * time.Second)
	for !sawFinished || !sawDoneNotification {
		select {
		case msg := <-observer:
			switch msg.Kind {
			case task.KindRecordingStatus:
				if msg.StatusUpdate.State == task.StateFinished {
					sawFinished = true
				}
			case task.KindToNotify:
				if msg.ToNotify.Status == task.TaskDone {
					sawDoneNotification = true
				}
			}
		case <-deadline:
			t.Fatalf("timed out waiting for recording to finish (finished=%v, notified=%v)", sawFinished, sawDoneNotification)
		}
	}

	relocated := filepath.Join(outDir, "raw_output.mp4")
	require.Eventually(t, func() bool {
		_, err := os.Stat(relocated)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	data, err := os.ReadFile(relocated)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestSupervisor_AdmitSkipsAlreadyActiveVideo(t *testing.T) {
	cfg := baseConfig()
	cfg.Ytarchive.ExecutablePath = "ytarchive"
	require.NoError(t, cfg.Validate())
	store := newTestStore(t, cfg)

	b := bus.New[task.BusMessage](8)
	sup := New(store, b, WithLogger(discardLogger()))
	sup.active["abc"] = struct{}{}

	spawnCh := make(chan spawnRequest, 2)
	ctx := context.Background()

	sup.admit(ctx, task.Task{VideoID: "abc"}, spawnCh)
	assert.Len(t, spawnCh, 0)

	sup.admit(ctx, task.Task{VideoID: "xyz"}, spawnCh)
	assert.Len(t, spawnCh, 1)
}

func TestSupervisor_SpawnLoopSkipsUnknownRecorder(t *testing.T) {
	cfg := baseConfig()
	require.NoError(t, cfg.Validate())
	store := newTestStore(t, cfg)

	b := bus.New[task.BusMessage](8)
	sup := New(store, b, WithLogger(discardLogger()))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	spawnCh := make(chan spawnRequest, 1)
	spawnCh <- spawnRequest{task: task.Task{VideoID: "bad", Recorder: "not-a-backend"}, cfg: cfg}
	close(spawnCh)

	tx := b.AddTx()
	sup.spawnLoop(ctx, spawnCh, tx)

	assert.Equal(t, 0, sup.ActiveCount())
}

func TestSplitCROrLF(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  []string
	}{
		{"lf only", "a\nb\nc", []string{"a", "b", "c"}},
		{"cr only", "a\rb\rc", []string{"a", "b", "c"}},
		{"mixed", "a\r\nb\nc\r", []string{"a", "", "b", "c"}},
		{"no trailing newline", "a\nb", []string{"a", "b"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lines := make(chan string, 16)
			scanLines(&staticReader{data: []byte(tc.input)}, lines)
			close(lines)
			var got []string
			for l := range lines {
				got = append(got, l)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

type staticReader struct {
	data []byte
	pos  int
}

func (r *staticReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}
