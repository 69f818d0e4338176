// SPDX-License-Identifier: MIT

package recorder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/HoloArchivists/hoshinova-go/internal/bus"
	"github.com/HoloArchivists/hoshinova-go/internal/config"
	"github.com/HoloArchivists/hoshinova-go/internal/fsutil"
	"github.com/HoloArchivists/hoshinova-go/internal/task"
)

// runTask spawns backend's child process for t, feeds its merged
// stdout/stderr through backend's parser, and broadcasts the resulting
// status (and, on state transitions, notifications) on tx. It blocks until
// the child exits and its output has been fully consumed.
func (s *Supervisor) runTask(ctx context.Context, backend Backend, cfg *config.Config, t task.Task, tx *bus.Producer[task.BusMessage]) error {
	workDir := backend.WorkingDirectory(cfg)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("recorder: create working directory: %w", err)
	}
	if err := os.MkdirAll(t.OutputDirectory, 0755); err != nil {
		return fmt.Errorf("recorder: create output directory: %w", err)
	}

	cmd, err := backend.BuildCommand(ctx, cfg, t)
	if err != nil {
		return err
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("recorder: attach stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("recorder: attach stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("recorder: start %s: %w", backend.Name(), err)
	}

	lines := make(chan string, 64)
	var readers sync.WaitGroup
	readers.Add(2)
	go func() { defer readers.Done(); scanLines(stdout, lines) }()
	go func() { defer readers.Done(); scanLines(stderr, lines) }()

	waitResult := make(chan error, 1)
	go func() {
		// Both pipe readers must observe EOF (which happens once the child
		// exits and its fds close) before Wait is called: calling it any
		// earlier risks closing the pipes while a reader is still using
		// them.
		readers.Wait()
		waitResult <- cmd.Wait()
		close(lines)
	}()

	p := backend.Parser()
	status := task.NewRecordingStatus()
	for line := range lines {
		prevState := status.State
		p.ParseLine(&status, line)

		if err := tx.Send(ctx, task.NewRecordingStatusMessage(t, status)); err != nil {
			return fmt.Errorf("recorder: publish status: %w", err)
		}

		if status.State == prevState {
			continue
		}
		if st, notify := task.StatusForState(status.State); notify {
			if err := tx.Send(ctx, task.NewToNotify(task.Notification{Task: t, Status: st})); err != nil {
				return fmt.Errorf("recorder: publish notification: %w", err)
			}
		}
	}

	if err := <-waitResult; err != nil {
		s.logger.Warn("recorder backend exited with error",
			"video_id", t.VideoID, "backend", backend.Name(), "state", status.State.String(), "err", err)
	}

	if status.State != task.StateFinished {
		return nil
	}
	if status.OutputFile == "" {
		return fmt.Errorf("recorder: reached Finished with no output file reported")
	}

	dst, err := fsutil.Relocate(status.OutputFile, t.OutputDirectory)
	if err != nil {
		return fmt.Errorf("recorder: relocate output file: %w", err)
	}
	s.logger.Info("recording finalized", "video_id", t.VideoID, "output", dst)
	return nil
}

// scanLines splits r on either CR or LF (ytarchive and yt-dlp both rewrite
// progress lines in place with a bare \r) and sends each line to out. It
// returns when r reaches EOF or errors.
func scanLines(r io.Reader, out chan<- string) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	scanner.Split(splitCROrLF)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

func splitCROrLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
