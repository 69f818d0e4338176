// SPDX-License-Identifier: MIT

package recorder

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/HoloArchivists/hoshinova-go/internal/config"
	"github.com/HoloArchivists/hoshinova-go/internal/recorder/parser"
	"github.com/HoloArchivists/hoshinova-go/internal/task"
)

// ytarchiveBackend drives the ytarchive recorder: it watches a channel for
// the video to go live and downloads the stream from the start.
type ytarchiveBackend struct{}

func (*ytarchiveBackend) Name() string { return "ytarchive" }

func (*ytarchiveBackend) WorkingDirectory(cfg *config.Config) string {
	return cfg.Ytarchive.WorkingDirectory
}

func (*ytarchiveBackend) DelayStart(cfg *config.Config) Duration {
	return cfg.Ytarchive.DelayStart
}

func (*ytarchiveBackend) Parser() parser.Parser {
	return parser.NewYTArchive()
}

func (*ytarchiveBackend) BuildCommand(_ context.Context, cfg *config.Config, t task.Task) (*exec.Cmd, error) {
	if cfg.Ytarchive.ExecutablePath == "" {
		return nil, fmt.Errorf("recorder: ytarchive.executable_path is not configured")
	}

	args := append([]string(nil), cfg.Ytarchive.Args...)
	if !hasFlag(args, "-w", "--wait") {
		args = append(args, "--wait")
	}
	args = append(args, fmt.Sprintf("https://youtu.be/%s", t.VideoID), cfg.Ytarchive.Quality)

	// Deliberately exec.Command, not exec.CommandContext: a daemon shutdown
	// must not kill an in-progress recording and risk corrupting the
	// partially-written media. The child is left to exit on its own; ctx is
	// only used to make the admission/pipe-draining loop interruptible.
	cmd := exec.Command(cfg.Ytarchive.ExecutablePath, args...)
	cmd.Dir = cfg.Ytarchive.WorkingDirectory
	return cmd, nil
}
