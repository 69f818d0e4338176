// SPDX-License-Identifier: MIT

// Package recorder turns a ToRecord bus message into exactly one running
// recorder subprocess per video id, translates its output into a
// progressive task.RecorderState broadcast on the bus, and relocates the
// finished file into the task's output directory.
package recorder

import (
	"context"
	"os/exec"

	"github.com/HoloArchivists/hoshinova-go/internal/config"
	"github.com/HoloArchivists/hoshinova-go/internal/recorder/parser"
	"github.com/HoloArchivists/hoshinova-go/internal/task"
)

// Backend dispatches a Task to a specific recorder executable (ytarchive,
// yt-dlp, ...), and knows how to read that executable's output.
type Backend interface {
	// Name identifies the backend as named by ChannelSpec.Recorder /
	// Task.Recorder.
	Name() string

	// WorkingDirectory returns the directory the child process should run
	// in, created before the child is spawned.
	WorkingDirectory(cfg *config.Config) string

	// DelayStart returns the inter-spawn delay to apply after launching a
	// task of this backend, before the spawner loop starts the next one.
	DelayStart(cfg *config.Config) Duration

	// BuildCommand composes the child command line for t.
	BuildCommand(ctx context.Context, cfg *config.Config, t task.Task) (*exec.Cmd, error)

	// Parser returns a fresh output parser for one recording.
	Parser() parser.Parser
}

// Duration is a thin alias kept local so this package doesn't need to import
// time in every file that only forwards a config.Duration.
type Duration = config.Duration

// backendsFor returns the built-in ytarchive and yt-dlp backends keyed by
// the ChannelSpec.Recorder / Task.Recorder strings config.Validate accepts.
func backendsFor() map[string]Backend {
	return map[string]Backend{
		"ytarchive": &ytarchiveBackend{},
		"yt-dlp":    &ytdlpBackend{},
	}
}

func hasFlag(args []string, flags ...string) bool {
	for _, a := range args {
		for _, f := range flags {
			if a == f {
				return true
			}
		}
	}
	return false
}
