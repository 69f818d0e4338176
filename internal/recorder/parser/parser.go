// SPDX-License-Identifier: MIT

// Package parser turns one line of a recorder backend's stdout/stderr into a
// mutation of a task.RecordingStatus. Each Parser does no I/O or logging and
// has no side effect beyond the mutation itself; apart from the timestamps it
// takes from the clock (LastUpdate, and yt-dlp's WaitingSince), the same
// status and line always produce the same result.
package parser

import (
	"regexp"

	"github.com/HoloArchivists/hoshinova-go/internal/task"
)

// Parser advances status according to one line of output from a recorder
// backend's child process.
type Parser interface {
	ParseLine(status *task.RecordingStatus, line string)
}

var ansiPattern = regexp.MustCompile("\x1b\\[[0-9;]*[a-zA-Z]")

// stripANSI removes terminal color/cursor escape sequences from a line, the
// way ytarchive and yt-dlp both decorate their human-facing progress output.
func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}
