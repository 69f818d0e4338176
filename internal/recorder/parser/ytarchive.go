// SPDX-License-Identifier: MIT

package parser

import (
	"strconv"
	"strings"
	"time"

	"github.com/HoloArchivists/hoshinova-go/internal/task"
)

// YTArchive parses ytarchive's line-oriented stdout/stderr. Sample output:
//
//	ytarchive 0.3.1-15663af
//	Stream starts at 2022-03-14T14:00:00+00:00 in 11075 seconds. Waiting for this time to elapse...
//	Stream is 30 seconds late...
//	Selected quality: 1080p60 (h264)
//	Video Fragments: 1215; Audio Fragments: 1215; Total Downloaded: 133.12MiB
//	Download Finished
//	Muxing final file...
//	Final file: /path/to/output.mp4
type YTArchive struct{}

// NewYTArchive returns a ytarchive output parser.
func NewYTArchive() *YTArchive { return &YTArchive{} }

func (p *YTArchive) ParseLine(status *task.RecordingStatus, line string) {
	status.LastOutput = line
	status.LastUpdate = time.Now()

	if strings.HasPrefix(line, "Video Fragments: ") {
		status.State = task.StateRecording
		parseFragmentLine(status, line, true)
		return
	}
	if strings.HasPrefix(line, "Audio Fragments: ") {
		status.State = task.StateRecording
		parseFragmentLine(status, line, false)
		return
	}

	// Some ytarchive builds prepend a "YYYY/MM/DD HH:MM:SS " timestamp to
	// every line. status.Version always carries a build-hash suffix (e.g.
	// "0.3.1-15663af"), so it can never be compared against a bare release
	// number; detect the prefix by shape instead.
	if len(line) > 20 && line[4] == '/' {
		line = strings.TrimSpace(line[20:])
	}

	switch {
	case status.Version == "" && strings.HasPrefix(line, "ytarchive "):
		status.Version = stripANSI(line[10:])
	case status.VideoQuality == "" && strings.HasPrefix(line, "Selected quality: "):
		status.VideoQuality = stripANSI(line[len("Selected quality: "):])
	case strings.HasPrefix(line, "Stream starts at "):
		status.State = task.StateWaiting
		if len(line) >= 42 {
			if t, err := time.Parse(time.RFC3339, line[17:42]); err == nil {
				status.WaitingSince = &t
				return
			}
		}
		status.WaitingSince = nil
	case strings.HasPrefix(line, "Stream is ") || strings.HasPrefix(line, "Waiting for stream"):
		status.State = task.StateWaiting
		status.WaitingSince = nil
	case strings.HasPrefix(line, "Muxing final file"):
		status.State = task.StateMuxing
	case strings.HasPrefix(line, "Livestream has been processed"):
		status.State = task.StateAlreadyProcessed
	case strings.HasPrefix(line, "Livestream has ended and is being processed"),
		strings.Contains(line, "use yt-dlp to download it."):
		status.State = task.StateEnded
	case strings.HasPrefix(line, "Final file: "):
		status.State = task.StateFinished
		status.OutputFile = stripANSI(line[len("Final file: "):])
	case strings.Contains(line, "User Interrupt"):
		status.State = task.StateInterrupted
	case strings.Contains(line, "Error retrieving player response"),
		strings.Contains(line, "unable to retrieve"),
		strings.Contains(line, "error writing the muxcmd file"),
		strings.Contains(line, "Something must have gone wrong with ffmpeg"),
		strings.Contains(line, "At least one error occurred"):
		status.State = task.StateErrored
	case strings.TrimSpace(line) == "",
		strings.Contains(line, "Loaded cookie file"),
		strings.HasPrefix(line, "Video Title: "),
		strings.HasPrefix(line, "Channel: "),
		strings.HasPrefix(line, "Waiting for this time to elapse"),
		strings.HasPrefix(line, "Download Finished"):
		// Ignore.
	default:
		// Unrecognised line; left as LastOutput only.
	}
}

// parseFragmentLine handles ytarchive's "Video Fragments: N; Audio
// Fragments: M; Total Downloaded: S" line and its audio-only variant.
func parseFragmentLine(status *task.RecordingStatus, line string, hasVideoField bool) {
	parts := strings.Split(line, ";")
	fieldIndex := 0

	next := func() (string, bool) {
		if fieldIndex >= len(parts) {
			return "", false
		}
		part := parts[fieldIndex]
		fieldIndex++
		colon := strings.Index(part, ":")
		if colon < 0 {
			return "", true
		}
		return strings.TrimSpace(part[colon+1:]), true
	}

	if hasVideoField {
		if v, ok := next(); ok {
			if n, err := strconv.Atoi(v); err == nil {
				status.VideoFragments = &n
			}
		}
	}
	if v, ok := next(); ok {
		if n, err := strconv.Atoi(v); err == nil {
			status.AudioFragments = &n
		}
	}
	if v, ok := next(); ok {
		status.TotalSize = stripANSI(v)
	}
}
