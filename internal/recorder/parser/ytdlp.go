// SPDX-License-Identifier: MIT

package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/HoloArchivists/hoshinova-go/internal/task"
)

// progressFields is the ordered key list yt-dlp's --progress-template emits,
// configured to match the source-field list on progressTag below field for field.
var progressFields = []string{
	"percentage",
	"total_size",
	"estimated_total_size",
	"downloaded_size",
	"speed",
	"eta",
	"elapsed_time",
	"total_fragments",
	"current_fragment_count",
	"format",
}

// progressTag marks a --progress-template line. The yt-dlp source fields
// this parser expects on it, in the same order as progressFields:
//
//	percentage:             progress._percent_str
//	total_size:             progress._total_bytes_str
//	estimated_total_size:   progress._total_bytes_estimate_str
//	downloaded_size:        progress._downloaded_bytes_str
//	speed:                  progress._speed_str
//	eta:                    progress._eta_str
//	elapsed_time:           progress._elapsed_str
//	total_fragments:        progress.fragment_count
//	current_fragment_count: progress.fragment_index
//	format:                 info.format
const progressTag = "[download_progress]"

var (
	progressPrefixPattern = regexp.MustCompile(`^(\d:\s)?\[download_progress\]`)
	resolutionPattern     = regexp.MustCompile(`\d+x\d+`)
)

// YTDlp parses yt-dlp's line-oriented stdout, configured with the
// --progress-template and --exec flags the recorder always passes. Sample
// output:
//
//	[youtube] Extracting URL: https://www.youtube.com/watch?v=gEdOmal1A6Q
//	[info] gEdOmal1A6Q: Downloading 1 format(s): 299+251
//	[download_progress]   1.2%,       N/A,       1.17GiB,  47.86MiB,   5.61MiB/s,Unknown,00:00:08,NA,278,299 - 1920x1080 (DASH video)
//	[Merger] Merging formats into "im orb [gEdOmal1A6Q].mkv"
//	[download_finished] output_file: /path/to/output.mkv
type YTDlp struct{}

// NewYTDlp returns a yt-dlp output parser.
func NewYTDlp() *YTDlp { return &YTDlp{} }

func (p *YTDlp) ParseLine(status *task.RecordingStatus, line string) {
	status.LastOutput = line
	status.LastUpdate = time.Now()

	if strings.Contains(line, progressTag) {
		parseProgressLine(status, line)
		return
	}

	const waitingText = "[wait] Remaining time until next attempt:"
	switch {
	case strings.HasPrefix(line, waitingText):
		status.State = task.StateWaiting
		if d, ok := parseColonDuration(strings.TrimSpace(line[len(waitingText):])); ok {
			t := time.Now().Add(d)
			status.WaitingSince = &t
		} else {
			status.WaitingSince = nil
		}
	case strings.HasPrefix(line, "[wait]"):
		status.State = task.StateWaiting
		status.WaitingSince = nil
	case strings.HasPrefix(line, "[Merger]"),
		strings.HasPrefix(line, "[Metadata]"),
		strings.HasPrefix(line, "[EmbedSubtitle]"):
		status.State = task.StateMuxing
	case strings.HasPrefix(line, "[download_finished]"):
		status.State = task.StateFinished
		const marker = "[download_finished] output_file: "
		if idx := strings.LastIndex(line, marker); idx >= 0 {
			status.OutputFile = strings.TrimSpace(line[idx+len(marker):])
		}
	case strings.Contains(line, "ERROR: Interrupted by user"):
		status.State = task.StateInterrupted
	case strings.HasPrefix(line, "ERROR:"):
		status.State = task.StateErrored
	case strings.TrimSpace(line) == "",
		strings.HasPrefix(line, "[Cookies]"),
		strings.HasPrefix(line, "[youtube]"),
		strings.HasPrefix(line, "[info]"),
		strings.HasPrefix(line, "[dashsegments]"),
		strings.HasPrefix(line, "WARNING:"),
		strings.HasPrefix(line, "[download]"),
		strings.HasPrefix(line, "[generic]"):
		// Ignore.
	default:
		// Unrecognised line; left as LastOutput only.
	}
}

// parseProgressLine handles a --progress-template line, which carries an
// optional "N: " thread-index prefix before the [download_progress] tag and
// comma-separated values for each entry in progressFields, in order.
func parseProgressLine(status *task.RecordingStatus, line string) {
	status.State = task.StateRecording

	stripped := progressPrefixPattern.ReplaceAllString(line, "")
	values := strings.Split(stripped, ",")
	for i := range values {
		values[i] = strings.TrimSpace(values[i])
	}

	fields := make(map[string]string, len(progressFields))
	for i, key := range progressFields {
		if i >= len(values) {
			break
		}
		fields[key] = values[i]
	}

	if totalSize, ok := fields["total_size"]; ok && totalSize != "N/A" {
		status.TotalSize = totalSize
	} else if est, ok := fields["estimated_total_size"]; ok {
		status.TotalSize = est
	}

	format, hasFormat := fields["format"]
	if hasFormat {
		status.VideoQuality = format
	}

	fragmentCount, hasFragmentCount := fields["current_fragment_count"]
	if !hasFragmentCount {
		return
	}
	n, err := strconv.Atoi(fragmentCount)
	if err != nil {
		return
	}

	switch {
	case hasFormat && resolutionPattern.MatchString(format):
		status.VideoFragments = &n
	case hasFormat && strings.Contains(format, "audio only"):
		status.AudioFragments = &n
	}
}

// parseColonDuration parses yt-dlp's colon-delimited remaining-time counter
// ("HH:MM:SS", "MM:SS", or bare seconds) into a time.Duration.
func parseColonDuration(s string) (time.Duration, bool) {
	parts := strings.Split(s, ":")
	if len(parts) == 0 || len(parts) > 3 {
		return 0, false
	}

	var total int64
	multiplier := int64(1)
	for i := len(parts) - 1; i >= 0; i-- {
		n, err := strconv.ParseInt(strings.TrimSpace(parts[i]), 10, 64)
		if err != nil {
			return 0, false
		}
		total += n * multiplier
		multiplier *= 60
	}
	return time.Duration(total) * time.Second, true
}
