// SPDX-License-Identifier: MIT

package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HoloArchivists/hoshinova-go/internal/task"
)

func TestYTDlp_DownloadProgressParsing(t *testing.T) {
	line := "[download_progress]   2.2%,       N/A,   3.17GiB,  70.03MiB,   1.99MiB/s,01:04,00:00:01,325,7,299 - 1920x1080 (1080p60)"

	p := NewYTDlp()
	status := task.NewRecordingStatus()
	p.ParseLine(&status, line)

	assert.Equal(t, line, status.LastOutput)
	assert.Equal(t, task.StateRecording, status.State)
	assert.Equal(t, "3.17GiB", status.TotalSize)
	assert.Equal(t, "299 - 1920x1080 (1080p60)", status.VideoQuality)
	require.NotNil(t, status.VideoFragments)
	assert.Equal(t, 7, *status.VideoFragments)
	assert.Nil(t, status.AudioFragments)
}

func TestYTDlp_DownloadProgressWithThreadPrefix(t *testing.T) {
	line := "2: [download_progress]   1.2%,       N/A,       40MiB,   8.56MiB, 149.68KiB/s,Unknown,00:00:08,NA,414,140 - audio only (DASH audio)"

	p := NewYTDlp()
	status := task.NewRecordingStatus()
	p.ParseLine(&status, line)

	assert.Equal(t, task.StateRecording, status.State)
	require.NotNil(t, status.AudioFragments)
	assert.Equal(t, 414, *status.AudioFragments)
	assert.Nil(t, status.VideoFragments)
}

func TestYTDlp_ProgressFallsBackToEstimatedTotalSize(t *testing.T) {
	line := "[download_progress]   1.2%,N/A,1.17GiB,47.86MiB,5.61MiB/s,Unknown,00:00:08,NA,278,299 - 1920x1080 (DASH video)"

	p := NewYTDlp()
	status := task.NewRecordingStatus()
	p.ParseLine(&status, line)

	assert.Equal(t, "1.17GiB", status.TotalSize)
}

func TestYTDlp_WaitingSetsWaitingSince(t *testing.T) {
	line := "[wait] Remaining time until next attempt: 00:01:05"

	p := NewYTDlp()
	status := task.NewRecordingStatus()
	before := time.Now()
	p.ParseLine(&status, line)

	assert.Equal(t, task.StateWaiting, status.State)
	require.NotNil(t, status.WaitingSince)
	assert.WithinDuration(t, before.Add(65*time.Second), *status.WaitingSince, 2*time.Second)
}

func TestYTDlp_DownloadFinishedSetsOutputFile(t *testing.T) {
	line := "[download_finished] output_file: /data/output/stream.mkv"

	p := NewYTDlp()
	status := task.NewRecordingStatus()
	p.ParseLine(&status, line)

	assert.Equal(t, task.StateFinished, status.State)
	assert.Equal(t, "/data/output/stream.mkv", status.OutputFile)
}

func TestYTDlp_TerminalStates(t *testing.T) {
	cases := []struct {
		line  string
		state task.RecorderState
	}{
		{"ERROR: Interrupted by user", task.StateInterrupted},
		{"ERROR: unable to download video data", task.StateErrored},
	}

	for _, tc := range cases {
		p := NewYTDlp()
		status := task.NewRecordingStatus()
		p.ParseLine(&status, tc.line)
		assert.Equal(t, tc.state, status.State, tc.line)
	}
}

func TestYTDlp_MergerAndMetadataAreMuxing(t *testing.T) {
	for _, line := range []string{
		`[Merger] Merging formats into "out.mkv"`,
		`[Metadata] Adding metadata to "out.mkv"`,
		`[EmbedSubtitle] There aren't any subtitles to embed`,
	} {
		p := NewYTDlp()
		status := task.NewRecordingStatus()
		p.ParseLine(&status, line)
		assert.Equal(t, task.StateMuxing, status.State, line)
	}
}

func TestYTDlp_IgnoredLinesLeaveStateUnchanged(t *testing.T) {
	p := NewYTDlp()
	status := task.NewRecordingStatus()
	status.State = task.StateRecording

	p.ParseLine(&status, "[youtube] gEdOmal1A6Q: Downloading webpage")
	assert.Equal(t, task.StateRecording, status.State)
}
