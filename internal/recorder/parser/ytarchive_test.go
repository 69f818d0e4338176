// SPDX-License-Identifier: MIT

package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HoloArchivists/hoshinova-go/internal/task"
)

func TestYTArchive_VersionAndQuality(t *testing.T) {
	p := NewYTArchive()
	status := task.NewRecordingStatus()

	p.ParseLine(&status, "ytarchive 0.3.1-15663af")
	assert.Equal(t, "0.3.1-15663af", status.Version)

	p.ParseLine(&status, "Selected quality: 1080p60 (h264)")
	assert.Equal(t, "1080p60 (h264)", status.VideoQuality)
}

func TestYTArchive_StreamStartsAtSetsWaitingSince(t *testing.T) {
	p := NewYTArchive()
	status := task.NewRecordingStatus()

	p.ParseLine(&status, "Stream starts at 2022-03-14T14:00:00+00:00 in 11075 seconds. Waiting for this time to elapse...")

	assert.Equal(t, task.StateWaiting, status.State)
	require.NotNil(t, status.WaitingSince)
	assert.Equal(t, "2022-03-14T14:00:00Z", status.WaitingSince.UTC().Format("2006-01-02T15:04:05Z"))
}

func TestYTArchive_FragmentLineSetsRecordingAndCounts(t *testing.T) {
	p := NewYTArchive()
	status := task.NewRecordingStatus()

	p.ParseLine(&status, "Video Fragments: 1215; Audio Fragments: 1215; Total Downloaded: 133.12MiB")

	assert.Equal(t, task.StateRecording, status.State)
	require.NotNil(t, status.VideoFragments)
	require.NotNil(t, status.AudioFragments)
	assert.Equal(t, 1215, *status.VideoFragments)
	assert.Equal(t, 1215, *status.AudioFragments)
	assert.Equal(t, "133.12MiB", status.TotalSize)
}

func TestYTArchive_AudioOnlyFragmentLine(t *testing.T) {
	p := NewYTArchive()
	status := task.NewRecordingStatus()

	p.ParseLine(&status, "Audio Fragments: 42; Total Downloaded: 10.0MiB")

	assert.Equal(t, task.StateRecording, status.State)
	assert.Nil(t, status.VideoFragments)
	require.NotNil(t, status.AudioFragments)
	assert.Equal(t, 42, *status.AudioFragments)
	assert.Equal(t, "10.0MiB", status.TotalSize)
}

func TestYTArchive_FinalFileSetsFinishedAndOutputFile(t *testing.T) {
	p := NewYTArchive()
	status := task.NewRecordingStatus()

	p.ParseLine(&status, "Final file: /data/output/stream.mp4")

	assert.Equal(t, task.StateFinished, status.State)
	assert.Equal(t, "/data/output/stream.mp4", status.OutputFile)
}

func TestYTArchive_TerminalStates(t *testing.T) {
	cases := []struct {
		line  string
		state task.RecorderState
	}{
		{"Livestream has been processed, nothing to do", task.StateAlreadyProcessed},
		{"Livestream has ended and is being processed, can't be recovered, use yt-dlp to download it.", task.StateEnded},
		{"User Interrupt, exiting", task.StateInterrupted},
		{"Error retrieving player response, something went wrong", task.StateErrored},
	}

	for _, tc := range cases {
		p := NewYTArchive()
		status := task.NewRecordingStatus()
		p.ParseLine(&status, tc.line)
		assert.Equal(t, tc.state, status.State, tc.line)
	}
}

func TestYTArchive_IgnoredLinesLeaveStateUnchanged(t *testing.T) {
	p := NewYTArchive()
	status := task.NewRecordingStatus()
	status.State = task.StateRecording

	p.ParseLine(&status, "Video Title: Some Stream")
	assert.Equal(t, task.StateRecording, status.State)
}
