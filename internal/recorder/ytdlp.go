// SPDX-License-Identifier: MIT

package recorder

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/HoloArchivists/hoshinova-go/internal/config"
	"github.com/HoloArchivists/hoshinova-go/internal/recorder/parser"
	"github.com/HoloArchivists/hoshinova-go/internal/task"
)

// progressTemplateFields are yt-dlp's own --progress-template source
// expressions, in the exact order parser.YTDlp expects them back on the
// comma-separated [download_progress] line it emits.
var progressTemplateFields = []string{
	"progress._percent_str",
	"progress._total_bytes_str",
	"progress._total_bytes_estimate_str",
	"progress._downloaded_bytes_str",
	"progress._speed_str",
	"progress._eta_str",
	"progress._elapsed_str",
	"progress.fragment_count",
	"progress.fragment_index",
	"info.format",
}

// ytdlpBackend drives yt-dlp as an alternative to ytarchive, used for
// channels whose ChannelSpec.Recorder is "yt-dlp".
type ytdlpBackend struct{}

func (*ytdlpBackend) Name() string { return "yt-dlp" }

func (*ytdlpBackend) WorkingDirectory(cfg *config.Config) string {
	return cfg.Ytdlp.WorkingDirectory
}

func (*ytdlpBackend) DelayStart(cfg *config.Config) Duration {
	return cfg.Ytdlp.DelayStart
}

func (*ytdlpBackend) Parser() parser.Parser {
	return parser.NewYTDlp()
}

func (*ytdlpBackend) BuildCommand(_ context.Context, cfg *config.Config, t task.Task) (*exec.Cmd, error) {
	if cfg.Ytdlp.ExecutablePath == "" {
		return nil, fmt.Errorf("recorder: ytdlp.executable_path is not configured")
	}

	args := append([]string(nil), cfg.Ytdlp.Args...)
	if !hasFlag(args, "--wait-for-video") {
		args = append(args, "--wait-for-video", "10")
	}
	if !hasFlag(args, "--live-from-start") {
		args = append(args, "--live-from-start")
	}
	if !hasFlag(args, "--no-colors") {
		args = append(args, "--no-colors")
	}
	if !hasFlag(args, "--newline") {
		args = append(args, "--newline")
	}

	tmplFields := make([]string, len(progressTemplateFields))
	for i, f := range progressTemplateFields {
		tmplFields[i] = fmt.Sprintf("%%(%s)s", f)
	}
	args = append(args,
		"--progress-template", "[download_progress] "+strings.Join(tmplFields, ",")+"\n",
		"--exec", `echo '[download_finished] output_file: %(filepath,_filename)q'`,
	)

	args = append(args, fmt.Sprintf("https://www.youtube.com/watch?v=%s", t.VideoID), cfg.Ytdlp.Quality)

	// Deliberately exec.Command, not exec.CommandContext: a daemon shutdown
	// must not kill an in-progress recording and risk corrupting the
	// partially-written media.
	cmd := exec.Command(cfg.Ytdlp.ExecutablePath, args...)
	cmd.Dir = cfg.Ytdlp.WorkingDirectory
	return cmd, nil
}
