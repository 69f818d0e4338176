// SPDX-License-Identifier: MIT

// Package fsutil provides the small set of filesystem primitives the
// recorder supervisor needs beyond the standard library: moving a finished
// recording into its output directory without ever leaving a reader to
// observe a half-written file, and turning an upstream-supplied title into a
// string safe to embed in a path.
package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Relocate moves src into dstDir, keeping src's base name, and returns the
// final path. It first tries a same-filesystem rename; if that fails (most
// commonly because src and dstDir live on different filesystems), it falls
// back to copying the bytes into a temp file inside dstDir and renaming that
// temp file into place, so a concurrent reader of dstDir never observes a
// partially-written file. The source file is removed only after the copy is
// durable on disk.
//
// Relocate is idempotent against a retry that raced a previous successful
// call: if src no longer exists but dstDir already holds a file by the same
// name, that file is assumed to be the earlier call's result and Relocate
// succeeds as a no-op rather than failing.
func Relocate(src, dstDir string) (string, error) {
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return "", fmt.Errorf("fsutil: create destination directory: %w", err)
	}

	dst := filepath.Join(dstDir, filepath.Base(src))

	if err := os.Rename(src, dst); err == nil {
		return dst, nil
	} else if os.IsNotExist(err) {
		if _, statErr := os.Stat(src); statErr != nil && os.IsNotExist(statErr) {
			if _, statErr := os.Stat(dst); statErr == nil {
				return dst, nil
			}
		}
	}

	if err := copyThenRename(src, dst); err != nil {
		return "", err
	}
	if err := os.Remove(src); err != nil {
		return "", fmt.Errorf("fsutil: remove source after copy: %w", err)
	}
	return dst, nil
}

// copyThenRename copies src into a temp file alongside dst, fsyncs it, and
// renames it into dst's final name. A crash mid-copy leaves only the temp
// file behind, never a truncated dst.
func copyThenRename(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("fsutil: open source: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return fmt.Errorf("fsutil: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("fsutil: copy: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsutil: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("fsutil: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("fsutil: rename temp file into place: %w", err)
	}

	success = true
	return nil
}

var (
	nonAlphanumeric  = regexp.MustCompile(`[^a-zA-Z0-9]`)
	collapseUnderscr = regexp.MustCompile(`_+`)
)

// MaxFilenameLength caps the sanitized name so it fits comfortably within
// filesystem name-length limits even after an extension is appended.
const MaxFilenameLength = 200

// SanitizeFilename turns an arbitrary video or channel title into a string
// safe to embed in a file path: non-alphanumeric runs collapse to a single
// underscore, leading/trailing underscores are trimmed, and the result is
// capped at MaxFilenameLength bytes. An input that sanitizes to nothing (for
// example, an all-emoji title) falls back to "untitled".
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if len(name) > MaxFilenameLength*4 {
		name = name[:MaxFilenameLength*4]
	}

	sanitized := nonAlphanumeric.ReplaceAllString(name, "_")
	sanitized = collapseUnderscr.ReplaceAllString(sanitized, "_")
	sanitized = strings.Trim(sanitized, "_")

	if len(sanitized) > MaxFilenameLength {
		sanitized = strings.Trim(sanitized[:MaxFilenameLength], "_")
	}

	if sanitized == "" {
		return "untitled"
	}
	return sanitized
}
