// SPDX-License-Identifier: MIT

package util

import "log/slog"

// SlogWriter adapts a *slog.Logger to an io.Writer, so APIs built around a
// plain writer (SafeGo's panic log, for instance) can still end up in the
// same structured log stream as everything else.
type SlogWriter struct {
	Logger *slog.Logger
}

func (w SlogWriter) Write(p []byte) (int, error) {
	w.Logger.Error(string(p))
	return len(p), nil
}
