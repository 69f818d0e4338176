// SPDX-License-Identifier: MIT

package main

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthAddr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:9091", healthAddr("127.0.0.1:9090"))
	assert.Equal(t, "not-a-host-port", healthAddr("not-a-host-port"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelInfo, parseLevel("nonsense"))
}
