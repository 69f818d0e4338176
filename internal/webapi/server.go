// SPDX-License-Identifier: MIT

// Package webapi implements the HTTP API: task visibility, the bare-URL
// recording shortcut, version reporting, and config store administration.
// Routing, JSON encoding and the listen/serve lifecycle follow
// internal/health's handler: a manual path switch in ServeHTTP, the
// standard library's encoding/json with no framework, and a synchronous-bind
// ListenAndServeReady so a port-in-use error surfaces before the caller
// considers the server up.
package webapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/HoloArchivists/hoshinova-go/internal/bus"
	"github.com/HoloArchivists/hoshinova-go/internal/buildinfo"
	"github.com/HoloArchivists/hoshinova-go/internal/config"
	"github.com/HoloArchivists/hoshinova-go/internal/task"
	"github.com/HoloArchivists/hoshinova-go/internal/youtube"
)

// maxRequestBody caps the size of PUT /api/config/toml and POST /api/task
// bodies this server will read.
const maxRequestBody = 1 << 20

// VideoResolver fetches a video's metadata given its id, used by
// POST /api/task to turn a bare URL into a full Task. Satisfied by
// *youtube.Client; an interface here only to keep tests free of real network
// calls.
type VideoResolver interface {
	ResolveVideo(ctx context.Context, videoID string) (*youtube.VideoDetails, error)
}

// Handler serves every route of the HTTP API.
type Handler struct {
	store    *config.Store
	bus      *bus.Bus[task.BusMessage]
	registry *Registry
	resolver VideoResolver
	logger   *slog.Logger
	static   http.Handler
}

// Option configures a Handler at construction time.
type Option func(*Handler)

// WithLogger attaches a structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithStaticAssets serves fileHandler for any request path that matches none of the
// /api/* routes, the way the upstream UI bundle is served from disk.
func WithStaticAssets(fileHandler http.Handler) Option {
	return func(h *Handler) { h.static = fileHandler }
}

// WithVideoResolver overrides the default *youtube.Client resolver, chiefly
// for tests.
func WithVideoResolver(r VideoResolver) Option {
	return func(h *Handler) { h.resolver = r }
}

// NewHandler constructs a Handler. registry must already be wired to b (via
// Registry.Run) for GET /api/tasks to report anything.
func NewHandler(store *config.Store, b *bus.Bus[task.BusMessage], registry *Registry, opts ...Option) *Handler {
	h := &Handler{
		store:    store,
		bus:      b,
		registry: registry,
		resolver: youtube.NewClient(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP routes every request, falling back to the static asset handler
// (if any) for anything not under /api/.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/tasks" && r.Method == http.MethodGet:
		h.getTasks(w, r)
	case r.URL.Path == "/api/task" && r.Method == http.MethodPost:
		h.postTask(w, r)
	case r.URL.Path == "/api/version" && r.Method == http.MethodGet:
		h.getVersion(w, r)
	case r.URL.Path == "/api/config" && r.Method == http.MethodGet:
		h.getConfig(w, r)
	case r.URL.Path == "/api/config/toml" && r.Method == http.MethodGet:
		h.getConfigTOML(w, r)
	case r.URL.Path == "/api/config/toml" && r.Method == http.MethodPut:
		h.putConfigTOML(w, r)
	case r.URL.Path == "/api/config/reload" && r.Method == http.MethodPost:
		h.postConfigReload(w, r)
	case h.static != nil:
		h.static.ServeHTTP(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) getTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Snapshot())
}

type postTaskRequest struct {
	VideoURL        string `json:"video_url"`
	OutputDirectory string `json:"output_directory"`
}

func (h *Handler) postTask(w http.ResponseWriter, r *http.Request) {
	var req postTaskRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request body: %w", err))
		return
	}
	if req.VideoURL == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("video_url is required"))
		return
	}
	if req.OutputDirectory == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("output_directory is required"))
		return
	}

	videoID, err := youtube.ExtractVideoID(req.VideoURL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	details, err := h.resolver.ResolveVideo(r.Context(), videoID)
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Errorf("resolve video: %w", err))
		return
	}

	recorder := "ytarchive"
	cfg := h.store.Get()
	for _, ch := range cfg.Channel {
		if ch.ID == details.ChannelID {
			recorder = ch.Recorder
			break
		}
	}

	t := task.Task{
		VideoID:         details.VideoID,
		Title:           details.Title,
		ChannelID:       details.ChannelID,
		ChannelName:     details.ChannelName,
		OutputDirectory: req.OutputDirectory,
		Recorder:        recorder,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := h.bus.AddTx().Send(ctx, task.NewToRecord(t)); err != nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("publish task: %w", err))
		return
	}

	writeJSON(w, http.StatusAccepted, t)
}

type versionResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (h *Handler) getVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, versionResponse{Name: buildinfo.AppName, Version: buildinfo.Version})
}

func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Get())
}

func (h *Handler) getConfigTOML(w http.ResponseWriter, r *http.Request) {
	text, err := h.store.GetSourceTOML()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/toml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, text)
}

func (h *Handler) putConfigTOML(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read request body: %w", err))
		return
	}
	if err := h.store.SetSourceTOML(string(body)); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) postConfigReload(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Reload(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// ListenAndServeReady starts the HTTP API on addr, binding synchronously so
// a bind failure is returned to the caller rather than discovered later.
// Once bound, ready (if non-nil) is closed. It shuts down gracefully when
// ctx is cancelled.
func ListenAndServeReady(ctx context.Context, addr string, handler http.Handler, ready chan<- struct{}) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("webapi: listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	if ready != nil {
		close(ready)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("webapi: shutdown: %w", err)
	}
	return <-errCh
}
