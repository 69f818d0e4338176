// SPDX-License-Identifier: MIT

package webapi

import (
	"context"
	"sync"

	"github.com/HoloArchivists/hoshinova-go/internal/bus"
	"github.com/HoloArchivists/hoshinova-go/internal/task"
)

// Registry is the HTTP API's own bus subscriber: it keeps the most recent
// RecordingStatus seen for every task a ToRecord message has introduced, so
// GET /api/tasks has something to answer with without reaching into the
// recorder supervisor's internals.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]task.TaskSnapshot
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]task.TaskSnapshot)}
}

// Name identifies this service to the outer supervision tree.
func (r *Registry) Name() string { return "webapi-registry" }

// Run consumes the bus until ctx is cancelled or the bus closes, keeping
// Snapshot's view of every known task current.
func (r *Registry) Run(ctx context.Context, b *bus.Bus[task.BusMessage]) error {
	rx := b.AddRx()
	defer b.RemoveRx(rx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-rx:
			if !ok {
				return nil
			}
			r.observe(msg)
		}
	}
}

func (r *Registry) observe(msg task.BusMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch msg.Kind {
	case task.KindToRecord:
		if _, exists := r.tasks[msg.ToRecord.VideoID]; !exists {
			r.tasks[msg.ToRecord.VideoID] = task.TaskSnapshot{
				Task:   msg.ToRecord,
				Status: task.NewRecordingStatus(),
			}
		}
	case task.KindRecordingStatus:
		snap := r.tasks[msg.StatusTask.VideoID]
		snap.Task = msg.StatusTask
		snap.Status = msg.StatusUpdate
		r.tasks[msg.StatusTask.VideoID] = snap
	}
}

// Snapshot returns every known task paired with its most recent status, in
// no particular order.
func (r *Registry) Snapshot() []task.TaskSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]task.TaskSnapshot, 0, len(r.tasks))
	for _, snap := range r.tasks {
		out = append(out, snap)
	}
	return out
}
