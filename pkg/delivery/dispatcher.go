/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/


// Package delivery moves decoded frames from a device session to the trial
// buffers, the spike cache and user callbacks.
package delivery

import (
	"sync"
	"sync/atomic"

	"jinr.ru/greenlab/go-nsp/pkg/device"
	"jinr.ru/greenlab/go-nsp/pkg/layers"
	"jinr.ru/greenlab/go-nsp/pkg/log"
	"jinr.ru/greenlab/go-nsp/pkg/registry"
	"jinr.ru/greenlab/go-nsp/pkg/spike"
	"jinr.ru/greenlab/go-nsp/pkg/trial"
)

var logger = log.For("delivery")

// GroupCallback is called on the delivery goroutine for every frame of the
// group it is registered for. The frame must not be kept after return.
type GroupCallback func(frame *layers.Frame, group *layers.GroupLayer)

type SpikeCallback func(frame *layers.Frame, spike *layers.SpikeLayer)

// Handle identifies a registered callback.
type Handle uint64

type groupHandler struct {
	handle Handle
	group  registry.GroupID
	fn     GroupCallback
}

type spikeHandler struct {
	handle Handle
	fn     SpikeCallback
}

// handlers is replaced as a whole on every registration so OnFrame can
// read it without locking.
type handlers struct {
	groups [registry.MaxGroup + 1][]groupHandler
	spikes []spikeHandler
}

type Stats struct {
	Groups   uint64 `json:"groups"`
	Spikes   uint64 `json:"spikes"`
	Comments uint64 `json:"comments"`
	Other    uint64 `json:"other"`
}

// Dispatcher implements device.Sink.
type Dispatcher struct {
	trial *trial.Session
	cache *spike.Cache

	regMu    sync.Mutex
	handlers atomic.Pointer[handlers]
	next     Handle

	// inflight is held for reading while a frame is dispatched
	inflight sync.RWMutex
	closed   atomic.Bool
	busy     atomic.Int32

	groups   atomic.Uint64
	spikes   atomic.Uint64
	comments atomic.Uint64
	other    atomic.Uint64
}

var _ device.Sink = &Dispatcher{}

// NewDispatcher routes frames to t and cache, either may be nil.
func NewDispatcher(t *trial.Session, cache *spike.Cache) *Dispatcher {
	d := &Dispatcher{trial: t, cache: cache}
	d.handlers.Store(&handlers{})
	return d
}

func (d *Dispatcher) OnFrame(frame *layers.Frame) {
	d.inflight.RLock()
	defer d.inflight.RUnlock()
	if d.closed.Load() {
		return
	}
	d.busy.Add(1)
	defer d.busy.Add(-1)
	h := d.handlers.Load()

	switch {
	case frame.Group != nil:
		d.groups.Add(1)
		group := registry.GroupID(frame.GroupID())
		if !group.Valid() {
			logger.Debug("Frame of unknown group %d dropped", group)
			return
		}
		if d.trial != nil {
			d.trial.AddGroupSamples(group, frame.Time, frame.Group.Samples)
		}
		for _, handler := range h.groups[group] {
			handler.fn(frame, frame.Group)
		}
	case frame.Spike != nil:
		d.spikes.Add(1)
		ch := registry.ChannelID(frame.Chid)
		if d.cache != nil {
			d.cache.Add(ch, frame.Spike.Unit, frame.Time, frame.Spike.Waveform)
		}
		if d.trial != nil {
			d.trial.AddSpike(ch, frame.Spike.Unit, frame.Time)
		}
		for _, handler := range h.spikes {
			handler.fn(frame, frame.Spike)
		}
	case frame.Comment != nil:
		d.comments.Add(1)
		if d.trial != nil {
			d.trial.AddComment(trial.Comment{
				Timestamp: frame.Time,
				Charset:   frame.Comment.Charset,
				RGBA:      frame.Comment.RGBA,
				Text:      frame.Comment.Text,
			})
		}
	default:
		d.other.Add(1)
	}
}

func (d *Dispatcher) update(fn func(h *handlers)) Handle {
	d.regMu.Lock()
	defer d.regMu.Unlock()
	old := d.handlers.Load()
	h := &handlers{spikes: append([]spikeHandler(nil), old.spikes...)}
	for g := range old.groups {
		h.groups[g] = append([]groupHandler(nil), old.groups[g]...)
	}
	d.next++
	fn(h)
	d.handlers.Store(h)
	return d.next
}

// RegisterGroupCallback adds fn for frames of group. It is safe to call
// from within a callback; the new handler sees the next frame.
func (d *Dispatcher) RegisterGroupCallback(group registry.GroupID, fn GroupCallback) (Handle, error) {
	if !group.Valid() {
		return 0, registry.ErrInvalidGroup{Group: group}
	}
	var handle Handle
	d.update(func(h *handlers) {
		handle = d.next
		h.groups[group] = append(h.groups[group], groupHandler{handle: handle, group: group, fn: fn})
	})
	logger.Debug("Registered callback %d for group %d", handle, group)
	return handle, nil
}

func (d *Dispatcher) RegisterSpikeCallback(fn SpikeCallback) Handle {
	var handle Handle
	d.update(func(h *handlers) {
		handle = d.next
		h.spikes = append(h.spikes, spikeHandler{handle: handle, fn: fn})
	})
	return handle
}

// Unregister removes a callback. It returns false for an unknown handle.
// A frame being dispatched may still reach the callback; after Close
// nothing does.
func (d *Dispatcher) Unregister(handle Handle) bool {
	found := false
	d.update(func(h *handlers) {
		for g := range h.groups {
			for i, handler := range h.groups[g] {
				if handler.handle == handle {
					h.groups[g] = append(h.groups[g][:i], h.groups[g][i+1:]...)
					found = true
					return
				}
			}
		}
		for i, handler := range h.spikes {
			if handler.handle == handle {
				h.spikes = append(h.spikes[:i], h.spikes[i+1:]...)
				found = true
				return
			}
		}
	})
	return found
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Groups:   d.groups.Load(),
		Spikes:   d.spikes.Load(),
		Comments: d.comments.Load(),
		Other:    d.other.Load(),
	}
}

// Stop makes OnFrame drop every later frame without waiting for the one
// being dispatched, so it may be called from a callback.
func (d *Dispatcher) Stop() {
	d.closed.Store(true)
}

// Dispatching reports whether a frame is being dispatched right now.
func (d *Dispatcher) Dispatching() bool {
	return d.busy.Load() > 0
}

// Close waits for the frame being dispatched and drops every later one.
// Calling it from a callback deadlocks, use Stop there.
func (d *Dispatcher) Close() {
	d.closed.Store(true)
	d.inflight.Lock()
	defer d.inflight.Unlock()
	d.handlers.Store(&handlers{})
}
