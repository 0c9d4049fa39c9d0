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


// Package nsp ties a device session, the channel registry, the trial
// buffers and frame delivery into one engine.
package nsp

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"jinr.ru/greenlab/go-nsp/pkg/config"
	"jinr.ru/greenlab/go-nsp/pkg/delivery"
	"jinr.ru/greenlab/go-nsp/pkg/device"
	"jinr.ru/greenlab/go-nsp/pkg/log"
	"jinr.ru/greenlab/go-nsp/pkg/registry"
	"jinr.ru/greenlab/go-nsp/pkg/spike"
	"jinr.ru/greenlab/go-nsp/pkg/trial"
)

var logger = log.For("nsp")

type options struct {
	session device.Session
	store   registry.SnapshotStore
}

type Option func(*options)

// WithSession makes the engine use s instead of opening a UDP session.
// The engine does not close a supplied session.
func WithSession(s device.Session) Option {
	return func(o *options) { o.session = s }
}

// WithStore enables Save and Restore of channel snapshots.
func WithStore(store registry.SnapshotStore) Option {
	return func(o *options) { o.store = store }
}

type Engine struct {
	id          string
	cfg         *config.Config
	session     device.Session
	ownsSession bool
	store       registry.SnapshotStore
	registry    *registry.Registry
	trial       *trial.Session
	cache       *spike.Cache
	dispatcher  *delivery.Dispatcher
	attachment  *delivery.Attachment

	closing atomic.Bool
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
}

type Stats struct {
	ID       string         `json:"id"`
	Session  string         `json:"session"`
	Time     uint64         `json:"time"`
	Trial    trial.Stats    `json:"trial"`
	Delivery delivery.Stats `json:"delivery"`
}

func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}

	e := &Engine{
		id:    uuid.NewString(),
		cfg:   cfg,
		store: o.store,
		done:  make(chan struct{}),
	}
	if o.session != nil {
		e.session = o.session
	} else {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		session, err := device.OpenUDP(ctx, cfg.Connection, cfg.NumChannels)
		if err != nil {
			return nil, err
		}
		e.session = session
		e.ownsSession = true
	}

	e.registry = registry.New(e.session)
	e.trial = trial.NewSession(e.session.Time, e.members)
	e.cache = spike.NewCache(0)
	e.dispatcher = delivery.NewDispatcher(e.trial, e.cache)

	attachment, err := delivery.Attach(context.Background(), e.session, e.dispatcher)
	if err != nil {
		e.trial.Close()
		if e.ownsSession {
			e.session.Close()
		}
		return nil, err
	}
	e.attachment = attachment
	logger.Info("Engine %s opened on session %s with %d channels", e.id, e.session.ID(), e.session.NumChannels())
	return e, nil
}

func (e *Engine) members(group registry.GroupID) ([]registry.ChannelID, error) {
	channels, err := e.registry.GetGroupMembers(group)
	if err != nil {
		return nil, err
	}
	result := make([]registry.ChannelID, len(channels))
	for i, c := range channels {
		result[i] = c.ID
	}
	return result, nil
}

func (e *Engine) check() error {
	if e.closed {
		return trial.ErrClosed{}
	}
	return nil
}

func (e *Engine) ID() string {
	return e.id
}

func (e *Engine) Config() *config.Config {
	return e.cfg
}

func (e *Engine) NumChannels() int {
	return e.session.NumChannels()
}

// Time is the latest instrument time seen, in ticks.
func (e *Engine) Time() uint64 {
	return e.session.Time()
}

func (e *Engine) SetChannelConfig(ch registry.ChannelID, update registry.ChannelUpdate) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.check(); err != nil {
		return err
	}
	return e.registry.SetChannelConfig(ch, update)
}

func (e *Engine) Channel(ch registry.ChannelID) (registry.Channel, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.check(); err != nil {
		return registry.Channel{}, err
	}
	return e.registry.Channel(ch)
}

// GetSampleGroup returns the acknowledged members of a group sorted by
// channel id, which is the column order of its samples.
func (e *Engine) GetSampleGroup(group registry.GroupID) ([]registry.Channel, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.check(); err != nil {
		return nil, err
	}
	return e.registry.GetGroupMembers(group)
}

// Settle waits until every configuration sent is acknowledged.
func (e *Engine) Settle(ctx context.Context) error {
	if err := e.transportErr(); err != nil {
		return err
	}
	return e.registry.Settle(ctx, registry.DefaultSettleInterval)
}

func (e *Engine) Pending() []registry.ChannelID {
	return e.registry.Pending()
}

// TrialConfig applies cfg and activates the trial in the given mode.
func (e *Engine) TrialConfig(cfg trial.Config, mode trial.ActivationMode) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.check(); err != nil {
		return err
	}
	fresh := mode == trial.ModeReset || (mode == trial.ModeActivate && e.trial.State() != trial.StateActive)
	if err := e.trial.Configure(cfg); err != nil {
		return err
	}
	e.cache.SetDepth(cfg.Waveforms)
	if err := e.trial.Activate(mode); err != nil {
		return err
	}
	if fresh {
		e.cache.Reset()
	}
	return nil
}

// DefaultTrialConfig is the trial configuration from the config file.
func (e *Engine) DefaultTrialConfig() trial.Config {
	return trial.FromDefaults(e.cfg.Trial)
}

// StopTrial stops capturing and keeps what is buffered.
func (e *Engine) StopTrial() error {
	return e.trial.Deactivate()
}

func (e *Engine) transportErr() error {
	if e.attachment == nil {
		return nil
	}
	return e.attachment.Err()
}

func (e *Engine) TrialContinuous(group registry.GroupID, opts trial.FetchOptions) (*trial.ContinuousResult, error) {
	if err := e.transportErr(); err != nil {
		return nil, err
	}
	return e.trial.FetchContinuous(group, opts)
}

func (e *Engine) TrialEvent(reset bool) (*trial.EventResult, error) {
	if err := e.transportErr(); err != nil {
		return nil, err
	}
	return e.trial.FetchEvents(reset)
}

func (e *Engine) TrialComment(reset bool) ([]trial.Comment, error) {
	if err := e.transportErr(); err != nil {
		return nil, err
	}
	return e.trial.FetchComments(reset)
}

// SpikeCache returns the waveform cache of one channel.
func (e *Engine) SpikeCache(ch registry.ChannelID) (*spike.Channel, error) {
	if err := e.registry.Validate(ch); err != nil {
		return nil, err
	}
	return e.cache.Channel(ch), nil
}

func (e *Engine) Waveforms() *spike.Cache {
	return e.cache
}

func (e *Engine) RegisterGroupCallback(group registry.GroupID, fn delivery.GroupCallback) (delivery.Handle, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.check(); err != nil {
		return 0, err
	}
	return e.dispatcher.RegisterGroupCallback(group, fn)
}

func (e *Engine) RegisterSpikeCallback(fn delivery.SpikeCallback) (delivery.Handle, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.check(); err != nil {
		return 0, err
	}
	return e.dispatcher.RegisterSpikeCallback(fn), nil
}

// UnregisterGroupCallback removes a group or spike callback. A frame being
// dispatched while it runs may still reach the callback once; no later
// frame does. It returns false for an unknown handle.
func (e *Engine) UnregisterGroupCallback(handle delivery.Handle) bool {
	return e.dispatcher.Unregister(handle)
}

func (e *Engine) Save(name string) error {
	if e.store == nil {
		return ErrNoStore{}
	}
	return e.registry.Save(e.store, name)
}

func (e *Engine) Restore(name string) (int, error) {
	if e.store == nil {
		return 0, ErrNoStore{}
	}
	return e.registry.Restore(e.store, name)
}

func (e *Engine) Stats() Stats {
	return Stats{
		ID:       e.id,
		Session:  e.session.ID(),
		Time:     e.session.Time(),
		Trial:    e.trial.Stats(),
		Delivery: e.dispatcher.Stats(),
	}
}

// Close stops delivery. Called outside delivery it waits for callbacks in
// flight and releases the trial buffers before returning. Called from a
// callback, or while another goroutine is dispatching, it returns at once
// and the release happens after the frame in flight returns; Done is
// closed when it has. Only the first call does anything.
func (e *Engine) Close() error {
	if !e.closing.CompareAndSwap(false, true) {
		return nil
	}
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.dispatcher.Stop()
	if e.dispatcher.Dispatching() {
		logger.Debug("Engine %s closing during delivery, releasing in background", e.id)
		go func() {
			if err := e.release(); err != nil {
				logger.Error("Engine %s: closing session: %s", e.id, err)
			}
		}()
		return nil
	}
	return e.release()
}

func (e *Engine) release() error {
	defer close(e.done)
	e.attachment.Detach()
	e.dispatcher.Close()
	e.trial.Close()
	e.cache.Reset()
	var err error
	if e.ownsSession {
		err = e.session.Close()
	}
	logger.Info("Engine %s closed", e.id)
	return err
}

// Done is closed once Close has released the session and the trial buffers.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}
