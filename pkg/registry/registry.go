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


// Package registry tracks channel configuration and sample group membership.
//
// Configuration is applied by the instrument asynchronously. SetChannelConfig
// only sends the command and records it as pending; membership queries answer
// from what the instrument has acknowledged. Settle waits until every pending
// update is acknowledged.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"jinr.ru/greenlab/go-nsp/pkg/device"
	"jinr.ru/greenlab/go-nsp/pkg/log"
)

var logger = log.For("registry")

const DefaultSettleInterval = 10 * time.Millisecond

// SnapshotStore keeps named copies of the channel table.
type SnapshotStore interface {
	SaveSnapshot(name string, channels []Channel) error
	LoadSnapshot(name string) ([]Channel, error)
}

type Registry struct {
	session device.Session
	mu      sync.Mutex
	pending map[ChannelID]Channel
}

func New(session device.Session) *Registry {
	return &Registry{
		session: session,
		pending: make(map[ChannelID]Channel),
	}
}

func (r *Registry) NumChannels() int {
	return r.session.NumChannels()
}

// Validate checks that ch is a channel of the instrument.
func (r *Registry) Validate(ch ChannelID) error {
	if ch == 0 || int(ch) > r.session.NumChannels() {
		return ErrInvalidChannel{Channel: ch, Max: r.session.NumChannels()}
	}
	return nil
}

// Channel returns the acknowledged configuration of the channel.
func (r *Registry) Channel(ch ChannelID) (Channel, error) {
	if err := r.Validate(ch); err != nil {
		return Channel{}, err
	}
	info, err := r.session.QueryChannel(uint16(ch))
	if err != nil {
		return Channel{}, err
	}
	return fromInfo(info), nil
}

// Channels returns the acknowledged configuration of every channel.
func (r *Registry) Channels() ([]Channel, error) {
	result := make([]Channel, 0, r.NumChannels())
	for ch := 1; ch <= r.NumChannels(); ch++ {
		c, err := r.Channel(ChannelID(ch))
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, nil
}

// SetChannelConfig merges the update over the latest requested configuration
// of the channel and sends it. It does not wait for acknowledgement.
func (r *Registry) SetChannelConfig(ch ChannelID, update ChannelUpdate) error {
	if err := r.Validate(ch); err != nil {
		return err
	}
	if update.Group != nil && *update.Group > MaxGroup {
		return ErrInvalidGroup{Group: *update.Group}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	base, ok := r.pending[ch]
	if !ok {
		info, err := r.session.QueryChannel(uint16(ch))
		if err != nil {
			return err
		}
		base = fromInfo(info)
	}
	merged := update.Apply(base)
	merged.ID = ch
	if err := r.session.SendChannelConfig(merged.info()); err != nil {
		return fmt.Errorf("send configuration of channel %d: %w", ch, err)
	}
	r.pending[ch] = merged
	logger.Debug("Channel %d requested: group %d input 0x%x spike 0x%x", ch, merged.Group, merged.InputOptions, merged.SpikeOptions)
	return nil
}

// GetGroupMembers returns the acknowledged members of the group in ascending
// channel order. The order is the column order of the group's samples.
func (r *Registry) GetGroupMembers(group GroupID) ([]Channel, error) {
	if !group.Valid() {
		return nil, ErrInvalidGroup{Group: group}
	}
	ids, err := r.session.QueryGroupMembership(uint16(group))
	if err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	members := make([]Channel, 0, len(ids))
	for _, id := range ids {
		info, err := r.session.QueryChannel(id)
		if err != nil {
			return nil, err
		}
		members = append(members, fromInfo(info))
	}
	return members, nil
}

// Pending returns channels whose requested configuration has not been
// acknowledged yet, in ascending order.
func (r *Registry) Pending() []ChannelID {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []ChannelID{}
	for ch, want := range r.pending {
		info, err := r.session.QueryChannel(uint16(ch))
		if err == nil && fromInfo(info) == want {
			delete(r.pending, ch)
			continue
		}
		result = append(result, ch)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// Settle polls the acknowledged state every interval until nothing is
// pending. It returns ErrNotSettled when ctx is done first.
func (r *Registry) Settle(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultSettleInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		pending := r.Pending()
		if len(pending) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			logger.Warning("Configuration not settled: %d channels pending", len(pending))
			return ErrNotSettled{Pending: pending}
		case <-ticker.C:
		}
	}
}

// Save stores the acknowledged channel table under name.
func (r *Registry) Save(store SnapshotStore, name string) error {
	channels, err := r.Channels()
	if err != nil {
		return err
	}
	return store.SaveSnapshot(name, channels)
}

// Restore sends every stored configuration that differs from the
// acknowledged one and returns the number of channels changed.
func (r *Registry) Restore(store SnapshotStore, name string) (int, error) {
	channels, err := store.LoadSnapshot(name)
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, want := range channels {
		have, err := r.Channel(want.ID)
		if err != nil {
			return changed, err
		}
		if have == want {
			continue
		}
		if err := r.SetChannelConfig(want.ID, Full(want)); err != nil {
			return changed, err
		}
		changed++
	}
	logger.Info("Snapshot %s restored, %d channels changed", name, changed)
	return changed, nil
}
