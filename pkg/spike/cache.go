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


// Package spike caches spike waveforms per channel until the caller drains
// them.
package spike

import (
	"sync"

	"jinr.ru/greenlab/go-nsp/pkg/registry"
)

// DefaultDepth is the number of waveforms kept per channel. Older ones are
// overwritten when a channel is not drained in time.
const DefaultDepth = 400

type Waveform struct {
	Samples   []int16 `msgpack:"samples"`
	Unit      uint16  `msgpack:"unit"`
	Timestamp uint64  `msgpack:"timestamp"`
}

type line struct {
	entries []Waveform
	write   uint64
	read    uint64
	dropped uint64
}

func (l *line) drain() []Waveform {
	capacity := uint64(len(l.entries))
	if l.write-l.read > capacity {
		l.dropped += l.write - l.read - capacity
		l.read = l.write - capacity
	}
	result := make([]Waveform, 0, l.write-l.read)
	for ; l.read < l.write; l.read++ {
		idx := int(l.read % capacity)
		result = append(result, l.entries[idx])
		l.entries[idx] = Waveform{}
	}
	return result
}

type LineStats struct {
	Total   uint64 `json:"total"`
	Pending uint64 `json:"pending"`
	Dropped uint64 `json:"dropped"`
}

// Cache lines are independent: draining one channel never touches another.
type Cache struct {
	mu    sync.Mutex
	depth int
	lines map[registry.ChannelID]*line
}

func NewCache(depth int) *Cache {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Cache{
		depth: depth,
		lines: make(map[registry.ChannelID]*line),
	}
}

func (c *Cache) Depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.depth
}

// Add stores a waveform. The slice is kept, not copied.
func (c *Cache) Add(ch registry.ChannelID, unit uint16, t uint64, samples []int16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.lines[ch]
	if !ok {
		l = &line{entries: make([]Waveform, c.depth)}
		c.lines[ch] = l
	}
	l.entries[int(l.write%uint64(c.depth))] = Waveform{Samples: samples, Unit: unit, Timestamp: t}
	l.write++
}

// Drain moves out every waveform of the channel that arrived since the
// previous drain, oldest first.
func (c *Cache) Drain(ch registry.ChannelID) []Waveform {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.lines[ch]
	if !ok {
		return []Waveform{}
	}
	return l.drain()
}

// GetNewWaveforms drains the channel and returns waveforms and their units
// as parallel slices. Both are empty when nothing new arrived.
func (c *Cache) GetNewWaveforms(ch registry.ChannelID) ([][]int16, []uint16) {
	drained := c.Drain(ch)
	waveforms := make([][]int16, len(drained))
	units := make([]uint16, len(drained))
	for i, w := range drained {
		waveforms[i] = w.Samples
		units[i] = w.Unit
	}
	return waveforms, units
}

// SetDepth changes the number of waveforms kept per channel. Cached
// waveforms are discarded when the depth changes.
func (c *Cache) SetDepth(depth int) {
	if depth <= 0 {
		depth = DefaultDepth
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if depth == c.depth {
		return
	}
	c.depth = depth
	c.lines = make(map[registry.ChannelID]*line)
}

// Reset discards every cached waveform.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = make(map[registry.ChannelID]*line)
}

func (c *Cache) Stats(ch registry.ChannelID) LineStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.lines[ch]
	if !ok {
		return LineStats{}
	}
	pending := l.write - l.read
	if pending > uint64(c.depth) {
		pending = uint64(c.depth)
	}
	return LineStats{Total: l.write, Pending: pending, Dropped: l.dropped}
}

// Channel binds the cache to one channel.
type Channel struct {
	cache *Cache
	ch    registry.ChannelID
}

func (c *Cache) Channel(ch registry.ChannelID) *Channel {
	return &Channel{cache: c, ch: ch}
}

func (c *Channel) GetNewWaveforms() ([][]int16, []uint16) {
	return c.cache.GetNewWaveforms(c.ch)
}
