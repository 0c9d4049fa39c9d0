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


// Package sim emulates a neural signal processor: a channel table that
// applies configuration after a delay, a sawtooth generator for every
// sample group and a spike generator.
package sim

import (
	"sort"
	"sync"

	"jinr.ru/greenlab/go-nsp/pkg/layers"
	"jinr.ru/greenlab/go-nsp/pkg/log"
)

var logger = log.For("sim")

const (
	// SpikeExtract in SpikeOptions enables the spike generator for a channel
	SpikeExtract uint32 = 0x0001

	DefaultAckDelay        = 300
	DefaultHeartbeatPeriod = 300
	DefaultSpikePeriod     = 3000
	WaveformLength         = 48
)

// Output receives every batch of frames the instrument emits.
type Output func(frames []*layers.Frame)

type pendingConfig struct {
	info    layers.ChanInfoLayer
	applyAt uint64
}

type Instrument struct {
	mu          sync.Mutex
	numChannels int
	channels    []layers.ChanInfoLayer
	groups      [layers.NumGroups + 1][]uint16
	pending     []pendingConfig
	time        uint64
	counters    [layers.NumGroups + 1]int64
	spikes      uint64
	out         Output

	// AckDelay is the number of ticks before a channel configuration
	// takes effect and is reported back
	AckDelay        uint64
	HeartbeatPeriod uint64
	SpikePeriod     uint64
	// DuplicateEvery and SkipEvery inject faults into group frames:
	// every n-th frame of each group is repeated or dropped. Zero disables.
	DuplicateEvery uint64
	SkipEvery      uint64
}

type Option func(*Instrument)

func WithAckDelay(ticks uint64) Option {
	return func(i *Instrument) { i.AckDelay = ticks }
}

func WithSpikePeriod(ticks uint64) Option {
	return func(i *Instrument) { i.SpikePeriod = ticks }
}

func WithStartTime(ticks uint64) Option {
	return func(i *Instrument) { i.time = ticks }
}

func WithFaults(duplicateEvery, skipEvery uint64) Option {
	return func(i *Instrument) {
		i.DuplicateEvery = duplicateEvery
		i.SkipEvery = skipEvery
	}
}

func NewInstrument(numChannels int, opts ...Option) *Instrument {
	inst := &Instrument{
		numChannels:     numChannels,
		channels:        make([]layers.ChanInfoLayer, numChannels),
		AckDelay:        DefaultAckDelay,
		HeartbeatPeriod: DefaultHeartbeatPeriod,
		SpikePeriod:     DefaultSpikePeriod,
	}
	for i := range inst.channels {
		inst.channels[i] = layers.ChanInfoLayer{Chan: uint16(i + 1)}
	}
	for _, opt := range opts {
		opt(inst)
	}
	return inst
}

func (i *Instrument) NumChannels() int {
	return i.numChannels
}

func (i *Instrument) SetOutput(out Output) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.out = out
}

func (i *Instrument) Time() uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.time
}

// Channel returns the configuration currently applied to the channel.
func (i *Instrument) Channel(ch uint16) (layers.ChanInfoLayer, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if ch == 0 || int(ch) > i.numChannels {
		return layers.ChanInfoLayer{}, false
	}
	return i.channels[ch-1], true
}

// HandleFrame processes a frame sent by the client.
func (i *Instrument) HandleFrame(frame *layers.Frame) {
	if frame.ChanInfo == nil {
		logger.Debug("Ignore frame of kind %s", frame.Kind())
		return
	}
	i.mu.Lock()
	var reports []*layers.Frame
	switch frame.Type {
	case layers.TypeChanInfoSet:
		info := *frame.ChanInfo
		if info.Chan == 0 || int(info.Chan) > i.numChannels {
			logger.Warning("Ignore configuration of unknown channel %d", info.Chan)
			break
		}
		if int(info.Group) > layers.NumGroups {
			logger.Warning("Ignore configuration of channel %d: unknown group %d", info.Chan, info.Group)
			break
		}
		if i.AckDelay == 0 {
			reports = append(reports, i.apply(info))
			break
		}
		i.pending = append(i.pending, pendingConfig{info: info, applyAt: i.time + i.AckDelay})
	case layers.TypeChanInfoQuery:
		if frame.ChanInfo.Label != "" {
			logger.Debug("Client protocol version %s", frame.ChanInfo.Label)
		}
		if frame.ChanInfo.Chan == 0 {
			for ch := range i.channels {
				reports = append(reports, i.report(&i.channels[ch]))
			}
		} else if int(frame.ChanInfo.Chan) <= i.numChannels {
			reports = append(reports, i.report(&i.channels[frame.ChanInfo.Chan-1]))
		}
	}
	out := i.out
	i.mu.Unlock()

	if out != nil && len(reports) > 0 {
		out(reports)
	}
}

// Comment emits a comment frame stamped with the current time.
func (i *Instrument) Comment(text string, rgba uint32) {
	i.mu.Lock()
	frame := layers.NewCommentFrame(i.time, &layers.CommentLayer{Charset: layers.CharsetASCII, RGBA: rgba, Text: text})
	out := i.out
	i.mu.Unlock()
	if out != nil {
		out([]*layers.Frame{frame})
	}
}

// Step advances the clock by the given number of ticks and emits the frames
// produced meanwhile as one batch.
func (i *Instrument) Step(ticks int) {
	i.mu.Lock()
	var frames []*layers.Frame
	for n := 0; n < ticks; n++ {
		i.time++
		frames = i.tick(frames)
	}
	out := i.out
	i.mu.Unlock()

	if out != nil && len(frames) > 0 {
		out(frames)
	}
}

func (i *Instrument) tick(frames []*layers.Frame) []*layers.Frame {
	t := i.time
	if len(i.pending) > 0 {
		kept := i.pending[:0]
		for _, p := range i.pending {
			if p.applyAt <= t {
				frames = append(frames, i.apply(p.info))
				continue
			}
			kept = append(kept, p)
		}
		i.pending = kept
	}

	if i.HeartbeatPeriod > 0 && t%i.HeartbeatPeriod == 0 {
		frames = append(frames, layers.NewHeartbeatFrame(t))
	}

	for g := uint16(1); g <= layers.NumGroups; g++ {
		if t%layers.GroupPeriod(g) != 0 {
			continue
		}
		members := i.groups[g]
		if len(members) == 0 {
			continue
		}
		i.counters[g]++
		seq := uint64(i.counters[g])
		if i.SkipEvery > 0 && seq%i.SkipEvery == 0 {
			continue
		}
		frame := layers.NewGroupFrame(t, g, Sawtooth(i.counters[g], len(members)))
		frames = append(frames, frame)
		if i.DuplicateEvery > 0 && seq%i.DuplicateEvery == 0 {
			frames = append(frames, frame)
		}
	}

	if i.SpikePeriod > 0 && t%i.SpikePeriod == 0 {
		for ch := range i.channels {
			info := &i.channels[ch]
			if info.SpikeOptions&SpikeExtract == 0 {
				continue
			}
			i.spikes++
			unit := SpikeUnit(i.spikes)
			frames = append(frames, layers.NewSpikeFrame(t, info.Chan, unit, Waveform(unit)))
		}
	}
	return frames
}

func (i *Instrument) apply(info layers.ChanInfoLayer) *layers.Frame {
	i.channels[info.Chan-1] = info
	for g := range i.groups {
		i.groups[g] = i.members(uint16(g))
	}
	logger.Debug("Channel %d applied: group %d", info.Chan, info.Group)
	return i.report(&i.channels[info.Chan-1])
}

func (i *Instrument) report(info *layers.ChanInfoLayer) *layers.Frame {
	c := *info
	return layers.NewChanInfoFrame(i.time, layers.TypeChanInfoReport, &c)
}

func (i *Instrument) members(group uint16) []uint16 {
	var result []uint16
	for ch := range i.channels {
		if i.channels[ch].Group == group {
			result = append(result, i.channels[ch].Chan)
		}
	}
	sort.Slice(result, func(a, b int) bool { return result[a] < result[b] })
	return result
}

// Sawtooth returns the n-th sample of a group with the given column count:
// column 0 rises by one per sample, column 1 falls by one, both wrapping at
// int16 bounds; other columns hold 100*(column+1).
func Sawtooth(n int64, columns int) []int16 {
	samples := make([]int16, columns)
	for col := range samples {
		switch col {
		case 0:
			samples[col] = int16(n)
		case 1:
			samples[col] = int16(-n)
		default:
			samples[col] = int16(100 * (col + 1))
		}
	}
	return samples
}

// SpikeUnit cycles through units 1..3 with every fourth spike being noise.
func SpikeUnit(n uint64) uint16 {
	if n%4 == 0 {
		return layers.NoiseUnit
	}
	return uint16(n % 4)
}

// Waveform is a triangle whose amplitude depends on the unit.
func Waveform(unit uint16) []int16 {
	w := make([]int16, WaveformLength)
	amp := int16(unit%16) * 50
	for k := range w {
		d := k - WaveformLength/4
		if d < 0 {
			d = -d
		}
		w[k] = -amp + int16(d)*amp/int16(WaveformLength/4)
	}
	return w
}
