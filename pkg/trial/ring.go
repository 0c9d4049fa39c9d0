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


package trial

import (
	"sync"

	"jinr.ru/greenlab/go-nsp/pkg/registry"
)

// groupRing buffers the samples of one group. write and read are total
// sample counts; the oldest samples are overwritten when the ring is full
// and accounted for as dropped on the next read.
type groupRing struct {
	mu         sync.Mutex
	group      registry.GroupID
	columns    int
	channels   []registry.ChannelID
	capacity   int
	timestamps []uint64
	samples    []int16
	write      uint64
	read       uint64
	continuity Continuity
	dropped    uint64
}

func newGroupRing(group registry.GroupID, capacity int, channels []registry.ChannelID, columns int) *groupRing {
	return &groupRing{
		group:      group,
		columns:    columns,
		channels:   channels,
		capacity:   capacity,
		timestamps: make([]uint64, capacity),
		samples:    make([]int16, capacity*columns),
		continuity: Continuity{Period: group.Period()},
	}
}

func (r *groupRing) push(t uint64, samples []int16) {
	r.mu.Lock()
	idx := int(r.write % uint64(r.capacity))
	r.timestamps[idx] = t
	copy(r.samples[idx*r.columns:(idx+1)*r.columns], samples)
	r.write++
	r.mu.Unlock()
}

// discard drops everything buffered and forgets the last delivered timestamp.
func (r *groupRing) discard() {
	r.mu.Lock()
	r.read = r.write
	r.continuity.Reanchor()
	r.mu.Unlock()
}

func (r *groupRing) available() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.write - r.read
	if n > uint64(r.capacity) {
		return uint64(r.capacity)
	}
	return n
}

// fetch copies the oldest samples into dst and fills in the count, the
// overflow and the discontinuities of result. With consume set the read
// position moves past everything available, samples not fitting dst included.
func (r *groupRing) fetch(dst *ContinuousBuffer, consume bool, offset uint64, result *ContinuousResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var dropped uint64
	start := r.read
	if r.write-start > uint64(r.capacity) {
		dropped = r.write - start - uint64(r.capacity)
		start = r.write - uint64(r.capacity)
	}
	n := r.write - start
	var excess uint64
	if limit := uint64(dst.Capacity()); n > limit {
		if consume {
			excess = n - limit
		}
		n = limit
	}

	// two chunks when the range wraps
	first := int(start % uint64(r.capacity))
	count := int(n)
	chunk := count
	if first+chunk > r.capacity {
		chunk = r.capacity - first
	}
	copy(dst.Timestamps[:chunk], r.timestamps[first:first+chunk])
	copy(dst.Samples[:chunk*r.columns], r.samples[first*r.columns:(first+chunk)*r.columns])
	if rest := count - chunk; rest > 0 {
		copy(dst.Timestamps[chunk:count], r.timestamps[:rest])
		copy(dst.Samples[chunk*r.columns:count*r.columns], r.samples[:rest*r.columns])
	}

	// continuity is checked on absolute ticks before they are made relative
	tracker := r.continuity
	if dropped > 0 {
		tracker.Reanchor()
	}
	dropped += excess
	var early int
	for i := 0; i < count; i++ {
		previous, _ := tracker.Last()
		if kind := tracker.Check(dst.Timestamps[i]); kind != 0 {
			result.DiscontinuityCount++
			if len(result.Discontinuities) < MaxDiscontinuities {
				result.Discontinuities = append(result.Discontinuities, Discontinuity{
					Index:    i,
					Previous: previous,
					Current:  dst.Timestamps[i],
					Kind:     kind,
				})
			}
		}
		if offset > 0 {
			var ok bool
			if dst.Timestamps[i], ok = relative(dst.Timestamps[i], offset); !ok {
				early++
			}
		}
	}
	if early > 0 {
		logger.Warning("Group %d: %d samples precede the trial start %d, their timestamps are 0", r.group, early, offset)
	}

	if consume {
		r.read = r.write
		r.continuity = tracker
		if excess > 0 {
			r.continuity.Reanchor()
		}
	} else if start > r.read {
		// overwritten samples are gone whether consumed or not
		r.read = start
		r.continuity.Reanchor()
	}
	if dropped > 0 {
		r.dropped += dropped
		result.Overflow = &Overflow{Dropped: dropped}
	}
	result.NumSamples = count
}

// relative converts t to ticks since offset. Only rows buffered before a
// reset can be older than the trial start, they come out as 0.
func relative(t, offset uint64) (uint64, bool) {
	if t >= offset {
		return t - offset, true
	}
	return 0, false
}
