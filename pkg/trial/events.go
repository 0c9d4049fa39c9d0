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
	"jinr.ru/greenlab/go-nsp/pkg/registry"
)

// eventRing holds the unit and timestamp of the latest events of a channel.
type eventRing struct {
	units []uint16
	times []uint64
	write uint64
	read  uint64
}

func newEventRing(capacity int) *eventRing {
	return &eventRing{
		units: make([]uint16, capacity),
		times: make([]uint64, capacity),
	}
}

func (r *eventRing) push(unit uint16, t uint64) {
	idx := int(r.write % uint64(len(r.times)))
	r.units[idx] = unit
	r.times[idx] = t
	r.write++
}

// drain moves unread events into a batch and returns how many were lost to
// overwriting.
func (r *eventRing) drain(ch registry.ChannelID, offset uint64) (*EventBatch, uint64) {
	var dropped uint64
	capacity := uint64(len(r.times))
	if r.write-r.read > capacity {
		dropped = r.write - r.read - capacity
		r.read = r.write - capacity
	}
	if r.read == r.write {
		return nil, dropped
	}
	batch := &EventBatch{Channel: ch, Units: make(map[uint16][]uint64)}
	var early int
	for ; r.read < r.write; r.read++ {
		idx := int(r.read % capacity)
		t, ok := relative(r.times[idx], offset)
		if !ok {
			early++
		}
		batch.Units[r.units[idx]] = append(batch.Units[r.units[idx]], t)
	}
	if early > 0 {
		logger.Warning("Channel %d: %d events precede the trial start %d, their timestamps are 0", ch, early, offset)
	}
	return batch, dropped
}

type eventStore struct {
	length   int
	channels map[registry.ChannelID]*eventRing
	total    uint64
	dropped  uint64
}

func newEventStore(length int) *eventStore {
	return &eventStore{
		length:   length,
		channels: make(map[registry.ChannelID]*eventRing),
	}
}

func (s *eventStore) push(ch registry.ChannelID, unit uint16, t uint64) {
	r, ok := s.channels[ch]
	if !ok {
		r = newEventRing(s.length)
		s.channels[ch] = r
	}
	r.push(unit, t)
	s.total++
}

func (s *eventStore) discard() {
	for _, r := range s.channels {
		r.read = r.write
	}
}

func (s *eventStore) drain(offset uint64) (map[registry.ChannelID]*EventBatch, map[registry.ChannelID]*Overflow) {
	batches := make(map[registry.ChannelID]*EventBatch)
	overflow := make(map[registry.ChannelID]*Overflow)
	for ch, r := range s.channels {
		batch, dropped := r.drain(ch, offset)
		if batch != nil {
			batches[ch] = batch
		}
		if dropped > 0 {
			overflow[ch] = &Overflow{Dropped: dropped}
			s.dropped += dropped
		}
	}
	return batches, overflow
}

// commentRing keeps the latest comments, oldest first.
type commentRing struct {
	comments []Comment
	write    uint64
	read     uint64
	dropped  uint64
}

func newCommentRing(capacity int) *commentRing {
	return &commentRing{comments: make([]Comment, capacity)}
}

func (r *commentRing) push(c Comment) {
	r.comments[int(r.write%uint64(len(r.comments)))] = c
	r.write++
}

func (r *commentRing) discard() {
	r.read = r.write
}

func (r *commentRing) drain(offset uint64) []Comment {
	capacity := uint64(len(r.comments))
	if r.write-r.read > capacity {
		r.dropped += r.write - r.read - capacity
		r.read = r.write - capacity
	}
	result := make([]Comment, 0, r.write-r.read)
	var early int
	for ; r.read < r.write; r.read++ {
		c := r.comments[int(r.read%capacity)]
		var ok bool
		if c.Timestamp, ok = relative(c.Timestamp, offset); !ok {
			early++
		}
		result = append(result, c)
	}
	if early > 0 {
		logger.Warning("%d comments precede the trial start %d, their timestamps are 0", early, offset)
	}
	return result
}
