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

// ContinuousBuffer is caller owned storage for one group. Samples are row
// major, one row per timestamp and one column per group member in ascending
// channel order. It may be reused across fetches as long as the group keeps
// the same number of columns.
type ContinuousBuffer struct {
	Timestamps []uint64
	Samples    []int16
	Columns    int
	Channels   []registry.ChannelID
}

func NewContinuousBuffer(capacity int, channels []registry.ChannelID) *ContinuousBuffer {
	return newContinuousBuffer(capacity, len(channels), channels)
}

func newContinuousBuffer(capacity, columns int, channels []registry.ChannelID) *ContinuousBuffer {
	return &ContinuousBuffer{
		Timestamps: make([]uint64, capacity),
		Samples:    make([]int16, capacity*columns),
		Columns:    columns,
		Channels:   append([]registry.ChannelID(nil), channels...),
	}
}

func (b *ContinuousBuffer) Capacity() int {
	return len(b.Timestamps)
}

// Row returns the samples of one timestamp, aliasing the buffer.
func (b *ContinuousBuffer) Row(i int) []int16 {
	return b.Samples[i*b.Columns : (i+1)*b.Columns]
}

func (b *ContinuousBuffer) Sample(i, column int) int16 {
	return b.Samples[i*b.Columns+column]
}

// Column copies the first n samples of one column.
func (b *ContinuousBuffer) Column(column, n int) []int16 {
	result := make([]int16, n)
	for i := 0; i < n; i++ {
		result[i] = b.Samples[i*b.Columns+column]
	}
	return result
}

func (b *ContinuousBuffer) checkShape(columns int) error {
	if b.Columns != columns {
		return ErrBufferShapeMismatch{What: "columns", Want: columns, Got: b.Columns}
	}
	if want := len(b.Timestamps) * b.Columns; len(b.Samples) != want {
		return ErrBufferShapeMismatch{What: "samples length", Want: want, Got: len(b.Samples)}
	}
	if len(b.Timestamps) == 0 {
		return ErrBufferShapeMismatch{What: "capacity", Want: 1, Got: 0}
	}
	return nil
}

// Overflow reports samples or events lost because a buffer was full.
type Overflow struct {
	Dropped uint64
}

type ContinuousResult struct {
	Group          registry.GroupID
	NumSamples     int
	TrialStartTime uint64
	Buffer         *ContinuousBuffer
	// Overflow is set at most once per fetch
	Overflow *Overflow
	// Discontinuities holds the first MaxDiscontinuities violations,
	// DiscontinuityCount counts all of them
	Discontinuities    []Discontinuity
	DiscontinuityCount int
}

// FetchOptions of FetchContinuous. Reset and Seek are mutually exclusive.
type FetchOptions struct {
	// Seek consumes what is returned; without it the fetch is a peek
	Seek  bool
	Reset bool
	// Buffer is written in place when set
	Buffer *ContinuousBuffer
	// CapacityHint sizes the buffer allocated when Buffer is nil
	CapacityHint int
}

type Event struct {
	Channel   registry.ChannelID
	Unit      uint16
	Timestamp uint64
}

// EventBatch holds the new timestamps of one channel grouped by unit.
type EventBatch struct {
	Channel registry.ChannelID
	Units   map[uint16][]uint64
}

func (b *EventBatch) Count() int {
	n := 0
	for _, ts := range b.Units {
		n += len(ts)
	}
	return n
}

type EventResult struct {
	TrialStartTime uint64
	Channels       map[registry.ChannelID]*EventBatch
	Overflow       map[registry.ChannelID]*Overflow
}

type Comment struct {
	Timestamp uint64 `json:"timestamp" msgpack:"timestamp"`
	Charset   uint8  `json:"charset" msgpack:"charset"`
	RGBA      uint32 `json:"rgba" msgpack:"rgba"`
	Text      string `json:"text" msgpack:"text"`
}
