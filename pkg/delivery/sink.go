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


package delivery

import (
	"sync/atomic"

	"jinr.ru/greenlab/go-nsp/pkg/layers"
	"jinr.ru/greenlab/go-nsp/pkg/trial"
)

// GroupSink is a caller owned sample buffer filled from a group callback.
// OnGroup is the only writer and Read the only reader, they may run on
// different goroutines. When the buffer is full new frames are dropped
// and counted.
type GroupSink struct {
	writePos atomic.Uint64
	_pad1    [56]byte
	readPos  atomic.Uint64
	_pad2    [56]byte

	columns  int
	capacity uint64
	samples  []int16
	times    []uint64
	dropped  atomic.Uint64
	shape    atomic.Uint64
}

func NewGroupSink(capacity, columns int) *GroupSink {
	return &GroupSink{
		columns:  columns,
		capacity: uint64(capacity),
		samples:  make([]int16, capacity*columns),
		times:    make([]uint64, capacity),
	}
}

func (s *GroupSink) Columns() int {
	return s.columns
}

// OnGroup has the GroupCallback signature.
func (s *GroupSink) OnGroup(frame *layers.Frame, group *layers.GroupLayer) {
	if len(group.Samples) != s.columns {
		s.shape.Add(1)
		return
	}
	w := s.writePos.Load()
	r := s.readPos.Load()
	if w-r == s.capacity {
		s.dropped.Add(1)
		return
	}
	pos := int(w % s.capacity)
	copy(s.samples[pos*s.columns:(pos+1)*s.columns], group.Samples)
	s.times[pos] = frame.Time
	s.writePos.Store(w + 1)
}

// Read moves up to len(times) rows out of the sink. samples must hold
// len(times)*Columns() values. It returns the number of rows read.
func (s *GroupSink) Read(samples []int16, times []uint64) int {
	r := s.readPos.Load()
	w := s.writePos.Load()
	n := w - r
	if uint64(len(times)) < n {
		n = uint64(len(times))
	}
	if rows := uint64(len(samples) / max(s.columns, 1)); s.columns > 0 && rows < n {
		n = rows
	}
	for i := uint64(0); i < n; i++ {
		pos := int((r + i) % s.capacity)
		copy(samples[int(i)*s.columns:int(i+1)*s.columns], s.samples[pos*s.columns:(pos+1)*s.columns])
		times[i] = s.times[pos]
	}
	s.readPos.Store(r + n)
	return int(n)
}

func (s *GroupSink) Available() int {
	return int(s.writePos.Load() - s.readPos.Load())
}

func (s *GroupSink) Full() bool {
	return s.writePos.Load()-s.readPos.Load() == s.capacity
}

// Dropped counts frames rejected because the sink was full.
func (s *GroupSink) Dropped() uint64 {
	return s.dropped.Load()
}

// Rejected counts frames whose sample count did not match the columns.
func (s *GroupSink) Rejected() uint64 {
	return s.shape.Load()
}

type ContinuityCounts struct {
	Frames     uint64 `json:"frames"`
	Duplicates uint64 `json:"duplicates"`
	Jumps      uint64 `json:"jumps"`
}

// ContinuityMonitor checks the timestamps of one group as a callback.
type ContinuityMonitor struct {
	continuity trial.Continuity
	frames     atomic.Uint64
	duplicates atomic.Uint64
	jumps      atomic.Uint64
	last       atomic.Uint64
}

func NewContinuityMonitor(period uint64) *ContinuityMonitor {
	return &ContinuityMonitor{continuity: trial.Continuity{Period: period}}
}

func (m *ContinuityMonitor) OnGroup(frame *layers.Frame, group *layers.GroupLayer) {
	switch m.continuity.Check(frame.Time) {
	case trial.Duplicate:
		m.duplicates.Add(1)
		logger.Debug("Duplicate timestamp %d", frame.Time)
	case trial.Jump:
		m.jumps.Add(1)
		logger.Debug("Timestamp jump from %d to %d", m.last.Load(), frame.Time)
	}
	m.last.Store(frame.Time)
	m.frames.Add(1)
}

func (m *ContinuityMonitor) Counts() ContinuityCounts {
	return ContinuityCounts{
		Frames:     m.frames.Load(),
		Duplicates: m.duplicates.Load(),
		Jumps:      m.jumps.Load(),
	}
}

// Last returns the timestamp of the latest frame seen.
func (m *ContinuityMonitor) Last() uint64 {
	return m.last.Load()
}
