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


// Package trial buffers continuous samples, spike events and comments
// between the frame delivery goroutine and a polling caller.
//
// A Session moves Idle -> Configured -> Active. Frames are captured only
// while Active. Each sample group gets a ring of ContinuousLength samples
// laid out [sample][column]; the ring is reallocated when the number of
// group members changes. Fetches of one group never run concurrently, a
// second one fails with ErrSessionBusy.
package trial

import (
	"fmt"
	"sync"

	"jinr.ru/greenlab/go-nsp/pkg/layers"
	"jinr.ru/greenlab/go-nsp/pkg/log"
	"jinr.ru/greenlab/go-nsp/pkg/registry"
)

var logger = log.For("trial")

type State int

const (
	StateIdle State = iota
	StateConfigured
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfigured:
		return "configured"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Clock returns the current instrument time in ticks.
type Clock func() uint64

// MembershipFunc returns the channels of a group in column order.
type MembershipFunc func(group registry.GroupID) ([]registry.ChannelID, error)

type Session struct {
	mu       sync.Mutex
	state    State
	cfg      Config
	clock    Clock
	members  MembershipFunc
	start    uint64
	started  bool
	groups   [registry.MaxGroup + 1]*groupRing
	reallocs [registry.MaxGroup + 1]int
	// busy[0] guards event fetches, busy[g] fetches of group g
	busy        [registry.MaxGroup + 1]sync.Mutex
	commentBusy sync.Mutex
	events      *eventStore
	comments    *commentRing
	outOfRange  uint64
	beforeStart uint64
	// start the last before-start warning was logged for
	warnedStart uint64
}

func NewSession(clock Clock, members MembershipFunc) *Session {
	return &Session{
		clock:   clock,
		members: members,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Session) StartTime() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.start
}

// Configure validates and applies cfg and leaves the session Configured.
// Buffers whose length changes are dropped.
func (s *Session) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.normalized()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrClosed{}
	}
	if s.state == StateIdle || cfg.Buffer.ContinuousLength != s.cfg.Buffer.ContinuousLength {
		for g := range s.groups {
			s.groups[g] = nil
		}
	}
	if s.events == nil || cfg.Buffer.EventLength != s.cfg.Buffer.EventLength {
		s.events = newEventStore(cfg.Buffer.EventLength)
	}
	if s.comments == nil || cfg.Buffer.CommentLength != s.cfg.Buffer.CommentLength {
		s.comments = newCommentRing(cfg.Buffer.CommentLength)
	}
	s.cfg = cfg
	s.state = StateConfigured
	logger.Debug("Configured: continuous %t (%d) events %t (%d) comments %t absolute %t",
		cfg.Continuous, cfg.Buffer.ContinuousLength, cfg.Events, cfg.Buffer.EventLength, cfg.Comments, cfg.Buffer.Absolute)
	return nil
}

// Activate starts capturing frames.
func (s *Session) Activate(mode ActivationMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateClosed:
		return ErrClosed{}
	case StateIdle:
		return ErrNotConfigured{}
	}
	switch mode {
	case ModeReset:
		s.resetLocked()
	case ModeActivate:
		if s.state != StateActive {
			s.resetLocked()
		}
	case ModeSeek:
		if !s.started {
			s.start = s.clock()
			s.started = true
		}
	default:
		return fmt.Errorf("unknown activation mode %d", int(mode))
	}
	s.state = StateActive
	logger.Info("Trial activated (%s) at %d", mode, s.start)
	return nil
}

func (s *Session) resetLocked() {
	for _, ring := range s.groups {
		if ring != nil {
			ring.discard()
		}
	}
	s.events.discard()
	s.comments.discard()
	s.start = s.clock()
	s.started = true
}

// Deactivate stops capturing and keeps what is buffered.
func (s *Session) Deactivate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateClosed:
		return ErrClosed{}
	case StateIdle:
		return ErrNotConfigured{}
	}
	s.state = StateConfigured
	return nil
}

// Close releases every buffer. Fetches in progress complete against the
// buffers they already hold; later calls fail with ErrClosed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.state = StateClosed
	for g := range s.groups {
		s.groups[g] = nil
	}
	s.events = nil
	s.comments = nil
	logger.Debug("Trial session closed")
}

func (s *Session) checkState() error {
	switch s.state {
	case StateClosed:
		return ErrClosed{}
	case StateIdle:
		return ErrNotConfigured{}
	}
	return nil
}

func (s *Session) capturing(t uint64) bool {
	if s.state != StateActive {
		return false
	}
	// frames in flight across a reset; absolute ticks keep them meaningful
	if !s.cfg.Buffer.Absolute && t < s.start {
		s.beforeStart++
		if s.warnedStart != s.start {
			s.warnedStart = s.start
			logger.Warning("Dropping frames older than the trial start %d, first at %d", s.start, t)
		}
		return false
	}
	if !s.cfg.Range.Contains(t) {
		s.outOfRange++
		return false
	}
	return true
}

// AddGroupSamples stores one sample row of the group. A row whose length
// differs from the current ring layout reallocates the ring.
func (s *Session) AddGroupSamples(group registry.GroupID, t uint64, samples []int16) {
	if !group.Valid() {
		return
	}
	s.mu.Lock()
	if !s.cfg.Continuous || !s.capturing(t) {
		s.mu.Unlock()
		return
	}
	ring := s.groups[group]
	if ring == nil || ring.columns != len(samples) {
		ring = s.allocateLocked(group, len(samples))
	}
	s.mu.Unlock()
	ring.push(t, samples)
}

func (s *Session) allocateLocked(group registry.GroupID, columns int) *groupRing {
	var channels []registry.ChannelID
	if s.members != nil {
		ids, err := s.members(group)
		switch {
		case err != nil:
			logger.Warning("Unable to get members of group %d: %s", group, err)
		case len(ids) != columns:
			logger.Warning("Group %d has %d members but frames carry %d samples", group, len(ids), columns)
		default:
			channels = ids
		}
	}
	if s.groups[group] != nil {
		s.reallocs[group]++
		logger.Info("Group %d layout changed from %d to %d columns, buffered samples discarded",
			group, s.groups[group].columns, columns)
	}
	ring := newGroupRing(group, s.cfg.Buffer.ContinuousLength, channels, columns)
	s.groups[group] = ring
	return ring
}

// AddSpike stores a spike event. Noise is not kept.
func (s *Session) AddSpike(ch registry.ChannelID, unit uint16, t uint64) {
	if unit == layers.NoiseUnit {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Events || !s.capturing(t) {
		return
	}
	s.events.push(ch, unit, t)
}

func (s *Session) AddComment(c Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Comments || !s.capturing(c.Timestamp) {
		return
	}
	s.comments.push(c)
}

func (s *Session) offsetLocked() uint64 {
	if s.cfg.Buffer.Absolute {
		return 0
	}
	return s.start
}

// FetchContinuous copies new samples of the group into opts.Buffer or into
// a newly allocated buffer.
func (s *Session) FetchContinuous(group registry.GroupID, opts FetchOptions) (*ContinuousResult, error) {
	if opts.Reset && opts.Seek {
		return nil, ErrConflictingMode{}
	}
	if !group.Valid() {
		return nil, registry.ErrInvalidGroup{Group: group}
	}
	if !s.busy[group].TryLock() {
		return nil, ErrSessionBusy{Group: group}
	}
	defer s.busy[group].Unlock()

	s.mu.Lock()
	if err := s.checkState(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	ring := s.groups[group]
	if opts.Reset {
		if ring != nil {
			ring.discard()
		}
		s.start = s.clock()
		start := s.start
		s.mu.Unlock()
		logger.Debug("Group %d reset at %d", group, start)
		return &ContinuousResult{Group: group, TrialStartTime: start, Buffer: opts.Buffer}, nil
	}
	start := s.start
	offset := s.offsetLocked()
	defaultCapacity := s.cfg.Buffer.ContinuousLength
	s.mu.Unlock()

	// -1 when the layout is not known yet
	columns := -1
	var channels []registry.ChannelID
	if ring != nil {
		columns = ring.columns
		channels = ring.channels
	} else if s.members != nil {
		ids, err := s.members(group)
		if err != nil {
			return nil, err
		}
		columns = len(ids)
		channels = ids
	}

	buf := opts.Buffer
	if buf == nil {
		capacity := opts.CapacityHint
		if capacity <= 0 {
			capacity = defaultCapacity
		}
		if columns < 0 {
			columns = 0
		}
		buf = newContinuousBuffer(capacity, columns, channels)
	} else {
		if columns >= 0 {
			if err := buf.checkShape(columns); err != nil {
				return nil, err
			}
		} else if err := buf.checkShape(buf.Columns); err != nil {
			return nil, err
		}
		if len(channels) == buf.Columns {
			buf.Channels = append(buf.Channels[:0], channels...)
		}
	}

	result := &ContinuousResult{Group: group, TrialStartTime: start, Buffer: buf}
	if ring == nil {
		return result, nil
	}
	ring.fetch(buf, opts.Seek, offset, result)
	if result.Overflow != nil {
		logger.Warning("Group %d overflow: %d samples dropped", group, result.Overflow.Dropped)
	}
	if result.DiscontinuityCount > 0 {
		logger.Warning("Group %d: %d discontinuities, first %s", group, result.DiscontinuityCount, result.Discontinuities[0])
	}
	return result, nil
}

// FetchEvents returns the events captured since the previous fetch grouped
// by channel and unit. With reset everything buffered is discarded and
// nothing is returned.
func (s *Session) FetchEvents(reset bool) (*EventResult, error) {
	if !s.busy[0].TryLock() {
		return nil, ErrSessionBusy{}
	}
	defer s.busy[0].Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkState(); err != nil {
		return nil, err
	}
	result := &EventResult{TrialStartTime: s.start}
	if reset {
		s.events.discard()
		result.Channels = map[registry.ChannelID]*EventBatch{}
		result.Overflow = map[registry.ChannelID]*Overflow{}
		return result, nil
	}
	result.Channels, result.Overflow = s.events.drain(s.offsetLocked())
	for ch, o := range result.Overflow {
		logger.Warning("Channel %d event overflow: %d events dropped", ch, o.Dropped)
	}
	return result, nil
}

// FetchComments drains the comments captured since the previous fetch.
func (s *Session) FetchComments(reset bool) ([]Comment, error) {
	if !s.commentBusy.TryLock() {
		return nil, ErrSessionBusy{}
	}
	defer s.commentBusy.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkState(); err != nil {
		return nil, err
	}
	if reset {
		s.comments.discard()
		return []Comment{}, nil
	}
	return s.comments.drain(s.offsetLocked()), nil
}
