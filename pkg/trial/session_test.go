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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jinr.ru/greenlab/go-nsp/pkg/layers"
	"jinr.ru/greenlab/go-nsp/pkg/registry"
	"jinr.ru/greenlab/go-nsp/pkg/sim"
)

type feeder struct {
	now     uint64
	seq     int64
	session *Session
	group   registry.GroupID
	columns int
}

func (f *feeder) clock() uint64 {
	return f.now
}

// push emits n consecutive sawtooth rows one period apart
func (f *feeder) push(n int) {
	for i := 0; i < n; i++ {
		f.now += f.group.Period()
		f.seq++
		f.session.AddGroupSamples(f.group, f.now, sim.Sawtooth(f.seq, f.columns))
	}
}

func channels(n int) []registry.ChannelID {
	result := make([]registry.ChannelID, n)
	for i := range result {
		result[i] = registry.ChannelID(i + 1)
	}
	return result
}

func newFeeder(t *testing.T, group registry.GroupID, columns int, cfg Config) *feeder {
	f := &feeder{now: 5000, group: group, columns: columns}
	f.session = NewSession(f.clock, func(g registry.GroupID) ([]registry.ChannelID, error) {
		if g == f.group {
			return channels(f.columns), nil
		}
		return []registry.ChannelID{}, nil
	})
	require.NoError(t, f.session.Configure(cfg))
	require.NoError(t, f.session.Activate(ModeActivate))
	return f
}

func TestSawtoothContinuityWithSeekAndReuse(t *testing.T) {
	f := newFeeder(t, 6, 8, DefaultConfig())
	buf := NewContinuousBuffer(4096, channels(8))

	var timestamps []uint64
	var rising, falling []int16
	for len(timestamps) < 12000 {
		f.push(1500)
		result, err := f.session.FetchContinuous(6, FetchOptions{Seek: true, Buffer: buf})
		require.NoError(t, err)
		require.Same(t, buf, result.Buffer)
		assert.Nil(t, result.Overflow)
		assert.Empty(t, result.Discontinuities)
		assert.Equal(t, uint64(5000), result.TrialStartTime)
		assert.Equal(t, channels(8), result.Buffer.Channels)
		for i := 0; i < result.NumSamples; i++ {
			timestamps = append(timestamps, buf.Timestamps[i])
			rising = append(rising, buf.Sample(i, 0))
			falling = append(falling, buf.Sample(i, 1))
			assert.Equal(t, int16(800), buf.Sample(i, 7))
		}
	}
	for i := 1; i < len(timestamps); i++ {
		require.Equal(t, uint64(1), timestamps[i]-timestamps[i-1], "step at %d", i)
		require.Equal(t, int16(1), rising[i]-rising[i-1])
		require.Equal(t, int16(-1), falling[i]-falling[i-1])
	}
	assert.Equal(t, uint64(1), timestamps[0])
}

func TestResetWithSeekConflicts(t *testing.T) {
	f := newFeeder(t, 5, 2, DefaultConfig())
	f.push(10)
	buf := NewContinuousBuffer(16, channels(2))
	for i := range buf.Timestamps {
		buf.Timestamps[i] = 77
	}

	_, err := f.session.FetchContinuous(5, FetchOptions{Seek: true, Reset: true, Buffer: buf})
	require.ErrorIs(t, err, ErrConflictingMode{})
	for i := range buf.Timestamps {
		require.Equal(t, uint64(77), buf.Timestamps[i])
	}
	for _, s := range buf.Samples {
		require.Equal(t, int16(0), s)
	}

	result, err := f.session.FetchContinuous(5, FetchOptions{Seek: true, Buffer: buf})
	require.NoError(t, err)
	assert.Equal(t, 10, result.NumSamples)
}

func TestOverflowReportedOncePerFetch(t *testing.T) {
	f := newFeeder(t, 6, 4, DefaultConfig())
	buf := NewContinuousBuffer(100, channels(4))

	f.push(1000)
	result, err := f.session.FetchContinuous(6, FetchOptions{Seek: true, Buffer: buf})
	require.NoError(t, err)
	assert.Equal(t, 100, result.NumSamples)
	require.NotNil(t, result.Overflow)
	assert.Equal(t, uint64(900), result.Overflow.Dropped)
	// the oldest samples are returned
	assert.Equal(t, uint64(1), buf.Timestamps[0])
	assert.Equal(t, uint64(100), buf.Timestamps[99])

	f.push(50)
	result, err = f.session.FetchContinuous(6, FetchOptions{Seek: true, Buffer: buf})
	require.NoError(t, err)
	assert.Equal(t, 50, result.NumSamples)
	assert.Nil(t, result.Overflow)
	assert.Empty(t, result.Discontinuities)
	assert.Equal(t, uint64(1001), buf.Timestamps[0])
}

func TestRingOverwriteIsOverflow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Buffer.ContinuousLength = 1000
	f := newFeeder(t, 6, 2, cfg)

	f.push(1500)
	result, err := f.session.FetchContinuous(6, FetchOptions{Seek: true, CapacityHint: 2000})
	require.NoError(t, err)
	assert.Equal(t, 1000, result.NumSamples)
	require.NotNil(t, result.Overflow)
	assert.Equal(t, uint64(500), result.Overflow.Dropped)
	assert.Equal(t, uint64(501), result.Buffer.Timestamps[0])
	assert.Equal(t, uint64(1500), result.Buffer.Timestamps[999])
	assert.Empty(t, result.Discontinuities)

	// wrap around inside the ring
	f.push(700)
	result, err = f.session.FetchContinuous(6, FetchOptions{Seek: true, CapacityHint: 2000})
	require.NoError(t, err)
	assert.Equal(t, 700, result.NumSamples)
	assert.Nil(t, result.Overflow)
	assert.Empty(t, result.Discontinuities)
	assert.Equal(t, uint64(1501), result.Buffer.Timestamps[0])
	assert.Equal(t, uint64(2200), result.Buffer.Timestamps[699])
	assert.Equal(t, int16(1501), result.Buffer.Sample(0, 0))

	stats := f.session.Stats()
	require.Len(t, stats.Groups, 1)
	assert.Equal(t, uint64(500), stats.Groups[0].Dropped)
	assert.Equal(t, uint64(2200), stats.Groups[0].Written)
}

func TestFetchWithoutSeekIsPeek(t *testing.T) {
	f := newFeeder(t, 4, 1, DefaultConfig())
	f.push(20)
	first, err := f.session.FetchContinuous(4, FetchOptions{})
	require.NoError(t, err)
	second, err := f.session.FetchContinuous(4, FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 20, first.NumSamples)
	assert.Equal(t, first.Buffer.Timestamps[:20], second.Buffer.Timestamps[:20])
	// group 4 samples every 3 ticks
	assert.Equal(t, uint64(3), first.Buffer.Timestamps[1]-first.Buffer.Timestamps[0])
	assert.Empty(t, first.Discontinuities)
}

func TestResetDiscardsAndRestartsClock(t *testing.T) {
	f := newFeeder(t, 6, 2, DefaultConfig())
	f.push(100)
	result, err := f.session.FetchContinuous(6, FetchOptions{Reset: true})
	require.NoError(t, err)
	assert.Equal(t, 0, result.NumSamples)
	assert.Equal(t, uint64(5100), result.TrialStartTime)

	f.push(10)
	result, err = f.session.FetchContinuous(6, FetchOptions{Seek: true})
	require.NoError(t, err)
	assert.Equal(t, 10, result.NumSamples)
	assert.Equal(t, uint64(1), result.Buffer.Timestamps[0])
	assert.Empty(t, result.Discontinuities)
}

func TestAbsoluteTimestamps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Buffer.Absolute = true
	f := newFeeder(t, 6, 2, cfg)
	f.push(3)
	result, err := f.session.FetchContinuous(6, FetchOptions{Seek: true})
	require.NoError(t, err)
	assert.Equal(t, []uint64{5001, 5002, 5003}, result.Buffer.Timestamps[:3])
}

func TestBufferShapeMismatch(t *testing.T) {
	f := newFeeder(t, 6, 8, DefaultConfig())
	f.push(10)
	buf := NewContinuousBuffer(32, channels(4))

	_, err := f.session.FetchContinuous(6, FetchOptions{Seek: true, Buffer: buf})
	var mismatch ErrBufferShapeMismatch
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, 8, mismatch.Want)
	assert.Equal(t, 4, mismatch.Got)
	for _, ts := range buf.Timestamps {
		require.Equal(t, uint64(0), ts)
	}

	broken := NewContinuousBuffer(32, channels(8))
	broken.Samples = broken.Samples[:10]
	_, err = f.session.FetchContinuous(6, FetchOptions{Seek: true, Buffer: broken})
	require.True(t, errors.As(err, &mismatch))

	// nothing was consumed
	result, err := f.session.FetchContinuous(6, FetchOptions{Seek: true})
	require.NoError(t, err)
	assert.Equal(t, 10, result.NumSamples)
}

func TestConcurrentFetchIsBusy(t *testing.T) {
	f := newFeeder(t, 6, 2, DefaultConfig())
	f.session.busy[6].Lock()
	_, err := f.session.FetchContinuous(6, FetchOptions{Seek: true})
	var busy ErrSessionBusy
	require.True(t, errors.As(err, &busy))
	assert.Equal(t, registry.GroupID(6), busy.Group)

	// other groups are independent
	_, err = f.session.FetchContinuous(5, FetchOptions{Seek: true})
	assert.NoError(t, err)
	f.session.busy[6].Unlock()

	f.session.busy[0].Lock()
	_, err = f.session.FetchEvents(false)
	assert.ErrorIs(t, err, ErrSessionBusy{})
	f.session.busy[0].Unlock()
}

func TestDiscontinuitiesAreClassified(t *testing.T) {
	f := newFeeder(t, 6, 1, DefaultConfig())
	f.push(5)
	// duplicate of the last row, then a gap of two samples
	f.session.AddGroupSamples(6, f.now, []int16{0})
	f.now += 2
	f.push(3)

	result, err := f.session.FetchContinuous(6, FetchOptions{Seek: true, Buffer: NewContinuousBuffer(64, channels(1))})
	require.NoError(t, err)
	assert.Equal(t, 9, result.NumSamples)
	require.Len(t, result.Discontinuities, 2)
	assert.Equal(t, 2, result.DiscontinuityCount)
	assert.Equal(t, Discontinuity{Index: 5, Previous: 5005, Current: 5005, Kind: Duplicate}, result.Discontinuities[0])
	assert.Equal(t, Discontinuity{Index: 6, Previous: 5005, Current: 5008, Kind: Jump}, result.Discontinuities[1])

	// continuity carries across fetches
	f.now++
	f.push(1)
	result, err = f.session.FetchContinuous(6, FetchOptions{Seek: true})
	require.NoError(t, err)
	require.Len(t, result.Discontinuities, 1)
	assert.Equal(t, Discontinuity{Index: 0, Previous: 5010, Current: 5012, Kind: Jump}, result.Discontinuities[0])
}

func TestFramesOlderThanResetAreDropped(t *testing.T) {
	f := newFeeder(t, 6, 1, DefaultConfig())
	f.push(5)
	require.NoError(t, f.session.Activate(ModeReset))
	start := f.now

	// rows still in flight when the trial was reset
	f.session.AddGroupSamples(6, start-2, []int16{0})
	f.session.AddGroupSamples(6, start-1, []int16{0})
	f.session.AddSpike(2, 1, start-1)
	f.push(3)

	result, err := f.session.FetchContinuous(6, FetchOptions{Seek: true})
	require.NoError(t, err)
	assert.Equal(t, start, result.TrialStartTime)
	assert.Equal(t, []uint64{1, 2, 3}, result.Buffer.Timestamps[:result.NumSamples])
	assert.Empty(t, result.Discontinuities)
	events, err := f.session.FetchEvents(false)
	require.NoError(t, err)
	assert.Empty(t, events.Channels)
	assert.Equal(t, uint64(3), f.session.Stats().BeforeStart)
}

func TestAbsoluteKeepsFramesOlderThanReset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Buffer.Absolute = true
	f := newFeeder(t, 6, 1, cfg)
	f.push(5)
	require.NoError(t, f.session.Activate(ModeReset))
	start := f.now

	f.session.AddGroupSamples(6, start-1, []int16{0})
	f.push(2)

	result, err := f.session.FetchContinuous(6, FetchOptions{Seek: true})
	require.NoError(t, err)
	assert.Equal(t, []uint64{start - 1, start + 1, start + 2}, result.Buffer.Timestamps[:result.NumSamples])
	assert.Zero(t, f.session.Stats().BeforeStart)
}

func TestLayoutChangeReallocates(t *testing.T) {
	f := newFeeder(t, 6, 8, DefaultConfig())
	f.push(10)
	f.columns = 3
	f.push(4)

	result, err := f.session.FetchContinuous(6, FetchOptions{Seek: true})
	require.NoError(t, err)
	assert.Equal(t, 4, result.NumSamples)
	assert.Equal(t, 3, result.Buffer.Columns)
	assert.Equal(t, channels(3), result.Buffer.Channels)
	assert.Equal(t, 1, f.session.Stats().Groups[0].Reallocations)
}

func TestStateMachine(t *testing.T) {
	now := uint64(0)
	s := NewSession(func() uint64 { return now }, nil)
	assert.Equal(t, StateIdle, s.State())

	_, err := s.FetchContinuous(1, FetchOptions{})
	assert.ErrorIs(t, err, ErrNotConfigured{})
	assert.ErrorIs(t, s.Activate(ModeActivate), ErrNotConfigured{})

	bad := DefaultConfig()
	begin, end := uint64(10), uint64(5)
	bad.Range = RangeParameter{Begin: &begin, End: &end}
	var invalidRange ErrInvalidRange
	require.True(t, errors.As(s.Configure(bad), &invalidRange))
	bad = DefaultConfig()
	bad.Buffer.ContinuousLength = -2
	var invalidBuffer ErrInvalidBuffer
	require.True(t, errors.As(s.Configure(bad), &invalidBuffer))

	require.NoError(t, s.Configure(DefaultConfig()))
	assert.Equal(t, StateConfigured, s.State())
	assert.Equal(t, 102400, s.Config().Buffer.ContinuousLength)

	// not captured while only configured
	s.AddGroupSamples(5, 1, []int16{1})
	require.NoError(t, s.Activate(ModeSeek))
	assert.Equal(t, StateActive, s.State())
	result, err := s.FetchContinuous(5, FetchOptions{Seek: true})
	require.NoError(t, err)
	assert.Equal(t, 0, result.NumSamples)

	_, err = s.FetchContinuous(7, FetchOptions{})
	var invalidGroup registry.ErrInvalidGroup
	assert.True(t, errors.As(err, &invalidGroup))

	s.AddGroupSamples(5, 2, []int16{1})
	require.NoError(t, s.Deactivate())
	s.AddGroupSamples(5, 3, []int16{1})
	require.NoError(t, s.Activate(ModeSeek))
	result, err = s.FetchContinuous(5, FetchOptions{Seek: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.NumSamples)

	s.Close()
	s.Close()
	assert.Equal(t, StateClosed, s.State())
	_, err = s.FetchContinuous(5, FetchOptions{})
	assert.ErrorIs(t, err, ErrClosed{})
	_, err = s.FetchEvents(false)
	assert.ErrorIs(t, err, ErrClosed{})
	assert.ErrorIs(t, s.Configure(DefaultConfig()), ErrClosed{})
	s.AddGroupSamples(5, 4, []int16{1})
}

func TestRangeLimitsCapture(t *testing.T) {
	cfg := DefaultConfig()
	begin, end := uint64(5003), uint64(5005)
	cfg.Range = RangeParameter{Begin: &begin, End: &end}
	cfg.Buffer.Absolute = true
	f := newFeeder(t, 6, 1, cfg)
	f.push(10)
	result, err := f.session.FetchContinuous(6, FetchOptions{Seek: true})
	require.NoError(t, err)
	assert.Equal(t, []uint64{5003, 5004, 5005}, result.Buffer.Timestamps[:result.NumSamples])
	assert.Equal(t, uint64(7), f.session.Stats().OutOfRange)
}

func TestEvents(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Buffer.EventLength = 4
	f := newFeeder(t, 6, 1, cfg)

	f.session.AddSpike(3, 1, 5010)
	f.session.AddSpike(3, 2, 5020)
	f.session.AddSpike(3, 1, 5030)
	f.session.AddSpike(3, layers.NoiseUnit, 5035)
	f.session.AddSpike(9, 1, 5040)

	result, err := f.session.FetchEvents(false)
	require.NoError(t, err)
	require.Len(t, result.Channels, 2)
	assert.Equal(t, []uint64{10, 30}, result.Channels[3].Units[1])
	assert.Equal(t, []uint64{20}, result.Channels[3].Units[2])
	assert.NotContains(t, result.Channels[3].Units, layers.NoiseUnit)
	assert.Equal(t, 3, result.Channels[3].Count())
	assert.Empty(t, result.Overflow)

	result, err = f.session.FetchEvents(false)
	require.NoError(t, err)
	assert.Empty(t, result.Channels)

	for i := uint64(0); i < 6; i++ {
		f.session.AddSpike(3, 1, 5100+i)
	}
	result, err = f.session.FetchEvents(false)
	require.NoError(t, err)
	assert.Equal(t, []uint64{102, 103, 104, 105}, result.Channels[3].Units[1])
	require.Contains(t, result.Overflow, registry.ChannelID(3))
	assert.Equal(t, uint64(2), result.Overflow[3].Dropped)

	f.session.AddSpike(3, 1, 5200)
	result, err = f.session.FetchEvents(true)
	require.NoError(t, err)
	assert.Empty(t, result.Channels)
	result, err = f.session.FetchEvents(false)
	require.NoError(t, err)
	assert.Empty(t, result.Channels)
}

func TestEventsDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Events = false
	cfg.Continuous = false
	f := newFeeder(t, 6, 1, cfg)
	f.session.AddSpike(1, 1, 5001)
	f.push(5)
	events, err := f.session.FetchEvents(false)
	require.NoError(t, err)
	assert.Empty(t, events.Channels)
	result, err := f.session.FetchContinuous(6, FetchOptions{Seek: true})
	require.NoError(t, err)
	assert.Equal(t, 0, result.NumSamples)
}

func TestComments(t *testing.T) {
	f := newFeeder(t, 6, 1, DefaultConfig())
	f.session.AddComment(Comment{Timestamp: 5050, Text: "stim on", RGBA: 1})
	f.session.AddComment(Comment{Timestamp: 5060, Text: "stim off"})

	comments, err := f.session.FetchComments(false)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, uint64(50), comments[0].Timestamp)
	assert.Equal(t, "stim off", comments[1].Text)

	comments, err = f.session.FetchComments(false)
	require.NoError(t, err)
	assert.Empty(t, comments)

	f.session.AddComment(Comment{Timestamp: 5070, Text: "dropped"})
	comments, err = f.session.FetchComments(true)
	require.NoError(t, err)
	assert.Empty(t, comments)
	comments, err = f.session.FetchComments(false)
	require.NoError(t, err)
	assert.Empty(t, comments)
}

func TestActivateModes(t *testing.T) {
	f := newFeeder(t, 6, 1, DefaultConfig())
	f.push(5)
	// already active: nothing is discarded
	require.NoError(t, f.session.Activate(ModeActivate))
	require.NoError(t, f.session.Activate(ModeSeek))
	result, err := f.session.FetchContinuous(6, FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 5, result.NumSamples)

	require.NoError(t, f.session.Activate(ModeReset))
	assert.Equal(t, uint64(5005), f.session.StartTime())
	result, err = f.session.FetchContinuous(6, FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.NumSamples)
}
