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


package spike

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrainTwiceReturnsEmpty(t *testing.T) {
	c := NewCache(0)
	assert.Equal(t, DefaultDepth, c.Depth())
	c.Add(1, 2, 100, []int16{1, 2, 3})
	c.Add(1, 3, 200, []int16{4, 5, 6})

	waveforms, units := c.GetNewWaveforms(1)
	assert.Equal(t, [][]int16{{1, 2, 3}, {4, 5, 6}}, waveforms)
	assert.Equal(t, []uint16{2, 3}, units)

	waveforms, units = c.GetNewWaveforms(1)
	require.NotNil(t, waveforms)
	require.NotNil(t, units)
	assert.Empty(t, waveforms)
	assert.Empty(t, units)
}

func TestChannelsAreIndependent(t *testing.T) {
	c := NewCache(10)
	c.Add(1, 1, 1, []int16{1})
	c.Add(2, 1, 2, []int16{2})

	waveforms, _ := c.Channel(1).GetNewWaveforms()
	assert.Len(t, waveforms, 1)

	waveforms, _ = c.GetNewWaveforms(2)
	require.Len(t, waveforms, 1)
	assert.Equal(t, []int16{2}, waveforms[0])

	waveforms, _ = c.GetNewWaveforms(3)
	assert.Empty(t, waveforms)
}

func TestOldestOverwritten(t *testing.T) {
	c := NewCache(3)
	for i := 0; i < 5; i++ {
		c.Add(7, uint16(i), uint64(i), []int16{int16(i)})
	}
	assert.Equal(t, LineStats{Total: 5, Pending: 3, Dropped: 0}, c.Stats(7))

	drained := c.Drain(7)
	require.Len(t, drained, 3)
	assert.Equal(t, uint64(2), drained[0].Timestamp)
	assert.Equal(t, uint16(4), drained[2].Unit)
	assert.Equal(t, LineStats{Total: 5, Pending: 0, Dropped: 2}, c.Stats(7))
}

func TestReset(t *testing.T) {
	c := NewCache(3)
	c.Add(1, 1, 1, []int16{1})
	c.Reset()
	waveforms, _ := c.GetNewWaveforms(1)
	assert.Empty(t, waveforms)
	assert.Equal(t, LineStats{}, c.Stats(1))
}

func TestSetDepth(t *testing.T) {
	c := NewCache(3)
	c.Add(1, 1, 1, []int16{1})
	c.SetDepth(3)
	assert.Equal(t, uint64(1), c.Stats(1).Pending)

	c.SetDepth(5)
	assert.Equal(t, 5, c.Depth())
	assert.Equal(t, LineStats{}, c.Stats(1))
}
