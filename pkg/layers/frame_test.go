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


package layers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupFrameOddSampleCount(t *testing.T) {
	frame := NewGroupFrame(123456789, 5, []int16{1, -1, 32767})
	data, err := frame.Serialize()
	require.NoError(t, err)
	assert.Equal(t, 0, len(data)%4)
	assert.Equal(t, len(data), FrameLength(data))

	decoded, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, KindGroup, decoded.Kind())
	assert.Equal(t, uint16(5), decoded.GroupID())
	assert.Equal(t, uint64(123456789), decoded.Time)
	require.NotNil(t, decoded.Group)
	assert.Equal(t, []int16{1, -1, 32767}, decoded.Group.Samples)
}

func TestDatagramWithMixedFrames(t *testing.T) {
	frames := []*Frame{
		NewHeartbeatFrame(10),
		NewSpikeFrame(11, 7, 2, []int16{-5, 0, 5, 10}),
		NewChanInfoFrame(12, TypeChanInfoReport, &ChanInfoLayer{Chan: 7, Group: 6, InputOptions: 3, Label: "elec7"}),
		NewCommentFrame(13, &CommentLayer{Charset: CharsetASCII, RGBA: 0xff00ff00, Text: "stim on"}),
	}
	data, err := SerializeDatagram(frames)
	require.NoError(t, err)

	decoded, err := DecodeDatagram(data)
	require.NoError(t, err)
	require.Len(t, decoded, 4)

	assert.Equal(t, KindHeartbeat, decoded[0].Kind())
	assert.Equal(t, uint64(10), decoded[0].Time)

	require.NotNil(t, decoded[1].Spike)
	assert.Equal(t, uint16(7), decoded[1].Chid)
	assert.Equal(t, uint16(2), decoded[1].Spike.Unit)
	assert.Equal(t, []int16{-5, 0, 5, 10}, decoded[1].Spike.Waveform)

	require.NotNil(t, decoded[2].ChanInfo)
	assert.Equal(t, uint16(6), decoded[2].ChanInfo.Group)
	assert.Equal(t, "elec7", decoded[2].ChanInfo.Label)

	require.NotNil(t, decoded[3].Comment)
	assert.Equal(t, "stim on", decoded[3].Comment.Text)
	assert.Equal(t, uint32(0xff00ff00), decoded[3].Comment.RGBA)
}

func TestTruncatedDatagram(t *testing.T) {
	data, err := NewGroupFrame(1, 1, []int16{1, 2, 3, 4}).Serialize()
	require.NoError(t, err)

	frames, err := DecodeDatagram(data[:len(data)-4])
	assert.Empty(t, frames)
	var frameErr ErrFrame
	assert.True(t, errors.As(err, &frameErr))
}

func TestUnknownConfigType(t *testing.T) {
	frame := &Frame{FrameHeader: FrameHeader{Chid: ConfigChid, Type: 0x7777}}
	assert.Equal(t, KindUnknown, frame.Kind())
}
