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
	"github.com/google/gopacket"
)

// Frame is a decoded frame with at most one payload layer set.
type Frame struct {
	FrameHeader
	Group    *GroupLayer
	Spike    *SpikeLayer
	ChanInfo *ChanInfoLayer
	Comment  *CommentLayer
}

func NewGroupFrame(time uint64, group uint16, samples []int16) *Frame {
	return &Frame{
		FrameHeader: FrameHeader{Time: time, Chid: GroupChid, Type: group},
		Group:       &GroupLayer{Samples: samples},
	}
}

func NewSpikeFrame(time uint64, channel uint16, unit uint16, waveform []int16) *Frame {
	return &Frame{
		FrameHeader: FrameHeader{Time: time, Chid: channel, Type: TypeSpike},
		Spike:       &SpikeLayer{Unit: unit, Waveform: waveform},
	}
}

func NewChanInfoFrame(time uint64, typ uint16, info *ChanInfoLayer) *Frame {
	return &Frame{
		FrameHeader: FrameHeader{Time: time, Chid: ConfigChid, Type: typ},
		ChanInfo:    info,
	}
}

func NewCommentFrame(time uint64, comment *CommentLayer) *Frame {
	return &Frame{
		FrameHeader: FrameHeader{Time: time, Chid: ConfigChid, Type: TypeComment},
		Comment:     comment,
	}
}

func NewHeartbeatFrame(time uint64) *Frame {
	return &Frame{FrameHeader: FrameHeader{Time: time, Chid: ConfigChid, Type: TypeHeartbeat}}
}

func (f *Frame) serializableLayers() []gopacket.SerializableLayer {
	result := []gopacket.SerializableLayer{&FrameLayer{FrameHeader: f.FrameHeader}}
	switch {
	case f.Group != nil:
		result = append(result, f.Group)
	case f.Spike != nil:
		result = append(result, f.Spike)
	case f.ChanInfo != nil:
		result = append(result, f.ChanInfo)
	case f.Comment != nil:
		result = append(result, f.Comment)
	}
	return result
}

// Serialize returns the wire form of the frame.
func (f *Frame) Serialize() ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, f.serializableLayers()...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SerializeDatagram concatenates frames into one datagram payload.
func SerializeDatagram(frames []*Frame) ([]byte, error) {
	var out []byte
	for _, f := range frames {
		data, err := f.Serialize()
		if err != nil {
			return nil, err
		}
		if len(out)+len(data) > FrameMaxDatagramSize {
			return nil, ErrFrame{What: "datagram too large"}
		}
		out = append(out, data...)
	}
	return out, nil
}

// DecodeFrame decodes exactly one frame. Payload layers copy what they keep,
// so data may be reused after the call.
func DecodeFrame(data []byte) (*Frame, error) {
	packet := gopacket.NewPacket(data, FrameLayerType, gopacket.NoCopy)
	if errLayer := packet.ErrorLayer(); errLayer != nil {
		return nil, errLayer.Error()
	}
	fl, ok := packet.Layer(FrameLayerType).(*FrameLayer)
	if !ok {
		return nil, ErrFrame{What: "no frame layer"}
	}
	frame := &Frame{FrameHeader: fl.FrameHeader}
	switch fl.Kind() {
	case KindGroup:
		frame.Group, _ = packet.Layer(GroupLayerType).(*GroupLayer)
	case KindSpike:
		frame.Spike, _ = packet.Layer(SpikeLayerType).(*SpikeLayer)
	case KindChanInfo:
		frame.ChanInfo, _ = packet.Layer(ChanInfoLayerType).(*ChanInfoLayer)
	case KindComment:
		frame.Comment, _ = packet.Layer(CommentLayerType).(*CommentLayer)
	}
	return frame, nil
}

// DecodeDatagram splits a datagram into frames. Frames decoded before a
// malformed one are returned together with the error.
func DecodeDatagram(data []byte) ([]*Frame, error) {
	var frames []*Frame
	for offset := 0; offset < len(data); {
		n := FrameLength(data[offset:])
		if n == 0 || offset+n > len(data) {
			return frames, ErrFrame{What: "truncated frame in datagram"}
		}
		frame, err := DecodeFrame(data[offset : offset+n])
		if err != nil {
			return frames, err
		}
		frames = append(frames, frame)
		offset += n
	}
	return frames, nil
}
