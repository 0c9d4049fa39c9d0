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
	"encoding/binary"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

func init() {
	initUnknownPayloadKinds()
	initActualPayloadKinds()
}

const (
	// FrameLayerNum identifies the layer
	FrameLayerNum = 2099
	// FrameHeaderSize is the size of the frame header in bytes
	FrameHeaderSize = 16
	// FrameMaxDatagramSize is the max size of a datagram carrying several frames
	FrameMaxDatagramSize = 65507
	// MaxPayloadWords is the largest payload that fits the dlen field
	MaxPayloadWords = 0xffff
)

// Channel ids in the frame header. Zero is used by group frames,
// ConfigChid by configuration and system frames. Everything else is the
// 1-based id of the channel the spike belongs to.
const (
	GroupChid  uint16 = 0
	ConfigChid uint16 = 0x8000
)

// Types of configuration frames (Chid == ConfigChid)
const (
	TypeHeartbeat      uint16 = 0x0000
	TypeComment        uint16 = 0x0031
	TypeChanInfoReport uint16 = 0x0040
	TypeChanInfoSet    uint16 = 0x00C0
	TypeChanInfoQuery  uint16 = 0x00C1
	// TypeSpike is the type of every spike frame, the unit lives in the payload
	TypeSpike uint16 = 0x0001
)

// PayloadKind is derived from the header and selects the payload decoder.
type PayloadKind uint8

const (
	KindUnknown PayloadKind = iota
	KindGroup
	KindSpike
	KindChanInfo
	KindComment
	KindHeartbeat
	kindLimit
)

type errorDecoderForPayloadKind int

func (e *errorDecoderForPayloadKind) Decode(data []byte, p gopacket.PacketBuilder) error {
	return e
}

func (e *errorDecoderForPayloadKind) Error() string {
	return fmt.Sprintf("Unable to decode frame payload kind %d", int(*e))
}

var errorDecodersForPayloadKind [kindLimit]errorDecoderForPayloadKind
var PayloadKindMetadata [kindLimit]layers.EnumMetadata

func initUnknownPayloadKinds() {
	for i := 0; i < int(kindLimit); i++ {
		errorDecodersForPayloadKind[i] = errorDecoderForPayloadKind(i)
		PayloadKindMetadata[i] = layers.EnumMetadata{
			DecodeWith: &errorDecodersForPayloadKind[i],
			Name:       "UnknownPayloadKind",
		}
	}
}

func initActualPayloadKinds() {
	PayloadKindMetadata[KindGroup] = layers.EnumMetadata{DecodeWith: gopacket.DecodeFunc(decodeGroupLayer), Name: "Group", LayerType: GroupLayerType}
	PayloadKindMetadata[KindSpike] = layers.EnumMetadata{DecodeWith: gopacket.DecodeFunc(decodeSpikeLayer), Name: "Spike", LayerType: SpikeLayerType}
	PayloadKindMetadata[KindChanInfo] = layers.EnumMetadata{DecodeWith: gopacket.DecodeFunc(decodeChanInfoLayer), Name: "ChanInfo", LayerType: ChanInfoLayerType}
	PayloadKindMetadata[KindComment] = layers.EnumMetadata{DecodeWith: gopacket.DecodeFunc(decodeCommentLayer), Name: "Comment", LayerType: CommentLayerType}
	PayloadKindMetadata[KindHeartbeat] = layers.EnumMetadata{DecodeWith: gopacket.DecodePayload, Name: "Heartbeat", LayerType: gopacket.LayerTypePayload}
}

// LayerType returns PayloadKindMetadata.LayerType
func (k PayloadKind) LayerType() gopacket.LayerType {
	return PayloadKindMetadata[k].LayerType
}

// Decode calls PayloadKindMetadata.DecodeWith's decoder
func (k PayloadKind) Decode(data []byte, p gopacket.PacketBuilder) error {
	return PayloadKindMetadata[k].DecodeWith.Decode(data, p)
}

// String returns PayloadKindMetadata.Name
func (k PayloadKind) String() string {
	return PayloadKindMetadata[k].Name
}

type FrameHeader struct {
	Time       uint64
	Chid       uint16
	Type       uint16
	Dlen       uint16 // payload length in 4-byte words NOT in bytes
	Instrument uint8
	Reserved   uint8
}

// Kind tells which payload layer follows the header.
func (h *FrameHeader) Kind() PayloadKind {
	switch {
	case h.Chid == GroupChid:
		return KindGroup
	case h.Chid&ConfigChid != 0:
		switch h.Type {
		case TypeChanInfoReport, TypeChanInfoSet, TypeChanInfoQuery:
			return KindChanInfo
		case TypeComment:
			return KindComment
		case TypeHeartbeat:
			return KindHeartbeat
		}
		return KindUnknown
	case h.Type == TypeSpike:
		return KindSpike
	}
	return KindUnknown
}

// Group returns the sample group id of a group frame.
func (h *FrameHeader) GroupID() uint16 {
	return h.Type
}

type FrameLayer struct {
	layers.BaseLayer
	FrameHeader
}

var FrameLayerType = gopacket.RegisterLayerType(FrameLayerNum,
	gopacket.LayerTypeMetadata{Name: "FrameLayerType", Decoder: gopacket.DecodeFunc(decodeFrameLayer)})

func (fl *FrameLayer) LayerType() gopacket.LayerType {
	return FrameLayerType
}

// SerializeHeader writes the header to buf which must be at least FrameHeaderSize long
func (fl *FrameLayer) SerializeHeader(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], fl.Time)
	binary.LittleEndian.PutUint16(buf[8:10], fl.Chid)
	binary.LittleEndian.PutUint16(buf[10:12], fl.Type)
	binary.LittleEndian.PutUint16(buf[12:14], fl.Dlen)
	buf[14] = fl.Instrument
	buf[15] = fl.Reserved
}

// SerializeTo prepends the header. Payload layers are serialized before the
// header, so Dlen is taken from what is already in the buffer.
func (fl *FrameLayer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	payloadLen := len(b.Bytes())
	if payloadLen%4 != 0 {
		return ErrFrame{What: fmt.Sprintf("payload is not word aligned: %d bytes", payloadLen)}
	}
	if payloadLen/4 > MaxPayloadWords {
		return ErrFrame{What: fmt.Sprintf("payload too large: %d bytes", payloadLen)}
	}
	if opts.FixLengths {
		fl.Dlen = uint16(payloadLen / 4)
	}
	headerBytes, err := b.PrependBytes(FrameHeaderSize)
	if err != nil {
		return err
	}
	fl.SerializeHeader(headerBytes)
	return nil
}

// DecodeFromBytes attempts to decode the byte slice as a single frame
func (fl *FrameLayer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < FrameHeaderSize {
		df.SetTruncated()
		return ErrFrame{What: "frame too short"}
	}
	fl.Time = binary.LittleEndian.Uint64(data[0:8])
	fl.Chid = binary.LittleEndian.Uint16(data[8:10])
	fl.Type = binary.LittleEndian.Uint16(data[10:12])
	fl.Dlen = binary.LittleEndian.Uint16(data[12:14])
	fl.Instrument = data[14]
	fl.Reserved = data[15]

	end := FrameHeaderSize + int(fl.Dlen)*4
	if len(data) < end {
		df.SetTruncated()
		return ErrFrame{What: fmt.Sprintf("frame payload truncated: want %d bytes, got %d", end, len(data))}
	}
	fl.BaseLayer = layers.BaseLayer{
		Contents: data[:FrameHeaderSize],
		Payload:  data[FrameHeaderSize:end],
	}
	return nil
}

func (fl *FrameLayer) CanDecode() gopacket.LayerClass {
	return FrameLayerType
}

func (fl *FrameLayer) NextLayerType() gopacket.LayerType {
	return fl.Kind().LayerType()
}

func decodeFrameLayer(data []byte, p gopacket.PacketBuilder) error {
	fl := &FrameLayer{}
	err := fl.DecodeFromBytes(data, p)
	if err != nil {
		return err
	}
	p.AddLayer(fl)
	if len(fl.Payload) == 0 {
		return nil
	}
	return p.NextDecoder(fl.Kind())
}

// FrameLength returns the total length of the frame starting at data[0]
// or zero if data does not hold a complete header.
func FrameLength(data []byte) int {
	if len(data) < FrameHeaderSize {
		return 0
	}
	return FrameHeaderSize + int(binary.LittleEndian.Uint16(data[12:14]))*4
}
