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

const GroupLayerNum = 2100

// GroupLayer carries one sample per group member, in ascending channel order.
// Wire layout: count uint16, reserved uint16, count int16 samples padded to a word.
type GroupLayer struct {
	layers.BaseLayer
	Samples []int16
}

var GroupLayerType = gopacket.RegisterLayerType(GroupLayerNum,
	gopacket.LayerTypeMetadata{Name: "GroupLayerType", Decoder: gopacket.DecodeFunc(decodeGroupLayer)})

func (gl *GroupLayer) LayerType() gopacket.LayerType {
	return GroupLayerType
}

func (gl *GroupLayer) CanDecode() gopacket.LayerClass {
	return GroupLayerType
}

func (gl *GroupLayer) NextLayerType() gopacket.LayerType {
	return gopacket.LayerTypeZero
}

func (gl *GroupLayer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	n := len(gl.Samples)
	size := 4 + pad4(2*n)
	buf, err := b.AppendBytes(size)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(buf[0:2], uint16(n))
	binary.LittleEndian.PutUint16(buf[2:4], 0)
	for i, s := range gl.Samples {
		binary.LittleEndian.PutUint16(buf[4+2*i:], uint16(s))
	}
	for i := 4 + 2*n; i < size; i++ {
		buf[i] = 0
	}
	return nil
}

func (gl *GroupLayer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < 4 {
		df.SetTruncated()
		return ErrFrame{What: "group payload too short"}
	}
	n := int(binary.LittleEndian.Uint16(data[0:2]))
	if len(data) < 4+2*n {
		df.SetTruncated()
		return ErrFrame{What: fmt.Sprintf("group payload truncated: %d samples in %d bytes", n, len(data))}
	}
	if cap(gl.Samples) >= n {
		gl.Samples = gl.Samples[:n]
	} else {
		gl.Samples = make([]int16, n)
	}
	for i := 0; i < n; i++ {
		gl.Samples[i] = int16(binary.LittleEndian.Uint16(data[4+2*i:]))
	}
	gl.BaseLayer = layers.BaseLayer{Contents: data}
	return nil
}

func decodeGroupLayer(data []byte, p gopacket.PacketBuilder) error {
	gl := &GroupLayer{}
	if err := gl.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(gl)
	return nil
}

func pad4(n int) int {
	return (n + 3) &^ 3
}
