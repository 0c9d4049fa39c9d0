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

const SpikeLayerNum = 2101

// NoiseUnit marks waveforms the instrument classified as noise.
const NoiseUnit uint16 = 255

// SpikeLayer is a detected spike of the channel named in the frame header.
// Wire layout: unit uint16, nsamples uint16, waveform int16 padded to a word.
type SpikeLayer struct {
	layers.BaseLayer
	Unit     uint16
	Waveform []int16
}

var SpikeLayerType = gopacket.RegisterLayerType(SpikeLayerNum,
	gopacket.LayerTypeMetadata{Name: "SpikeLayerType", Decoder: gopacket.DecodeFunc(decodeSpikeLayer)})

func (sl *SpikeLayer) LayerType() gopacket.LayerType {
	return SpikeLayerType
}

func (sl *SpikeLayer) CanDecode() gopacket.LayerClass {
	return SpikeLayerType
}

func (sl *SpikeLayer) NextLayerType() gopacket.LayerType {
	return gopacket.LayerTypeZero
}

func (sl *SpikeLayer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	n := len(sl.Waveform)
	size := 4 + pad4(2*n)
	buf, err := b.AppendBytes(size)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(buf[0:2], sl.Unit)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(n))
	for i, s := range sl.Waveform {
		binary.LittleEndian.PutUint16(buf[4+2*i:], uint16(s))
	}
	for i := 4 + 2*n; i < size; i++ {
		buf[i] = 0
	}
	return nil
}

func (sl *SpikeLayer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < 4 {
		df.SetTruncated()
		return ErrFrame{What: "spike payload too short"}
	}
	sl.Unit = binary.LittleEndian.Uint16(data[0:2])
	n := int(binary.LittleEndian.Uint16(data[2:4]))
	if len(data) < 4+2*n {
		df.SetTruncated()
		return ErrFrame{What: fmt.Sprintf("spike waveform truncated: %d samples in %d bytes", n, len(data))}
	}
	sl.Waveform = make([]int16, n)
	for i := 0; i < n; i++ {
		sl.Waveform[i] = int16(binary.LittleEndian.Uint16(data[4+2*i:]))
	}
	sl.BaseLayer = layers.BaseLayer{Contents: data}
	return nil
}

func decodeSpikeLayer(data []byte, p gopacket.PacketBuilder) error {
	sl := &SpikeLayer{}
	if err := sl.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(sl)
	return nil
}
