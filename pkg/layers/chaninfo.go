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
	"bytes"
	"encoding/binary"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const (
	ChanInfoLayerNum = 2102
	ChanInfoSize     = 28
	LabelSize        = 16
)

// ChanInfoLayer is used in three directions: the client sets a channel
// configuration, queries it, and the instrument reports the configuration
// it has applied.
type ChanInfoLayer struct {
	layers.BaseLayer
	Chan         uint16
	Group        uint16
	InputOptions uint32
	SpikeOptions uint32
	Label        string
}

var ChanInfoLayerType = gopacket.RegisterLayerType(ChanInfoLayerNum,
	gopacket.LayerTypeMetadata{Name: "ChanInfoLayerType", Decoder: gopacket.DecodeFunc(decodeChanInfoLayer)})

func (cl *ChanInfoLayer) LayerType() gopacket.LayerType {
	return ChanInfoLayerType
}

func (cl *ChanInfoLayer) CanDecode() gopacket.LayerClass {
	return ChanInfoLayerType
}

func (cl *ChanInfoLayer) NextLayerType() gopacket.LayerType {
	return gopacket.LayerTypeZero
}

func (cl *ChanInfoLayer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	buf, err := b.AppendBytes(ChanInfoSize)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(buf[0:2], cl.Chan)
	binary.LittleEndian.PutUint16(buf[2:4], cl.Group)
	binary.LittleEndian.PutUint32(buf[4:8], cl.InputOptions)
	binary.LittleEndian.PutUint32(buf[8:12], cl.SpikeOptions)
	label := buf[12 : 12+LabelSize]
	for i := range label {
		label[i] = 0
	}
	copy(label, cl.Label)
	return nil
}

func (cl *ChanInfoLayer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < ChanInfoSize {
		df.SetTruncated()
		return ErrFrame{What: "chaninfo payload too short"}
	}
	cl.Chan = binary.LittleEndian.Uint16(data[0:2])
	cl.Group = binary.LittleEndian.Uint16(data[2:4])
	cl.InputOptions = binary.LittleEndian.Uint32(data[4:8])
	cl.SpikeOptions = binary.LittleEndian.Uint32(data[8:12])
	label := data[12 : 12+LabelSize]
	if i := bytes.IndexByte(label, 0); i >= 0 {
		label = label[:i]
	}
	cl.Label = string(label)
	cl.BaseLayer = layers.BaseLayer{Contents: data[:ChanInfoSize], Payload: data[ChanInfoSize:]}
	return nil
}

func decodeChanInfoLayer(data []byte, p gopacket.PacketBuilder) error {
	cl := &ChanInfoLayer{}
	if err := cl.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(cl)
	return nil
}
