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

const (
	CommentLayerNum = 2103
	// MaxCommentLen is the longest comment text the instrument accepts
	MaxCommentLen = 127
)

const (
	CharsetASCII uint8 = 0
	CharsetUTF16 uint8 = 1
)

// CommentLayer wire layout: charset uint8, reserved [3]byte, rgba uint32,
// text length uint16, reserved uint16, text padded to a word.
type CommentLayer struct {
	layers.BaseLayer
	Charset uint8
	RGBA    uint32
	Text    string
}

var CommentLayerType = gopacket.RegisterLayerType(CommentLayerNum,
	gopacket.LayerTypeMetadata{Name: "CommentLayerType", Decoder: gopacket.DecodeFunc(decodeCommentLayer)})

func (cl *CommentLayer) LayerType() gopacket.LayerType {
	return CommentLayerType
}

func (cl *CommentLayer) CanDecode() gopacket.LayerClass {
	return CommentLayerType
}

func (cl *CommentLayer) NextLayerType() gopacket.LayerType {
	return gopacket.LayerTypeZero
}

func (cl *CommentLayer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	text := cl.Text
	if len(text) > MaxCommentLen {
		text = text[:MaxCommentLen]
	}
	size := 12 + pad4(len(text))
	buf, err := b.AppendBytes(size)
	if err != nil {
		return err
	}
	for i := range buf {
		buf[i] = 0
	}
	buf[0] = cl.Charset
	binary.LittleEndian.PutUint32(buf[4:8], cl.RGBA)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(len(text)))
	copy(buf[12:], text)
	return nil
}

func (cl *CommentLayer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < 12 {
		df.SetTruncated()
		return ErrFrame{What: "comment payload too short"}
	}
	cl.Charset = data[0]
	cl.RGBA = binary.LittleEndian.Uint32(data[4:8])
	n := int(binary.LittleEndian.Uint16(data[8:10]))
	if len(data) < 12+n {
		df.SetTruncated()
		return ErrFrame{What: fmt.Sprintf("comment text truncated: %d bytes in %d", n, len(data)-12)}
	}
	cl.Text = string(data[12 : 12+n])
	cl.BaseLayer = layers.BaseLayer{Contents: data}
	return nil
}

func decodeCommentLayer(data []byte, p gopacket.PacketBuilder) error {
	cl := &CommentLayer{}
	if err := cl.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(cl)
	return nil
}
