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


// Package device holds the instrument session: configuration commands,
// the acknowledged channel table and the raw frame source.
package device

import (
	"context"

	"jinr.ru/greenlab/go-nsp/pkg/layers"
	"jinr.ru/greenlab/go-nsp/pkg/log"
)

var logger = log.For("device")

// ChannelInfo is a channel configuration as the instrument knows it.
type ChannelInfo struct {
	Chan         uint16
	Group        uint16
	InputOptions uint32
	SpikeOptions uint32
	Label        string
}

func (c ChannelInfo) Layer() *layers.ChanInfoLayer {
	return &layers.ChanInfoLayer{
		Chan:         c.Chan,
		Group:        c.Group,
		InputOptions: c.InputOptions,
		SpikeOptions: c.SpikeOptions,
		Label:        c.Label,
	}
}

func ChannelInfoFromLayer(l *layers.ChanInfoLayer) ChannelInfo {
	return ChannelInfo{
		Chan:         l.Chan,
		Group:        l.Group,
		InputOptions: l.InputOptions,
		SpikeOptions: l.SpikeOptions,
		Label:        l.Label,
	}
}

// Sink accepts frames from a session. OnFrame is called from the delivery
// goroutine one frame at a time.
type Sink interface {
	OnFrame(frame *layers.Frame)
}

type SinkFunc func(frame *layers.Frame)

func (f SinkFunc) OnFrame(frame *layers.Frame) {
	f(frame)
}

// Session is a connection to one instrument. Configuration is sent without
// waiting for acknowledgement; queries answer from the acknowledged state.
type Session interface {
	ID() string
	NumChannels() int
	SendChannelConfig(info ChannelInfo) error
	QueryChannel(ch uint16) (ChannelInfo, error)
	QueryGroupMembership(group uint16) ([]uint16, error)
	// Time is the latest instrument clock value seen, in ticks
	Time() uint64
	Close() error
}

// FrameSource is implemented by sessions frames are pulled from.
type FrameSource interface {
	// ReadFrames blocks until frames are available and returns them. max
	// bounds the number of datagrams drained in one call.
	ReadFrames(ctx context.Context, max int) ([]*layers.Frame, error)
}

// Subscriber is implemented by sessions that push frames. The returned
// function detaches the sink; once it returns the sink is not called again.
type Subscriber interface {
	Subscribe(sink Sink) (unsubscribe func())
}
