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


package device

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"jinr.ru/greenlab/go-nsp/pkg/layers"
	"jinr.ru/greenlab/go-nsp/pkg/sim"
)

// Loopback drives a simulated instrument in process. Frames are pushed to
// subscribers synchronously from Instrument.Step, so tests control time
// exactly.
type Loopback struct {
	id     string
	inst   *sim.Instrument
	table  *ackTable
	mu     sync.RWMutex
	sinks  map[int]Sink
	nextID int
	closed atomic.Bool
}

var _ Session = &Loopback{}
var _ Subscriber = &Loopback{}

func NewLoopback(inst *sim.Instrument) *Loopback {
	l := &Loopback{
		id:    uuid.NewString(),
		inst:  inst,
		table: newAckTable(),
		sinks: make(map[int]Sink),
	}
	inst.SetOutput(l.deliver)
	inst.HandleFrame(layers.NewChanInfoFrame(0, layers.TypeChanInfoQuery, &layers.ChanInfoLayer{}))
	return l
}

func (l *Loopback) ID() string {
	return l.id
}

func (l *Loopback) NumChannels() int {
	return l.inst.NumChannels()
}

func (l *Loopback) Instrument() *sim.Instrument {
	return l.inst
}

func (l *Loopback) Time() uint64 {
	return l.inst.Time()
}

func (l *Loopback) SendChannelConfig(info ChannelInfo) error {
	if l.closed.Load() {
		return ErrSessionClosed{}
	}
	l.inst.HandleFrame(layers.NewChanInfoFrame(l.inst.Time(), layers.TypeChanInfoSet, info.Layer()))
	return nil
}

func (l *Loopback) QueryChannel(ch uint16) (ChannelInfo, error) {
	return l.table.query(ch, l.NumChannels())
}

func (l *Loopback) QueryGroupMembership(group uint16) ([]uint16, error) {
	return l.table.members(group), nil
}

func (l *Loopback) Subscribe(sink Sink) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.sinks[id] = sink
	l.mu.Unlock()
	return func() {
		// taking the write lock waits for a delivery in progress
		l.mu.Lock()
		delete(l.sinks, id)
		l.mu.Unlock()
	}
}

func (l *Loopback) deliver(frames []*layers.Frame) {
	if l.closed.Load() {
		return
	}
	for _, frame := range frames {
		if frame.ChanInfo != nil && frame.Type == layers.TypeChanInfoReport {
			l.table.apply(ChannelInfoFromLayer(frame.ChanInfo))
		}
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, frame := range frames {
		for _, sink := range l.sinks {
			sink.OnFrame(frame)
		}
	}
}

func (l *Loopback) Close() error {
	if l.closed.CompareAndSwap(false, true) {
		l.inst.SetOutput(nil)
	}
	return nil
}
