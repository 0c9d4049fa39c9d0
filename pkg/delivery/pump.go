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


package delivery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"jinr.ru/greenlab/go-nsp/pkg/device"
)

// DefaultBatch is the number of datagrams a pump drains per read.
const DefaultBatch = 64

// Pump reads a pull-only source on its own goroutine and feeds the sink.
type Pump struct {
	source device.FrameSource
	sink   device.Sink
	batch  int
	cancel context.CancelFunc
	done   chan struct{}
	frames atomic.Uint64

	mu  sync.Mutex
	err error
}

func StartPump(ctx context.Context, source device.FrameSource, sink device.Sink, batch int) *Pump {
	if batch <= 0 {
		batch = DefaultBatch
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &Pump{
		source: source,
		sink:   sink,
		batch:  batch,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go p.run(ctx)
	return p
}

func (p *Pump) run(ctx context.Context) {
	defer close(p.done)
	for {
		frames, err := p.source.ReadFrames(ctx, p.batch)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.setErr(err)
			var timeout device.ErrTransportTimeout
			if errors.As(err, &timeout) {
				logger.Warning("%s", err)
				continue
			}
			logger.Error("Frame source failed: %s", err)
			return
		}
		p.setErr(nil)
		for _, frame := range frames {
			p.sink.OnFrame(frame)
		}
		p.frames.Add(uint64(len(frames)))
	}
}

func (p *Pump) setErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// Err returns the last transport error. A timeout is cleared as soon as
// frames flow again, any other error stops the pump and stays.
func (p *Pump) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Pump) Frames() uint64 {
	return p.frames.Load()
}

// Done is closed when the pump goroutine has exited.
func (p *Pump) Done() <-chan struct{} {
	return p.done
}

// Stop cancels the pump and waits until the sink is no longer called.
func (p *Pump) Stop() {
	p.cancel()
	<-p.done
}

// Attachment is the link between a session and a sink.
type Attachment struct {
	unsubscribe func()
	pump        *Pump
	once        sync.Once
}

// Attach subscribes sink to a push session, or starts a pump for a pull
// one. Push is preferred when a session offers both.
func Attach(ctx context.Context, session device.Session, sink device.Sink) (*Attachment, error) {
	if sub, ok := session.(device.Subscriber); ok {
		return &Attachment{unsubscribe: sub.Subscribe(sink)}, nil
	}
	if source, ok := session.(device.FrameSource); ok {
		return &Attachment{pump: StartPump(ctx, source, sink, DefaultBatch)}, nil
	}
	return nil, ErrNoFrameSource{Session: session.ID()}
}

// Err reports the transport error of a pumped session.
func (a *Attachment) Err() error {
	if a.pump == nil {
		return nil
	}
	return a.pump.Err()
}

// Detach returns once the sink can no longer be called.
func (a *Attachment) Detach() {
	a.once.Do(func() {
		if a.unsubscribe != nil {
			a.unsubscribe()
		}
		if a.pump != nil {
			a.pump.Stop()
		}
	})
}
