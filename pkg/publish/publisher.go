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


// Package publish fans spike events out to NATS subscribers.
package publish

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"

	"jinr.ru/greenlab/go-nsp/pkg/layers"
	"jinr.ru/greenlab/go-nsp/pkg/log"
)

var logger = log.For("publish")

const (
	DefaultInterval = 50 * time.Millisecond
	ConnectAttempts = 5
	// MaxBatch events force a flush before the interval passes
	MaxBatch = 4096
)

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
	Close()
}

type natsConnAdapter struct {
	conn *nats.Conn
}

func (a *natsConnAdapter) Publish(subject string, data []byte) error {
	return a.conn.Publish(subject, data)
}

func (a *natsConnAdapter) Close() {
	a.conn.Drain()
}

// Connect dials the server with a few retries.
func Connect(url string) (Conn, error) {
	var nc *nats.Conn
	var err error
	for i := 0; i < ConnectAttempts; i++ {
		nc, err = nats.Connect(url, nats.Name("go-nsp"), nats.MaxReconnects(-1))
		if err == nil {
			break
		}
		logger.Warning("Failed to connect to NATS at %s (attempt %d/%d): %s", url, i+1, ConnectAttempts, err)
		time.Sleep(time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS after %d attempts: %w", ConnectAttempts, err)
	}
	logger.Info("Connected to NATS at %s", url)
	return &natsConnAdapter{conn: nc}, nil
}

type Event struct {
	Channel   uint16 `msgpack:"ch"`
	Unit      uint16 `msgpack:"unit"`
	Timestamp uint64 `msgpack:"t"`
}

// Message is one published batch.
type Message struct {
	Session  string  `msgpack:"session"`
	Sequence uint64  `msgpack:"seq"`
	Events   []Event `msgpack:"events"`
}

func Decode(data []byte) (*Message, error) {
	m := &Message{}
	if err := msgpack.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}

type Stats struct {
	Messages uint64 `json:"messages"`
	Events   uint64 `json:"events"`
	Errors   uint64 `json:"errors"`
}

// Publisher batches spike events and publishes them every interval.
type Publisher struct {
	conn    Conn
	subject string
	session string

	mu    sync.Mutex
	batch []Event
	seq   uint64
	full  chan struct{}

	messages atomic.Uint64
	events   atomic.Uint64
	errors   atomic.Uint64
}

func NewPublisher(conn Conn, subject, session string) *Publisher {
	return &Publisher{
		conn:    conn,
		subject: subject,
		session: session,
		full:    make(chan struct{}, 1),
	}
}

// OnSpike has the spike callback signature. Noise is not published.
func (p *Publisher) OnSpike(frame *layers.Frame, spike *layers.SpikeLayer) {
	if spike.Unit == layers.NoiseUnit {
		return
	}
	p.mu.Lock()
	p.batch = append(p.batch, Event{Channel: frame.Chid, Unit: spike.Unit, Timestamp: frame.Time})
	n := len(p.batch)
	p.mu.Unlock()
	if n >= MaxBatch {
		select {
		case p.full <- struct{}{}:
		default:
		}
	}
}

// Flush publishes what is batched, if anything.
func (p *Publisher) Flush() error {
	p.mu.Lock()
	if len(p.batch) == 0 {
		p.mu.Unlock()
		return nil
	}
	p.seq++
	m := Message{Session: p.session, Sequence: p.seq, Events: p.batch}
	p.batch = nil
	p.mu.Unlock()

	data, err := msgpack.Marshal(&m)
	if err != nil {
		p.errors.Add(1)
		return err
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		p.errors.Add(1)
		return err
	}
	p.messages.Add(1)
	p.events.Add(uint64(len(m.Events)))
	return nil
}

// Run flushes every interval until ctx is done, then flushes once more.
func (p *Publisher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := p.Flush(); err != nil {
				logger.Error("Error while publishing events: %s", err)
			}
			return
		case <-ticker.C:
		case <-p.full:
		}
		if err := p.Flush(); err != nil {
			logger.Error("Error while publishing events: %s", err)
		}
	}
}

func (p *Publisher) Stats() Stats {
	return Stats{
		Messages: p.messages.Load(),
		Events:   p.events.Load(),
		Errors:   p.errors.Load(),
	}
}
