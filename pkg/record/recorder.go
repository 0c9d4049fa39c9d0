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


// Package record persists raw group and spike frames to files while a
// trial runs. Files hold frames back to back in their wire format.
package record

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"jinr.ru/greenlab/go-nsp/pkg/layers"
	"jinr.ru/greenlab/go-nsp/pkg/log"
)

var logger = log.For("record")

const (
	WriterChSize = 4096
	FileSuffix   = ".nspf"
)

type switchRequest struct {
	writer *Writer
	done   chan error
}

type Status struct {
	File    string `json:"file"`
	Frames  uint64 `json:"frames"`
	Dropped uint64 `json:"dropped"`
}

// Recorder takes frames on the delivery goroutine and writes them on its
// own. When the queue is full frames are dropped, never blocking delivery.
type Recorder struct {
	ctx      context.Context
	writerCh chan []byte
	stateCh  chan switchRequest
	done     chan struct{}
	frames   atomic.Uint64
	dropped  atomic.Uint64

	mu   sync.Mutex
	file string
}

func NewRecorder(ctx context.Context) *Recorder {
	r := &Recorder{
		ctx:      ctx,
		writerCh: make(chan []byte, WriterChSize),
		stateCh:  make(chan switchRequest),
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Recorder) run() {
	defer close(r.done)
	var current *Writer
	var out io.Writer = io.Discard

	drain := func() {
		for {
			select {
			case data := <-r.writerCh:
				if _, err := out.Write(data); err != nil {
					logger.Error("Error while writing to file: %s", err)
				}
			default:
				return
			}
		}
	}
	closeCurrent := func() error {
		drain()
		if current == nil {
			return nil
		}
		logger.Info("Flush writer: %s", current.Filename())
		err := current.Flush()
		current = nil
		out = io.Discard
		return err
	}

	for {
		select {
		case req := <-r.stateCh:
			err := closeCurrent()
			if req.writer != nil {
				current = req.writer
				out = current
			}
			req.done <- err
		case data := <-r.writerCh:
			if _, err := out.Write(data); err != nil {
				logger.Error("Error while writing to file: %s", err)
			}
		case <-r.ctx.Done():
			if err := closeCurrent(); err != nil {
				logger.Error("Error while closing %s: %s", r.File(), err)
			}
			return
		}
	}
}

func (r *Recorder) enqueue(frame *layers.Frame) {
	if r.File() == "" {
		return
	}
	data, err := frame.Serialize()
	if err != nil {
		logger.Error("Error while serializing frame: %s", err)
		return
	}
	select {
	case r.writerCh <- data:
		r.frames.Add(1)
	default:
		r.dropped.Add(1)
	}
}

// OnGroup has the group callback signature.
func (r *Recorder) OnGroup(frame *layers.Frame, group *layers.GroupLayer) {
	r.enqueue(frame)
}

// OnSpike has the spike callback signature.
func (r *Recorder) OnSpike(frame *layers.Frame, spike *layers.SpikeLayer) {
	r.enqueue(frame)
}

func (r *Recorder) swap(w *Writer) error {
	req := switchRequest{writer: w, done: make(chan error, 1)}
	select {
	case r.stateCh <- req:
	case <-r.done:
		if w != nil {
			w.Flush()
		}
		return ErrRecorderStopped{}
	}
	return <-req.done
}

func persistFilename(dir, prefix, suffix string) string {
	filename := fmt.Sprintf("%s_%s%s", suffix, uuid.NewString()[:8], FileSuffix)
	if prefix != "" {
		filename = fmt.Sprintf("%s_%s", prefix, filename)
	}
	return path.Join(dir, filename)
}

// Persist starts a new file in dir and returns its name. A file being
// written is flushed first.
func (r *Recorder) Persist(dir, prefix string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	timestamp := time.Now().UTC().Format("20060102_150405")
	filename := persistFilename(dir, prefix, timestamp)
	w, err := NewWriter(filename)
	if err != nil {
		return "", err
	}
	// frames are accepted only after the switch
	if err := r.swap(w); err != nil {
		return "", err
	}
	r.mu.Lock()
	r.file = filename
	r.mu.Unlock()
	logger.Info("Persist writer: %s", filename)
	return filename, nil
}

// Flush closes the current file. Frames are discarded until the next
// Persist.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	r.file = ""
	r.mu.Unlock()
	return r.swap(nil)
}

func (r *Recorder) File() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file
}

func (r *Recorder) Status() Status {
	return Status{
		File:    r.File(),
		Frames:  r.frames.Load(),
		Dropped: r.dropped.Load(),
	}
}

// ReadFile returns the frames of a recorded file.
func ReadFile(filename string) ([]*layers.Frame, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return layers.DecodeDatagram(data)
}
