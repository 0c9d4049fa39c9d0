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
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/smallnest/ringbuffer"

	"jinr.ru/greenlab/go-nsp/pkg/config"
	"jinr.ru/greenlab/go-nsp/pkg/layers"
)

const (
	// each datagram is stored in the receive ring behind a 4 byte length
	recordHeaderSize = 4
	maxDatagramSize  = 65536
	outQueueSize     = 64
	// DefaultReadBatch is the number of datagrams ReadFrames drains when
	// called with max <= 0
	DefaultReadBatch = 256
)

type OutPacket struct {
	Data []byte
	*net.UDPAddr
}

// UDPSession talks to the instrument over UDP. A reader goroutine moves
// datagrams into a byte ring of RecvBufSize bytes, ReadFrames decodes them.
// Datagrams that do not fit the ring are dropped and counted.
type UDPSession struct {
	context.Context
	cancel      context.CancelFunc
	id          string
	cfg         *config.Connection
	numChannels int
	conn        *net.UDPConn
	instAddr    *net.UDPAddr
	recv        *ringbuffer.RingBuffer
	notify      chan struct{}
	chOut       chan OutPacket
	table       *ackTable
	time        atomic.Uint64
	dropped     atomic.Uint64
	errMu       sync.Mutex
	err         error
	closeOnce   sync.Once
	wg          sync.WaitGroup
}

var _ Session = &UDPSession{}
var _ FrameSource = &UDPSession{}

// OpenUDP binds the client socket, asks the instrument for its channel
// table and waits until every channel is reported or cfg.Timeout passes.
func OpenUDP(ctx context.Context, cfg *config.Connection, numChannels int) (*UDPSession, error) {
	instAddr, err := net.ResolveUDPAddr("udp", cfg.InstEndpoint())
	if err != nil {
		return nil, ErrConnection{What: "resolve instrument address", Err: err}
	}
	clientAddr, err := net.ResolveUDPAddr("udp", cfg.ClientEndpoint())
	if err != nil {
		return nil, ErrConnection{What: "resolve client address", Err: err}
	}
	conn, err := net.ListenUDP("udp", clientAddr)
	if err != nil {
		return nil, ErrConnection{What: fmt.Sprintf("listen on %s", clientAddr), Err: err}
	}
	if err := conn.SetReadBuffer(cfg.RecvBufSize); err != nil {
		logger.Warning("Unable to set socket receive buffer to %d bytes: %s", cfg.RecvBufSize, err)
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &UDPSession{
		Context:     sctx,
		cancel:      cancel,
		id:          uuid.NewString(),
		cfg:         cfg,
		numChannels: numChannels,
		conn:        conn,
		instAddr:    instAddr,
		recv:        ringbuffer.New(cfg.RecvBufSize),
		notify:      make(chan struct{}, 1),
		chOut:       make(chan OutPacket, outQueueSize),
		table:       newAckTable(),
	}

	s.wg.Add(2)
	go s.receive()
	go s.transmit()

	if err := s.handshake(); err != nil {
		s.Close()
		return nil, err
	}
	logger.Info("Session %s connected to %s, %d channels reported", s.id, instAddr, s.table.len())
	return s, nil
}

func (s *UDPSession) ID() string {
	return s.id
}

func (s *UDPSession) NumChannels() int {
	return s.numChannels
}

func (s *UDPSession) Time() uint64 {
	return s.time.Load()
}

// Dropped is the number of datagrams lost because the receive ring was full.
func (s *UDPSession) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *UDPSession) handshake() error {
	query := layers.NewChanInfoFrame(0, layers.TypeChanInfoQuery, &layers.ChanInfoLayer{Label: s.cfg.ProtocolVersion})
	if err := s.send(query); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(s.Context, s.cfg.Timeout)
	defer cancel()
	for s.table.len() < s.numChannels {
		if _, err := s.ReadFrames(ctx, DefaultReadBatch); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return ErrTransportTimeout{What: fmt.Sprintf("%d of %d channels reported", s.table.len(), s.numChannels)}
			}
			return err
		}
	}
	return nil
}

func (s *UDPSession) SendChannelConfig(info ChannelInfo) error {
	return s.send(layers.NewChanInfoFrame(s.Time(), layers.TypeChanInfoSet, info.Layer()))
}

func (s *UDPSession) QueryChannel(ch uint16) (ChannelInfo, error) {
	return s.table.query(ch, s.numChannels)
}

func (s *UDPSession) QueryGroupMembership(group uint16) ([]uint16, error) {
	if err := s.failure(); err != nil {
		return nil, err
	}
	return s.table.members(group), nil
}

func (s *UDPSession) send(frame *layers.Frame) error {
	if s.Context.Err() != nil {
		return s.failureOrClosed()
	}
	data, err := frame.Serialize()
	if err != nil {
		return err
	}
	select {
	case s.chOut <- OutPacket{Data: data, UDPAddr: s.instAddr}:
		return nil
	case <-s.Context.Done():
		return s.failureOrClosed()
	}
}

// ReadFrames decodes datagrams from the receive ring. With an empty ring it
// waits for data until ctx is done, the session fails or cfg.Timeout passes
// without a single datagram.
func (s *UDPSession) ReadFrames(ctx context.Context, max int) ([]*layers.Frame, error) {
	if s.Context.Err() != nil {
		return nil, s.failureOrClosed()
	}
	if max <= 0 {
		max = DefaultReadBatch
	}
	timer := time.NewTimer(s.cfg.Timeout)
	defer timer.Stop()
	for {
		frames := s.drain(max)
		if len(frames) > 0 {
			return frames, nil
		}
		select {
		case <-s.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.Context.Done():
			return nil, s.failureOrClosed()
		case <-timer.C:
			return nil, ErrTransportTimeout{What: fmt.Sprintf("no data from %s for %s", s.instAddr, s.cfg.Timeout)}
		}
	}
}

func (s *UDPSession) drain(max int) []*layers.Frame {
	var frames []*layers.Frame
	header := make([]byte, recordHeaderSize)
	for n := 0; n < max && s.recv.Length() >= recordHeaderSize; n++ {
		if _, err := s.recv.Read(header); err != nil {
			logger.Error("Error while reading receive ring: %s", err)
			break
		}
		data := make([]byte, binary.LittleEndian.Uint32(header))
		if _, err := s.recv.Read(data); err != nil {
			logger.Error("Error while reading receive ring: %s", err)
			break
		}
		decoded, err := layers.DecodeDatagram(data)
		if err != nil {
			logger.Error("Error while decoding datagram: %s", err)
		}
		for _, frame := range decoded {
			s.observe(frame)
		}
		frames = append(frames, decoded...)
	}
	return frames
}

func (s *UDPSession) observe(frame *layers.Frame) {
	for {
		last := s.time.Load()
		if frame.Time <= last || s.time.CompareAndSwap(last, frame.Time) {
			break
		}
	}
	if frame.ChanInfo != nil && frame.Type == layers.TypeChanInfoReport {
		s.table.apply(ChannelInfoFromLayer(frame.ChanInfo))
	}
}

// Receive datagrams from the wire and put them into the receive ring
func (s *UDPSession) receive() {
	defer s.wg.Done()
	buffer := make([]byte, recordHeaderSize+maxDatagramSize)
	for {
		length, _, err := s.conn.ReadFromUDP(buffer[recordHeaderSize:])
		if err != nil {
			if s.Context.Err() == nil {
				s.fail(ErrConnection{What: "receive", Err: err})
			}
			return
		}
		record := buffer[:recordHeaderSize+length]
		binary.LittleEndian.PutUint32(record, uint32(length))
		if s.recv.Free() < len(record) {
			if s.dropped.Add(1)%1000 == 1 {
				logger.Warning("Receive ring is full, %d datagrams dropped so far", s.dropped.Load())
			}
			continue
		}
		if _, err := s.recv.Write(record); err != nil {
			if errors.Is(err, ringbuffer.ErrIsFull) {
				s.dropped.Add(1)
				continue
			}
			logger.Error("Error while writing receive ring: %s", err)
			continue
		}
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
}

// Read packets from output queue and send them to wire
func (s *UDPSession) transmit() {
	defer s.wg.Done()
	for {
		select {
		case <-s.Context.Done():
			return
		case out := <-s.chOut:
			if _, err := s.conn.WriteToUDP(out.Data, out.UDPAddr); err != nil {
				logger.Error("Error while sending data to %s", out.UDPAddr)
				s.fail(ErrConnection{What: "send", Err: err})
				return
			}
		}
	}
}

func (s *UDPSession) fail(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
	s.cancel()
}

func (s *UDPSession) failure() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *UDPSession) failureOrClosed() error {
	if err := s.failure(); err != nil {
		return err
	}
	return ErrSessionClosed{}
}

func (s *UDPSession) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.conn.Close()
		s.wg.Wait()
		logger.Info("Session %s closed", s.id)
	})
	return nil
}
