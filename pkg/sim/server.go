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


package sim

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"jinr.ru/greenlab/go-nsp/pkg/layers"
)

const (
	DefaultMaxDatagram = 8192
	clockInterval      = time.Millisecond
	outQueueSize       = 1024
)

type OutPacket struct {
	Data []byte
	*net.UDPAddr
}

// Server exposes an Instrument over UDP and runs its clock in real time.
// The first peer that sends a frame becomes the client all output goes to.
type Server struct {
	context.Context
	*net.UDPAddr
	inst        *Instrument
	chOut       chan OutPacket
	mu          sync.Mutex
	client      *net.UDPAddr
	MaxDatagram int
	ready       chan *net.UDPAddr
}

func NewServer(ctx context.Context, address string, port int, inst *Instrument) (*Server, error) {
	uaddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", address, port))
	if err != nil {
		return nil, err
	}
	return &Server{
		Context:     ctx,
		UDPAddr:     uaddr,
		inst:        inst,
		chOut:       make(chan OutPacket, outQueueSize),
		MaxDatagram: DefaultMaxDatagram,
		ready:       make(chan *net.UDPAddr, 1),
	}, nil
}

// Addr blocks until the server is listening and returns the bound address.
func (s *Server) Addr(ctx context.Context) (*net.UDPAddr, error) {
	select {
	case addr := <-s.ready:
		s.ready <- addr
		return addr, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Server) Run() error {
	conn, err := net.ListenUDP("udp", s.UDPAddr)
	if err != nil {
		return err
	}
	defer conn.Close()
	s.ready <- conn.LocalAddr().(*net.UDPAddr)
	logger.Info("Simulator listening on %s with %d channels", conn.LocalAddr(), s.inst.NumChannels())

	s.inst.SetOutput(s.send)
	defer s.inst.SetOutput(nil)

	errChan := make(chan error, 2)
	buffer := make([]byte, 65536)

	// Read client requests and hand them to the instrument
	go func() {
		for {
			length, addr, readErr := conn.ReadFromUDP(buffer)
			if readErr != nil {
				errChan <- readErr
				return
			}
			s.mu.Lock()
			if s.client == nil || s.client.String() != addr.String() {
				logger.Info("Client connected from %s", addr)
			}
			s.client = addr
			s.mu.Unlock()

			frames, decodeErr := layers.DecodeDatagram(buffer[:length])
			if decodeErr != nil {
				logger.Error("Error while decoding client datagram: %s", decodeErr)
			}
			for _, frame := range frames {
				s.inst.HandleFrame(frame)
			}
		}
	}()

	// Read packets from output queue and send them to wire
	go func() {
		for {
			select {
			case <-s.Context.Done():
				return
			case out := <-s.chOut:
				if _, sendErr := conn.WriteToUDP(out.Data, out.UDPAddr); sendErr != nil {
					logger.Error("Error while sending data to %s", out.UDPAddr)
					errChan <- sendErr
					return
				}
			}
		}
	}()

	go s.clock()

	select {
	case <-s.Context.Done():
		return s.Context.Err()
	case err = <-errChan:
		return err
	}
}

func (s *Server) clock() {
	ticker := time.NewTicker(clockInterval)
	defer ticker.Stop()
	start := time.Now()
	var stepped int64
	for {
		select {
		case <-s.Context.Done():
			return
		case <-ticker.C:
			target := int64(time.Since(start).Seconds() * layers.TicksPerSecond)
			if target > stepped {
				s.inst.Step(int(target - stepped))
				stepped = target
			}
		}
	}
}

// send packs frames into datagrams. Output is discarded until a client is known.
func (s *Server) send(frames []*layers.Frame) {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return
	}

	var datagram []byte
	flush := func() {
		if len(datagram) == 0 {
			return
		}
		select {
		case s.chOut <- OutPacket{Data: datagram, UDPAddr: client}:
		case <-s.Context.Done():
		}
		datagram = nil
	}
	for _, frame := range frames {
		data, err := frame.Serialize()
		if err != nil {
			logger.Error("Error while serializing frame: %s", err)
			continue
		}
		if len(datagram)+len(data) > s.MaxDatagram {
			flush()
		}
		datagram = append(datagram, data...)
	}
	flush()
}
