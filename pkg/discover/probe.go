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


package discover

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"time"

	"sigs.k8s.io/yaml"

	"jinr.ru/greenlab/go-nsp/pkg/layers"
	"jinr.ru/greenlab/go-nsp/pkg/log"
)

var logger = log.For("discover")

const (
	DefaultWait = 500 * time.Millisecond
	bufferSize  = 65536
)

// InstrumentDescription is what an instrument tells about itself in answer
// to a channel query.
type InstrumentDescription struct {
	Address    string         `json:"address"`
	Channels   int            `json:"channels"`
	Groups     map[uint16]int `json:"groups,omitempty"`
	Time       uint64         `json:"time"`
	Heartbeats int            `json:"heartbeats,omitempty"`
	reported   map[uint16]uint16
}

func (d *InstrumentDescription) String() string {
	result, err := yaml.Marshal(d)
	if err != nil {
		logger.Info("Error occured while marshaling instrument description, %s", err)
		return ""
	}
	return fmt.Sprintf("---\n%s", string(result))
}

func (d *InstrumentDescription) apply(frame *layers.Frame) {
	if frame.Time > d.Time {
		d.Time = frame.Time
	}
	switch {
	case frame.Kind() == layers.KindHeartbeat:
		d.Heartbeats++
	case frame.ChanInfo != nil && frame.Type == layers.TypeChanInfoReport:
		d.reported[frame.ChanInfo.Chan] = frame.ChanInfo.Group
	}
}

func (d *InstrumentDescription) finish() {
	d.Channels = len(d.reported)
	d.Groups = make(map[uint16]int)
	for _, group := range d.reported {
		if group != 0 {
			d.Groups[group]++
		}
	}
}

type captured struct {
	data []byte
	addr *net.UDPAddr
}

// Probe sends a query for every channel to each endpoint and collects the
// answers for wait. Endpoints that did not answer are not returned.
func Probe(ctx context.Context, endpoints []string, version string, wait time.Duration) ([]*InstrumentDescription, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints{}
	}
	if wait <= 0 {
		wait = DefaultWait
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	query, err := layers.NewChanInfoFrame(0, layers.TypeChanInfoQuery, &layers.ChanInfoLayer{Label: version}).Serialize()
	if err != nil {
		return nil, err
	}
	for _, endpoint := range endpoints {
		addr, err := net.ResolveUDPAddr("udp", endpoint)
		if err != nil {
			return nil, err
		}
		logger.Debug("Sending channel query to %s", addr)
		if _, err := conn.WriteToUDP(query, addr); err != nil {
			return nil, ErrSendQuery{Endpoint: endpoint, Err: err}
		}
	}

	deadline := time.Now().Add(wait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)

	chCaptured := make(chan captured)
	errChan := make(chan error, 1)

	// capture answers from the wire and put them into the chCaptured channel
	go func() {
		defer close(chCaptured)
		buffer := make([]byte, bufferSize)
		for {
			length, addr, readErr := conn.ReadFromUDP(buffer)
			if readErr != nil {
				if !errors.Is(readErr, os.ErrDeadlineExceeded) {
					errChan <- readErr
				}
				return
			}
			data := make([]byte, length)
			copy(data, buffer[:length])
			select {
			case chCaptured <- captured{data: data, addr: addr}:
			case <-ctx.Done():
				return
			}
		}
	}()

	found := make(map[string]*InstrumentDescription)
	for c := range chCaptured {
		frames, decodeErr := layers.DecodeDatagram(c.data)
		if decodeErr != nil {
			logger.Error("Error while decoding datagram from %s: %s", c.addr, decodeErr)
		}
		d, ok := found[c.addr.String()]
		if !ok {
			d = &InstrumentDescription{Address: c.addr.String(), reported: make(map[uint16]uint16)}
			found[c.addr.String()] = d
		}
		for _, frame := range frames {
			d.apply(frame)
		}
	}
	select {
	case err := <-errChan:
		return nil, err
	default:
	}

	result := make([]*InstrumentDescription, 0, len(found))
	for _, d := range found {
		d.finish()
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Address < result[j].Address })
	return result, nil
}
