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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jinr.ru/greenlab/go-nsp/pkg/layers"
	"jinr.ru/greenlab/go-nsp/pkg/sim"
)

func TestProbeSimulator(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inst := sim.NewInstrument(6, sim.WithAckDelay(0))
	inst.HandleFrame(layers.NewChanInfoFrame(0, layers.TypeChanInfoSet, &layers.ChanInfoLayer{Chan: 2, Group: 5}))
	inst.HandleFrame(layers.NewChanInfoFrame(0, layers.TypeChanInfoSet, &layers.ChanInfoLayer{Chan: 3, Group: 5}))
	s, err := sim.NewServer(ctx, "127.0.0.1", 0, inst)
	require.NoError(t, err)
	go s.Run()
	addr, err := s.Addr(ctx)
	require.NoError(t, err)

	found, err := Probe(ctx, []string{addr.String()}, "4.1", 300*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, addr.String(), found[0].Address)
	assert.Equal(t, 6, found[0].Channels)
	assert.Equal(t, map[uint16]int{5: 2}, found[0].Groups)
	assert.Contains(t, found[0].String(), "channels: 6")
}

func TestProbeNoEndpoints(t *testing.T) {
	_, err := Probe(context.Background(), nil, "4.1", 0)
	assert.True(t, errors.As(err, &ErrNoEndpoints{}))
}
