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
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jinr.ru/greenlab/go-nsp/pkg/config"
	"jinr.ru/greenlab/go-nsp/pkg/layers"
	"jinr.ru/greenlab/go-nsp/pkg/sim"
)

func startSim(t *testing.T, numChannels int) (*config.Connection, *sim.Instrument) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	inst := sim.NewInstrument(numChannels, sim.WithAckDelay(30))
	server, err := sim.NewServer(ctx, "127.0.0.1", 0, inst)
	require.NoError(t, err)
	go server.Run()

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	addr, err := server.Addr(waitCtx)
	require.NoError(t, err)

	cfg := config.NewDefaultConfig().Connection
	cfg.InstAddr = "127.0.0.1"
	cfg.InstPort = addr.Port
	cfg.ClientAddr = "127.0.0.1"
	cfg.ClientPort = 0
	cfg.Timeout = 2 * time.Second
	return cfg, inst
}

func TestUDPSessionHandshakeAndConfigure(t *testing.T) {
	cfg, inst := startSim(t, 16)
	session, err := OpenUDP(context.Background(), cfg, 16)
	require.NoError(t, err)
	defer session.Close()

	info, err := session.QueryChannel(16)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), info.Group)

	require.NoError(t, session.SendChannelConfig(ChannelInfo{Chan: 2, Group: 6}))
	require.NoError(t, session.SendChannelConfig(ChannelInfo{Chan: 5, Group: 6}))

	deadline := time.Now().Add(3 * time.Second)
	var groupFrames []*layers.Frame
	for time.Now().Before(deadline) && len(groupFrames) < 100 {
		frames, err := session.ReadFrames(context.Background(), 0)
		require.NoError(t, err)
		for _, f := range frames {
			if f.Group != nil {
				groupFrames = append(groupFrames, f)
			}
		}
	}
	require.GreaterOrEqual(t, len(groupFrames), 100)
	assert.Len(t, groupFrames[len(groupFrames)-1].Group.Samples, 2)

	members, err := session.QueryGroupMembership(6)
	require.NoError(t, err)
	assert.Equal(t, []uint16{2, 5}, members)
	assert.Greater(t, session.Time(), uint64(0))

	applied, ok := inst.Channel(5)
	require.True(t, ok)
	assert.Equal(t, uint16(6), applied.Group)
}

func TestUDPSessionTimeout(t *testing.T) {
	// reserve a port nobody answers on
	silent, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer silent.Close()

	cfg := config.NewDefaultConfig().Connection
	cfg.InstAddr = "127.0.0.1"
	cfg.InstPort = silent.LocalAddr().(*net.UDPAddr).Port
	cfg.ClientAddr = "127.0.0.1"
	cfg.ClientPort = 0
	cfg.Timeout = 200 * time.Millisecond

	_, err = OpenUDP(context.Background(), cfg, 4)
	var timeout ErrTransportTimeout
	assert.True(t, errors.As(err, &timeout), "unexpected error %v", err)
}

func TestUDPSessionBadAddress(t *testing.T) {
	cfg := config.NewDefaultConfig().Connection
	cfg.ClientAddr = "not-an-address"
	_, err := OpenUDP(context.Background(), cfg, 4)
	var connErr ErrConnection
	assert.True(t, errors.As(err, &connErr))
}

func TestUDPSessionClosed(t *testing.T) {
	cfg, _ := startSim(t, 4)
	session, err := OpenUDP(context.Background(), cfg, 4)
	require.NoError(t, err)
	require.NoError(t, session.Close())
	require.NoError(t, session.Close())

	_, err = session.ReadFrames(context.Background(), 1)
	assert.ErrorIs(t, err, ErrSessionClosed{})
	assert.ErrorIs(t, session.SendChannelConfig(ChannelInfo{Chan: 1}), ErrSessionClosed{})
}
