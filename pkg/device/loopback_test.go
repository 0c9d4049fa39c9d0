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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jinr.ru/greenlab/go-nsp/pkg/layers"
	"jinr.ru/greenlab/go-nsp/pkg/sim"
)

func TestLoopbackAcknowledgesAfterDelay(t *testing.T) {
	inst := sim.NewInstrument(8, sim.WithAckDelay(10))
	session := NewLoopback(inst)
	defer session.Close()

	info, err := session.QueryChannel(3)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), info.Group)

	require.NoError(t, session.SendChannelConfig(ChannelInfo{Chan: 3, Group: 4, Label: "ch3"}))
	members, err := session.QueryGroupMembership(4)
	require.NoError(t, err)
	assert.Empty(t, members)

	inst.Step(10)
	members, err = session.QueryGroupMembership(4)
	require.NoError(t, err)
	assert.Equal(t, []uint16{3}, members)
	info, err = session.QueryChannel(3)
	require.NoError(t, err)
	assert.Equal(t, "ch3", info.Label)
}

func TestLoopbackSubscribe(t *testing.T) {
	inst := sim.NewInstrument(2, sim.WithAckDelay(0))
	session := NewLoopback(inst)
	require.NoError(t, session.SendChannelConfig(ChannelInfo{Chan: 1, Group: 5}))

	var count int
	unsubscribe := session.Subscribe(SinkFunc(func(f *layers.Frame) {
		if f.Group != nil {
			count++
		}
	}))
	inst.Step(100)
	assert.Equal(t, 100, count)

	unsubscribe()
	inst.Step(100)
	assert.Equal(t, 100, count)
}

func TestLoopbackQueryRange(t *testing.T) {
	session := NewLoopback(sim.NewInstrument(2))
	_, err := session.QueryChannel(0)
	assert.ErrorIs(t, err, ErrUnknownChannel{Chan: 0})
	_, err = session.QueryChannel(3)
	assert.ErrorIs(t, err, ErrUnknownChannel{Chan: 3})

	require.NoError(t, session.Close())
	assert.ErrorIs(t, session.SendChannelConfig(ChannelInfo{Chan: 1}), ErrSessionClosed{})
}
