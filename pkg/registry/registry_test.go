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


package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jinr.ru/greenlab/go-nsp/pkg/device"
	"jinr.ru/greenlab/go-nsp/pkg/sim"
)

func newRegistry(t *testing.T, numChannels int) (*Registry, *sim.Instrument) {
	inst := sim.NewInstrument(numChannels, sim.WithAckDelay(30))
	session := device.NewLoopback(inst)
	t.Cleanup(func() { session.Close() })
	return New(session), inst
}

func group(g GroupID) *GroupID {
	return &g
}

func ids(channels []Channel) []ChannelID {
	result := []ChannelID{}
	for _, c := range channels {
		result = append(result, c.ID)
	}
	return result
}

func TestMembershipFollowsAcknowledgement(t *testing.T) {
	r, inst := newRegistry(t, 16)
	for _, ch := range []ChannelID{9, 2, 14, 5} {
		require.NoError(t, r.SetChannelConfig(ch, ChannelUpdate{Group: group(6)}))
	}

	members, err := r.GetGroupMembers(6)
	require.NoError(t, err)
	assert.Empty(t, members)
	assert.Equal(t, []ChannelID{2, 5, 9, 14}, r.Pending())

	inst.Step(30)
	require.NoError(t, r.Settle(context.Background(), time.Millisecond))

	members, err = r.GetGroupMembers(6)
	require.NoError(t, err)
	assert.Equal(t, []ChannelID{2, 5, 9, 14}, ids(members))

	again, err := r.GetGroupMembers(6)
	require.NoError(t, err)
	assert.Equal(t, members, again)

	require.NoError(t, r.SetChannelConfig(5, ChannelUpdate{Group: group(2)}))
	inst.Step(30)
	require.NoError(t, r.Settle(context.Background(), time.Millisecond))

	members, err = r.GetGroupMembers(6)
	require.NoError(t, err)
	assert.Equal(t, []ChannelID{2, 9, 14}, ids(members))
	members, err = r.GetGroupMembers(2)
	require.NoError(t, err)
	assert.Equal(t, []ChannelID{5}, ids(members))
}

func TestPartialUpdateKeepsOtherFields(t *testing.T) {
	r, inst := newRegistry(t, 4)
	label := "motor"
	opts := InputDCOffset
	require.NoError(t, r.SetChannelConfig(3, ChannelUpdate{Label: &label, InputOptions: &opts}))
	// not acknowledged yet, the second update merges over the first request
	require.NoError(t, r.SetChannelConfig(3, ChannelUpdate{Group: group(4)}))
	inst.Step(30)
	require.NoError(t, r.Settle(context.Background(), time.Millisecond))

	c, err := r.Channel(3)
	require.NoError(t, err)
	assert.Equal(t, Channel{ID: 3, Group: 4, InputOptions: InputDCOffset, Label: "motor"}, c)
}

func TestInvalidChannelAndGroup(t *testing.T) {
	r, _ := newRegistry(t, 4)

	var invalidChannel ErrInvalidChannel
	err := r.SetChannelConfig(0, ChannelUpdate{Group: group(1)})
	require.True(t, errors.As(err, &invalidChannel))
	err = r.SetChannelConfig(5, ChannelUpdate{Group: group(1)})
	require.True(t, errors.As(err, &invalidChannel))
	assert.Equal(t, ChannelID(5), invalidChannel.Channel)

	var invalidGroup ErrInvalidGroup
	err = r.SetChannelConfig(1, ChannelUpdate{Group: group(7)})
	require.True(t, errors.As(err, &invalidGroup))
	_, err = r.GetGroupMembers(0)
	require.True(t, errors.As(err, &invalidGroup))
	assert.Empty(t, r.Pending())
}

func TestSettleTimesOut(t *testing.T) {
	r, _ := newRegistry(t, 4)
	require.NoError(t, r.SetChannelConfig(1, ChannelUpdate{Group: group(1)}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := r.Settle(ctx, time.Millisecond)
	var notSettled ErrNotSettled
	require.True(t, errors.As(err, &notSettled))
	assert.Equal(t, []ChannelID{1}, notSettled.Pending)
}

type memStore map[string][]Channel

func (m memStore) SaveSnapshot(name string, channels []Channel) error {
	m[name] = append([]Channel(nil), channels...)
	return nil
}

func (m memStore) LoadSnapshot(name string) ([]Channel, error) {
	channels, ok := m[name]
	if !ok {
		return nil, errors.New("not found")
	}
	return channels, nil
}

func TestSaveAndRestore(t *testing.T) {
	r, inst := newRegistry(t, 4)
	store := memStore{}
	require.NoError(t, r.SetChannelConfig(1, ChannelUpdate{Group: group(5)}))
	require.NoError(t, r.SetChannelConfig(2, ChannelUpdate{Group: group(5)}))
	inst.Step(30)
	require.NoError(t, r.Settle(context.Background(), time.Millisecond))
	require.NoError(t, r.Save(store, "two"))

	require.NoError(t, r.SetChannelConfig(1, ChannelUpdate{Group: group(GroupDisabled)}))
	require.NoError(t, r.SetChannelConfig(4, ChannelUpdate{Group: group(1)}))
	inst.Step(30)
	require.NoError(t, r.Settle(context.Background(), time.Millisecond))

	changed, err := r.Restore(store, "two")
	require.NoError(t, err)
	assert.Equal(t, 2, changed)
	inst.Step(30)
	require.NoError(t, r.Settle(context.Background(), time.Millisecond))

	members, err := r.GetGroupMembers(5)
	require.NoError(t, err)
	assert.Equal(t, []ChannelID{1, 2}, ids(members))
	members, err = r.GetGroupMembers(1)
	require.NoError(t, err)
	assert.Empty(t, members)

	_, err = r.Restore(store, "missing")
	assert.Error(t, err)
}
