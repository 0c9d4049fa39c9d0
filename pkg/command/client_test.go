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


package command

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jinr.ru/greenlab/go-nsp/pkg/config"
	"jinr.ru/greenlab/go-nsp/pkg/device"
	"jinr.ru/greenlab/go-nsp/pkg/nsp"
	"jinr.ru/greenlab/go-nsp/pkg/registry"
	"jinr.ru/greenlab/go-nsp/pkg/sim"
	"jinr.ru/greenlab/go-nsp/pkg/srv"
)

func newTestClient(t *testing.T) (*ApiClient, *sim.Instrument) {
	dir := t.TempDir()
	cfg := config.NewDefaultConfig()
	cfg.DBPath = filepath.Join(dir, "nsp.db")
	cfg.RecordDir = filepath.Join(dir, "records")
	cfg.NumChannels = 4

	inst := sim.NewInstrument(4, sim.WithAckDelay(0))
	session := device.NewLoopback(inst)
	ctx, cancel := context.WithCancel(context.Background())
	s, err := srv.NewServer(ctx, cfg, nsp.WithSession(session))
	require.NoError(t, err)
	api := srv.NewApiServer(ctx, cfg, s)
	ts := httptest.NewServer(api.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Close()
		cancel()
		session.Close()
	})

	c := NewApiClient(cfg)
	c.ApiPrefix = ts.URL + "/api"
	return c, inst
}

func TestChannelRequests(t *testing.T) {
	c, _ := newTestClient(t)

	group := registry.GroupID(5)
	label := "probe"
	require.NoError(t, c.SetChannel(2, registry.ChannelUpdate{Group: &group, Label: &label}))

	ch, err := c.Channel(2)
	require.NoError(t, err)
	assert.Equal(t, group, ch.Group)
	assert.Equal(t, "probe", ch.Label)

	members, err := c.GroupMembers(5)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, registry.ChannelID(2), members[0].ID)

	_, err = c.Channel(10)
	var apiErr ErrApi
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "400 Bad Request", apiErr.Status)
	assert.Contains(t, apiErr.Error(), "10")
}

func TestRecordingRequests(t *testing.T) {
	c, inst := newTestClient(t)
	group := registry.GroupID(4)
	require.NoError(t, c.SetChannel(1, registry.ChannelUpdate{Group: &group}))

	file, err := c.Persist("", "run")
	require.NoError(t, err)
	assert.Equal(t, "run_", filepath.Base(file)[:4])

	inst.Step(30)
	status, err := c.Status()
	require.NoError(t, err)
	assert.Equal(t, file, status.Record.File)
	assert.Equal(t, uint64(10), status.Record.Frames)

	require.NoError(t, c.Flush())
	status, err = c.Status()
	require.NoError(t, err)
	assert.Empty(t, status.Record.File)
}

func TestSnapshotRequests(t *testing.T) {
	c, _ := newTestClient(t)

	names, err := c.SnapshotList()
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, c.SnapshotSave("a"))
	require.NoError(t, c.SnapshotSave("b"))
	names, err = c.SnapshotList()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	group := registry.GroupID(1)
	require.NoError(t, c.SetChannel(3, registry.ChannelUpdate{Group: &group}))
	require.NoError(t, c.SetChannel(4, registry.ChannelUpdate{Group: &group}))
	changed, err := c.SnapshotRestore("a")
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	require.NoError(t, c.SnapshotDelete("a"))
	_, err = c.SnapshotRestore("a")
	var apiErr ErrApi
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "404 Not Found", apiErr.Status)
}
