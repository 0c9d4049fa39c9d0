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


package srv

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jinr.ru/greenlab/go-nsp/pkg/config"
	"jinr.ru/greenlab/go-nsp/pkg/device"
	"jinr.ru/greenlab/go-nsp/pkg/nsp"
	"jinr.ru/greenlab/go-nsp/pkg/record"
	"jinr.ru/greenlab/go-nsp/pkg/registry"
	"jinr.ru/greenlab/go-nsp/pkg/sim"
)

func newTestServer(t *testing.T) (*Server, *sim.Instrument, *httptest.Server) {
	dir := t.TempDir()
	cfg := config.NewDefaultConfig()
	cfg.DBPath = filepath.Join(dir, "nsp.db")
	cfg.RecordDir = filepath.Join(dir, "records")
	cfg.NumChannels = 8

	inst := sim.NewInstrument(8, sim.WithAckDelay(0))
	session := device.NewLoopback(inst)
	ctx, cancel := context.WithCancel(context.Background())
	s, err := NewServer(ctx, cfg, nsp.WithSession(session))
	require.NoError(t, err)
	ts := httptest.NewServer(s.api.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Close()
		cancel()
		session.Close()
	})
	return s, inst, ts
}

func do(t *testing.T, method, url string, body interface{}) (int, []byte) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func TestChannelAndGroupRoutes(t *testing.T) {
	_, _, ts := newTestServer(t)

	status, body := do(t, "GET", ts.URL+"/api/channel/3", nil)
	require.Equal(t, http.StatusOK, status)
	c := registry.Channel{}
	require.NoError(t, json.Unmarshal(body, &c))
	assert.Equal(t, registry.ChannelID(3), c.ID)
	assert.Equal(t, registry.GroupDisabled, c.Group)

	status, _ = do(t, "POST", ts.URL+"/api/channel/3", map[string]interface{}{"group": 6, "label": "elec3"})
	assert.Equal(t, http.StatusAccepted, status)

	status, body = do(t, "GET", ts.URL+"/api/group/6", nil)
	require.Equal(t, http.StatusOK, status)
	var members []registry.Channel
	require.NoError(t, json.Unmarshal(body, &members))
	require.Len(t, members, 1)
	assert.Equal(t, "elec3", members[0].Label)

	status, _ = do(t, "GET", ts.URL+"/api/group/9", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = do(t, "GET", ts.URL+"/api/channel/99", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = do(t, "POST", ts.URL+"/api/channel/3", map[string]interface{}{"group": 7})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSnapshotRoutes(t *testing.T) {
	_, _, ts := newTestServer(t)

	status, _ := do(t, "POST", ts.URL+"/api/snapshot/base", nil)
	require.Equal(t, http.StatusCreated, status)

	status, body := do(t, "GET", ts.URL+"/api/snapshot", nil)
	require.Equal(t, http.StatusOK, status)
	var names []string
	require.NoError(t, json.Unmarshal(body, &names))
	assert.Equal(t, []string{"base"}, names)

	status, _ = do(t, "POST", ts.URL+"/api/channel/1", map[string]interface{}{"group": 2})
	require.Equal(t, http.StatusAccepted, status)

	status, body = do(t, "PUT", ts.URL+"/api/snapshot/base", nil)
	require.Equal(t, http.StatusOK, status)
	restored := RestoreResult{}
	require.NoError(t, json.Unmarshal(body, &restored))
	assert.Equal(t, 1, restored.Changed)

	status, _ = do(t, "PUT", ts.URL+"/api/snapshot/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = do(t, "DELETE", ts.URL+"/api/snapshot/base", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = do(t, "DELETE", ts.URL+"/api/snapshot/base", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestPersistAndFlush(t *testing.T) {
	s, inst, ts := newTestServer(t)
	require.NoError(t, s.engine.SetChannelConfig(2, registry.ChannelUpdate{Group: groupPtr(6)}))
	require.NoError(t, s.StartTrial())

	status, body := do(t, "POST", ts.URL+"/api/trial/persist", Persist{Prefix: "session"})
	require.Equal(t, http.StatusOK, status)
	persisted := PersistResult{}
	require.NoError(t, json.Unmarshal(body, &persisted))
	assert.Equal(t, s.Config.RecordDir, filepath.Dir(persisted.File))

	inst.Step(100)
	status, _ = do(t, "GET", ts.URL+"/api/trial/flush", nil)
	require.Equal(t, http.StatusOK, status)

	frames, err := record.ReadFile(persisted.File)
	require.NoError(t, err)
	assert.Len(t, frames, 100)

	status, body = do(t, "GET", ts.URL+"/api/trial", nil)
	require.Equal(t, http.StatusOK, status)
	st := Status{}
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, uint64(100), st.Record.Frames)
	assert.Equal(t, "active", st.Engine.Trial.State)
	assert.Nil(t, st.Publish)
}

func TestDocs(t *testing.T) {
	_, _, ts := newTestServer(t)

	status, body := do(t, "GET", ts.URL+"/swagger.json", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "go-nsp API")

	status, body = do(t, "GET", ts.URL+"/docs", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "redoc")
}

func groupPtr(g registry.GroupID) *registry.GroupID {
	return &g
}
