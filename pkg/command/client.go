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
	"fmt"
	"net/http"

	"github.com/imroc/req"

	"jinr.ru/greenlab/go-nsp/pkg/config"
	"jinr.ru/greenlab/go-nsp/pkg/registry"
	"jinr.ru/greenlab/go-nsp/pkg/srv"
)

type ApiClient struct {
	*config.Config
	ApiPrefix string
}

func NewApiClient(cfg *config.Config) *ApiClient {
	return &ApiClient{
		Config:    cfg,
		ApiPrefix: fmt.Sprintf("http://%s/api", cfg.Api.Endpoint()),
	}
}

func checkStatus(r *req.Resp, want int) error {
	if r.Response().StatusCode != want {
		return ErrApi{Status: r.Response().Status, Body: r.String()}
	}
	return nil
}

func (c *ApiClient) channelUrl(ch registry.ChannelID) string {
	return fmt.Sprintf("%s/channel/%d", c.ApiPrefix, ch)
}

func (c *ApiClient) snapshotUrl(name string) string {
	return fmt.Sprintf("%s/snapshot/%s", c.ApiPrefix, name)
}

// GroupMembers sends request to get the acknowledged members of a sample group
func (c *ApiClient) GroupMembers(group registry.GroupID) ([]registry.Channel, error) {
	r, err := req.Get(fmt.Sprintf("%s/group/%d", c.ApiPrefix, group))
	if err != nil {
		return nil, err
	}
	if err := checkStatus(r, http.StatusOK); err != nil {
		return nil, err
	}
	var members []registry.Channel
	if err := r.ToJSON(&members); err != nil {
		return nil, err
	}
	return members, nil
}

// Channel sends request to get the acknowledged configuration of a channel
func (c *ApiClient) Channel(ch registry.ChannelID) (registry.Channel, error) {
	r, err := req.Get(c.channelUrl(ch))
	if err != nil {
		return registry.Channel{}, err
	}
	if err := checkStatus(r, http.StatusOK); err != nil {
		return registry.Channel{}, err
	}
	result := registry.Channel{}
	err = r.ToJSON(&result)
	return result, err
}

// SetChannel requests a channel configuration. The server does not wait
// for the instrument to acknowledge it.
func (c *ApiClient) SetChannel(ch registry.ChannelID, update registry.ChannelUpdate) error {
	r, err := req.Post(c.channelUrl(ch), req.BodyJSON(update))
	if err != nil {
		return err
	}
	return checkStatus(r, http.StatusAccepted)
}

func (c *ApiClient) Status() (*srv.Status, error) {
	r, err := req.Get(fmt.Sprintf("%s/trial", c.ApiPrefix))
	if err != nil {
		return nil, err
	}
	if err := checkStatus(r, http.StatusOK); err != nil {
		return nil, err
	}
	status := &srv.Status{}
	if err := r.ToJSON(status); err != nil {
		return nil, err
	}
	return status, nil
}

// Persist starts recording into a new file and returns its name
func (c *ApiClient) Persist(dir, prefix string) (string, error) {
	persist := &srv.Persist{
		Dir:    dir,
		Prefix: prefix,
	}
	r, err := req.Post(fmt.Sprintf("%s/trial/persist", c.ApiPrefix), req.BodyJSON(persist))
	if err != nil {
		return "", err
	}
	if err := checkStatus(r, http.StatusOK); err != nil {
		return "", err
	}
	result := &srv.PersistResult{}
	if err := r.ToJSON(result); err != nil {
		return "", err
	}
	return result.File, nil
}

// Flush closes the file being recorded
func (c *ApiClient) Flush() error {
	r, err := req.Get(fmt.Sprintf("%s/trial/flush", c.ApiPrefix))
	if err != nil {
		return err
	}
	return checkStatus(r, http.StatusOK)
}

func (c *ApiClient) SnapshotList() ([]string, error) {
	r, err := req.Get(fmt.Sprintf("%s/snapshot", c.ApiPrefix))
	if err != nil {
		return nil, err
	}
	if err := checkStatus(r, http.StatusOK); err != nil {
		return nil, err
	}
	var names []string
	if err := r.ToJSON(&names); err != nil {
		return nil, err
	}
	return names, nil
}

// SnapshotSave stores the acknowledged channel table under name
func (c *ApiClient) SnapshotSave(name string) error {
	r, err := req.Post(c.snapshotUrl(name))
	if err != nil {
		return err
	}
	return checkStatus(r, http.StatusCreated)
}

// SnapshotRestore applies a stored channel table and returns the number
// of channels that were changed
func (c *ApiClient) SnapshotRestore(name string) (int, error) {
	r, err := req.Put(c.snapshotUrl(name))
	if err != nil {
		return 0, err
	}
	if err := checkStatus(r, http.StatusOK); err != nil {
		return 0, err
	}
	result := &srv.RestoreResult{}
	if err := r.ToJSON(result); err != nil {
		return 0, err
	}
	return result.Changed, nil
}

func (c *ApiClient) SnapshotDelete(name string) error {
	r, err := req.Delete(c.snapshotUrl(name))
	if err != nil {
		return err
	}
	return checkStatus(r, http.StatusOK)
}
