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

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sigs.k8s.io/yaml"
)

// Connection is passed through to the transport as is.
type Connection struct {
	InstAddr        string        `json:"inst_addr"`
	InstPort        int           `json:"inst_port"`
	ClientAddr      string        `json:"client_addr"`
	ClientPort      int           `json:"client_port"`
	RecvBufSize     int           `json:"recv_buf_size"`
	ProtocolVersion string        `json:"protocol_version"`
	Timeout         time.Duration `json:"timeout"`
}

func (c *Connection) InstEndpoint() string {
	return fmt.Sprintf("%s:%d", c.InstAddr, c.InstPort)
}

func (c *Connection) ClientEndpoint() string {
	return fmt.Sprintf("%s:%d", c.ClientAddr, c.ClientPort)
}

type Trial struct {
	ContinuousLength int  `json:"continuous_length"`
	EventLength      int  `json:"event_length"`
	CommentLength    int  `json:"comment_length"`
	Absolute         bool `json:"absolute"`
}

type Api struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}

func (a *Api) Endpoint() string {
	return fmt.Sprintf("%s:%d", a.Address, a.Port)
}

type Nats struct {
	URL     string `json:"url,omitempty"`
	Subject string `json:"subject"`
}

type Config struct {
	Connection  *Connection `json:"connection"`
	Trial       *Trial      `json:"trial"`
	Api         *Api        `json:"api"`
	Nats        *Nats       `json:"nats"`
	NumChannels int         `json:"num_channels"`
	DBPath      string      `json:"db_path"`
	RecordDir   string      `json:"record_dir"`
	LogLevel    string      `json:"log_level"`
	filepath    string
}

func (c *Config) Filepath() string {
	return c.filepath
}

func (c *Config) SetFilepath(path string) {
	c.filepath = path
}

// Validate checks the values the engine cannot work without.
func (c *Config) Validate() error {
	if c.Connection == nil {
		return ErrInvalidConfig{What: "connection section is missing"}
	}
	if c.Connection.InstPort <= 0 || c.Connection.InstPort > 65535 {
		return ErrInvalidConfig{What: fmt.Sprintf("inst_port out of range: %d", c.Connection.InstPort)}
	}
	if c.Connection.ClientPort < 0 || c.Connection.ClientPort > 65535 {
		return ErrInvalidConfig{What: fmt.Sprintf("client_port out of range: %d", c.Connection.ClientPort)}
	}
	if c.Connection.RecvBufSize <= 0 {
		return ErrInvalidConfig{What: "recv_buf_size must be positive"}
	}
	if c.NumChannels <= 0 {
		return ErrInvalidConfig{What: "num_channels must be positive"}
	}
	return nil
}

func (c *Config) Persist(overwrite bool) error {
	if _, err := os.Stat(c.filepath); err == nil && !overwrite {
		return ErrConfigFileExists{Path: c.filepath}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	dir := filepath.Dir(c.filepath)
	err = os.MkdirAll(dir, 0755)
	if err != nil {
		return err
	}

	return os.WriteFile(c.filepath, data, 0644)
}

// Load reads the config file over the current values. A missing file is
// not an error, defaults stay in place.
func (c *Config) Load() error {
	data, err := os.ReadFile(c.filepath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func configHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return filepath.Join(home, ConfigDir)
}

func DefaultConfigPath() string {
	return filepath.Join(configHome(), ConfigFile)
}

func NewDefaultConfig() *Config {
	return &Config{
		Connection: &Connection{
			InstAddr:        DefaultInstAddr,
			InstPort:        DefaultInstPort,
			ClientAddr:      DefaultClientAddr,
			ClientPort:      DefaultClientPort,
			RecvBufSize:     DefaultRecvBufSize,
			ProtocolVersion: DefaultProtocolVersion,
			Timeout:         DefaultTimeout,
		},
		Trial: &Trial{
			ContinuousLength: DefaultContinuousLength,
			EventLength:      DefaultEventLength,
			CommentLength:    DefaultCommentLength,
		},
		Api: &Api{
			Address: DefaultApiAddress,
			Port:    DefaultApiPort,
		},
		Nats: &Nats{
			Subject: DefaultNatsSubject,
		},
		NumChannels: DefaultNumChannels,
		DBPath:      filepath.Join(configHome(), DBFile),
		RecordDir:   filepath.Join(configHome(), RecordDir),
		LogLevel:    DefaultLogLevel,
		filepath:    DefaultConfigPath(),
	}
}
