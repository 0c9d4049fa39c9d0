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


// Package state keeps named channel configuration snapshots in a bbolt
// database, one bucket per snapshot keyed by channel id.
package state

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"

	"jinr.ru/greenlab/go-nsp/pkg/log"
	"jinr.ru/greenlab/go-nsp/pkg/registry"
)

const (
	BucketNamePrefix = "snapshot_"
	openTimeout      = time.Second
)

var logger = log.For("state")

type ChannelState struct {
	context.Context
	DB *bbolt.DB
}

var _ registry.SnapshotStore = &ChannelState{}

func NewChannelState(ctx context.Context, path string) (*ChannelState, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, err
	}
	return &ChannelState{
		Context: ctx,
		DB:      db,
	}, nil
}

func uint16ToByte(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func bucketName(name string) string {
	return fmt.Sprintf("%s%s", BucketNamePrefix, name)
}

// channelRecord is the stored value, the channel id is the key.
type channelRecord struct {
	Group        uint16 `msgpack:"group"`
	InputOptions uint32 `msgpack:"input"`
	SpikeOptions uint32 `msgpack:"spike"`
	Label        string `msgpack:"label,omitempty"`
}

func encodeChannel(c registry.Channel) ([]byte, error) {
	return msgpack.Marshal(&channelRecord{
		Group:        uint16(c.Group),
		InputOptions: c.InputOptions,
		SpikeOptions: c.SpikeOptions,
		Label:        c.Label,
	})
}

func decodeChannel(key, value []byte) (registry.Channel, error) {
	if len(key) != 2 {
		return registry.Channel{}, errors.New("malformed channel key")
	}
	r := channelRecord{}
	if err := msgpack.Unmarshal(value, &r); err != nil {
		return registry.Channel{}, fmt.Errorf("channel %d: %w", binary.BigEndian.Uint16(key), err)
	}
	return registry.Channel{
		ID:           registry.ChannelID(binary.BigEndian.Uint16(key)),
		Group:        registry.GroupID(r.Group),
		InputOptions: r.InputOptions,
		SpikeOptions: r.SpikeOptions,
		Label:        r.Label,
	}, nil
}

// Close ...
func (s *ChannelState) Close() error {
	return s.DB.Close()
}

// SaveSnapshot replaces the snapshot with the given channels.
func (s *ChannelState) SaveSnapshot(name string, channels []registry.Channel) error {
	if name == "" {
		return ErrInvalidName{Name: name}
	}
	logger.Debug("Saving snapshot %s with %d channels", name, len(channels))
	return s.DB.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(bucketName(name))) != nil {
			if err := tx.DeleteBucket([]byte(bucketName(name))); err != nil {
				return err
			}
		}
		b, err := tx.CreateBucket([]byte(bucketName(name)))
		if err != nil {
			return err
		}
		for _, c := range channels {
			value, err := encodeChannel(c)
			if err != nil {
				return err
			}
			if err := b.Put(uint16ToByte(uint16(c.ID)), value); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetChannel updates one channel of an existing snapshot.
func (s *ChannelState) SetChannel(name string, c registry.Channel) error {
	return s.DB.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName(name)))
		if b == nil {
			return ErrSnapshotNotFound{Name: name}
		}
		value, err := encodeChannel(c)
		if err != nil {
			return err
		}
		return b.Put(uint16ToByte(uint16(c.ID)), value)
	})
}

// LoadSnapshot returns the channels of the snapshot in ascending order.
func (s *ChannelState) LoadSnapshot(name string) ([]registry.Channel, error) {
	var channels []registry.Channel
	if err := s.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName(name)))
		if b == nil {
			return ErrSnapshotNotFound{Name: name}
		}
		// big endian keys iterate in channel order
		return b.ForEach(func(k, v []byte) error {
			c, err := decodeChannel(k, v)
			if err != nil {
				return err
			}
			channels = append(channels, c)
			return nil
		})
	}); err != nil {
		return nil, err
	}
	return channels, nil
}

func (s *ChannelState) ListSnapshots() ([]string, error) {
	var names []string
	err := s.DB.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
			if strings.HasPrefix(string(name), BucketNamePrefix) {
				names = append(names, strings.TrimPrefix(string(name), BucketNamePrefix))
			}
			return nil
		})
	})
	sort.Strings(names)
	return names, err
}

func (s *ChannelState) DeleteSnapshot(name string) error {
	return s.DB.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketName(name))); err != nil {
			if errors.Is(err, bbolt.ErrBucketNotFound) {
				return ErrSnapshotNotFound{Name: name}
			}
			return err
		}
		return nil
	})
}
