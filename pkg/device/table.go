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
	"sort"
	"sync"
)

// ackTable is the channel configuration reported by the instrument.
type ackTable struct {
	mu       sync.RWMutex
	channels map[uint16]ChannelInfo
}

func newAckTable() *ackTable {
	return &ackTable{channels: make(map[uint16]ChannelInfo)}
}

func (t *ackTable) apply(info ChannelInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.channels[info.Chan] = info
}

func (t *ackTable) get(ch uint16) (ChannelInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	info, ok := t.channels[ch]
	return info, ok
}

func (t *ackTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.channels)
}

func (t *ackTable) members(group uint16) []uint16 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	result := []uint16{}
	for ch, info := range t.channels {
		if info.Group == group {
			result = append(result, ch)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

func (t *ackTable) query(ch uint16, numChannels int) (ChannelInfo, error) {
	if ch == 0 || int(ch) > numChannels {
		return ChannelInfo{}, ErrUnknownChannel{Chan: ch}
	}
	info, ok := t.get(ch)
	if !ok {
		return ChannelInfo{}, ErrNotReported{Chan: ch}
	}
	return info, nil
}
