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


package trial

import (
	"jinr.ru/greenlab/go-nsp/pkg/registry"
)

type GroupStats struct {
	Group         registry.GroupID     `json:"group"`
	Channels      []registry.ChannelID `json:"channels"`
	Columns       int                  `json:"columns"`
	Capacity      int                  `json:"capacity"`
	Available     uint64               `json:"available"`
	Written       uint64               `json:"written"`
	Dropped       uint64               `json:"dropped"`
	Reallocations int                  `json:"reallocations"`
}

type Stats struct {
	State           string       `json:"state"`
	StartTime       uint64       `json:"start_time"`
	Groups          []GroupStats `json:"groups"`
	Events          uint64       `json:"events"`
	EventsDropped   uint64       `json:"events_dropped"`
	CommentsDropped uint64       `json:"comments_dropped"`
	OutOfRange      uint64       `json:"out_of_range"`
	BeforeStart     uint64       `json:"before_start"`
}

// Stats is a snapshot of buffer usage.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := Stats{
		State:       s.state.String(),
		StartTime:   s.start,
		Groups:      []GroupStats{},
		OutOfRange:  s.outOfRange,
		BeforeStart: s.beforeStart,
	}
	for g, ring := range s.groups {
		if ring == nil {
			continue
		}
		ring.mu.Lock()
		stats.Groups = append(stats.Groups, GroupStats{
			Group:         registry.GroupID(g),
			Channels:      ring.channels,
			Columns:       ring.columns,
			Capacity:      ring.capacity,
			Written:       ring.write,
			Dropped:       ring.dropped,
			Reallocations: s.reallocs[g],
		})
		ring.mu.Unlock()
		stats.Groups[len(stats.Groups)-1].Available = ring.available()
	}
	if s.events != nil {
		stats.Events = s.events.total
		stats.EventsDropped = s.events.dropped
	}
	if s.comments != nil {
		stats.CommentsDropped = s.comments.dropped
	}
	return stats
}
