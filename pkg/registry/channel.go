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
	"jinr.ru/greenlab/go-nsp/pkg/device"
	"jinr.ru/greenlab/go-nsp/pkg/layers"
)

// ChannelID is the 1-based channel number.
type ChannelID uint16

// GroupID is a sample group. GroupDisabled means the channel is not sampled.
type GroupID uint16

const (
	GroupDisabled GroupID = 0
	MaxGroup      GroupID = layers.NumGroups
)

// Input option flags
const (
	InputOffsetCorrect uint32 = 0x0001
	InputDCOffset      uint32 = 0x0002
)

// Spike option flags
const (
	SpikeExtract uint32 = 0x0001
)

// Period is the sample period of the group in instrument clock ticks.
func (g GroupID) Period() uint64 {
	return layers.GroupPeriod(uint16(g))
}

// Rate is the sample rate of the group in Hz.
func (g GroupID) Rate() int {
	return layers.GroupRate(uint16(g))
}

func (g GroupID) Valid() bool {
	return g >= 1 && g <= MaxGroup
}

type Channel struct {
	ID           ChannelID `json:"id"`
	Group        GroupID   `json:"group"`
	InputOptions uint32    `json:"input_options"`
	SpikeOptions uint32    `json:"spike_options"`
	Label        string    `json:"label"`
}

// ChannelUpdate is a partial configuration. Nil fields are left unchanged.
type ChannelUpdate struct {
	Group        *GroupID `json:"group,omitempty"`
	InputOptions *uint32  `json:"input_options,omitempty"`
	SpikeOptions *uint32  `json:"spike_options,omitempty"`
	Label        *string  `json:"label,omitempty"`
}

func (u ChannelUpdate) Apply(c Channel) Channel {
	if u.Group != nil {
		c.Group = *u.Group
	}
	if u.InputOptions != nil {
		c.InputOptions = *u.InputOptions
	}
	if u.SpikeOptions != nil {
		c.SpikeOptions = *u.SpikeOptions
	}
	if u.Label != nil {
		c.Label = *u.Label
	}
	return c
}

// Full returns an update that sets every field of c.
func Full(c Channel) ChannelUpdate {
	return ChannelUpdate{
		Group:        &c.Group,
		InputOptions: &c.InputOptions,
		SpikeOptions: &c.SpikeOptions,
		Label:        &c.Label,
	}
}

func fromInfo(info device.ChannelInfo) Channel {
	return Channel{
		ID:           ChannelID(info.Chan),
		Group:        GroupID(info.Group),
		InputOptions: info.InputOptions,
		SpikeOptions: info.SpikeOptions,
		Label:        info.Label,
	}
}

func (c Channel) info() device.ChannelInfo {
	return device.ChannelInfo{
		Chan:         uint16(c.ID),
		Group:        uint16(c.Group),
		InputOptions: c.InputOptions,
		SpikeOptions: c.SpikeOptions,
		Label:        c.Label,
	}
}
