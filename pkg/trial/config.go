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
	"fmt"

	"jinr.ru/greenlab/go-nsp/pkg/config"
)

// ActivationMode selects what Activate does with state captured so far.
type ActivationMode int

const (
	// ModeReset restarts the capture window and discards everything buffered
	ModeReset ActivationMode = iota
	// ModeActivate starts streaming indefinitely; an active trial is left as is
	ModeActivate
	// ModeSeek continues from the last delivered position, nothing is discarded
	ModeSeek
)

var modeNames = map[ActivationMode]string{
	ModeReset:    "reset",
	ModeActivate: "activate",
	ModeSeek:     "seek",
}

func (m ActivationMode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

func ParseMode(s string) (ActivationMode, error) {
	for mode, name := range modeNames {
		if name == s {
			return mode, nil
		}
	}
	return ModeReset, fmt.Errorf("unknown activation mode %q", s)
}

// Unbounded selects the default length in BufferParameter.
const Unbounded = -1

// BufferParameter sizes the trial buffers. Lengths of Unbounded or zero
// select the defaults.
type BufferParameter struct {
	// ContinuousLength is the number of samples buffered per group
	ContinuousLength int `json:"continuous_length"`
	// EventLength is the number of events buffered per channel
	EventLength   int `json:"event_length"`
	CommentLength int `json:"comment_length"`
	// Absolute makes fetched timestamps absolute instrument ticks instead
	// of ticks since the trial start
	Absolute bool `json:"absolute"`
}

// RangeParameter bounds the capture window in instrument ticks. A nil
// bound is open.
type RangeParameter struct {
	Begin *uint64 `json:"begin,omitempty"`
	End   *uint64 `json:"end,omitempty"`
}

func (r RangeParameter) Validate() error {
	if r.Begin != nil && r.End != nil && *r.Begin > *r.End {
		return ErrInvalidRange{Begin: *r.Begin, End: *r.End}
	}
	return nil
}

func (r RangeParameter) Contains(t uint64) bool {
	if r.Begin != nil && t < *r.Begin {
		return false
	}
	if r.End != nil && t > *r.End {
		return false
	}
	return true
}

type Config struct {
	Continuous bool            `json:"continuous"`
	Events     bool            `json:"events"`
	Comments   bool            `json:"comments"`
	Buffer     BufferParameter `json:"buffer"`
	Range      RangeParameter  `json:"range"`
	// Waveforms is the spike cache depth per channel, zero for the default
	Waveforms int `json:"waveforms"`
}

// DefaultConfig captures every stream class with default buffer sizes.
func DefaultConfig() Config {
	return Config{
		Continuous: true,
		Events:     true,
		Comments:   true,
		Buffer: BufferParameter{
			ContinuousLength: Unbounded,
			EventLength:      Unbounded,
			CommentLength:    Unbounded,
		},
	}
}

func (c Config) Validate() error {
	if err := c.Range.Validate(); err != nil {
		return err
	}
	lengths := []struct {
		name  string
		value int
	}{
		{"continuous_length", c.Buffer.ContinuousLength},
		{"event_length", c.Buffer.EventLength},
		{"comment_length", c.Buffer.CommentLength},
		{"waveforms", c.Waveforms},
	}
	for _, l := range lengths {
		if l.value < Unbounded {
			return ErrInvalidBuffer{What: fmt.Sprintf("%s must be positive or %d: %d", l.name, Unbounded, l.value)}
		}
	}
	return nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// normalized replaces default sentinels with actual lengths.
func (c Config) normalized() Config {
	c.Buffer.ContinuousLength = orDefault(c.Buffer.ContinuousLength, config.DefaultContinuousLength)
	c.Buffer.EventLength = orDefault(c.Buffer.EventLength, config.DefaultEventLength)
	c.Buffer.CommentLength = orDefault(c.Buffer.CommentLength, config.DefaultCommentLength)
	return c
}

// FromDefaults builds a trial configuration from the config file section.
func FromDefaults(t *config.Trial) Config {
	c := DefaultConfig()
	if t == nil {
		return c
	}
	c.Buffer.ContinuousLength = t.ContinuousLength
	c.Buffer.EventLength = t.EventLength
	c.Buffer.CommentLength = t.CommentLength
	c.Buffer.Absolute = t.Absolute
	return c
}
