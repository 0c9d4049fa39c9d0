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

import "fmt"

const MaxDiscontinuities = 64

type DiscontinuityKind int

const (
	// Duplicate is a repeated timestamp
	Duplicate DiscontinuityKind = iota + 1
	// Jump is any step other than one sample period
	Jump
)

func (k DiscontinuityKind) String() string {
	switch k {
	case Duplicate:
		return "duplicate"
	case Jump:
		return "jump"
	}
	return "none"
}

// Discontinuity is a timestamp step that is not exactly one sample period.
// Index is the position in the fetched chunk; Previous and Current are
// absolute instrument ticks.
type Discontinuity struct {
	Index    int
	Previous uint64
	Current  uint64
	Kind     DiscontinuityKind
}

func (d Discontinuity) String() string {
	return fmt.Sprintf("%s at %d: %d -> %d", d.Kind, d.Index, d.Previous, d.Current)
}

// Classify returns zero for a step of exactly period ticks.
func Classify(previous, current, period uint64) DiscontinuityKind {
	switch {
	case current == previous:
		return Duplicate
	case current < previous || current-previous != period:
		return Jump
	}
	return 0
}

// Continuity follows the last timestamp of a stream across calls.
type Continuity struct {
	Period uint64
	last   uint64
	valid  bool
}

// Check classifies t against the previous timestamp and remembers it.
func (c *Continuity) Check(t uint64) DiscontinuityKind {
	var kind DiscontinuityKind
	if c.valid {
		kind = Classify(c.last, t, c.Period)
	}
	c.last = t
	c.valid = true
	return kind
}

// Last returns the previous timestamp and whether there is one.
func (c *Continuity) Last() (uint64, bool) {
	return c.last, c.valid
}

// Reanchor forgets the previous timestamp, the next one is accepted as is.
func (c *Continuity) Reanchor() {
	c.valid = false
}
