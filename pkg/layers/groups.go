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


package layers

const (
	// TicksPerSecond is the instrument clock rate
	TicksPerSecond = 30000
	// NumGroups is the number of sample groups, ids 1..NumGroups
	NumGroups = 6
)

// sample period of each group in clock ticks, index is the group id
var groupPeriods = [NumGroups + 1]uint64{0, 60, 30, 15, 3, 1, 1}

// GroupPeriod returns the sample period of the group in clock ticks or
// zero for an unknown group.
func GroupPeriod(group uint16) uint64 {
	if int(group) >= len(groupPeriods) {
		return 0
	}
	return groupPeriods[group]
}

// GroupRate returns the sample rate of the group in Hz.
func GroupRate(group uint16) int {
	p := GroupPeriod(group)
	if p == 0 {
		return 0
	}
	return TicksPerSecond / int(p)
}
