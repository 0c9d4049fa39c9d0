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

import "fmt"

type ErrInvalidChannel struct {
	Channel ChannelID
	Max     int
}

func (e ErrInvalidChannel) Error() string {
	return fmt.Sprintf("Invalid channel %d: must be in 1..%d", e.Channel, e.Max)
}

type ErrInvalidGroup struct {
	Group GroupID
}

func (e ErrInvalidGroup) Error() string {
	return fmt.Sprintf("Invalid group %d: must be in 0..%d", e.Group, MaxGroup)
}

// ErrNotSettled is returned by Settle when the instrument has not
// acknowledged every pending configuration in time.
type ErrNotSettled struct {
	Pending []ChannelID
}

func (e ErrNotSettled) Error() string {
	return fmt.Sprintf("Configuration not acknowledged for channels %v", e.Pending)
}
