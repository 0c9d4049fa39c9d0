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

	"jinr.ru/greenlab/go-nsp/pkg/registry"
)

type ErrInvalidRange struct {
	Begin uint64
	End   uint64
}

func (e ErrInvalidRange) Error() string {
	return fmt.Sprintf("Invalid range: begin %d is after end %d", e.Begin, e.End)
}

type ErrInvalidBuffer struct {
	What string
}

func (e ErrInvalidBuffer) Error() string {
	return fmt.Sprintf("Invalid buffer parameter: %s", e.What)
}

// ErrConflictingMode is returned when one fetch asks for both Reset and Seek.
type ErrConflictingMode struct{}

func (e ErrConflictingMode) Error() string {
	return "Reset and Seek can not be combined in one fetch"
}

// ErrSessionBusy is returned when a fetch of the same stream is already in
// progress. Group zero stands for the event stream.
type ErrSessionBusy struct {
	Group registry.GroupID
}

func (e ErrSessionBusy) Error() string {
	if e.Group == 0 {
		return "Event fetch already in progress"
	}
	return fmt.Sprintf("Fetch of group %d already in progress", e.Group)
}

// ErrBufferShapeMismatch is returned when a caller buffer does not fit the
// current group layout. Nothing is written.
type ErrBufferShapeMismatch struct {
	What string
	Want int
	Got  int
}

func (e ErrBufferShapeMismatch) Error() string {
	return fmt.Sprintf("Buffer shape mismatch: %s: want %d, got %d", e.What, e.Want, e.Got)
}

type ErrNotConfigured struct{}

func (e ErrNotConfigured) Error() string {
	return "Trial is not configured"
}

type ErrClosed struct{}

func (e ErrClosed) Error() string {
	return "Trial session is closed"
}
