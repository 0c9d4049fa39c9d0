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

import "fmt"

// ErrTransportTimeout is returned when the instrument does not answer or
// stops streaming within the configured timeout. The session must be reopened.
type ErrTransportTimeout struct {
	What string
}

func (e ErrTransportTimeout) Error() string {
	return fmt.Sprintf("Transport timeout: %s", e.What)
}

// ErrConnection is returned when the socket cannot be opened or fails.
type ErrConnection struct {
	What string
	Err  error
}

func (e ErrConnection) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("Connection error: %s: %s", e.What, e.Err)
	}
	return fmt.Sprintf("Connection error: %s", e.What)
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

type ErrSessionClosed struct{}

func (e ErrSessionClosed) Error() string {
	return "Session is closed"
}

type ErrUnknownChannel struct {
	Chan uint16
}

func (e ErrUnknownChannel) Error() string {
	return fmt.Sprintf("Unknown channel: %d", e.Chan)
}

type ErrNotReported struct {
	Chan uint16
}

func (e ErrNotReported) Error() string {
	return fmt.Sprintf("Instrument has not reported channel %d", e.Chan)
}
