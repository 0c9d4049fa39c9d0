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


package discover

import (
	"fmt"
)

// ErrNoEndpoints returned when Probe is called without instrument addresses
type ErrNoEndpoints struct{}

func (e ErrNoEndpoints) Error() string {
	return "No instrument endpoints to probe"
}

// ErrSendQuery returned when the query datagram could not be sent
type ErrSendQuery struct {
	Endpoint string
	Err      error
}

func (e ErrSendQuery) Error() string {
	return fmt.Sprintf("Error while sending query to %s: %s", e.Endpoint, e.Err)
}

func (e ErrSendQuery) Unwrap() error {
	return e.Err
}
