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

package config

import "time"

const (
	ConfigDir  = ".go-nsp"
	ConfigFile = "config"
	DBFile     = "nsp.db"
	RecordDir  = "records"

	DefaultInstAddr        = "192.168.137.128"
	DefaultInstPort        = 51001
	DefaultClientAddr      = "0.0.0.0"
	DefaultClientPort      = 51002
	DefaultRecvBufSize     = 8 * 1024 * 1024
	DefaultProtocolVersion = "4.1"
	DefaultTimeout         = 5 * time.Second

	DefaultNumChannels = 272

	DefaultApiAddress = "127.0.0.1"
	DefaultApiPort    = 8010

	DefaultNatsSubject = "nsp.events"
	DefaultLogLevel    = "info"

	// DefaultContinuousLength is the number of samples buffered per group
	// when a trial does not say otherwise.
	DefaultContinuousLength = 102400
	DefaultEventLength      = 2048
	DefaultCommentLength    = 256
)
