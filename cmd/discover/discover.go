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
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"jinr.ru/greenlab/go-nsp/pkg/config"
	"jinr.ru/greenlab/go-nsp/pkg/discover"
)

const (
	WaitOptionName = "wait"
)

// NewCommand creates a cobra command that probes instruments. Without
// arguments the configured instrument endpoint is probed.
func NewCommand() *cobra.Command {
	var wait time.Duration
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "discover [ADDR:PORT...]",
		Short: "Query instruments and print what they report",
		RunE: func(cmd *cobra.Command, args []string) error {
			endpoints := args
			if len(endpoints) == 0 {
				endpoints = []string{cfg.Connection.InstEndpoint()}
			}
			found, err := discover.Probe(context.Background(), endpoints, cfg.Connection.ProtocolVersion, wait)
			if err != nil {
				return err
			}
			if len(found) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "No instruments answered")
				return nil
			}
			for _, d := range found {
				fmt.Fprint(cmd.OutOrStdout(), d.String())
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, WaitOptionName, discover.DefaultWait, "Time to wait for answers")

	return cmd
}
