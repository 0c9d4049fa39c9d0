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


package acquire

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"jinr.ru/greenlab/go-nsp/pkg/config"
	"jinr.ru/greenlab/go-nsp/pkg/registry"
	"jinr.ru/greenlab/go-nsp/pkg/trial"
)

func NewStreamCommand() *cobra.Command {
	o := &options{}
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Poll continuous samples of a sample group",
		RunE: func(cmd *cobra.Command, args []string) error {
			group := registry.GroupID(o.group)
			engine, err := open(context.Background(), cfg, o, registry.ChannelUpdate{Group: &group})
			if err != nil {
				return err
			}
			defer engine.Close()

			tc := engine.DefaultTrialConfig()
			tc.Events = false
			tc.Comments = false
			if err := engine.TrialConfig(tc, trial.ModeReset); err != nil {
				return err
			}
			var buffer *trial.ContinuousBuffer
			return poll(o, func(n int) error {
				result, err := engine.TrialContinuous(group, trial.FetchOptions{Seek: true, Buffer: buffer})
				if err != nil {
					return err
				}
				buffer = result.Buffer
				line := fmt.Sprintf("Poll %d: group %d: %d samples", n, group, result.NumSamples)
				if result.DiscontinuityCount > 0 {
					line += fmt.Sprintf(", %d discontinuities", result.DiscontinuityCount)
				}
				if result.Overflow != nil {
					line += fmt.Sprintf(", %d dropped", result.Overflow.Dropped)
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
				return nil
			})
		},
	}
	o.bind(cmd)

	return cmd
}
