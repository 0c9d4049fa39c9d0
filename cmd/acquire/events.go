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
	"sort"

	"github.com/spf13/cobra"

	"jinr.ru/greenlab/go-nsp/pkg/config"
	"jinr.ru/greenlab/go-nsp/pkg/registry"
	"jinr.ru/greenlab/go-nsp/pkg/trial"
)

func NewEventsCommand() *cobra.Command {
	o := &options{}
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Poll spike events and waveforms",
		RunE: func(cmd *cobra.Command, args []string) error {
			extract := registry.SpikeExtract
			engine, err := open(context.Background(), cfg, o, registry.ChannelUpdate{SpikeOptions: &extract})
			if err != nil {
				return err
			}
			defer engine.Close()

			tc := engine.DefaultTrialConfig()
			tc.Continuous = false
			if err := engine.TrialConfig(tc, trial.ModeReset); err != nil {
				return err
			}
			return poll(o, func(n int) error {
				result, err := engine.TrialEvent(true)
				if err != nil {
					return err
				}
				comments, err := engine.TrialComment(true)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				ids := make([]registry.ChannelID, 0, len(result.Channels))
				for ch := range result.Channels {
					ids = append(ids, ch)
				}
				sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
				for _, ch := range ids {
					batch := result.Channels[ch]
					waveforms, _ := engine.Waveforms().GetNewWaveforms(ch)
					fmt.Fprintf(out, "Poll %d: channel %d: %d events, %d waveforms\n", n, ch, batch.Count(), len(waveforms))
					if overflow, ok := result.Overflow[ch]; ok {
						fmt.Fprintf(out, "Poll %d: channel %d: %d events dropped\n", n, ch, overflow.Dropped)
					}
				}
				for _, c := range comments {
					fmt.Fprintf(out, "Poll %d: comment at %d: %s\n", n, c.Timestamp, c.Text)
				}
				return nil
			})
		},
	}
	o.bind(cmd)

	return cmd
}
