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
	"jinr.ru/greenlab/go-nsp/pkg/delivery"
	"jinr.ru/greenlab/go-nsp/pkg/registry"
)

const (
	SinkCapacity = 1 << 16
)

func NewCallbackCommand() *cobra.Command {
	o := &options{}
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "callback",
		Short: "Receive group frames through callbacks and check their continuity",
		RunE: func(cmd *cobra.Command, args []string) error {
			group := registry.GroupID(o.group)
			engine, err := open(context.Background(), cfg, o, registry.ChannelUpdate{Group: &group})
			if err != nil {
				return err
			}
			defer engine.Close()

			members, err := engine.GetSampleGroup(group)
			if err != nil {
				return err
			}
			monitor := delivery.NewContinuityMonitor(group.Period())
			sink := delivery.NewGroupSink(SinkCapacity, len(members))
			if _, err := engine.RegisterGroupCallback(group, monitor.OnGroup); err != nil {
				return err
			}
			if _, err := engine.RegisterGroupCallback(group, sink.OnGroup); err != nil {
				return err
			}

			samples := make([]int16, SinkCapacity*len(members))
			times := make([]uint64, SinkCapacity)
			return poll(o, func(n int) error {
				read := sink.Read(samples, times)
				counts := monitor.Counts()
				fmt.Fprintf(cmd.OutOrStdout(), "Poll %d: group %d: %d samples read, %d frames, %d duplicates, %d jumps, %d dropped\n",
					n, group, read, counts.Frames, counts.Duplicates, counts.Jumps, sink.Dropped())
				return nil
			})
		},
	}
	o.bind(cmd)

	return cmd
}
