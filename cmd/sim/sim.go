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


package sim

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"jinr.ru/greenlab/go-nsp/pkg/command"
	"jinr.ru/greenlab/go-nsp/pkg/config"
	"jinr.ru/greenlab/go-nsp/pkg/sim"
)

const (
	AddressOptionName     = "address"
	PortOptionName        = "port"
	ChannelsOptionName    = "channels"
	AckDelayOptionName    = "ack-delay"
	SpikePeriodOptionName = "spike-period"
)

func NewCommand() *cobra.Command {
	var address string
	var port, channels int
	var ackDelay, spikePeriod uint64
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Start simulated instrument",
		RunE: func(cmd *cobra.Command, args []string) error {
			if address != "" {
				cfg.Connection.InstAddr = address
			}
			if port != 0 {
				cfg.Connection.InstPort = port
			}
			if channels != 0 {
				cfg.NumChannels = channels
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			err := command.StartSimulator(ctx, cfg,
				sim.WithAckDelay(ackDelay), sim.WithSpikePeriod(spikePeriod))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&address, AddressOptionName, "", fmt.Sprintf("Address to bind. E.g. %s", config.DefaultInstAddr))
	cmd.Flags().IntVar(&port, PortOptionName, 0, fmt.Sprintf("Port to bind. E.g. %d", config.DefaultInstPort))
	cmd.Flags().IntVar(&channels, ChannelsOptionName, 0, "Number of channels")
	cmd.Flags().Uint64Var(&ackDelay, AckDelayOptionName, sim.DefaultAckDelay, "Ticks before a channel configuration is applied")
	cmd.Flags().Uint64Var(&spikePeriod, SpikePeriodOptionName, sim.DefaultSpikePeriod, "Ticks between spikes of a channel, zero disables")

	return cmd
}
