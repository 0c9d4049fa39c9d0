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
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"jinr.ru/greenlab/go-nsp/pkg/config"
	"jinr.ru/greenlab/go-nsp/pkg/nsp"
	"jinr.ru/greenlab/go-nsp/pkg/registry"
)

const (
	InstAddrOptionName = "inst-addr"
	ChannelsOptionName = "channels"
	GroupOptionName    = "group"
	IntervalOptionName = "interval"
	CountOptionName    = "count"
	SettleTimeout      = 5 * time.Second
)

// options shared by the acquisition commands
type options struct {
	instAddr string
	channels []uint
	group    uint16
	interval time.Duration
	count    int
}

func (o *options) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.instAddr, InstAddrOptionName, "", "Instrument address. E.g. 127.0.0.1")
	cmd.Flags().UintSliceVar(&o.channels, ChannelsOptionName, []uint{1}, "Channels to acquire")
	cmd.Flags().Uint16Var(&o.group, GroupOptionName, 5, "Sample group of the channels")
	cmd.Flags().DurationVar(&o.interval, IntervalOptionName, time.Second, "Interval between polls")
	cmd.Flags().IntVar(&o.count, CountOptionName, 10, "Number of polls")
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "acquire",
		Short: "Acquire data directly from the instrument",
	}
	cmd.AddCommand(NewStreamCommand())
	cmd.AddCommand(NewEventsCommand())
	cmd.AddCommand(NewCallbackCommand())
	return cmd
}

// open connects to the instrument, applies update to every selected
// channel and waits for the configuration to be acknowledged
func open(ctx context.Context, cfg *config.Config, o *options, update registry.ChannelUpdate) (*nsp.Engine, error) {
	if o.instAddr != "" {
		cfg.Connection.InstAddr = o.instAddr
	}
	engine, err := nsp.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	for _, ch := range o.channels {
		if err := engine.SetChannelConfig(registry.ChannelID(ch), update); err != nil {
			engine.Close()
			return nil, err
		}
	}
	settleCtx, cancel := context.WithTimeout(ctx, SettleTimeout)
	defer cancel()
	if err := engine.Settle(settleCtx); err != nil {
		engine.Close()
		return nil, err
	}
	return engine, nil
}

// poll calls fn every interval count times or until interrupted
func poll(o *options, fn func(n int) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	for n := 0; n < o.count; n++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if err := fn(n); err != nil {
			return err
		}
	}
	return nil
}
