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


package api

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"jinr.ru/greenlab/go-nsp/pkg/command"
	"jinr.ru/greenlab/go-nsp/pkg/config"
	"jinr.ru/greenlab/go-nsp/pkg/registry"
)

const (
	GroupOptionName        = "group"
	LabelOptionName        = "label"
	InputOptionsOptionName = "input-options"
	SpikeOptionsOptionName = "spike-options"
	DirOptionName          = "dir"
	PrefixOptionName       = "prefix"
)

// NewCommand creates the commands talking to a running acquisition server
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api",
		Short: "Send requests to the acquisition server",
	}
	cmd.AddCommand(NewGroupCommand())
	cmd.AddCommand(NewChannelCommand())
	cmd.AddCommand(NewStatusCommand())
	cmd.AddCommand(NewPersistCommand())
	cmd.AddCommand(NewFlushCommand())
	cmd.AddCommand(NewSnapshotCommand())
	return cmd
}

func printJSON(out io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func parseUint16(arg string) (uint16, error) {
	v, err := strconv.ParseUint(arg, 10, 16)
	return uint16(v), err
}

func NewGroupCommand() *cobra.Command {
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "group GROUP",
		Short: "Print channels of a sample group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			group, err := parseUint16(args[0])
			if err != nil {
				return err
			}
			members, err := command.NewApiClient(cfg).GroupMembers(registry.GroupID(group))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), members)
		},
	}
	return cmd
}

func NewChannelCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel",
		Short: "Get or set channel configuration",
	}
	cmd.AddCommand(NewChannelGetCommand())
	cmd.AddCommand(NewChannelSetCommand())
	return cmd
}

func NewChannelGetCommand() *cobra.Command {
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "get CHANNEL",
		Short: "Print acknowledged channel configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := parseUint16(args[0])
			if err != nil {
				return err
			}
			c, err := command.NewApiClient(cfg).Channel(registry.ChannelID(ch))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), c)
		},
	}
	return cmd
}

func NewChannelSetCommand() *cobra.Command {
	var group uint16
	var label string
	var inputOptions, spikeOptions uint32
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "set CHANNEL",
		Short: "Request channel configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := parseUint16(args[0])
			if err != nil {
				return err
			}
			// only flags given on the command line are sent
			update := registry.ChannelUpdate{}
			if cmd.Flags().Changed(GroupOptionName) {
				g := registry.GroupID(group)
				update.Group = &g
			}
			if cmd.Flags().Changed(LabelOptionName) {
				update.Label = &label
			}
			if cmd.Flags().Changed(InputOptionsOptionName) {
				update.InputOptions = &inputOptions
			}
			if cmd.Flags().Changed(SpikeOptionsOptionName) {
				update.SpikeOptions = &spikeOptions
			}
			return command.NewApiClient(cfg).SetChannel(registry.ChannelID(ch), update)
		},
	}
	cmd.Flags().Uint16Var(&group, GroupOptionName, 0, "Sample group, 0 disables sampling")
	cmd.Flags().StringVar(&label, LabelOptionName, "", "Channel label")
	cmd.Flags().Uint32Var(&inputOptions, InputOptionsOptionName, 0, "Input option flags")
	cmd.Flags().Uint32Var(&spikeOptions, SpikeOptionsOptionName, 0, "Spike option flags, 1 enables extraction")
	return cmd
}

func NewStatusCommand() *cobra.Command {
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print trial and delivery statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := command.NewApiClient(cfg).Status()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
	return cmd
}

func NewPersistCommand() *cobra.Command {
	var dir, prefix string
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "persist",
		Short: "Start recording frames to a new file",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := command.NewApiClient(cfg).Persist(dir, prefix)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recording to %s\n", file)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, DirOptionName, "", "Directory on the server, defaults to the configured record dir")
	cmd.Flags().StringVar(&prefix, PrefixOptionName, "", "File name prefix")
	return cmd
}

func NewFlushCommand() *cobra.Command {
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Close the file being recorded",
		RunE: func(cmd *cobra.Command, args []string) error {
			return command.NewApiClient(cfg).Flush()
		},
	}
	return cmd
}
