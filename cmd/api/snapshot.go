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
	"fmt"

	"github.com/spf13/cobra"

	"jinr.ru/greenlab/go-nsp/pkg/command"
	"jinr.ru/greenlab/go-nsp/pkg/config"
)

func NewSnapshotCommand() *cobra.Command {
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage stored channel configurations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := command.NewApiClient(cfg).SnapshotList()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "save NAME",
		Short: "Store the acknowledged channel configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return command.NewApiClient(cfg).SnapshotSave(args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "restore NAME",
		Short: "Apply a stored channel configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			changed, err := command.NewApiClient(cfg).SnapshotRestore(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Snapshot %s restored: %d channels changed\n", args[0], changed)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return command.NewApiClient(cfg).SnapshotDelete(args[0])
		},
	})
	return cmd
}
