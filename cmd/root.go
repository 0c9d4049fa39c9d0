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


package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"jinr.ru/greenlab/go-nsp/cmd/acquire"
	"jinr.ru/greenlab/go-nsp/cmd/api"
	"jinr.ru/greenlab/go-nsp/cmd/completion"
	"jinr.ru/greenlab/go-nsp/cmd/config"
	"jinr.ru/greenlab/go-nsp/cmd/discover"
	"jinr.ru/greenlab/go-nsp/cmd/serve"
	"jinr.ru/greenlab/go-nsp/cmd/sim"
	pkgconfig "jinr.ru/greenlab/go-nsp/pkg/config"
	"jinr.ru/greenlab/go-nsp/pkg/log"
)

const (
	LogLevelOptionName = "log-level"
)

func NewRootCommand(out io.Writer) *cobra.Command {
	var logLevel string
	cfg := pkgconfig.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "go-nsp",
		Short: "Tool to acquire data from a neural signal processor",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			log.Init(cmd.ErrOrStderr(), cfg.LogLevel)
		},
		SilenceUsage: true,
	}
	cmd.SetOut(out)
	cmd.AddCommand(config.NewCommand())
	cmd.AddCommand(discover.NewCommand())
	cmd.AddCommand(sim.NewCommand())
	cmd.AddCommand(serve.NewCommand())
	cmd.AddCommand(acquire.NewCommand())
	cmd.AddCommand(api.NewCommand())
	cmd.AddCommand(completion.NewCommand())
	cmd.PersistentFlags().StringVar(&logLevel, LogLevelOptionName, "", fmt.Sprintf("Log level. %s", log.HelpLevels))
	return cmd
}
