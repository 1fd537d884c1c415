// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package commands implements fluxworkctl's Cobra command tree.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

// SetVersion records build-time version info, for the version command.
func SetVersion(v, c string) {
	version = v
	commit = c
}

var serverAddr string

// NewRootCommand builds fluxworkctl's root Cobra command and registers
// every subcommand.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fluxworkctl",
		Short: "fluxworkctl - fluxwork workflow engine admin CLI",
		Long: `fluxworkctl talks to a running fluxworkd over its resource API to
inspect workflows and to create and inspect runs, and provides an
interactive wizard for authoring new workflow specifications.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&serverAddr, "server", "http://localhost:8080", "fluxworkd base URL")

	cmd.AddCommand(newWorkflowCommand())
	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}
