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

package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// runResponse mirrors store.Run's wire shape: the resource API encodes
// store types directly, with no json tags, so the field names here must
// match store.Run's exported field names exactly.
type runResponse struct {
	ID         string
	WorkflowID string
	Status     string
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Create and inspect workflow runs",
	}
	cmd.AddCommand(newRunCreateCommand())
	cmd.AddCommand(newRunGetCommand())
	return cmd
}

func newRunCreateCommand() *cobra.Command {
	var (
		workflowID string
		name       string
		paramsJSON string
		notify     string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Start a run of a workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]interface{}{}
			if paramsJSON != "" {
				if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
					return fmt.Errorf("invalid --params JSON: %w", err)
				}
			}

			client := newAPIClient(serverAddr)
			var run runResponse
			err := client.do(cmd.Context(), "POST", "/runs", map[string]interface{}{
				"workflow_id": workflowID,
				"name":        name,
				"parameters":  params,
				"notify":      notify,
			}, &run)
			if err != nil {
				return err
			}

			fmt.Printf("run %s created (status: %s)\n", run.ID, displayStatus(run.Status))
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowID, "workflow", "", "Workflow ID to run")
	cmd.Flags().StringVar(&name, "name", "", "Optional run name")
	cmd.Flags().StringVar(&paramsJSON, "params", "", "Run parameters as a JSON object")
	cmd.Flags().StringVar(&notify, "notify", "", "Subject/name to publish on run completion")
	cmd.MarkFlagRequired("workflow")

	return cmd
}

func newRunGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <run-id>",
		Short: "Show a run's current status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(serverAddr)
			var run runResponse
			if err := client.do(cmd.Context(), "GET", "/runs/"+args[0], nil, &run); err != nil {
				return err
			}
			fmt.Printf("id:          %s\nworkflow_id: %s\nstatus:      %s\n",
				run.ID, run.WorkflowID, displayStatus(run.Status))
			return nil
		},
	}
}
