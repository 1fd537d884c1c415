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
	"fmt"

	"github.com/spf13/cobra"
)

// workflowResponse mirrors store.Workflow's wire shape: the resource API
// encodes store types directly, with no json tags, so the field names
// here must match store.Workflow's exported field names exactly.
type workflowResponse struct {
	ID            string
	Name          string
	Designation   string
	Specification string
}

func newWorkflowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Create and inspect workflows",
	}
	cmd.AddCommand(newWorkflowGetCommand())
	cmd.AddCommand(newWorkflowGenerateCommand())
	return cmd
}

func newWorkflowGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <workflow-id>",
		Short: "Show a workflow's specification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(serverAddr)
			var wf workflowResponse
			if err := client.do(cmd.Context(), "GET", "/workflows/"+args[0], nil, &wf); err != nil {
				return err
			}
			fmt.Printf("id:   %s\nname: %s\n\n%s\n", wf.ID, wf.Name, wf.Specification)
			return nil
		},
	}
}
