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

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

// generateOperation mirrors one entry of internal/api's generateBody, the
// linear operation list spec.md §6's Workflow.generate turns into a
// single-action execute-step chain.
type generateOperation struct {
	Operation   string
	Description string
}

func newWorkflowGenerateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Interactively author a new linear workflow",
		Long: `generate walks through naming a workflow and adding a sequence of
operations, then submits them to Workflow.generate (spec.md §6), which
chains each step into the next via a postoperation execute-step rule.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, ops, err := runGenerateWizard()
			if err != nil {
				return err
			}

			client := newAPIClient(serverAddr)

			var generated struct {
				Specification string `json:"specification"`
			}
			genPayload := map[string]interface{}{
				"name":       name,
				"operations": toGeneratePayload(ops),
			}
			if err := client.do(cmd.Context(), "POST", "/workflows/generate", genPayload, &generated); err != nil {
				return err
			}

			var wf workflowResponse
			createPayload := map[string]interface{}{
				"name":          name,
				"specification": generated.Specification,
			}
			if err := client.do(cmd.Context(), "POST", "/workflows", createPayload, &wf); err != nil {
				return err
			}

			fmt.Println(HeaderStyle.Render(fmt.Sprintf("workflow %q generated", wf.Name)))
			fmt.Printf("id: %s\n\n%s\n", wf.ID, wf.Specification)
			return nil
		},
	}
}

func toGeneratePayload(ops []generateOperation) []map[string]interface{} {
	out := make([]map[string]interface{}, len(ops))
	for i, op := range ops {
		out[i] = map[string]interface{}{
			"operation":   op.Operation,
			"description": op.Description,
		}
	}
	return out
}

// runGenerateWizard prompts for a workflow name, then repeatedly prompts
// for an operation until the user declines to add another. At least one
// operation is required, mirroring handleGenerateWorkflow's own check.
func runGenerateWizard() (string, []generateOperation, error) {
	var name string
	nameForm := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Workflow name").
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("name is required")
					}
					return nil
				}).
				Value(&name),
		),
	).WithTheme(wizardTheme())
	if err := nameForm.Run(); err != nil {
		return "", nil, err
	}

	var ops []generateOperation
	for {
		var (
			operation   string
			description string
			addAnother  bool
		)

		group := huh.NewGroup(
			huh.NewInput().
				Title(fmt.Sprintf("Operation %d name", len(ops)+1)).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("operation name is required")
					}
					return nil
				}).
				Value(&operation),
			huh.NewInput().
				Title("Description (optional)").
				Value(&description),
		)
		if err := huh.NewForm(group).WithTheme(wizardTheme()).Run(); err != nil {
			return "", nil, err
		}
		ops = append(ops, generateOperation{Operation: operation, Description: description})

		confirm := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Add another operation?").
					Value(&addAnother),
			),
		).WithTheme(wizardTheme())
		if err := confirm.Run(); err != nil {
			return "", nil, err
		}
		if !addAnother {
			break
		}
	}

	return name, ops, nil
}
