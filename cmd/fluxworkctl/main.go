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

// Command fluxworkctl is the admin CLI for a running fluxworkd: it talks
// to the resource API (§6) over plain HTTP, the same surface any other
// client uses, and adds an interactive wizard on top for authoring new
// workflow specifications.
package main

import (
	"fmt"
	"os"

	"github.com/fluxwork/fluxwork/cmd/fluxworkctl/commands"
)

// Version information (injected via ldflags at build time)
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	commands.SetVersion(version, commit)

	root := commands.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
