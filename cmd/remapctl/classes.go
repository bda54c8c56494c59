// Copyright 2026 The A1 Kernel Authors.
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

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/memtype"
)

// classesCmd implements subcommands.Command for the "classes" command.
type classesCmd struct{}

// Name implements subcommands.Command.
func (*classesCmd) Name() string {
	return "classes"
}

// Synopsis implements subcommands.Command.
func (*classesCmd) Synopsis() string {
	return "lists the known mapping classes and their attribute encodings"
}

// Usage implements subcommands.Command.
func (*classesCmd) Usage() string {
	return `classes
`
}

// SetFlags implements subcommands.Command.
func (*classesCmd) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.
func (*classesCmd) Execute(context.Context, *flag.FlagSet, ...any) subcommands.ExitStatus {
	fmt.Printf("%-18s %-10s %s\n", "class", "pte", "section")
	for t := memtype.Type(0); ; t++ {
		mt, ok := memtype.Lookup(t)
		if !ok {
			break
		}
		fmt.Printf("%-18s %#08x %#08x\n", t, mt.PTEProt, mt.SectProt)
	}
	return subcommands.ExitSuccess
}
