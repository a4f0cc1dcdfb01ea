// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/autobrr/scour/internal/definitions"
)

// RunValidateCommand checks definition files without starting the server.
func RunValidateCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate source definition files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed int
			for _, path := range args {
				def, err := definitions.LoadFile(path)
				if err != nil {
					cmd.Printf("%s: %v\n", path, err)
					failed++
					continue
				}

				problems := definitions.Validate(def)
				if len(problems) == 0 {
					cmd.Printf("%s: ok (%s)\n", path, def.ID)
					continue
				}

				failed++
				cmd.Printf("%s: %d problem(s)\n", path, len(problems))
				for _, p := range problems {
					cmd.Printf("  - %s\n", p)
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d definition(s) failed validation", failed, len(args))
			}
			return nil
		},
	}

	return command
}
