package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func validateCmd() *cobra.Command {
	var file string

	c := &cobra.Command{
		Use:   "validate",
		Short: "Validate a job definition without running it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			def, err := loadDefinition(file)
			if err != nil {
				return err
			}
			if err := def.Validate(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d steps, %d toolchain versions)\n",
				def.Name, len(def.Steps), len(def.Matrix.Toolchain))
			return nil
		},
	}

	c.Flags().StringVarP(&file, "file", "f", "ci.yaml", "job definition file")
	return c
}
