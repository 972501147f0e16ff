package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blobmesh/blobmesh/logging"
	"github.com/blobmesh/blobmesh/pipeline"
)

// jobFailedError carries a failing job's exit code up to Execute.
type jobFailedError struct {
	exitCode int
}

func (e *jobFailedError) Error() string {
	return fmt.Sprintf("job failed with exit code %d", e.exitCode)
}

func asJobFailed(err error, target **jobFailedError) bool {
	return errors.As(err, target)
}

func runCmd() *cobra.Command {
	var file string
	var debug bool

	c := &cobra.Command{
		Use:   "run",
		Short: "Run a CI job definition (service container, pre-checks, tests)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			def, err := loadDefinition(file)
			if err != nil {
				return err
			}

			level := logging.LogLevelInfo
			if debug {
				level = logging.LogLevelDebug
			}
			logger := logging.NewSlogLogger(level, "text", false).WithContext("definition", file)

			runner := pipeline.NewRunner(pipeline.WithLogger(logger))
			result, err := runner.Run(cmd.Context(), def)
			if err != nil {
				return err
			}

			for _, job := range result.Jobs {
				for _, step := range job.Steps {
					status := "ok"
					switch {
					case step.Skipped:
						status = "skipped"
					case step.Err != nil:
						status = "error"
					case step.ExitCode != 0:
						status = fmt.Sprintf("exit %d", step.ExitCode)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%-12s %-10s %s\n", step.ID, status, step.Duration)
				}
			}

			if code := result.ExitCode(); code != 0 {
				return &jobFailedError{exitCode: code}
			}
			return nil
		},
	}

	c.Flags().StringVarP(&file, "file", "f", "ci.yaml", "job definition file")
	c.Flags().BoolVar(&debug, "debug", false, "enable verbose logging")
	return c
}
