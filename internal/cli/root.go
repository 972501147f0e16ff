package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/blobmesh/blobmesh/internal/buildinfo"
	"github.com/blobmesh/blobmesh/pipeline"
)

// Execute runs the CLI. The process exit code mirrors the job result when a
// pipeline run fails.
func Execute() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		var jobErr *jobFailedError
		if asJobFailed(err, &jobErr) {
			code := jobErr.exitCode
			if code <= 0 {
				code = 1
			}
			os.Exit(code)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "blobmesh",
		Short:        "S3-backed blob storage and its CI verification harness",
		Version:      buildinfo.String(),
		SilenceUsage: true,
	}

	cmd.AddCommand(runCmd())
	cmd.AddCommand(validateCmd())
	return cmd
}

func loadDefinition(path string) (*pipeline.Definition, error) {
	if path == "" {
		path = "ci.yaml"
	}
	return pipeline.Load(path)
}
