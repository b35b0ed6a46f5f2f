// Package cli — inspect.go implements the "dblimits inspect" command.
//
// Where "detect" reads the limits enforced on the current container from
// the inside, "inspect" reads the limits configured on any container from
// the outside, via the Docker Engine API (HostConfig memory, NanoCPUs, and
// cpuset settings). Both commands emit the same KEY=VALUE contract, so an
// operator can compare the requested limits against what the kernel
// actually enforces.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/dblimits/internal/docker"
)

// NewInspectCommand creates the "inspect" cobra command.
func NewInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <container>",
		Short: "Read the resource limits configured on a container",
		Long: `Inspect the resource limits configured on a container's HostConfig via
the Docker API and print them in the same KEY=VALUE format as detect.

The container may be given by ID, ID prefix, or name.

Examples:
  dblimits inspect my-database
  dblimits inspect 3f2a9c --json`,

		// Exactly one positional argument: the container reference.
		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.Context(), args[0])
		},
	}

	return cmd
}

// runInspect is the main logic function for the inspect command.
func runInspect(ctx context.Context, ref string) error {
	// Step 1: Connect to Docker and verify the daemon is available.
	cli, err := docker.NewClient()
	if err != nil {
		return err // NewClient already returns CLIError with ExitDockerNotRunning
	}
	defer func() { _ = cli.Close() }()

	if err := cli.Ping(ctx); err != nil {
		return err
	}
	VerboseLog("Connected to Docker daemon")

	// Step 2: Read the container's configured limits.
	env, err := cli.InspectLimits(ctx, ref)
	if err != nil {
		return err // InspectLimits already returns CLIError
	}
	VerboseLog("Resolved %d variable(s) for container %q", env.Len(), ref)

	// Step 3: Render in the shared environment contract.
	return printEnvironment(env)
}
