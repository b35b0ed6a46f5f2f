// Package cli — detect.go implements the "dblimits detect" command.
//
// The detect command runs the cgroup resource-limit detector and prints the
// resolved variables to stdout as KEY=VALUE lines (or a JSON object with
// --json). The container supervisor invokes it once at startup and exports
// every line as an environment variable before tuning the database
// configuration. Warnings about undetectable signals go to stderr so they
// never pollute the parsed output.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/dblimits/internal/cgroup"
	"github.com/shinji-kodama/dblimits/internal/config"
	"github.com/shinji-kodama/dblimits/internal/model"
)

// detectFlags holds the flag values for the detect command.
type detectFlags struct {
	// nproc overrides the processor-count utility name. Empty means
	// "take it from the config file or the compiled default".
	nproc string

	// configPath is the optional config file (--config).
	configPath string
}

// NewDetectCommand creates the "detect" cobra command.
func NewDetectCommand() *cobra.Command {
	flags := &detectFlags{}

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Detect container resource limits from the cgroup filesystem",
		Long: `Detect the memory ceiling and usable CPU core count imposed on this
container, supporting both cgroup v1 and v2 layouts, and print them as
shell-exportable KEY=VALUE assignments.

Signals that cannot be determined are omitted from the output (with a
warning on stderr), letting the caller pick its own defaults.

Examples:
  dblimits detect
  eval "$(dblimits detect 2>/dev/null | sed 's/^/export /')"
  dblimits detect --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(flags)
		},
	}

	cmd.Flags().StringVar(&flags.nproc, "nproc", "",
		"Processor-count utility to invoke (default: from config, then \"nproc\")")
	cmd.Flags().StringVar(&flags.configPath, "config", "",
		"Path to a dblimits config file (.yaml, .yml, .json, or .jsonc)")

	return cmd
}

// runDetect is the main logic function for the detect command.
func runDetect(flags *detectFlags) error {
	// Step 1: Resolve configuration. Flag beats file beats default.
	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return err
	}
	nproc := cfg.Nproc
	if flags.nproc != "" {
		nproc = flags.nproc
	}

	// Step 2: Run the detector against the real host.
	detector := cgroup.NewDetector()
	detector.Procs = cgroup.NprocSource{Command: nproc}

	VerboseLog("Detecting resource limits (nproc utility: %s)", nproc)
	env, err := detector.Detect()
	if err != nil {
		// The detector's only fatal path: an unexpected failure executing
		// the processor-count utility.
		return model.WrapCLIError(model.ExitGeneralError,
			"resource limit detection failed", err)
	}
	VerboseLog("Resolved %d variable(s)", env.Len())

	// Step 3: Render to stdout in the requested format.
	return printEnvironment(env)
}

// loadConfig returns the parsed config file when a path was given, and the
// compiled defaults otherwise.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	VerboseLog("Loading config from %s", path)
	return config.Load(path)
}

// printEnvironment writes a resolved Environment to stdout as KEY=VALUE
// lines, or as a JSON object when --json is set. Shared by the detect and
// inspect commands, which emit the same contract.
func printEnvironment(env model.Environment) error {
	if IsJSONOutput() {
		data, err := json.MarshalIndent(env.Map(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	return env.Render(os.Stdout)
}
