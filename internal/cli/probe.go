// Package cli — probe.go implements the "dblimits probe" command.
//
// The probe command is the container's readiness/liveness check: it dials
// the database's TCP port and exits 0 once a connection is accepted. The
// orchestrator wires it as the health-check entry point, so the exit code
// is the whole contract — output is informational only.
package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/dblimits/internal/model"
	"github.com/shinji-kodama/dblimits/internal/probe"
)

// probeFlags holds the flag values for the probe command. Zero values mean
// "not set on the command line" — the config file (or compiled default)
// fills them in.
type probeFlags struct {
	host       string
	port       int
	timeout    time.Duration
	retries    int
	interval   time.Duration
	configPath string
}

// NewProbeCommand creates the "probe" cobra command.
func NewProbeCommand() *cobra.Command {
	flags := &probeFlags{}

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check whether the database accepts TCP connections",
		Long: `Probe the database's listening port over TCP. The probe succeeds as soon
as one connection attempt is accepted; liveness is defined as "the main
server process has started and is accepting connections".

Exit codes: 0 when the database is reachable, 4 when every attempt failed.

Examples:
  dblimits probe
  dblimits probe --host 127.0.0.1 --port 5432 --retries 5 --interval 2s
  dblimits probe --config /etc/dblimits.yaml`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.host, "host", "", "Database host (default: from config)")
	cmd.Flags().IntVar(&flags.port, "port", 0, "Database TCP port (default: from config)")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "Timeout per connection attempt (default: from config)")
	cmd.Flags().IntVar(&flags.retries, "retries", 0, "Number of connection attempts (default: from config)")
	cmd.Flags().DurationVar(&flags.interval, "interval", 0, "Pause between attempts (default: from config)")
	cmd.Flags().StringVar(&flags.configPath, "config", "",
		"Path to a dblimits config file (.yaml, .yml, .json, or .jsonc)")

	return cmd
}

// runProbe is the main logic function for the probe command.
func runProbe(cmd *cobra.Command, flags *probeFlags) error {
	// Step 1: Resolve settings — command-line flags override the config
	// file, which overrides compiled defaults.
	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return err
	}

	host := cfg.Probe.Host
	if flags.host != "" {
		host = flags.host
	}
	port := cfg.Probe.Port
	if flags.port != 0 {
		port = flags.port
	}
	timeout := cfg.Probe.Timeout.Std()
	if flags.timeout != 0 {
		timeout = flags.timeout
	}
	retries := cfg.Probe.Retries
	if flags.retries != 0 {
		retries = flags.retries
	}
	interval := cfg.Probe.Interval.Std()
	if flags.interval != 0 {
		interval = flags.interval
	}

	// Step 2: Run the probe. The command context carries any cancellation
	// from the orchestrator (signal handling installed by cobra).
	VerboseLog("Probing %s:%d (timeout %s, %d attempt(s), interval %s)",
		host, port, timeout, retries, interval)

	prober := probe.New(timeout, retries, interval)
	if err := prober.Check(cmd.Context(), host, port); err != nil {
		return model.WrapCLIError(model.ExitProbeFailed,
			fmt.Sprintf("database at %s:%d is not ready", host, port), err)
	}

	// Step 3: Report success. The exit code is the contract; the output is
	// a courtesy for humans running the probe by hand.
	printProbeResult(host, port)
	return nil
}

// printProbeResult reports a successful probe in text or JSON format.
func printProbeResult(host string, port int) {
	if IsJSONOutput() {
		result := map[string]interface{}{
			"host":  host,
			"port":  port,
			"ready": true,
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}
	fmt.Printf("database at %s:%d is ready\n", host, port)
}
