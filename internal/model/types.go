package model

import (
	"fmt"
	"io"
	"sort"
	"strconv"
)

// Environment variable names emitted by the detector and consumed by the
// database startup scripts. The names are a stable contract with the
// supervisor shell script, which parses the output line by line and exports
// each assignment before tuning the database configuration.
const (
	// EnvMemoryLimit is the resolved memory ceiling of the container,
	// in bytes.
	EnvMemoryLimit = "MEMORY_LIMIT_IN_BYTES"

	// EnvMaxMemoryLimit is the largest representable memory limit. It is
	// always emitted, so the supervisor has a known upper bound to compare
	// against regardless of what could be detected.
	EnvMaxMemoryLimit = "MAX_MEMORY_LIMIT_IN_BYTES"

	// EnvNumberOfCores is the resolved number of usable CPU cores.
	EnvNumberOfCores = "NUMBER_OF_CORES"

	// EnvNoMemoryLimit is emitted with the value "true" when the detected
	// memory limit is so large it is effectively unlimited. The key is
	// absent otherwise — it is never emitted as "false".
	EnvNoMemoryLimit = "NO_MEMORY_LIMIT"
)

const (
	// MaxMemoryLimitBytes is the sentinel for "no memory limit": 2^63-1.
	// cgroup v2 reports the token "max" for an unlimited controller, which
	// maps to this value; cgroup v1 reports a huge page-rounded number.
	MaxMemoryLimitBytes int64 = 1<<63 - 1

	// NoMemoryLimitThreshold is the cutoff above which a detected memory
	// limit is treated as "unlimited". Kernels report the v1 default limit
	// as a page-rounded value slightly below 2^63, so the threshold sits
	// well under the sentinel while staying far above any real limit
	// (~84 PiB).
	NoMemoryLimitThreshold int64 = 92233720368547
)

// Environment is the resolved mapping of variable name to value produced by
// limit detection. Undetermined values are never stored: a key is either
// present with a concrete value or absent entirely.
//
// The zero value is not usable; construct with NewEnvironment.
type Environment struct {
	vars map[string]string
}

// NewEnvironment returns an empty Environment.
func NewEnvironment() Environment {
	return Environment{vars: make(map[string]string)}
}

// Set stores a string-valued variable.
func (e Environment) Set(key, value string) {
	e.vars[key] = value
}

// SetInt stores an integer-valued variable, formatted base-10.
func (e Environment) SetInt(key string, value int64) {
	e.vars[key] = strconv.FormatInt(value, 10)
}

// Lookup returns the value for key and whether it is present.
func (e Environment) Lookup(key string) (string, bool) {
	v, ok := e.vars[key]
	return v, ok
}

// Len returns the number of resolved variables.
func (e Environment) Len() int {
	return len(e.vars)
}

// Keys returns the variable names in sorted order.
func (e Environment) Keys() []string {
	keys := make([]string, 0, len(e.vars))
	for k := range e.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Render writes the environment as KEY=VALUE lines, one variable per line.
// This is the contract with the supervisor script, which evals each line as
// a shell export. Values are bare integers or the literal "true", so no
// quoting is needed.
//
// The contract guarantees no particular order; keys are rendered sorted so
// that repeated detection runs over unchanged state produce byte-identical
// output.
func (e Environment) Render(w io.Writer) error {
	for _, k := range e.Keys() {
		if _, err := fmt.Fprintf(w, "%s=%s\n", k, e.vars[k]); err != nil {
			return err
		}
	}
	return nil
}

// Map returns a copy of the underlying variable map, suitable for JSON
// serialization in --json output mode.
func (e Environment) Map() map[string]string {
	out := make(map[string]string, len(e.vars))
	for k, v := range e.vars {
		out[k] = v
	}
	return out
}

// ExitCode defines standard CLI exit codes. These codes allow the container
// supervisor and health-check scripts to programmatically determine the
// outcome of a command.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitDockerNotRunning indicates the Docker daemon is not accessible.
	ExitDockerNotRunning ExitCode = 3

	// ExitProbeFailed indicates the database did not accept a connection
	// within the configured probe budget.
	ExitProbeFailed ExitCode = 4

	// ExitConfigInvalid indicates the configuration file could not be
	// read or parsed.
	ExitConfigInvalid ExitCode = 5
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
// Format: "message: underlying error" or just "message" if no underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error, enabling errors.Is and errors.As
// to inspect the error chain.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// WrapCLIError creates a CLIError with the given exit code, message, and
// optional underlying error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
