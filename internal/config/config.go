// Package config loads the optional dblimits configuration file.
//
// The file carries the glue knobs the container supervisor would otherwise
// hardcode in shell: the processor-count utility name and the probe target.
// Two formats are accepted, selected by file extension: YAML (.yaml/.yml)
// and JSONC (.json/.jsonc — JSON with comments, the same dialect used by
// devcontainer.json). JSONC input is comment-stripped with
// github.com/tidwall/jsonc before parsing with the standard encoding/json.
//
// Every field is optional; unset fields keep their compiled defaults, so a
// config file only needs to mention what it changes.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/dblimits/internal/model"
)

// Duration wraps time.Duration with YAML and JSON unmarshalling from the
// human-readable Go duration syntax ("5s", "250ms"). yaml.v3 and
// encoding/json both lack native time.Duration decoding.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	return d.parse(raw)
}

// UnmarshalJSON implements json.Unmarshaler. Accepts a quoted duration
// string ("5s").
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return d.parse(raw)
}

func (d *Duration) parse(raw string) error {
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ProbeConfig configures the database readiness probe.
type ProbeConfig struct {
	// Host is the address the database listens on. Defaults to localhost —
	// the probe normally runs in the same container as the server.
	Host string `yaml:"host" json:"host"`

	// Port is the database's TCP port.
	Port int `yaml:"port" json:"port"`

	// Timeout bounds a single connection attempt.
	Timeout Duration `yaml:"timeout" json:"timeout"`

	// Retries is the number of connection attempts before the probe
	// reports failure.
	Retries int `yaml:"retries" json:"retries"`

	// Interval is the pause between attempts.
	Interval Duration `yaml:"interval" json:"interval"`
}

// Config is the root of the dblimits configuration file.
type Config struct {
	// Nproc is the name of the processor-count utility, looked up on PATH.
	Nproc string `yaml:"nproc" json:"nproc"`

	// Probe holds the readiness probe settings.
	Probe ProbeConfig `yaml:"probe" json:"probe"`
}

// Default returns the compiled-in configuration, used when no config file
// is given. Each Load starts from these values, so a file only overrides
// what it sets.
func Default() *Config {
	return &Config{
		Nproc: "nproc",
		Probe: ProbeConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			Timeout:  Duration(2 * time.Second),
			Retries:  1,
			Interval: Duration(time.Second),
		},
	}
}

// Load reads and parses the config file at path, layered over Default().
//
// Returns a CLIError with ExitConfigInvalid when the file is missing,
// has an unrecognized extension, or fails to parse — an explicitly
// requested config that cannot be honored is an operator error, not
// something to silently default around.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitConfigInvalid,
			fmt.Sprintf("cannot read config file %q", path), err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".json", ".jsonc":
		// jsonc.ToJSON strips // and /* */ comments plus trailing commas,
		// leaving plain JSON for the standard decoder.
		err = json.Unmarshal(jsonc.ToJSON(data), cfg)
	default:
		return nil, model.WrapCLIError(model.ExitConfigInvalid,
			fmt.Sprintf("config file %q: unsupported extension (want .yaml, .yml, .json, or .jsonc)", path), nil)
	}
	if err != nil {
		return nil, model.WrapCLIError(model.ExitConfigInvalid,
			fmt.Sprintf("cannot parse config file %q", path), err)
	}

	return cfg, nil
}
