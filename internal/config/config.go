// Package config loads and validates analyzer run configuration.
//
// Configuration comes from a YAML file or from CLI flags; either way the
// resulting values are validated against an embedded CUE schema before
// any unit is scheduled. Invalid configuration is the run's only fatal
// error class, since a bad prime or file count would invalidate every
// unit's result.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Config holds one analyzer run's parameters.
type Config struct {
	Folder  string `yaml:"folder" json:"folder"`
	Ell     uint64 `yaml:"ell" json:"ell"`
	DMax    int64  `yaml:"d_max" json:"d_max"`
	Files   int64  `yaml:"files" json:"files"`
	Mode    string `yaml:"mode" json:"mode"`
	Workers int    `yaml:"workers" json:"workers"`
	Verbose bool   `yaml:"verbose" json:"verbose"`
}

// ValidationError reports configuration that fails schema validation.
type ValidationError struct {
	// Path is the config file the values came from; empty for values
	// assembled from flags.
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: invalid configuration: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("invalid configuration: %s", e.Message)
}

// Load reads a YAML config file and validates it against the schema.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ValidationError{Path: path, Message: err.Error()}
	}
	if cfg.Mode == "" {
		cfg.Mode = "strict"
	}

	if err := cfg.Validate(); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			ve.Path = path
		}
		return nil, err
	}
	return &cfg, nil
}

// Validate unifies the config with the embedded CUE schema and reports
// the first violation.
func (c *Config) Validate() error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("lookup config schema: %w", err)
	}

	unified := def.Unify(ctx.Encode(c))
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Message: cueerrors.Details(err, nil)}
	}
	return nil
}
