// Package config loads the device configuration.
//
// A config file is YAML. Unknown fields are rejected, missing fields keep
// their defaults, and the result is checked against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/roach88/edgelisp/internal/bus"
	"github.com/roach88/edgelisp/internal/lisp"
	"github.com/roach88/edgelisp/internal/mailbox"
)

//go:embed schema.cue
var schemaSource string

// Config is the device configuration.
type Config struct {
	Device  DeviceConfig  `yaml:"device" json:"device"`
	Runtime RuntimeConfig `yaml:"runtime" json:"runtime"`
	Bus     BusConfig     `yaml:"bus" json:"bus"`
	Store   StoreConfig   `yaml:"store" json:"store"`
}

// DeviceConfig identifies the device on the broker.
type DeviceConfig struct {
	ID   string `yaml:"id" json:"id,omitempty"`
	Type string `yaml:"type" json:"type"`
}

// RuntimeConfig bounds the script runtime.
type RuntimeConfig struct {
	ArenaBytes        int `yaml:"arena_bytes" json:"arena_bytes"`
	MaxSteps          int `yaml:"max_steps" json:"max_steps"`
	MaxDepth          int `yaml:"max_depth" json:"max_depth"`
	TickMS            int `yaml:"tick_ms" json:"tick_ms"`
	CleanupIntervalMS int `yaml:"cleanup_interval_ms" json:"cleanup_interval_ms"`
	EventTTLMS        int `yaml:"event_ttl_ms" json:"event_ttl_ms"`
	QueueCapacity     int `yaml:"queue_capacity" json:"queue_capacity"`
}

// BusConfig sizes the bus channels.
type BusConfig struct {
	ChannelCapacity int `yaml:"channel_capacity" json:"channel_capacity"`
}

// StoreConfig locates the SQLite database. An empty path disables
// persistence.
type StoreConfig struct {
	Path string `yaml:"path" json:"path"`
}

// Default returns the default configuration. The device id is left empty.
func Default() Config {
	return Config{
		Device: DeviceConfig{Type: "device"},
		Runtime: RuntimeConfig{
			ArenaBytes:        lisp.DefaultArenaBytes,
			MaxSteps:          lisp.DefaultMaxSteps,
			MaxDepth:          lisp.DefaultMaxDepth,
			TickMS:            10,
			CleanupIntervalMS: 10000,
			EventTTLMS:        int(mailbox.DefaultTTL / time.Millisecond),
			QueueCapacity:     mailbox.DefaultCapacity,
		},
		Bus:   BusConfig{ChannelCapacity: bus.DefaultCapacity},
		Store: StoreConfig{Path: "edgelisp.db"},
	}
}

// Load reads and validates a config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults, assigns a UUIDv7 device id when none
// is given and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Device.ID == "" {
		cfg.Device.ID = uuid.Must(uuid.NewV7()).String()
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ValidationError reports a config value rejected by the schema.
type ValidationError struct {
	Path    string
	Message string
	Pos     token.Pos
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("invalid config: %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("invalid config: %s", e.Message)
}

// Validate checks cfg against the embedded schema.
func Validate(cfg Config) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := def.Unify(ctx.Encode(cfg))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}
	return nil
}

// formatCUEError keeps the first error and its path.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	first := errs[0]
	ve := &ValidationError{Message: first.Error()}
	if path := first.Path(); len(path) > 0 {
		ve.Path = joinPath(path)
		format, args := first.Msg()
		ve.Message = fmt.Sprintf(format, args...)
	}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		ve.Pos = positions[0]
	}
	return ve
}

func joinPath(path []string) string {
	var buf bytes.Buffer
	for i, p := range path {
		if i > 0 {
			buf.WriteByte('.')
		}
		buf.WriteString(p)
	}
	return buf.String()
}

// TickInterval returns runtime.tick_ms as a duration.
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.Runtime.TickMS) * time.Millisecond
}

// CleanupInterval returns runtime.cleanup_interval_ms as a duration.
func (c Config) CleanupInterval() time.Duration {
	return time.Duration(c.Runtime.CleanupIntervalMS) * time.Millisecond
}

// EventTTL returns runtime.event_ttl_ms as a duration.
func (c Config) EventTTL() time.Duration {
	return time.Duration(c.Runtime.EventTTLMS) * time.Millisecond
}
