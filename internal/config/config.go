// Package config loads the gateway configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the gateway configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" validate:"required,hostname_port"`

	// Namespace is the target namespace of published documents.
	Namespace string `yaml:"namespace" validate:"required"`

	// Endpoint is the address written into exported descriptions.
	// Served descriptions use the request URL instead.
	Endpoint string `yaml:"endpoint" validate:"omitempty,url"`

	// MaxRequestBodySize bounds inbound envelopes. Zero means no limit.
	MaxRequestBodySize uint64 `yaml:"max_request_body_size"`

	MaskInternalErrors bool `yaml:"mask_internal_errors"`

	Log       Log       `yaml:"log"`
	Gzip      bool      `yaml:"gzip"`
	CORS      CORS      `yaml:"cors"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// CORS configures cross-origin access. CORS is disabled when no origin is
// listed.
type CORS struct {
	AllowOrigins []string `yaml:"allow_origins" validate:"dive,required"`
}

// Telemetry configures OpenTelemetry export.
type Telemetry struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listen:             ":8080",
		Namespace:          "http://soa.rapid-is.co.uk",
		MaxRequestBodySize: 1 << 20,
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path over the defaults and validates the
// result. An empty path returns the validated defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every field and reports all failures.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	var valErrs validator.ValidationErrors
	if !errors.As(err, &valErrs) {
		return err
	}
	errs := make([]error, 0, len(valErrs))
	for _, fe := range valErrs {
		// Namespace is "Config.log.level"; drop the root type name.
		_, key, _ := strings.Cut(fe.Namespace(), ".")
		errs = append(errs, fmt.Errorf("config: %s: invalid value %q (%s)", key, fmt.Sprint(fe.Value()), fe.Tag()))
	}
	return errors.Join(errs...)
}

// SlogLevel returns the configured log level.
func (l Log) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Logger returns a logger writing to w in the configured format.
func (l Log) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.SlogLevel()}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
