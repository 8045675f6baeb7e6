// Package config loads sweep definitions from YAML or TOML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"substrata/internal/model"
)

const (
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

// Sweep is a base condition plus the grid axes varied around it. An empty
// axis keeps the base value.
type Sweep struct {
	model.Condition `yaml:",inline"`

	Sigmas      []float64 `yaml:"sigmas" toml:"sigmas"`
	EnergyZeros []float64 `yaml:"energy_zeros" toml:"energy_zeros"`
	EnergyAbs1s []float64 `yaml:"energy_abs1s" toml:"energy_abs1s"`
	// Parallelism bounds concurrently evaluated conditions.
	Parallelism int `yaml:"parallelism" toml:"parallelism"`
}

func Default() Sweep {
	return Sweep{Condition: model.DefaultCondition(), Parallelism: 1}
}

// Load reads path on top of Default. The format follows the extension.
func Load(path string) (Sweep, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Sweep{}, err
	}
	format, err := FormatOf(path)
	if err != nil {
		return Sweep{}, err
	}
	cfg, err := Decode(data, format)
	if err != nil {
		return Sweep{}, fmt.Errorf("load %s: %w", path, err)
	}
	return cfg, nil
}

func FormatOf(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("unsupported config extension %q (want .yaml, .yml or .toml)", filepath.Ext(path))
	}
}

// Decode parses data over the defaults and validates the result.
func Decode(data []byte, format string) (Sweep, error) {
	cfg := Default()
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Sweep{}, fmt.Errorf("decode yaml: %w", err)
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return Sweep{}, fmt.Errorf("decode toml: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return Sweep{}, fmt.Errorf("decode toml: unknown keys %v", undecoded)
		}
	default:
		return Sweep{}, fmt.Errorf("unsupported config format %q", format)
	}
	if err := cfg.Validate(); err != nil {
		return Sweep{}, err
	}
	return cfg, nil
}

func (s Sweep) Validate() error {
	if s.Parallelism < 0 {
		return model.NewConfigurationError("parallelism", s.Parallelism, "must be >= 0")
	}
	for name, axis := range map[string][]float64{
		"sigmas":       s.Sigmas,
		"energy_zeros": s.EnergyZeros,
		"energy_abs1s": s.EnergyAbs1s,
	} {
		for _, v := range axis {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return model.NewConfigurationError(name, v, "grid values must be finite")
			}
			if name == "sigmas" && v < 0 {
				return model.NewConfigurationError(name, v, "must be >= 0")
			}
		}
	}
	return s.Condition.Validate()
}

// Conditions expands the grid sigma-major, then energy_zero, then
// energy_abs1.
func (s Sweep) Conditions() []model.Condition {
	sigmas := axisOr(s.Sigmas, s.Sigma)
	zeros := axisOr(s.EnergyZeros, s.EnergyZero)
	abs1s := axisOr(s.EnergyAbs1s, s.EnergyAbs1)

	out := make([]model.Condition, 0, len(sigmas)*len(zeros)*len(abs1s))
	for _, sigma := range sigmas {
		for _, e0 := range zeros {
			for _, e1 := range abs1s {
				cond := s.Condition
				cond.Sigma, cond.EnergyZero, cond.EnergyAbs1 = sigma, e0, e1
				out = append(out, cond)
			}
		}
	}
	return out
}

func axisOr(axis []float64, base float64) []float64 {
	if len(axis) == 0 {
		return []float64{base}
	}
	return axis
}
