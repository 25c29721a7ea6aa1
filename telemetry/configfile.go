// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk form of [Config]. Pointer fields
// distinguish "absent, keep the default" from an explicit zero
// (enabled: false is a real setting). Durations are Go duration
// strings ("5s", "250ms"); the overflow policy is its snake_case
// name.
type fileConfig struct {
	Enabled        *bool             `json:"enabled" yaml:"enabled"`
	BufferCapacity *int              `json:"buffer_capacity" yaml:"buffer_capacity"`
	FlushInterval  *string           `json:"flush_interval" yaml:"flush_interval"`
	FlushThreshold *int              `json:"flush_threshold" yaml:"flush_threshold"`
	SampleRate     *float64          `json:"sample_rate" yaml:"sample_rate"`
	OverflowPolicy *string           `json:"overflow_policy" yaml:"overflow_policy"`
	DefaultTags    map[string]string `json:"default_tags" yaml:"default_tags"`
}

// LoadConfig reads a pipeline configuration file and applies it over
// [DefaultConfig]. The format follows the extension: .yaml and .yml
// parse as strict YAML (unknown keys rejected); .json and .jsonc
// parse as JSON extended with comments and trailing commas. The
// merged configuration is validated before returning.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	var file fileConfig
	switch extension := strings.ToLower(filepath.Ext(path)); extension {
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		// An empty file decodes to EOF, which means "all defaults".
		if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &file); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return Config{}, fmt.Errorf("unsupported config extension %q (want .yaml, .yml, .json, or .jsonc)", extension)
	}

	config := DefaultConfig()
	if file.Enabled != nil {
		config.Enabled = *file.Enabled
	}
	if file.BufferCapacity != nil {
		config.BufferCapacity = *file.BufferCapacity
	}
	if file.FlushInterval != nil {
		interval, err := time.ParseDuration(*file.FlushInterval)
		if err != nil {
			return Config{}, fmt.Errorf("parsing flush_interval: %w", err)
		}
		config.FlushInterval = interval
	}
	if file.FlushThreshold != nil {
		config.FlushThreshold = *file.FlushThreshold
	}
	if file.SampleRate != nil {
		config.SampleRate = *file.SampleRate
	}
	if file.OverflowPolicy != nil {
		policy, err := ParseOverflowPolicy(*file.OverflowPolicy)
		if err != nil {
			return Config{}, fmt.Errorf("parsing overflow_policy: %w", err)
		}
		config.OverflowPolicy = policy
	}
	if file.DefaultTags != nil {
		config.DefaultTags = Tags(file.DefaultTags)
	}

	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}
