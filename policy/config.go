// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package policy

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Pinning selects how base images are pinned.
type Pinning string

const (
	PinTag    Pinning = "tag"
	PinDigest Pinning = "digest"
)

// DefaultUser is the account created when the final base image ships no
// unprivileged one.
const DefaultUser = "10001:10001"

// Config is the policy document. Absent keys keep their defaults.
type Config struct {
	NonRootUser      bool              `yaml:"nonRootUser" json:"nonRootUser"`
	BaseImagePinning Pinning           `yaml:"baseImagePinning" json:"baseImagePinning"`
	User             string            `yaml:"user,omitempty" json:"user,omitempty"`
	Workdir          string            `yaml:"workdir" json:"workdir"`
	Disable          []string          `yaml:"disable,omitempty" json:"disable,omitempty"`
	BaseImages       map[string]string `yaml:"baseImages,omitempty" json:"baseImages,omitempty"`
	Labels           map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// DefaultConfig returns the configuration used without a policy document.
func DefaultConfig() Config {
	return Config{
		NonRootUser:      true,
		BaseImagePinning: PinTag,
		Workdir:          "/app",
	}
}

// Disabled reports whether the policy id is switched off.
func (c Config) Disabled(id string) bool {
	return slices.Contains(c.Disable, id)
}

//go:embed schema.json
var schemaJSON []byte

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
})

// SchemaError lists every way a policy document failed validation.
type SchemaError struct {
	Problems []string
}

func (e *SchemaError) Error() string {
	return "invalid policy document: " + strings.Join(e.Problems, "; ")
}

// ParseConfig validates a YAML (or JSON) policy document against the
// embedded schema and decodes it over the defaults.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Config{}, fmt.Errorf("parsing policy document: %w", err)
	}
	if doc == nil {
		return cfg, nil
	}

	schema, err := compiledSchema()
	if err != nil {
		return Config{}, fmt.Errorf("compiling policy schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return Config{}, fmt.Errorf("validating policy document: %w", err)
	}
	if !result.Valid() {
		serr := &SchemaError{}
		for _, re := range result.Errors() {
			serr.Problems = append(serr.Problems, re.String())
		}
		slices.Sort(serr.Problems)
		return Config{}, serr
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("decoding policy document: %w", err)
	}
	return cfg, nil
}

// ReadConfig reads and parses a policy document.
func ReadConfig(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, err
	}
	return ParseConfig(data)
}

// LoadConfig reads the policy document at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
