// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DirName is the directory under the user configuration directory.
	DirName = "stackcraft"
	// FileName is the name of the configuration file.
	FileName = "config.yaml"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Dir returns $XDG_CONFIG_HOME/stackcraft, falling back to
// ~/.config/stackcraft. Under sudo the invoking user's home is used.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, DirName)
	}
	return filepath.Join(getHomeDir(), ".config", DirName)
}

// DefaultPath is the configuration file read when none is named.
func DefaultPath() string {
	return filepath.Join(Dir(), FileName)
}

// New returns a configuration holding the default of every field.
func New() (*Config, error) {
	cfg := &Config{}
	err := visit(reflect.ValueOf(cfg).Elem(), func(f reflect.StructField, v reflect.Value) error {
		def, ok := f.Tag.Lookup("default")
		if !ok || def == "" {
			return nil
		}
		if err := set(v, def); err != nil {
			return fmt.Errorf("default of %s: %w", f.Name, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load builds the configuration from defaults, the file at path and the
// environment. A missing file is only an error when path was named
// explicitly; pass "" for the default location.
func Load(path string) (*Config, error) {
	cfg, err := New()
	if err != nil {
		return nil, err
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.Decode(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Decode overlays a YAML document onto c. Keys the document omits keep
// their current value.
func (c *Config) Decode(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("decoding configuration: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields whose env tag names a variable lookup finds.
// List fields take comma separated values.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	return visit(reflect.ValueOf(c).Elem(), func(f reflect.StructField, v reflect.Value) error {
		name := f.Tag.Get("env")
		if name == "" {
			return nil
		}
		value, ok := lookup(name)
		if !ok {
			return nil
		}
		if err := set(v, value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	})
}

// visit calls fn for every leaf field of the struct v, descending into
// nested structs.
func visit(v reflect.Value, fn func(reflect.StructField, reflect.Value) error) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		fv := v.Field(i)
		if fv.Kind() == reflect.Struct {
			if err := visit(fv, fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(f, fv); err != nil {
			return err
		}
	}
	return nil
}

func set(v reflect.Value, s string) error {
	if v.Type() == durationType {
		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		v.SetInt(int64(d))
		return nil
	}

	switch v.Kind() {
	case reflect.String:
		v.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		v.SetInt(n)
	case reflect.Float64:
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		v.SetFloat(n)
	case reflect.Slice:
		if v.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported list type %s", v.Type())
		}
		var items []string
		for _, item := range strings.Split(s, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		v.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported type %s", v.Type())
	}
	return nil
}

type configKey struct{}

// WithConfig returns a context carrying cfg.
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// G returns the configuration in the context, or the defaults when the
// context carries none.
func G(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey{}).(*Config); ok && cfg != nil {
		return cfg
	}
	cfg, err := New()
	if err != nil {
		panic(err)
	}
	return cfg
}
