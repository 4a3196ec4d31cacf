// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

// Package cmdfactory builds cobra commands from option structs. Exported
// fields tagged with `long` become flags; `short`, `usage`, `default` and
// `env` refine them and `noattribute:"true"` skips a field.
package cmdfactory

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// AnnotationHelpGroup places a command under a help group of its parent.
const AnnotationHelpGroup = "help:group"

// Runnable is implemented by every command's options.
type Runnable interface {
	Run(ctx context.Context, args []string) error
}

// PreRunnable options validate or complete themselves before Run.
type PreRunnable interface {
	Pre(cmd *cobra.Command, args []string) error
}

// New attributes the fields of obj as flags of cmd and wires obj's Pre and
// Run methods.
func New(obj Runnable, cmd cobra.Command) (*cobra.Command, error) {
	c := &cmd
	if err := AttributeFlags(c.Flags(), obj); err != nil {
		return nil, fmt.Errorf("%s: %w", c.Name(), err)
	}

	c.SilenceUsage = true
	c.SilenceErrors = true
	c.DisableFlagsInUseLine = true

	if pre, ok := obj.(PreRunnable); ok {
		c.PreRunE = pre.Pre
	}
	c.RunE = func(cmd *cobra.Command, args []string) error {
		return obj.Run(cmd.Context(), args)
	}
	return c, nil
}

var (
	durationType = reflect.TypeOf(time.Duration(0))
	valueType    = reflect.TypeOf((*pflag.Value)(nil)).Elem()
)

// AttributeFlags registers a flag for every tagged field of the struct obj
// points to. A field's current value, when not zero, wins over its
// `default` tag; a set `env` variable wins over both.
func AttributeFlags(fs *pflag.FlagSet, obj interface{}) error {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("expected pointer to struct, got %T", obj)
	}
	return attribute(fs, v.Elem())
}

func attribute(fs *pflag.FlagSet, v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || f.Tag.Get("noattribute") == "true" {
			continue
		}
		fv := v.Field(i)

		if fv.Kind() == reflect.Struct && !fv.Addr().Type().Implements(valueType) {
			if err := attribute(fs, fv); err != nil {
				return err
			}
			continue
		}

		long := f.Tag.Get("long")
		if long == "" {
			continue
		}
		if fs.Lookup(long) != nil {
			return fmt.Errorf("flag --%s defined twice", long)
		}
		short := f.Tag.Get("short")
		usage := f.Tag.Get("usage")

		if fv.IsZero() {
			if def := f.Tag.Get("default"); def != "" {
				if err := setValue(fv, def); err != nil {
					return fmt.Errorf("default of --%s: %w", long, err)
				}
			}
		}
		if name := f.Tag.Get("env"); name != "" {
			if env, ok := os.LookupEnv(name); ok {
				if err := setValue(fv, env); err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
			}
		}

		if err := register(fs, fv, long, short, usage); err != nil {
			return fmt.Errorf("--%s: %w", long, err)
		}
	}
	return nil
}

func register(fs *pflag.FlagSet, fv reflect.Value, long, short, usage string) error {
	switch p := fv.Addr().Interface().(type) {
	case pflag.Value:
		fs.VarP(p, long, short, usage)
		return nil
	case *time.Duration:
		fs.DurationVarP(p, long, short, *p, usage)
		return nil
	}

	if fv.Kind() == reflect.Pointer && fv.Type().Implements(valueType) {
		if fv.IsNil() {
			return fmt.Errorf("nil flag value")
		}
		fs.VarP(fv.Interface().(pflag.Value), long, short, usage)
		return nil
	}

	switch p := fv.Addr().Interface().(type) {
	case *string:
		fs.StringVarP(p, long, short, *p, usage)
	case *bool:
		fs.BoolVarP(p, long, short, *p, usage)
	case *int:
		fs.IntVarP(p, long, short, *p, usage)
	case *int64:
		fs.Int64VarP(p, long, short, *p, usage)
	case *uint64:
		fs.Uint64VarP(p, long, short, *p, usage)
	case *float64:
		fs.Float64VarP(p, long, short, *p, usage)
	case *[]string:
		fs.StringSliceVarP(p, long, short, *p, usage)
	case *map[string]string:
		fs.StringToStringVarP(p, long, short, *p, usage)
	default:
		return fmt.Errorf("unsupported field type %s", fv.Type())
	}
	return nil
}

// setValue parses s into the field fv.
func setValue(fv reflect.Value, s string) error {
	if fv.Kind() == reflect.Pointer && fv.Type().Implements(valueType) {
		if fv.IsNil() {
			return nil
		}
		return fv.Interface().(pflag.Value).Set(s)
	}
	if p, ok := fv.Addr().Interface().(pflag.Value); ok {
		return p.Set(s)
	}
	if fv.Type() == durationType {
		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		fv.SetInt(int64(d))
		return nil
	}

	switch fv.Kind() {
	case reflect.String:
		fv.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		fv.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		fv.SetInt(n)
	case reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return err
		}
		fv.SetUint(n)
	case reflect.Float64:
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		fv.SetFloat(n)
	case reflect.Slice:
		if fv.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported type %s", fv.Type())
		}
		fv.Set(reflect.ValueOf(strings.Split(s, ",")))
	case reflect.Map:
		m := map[string]string{}
		for _, kv := range strings.Split(s, ",") {
			k, v, _ := strings.Cut(kv, "=")
			m[k] = v
		}
		fv.Set(reflect.ValueOf(m))
	default:
		return fmt.Errorf("unsupported type %s", fv.Type())
	}
	return nil
}

// ApplyHelpGroups assigns the children of cmd to the given groups by their
// AnnotationHelpGroup annotation.
func ApplyHelpGroups(cmd *cobra.Command, groups ...*cobra.Group) {
	cmd.AddGroup(groups...)
	for _, child := range cmd.Commands() {
		if id, ok := child.Annotations[AnnotationHelpGroup]; ok {
			child.GroupID = id
		}
	}
}
