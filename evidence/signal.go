// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package evidence

import (
	"cmp"
	"encoding/json"
	"path"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// Kind is the category of an observed fact.
type Kind string

const (
	// KindFile records that a file exists.
	KindFile Kind = "file"
	// KindPattern records a textual pattern match inside a file.
	KindPattern Kind = "pattern"
	// KindField records a value extracted from a structured file.
	KindField Kind = "field"
	// KindUnreadable records a file or directory that could not be read.
	KindUnreadable Kind = "unreadable"
	// KindTruncated records that the scan stopped at its deadline.
	KindTruncated Kind = "truncated"
)

// ValueKind tags the active variant of a Value.
type ValueKind uint8

const (
	ValueNone ValueKind = iota
	ValueString
	ValueNumber
	ValueBool
	ValueList
)

func (k ValueKind) String() string {
	switch k {
	case ValueString:
		return "string"
	case ValueNumber:
		return "number"
	case ValueBool:
		return "bool"
	case ValueList:
		return "list"
	default:
		return "none"
	}
}

// Value is a tagged union of string, number, bool and list of strings.
// The zero Value holds nothing.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	bit  bool
	list []string
}

// String holds a string.
func String(s string) Value { return Value{kind: ValueString, str: s} }

// Number holds a number.
func Number(n float64) Value { return Value{kind: ValueNumber, num: n} }

// Bool holds a boolean.
func Bool(b bool) Value { return Value{kind: ValueBool, bit: b} }

// List holds a copy of items.
func List(items ...string) Value {
	return Value{kind: ValueList, list: slices.Clone(items)}
}

// Kind returns the active variant.
func (v Value) Kind() ValueKind { return v.kind }

// AsString returns the string variant.
func (v Value) AsString() (string, bool) { return v.str, v.kind == ValueString }

// AsNumber returns the number variant.
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == ValueNumber }

// AsBool returns the bool variant.
func (v Value) AsBool() (bool, bool) { return v.bit, v.kind == ValueBool }

// AsList returns a copy of the list variant.
func (v Value) AsList() ([]string, bool) {
	if v.kind != ValueList {
		return nil, false
	}
	return slices.Clone(v.list), true
}

// Contains reports whether a list value holds item, or a string value
// equals it.
func (v Value) Contains(item string) bool {
	switch v.kind {
	case ValueList:
		return slices.Contains(v.list, item)
	case ValueString:
		return v.str == item
	}
	return false
}

// String renders the value canonically. It is also the sort key of the
// value inside a Set.
func (v Value) String() string {
	switch v.kind {
	case ValueString:
		return v.str
	case ValueNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case ValueBool:
		return strconv.FormatBool(v.bit)
	case ValueList:
		return "[" + strings.Join(v.list, ", ") + "]"
	}
	return ""
}

// Equal reports whether both values hold the same variant and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case ValueString:
		return v.str == o.str
	case ValueNumber:
		return v.num == o.num
	case ValueBool:
		return v.bit == o.bit
	case ValueList:
		return slices.Equal(v.list, o.list)
	}
	return true
}

// compare orders two values of the same variant.
func (v Value) compare(o Value) int {
	switch v.kind {
	case ValueNumber:
		return cmp.Compare(v.num, o.num)
	case ValueList:
		return slices.Compare(v.list, o.list)
	}
	return strings.Compare(v.String(), o.String())
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case ValueString:
		return json.Marshal(v.str)
	case ValueNumber:
		return json.Marshal(v.num)
	case ValueBool:
		return json.Marshal(v.bit)
	case ValueList:
		return json.Marshal(v.list)
	}
	return []byte("null"), nil
}

func (v Value) MarshalYAML() (interface{}, error) {
	switch v.kind {
	case ValueString:
		return v.str, nil
	case ValueNumber:
		return v.num, nil
	case ValueBool:
		return v.bit, nil
	case ValueList:
		return v.list, nil
	}
	return nil, nil
}

// Signal is one atomic observed fact about the repository.
type Signal struct {
	Kind Kind `json:"kind" yaml:"kind"`
	// Path is slash-separated and relative to the repository root.
	Path string `json:"path" yaml:"path"`
	// Key names the extracted field or matched pattern.
	Key   string `json:"key,omitempty" yaml:"key,omitempty"`
	Value Value  `json:"value" yaml:"value"`
	// Line is the 1-based line hint, zero when unknown.
	Line int `json:"line,omitempty" yaml:"line,omitempty"`
}

// Base returns the last element of the signal's path.
func (s Signal) Base() string { return path.Base(s.Path) }

// Dir returns the directory of the signal's path, "." at the root.
func (s Signal) Dir() string { return path.Dir(s.Path) }

// AtRoot reports whether the signal's file sits at the repository root.
func (s Signal) AtRoot() bool { return !strings.Contains(s.Path, "/") }

func (s Signal) String() string {
	var b strings.Builder
	b.WriteString(string(s.Kind))
	b.WriteString(" ")
	b.WriteString(s.Path)
	if s.Line > 0 {
		b.WriteString(":")
		b.WriteString(strconv.Itoa(s.Line))
	}
	if s.Key != "" {
		b.WriteString(" ")
		b.WriteString(s.Key)
	}
	if s.Value.Kind() != ValueNone {
		b.WriteString(" = ")
		b.WriteString(s.Value.String())
	}
	return b.String()
}

func fileSignal(p string) Signal { return Signal{Kind: KindFile, Path: p} }

func fieldSignal(p, key string, v Value) Signal {
	return Signal{Kind: KindField, Path: p, Key: key, Value: v}
}

func patternSignal(p, key string, v Value, line int) Signal {
	return Signal{Kind: KindPattern, Path: p, Key: key, Value: v, Line: line}
}

func unreadableSignal(p, reason string) Signal {
	return Signal{Kind: KindUnreadable, Path: p, Value: String(reason)}
}

func compareSignals(a, b Signal) int {
	if c := strings.Compare(a.Path, b.Path); c != 0 {
		return c
	}
	if c := strings.Compare(string(a.Kind), string(b.Kind)); c != 0 {
		return c
	}
	if c := strings.Compare(a.Key, b.Key); c != 0 {
		return c
	}
	if a.Line != b.Line {
		if a.Line < b.Line {
			return -1
		}
		return 1
	}
	if a.Value.Kind() != b.Value.Kind() {
		if a.Value.Kind() < b.Value.Kind() {
			return -1
		}
		return 1
	}
	return a.Value.compare(b.Value)
}

// Set is an immutable, sorted collection of signals.
type Set struct {
	signals []Signal
}

// NewSet sorts and de-duplicates signals into a Set.
func NewSet(signals ...Signal) Set {
	out := slices.Clone(signals)
	slices.SortFunc(out, compareSignals)
	out = slices.CompactFunc(out, func(a, b Signal) bool {
		return compareSignals(a, b) == 0
	})
	return Set{signals: out}
}

// Len returns the number of signals.
func (s Set) Len() int { return len(s.signals) }

// All returns a copy of every signal in order.
func (s Set) All() []Signal { return slices.Clone(s.signals) }

func (s Set) filter(keep func(Signal) bool) []Signal {
	var out []Signal
	for _, sig := range s.signals {
		if keep(sig) {
			out = append(out, sig)
		}
	}
	return out
}

// OfKind returns the signals of one kind.
func (s Set) OfKind(kind Kind) []Signal {
	return s.filter(func(sig Signal) bool { return sig.Kind == kind })
}

// Has reports whether a file exists at exactly p.
func (s Set) Has(p string) bool {
	i := sort.Search(len(s.signals), func(i int) bool {
		return s.signals[i].Path >= p
	})
	for ; i < len(s.signals) && s.signals[i].Path == p; i++ {
		if s.signals[i].Kind == KindFile {
			return true
		}
	}
	return false
}

// HasAny reports whether any of the given root paths exists.
func (s Set) HasAny(paths ...string) bool {
	for _, p := range paths {
		if s.Has(p) {
			return true
		}
	}
	return false
}

// FilesWithExt returns the file signals whose name ends with ext.
func (s Set) FilesWithExt(ext string) []Signal {
	return s.filter(func(sig Signal) bool {
		return sig.Kind == KindFile && path.Ext(sig.Path) == ext
	})
}

// FilesNamed returns the file signals with the given base name, anywhere.
func (s Set) FilesNamed(name string) []Signal {
	return s.filter(func(sig Signal) bool {
		return sig.Kind == KindFile && sig.Base() == name
	})
}

// HasBase reports whether a file with the given base name exists anywhere.
func (s Set) HasBase(name string) bool {
	for _, sig := range s.signals {
		if sig.Kind == KindFile && sig.Base() == name {
			return true
		}
	}
	return false
}

// Files returns every present file path, sorted.
func (s Set) Files() []string {
	var out []string
	for _, sig := range s.signals {
		if sig.Kind == KindFile {
			out = append(out, sig.Path)
		}
	}
	return out
}

// Field returns the field signal for key extracted from p.
func (s Set) Field(p, key string) (Signal, bool) {
	for _, sig := range s.signals {
		if sig.Kind == KindField && sig.Path == p && sig.Key == key {
			return sig, true
		}
	}
	return Signal{}, false
}

// FieldString returns the string value of a field signal.
func (s Set) FieldString(p, key string) (string, bool) {
	sig, ok := s.Field(p, key)
	if !ok {
		return "", false
	}
	return sig.Value.AsString()
}

// Fields returns every field signal named key, across files.
func (s Set) Fields(key string) []Signal {
	return s.filter(func(sig Signal) bool {
		return sig.Kind == KindField && sig.Key == key
	})
}

// FieldsWithPrefix returns field signals whose key starts with prefix.
func (s Set) FieldsWithPrefix(p, prefix string) []Signal {
	return s.filter(func(sig Signal) bool {
		return sig.Kind == KindField && sig.Path == p && strings.HasPrefix(sig.Key, prefix)
	})
}

// Patterns returns every pattern signal named key.
func (s Set) Patterns(key string) []Signal {
	return s.filter(func(sig Signal) bool {
		return sig.Kind == KindPattern && sig.Key == key
	})
}

// PatternValue returns the pattern signals named key whose value equals v.
func (s Set) PatternValue(key, v string) []Signal {
	return s.filter(func(sig Signal) bool {
		return sig.Kind == KindPattern && sig.Key == key && sig.Value.String() == v
	})
}
