// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package imageref

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/opencontainers/go-digest"
)

// LockFileEnv names a lock file that replaces the embedded default.
const LockFileEnv = "STACKCRAFT_IMAGE_LOCK"

const lockSchemaVersion = 1

// ErrNotLocked is returned by Pin for a reference the lock has no digest for.
var ErrNotLocked = errors.New("no digest locked")

//go:embed lock.json
var embeddedLockJSON []byte

type lockFile struct {
	SchemaVersion int                  `json:"schema_version"`
	Images        map[string]lockEntry `json:"images"`
}

type lockEntry struct {
	Digest string `json:"digest"`
}

// Lock maps pinned name:tag references to content digests. A Lock is
// read-only once loaded; With returns a modified copy.
type Lock struct {
	images map[string]string
}

// NewLock returns an empty lock.
func NewLock() *Lock {
	return &Lock{images: map[string]string{}}
}

// ReadLock decodes a lock document and validates every digest.
func ReadLock(r io.Reader) (*Lock, error) {
	var file lockFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decoding image lock: %w", err)
	}
	if file.SchemaVersion != lockSchemaVersion {
		return nil, fmt.Errorf("unsupported image lock schema version %d", file.SchemaVersion)
	}

	lock := NewLock()
	for ref, entry := range file.Images {
		d, err := digest.Parse(strings.TrimSpace(entry.Digest))
		if err != nil {
			return nil, fmt.Errorf("image lock entry %q: %w", ref, err)
		}
		lock.images[Parse(ref).Tagged()] = d.String()
	}
	return lock, nil
}

// LoadLock reads the lock file at path.
func LoadLock(path string) (*Lock, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lock, err := ReadLock(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return lock, nil
}

var (
	defaultLockOnce sync.Once
	defaultLock     *Lock
	defaultLockErr  error
)

// DefaultLock returns the lock named by $STACKCRAFT_IMAGE_LOCK, or the
// embedded one. It is loaded once per process.
func DefaultLock() (*Lock, error) {
	defaultLockOnce.Do(func() {
		if override := strings.TrimSpace(os.Getenv(LockFileEnv)); override != "" {
			defaultLock, defaultLockErr = LoadLock(override)
			return
		}
		defaultLock, defaultLockErr = ReadLock(bytes.NewReader(embeddedLockJSON))
	})
	return defaultLock, defaultLockErr
}

// Len returns the number of locked references.
func (l *Lock) Len() int { return len(l.images) }

// Digest returns the digest locked for ref.
func (l *Lock) Digest(ref string) (string, bool) {
	d, ok := l.images[Parse(ref).Tagged()]
	return d, ok
}

// Pin returns ref as name:tag@digest. A reference that already carries a
// digest is returned as is.
func (l *Lock) Pin(ref string) (string, error) {
	parsed := Parse(ref)
	if parsed.Digest != "" {
		return parsed.String(), nil
	}
	d, ok := l.Digest(ref)
	if !ok {
		return "", fmt.Errorf("%w for %q", ErrNotLocked, ref)
	}
	parsed.Digest = d
	return parsed.String(), nil
}

// With returns a copy of the lock with ref mapped to dgst.
func (l *Lock) With(ref, dgst string) (*Lock, error) {
	d, err := digest.Parse(dgst)
	if err != nil {
		return nil, fmt.Errorf("digest for %q: %w", ref, err)
	}
	out := &Lock{images: maps.Clone(l.images)}
	out.images[Parse(ref).Tagged()] = d.String()
	return out, nil
}

// References lists the locked references in order.
func (l *Lock) References() []string {
	out := make([]string, 0, len(l.images))
	for ref := range l.images {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}

// Write encodes the lock as indented JSON.
func (l *Lock) Write(w io.Writer) error {
	file := lockFile{SchemaVersion: lockSchemaVersion, Images: map[string]lockEntry{}}
	for ref, d := range l.images {
		file.Images[ref] = lockEntry{Digest: d}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(file)
}
