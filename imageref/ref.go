// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

// Package imageref knows which container base images a generated build
// may use, checks that references are pinned and maps pinned tags to
// content digests.
package imageref

import (
	_ "crypto/sha256"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/opencontainers/go-digest"
)

// ErrUnpinned is returned for references without an explicit tag or digest,
// or pinned to "latest".
var ErrUnpinned = errors.New("image reference is not pinned")

// variantTags name an image flavour rather than a release. They are only
// pinned when the repository itself names the release, as distroless does
// with static-debian12.
var variantTags = map[string]bool{
	"nonroot":       true,
	"debug":         true,
	"debug-nonroot": true,
}

var releaseSuffix = regexp.MustCompile(`-[a-z]+[0-9]+$`)

// Reference is a parsed image reference.
type Reference struct {
	Name   string
	Tag    string
	Digest string
}

// Parse splits an image reference into name, tag and digest without
// validating it. A colon only starts a tag after the last slash, so
// registry ports are kept in the name.
func Parse(value string) Reference {
	value = strings.TrimSpace(value)
	if value == "" {
		return Reference{}
	}

	ref := Reference{}
	if base, dgst, ok := strings.Cut(value, "@"); ok {
		value = base
		ref.Digest = dgst
	}

	lastSlash := strings.LastIndex(value, "/")
	lastColon := strings.LastIndex(value, ":")
	if lastColon > lastSlash {
		ref.Name = value[:lastColon]
		ref.Tag = value[lastColon+1:]
	} else {
		ref.Name = value
	}
	return ref
}

// String reassembles the reference.
func (r Reference) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	if r.Tag != "" {
		b.WriteString(":" + r.Tag)
	}
	if r.Digest != "" {
		b.WriteString("@" + r.Digest)
	}
	return b.String()
}

// Tagged returns name:tag, dropping any digest.
func (r Reference) Tagged() string {
	r.Digest = ""
	return r.String()
}

// CheckPinned verifies that value is a syntactically valid reference with
// an explicit tag other than latest, or with a valid content digest.
func CheckPinned(value string) error {
	ref := Parse(value)
	if ref.Name == "" {
		return fmt.Errorf("%w: empty reference", ErrUnpinned)
	}

	if ref.Digest != "" {
		if _, err := digest.Parse(ref.Digest); err != nil {
			return fmt.Errorf("invalid digest in %q: %w", value, err)
		}
		if _, err := name.NewDigest(ref.Name + "@" + ref.Digest); err != nil {
			return fmt.Errorf("parsing %q: %w", value, err)
		}
	}

	if ref.Tag == "" {
		if ref.Digest != "" {
			return nil
		}
		return fmt.Errorf("%w: %q has no tag", ErrUnpinned, value)
	}
	if _, err := name.NewTag(ref.Tagged()); err != nil {
		return fmt.Errorf("parsing %q: %w", value, err)
	}
	if strings.EqualFold(ref.Tag, "latest") && ref.Digest == "" {
		return fmt.Errorf("%w: %q uses the latest tag", ErrUnpinned, value)
	}
	if variantTags[strings.ToLower(ref.Tag)] && ref.Digest == "" && !releaseSuffix.MatchString(path.Base(ref.Name)) {
		return fmt.Errorf("%w: %q uses the %s tag of a repository without a release", ErrUnpinned, value, ref.Tag)
	}
	return nil
}
