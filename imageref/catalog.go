// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package imageref

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Role is the part a base image plays in a multi-stage build.
type Role string

const (
	RoleBuild Role = "build"
	RoleFinal Role = "final"
)

// Image is a catalog base image resolved for one runtime version.
type Image struct {
	Family  string `json:"family" yaml:"family"`
	Role    Role   `json:"role" yaml:"role"`
	Ref     string `json:"ref" yaml:"ref"`
	Version string `json:"version" yaml:"version"`
	// Shell is false for images without /bin/sh, such as distroless.
	Shell bool `json:"shell" yaml:"shell"`
	// User is the unprivileged account the image ships with, if any.
	User string `json:"user,omitempty" yaml:"user,omitempty"`
}

type template struct {
	// repository names the OS release when tag is a flavour such as
	// nonroot, since distroless publishes no versioned tags.
	repository string
	tag        string
	shell      bool
	user       string
	// userSince is the first major version that ships user.
	userSince int
}

func (t template) image(family string, role Role, version string) Image {
	img := Image{
		Family:  family,
		Role:    role,
		Ref:     t.repository + ":" + strings.ReplaceAll(t.tag, "{version}", version),
		Version: version,
		Shell:   t.shell,
		User:    t.user,
	}
	if t.userSince > 0 && majorOf(version) < t.userSince {
		img.User = ""
	}
	return img
}

type variant struct {
	build template
	final template
}

// DefaultVersions is the runtime version used when a profile has none.
var DefaultVersions = map[string]string{
	"node":   "20",
	"python": "3.12",
	"go":     "1.22",
	"rust":   "1.79",
	"java":   "21",
	"dotnet": "8.0",
}

var builtin = map[string]variant{
	"node": {
		build: template{repository: "node", tag: "{version}-bookworm-slim", shell: true, user: "node"},
		final: template{repository: "node", tag: "{version}-bookworm-slim", shell: true, user: "node"},
	},
	"python": {
		build: template{repository: "python", tag: "{version}-slim", shell: true},
		final: template{repository: "python", tag: "{version}-slim", shell: true},
	},
	"go": {
		build: template{repository: "golang", tag: "{version}-bookworm", shell: true},
		final: template{repository: "gcr.io/distroless/static-debian12", tag: "nonroot", user: "65532:65532"},
	},
	"rust": {
		build: template{repository: "rust", tag: "{version}-slim-bookworm", shell: true},
		final: template{repository: "gcr.io/distroless/cc-debian12", tag: "nonroot", user: "65532:65532"},
	},
	"java": {
		build: template{repository: "maven", tag: "3.9-eclipse-temurin-{version}", shell: true},
		final: template{repository: "eclipse-temurin", tag: "{version}-jre", shell: true},
	},
	"java/gradle": {
		build: template{repository: "gradle", tag: "8.10-jdk{version}", shell: true},
		final: template{repository: "eclipse-temurin", tag: "{version}-jre", shell: true},
	},
	"dotnet": {
		build: template{repository: "mcr.microsoft.com/dotnet/sdk", tag: "{version}", shell: true},
		final: template{repository: "mcr.microsoft.com/dotnet/aspnet", tag: "{version}", shell: true, user: "app", userSince: 8},
	},
}

var versionPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+){0,2}$`)

// Catalog maps a language family and role to a pinned base image. It is
// immutable.
type Catalog struct {
	variants map[string]variant
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return &Catalog{variants: builtin}
}

// Families lists the language families the catalog covers.
func (c *Catalog) Families() []string {
	out := []string{}
	for k := range c.variants {
		if !strings.Contains(k, "/") {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Lookup returns the base image for family in role. tool selects a build
// tool specific variant (for example "gradle") when one exists. An empty
// version selects the family's default.
func (c *Catalog) Lookup(family, tool, version string, role Role) (Image, error) {
	v, ok := c.variants[family+"/"+tool]
	if !ok || tool == "" {
		v, ok = c.variants[family]
	}
	if !ok {
		return Image{}, fmt.Errorf("no base image for %q", family)
	}

	if version == "" {
		version = DefaultVersions[family]
	}
	if !versionPattern.MatchString(version) {
		return Image{}, fmt.Errorf("invalid %s version %q", family, version)
	}

	switch role {
	case RoleBuild:
		return v.build.image(family, role, version), nil
	case RoleFinal:
		return v.final.image(family, role, version), nil
	}
	return Image{}, fmt.Errorf("unknown role %q", role)
}

// All returns every catalog image at its default version, sorted by
// reference. Used to seed a digest lock.
func (c *Catalog) All() []Image {
	seen := map[string]bool{}
	var out []Image
	for key, v := range c.variants {
		family, _, _ := strings.Cut(key, "/")
		version := DefaultVersions[family]
		for _, img := range []Image{v.build.image(family, RoleBuild, version), v.final.image(family, RoleFinal, version)} {
			if !seen[img.Ref] {
				seen[img.Ref] = true
				out = append(out, img)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref < out[j].Ref })
	return out
}

func majorOf(version string) int {
	major, _, _ := strings.Cut(version, ".")
	n, err := strconv.Atoi(major)
	if err != nil {
		return 0
	}
	return n
}
