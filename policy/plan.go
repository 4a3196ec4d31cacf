// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package policy

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"stackcraft.sh/detect"
	"stackcraft.sh/diag"
	"stackcraft.sh/imageref"
	"stackcraft.sh/profile"
)

// Stage names used by the built-in rules.
const (
	StageBuild = "build"
	StageFinal = "final"
)

// BuildDir is the working directory of the build stage.
const BuildDir = "/src"

// ErrUnsupportedLanguage is returned when the profile's language has no
// base image.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Plan is the read-only view every rule is evaluated against: the profile
// plus the facts derived from it and the configuration.
type Plan struct {
	Profile *profile.StackProfile
	Config  Config

	Language string
	// Family is the runtime family, "node" for JavaScript and TypeScript.
	Family string
	// Tool is the package manager, defaulted per family when the profile
	// has none.
	Tool string
	// Version is the runtime version used for base images.
	Version string

	MultiStage bool
	Build      imageref.Image
	Final      imageref.Image

	// User is the account the final stage runs as.
	User string
	// CreateUser is set when the final base image has no such account.
	CreateUser bool

	files map[string]bool
	lock  *imageref.Lock
}

var defaultTools = map[string]string{
	"node":   detect.ManagerNPM,
	"python": detect.ManagerPip,
	"go":     detect.ManagerGoMod,
	"rust":   detect.ManagerCargo,
	"java":   detect.ManagerMaven,
	"dotnet": detect.ManagerDotnet,
}

// NewPlan derives a plan from a profile. Diagnostics report profile values
// the plan had to ignore.
func NewPlan(p *profile.StackProfile, cfg Config, catalog *imageref.Catalog) (*Plan, diag.List, error) {
	if catalog == nil {
		catalog = imageref.Default()
	}
	if cfg.Workdir == "" {
		cfg.Workdir = DefaultConfig().Workdir
	}

	plan := &Plan{
		Profile:  p,
		Config:   cfg,
		Language: p.Value(detect.FieldLanguage),
		files:    citedFiles(p),
	}
	plan.Family = detect.Family(plan.Language)
	if plan.Language == "" {
		return nil, nil, fmt.Errorf("%w: no language", ErrUnsupportedLanguage)
	}
	if _, ok := defaultTools[plan.Family]; !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, plan.Language)
	}

	var diags diag.List

	plan.Tool = defaultTools[plan.Family]
	if pm := p.Value(detect.FieldPackageManager); pm != "" {
		if slices.Contains(detect.ManagersFor(plan.Language), pm) {
			plan.Tool = pm
		} else {
			diags = append(diags, diag.Info(diag.UnresolvedField, "policy",
				"package manager %q does not serve %s; using %s", pm, plan.Language, plan.Tool))
		}
	}

	if rv, ok := p.Get(detect.FieldRuntimeVersion); ok {
		if strings.HasPrefix(rv.Rule, "runtime."+plan.Family+".") {
			plan.Version = rv.Value
		} else {
			diags = append(diags, diag.Info(diag.UnresolvedField, "policy",
				"runtime version %s from %s does not apply to %s", rv.Value, rv.Rule, plan.Language))
		}
	}

	switch plan.Family {
	case "go", "rust", "java", "dotnet":
		plan.MultiStage = true
	case "node":
		plan.MultiStage = plan.Language == detect.LanguageTypeScript || p.Has(detect.FieldBuildCommand)
	}

	var err error
	if plan.MultiStage {
		if plan.Build, diags, err = plan.lookup(catalog, imageref.RoleBuild, diags); err != nil {
			return nil, nil, err
		}
	}
	if plan.Final, diags, err = plan.lookup(catalog, imageref.RoleFinal, diags); err != nil {
		return nil, nil, err
	}
	if plan.Version == "" {
		plan.Version = plan.Final.Version
	}

	switch {
	case cfg.User != "":
		plan.User = cfg.User
		plan.CreateUser = plan.Final.User != cfg.User
	case plan.Final.User != "":
		plan.User = plan.Final.User
	default:
		plan.User = DefaultUser
		plan.CreateUser = true
	}

	return plan, diags, nil
}

// lookup resolves the catalog image for role, falling back to the family
// default version when the detected one cannot be used, then applies any
// configured override.
func (p *Plan) lookup(catalog *imageref.Catalog, role imageref.Role, diags diag.List) (imageref.Image, diag.List, error) {
	img, err := catalog.Lookup(p.Family, p.Tool, p.Version, role)
	if err != nil && p.Version != "" {
		diags = append(diags, diag.Info(diag.UnresolvedField, "policy",
			"runtime version %q has no %s image; using the default", p.Version, p.Family))
		p.Version = ""
		img, err = catalog.Lookup(p.Family, p.Tool, "", role)
	}
	if err != nil {
		return imageref.Image{}, diags, fmt.Errorf("%w: %v", ErrUnsupportedLanguage, err)
	}

	key := p.Family
	if role == imageref.RoleBuild {
		key += "/build"
	}
	if ref, ok := p.Config.BaseImages[key]; ok {
		img.Ref = ref
		if role == imageref.RoleFinal {
			// Nothing is known about an override beyond its name.
			img.Shell = true
			img.User = ""
		}
	}
	return img, diags, nil
}

// citedFiles collects every path cited by a claim in the profile.
func citedFiles(p *profile.StackProfile) map[string]bool {
	files := map[string]bool{}
	for _, f := range detect.Fields() {
		for _, r := range p.All(f) {
			for _, c := range r.Claims {
				for _, sig := range c.Signals {
					files[sig.Path] = true
				}
			}
		}
	}
	return files
}

// Cites reports whether the profile's provenance mentions path.
func (p *Plan) Cites(path string) bool { return p.files[path] }

// BuildStage returns the stage dependencies are installed in.
func (p *Plan) BuildStage() string {
	if p.MultiStage {
		return StageBuild
	}
	return StageFinal
}

// Pin applies the configured pinning mode to ref. A reference the lock
// has no digest for is returned unchanged.
func (p *Plan) Pin(ref string) string {
	if p.Config.BaseImagePinning != PinDigest || p.lock == nil {
		return ref
	}
	if pinned, err := p.lock.Pin(ref); err == nil {
		return pinned
	}
	return ref
}

// Workdir of the final stage.
func (p *Plan) Workdir() string { return p.Config.Workdir }

// Value is shorthand for the resolved profile value of f.
func (p *Plan) Value(f detect.Field) string { return p.Profile.Value(f) }

// accountName is the name given to a created account: the user part of
// User when it is a name, "app" when it is numeric.
func (p *Plan) accountName() string {
	name, _, _ := strings.Cut(p.User, ":")
	if _, err := strconv.Atoi(name); err == nil {
		return "app"
	}
	return name
}

// ids returns the numeric uid and gid of User, empty when User is a name.
func (p *Plan) ids() (string, string) {
	uid, gid, found := strings.Cut(p.User, ":")
	if _, err := strconv.Atoi(uid); err != nil {
		return "", ""
	}
	if !found {
		gid = uid
	}
	if _, err := strconv.Atoi(gid); err != nil {
		return uid, ""
	}
	return uid, gid
}
