// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package detect

import (
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"stackcraft.sh/evidence"
)

// OutputDir is where compiled-language build commands leave their
// artifacts inside the build stage.
const OutputDir = "/out"

// The helpers below read signals only. Several rules share them so that
// related fields agree without any rule observing another's claims.

func rootString(s evidence.Set, file, key string) (string, evidence.Signal, bool) {
	sig, ok := s.Field(file, key)
	if !ok {
		return "", evidence.Signal{}, false
	}
	v, ok := sig.Value.AsString()
	if !ok || strings.TrimSpace(v) == "" {
		return "", evidence.Signal{}, false
	}
	return strings.TrimSpace(v), sig, true
}

func fileRef(p string) evidence.Signal {
	return evidence.Signal{Kind: evidence.KindFile, Path: p}
}

// listHas looks for item in the list field key of each given file.
func listHas(s evidence.Set, item string, file string, keys ...string) (evidence.Signal, bool) {
	for _, key := range keys {
		if sig, ok := s.Field(file, key); ok && sig.Value.Contains(item) {
			return sig, true
		}
	}
	return evidence.Signal{}, false
}

func nodeDependency(s evidence.Set, name string) (evidence.Signal, bool) {
	return listHas(s, name, "package.json", "dependencies", "devDependencies")
}

func pythonDependency(s evidence.Set, name string) (evidence.Signal, bool) {
	for _, sig := range s.Fields("requirements") {
		if sig.AtRoot() && sig.Value.Contains(name) {
			return sig, true
		}
	}
	if sig, ok := listHas(s, name, "pyproject.toml", "dependencies"); ok {
		return sig, true
	}
	return listHas(s, name, "Pipfile", "dependencies")
}

func goRequire(s evidence.Set, module string) (evidence.Signal, bool) {
	sig, ok := s.Field("go.mod", "require")
	if !ok {
		return evidence.Signal{}, false
	}
	mods, _ := sig.Value.AsList()
	for _, mod := range mods {
		if mod == module || strings.HasPrefix(mod, module+"/") {
			return sig, true
		}
	}
	return evidence.Signal{}, false
}

func cargoDependency(s evidence.Set, name string) (evidence.Signal, bool) {
	return listHas(s, name, "Cargo.toml", "dependencies")
}

func hasRequirementsFile(s evidence.Set) (evidence.Signal, bool) {
	for _, p := range s.Files() {
		if !strings.Contains(p, "/") && strings.HasPrefix(p, "requirements") && strings.HasSuffix(p, ".txt") {
			return fileRef(p), true
		}
	}
	return evidence.Signal{}, false
}

var nodeLockfiles = []struct {
	file    string
	manager string
}{
	{"pnpm-lock.yaml", "pnpm"},
	{"yarn.lock", "yarn"},
	{"bun.lockb", "bun"},
	{"bun.lock", "bun"},
	{"package-lock.json", "npm"},
	{"npm-shrinkwrap.json", "npm"},
}

// nodePackageManager picks the manager used to run package scripts: the
// first lockfile present, then the packageManager field, then npm.
func nodePackageManager(s evidence.Set) (string, []evidence.Signal) {
	for _, lock := range nodeLockfiles {
		if s.Has(lock.file) {
			return lock.manager, []evidence.Signal{fileRef(lock.file)}
		}
	}
	if pm, sig, ok := rootString(s, "package.json", "packageManager"); ok {
		if name := managerName(pm); name != "" {
			return name, []evidence.Signal{sig}
		}
	}
	return "npm", nil
}

// managerName strips the version from a corepack "name@version" spec.
func managerName(spec string) string {
	name, _, _ := strings.Cut(strings.TrimSpace(spec), "@")
	switch name {
	case "npm", "yarn", "pnpm", "bun":
		return name
	}
	return ""
}

func nodeRunScript(manager, script string) string {
	if manager == "yarn" {
		return "yarn " + script
	}
	return manager + " run " + script
}

type goMain struct {
	pkg string
	sig evidence.Signal
}

// goMainPackages lists directories holding "package main", as go build
// package paths ("." or "./cmd/x").
func goMainPackages(s evidence.Set) []goMain {
	var out []goMain
	seen := map[string]bool{}
	for _, sig := range s.Patterns(evidence.PatternPackageMain) {
		if path.Ext(sig.Path) != ".go" || strings.HasSuffix(sig.Path, "_test.go") {
			continue
		}
		dir := sig.Dir()
		if seen[dir] {
			continue
		}
		seen[dir] = true
		pkg := "."
		if dir != "." {
			pkg = "./" + dir
		}
		out = append(out, goMain{pkg: pkg, sig: sig})
	}
	slices.SortFunc(out, func(a, b goMain) int { return strings.Compare(a.pkg, b.pkg) })
	return out
}

func envPort(s evidence.Set) (string, evidence.Signal, bool) {
	for _, file := range []string{".env", ".env.example"} {
		if v, sig, ok := rootString(s, file, "env.PORT"); ok && validPort(v) {
			return v, sig, true
		}
	}
	return "", evidence.Signal{}, false
}

func validPort(v string) bool {
	n, err := strconv.Atoi(v)
	return err == nil && n > 0 && n < 65536
}

// pythonModule turns "app/main.py" into "app.main".
func pythonModule(p string) string {
	return strings.ReplaceAll(strings.TrimSuffix(p, ".py"), "/", ".")
}

var numericVersion = regexp.MustCompile(`^\d+(?:\.\d+)*$`)

// truncateVersion keeps the first parts components of a numeric version.
func truncateVersion(v string, parts int) (string, bool) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if !numericVersion.MatchString(v) {
		return "", false
	}
	fields := strings.Split(v, ".")
	if len(fields) > parts {
		fields = fields[:parts]
	}
	return strings.Join(fields, "."), true
}

var (
	versionLiteral  = regexp.MustCompile(`\d+(?:\.\d+){0,2}`)
	pepCompatible   = regexp.MustCompile(`~=\s*(\d+(?:\.\d+)*)`)
	pepDoubleEquals = regexp.MustCompile(`===?`)
)

// normalizeConstraint rewrites the PEP 440 operators semver does not know.
func normalizeConstraint(c string) string {
	c = pepCompatible.ReplaceAllStringFunc(c, func(m string) string {
		v := strings.TrimSpace(strings.TrimPrefix(m, "~="))
		if strings.Count(v, ".") <= 1 {
			return "^" + v
		}
		return "~" + v
	})
	return pepDoubleEquals.ReplaceAllString(c, "=")
}

// resolveConstraint picks the newest supported release line satisfying
// constraint. supported is ordered newest first and each entry has the
// same number of components. Versions mentioned in the constraint are
// tried last so narrow ranges still resolve.
func resolveConstraint(constraint string, supported []string) (string, bool) {
	c, err := semver.NewConstraint(normalizeConstraint(constraint))
	if err != nil || len(supported) == 0 {
		return "", false
	}
	parts := strings.Count(supported[0], ".") + 1

	for _, line := range supported {
		probe := line + strings.Repeat(".99", 3-parts)
		if v, err := semver.NewVersion(probe); err == nil && c.Check(v) {
			return line, true
		}
	}
	for _, literal := range versionLiteral.FindAllString(constraint, -1) {
		v, err := semver.NewVersion(literal)
		if err != nil || !c.Check(v) {
			continue
		}
		if line, ok := truncateVersion(literal, parts); ok {
			return line, true
		}
	}
	return "", false
}
