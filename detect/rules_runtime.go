// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package detect

import (
	"strings"

	"stackcraft.sh/evidence"
)

// Release lines that constraints are resolved against, newest first.
var (
	NodeReleases   = []string{"22", "20", "18"}
	PythonReleases = []string{"3.13", "3.12", "3.11", "3.10", "3.9"}
)

type pinSource struct {
	file       string
	key        string
	confidence float64
}

// firstPin claims the first pinned version found among sources,
// truncated to parts components.
func firstPin(sources []pinSource, parts int) func(evidence.Set) []Claim {
	return func(s evidence.Set) []Claim {
		for _, src := range sources {
			raw, sig, ok := rootString(s, src.file, src.key)
			if !ok {
				continue
			}
			if v, ok := truncateVersion(raw, parts); ok {
				return []Claim{NewClaim(FieldRuntimeVersion, v, src.confidence, sig)}
			}
		}
		return nil
	}
}

func constraintVersion(file, key string, supported []string) func(evidence.Set) []Claim {
	return func(s evidence.Set) []Claim {
		raw, sig, ok := rootString(s, file, key)
		if !ok {
			return nil
		}
		if v, ok := resolveConstraint(raw, supported); ok {
			return []Claim{NewClaim(FieldRuntimeVersion, v, 0.8, sig)}
		}
		return nil
	}
}

// javaRelease maps "1.8" to "8" and keeps "17" or "21" as is.
func javaRelease(v string) (string, bool) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "1.")
	return truncateVersion(v, 1)
}

func runtimeRules() []Rule {
	return []Rule{
		RuleFunc("runtime.node.version-file", firstPin([]pinSource{
			{".nvmrc", "version", 0.95},
			{".node-version", "version", 0.95},
			{".tool-versions", "tool.nodejs", 0.95},
		}, 1)),
		RuleFunc("runtime.node.engines", constraintVersion("package.json", "engines.node", NodeReleases)),
		RuleFunc("runtime.python.pinned", firstPin([]pinSource{
			{".python-version", "version", 0.95},
			{".tool-versions", "tool.python", 0.95},
			{"runtime.txt", "version", 0.9},
		}, 2)),
		RuleFunc("runtime.python.requires", func(s evidence.Set) []Claim {
			if claims := constraintVersion("pyproject.toml", "requires-python", PythonReleases)(s); len(claims) > 0 {
				return claims
			}
			raw, sig, ok := rootString(s, "Pipfile", "python_version")
			if !ok {
				return nil
			}
			if v, ok := truncateVersion(raw, 2); ok {
				return []Claim{NewClaim(FieldRuntimeVersion, v, 0.8, sig)}
			}
			return nil
		}),
		RuleFunc("runtime.go.directive", firstPin([]pinSource{
			{"go.mod", "toolchain", 0.95},
			{"go.mod", "go", 0.95},
		}, 2)),
		RuleFunc("runtime.rust.toolchain", firstPin([]pinSource{
			{"rust-toolchain.toml", "version", 0.95},
			{"rust-toolchain", "version", 0.95},
			{".tool-versions", "tool.rust", 0.95},
			{"Cargo.toml", "package.rust-version", 0.9},
		}, 2)),
		RuleFunc("runtime.java.release", func(s evidence.Set) []Claim {
			var candidates []evidence.Signal
			if _, sig, ok := rootString(s, "pom.xml", "java.version"); ok {
				candidates = append(candidates, sig)
			}
			for _, sig := range s.Patterns("java.version") {
				if sig.AtRoot() {
					candidates = append(candidates, sig)
				}
			}
			for _, sig := range candidates {
				if v, ok := javaRelease(sig.Value.String()); ok {
					return []Claim{NewClaim(FieldRuntimeVersion, v, 0.85, sig)}
				}
			}
			return nil
		}),
		RuleFunc("runtime.dotnet.target-framework", func(s evidence.Set) []Claim {
			for _, sig := range s.Fields("targetFramework") {
				v := strings.TrimPrefix(sig.Value.String(), "net")
				if v, ok := truncateVersion(v, 2); ok && strings.Contains(v, ".") {
					return []Claim{NewClaim(FieldRuntimeVersion, v, 0.9, sig)}
				}
			}
			return nil
		}),
	}
}
