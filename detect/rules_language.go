// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package detect

import (
	"path"
	"slices"

	"stackcraft.sh/evidence"
)

// Languages recognised by the built-in rules.
const (
	LanguageGo         = "go"
	LanguagePython     = "python"
	LanguageJavaScript = "javascript"
	LanguageTypeScript = "typescript"
	LanguageRust       = "rust"
	LanguageJava       = "java"
	LanguageDotnet     = "dotnet"
)

// Family returns the runtime family a language runs on. Rule ids are
// namespaced by family, e.g. "runtime.node.engines".
func Family(language string) string {
	switch language {
	case LanguageJavaScript, LanguageTypeScript:
		return "node"
	}
	return language
}

// manifestLanguage claims lang at confidence when any of files exists.
func manifestLanguage(id, lang string, confidence float64, files ...string) Rule {
	return RuleFunc(id, func(s evidence.Set) []Claim {
		for _, f := range files {
			if s.Has(f) {
				return []Claim{NewClaim(FieldLanguage, lang, confidence, fileRef(f))}
			}
		}
		return nil
	})
}

var sourceExtensions = map[string]string{
	".go":   LanguageGo,
	".py":   LanguagePython,
	".js":   LanguageJavaScript,
	".mjs":  LanguageJavaScript,
	".cjs":  LanguageJavaScript,
	".ts":   LanguageTypeScript,
	".tsx":  LanguageTypeScript,
	".rs":   LanguageRust,
	".java": LanguageJava,
	".kt":   LanguageJava,
	".cs":   LanguageDotnet,
}

func languageRules() []Rule {
	return []Rule{
		manifestLanguage("language.go.gomod", LanguageGo, 0.9, "go.mod"),
		RuleFunc("language.python.requirements", func(s evidence.Set) []Claim {
			if sig, ok := hasRequirementsFile(s); ok {
				return []Claim{NewClaim(FieldLanguage, LanguagePython, 0.9, sig)}
			}
			return nil
		}),
		manifestLanguage("language.python.pyproject", LanguagePython, 0.9, "pyproject.toml", "Pipfile", "setup.py"),
		manifestLanguage("language.javascript.package-json", LanguageJavaScript, 0.8, "package.json"),
		RuleFunc("language.typescript.tsconfig", func(s evidence.Set) []Claim {
			if s.Has("tsconfig.json") {
				return []Claim{NewClaim(FieldLanguage, LanguageTypeScript, 0.9, fileRef("tsconfig.json"))}
			}
			if sig, ok := nodeDependency(s, "typescript"); ok {
				return []Claim{NewClaim(FieldLanguage, LanguageTypeScript, 0.9, sig)}
			}
			return nil
		}),
		manifestLanguage("language.rust.cargo", LanguageRust, 0.9, "Cargo.toml"),
		manifestLanguage("language.java.build-file", LanguageJava, 0.9, "pom.xml", "build.gradle", "build.gradle.kts"),
		RuleFunc("language.dotnet.project", func(s evidence.Set) []Claim {
			for _, ext := range []string{".csproj", ".sln"} {
				if files := s.FilesWithExt(ext); len(files) > 0 {
					return []Claim{NewClaim(FieldLanguage, LanguageDotnet, 0.9, files[0])}
				}
			}
			return nil
		}),
		RuleFunc("language.source-extensions", sourceMajority),
	}
}

// sourceMajority claims the language with the most source files. Every
// language sharing the top count is claimed.
func sourceMajority(s evidence.Set) []Claim {
	counts := map[string]int{}
	first := map[string]evidence.Signal{}
	for _, sig := range s.OfKind(evidence.KindFile) {
		lang, ok := sourceExtensions[path.Ext(sig.Path)]
		if !ok {
			continue
		}
		if counts[lang] == 0 {
			first[lang] = sig
		}
		counts[lang]++
	}

	best := 0
	for _, n := range counts {
		best = max(best, n)
	}
	if best == 0 {
		return nil
	}

	var langs []string
	for lang, n := range counts {
		if n == best {
			langs = append(langs, lang)
		}
	}
	slices.Sort(langs)

	claims := make([]Claim, 0, len(langs))
	for _, lang := range langs {
		claims = append(claims, NewClaim(FieldLanguage, lang, 0.4, first[lang]))
	}
	return claims
}
