// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package detect

import (
	"fmt"
	"path"
	"strings"

	"stackcraft.sh/evidence"
)

// Package managers recognised by the built-in rules.
const (
	ManagerNPM    = "npm"
	ManagerYarn   = "yarn"
	ManagerPNPM   = "pnpm"
	ManagerBun    = "bun"
	ManagerPip    = "pip"
	ManagerPoetry = "poetry"
	ManagerPipenv = "pipenv"
	ManagerUV     = "uv"
	ManagerGoMod  = "gomod"
	ManagerCargo  = "cargo"
	ManagerMaven  = "maven"
	ManagerGradle = "gradle"
	ManagerDotnet = "dotnet"
)

// ManagersFor lists the package managers that can serve language.
func ManagersFor(language string) []string {
	switch Family(language) {
	case "node":
		return []string{ManagerNPM, ManagerYarn, ManagerPNPM, ManagerBun}
	case LanguagePython:
		return []string{ManagerPip, ManagerPoetry, ManagerPipenv, ManagerUV}
	case LanguageGo:
		return []string{ManagerGoMod}
	case LanguageRust:
		return []string{ManagerCargo}
	case LanguageJava:
		return []string{ManagerMaven, ManagerGradle}
	case LanguageDotnet:
		return []string{ManagerDotnet}
	}
	return nil
}

type fileManager struct {
	file       string
	manager    string
	confidence float64
}

func filesToManagers(table []fileManager) func(evidence.Set) []Claim {
	return func(s evidence.Set) []Claim {
		var claims []Claim
		for _, entry := range table {
			if s.Has(entry.file) {
				claims = append(claims, NewClaim(FieldPackageManager, entry.manager, entry.confidence, fileRef(entry.file)))
			}
		}
		return claims
	}
}

func packageManagerRules() []Rule {
	var nodeLocks []fileManager
	for _, lock := range nodeLockfiles {
		nodeLocks = append(nodeLocks, fileManager{lock.file, lock.manager, 0.95})
	}

	return []Rule{
		RuleFunc("package-manager.node.lockfile", filesToManagers(nodeLocks)),
		RuleFunc("package-manager.node.field", func(s evidence.Set) []Claim {
			spec, sig, ok := rootString(s, "package.json", "packageManager")
			if !ok {
				return nil
			}
			if name := managerName(spec); name != "" {
				return []Claim{NewClaim(FieldPackageManager, name, 0.9, sig)}
			}
			return nil
		}),
		RuleFunc("package-manager.python.lockfile", filesToManagers([]fileManager{
			{"poetry.lock", ManagerPoetry, 0.95},
			{"Pipfile.lock", ManagerPipenv, 0.95},
			{"uv.lock", ManagerUV, 0.95},
		})),
		RuleFunc("package-manager.python.manifest", func(s evidence.Set) []Claim {
			var claims []Claim
			if sig, ok := s.Field("pyproject.toml", "tool.poetry"); ok {
				claims = append(claims, NewClaim(FieldPackageManager, ManagerPoetry, 0.8, sig))
			}
			if s.Has("Pipfile") {
				claims = append(claims, NewClaim(FieldPackageManager, ManagerPipenv, 0.8, fileRef("Pipfile")))
			}
			if sig, ok := hasRequirementsFile(s); ok {
				claims = append(claims, NewClaim(FieldPackageManager, ManagerPip, 0.7, sig))
			}
			return claims
		}),
		RuleFunc("package-manager.go.modules", filesToManagers([]fileManager{
			{"go.mod", ManagerGoMod, 0.9},
		})),
		RuleFunc("package-manager.rust.cargo", filesToManagers([]fileManager{
			{"Cargo.toml", ManagerCargo, 0.9},
		})),
		RuleFunc("package-manager.java.build-tool", func(s evidence.Set) []Claim {
			var claims []Claim
			if tool, sigs := javaBuildTool(s, ManagerMaven); tool != "" {
				claims = append(claims, NewClaim(FieldPackageManager, ManagerMaven, wrapperConfidence(tool), sigs...))
			}
			if tool, sigs := javaBuildTool(s, ManagerGradle); tool != "" {
				claims = append(claims, NewClaim(FieldPackageManager, ManagerGradle, wrapperConfidence(tool), sigs...))
			}
			return claims
		}),
		RuleFunc("package-manager.dotnet.sdk", func(s evidence.Set) []Claim {
			if files := s.FilesWithExt(".csproj"); len(files) > 0 {
				return []Claim{NewClaim(FieldPackageManager, ManagerDotnet, 0.9, files[0])}
			}
			return nil
		}),
	}
}

func wrapperConfidence(tool string) float64 {
	if strings.HasPrefix(tool, "./") {
		return 0.95
	}
	return 0.9
}

// javaBuildTool returns the command that drives manager's build, the
// project wrapper when one is checked in.
func javaBuildTool(s evidence.Set, manager string) (string, []evidence.Signal) {
	switch manager {
	case ManagerMaven:
		if !s.Has("pom.xml") {
			return "", nil
		}
		if s.Has("mvnw") {
			return "./mvnw", []evidence.Signal{fileRef("pom.xml"), fileRef("mvnw")}
		}
		return "mvn", []evidence.Signal{fileRef("pom.xml")}
	case ManagerGradle:
		var build string
		for _, f := range []string{"build.gradle", "build.gradle.kts"} {
			if s.Has(f) {
				build = f
				break
			}
		}
		if build == "" {
			return "", nil
		}
		if s.Has("gradlew") {
			return "./gradlew", []evidence.Signal{fileRef(build), fileRef("gradlew")}
		}
		return "gradle", []evidence.Signal{fileRef(build)}
	}
	return "", nil
}

func buildRules() []Rule {
	return []Rule{
		RuleFunc("build.node.script", func(s evidence.Set) []Claim {
			_, sig, ok := rootString(s, "package.json", "scripts.build")
			if !ok {
				return nil
			}
			pm, pmSigs := nodePackageManager(s)
			return []Claim{NewClaim(FieldBuildCommand, nodeRunScript(pm, "build"), 0.9, append([]evidence.Signal{sig}, pmSigs...)...)}
		}),
		RuleFunc("build.typescript.tsc", func(s evidence.Set) []Claim {
			if !s.Has("tsconfig.json") {
				return nil
			}
			return []Claim{NewClaim(FieldBuildCommand, "npx tsc", 0.5, fileRef("tsconfig.json"))}
		}),
		RuleFunc("build.go.default", func(s evidence.Set) []Claim {
			if !s.Has("go.mod") {
				return nil
			}
			pkg := "."
			sigs := []evidence.Signal{fileRef("go.mod")}
			if mains := goMainPackages(s); len(mains) > 0 {
				pkg = mains[0].pkg
				sigs = append(sigs, mains[0].sig)
			}
			cmd := fmt.Sprintf(`go build -trimpath -ldflags="-s -w" -o %s/app %s`, OutputDir, pkg)
			return []Claim{NewClaim(FieldBuildCommand, cmd, 0.6, sigs...)}
		}),
		RuleFunc("build.rust.cargo", func(s evidence.Set) []Claim {
			if _, sig, ok := rootString(s, "Cargo.toml", "package.name"); ok {
				cmd := "cargo install --path . --root " + OutputDir
				if s.Has("Cargo.lock") {
					cmd = "cargo install --locked --path . --root " + OutputDir
				}
				return []Claim{NewClaim(FieldBuildCommand, cmd, 0.6, sig)}
			}
			return nil
		}),
		RuleFunc("build.java.maven", func(s evidence.Set) []Claim {
			tool, sigs := javaBuildTool(s, ManagerMaven)
			if tool == "" {
				return nil
			}
			cmd := fmt.Sprintf("%s -B -DskipTests package && mkdir -p %s && cp target/*.jar %s/", tool, OutputDir, OutputDir)
			return []Claim{NewClaim(FieldBuildCommand, cmd, 0.6, sigs...)}
		}),
		RuleFunc("build.java.gradle", func(s evidence.Set) []Claim {
			tool, sigs := javaBuildTool(s, ManagerGradle)
			if tool == "" {
				return nil
			}
			task := "jar"
			if len(springBoot(s)) > 0 {
				task = "bootJar"
			}
			// Gradle also writes a -plain.jar without dependencies next to
			// the runnable one.
			cmd := fmt.Sprintf("%s %s --no-daemon && mkdir -p %s && find build/libs -maxdepth 1 -name '*.jar' ! -name '*-plain.jar' -exec cp {} %s/ \\;", tool, task, OutputDir, OutputDir)
			return []Claim{NewClaim(FieldBuildCommand, cmd, 0.6, sigs...)}
		}),
		RuleFunc("build.dotnet.publish", func(s evidence.Set) []Claim {
			projects := s.FilesWithExt(".csproj")
			if len(projects) == 0 {
				return nil
			}
			target := ""
			if len(projects) == 1 && !projects[0].AtRoot() {
				target = " " + projects[0].Path
			}
			cmd := fmt.Sprintf("dotnet publish%s -c Release -o %s", target, OutputDir)
			return []Claim{NewClaim(FieldBuildCommand, cmd, 0.6, projects...)}
		}),
	}
}

func toolingRules() []Rule {
	var rules []Rule
	rules = append(rules, packageManagerRules()...)
	rules = append(rules, buildRules()...)
	rules = append(rules, runRules()...)
	return rules
}

// assemblyName is the published dll name of a .NET project.
func assemblyName(s evidence.Set, project evidence.Signal) string {
	if name, _, ok := rootString(s, project.Path, "assemblyName"); ok {
		return name
	}
	return strings.TrimSuffix(path.Base(project.Path), ".csproj")
}
