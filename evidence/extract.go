// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package evidence

import (
	"bufio"
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/google/shlex"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/mod/modfile"
)

// extractor turns the content of one file into signals. It may return
// signals alongside an error when the file is only partially understood.
type extractor func(rel string, data []byte) ([]Signal, error)

var rootExtractors = map[string]extractor{
	"package.json":        extractPackageJSON,
	"go.mod":              extractGoMod,
	"pyproject.toml":      extractPyproject,
	"Pipfile":             extractPipfile,
	"Cargo.toml":          extractCargo,
	"rust-toolchain.toml": extractRustToolchainTOML,
	"rust-toolchain":      extractVersionFile,
	"pom.xml":             extractPom,
	"build.gradle":        extractGradle,
	"build.gradle.kts":    extractGradle,
	".nvmrc":              extractVersionFile,
	".node-version":       extractVersionFile,
	".python-version":     extractVersionFile,
	"runtime.txt":         extractVersionFile,
	".tool-versions":      extractToolVersions,
	".env":                extractDotenv,
	".env.example":        extractDotenv,
	"Procfile":            extractProcfile,
	"Dockerfile":          extractDockerfile,
	"docker-compose.yml":  extractCompose,
	"docker-compose.yaml": extractCompose,
	"compose.yml":         extractCompose,
	"compose.yaml":        extractCompose,
}

var nestedExtractors = map[string]extractor{
	"src/main/resources/application.properties": extractSpringProperties,
	"src/main/resources/application.yml":        extractSpringYAML,
	"src/main/resources/application.yaml":       extractSpringYAML,
}

// sourceDepth is the deepest directory level at which source files are
// pattern-matched.
const sourceDepth = 2

func lookupExtractor(rel string) extractor {
	base := path.Base(rel)
	depth := strings.Count(rel, "/")

	if depth == 0 {
		if fn, ok := rootExtractors[base]; ok {
			return fn
		}
		if strings.HasPrefix(base, "requirements") && strings.HasSuffix(base, ".txt") {
			return extractRequirements
		}
	}
	if fn, ok := nestedExtractors[rel]; ok {
		return fn
	}
	if depth <= sourceDepth {
		if strings.HasSuffix(base, ".csproj") {
			return extractCsproj
		}
		if _, ok := sourcePatterns[path.Ext(base)]; ok {
			return extractSource
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func appendString(out []Signal, rel, key, value string) []Signal {
	value = strings.TrimSpace(value)
	if value == "" {
		return out
	}
	return append(out, fieldSignal(rel, key, String(value)))
}

type packageManifest struct {
	Name            string            `json:"name"`
	Main            string            `json:"main"`
	Type            string            `json:"type"`
	PackageManager  string            `json:"packageManager"`
	Engines         map[string]string `json:"engines"`
	Scripts         map[string]string `json:"scripts"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

func extractPackageJSON(rel string, data []byte) ([]Signal, error) {
	manifest := packageManifest{}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing package.json: %w", err)
	}

	var out []Signal
	out = appendString(out, rel, "name", manifest.Name)
	out = appendString(out, rel, "main", manifest.Main)
	out = appendString(out, rel, "type", manifest.Type)
	out = appendString(out, rel, "packageManager", manifest.PackageManager)
	out = appendString(out, rel, "engines.node", manifest.Engines["node"])
	for _, name := range sortedKeys(manifest.Scripts) {
		out = appendString(out, rel, "scripts."+name, manifest.Scripts[name])
	}
	if len(manifest.Dependencies) > 0 {
		out = append(out, fieldSignal(rel, "dependencies", List(sortedKeys(manifest.Dependencies)...)))
	}
	if len(manifest.DevDependencies) > 0 {
		out = append(out, fieldSignal(rel, "devDependencies", List(sortedKeys(manifest.DevDependencies)...)))
	}
	return out, nil
}

func extractGoMod(rel string, data []byte) ([]Signal, error) {
	f, err := modfile.ParseLax(rel, data, nil)
	if err != nil {
		return nil, fmt.Errorf("parsing go.mod: %w", err)
	}

	var out []Signal
	if f.Module != nil {
		out = appendString(out, rel, "module", f.Module.Mod.Path)
	}
	if f.Go != nil {
		out = appendString(out, rel, "go", f.Go.Version)
	}
	if f.Toolchain != nil {
		out = appendString(out, rel, "toolchain", strings.TrimPrefix(f.Toolchain.Name, "go"))
	}
	requires := make([]string, 0, len(f.Require))
	for _, req := range f.Require {
		requires = append(requires, req.Mod.Path)
	}
	if len(requires) > 0 {
		sort.Strings(requires)
		out = append(out, fieldSignal(rel, "require", List(requires...)))
	}
	return out, nil
}

var requirementName = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)`)

// normalizePythonName lowercases a distribution name and folds runs of
// "-", "_" and "." into "-".
func normalizePythonName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer("_", "-", ".", "-").Replace(name)
}

func pythonRequirementName(spec string) string {
	m := requirementName.FindStringSubmatch(strings.TrimSpace(spec))
	if m == nil {
		return ""
	}
	return normalizePythonName(m[1])
}

func extractRequirements(rel string, data []byte) ([]Signal, error) {
	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if i := strings.Index(line, "#"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" || strings.HasPrefix(line, "-") {
			continue
		}
		if name := pythonRequirementName(line); name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return []Signal{fieldSignal(rel, "requirements", List(names...))}, scanner.Err()
}

type pyprojectManifest struct {
	Project struct {
		Name           string            `toml:"name"`
		RequiresPython string            `toml:"requires-python"`
		Dependencies   []string          `toml:"dependencies"`
		Scripts        map[string]string `toml:"scripts"`
	} `toml:"project"`
	Tool struct {
		Poetry *struct {
			Name         string                 `toml:"name"`
			Dependencies map[string]interface{} `toml:"dependencies"`
			Scripts      map[string]string      `toml:"scripts"`
		} `toml:"poetry"`
	} `toml:"tool"`
	BuildSystem struct {
		Backend string `toml:"build-backend"`
	} `toml:"build-system"`
}

func extractPyproject(rel string, data []byte) ([]Signal, error) {
	manifest := pyprojectManifest{}
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing pyproject.toml: %w", err)
	}

	var out []Signal
	out = appendString(out, rel, "name", manifest.Project.Name)
	out = appendString(out, rel, "requires-python", manifest.Project.RequiresPython)
	out = appendString(out, rel, "build-backend", manifest.BuildSystem.Backend)

	deps := map[string]struct{}{}
	for _, spec := range manifest.Project.Dependencies {
		if name := pythonRequirementName(spec); name != "" {
			deps[name] = struct{}{}
		}
	}
	scripts := map[string]string{}
	for k, v := range manifest.Project.Scripts {
		scripts[k] = v
	}

	if poetry := manifest.Tool.Poetry; poetry != nil {
		out = append(out, fieldSignal(rel, "tool.poetry", Bool(true)))
		out = appendString(out, rel, "name", poetry.Name)
		for name, spec := range poetry.Dependencies {
			if name == "python" {
				if constraint, ok := spec.(string); ok && manifest.Project.RequiresPython == "" {
					out = appendString(out, rel, "requires-python", constraint)
				}
				continue
			}
			deps[normalizePythonName(name)] = struct{}{}
		}
		for k, v := range poetry.Scripts {
			if _, ok := scripts[k]; !ok {
				scripts[k] = v
			}
		}
	}

	if len(deps) > 0 {
		out = append(out, fieldSignal(rel, "dependencies", List(sortedKeys(deps)...)))
	}
	for _, name := range sortedKeys(scripts) {
		out = appendString(out, rel, "scripts."+name, scripts[name])
	}
	return out, nil
}

type pipfileManifest struct {
	Packages map[string]interface{} `toml:"packages"`
	Requires struct {
		PythonVersion string `toml:"python_version"`
	} `toml:"requires"`
}

func extractPipfile(rel string, data []byte) ([]Signal, error) {
	manifest := pipfileManifest{}
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing Pipfile: %w", err)
	}

	var out []Signal
	out = appendString(out, rel, "python_version", manifest.Requires.PythonVersion)
	names := make([]string, 0, len(manifest.Packages))
	for name := range manifest.Packages {
		names = append(names, normalizePythonName(name))
	}
	if len(names) > 0 {
		sort.Strings(names)
		out = append(out, fieldSignal(rel, "dependencies", List(names...)))
	}
	return out, nil
}

type cargoManifest struct {
	Package struct {
		Name        string `toml:"name"`
		RustVersion string `toml:"rust-version"`
	} `toml:"package"`
	Dependencies map[string]interface{} `toml:"dependencies"`
	Bin          []struct {
		Name string `toml:"name"`
	} `toml:"bin"`
	Workspace *struct {
		Members []string `toml:"members"`
	} `toml:"workspace"`
}

func extractCargo(rel string, data []byte) ([]Signal, error) {
	manifest := cargoManifest{}
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing Cargo.toml: %w", err)
	}

	var out []Signal
	out = appendString(out, rel, "package.name", manifest.Package.Name)
	out = appendString(out, rel, "package.rust-version", manifest.Package.RustVersion)
	if len(manifest.Dependencies) > 0 {
		out = append(out, fieldSignal(rel, "dependencies", List(sortedKeys(manifest.Dependencies)...)))
	}
	var bins []string
	for _, bin := range manifest.Bin {
		if strings.TrimSpace(bin.Name) != "" {
			bins = append(bins, bin.Name)
		}
	}
	if len(bins) > 0 {
		out = append(out, fieldSignal(rel, "bin", List(bins...)))
	}
	if manifest.Workspace != nil {
		out = append(out, fieldSignal(rel, "workspace.members", List(manifest.Workspace.Members...)))
	}
	return out, nil
}

func extractRustToolchainTOML(rel string, data []byte) ([]Signal, error) {
	manifest := struct {
		Toolchain struct {
			Channel string `toml:"channel"`
		} `toml:"toolchain"`
	}{}
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing rust-toolchain.toml: %w", err)
	}
	return appendString(nil, rel, "version", manifest.Toolchain.Channel), nil
}

type pomProject struct {
	ArtifactID string `xml:"artifactId"`
	Version    string `xml:"version"`
	Packaging  string `xml:"packaging"`
	Parent     struct {
		GroupID    string `xml:"groupId"`
		ArtifactID string `xml:"artifactId"`
	} `xml:"parent"`
	Properties struct {
		JavaVersion     string `xml:"java.version"`
		CompilerRelease string `xml:"maven.compiler.release"`
		CompilerSource  string `xml:"maven.compiler.source"`
	} `xml:"properties"`
	Dependencies []struct {
		GroupID    string `xml:"groupId"`
		ArtifactID string `xml:"artifactId"`
	} `xml:"dependencies>dependency"`
	Build struct {
		FinalName string `xml:"finalName"`
	} `xml:"build"`
}

func extractPom(rel string, data []byte) ([]Signal, error) {
	project := pomProject{}
	if err := xml.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("parsing pom.xml: %w", err)
	}

	var out []Signal
	out = appendString(out, rel, "artifactId", project.ArtifactID)
	out = appendString(out, rel, "version", project.Version)
	out = appendString(out, rel, "packaging", project.Packaging)
	out = appendString(out, rel, "finalName", project.Build.FinalName)
	for _, v := range []string{project.Properties.JavaVersion, project.Properties.CompilerRelease, project.Properties.CompilerSource} {
		if strings.TrimSpace(v) != "" {
			out = appendString(out, rel, "java.version", v)
			break
		}
	}

	var deps []string
	if project.Parent.ArtifactID != "" {
		deps = append(deps, project.Parent.GroupID+":"+project.Parent.ArtifactID)
	}
	for _, dep := range project.Dependencies {
		deps = append(deps, dep.GroupID+":"+dep.ArtifactID)
	}
	if len(deps) > 0 {
		sort.Strings(deps)
		out = append(out, fieldSignal(rel, "dependencies", List(deps...)))
	}
	return out, nil
}

var (
	gradleSpringBoot  = regexp.MustCompile(`org\.springframework\.boot`)
	gradleJavaVersion = regexp.MustCompile(`(?:JavaLanguageVersion\.of\(\s*|JavaVersion\.VERSION_|sourceCompatibility\s*=\s*['"]?)(\d+)`)
)

func extractGradle(rel string, data []byte) ([]Signal, error) {
	var out []Signal
	eachLine(data, func(n int, line string) {
		if gradleSpringBoot.MatchString(line) {
			out = append(out, patternSignal(rel, "spring-boot", Bool(true), n))
		}
		if m := gradleJavaVersion.FindStringSubmatch(line); m != nil {
			out = append(out, patternSignal(rel, "java.version", String(m[1]), n))
		}
	})
	return firstPerKey(out), nil
}

type csproj struct {
	SDK            string `xml:"Sdk,attr"`
	PropertyGroups []struct {
		TargetFramework string `xml:"TargetFramework"`
		AssemblyName    string `xml:"AssemblyName"`
	} `xml:"PropertyGroup"`
}

func extractCsproj(rel string, data []byte) ([]Signal, error) {
	project := csproj{}
	if err := xml.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path.Base(rel), err)
	}

	var out []Signal
	out = appendString(out, rel, "sdk", project.SDK)
	for _, group := range project.PropertyGroups {
		out = appendString(out, rel, "targetFramework", group.TargetFramework)
		out = appendString(out, rel, "assemblyName", group.AssemblyName)
	}
	return out, nil
}

// extractVersionFile reads single-line version pins such as .nvmrc or
// runtime.txt ("python-3.11.4").
func extractVersionFile(rel string, data []byte) ([]Signal, error) {
	var version string
	eachLine(data, func(_ int, line string) {
		if version == "" && line != "" && !strings.HasPrefix(line, "#") {
			version = line
		}
	})
	version = strings.TrimPrefix(version, "v")
	if path.Base(rel) == "runtime.txt" {
		version = strings.TrimPrefix(version, "python-")
	}
	return appendString(nil, rel, "version", version), nil
}

func extractToolVersions(rel string, data []byte) ([]Signal, error) {
	var out []Signal
	eachLine(data, func(_ int, line string) {
		fields := strings.Fields(line)
		if len(fields) < 2 || strings.HasPrefix(fields[0], "#") {
			return
		}
		out = appendString(out, rel, "tool."+fields[0], fields[1])
	})
	return out, nil
}

// extractDotenv records only port settings; other values may be secrets.
func extractDotenv(rel string, data []byte) ([]Signal, error) {
	env, err := godotenv.Unmarshal(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path.Base(rel), err)
	}

	var out []Signal
	for _, key := range sortedKeys(env) {
		if key == "PORT" || strings.HasSuffix(key, "_PORT") {
			out = appendString(out, rel, "env."+key, env[key])
		}
	}
	return out, nil
}

func extractProcfile(rel string, data []byte) ([]Signal, error) {
	var out []Signal
	var errs []string
	eachLine(data, func(n int, line string) {
		if line == "" || strings.HasPrefix(line, "#") {
			return
		}
		kind, command, ok := strings.Cut(line, ":")
		if !ok {
			return
		}
		argv, err := shlex.Split(strings.TrimSpace(command))
		if err != nil {
			errs = append(errs, fmt.Sprintf("line %d: %v", n, err))
			return
		}
		if len(argv) == 0 {
			return
		}
		sig := fieldSignal(rel, "process."+strings.TrimSpace(kind), List(argv...))
		sig.Line = n
		out = append(out, sig)
	})
	if len(errs) > 0 {
		return out, fmt.Errorf("parsing Procfile: %s", strings.Join(errs, "; "))
	}
	return out, nil
}

func eachLine(data []byte, fn func(n int, line string)) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		fn(n, strings.TrimSpace(scanner.Text()))
	}
}

// firstPerKey keeps the first signal for every (key, value) pair.
func firstPerKey(signals []Signal) []Signal {
	seen := map[string]struct{}{}
	out := signals[:0]
	for _, sig := range signals {
		id := sig.Key + "\x00" + sig.Value.String()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, sig)
	}
	return out
}
