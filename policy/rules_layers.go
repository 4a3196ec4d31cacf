// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package policy

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"stackcraft.sh/buildir"
	"stackcraft.sh/detect"
)

// install is the manifest-first layer for one package manager: the files
// copied before the sources and the command that installs dependencies.
type install struct {
	files   []string
	extra   [][2]string
	command string
}

func nodeInstall(p *Plan) install {
	production := !p.MultiStage
	switch p.Tool {
	case detect.ManagerYarn:
		cmd := "yarn install"
		if p.Cites("yarn.lock") {
			cmd += " --frozen-lockfile"
		}
		if production {
			cmd += " --production"
		}
		return install{files: []string{"package.json", "yarn.lock*"}, command: cmd}
	case detect.ManagerPNPM:
		cmd := "corepack enable && pnpm install"
		if p.Cites("pnpm-lock.yaml") {
			cmd += " --frozen-lockfile"
		}
		if production {
			cmd += " --prod"
		}
		return install{files: []string{"package.json", "pnpm-lock.yaml*"}, command: cmd}
	case detect.ManagerBun:
		cmd := "npm install -g bun && bun install"
		if p.Cites("bun.lockb") || p.Cites("bun.lock") {
			cmd += " --frozen-lockfile"
		}
		if production {
			cmd += " --production"
		}
		return install{files: []string{"package.json", "bun.lock*"}, command: cmd}
	}

	cmd := "npm install"
	if p.Cites("package-lock.json") || p.Cites("npm-shrinkwrap.json") {
		cmd = "npm ci"
	}
	if production {
		cmd += " --omit=dev"
	}
	return install{files: []string{"package*.json", "npm-shrinkwrap.json*"}, command: cmd}
}

// requirementsFile picks the pip requirements file the profile cites,
// preferring requirements.txt.
func requirementsFile(p *Plan) string {
	if p.Cites("requirements.txt") {
		return "requirements.txt"
	}
	var found []string
	for f := range p.files {
		if !strings.Contains(f, "/") && strings.HasPrefix(f, "requirements") && strings.HasSuffix(f, ".txt") {
			found = append(found, f)
		}
	}
	sort.Strings(found)
	if len(found) > 0 {
		return found[0]
	}
	return ""
}

func pythonInstall(p *Plan) (install, bool) {
	switch p.Tool {
	case detect.ManagerPoetry:
		return install{
			files:   []string{"pyproject.toml", "poetry.lock*"},
			command: "pip install --no-cache-dir poetry && poetry config virtualenvs.create false && poetry install --no-interaction --no-ansi --no-root --only main",
		}, true
	case detect.ManagerPipenv:
		cmd := "pip install --no-cache-dir pipenv && pipenv install --system"
		if p.Cites("Pipfile.lock") {
			cmd += " --deploy"
		}
		return install{files: []string{"Pipfile", "Pipfile.lock*"}, command: cmd}, true
	case detect.ManagerUV:
		return install{
			files:   []string{"pyproject.toml", "uv.lock*"},
			command: "pip install --no-cache-dir uv && uv pip install --system --no-cache -r pyproject.toml",
		}, true
	}

	req := requirementsFile(p)
	if req == "" {
		return install{}, false
	}
	return install{files: []string{req}, command: "pip install --no-cache-dir -r " + req}, true
}

// dependencyInstall returns the manifest-first layer for the plan, or the
// reason there is none.
func dependencyInstall(p *Plan) (install, string) {
	switch p.Family {
	case "node":
		return nodeInstall(p), ""
	case "python":
		if in, ok := pythonInstall(p); ok {
			return in, ""
		}
		return install{}, "no requirements file; the project is installed with its sources"
	case "go":
		return install{files: []string{"go.mod", "go.sum*"}, command: "go mod download"}, ""
	case "java":
		if p.Tool == detect.ManagerGradle {
			return install{}, "gradle resolves dependencies during the build"
		}
		if p.Cites("mvnw") {
			return install{
				files:   []string{"mvnw", "pom.xml"},
				extra:   [][2]string{{".mvn", ".mvn"}},
				command: "./mvnw -B dependency:go-offline",
			}, ""
		}
		return install{files: []string{"pom.xml"}, command: "mvn -B dependency:go-offline"}, ""
	case "dotnet":
		for f := range p.files {
			if path.Ext(f) == ".csproj" && strings.Contains(f, "/") {
				return install{}, "project files are nested; restore runs with the build"
			}
		}
		return install{files: []string{"*.csproj"}, command: "dotnet restore"}, ""
	}
	return install{}, fmt.Sprintf("%s resolves dependencies during the build", p.Language)
}

func pythonInstallsProject(p *Plan) bool {
	if p.Family != "python" || p.Tool != detect.ManagerPip {
		return false
	}
	_, ok := pythonInstall(p)
	return !ok && p.Cites("pyproject.toml")
}

// prune returns the command that drops development dependencies after a
// node build, or "" when the package manager has none.
func prune(p *Plan) string {
	switch p.Tool {
	case detect.ManagerNPM:
		return "npm prune --omit=dev"
	case detect.ManagerYarn:
		return "yarn install --production --ignore-scripts --prefer-offline"
	case detect.ManagerPNPM:
		return "pnpm prune --prod"
	}
	return ""
}

func layeringRules() []Rule {
	return []Rule{
		NewRule(Spec{
			ID:       "deps.manifest-first",
			Priority: 50,
			Applies: func(p *Plan) (bool, string) {
				_, reason := dependencyInstall(p)
				return reason == "", reason
			},
			Emit: func(p *Plan) ([]buildir.Instruction, error) {
				in, _ := dependencyInstall(p)
				stage := p.BuildStage()
				why := fmt.Sprintf("dependency manifests are copied before the sources so the %s layer is cached", p.Tool)

				out := []buildir.Instruction{
					buildir.NewCopy(stage, in.files, "./").Because(why, detect.FieldPackageManager),
				}
				for _, e := range in.extra {
					out = append(out, buildir.NewCopy(stage, []string{e[0]}, e[1]).Because(why, detect.FieldPackageManager))
				}
				out = append(out, buildir.NewRun(stage, in.command).
					Because("install dependencies with "+p.Tool, detect.FieldPackageManager, detect.FieldLanguage))
				return out, nil
			},
		}),
		NewRule(Spec{
			ID:       "build.compile",
			Priority: 60,
			Requires: requires(detect.FieldBuildCommand),
			Applies: func(p *Plan) (bool, string) {
				return p.MultiStage, "nothing to compile"
			},
			Emit: func(p *Plan) ([]buildir.Instruction, error) {
				bc, _ := p.Profile.Get(detect.FieldBuildCommand)
				return []buildir.Instruction{
					buildir.NewCopy(StageBuild, []string{"."}, ".").Because("sources for the build"),
					buildir.NewRun(StageBuild, bc.Value).Because("build command detected by "+bc.Rule, detect.FieldBuildCommand),
				}, nil
			},
		}),
		NewRule(Spec{
			ID:       "source.copy",
			Priority: 65,
			Applies: func(p *Plan) (bool, string) {
				return !p.MultiStage, "the final stage receives the build artifact instead"
			},
			Emit: func(p *Plan) ([]buildir.Instruction, error) {
				out := []buildir.Instruction{
					buildir.NewCopy(StageFinal, []string{"."}, ".").Because(p.Language+" runs from its sources", detect.FieldLanguage),
				}
				if pythonInstallsProject(p) {
					out = append(out, buildir.NewRun(StageFinal, "pip install --no-cache-dir .").
						Because("pyproject.toml declares the project and its dependencies", detect.FieldLanguage))
				}
				return out, nil
			},
		}),
		NewRule(Spec{
			ID:       "artifact.copy",
			Priority: 70,
			Requires: func(p *Plan) []detect.Field {
				if p.Family == "node" {
					return nil
				}
				return []detect.Field{detect.FieldBuildCommand}
			},
			Applies: func(p *Plan) (bool, string) {
				return p.MultiStage, "single-stage build"
			},
			Emit: func(p *Plan) ([]buildir.Instruction, error) {
				dest := strings.TrimSuffix(p.Workdir(), "/") + "/"
				if p.Family != "node" {
					return []buildir.Instruction{
						buildir.NewCopyFrom(StageFinal, StageBuild, []string{detect.OutputDir + "/"}, dest).
							Because("only the compiled artifact reaches the final stage", detect.FieldBuildCommand),
					}, nil
				}

				var out []buildir.Instruction
				if cmd := prune(p); cmd != "" {
					out = append(out, buildir.NewRun(StageBuild, cmd).
						Because("development dependencies stay out of the final stage", detect.FieldPackageManager))
				}
				out = append(out, buildir.NewCopyFrom(StageFinal, StageBuild, []string{BuildDir + "/"}, dest).
					Because("built application and production dependencies", detect.FieldBuildCommand))
				return out, nil
			},
		}),
	}
}
