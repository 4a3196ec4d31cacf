// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package policy

import (
	"fmt"
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/mattn/go-shellwords"

	"stackcraft.sh/buildir"
	"stackcraft.sh/detect"
)

func builtinRules() []Rule {
	rules := []Rule{
		structureStages(),
		baseImageSelect(),
		metadataLabels(),
		workdirSet(),
		envRuntime(),
		userCreate(),
		userNonRoot(),
		exposePorts(),
		entrypointDerived(),
		entrypointRunCommand(),
	}
	return append(rules, layeringRules()...)
}

func structureStages() Rule {
	return NewRule(Spec{
		ID:       "structure.stages",
		Priority: 10,
		Emit: func(p *Plan) ([]buildir.Instruction, error) {
			final := buildir.NewBoundary(StageFinal)
			if !p.MultiStage {
				return []buildir.Instruction{
					final.Because(fmt.Sprintf("%s runs from source: a single stage", p.Language), detect.FieldLanguage),
				}, nil
			}
			why := fmt.Sprintf("%s is compiled: the toolchain stays in the build stage", p.Language)
			return []buildir.Instruction{
				buildir.NewBoundary(StageBuild).Because(why, detect.FieldLanguage, detect.FieldBuildCommand),
				final.Because("the final stage holds the runtime and the artifact only", detect.FieldLanguage),
			}, nil
		},
	})
}

func baseImageSelect() Rule {
	return NewRule(Spec{
		ID:       "base-image.select",
		Priority: 20,
		Emit: func(p *Plan) ([]buildir.Instruction, error) {
			var out []buildir.Instruction
			if p.MultiStage {
				why := fmt.Sprintf("%s %s toolchain image", p.Family, p.Build.Version)
				out = append(out, buildir.NewBaseImage(StageBuild, p.Pin(p.Build.Ref)).
					Because(why, detect.FieldLanguage, detect.FieldRuntimeVersion, detect.FieldPackageManager))
			}
			why := fmt.Sprintf("slim %s %s runtime image", p.Family, p.Final.Version)
			if p.MultiStage {
				why = fmt.Sprintf("minimal runtime image for the %s artifact, no toolchain", p.Language)
			}
			out = append(out, buildir.NewBaseImage(StageFinal, p.Pin(p.Final.Ref)).
				Because(why, detect.FieldLanguage, detect.FieldRuntimeVersion))
			return out, nil
		},
	})
}

func metadataLabels() Rule {
	return NewRule(Spec{
		ID:       "metadata.labels",
		Priority: 25,
		Applies: func(p *Plan) (bool, string) {
			return len(p.Config.Labels) > 0, "no labels configured"
		},
		Emit: func(p *Plan) ([]buildir.Instruction, error) {
			keys := make([]string, 0, len(p.Config.Labels))
			for k := range p.Config.Labels {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			out := make([]buildir.Instruction, 0, len(keys))
			for _, k := range keys {
				out = append(out, buildir.NewLabel(StageFinal, k, p.Config.Labels[k]).Because("label from the policy configuration"))
			}
			return out, nil
		},
	})
}

func workdirSet() Rule {
	return NewRule(Spec{
		ID:       "workdir.set",
		Priority: 30,
		Emit: func(p *Plan) ([]buildir.Instruction, error) {
			var out []buildir.Instruction
			if p.MultiStage {
				out = append(out, buildir.NewWorkdir(StageBuild, BuildDir).Because("sources are built under "+BuildDir))
			}
			out = append(out, buildir.NewWorkdir(StageFinal, p.Workdir()).Because("application directory"))
			return out, nil
		},
	})
}

func envRuntime() Rule {
	return NewRule(Spec{
		ID:       "env.runtime",
		Priority: 40,
		Applies: func(p *Plan) (bool, string) {
			return p.Family != "rust", "rust binaries need no runtime environment"
		},
		Emit: func(p *Plan) ([]buildir.Instruction, error) {
			env := func(stage, key, value, why string, fields ...detect.Field) buildir.Instruction {
				return buildir.NewEnv(stage, key, value).Because(why, append([]detect.Field{detect.FieldLanguage}, fields...)...)
			}

			switch p.Family {
			case "node":
				return []buildir.Instruction{
					env(StageFinal, "NODE_ENV", "production", "libraries skip development behaviour in production"),
				}, nil
			case "python":
				return []buildir.Instruction{
					env(StageFinal, "PYTHONDONTWRITEBYTECODE", "1", "no .pyc files in the image"),
					env(StageFinal, "PYTHONUNBUFFERED", "1", "logs reach the container output immediately"),
					env(StageFinal, "PIP_DISABLE_PIP_VERSION_CHECK", "1", "pip does not query the index for its own version"),
				}, nil
			case "go":
				return []buildir.Instruction{
					env(StageBuild, "CGO_ENABLED", "0", "a static binary runs on a distroless base"),
				}, nil
			case "java":
				return []buildir.Instruction{
					env(StageFinal, "JAVA_TOOL_OPTIONS", "-XX:MaxRAMPercentage=75", "the JVM sizes its heap from the container memory limit"),
				}, nil
			case "dotnet":
				out := []buildir.Instruction{
					env(StageBuild, "DOTNET_CLI_TELEMETRY_OPTOUT", "1", "no telemetry from the build"),
				}
				if port := p.Value(detect.FieldExposedPort); port != "" {
					out = append(out, env(StageFinal, "ASPNETCORE_HTTP_PORTS", port, "Kestrel listens on the detected port", detect.FieldExposedPort))
				}
				return out, nil
			}
			return nil, nil
		},
	})
}

func userCreate() Rule {
	return NewRule(Spec{
		ID:       "user.create",
		Priority: 55,
		Applies: func(p *Plan) (bool, string) {
			switch {
			case !p.Config.NonRootUser:
				return false, "the non-root user is disabled"
			case !p.CreateUser:
				return false, fmt.Sprintf("%s ships the %s account", p.Final.Ref, p.User)
			case !p.Final.Shell:
				return false, fmt.Sprintf("%s has no shell; a numeric USER needs no account", p.Final.Ref)
			}
			return true, ""
		},
		Emit: func(p *Plan) ([]buildir.Instruction, error) {
			name := p.accountName()
			cmd := fmt.Sprintf("useradd --system --user-group --no-create-home --shell /usr/sbin/nologin %s", name)
			if uid, gid := p.ids(); uid != "" && gid != "" {
				cmd = fmt.Sprintf("groupadd --system --gid %s %s && useradd --system --uid %s --gid %s --no-create-home --shell /usr/sbin/nologin %s",
					gid, name, uid, gid, name)
			}
			why := fmt.Sprintf("%s has no unprivileged account", p.Final.Ref)
			return []buildir.Instruction{buildir.NewRun(StageFinal, cmd).Because(why)}, nil
		},
	})
}

func userNonRoot() Rule {
	return NewRule(Spec{
		ID:       "user.nonroot",
		Priority: 80,
		Emit: func(p *Plan) ([]buildir.Instruction, error) {
			if !p.Config.NonRootUser {
				return []buildir.Instruction{
					buildir.NewUser(StageFinal, "root").Because("explicit opt-out: nonRootUser is false in the policy configuration"),
				}, nil
			}
			return []buildir.Instruction{
				buildir.NewUser(StageFinal, p.User).Because("the application does not run as root"),
			}, nil
		},
		OptsOut: func(p *Plan) (string, string, bool) {
			if p.Config.NonRootUser {
				return "", "", false
			}
			return InvariantNonRoot, "nonRootUser is false in the policy configuration; the final stage runs as root", true
		},
	})
}

func exposePorts() Rule {
	return NewRule(Spec{
		ID:       "expose.ports",
		Priority: 85,
		Applies: func(p *Plan) (bool, string) {
			return p.Profile.Has(detect.FieldExposedPort), "the profile has no exposed port"
		},
		Emit: func(p *Plan) ([]buildir.Instruction, error) {
			var out []buildir.Instruction
			for _, port := range p.Profile.ExposedPorts {
				why := fmt.Sprintf("port %s detected by %s", port.Value, port.Rule)
				out = append(out, buildir.NewExpose(StageFinal, port.Value).Because(why, detect.FieldExposedPort))
			}
			return out, nil
		},
	})
}

// runsFromCommand reports whether the family is started through the
// detected run command rather than a built artifact.
func runsFromCommand(p *Plan) bool {
	return p.Family == "node" || p.Family == "python"
}

func entrypointDerived() Rule {
	return NewRule(Spec{
		ID:       "entrypoint.derived",
		Priority: 90,
		Requires: func(p *Plan) []detect.Field {
			switch p.Family {
			case "go", "java":
				return nil
			}
			return []detect.Field{detect.FieldEntrypoint}
		},
		Applies: func(p *Plan) (bool, string) {
			if runsFromCommand(p) && !p.Profile.Has(detect.FieldEntrypoint) && p.Profile.Has(detect.FieldRunCommand) {
				return false, "the run command provides the entrypoint"
			}
			return true, ""
		},
		Emit: func(p *Plan) ([]buildir.Instruction, error) {
			entry := p.Value(detect.FieldEntrypoint)
			workdir := p.Workdir()

			var argv []string
			switch p.Family {
			case "node":
				argv = []string{"node", entry}
			case "python":
				argv = []string{"python", entry}
			case "go":
				argv = []string{path.Join(workdir, "app")}
			case "rust":
				argv = []string{path.Join(workdir, "bin", entry)}
			case "java":
				if entry != "" {
					argv = []string{"java", "-jar", path.Join(workdir, entry)}
				} else {
					argv = []string{"/bin/sh", "-c", "exec java -jar " + workdir + "/*.jar"}
				}
			case "dotnet":
				argv = []string{"dotnet", path.Join(workdir, entry)}
			default:
				return nil, fmt.Errorf("no entrypoint convention for %s", p.Family)
			}

			why := fmt.Sprintf("%s starts %s", p.Language, argv[len(argv)-1])
			return []buildir.Instruction{
				buildir.NewEntrypoint(StageFinal, argv...).Because(why, detect.FieldLanguage, detect.FieldEntrypoint),
			}, nil
		},
	})
}

func entrypointRunCommand() Rule {
	return NewRule(Spec{
		ID:       "entrypoint.run-command",
		Priority: 95,
		Applies: func(p *Plan) (bool, string) {
			if !p.Profile.Has(detect.FieldRunCommand) {
				return false, "the profile has no run command"
			}
			if !runsFromCommand(p) {
				return false, fmt.Sprintf("%s artifacts are started directly", p.Language)
			}
			return true, ""
		},
		Emit: func(p *Plan) ([]buildir.Instruction, error) {
			cmd := p.Value(detect.FieldRunCommand)
			argv, err := commandArgv(cmd)
			if err != nil {
				return nil, err
			}
			rc, _ := p.Profile.Get(detect.FieldRunCommand)
			why := fmt.Sprintf("run command detected by %s", rc.Rule)
			return []buildir.Instruction{
				buildir.NewEntrypoint(StageFinal, argv...).Because(why, detect.FieldRunCommand),
			}, nil
		},
	})
}

// commandArgv turns a run command into exec-form arguments. Commands that
// rely on variable expansion are run through the shell with exec so the
// process still receives signals.
func commandArgv(cmd string) ([]string, error) {
	if strings.Contains(cmd, "$") {
		return []string{"/bin/sh", "-c", "exec " + cmd}, nil
	}
	argv, err := shellwords.Parse(cmd)
	if err != nil {
		return nil, fmt.Errorf("splitting run command %q: %w", cmd, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty run command")
	}
	return slices.Clip(argv), nil
}
