// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package detect

import (
	"fmt"
	"slices"
	"strings"

	"github.com/mattn/go-shellwords"

	"stackcraft.sh/evidence"
)

// devServers are start commands that only make sense during development.
var devServers = []string{"nodemon", "ts-node-dev", "vite", "webpack-dev-server"}

// JoinArgs renders argv as a shell command line, quoting where needed.
func JoinArgs(argv []string) string {
	out := make([]string, len(argv))
	for i, arg := range argv {
		if arg != "" && !strings.ContainsAny(arg, " \t\n'\"\\`!*?[]{}()<>|&;#~") {
			out[i] = arg
			continue
		}
		out[i] = "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
	}
	return strings.Join(out, " ")
}

// nodeStart resolves a package script to a command that can run without
// the package manager. Scripts that only call another script are followed
// once.
func nodeStart(s evidence.Set, script string, follow bool) (string, []evidence.Signal, bool) {
	raw, sig, ok := rootString(s, "package.json", "scripts."+script)
	if !ok || strings.ContainsAny(raw, "&|;<>`") {
		return "", nil, false
	}
	_, argv, err := shellwords.ParseWithEnvs(raw)
	if err != nil || len(argv) == 0 {
		return "", nil, false
	}

	var target string
	switch argv[0] {
	case "node":
		return JoinArgs(argv), []evidence.Signal{sig}, true
	case "npm", "pnpm", "bun":
		if len(argv) >= 3 && argv[1] == "run" {
			target = argv[2]
		}
	case "yarn":
		if len(argv) >= 3 && argv[1] == "run" {
			target = argv[2]
		} else if len(argv) == 2 {
			target = argv[1]
		}
	default:
		if slices.Contains(devServers, argv[0]) || strings.Contains(argv[0], "/") {
			return "", nil, false
		}
		argv[0] = "node_modules/.bin/" + argv[0]
		return JoinArgs(argv), []evidence.Signal{sig}, true
	}

	if target == "" || target == script || !follow {
		return "", nil, false
	}
	cmd, sigs, ok := nodeStart(s, target, false)
	if !ok {
		return "", nil, false
	}
	return cmd, append([]evidence.Signal{sig}, sigs...), true
}

// shallowest returns the pattern signal closest to the repository root.
func shallowest(signals []evidence.Signal) (evidence.Signal, bool) {
	if len(signals) == 0 {
		return evidence.Signal{}, false
	}
	best := signals[0]
	for _, sig := range signals[1:] {
		if strings.Count(sig.Path, "/") < strings.Count(best.Path, "/") {
			best = sig
		}
	}
	return best, true
}

// pythonServer reports whether server is declared or imported.
func pythonServer(s evidence.Set, server string) (evidence.Signal, bool) {
	if sig, ok := pythonDependency(s, server); ok {
		return sig, true
	}
	if sigs := s.PatternValue(evidence.PatternImport, server); len(sigs) > 0 {
		return sigs[0], true
	}
	return evidence.Signal{}, false
}

func listenPort(s evidence.Set, framework string) (string, []evidence.Signal) {
	if port, sig, ok := envPort(s); ok {
		return port, []evidence.Signal{sig}
	}
	return frameworkPorts[framework], nil
}

func runRules() []Rule {
	return []Rule{
		RuleFunc("run.node.start-script", func(s evidence.Set) []Claim {
			if cmd, sigs, ok := nodeStart(s, "start", true); ok {
				return []Claim{NewClaim(FieldRunCommand, cmd, 0.8, sigs...)}
			}
			return nil
		}),
		RuleFunc("run.procfile.web", func(s evidence.Set) []Claim {
			sig, ok := s.Field("Procfile", "process.web")
			if !ok {
				return nil
			}
			argv, _ := sig.Value.AsList()
			if len(argv) == 0 {
				return nil
			}
			return []Claim{NewClaim(FieldRunCommand, JoinArgs(argv), 0.85, sig)}
		}),
		RuleFunc("run.python.asgi", func(s evidence.Set) []Claim {
			app, ok := shallowest(s.Patterns(evidence.PatternASGIApp))
			if !ok {
				return nil
			}
			server, ok := pythonServer(s, "uvicorn")
			if !ok {
				return nil
			}
			port, portSigs := listenPort(s, "fastapi")
			cmd := fmt.Sprintf("uvicorn %s:%s --host 0.0.0.0 --port %s", pythonModule(app.Path), app.Value.String(), port)
			sigs := append([]evidence.Signal{app, server}, portSigs...)
			return []Claim{NewClaim(FieldRunCommand, cmd, 0.75, sigs...)}
		}),
		RuleFunc("run.python.wsgi", func(s evidence.Set) []Claim {
			server, ok := pythonServer(s, "gunicorn")
			if !ok {
				return nil
			}

			var claims []Claim
			if app, ok := shallowest(s.Patterns(evidence.PatternWSGIApp)); ok {
				port, portSigs := listenPort(s, "flask")
				cmd := fmt.Sprintf("gunicorn --bind 0.0.0.0:%s %s:%s", port, pythonModule(app.Path), app.Value.String())
				sigs := append([]evidence.Signal{app, server}, portSigs...)
				claims = append(claims, NewClaim(FieldRunCommand, cmd, 0.75, sigs...))
			}
			if s.Has("manage.py") {
				for _, wsgi := range s.FilesNamed("wsgi.py") {
					if strings.Count(wsgi.Path, "/") != 1 {
						continue
					}
					port, portSigs := listenPort(s, "django")
					cmd := fmt.Sprintf("gunicorn --bind 0.0.0.0:%s %s.wsgi:application", port, wsgi.Dir())
					sigs := append([]evidence.Signal{fileRef("manage.py"), wsgi, server}, portSigs...)
					claims = append(claims, NewClaim(FieldRunCommand, cmd, 0.75, sigs...))
					break
				}
			}
			return claims
		}),
	}
}
