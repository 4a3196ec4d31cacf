// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package detect

import (
	"path"
	"regexp"
	"strings"

	"stackcraft.sh/evidence"
)

var (
	nodeEntryFiles   = []string{"server.js", "index.js", "app.js", "main.js", "src/server.js", "src/index.js", "src/main.js"}
	pythonEntryFiles = []string{"main.py", "app.py", "server.py", "manage.py", "wsgi.py", "asgi.py", "__main__.py"}
)

func conventionalEntries(manifest string, files []string) func(evidence.Set) []Claim {
	return func(s evidence.Set) []Claim {
		if manifest != "" && !s.Has(manifest) {
			return nil
		}
		var claims []Claim
		for _, f := range files {
			if s.Has(f) {
				claims = append(claims, NewClaim(FieldEntrypoint, f, 0.5, fileRef(f)))
			}
		}
		return claims
	}
}

func entryRules() []Rule {
	return []Rule{
		RuleFunc("entrypoint.node.main", func(s evidence.Set) []Claim {
			if main, sig, ok := rootString(s, "package.json", "main"); ok {
				return []Claim{NewClaim(FieldEntrypoint, path.Clean(main), 0.8, sig)}
			}
			return nil
		}),
		RuleFunc("entrypoint.node.conventional", conventionalEntries("package.json", nodeEntryFiles)),
		RuleFunc("entrypoint.python.main-guard", func(s evidence.Set) []Claim {
			var claims []Claim
			for _, sig := range s.Patterns(evidence.PatternMainGuard) {
				if path.Ext(sig.Path) != ".py" {
					continue
				}
				// Nested scripts with a guard are usually tooling.
				confidence := 0.45
				if sig.AtRoot() {
					confidence = 0.8
				}
				claims = append(claims, NewClaim(FieldEntrypoint, sig.Path, confidence, sig))
			}
			return claims
		}),
		RuleFunc("entrypoint.python.conventional", conventionalEntries("", pythonEntryFiles)),
		RuleFunc("entrypoint.go.main-package", func(s evidence.Set) []Claim {
			var claims []Claim
			for _, main := range goMainPackages(s) {
				claims = append(claims, NewClaim(FieldEntrypoint, main.pkg, 0.8, main.sig))
			}
			return claims
		}),
		RuleFunc("entrypoint.rust.binary", func(s evidence.Set) []Claim {
			if sig, ok := s.Field("Cargo.toml", "bin"); ok {
				bins, _ := sig.Value.AsList()
				claims := make([]Claim, 0, len(bins))
				for _, bin := range bins {
					claims = append(claims, NewClaim(FieldEntrypoint, bin, 0.8, sig))
				}
				return claims
			}
			if name, sig, ok := rootString(s, "Cargo.toml", "package.name"); ok {
				return []Claim{NewClaim(FieldEntrypoint, name, 0.8, sig)}
			}
			return nil
		}),
		RuleFunc("entrypoint.java.artifact", func(s evidence.Set) []Claim {
			if name, sig, ok := rootString(s, "pom.xml", "finalName"); ok && !strings.Contains(name, "$") {
				return []Claim{NewClaim(FieldEntrypoint, name+".jar", 0.7, sig)}
			}
			artifact, sig, ok := rootString(s, "pom.xml", "artifactId")
			if !ok {
				return nil
			}
			version, versionSig, ok := rootString(s, "pom.xml", "version")
			if !ok || strings.Contains(version, "$") {
				return nil
			}
			return []Claim{NewClaim(FieldEntrypoint, artifact+"-"+version+".jar", 0.7, sig, versionSig)}
		}),
		RuleFunc("entrypoint.dotnet.assembly", func(s evidence.Set) []Claim {
			var claims []Claim
			for _, project := range s.FilesWithExt(".csproj") {
				name := strings.TrimSuffix(project.Base(), ".csproj")
				if strings.HasSuffix(name, "Tests") || strings.HasSuffix(name, ".Tests") {
					continue
				}
				claims = append(claims, NewClaim(FieldEntrypoint, assemblyName(s, project)+".dll", 0.8, project))
			}
			return claims
		}),
	}
}

var springPort = regexp.MustCompile(`(\d{2,5})\}?\s*$`)

// explicitPort reports whether the repository states a port anywhere.
func explicitPort(s evidence.Set) bool {
	if _, _, ok := envPort(s); ok {
		return true
	}
	return len(s.Patterns(evidence.PatternListenPort)) > 0 ||
		len(s.Patterns("expose")) > 0 ||
		len(s.Fields("ports")) > 0 ||
		len(s.Fields("server.port")) > 0
}

type portCollector struct {
	seen   map[string]bool
	claims []Claim
}

func (c *portCollector) add(port string, confidence float64, sig evidence.Signal) {
	port = strings.TrimSpace(port)
	if !validPort(port) || c.seen[port] {
		return
	}
	if c.seen == nil {
		c.seen = map[string]bool{}
	}
	c.seen[port] = true
	c.claims = append(c.claims, NewClaim(FieldExposedPort, port, confidence, sig))
}

func portRules() []Rule {
	return []Rule{
		RuleFunc("port.framework-default", func(s evidence.Set) []Claim {
			if explicitPort(s) {
				return nil
			}
			var c portCollector
			for _, fw := range declaredFrameworks(s) {
				if port, ok := frameworkPorts[fw.Value]; ok {
					c.add(port, 0.5, fw.Signals[0])
				}
			}
			return c.claims
		}),
		RuleFunc("port.source.listen", func(s evidence.Set) []Claim {
			var c portCollector
			for _, sig := range s.Patterns(evidence.PatternListenPort) {
				c.add(sig.Value.String(), 0.8, sig)
			}
			return c.claims
		}),
		RuleFunc("port.dotenv", func(s evidence.Set) []Claim {
			if port, sig, ok := envPort(s); ok {
				return []Claim{NewClaim(FieldExposedPort, port, 0.85, sig)}
			}
			return nil
		}),
		RuleFunc("port.compose", func(s evidence.Set) []Claim {
			var c portCollector
			for _, sig := range s.Fields("ports") {
				ports, _ := sig.Value.AsList()
				for _, port := range ports {
					c.add(port, 0.75, sig)
				}
			}
			return c.claims
		}),
		RuleFunc("port.dockerfile.expose", func(s evidence.Set) []Claim {
			var c portCollector
			for _, sig := range s.Patterns("expose") {
				c.add(sig.Value.String(), 0.7, sig)
			}
			return c.claims
		}),
		RuleFunc("port.spring.server-port", func(s evidence.Set) []Claim {
			var c portCollector
			for _, sig := range s.Fields("server.port") {
				if m := springPort.FindStringSubmatch(sig.Value.String()); m != nil {
					c.add(m[1], 0.9, sig)
				}
			}
			return c.claims
		}),
	}
}
