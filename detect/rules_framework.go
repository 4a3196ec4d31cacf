// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package detect

import (
	"strings"

	"stackcraft.sh/evidence"
)

type frameworkDep struct {
	dep        string
	framework  string
	confidence float64
}

// nestjs and next sit on top of express and react tooling, so they
// outrank the plain server libraries they pull in.
var (
	nodeFrameworks = []frameworkDep{
		{"@nestjs/core", "nestjs", 0.9},
		{"next", "next", 0.9},
		{"express", "express", 0.8},
		{"fastify", "fastify", 0.8},
		{"koa", "koa", 0.8},
		{"@hapi/hapi", "hapi", 0.8},
	}
	pythonFrameworks = []frameworkDep{
		{"fastapi", "fastapi", 0.8},
		{"flask", "flask", 0.8},
		{"django", "django", 0.8},
	}
	goFrameworks = []frameworkDep{
		{"github.com/gin-gonic/gin", "gin", 0.8},
		{"github.com/labstack/echo", "echo", 0.8},
		{"github.com/gofiber/fiber", "fiber", 0.8},
		{"github.com/go-chi/chi", "chi", 0.8},
	}
	rustFrameworks = []frameworkDep{
		{"actix-web", "actix-web", 0.8},
		{"axum", "axum", 0.8},
		{"rocket", "rocket", 0.8},
	}
)

// importFrameworks maps import pattern values to frameworks.
var importFrameworks = map[string]string{
	"express":                     "express",
	"fastify":                     "fastify",
	"koa":                         "koa",
	"@nestjs/core":                "nestjs",
	"@hapi/hapi":                  "hapi",
	"next":                        "next",
	"fastapi":                     "fastapi",
	"flask":                       "flask",
	"django":                      "django",
	"github.com/gin-gonic/gin":    "gin",
	"github.com/labstack/echo":    "echo",
	"github.com/labstack/echo/v4": "echo",
	"github.com/gofiber/fiber":    "fiber",
	"github.com/gofiber/fiber/v2": "fiber",
	"github.com/go-chi/chi":       "chi",
	"github.com/go-chi/chi/v5":    "chi",
	"actix_web":                   "actix-web",
	"axum":                        "axum",
	"rocket":                      "rocket",
}

// frameworkPorts holds each framework's documented default listen port.
var frameworkPorts = map[string]string{
	"express":     "3000",
	"fastify":     "3000",
	"koa":         "3000",
	"nestjs":      "3000",
	"next":        "3000",
	"hapi":        "3000",
	"fastapi":     "8000",
	"django":      "8000",
	"flask":       "5000",
	"gin":         "8080",
	"echo":        "8080",
	"fiber":       "3000",
	"chi":         "8080",
	"actix-web":   "8080",
	"axum":        "3000",
	"rocket":      "8000",
	"spring-boot": "8080",
	"aspnetcore":  "8080",
}

func dependencyFrameworks(table []frameworkDep, lookup func(evidence.Set, string) (evidence.Signal, bool)) func(evidence.Set) []Claim {
	return func(s evidence.Set) []Claim {
		var claims []Claim
		for _, fw := range table {
			if sig, ok := lookup(s, fw.dep); ok {
				claims = append(claims, NewClaim(FieldFramework, fw.framework, fw.confidence, sig))
			}
		}
		return claims
	}
}

// declaredFrameworks returns every framework declared as a dependency,
// across ecosystems, in table order.
func declaredFrameworks(s evidence.Set) []Claim {
	var claims []Claim
	claims = append(claims, dependencyFrameworks(nodeFrameworks, nodeDependency)(s)...)
	claims = append(claims, dependencyFrameworks(pythonFrameworks, pythonDependency)(s)...)
	claims = append(claims, dependencyFrameworks(goFrameworks, goRequire)(s)...)
	claims = append(claims, dependencyFrameworks(rustFrameworks, cargoDependency)(s)...)
	claims = append(claims, springBoot(s)...)
	claims = append(claims, aspnetCore(s)...)
	return claims
}

func springBoot(s evidence.Set) []Claim {
	if sig, ok := s.Field("pom.xml", "dependencies"); ok {
		deps, _ := sig.Value.AsList()
		for _, dep := range deps {
			if strings.HasPrefix(dep, "org.springframework.boot:") {
				return []Claim{NewClaim(FieldFramework, "spring-boot", 0.8, sig)}
			}
		}
	}
	for _, sig := range s.Patterns("spring-boot") {
		if sig.AtRoot() {
			return []Claim{NewClaim(FieldFramework, "spring-boot", 0.8, sig)}
		}
	}
	return nil
}

func aspnetCore(s evidence.Set) []Claim {
	for _, sig := range s.Fields("sdk") {
		if strings.HasSuffix(sig.Path, ".csproj") && sig.Value.Contains("Microsoft.NET.Sdk.Web") {
			return []Claim{NewClaim(FieldFramework, "aspnetcore", 0.8, sig)}
		}
	}
	return nil
}

func frameworkRules() []Rule {
	return []Rule{
		RuleFunc("framework.node.dependency", dependencyFrameworks(nodeFrameworks, nodeDependency)),
		RuleFunc("framework.python.dependency", dependencyFrameworks(pythonFrameworks, pythonDependency)),
		RuleFunc("framework.go.require", dependencyFrameworks(goFrameworks, goRequire)),
		RuleFunc("framework.rust.dependency", dependencyFrameworks(rustFrameworks, cargoDependency)),
		RuleFunc("framework.java.spring-boot", springBoot),
		RuleFunc("framework.dotnet.web-sdk", aspnetCore),
		RuleFunc("framework.source.import", func(s evidence.Set) []Claim {
			var claims []Claim
			seen := map[string]bool{}
			for _, sig := range s.Patterns(evidence.PatternImport) {
				fw, ok := importFrameworks[sig.Value.String()]
				if !ok || seen[fw] {
					continue
				}
				seen[fw] = true
				claims = append(claims, NewClaim(FieldFramework, fw, 0.7, sig))
			}
			if apps := s.Patterns(evidence.PatternSpringApp); len(apps) > 0 && !seen["spring-boot"] {
				claims = append(claims, NewClaim(FieldFramework, "spring-boot", 0.7, apps[0]))
			}
			return claims
		}),
	}
}
