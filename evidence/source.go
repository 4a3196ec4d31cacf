// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package evidence

import (
	"path"
	"regexp"
)

// Pattern keys emitted for source files.
const (
	PatternImport      = "import"
	PatternMainGuard   = "main-guard"
	PatternPackageMain = "package-main"
	PatternFuncMain    = "func-main"
	PatternListenPort  = "listen-port"
	PatternASGIApp     = "asgi-app"
	PatternWSGIApp     = "wsgi-app"
	PatternSpringApp   = "spring-boot-app"
)

// sourcePattern matches one line. When the expression has a capture group
// the first group becomes the signal value, otherwise the value is true.
type sourcePattern struct {
	key string
	re  *regexp.Regexp
}

func (p sourcePattern) match(line string) (Value, bool) {
	m := p.re.FindStringSubmatch(line)
	if m == nil {
		return Value{}, false
	}
	if len(m) > 1 {
		return String(m[1]), true
	}
	return Bool(true), true
}

var (
	pythonPatterns = []sourcePattern{
		{PatternImport, regexp.MustCompile(`^(?:from|import)\s+(fastapi|flask|django|starlette|aiohttp|uvicorn|gunicorn|sanic|tornado)\b`)},
		{PatternMainGuard, regexp.MustCompile(`^if\s+__name__\s*==\s*['"]__main__['"]\s*:`)},
		{PatternASGIApp, regexp.MustCompile(`^(\w+)\s*=\s*(?:fastapi\.)?(?:FastAPI|Starlette)\(`)},
		{PatternWSGIApp, regexp.MustCompile(`^(\w+)\s*=\s*(?:flask\.)?Flask\(`)},
		{PatternListenPort, regexp.MustCompile(`\.run\([^)]*\bport\s*=\s*(\d{2,5})`)},
	}

	javascriptPatterns = []sourcePattern{
		{PatternImport, regexp.MustCompile(`require\(\s*['"](express|fastify|koa|@nestjs/core|@hapi/hapi|next)['"]\s*\)`)},
		{PatternImport, regexp.MustCompile(`from\s+['"](express|fastify|koa|@nestjs/core|@hapi/hapi|next)['"]`)},
		{PatternListenPort, regexp.MustCompile(`\.listen\(\s*(\d{2,5})\b`)},
		{PatternListenPort, regexp.MustCompile(`process\.env\.PORT\s*(?:\|\||\?\?)\s*['"]?(\d{2,5})`)},
	}

	goPatterns = []sourcePattern{
		{PatternPackageMain, regexp.MustCompile(`^package\s+main\b`)},
		{PatternFuncMain, regexp.MustCompile(`^func\s+main\(\)`)},
		{PatternImport, regexp.MustCompile(`"(github\.com/gin-gonic/gin|github\.com/labstack/echo(?:/v4)?|github\.com/gofiber/fiber(?:/v2)?|github\.com/go-chi/chi(?:/v5)?|net/http)"`)},
		{PatternListenPort, regexp.MustCompile(`(?:ListenAndServe(?:TLS)?|\.Run|\.Listen|\.Start)\(\s*"[^"]*:(\d{2,5})"`)},
	}

	rustPatterns = []sourcePattern{
		{PatternFuncMain, regexp.MustCompile(`^(?:async\s+)?fn\s+main\s*\(`)},
		{PatternImport, regexp.MustCompile(`^use\s+(actix_web|axum|rocket|warp|hyper)\b`)},
		{PatternListenPort, regexp.MustCompile(`bind\(\s*"[^"]*:(\d{2,5})"`)},
		{PatternListenPort, regexp.MustCompile(`bind\(\s*\(\s*"[^"]*"\s*,\s*(\d{2,5})\s*\)`)},
	}

	javaPatterns = []sourcePattern{
		{PatternSpringApp, regexp.MustCompile(`^@SpringBootApplication\b`)},
		{PatternFuncMain, regexp.MustCompile(`public\s+static\s+void\s+main\s*\(`)},
	}
)

var sourcePatterns = map[string][]sourcePattern{
	".py":   pythonPatterns,
	".js":   javascriptPatterns,
	".mjs":  javascriptPatterns,
	".cjs":  javascriptPatterns,
	".ts":   javascriptPatterns,
	".go":   goPatterns,
	".rs":   rustPatterns,
	".java": javaPatterns,
	".kt":   javaPatterns,
}

// extractSource matches line patterns. Each (key, value) pair is reported
// once per file at its first line.
func extractSource(rel string, data []byte) ([]Signal, error) {
	patterns := sourcePatterns[path.Ext(rel)]

	var out []Signal
	eachLine(data, func(n int, line string) {
		for _, p := range patterns {
			if v, ok := p.match(line); ok {
				out = append(out, patternSignal(rel, p.key, v, n))
			}
		}
	})
	return firstPerKey(out), nil
}
