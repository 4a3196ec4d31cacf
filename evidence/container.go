// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package evidence

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// dockerfileLine is one logical instruction with its first physical line.
type dockerfileLine struct {
	n    int
	text string
}

func joinContinuationLines(data []byte) []dockerfileLine {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lines := []dockerfileLine{}
	current, start, n := "", 0, 0
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())
		if current == "" {
			start = n
		}
		if strings.HasSuffix(line, "\\") {
			line = strings.TrimSpace(strings.TrimSuffix(line, "\\"))
			current = strings.TrimSpace(current + " " + line)
			continue
		}
		if current != "" {
			line = strings.TrimSpace(current + " " + line)
			current = ""
		}
		lines = append(lines, dockerfileLine{n: start, text: line})
	}
	if current != "" {
		lines = append(lines, dockerfileLine{n: start, text: current})
	}
	return lines
}

// parseDockerCommandValue returns the argv of an exec-form array, or the
// shell form wrapped in "sh -c".
func parseDockerCommandValue(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if strings.HasPrefix(value, "[") {
		ret := []string{}
		if err := json.Unmarshal([]byte(value), &ret); err == nil {
			return ret
		}
	}
	return []string{"sh", "-c", value}
}

// extractDockerfile records what an existing Dockerfile already declares.
// Only the final stage's base image, ports and commands are kept.
func extractDockerfile(rel string, data []byte) ([]Signal, error) {
	var out []Signal
	for _, line := range joinContinuationLines(data) {
		if line.text == "" || strings.HasPrefix(line.text, "#") {
			continue
		}
		instruction, value, ok := strings.Cut(line.text, " ")
		if !ok {
			continue
		}

		switch strings.ToUpper(instruction) {
		case "FROM":
			fields := strings.Fields(value)
			for len(fields) > 0 && strings.HasPrefix(fields[0], "--") {
				fields = fields[1:]
			}
			if len(fields) > 0 {
				out = dropKeys(out, "from", "expose", "entrypoint", "cmd")
				out = append(out, patternSignal(rel, "from", String(fields[0]), line.n))
			}
		case "EXPOSE":
			for _, token := range strings.Fields(value) {
				port, _, _ := strings.Cut(token, "/")
				if _, err := strconv.Atoi(port); err == nil {
					out = append(out, patternSignal(rel, "expose", String(port), line.n))
				}
			}
		case "ENTRYPOINT":
			out = dropKeys(out, "entrypoint")
			out = append(out, patternSignal(rel, "entrypoint", List(parseDockerCommandValue(value)...), line.n))
		case "CMD":
			out = dropKeys(out, "cmd")
			out = append(out, patternSignal(rel, "cmd", List(parseDockerCommandValue(value)...), line.n))
		}
	}
	return out, nil
}

func dropKeys(signals []Signal, keys ...string) []Signal {
	out := signals[:0]
	for _, sig := range signals {
		drop := false
		for _, key := range keys {
			if sig.Key == key {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, sig)
		}
	}
	return out
}

type composeFile struct {
	Services map[string]composeService `yaml:"services"`
}

type composeService struct {
	Build interface{}   `yaml:"build"`
	Ports []interface{} `yaml:"ports"`
}

// extractCompose records the container side of published ports for
// services built from this repository.
func extractCompose(rel string, data []byte) ([]Signal, error) {
	doc := composeFile{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", rel, err)
	}

	ports := map[string]struct{}{}
	for _, name := range sortedKeys(doc.Services) {
		service := doc.Services[name]
		if service.Build == nil {
			continue
		}
		for _, raw := range service.Ports {
			if port := composeContainerPort(raw); port != "" {
				ports[port] = struct{}{}
			}
		}
	}
	if len(ports) == 0 {
		return nil, nil
	}
	return []Signal{fieldSignal(rel, "ports", List(sortedKeys(ports)...))}, nil
}

func composeContainerPort(raw interface{}) string {
	var value string
	switch v := raw.(type) {
	case string:
		value = v
	case int:
		value = strconv.Itoa(v)
	case map[string]interface{}:
		if target, ok := v["target"]; ok {
			value = fmt.Sprint(target)
		}
	}
	value, _, _ = strings.Cut(value, "/")
	if i := strings.LastIndex(value, ":"); i >= 0 {
		value = value[i+1:]
	}
	if _, err := strconv.Atoi(value); err != nil {
		return ""
	}
	return value
}

func extractSpringProperties(rel string, data []byte) ([]Signal, error) {
	var out []Signal
	eachLine(data, func(n int, line string) {
		key, value, ok := strings.Cut(line, "=")
		if !ok || strings.TrimSpace(key) != "server.port" {
			return
		}
		sig := fieldSignal(rel, "server.port", String(strings.TrimSpace(value)))
		sig.Line = n
		out = append(out, sig)
	})
	return out, nil
}

func extractSpringYAML(rel string, data []byte) ([]Signal, error) {
	doc := struct {
		Server struct {
			Port interface{} `yaml:"port"`
		} `yaml:"server"`
	}{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", rel, err)
	}
	if doc.Server.Port == nil {
		return nil, nil
	}
	return []Signal{fieldSignal(rel, "server.port", String(fmt.Sprint(doc.Server.Port)))}, nil
}
