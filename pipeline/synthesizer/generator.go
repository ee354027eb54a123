// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package synthesizer

import (
	"fmt"
	"strings"

	"github.com/vesselforge/vesselforge/pipeline/artifact"
	"github.com/vesselforge/vesselforge/pipeline/profile"
)

// CodeGenerator renders the target-language source for one function.
//
// Description:
//
//	Generation must be deterministic: identical spec, target, and profile
//	must produce byte-identical output, because the rendered source feeds
//	the build-cache hash. Generators that consult ambient state (clocks,
//	temp paths, random names) break caching.
type CodeGenerator interface {
	// Generate returns the complete rendered source for the function.
	Generate(spec artifact.FunctionSpec, target artifact.Target, p *profile.Profile) (string, error)
}

// TemplateGenerator is the built-in generator: a mechanical transliteration
// of the interpreted body wrapped in the target's scaffold template.
//
// It handles the structural conversion (parameters, comments, literals,
// branch keywords); anything it cannot translate is preserved verbatim so
// the compiler surfaces it as a diagnostic instead of the generator
// silently mistranslating.
type TemplateGenerator struct {
	registry *TemplateRegistry
}

// Compile-time interface check.
var _ CodeGenerator = (*TemplateGenerator)(nil)

// NewTemplateGenerator creates a generator over a template registry.
// A nil registry gets the built-in scaffolds.
func NewTemplateGenerator(registry *TemplateRegistry) *TemplateGenerator {
	if registry == nil {
		registry = NewTemplateRegistry()
	}
	return &TemplateGenerator{registry: registry}
}

// Generate implements CodeGenerator.
func (g *TemplateGenerator) Generate(spec artifact.FunctionSpec, target artifact.Target, p *profile.Profile) (string, error) {
	tmpl, err := g.registry.Get(target)
	if err != nil {
		return "", err
	}

	body, err := extractBody(spec.Source)
	if err != nil {
		return "", fmt.Errorf("generate %s: %w", spec.Name, err)
	}

	data := scaffoldData{
		Name:       spec.Name,
		Params:     renderParams(spec.ArgHints, target),
		ReturnHint: mapHint(spec.ReturnHint, target),
		Body:       indentBody(translateBody(body, target), "    "),
		Unsafe:     p.Unsafe && target != artifact.TargetMemorySafeNative,
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render scaffold for %s: %w", spec.Name, err)
	}
	return sb.String(), nil
}

// extractBody strips the def header (which may span multiple lines up to the
// terminating colon) and dedents the remaining body.
func extractBody(source string) (string, error) {
	lines := strings.Split(source, "\n")
	bodyStart := -1
	for i, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if strings.HasSuffix(trimmed, ":") {
			bodyStart = i + 1
			break
		}
	}
	if bodyStart < 0 || bodyStart >= len(lines) {
		return "", fmt.Errorf("no function body found")
	}

	body := lines[bodyStart:]
	indent := commonIndent(body)
	for i, line := range body {
		body[i] = strings.TrimPrefix(line, indent)
	}
	return strings.Join(body, "\n"), nil
}

// commonIndent finds the shortest leading whitespace among non-blank lines.
func commonIndent(lines []string) string {
	indent := ""
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		ws := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if indent == "" || len(ws) < len(indent) {
			indent = ws
		}
	}
	return indent
}

// tokenSwaps are the literal/keyword substitutions applied line by line.
var tokenSwaps = []struct{ from, to string }{
	{"True", "true"},
	{"False", "false"},
	{"None", "nil"},
	{"elif ", "} else if "},
	{" and ", " && "},
	{" or ", " || "},
	{"not ", "!"},
}

// translateBody applies the mechanical token conversion. Comment markers are
// converted first so swaps never rewrite comment text prefixes.
func translateBody(body string, target artifact.Target) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx] + "//" + line[idx+1:]
		}
		code := line
		comment := ""
		if idx := strings.Index(line, "//"); idx >= 0 {
			code, comment = line[:idx], line[idx:]
		}
		for _, swap := range tokenSwaps {
			code = strings.ReplaceAll(code, swap.from, swap.to)
		}
		lines[i] = code + comment
	}
	return strings.Join(lines, "\n")
}

// hintTable maps analyzer type hints to target-language types.
var hintTable = map[artifact.Target]map[string]string{
	artifact.TargetMemorySafeNative: {
		"int": "i64", "float": "f64", "str": "String", "bool": "bool", "bytes": "Vec<u8>",
	},
	artifact.TargetCompiledNative: {
		"int": "i64", "float": "f64", "str": "String", "bool": "bool", "bytes": "Vec<u8>",
	},
	artifact.TargetCompiledConcurrent: {
		"int": "int64", "float": "float64", "str": "string", "bool": "bool", "bytes": "[]byte",
	},
}

// mapHint converts an analyzer hint to the target type. Unknown hints pass
// through so the compiler reports them.
func mapHint(hint string, target artifact.Target) string {
	if hint == "" {
		return ""
	}
	if mapped, ok := hintTable[target][hint]; ok {
		return mapped
	}
	return hint
}

// renderParams renders the positional parameter list from the ordered hints.
// Argument names are synthesized since the hints are positional.
func renderParams(hints []string, target artifact.Target) string {
	parts := make([]string, 0, len(hints))
	for i, hint := range hints {
		typ := mapHint(hint, target)
		if typ == "" || hint == "any" || hint == "variadic" {
			typ = mapHint("float", target)
		}
		if target == artifact.TargetCompiledConcurrent {
			parts = append(parts, fmt.Sprintf("a%d %s", i, typ))
		} else {
			parts = append(parts, fmt.Sprintf("a%d: %s", i, typ))
		}
	}
	return strings.Join(parts, ", ")
}
