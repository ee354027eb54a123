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
	"sync"
	"text/template"

	"github.com/vesselforge/vesselforge/pipeline/artifact"
)

// TemplateRegistry maps targets to source scaffolding templates.
//
// Description:
//
//	Each compiled target has a template producing the target-language
//	scaffold around the translated function body. Custom targets or
//	alternative scaffolds register their own templates; lookups for an
//	unregistered target fail rather than silently falling back.
//
// Thread Safety: Safe for concurrent use.
type TemplateRegistry struct {
	mu        sync.RWMutex
	templates map[artifact.Target]*template.Template
}

// NewTemplateRegistry creates a registry pre-loaded with the built-in
// scaffolds for the three compiled targets.
func NewTemplateRegistry() *TemplateRegistry {
	r := &TemplateRegistry{templates: make(map[artifact.Target]*template.Template)}
	for target, text := range builtinScaffolds {
		r.MustRegister(target, text)
	}
	return r
}

// Register parses and stores a scaffold template for a target, replacing
// any previous registration.
func (r *TemplateRegistry) Register(target artifact.Target, text string) error {
	if !target.Valid() {
		return fmt.Errorf("register scaffold: unknown target %q", target)
	}
	tmpl, err := template.New(string(target)).Parse(text)
	if err != nil {
		return fmt.Errorf("register scaffold for %s: %w", target, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[target] = tmpl
	return nil
}

// MustRegister is Register that panics on error. For built-ins and init-time
// registration only.
func (r *TemplateRegistry) MustRegister(target artifact.Target, text string) {
	if err := r.Register(target, text); err != nil {
		panic(err)
	}
}

// Get returns the scaffold template for a target.
func (r *TemplateRegistry) Get(target artifact.Target) (*template.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tmpl, ok := r.templates[target]
	if !ok {
		return nil, fmt.Errorf("no scaffold registered for target %q", target)
	}
	return tmpl, nil
}

// scaffoldData is the data bound into a scaffold template.
type scaffoldData struct {
	// Name is the function name.
	Name string

	// Params is the rendered parameter list.
	Params string

	// ReturnHint is the declared return type hint, possibly empty.
	ReturnHint string

	// Body is the translated function body, already indented one level.
	Body string

	// Unsafe is true when the profile permits unchecked operations.
	Unsafe bool
}

// indentBody shifts every line of a body one level right.
func indentBody(body, prefix string) string {
	lines := strings.Split(strings.TrimRight(body, "\n"), "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}

// builtinScaffolds hold the default per-target source shapes. The memory-safe
// target never emits unchecked blocks regardless of the profile.
var builtinScaffolds = map[artifact.Target]string{
	artifact.TargetMemorySafeNative: `// vessel: {{.Name}} (memory-safe-native)
#[no_mangle]
pub extern "C" fn {{.Name}}({{.Params}}) {{if .ReturnHint}}-> {{.ReturnHint}} {{end}}{
{{.Body}}
}
`,
	artifact.TargetCompiledNative: `// vessel: {{.Name}} (compiled-native)
{{if .Unsafe}}#[allow(unsafe_code)]
{{end}}#[no_mangle]
pub extern "C" fn {{.Name}}({{.Params}}) {{if .ReturnHint}}-> {{.ReturnHint}} {{end}}{
{{.Body}}
}
`,
	artifact.TargetCompiledConcurrent: `// vessel: {{.Name}} (compiled-concurrent)
package main

func {{.Name}}({{.Params}}) {{.ReturnHint}}{
{{.Body}}
}
`,
}
