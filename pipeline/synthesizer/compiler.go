// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package synthesizer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/vesselforge/vesselforge/pipeline/profile"
)

// ErrCompileTimeout indicates the compiler exceeded the configured deadline.
var ErrCompileTimeout = errors.New("compiler timed out")

// compileError carries the compiler's diagnostic output for a failed build.
// The diagnostic ends up on the vessel record so the orchestrator can show
// it without re-running the compiler.
type compileError struct {
	exitErr    error
	diagnostic string
}

func (e *compileError) Error() string {
	if e.diagnostic == "" {
		return e.exitErr.Error()
	}
	return fmt.Sprintf("%v: %s", e.exitErr, e.diagnostic)
}

func (e *compileError) Unwrap() error { return e.exitErr }

// runCompiler invokes the target's compiler on a rendered source file.
//
// Inputs:
//   - ctx: Bounds the compiler's runtime together with timeout.
//   - tc: The target's toolchain (compiler executable plus flags).
//   - flags: Profile-derived flags, passed before the toolchain's own.
//   - srcPath: The rendered source file.
//   - outPath: Where the binary must be written.
//   - timeout: Per-invocation wall-clock limit.
//
// Outputs:
//   - error: Non-nil on timeout, non-zero exit, or a missing output binary.
//     Compiler diagnostics are embedded in the error text.
func runCompiler(ctx context.Context, tc profile.TargetToolchain, flags []string, srcPath, outPath string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, flags...), "-o", outPath, srcPath)
	cmd := exec.CommandContext(ctx, tc.Compiler, args...)
	output, err := cmd.CombinedOutput()

	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w after %v: %s %s", ErrCompileTimeout, timeout, tc.Compiler, srcPath)
	}
	if err != nil {
		return &compileError{exitErr: err, diagnostic: strings.TrimSpace(string(output))}
	}

	if _, statErr := os.Stat(outPath); statErr != nil {
		return fmt.Errorf("compiler exited cleanly but produced no binary at %s", outPath)
	}
	return nil
}

// shimTemplate wraps the original interpreted source in an executable
// wrapper so fallback vessels expose the same invocation surface as
// compiled ones.
const shimTemplate = `#!/bin/sh
# interpreted fallback shim
exec python3 - "$@" <<'VESSEL_SHIM_EOF'
%s
VESSEL_SHIM_EOF
`

// writeShim writes the interpreted fallback shim for a function and returns
// its path. Idempotent: the shim content depends only on the source.
func writeShim(workDir, name, source string) (string, error) {
	path := filepath.Join(workDir, name+".shim.sh")
	content := fmt.Sprintf(shimTemplate, source)
	if err := os.WriteFile(path, []byte(content), 0750); err != nil {
		return "", fmt.Errorf("write fallback shim for %s: %w", name, err)
	}
	return path, nil
}
