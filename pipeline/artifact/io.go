// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrInvalidArtifact indicates an envelope failed schema validation at a
// stage boundary.
var ErrInvalidArtifact = errors.New("invalid artifact")

// Validator is implemented by every envelope and record that carries
// boundary invariants.
type Validator interface {
	Validate() error
}

// Save validates v and writes it as indented JSON, atomically: the file is
// written to a temporary sibling and renamed into place, so a concurrent
// reader sees either the old complete artifact or the new one.
//
// Inputs:
//   - path: Destination file. Parent directories are created as needed.
//   - v: The envelope to persist. Must pass Validate.
//
// Outputs:
//   - error: Non-nil if validation or any filesystem step fails.
func Save(path string, v Validator) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create artifact directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp artifact: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publish artifact: %w", err)
	}
	return nil
}

// load decodes JSON into v and validates it.
func load(path string, v Validator) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read artifact %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode artifact %s: %w", path, err)
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidArtifact, path, err)
	}
	return nil
}

// LoadBlueprint reads and validates an analysis blueprint.
func LoadBlueprint(path string) (*Blueprint, error) {
	var b Blueprint
	if err := load(path, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// LoadManifest reads and validates a synthesis manifest.
func LoadManifest(path string) (*Manifest, error) {
	var m Manifest
	if err := load(path, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadCertificate reads and validates a parity certificate.
func LoadCertificate(path string) (*ParityCertificate, error) {
	var c ParityCertificate
	if err := load(path, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadReport reads and validates a benchmark report.
func LoadReport(path string) (*Report, error) {
	var r Report
	if err := load(path, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
