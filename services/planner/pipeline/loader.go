// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Definition is the on-disk form of a pipeline.
type Definition struct {
	Name       string      `json:"name" yaml:"name"`
	Operations []Operation `json:"operations" yaml:"operations"`
}

// Parse decodes a YAML (or JSON, which is valid YAML) pipeline definition
// and validates it.
func Parse(data []byte) (*Pipeline, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse pipeline definition: %w", err)
	}
	if def.Name == "" {
		def.Name = "pipeline"
	}
	return New(def.Name, def.Operations...)
}

// LoadFile reads and parses a pipeline definition file.
func LoadFile(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline definition: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ToDefinition returns the serializable form of p.
func (p *Pipeline) ToDefinition() Definition {
	return Definition{
		Name:       p.name,
		Operations: p.Operations(),
	}
}

// MarshalYAML implements yaml.Marshaler.
func (p *Pipeline) MarshalYAML() (any, error) {
	return p.ToDefinition(), nil
}
