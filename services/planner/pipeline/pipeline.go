// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline describes one point in the configuration search space:
// an ordered, linear chain of stages, each with a selected implementation
// out of a fixed candidate list.
//
// Pipelines are immutable. Every mutation (switching an implementation,
// swapping two stages) returns a new Pipeline built from cloned operations,
// so a Pipeline can be shared freely between search tree nodes, the
// visited set and the Pareto frontier.
package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// OperationKind is the closed set of stage kinds.
type OperationKind string

const (
	KindMap       OperationKind = "map"
	KindFilter    OperationKind = "filter"
	KindReduce    OperationKind = "reduce"
	KindTransform OperationKind = "transform"
)

// String returns the string representation of the kind.
func (k OperationKind) String() string {
	return string(k)
}

// Valid reports whether k is one of the known kinds.
func (k OperationKind) Valid() bool {
	switch k {
	case KindMap, KindFilter, KindReduce, KindTransform:
		return true
	default:
		return false
	}
}

// Operation is one stage of a pipeline.
type Operation struct {
	// Name is unique within a pipeline.
	Name string `json:"name" yaml:"name"`

	// Kind is the stage kind. Reorder rules key off it.
	Kind OperationKind `json:"kind" yaml:"kind"`

	// Candidates is the ordered list of interchangeable implementations.
	Candidates []string `json:"candidates" yaml:"candidates"`

	// Selected is the current implementation. Must be one of Candidates.
	// Empty selects the first candidate.
	Selected string `json:"selected" yaml:"selected"`

	// Params are implementation parameters passed through to the executor.
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`

	// Spec is an optional prompt or stage specification.
	Spec string `json:"spec,omitempty" yaml:"spec,omitempty"`
}

// Clone returns a deep copy of the operation.
func (o Operation) Clone() Operation {
	c := o
	c.Candidates = slices.Clone(o.Candidates)
	if o.Params != nil {
		c.Params = maps.Clone(o.Params)
	}
	return c
}

// HasCandidate reports whether impl is one of the operation's candidates.
func (o Operation) HasCandidate(impl string) bool {
	return slices.Contains(o.Candidates, impl)
}

// Switchable reports whether the operation has an alternative implementation.
func (o Operation) Switchable() bool {
	return len(o.Candidates) >= 2
}

// String returns "name(selected)".
func (o Operation) String() string {
	return fmt.Sprintf("%s(%s)", o.Name, o.Selected)
}

// Pipeline is an immutable, validated, non-empty sequence of operations.
//
// Thread Safety: Safe for concurrent use. No method mutates the receiver.
type Pipeline struct {
	name string
	ops  []Operation
	hash string
}

// New validates the operations and builds a Pipeline from clones of them.
//
// Inputs:
//   - name: Display name, not part of the identity.
//   - ops: Ordered operations. Must be non-empty with unique names.
//
// Outputs:
//   - *Pipeline: The pipeline, nil on error.
//   - error: A *ConfigurationError describing the first problem found.
func New(name string, ops ...Operation) (*Pipeline, error) {
	if len(ops) == 0 {
		return nil, configError("operations", ErrEmptyPipeline, "at least one operation is required")
	}

	cloned := make([]Operation, len(ops))
	seen := make(map[string]struct{}, len(ops))
	for i, op := range ops {
		op = op.Clone()
		if op.Name == "" {
			return nil, configError(fmt.Sprintf("operations[%d]", i), ErrEmptyName, "every operation needs a name")
		}
		if _, dup := seen[op.Name]; dup {
			return nil, configError(op.Name, ErrDuplicateOperation, "name appears more than once")
		}
		seen[op.Name] = struct{}{}

		if !op.Kind.Valid() {
			return nil, configError(op.Name, ErrUnknownKind, "kind %q", op.Kind)
		}
		if len(op.Candidates) == 0 {
			return nil, configError(op.Name, ErrNoCandidates, "candidates list is empty")
		}
		if op.Selected == "" {
			op.Selected = op.Candidates[0]
		}
		if !op.HasCandidate(op.Selected) {
			return nil, configError(op.Name, ErrUnknownImplementation, "%q not in %v", op.Selected, op.Candidates)
		}
		cloned[i] = op
	}

	p := &Pipeline{name: name, ops: cloned}
	p.hash = computeContentHash(cloned)
	return p, nil
}

// MustNew is New that panics on error. Intended for tests and fixtures.
func MustNew(name string, ops ...Operation) *Pipeline {
	p, err := New(name, ops...)
	if err != nil {
		panic(err)
	}
	return p
}

// computeContentHash hashes the ordered (name, selected, kind) tuples.
// Unit/record separators keep adjacent fields from running together.
func computeContentHash(ops []Operation) string {
	h := sha256.New()
	for _, op := range ops {
		h.Write([]byte(op.Name))
		h.Write([]byte{0x1f})
		h.Write([]byte(op.Selected))
		h.Write([]byte{0x1f})
		h.Write([]byte(op.Kind))
		h.Write([]byte{0x1e})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Name returns the display name.
func (p *Pipeline) Name() string {
	return p.name
}

// ContentHash returns the structural identity of the pipeline.
// Two pipelines with the same ordered (name, selected, kind) tuples have
// the same hash regardless of how they were built.
func (p *Pipeline) ContentHash() string {
	return p.hash
}

// Len returns the number of operations.
func (p *Pipeline) Len() int {
	return len(p.ops)
}

// At returns a clone of the operation at index i.
// Panics if i is out of range, like a slice index.
func (p *Pipeline) At(i int) Operation {
	return p.ops[i].Clone()
}

// Operations returns clones of all operations in order.
func (p *Pipeline) Operations() []Operation {
	out := make([]Operation, len(p.ops))
	for i, op := range p.ops {
		out[i] = op.Clone()
	}
	return out
}

// Operation returns the operation with the given name.
func (p *Pipeline) Operation(name string) (Operation, bool) {
	for _, op := range p.ops {
		if op.Name == name {
			return op.Clone(), true
		}
	}
	return Operation{}, false
}

// Index returns the position of the named operation, or -1.
func (p *Pipeline) Index(name string) int {
	for i, op := range p.ops {
		if op.Name == name {
			return i
		}
	}
	return -1
}

// WithSelected returns a copy of the pipeline where the operation at index
// selects impl instead of its current implementation.
func (p *Pipeline) WithSelected(index int, impl string) (*Pipeline, error) {
	if index < 0 || index >= len(p.ops) {
		return nil, configError("index", ErrIndexOutOfRange, "%d not in [0,%d)", index, len(p.ops))
	}
	ops := p.Operations()
	ops[index].Selected = impl
	return New(p.name, ops...)
}

// WithSwapped returns a copy of the pipeline where the operations at left
// and left+1 trade places.
func (p *Pipeline) WithSwapped(left int) (*Pipeline, error) {
	if left < 0 || left+1 >= len(p.ops) {
		return nil, configError("index", ErrIndexOutOfRange, "cannot swap %d and %d in a pipeline of %d", left, left+1, len(p.ops))
	}
	ops := p.Operations()
	ops[left], ops[left+1] = ops[left+1], ops[left]
	return New(p.name, ops...)
}

// Equal reports whether both pipelines have the same content hash.
func (p *Pipeline) Equal(other *Pipeline) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.hash == other.hash
}

// String renders the pipeline as "a(impl) -> b(impl)".
func (p *Pipeline) String() string {
	parts := make([]string, len(p.ops))
	for i, op := range p.ops {
		parts[i] = op.String()
	}
	return strings.Join(parts, " -> ")
}
