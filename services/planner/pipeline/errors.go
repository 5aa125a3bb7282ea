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
	"errors"
	"fmt"
)

// Sentinel errors for configuration problems. Use errors.Is to check.
var (
	ErrEmptyPipeline         = errors.New("pipeline has no operations")
	ErrEmptyName             = errors.New("operation name is empty")
	ErrDuplicateOperation    = errors.New("duplicate operation name")
	ErrNoCandidates          = errors.New("operation has no candidate implementations")
	ErrUnknownImplementation = errors.New("selected implementation is not a candidate")
	ErrUnknownKind           = errors.New("unknown operation kind")
	ErrIndexOutOfRange       = errors.New("operation index out of range")
	ErrInvalidSearchConfig   = errors.New("invalid search configuration")
)

// ConfigurationError reports an invalid pipeline or search configuration.
//
// It is the only error class that aborts a search. Everything else that can
// go wrong during a run is absorbed into the search statistics.
type ConfigurationError struct {
	// Field names the offending operation or config key. May be empty.
	Field string

	// Err is one of the sentinel errors above.
	Err error

	// Detail is an optional human-readable explanation.
	Detail string
}

// Error implements error.
func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" (%s)", e.Field)
	}
	msg += ": " + e.Err.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap returns the sentinel error.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func configError(field string, err error, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{
		Field:  field,
		Err:    err,
		Detail: fmt.Sprintf(format, args...),
	}
}

// IsConfigurationError reports whether err is, or wraps, a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
