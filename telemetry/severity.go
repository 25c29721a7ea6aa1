// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import "fmt"

// Severity classifies an event's importance. Values are ordered:
// filtering with "severity >= SeverityWarning" matches warning,
// error, and critical. The zero value is invalid — an event without
// an explicit severity is a bug, not a default.
type Severity uint8

const (
	// SeverityDebug is diagnostic detail, normally filtered out of
	// production views.
	SeverityDebug Severity = 1

	// SeverityInfo is routine operational narrative.
	SeverityInfo Severity = 2

	// SeverityWarning is a condition worth attention that did not
	// fail anything yet.
	SeverityWarning Severity = 3

	// SeverityError is a failed operation.
	SeverityError Severity = 4

	// SeverityCritical is a failure threatening the whole process.
	SeverityCritical Severity = 5
)

// String returns the lowercase severity name, or "severity(N)" for
// values outside the defined range.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", uint8(s))
	}
}

// MarshalText implements encoding.TextMarshaler. Severities serialize
// as their lowercase names in both JSON and CBOR. Marshaling a value
// outside the defined range fails with an error.
func (s Severity) MarshalText() ([]byte, error) {
	if s < SeverityDebug || s > SeverityCritical {
		return nil, fmt.Errorf("invalid severity %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(data []byte) error {
	parsed, err := ParseSeverity(string(data))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSeverity converts a severity name to its value. Valid names
// are "debug", "info", "warning", "error", and "critical".
func ParseSeverity(name string) (Severity, error) {
	switch name {
	case "debug":
		return SeverityDebug, nil
	case "info":
		return SeverityInfo, nil
	case "warning":
		return SeverityWarning, nil
	case "error":
		return SeverityError, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return 0, fmt.Errorf("unknown severity %q", name)
	}
}
