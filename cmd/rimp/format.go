// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ocaravaca73/RIMP/telemetry"
)

// parseTimeFlag parses a time specification from a CLI flag value.
// Accepts three formats:
//   - Go duration strings: "1h", "30m", "2h30m" — resolved relative
//     to now ("1h" means "1 hour ago")
//   - Day suffixes: "7d", "30d" — shorthand for multiples of 24h
//   - Timestamps: RFC 3339 ("2026-03-01T12:00:00Z") or date-only
//     ("2026-03-01"), interpreted as midnight UTC
//
// Returns the zero time for an empty value, which queries treat as
// an unbounded side.
func parseTimeFlag(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}

	// Day suffix first: not handled by time.ParseDuration.
	if strings.HasSuffix(value, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(value, "d"))
		if err == nil && days > 0 {
			return time.Now().Add(-time.Duration(days) * 24 * time.Hour), nil
		}
	}

	duration, err := time.ParseDuration(value)
	if err == nil {
		return time.Now().Add(-duration), nil
	}

	timestamp, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return timestamp, nil
	}

	timestamp, err = time.Parse("2006-01-02", value)
	if err == nil {
		return timestamp, nil
	}

	return time.Time{}, fmt.Errorf("invalid time %q: expected duration (1h, 7d), RFC 3339 timestamp, or date (2006-01-02)", value)
}

// parseKindFlag maps a CLI kind name to the record kind. Accepts the
// envelope names (event, metric, trace); "span" is an alias for
// trace.
func parseKindFlag(name string) (telemetry.Kind, error) {
	switch strings.ToLower(name) {
	case "event":
		return telemetry.KindEvent, nil
	case "metric":
		return telemetry.KindMetric, nil
	case "trace", "span":
		return telemetry.KindSpan, nil
	default:
		return "", fmt.Errorf("invalid kind %q: expected event, metric, or trace", name)
	}
}

// formatTimestamp formats a record time as a local-time string with
// second precision. The zero time formats as "-".
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02T15:04:05")
}

// formatDuration formats a duration with the largest appropriate
// unit: ns, µs, ms, s, or compound minutes+seconds / hours+minutes
// for longer durations.
func formatDuration(duration time.Duration) string {
	if duration < 0 {
		return "-" + formatDuration(-duration)
	}
	switch {
	case duration < time.Microsecond:
		return fmt.Sprintf("%dns", duration.Nanoseconds())
	case duration < time.Millisecond:
		return fmt.Sprintf("%.1fµs", float64(duration)/float64(time.Microsecond))
	case duration < time.Second:
		return fmt.Sprintf("%.1fms", float64(duration)/float64(time.Millisecond))
	case duration < time.Minute:
		return fmt.Sprintf("%.2fs", float64(duration)/float64(time.Second))
	case duration < time.Hour:
		minutes := int(duration / time.Minute)
		seconds := int((duration % time.Minute) / time.Second)
		if seconds == 0 {
			return fmt.Sprintf("%dm", minutes)
		}
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		hours := int(duration / time.Hour)
		minutes := int((duration % time.Hour) / time.Minute)
		if minutes == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
}

// formatUptime formats seconds as a human-readable uptime string.
func formatUptime(seconds float64) string {
	duration := time.Duration(seconds * float64(time.Second))
	hours := int(duration / time.Hour)
	minutes := int((duration % time.Hour) / time.Minute)
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// recordName returns the identifying name column for a record: the
// event source, metric name, or span operation.
func recordName(record telemetry.Record) string {
	switch r := record.(type) {
	case *telemetry.Event:
		return r.Source
	case *telemetry.Metric:
		return r.Name
	case *telemetry.Span:
		return r.Operation
	default:
		return ""
	}
}

// recordDetail returns the kind-specific detail column for a record:
// severity and message for events, value and kind for metrics,
// duration and trace ID for spans.
func recordDetail(record telemetry.Record) string {
	switch r := record.(type) {
	case *telemetry.Event:
		return fmt.Sprintf("%s: %s", r.Severity, truncate(r.Message, 80))
	case *telemetry.Metric:
		value := strconv.FormatFloat(r.Value, 'g', -1, 64)
		if r.Unit != "" {
			value += " " + r.Unit
		}
		return fmt.Sprintf("%s (%s)", value, r.Kind)
	case *telemetry.Span:
		detail := formatDuration(r.Duration)
		if !r.TraceID.IsZero() {
			detail += " trace=" + r.TraceID.String()
		}
		return detail
	default:
		return ""
	}
}

// truncate shortens a string to maxLength, appending "..." if
// truncated.
func truncate(value string, maxLength int) string {
	if len(value) <= maxLength {
		return value
	}
	if maxLength <= 3 {
		return value[:maxLength]
	}
	return value[:maxLength-3] + "..."
}
