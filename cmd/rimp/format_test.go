// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"strings"
	"testing"
	"time"

	"github.com/ocaravaca73/RIMP/telemetry"
)

func TestParseTimeFlagEmpty(t *testing.T) {
	t.Parallel()

	parsed, err := parseTimeFlag("")
	if err != nil {
		t.Fatalf("parseTimeFlag: %v", err)
	}
	if !parsed.IsZero() {
		t.Errorf("got %v, want zero time for empty value", parsed)
	}
}

func TestParseTimeFlagRelative(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value string
		ago   time.Duration
	}{
		{"1h", time.Hour},
		{"30m", 30 * time.Minute},
		{"2h30m", 2*time.Hour + 30*time.Minute},
		{"7d", 7 * 24 * time.Hour},
		{"30d", 30 * 24 * time.Hour},
	}

	for _, test := range tests {
		t.Run(test.value, func(t *testing.T) {
			t.Parallel()

			parsed, err := parseTimeFlag(test.value)
			if err != nil {
				t.Fatalf("parseTimeFlag(%q): %v", test.value, err)
			}
			want := time.Now().Add(-test.ago)
			if offset := parsed.Sub(want).Abs(); offset > 10*time.Second {
				t.Errorf("parseTimeFlag(%q) = %v, want about %v (off by %v)", test.value, parsed, want, offset)
			}
		})
	}
}

func TestParseTimeFlagAbsolute(t *testing.T) {
	t.Parallel()

	parsed, err := parseTimeFlag("2026-03-01T12:30:00Z")
	if err != nil {
		t.Fatalf("parseTimeFlag: %v", err)
	}
	want := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	if !parsed.Equal(want) {
		t.Errorf("got %v, want %v", parsed, want)
	}

	parsed, err = parseTimeFlag("2026-03-01")
	if err != nil {
		t.Fatalf("parseTimeFlag: %v", err)
	}
	want = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if !parsed.Equal(want) {
		t.Errorf("date-only: got %v, want midnight UTC %v", parsed, want)
	}
}

func TestParseTimeFlagInvalid(t *testing.T) {
	t.Parallel()

	for _, value := range []string{"tomorrow", "5x", "-1d", "03/01/2026"} {
		if _, err := parseTimeFlag(value); err == nil {
			t.Errorf("parseTimeFlag(%q): expected error", value)
		}
	}
}

func TestParseKindFlag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value string
		want  telemetry.Kind
	}{
		{"event", telemetry.KindEvent},
		{"metric", telemetry.KindMetric},
		{"trace", telemetry.KindSpan},
		{"span", telemetry.KindSpan},
		{"EVENT", telemetry.KindEvent},
	}
	for _, test := range tests {
		kind, err := parseKindFlag(test.value)
		if err != nil {
			t.Errorf("parseKindFlag(%q): %v", test.value, err)
			continue
		}
		if kind != test.want {
			t.Errorf("parseKindFlag(%q) = %q, want %q", test.value, kind, test.want)
		}
	}

	if _, err := parseKindFlag("log"); err == nil {
		t.Error("parseKindFlag(\"log\"): expected error")
	}
}

func TestFormatTimestamp(t *testing.T) {
	t.Parallel()

	if got := formatTimestamp(time.Time{}); got != "-" {
		t.Errorf("zero time: got %q, want %q", got, "-")
	}

	local := time.Date(2026, 3, 1, 14, 30, 5, 0, time.Local)
	if got := formatTimestamp(local); got != "2026-03-01T14:30:05" {
		t.Errorf("got %q, want %q", got, "2026-03-01T14:30:05")
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		duration time.Duration
		want     string
	}{
		{500 * time.Nanosecond, "500ns"},
		{42 * time.Microsecond, "42.0µs"},
		{1500 * time.Microsecond, "1.5ms"},
		{2500 * time.Millisecond, "2.50s"},
		{3 * time.Minute, "3m"},
		{3*time.Minute + 20*time.Second, "3m 20s"},
		{2 * time.Hour, "2h"},
		{2*time.Hour + 45*time.Minute, "2h 45m"},
		{-1500 * time.Microsecond, "-1.5ms"},
	}
	for _, test := range tests {
		if got := formatDuration(test.duration); got != test.want {
			t.Errorf("formatDuration(%v) = %q, want %q", test.duration, got, test.want)
		}
	}
}

func TestFormatUptime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		seconds float64
		want    string
	}{
		{90, "1m"},
		{3900, "1h 5m"},
		{59, "0m"},
	}
	for _, test := range tests {
		if got := formatUptime(test.seconds); got != test.want {
			t.Errorf("formatUptime(%v) = %q, want %q", test.seconds, got, test.want)
		}
	}
}

func TestRecordColumns(t *testing.T) {
	t.Parallel()

	event := &telemetry.Event{
		Source:   "auth",
		Message:  "login failed",
		Severity: telemetry.SeverityWarning,
	}
	if got := recordName(event); got != "auth" {
		t.Errorf("event name: got %q, want %q", got, "auth")
	}
	if got := recordDetail(event); got != "warning: login failed" {
		t.Errorf("event detail: got %q, want %q", got, "warning: login failed")
	}

	metric := &telemetry.Metric{
		Name:  "request.latency",
		Value: 42.5,
		Kind:  telemetry.MetricKindTimer,
		Unit:  "ms",
	}
	if got := recordName(metric); got != "request.latency" {
		t.Errorf("metric name: got %q, want %q", got, "request.latency")
	}
	if got := recordDetail(metric); got != "42.5 ms (timer)" {
		t.Errorf("metric detail: got %q, want %q", got, "42.5 ms (timer)")
	}

	span := &telemetry.Span{
		TraceID:   telemetry.TraceID{0xab, 0xcd},
		Operation: "db.query",
		Duration:  150 * time.Millisecond,
	}
	if got := recordName(span); got != "db.query" {
		t.Errorf("span name: got %q, want %q", got, "db.query")
	}
	detail := recordDetail(span)
	if !strings.HasPrefix(detail, "150.0ms trace=abcd") {
		t.Errorf("span detail: got %q, want prefix %q", detail, "150.0ms trace=abcd")
	}
}

func TestRecordDetailTruncatesLongMessages(t *testing.T) {
	t.Parallel()

	event := &telemetry.Event{
		Source:   "batch",
		Message:  strings.Repeat("x", 200),
		Severity: telemetry.SeverityInfo,
	}
	detail := recordDetail(event)
	if !strings.HasSuffix(detail, "...") {
		t.Errorf("detail %q should be truncated with ellipsis", detail)
	}
	if len(detail) > len("info: ")+80 {
		t.Errorf("detail length %d exceeds the column cap", len(detail))
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value     string
		maxLength int
		want      string
	}{
		{"short", 10, "short"},
		{"exactly-10", 10, "exactly-10"},
		{"this is too long", 10, "this is..."},
		{"abc", 2, "ab"},
	}
	for _, test := range tests {
		if got := truncate(test.value, test.maxLength); got != test.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", test.value, test.maxLength, got, test.want)
		}
	}
}

func TestFilterKind(t *testing.T) {
	t.Parallel()

	batch := telemetry.Batch{
		&telemetry.Event{Source: "a"},
		&telemetry.Metric{Name: "m"},
		&telemetry.Event{Source: "b"},
		&telemetry.Span{Operation: "op"},
	}

	events := filterKind(batch, telemetry.KindEvent)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].(*telemetry.Event).Source != "a" || events[1].(*telemetry.Event).Source != "b" {
		t.Error("kind filtering must preserve order")
	}

	spans := filterKind(batch, telemetry.KindSpan)
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
}
