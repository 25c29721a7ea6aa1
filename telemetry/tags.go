// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

// Tags are string key-value annotations carried by every record:
// deployment environment, host, service name, request correlation.
type Tags map[string]string

// Clone returns a copy of the tag set. A nil receiver yields an
// empty, non-nil map, so cloned tags are always safe to mutate.
func (t Tags) Clone() Tags {
	cloned := make(Tags, len(t))
	for key, value := range t {
		cloned[key] = value
	}
	return cloned
}

// Merge fills keys absent from t with values from defaults. Keys
// already present keep their values: a record's own tags win over
// pipeline defaults on collision. The receiver must be non-nil when
// defaults is non-empty; records passing through a collector always
// carry a cloned, non-nil tag map.
func (t Tags) Merge(defaults Tags) {
	for key, value := range defaults {
		if _, exists := t[key]; !exists {
			t[key] = value
		}
	}
}
