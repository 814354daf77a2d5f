/*
Copyright 2024 KubeNexus Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package resourcemodel parses Kubernetes-style CPU/memory quantity strings
// and derives per-node resource usage. It has no dependency on the
// placers or the pattern detector; everything here is a pure function of
// its inputs.
package resourcemodel

import (
	"strconv"
	"strings"
)

// memUnits is ordered longest-suffix-first so that "Mi" is never mistaken
// for "M".
var memUnits = []struct {
	suffix     string
	multiplier float64
}{
	{"Ki", 1024},
	{"Mi", 1024 * 1024},
	{"Gi", 1024 * 1024 * 1024},
	{"Ti", 1024 * 1024 * 1024 * 1024},
	{"K", 1000},
	{"M", 1000 * 1000},
	{"G", 1000 * 1000 * 1000},
	{"T", 1000 * 1000 * 1000 * 1000},
}

// ParseCPUMillis converts a Kubernetes CPU quantity string to millicores.
// Accepts a trailing "m" (millicores), "n" (nanocores), or no suffix
// (whole cores). An empty string parses to 0. Unparseable values parse to
// 0, matching the behavior of the system this was distilled from: callers
// treat a parse failure the same as an explicit zero request.
func ParseCPUMillis(cpu string) float64 {
	if cpu == "" {
		return 0
	}

	switch {
	case strings.HasSuffix(cpu, "m"):
		v, err := strconv.ParseFloat(strings.TrimSuffix(cpu, "m"), 64)
		if err != nil {
			return 0
		}
		return v
	case strings.HasSuffix(cpu, "n"):
		v, err := strconv.ParseFloat(strings.TrimSuffix(cpu, "n"), 64)
		if err != nil {
			return 0
		}
		return v / 1_000_000
	default:
		v, err := strconv.ParseFloat(cpu, 64)
		if err != nil {
			return 0
		}
		return v * 1000
	}
}

// ParseMemoryBytes converts a Kubernetes memory quantity string to bytes.
// Recognises "Ki"/"Mi"/"Gi"/"Ti" (powers of 1024) and "K"/"M"/"G"/"T"
// (powers of 1000), matched longest-suffix-first. No suffix is treated as
// raw bytes. An empty or unparseable string yields 0.
func ParseMemoryBytes(mem string) float64 {
	if mem == "" {
		return 0
	}

	for _, u := range memUnits {
		if strings.HasSuffix(mem, u.suffix) {
			v, err := strconv.ParseFloat(strings.TrimSuffix(mem, u.suffix), 64)
			if err != nil {
				return 0
			}
			return v * u.multiplier
		}
	}

	v, err := strconv.ParseFloat(mem, 64)
	if err != nil {
		return 0
	}
	return v
}
