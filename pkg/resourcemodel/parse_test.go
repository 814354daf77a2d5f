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

package resourcemodel

import "testing"

func TestParseCPUMillis(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"100m", 100},
		{"2", 2000},
		{"500000000n", 500},
		{"", 0},
		{"bogus", 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParseCPUMillis(tt.in)
			if got != tt.want {
				t.Errorf("ParseCPUMillis(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseMemoryBytes(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"128Mi", 128 * 1048576},
		{"1Gi", 1073741824},
		{"1G", 1000000000},
		{"1024", 1024},
		{"", 0},
		{"bogus", 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParseMemoryBytes(tt.in)
			if got != tt.want {
				t.Errorf("ParseMemoryBytes(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
