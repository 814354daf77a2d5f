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

package patterndetector

import (
	"fmt"
	"strings"
	"time"
)

// Report summarises a single detector cycle: the sample taken, the
// growth-rate computation that resulted, the pattern it classified to, and
// whether a scheduler switch was triggered. Logged once per cycle.
type Report struct {
	Timestamp          time.Time
	ActivePodCount     int
	Window             []GrowthSample
	GrowthRate         GrowthRate
	Pattern            Pattern
	ActiveScheduler    string
	PatchedDeployments int
	PatchErrors        int
}

// String renders the report as a single human-readable line, in the spirit
// of the monitoring report the cycle used to print line-by-line.
func (r Report) String() string {
	counts := make([]string, 0, len(r.Window))
	for _, s := range r.Window {
		counts = append(counts, fmt.Sprintf("%d", s.ActivePodCount))
	}

	return fmt.Sprintf(
		"pods=%d history=[%s] rate=%.2f trend=%s pattern=%s scheduler=%s patched=%d errors=%d",
		r.ActivePodCount,
		strings.Join(counts, ","),
		r.GrowthRate.Rate,
		r.GrowthRate.Trend,
		r.Pattern,
		r.ActiveScheduler,
		r.PatchedDeployments,
		r.PatchErrors,
	)
}
