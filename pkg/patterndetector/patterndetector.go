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

// Package patterndetector samples the cluster-wide active pod count on a
// fixed interval, classifies the growth regime, and rewrites every
// non-system deployment's declared scheduler name to match. It holds the
// only in-memory state in this system (the sample window and the last
// routing decision); both live for the lifetime of the process.
package patterndetector

import (
	"context"
	"fmt"
	"time"

	klog "k8s.io/klog/v2"

	"github.com/kube-nexus/kubenexus-scheduler/pkg/metrics"
	"github.com/kube-nexus/kubenexus-scheduler/pkg/orchestrator"
)

// Trend names the shape the growth-rate computation assigned to a sample.
type Trend string

const (
	TrendInsufficientData Trend = "insufficient_data"
	TrendStartup          Trend = "startup"
	TrendNoPods           Trend = "no_pods"
	TrendCalculated       Trend = "calculated"
	TrendSimple           Trend = "simple"
)

// Pattern is the classification assigned to a growth rate.
type Pattern string

const (
	PatternNone        Pattern = ""
	PatternStable      Pattern = "stable"
	PatternLinear      Pattern = "linear"
	PatternExponential Pattern = "exponential"
)

// GrowthSample is a single (timestamp, active pod count) observation.
type GrowthSample struct {
	Timestamp      time.Time
	ActivePodCount int
}

// RoutingState is the detector's process-lifetime view: the sample window,
// the last classified pattern, and the currently active placer name.
type RoutingState struct {
	Window           []GrowthSample
	HistoryWindow    int
	LastPattern      Pattern
	CurrentScheduler string
}

// NewRoutingState constructs an empty RoutingState with the given window
// capacity and no active placer.
func NewRoutingState(historyWindow int) *RoutingState {
	return &RoutingState{
		HistoryWindow: historyWindow,
	}
}

// AddSample appends a sample to the window, evicting the oldest entry in
// FIFO order once the window is at capacity.
func (s *RoutingState) AddSample(sample GrowthSample) {
	s.Window = append(s.Window, sample)
	if len(s.Window) > s.HistoryWindow {
		s.Window = s.Window[len(s.Window)-s.HistoryWindow:]
	}
}

// GrowthRate is the result of the growth-rate computation over a sample
// window: a numeric rate and the trend that produced it.
type GrowthRate struct {
	Rate  float64
	Trend Trend
}

// ComputeGrowthRate implements spec's growth-rate computation exactly:
// insufficient data, startup-from-zero, no-pods, the multi-step "calculated"
// mean-of-consecutive-percentage-changes case, and the two-point "simple"
// fallback.
func ComputeGrowthRate(window []GrowthSample) GrowthRate {
	if len(window) < 2 {
		return GrowthRate{Rate: 0, Trend: TrendInsufficientData}
	}

	oldest := window[0].ActivePodCount
	newest := window[len(window)-1].ActivePodCount

	if oldest == 0 && newest > 0 {
		return GrowthRate{Rate: 100, Trend: TrendStartup}
	}
	if oldest == 0 && newest == 0 {
		return GrowthRate{Rate: 0, Trend: TrendNoPods}
	}

	if len(window) >= 3 && allConsecutiveNonZero(window) {
		changes := make([]float64, 0, len(window)-1)
		for i := 1; i < len(window); i++ {
			prev := float64(window[i-1].ActivePodCount)
			curr := float64(window[i].ActivePodCount)
			changes = append(changes, (curr-prev)/prev*100)
		}
		return GrowthRate{Rate: mean(changes), Trend: TrendCalculated}
	}

	rate := float64(newest-oldest) / float64(oldest) * 100
	return GrowthRate{Rate: rate, Trend: TrendSimple}
}

// allConsecutiveNonZero reports whether every predecessor sample in window
// (every element but the last) is non-zero, which is the precondition for
// the "calculated" mean-of-percentage-changes path.
func allConsecutiveNonZero(window []GrowthSample) bool {
	for i := 0; i < len(window)-1; i++ {
		if window[i].ActivePodCount == 0 {
			return false
		}
	}
	return true
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Classifier holds the threshold boundaries for pattern classification.
type Classifier struct {
	StableThreshold float64
	LinearThreshold float64
}

// Classify maps a growth rate's magnitude to a Pattern. Boundaries are
// inclusive on the lower edge of each band: a rate exactly at
// StableThreshold is linear, and a rate exactly at LinearThreshold is
// exponential.
func (c Classifier) Classify(rate float64) Pattern {
	abs := rate
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs < c.StableThreshold:
		return PatternStable
	case abs < c.LinearThreshold:
		return PatternLinear
	default:
		return PatternExponential
	}
}

// Route maps a Pattern to the target scheduler name.
func Route(pattern Pattern, greedySchedulerName, refinedSchedulerName string) string {
	if pattern == PatternExponential {
		return refinedSchedulerName
	}
	return greedySchedulerName
}

// Detector drives sampling, classification, and deployment re-routing.
type Detector struct {
	Client               orchestrator.Client
	Classifier           Classifier
	GreedySchedulerName  string
	RefinedSchedulerName string
	State                *RoutingState
}

// NewDetector constructs a Detector with a fresh RoutingState.
func NewDetector(client orchestrator.Client, classifier Classifier, greedySchedulerName, refinedSchedulerName string, historyWindow int) *Detector {
	return &Detector{
		Client:               client,
		Classifier:           classifier,
		GreedySchedulerName:  greedySchedulerName,
		RefinedSchedulerName: refinedSchedulerName,
		State:                NewRoutingState(historyWindow),
	}
}

// Tick samples the cluster once, classifies the resulting window, and
// switches routing if the target placer differs from the last one chosen.
// It returns the Report produced by this cycle.
func (d *Detector) Tick(ctx context.Context, now time.Time) (Report, error) {
	pods, err := d.Client.ListPods(ctx, nil)
	if err != nil {
		return Report{}, fmt.Errorf("sample active pods: %w", err)
	}

	active := countActivePods(pods)
	d.State.AddSample(GrowthSample{Timestamp: now, ActivePodCount: active})
	metrics.DetectorSamples.WithLabelValues().Set(float64(active))

	growth := ComputeGrowthRate(d.State.Window)

	var pattern Pattern
	var target string
	if growth.Trend == TrendInsufficientData {
		pattern = PatternNone
		target = d.State.CurrentScheduler
	} else {
		pattern = d.Classifier.Classify(growth.Rate)
		target = Route(pattern, d.GreedySchedulerName, d.RefinedSchedulerName)
	}
	metrics.DetectorGrowthRate.WithLabelValues(string(pattern)).Set(growth.Rate)

	report := Report{
		Timestamp:       now,
		ActivePodCount:  active,
		Window:          append([]GrowthSample(nil), d.State.Window...),
		GrowthRate:      growth,
		Pattern:         pattern,
		ActiveScheduler: d.State.CurrentScheduler,
	}

	if pattern == PatternNone || target == d.State.CurrentScheduler {
		d.State.LastPattern = pattern
		return report, nil
	}

	patched, errCount := d.switchScheduler(ctx, target)
	report.PatchedDeployments = patched
	report.PatchErrors = errCount
	report.ActiveScheduler = target
	metrics.DetectorSwitches.WithLabelValues(target).Inc()

	d.State.LastPattern = pattern
	d.State.CurrentScheduler = target

	// Purely an observability/webhook-defaulting side channel; placer and
	// detector coordination never reads this back.
	if err := d.Client.WriteRoutingState(ctx, target); err != nil {
		klog.ErrorS(err, "Failed to write routing state configmap", "target", target)
	}

	return report, nil
}

// switchScheduler patches every non-system-namespace deployment whose
// pod-template scheduler name differs from target. Per-deployment failures
// are logged and do not abort the enumeration; the caller updates routing
// state unconditionally after this returns, per the "masking" behavior
// this system preserves.
func (d *Detector) switchScheduler(ctx context.Context, target string) (patched, failed int) {
	deployments, err := d.Client.ListDeployments(ctx)
	if err != nil {
		klog.ErrorS(err, "Failed to enumerate deployments for scheduler switch", "target", target)
		return 0, 0
	}

	for _, dep := range deployments {
		if orchestrator.SystemNamespaces[dep.Namespace] {
			continue
		}
		if dep.SchedulerName == target {
			continue
		}

		if err := d.Client.PatchSchedulerName(ctx, dep.Namespace, dep.Name, target); err != nil {
			klog.ErrorS(err, "Failed to patch deployment scheduler name", "namespace", dep.Namespace, "deployment", dep.Name, "target", target)
			metrics.DeploymentPatchFailures.WithLabelValues().Inc()
			failed++
			continue
		}

		klog.InfoS("Patched deployment scheduler name", "namespace", dep.Namespace, "deployment", dep.Name, "target", target)
		patched++
	}

	return patched, failed
}

func countActivePods(pods []orchestrator.Pod) int {
	count := 0
	for _, pod := range pods {
		if pod.Active() {
			count++
		}
	}
	return count
}
