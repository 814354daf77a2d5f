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

// Package metrics holds the prometheus collectors shared across the
// placer and detector binaries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PlacementAttempts tracks bind attempts per placer and outcome.
	PlacementAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubenexus_placement_attempts_total",
			Help: "Total number of pod placement attempts",
		},
		[]string{"placer", "result"},
	)

	// PlacementDuration tracks how long a single Place call takes.
	PlacementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kubenexus_placement_duration_seconds",
			Help:    "Duration of a single pod placement decision, in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"placer"},
	)

	// NodeScore records the score a placer assigned to a candidate node,
	// for distribution visibility across the fleet.
	NodeScore = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kubenexus_node_score",
			Help:    "Score assigned to a candidate node during placement",
			Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
		[]string{"placer"},
	)

	// WatchLoopState records the current state of each placer's watch
	// loop state machine as a gauge (1 for the active state, 0 otherwise
	// is not modeled; this is set to the numeric state value).
	WatchLoopState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kubenexus_watch_loop_state",
			Help: "Current state of the watch/bind loop state machine (0=Watching,1=Reconnecting,2=Backoff,3=Shutdown)",
		},
		[]string{"placer"},
	)

	// DetectorSamples tracks the active pod count observed by the pattern
	// detector on each cycle.
	DetectorSamples = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kubenexus_detector_active_pods",
			Help: "Active pod count observed by the most recent detector cycle",
		},
		[]string{},
	)

	// DetectorGrowthRate tracks the most recently computed growth rate.
	DetectorGrowthRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kubenexus_detector_growth_rate_percent",
			Help: "Growth rate percentage computed by the most recent detector cycle",
		},
		[]string{"pattern"},
	)

	// DetectorSwitches counts scheduler-routing switches triggered by the
	// detector, by target placer.
	DetectorSwitches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubenexus_detector_switches_total",
			Help: "Total number of scheduler-routing switches triggered by the pattern detector",
		},
		[]string{"target"},
	)

	// DeploymentPatchFailures counts per-deployment patch failures during
	// a scheduler-routing switch.
	DeploymentPatchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubenexus_deployment_patch_failures_total",
			Help: "Total number of deployment patch failures during a scheduler-routing switch",
		},
		[]string{},
	)
)
