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

// Package refinelb implements the multi-factor placement engine that
// optimises for cluster-wide balance: resources-after-placement (40%),
// balance versus the cluster mean (30%, unbounded/sign-carrying by
// design), pod-density spreading (20%), and target-utilisation (10%).
// The weightings and formulas below are the algorithmic contract of this
// placer and must not be altered.
package refinelb

import (
	"context"
	"errors"
	"time"

	klog "k8s.io/klog/v2"

	"github.com/kube-nexus/kubenexus-scheduler/pkg/metrics"
	"github.com/kube-nexus/kubenexus-scheduler/pkg/orchestrator"
	"github.com/kube-nexus/kubenexus-scheduler/pkg/orchestrator/errs"
	"github.com/kube-nexus/kubenexus-scheduler/pkg/resourcemodel"
)

const (
	placerName = "refinelb"

	// DefaultCPURequestMillis is applied when a pod's containers sum to
	// zero CPU requests.
	DefaultCPURequestMillis = 100
	// DefaultMemoryRequestBytes is applied when a pod's containers sum
	// to zero memory requests.
	DefaultMemoryRequestBytes = 128 * 1024 * 1024

	// MaxPodsPerNodeAssumption is the fixed pod-density cap used by the
	// spreading sub-score. It approximates a common Kubernetes default
	// and is not queried per-node (spec.md's Open Question is resolved
	// in favour of the simpler, fixed constant).
	MaxPodsPerNodeAssumption = 110

	// TargetUtilizationPercent is the sweet-spot utilisation the target
	// sub-score rewards.
	TargetUtilizationPercent = 65

	weightResources = 40.0
	weightBalance   = 0.3 // applied to an already 0-100-scaled blend, yielding a 0-30 contribution
	weightDensity   = 20.0
	weightTarget    = 0.1 // applied to an already 0-100-scaled blend, yielding a 0-10 contribution
)

// Placer is the RefineLB placement engine.
type Placer struct {
	Client        orchestrator.Client
	SchedulerName string
}

// New constructs a RefineLB Placer for the given scheduler name.
func New(client orchestrator.Client, schedulerName string) *Placer {
	return &Placer{Client: client, SchedulerName: schedulerName}
}

// Place attempts to bind a single claimable pod.
func (p *Placer) Place(ctx context.Context, pod orchestrator.Pod) {
	start := time.Now()
	defer func() {
		metrics.PlacementDuration.WithLabelValues(placerName).Observe(time.Since(start).Seconds())
	}()

	nodes, err := p.Client.ListNodes(ctx)
	if err != nil {
		klog.ErrorS(err, "Failed to list nodes", "pod", klog.KRef(pod.Namespace, pod.Name))
		metrics.PlacementAttempts.WithLabelValues(placerName, "error").Inc()
		return
	}

	pods, err := p.Client.ListPods(ctx, nil)
	if err != nil {
		klog.ErrorS(err, "Failed to list pods for usage computation", "pod", klog.KRef(pod.Namespace, pod.Name))
		metrics.PlacementAttempts.WithLabelValues(placerName, "error").Inc()
		return
	}

	request := PodRequest(pod)

	best, score, ok := SelectBestNode(nodes, pods, request)
	if !ok {
		klog.InfoS("No schedulable node found, leaving pod pending", "pod", klog.KRef(pod.Namespace, pod.Name), "err", errs.ErrNoSchedulableNode)
		metrics.PlacementAttempts.WithLabelValues(placerName, "no_node").Inc()
		return
	}

	klog.InfoS("Selected node", "pod", klog.KRef(pod.Namespace, pod.Name), "node", best.Name, "score", score)

	if err := p.Client.Bind(ctx, pod.Namespace, pod.Name, best.Name); err != nil {
		if errors.Is(err, errs.ErrBindConflict) {
			klog.InfoS("Bind conflict, abandoning pod for re-emission", "pod", klog.KRef(pod.Namespace, pod.Name), "node", best.Name)
			metrics.PlacementAttempts.WithLabelValues(placerName, "bind_conflict").Inc()
			return
		}
		klog.ErrorS(err, "Bind failed, leaving pod pending", "pod", klog.KRef(pod.Namespace, pod.Name), "node", best.Name)
		metrics.PlacementAttempts.WithLabelValues(placerName, "bind_error").Inc()
		return
	}

	klog.InfoS("Successfully bound pod", "pod", klog.KRef(pod.Namespace, pod.Name), "node", best.Name)
	metrics.PlacementAttempts.WithLabelValues(placerName, "success").Inc()
}

// Request is a pod's aggregate resource request.
type Request struct {
	CPUMillis   float64
	MemoryBytes float64
}

// PodRequest sums a pod's container requests, applying the documented
// defaults (100m CPU, 128Mi memory) when the sum is zero.
func PodRequest(pod orchestrator.Pod) Request {
	cpu, mem := pod.TotalRequests()
	if cpu == 0 {
		cpu = DefaultCPURequestMillis
	}
	if mem == 0 {
		mem = DefaultMemoryRequestBytes
	}
	return Request{CPUMillis: cpu, MemoryBytes: mem}
}

// SelectBestNode scores every node against request and returns the
// highest-scoring candidate with a strictly positive total. Ties are
// broken by first-seen order.
func SelectBestNode(nodes []orchestrator.Node, pods []orchestrator.Pod, request Request) (best orchestrator.Node, bestScore float64, ok bool) {
	podUsages := orchestrator.PodUsages(pods)
	usages := make([]resourcemodel.NodeUsage, 0, len(nodes))
	for _, n := range nodes {
		if !n.Schedulable() {
			continue
		}
		usages = append(usages, resourcemodel.ComputeNodeUsage(n.ToCapacity(), podUsages))
	}

	if len(usages) == 0 {
		return best, 0, false
	}

	avgCPUUtil := averageCPUUtilization(usages)
	avgMemUtil := averageMemoryUtilization(usages)

	bestScore = 0
	for _, n := range nodes {
		if !n.Schedulable() {
			continue
		}
		usage := usageFor(usages, n.Name)
		score := ScoreNode(usage, request, avgCPUUtil, avgMemUtil)
		if score > 0 && (!ok || score > bestScore) {
			bestScore = score
			best = n
			ok = true
		}
	}

	return best, bestScore, ok
}

func usageFor(usages []resourcemodel.NodeUsage, name string) resourcemodel.NodeUsage {
	for _, u := range usages {
		if u.NodeName == name {
			return u
		}
	}
	return resourcemodel.NodeUsage{NodeName: name}
}

func averageCPUUtilization(usages []resourcemodel.NodeUsage) float64 {
	vals := make([]float64, 0, len(usages))
	for _, u := range usages {
		vals = append(vals, u.CPUUtilizationPercent())
	}
	return resourcemodel.Mean(vals)
}

func averageMemoryUtilization(usages []resourcemodel.NodeUsage) float64 {
	vals := make([]float64, 0, len(usages))
	for _, u := range usages {
		vals = append(vals, u.MemoryUtilizationPercent())
	}
	return resourcemodel.Mean(vals)
}

// ScoreNode computes the four-factor RefineLB score for a single node's
// usage against request, given the cluster-wide average CPU/memory
// utilisation among all schedulable candidates, feasible or not.
//
// Returns 0 if the node cannot satisfy request without going negative on
// either CPU or memory (the feasibility filter).
func ScoreNode(usage resourcemodel.NodeUsage, request Request, avgCPUUtil, avgMemUtil float64) float64 {
	availCPU := usage.AvailableCPUMillis()
	availMem := usage.AvailableMemoryBytes()

	if availCPU < request.CPUMillis || availMem < request.MemoryBytes {
		metrics.NodeScore.WithLabelValues(placerName).Observe(0)
		return 0
	}

	allocCPU := maxFloat(usage.AllocatableCPUMillis, 1)
	allocMem := maxFloat(usage.AllocatableMemoryBytes, 1)

	// Factor 1: resources remaining after placement (weight 40).
	cpuAfter := (availCPU - request.CPUMillis) / allocCPU
	memAfter := (availMem - request.MemoryBytes) / allocMem
	resourcesScore := (0.5*cpuAfter + 0.5*memAfter) * weightResources

	// Utilisation this node would have once the pod lands on it.
	newCPUUtil := (usage.UsedCPUMillis + request.CPUMillis) / allocCPU * 100
	newMemUtil := (usage.UsedMemoryBytes + request.MemoryBytes) / allocMem * 100

	// Factor 2: balance against the cluster mean (weight 30). Left
	// unbounded/sign-carrying on purpose: a node whose post-placement
	// utilisation drifts far from the mean can score negative here.
	cpuBalance := 100 - abs(newCPUUtil-avgCPUUtil)
	memBalance := 100 - abs(newMemUtil-avgMemUtil)
	balanceScore := (0.5*cpuBalance + 0.5*memBalance) * weightBalance

	// Factor 3: pod-density spreading (weight 20).
	densityScore := (1 - float64(usage.PodCount)/MaxPodsPerNodeAssumption) * weightDensity

	// Factor 4: target-utilisation sweet spot (weight 10).
	cpuTarget := 100 - abs(newCPUUtil-TargetUtilizationPercent)
	memTarget := 100 - abs(newMemUtil-TargetUtilizationPercent)
	targetScore := (0.5*cpuTarget + 0.5*memTarget) * weightTarget

	total := resourcesScore + balanceScore + densityScore + targetScore

	klog.V(4).InfoS("Scored node",
		"node", usage.NodeName,
		"total", total,
		"resources", resourcesScore,
		"balance", balanceScore,
		"density", densityScore,
		"target", targetScore,
		"cpuUtilBefore", usage.CPUUtilizationPercent(),
		"cpuUtilAfter", newCPUUtil,
		"memUtilBefore", usage.MemoryUtilizationPercent(),
		"memUtilAfter", newMemUtil,
		"podCount", usage.PodCount,
	)

	metrics.NodeScore.WithLabelValues(placerName).Observe(total)
	return total
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
