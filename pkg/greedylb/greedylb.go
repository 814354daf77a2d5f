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

// Package greedylb implements the single-pass, resource-aware greedy
// placement engine: pick the ready, uncordoned node with the most free
// resources (70% CPU weight, 30% memory weight) and bind to it.
package greedylb

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
	cpuWeight = 0.7
	memWeight = 0.3

	placerName = "greedylb"
)

// Placer is the GreedyLB placement engine.
type Placer struct {
	Client        orchestrator.Client
	SchedulerName string
}

// New constructs a GreedyLB Placer for the given scheduler name.
func New(client orchestrator.Client, schedulerName string) *Placer {
	return &Placer{Client: client, SchedulerName: schedulerName}
}

// Place attempts to bind a single claimable pod. Failure leaves the pod
// pending; the watch loop's next event for it retries.
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

	best, score, ok := SelectBestNode(nodes, pods)
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

// ScoreNode computes the greedy score for a single node: 0.7 * available
// CPU ratio * 100 + 0.3 * available memory ratio * 100. Unschedulable
// nodes and scoring panics both yield 0, matching the "skip on error"
// contract of spec.md's ScoringError kind.
func ScoreNode(node orchestrator.Node, pods []orchestrator.Pod) (score float64) {
	if !node.Schedulable() {
		return 0
	}

	defer func() {
		if r := recover(); r != nil {
			klog.ErrorS(errs.ErrScoringError, "Recovered while scoring node", "node", node.Name, "panic", r)
			score = 0
		}
	}()

	usage := resourcemodel.ComputeNodeUsage(node.ToCapacity(), orchestrator.PodUsages(pods))
	cpuRatio := usage.AvailableCPUMillis() / maxFloat(usage.AllocatableCPUMillis, 1)
	memRatio := usage.AvailableMemoryBytes() / maxFloat(usage.AllocatableMemoryBytes, 1)

	score = cpuWeight*cpuRatio*100 + memWeight*memRatio*100
	metrics.NodeScore.WithLabelValues(placerName).Observe(score)
	return score
}

// SelectBestNode scans the schedulable nodes in order and returns the
// highest-scoring one; ok is false when no node is schedulable. Ties are
// broken by first-seen order because later nodes must strictly exceed the
// current best to replace it.
func SelectBestNode(nodes []orchestrator.Node, pods []orchestrator.Pod) (best orchestrator.Node, bestScore float64, ok bool) {
	bestScore = -1

	for _, n := range nodes {
		if !n.Schedulable() {
			continue
		}
		score := ScoreNode(n, pods)
		if score > bestScore {
			bestScore = score
			best = n
			ok = true
		}
	}

	return best, bestScore, ok
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
