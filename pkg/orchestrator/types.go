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

// Package orchestrator provides the domain-level view of nodes and pods
// that the placers and the pattern detector reason about, plus the
// client-go wiring that turns that view into real API calls. Keeping the
// domain types separate from corev1.Node/corev1.Pod lets the scoring
// logic in pkg/greedylb and pkg/refinelb run as a pure function of a
// snapshot, with no client-go dependency of its own.
package orchestrator

import (
	corev1 "k8s.io/api/core/v1"

	"github.com/kube-nexus/kubenexus-scheduler/pkg/resourcemodel"
)

// SystemNamespaces are excluded from workload counting and rerouting
// everywhere in this system.
var SystemNamespaces = map[string]bool{
	"system":     true,
	"public":     true,
	"node-lease": true,
}

// Node is the essential, orchestrator-owned view of a worker host. Nodes
// are discovered and mutated exclusively by the orchestrator; the core
// reads them and never writes.
type Node struct {
	Name                   string
	Ready                  bool
	Cordoned               bool
	AllocatableCPUMillis   float64
	AllocatableMemoryBytes float64
}

// Schedulable reports whether a node accepts new pods: ready and not
// cordoned.
func (n Node) Schedulable() bool {
	return n.Ready && !n.Cordoned
}

// ContainerResources is a single container's resource requests.
type ContainerResources struct {
	CPUMillis   float64
	MemoryBytes float64
}

// PodPhase mirrors corev1.PodPhase without pulling callers into the
// client-go type for simple equality checks.
type PodPhase string

const (
	PodPending   PodPhase = "Pending"
	PodRunning   PodPhase = "Running"
	PodSucceeded PodPhase = "Succeeded"
	PodFailed    PodPhase = "Failed"
	PodUnknown   PodPhase = "Unknown"
)

// Pod is the essential, orchestrator-owned view of a workload unit.
type Pod struct {
	Namespace     string
	Name          string
	SchedulerName string
	Phase         PodPhase
	NodeName      string
	Containers    []ContainerResources
}

// Claimable reports whether placer may claim this pod: pending, unbound,
// and declaring that placer's own scheduler name.
func (p Pod) Claimable(schedulerName string) bool {
	return p.Phase == PodPending && p.NodeName == "" && p.SchedulerName == schedulerName
}

// Active reports whether the pod counts toward the pattern detector's
// active-pod sample: phase in {Pending, Running} and outside the system
// namespaces. Other non-terminal phases (e.g. Unknown) are deliberately
// excluded, matching the asymmetry the detector was distilled from.
func (p Pod) Active() bool {
	if SystemNamespaces[p.Namespace] {
		return false
	}
	return p.Phase == PodPending || p.Phase == PodRunning
}

// TotalRequests sums CPU and memory requests across all containers.
func (p Pod) TotalRequests() (cpuMillis, memoryBytes float64) {
	for _, c := range p.Containers {
		cpuMillis += c.CPUMillis
		memoryBytes += c.MemoryBytes
	}
	return cpuMillis, memoryBytes
}

// NonTerminal reports whether a pod's resource requests should count
// against a node's usage: any phase other than Succeeded/Failed.
func (p Pod) NonTerminal() bool {
	return p.Phase != PodSucceeded && p.Phase != PodFailed
}

// ToCapacity converts a Node into the resourcemodel.NodeCapacity view
// ComputeNodeUsage needs.
func (n Node) ToCapacity() resourcemodel.NodeCapacity {
	return resourcemodel.NodeCapacity{
		Name:                   n.Name,
		AllocatableCPUMillis:   n.AllocatableCPUMillis,
		AllocatableMemoryBytes: n.AllocatableMemoryBytes,
	}
}

// ToUsage converts a Pod into the resourcemodel.PodUsage view
// ComputeNodeUsage needs.
func (p Pod) ToUsage() resourcemodel.PodUsage {
	cpu, mem := p.TotalRequests()
	return resourcemodel.PodUsage{
		NodeName:    p.NodeName,
		NonTerminal: p.NonTerminal(),
		CPUMillis:   cpu,
		MemoryBytes: mem,
	}
}

// PodUsages converts a slice of Pods into resourcemodel.PodUsage views,
// the shape ComputeNodeUsage scans when aggregating per-node usage.
func PodUsages(pods []Pod) []resourcemodel.PodUsage {
	out := make([]resourcemodel.PodUsage, len(pods))
	for i, p := range pods {
		out[i] = p.ToUsage()
	}
	return out
}

// FromV1Node converts a corev1.Node into the domain Node view.
func FromV1Node(n *corev1.Node) Node {
	ready := false
	for _, cond := range n.Status.Conditions {
		if cond.Type == corev1.NodeReady && cond.Status == corev1.ConditionTrue {
			ready = true
			break
		}
	}

	return Node{
		Name:                   n.Name,
		Ready:                  ready,
		Cordoned:               n.Spec.Unschedulable,
		AllocatableCPUMillis:   resourcemodel.ParseCPUMillis(n.Status.Allocatable.Cpu().String()),
		AllocatableMemoryBytes: resourcemodel.ParseMemoryBytes(n.Status.Allocatable.Memory().String()),
	}
}

// FromV1Pod converts a corev1.Pod into the domain Pod view.
func FromV1Pod(p *corev1.Pod) Pod {
	containers := make([]ContainerResources, 0, len(p.Spec.Containers))
	for _, c := range p.Spec.Containers {
		containers = append(containers, ContainerResources{
			CPUMillis:   resourcemodel.ParseCPUMillis(c.Resources.Requests.Cpu().String()),
			MemoryBytes: resourcemodel.ParseMemoryBytes(c.Resources.Requests.Memory().String()),
		})
	}

	return Pod{
		Namespace:     p.Namespace,
		Name:          p.Name,
		SchedulerName: p.Spec.SchedulerName,
		Phase:         PodPhase(p.Status.Phase),
		NodeName:      p.Spec.NodeName,
		Containers:    containers,
	}
}
