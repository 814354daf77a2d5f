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

// NodeCapacity is the minimal per-node capacity view ComputeNodeUsage
// needs. Defined locally so this package stays a dependency-free leaf;
// pkg/orchestrator provides the conversion from its own Node type.
type NodeCapacity struct {
	Name                   string
	AllocatableCPUMillis   float64
	AllocatableMemoryBytes float64
}

// PodUsage is the minimal per-pod view ComputeNodeUsage needs: which node
// it is assigned to, whether its phase is terminal, and its aggregate
// resource requests.
type PodUsage struct {
	NodeName    string
	NonTerminal bool
	CPUMillis   float64
	MemoryBytes float64
}

// NodeUsage is the derived resource picture for a single node: its
// allocatable capacity and the sum of requests from non-terminal pods
// currently assigned to it. It is recomputed on demand for every
// scheduling decision and never persisted.
type NodeUsage struct {
	NodeName               string
	AllocatableCPUMillis   float64
	AllocatableMemoryBytes float64
	UsedCPUMillis          float64
	UsedMemoryBytes        float64
	PodCount               int
}

// AvailableCPUMillis returns allocatable minus used CPU, which may be
// negative if the node is already overcommitted.
func (u NodeUsage) AvailableCPUMillis() float64 {
	return u.AllocatableCPUMillis - u.UsedCPUMillis
}

// AvailableMemoryBytes returns allocatable minus used memory.
func (u NodeUsage) AvailableMemoryBytes() float64 {
	return u.AllocatableMemoryBytes - u.UsedMemoryBytes
}

// CPUUtilizationPercent returns used/allocatable CPU as a percentage.
// Allocatable is floored at 1 to avoid dividing by zero, matching the
// system this was distilled from.
func (u NodeUsage) CPUUtilizationPercent() float64 {
	return u.UsedCPUMillis / maxFloat(u.AllocatableCPUMillis, 1) * 100
}

// MemoryUtilizationPercent returns used/allocatable memory as a
// percentage.
func (u NodeUsage) MemoryUtilizationPercent() float64 {
	return u.UsedMemoryBytes / maxFloat(u.AllocatableMemoryBytes, 1) * 100
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// ComputeNodeUsage derives a NodeUsage for node from the full snapshot of
// pods in the cluster; pods is filtered to those non-terminal and
// assigned to node.Name.
func ComputeNodeUsage(node NodeCapacity, pods []PodUsage) NodeUsage {
	usage := NodeUsage{
		NodeName:               node.Name,
		AllocatableCPUMillis:   node.AllocatableCPUMillis,
		AllocatableMemoryBytes: node.AllocatableMemoryBytes,
	}

	for _, pod := range pods {
		if pod.NodeName != node.Name || !pod.NonTerminal {
			continue
		}
		usage.UsedCPUMillis += pod.CPUMillis
		usage.UsedMemoryBytes += pod.MemoryBytes
		usage.PodCount++
	}

	return usage
}
