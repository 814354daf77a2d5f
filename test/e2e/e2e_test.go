/*
Copyright 2026 The KubeNexus Authors.

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

// Package e2e contains end-to-end tests for the GreedyLB and RefineLB
// placers. These tests run against a real Kubernetes cluster (Kind or an
// existing cluster).
//
// Requirements:
// - Kind installed: go install sigs.k8s.io/kind@latest
// - kubectl installed and in PATH
// - Docker running
//
// Run with: go test ./test/e2e
package e2e

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
)

const (
	greedySchedulerName  = "greedylb-scheduler"
	refinedSchedulerName = "refinelb-scheduler"
	kindClusterName      = "kubenexus-test"
)

var (
	clientset      *kubernetes.Clientset
	clusterCreated bool
)

// TestMain sets up a Kind cluster and deploys both placers before the
// suite runs, and tears the cluster down afterward.
func TestMain(m *testing.M) {
	if os.Getenv("USE_EXISTING_CLUSTER") == "true" {
		fmt.Println("Using existing Kubernetes cluster")
		setupClient()
		os.Exit(m.Run())
	}

	fmt.Println("Creating Kind cluster for E2E tests...")
	if err := createKindCluster(); err != nil {
		fmt.Printf("Failed to create Kind cluster: %v\n", err)
		os.Exit(1)
	}
	clusterCreated = true

	setupClient()

	fmt.Println("Deploying GreedyLB and RefineLB placers...")
	if err := deployPlacers(); err != nil {
		fmt.Printf("Failed to deploy placers: %v\n", err)
		cleanupKindCluster()
		os.Exit(1)
	}

	if err := waitForPlacersReady(); err != nil {
		fmt.Printf("Placers not ready: %v\n", err)
		cleanupKindCluster()
		os.Exit(1)
	}

	code := m.Run()

	if clusterCreated {
		fmt.Println("Cleaning up Kind cluster...")
		cleanupKindCluster()
	}

	os.Exit(code)
}

// TestE2EGreedyLBBindsPendingPod exercises the GreedyLB placer end to end:
// a pod declaring its scheduler name should be bound to a node.
func TestE2EGreedyLBBindsPendingPod(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping E2E test in short mode")
	}

	ctx := context.Background()
	namespace := createTestNamespace(t, ctx, "greedylb")

	pod := makeWorkloadPod("greedy-sample", namespace, greedySchedulerName)
	if _, err := clientset.CoreV1().Pods(namespace).Create(ctx, pod, metav1.CreateOptions{}); err != nil {
		t.Fatalf("Failed to create pod: %v", err)
	}

	if err := waitForPodBound(ctx, namespace, "greedy-sample"); err != nil {
		t.Errorf("GreedyLB failed to bind pod: %v", err)
		dumpPodStatus(t, ctx, namespace)
	}
}

// TestE2ERefineLBBindsPendingPod mirrors the GreedyLB case for RefineLB.
func TestE2ERefineLBBindsPendingPod(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping E2E test in short mode")
	}

	ctx := context.Background()
	namespace := createTestNamespace(t, ctx, "refinelb")

	pod := makeWorkloadPod("refine-sample", namespace, refinedSchedulerName)
	if _, err := clientset.CoreV1().Pods(namespace).Create(ctx, pod, metav1.CreateOptions{}); err != nil {
		t.Fatalf("Failed to create pod: %v", err)
	}

	if err := waitForPodBound(ctx, namespace, "refine-sample"); err != nil {
		t.Errorf("RefineLB failed to bind pod: %v", err)
		dumpPodStatus(t, ctx, namespace)
	}
}

// TestE2EPatternDetectorRerouting is left unimplemented: it requires the
// pattern detector and several dozen short-lived pods to push the cluster
// into the exponential growth regime, which needs its own Kind node-pool
// sizing pass to be reliable in CI.
func TestE2EPatternDetectorRerouting(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping E2E test in short mode")
	}

	t.Skip("Requires a growth-regime-inducing pod load generator, not yet built")
}

// Helper functions

func createTestNamespace(t *testing.T, ctx context.Context, prefix string) string {
	t.Helper()
	namespace := fmt.Sprintf("test-%s-%s", prefix, time.Now().Format("20060102-150405"))

	ns := &v1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: namespace}}
	if _, err := clientset.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{}); err != nil {
		t.Fatalf("Failed to create namespace: %v", err)
	}
	t.Cleanup(func() {
		_ = clientset.CoreV1().Namespaces().Delete(context.Background(), namespace, metav1.DeleteOptions{}) //nolint:errcheck // cleanup
	})
	return namespace
}

func waitForPodBound(ctx context.Context, namespace, name string) error {
	return wait.PollUntilContextTimeout(ctx, 2*time.Second, time.Minute, true, func(ctx context.Context) (bool, error) {
		pod, err := clientset.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return false, err
		}
		return pod.Spec.NodeName != "", nil
	})
}

func createKindCluster() error {
	_, filename, _, _ := runtime.Caller(0)
	testDir := filepath.Dir(filename)
	configPath := filepath.Join(testDir, "kind-config.yaml")

	cmd := exec.Command("kind", "create", "cluster",
		"--name", kindClusterName,
		"--config", configPath,
		"--wait", "60s",
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func cleanupKindCluster() {
	cmd := exec.Command("kind", "delete", "cluster", "--name", kindClusterName)
	_ = cmd.Run() //nolint:errcheck // cleanup
}

func setupClient() {
	kubeconfig := os.Getenv("KUBECONFIG")
	if kubeconfig == "" {
		kubeconfig = os.Getenv("HOME") + "/.kube/config"
	}

	config, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		panic(err)
	}

	clientset, err = kubernetes.NewForConfig(config)
	if err != nil {
		panic(err)
	}
}

func deployPlacers() error {
	_, filename, _, _ := runtime.Caller(0)
	workspaceRoot := filepath.Join(filepath.Dir(filename), "..", "..")

	cmd := exec.Command("make", "docker-build")
	cmd.Dir = workspaceRoot
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to build images: %w", err)
	}

	for _, image := range []string{"kubenexus-greedylb:v0.1.0", "kubenexus-refinelb:v0.1.0", "kubenexus-patterndetector:v0.1.0"} {
		cmd = exec.Command("kind", "load", "docker-image", image, "--name", kindClusterName)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("failed to load image %s: %w", image, err)
		}
	}

	cmd = exec.Command("kubectl", "apply", "-f", filepath.Join(workspaceRoot, "deploy"))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func waitForPlacersReady() error {
	ctx := context.Background()
	return wait.PollUntilContextTimeout(ctx, 5*time.Second, 2*time.Minute, true, func(ctx context.Context) (bool, error) {
		pods, err := clientset.CoreV1().Pods("kubenexus-system").List(ctx, metav1.ListOptions{
			LabelSelector: "app.kubernetes.io/part-of=kubenexus",
		})
		if err != nil {
			return false, err
		}

		if len(pods.Items) == 0 {
			fmt.Println("Waiting for placer pods to be created...")
			return false, nil
		}

		ready := 0
		for _, pod := range pods.Items {
			if pod.Status.Phase != v1.PodRunning {
				continue
			}
			for _, cond := range pod.Status.Conditions {
				if cond.Type == v1.PodReady && cond.Status == v1.ConditionTrue {
					ready++
				}
			}
		}

		fmt.Printf("%d/%d placer pods ready\n", ready, len(pods.Items))
		return ready == len(pods.Items), nil
	})
}

func makeWorkloadPod(name, namespace, schedulerName string) *v1.Pod {
	return &v1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Spec: v1.PodSpec{
			SchedulerName: schedulerName,
			RestartPolicy: v1.RestartPolicyNever,
			Containers: []v1.Container{
				{
					Name:    "worker",
					Image:   "busybox:latest",
					Command: []string{"sh", "-c", "sleep 30"},
				},
			},
		},
	}
}

func dumpPodStatus(t *testing.T, ctx context.Context, namespace string) {
	pods, err := clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		t.Logf("Failed to list pods: %v", err)
		return
	}

	t.Logf("Pod status dump for namespace %s:", namespace)
	for _, pod := range pods.Items {
		t.Logf("Pod %s: Phase=%s, NodeName=%s, Message=%s",
			pod.Name, pod.Status.Phase, pod.Spec.NodeName, pod.Status.Message)

		for _, cond := range pod.Status.Conditions {
			if cond.Status != v1.ConditionTrue {
				t.Logf("  Condition %s: %s - %s", cond.Type, cond.Status, cond.Message)
			}
		}
	}
}
