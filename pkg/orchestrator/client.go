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

package orchestrator

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	klog "k8s.io/klog/v2"

	"github.com/kube-nexus/kubenexus-scheduler/pkg/orchestrator/errs"
)

// Deployment is the subset of a Deployment this system mutates: its
// namespace/name identity and the scheduler name on its pod template.
type Deployment struct {
	Namespace     string
	Name          string
	SchedulerName string
}

const (
	// RoutingStateNamespace is the namespace the routing-state ConfigMap
	// lives in.
	RoutingStateNamespace = "kubenexus-system"

	// RoutingStateConfigMapName is the ConfigMap the detector writes its
	// currently active placer name to on every switch. This is a
	// read-only side channel for the admission webhook's defaulting
	// logic; placer/detector coordination never reads it back.
	RoutingStateConfigMapName = "kubenexus-routing-state"

	// RoutingStateKey is the data key holding the active scheduler name.
	RoutingStateKey = "currentScheduler"
)

// Client is the abstract orchestrator API this system consumes. It exists
// so the placers and the pattern detector can be exercised against a fake
// in unit tests without a running API server.
type Client interface {
	ListNodes(ctx context.Context) ([]Node, error)
	ListPods(ctx context.Context, fieldSelector fields.Selector) ([]Pod, error)
	WatchPods(ctx context.Context, fieldSelector fields.Selector, resourceVersion string) (watch.Interface, error)
	Bind(ctx context.Context, namespace, podName, nodeName string) error
	ListDeployments(ctx context.Context) ([]Deployment, error)
	PatchSchedulerName(ctx context.Context, namespace, name, schedulerName string) error
	WriteRoutingState(ctx context.Context, schedulerName string) error
}

// clientsetClient implements Client over a real k8s.io/client-go
// clientset.
type clientsetClient struct {
	clientset kubernetes.Interface
}

var _ Client = (*clientsetClient)(nil)

// NewClient builds a Client from a kubeconfig path. An empty path tries
// the in-cluster configuration first and falls back to the default local
// kubeconfig discovery rules used by clientcmd, matching the fallback
// order described in spec.md's ConfigurationUnavailable handling. Neither
// being discoverable is errs.ErrConfigurationUnavailable.
func NewClient(kubeconfigPath string) (Client, error) {
	cfg, err := loadRestConfig(kubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrConfigurationUnavailable, err)
	}

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrConfigurationUnavailable, err)
	}

	return &clientsetClient{clientset: clientset}, nil
}

func loadRestConfig(kubeconfigPath string) (*rest.Config, error) {
	if kubeconfigPath != "" {
		cfg, err := clientcmd.BuildConfigFromFlags("", kubeconfigPath)
		if err == nil {
			klog.InfoS("Loaded local kubeconfig", "path", kubeconfigPath)
			return cfg, nil
		}
		klog.V(2).InfoS("Failed to load kubeconfig from flag, falling back to in-cluster config", "path", kubeconfigPath, "err", err)
	}

	cfg, err := rest.InClusterConfig()
	if err == nil {
		klog.InfoS("Loaded in-cluster Kubernetes configuration")
		return cfg, nil
	}

	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	cfg, defaultErr := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, &clientcmd.ConfigOverrides{}).ClientConfig()
	if defaultErr == nil {
		klog.InfoS("Loaded default local kubeconfig")
		return cfg, nil
	}

	return nil, fmt.Errorf("in-cluster config: %v; default kubeconfig: %w", err, defaultErr)
}

func (c *clientsetClient) ListNodes(ctx context.Context) ([]Node, error) {
	list, err := c.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: list nodes: %v", errs.ErrTransientAPI, err)
	}

	nodes := make([]Node, 0, len(list.Items))
	for i := range list.Items {
		nodes = append(nodes, FromV1Node(&list.Items[i]))
	}
	return nodes, nil
}

func (c *clientsetClient) ListPods(ctx context.Context, fieldSelector fields.Selector) ([]Pod, error) {
	opts := metav1.ListOptions{}
	if fieldSelector != nil {
		opts.FieldSelector = fieldSelector.String()
	}

	list, err := c.clientset.CoreV1().Pods(corev1.NamespaceAll).List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: list pods: %v", errs.ErrTransientAPI, err)
	}

	pods := make([]Pod, 0, len(list.Items))
	for i := range list.Items {
		pods = append(pods, FromV1Pod(&list.Items[i]))
	}
	return pods, nil
}

func (c *clientsetClient) WatchPods(ctx context.Context, fieldSelector fields.Selector, resourceVersion string) (watch.Interface, error) {
	opts := metav1.ListOptions{
		ResourceVersion: resourceVersion,
	}
	if fieldSelector != nil {
		opts.FieldSelector = fieldSelector.String()
	}

	w, err := c.clientset.CoreV1().Pods(corev1.NamespaceAll).Watch(ctx, opts)
	if err != nil {
		if apierrors.IsResourceExpired(err) || apierrors.IsGone(err) {
			return nil, fmt.Errorf("%w: %v", errs.ErrStreamExpired, err)
		}
		return nil, fmt.Errorf("%w: watch pods: %v", errs.ErrTransientAPI, err)
	}
	return w, nil
}

func (c *clientsetClient) Bind(ctx context.Context, namespace, podName, nodeName string) error {
	binding := &corev1.Binding{
		ObjectMeta: metav1.ObjectMeta{
			Name:      podName,
			Namespace: namespace,
		},
		Target: corev1.ObjectReference{
			APIVersion: "v1",
			Kind:       "Node",
			Name:       nodeName,
		},
	}

	err := c.clientset.CoreV1().Pods(namespace).Bind(ctx, binding, metav1.CreateOptions{})
	if err == nil {
		return nil
	}

	if apierrors.IsConflict(err) || apierrors.IsAlreadyExists(err) || apierrors.IsNotFound(err) {
		return fmt.Errorf("%w: %s/%s -> %s: %v", errs.ErrBindConflict, namespace, podName, nodeName, err)
	}
	return fmt.Errorf("%w: bind %s/%s -> %s: %v", errs.ErrTransientAPI, namespace, podName, nodeName, err)
}

func (c *clientsetClient) ListDeployments(ctx context.Context) ([]Deployment, error) {
	list, err := c.clientset.AppsV1().Deployments(corev1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: list deployments: %v", errs.ErrTransientAPI, err)
	}

	deployments := make([]Deployment, 0, len(list.Items))
	for _, d := range list.Items {
		deployments = append(deployments, Deployment{
			Namespace:     d.Namespace,
			Name:          d.Name,
			SchedulerName: d.Spec.Template.Spec.SchedulerName,
		})
	}
	return deployments, nil
}

func (c *clientsetClient) PatchSchedulerName(ctx context.Context, namespace, name, schedulerName string) error {
	patch := []byte(fmt.Sprintf(
		`{"spec":{"template":{"spec":{"schedulerName":%q}}}}`, schedulerName,
	))

	_, err := c.clientset.AppsV1().Deployments(namespace).Patch(
		ctx, name, types.MergePatchType, patch, metav1.PatchOptions{},
	)
	if err != nil {
		return fmt.Errorf("%w: patch deployment %s/%s: %v", errs.ErrTransientAPI, namespace, name, err)
	}
	return nil
}

func (c *clientsetClient) WriteRoutingState(ctx context.Context, schedulerName string) error {
	cms := c.clientset.CoreV1().ConfigMaps(RoutingStateNamespace)

	existing, err := cms.Get(ctx, RoutingStateConfigMapName, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		cm := &corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{
				Name:      RoutingStateConfigMapName,
				Namespace: RoutingStateNamespace,
			},
			Data: map[string]string{
				RoutingStateKey: schedulerName,
			},
		}
		if _, err := cms.Create(ctx, cm, metav1.CreateOptions{}); err != nil {
			return fmt.Errorf("%w: create routing state configmap: %v", errs.ErrTransientAPI, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: get routing state configmap: %v", errs.ErrTransientAPI, err)
	}

	if existing.Data == nil {
		existing.Data = map[string]string{}
	}
	existing.Data[RoutingStateKey] = schedulerName

	if _, err := cms.Update(ctx, existing, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("%w: update routing state configmap: %v", errs.ErrTransientAPI, err)
	}
	return nil
}

// PodFieldSelector builds the field selector placers use to subscribe to
// their own claimable pods: scheduler name matches and the pod is not yet
// assigned to a node.
func PodFieldSelector(schedulerName string) fields.Selector {
	return fields.AndSelectors(
		fields.OneTermEqualSelector("spec.schedulerName", schedulerName),
		fields.OneTermEqualSelector("spec.nodeName", ""),
	)
}

