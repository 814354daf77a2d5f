/*
Copyright 2026 KubeNexus Authors.

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

package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	admissionv1 "k8s.io/api/admission/v1"
	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"

	"github.com/kube-nexus/kubenexus-scheduler/pkg/orchestrator"
)

// SchedulerNameDefaulter defaults a pod's schedulerName to the pattern
// detector's currently active placer when the pod omits schedulerName
// entirely. It never overrides a schedulerName a workload author set
// explicitly.
type SchedulerNameDefaulter struct {
	clientset             kubernetes.Interface
	fallbackSchedulerName string
}

// NewSchedulerNameDefaulter constructs a SchedulerNameDefaulter. fallback is
// used when the routing-state ConfigMap cannot be read (e.g. the detector
// has not run its first cycle yet).
func NewSchedulerNameDefaulter(clientset kubernetes.Interface, fallback string) *SchedulerNameDefaulter {
	return &SchedulerNameDefaulter{
		clientset:             clientset,
		fallbackSchedulerName: fallback,
	}
}

// Handle processes admission requests.
func (d *SchedulerNameDefaulter) Handle(w http.ResponseWriter, r *http.Request) {
	klog.V(4).InfoS("Received admission request", "method", r.Method, "url", r.URL.Path)

	var admissionReview admissionv1.AdmissionReview
	if err := json.NewDecoder(r.Body).Decode(&admissionReview); err != nil {
		klog.ErrorS(err, "Failed to decode admission review request")
		http.Error(w, fmt.Sprintf("could not decode body: %v", err), http.StatusBadRequest)
		return
	}

	admissionResponse := d.mutate(r.Context(), admissionReview.Request)

	responseAdmissionReview := admissionv1.AdmissionReview{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "admission.k8s.io/v1",
			Kind:       "AdmissionReview",
		},
		Response: admissionResponse,
	}

	if admissionReview.Request != nil {
		responseAdmissionReview.Response.UID = admissionReview.Request.UID
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(responseAdmissionReview); err != nil {
		klog.ErrorS(err, "Failed to encode admission review response")
		http.Error(w, fmt.Sprintf("could not encode response: %v", err), http.StatusInternalServerError)
	}
}

func (d *SchedulerNameDefaulter) mutate(ctx context.Context, req *admissionv1.AdmissionRequest) *admissionv1.AdmissionResponse {
	if req == nil {
		return &admissionv1.AdmissionResponse{
			Allowed: false,
			Result: &metav1.Status{
				Message: "admission request is nil",
			},
		}
	}

	if req.Kind.Kind != "Pod" {
		return &admissionv1.AdmissionResponse{Allowed: true}
	}

	var pod v1.Pod
	if err := json.Unmarshal(req.Object.Raw, &pod); err != nil {
		klog.ErrorS(err, "Failed to unmarshal pod", "namespace", req.Namespace, "name", req.Name)
		return &admissionv1.AdmissionResponse{
			Allowed: false,
			Result: &metav1.Status{
				Message: fmt.Sprintf("could not unmarshal pod: %v", err),
			},
		}
	}

	if pod.Spec.SchedulerName != "" {
		klog.V(5).InfoS("Pod already declares a schedulerName, skipping mutation",
			"pod", pod.Name, "namespace", pod.Namespace, "schedulerName", pod.Spec.SchedulerName)
		return &admissionv1.AdmissionResponse{Allowed: true}
	}

	target, err := d.activeSchedulerName(ctx)
	if err != nil {
		klog.V(4).InfoS("Failed to read routing state, allowing without mutation", "error", err)
		return &admissionv1.AdmissionResponse{Allowed: true}
	}

	patch := []map[string]interface{}{
		{
			"op":    "add",
			"path":  "/spec/schedulerName",
			"value": target,
		},
	}

	patchBytes, err := json.Marshal(patch)
	if err != nil {
		klog.ErrorS(err, "Failed to marshal patch")
		return &admissionv1.AdmissionResponse{
			Allowed: false,
			Result: &metav1.Status{
				Message: fmt.Sprintf("could not marshal patch: %v", err),
			},
		}
	}

	klog.InfoS("Defaulting pod schedulerName", "pod", pod.Name, "namespace", pod.Namespace, "schedulerName", target)

	patchType := admissionv1.PatchTypeJSONPatch
	return &admissionv1.AdmissionResponse{
		Allowed:   true,
		Patch:     patchBytes,
		PatchType: &patchType,
	}
}

// activeSchedulerName reads the detector's routing-state ConfigMap. On any
// failure (not found, unreadable, missing key) it falls back to the
// configured default so admission never blocks pod creation on this.
func (d *SchedulerNameDefaulter) activeSchedulerName(ctx context.Context) (string, error) {
	cm, err := d.clientset.CoreV1().ConfigMaps(orchestrator.RoutingStateNamespace).Get(ctx, orchestrator.RoutingStateConfigMapName, metav1.GetOptions{})
	if err != nil {
		return d.fallbackSchedulerName, nil
	}

	scheduler, ok := cm.Data[orchestrator.RoutingStateKey]
	if !ok || scheduler == "" {
		return d.fallbackSchedulerName, nil
	}

	return scheduler, nil
}
