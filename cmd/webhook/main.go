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

package main

import (
	"crypto/tls"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/klog/v2"

	"github.com/kube-nexus/kubenexus-scheduler/pkg/config"
	"github.com/kube-nexus/kubenexus-scheduler/pkg/webhook"
)

func main() {
	klog.InitFlags(nil)

	cmd := newRootCommand()
	cmd.Flags().AddGoFlagSet(flag.CommandLine)

	if err := cmd.Execute(); err != nil {
		klog.ErrorS(err, "webhook command failed")
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var cfg *config.WebhookConfig

	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Admission webhook defaulting schedulerName to the pattern detector's active placer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}

	cfg = config.BindWebhookFlags(cmd.Flags())
	return cmd
}

func run(cfg *config.WebhookConfig) error {
	klog.InfoS("Starting KubeNexus admission webhook",
		"port", cfg.Port,
		"certFile", cfg.CertFile,
		"keyFile", cfg.KeyFile,
		"fallbackSchedulerName", cfg.FallbackSchedulerName)

	var restConfig *rest.Config
	var err error
	if cfg.Kubeconfig != "" {
		restConfig, err = clientcmd.BuildConfigFromFlags("", cfg.Kubeconfig)
	} else {
		restConfig, err = rest.InClusterConfig()
	}
	if err != nil {
		klog.ErrorS(err, "Failed to create Kubernetes client config")
		return err
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		klog.ErrorS(err, "Failed to create Kubernetes clientset")
		return err
	}

	defaulter := webhook.NewSchedulerNameDefaulter(clientset, cfg.FallbackSchedulerName)

	mux := http.NewServeMux()
	mux.HandleFunc("/mutate-pod", defaulter.Handle)
	mux.HandleFunc("/healthz", healthzHandler)
	mux.HandleFunc("/readyz", readyzHandler)

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		klog.ErrorS(err, "Failed to load TLS certificates")
		return err
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		},
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		TLSConfig:         tlsConfig,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		klog.InfoS("Webhook server started", "port", cfg.Port)
		if err := server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			klog.ErrorS(err, "Failed to start webhook server")
			os.Exit(1)
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	<-signalChan

	klog.InfoS("Received termination signal, shutting down webhook server")

	if err := server.Close(); err != nil {
		klog.ErrorS(err, "Error shutting down webhook server")
		return err
	}
	return nil
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func readyzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
