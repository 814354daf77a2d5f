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

package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	klog "k8s.io/klog/v2"

	"github.com/kube-nexus/kubenexus-scheduler/pkg/config"
	"github.com/kube-nexus/kubenexus-scheduler/pkg/greedylb"
	_ "github.com/kube-nexus/kubenexus-scheduler/pkg/metrics"
	"github.com/kube-nexus/kubenexus-scheduler/pkg/orchestrator"
	"github.com/kube-nexus/kubenexus-scheduler/pkg/watchloop"
)

func main() {
	klog.InitFlags(nil)

	cmd := newRootCommand()
	cmd.Flags().AddGoFlagSet(flag.CommandLine)

	if err := cmd.Execute(); err != nil {
		klog.ErrorS(err, "greedylb command failed")
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var cfg *config.PlacerConfig

	cmd := &cobra.Command{
		Use:   "greedylb",
		Short: "GreedyLB watches pending pods and binds them to the node with the most free resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	cfg = config.BindPlacerFlags(cmd.Flags(), config.DefaultGreedySchedulerName)
	return cmd
}

func run(ctx context.Context, cfg *config.PlacerConfig) error {
	klog.InfoS("Starting GreedyLB placer", "schedulerName", cfg.SchedulerName, "metricsAddr", cfg.MetricsAddr)

	client, err := orchestrator.NewClient(cfg.Kubeconfig)
	if err != nil {
		klog.ErrorS(err, "Failed to build orchestrator client")
		return err
	}

	placer := greedylb.New(client, cfg.SchedulerName)
	loop := watchloop.NewLoop(client, cfg.SchedulerName, placer.Place)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		klog.InfoS("Metrics server listening", "addr", cfg.MetricsAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			klog.ErrorS(err, "Metrics server failed")
		}
	}()
	defer server.Close()

	return loop.Run(ctx)
}
