// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package discovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"

	"github.com/autobrr/requestarr/internal/models"
)

// KubernetesDiscovery handles service discovery from Kubernetes labels
type KubernetesDiscovery struct {
	client kubernetes.Interface
}

// NewKubernetesDiscovery creates a new Kubernetes discovery instance
func NewKubernetesDiscovery() (*KubernetesDiscovery, error) {
	var kubeconfig string
	if home := homedir.HomeDir(); home != "" {
		kubeconfig = filepath.Join(home, ".kube", "config")
	}

	if envKubeconfig := os.Getenv("KUBECONFIG"); envKubeconfig != "" {
		kubeconfig = envKubeconfig
	}

	config, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build kubeconfig: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client: %w", err)
	}

	return &KubernetesDiscovery{
		client: clientset,
	}, nil
}

// DiscoverServices finds services configured via Kubernetes labels
func (k *KubernetesDiscovery) DiscoverServices(ctx context.Context) ([]models.ServiceSettings, error) {
	services, err := k.client.CoreV1().Services("").List(ctx, metav1.ListOptions{
		LabelSelector: GetLabelKey(labelTypeKey),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}

	var settings []models.ServiceSettings

	for _, service := range services.Items {
		svc, err := parseLabels(service.Labels)
		if err != nil {
			log.Warn().Err(err).
				Str("namespace", service.Namespace).
				Str("name", service.Name).
				Msg("Failed to parse service labels")
			continue
		}
		if svc != nil {
			settings = append(settings, *svc)
		}
	}

	return settings, nil
}

// Close is a no-op for Kubernetes client
func (k *KubernetesDiscovery) Close() error {
	return nil
}
