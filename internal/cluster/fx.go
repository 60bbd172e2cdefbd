package cluster

import (
	"fmt"

	"github.com/geocubed/cubehub/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	k8s "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// NewClientset connects to the cluster, in-cluster when possible, otherwise
// through the configured kubeconfig.
func NewClientset(cfg config.Config) (k8s.Interface, error) {
	restCfg, err := rest.InClusterConfig()
	if err != nil {
		restCfg, err = clientcmd.BuildConfigFromFlags("", cfg.KubeConfigPath)
		if err != nil {
			return nil, fmt.Errorf("no cluster configuration available: %w", err)
		}
	}
	return k8s.NewForConfig(restCfg)
}

// Params collects scheduler construction dependencies.
type Params struct {
	fx.In

	Client k8s.Interface
	Cfg    config.Config
	Log    *zap.Logger
}

// NewScheduler provides the cluster scheduler boundary.
func NewScheduler(p Params) Scheduler {
	return NewK8sScheduler(p.Client, p.Cfg.K8sNamespace, p.Cfg.RunnerImage, p.Log)
}

// Module wires the cluster scheduler client.
var Module = fx.Module("cluster",
	fx.Provide(
		NewClientset,
		NewScheduler,
	),
)
