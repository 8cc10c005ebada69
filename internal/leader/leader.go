// Package leader elects one replica of the bot through a Kubernetes Lease.
// Only the leader holds the Discord session; free agency state lives in the
// database, so a replica that takes over carries on from the last committed
// phase.
package leader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/jensholdgaard/footy-fa-bot/internal/config"
)

// identity is the configured identity, then POD_NAME, then the hostname.
func identity(cfg config.LeaderElectionConfig) string {
	if cfg.Identity != "" {
		return cfg.Identity
	}
	if name := os.Getenv("POD_NAME"); name != "" {
		return name
	}
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}

// ClientFactory creates the Kubernetes clientset. Tests replace it.
var ClientFactory = func() (kubernetes.Interface, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("building in-cluster config: %w", err)
	}
	client, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating kubernetes client: %w", err)
	}
	return client, nil
}

func validate(cfg config.LeaderElectionConfig) error {
	switch {
	case cfg.LeaseName == "" || cfg.LeaseNamespace == "":
		return errors.New("lease name and namespace are required")
	case cfg.RenewDeadline >= cfg.LeaseDuration:
		return fmt.Errorf("renew deadline %s must be shorter than lease duration %s", cfg.RenewDeadline, cfg.LeaseDuration)
	case cfg.RetryPeriod <= 0:
		return fmt.Errorf("retry period must be positive, got %s", cfg.RetryPeriod)
	}
	return nil
}

// Run campaigns for the lease until ctx is done. lead is called with a
// context cancelled when leadership is lost and should block until then;
// lost runs after it returns.
func Run(ctx context.Context, cfg config.LeaderElectionConfig, logger *slog.Logger, lead func(ctx context.Context), lost func()) error {
	if err := validate(cfg); err != nil {
		return fmt.Errorf("leader election config: %w", err)
	}
	id := identity(cfg)
	logger = logger.With(slog.String("identity", id), slog.String("lease", cfg.LeaseName))
	logger.InfoContext(ctx, "starting leader election", slog.String("namespace", cfg.LeaseNamespace))

	client, err := ClientFactory()
	if err != nil {
		return fmt.Errorf("leader election client: %w", err)
	}

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      cfg.LeaseName,
			Namespace: cfg.LeaseNamespace,
		},
		Client:     client.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{Identity: id},
	}

	elector, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
		Lock:            lock,
		LeaseDuration:   cfg.LeaseDuration,
		RenewDeadline:   cfg.RenewDeadline,
		RetryPeriod:     cfg.RetryPeriod,
		ReleaseOnCancel: true,
		Name:            cfg.LeaseName,
		Callbacks: leaderelection.LeaderCallbacks{
			OnStartedLeading: func(ctx context.Context) {
				logger.InfoContext(ctx, "acquired leadership")
				lead(ctx)
			},
			OnStoppedLeading: func() {
				logger.Info("released leadership")
				lost()
			},
			OnNewLeader: func(newID string) {
				if newID != id {
					logger.Info("standing by", slog.String("leader", newID))
				}
			},
		},
	})
	if err != nil {
		return fmt.Errorf("creating leader elector: %w", err)
	}
	elector.Run(ctx)
	return nil
}
