package leader_test

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/k3s"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace/noop"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/jensholdgaard/footy-fa-bot/internal/clock"
	"github.com/jensholdgaard/footy-fa-bot/internal/config"
	"github.com/jensholdgaard/footy-fa-bot/internal/freeagency"
	"github.com/jensholdgaard/footy-fa-bot/internal/leader"
	"github.com/jensholdgaard/footy-fa-bot/internal/notify"
	"github.com/jensholdgaard/footy-fa-bot/internal/store"
	"github.com/jensholdgaard/footy-fa-bot/internal/store/memstore"
)

// replica is one bot process campaigning for the lease. Replicas share the
// repositories the way bot pods share the database.
type replica struct {
	id      string
	mgr     *freeagency.Manager
	leading atomic.Bool
	cancel  context.CancelFunc
	done    chan error
}

// TestLeaderElection_K3s runs two replicas against a real Lease in k3s and
// checks that only one drives free agency at a time and that the standby
// resumes the period where the leader left it. Skipped in short mode.
func TestLeaderElection_K3s(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping k3s integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	ctr, err := k3s.Run(ctx, "rancher/k3s:v1.31.6-k3s1")
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("starting k3s container: %v", err)
	}
	kubeConfig, err := ctr.GetKubeConfig(ctx)
	if err != nil {
		t.Fatalf("getting kubeconfig: %v", err)
	}
	restCfg, err := clientcmd.RESTConfigFromKubeConfig(kubeConfig)
	if err != nil {
		t.Fatalf("building rest config: %v", err)
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		t.Fatalf("creating kubernetes client: %v", err)
	}
	origFactory := leader.ClientFactory
	leader.ClientFactory = func() (kubernetes.Interface, error) { return clientset, nil }
	t.Cleanup(func() { leader.ClientFactory = origFactory })

	repos := memstore.New(clock.Real{})
	seedPeriod(ctx, t, repos)

	cfg := config.LeaderElectionConfig{
		Enabled:        true,
		LeaseName:      "fabot-handover",
		LeaseNamespace: "default",
		LeaseDuration:  5 * time.Second,
		RenewDeadline:  3 * time.Second,
		RetryPeriod:    time.Second,
	}

	var active, overlaps atomic.Int32
	campaign := func(id string) *replica {
		mgr, err := freeagency.NewManager(repos, &notify.Capture{}, config.Defaults().FreeAgency, slog.Default(), noop.NewTracerProvider(), metricnoop.NewMeterProvider(), clock.Real{})
		if err != nil {
			t.Fatalf("NewManager() error = %v", err)
		}
		r := &replica{id: id, mgr: mgr, done: make(chan error, 1)}
		rctx, rcancel := context.WithCancel(ctx)
		r.cancel = rcancel
		rcfg := cfg
		rcfg.Identity = id
		go func() {
			r.done <- leader.Run(rctx, rcfg, slog.Default(),
				func(ctx context.Context) {
					if active.Add(1) > 1 {
						overlaps.Add(1)
					}
					r.leading.Store(true)
					<-ctx.Done()
					r.leading.Store(false)
					active.Add(-1)
				},
				func() {},
			)
		}()
		return r
	}

	first := campaign("fabot-0")
	waitFor(t, "fabot-0 to lead", first.leading.Load)
	second := campaign("fabot-1")

	// The standby stays out while the leader opens bidding.
	time.Sleep(2 * cfg.RetryPeriod)
	if second.leading.Load() {
		t.Fatal("standby took the lease from a live leader")
	}
	if _, err := first.mgr.StartBidding(ctx); err != nil {
		t.Fatalf("StartBidding() on leader error = %v", err)
	}
	assertHolder(ctx, t, clientset, cfg, first.id)

	first.cancel()
	stopped(t, first)

	waitFor(t, "fabot-1 to take over", second.leading.Load)
	assertHolder(ctx, t, clientset, cfg, second.id)
	phase, err := second.mgr.Phase(ctx)
	if err != nil || phase != store.PeriodBidding {
		t.Fatalf("Phase() on new leader = %q, %v; want bidding", phase, err)
	}
	if _, err := second.mgr.StartMatching(ctx); err != nil {
		t.Fatalf("StartMatching() on new leader error = %v", err)
	}

	second.cancel()
	stopped(t, second)
	if n := overlaps.Load(); n != 0 {
		t.Errorf("replicas led at the same time %d times", n)
	}
}

func seedPeriod(ctx context.Context, t *testing.T, repos *store.Repositories) {
	t.Helper()
	if err := repos.Seasons.Upsert(ctx, &store.Season{Number: 9, Status: store.SeasonCompleted}); err != nil {
		t.Fatal(err)
	}
	team := &store.Team{Name: "Geelong", ChannelID: "ch-geelong", OwnerDiscordID: "owner-geelong"}
	if err := repos.Teams.Create(ctx, team); err != nil {
		t.Fatal(err)
	}
	player := &store.Player{Name: "Sam Walsh", Position: "MID", Age: 26, OverallRating: 80, TeamID: &team.ID, ContractExpiry: 9}
	if err := repos.Players.Create(ctx, player); err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(30 * time.Second)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-ticker.C:
		}
	}
}

func stopped(t *testing.T, r *replica) {
	t.Helper()
	select {
	case err := <-r.done:
		if err != nil {
			t.Fatalf("leader.Run(%s) error = %v", r.id, err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for %s to stop", r.id)
	}
}

func assertHolder(ctx context.Context, t *testing.T, client kubernetes.Interface, cfg config.LeaderElectionConfig, want string) {
	t.Helper()
	lease, err := client.CoordinationV1().Leases(cfg.LeaseNamespace).Get(ctx, cfg.LeaseName, metav1.GetOptions{})
	if err != nil {
		t.Fatalf("reading lease: %v", err)
	}
	if lease.Spec.HolderIdentity == nil || *lease.Spec.HolderIdentity != want {
		t.Fatalf("lease holder = %v, want %s", lease.Spec.HolderIdentity, want)
	}
}
