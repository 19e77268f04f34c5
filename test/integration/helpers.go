package integration

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/neilotoole/slogt"

	"ChainFL/client"
	"ChainFL/internal/aggregate"
	"ChainFL/internal/api"
	"ChainFL/internal/artifact"
	"ChainFL/internal/contract"
	"ChainFL/internal/coordinator"
	"ChainFL/internal/events"
	"ChainFL/internal/journal"
	"ChainFL/internal/ledger"
	"ChainFL/internal/ledgernode"
	"ChainFL/internal/metrics"
	"ChainFL/internal/registry"
	"ChainFL/internal/retry"
	"ChainFL/internal/storage"
)

// clusterOpts holds configuration for a Cluster.
type clusterOpts struct {
	collectTimeout time.Duration // collectTimeout is the coordinator's window
	dim            int           // dim is the model length
}

// ClusterOption configures cluster behavior.
type ClusterOption func(*clusterOpts)

// WithCollectTimeout sets the collection window.
func WithCollectTimeout(d time.Duration) ClusterOption {
	return func(o *clusterOpts) { o.collectTimeout = d }
}

// WithDim sets the model length.
func WithDim(n int) ClusterOption { return func(o *clusterOpts) { o.dim = n } }

// Cluster is an in-process deployment: a ledger node over QUIC, a coordinator
// dialing it, and the HTTP front door.
type Cluster struct {
	t    *testing.T
	dir  string
	opts clusterOpts

	coordKey ed25519.PrivateKey // coordKey is the coordinator account
	node     *ledgernode.Server
	db       *storage.Storage
	ledger   *ledger.Client
	store    *artifact.Store
	journal  *journal.Journal

	coord  *coordinator.Coordinator
	api    *api.Server
	bus    *events.Bus
	stop   context.CancelFunc // stop cancels the coordinator loop
	runErr chan error
}

// NewCluster starts a ledger node and a coordinator. Everything stops at test end.
func NewCluster(t *testing.T, options ...ClusterOption) *Cluster {
	t.Helper()

	opts := clusterOpts{collectTimeout: time.Hour, dim: 4}
	for _, o := range options {
		o(&opts)
	}

	c := &Cluster{t: t, dir: t.TempDir(), opts: opts}

	_, c.coordKey, _ = ed25519.GenerateKey(rand.Reader)
	_, nodeKey, _ := ed25519.GenerateKey(rand.Reader)

	var err error

	c.db, err = storage.New(filepath.Join(c.dir, "ledger"))
	if err != nil {
		t.Fatalf("open ledger storage: %v", err)
	}
	t.Cleanup(func() { c.db.Close() })

	ct, err := contract.New(c.db, contract.Options{
		Owner:  c.coordKey.Public().(ed25519.PublicKey),
		Logger: slogt.New(t),
	})
	if err != nil {
		t.Fatalf("contract: %v", err)
	}

	c.node, err = ledgernode.New(ledgernode.Config{
		PrivateKey: nodeKey,
		ListenAddr: "127.0.0.1:0",
		Logger:     slogt.New(t),
	}, ct)
	if err != nil {
		t.Fatalf("ledger node: %v", err)
	}
	if err := c.node.Start(); err != nil {
		t.Fatalf("start ledger node: %v", err)
	}
	t.Cleanup(func() { c.node.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c.ledger, err = ledger.Dial(ctx, ledger.ClientConfig{
		Addr:       c.node.Addr(),
		PrivateKey: c.coordKey,
		NodeKey:    c.node.PublicKey(),
		ReceiptKey: c.node.ReceiptKey(),
		Logger:     slogt.New(t),
	})
	if err != nil {
		t.Fatalf("dial ledger: %v", err)
	}
	t.Cleanup(func() { c.ledger.Close() })

	fb, err := artifact.NewFileBackend(filepath.Join(c.dir, "artifacts"))
	if err != nil {
		t.Fatalf("artifact backend: %v", err)
	}
	c.store = artifact.NewStore(fb, artifact.Options{PublishBackoff: 10 * time.Millisecond})

	initial, _ := artifact.EncodeWeights(make([]float64, opts.dim))
	if _, err := c.store.InitGlobal(ctx, initial); err != nil {
		t.Fatalf("init global: %v", err)
	}

	c.journal, err = journal.Open(filepath.Join(c.dir, "journal.db"), slogt.New(t))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { c.journal.Close() })

	c.StartCoordinator()

	return c
}

// StartCoordinator starts a fresh coordinator and front door against the
// cluster's ledger, store and journal.
func (c *Cluster) StartCoordinator() {
	c.t.Helper()

	m := metrics.New()
	c.bus = events.NewBus()

	policy := retry.Policy{Attempts: 3, Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond, Multiplier: 2}

	coord, err := coordinator.New(coordinator.Config{
		CollectTimeout: c.opts.collectTimeout,
		RetryDelay:     50 * time.Millisecond,
		StrictHashes:   true,
	}, coordinator.Deps{
		Ledger:     ledger.WithRetry(c.ledger, policy, slogt.New(c.t)),
		Store:      c.store,
		Registry:   registry.New(c.journal, slogt.New(c.t)),
		Aggregator: aggregate.FedAvg{},
		Recorder:   c.journal,
		Events:     c.bus,
		Metrics:    m,
		Logger:     slogt.New(c.t),
	})
	if err != nil {
		c.t.Fatalf("coordinator: %v", err)
	}

	srv := api.New(api.Config{
		Addr:        "127.0.0.1:0",
		Coordinator: coord,
		Ledger:      c.ledger,
		Reports:     c.journal,
		Events:      c.bus,
		Metrics:     m.Handler(),
		Logger:      slogt.New(c.t),
	})
	if err := srv.Start(); err != nil {
		c.t.Fatalf("start api: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)

	go func() { runErr <- coord.Run(ctx) }()

	c.coord, c.api, c.stop, c.runErr = coord, srv, cancel, runErr

	c.t.Cleanup(c.StopCoordinator)
}

// StopCoordinator stops the coordinator loop and its front door. Safe to call twice.
func (c *Cluster) StopCoordinator() {
	if c.stop == nil {
		return
	}

	c.stop()
	select {
	case <-c.runErr:
	case <-time.After(5 * time.Second):
		c.t.Error("coordinator did not stop")
	}

	c.api.Stop()
	c.bus.Close()
	c.stop = nil
}

// Client returns an SDK client for the front door.
func (c *Cluster) Client() *client.Client {
	return client.New(c.api.Addr())
}

// Coordinator returns the running coordinator.
func (c *Cluster) Coordinator() *coordinator.Coordinator { return c.coord }

// Ledger returns the coordinator's ledger connection.
func (c *Cluster) Ledger() *ledger.Client { return c.ledger }

// UpdateDir returns a directory participants write their documents to.
func (c *Cluster) UpdateDir(participant string) string {
	return filepath.Join(c.dir, "participants", participant)
}

// WaitForRound blocks until the front door reports round as current and collecting.
func (c *Cluster) WaitForRound(round uint64, timeout time.Duration) {
	c.t.Helper()

	cli := c.Client()
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		info, err := cli.CurrentRound(context.Background())
		if err == nil && info.Round == round && info.State == ledger.StateCollecting.String() {
			if c.coord.Status().Phase == coordinator.PhaseCollecting.String() {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}

	c.t.Fatalf("round %d not reached within %s (status %+v)", round, timeout, c.coord.Status())
}

// GlobalWeights reads the published global model.
func (c *Cluster) GlobalWeights() (artifact.ContentRef, []float64) {
	c.t.Helper()

	ref, err := c.store.Global(context.Background())
	if err != nil {
		c.t.Fatalf("global model: %v", err)
	}

	w, err := client.LoadWeights(ref.URI, ref.SHA256)
	if err != nil {
		c.t.Fatalf("load global model: %v", err)
	}

	return ref, w
}

// Submit writes weights as participant's document and announces it to the current round.
func (c *Cluster) Submit(participant string, weights []float64, size uint64) client.Result {
	c.t.Helper()

	u, err := client.PrepareUpdate(c.UpdateDir(participant), fmt.Sprintf("update-%d", time.Now().UnixNano()), weights, size)
	if err != nil {
		c.t.Fatalf("prepare update: %v", err)
	}

	res, err := c.Client().SubmitUpdate(context.Background(), participant, u, 0)
	if err != nil {
		c.t.Fatalf("submit %s: %v", participant, err)
	}

	return res
}

// mustPrepare writes a document for participant without announcing it.
func mustPrepare(t *testing.T, c *Cluster, participant string, weights []float64) client.Update {
	t.Helper()

	u, err := client.PrepareUpdate(c.UpdateDir(participant), fmt.Sprintf("update-%d", time.Now().UnixNano()), weights, 1)
	if err != nil {
		t.Fatalf("prepare update: %v", err)
	}

	return u
}
