package node

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aura-chain/aura-engine/core/types"
	"github.com/aura-chain/aura-engine/internal/authority"
	"github.com/aura-chain/aura-engine/internal/authorship"
	"github.com/aura-chain/aura-engine/internal/equivstore"
	"github.com/aura-chain/aura-engine/internal/finality"
	"github.com/aura-chain/aura-engine/internal/importqueue"
	"github.com/aura-chain/aura-engine/internal/signer"
	"github.com/aura-chain/aura-engine/internal/slotclock"
	"github.com/aura-chain/aura-engine/internal/verifier"
	"github.com/aura-chain/aura-engine/log"
	"github.com/aura-chain/aura-engine/metrics"
)

// ChainHeadProvider resolves the current best header the authorship worker
// should build on. Ownership of chain storage itself is an external
// collaborator's.
type ChainHeadProvider interface {
	ChainHead() (*types.Header, error)
}

// Node wires the five engine components into a managed process: the slot
// clock drives the authorship worker, the header verifier and import queue
// consume network blocks, and the finality window tracks staleness. All
// networking, storage, RPC, and telemetry transports are external
// collaborators.
type Node struct {
	cfg Config
	log *log.Logger

	clock      *slotclock.SlotClock
	authorship *authorship.Worker
	queue      *importqueue.Queue
	verifier   *verifier.HeaderVerifier
	finality   *finality.Window
	store      equivstore.Store

	registry *ServiceRegistry
	bus      *EventBus
	health   *HealthChecker
	recovery *RecoveryPolicy

	metricsExporter *metrics.PrometheusExporter

	ctx    context.Context
	cancel context.CancelFunc
}

// Deps bundles the caller-supplied collaborators a Node needs: identity,
// chain-state views, and the block-import/proposal hooks. All of these are
// out of this engine's scope and must be supplied by the host.
type Deps struct {
	Signer      signer.Signer
	Authorities authority.Provider
	ChainHead   ChainHeadProvider
	Proposer    authorship.Proposer
	Importer    importqueue.Importer
	SyncOracle  authorship.SyncOracle
	Link        importqueue.Link
	ExtraVerify verifier.ExtraVerifier
	// InherentCheck is the optional runtime collaborator validating a
	// block's inherent extrinsics (timestamp foremost). Nil disables
	// inherent checking and the future-timestamp drift-sleep path.
	InherentCheck verifier.InherentChecker
}

// New constructs a Node from configuration and its collaborators. It opens
// the durable equivocation store under cfg.DataDir but does not start any
// goroutines; call Start for that.
func New(cfg Config, deps Deps) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := log.New(levelFromName(cfg.LogLevel)).Module(cfg.Name)

	store, err := equivstore.OpenPebbleStore(cfg.ResolvePath("equivstore"))
	if err != nil {
		return nil, fmt.Errorf("node: open equivocation store: %w", err)
	}

	vcfg := verifier.DefaultConfig()
	vcfg.AllowOldSeals = cfg.AllowOldSeals
	hv := verifier.New(vcfg, deps.Authorities, store, deps.ExtraVerify, deps.InherentCheck, logger)

	clock := slotclock.NewSlotClock(cfg.GenesisTimeMillis, slotclock.SlotDuration(cfg.SlotDurationMillis))

	bus := NewEventBus(32)

	worker := authorship.New(authorship.Config{ForceAuthoring: cfg.ForceAuthoring}, deps.Signer, deps.Authorities, deps.Proposer, &localImporter{imp: deps.Importer, link: deps.Link, bus: bus}, deps.SyncOracle, logger)

	queueSlots := slotOracleFunc(func() slotclock.SlotNumber { return clock.CurrentSlot(time.Now()) })
	queue := importqueue.New(hv, queueSlots, deps.Importer, nil, nil, deps.Link, logger)

	fw := finality.DefaultWindow(func(additionalBlocksToWait uint64) {
		bus.PublishAsync(EventFinalityStall, additionalBlocksToWait)
	}, logger)

	registry := NewServiceRegistry(0)
	health := NewHealthChecker()
	recovery := NewRecoveryPolicy()

	n := &Node{
		cfg:        cfg,
		log:        logger,
		clock:      clock,
		authorship: worker,
		queue:      queue,
		verifier:   hv,
		finality:   fw,
		store:      store,
		registry:   registry,
		bus:        bus,
		health:     health,
		recovery:   recovery,
	}

	health.RegisterSubsystem("importqueue", &importQueueHealth{})
	health.RegisterSubsystem("finality", &finalityHealth{window: fw, staleAfter: 2 * finality.DefaultReportLatency})
	recovery.Register("importqueue", DefaultRecoveryConfig())
	recovery.Register("authorship", DefaultRecoveryConfig())

	if cfg.Metrics {
		n.metricsExporter = metrics.NewPrometheusExporter(metrics.DefaultRegistry, metrics.DefaultPrometheusConfig())
	}

	if err := registry.Register(&ServiceDescriptor{Name: "importqueue", Service: &importQueueService{queue: queue}, Priority: 0}); err != nil {
		return nil, err
	}
	if err := registry.Register(&ServiceDescriptor{Name: "authorship", Service: &authorshipService{worker: worker, clock: clock, chainHead: deps.ChainHead, log: logger, bus: bus}, Priority: 1, Dependencies: []string{"importqueue"}}); err != nil {
		return nil, err
	}
	if cfg.Metrics {
		if err := registry.Register(&ServiceDescriptor{Name: "metrics", Service: &metricsService{exporter: n.metricsExporter, addr: cfg.MetricsAddr}, Priority: 0}); err != nil {
			return nil, err
		}
	}

	return n, nil
}

// Start launches every registered service. The first error returned by any
// service aborts startup of the remainder already attempted; the caller
// should inspect the returned errors and typically call Stop.
func (n *Node) Start() error {
	n.ctx, n.cancel = context.WithCancel(context.Background())
	if errs := n.registry.Start(); len(errs) > 0 {
		for _, err := range errs {
			n.recovery.RecordFailure("importqueue", err)
		}
		return fmt.Errorf("node: %d service(s) failed to start: %v", len(errs), errs)
	}
	n.log.Info("node started", "name", n.cfg.Name)
	return nil
}

// Stop stops every registered service in reverse start order and closes
// the equivocation store.
func (n *Node) Stop() error {
	if n.cancel != nil {
		n.cancel()
	}
	errs := n.registry.Stop()
	n.bus.Close()
	if err := n.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("node: %d service(s) failed to stop: %v", len(errs), errs)
	}
	n.log.Info("node stopped", "name", n.cfg.Name)
	return nil
}

// FinalityWindow exposes the finality-staleness tracker so the host's
// inherent-call dispatch can drive final_hint and Finalize.
func (n *Node) FinalityWindow() *finality.Window { return n.finality }

// HeaderVerifier exposes the verifier so the host can call it directly for
// blocks that arrive outside the import queue (e.g. file import origin).
func (n *Node) HeaderVerifier() *verifier.HeaderVerifier { return n.verifier }

// ImportQueue exposes the queue so the host can submit blocks.
func (n *Node) ImportQueue() *importqueue.Queue { return n.queue }

// Events exposes the node's event bus so external collaborators can observe
// authorship, import, and finality activity without polling.
func (n *Node) Events() *EventBus { return n.bus }

type slotOracleFunc func() slotclock.SlotNumber

func (f slotOracleFunc) CurrentSlot() slotclock.SlotNumber { return f() }

// localImporter lets the authorship worker hand its own sealed blocks
// straight to the shared Importer without routing back through the
// network-facing import queue,
// while still reporting the outcome to the Link like the queue's worker
// does.
type localImporter struct {
	imp  importqueue.Importer
	link importqueue.Link
	bus  *EventBus
}

func (li *localImporter) ImportBlock(block *verifier.ImportBlock, aux map[string][]byte) error {
	block.Aux = aux
	imported, err := li.imp.ImportBlock(block)
	hash := block.Header.Hash()
	if err != nil {
		if li.link != nil {
			li.link.BlockImportFailed(hash, err)
		}
		metrics.BlocksFailed.Inc()
		li.bus.PublishAsync(EventBlockRejected, err)
		return err
	}
	if li.link != nil {
		li.link.BlockImported(hash, imported)
	}
	metrics.BlocksImported.Inc()
	li.bus.PublishAsync(EventBlockAuthored, hash)
	return nil
}

// importQueueHealth reports the import queue as degraded once its backlog
// grows past a depth that suggests the worker is falling behind the
// dispatcher.
type importQueueHealth struct{}

const importQueueDegradedDepth = 64

func (h *importQueueHealth) Check() *SubsystemHealth {
	depth := metrics.QueueDepth.Value()
	status := StatusHealthy
	if depth > importQueueDegradedDepth {
		status = StatusDegraded
	}
	return &SubsystemHealth{Status: status, Message: fmt.Sprintf("pending depth %d", depth)}
}

// finalityHealth reports the finality window as unhealthy once the most
// recent reported finalized height is more than staleAfter blocks ahead of
// the window's median.
type finalityHealth struct {
	window     *finality.Window
	staleAfter uint64
}

func (h *finalityHealth) Check() *SubsystemHealth {
	recent, _, median := h.window.Snapshot()
	if len(recent) == 0 {
		return &SubsystemHealth{Status: StatusHealthy, Message: "no finality hints yet"}
	}
	last := recent[len(recent)-1]
	status := StatusHealthy
	if last > median && last-median > h.staleAfter {
		status = StatusUnhealthy
	}
	return &SubsystemHealth{Status: status, Message: fmt.Sprintf("last=%d median=%d", last, median)}
}

// HealthReport aggregates health across the engine's subsystems.
func (n *Node) HealthReport() *HealthReport { return n.health.CheckAll() }

func levelFromName(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
