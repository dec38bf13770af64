// Command aura-node runs the slot authority engine standalone: a single
// authoring identity producing and importing blocks against an in-memory
// chain, for development and demonstration purposes. Embedding applications
// that supply their own storage, networking, and transaction-pool stack
// should call the node package directly instead of shelling out to this
// binary.
//
// Usage:
//
//	aura-node [flags]
//
// Flags:
//
//	--datadir        Data directory path (default: ~/.aura)
//	--slot-ms        Slot duration in milliseconds (default: 6000)
//	--genesis-ms     Genesis time, unix milliseconds (default: now)
//	--force-authoring  Disable the offline-skip rule
//	--metrics        Enable the Prometheus metrics endpoint
//	--metrics-addr   Metrics HTTP listen address (default: 127.0.0.1:9100)
//	--verbosity      Log level 0-5 (default: 3)
//	--sentry-dsn     Sentry DSN for crash reporting (optional)
//	--pyroscope-addr Pyroscope server address for continuous profiling (optional)
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/getsentry/sentry-go"
	"github.com/grafana/pyroscope-go"
	"github.com/urfave/cli/v2"

	"github.com/aura-chain/aura-engine/internal/authority"
	"github.com/aura-chain/aura-engine/internal/signer"
	"github.com/aura-chain/aura-engine/node"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	app := &cli.App{
		Name:    "aura-node",
		Usage:   "run the slot authority engine standalone",
		Version: fmt.Sprintf("%s (commit %s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "datadir", Value: node.DefaultConfig().DataDir, Usage: "data directory path"},
			&cli.Uint64Flag{Name: "slot-ms", Value: 6000, Usage: "slot duration in milliseconds"},
			&cli.Uint64Flag{Name: "genesis-ms", Usage: "genesis time, unix milliseconds (default: now)"},
			&cli.BoolFlag{Name: "force-authoring", Usage: "disable the offline-skip rule"},
			&cli.BoolFlag{Name: "metrics", Usage: "enable the Prometheus metrics endpoint"},
			&cli.StringFlag{Name: "metrics-addr", Value: "127.0.0.1:9100", Usage: "metrics HTTP listen address"},
			&cli.IntFlag{Name: "verbosity", Value: 3, Usage: "log level 0-5 (0=silent, 5=trace)"},
			&cli.StringFlag{Name: "sentry-dsn", Usage: "Sentry DSN for crash reporting"},
			&cli.StringFlag{Name: "pyroscope-addr", Usage: "Pyroscope server address for continuous profiling"},
		},
		Action: runNode,
	}

	if err := app.Run(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func runNode(c *cli.Context) error {
	if dsn := c.String("sentry-dsn"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: dsn, Release: version}); err != nil {
			return fmt.Errorf("sentry init: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
		defer sentry.Recover()
	}

	if addr := c.String("pyroscope-addr"); addr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "aura-node",
			ServerAddress:   addr,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileInuseObjects,
			},
		})
		if err != nil {
			return fmt.Errorf("pyroscope start: %w", err)
		}
		defer profiler.Stop()
	}

	genesisMillis := c.Uint64("genesis-ms")
	if genesisMillis == 0 {
		genesisMillis = uint64(time.Now().UnixMilli())
	}

	cfg := node.DefaultConfig()
	cfg.DataDir = c.String("datadir")
	cfg.SlotDurationMillis = c.Uint64("slot-ms")
	cfg.GenesisTimeMillis = genesisMillis
	cfg.ForceAuthoring = c.Bool("force-authoring")
	cfg.Metrics = c.Bool("metrics")
	cfg.MetricsAddr = c.String("metrics-addr")
	cfg.Verbosity = c.Int("verbosity")
	cfg.LogLevel = node.VerbosityToLogLevel(cfg.Verbosity)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.InitDataDir(); err != nil {
		return fmt.Errorf("initialize datadir: %w", err)
	}

	priv, err := crypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("generate authoring key: %w", err)
	}
	sgnr, err := signer.NewECDSASigner(priv)
	if err != nil {
		return fmt.Errorf("create signer: %w", err)
	}

	chain := node.NewInMemoryChain(genesisMillis)
	authorities := authority.NewStaticProvider(authority.Set{sgnr.AuthorityId()})

	n, err := node.New(cfg, node.Deps{
		Signer:      sgnr,
		Authorities: authorities,
		ChainHead:   chain,
		Proposer:    node.EmptyBodyProposer{},
		Importer:    chain,
		SyncOracle:  node.AlwaysOnline{},
		Link:        chain,
	})
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}

	if err := n.Start(); err != nil {
		return fmt.Errorf("start node: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	fmt.Printf("received signal %v, shutting down...\n", sig)

	if err := n.Stop(); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
