package cmd

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shieldfold/shieldnode/chain"
	"github.com/shieldfold/shieldnode/chain/badgerstore"
	"github.com/shieldfold/shieldnode/chain/chainmem"
	"github.com/shieldfold/shieldnode/chain/forkfinder"
	"github.com/shieldfold/shieldnode/chain/headercache"
	"github.com/shieldfold/shieldnode/chain/sqlitestore"
	"github.com/shieldfold/shieldnode/cmd/shieldnode/httpserver"
	"github.com/shieldfold/shieldnode/engine/reorg"
	"github.com/shieldfold/shieldnode/indexer/nullifierset"
	"github.com/shieldfold/shieldnode/indexer/walletindex"
	"github.com/shieldfold/shieldnode/internal/component"
	model "github.com/shieldfold/shieldnode/model/chain"
)

var (
	flagStore        string
	flagDataDir      string
	flagPollInterval time.Duration
	flagHTTPAddr     string
	flagWalletDSN    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Follow a chain.Store and demonstrate the reorg engine",
	RunE:  runNode,
}

func init() {
	runCmd.Flags().StringVar(&flagStore, "store", "mem", "store backend: mem, badger, or sqlite")
	runCmd.Flags().StringVar(&flagDataDir, "data-dir", "shieldnode-data", "directory for badger/sqlite storage")
	runCmd.Flags().DurationVar(&flagPollInterval, "poll-interval", time.Second, "how often to call Advance")
	runCmd.Flags().StringVar(&flagHTTPAddr, "http-addr", ":9090", "address for /metrics and /healthz")
	runCmd.Flags().StringVar(&flagWalletDSN, "wallet-dsn", "", "Postgres DSN for the demo wallet indexer, empty to disable")

	_ = viper.BindPFlag("store", runCmd.Flags().Lookup("store"))
	_ = viper.BindPFlag("data_dir", runCmd.Flags().Lookup("data-dir"))
	_ = viper.BindPFlag("poll_interval", runCmd.Flags().Lookup("poll-interval"))
	_ = viper.BindPFlag("http_addr", runCmd.Flags().Lookup("http-addr"))
	_ = viper.BindPFlag("wallet_dsn", runCmd.Flags().Lookup("wallet-dsn"))
}

func runNode(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, forks, err := openStore(viper.GetString("store"), viper.GetString("data_dir"))
	if err != nil {
		return fmt.Errorf("shieldnode: could not open store: %w", err)
	}

	metrics := reorg.NewPromMetrics(prometheus.DefaultRegisterer, "shieldnode")

	processor, err := reorg.NewProcessor(ctx, log, store, forks, metrics, nil)
	if err != nil {
		return fmt.Errorf("shieldnode: could not construct processor: %w", err)
	}

	nullifiers := nullifierset.New()
	bus := reorg.NewEventBus()
	bus.Subscribe("nullifierset", nullifiers.OnAdd, nullifiers.OnRemove)

	if dsn := viper.GetString("wallet_dsn"); dsn != "" {
		wallet, err := walletindex.Open(dsn)
		if err != nil {
			return fmt.Errorf("shieldnode: could not open wallet index: %w", err)
		}
		defer wallet.Close()
		bus.Subscribe("walletindex", wallet.OnAdd, wallet.OnRemove)
	}

	bus.Attach(processor)

	if err := backfill(ctx, processor); err != nil {
		return fmt.Errorf("shieldnode: initial backfill failed: %w", err)
	}

	driver := reorg.NewDriver(log, processor, reorg.DriverConfig{
		PollInterval: viper.GetDuration("poll_interval"),
		BackoffBase:  500 * time.Millisecond,
		BackoffMax:   30 * time.Second,
	})

	httpSrv := httpserver.New(log, viper.GetString("http_addr"), func() bool {
		return !processor.Cursor().Unseeded()
	})
	httpSrv.Serve()

	signaler, errCh := component.NewRootSignalerContext(ctx)
	driver.Start(signaler)
	<-driver.Ready()
	log.Info().Msg("shieldnode started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Stringer("signal", sig).Msg("shutting down")
	case err := <-errCh:
		log.Error().Err(err).Msg("driver reported an irrecoverable error")
	}

	cancel()
	<-driver.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server did not shut down cleanly")
	}

	return nil
}

// openStore returns a chain.Store for the requested backend along with the
// chain.ForkFinder to use with it: the store's own FindFork when it has one
// (chainmem), or a generic forkfinder.New(store) walk otherwise.
func openStore(kind, dataDir string) (chain.Store, chain.ForkFinder, error) {
	genesis := &model.Header{
		Hash:      genesisHash(),
		Sequence:  1,
		Timestamp: time.Unix(0, 0).UTC(),
	}

	switch kind {
	case "mem":
		s := chainmem.New(genesis)
		return s, s, nil
	case "badger":
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, nil, err
		}
		s, err := badgerstore.Open(dataDir, genesis)
		if err != nil {
			return nil, nil, err
		}
		return headercache.New(s, headercache.DefaultSize), forkfinder.New(s), nil
	case "sqlite":
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, nil, err
		}
		s, err := sqlitestore.Open(dataDir+"/headers.db", genesis)
		if err != nil {
			return nil, nil, err
		}
		return headercache.New(s, headercache.DefaultSize), forkfinder.New(s), nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", kind)
	}
}

func genesisHash() model.Identifier {
	return sha256.Sum256([]byte("shieldnode genesis"))
}

// backfill drives the processor from Unseeded to the store's current head
// once at startup, showing progress so a cold start against a large
// pre-populated store doesn't look like a silent hang.
func backfill(ctx context.Context, p *reorg.Processor) error {
	bar := progressbar.Default(-1, "cold start: replaying to head")
	defer bar.Close()

	for {
		result, err := p.Advance(ctx)
		if err != nil {
			return err
		}
		_ = bar.Add(1)
		if !result.CursorChanged {
			return nil
		}
	}
}
