package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"honestledger/internal/access"
	"honestledger/internal/chain"
	"honestledger/internal/config"
	"honestledger/internal/engine"
	"honestledger/internal/fixed"
	"honestledger/internal/oracle"
	"honestledger/internal/storage"
	"honestledger/internal/storage/postgres"
)

type app struct {
	ctx      context.Context
	cfg      config.Config
	logger   *zap.Logger
	engine   *engine.Engine
	prices   oracle.Oracle
	chain    *chain.Client
	journal  *storage.JsonlJournal
	registry *prometheus.Registry
	closers  []func()
}

// openApp loads configuration and the persisted ledger. The caller must
// call close.
func openApp(cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{ctx: ctx, cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.closers = append(a.closers, stop)

	if err := a.wire(); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire() error {
	accounts, err := parseAccounts(a.cfg.Accounts)
	if err != nil {
		return err
	}

	governors, err := config.ParseAddresses(a.cfg.Governors)
	if err != nil {
		return fmt.Errorf("parse governors: %w", err)
	}
	roles := access.NewStatic()
	roles.Grant(access.RoleGovernor, governors...)
	engine.GrantSystemRoles(roles, accounts)

	if a.cfg.RPCURL != "" {
		client, err := chain.NewClient(a.ctx, a.cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		a.chain = client
		a.closers = append(a.closers, client.Close)
	}

	if err := a.wirePrices(); err != nil {
		return err
	}

	var (
		store    storage.Store
		journals storage.Tee
	)
	if a.cfg.JournalFile != "" {
		if err := os.MkdirAll(filepath.Dir(a.cfg.JournalFile), 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
		a.journal = storage.NewJsonlJournal(a.cfg.JournalFile)
		journals = append(journals, a.journal)
	}
	if a.cfg.PostgresDSN != "" {
		pg, err := postgres.NewStore(a.ctx, a.cfg.PostgresDSN, a.cfg.LedgerName)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.Migrate(a.ctx); err != nil {
			return err
		}
		store = pg
		journals = append(journals, pg)
	} else {
		store = &storage.FileStore{Path: a.cfg.StateFile}
	}

	metrics, err := engine.NewMetrics(a.registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	a.engine = engine.New(engine.Options{
		Accounts: accounts,
		Access:   roles,
		Prices:   a.prices,
		Store:    store,
		Journal:  journals,
		Metrics:  metrics,
		Logger:   a.logger,
	})
	loaded, err := a.engine.Load(a.ctx)
	if err != nil {
		return err
	}
	if !loaded {
		a.logger.Debug("starting from an empty ledger")
	}
	return nil
}

// wirePrices layers live feeds over static config prices behind a TTL cache.
func (a *app) wirePrices() error {
	static := oracle.NewStatic(nil)
	feeds := make(map[common.Address]common.Address)
	for _, asset := range a.cfg.Assets {
		id, err := config.ParseAddress(asset.Address)
		if err != nil {
			return err
		}
		if asset.Price != "" {
			price, err := fixed.ParseUnits(asset.Price, fixed.Decimals)
			if err != nil {
				return fmt.Errorf("asset %s price: %w", asset.Address, err)
			}
			static.Set(id, price)
		}
		if asset.Feed != "" {
			feed, err := config.ParseAddress(asset.Feed)
			if err != nil {
				return err
			}
			feeds[id] = feed
		}
	}

	var source oracle.Oracle = static
	if a.chain != nil && len(feeds) > 0 {
		live := oracle.NewChainlink(a.chain, oracle.ChainlinkConfig{
			Feeds:      feeds,
			MaxAge:     a.cfg.PriceMaxAge,
			MaxRetries: a.cfg.MaxRetries,
			BaseDelay:  a.cfg.RetryBackoff,
		}, a.logger.Named("chainlink"))
		source = oracle.Fallback{live, static}
	}

	cached, err := oracle.NewCached(source, a.cfg.PriceCacheTTL)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, cached.Close)
	a.prices = cached
	return nil
}

func (a *app) close() {
	if a.cfg.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(a.cfg.MetricsFile, a.registry); err != nil {
			a.logger.Warn("write metrics failed", zap.String("path", a.cfg.MetricsFile), zap.Error(err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}

func parseAccounts(in config.Accounts) (engine.Accounts, error) {
	var (
		out engine.Accounts
		err error
	)
	fields := []struct {
		name string
		raw  string
		dst  *common.Address
	}{
		{"pegged", in.Pegged, &out.Pegged},
		{"vault", in.Vault, &out.Vault},
		{"manager", in.Manager, &out.Manager},
		{"savings", in.Savings, &out.Savings},
		{"fee", in.Fee, &out.Fee},
		{"integration", in.Integration, &out.Integration},
	}
	for _, f := range fields {
		if *f.dst, err = config.ParseAddress(f.raw); err != nil {
			return engine.Accounts{}, fmt.Errorf("account %s: %w", f.name, err)
		}
	}
	return out, nil
}

// caller returns the --from address.
func (a *app) caller() (common.Address, error) {
	if a.cfg.Caller == "" {
		return common.Address{}, fmt.Errorf("caller address is required (--from)")
	}
	return config.ParseAddress(a.cfg.Caller)
}

// resolveAsset accepts a configured symbol or a hex address.
func (a *app) resolveAsset(key string) (common.Address, error) {
	if asset, ok := a.cfg.FindAsset(key); ok {
		return config.ParseAddress(asset.Address)
	}
	return config.ParseAddress(key)
}

// decimals returns the registered decimals of an asset; the pegged token
// has 18.
func (a *app) decimals(id common.Address) (uint8, error) {
	if id == a.engine.Accounts().Pegged {
		return fixed.Decimals, nil
	}
	for _, asset := range a.engine.Snapshot().Assets {
		if asset.ID == id {
			return asset.Decimals, nil
		}
	}
	return 0, fmt.Errorf("asset %s is not registered", id.Hex())
}

func (a *app) parseAmount(id common.Address, input string) (*big.Int, error) {
	d, err := a.decimals(id)
	if err != nil {
		return nil, err
	}
	return fixed.ParseUnits(input, d)
}

func (a *app) formatAmount(id common.Address, amount *big.Int) string {
	d, err := a.decimals(id)
	if err != nil {
		return amount.String()
	}
	return fixed.FormatUnits(amount, d)
}

// runWith opens the app, runs fn and closes the app.
func runWith(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(cmd, a, args)
	}
}
