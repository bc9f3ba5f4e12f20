// Package engine is the single atomic boundary around the ledger.
//
// Every operation runs under one mutex against a snapshot of all in-process
// state. A failure anywhere restores the snapshot; a success is persisted and
// journaled before the lock is released.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"honestledger/internal/access"
	"honestledger/internal/bonus"
	ledgererrors "honestledger/internal/errors"
	"honestledger/internal/fee"
	"honestledger/internal/integration"
	"honestledger/internal/manager"
	"honestledger/internal/model"
	"honestledger/internal/oracle"
	"honestledger/internal/registry"
	"honestledger/internal/savings"
	"honestledger/internal/storage"
	"honestledger/internal/token"
	"honestledger/internal/vault"
	"honestledger/internal/yieldsource"
)

// Accounts are the addresses the ledger components act as.
type Accounts struct {
	Pegged      common.Address
	Vault       common.Address
	Manager     common.Address
	Savings     common.Address
	Fee         common.Address
	Integration common.Address
}

// GrantSystemRoles gives the component accounts the roles they call each
// other with.
func GrantSystemRoles(p *access.Static, acc Accounts) {
	p.Grant(access.RoleVault, acc.Vault)
	p.Grant(access.RoleAssetManager, acc.Manager, acc.Savings)
	p.Grant(access.RoleSavings, acc.Savings)
}

// Options configures an Engine.
type Options struct {
	Accounts Accounts
	Access   access.Provider
	Prices   oracle.Oracle
	Store    storage.Store
	Journal  storage.Journal
	Metrics  *Metrics
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Ledger exposes the components to code running inside Do.
type Ledger struct {
	Registry    *registry.Registry
	Integration *integration.Integration
	Source      *yieldsource.Simulated
	Vault       *vault.Vault
	Fees        *fee.Ledger
	Bonus       *bonus.Pool
	Savings     *savings.Savings
	Manager     *manager.Manager
	Tokens      *token.Book
}

// Engine serialises access to a Ledger.
type Engine struct {
	mu      sync.Mutex
	ledger  *Ledger
	acc     Accounts
	access  access.Provider
	store   storage.Store
	journal storage.Journal
	metrics *Metrics
	now     func() time.Time
	logger  *zap.Logger
	version uint64
}

// New wires a fresh ledger. Call Load to resume persisted state.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	store := opts.Store
	if store == nil {
		store = storage.Nop{}
	}
	journal := opts.Journal
	if journal == nil {
		journal = storage.Nop{}
	}
	acc := opts.Accounts

	book := token.NewBook()
	reg := registry.New(opts.Access, logger.Named("registry"))
	src := yieldsource.NewSimulated(book, acc.Integration)
	in := integration.New(reg, src, book, opts.Access, acc.Integration, logger.Named("integration"))
	v := vault.New(reg, in, book, opts.Access, acc.Vault, acc.Pegged, logger.Named("vault"))
	reg.SetHoldingsReader(v)
	reg.SetPositionReader(in)
	fees := fee.New(opts.Access, book, acc.Fee, acc.Pegged, logger.Named("fee"))
	bonuses := bonus.New(reg, opts.Access, book, acc.Pegged, logger.Named("bonus"))
	pool := savings.New(v, fees, bonuses, book, acc.Savings, acc.Pegged, logger.Named("savings"), savings.WithClock(now))

	var prices manager.PriceSource
	if opts.Prices != nil {
		prices = opts.Prices
	}
	mgr := manager.New(manager.Config{
		Assets:  reg,
		Vault:   v,
		Fees:    fees,
		Bonuses: bonuses,
		Savings: pool,
		Prices:  prices,
		Tokens:  book,
		Account: acc.Manager,
		Pegged:  acc.Pegged,
		Logger:  logger.Named("manager"),
	})

	return &Engine{
		ledger: &Ledger{
			Registry:    reg,
			Integration: in,
			Source:      src,
			Vault:       v,
			Fees:        fees,
			Bonus:       bonuses,
			Savings:     pool,
			Manager:     mgr,
			Tokens:      book,
		},
		acc:     acc,
		access:  opts.Access,
		store:   store,
		journal: journal,
		metrics: opts.Metrics,
		now:     now,
		logger:  logger,
	}
}

// Accounts returns the component addresses.
func (e *Engine) Accounts() Accounts {
	return e.acc
}

// Version is the number of committed operations.
func (e *Engine) Version() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version
}

// Load replaces in-process state with the stored snapshot, if any.
func (e *Engine) Load(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap, ok, err := e.store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load ledger: %w", err)
	}
	if !ok {
		return false, nil
	}
	e.restore(snap)
	e.version = snap.Version
	e.metrics.committed(e.version)
	e.logger.Info("ledger loaded", zap.Uint64("version", snap.Version), zap.Int("assets", len(snap.Assets)))
	return true, nil
}

// Snapshot copies the current state.
func (e *Engine) Snapshot() model.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

func (e *Engine) snapshot() model.Snapshot {
	l := e.ledger
	return model.Snapshot{
		Version:   e.version,
		Assets:    l.Registry.Export(),
		Positions: l.Integration.Export(),
		Savings:   l.Savings.Export(),
		Bonus:     l.Bonus.Export(),
		Fees:      l.Fees.Export(),
		Balances:  l.Tokens.Export(),
		Sources:   l.Source.Export(),
	}
}

func (e *Engine) restore(s model.Snapshot) {
	l := e.ledger
	l.Registry.Import(s.Assets)
	l.Integration.Import(s.Positions)
	l.Savings.Import(s.Savings)
	l.Bonus.Import(s.Bonus)
	l.Fees.Import(s.Fees)
	l.Tokens.Import(s.Balances)
	l.Source.Import(s.Sources)
}

// Result carries printable operation outputs into the journal.
type Result map[string]string

// Do runs fn as one atomic operation. Any error restores every ledger to
// its state before the call.
func (e *Engine) Do(ctx context.Context, op string, caller common.Address, args map[string]string, fn func(ctx context.Context, l *Ledger) (Result, error)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	started := e.now()
	before := e.snapshot()
	entry := model.JournalEntry{
		ID:        uuid.NewString(),
		Operation: op,
		Caller:    caller.Hex(),
		Args:      args,
	}

	result, err := fn(ctx, e.ledger)
	if err == nil {
		next := e.snapshot()
		next.Version = e.version + 1
		next.UpdatedAt = started.UTC().Format(time.RFC3339Nano)
		if saveErr := e.store.Save(ctx, next); saveErr != nil {
			err = fmt.Errorf("persist ledger: %w", saveErr)
		}
	}

	if err != nil {
		e.restore(before)
		e.metrics.rolledBack()
		entry.Version = e.version
		entry.ErrorCode = string(ledgererrors.CodeOf(err))
		entry.Error = err.Error()
	} else {
		e.version++
		e.metrics.committed(e.version)
		entry.Version = e.version
		entry.Result = result
	}
	entry.RecordedAt = e.now().UTC().Format(time.RFC3339Nano)
	e.metrics.observe(op, entry.ErrorCode, e.now().Sub(started))

	if jerr := e.journal.Append(ctx, entry); jerr != nil {
		e.logger.Warn("journal append failed", zap.String("operation", op), zap.Error(jerr))
	}
	if err != nil {
		e.logger.Debug("operation rolled back", zap.String("operation", op), zap.String("code", entry.ErrorCode), zap.Error(err))
		return err
	}
	e.logger.Debug("operation committed", zap.String("operation", op), zap.Uint64("version", e.version))
	return nil
}

// View runs fn under the lock without recording anything. fn must not
// mutate the ledger.
func (e *Engine) View(ctx context.Context, fn func(ctx context.Context, l *Ledger) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(ctx, e.ledger)
}
