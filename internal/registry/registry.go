// Package registry tracks the basket assets accepted by the ledger.
package registry

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"honestledger/internal/access"
	ledgererrors "honestledger/internal/errors"
	"honestledger/internal/model"
)

// HoldingsReader reports idle plus invested native units held for an asset.
type HoldingsReader interface {
	Holdings(ctx context.Context, asset common.Address) (*big.Int, error)
}

// PositionReader reports the yield shares held for an asset.
type PositionReader interface {
	Position(id common.Address) model.YieldPosition
}

// Registry keeps basket assets in insertion order.
type Registry struct {
	access    access.Provider
	holdings  HoldingsReader
	positions PositionReader
	logger    *zap.Logger

	entries []model.ReserveAsset
	index   map[common.Address]int
}

// New builds an empty registry.
func New(p access.Provider, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		access: p,
		logger: logger,
		index:  make(map[common.Address]int),
	}
}

// SetHoldingsReader wires the balance source consulted by Remove.
func (r *Registry) SetHoldingsReader(h HoldingsReader) {
	r.holdings = h
}

// SetPositionReader wires the share source consulted by SetIntegration.
func (r *Registry) SetPositionReader(p PositionReader) {
	r.positions = p
}

// AddAsset registers a new basket asset as active.
func (r *Registry) AddAsset(ctx context.Context, caller common.Address, asset model.ReserveAsset) error {
	if err := access.Require(ctx, r.access, access.RoleGovernor, caller); err != nil {
		return err
	}
	if asset.ID == (common.Address{}) {
		return ledgererrors.New(ledgererrors.CodeInvalidArgument, "add asset: zero address")
	}
	if _, ok := r.index[asset.ID]; ok {
		return ledgererrors.New(ledgererrors.CodeDuplicateAsset, "add asset %s: already registered", asset.ID.Hex())
	}
	asset.Active = true
	r.index[asset.ID] = len(r.entries)
	r.entries = append(r.entries, asset)
	r.logger.Info("asset added",
		zap.String("asset", asset.ID.Hex()),
		zap.Uint8("decimals", asset.Decimals),
		zap.String("integration", asset.Integration.Hex()),
	)
	return nil
}

// Activate re-enables inflows for an asset. Activating an active asset is a no-op.
func (r *Registry) Activate(ctx context.Context, caller common.Address, id common.Address) error {
	return r.setActive(ctx, caller, id, true)
}

// Deactivate blocks inflows for an asset while still allowing withdrawals.
func (r *Registry) Deactivate(ctx context.Context, caller common.Address, id common.Address) error {
	return r.setActive(ctx, caller, id, false)
}

func (r *Registry) setActive(ctx context.Context, caller, id common.Address, active bool) error {
	if err := access.Require(ctx, r.access, access.RoleGovernor, caller); err != nil {
		return err
	}
	pos, ok := r.index[id]
	if !ok {
		return ledgererrors.New(ledgererrors.CodeUnknownAsset, "set active %s: not registered", id.Hex())
	}
	if r.entries[pos].Active == active {
		return nil
	}
	r.entries[pos].Active = active
	r.logger.Info("asset status changed", zap.String("asset", id.Hex()), zap.Bool("active", active))
	return nil
}

// SetIntegration replaces the yield integration an asset maps to. The
// mapping is frozen while the asset still holds shares in its source.
func (r *Registry) SetIntegration(ctx context.Context, caller, id, integration common.Address) error {
	if err := access.Require(ctx, r.access, access.RoleGovernor, caller); err != nil {
		return err
	}
	pos, ok := r.index[id]
	if !ok {
		return ledgererrors.New(ledgererrors.CodeUnknownAsset, "set integration %s: not registered", id.Hex())
	}
	if r.entries[pos].Integration == integration {
		return nil
	}
	if r.positions != nil {
		if shares := r.positions.Position(id).Shares; shares != nil && shares.Sign() > 0 {
			return ledgererrors.New(ledgererrors.CodeAssetNotEmpty,
				"set integration %s: %s shares still invested", id.Hex(), shares)
		}
	}
	r.entries[pos].Integration = integration
	r.logger.Info("asset integration changed", zap.String("asset", id.Hex()), zap.String("integration", integration.Hex()))
	return nil
}

// Remove deletes an asset whose idle and invested balances are both zero.
func (r *Registry) Remove(ctx context.Context, caller common.Address, id common.Address) error {
	if err := access.Require(ctx, r.access, access.RoleGovernor, caller); err != nil {
		return err
	}
	pos, ok := r.index[id]
	if !ok {
		return ledgererrors.New(ledgererrors.CodeUnknownAsset, "remove %s: not registered", id.Hex())
	}
	if r.holdings != nil {
		held, err := r.holdings.Holdings(ctx, id)
		if err != nil {
			return err
		}
		if held.Sign() != 0 {
			return ledgererrors.New(ledgererrors.CodeAssetNotEmpty, "remove %s: %s still held", id.Hex(), held)
		}
	}

	r.entries = append(r.entries[:pos], r.entries[pos+1:]...)
	r.reindex()
	r.logger.Info("asset removed", zap.String("asset", id.Hex()))
	return nil
}

func (r *Registry) reindex() {
	r.index = make(map[common.Address]int, len(r.entries))
	for i, e := range r.entries {
		r.index[e.ID] = i
	}
}

// Asset returns the entry for id.
func (r *Registry) Asset(id common.Address) (model.ReserveAsset, error) {
	pos, ok := r.index[id]
	if !ok {
		return model.ReserveAsset{}, ledgererrors.New(ledgererrors.CodeUnknownAsset, "asset %s: not registered", id.Hex())
	}
	return r.entries[pos], nil
}

// ListAssets returns every asset in insertion order.
func (r *Registry) ListAssets() []model.ReserveAsset {
	out := make([]model.ReserveAsset, len(r.entries))
	copy(out, r.entries)
	return out
}

// ListActive returns the ids of active assets in insertion order.
func (r *Registry) ListActive() []common.Address {
	out := make([]common.Address, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Active {
			out = append(out, e.ID)
		}
	}
	return out
}

// Export copies the registry state.
func (r *Registry) Export() []model.ReserveAsset {
	return r.ListAssets()
}

// Import replaces the registry state.
func (r *Registry) Import(entries []model.ReserveAsset) {
	r.entries = make([]model.ReserveAsset, len(entries))
	copy(r.entries, entries)
	r.reindex()
}
