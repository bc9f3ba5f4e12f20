// Package access maps callers to ledger roles.
package access

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	ledgererrors "honestledger/internal/errors"
)

// Role is a privilege checked before every mutating ledger operation.
type Role int

const (
	RoleGovernor Role = iota + 1
	RoleAssetManager
	RoleVault
	RoleSavings
)

func (r Role) String() string {
	switch r {
	case RoleGovernor:
		return "GOVERNOR"
	case RoleAssetManager:
		return "ASSET_MANAGER"
	case RoleVault:
		return "VAULT"
	case RoleSavings:
		return "SAVINGS"
	default:
		return fmt.Sprintf("ROLE(%d)", int(r))
	}
}

// ParseRole maps a configuration name to a Role.
func ParseRole(name string) (Role, error) {
	switch name {
	case "governor", "GOVERNOR":
		return RoleGovernor, nil
	case "asset_manager", "ASSET_MANAGER", "manager":
		return RoleAssetManager, nil
	case "vault", "VAULT":
		return RoleVault, nil
	case "savings", "SAVINGS":
		return RoleSavings, nil
	default:
		return 0, fmt.Errorf("unknown role %q", name)
	}
}

// Provider answers role membership queries.
type Provider interface {
	HasRole(ctx context.Context, role Role, caller common.Address) bool
}

// Static is a fixed role table, usually built from configuration.
type Static struct {
	members map[Role]map[common.Address]struct{}
}

// NewStatic returns an empty role table.
func NewStatic() *Static {
	return &Static{members: make(map[Role]map[common.Address]struct{})}
}

// Grant adds callers to a role.
func (s *Static) Grant(role Role, callers ...common.Address) {
	set, ok := s.members[role]
	if !ok {
		set = make(map[common.Address]struct{})
		s.members[role] = set
	}
	for _, c := range callers {
		set[c] = struct{}{}
	}
}

// Revoke removes a caller from a role.
func (s *Static) Revoke(role Role, caller common.Address) {
	delete(s.members[role], caller)
}

func (s *Static) HasRole(_ context.Context, role Role, caller common.Address) bool {
	if s == nil {
		return false
	}
	_, ok := s.members[role][caller]
	return ok
}

// Require fails with Unauthorized unless caller holds role.
func Require(ctx context.Context, p Provider, role Role, caller common.Address) error {
	if p == nil || !p.HasRole(ctx, role, caller) {
		return ledgererrors.New(ledgererrors.CodeUnauthorized, "%s lacks role %s", caller.Hex(), role)
	}
	return nil
}
