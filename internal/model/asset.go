package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ReserveAsset is a basket asset registered with the ledger.
type ReserveAsset struct {
	ID          common.Address `json:"id"`
	Decimals    uint8          `json:"decimals"`
	Active      bool           `json:"active"`
	Integration common.Address `json:"integration"`
}

// HasIntegration reports whether the asset is mapped to a yield source.
func (a ReserveAsset) HasIntegration() bool {
	return a.Integration != (common.Address{})
}

// YieldPosition tracks the internal shares held in a yield source for an asset.
type YieldPosition struct {
	Asset  common.Address `json:"asset"`
	Source common.Address `json:"source"`
	Shares *big.Int       `json:"shares"`
}

// TokenMeta captures ERC20 metadata.
type TokenMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
}
