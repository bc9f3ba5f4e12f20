package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SavingsAccount is a depositor's share balance in the savings pool.
type SavingsAccount struct {
	Account common.Address `json:"account"`
	Shares  *big.Int       `json:"shares"`
}

// ValuePoint records pool value against principal at a moment in time.
type ValuePoint struct {
	At             time.Time `json:"at"`
	TotalValue     *big.Int  `json:"total_value"`
	TotalDeposited *big.Int  `json:"total_deposited"`
}

// SavingsState is the persisted savings pool.
type SavingsState struct {
	TotalShares    *big.Int         `json:"total_shares"`
	TotalDeposited *big.Int         `json:"total_deposited"`
	Accounts       []SavingsAccount `json:"accounts"`
	History        []ValuePoint     `json:"history"`
}

// BonusAccount is an account's bonus balance and its price-weighted share.
type BonusAccount struct {
	Account common.Address `json:"account"`
	Bonus   *big.Int       `json:"bonus"`
	Share   *big.Int       `json:"share"`
}

// BonusPool is the persisted bonus ledger.
type BonusPool struct {
	Total    *big.Int       `json:"total"`
	Accounts []BonusAccount `json:"accounts"`
}

// FeeLedger is the persisted fee ledger and its rates. Ratios and rates are
// 18-decimal fractions.
type FeeLedger struct {
	TotalFee       *big.Int `json:"total_fee"`
	Claimable      *big.Int `json:"claimable"`
	Reserved       *big.Int `json:"reserved"`
	ClaimableRatio *big.Int `json:"claimable_ratio"`
	SwapFeeRate    *big.Int `json:"swap_fee_rate"`
	RedeemFeeRate  *big.Int `json:"redeem_fee_rate"`
}

// TokenBalance is one entry of the in-process token book.
type TokenBalance struct {
	Token   common.Address `json:"token"`
	Account common.Address `json:"account"`
	Amount  *big.Int       `json:"amount"`
}

// SourceAsset is the state of a simulated yield source for one asset.
type SourceAsset struct {
	Asset      common.Address `json:"asset"`
	Underlying *big.Int       `json:"underlying"`
	Shares     *big.Int       `json:"shares"`
}

// Snapshot is the complete persisted ledger.
type Snapshot struct {
	Version   uint64          `json:"version"`
	UpdatedAt string          `json:"updated_at"`
	Assets    []ReserveAsset  `json:"assets"`
	Positions []YieldPosition `json:"positions"`
	Savings   SavingsState    `json:"savings"`
	Bonus     BonusPool       `json:"bonus"`
	Fees      FeeLedger       `json:"fees"`
	Balances  []TokenBalance  `json:"balances"`
	Sources   []SourceAsset   `json:"sources"`
}
