package main

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"honestledger/internal/chain"
	"honestledger/internal/config"
	"honestledger/internal/fixed"
	"honestledger/internal/model"
	"honestledger/internal/vault"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Register configured assets and apply configured fee settings",
		RunE: runWith(func(cmd *cobra.Command, a *app, _ []string) error {
			caller, err := a.caller()
			if err != nil {
				return err
			}
			registered := make(map[common.Address]bool)
			for _, asset := range a.engine.Snapshot().Assets {
				registered[asset.ID] = true
			}

			metaCache := chain.NewTokenMetaCache()
			for _, ac := range a.cfg.Assets {
				asset, err := a.assetFromConfig(ac, metaCache)
				if err != nil {
					return err
				}
				if registered[asset.ID] {
					continue
				}
				if err := a.engine.AddAsset(a.ctx, caller, asset); err != nil {
					return fmt.Errorf("add asset %s: %w", asset.ID.Hex(), err)
				}
				a.logger.Info("asset registered",
					zap.String("asset", asset.ID.Hex()),
					zap.Uint8("decimals", asset.Decimals),
					zap.String("integration", asset.Integration.Hex()),
				)
			}

			swap, redeem, ratio, err := a.cfg.FeeSettings()
			if err != nil {
				return err
			}
			if err := a.engine.SetFeeRates(a.ctx, caller, swap, redeem); err != nil {
				return err
			}
			if err := a.engine.SetClaimableRatio(a.ctx, caller, ratio); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ledger v%d: %d assets\n", a.engine.Version(), len(a.engine.Snapshot().Assets))
			return nil
		}),
	}
}

// assetFromConfig resolves decimals from the token contract when the
// config leaves them out.
func (a *app) assetFromConfig(ac config.AssetConfig, cache *chain.TokenMetaCache) (model.ReserveAsset, error) {
	id, err := config.ParseAddress(ac.Address)
	if err != nil {
		return model.ReserveAsset{}, err
	}
	asset := model.ReserveAsset{ID: id, Decimals: ac.Decimals}
	if ac.Integration != "" {
		if asset.Integration, err = config.ParseAddress(ac.Integration); err != nil {
			return model.ReserveAsset{}, err
		}
	}
	if asset.Decimals != 0 {
		return asset, nil
	}
	if a.chain == nil {
		return model.ReserveAsset{}, fmt.Errorf("asset %s: decimals missing and no rpc configured", ac.Address)
	}
	meta, ok := cache.Get(id)
	if !ok {
		if meta, err = chain.FetchTokenMeta(a.ctx, a.chain, id, a.logger); err != nil {
			return model.ReserveAsset{}, fmt.Errorf("asset %s metadata: %w", ac.Address, err)
		}
		cache.Set(id, meta)
	}
	asset.Decimals = meta.Decimals
	return asset, nil
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show reserves, savings and fee totals",
		RunE: runWith(func(cmd *cobra.Command, a *app, _ []string) error {
			st, err := a.engine.Status(a.ctx)
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		}),
	}
}

func balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance [account]",
		Short: "Show token and savings balances of an account",
		Args:  cobra.MaximumNArgs(1),
		RunE: runWith(func(cmd *cobra.Command, a *app, args []string) error {
			var (
				account common.Address
				err     error
			)
			if len(args) == 1 {
				account, err = config.ParseAddress(args[0])
			} else {
				account, err = a.caller()
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			pegged := a.engine.Accounts().Pegged
			for _, asset := range a.engine.Snapshot().Assets {
				bal := a.engine.BalanceOf(a.ctx, asset.ID, account)
				fmt.Fprintf(out, "%s\t%s\n", asset.ID.Hex(), fixed.FormatUnits(bal, asset.Decimals))
			}
			fmt.Fprintf(out, "pegged\t%s\n", fixed.FormatUnits(a.engine.BalanceOf(a.ctx, pegged, account), fixed.Decimals))

			shares, value, err := a.engine.SavingsOf(a.ctx, account)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "savings\t%s shares (%s)\n", fixed.FormatUnits(shares, fixed.Decimals), fixed.FormatUnits(value, fixed.Decimals))
			return nil
		}),
	}
}

func faucetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "faucet <asset> <amount>",
		Short: "Credit test balances of a basket asset (governor)",
		Args:  cobra.ExactArgs(2),
		RunE: runWith(func(cmd *cobra.Command, a *app, args []string) error {
			caller, err := a.caller()
			if err != nil {
				return err
			}
			id, err := a.resolveAsset(args[0])
			if err != nil {
				return err
			}
			amount, err := a.parseAmount(id, args[1])
			if err != nil {
				return err
			}
			to, err := recipientFlag(cmd, caller)
			if err != nil {
				return err
			}
			return a.engine.Faucet(a.ctx, caller, id, to, amount)
		}),
	}
	cmd.Flags().String("to", "", "recipient (defaults to the caller)")
	return cmd
}

func mintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mint <asset:amount>...",
		Short: "Deposit basket assets and mint the pegged token",
		Args:  cobra.MinimumNArgs(1),
		RunE: runWith(func(cmd *cobra.Command, a *app, args []string) error {
			caller, err := a.caller()
			if err != nil {
				return err
			}
			assets, amounts, err := a.parsePairs(args)
			if err != nil {
				return err
			}
			minted, err := a.engine.Mint(a.ctx, caller, assets, amounts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "minted %s\n", fixed.FormatUnits(minted, fixed.Decimals))
			return nil
		}),
	}
}

func swapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "swap <from> <to> <amount>",
		Short: "Swap one basket asset for another",
		Args:  cobra.ExactArgs(3),
		RunE: runWith(func(cmd *cobra.Command, a *app, args []string) error {
			caller, err := a.caller()
			if err != nil {
				return err
			}
			from, err := a.resolveAsset(args[0])
			if err != nil {
				return err
			}
			to, err := a.resolveAsset(args[1])
			if err != nil {
				return err
			}
			amount, err := a.parseAmount(from, args[2])
			if err != nil {
				return err
			}
			out, charged, err := a.engine.Swap(a.ctx, caller, from, to, amount)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "received %s, fee %s\n", a.formatAmount(to, out), a.formatAmount(from, charged))
			return nil
		}),
	}
}

func redeemCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "redeem <amount> | redeem --manual <asset:amount>...",
		Short: "Burn the pegged token for basket assets",
		Args:  cobra.MinimumNArgs(1),
		RunE: runWith(func(cmd *cobra.Command, a *app, args []string) error {
			caller, err := a.caller()
			if err != nil {
				return err
			}
			manual, _ := cmd.Flags().GetBool("manual")

			var (
				legs    []vault.Leg
				charged *big.Int
			)
			if manual {
				assets, amounts, err := a.parsePairs(args)
				if err != nil {
					return err
				}
				legs, charged, err = a.engine.RedeemManually(a.ctx, caller, assets, amounts)
				if err != nil {
					return err
				}
			} else {
				amount, err := fixed.ParseUnits(args[0], fixed.Decimals)
				if err != nil {
					return err
				}
				legs, charged, err = a.engine.RedeemProportionally(a.ctx, caller, amount)
				if err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			for _, leg := range legs {
				fmt.Fprintf(out, "%s\t%s\n", leg.Asset.Hex(), a.formatAmount(leg.Asset, leg.Amount))
			}
			fmt.Fprintf(out, "fee\t%s\n", fixed.FormatUnits(charged, fixed.Decimals))
			return nil
		}),
	}
	cmd.Flags().Bool("manual", false, "redeem exact asset amounts")
	return cmd
}

func depositCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deposit <amount>",
		Short: "Deposit pegged tokens into savings",
		Args:  cobra.ExactArgs(1),
		RunE: runWith(func(cmd *cobra.Command, a *app, args []string) error {
			caller, err := a.caller()
			if err != nil {
				return err
			}
			amount, err := fixed.ParseUnits(args[0], fixed.Decimals)
			if err != nil {
				return err
			}
			shares, err := a.engine.Deposit(a.ctx, caller, amount)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "shares %s\n", fixed.FormatUnits(shares, fixed.Decimals))
			return nil
		}),
	}
}

func withdrawCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw <shares|all>",
		Short: "Withdraw savings shares as pegged tokens",
		Args:  cobra.ExactArgs(1),
		RunE: runWith(func(cmd *cobra.Command, a *app, args []string) error {
			caller, err := a.caller()
			if err != nil {
				return err
			}
			var shares *big.Int
			if strings.EqualFold(args[0], "all") {
				if shares, _, err = a.engine.SavingsOf(a.ctx, caller); err != nil {
					return err
				}
			} else if shares, err = fixed.ParseUnits(args[0], fixed.Decimals); err != nil {
				return err
			}
			paid, err := a.engine.Withdraw(a.ctx, caller, shares)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "received %s\n", fixed.FormatUnits(paid, fixed.Decimals))
			return nil
		}),
	}
}

func accrueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accrue <asset> <amount>",
		Short: "Credit yield to the simulated source of an asset (governor)",
		Args:  cobra.ExactArgs(2),
		RunE: runWith(func(cmd *cobra.Command, a *app, args []string) error {
			caller, err := a.caller()
			if err != nil {
				return err
			}
			id, err := a.resolveAsset(args[0])
			if err != nil {
				return err
			}
			amount, err := a.parseAmount(id, args[1])
			if err != nil {
				return err
			}
			return a.engine.Accrue(a.ctx, caller, id, amount)
		}),
	}
}

func claimReservedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claim-reserved",
		Short: "Pay out reserved fee revenue (governor)",
		RunE: runWith(func(cmd *cobra.Command, a *app, _ []string) error {
			caller, err := a.caller()
			if err != nil {
				return err
			}
			to, err := recipientFlag(cmd, caller)
			if err != nil {
				return err
			}
			paid, err := a.engine.ClaimReserved(a.ctx, caller, to)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "paid %s\n", fixed.FormatUnits(paid, fixed.Decimals))
			return nil
		}),
	}
	cmd.Flags().String("to", "", "recipient (defaults to the caller)")
	return cmd
}

func feesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fees",
		Short: "Set fee rates and the claimable ratio (governor)",
		RunE: runWith(func(cmd *cobra.Command, a *app, _ []string) error {
			caller, err := a.caller()
			if err != nil {
				return err
			}
			st, err := a.engine.Status(a.ctx)
			if err != nil {
				return err
			}
			swap, redeem := st.SwapFeeRate, st.RedeemFeeRate
			if v, _ := cmd.Flags().GetString("swap"); v != "" {
				if swap, err = fixed.ParseUnits(v, fixed.Decimals); err != nil {
					return err
				}
			}
			if v, _ := cmd.Flags().GetString("redeem"); v != "" {
				if redeem, err = fixed.ParseUnits(v, fixed.Decimals); err != nil {
					return err
				}
			}
			if err := a.engine.SetFeeRates(a.ctx, caller, swap, redeem); err != nil {
				return err
			}
			if v, _ := cmd.Flags().GetString("ratio"); v != "" {
				ratio, err := fixed.ParseUnits(v, fixed.Decimals)
				if err != nil {
					return err
				}
				return a.engine.SetClaimableRatio(a.ctx, caller, ratio)
			}
			return nil
		}),
	}
	cmd.Flags().String("swap", "", "swap fee rate, e.g. 0.01")
	cmd.Flags().String("redeem", "", "redeem fee rate, e.g. 0.01")
	cmd.Flags().String("ratio", "", "share of new fees claimable by savings, e.g. 0.8")
	return cmd
}

func journalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show the most recent journal entries",
		RunE: runWith(func(cmd *cobra.Command, a *app, _ []string) error {
			if a.journal == nil {
				return fmt.Errorf("journal path is not configured")
			}
			limit, _ := cmd.Flags().GetInt("limit")
			entries, err := a.journal.Tail(a.ctx, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				status := "ok"
				if !e.Committed() {
					status = e.ErrorCode
				}
				fmt.Fprintf(out, "%s\tv%d\t%s\t%s\t%s\n", e.RecordedAt, e.Version, e.Operation, e.Caller, status)
			}
			return nil
		}),
	}
	cmd.Flags().Int("limit", 20, "number of entries")
	return cmd
}

// parsePairs reads asset:amount arguments.
func (a *app) parsePairs(args []string) ([]common.Address, []*big.Int, error) {
	assets := make([]common.Address, 0, len(args))
	amounts := make([]*big.Int, 0, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, ":")
		if !ok {
			return nil, nil, fmt.Errorf("expected asset:amount, got %q", arg)
		}
		id, err := a.resolveAsset(key)
		if err != nil {
			return nil, nil, err
		}
		amount, err := a.parseAmount(id, value)
		if err != nil {
			return nil, nil, err
		}
		assets = append(assets, id)
		amounts = append(amounts, amount)
	}
	return assets, amounts, nil
}

func recipientFlag(cmd *cobra.Command, fallback common.Address) (common.Address, error) {
	to, _ := cmd.Flags().GetString("to")
	if to == "" {
		return fallback, nil
	}
	return config.ParseAddress(to)
}
