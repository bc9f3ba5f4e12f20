package main

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"honestledger/internal/chain"
	"honestledger/internal/config"
	"honestledger/internal/engine"
	"honestledger/internal/fixed"
	"honestledger/internal/model"
)

func assetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "asset",
		Short: "Manage basket assets (governor)",
	}

	add := &cobra.Command{
		Use:   "add <address>",
		Short: "Register an asset",
		Args:  cobra.ExactArgs(1),
		RunE: runWith(func(cmd *cobra.Command, a *app, args []string) error {
			caller, err := a.caller()
			if err != nil {
				return err
			}
			decimals, _ := cmd.Flags().GetUint8("decimals")
			integration, _ := cmd.Flags().GetString("integration")
			asset, err := a.assetFromConfig(config.AssetConfig{
				Address:     args[0],
				Decimals:    decimals,
				Integration: integration,
			}, chain.NewTokenMetaCache())
			if err != nil {
				return err
			}
			return a.engine.AddAsset(a.ctx, caller, asset)
		}),
	}
	add.Flags().Uint8("decimals", 0, "token decimals (looked up over rpc when 0)")
	add.Flags().String("integration", "", "yield source address")

	activate := &cobra.Command{
		Use:   "activate <asset>",
		Short: "Accept an asset for mint and proportional redemption",
		Args:  cobra.ExactArgs(1),
		RunE:  runWith(setActive(true)),
	}
	deactivate := &cobra.Command{
		Use:   "deactivate <asset>",
		Short: "Stop accepting an asset",
		Args:  cobra.ExactArgs(1),
		RunE:  runWith(setActive(false)),
	}

	remove := &cobra.Command{
		Use:   "remove <asset>",
		Short: "Unregister an asset the vault no longer holds",
		Args:  cobra.ExactArgs(1),
		RunE: runWith(func(cmd *cobra.Command, a *app, args []string) error {
			caller, err := a.caller()
			if err != nil {
				return err
			}
			id, err := a.resolveAsset(args[0])
			if err != nil {
				return err
			}
			return a.engine.RemoveAsset(a.ctx, caller, id)
		}),
	}

	setIntegration := &cobra.Command{
		Use:   "set-integration <asset> <integration>",
		Short: "Map an asset to a yield source",
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
			integration, err := config.ParseAddress(args[1])
			if err != nil {
				return err
			}
			return a.engine.SetIntegration(a.ctx, caller, id, integration)
		}),
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered assets",
		RunE: runWith(func(cmd *cobra.Command, a *app, _ []string) error {
			printAssets(cmd.OutOrStdout(), a.engine.Snapshot().Assets)
			return nil
		}),
	}

	cmd.AddCommand(add, activate, deactivate, remove, setIntegration, list)
	return cmd
}

func setActive(active bool) func(*cobra.Command, *app, []string) error {
	return func(cmd *cobra.Command, a *app, args []string) error {
		caller, err := a.caller()
		if err != nil {
			return err
		}
		id, err := a.resolveAsset(args[0])
		if err != nil {
			return err
		}
		return a.engine.SetAssetActive(a.ctx, caller, id, active)
	}
}

func pricesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prices",
		Short: "Show oracle prices of registered assets",
		RunE: runWith(func(cmd *cobra.Command, a *app, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ASSET\tPRICE")
			for _, asset := range a.engine.Snapshot().Assets {
				price, err := a.prices.Price(a.ctx, asset.ID)
				if err != nil {
					return fmt.Errorf("price %s: %w", asset.ID.Hex(), err)
				}
				shown := "unavailable"
				if price.Sign() > 0 {
					shown = fixed.FormatUnits(price, fixed.Decimals)
				}
				fmt.Fprintf(w, "%s\t%s\n", asset.ID.Hex(), shown)
			}
			return w.Flush()
		}),
	}
}

// auditCmd compares the ledger's idle balances with on-chain balances of the
// vault account.
func auditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Compare idle vault balances with on-chain balances",
		RunE: runWith(func(cmd *cobra.Command, a *app, _ []string) error {
			if a.chain == nil {
				return fmt.Errorf("rpc url is required")
			}
			var head chain.Head
			err := chain.WithRetry(a.ctx, a.cfg.MaxRetries, a.cfg.RetryBackoff, func(ctx context.Context) error {
				var err error
				head, err = chain.ReadHead(ctx, a.chain)
				return err
			})
			if err != nil {
				return err
			}
			vaultAccount := a.engine.Accounts().Vault
			fmt.Fprintf(cmd.OutOrStdout(), "chain %s block %d vault %s\n", head.ChainID, head.Number, vaultAccount.Hex())
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ASSET\tLEDGER\tCHAIN\tMATCH")
			for _, asset := range a.engine.Snapshot().Assets {
				onChain, err := a.onChainBalance(asset.ID, vaultAccount, head.Block())
				if err != nil {
					return err
				}
				idle := a.engine.BalanceOf(a.ctx, asset.ID, vaultAccount)
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\n",
					asset.ID.Hex(),
					fixed.FormatUnits(idle, asset.Decimals),
					fixed.FormatUnits(onChain, asset.Decimals),
					idle.Cmp(onChain) == 0,
				)
			}
			return w.Flush()
		}),
	}
}

func (a *app) onChainBalance(token, owner common.Address, block *big.Int) (*big.Int, error) {
	var out *big.Int
	err := chain.WithRetry(a.ctx, a.cfg.MaxRetries, a.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		out, err = chain.BalanceOf(ctx, a.chain, token, owner, block)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s: %w", token.Hex(), err)
	}
	return out, nil
}

func printAssets(out io.Writer, assets []model.ReserveAsset) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ASSET\tDECIMALS\tACTIVE\tINTEGRATION")
	for _, asset := range assets {
		integration := "-"
		if asset.HasIntegration() {
			integration = asset.Integration.Hex()
		}
		fmt.Fprintf(w, "%s\t%d\t%t\t%s\n", asset.ID.Hex(), asset.Decimals, asset.Active, integration)
	}
	_ = w.Flush()
}

func printStatus(out io.Writer, st engine.Status) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "version\t%d\n", st.Version)
	fmt.Fprintf(w, "pegged supply\t%s\n", fixed.FormatUnits(st.PeggedSupply, fixed.Decimals))
	fmt.Fprintf(w, "reserve value\t%s\n", fixed.FormatUnits(st.ReserveValue, fixed.Decimals))
	fmt.Fprintf(w, "invested value\t%s\n", fixed.FormatUnits(st.InvestedValue, fixed.Decimals))
	fmt.Fprintf(w, "savings value\t%s\n", fixed.FormatUnits(st.SavingsValue, fixed.Decimals))
	fmt.Fprintf(w, "savings shares\t%s\n", fixed.FormatUnits(st.TotalShares, fixed.Decimals))
	fmt.Fprintf(w, "share price\t%s\n", fixed.FormatUnits(st.SharePrice, fixed.Decimals))
	fmt.Fprintf(w, "apy\t%s\n", fixed.FormatUnits(st.APY, fixed.Decimals))
	fmt.Fprintf(w, "fees total/claimable/reserved\t%s / %s / %s\n",
		fixed.FormatUnits(st.TotalFee, fixed.Decimals),
		fixed.FormatUnits(st.Claimable, fixed.Decimals),
		fixed.FormatUnits(st.Reserved, fixed.Decimals),
	)
	fmt.Fprintf(w, "fee rates swap/redeem\t%s / %s\n",
		fixed.FormatUnits(st.SwapFeeRate, fixed.Decimals),
		fixed.FormatUnits(st.RedeemFeeRate, fixed.Decimals),
	)
	fmt.Fprintf(w, "bonus outstanding\t%s\n", fixed.FormatUnits(st.BonusTotal, fixed.Decimals))
	_ = w.Flush()

	w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\nASSET\tACTIVE\tIDLE\tINVESTED\tVALUE")
	for _, b := range st.Assets {
		fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%s\n",
			b.Asset.Hex(),
			b.Active,
			fixed.FormatUnits(b.Idle, b.Decimals),
			fixed.FormatUnits(b.Invested, b.Decimals),
			fixed.FormatUnits(b.Value, fixed.Decimals),
		)
	}
	_ = w.Flush()
}
