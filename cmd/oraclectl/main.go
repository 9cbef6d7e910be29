// Command oraclectl reads and updates the on-ledger oracle price bounds.
//
// Usage:
//
//	oraclectl -config configs/marketd.local.yaml get
//	oraclectl -config configs/marketd.local.yaml set -min 10 -max 20
//	oraclectl -config configs/marketd.local.yaml rotate-admin -admin <address>
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/config"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/ledger"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/oracle"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/pda"
	oracleprog "github.com/HydrogenUkraine/H2U-Marketplace-api/internal/program/oracle"
)

func main() {
	configPath := flag.String("config", "configs/marketd.local.yaml", "path to config file")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: oraclectl [-config path] get|set|rotate-admin")
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	wallet, err := ledger.LoadWallet(cfg.Ledger.Wallet.KeyFile, cfg.Ledger.Wallet.SecretKey)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load wallet:", err)
		os.Exit(1)
	}
	ledgerClient := ledger.New(cfg.Ledger.RPCURL, wallet,
		ledger.WithLogger(logger),
		ledger.WithCommitment(rpc.CommitmentType(cfg.Ledger.Commitment)),
	)

	deriver := pda.New(
		solana.MustPublicKeyFromBase58(cfg.Ledger.HydrogenProgramID),
		solana.MustPublicKeyFromBase58(cfg.Ledger.MarketplaceProgramID),
		solana.MustPublicKeyFromBase58(cfg.Ledger.OracleProgramID),
	)
	gate := oracle.NewGate(ledgerClient, deriver, oracleprog.Program{
		ID: solana.MustPublicKeyFromBase58(cfg.Ledger.OracleProgramID),
	}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch flag.Arg(0) {
	case "get":
		bounds, err := gate.Current(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read bounds:", err)
			os.Exit(1)
		}
		fmt.Printf("min_price_per_kg: %d\n", bounds.MinPricePerKg)
		fmt.Printf("max_price_per_kg: %d\n", bounds.MaxPricePerKg)
		if bounds.LastUpdated > 0 {
			fmt.Printf("last_updated: %s\n", time.Unix(bounds.LastUpdated, 0).UTC().Format(time.RFC3339))
		}

	case "set":
		fs := flag.NewFlagSet("set", flag.ExitOnError)
		min := fs.Uint64("min", 0, "new minimum price per kg")
		max := fs.Uint64("max", 0, "new maximum price per kg")
		fs.Parse(flag.Args()[1:])

		if err := gate.UpdatePrice(ctx, *min, *max); err != nil {
			fmt.Fprintln(os.Stderr, "update bounds:", err)
			os.Exit(1)
		}
		fmt.Printf("bounds set to [%d, %d]\n", *min, *max)

	case "rotate-admin":
		fs := flag.NewFlagSet("rotate-admin", flag.ExitOnError)
		admin := fs.String("admin", "", "new admin address (base58)")
		fs.Parse(flag.Args()[1:])

		newAdmin, err := solana.PublicKeyFromBase58(*admin)
		if err != nil {
			fmt.Fprintln(os.Stderr, "invalid admin address:", err)
			os.Exit(1)
		}
		if err := gate.RotateAdmin(ctx, newAdmin); err != nil {
			fmt.Fprintln(os.Stderr, "rotate admin:", err)
			os.Exit(1)
		}
		fmt.Println("admin rotated to", newAdmin)

	default:
		fmt.Fprintln(os.Stderr, "unknown command:", flag.Arg(0))
		os.Exit(2)
	}
}
