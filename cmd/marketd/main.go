package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/config"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/database"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/fault"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/identity"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/ledger"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/market"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/oracle"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/pda"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/program/hydrogen"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/program/marketplace"
	oracleprog "github.com/HydrogenUkraine/H2U-Marketplace-api/internal/program/oracle"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/provision"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/telemetry"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/users"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/marketd.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting marketd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"rpc_url", cfg.Ledger.RPCURL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to the user store
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// Load the service wallet and open the ledger channel
	wallet, err := ledger.LoadWallet(cfg.Ledger.Wallet.KeyFile, cfg.Ledger.Wallet.SecretKey)
	if err != nil {
		logger.Error("failed to load wallet", "error", err)
		os.Exit(1)
	}
	ledgerClient := ledger.New(cfg.Ledger.RPCURL, wallet,
		ledger.WithLogger(logger),
		ledger.WithCommitment(rpc.CommitmentType(cfg.Ledger.Commitment)),
	)
	logger.Info("ledger channel open", "wallet", ledgerClient.Wallet())

	hydrogenID := solana.MustPublicKeyFromBase58(cfg.Ledger.HydrogenProgramID)
	marketplaceID := solana.MustPublicKeyFromBase58(cfg.Ledger.MarketplaceProgramID)
	oracleID := solana.MustPublicKeyFromBase58(cfg.Ledger.OracleProgramID)
	settlementMint := solana.MustPublicKeyFromBase58(cfg.Ledger.SettlementMint)
	deriver := pda.New(hydrogenID, marketplaceID, oracleID)

	// Core components
	provisioner := provision.New(
		provision.Config{
			MinAdminLamports: cfg.Market.MinAdminLamports,
			TokenURI:         cfg.Market.TokenURI,
		},
		ledgerClient,
		deriver,
		hydrogen.Program{ID: hydrogenID},
		marketplace.Program{ID: marketplaceID},
		logger,
	)
	gate := oracle.NewGate(ledgerClient, deriver, oracleprog.Program{ID: oracleID}, logger)
	source := telemetry.NewMockSource(1)
	projector := market.NewProjector(ledgerClient, deriver, marketplaceID, provisioner, source, cfg.Market.ListingFloor, logger)
	orchestrator := market.NewOrchestrator(ledgerClient, gate, deriver, marketplace.Program{ID: marketplaceID}, projector, settlementMint, logger)

	// User store behind the identity service
	identityClient := identity.NewClient(cfg.Identity, logger)
	userStore := users.NewStore(pool, identityClient, logger)

	// HTTP surface
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: createHandler(cfg, pool, projector, orchestrator, gate, userStore, logger),
	}
	go func() {
		logger.Info("starting http server", "port", cfg.Health.Port)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	// Keep the listing book topped up
	maintainer := market.NewMaintainer(market.MaintainerConfig{Interval: cfg.Market.ProvisionInterval}, projector, logger)
	if err := maintainer.Start(ctx); err != nil {
		logger.Error("failed to start listing maintainer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		maintainer.Stop(shutdownCtx)
	}()

	logger.Info("marketd running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d%s", cfg.Health.Port, cfg.Health.Path),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	logger.Info("marketd stopped")
}

// createHandler builds the HTTP surface: health, listings, bids and users.
func createHandler(cfg *config.ServiceConfig, pool *pgxpool.Pool, projector *market.Projector, orchestrator *market.Orchestrator, gate *oracle.Gate, userStore *users.Store, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(cfg.Health.Path, func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if err := pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["postgres"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["postgres"] = "connected"
		}

		if bounds, err := gate.Current(ctx); err != nil {
			health.Status = "degraded"
			health.Components["oracle"] = map[string]string{"error": err.Error()}
		} else {
			health.Components["oracle"] = map[string]uint64{
				"min_price_per_kg": bounds.MinPricePerKg,
				"max_price_per_kg": bounds.MaxPricePerKg,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("GET /listings", func(w http.ResponseWriter, r *http.Request) {
		listings, err := projector.Listings(r.Context())
		if err != nil {
			writeError(w, err, logger)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"count":    len(listings),
			"listings": listings,
		})
	})

	mux.HandleFunc("GET /production-reports", func(w http.ResponseWriter, r *http.Request) {
		reports := telemetry.ProductionReports(time.Now())
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"count":   len(reports),
			"reports": reports,
		})
	})

	mux.HandleFunc("POST /bids", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Listing string  `json:"listing"`
			Amount  float64 `json:"amount"`
			Price   float64 `json:"price"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, fault.New(fault.InputValidation, "malformed bid: %v", err), logger)
			return
		}
		listingAddr, err := solana.PublicKeyFromBase58(req.Listing)
		if err != nil {
			writeError(w, fault.New(fault.InputValidation, "malformed listing address %q", req.Listing), logger)
			return
		}
		view, err := orchestrator.PlaceBid(r.Context(), listingAddr, req.Amount, req.Price)
		if err != nil {
			writeError(w, err, logger)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(view)
	})

	mux.HandleFunc("POST /users", func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			writeError(w, fault.New(fault.Unauthorized, "missing bearer token"), logger)
			return
		}
		user, err := userStore.CreateFromToken(r.Context(), token)
		if err != nil {
			writeError(w, err, logger)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(user)
	})

	return mux
}

// writeError maps the fault taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error, logger *slog.Logger) {
	status := http.StatusInternalServerError
	switch fault.CategoryOf(err) {
	case fault.InputValidation, fault.OracleRejection:
		status = http.StatusBadRequest
	case fault.InsufficientFunds:
		status = http.StatusPaymentRequired
	case fault.NotFound:
		status = http.StatusNotFound
	case fault.Unauthorized:
		status = http.StatusUnauthorized
	}
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"category": string(fault.CategoryOf(err)),
		"error":    err.Error(),
	})
}
