package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"streamvault/config"
	"streamvault/core"
	"streamvault/crypto"
	"streamvault/observability/logging"
	"streamvault/rpc"
	"streamvault/storage"
)

const shutdownGrace = 10 * time.Second

// genesisAppliedKey marks that first-boot allocations have been credited so a
// restart never double-mints.
var genesisAppliedKey = []byte("genesis/applied")

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("streamvaultd", cfg.Env)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	node := core.NewNode(db, logger)

	if err := applyGenesisAllocs(db, node, cfg, logger); err != nil {
		logger.Error("Failed to apply genesis allocations", slog.Any("error", err))
		os.Exit(1)
	}

	server := rpc.NewServer(node, logger)
	if token := strings.TrimSpace(cfg.RPCToken); token != "" && strings.TrimSpace(os.Getenv("STREAMVAULT_RPC_TOKEN")) == "" {
		server.SetAuthToken(token)
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting JSON-RPC server",
			slog.String("address", cfg.ListenAddress),
			slog.String("network", cfg.NetworkName))
		errCh <- httpServer.ListenAndServe()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("JSON-RPC server failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", slog.Any("error", err))
	}
	logger.Info("Server stopped")
}

// applyGenesisAllocs mints the configured balances exactly once per data
// directory.
func applyGenesisAllocs(db storage.Database, node *core.Node, cfg *config.Config, logger *slog.Logger) error {
	if len(cfg.GenesisAlloc) == 0 {
		return nil
	}
	applied, err := db.Has(genesisAppliedKey)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}
	for _, alloc := range cfg.GenesisAlloc {
		decoded, err := crypto.DecodeAddress(strings.TrimSpace(alloc.Address))
		if err != nil {
			return fmt.Errorf("genesis allocation %q: %w", alloc.Address, err)
		}
		if decoded.Prefix() != crypto.SVTPrefix {
			return fmt.Errorf("genesis allocation %q: address must use prefix %q", alloc.Address, crypto.SVTPrefix)
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(alloc.Amount), 10)
		if !ok || amount.Sign() <= 0 {
			return fmt.Errorf("genesis allocation %q: invalid amount %q", alloc.Address, alloc.Amount)
		}
		var addr [20]byte
		copy(addr[:], decoded.Bytes())
		if err := node.MintBalance(addr, alloc.Token, amount); err != nil {
			return fmt.Errorf("genesis allocation %q: %w", alloc.Address, err)
		}
		logger.Info("Applied genesis allocation",
			slog.String("address", alloc.Address),
			slog.String("token", alloc.Token),
			slog.String("amount", amount.String()))
	}
	return db.Put(genesisAppliedKey, []byte{0x01})
}
