// Command flipd runs the coinflip game daemon: it talks to the chain over
// JSON-RPC, mirrors the game contract's event stream into local stores and
// serves the session API for front ends.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"vinflip/internal/api"
	"vinflip/internal/balance"
	"vinflip/internal/config"
	"vinflip/internal/coordinator"
	"vinflip/internal/evm"
	"vinflip/internal/game"
	"vinflip/internal/observability"
	"vinflip/internal/reconcile"
	"vinflip/internal/storage"
	chstore "vinflip/internal/storage/clickhouse"
	"vinflip/internal/storage/file"
	"vinflip/internal/storage/memory"
	"vinflip/internal/storage/migrations"
	"vinflip/internal/storage/postgres"
	"vinflip/internal/submit"
	"vinflip/internal/wallet"
)

func main() {
	logger := log.New(os.Stdout, "[flipd] ", log.LstdFlags|log.Lshortfile)

	// The env file loads before flag defaults are read so FLIPD_* variables
	// set there take effect.
	envFile := envOr("FLIPD_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		logger.Printf("env file %s: %v", envFile, err)
	}

	listenAddr := flag.String("listen", envOr("FLIPD_LISTEN", ":8080"), "API listen address")
	rpcURL := flag.String("rpc-url", envOr("FLIPD_RPC_URL", ""), "chain JSON-RPC endpoint (defaults to the chain config's first RPC URL)")
	wsURL := flag.String("ws-url", envOr("FLIPD_WS_URL", ""), "chain websocket endpoint (defaults to the chain config's ws URL)")
	walletURL := flag.String("wallet-url", envOr("FLIPD_WALLET_URL", ""), "external wallet provider JSON-RPC endpoint (required)")
	chainConfig := flag.String("chain-config", envOr("FLIPD_CHAIN_CONFIG", ""), "chain config yaml (defaults to VinuChain mainnet)")
	gameAddress := flag.String("game-address", envOr("FLIPD_GAME_ADDRESS", ""), "coinflip contract address (overrides chain config)")
	tokenAddress := flag.String("token-address", envOr("FLIPD_TOKEN_ADDRESS", ""), "VIN token contract address (overrides chain config)")

	postgresDSN := flag.String("postgres-dsn", envOr("FLIPD_POSTGRES_DSN", ""), "postgres DSN for the leaderboard (optional)")
	clickhouseDSN := flag.String("clickhouse-dsn", envOr("FLIPD_CLICKHOUSE_DSN", ""), "clickhouse DSN for the event archive (optional)")
	dataDir := flag.String("data-dir", envOr("FLIPD_DATA_DIR", "."), "directory for the file leaderboard when postgres is not configured")
	useMemory := flag.Bool("use-memory", envBool("FLIPD_USE_MEMORY", false), "use in-memory stores, nothing survives a restart")
	flag.Parse()

	cfg, err := loadChain(*chainConfig)
	if err != nil {
		logger.Fatalf("chain config: %v", err)
	}
	if *gameAddress != "" {
		cfg.GameAddress = evm.NormalizeAddress(*gameAddress)
	}
	if *tokenAddress != "" {
		cfg.TokenAddress = evm.NormalizeAddress(*tokenAddress)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("chain config: %v", err)
	}
	if *rpcURL == "" {
		*rpcURL = cfg.RPCURLs[0]
	}
	if *wsURL == "" {
		*wsURL = cfg.WSURL
	}
	if *walletURL == "" {
		logger.Fatal("--wallet-url is required, signing happens in an external wallet")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	leaderboard, archive, cleanup, err := createStores(ctx, logger, *postgresDSN, *clickhouseDSN, *dataDir, *useMemory)
	if err != nil {
		logger.Fatalf("create stores: %v", err)
	}
	defer cleanup()

	rpc := evm.NewHTTPClient(*rpcURL)
	ws, err := evm.NewWSClient(ctx, *wsURL, nil)
	if err != nil {
		logger.Fatalf("connect websocket %s: %v", *wsURL, err)
	}
	defer ws.Close()

	token := game.NewToken(cfg.TokenAddress, rpc)
	contract := game.NewContract(cfg.GameAddress, rpc)

	provider := wallet.NewRPCProvider(evm.NewHTTPClient(*walletURL))
	mgr := wallet.NewManager(provider, cfg, log.New(os.Stdout, "[wallet] ", log.LstdFlags))
	reader := balance.NewReader(token, contract, log.New(os.Stdout, "[balance] ", log.LstdFlags))
	submitter := submit.NewSubmitter(rpc, provider, contract, token, log.New(os.Stdout, "[submit] ", log.LstdFlags))
	reconciler := reconcile.NewReconciler(ws, contract, leaderboard, archive, mgr.Account,
		log.New(os.Stdout, "[reconcile] ", log.LstdFlags))
	coord := coordinator.New(mgr, reader, submitter, reconciler,
		log.New(os.Stdout, "[session] ", log.LstdFlags))

	server := &http.Server{
		Addr:         *listenAddr,
		Handler:      api.NewServer(coord, leaderboard, archive, logger).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.AddUptime(15)
			}
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		logger.Printf("serving API on %s (chain %d, game %s)", *listenAddr, cfg.ChainID, cfg.GameAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Printf("received %s, shutting down", sig)
	case err := <-serverErr:
		logger.Printf("server failed: %v", err)
	}

	// A second signal or a stuck shutdown forces the exit.
	go func() {
		select {
		case <-sigCh:
			logger.Print("second signal, forcing exit")
		case <-time.After(30 * time.Second):
			logger.Print("shutdown timed out, forcing exit")
		}
		os.Exit(1)
	}()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("server shutdown: %v", err)
	}
	coord.Disconnect(shutdownCtx)
	logger.Print("bye")
}

func loadChain(path string) (config.ChainConfig, error) {
	if path == "" {
		return config.DefaultVinuChain(), nil
	}
	return config.LoadChainConfig(path)
}

// createStores picks the storage backends. Postgres holds the leaderboard and
// clickhouse the event archive when their DSNs are set; otherwise the
// leaderboard falls back to a JSON file under dataDir and the archive is
// disabled. The returned cleanup closes whatever was opened.
func createStores(ctx context.Context, logger *log.Logger, postgresDSN, clickhouseDSN, dataDir string, useMemory bool) (storage.LeaderboardStore, storage.FlipEventStore, func(), error) {
	if useMemory {
		logger.Print("using in-memory stores")
		return memory.NewLeaderboardStore(), memory.NewFlipEventStore(), func() {}, nil
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var leaderboard storage.LeaderboardStore
	if postgresDSN != "" {
		pool, err := postgres.NewPool(ctx, postgresDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			cleanup()
			return nil, nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		leaderboard = postgres.NewLeaderboardStore(pool)
		logger.Print("leaderboard store: postgres")
	} else {
		fs, err := file.NewLeaderboardStore(dataDir)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open file leaderboard in %s: %w", dataDir, err)
		}
		leaderboard = fs
		logger.Printf("leaderboard store: file (%s)", dataDir)
	}

	var archive storage.FlipEventStore
	if clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		closers = append(closers, func() { conn.Close() })
		archive = chstore.NewFlipEventStore(conn)
		logger.Print("event archive: clickhouse")
	} else {
		logger.Print("event archive: disabled")
	}

	return leaderboard, archive, cleanup, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
