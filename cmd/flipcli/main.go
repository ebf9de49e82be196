// Command flipcli is a one-shot client for the coinflip game contract:
// balance reads, bet submission, withdrawals and on-chain history, no daemon
// required.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"vinflip/internal/balance"
	"vinflip/internal/config"
	"vinflip/internal/domain"
	"vinflip/internal/evm"
	"vinflip/internal/game"
	"vinflip/internal/storage/file"
	"vinflip/internal/submit"
	"vinflip/internal/wallet"
)

const usage = `usage: flipcli <command> [flags]

commands:
  balances     show token balance, winnings, pot and allowance for an address
  approve      grant the game contract its standing spend allowance
  flip         submit a bet
  withdraw     pull accumulated winnings back to the wallet
  history      list resolved flips from the chain's event log
  leaderboard  show the locally stored leaderboard

common flags:
  -rpc-url       chain JSON-RPC endpoint (FLIPCLI_RPC_URL)
  -wallet-url    external wallet provider endpoint (FLIPCLI_WALLET_URL)
  -chain-config  chain config yaml, defaults to VinuChain mainnet
  -game-address  coinflip contract address (FLIPCLI_GAME_ADDRESS)
  -token-address VIN token contract address (FLIPCLI_TOKEN_ADDRESS)
`

type cli struct {
	cfg    config.ChainConfig
	rpc    *evm.HTTPClient
	logger *log.Logger

	walletURL string
}

func main() {
	logger := log.New(os.Stderr, "[flipcli] ", 0)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Printf("load .env: %v", err)
	}

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	rpcURL := fs.String("rpc-url", envOr("FLIPCLI_RPC_URL", ""), "chain JSON-RPC endpoint")
	walletURL := fs.String("wallet-url", envOr("FLIPCLI_WALLET_URL", ""), "external wallet provider endpoint")
	chainConfig := fs.String("chain-config", envOr("FLIPCLI_CHAIN_CONFIG", ""), "chain config yaml")
	gameAddress := fs.String("game-address", envOr("FLIPCLI_GAME_ADDRESS", ""), "coinflip contract address (overrides chain config)")
	tokenAddress := fs.String("token-address", envOr("FLIPCLI_TOKEN_ADDRESS", ""), "VIN token contract address (overrides chain config)")

	// Per-command flags.
	address := fs.String("address", "", "account address for read commands")
	amount := fs.String("amount", "", "bet amount in VIN")
	side := fs.String("side", "heads", "coin side, heads or tails")
	fromBlock := fs.Uint64("from-block", 0, "first block to scan for history")
	dataDir := fs.String("data-dir", ".", "directory holding the leaderboard file")
	fs.Parse(os.Args[2:])

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

	c := &cli{
		cfg:       cfg,
		rpc:       evm.NewHTTPClient(*rpcURL),
		logger:    logger,
		walletURL: *walletURL,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch command {
	case "balances":
		err = c.balances(ctx, *address)
	case "approve":
		err = c.approve(ctx)
	case "flip":
		err = c.flip(ctx, *amount, *side)
	case "withdraw":
		err = c.withdraw(ctx)
	case "history":
		err = c.history(ctx, *address, *fromBlock)
	case "leaderboard":
		err = c.leaderboard(ctx, *dataDir)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal(err)
	}
}

func (c *cli) balances(ctx context.Context, address string) error {
	if address == "" {
		return fmt.Errorf("-address is required")
	}
	if !evm.IsValidAddress(address) {
		return fmt.Errorf("invalid address %q", address)
	}
	account := evm.NormalizeAddress(address)

	reader := balance.NewReader(c.token(), c.contract(), c.logger)
	balances, err := reader.Refresh(ctx, account)
	if err != nil {
		return fmt.Errorf("read balances: %w", err)
	}

	fmt.Printf("account    %s\n", account)
	fmt.Printf("balance    %s %s\n", balances.VIN, c.cfg.Currency.Symbol)
	fmt.Printf("winnings   %s %s\n", balances.Winnings, c.cfg.Currency.Symbol)
	fmt.Printf("pot        %s %s\n", balances.Pot, c.cfg.Currency.Symbol)
	fmt.Printf("allowance  %s %s\n", evm.FormatVIN(reader.Allowance()), c.cfg.Currency.Symbol)
	return nil
}

func (c *cli) approve(ctx context.Context) error {
	account, mgr, err := c.connectWallet(ctx)
	if err != nil {
		return err
	}
	defer mgr.Disconnect()

	receipt, err := c.submitter(mgr).ApproveSpend(ctx, account)
	if err != nil {
		return err
	}
	fmt.Printf("approved, tx %s (block %d)\n", receipt.TxHash, receipt.BlockNumber)
	return nil
}

func (c *cli) flip(ctx context.Context, amount, side string) error {
	if amount == "" {
		return fmt.Errorf("-amount is required")
	}
	heads, err := parseSide(side)
	if err != nil {
		return err
	}

	account, mgr, err := c.connectWallet(ctx)
	if err != nil {
		return err
	}
	defer mgr.Disconnect()

	reader := balance.NewReader(c.token(), c.contract(), c.logger)
	balances, err := reader.Refresh(ctx, account)
	if err != nil {
		return fmt.Errorf("read balances: %w", err)
	}

	intent := domain.BetIntent{Amount: amount, Heads: heads}
	receipt, err := c.submitter(mgr).SubmitFlip(ctx, account, intent, reader.Allowance(), balances.VIN)
	if err != nil {
		return err
	}
	fmt.Printf("flip submitted, tx %s (block %d)\n", receipt.TxHash, receipt.BlockNumber)
	fmt.Println("the result lands as a FlipResult event, check history shortly")
	return nil
}

func (c *cli) withdraw(ctx context.Context) error {
	account, mgr, err := c.connectWallet(ctx)
	if err != nil {
		return err
	}
	defer mgr.Disconnect()

	winnings, err := c.contract().PlayerBalances(ctx, account)
	if err != nil {
		return fmt.Errorf("read winnings: %w", err)
	}

	receipt, err := c.submitter(mgr).Withdraw(ctx, account, evm.FormatVIN(winnings))
	if err != nil {
		return err
	}
	fmt.Printf("withdrew %s %s, tx %s\n", evm.FormatVIN(winnings), c.cfg.Currency.Symbol, receipt.TxHash)
	return nil
}

func (c *cli) history(ctx context.Context, address string, fromBlock uint64) error {
	var player evm.Address
	if address != "" {
		if !evm.IsValidAddress(address) {
			return fmt.Errorf("invalid address %q", address)
		}
		player = evm.NormalizeAddress(address)
	}

	q := c.contract().EventFilter()
	q.FromBlock = fromBlock
	logs, err := c.rpc.FilterLogs(ctx, q)
	if err != nil {
		return fmt.Errorf("filter logs: %w", err)
	}

	shown := 0
	for _, l := range logs {
		if l.Removed || len(l.Topics) == 0 || l.Topics[0] != game.FlipResultTopic {
			continue
		}
		ev, err := game.DecodeFlipResult(l)
		if err != nil {
			c.logger.Printf("skip bad log %s: %v", l.TxHash, err)
			continue
		}
		if player != "" && !ev.Player.Equal(player) {
			continue
		}
		result := "lost"
		if ev.Won {
			result = "won "
		}
		fmt.Printf("block %-9d %s %s bet %s payout %s tx %s\n",
			l.BlockNumber, ev.Player, result,
			evm.FormatVIN(ev.Bet), evm.FormatVIN(ev.Payout), l.TxHash)
		shown++
	}
	if shown == 0 {
		fmt.Println("no resolved flips found")
	}
	return nil
}

func (c *cli) leaderboard(ctx context.Context, dataDir string) error {
	store, err := file.NewLeaderboardStore(dataDir)
	if err != nil {
		return fmt.Errorf("open leaderboard: %w", err)
	}
	entries, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load leaderboard: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("leaderboard is empty")
		return nil
	}
	for i, e := range entries {
		fmt.Printf("%2d. %s  %s %s  %s\n", i+1, e.Player, e.Payout, c.cfg.Currency.Symbol,
			time.UnixMilli(e.Timestamp).Format(time.RFC3339))
	}
	return nil
}

func (c *cli) connectWallet(ctx context.Context) (evm.Address, *wallet.Manager, error) {
	if c.walletURL == "" {
		return "", nil, fmt.Errorf("-wallet-url is required, signing happens in an external wallet")
	}
	provider := wallet.NewRPCProvider(evm.NewHTTPClient(c.walletURL))
	mgr := wallet.NewManager(provider, c.cfg, c.logger)
	account, err := mgr.Connect(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("connect wallet: %w", err)
	}
	return account, mgr, nil
}

func (c *cli) submitter(mgr *wallet.Manager) *submit.Submitter {
	return submit.NewSubmitter(c.rpc, mgr.Provider(), c.contract(), c.token(), c.logger)
}

func (c *cli) token() *game.Token {
	return game.NewToken(c.cfg.TokenAddress, c.rpc)
}

func (c *cli) contract() *game.Contract {
	return game.NewContract(c.cfg.GameAddress, c.rpc)
}

func parseSide(side string) (bool, error) {
	switch side {
	case "heads":
		return true, nil
	case "tails":
		return false, nil
	}
	return false, fmt.Errorf("side must be heads or tails, got %q", side)
}

func loadChain(path string) (config.ChainConfig, error) {
	if path == "" {
		return config.DefaultVinuChain(), nil
	}
	return config.LoadChainConfig(path)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
