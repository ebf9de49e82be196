package wallet

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"vinflip/internal/config"
	"vinflip/internal/evm"
	"vinflip/internal/observability"
)

// Session errors.
var (
	// ErrWalletUnavailable means no provider responded.
	ErrWalletUnavailable = errors.New("wallet provider unavailable")

	// ErrConnectRejected means the user declined the account request.
	ErrConnectRejected = errors.New("wallet connection rejected by user")

	// ErrSwitchRejected means the user declined the network switch.
	ErrSwitchRejected = errors.New("network switch rejected by user")

	// ErrNoAccounts means the wallet exposed no accounts.
	ErrNoAccounts = errors.New("wallet returned no accounts")

	// ErrNotConnected is returned by operations that need an active session.
	ErrNotConnected = errors.New("wallet not connected")
)

// Manager owns the wallet session: the active account and the guarantee that
// the wallet sits on the right chain before any transaction goes out.
type Manager struct {
	provider Provider
	chain    config.ChainConfig
	logger   *log.Logger

	mu        sync.Mutex
	account   evm.Address
	connected bool
}

// NewManager creates a session manager for the given chain.
func NewManager(provider Provider, chain config.ChainConfig, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		provider: provider,
		chain:    chain,
		logger:   logger,
	}
}

// Connect establishes a session: requests accounts, then moves the wallet to
// the target chain, registering it first if the wallet does not know it.
// Reconnecting while already connected re-runs the full handshake, so a
// wallet-side account change is picked up.
func (m *Manager) Connect(ctx context.Context) (evm.Address, error) {
	accounts, err := m.provider.RequestAccounts(ctx)
	if err != nil {
		return "", classifyConnectErr(err)
	}
	if len(accounts) == 0 {
		return "", ErrNoAccounts
	}
	account := accounts[0]

	if err := m.ensureChain(ctx); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.account = account
	m.connected = true
	m.mu.Unlock()

	m.logger.Printf("connected account %s on chain %d", account, m.chain.ChainID)
	return account, nil
}

// ensureChain verifies the wallet's chain and switches if needed. An unknown
// chain (code 4902) is added first, which on most wallets also switches.
func (m *Manager) ensureChain(ctx context.Context) error {
	current, err := m.provider.ChainID(ctx)
	if err != nil {
		return classifyConnectErr(err)
	}
	if current == m.chain.ChainID {
		return nil
	}

	m.logger.Printf("wallet on chain %d, switching to %d", current, m.chain.ChainID)

	err = m.provider.SwitchChain(ctx, m.chain.ChainID)
	if err == nil {
		return nil
	}

	var rpcErr *evm.RPCError
	switch {
	case errors.As(err, &rpcErr) && rpcErr.Code == evm.CodeUnrecognizedChain:
		if err := m.provider.AddChain(ctx, m.chain); err != nil {
			return classifySwitchErr(err)
		}
		return nil
	default:
		return classifySwitchErr(err)
	}
}

// Disconnect ends the session. Safe to call repeatedly.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return
	}
	m.logger.Printf("disconnected account %s", m.account)
	m.account = ""
	m.connected = false
}

// Account returns the active account, if connected.
func (m *Manager) Account() (evm.Address, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.account, m.connected
}

// Provider exposes the underlying signing provider for transaction
// submission.
func (m *Manager) Provider() Provider {
	return m.provider
}

func classifyConnectErr(err error) error {
	var rpcErr *evm.RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == evm.CodeUserRejected {
		observability.RecordWalletRejection("connect")
		return ErrConnectRejected
	}
	return fmt.Errorf("%w: %v", ErrWalletUnavailable, err)
}

func classifySwitchErr(err error) error {
	var rpcErr *evm.RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == evm.CodeUserRejected {
		observability.RecordWalletRejection("switch")
		return ErrSwitchRejected
	}
	return fmt.Errorf("switch to chain failed: %w", err)
}
