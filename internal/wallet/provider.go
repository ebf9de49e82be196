package wallet

import (
	"context"
	"fmt"
	"math/big"

	"vinflip/internal/config"
	"vinflip/internal/evm"
)

// TxRequest is a transaction handed to the wallet for signing and broadcast.
type TxRequest struct {
	From                 evm.Address
	To                   evm.Address
	Data                 []byte
	Gas                  uint64
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Provider is the external signing wallet. Keys never enter this process;
// every state-changing transaction is signed and broadcast by the provider.
type Provider interface {
	// RequestAccounts asks the wallet to expose its accounts, prompting the
	// user if needed (eth_requestAccounts).
	RequestAccounts(ctx context.Context) ([]evm.Address, error)

	// ChainID reports the chain the wallet is currently on (eth_chainId).
	ChainID(ctx context.Context) (uint64, error)

	// SwitchChain asks the wallet to move to the given chain
	// (wallet_switchEthereumChain). Fails with code 4902 if the wallet does
	// not know the chain, 4001 if the user declines.
	SwitchChain(ctx context.Context, chainID uint64) error

	// AddChain registers a chain with the wallet (wallet_addEthereumChain).
	AddChain(ctx context.Context, chain config.ChainConfig) error

	// SendTransaction signs and broadcasts a transaction, returning its hash
	// (eth_sendTransaction). Fails with code 4001 if the user declines.
	SendTransaction(ctx context.Context, tx TxRequest) (evm.Hash, error)
}

// RPCProvider talks to a wallet daemon over JSON-RPC.
type RPCProvider struct {
	client evm.RPCClient
}

// NewRPCProvider creates a provider over the given RPC client.
func NewRPCProvider(client evm.RPCClient) *RPCProvider {
	return &RPCProvider{client: client}
}

// Compile-time interface check.
var _ Provider = (*RPCProvider)(nil)

// RequestAccounts implements Provider.
func (p *RPCProvider) RequestAccounts(ctx context.Context) ([]evm.Address, error) {
	var raw []string
	if err := p.client.Call(ctx, "eth_requestAccounts", nil, &raw); err != nil {
		return nil, fmt.Errorf("request accounts: %w", err)
	}

	accounts := make([]evm.Address, 0, len(raw))
	for _, a := range raw {
		accounts = append(accounts, evm.NormalizeAddress(a))
	}
	return accounts, nil
}

// ChainID implements Provider.
func (p *RPCProvider) ChainID(ctx context.Context) (uint64, error) {
	var raw string
	if err := p.client.Call(ctx, "eth_chainId", nil, &raw); err != nil {
		return 0, fmt.Errorf("wallet chain id: %w", err)
	}
	return evm.DecodeUint64(raw)
}

// SwitchChain implements Provider.
func (p *RPCProvider) SwitchChain(ctx context.Context, chainID uint64) error {
	params := []interface{}{
		map[string]string{"chainId": evm.EncodeUint64(chainID)},
	}
	if err := p.client.Call(ctx, "wallet_switchEthereumChain", params, nil); err != nil {
		return fmt.Errorf("switch chain: %w", err)
	}
	return nil
}

// AddChain implements Provider.
func (p *RPCProvider) AddChain(ctx context.Context, chain config.ChainConfig) error {
	params := []interface{}{
		map[string]interface{}{
			"chainId":   evm.EncodeUint64(chain.ChainID),
			"chainName": chain.Name,
			"nativeCurrency": map[string]interface{}{
				"name":     chain.Currency.Name,
				"symbol":   chain.Currency.Symbol,
				"decimals": chain.Currency.Decimals,
			},
			"rpcUrls":           chain.RPCURLs,
			"blockExplorerUrls": []string{chain.ExplorerURL},
		},
	}
	if err := p.client.Call(ctx, "wallet_addEthereumChain", params, nil); err != nil {
		return fmt.Errorf("add chain: %w", err)
	}
	return nil
}

// SendTransaction implements Provider.
func (p *RPCProvider) SendTransaction(ctx context.Context, tx TxRequest) (evm.Hash, error) {
	req := map[string]string{
		"from": string(tx.From),
		"to":   string(tx.To),
		"data": evm.EncodeHexData(tx.Data),
	}
	if tx.Gas > 0 {
		req["gas"] = evm.EncodeUint64(tx.Gas)
	}
	if tx.MaxFeePerGas != nil {
		req["maxFeePerGas"] = evm.EncodeQuantity(tx.MaxFeePerGas)
	}
	if tx.MaxPriorityFeePerGas != nil {
		req["maxPriorityFeePerGas"] = evm.EncodeQuantity(tx.MaxPriorityFeePerGas)
	}

	var hash string
	if err := p.client.Call(ctx, "eth_sendTransaction", []interface{}{req}, &hash); err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}
	return evm.Hash(hash), nil
}
