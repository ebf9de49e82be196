package evm

import (
	"context"
	"math/big"
)

// Caller is the read-only chain interface contract handles depend on.
type Caller interface {
	// CallContract executes a read-only eth_call against the latest block.
	CallContract(ctx context.Context, to Address, data []byte) ([]byte, error)
}

// RPCClient defines the EVM JSON-RPC interface used by the client.
type RPCClient interface {
	Caller

	// ChainID retrieves the chain identifier (eth_chainId).
	ChainID(ctx context.Context) (uint64, error)

	// BlockNumber retrieves the latest block number (eth_blockNumber).
	BlockNumber(ctx context.Context) (uint64, error)

	// FeeData retrieves current fee suggestions for EIP-1559 transactions.
	FeeData(ctx context.Context) (*FeeData, error)

	// TransactionReceipt retrieves a receipt by hash. Returns (nil, nil) while
	// the transaction is still pending.
	TransactionReceipt(ctx context.Context, hash Hash) (*Receipt, error)

	// FilterLogs retrieves historical logs matching the query (eth_getLogs).
	FilterLogs(ctx context.Context, q FilterQuery) ([]Log, error)

	// Call performs an arbitrary JSON-RPC call. Wallet-provider methods
	// (eth_requestAccounts, wallet_switchEthereumChain, ...) go through here.
	Call(ctx context.Context, method string, params []interface{}, result interface{}) error
}

// FeeData holds EIP-1559 fee suggestions.
type FeeData struct {
	MaxPriorityFeePerGas *big.Int
	MaxFeePerGas         *big.Int
}

// Receipt is the subset of a transaction receipt the client needs.
type Receipt struct {
	TxHash      Hash
	BlockNumber uint64
	GasUsed     uint64
	// Status is 1 for success, 0 for revert.
	Status uint64
}

// Log is an emitted contract event.
type Log struct {
	Address     Address
	Topics      []Hash
	Data        string // 0x-prefixed hex
	BlockNumber uint64
	TxHash      Hash
	LogIndex    uint64
	Removed     bool
}

// FilterQuery selects logs for eth_getLogs and eth_subscribe("logs").
type FilterQuery struct {
	FromBlock uint64
	ToBlock   uint64 // 0 means latest
	Address   Address
	// Topics[0] is an OR-list of event signature hashes.
	Topics [][]Hash
}
