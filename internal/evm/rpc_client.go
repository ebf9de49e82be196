package evm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"vinflip/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPClient implements RPCClient using HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new EVM JSON-RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time interface check.
var _ RPCClient = (*HTTPClient)(nil)

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error. Wallet providers use well-known codes
// (4001 user rejected, 4902 unrecognized chain) that callers inspect with
// errors.As.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Wallet provider error codes (EIP-1193 / EIP-3085) plus the JSON-RPC
// internal error nodes return for unfundable transactions.
const (
	CodeUserRejected      = 4001
	CodeUnrecognizedChain = 4902
	CodeInternalError     = -32603
)

// Call performs a JSON-RPC call with retries and exponential backoff.
func (c *HTTPClient) Call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	start := time.Now()
	defer func() {
		observability.RecordRPCLatency(method, time.Since(start).Seconds())
	}()

	reqID := c.requestID.Add(1)
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			// RPC errors are not retried; user-rejection and revert errors
			// must surface immediately.
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// ChainID retrieves the chain identifier.
func (c *HTTPClient) ChainID(ctx context.Context) (uint64, error) {
	var result string
	if err := c.Call(ctx, "eth_chainId", nil, &result); err != nil {
		return 0, err
	}
	return DecodeUint64(result)
}

// BlockNumber retrieves the latest block number.
func (c *HTTPClient) BlockNumber(ctx context.Context) (uint64, error) {
	var result string
	if err := c.Call(ctx, "eth_blockNumber", nil, &result); err != nil {
		return 0, err
	}
	return DecodeUint64(result)
}

// CallContract executes a read-only eth_call against the latest block.
func (c *HTTPClient) CallContract(ctx context.Context, to Address, data []byte) ([]byte, error) {
	params := []interface{}{
		map[string]string{
			"to":   string(to),
			"data": EncodeHexData(data),
		},
		"latest",
	}

	var result string
	if err := c.Call(ctx, "eth_call", params, &result); err != nil {
		return nil, err
	}
	return DecodeHexData(result)
}

// FeeData retrieves current fee suggestions. The max fee is derived as twice
// the gas price, which bounds it above the next base fee plus tip.
func (c *HTTPClient) FeeData(ctx context.Context) (*FeeData, error) {
	var tipHex string
	if err := c.Call(ctx, "eth_maxPriorityFeePerGas", nil, &tipHex); err != nil {
		return nil, fmt.Errorf("max priority fee: %w", err)
	}
	tip, err := DecodeQuantity(tipHex)
	if err != nil {
		return nil, err
	}

	var priceHex string
	if err := c.Call(ctx, "eth_gasPrice", nil, &priceHex); err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	price, err := DecodeQuantity(priceHex)
	if err != nil {
		return nil, err
	}

	maxFee := new(big.Int).Mul(price, big.NewInt(2))
	return &FeeData{
		MaxPriorityFeePerGas: tip,
		MaxFeePerGas:         maxFee,
	}, nil
}

// TransactionReceipt retrieves a receipt by hash. Returns (nil, nil) while
// the transaction is still pending.
func (c *HTTPClient) TransactionReceipt(ctx context.Context, hash Hash) (*Receipt, error) {
	params := []interface{}{string(hash)}

	var result *receiptResult
	if err := c.Call(ctx, "eth_getTransactionReceipt", params, &result); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	block, err := DecodeUint64(result.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("receipt block number: %w", err)
	}
	gasUsed, err := DecodeUint64(result.GasUsed)
	if err != nil {
		return nil, fmt.Errorf("receipt gas used: %w", err)
	}
	status, err := DecodeUint64(result.Status)
	if err != nil {
		return nil, fmt.Errorf("receipt status: %w", err)
	}

	return &Receipt{
		TxHash:      Hash(result.TransactionHash),
		BlockNumber: block,
		GasUsed:     gasUsed,
		Status:      status,
	}, nil
}

// receiptResult is the raw RPC response for eth_getTransactionReceipt.
type receiptResult struct {
	TransactionHash string `json:"transactionHash"`
	BlockNumber     string `json:"blockNumber"`
	GasUsed         string `json:"gasUsed"`
	Status          string `json:"status"`
}

// FilterLogs retrieves historical logs matching the query.
func (c *HTTPClient) FilterLogs(ctx context.Context, q FilterQuery) ([]Log, error) {
	filter := map[string]interface{}{
		"fromBlock": EncodeUint64(q.FromBlock),
	}
	if q.ToBlock > 0 {
		filter["toBlock"] = EncodeUint64(q.ToBlock)
	} else {
		filter["toBlock"] = "latest"
	}
	if q.Address != "" {
		filter["address"] = string(q.Address)
	}
	if len(q.Topics) > 0 {
		filter["topics"] = q.Topics
	}

	var result []logResult
	if err := c.Call(ctx, "eth_getLogs", []interface{}{filter}, &result); err != nil {
		return nil, err
	}

	logs := make([]Log, 0, len(result))
	for _, r := range result {
		l, err := r.toLog()
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, nil
}

// logResult is the raw RPC representation of a log, shared by eth_getLogs
// and logs subscription notifications.
type logResult struct {
	Address         string   `json:"address"`
	Topics          []string `json:"topics"`
	Data            string   `json:"data"`
	BlockNumber     string   `json:"blockNumber"`
	TransactionHash string   `json:"transactionHash"`
	LogIndex        string   `json:"logIndex"`
	Removed         bool     `json:"removed"`
}

func (r *logResult) toLog() (Log, error) {
	block, err := DecodeUint64(r.BlockNumber)
	if err != nil {
		return Log{}, fmt.Errorf("log block number: %w", err)
	}
	index, err := DecodeUint64(r.LogIndex)
	if err != nil {
		return Log{}, fmt.Errorf("log index: %w", err)
	}

	topics := make([]Hash, len(r.Topics))
	for i, t := range r.Topics {
		topics[i] = Hash(t)
	}

	return Log{
		Address:     NormalizeAddress(r.Address),
		Topics:      topics,
		Data:        r.Data,
		BlockNumber: block,
		TxHash:      Hash(r.TransactionHash),
		LogIndex:    index,
		Removed:     r.Removed,
	}, nil
}
