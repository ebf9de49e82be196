package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"vinflip/internal/balance"
	"vinflip/internal/config"
	"vinflip/internal/coordinator"
	"vinflip/internal/domain"
	"vinflip/internal/evm"
	"vinflip/internal/game"
	"vinflip/internal/reconcile"
	"vinflip/internal/storage/memory"
	"vinflip/internal/submit"
	"vinflip/internal/wallet"
)

const (
	account  = evm.Address("0x1111111111111111111111111111111111111111")
	gameAddr = evm.Address("0x2222222222222222222222222222222222222222")
	tokAddr  = evm.Address("0x3333333333333333333333333333333333333333")
)

func vin(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

type fakeChain struct {
	mu         sync.Mutex
	accountBal *big.Int
	winnings   *big.Int
	potBal     *big.Int
	allowance  *big.Int
}

func (f *fakeChain) CallContract(_ context.Context, to evm.Address, data []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	word := func(v *big.Int) []byte {
		out := make([]byte, 32)
		v.FillBytes(out)
		return out
	}

	selector := hex.EncodeToString(data[:4])
	switch {
	case to == gameAddr:
		return word(f.winnings), nil
	case selector == "dd62ed3e":
		return word(f.allowance), nil
	case selector == "70a08231":
		arg := evm.Address("0x" + hex.EncodeToString(data[16:36]))
		if arg.Equal(gameAddr) {
			return word(f.potBal), nil
		}
		return word(f.accountBal), nil
	}
	return nil, errors.New("unexpected call")
}

func (f *fakeChain) ChainID(context.Context) (uint64, error)     { return 207, nil }
func (f *fakeChain) BlockNumber(context.Context) (uint64, error) { return 100, nil }
func (f *fakeChain) FeeData(context.Context) (*evm.FeeData, error) {
	return &evm.FeeData{MaxPriorityFeePerGas: evm.Gwei(1), MaxFeePerGas: evm.Gwei(2)}, nil
}
func (f *fakeChain) TransactionReceipt(context.Context, evm.Hash) (*evm.Receipt, error) {
	return &evm.Receipt{TxHash: "0xhash", BlockNumber: 101, GasUsed: 90000, Status: 1}, nil
}
func (f *fakeChain) FilterLogs(context.Context, evm.FilterQuery) ([]evm.Log, error) {
	return nil, nil
}
func (f *fakeChain) Call(context.Context, string, []interface{}, interface{}) error {
	return nil
}

var _ evm.RPCClient = (*fakeChain)(nil)

type fakeProvider struct {
	accounts []evm.Address
}

func (f *fakeProvider) RequestAccounts(context.Context) ([]evm.Address, error) {
	return f.accounts, nil
}
func (f *fakeProvider) ChainID(context.Context) (uint64, error)            { return 207, nil }
func (f *fakeProvider) SwitchChain(context.Context, uint64) error          { return nil }
func (f *fakeProvider) AddChain(context.Context, config.ChainConfig) error { return nil }
func (f *fakeProvider) SendTransaction(context.Context, wallet.TxRequest) (evm.Hash, error) {
	return "0xhash", nil
}

var _ wallet.Provider = (*fakeProvider)(nil)

type fakeWS struct {
	mu   sync.Mutex
	logs chan evm.Log
}

func (f *fakeWS) SubscribeLogs(context.Context, evm.FilterQuery) (evm.SubscriptionID, <-chan evm.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = make(chan evm.Log, 16)
	return "0xsub", f.logs, nil
}

func (f *fakeWS) Unsubscribe(context.Context, evm.SubscriptionID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.logs != nil {
		close(f.logs)
		f.logs = nil
	}
	return nil
}

func (f *fakeWS) Close() error { return nil }

var _ evm.WSClient = (*fakeWS)(nil)

func newTestServer(t *testing.T) (*httptest.Server, *memory.FlipEventStore) {
	t.Helper()

	chain := &fakeChain{
		accountBal: vin(100),
		winnings:   vin(0),
		potBal:     vin(5000),
		allowance:  vin(1000000),
	}

	cfg := config.DefaultVinuChain()
	cfg.GameAddress = gameAddr
	cfg.TokenAddress = tokAddr

	token := game.NewToken(tokAddr, chain)
	contract := game.NewContract(gameAddr, chain)
	mgr := wallet.NewManager(&fakeProvider{accounts: []evm.Address{account}}, cfg, nil)
	reader := balance.NewReader(token, contract, nil)
	sub := submit.NewSubmitter(chain, &fakeProvider{accounts: []evm.Address{account}}, contract, token, nil,
		submit.WithPollInterval(time.Millisecond))

	leaderboard := memory.NewLeaderboardStore()
	archive := memory.NewFlipEventStore()
	rec := reconcile.NewReconciler(&fakeWS{}, contract, leaderboard, archive, mgr.Account, nil)
	coord := coordinator.New(mgr, reader, sub, rec, nil)

	srv := httptest.NewServer(NewServer(coord, leaderboard, archive, nil).Router())
	t.Cleanup(srv.Close)
	return srv, archive
}

func get(t *testing.T, srv *httptest.Server, path string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp, decodeBody(t, resp)
}

func post(t *testing.T, srv *httptest.Server, path, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return out
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestServer_SessionLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := get(t, srv, "/api/v1/session")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["connected"] != false {
		t.Error("fresh session should not be connected")
	}

	resp, body = post(t, srv, "/api/v1/session/connect", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("connect status = %d", resp.StatusCode)
	}
	if body["account"] != string(account) {
		t.Errorf("account = %v", body["account"])
	}

	resp, body = get(t, srv, "/api/v1/session")
	if body["connected"] != true || body["state"] != "idle" {
		t.Errorf("session after connect = %v", body)
	}
	resp.Body.Close()

	resp, _ = post(t, srv, "/api/v1/session/disconnect", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("disconnect status = %d", resp.StatusCode)
	}
}

func TestServer_FlipValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	post(t, srv, "/api/v1/session/connect", "")

	resp, _ := post(t, srv, "/api/v1/flip", "{not json")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d", resp.StatusCode)
	}

	resp, body := post(t, srv, "/api/v1/flip", `{"amount": "0.01", "heads": true}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("below-minimum bet: status = %d", resp.StatusCode)
	}
	if msg, ok := body["error"].(string); !ok || msg == "" {
		t.Error("error body missing")
	}
}

func TestServer_FlipAccepted(t *testing.T) {
	srv, _ := newTestServer(t)
	post(t, srv, "/api/v1/session/connect", "")

	resp, body := post(t, srv, "/api/v1/flip", `{"amount": "10", "heads": true}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["state"] != "awaiting_event" {
		t.Errorf("state = %v", body["state"])
	}

	// The flip is unresolved until its event arrives.
	resp, _ = post(t, srv, "/api/v1/flip", `{"amount": "10", "heads": false}`)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second flip: status = %d", resp.StatusCode)
	}
}

func TestServer_ActionsRequireConnection(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := post(t, srv, "/api/v1/flip", `{"amount": "10", "heads": true}`)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("flip without session: status = %d", resp.StatusCode)
	}

	resp, _ = post(t, srv, "/api/v1/withdraw", "")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("withdraw without session: status = %d", resp.StatusCode)
	}
}

func TestServer_Leaderboard(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := get(t, srv, "/api/v1/leaderboard")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	entries, ok := body["entries"].([]interface{})
	if !ok || len(entries) != 0 {
		t.Errorf("entries = %v", body["entries"])
	}
}

func TestServer_Stats(t *testing.T) {
	srv, archive := newTestServer(t)

	archive.Insert(context.Background(), &domain.FlipEvent{
		Player: account, Heads: true, Won: true,
		Bet: "10.0", Payout: "20.0",
		TxHash: "0xaaa", BlockNumber: 100, LogIndex: 0,
	})

	resp, body := get(t, srv, "/api/v1/stats")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["total_flips"] != float64(1) || body["total_wins"] != float64(1) {
		t.Errorf("stats = %v", body)
	}
}

func TestServer_StatsWithoutArchive(t *testing.T) {
	srv, _ := newTestServer(t)

	// Rebuild the server without an archive store.
	chain := &fakeChain{accountBal: vin(0), winnings: vin(0), potBal: vin(0), allowance: vin(0)}
	cfg := config.DefaultVinuChain()
	cfg.GameAddress = gameAddr
	cfg.TokenAddress = tokAddr
	token := game.NewToken(tokAddr, chain)
	contract := game.NewContract(gameAddr, chain)
	mgr := wallet.NewManager(&fakeProvider{}, cfg, nil)
	rec := reconcile.NewReconciler(&fakeWS{}, contract, memory.NewLeaderboardStore(), nil, mgr.Account, nil)
	coord := coordinator.New(mgr, balance.NewReader(token, contract, nil),
		submit.NewSubmitter(chain, &fakeProvider{}, contract, token, nil), rec, nil)

	bare := httptest.NewServer(NewServer(coord, memory.NewLeaderboardStore(), nil, nil).Router())
	defer bare.Close()
	srv.Close()

	resp, err := http.Get(bare.URL + "/api/v1/stats")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
