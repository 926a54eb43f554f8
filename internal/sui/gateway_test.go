package sui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	gethrpc "github.com/ethereum/go-ethereum/rpc"

	xerrors "SuiCoPilot/internal/errors"
)

const (
	testSender    = "0xa11ce"
	testRecipient = "0xb0b"
)

// fakeNode implements the subset of the Sui JSON-RPC surface the gateway uses.
// It is registered under the suix, sui and unsafe namespaces.
type fakeNode struct {
	mu           sync.Mutex
	balance      uint64
	coins        int
	failBalance  bool
	rejectBuild  string
	builds       int
	dryRuns      []string
	lastAmounts  []string
	lastQueryArg map[string]any
}

func (n *fakeNode) GetBalance(owner string, coinType *string) (*Balance, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failBalance {
		return nil, errors.New("balance unavailable")
	}
	return &Balance{CoinType: SUICoinType, CoinObjectCount: n.coins, TotalBalance: strconv.FormatUint(n.balance, 10)}, nil
}

func (n *fakeNode) GetOwnedObjects(owner string, query map[string]any, cursor *string, limit *int) (*ObjectPage, error) {
	page := &ObjectPage{}
	for i := 0; i < n.coins; i++ {
		page.Data = append(page.Data, OwnedObject{Data: &ObjectData{ObjectID: fmt.Sprintf("0xobj%d", i), Version: "1", Digest: "d"}})
	}
	return page, nil
}

func (n *fakeNode) QueryTransactionBlocks(query map[string]any, cursor *string, limit *int, descending *bool) (*TransactionPage, error) {
	n.mu.Lock()
	n.lastQueryArg = query
	n.mu.Unlock()
	return &TransactionPage{Data: []TransactionSummary{{Digest: "9xTx"}}}, nil
}

func (n *fakeNode) GetCoinMetadata(coinType string) (*CoinMetadata, error) {
	return &CoinMetadata{Decimals: 9, Name: "Sui", Symbol: "SUI"}, nil
}

func (n *fakeNode) GetCoins(owner string, coinType *string, cursor *string, limit *int) (*CoinPage, error) {
	page := &CoinPage{}
	for i := 0; i < n.coins; i++ {
		page.Data = append(page.Data, Coin{CoinType: SUICoinType, CoinObjectID: fmt.Sprintf("0xcoin%d", i), Balance: "1"})
	}
	return page, nil
}

func (n *fakeNode) PaySui(signer string, coins, recipients, amounts []string, gasBudget string) (*TransactionBytes, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.rejectBuild != "" {
		return nil, errors.New(n.rejectBuild)
	}
	n.builds++
	n.lastAmounts = amounts
	return &TransactionBytes{TxBytes: fmt.Sprintf("tx-%d-%s", n.builds, amounts[0])}, nil
}

func (n *fakeNode) DryRunTransactionBlock(txBytes string) (map[string]any, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dryRuns = append(n.dryRuns, txBytes)

	var amount uint64
	fmt.Sscanf(txBytes[len("tx-"):], "%d-%d", new(int), &amount)
	status := map[string]any{"status": "success"}
	if amount > n.balance {
		status = map[string]any{"status": "failure", "error": "InsufficientCoinBalance in command 0"}
	}
	return map[string]any{
		"effects": map[string]any{
			"status": status,
			"gasUsed": map[string]any{
				"computationCost":         "1000000",
				"storageCost":             "1976000",
				"storageRebate":           "978120",
				"nonRefundableStorageFee": "9880",
			},
		},
		"events": []any{},
	}, nil
}

func newTestGateway(t *testing.T, node *fakeNode) *Gateway {
	t.Helper()
	srv := gethrpc.NewServer()
	for _, ns := range []string{"suix", "sui", "unsafe"} {
		if err := srv.RegisterName(ns, node); err != nil {
			t.Fatalf("register %s: %v", ns, err)
		}
	}
	t.Cleanup(srv.Stop)

	reg := NewRegistry(DefaultNetworkDefinitions(), WithClient(Testnet, NewClient(Testnet, gethrpc.DialInProc(srv))))
	t.Cleanup(reg.Close)
	return NewGateway(reg)
}

func TestWalletInfoBatchesAllQueries(t *testing.T) {
	node := &fakeNode{balance: 2_500_000_000, coins: 3}
	gw := newTestGateway(t, node)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	info, err := gw.WalletInfo(ctx, testSender, "", WalletOptions{IncludeTransactions: true, IncludeCoinMetadata: true})
	if err != nil {
		t.Fatalf("wallet info: %v", err)
	}
	if info.Network != Testnet || info.Address != testSender {
		t.Fatalf("unexpected identity %+v", info)
	}
	if info.Balance.TotalBalance != "2500000000" || len(info.Objects) != 3 {
		t.Fatalf("unexpected wallet info %+v", info)
	}
	if len(info.Transactions) != 1 || info.CoinMetadata == nil || info.CoinMetadata.Symbol != "SUI" {
		t.Fatalf("optional sections missing: %+v", info)
	}
	filter, _ := node.lastQueryArg["filter"].(map[string]any)
	if filter["FromAddress"] != testSender {
		t.Fatalf("expected FromAddress filter, got %v", node.lastQueryArg)
	}
	if FormatBalance(info.Balance.TotalBalance) != "2.500000 SUI" {
		t.Fatalf("unexpected formatted balance %s", FormatBalance(info.Balance.TotalBalance))
	}
}

func TestWalletInfoWithoutTransactions(t *testing.T) {
	gw := newTestGateway(t, &fakeNode{balance: 1})
	info, err := gw.WalletInfo(context.Background(), testSender, Testnet, WalletOptions{})
	if err != nil {
		t.Fatalf("wallet info: %v", err)
	}
	if info.Transactions != nil || info.CoinMetadata != nil {
		t.Fatalf("optional sections should be omitted: %+v", info)
	}
	if info.Objects == nil {
		t.Fatalf("objects must be an empty list, not nil")
	}
}

func TestWalletInfoErrorsAreNetworkErrors(t *testing.T) {
	gw := newTestGateway(t, &fakeNode{failBalance: true})
	_, err := gw.WalletInfo(context.Background(), testSender, Testnet, WalletOptions{})
	if !xerrors.HasCode(err, xerrors.CodeNetwork) {
		t.Fatalf("expected NETWORK error, got %v", err)
	}

	_, err = gw.WalletInfo(context.Background(), "", Testnet, WalletOptions{})
	if !xerrors.HasCode(err, xerrors.CodeValidation) {
		t.Fatalf("expected VALIDATION error, got %v", err)
	}

	_, err = gw.WalletInfo(context.Background(), testSender, "moonnet", WalletOptions{})
	if !xerrors.HasCode(err, xerrors.CodeValidation) {
		t.Fatalf("expected unknown network to be rejected, got %v", err)
	}
}

func TestWalletInfoTransportFailure(t *testing.T) {
	defs := DefaultNetworkDefinitions()
	defs.Networks[Local] = NetworkDefinition{RPCURL: "http://127.0.0.1:1"}
	gw := NewGateway(NewRegistry(defs))
	defer gw.Registry().Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := gw.WalletInfo(ctx, testSender, Local, WalletOptions{})
	if !xerrors.HasCode(err, xerrors.CodeNetwork) {
		t.Fatalf("expected NETWORK error, got %v", err)
	}
}

func TestSimulateSuccessReusesBuiltBytes(t *testing.T) {
	node := &fakeNode{balance: 5 * MistPerSUI, coins: 2}
	gw := newTestGateway(t, node)
	block := NewTransferBlock(testRecipient, MistPerSUI)

	res, err := gw.Simulate(context.Background(), block, testSender, Testnet)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if !res.Success || len(res.Errors) != 0 {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.GasEstimate.ComputationCost != "1000000" || res.GasEstimate.NonRefundableStorageFee != "9880" {
		t.Fatalf("gas fields must be copied verbatim: %+v", res.GasEstimate)
	}
	if res.GasUsed() != 1000000+1976000-978120 {
		t.Fatalf("unexpected net gas %d", res.GasUsed())
	}
	if node.lastAmounts[0] != "1000000000" {
		t.Fatalf("unexpected amount sent to builder %v", node.lastAmounts)
	}

	signer := &recordingSigner{}
	out, err := gw.Execute(context.Background(), signer, block, Testnet)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.Digest != "digest-1" {
		t.Fatalf("unexpected digest %s", out.Digest)
	}
	if node.builds != 1 || signer.got.TxBytes != node.dryRuns[0] {
		t.Fatalf("signer must receive the simulated bytes: builds=%d signed=%s dry=%v", node.builds, signer.got.TxBytes, node.dryRuns)
	}
}

func TestSimulateFailureCarriesNodeError(t *testing.T) {
	node := &fakeNode{balance: MistPerSUI / 2, coins: 1}
	gw := newTestGateway(t, node)

	res, err := gw.Simulate(context.Background(), NewTransferBlock(testRecipient, MistPerSUI), testSender, Testnet)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if res.Success || len(res.Errors) != 1 || res.Errors[0] != "InsufficientCoinBalance in command 0" {
		t.Fatalf("expected failed simulation, got %+v", res)
	}
}

func TestSimulateRejectedBuildIsFailureNotError(t *testing.T) {
	gw := newTestGateway(t, &fakeNode{coins: 1, rejectBuild: "Insufficient balance"})
	res, err := gw.Simulate(context.Background(), NewTransferBlock(testRecipient, 1), testSender, Testnet)
	if err != nil {
		t.Fatalf("node rejection must not be a transport error: %v", err)
	}
	if res.Success || res.Errors[0] != "Insufficient balance" {
		t.Fatalf("unexpected result %+v", res)
	}

	res, err = newTestGateway(t, &fakeNode{}).Simulate(context.Background(), NewTransferBlock(testRecipient, 1), testSender, Testnet)
	if err != nil || res.Success {
		t.Fatalf("a sender without coins cannot succeed: %+v %v", res, err)
	}
}

func TestSimulateRequiresSender(t *testing.T) {
	gw := newTestGateway(t, &fakeNode{})
	_, err := gw.Simulate(context.Background(), NewTransferBlock(testRecipient, 1), " ", Testnet)
	if !xerrors.HasCode(err, xerrors.CodeValidation) {
		t.Fatalf("expected VALIDATION, got %v", err)
	}
}

func TestExecuteWithoutSimulation(t *testing.T) {
	gw := newTestGateway(t, &fakeNode{})
	_, err := gw.Execute(context.Background(), &recordingSigner{}, NewTransferBlock(testRecipient, 1), Testnet)
	if !xerrors.HasCode(err, xerrors.CodeValidation) {
		t.Fatalf("expected VALIDATION, got %v", err)
	}
}

type recordingSigner struct {
	got SignRequest
	err error
}

func (s *recordingSigner) SignAndExecute(_ context.Context, req SignRequest) (*ExecutionResult, error) {
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	return &ExecutionResult{Digest: "digest-1"}, nil
}

func TestExecuteSignerFailureIsNetworkError(t *testing.T) {
	node := &fakeNode{balance: 10, coins: 1}
	gw := newTestGateway(t, node)
	block := NewTransferBlock(testRecipient, 1)
	if _, err := gw.Simulate(context.Background(), block, testSender, Testnet); err != nil {
		t.Fatalf("simulate: %v", err)
	}
	_, err := gw.Execute(context.Background(), &recordingSigner{err: errors.New("user rejected")}, block, Testnet)
	if !xerrors.HasCode(err, xerrors.CodeNetwork) {
		t.Fatalf("expected NETWORK error, got %v", err)
	}
}
