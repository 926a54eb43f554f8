package txflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"SuiCoPilot/internal/auth"
	xerrors "SuiCoPilot/internal/errors"
	"SuiCoPilot/internal/history"
	"SuiCoPilot/internal/sui"
)

type fakeGateway struct {
	mu         sync.Mutex
	simulate   func(block *sui.TransactionBlock) (*sui.SimulationResult, error)
	execErr    error
	simulated  []*sui.TransactionBlock
	executed   []*sui.TransactionBlock
	blockSimCh chan struct{}
	releaseSim chan struct{}
}

func (f *fakeGateway) Simulate(_ context.Context, block *sui.TransactionBlock, sender, network string) (*sui.SimulationResult, error) {
	if f.blockSimCh != nil {
		close(f.blockSimCh)
		<-f.releaseSim
	}
	f.mu.Lock()
	f.simulated = append(f.simulated, block)
	f.mu.Unlock()
	block.SetSender(sender)
	return f.simulate(block)
}

func (f *fakeGateway) Execute(_ context.Context, _ sui.Signer, block *sui.TransactionBlock, network string) (*sui.ExecutionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, block)
	if f.execErr != nil {
		return nil, f.execErr
	}
	return &sui.ExecutionResult{Digest: "digest-1"}, nil
}

type recordingLog struct {
	mu      sync.Mutex
	entries []history.TransactionLog
}

func (r *recordingLog) LogTransaction(_ context.Context, entry history.TransactionLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func succeed(block *sui.TransactionBlock) (*sui.SimulationResult, error) {
	return &sui.SimulationResult{
		Success: true,
		Network: sui.Testnet,
		GasEstimate: sui.GasCostSummary{
			ComputationCost:         "1000000",
			StorageCost:             "2000000",
			StorageRebate:           "500000",
			NonRefundableStorageFee: "10000",
		},
	}, nil
}

func session() *auth.Session {
	return (&auth.Session{User: auth.User{ID: "u-1"}}).WithWallet("0xsender", sui.Testnet)
}

func TestSimulateFailureKeepsExecuteDisabled(t *testing.T) {
	gw := &fakeGateway{simulate: func(block *sui.TransactionBlock) (*sui.SimulationResult, error) {
		return &sui.SimulationResult{Success: false, Errors: []string{"insufficient gas"}, Network: sui.Testnet}, nil
	}}
	txlog := &recordingLog{}
	o := NewOrchestrator("u-1", gw, nil, txlog)

	snap, err := o.Simulate(context.Background(), session(), "0xabc", "1", "")
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if snap.Intent.AmountMist != 1_000_000_000 {
		t.Fatalf("expected 1_000_000_000 MIST, got %d", snap.Intent.AmountMist)
	}
	recipient, amount, err := gw.simulated[0].TransferIntent()
	if err != nil || recipient != "0xabc" || amount != 1_000_000_000 {
		t.Fatalf("unexpected block intent %s %d %v", recipient, amount, err)
	}
	if snap.State != StateSimulated || snap.Succeeded() || snap.CanExecute {
		t.Fatalf("expected failed simulation without execute, got %+v", snap)
	}
	if snap.Error != "insufficient gas" {
		t.Fatalf("unexpected error %q", snap.Error)
	}

	if _, err := o.Execute(context.Background(), session()); !xerrors.HasCode(err, xerrors.CodeValidation) {
		t.Fatalf("expected execute to be rejected, got %v", err)
	}
	if len(gw.executed) != 0 {
		t.Fatal("signer must not be called after a failed simulation")
	}
	if len(txlog.entries) != 1 || txlog.entries[0].Status != history.TxFailed {
		t.Fatalf("unexpected tx logs %+v", txlog.entries)
	}
}

func TestSimulateThenExecuteUsesSameBlock(t *testing.T) {
	gw := &fakeGateway{simulate: succeed}
	txlog := &recordingLog{}
	o := NewOrchestrator("u-1", gw, nil, txlog)

	snap, err := o.Simulate(context.Background(), session(), "0xabc", "0.5", "")
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if !snap.CanExecute || snap.Simulation.GasEstimate.StorageRebate != "500000" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	snap, err = o.Execute(context.Background(), session())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if snap.State != StateExecuted || snap.Execution.Digest != "digest-1" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if len(gw.executed) != 1 || gw.executed[0] != gw.simulated[0] {
		t.Fatal("execute must reuse the simulated block")
	}
	if len(txlog.entries) != 2 {
		t.Fatalf("expected 2 tx logs, got %d", len(txlog.entries))
	}
	simLog, execLog := txlog.entries[0], txlog.entries[1]
	if simLog.Status != history.TxSimulated || simLog.GasUsed != 2_500_000 || !strings.HasPrefix(simLog.TxHash, "simulation-") {
		t.Fatalf("unexpected simulation log %+v", simLog)
	}
	if execLog.Status != history.TxExecuted || execLog.TxHash != "digest-1" || execLog.Details.Amount != "0.5" {
		t.Fatalf("unexpected execution log %+v", execLog)
	}

	if _, err := o.Execute(context.Background(), session()); !xerrors.HasCode(err, xerrors.CodeValidation) {
		t.Fatalf("second execute must require a new simulation, got %v", err)
	}
}

func TestExecuteRejectsChangedWallet(t *testing.T) {
	o := NewOrchestrator("u-1", &fakeGateway{simulate: succeed}, nil, nil)
	if _, err := o.Simulate(context.Background(), session(), "0xabc", "1", ""); err != nil {
		t.Fatalf("simulate: %v", err)
	}
	other := session().WithWallet("0xother", sui.Testnet)
	if _, err := o.Execute(context.Background(), other); !xerrors.HasCode(err, xerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSignerFailureMarksFailedAndAllowsResimulation(t *testing.T) {
	gw := &fakeGateway{simulate: succeed, execErr: xerrors.Network(errors.New("rejected"), "签名并提交交易失败")}
	o := NewOrchestrator("u-1", gw, nil, nil)

	if _, err := o.Simulate(context.Background(), session(), "0xabc", "1", ""); err != nil {
		t.Fatalf("simulate: %v", err)
	}
	snap, err := o.Execute(context.Background(), session())
	if !xerrors.HasCode(err, xerrors.CodeNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if snap.State != StateFailed || snap.CanExecute {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	snap, err = o.Simulate(context.Background(), session(), "0xabc", "1", "")
	if err != nil || snap.State != StateSimulated {
		t.Fatalf("re-simulation failed: %+v %v", snap, err)
	}
}

func TestTransportFailureKeepsPriorSuccessfulSimulation(t *testing.T) {
	gw := &fakeGateway{simulate: succeed}
	o := NewOrchestrator("u-1", gw, nil, nil)
	if _, err := o.Simulate(context.Background(), session(), "0xabc", "0.5", ""); err != nil {
		t.Fatalf("simulate: %v", err)
	}

	gw.simulate = func(*sui.TransactionBlock) (*sui.SimulationResult, error) {
		return nil, xerrors.Network(errors.New("connection refused"), "预执行失败")
	}
	snap, err := o.Simulate(context.Background(), session(), "0xdef", "2", "")
	if !xerrors.HasCode(err, xerrors.CodeNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if snap.State != StateSimulated || !snap.CanExecute || snap.Intent.Recipient != "0xabc" || snap.Intent.Amount != "0.5" {
		t.Fatalf("expected the earlier simulation to survive, got %+v", snap)
	}
	if snap.Error == "" {
		t.Fatal("transport error should be surfaced on the snapshot")
	}

	if _, err := o.Execute(context.Background(), session()); err != nil {
		t.Fatalf("execute after restored simulation: %v", err)
	}
	if len(gw.executed) != 1 || gw.executed[0] != gw.simulated[0] {
		t.Fatal("execute must sign the block of the surviving simulation")
	}
}

func TestTransportFailureReturnsToIdle(t *testing.T) {
	gw := &fakeGateway{simulate: func(*sui.TransactionBlock) (*sui.SimulationResult, error) {
		return nil, xerrors.Network(errors.New("connection refused"), "预执行失败")
	}}
	o := NewOrchestrator("u-1", gw, nil, nil)
	snap, err := o.Simulate(context.Background(), session(), "0xabc", "1", "")
	if !xerrors.HasCode(err, xerrors.CodeNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if snap.State != StateIdle || snap.Intent != nil {
		t.Fatalf("expected idle state, got %+v", snap)
	}
}

func TestSimulateValidatesBeforeAnyRequest(t *testing.T) {
	gw := &fakeGateway{simulate: succeed}
	o := NewOrchestrator("u-1", gw, nil, nil)
	cases := []struct {
		recipient, amount string
	}{
		{"", "1"},
		{"0xabc", ""},
		{"0xabc", "-2"},
		{"0xabc", "ten"},
	}
	for _, tc := range cases {
		if _, err := o.Simulate(context.Background(), session(), tc.recipient, tc.amount, ""); !xerrors.HasCode(err, xerrors.CodeValidation) {
			t.Fatalf("%+v: expected validation error, got %v", tc, err)
		}
	}
	noWallet := &auth.Session{User: auth.User{ID: "u-1"}}
	if _, err := o.Simulate(context.Background(), noWallet, "0xabc", "1", ""); !xerrors.HasCode(err, xerrors.CodeValidation) {
		t.Fatalf("expected validation error without wallet, got %v", err)
	}
	if len(gw.simulated) != 0 {
		t.Fatalf("gateway called %d times", len(gw.simulated))
	}
}

func TestBusyGuardRejectsOverlappingActions(t *testing.T) {
	gw := &fakeGateway{
		simulate:   succeed,
		blockSimCh: make(chan struct{}),
		releaseSim: make(chan struct{}),
	}
	o := NewOrchestrator("u-1", gw, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := o.Simulate(context.Background(), session(), "0xabc", "1", "")
		done <- err
	}()
	<-gw.blockSimCh

	if snap := o.Snapshot(); snap.State != StateSimulating {
		t.Fatalf("expected simulating state, got %s", snap.State)
	}
	if _, err := o.Simulate(context.Background(), session(), "0xabc", "2", ""); !xerrors.HasCode(err, xerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := o.Execute(context.Background(), session()); !xerrors.HasCode(err, xerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := o.Reset(); !xerrors.HasCode(err, xerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	close(gw.releaseSim)
	if err := <-done; err != nil {
		t.Fatalf("simulate: %v", err)
	}
	snap, err := o.Reset()
	if err != nil || snap.State != StateIdle {
		t.Fatalf("reset failed: %+v %v", snap, err)
	}
}

func TestRegistryKeepsOneOrchestratorPerUser(t *testing.T) {
	r := NewRegistry(&fakeGateway{simulate: succeed}, nil, nil)
	a, b := r.For("u-1"), r.For("u-1")
	if a != b {
		t.Fatal("expected the same orchestrator for the same user")
	}
	if r.For("u-2") == a {
		t.Fatal("users must not share orchestrators")
	}
	r.Forget("u-1")
	if r.For("u-1") == a {
		t.Fatal("expected a fresh orchestrator after Forget")
	}
}
