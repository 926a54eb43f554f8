package txflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"SuiCoPilot/internal/auth"
	xerrors "SuiCoPilot/internal/errors"
	"SuiCoPilot/internal/history"
	"SuiCoPilot/internal/sui"
	"SuiCoPilot/pkg/logger"
)

// Gateway 是编排器依赖的链上网关，*sui.Gateway 满足该接口。
type Gateway interface {
	Simulate(ctx context.Context, block *sui.TransactionBlock, sender, network string) (*sui.SimulationResult, error)
	Execute(ctx context.Context, signer sui.Signer, block *sui.TransactionBlock, network string) (*sui.ExecutionResult, error)
}

// TransactionLogger 记录交易日志，*history.Service 满足该接口。
type TransactionLogger interface {
	LogTransaction(ctx context.Context, entry history.TransactionLog)
}

// ErrBusy 在已有预执行或执行进行中时返回。
var ErrBusy = xerrors.New(xerrors.CodeConflict, "A transaction request is already in progress")

// Orchestrator 管理单个用户的转账状态机：
// Idle → Simulating → Simulated(success|failure) → Executing → Executed|Failed。
type Orchestrator struct {
	userID  string
	gateway Gateway
	signer  sui.Signer
	txlog   TransactionLogger
	logger  *slog.Logger
	now     func() time.Time

	mu         sync.Mutex
	state      State
	intent     *Intent
	block      *sui.TransactionBlock
	simulation *sui.SimulationResult
	execution  *sui.ExecutionResult
	lastErr    string
	updatedAt  time.Time
}

// NewOrchestrator 创建处于 Idle 状态的编排器。txlog 可以为 nil。
func NewOrchestrator(userID string, gateway Gateway, signer sui.Signer, txlog TransactionLogger) *Orchestrator {
	return &Orchestrator{
		userID:  userID,
		gateway: gateway,
		signer:  signer,
		txlog:   txlog,
		logger:  logger.Named("txflow"),
		now:     time.Now,
		state:   StateIdle,
	}
}

// Simulate 校验输入、构建转账交易块并发起预执行。
// 传输失败时恢复到发起前的状态并返回错误；节点返回的失败进入 Simulated(failure)。
func (o *Orchestrator) Simulate(ctx context.Context, session *auth.Session, recipient, amount, network string) (Snapshot, error) {
	if session == nil {
		return o.Snapshot(), auth.ErrMissingToken
	}
	recipient = strings.TrimSpace(recipient)
	amount = strings.TrimSpace(amount)
	if recipient == "" || amount == "" {
		return o.Snapshot(), xerrors.Validation("Please enter recipient address and amount")
	}
	mist, err := ParseAmount(amount)
	if err != nil {
		return o.Snapshot(), err
	}
	sender := strings.TrimSpace(session.Wallet.Address)
	if sender == "" {
		return o.Snapshot(), xerrors.Validation("Please connect your wallet first")
	}
	if strings.TrimSpace(network) == "" {
		network = session.Wallet.Network
	}

	intent := &Intent{Recipient: recipient, Amount: amount, AmountMist: mist, Sender: sender, Network: network}
	block := sui.NewTransferBlock(recipient, mist)
	var prior checkpoint
	if err := o.begin(StateSimulating, func() error {
		prior = o.checkpoint()
		return nil
	}); err != nil {
		return o.Snapshot(), err
	}

	result, err := o.gateway.Simulate(ctx, block, sender, network)

	o.mu.Lock()
	if err != nil {
		o.restore(prior, err.Error())
		o.mu.Unlock()
		o.logger.Warn("交易预执行失败", slog.String("user_id", o.userID), slog.Any("error", err))
		return o.Snapshot(), err
	}
	if result.Network != "" {
		intent.Network = result.Network
	}
	o.state = StateSimulated
	o.intent = intent
	o.block = block
	o.simulation = result
	o.execution = nil
	o.lastErr = strings.Join(result.Errors, "; ")
	o.updatedAt = o.now()
	o.mu.Unlock()

	status := history.TxSimulated
	if !result.Success {
		status = history.TxFailed
	}
	o.record(ctx, status, fmt.Sprintf("simulation-%d", o.now().UnixMilli()), result.GasUsed(), intent, result)
	return o.Snapshot(), nil
}

// Execute 将预执行成功的同一交易块交给钱包签名并提交。
func (o *Orchestrator) Execute(ctx context.Context, session *auth.Session) (Snapshot, error) {
	if session == nil {
		return o.Snapshot(), auth.ErrMissingToken
	}
	var (
		block  *sui.TransactionBlock
		intent Intent
		gas    int64
	)
	err := o.begin(StateExecuting, func() error {
		if o.state != StateSimulated || o.simulation == nil || !o.simulation.Success || o.block == nil {
			return xerrors.Validation("Run a successful simulation before executing the transaction")
		}
		if !strings.EqualFold(strings.TrimSpace(session.Wallet.Address), o.intent.Sender) {
			return xerrors.Validation("Connected wallet changed since the simulation, please simulate again")
		}
		block = o.block
		intent = *o.intent
		gas = o.simulation.GasUsed()
		return nil
	})
	if err != nil {
		return o.Snapshot(), err
	}

	result, err := o.gateway.Execute(ctx, o.signer, block, intent.Network)

	o.mu.Lock()
	o.updatedAt = o.now()
	if err != nil {
		o.state = StateFailed
		o.lastErr = err.Error()
		o.mu.Unlock()
		o.logger.Warn("交易执行失败", slog.String("user_id", o.userID), slog.Any("error", err))
		o.record(ctx, history.TxFailed, "", gas, &intent, map[string]string{"error": err.Error()})
		return o.Snapshot(), err
	}
	o.state = StateExecuted
	o.execution = result
	o.lastErr = ""
	o.mu.Unlock()

	o.record(ctx, history.TxExecuted, result.Digest, gas, &intent, result)
	return o.Snapshot(), nil
}

// Reset 清空当前意图回到 Idle。
func (o *Orchestrator) Reset() (Snapshot, error) {
	o.mu.Lock()
	if o.state.Busy() {
		o.mu.Unlock()
		return o.Snapshot(), ErrBusy
	}
	o.reset("")
	o.mu.Unlock()
	return o.Snapshot(), nil
}

// Snapshot 返回当前状态。
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	snap := Snapshot{
		State:      o.state,
		Simulation: o.simulation,
		Execution:  o.execution,
		Error:      o.lastErr,
		UpdatedAt:  o.updatedAt,
	}
	if o.intent != nil {
		intent := *o.intent
		snap.Intent = &intent
	}
	snap.CanExecute = o.state == StateSimulated && snap.Succeeded()
	return snap
}

// begin 在没有进行中的请求时切换到 next。check 在持锁状态下执行。
func (o *Orchestrator) begin(next State, check func() error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Busy() {
		return ErrBusy
	}
	if check != nil {
		if err := check(); err != nil {
			return err
		}
	}
	o.state = next
	o.updatedAt = o.now()
	return nil
}

// checkpoint 是一次请求发起前的稳定状态。
type checkpoint struct {
	state      State
	intent     *Intent
	block      *sui.TransactionBlock
	simulation *sui.SimulationResult
	execution  *sui.ExecutionResult
}

// checkpoint 需持有 o.mu。
func (o *Orchestrator) checkpoint() checkpoint {
	return checkpoint{
		state:      o.state,
		intent:     o.intent,
		block:      o.block,
		simulation: o.simulation,
		execution:  o.execution,
	}
}

// restore 需持有 o.mu。
func (o *Orchestrator) restore(c checkpoint, lastErr string) {
	o.state = c.state
	o.intent = c.intent
	o.block = c.block
	o.simulation = c.simulation
	o.execution = c.execution
	o.lastErr = lastErr
	o.updatedAt = o.now()
}

// reset 需持有 o.mu。
func (o *Orchestrator) reset(lastErr string) {
	o.state = StateIdle
	o.intent = nil
	o.block = nil
	o.simulation = nil
	o.execution = nil
	o.lastErr = lastErr
	o.updatedAt = o.now()
}

func (o *Orchestrator) record(ctx context.Context, status history.TxStatus, hash string, gas int64, intent *Intent, result any) {
	if o.txlog == nil {
		return
	}
	raw, _ := json.Marshal(result)
	o.txlog.LogTransaction(ctx, history.TransactionLog{
		UserID:  o.userID,
		Status:  status,
		TxHash:  hash,
		GasUsed: gas,
		Details: history.TransactionDetails{
			Type:      "transfer",
			Network:   intent.Network,
			Recipient: intent.Recipient,
			Amount:    intent.Amount,
			Result:    raw,
		},
	})
}
