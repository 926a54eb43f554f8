package txflow

import (
	"time"

	"SuiCoPilot/internal/sui"
)

// State 是转账面板的状态。
type State string

const (
	StateIdle       State = "idle"
	StateSimulating State = "simulating"
	StateSimulated  State = "simulated"
	StateExecuting  State = "executing"
	StateExecuted   State = "executed"
	StateFailed     State = "failed"
)

// Busy 表示有请求正在进行。
func (s State) Busy() bool {
	return s == StateSimulating || s == StateExecuting
}

// Intent 是一次转账意图，预执行与执行必须针对同一意图。
type Intent struct {
	Recipient  string `json:"recipient"`
	Amount     string `json:"amount"`
	AmountMist uint64 `json:"amountMist"`
	Sender     string `json:"sender"`
	Network    string `json:"network"`
}

// Snapshot 是编排器对外暴露的只读视图。
type Snapshot struct {
	State      State                 `json:"state"`
	Intent     *Intent               `json:"intent,omitempty"`
	Simulation *sui.SimulationResult `json:"simulation,omitempty"`
	Execution  *sui.ExecutionResult  `json:"execution,omitempty"`
	CanExecute bool                  `json:"canExecute"`
	Error      string                `json:"error,omitempty"`
	UpdatedAt  time.Time             `json:"updatedAt"`
}

// Succeeded 判断预执行是否成功。
func (s Snapshot) Succeeded() bool {
	return s.Simulation != nil && s.Simulation.Success
}
