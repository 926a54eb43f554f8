package txflow

import (
	"sync"

	"SuiCoPilot/internal/sui"
)

// Registry 为每个用户保存一个编排器。
type Registry struct {
	gateway Gateway
	signer  sui.Signer
	txlog   TransactionLogger

	mu            sync.Mutex
	orchestrators map[string]*Orchestrator
}

// NewRegistry 创建 Registry。
func NewRegistry(gateway Gateway, signer sui.Signer, txlog TransactionLogger) *Registry {
	return &Registry{
		gateway:       gateway,
		signer:        signer,
		txlog:         txlog,
		orchestrators: make(map[string]*Orchestrator),
	}
}

// For 返回 userID 的编排器，不存在时创建。
func (r *Registry) For(userID string) *Orchestrator {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orchestrators[userID]; ok {
		return o
	}
	o := NewOrchestrator(userID, r.gateway, r.signer, r.txlog)
	r.orchestrators[userID] = o
	return o
}

// Forget 在用户登出时丢弃其编排器。
func (r *Registry) Forget(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.orchestrators, userID)
}
