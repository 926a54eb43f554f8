package sui

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	gethrpc "github.com/ethereum/go-ethereum/rpc"

	xerrors "SuiCoPilot/internal/errors"
)

const (
	defaultGasBudget = 10_000_000
	coinPageSize     = 50
)

// Gateway is the chain-facing half of the assistant: wallet reads, dry runs
// and signed execution, each bound to one network.
type Gateway struct {
	registry  *Registry
	gasBudget uint64
}

// GatewayOption customises a Gateway.
type GatewayOption func(*Gateway)

// WithGasBudget overrides the default gas budget in MIST.
func WithGasBudget(budget uint64) GatewayOption {
	return func(g *Gateway) {
		if budget > 0 {
			g.gasBudget = budget
		}
	}
}

// NewGateway creates a gateway over registry.
func NewGateway(registry *Registry, opts ...GatewayOption) *Gateway {
	g := &Gateway{registry: registry, gasBudget: defaultGasBudget}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Registry exposes the network registry.
func (g *Gateway) Registry() *Registry { return g.registry }

// WalletInfo fetches the wallet aggregate of address on network.
func (g *Gateway) WalletInfo(ctx context.Context, address, network string, opts WalletOptions) (*WalletInfo, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, xerrors.Validation("Wallet address is required")
	}
	client, err := g.registry.Client(ctx, network)
	if err != nil {
		return nil, err
	}
	info, err := client.GetWalletInfo(ctx, address, opts)
	if err != nil {
		return nil, xerrors.Network(err, "获取钱包信息失败",
			xerrors.WithMetadata("network", client.Network()),
			xerrors.WithMetadata("address", address))
	}
	return info, nil
}

// Simulate dry-runs block for sender on network. The node bytes built for
// the dry run are kept on the block so Execute submits exactly what was
// simulated. Node-side rejections produce a failed result; transport
// problems produce a NETWORK error.
func (g *Gateway) Simulate(ctx context.Context, block *TransactionBlock, sender, network string) (*SimulationResult, error) {
	sender = strings.TrimSpace(sender)
	if block == nil || sender == "" {
		return nil, xerrors.Validation("Transaction block data and sender address are required")
	}
	client, err := g.registry.Client(ctx, network)
	if err != nil {
		return nil, err
	}
	network = client.Network()

	block.SetSender(sender)
	if block.GasConfig.Budget == "" {
		block.SetGasBudget(g.gasBudget)
	}

	txBytes, ok := block.Built(network)
	if !ok {
		built, failure, err := g.build(ctx, client, block, sender)
		if err != nil {
			return nil, err
		}
		if failure != nil {
			return failure, nil
		}
		txBytes = built
	}

	dry, raw, err := client.DryRun(ctx, txBytes)
	if err != nil {
		if msg, rejected := nodeRejection(err); rejected {
			return failedSimulation(network, msg), nil
		}
		return nil, xerrors.Network(err, "预执行交易失败", xerrors.WithMetadata("network", network))
	}

	var effects Effects
	if len(dry.Effects) > 0 {
		if err := json.Unmarshal(dry.Effects, &effects); err != nil {
			return nil, xerrors.Network(err, "解析交易效果失败", xerrors.WithMetadata("network", network))
		}
	}
	var errs []string
	if effects.Status.Status != "success" {
		msg := effects.Status.Error
		if msg == "" {
			msg = "transaction status: " + effects.Status.Status
		}
		errs = append(errs, msg)
	}
	return &SimulationResult{
		Success:     len(errs) == 0,
		GasEstimate: effects.GasUsed,
		Effects:     dry.Effects,
		Result:      raw,
		Errors:      errs,
		Network:     network,
	}, nil
}

func (g *Gateway) build(ctx context.Context, client *Client, block *TransactionBlock, sender string) (string, *SimulationResult, error) {
	recipient, amount, err := block.TransferIntent()
	if err != nil {
		return "", nil, xerrors.Wrap(xerrors.CodeValidation, err, err.Error())
	}
	coins, err := client.GetCoins(ctx, sender, SUICoinType, coinPageSize)
	if err != nil {
		if msg, rejected := nodeRejection(err); rejected {
			return "", failedSimulation(client.Network(), msg), nil
		}
		return "", nil, xerrors.Network(err, "查询 SUI 代币失败", xerrors.WithMetadata("network", client.Network()))
	}
	if len(coins.Data) == 0 {
		return "", failedSimulation(client.Network(), "sender owns no SUI coins to pay for gas"), nil
	}
	ids := make([]string, 0, len(coins.Data))
	for _, c := range coins.Data {
		ids = append(ids, c.CoinObjectID)
	}
	budget, err := strconv.ParseUint(block.GasConfig.Budget, 10, 64)
	if err != nil || budget == 0 {
		budget = g.gasBudget
	}
	tx, err := client.PaySUI(ctx, sender, ids, []string{recipient}, []uint64{amount}, budget)
	if err != nil {
		if msg, rejected := nodeRejection(err); rejected {
			return "", failedSimulation(client.Network(), msg), nil
		}
		return "", nil, xerrors.Network(err, "构建交易失败", xerrors.WithMetadata("network", client.Network()))
	}
	block.setBuilt(client.Network(), tx.TxBytes)
	return tx.TxBytes, nil, nil
}

// Execute hands the bytes previously built for block to signer.
func (g *Gateway) Execute(ctx context.Context, signer Signer, block *TransactionBlock, network string) (*ExecutionResult, error) {
	if signer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置钱包签名服务")
	}
	name, err := g.registry.Resolve(network)
	if err != nil {
		return nil, err
	}
	txBytes, ok := block.Built(name)
	if !ok {
		return nil, xerrors.Validation("transaction must be simulated before execution")
	}
	serialized, err := block.Serialize()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUnknown, err, "序列化交易块失败")
	}
	res, err := signer.SignAndExecute(ctx, SignRequest{
		TxBytes:     txBytes,
		Sender:      block.Sender,
		Network:     name,
		Transaction: serialized,
	})
	if err != nil {
		if xerrors.CodeOf(err) != xerrors.CodeUnknown {
			return nil, err
		}
		return nil, xerrors.Network(err, "签名并提交交易失败", xerrors.WithMetadata("network", name))
	}
	return res, nil
}

func failedSimulation(network, msg string) *SimulationResult {
	return &SimulationResult{Success: false, Errors: []string{msg}, Network: network}
}

// nodeRejection reports whether err is a JSON-RPC error object returned by
// the node, as opposed to a transport failure.
func nodeRejection(err error) (string, bool) {
	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Error(), true
	}
	return "", false
}
