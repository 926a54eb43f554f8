package sui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"SuiCoPilot/internal/observability/metrics"
)

const (
	ownedObjectsPageSize = 50
	recentTxLimit        = 10
)

// Client speaks Sui JSON-RPC 2.0 to one fullnode.
type Client struct {
	network string
	rpc     *gethrpc.Client
	mu      sync.Mutex
}

// Dial connects to the fullnode at url.
func Dial(ctx context.Context, network, url string) (*Client, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("未配置 Sui RPC 地址")
	}
	rpc, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("连接 Sui 节点失败: %w", err)
	}
	return &Client{network: network, rpc: rpc}, nil
}

// NewClient wraps an existing RPC client, typically an in-process one.
func NewClient(network string, rpc *gethrpc.Client) *Client {
	return &Client{network: network, rpc: rpc}
}

// Network returns the network the client is bound to.
func (c *Client) Network() string { return c.network }

// Close releases the underlying connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpc != nil {
		c.rpc.Close()
		c.rpc = nil
	}
}

func (c *Client) conn() (*gethrpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpc == nil {
		return nil, errors.New("Sui 客户端已关闭")
	}
	return c.rpc, nil
}

func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	rpc, err := c.conn()
	if err != nil {
		return err
	}
	start := time.Now()
	err = rpc.CallContext(ctx, result, method, args...)
	metrics.ObserveRPC(c.network, method, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// GetBalance returns the SUI balance of owner.
func (c *Client) GetBalance(ctx context.Context, owner string) (*Balance, error) {
	var out Balance
	if err := c.call(ctx, &out, "suix_getBalance", owner, SUICoinType); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOwnedObjects returns the first page of objects owned by owner.
func (c *Client) GetOwnedObjects(ctx context.Context, owner string, limit int) (*ObjectPage, error) {
	var out ObjectPage
	if err := c.call(ctx, &out, "suix_getOwnedObjects", owner, ownedObjectsQuery(), nil, limit); err != nil {
		return nil, err
	}
	return &out, nil
}

// QueryTransactionsFrom returns the most recent transactions sent by address.
func (c *Client) QueryTransactionsFrom(ctx context.Context, address string, limit int) (*TransactionPage, error) {
	var out TransactionPage
	if err := c.call(ctx, &out, "suix_queryTransactionBlocks", fromAddressQuery(address), nil, limit, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCoinMetadata returns metadata for coinType.
func (c *Client) GetCoinMetadata(ctx context.Context, coinType string) (*CoinMetadata, error) {
	var out *CoinMetadata
	if err := c.call(ctx, &out, "suix_getCoinMetadata", coinType); err != nil {
		return nil, err
	}
	return out, nil
}

// GetCoins returns one page of coins of coinType owned by owner.
func (c *Client) GetCoins(ctx context.Context, owner, coinType string, limit int) (*CoinPage, error) {
	var out CoinPage
	if err := c.call(ctx, &out, "suix_getCoins", owner, coinType, nil, limit); err != nil {
		return nil, err
	}
	return &out, nil
}

// PaySUI asks the node to build an unsigned PaySui transaction.
func (c *Client) PaySUI(ctx context.Context, signer string, coins, recipients []string, amounts []uint64, gasBudget uint64) (*TransactionBytes, error) {
	amountArgs := make([]string, len(amounts))
	for i, a := range amounts {
		amountArgs[i] = strconv.FormatUint(a, 10)
	}
	var out TransactionBytes
	if err := c.call(ctx, &out, "unsafe_paySui", signer, coins, recipients, amountArgs, strconv.FormatUint(gasBudget, 10)); err != nil {
		return nil, err
	}
	if out.TxBytes == "" {
		return nil, errors.New("unsafe_paySui: 节点未返回交易字节")
	}
	return &out, nil
}

// DryRun executes txBytes without committing it.
func (c *Client) DryRun(ctx context.Context, txBytes string) (*DryRunResponse, json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.call(ctx, &raw, "sui_dryRunTransactionBlock", txBytes); err != nil {
		return nil, nil, err
	}
	var out DryRunResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, nil, fmt.Errorf("解析预执行结果失败: %w", err)
	}
	return &out, raw, nil
}

// GetWalletInfo fetches balance, owned objects and optionally recent
// transactions and coin metadata in a single batch request.
func (c *Client) GetWalletInfo(ctx context.Context, address string, opts WalletOptions) (*WalletInfo, error) {
	rpc, err := c.conn()
	if err != nil {
		return nil, err
	}

	var (
		balance  Balance
		objects  ObjectPage
		txs      TransactionPage
		metadata *CoinMetadata
	)
	batch := []gethrpc.BatchElem{
		{Method: "suix_getBalance", Args: []any{address, SUICoinType}, Result: &balance},
		{Method: "suix_getOwnedObjects", Args: []any{address, ownedObjectsQuery(), nil, ownedObjectsPageSize}, Result: &objects},
	}
	if opts.IncludeTransactions {
		batch = append(batch, gethrpc.BatchElem{
			Method: "suix_queryTransactionBlocks",
			Args:   []any{fromAddressQuery(address), nil, recentTxLimit, true},
			Result: &txs,
		})
	}
	if opts.IncludeCoinMetadata {
		batch = append(batch, gethrpc.BatchElem{
			Method: "suix_getCoinMetadata",
			Args:   []any{SUICoinType},
			Result: &metadata,
		})
	}

	start := time.Now()
	err = rpc.BatchCallContext(ctx, batch)
	metrics.ObserveRPC(c.network, "batch", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("批量查询钱包信息失败: %w", err)
	}
	for _, elem := range batch {
		if elem.Error != nil {
			return nil, fmt.Errorf("%s: %w", elem.Method, elem.Error)
		}
	}

	info := &WalletInfo{
		Address:      address,
		Network:      c.network,
		Balance:      balance,
		Objects:      objects.Data,
		CoinMetadata: metadata,
		FetchedAt:    time.Now().UTC(),
	}
	if info.Objects == nil {
		info.Objects = []OwnedObject{}
	}
	if opts.IncludeTransactions {
		info.Transactions = txs.Data
		if info.Transactions == nil {
			info.Transactions = []TransactionSummary{}
		}
	}
	return info, nil
}

func ownedObjectsQuery() map[string]any {
	return map[string]any{
		"options": map[string]bool{
			"showType":    true,
			"showDisplay": true,
		},
	}
}

func fromAddressQuery(address string) map[string]any {
	return map[string]any{
		"filter": map[string]string{"FromAddress": address},
		"options": map[string]bool{
			"showEffects": true,
			"showInput":   true,
		},
	}
}
