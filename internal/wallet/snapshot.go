package wallet

import (
	"time"

	"SuiCoPilot/internal/notify"
	"SuiCoPilot/internal/sui"
)

// Snapshot 是钱包面板在某个网络上的完整视图。
type Snapshot struct {
	Address          string                   `json:"address"`
	Network          string                   `json:"network"`
	Balance          sui.Balance              `json:"balance"`
	FormattedBalance string                   `json:"formattedBalance"`
	Objects          []sui.OwnedObject        `json:"ownedObjects"`
	Transactions     []sui.TransactionSummary `json:"recentTransactions"`
	CoinMetadata     *sui.CoinMetadata        `json:"coinMetadata,omitempty"`
	ExplorerURL      string                   `json:"explorerUrl,omitempty"`
	FetchedAt        time.Time                `json:"fetchedAt"`
}

// Result 是一次刷新的结果。Toast 非空表示刷新失败并退化为空快照。
type Result struct {
	Snapshot Snapshot      `json:"snapshot"`
	Toast    *notify.Toast `json:"toast,omitempty"`
	Cached   bool          `json:"cached"`
}

// Empty 返回 network 上的空快照。
func Empty(address, network string) Snapshot {
	return Snapshot{
		Address:          address,
		Network:          network,
		Balance:          sui.Balance{CoinType: sui.SUICoinType, TotalBalance: "0"},
		FormattedBalance: sui.FormatBalance("0"),
		Objects:          []sui.OwnedObject{},
		Transactions:     []sui.TransactionSummary{},
	}
}

func fromWalletInfo(info *sui.WalletInfo) Snapshot {
	snap := Snapshot{
		Address:          info.Address,
		Network:          info.Network,
		Balance:          info.Balance,
		FormattedBalance: sui.FormatBalance(info.Balance.TotalBalance),
		Objects:          info.Objects,
		Transactions:     info.Transactions,
		CoinMetadata:     info.CoinMetadata,
		FetchedAt:        info.FetchedAt,
	}
	if snap.Objects == nil {
		snap.Objects = []sui.OwnedObject{}
	}
	if snap.Transactions == nil {
		snap.Transactions = []sui.TransactionSummary{}
	}
	return snap
}

// Excerpt 是放入 AI 上下文的钱包摘要。
type Excerpt struct {
	Address          string `json:"address"`
	Network          string `json:"network"`
	Balance          string `json:"balance"`
	ObjectCount      int    `json:"objectCount"`
	TransactionCount int    `json:"recentTransactionCount"`
}

// Excerpt 生成快照摘要，地址为空时返回 nil。
func (s Snapshot) Excerpt() *Excerpt {
	if s.Address == "" {
		return nil
	}
	return &Excerpt{
		Address:          s.Address,
		Network:          s.Network,
		Balance:          s.FormattedBalance,
		ObjectCount:      len(s.Objects),
		TransactionCount: len(s.Transactions),
	}
}
