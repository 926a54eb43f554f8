package sui

import (
	"encoding/json"
	"time"
)

// SUICoinType is the fully qualified type of the native coin.
const SUICoinType = "0x2::sui::SUI"

// Balance mirrors the suix_getBalance result.
type Balance struct {
	CoinType        string `json:"coinType"`
	CoinObjectCount int    `json:"coinObjectCount"`
	TotalBalance    string `json:"totalBalance"`
}

// ObjectData is the subset of object fields requested from the node.
type ObjectData struct {
	ObjectID string          `json:"objectId"`
	Version  string          `json:"version"`
	Digest   string          `json:"digest"`
	Type     string          `json:"type,omitempty"`
	Display  json.RawMessage `json:"display,omitempty"`
}

// OwnedObject is one entry of suix_getOwnedObjects.
type OwnedObject struct {
	Data  *ObjectData     `json:"data,omitempty"`
	Error json.RawMessage `json:"error,omitempty"`
}

// ObjectPage is a page of owned objects.
type ObjectPage struct {
	Data        []OwnedObject   `json:"data"`
	NextCursor  json.RawMessage `json:"nextCursor,omitempty"`
	HasNextPage bool            `json:"hasNextPage"`
}

// TransactionSummary is one entry of suix_queryTransactionBlocks.
type TransactionSummary struct {
	Digest      string          `json:"digest"`
	TimestampMs string          `json:"timestampMs,omitempty"`
	Checkpoint  string          `json:"checkpoint,omitempty"`
	Effects     json.RawMessage `json:"effects,omitempty"`
}

// TransactionPage is a page of transaction summaries.
type TransactionPage struct {
	Data        []TransactionSummary `json:"data"`
	NextCursor  json.RawMessage      `json:"nextCursor,omitempty"`
	HasNextPage bool                 `json:"hasNextPage"`
}

// CoinMetadata mirrors suix_getCoinMetadata.
type CoinMetadata struct {
	Decimals    int     `json:"decimals"`
	Name        string  `json:"name"`
	Symbol      string  `json:"symbol"`
	Description string  `json:"description"`
	IconURL     *string `json:"iconUrl"`
	ID          *string `json:"id"`
}

// Coin is one coin object returned by suix_getCoins.
type Coin struct {
	CoinType     string `json:"coinType"`
	CoinObjectID string `json:"coinObjectId"`
	Version      string `json:"version"`
	Digest       string `json:"digest"`
	Balance      string `json:"balance"`
}

// CoinPage is a page of coins.
type CoinPage struct {
	Data        []Coin          `json:"data"`
	NextCursor  json.RawMessage `json:"nextCursor,omitempty"`
	HasNextPage bool            `json:"hasNextPage"`
}

// TransactionBytes is the unsigned transaction produced by the node builders.
type TransactionBytes struct {
	TxBytes      string          `json:"txBytes"`
	Gas          json.RawMessage `json:"gas,omitempty"`
	InputObjects json.RawMessage `json:"inputObjects,omitempty"`
}

// GasCostSummary carries the gas fields of transaction effects verbatim.
type GasCostSummary struct {
	ComputationCost         string `json:"computationCost"`
	StorageCost             string `json:"storageCost"`
	StorageRebate           string `json:"storageRebate"`
	NonRefundableStorageFee string `json:"nonRefundableStorageFee"`
}

// ExecutionStatus reports whether the effects succeeded.
type ExecutionStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Effects is the subset of transaction effects the gateway interprets.
type Effects struct {
	Status  ExecutionStatus `json:"status"`
	GasUsed GasCostSummary  `json:"gasUsed"`
}

// DryRunResponse keeps every dry-run section raw except the effects.
type DryRunResponse struct {
	Effects        json.RawMessage `json:"effects"`
	Events         json.RawMessage `json:"events,omitempty"`
	ObjectChanges  json.RawMessage `json:"objectChanges,omitempty"`
	BalanceChanges json.RawMessage `json:"balanceChanges,omitempty"`
	Input          json.RawMessage `json:"input,omitempty"`
}

// SimulationResult is the outcome of one dry run.
type SimulationResult struct {
	Success     bool            `json:"success"`
	GasEstimate GasCostSummary  `json:"gasEstimation"`
	Effects     json.RawMessage `json:"effects,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Errors      []string        `json:"errors,omitempty"`
	Network     string          `json:"network"`
}

// GasUsed returns computation + storage - rebate in MIST, or zero when the
// fields are not numeric.
func (r *SimulationResult) GasUsed() int64 {
	if r == nil {
		return 0
	}
	return netGas(r.GasEstimate)
}

// WalletInfo is the aggregate returned by GetWalletInfo.
type WalletInfo struct {
	Address      string               `json:"address"`
	Network      string               `json:"network"`
	Balance      Balance              `json:"balance"`
	Objects      []OwnedObject        `json:"objects"`
	Transactions []TransactionSummary `json:"transactions,omitempty"`
	CoinMetadata *CoinMetadata        `json:"coinMetadata,omitempty"`
	FetchedAt    time.Time            `json:"fetchedAt"`
}

// WalletOptions selects the optional parts of a wallet fetch.
type WalletOptions struct {
	IncludeTransactions bool
	IncludeCoinMetadata bool
}

// ExecutionResult is returned by a signer after submitting a transaction.
type ExecutionResult struct {
	Digest  string          `json:"digest"`
	Effects json.RawMessage `json:"effects,omitempty"`
}
