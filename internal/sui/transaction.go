package sui

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	xerrors "SuiCoPilot/internal/errors"
)

// Argument kinds understood by the programmable transaction builder.
const (
	ArgGasCoin      = "GasCoin"
	ArgInput        = "Input"
	ArgResult       = "Result"
	ArgNestedResult = "NestedResult"
)

// Command kinds.
const (
	CommandSplitCoins      = "SplitCoins"
	CommandTransferObjects = "TransferObjects"
)

// Pure value types.
const (
	PureU64     = "u64"
	PureAddress = "address"
)

// Argument references the gas coin, an input or the result of a command.
type Argument struct {
	Kind        string  `json:"kind"`
	Index       *uint16 `json:"index,omitempty"`
	ResultIndex *uint16 `json:"resultIndex,omitempty"`
}

// GasCoin references the coin paying for gas.
func GasCoin() Argument { return Argument{Kind: ArgGasCoin} }

// InputArg references the i-th input.
func InputArg(i uint16) Argument { return Argument{Kind: ArgInput, Index: &i} }

// ResultArg references the result of the i-th command.
func ResultArg(i uint16) Argument { return Argument{Kind: ArgResult, Index: &i} }

// NestedResultArg references element j of the result of command i.
func NestedResultArg(i, j uint16) Argument {
	return Argument{Kind: ArgNestedResult, Index: &i, ResultIndex: &j}
}

// Input is a pure input value.
type Input struct {
	Kind      string `json:"kind"`
	Index     uint16 `json:"index"`
	Type      string `json:"type"`
	ValueType string `json:"valueType"`
	Value     string `json:"value"`
}

// Command is one step of a programmable transaction.
type Command struct {
	Kind    string     `json:"kind"`
	Coin    *Argument  `json:"coin,omitempty"`
	Amounts []Argument `json:"amounts,omitempty"`
	Objects []Argument `json:"objects,omitempty"`
	Address *Argument  `json:"address,omitempty"`
}

// GasConfig carries the optional gas budget.
type GasConfig struct {
	Budget string `json:"budget,omitempty"`
}

// TransactionBlock is a serializable programmable transaction. Once built
// into node bytes for a sender and network the bytes are kept, so the same
// block can be dry-run and later signed without being rebuilt.
type TransactionBlock struct {
	Version   int       `json:"version"`
	Sender    string    `json:"sender,omitempty"`
	GasConfig GasConfig `json:"gasConfig"`
	Inputs    []Input   `json:"inputs"`
	Commands  []Command `json:"transactions"`

	mu       sync.Mutex
	txBytes  string
	builtFor string
}

// NewTransferBlock builds SplitCoins(GasCoin, [amount]) followed by
// TransferObjects([Result(0)], recipient).
func NewTransferBlock(recipient string, amount uint64) *TransactionBlock {
	amt := InputArg(0)
	to := InputArg(1)
	gas := GasCoin()
	return &TransactionBlock{
		Version: 1,
		Inputs: []Input{
			{Kind: ArgInput, Index: 0, Type: "pure", ValueType: PureU64, Value: strconv.FormatUint(amount, 10)},
			{Kind: ArgInput, Index: 1, Type: "pure", ValueType: PureAddress, Value: recipient},
		},
		Commands: []Command{
			{Kind: CommandSplitCoins, Coin: &gas, Amounts: []Argument{amt}},
			{Kind: CommandTransferObjects, Objects: []Argument{ResultArg(0)}, Address: &to},
		},
	}
}

// ParseTransactionBlock decodes a serialized block.
func ParseTransactionBlock(data []byte) (*TransactionBlock, error) {
	var b TransactionBlock
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeValidation, err, "Invalid transaction block")
	}
	if len(b.Commands) == 0 {
		return nil, xerrors.Validation("Transaction block has no commands")
	}
	return &b, nil
}

// Serialize encodes the block as JSON.
func (b *TransactionBlock) Serialize() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return json.Marshal(b)
}

// SetSender assigns the sender. Changing the sender discards built bytes.
func (b *TransactionBlock) SetSender(sender string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Sender != sender {
		b.txBytes = ""
		b.builtFor = ""
	}
	b.Sender = sender
}

// SetGasBudget assigns the gas budget in MIST.
func (b *TransactionBlock) SetGasBudget(budget uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.GasConfig.Budget = strconv.FormatUint(budget, 10)
}

// Built returns the node bytes previously built for network.
func (b *TransactionBlock) Built(network string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.txBytes == "" || b.builtFor != buildKey(b.Sender, network) {
		return "", false
	}
	return b.txBytes, true
}

func (b *TransactionBlock) setBuilt(network, txBytes string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.txBytes = txBytes
	b.builtFor = buildKey(b.Sender, network)
}

func buildKey(sender, network string) string {
	return strings.ToLower(sender) + "@" + network
}

// TransferIntent extracts recipient and amount when the block is a single
// split-and-transfer from the gas coin.
func (b *TransactionBlock) TransferIntent() (recipient string, amount uint64, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.Commands) != 2 {
		return "", 0, fmt.Errorf("不支持的交易块: 需要 2 条指令, 实际 %d 条", len(b.Commands))
	}
	split, transfer := b.Commands[0], b.Commands[1]
	if split.Kind != CommandSplitCoins || split.Coin == nil || split.Coin.Kind != ArgGasCoin || len(split.Amounts) != 1 {
		return "", 0, fmt.Errorf("不支持的交易块: 第一条指令必须是从 GasCoin 拆分")
	}
	if transfer.Kind != CommandTransferObjects || len(transfer.Objects) != 1 || transfer.Address == nil {
		return "", 0, fmt.Errorf("不支持的交易块: 第二条指令必须是 TransferObjects")
	}
	obj := transfer.Objects[0]
	refsSplit := (obj.Kind == ArgResult && obj.Index != nil && *obj.Index == 0) ||
		(obj.Kind == ArgNestedResult && obj.Index != nil && *obj.Index == 0 && obj.ResultIndex != nil && *obj.ResultIndex == 0)
	if !refsSplit {
		return "", 0, fmt.Errorf("不支持的交易块: 转账对象必须引用拆分结果")
	}

	amountIn, err := b.input(split.Amounts[0], PureU64)
	if err != nil {
		return "", 0, err
	}
	amount, err = strconv.ParseUint(amountIn.Value, 10, 64)
	if err != nil || amount == 0 {
		return "", 0, fmt.Errorf("非法的转账金额 %q", amountIn.Value)
	}
	addrIn, err := b.input(*transfer.Address, PureAddress)
	if err != nil {
		return "", 0, err
	}
	if strings.TrimSpace(addrIn.Value) == "" {
		return "", 0, fmt.Errorf("接收地址不能为空")
	}
	return addrIn.Value, amount, nil
}

func (b *TransactionBlock) input(arg Argument, valueType string) (Input, error) {
	if arg.Kind != ArgInput || arg.Index == nil || int(*arg.Index) >= len(b.Inputs) {
		return Input{}, fmt.Errorf("不支持的交易块: 参数必须引用输入")
	}
	in := b.Inputs[*arg.Index]
	if in.ValueType != "" && in.ValueType != valueType {
		return Input{}, fmt.Errorf("输入 %d 类型为 %s, 期望 %s", *arg.Index, in.ValueType, valueType)
	}
	return in, nil
}
