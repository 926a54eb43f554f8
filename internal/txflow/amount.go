package txflow

import (
	"math/big"
	"regexp"
	"strings"

	xerrors "SuiCoPilot/internal/errors"
	"SuiCoPilot/internal/sui"
)

var decimalPattern = regexp.MustCompile(`^(\d+(\.\d*)?|\.\d+)$`)

// ParseAmount 将用户输入的 SUI 数量换算为 MIST，结果为 floor(a * 10^9)。
// 非数字、非正数以及换算后为 0 的输入返回 VALIDATION 错误。
func ParseAmount(input string) (uint64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, xerrors.Validation("Amount is required")
	}
	if !decimalPattern.MatchString(input) {
		return 0, xerrors.Validation("Amount must be a positive number")
	}
	if strings.HasPrefix(input, ".") {
		input = "0" + input
	}
	input = strings.TrimSuffix(input, ".")
	value, ok := new(big.Rat).SetString(input)
	if !ok || value.Sign() <= 0 {
		return 0, xerrors.Validation("Amount must be a positive number")
	}
	value.Mul(value, new(big.Rat).SetInt64(sui.MistPerSUI))
	mist := new(big.Int).Quo(value.Num(), value.Denom())
	if mist.Sign() == 0 {
		return 0, xerrors.Validation("Amount is smaller than 1 MIST")
	}
	if !mist.IsUint64() {
		return 0, xerrors.Validation("Amount is too large")
	}
	return mist.Uint64(), nil
}
