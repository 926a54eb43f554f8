package sui

import (
	"math/big"
	"strings"
)

// MistPerSUI is the number of MIST in one SUI.
const MistPerSUI = 1_000_000_000

const defaultExplorer = "https://suivision.xyz"

// FormatBalance renders a MIST amount as SUI with six fraction digits.
// Unparseable input renders as zero.
func FormatBalance(mist string) string {
	value, ok := new(big.Rat).SetString(strings.TrimSpace(mist))
	if !ok {
		value = new(big.Rat)
	}
	value.Quo(value, new(big.Rat).SetInt64(MistPerSUI))
	return value.FloatString(6) + " SUI"
}

// ExplorerURL links an account, object or transaction on the explorer of
// the given network.
func ExplorerURL(network, path, id string) string {
	return explorerURL(DefaultNetworkDefinitions(), network, path, id)
}

func explorerURL(defs NetworkDefinitions, network, path, id string) string {
	base := defaultExplorer
	if def, ok := defs.Networks[network]; ok && def.ExplorerURL != "" {
		base = def.ExplorerURL
	}
	return strings.TrimRight(base, "/") + "/" + strings.Trim(path, "/") + "/" + id
}

func netGas(g GasCostSummary) int64 {
	total := new(big.Int)
	for _, part := range []struct {
		value string
		sign  int
	}{
		{g.ComputationCost, 1},
		{g.StorageCost, 1},
		{g.StorageRebate, -1},
	} {
		n, ok := new(big.Int).SetString(strings.TrimSpace(part.value), 10)
		if !ok {
			return 0
		}
		if part.sign < 0 {
			total.Sub(total, n)
		} else {
			total.Add(total, n)
		}
	}
	if !total.IsInt64() {
		return 0
	}
	return total.Int64()
}
