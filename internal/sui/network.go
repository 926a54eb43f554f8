package sui

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Well-known network names.
const (
	Mainnet = "mainnet"
	Testnet = "testnet"
	Devnet  = "devnet"
	Local   = "local"
)

// NetworkDefinitions models the structure of configs/networks.yaml.
type NetworkDefinitions struct {
	Default  string                       `yaml:"default"`
	Networks map[string]NetworkDefinition `yaml:"networks"`
}

// NetworkDefinition describes a single fullnode endpoint.
type NetworkDefinition struct {
	RPCURL      string `yaml:"rpc_url"`
	ExplorerURL string `yaml:"explorer_url"`
	Description string `yaml:"description"`
}

// DefaultNetworkDefinitions returns the public fullnodes plus a local node.
func DefaultNetworkDefinitions() NetworkDefinitions {
	return NetworkDefinitions{
		Default: Testnet,
		Networks: map[string]NetworkDefinition{
			Mainnet: {
				RPCURL:      "https://fullnode.mainnet.sui.io:443",
				ExplorerURL: "https://suivision.xyz",
				Description: "Sui mainnet",
			},
			Testnet: {
				RPCURL:      "https://fullnode.testnet.sui.io:443",
				ExplorerURL: "https://testnet.suivision.xyz",
				Description: "Sui testnet",
			},
			Devnet: {
				RPCURL:      "https://fullnode.devnet.sui.io:443",
				ExplorerURL: "https://devnet.suivision.xyz",
				Description: "Sui devnet",
			},
			Local: {
				RPCURL:      "http://127.0.0.1:9000",
				Description: "local sui-test-validator",
			},
		},
	}
}

// LoadNetworkDefinitions parses the YAML file and merges it over the defaults.
// An empty path yields the defaults.
func LoadNetworkDefinitions(path string) (NetworkDefinitions, error) {
	defs := DefaultNetworkDefinitions()
	if strings.TrimSpace(path) == "" {
		return defs, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return NetworkDefinitions{}, fmt.Errorf("读取网络配置失败: %w", err)
	}

	var loaded NetworkDefinitions
	if err := yaml.Unmarshal(content, &loaded); err != nil {
		return NetworkDefinitions{}, fmt.Errorf("解析网络配置失败: %w", err)
	}
	for name, def := range loaded.Networks {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		base := defs.Networks[name]
		if strings.TrimSpace(def.RPCURL) != "" {
			base.RPCURL = strings.TrimSpace(def.RPCURL)
		}
		if strings.TrimSpace(def.ExplorerURL) != "" {
			base.ExplorerURL = strings.TrimSpace(def.ExplorerURL)
		}
		if def.Description != "" {
			base.Description = def.Description
		}
		if base.RPCURL == "" {
			return NetworkDefinitions{}, fmt.Errorf("网络 %s 未配置 rpc_url", name)
		}
		defs.Networks[name] = base
	}
	if d := strings.ToLower(strings.TrimSpace(loaded.Default)); d != "" {
		defs.Default = d
	}
	if _, ok := defs.Networks[defs.Default]; !ok {
		return NetworkDefinitions{}, fmt.Errorf("默认网络 %s 未在配置中找到", defs.Default)
	}
	return defs, nil
}

// Names returns the sorted network names.
func (d NetworkDefinitions) Names() []string {
	names := make([]string, 0, len(d.Networks))
	for name := range d.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
