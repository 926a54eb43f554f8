package sui

import (
	"context"
	"strings"
	"sync"

	xerrors "SuiCoPilot/internal/errors"
)

// NetworkInfo is the public description of a configured network.
type NetworkInfo struct {
	Name        string `json:"name"`
	RPCURL      string `json:"rpcUrl"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
	Description string `json:"description,omitempty"`
	Default     bool   `json:"default"`
}

// Registry hands out one client per network, dialing lazily.
type Registry struct {
	defs    NetworkDefinitions
	mu      sync.Mutex
	clients map[string]*Client
}

// RegistryOption customises a Registry.
type RegistryOption func(*Registry)

// WithClient pins a pre-built client for network.
func WithClient(network string, client *Client) RegistryOption {
	return func(r *Registry) {
		network = normalizeNetwork(network)
		if _, ok := r.defs.Networks[network]; !ok {
			r.defs.Networks[network] = NetworkDefinition{RPCURL: "inproc://" + network}
		}
		r.clients[network] = client
	}
}

// NewRegistry builds a registry over defs.
func NewRegistry(defs NetworkDefinitions, opts ...RegistryOption) *Registry {
	copied := NetworkDefinitions{Default: normalizeNetwork(defs.Default), Networks: make(map[string]NetworkDefinition, len(defs.Networks))}
	for name, def := range defs.Networks {
		copied.Networks[normalizeNetwork(name)] = def
	}
	if copied.Default == "" {
		copied.Default = Testnet
	}
	r := &Registry{defs: copied, clients: make(map[string]*Client)}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Default returns the default network name.
func (r *Registry) Default() string { return r.defs.Default }

// Resolve maps an empty name to the default network and rejects unknown ones.
func (r *Registry) Resolve(network string) (string, error) {
	network = normalizeNetwork(network)
	if network == "" {
		network = r.defs.Default
	}
	if _, ok := r.defs.Networks[network]; !ok {
		return "", xerrors.Validation("不支持的网络: "+network, xerrors.WithMetadata("network", network))
	}
	return network, nil
}

// Client returns the client of network, dialing it on first use.
func (r *Registry) Client(ctx context.Context, network string) (*Client, error) {
	name, err := r.Resolve(network)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[name]; ok {
		return c, nil
	}
	c, err := Dial(ctx, name, r.defs.Networks[name].RPCURL)
	if err != nil {
		return nil, xerrors.Network(err, "连接 Sui 节点失败", xerrors.WithMetadata("network", name))
	}
	r.clients[name] = c
	return c, nil
}

// Networks lists the configured networks sorted by name.
func (r *Registry) Networks() []NetworkInfo {
	names := r.defs.Names()
	out := make([]NetworkInfo, 0, len(names))
	for _, name := range names {
		def := r.defs.Networks[name]
		out = append(out, NetworkInfo{
			Name:        name,
			RPCURL:      def.RPCURL,
			ExplorerURL: def.ExplorerURL,
			Description: def.Description,
			Default:     name == r.defs.Default,
		})
	}
	return out
}

// ExplorerURL links id on the explorer of network.
func (r *Registry) ExplorerURL(network, path, id string) string {
	return explorerURL(r.defs, normalizeNetwork(network), path, id)
}

// Close releases all dialed clients.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, c := range r.clients {
		if c != nil {
			c.Close()
		}
		delete(r.clients, name)
	}
}

func normalizeNetwork(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
