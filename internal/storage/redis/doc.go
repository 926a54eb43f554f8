// Package redis offers the JSON cache used by the daemon, currently for wallet
// snapshots keyed by address and network. Keys are namespaced with a prefix
// so several deployments can share one Redis database.
package redis
