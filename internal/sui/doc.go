// Package sui is the remote chain gateway. It speaks Sui JSON-RPC 2.0 through
// the go-ethereum rpc client, keeps one client per configured network, builds
// the split-and-transfer transaction block used by the assistant, dry-runs it
// and forwards the resulting bytes to an external wallet signer.
package sui
