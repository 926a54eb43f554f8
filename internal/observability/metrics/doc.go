// Package metrics owns the Prometheus registry of the daemon: HTTP, completion,
// chain RPC and background job collectors, exposed through Handler.
package metrics
