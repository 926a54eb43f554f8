// Package suicopilot is a Go client for the SuiCoPilot HTTP API. It covers the
// three function endpoints (ask-ai, get-wallet-info, run-transaction-sim) and
// the application API under /api/v1.
package suicopilot
