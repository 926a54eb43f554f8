// Package txflow drives the transfer panel: it parses the amount, builds a
// split-and-transfer transaction block, dry-runs it and, only after a
// successful simulation, hands the very same block to the wallet signer.
// One Orchestrator exists per user and rejects overlapping actions.
package txflow
