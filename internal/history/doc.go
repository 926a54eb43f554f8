// Package history is the conversation store. It persists prompt/response
// records, transaction logs and user profiles, replays recent records as chat
// messages and detaches every write from the calling request through the
// background job processor.
package history
