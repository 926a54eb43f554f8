// Package chat is the assistant front of the completion gateway. It turns a
// user prompt into a provider request enriched with the session's wallet
// excerpt, the recent conversation and matching concept cards, and records
// every successful exchange in the conversation store.
package chat
