// Package sqlite provides a single-file SQLite backend for the conversation
// store and the local account store using the pure-Go modernc.org/sqlite
// driver.
package sqlite
