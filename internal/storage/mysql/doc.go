// Package mysql provides the MySQL backend of the conversation store and the
// local account store. It owns the connection pool settings and applies the
// embedded schema migrations from deploy/migrations on startup.
package mysql
