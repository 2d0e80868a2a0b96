// Package sqlite provides a job repository backed by an embedded SQLite
// database. It is the production store for single-host deployments: the
// queue runs in one process, so one local database file with WAL
// journaling gives crash-safe durability without a server.
//
// Schema management runs through goose migrations embedded in the
// binary; opening a store always migrates to the latest version.
package sqlite
