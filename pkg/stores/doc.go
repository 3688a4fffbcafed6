// Package stores persists resolution history.
//
// The SQLite store keeps one row per resolution with the redacted plan
// document, plus an append-only event log. Stored plans never contain secret
// material; the machine plan with the secret exists only in the resolve
// command's output stream.
package stores
