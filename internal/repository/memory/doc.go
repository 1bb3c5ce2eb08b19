// Package memory provides in-process implementations of the ledger
// repositories, used when no database is configured and in tests.
package memory
