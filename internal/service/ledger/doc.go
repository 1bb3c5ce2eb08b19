// Package ledger records every tracked message: created before dispatch,
// marked sent on provider confirmation, and marked opened the first time its
// tracking pixel is fetched.
//
// Storage lives behind Repository; implementations are in
// repository/postgres/ and repository/memory/.
package ledger
