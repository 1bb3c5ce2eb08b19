// Package domain defines the core types shared by the mail tracking service.
//
// Types in this package are plain values with no database or HTTP
// dependencies. They are the shared language between handlers, services,
// and repositories.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON/DB tags are allowed
//   - Validation methods are allowed (pure functions on the type)
package domain
