// Package httputil holds the response helpers shared by the API and tracking
// handlers: a single JSON error envelope, status shorthands, and the cache
// headers used for tracking responses.
package httputil
