// Package campaign sends one templated, tracked email per selected
// recipient.
//
// For each recipient the service creates a ledger record, renders the
// template with the record's tracking URL, dispatches through a provider and
// marks the record sent when the provider confirms. A failure for one
// recipient is logged and reported but never stops the others.
package campaign
