// Package store defines the document store behind the mock API: each
// collection is a list of JSON documents read and rewritten wholesale on
// every request.
package store

import "context"

// Collection names used by the mock API.
const (
	Contacts    = "contacts"
	Expenses    = "expenses"
	Invoices    = "invoices"
	TimeEntries = "time_entries"
	SyncStatus  = "sync_status"
)

// Store loads and saves whole collections. Load decodes the collection into
// out (a pointer to a slice) and leaves it untouched when the collection does
// not exist yet; Save replaces the collection with data.
type Store interface {
	Load(ctx context.Context, collection string, out any) error
	Save(ctx context.Context, collection string, data any) error
	Close()
}
