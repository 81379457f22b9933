// Package content caches the mapping table in memory.
//
// [Manager] holds the active [Snapshot] behind an atomic pointer so request
// handlers read it without locks, and it satisfies mapping.Source so the
// resolver can use it in place of the backing source. [Watcher] polls the
// backing source and swaps a new snapshot in when the table's digest
// changes.
package content
