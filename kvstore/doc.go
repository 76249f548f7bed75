// Package kvstore implements the transactional key-value substrate of the registry.
//
// Two backends are provided:
//   - MemoryStore keeps every record in process memory and serializes writers with a mutex.
//   - SQLiteStore persists records in a single "kv" table through modernc.org/sqlite,
//     with schema managed by golang-migrate.
//
// Both implement interfaces.KVStore: Update commits every write of its callback or none
// of them, and View observes a consistent snapshot.
package kvstore
