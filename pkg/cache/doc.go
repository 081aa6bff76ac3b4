// Package cache provides the generational response cache behind the
// offline proxy.
//
// A generation is a named store (for example "odam-music-v3.0.0") holding
// request key → response snapshot entries. Exactly one generation is current
// for a deployed worker; older generations are deleted when a new worker
// activates.
//
// # Backends
//
//   - MemoryStorage - process memory (default, tests)
//   - RedisStorage - shared by every proxy instance
//   - LevelDBStorage - persistent local disk
//
// # Basic Usage
//
//	store := cache.NewStore(cache.NewMemoryStorage(), logger)
//
//	handle, err := store.Open(ctx, "odam-music-v3.0.0")
//	if err != nil {
//		return err
//	}
//
//	// Snapshot a live response; resp.Body stays readable
//	entry, err := cache.ResponseToEntry(resp)
//	if err != nil {
//		return err
//	}
//	handle.Put(ctx, cache.KeyFromRequest(req), entry)
//
//	// Look up across every generation
//	if entry, ok := store.Match(ctx, key); ok {
//		resp := cache.EntryToResponse(entry, req)
//	}
//
// # Failure Semantics
//
// Handle.Put never returns an error. A write that fails (quota, lost
// connection) is logged and counted, and the response is served anyway.
// Handle.AddAll is the strict variant used while installing a worker.
//
// # Metrics
//
//   - offline_cache_hits_total{backend} - Cache hits
//   - offline_cache_misses_total{backend} - Cache misses
//   - offline_cache_stored_bytes_total{generation} - Bytes written
//   - offline_cache_generations_deleted_total - Removed generations
//   - offline_cache_errors_total{operation} - Cache operation errors
package cache
