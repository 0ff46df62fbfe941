// Package state holds the replication state of a stream: the updated_at
// watermark up to which every record has been delivered.
//
// A Tracker owns the cursor of one stream during a run. It loads the last
// persisted bookmark (or falls back to the configured start date), hands the
// effective lower bound to the window planner and persists every completed
// window before the next one begins. Bookmarks are stored as
//
//	{"replication_key_value": "2024-01-03T00:00:00Z"}
//
// keyed by stream name, in one of the Store backends:
//
//   - FileStore: a Singer-style state document on local disk
//   - RedisStore: one key per stream, shared between hosts
//   - SQLiteStore: a bookmarks table in a local database
//   - MemoryStore: in-process, for tests and dry runs
//
// # Basic Usage
//
//	store, err := state.Open(ctx, state.Config{Backend: "file", Path: "state.json"})
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	tracker, err := state.NewTracker(ctx, store, "returns", startDate, logger)
//	if err != nil {
//		return err
//	}
//	from := tracker.EffectiveStart()
//	// ... fetch window [from, to] ...
//	if err := tracker.Advance(ctx, to); err != nil {
//		return err
//	}
package state
