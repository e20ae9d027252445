// Package stores persists model checkpoints.
//
// The SQLite store keeps one row per checkpoint holding the model clock,
// its attribute values and an opaque kernel blob, plus one row per
// variable holding its shape and values packed as little-endian floats.
// The schema is embedded and applied with golang-migrate.
//
// A model's SaveState writes a single checkpoint to <dir>/checkpoint.db;
// InitializeState reads back the latest checkpoint found there.
//
//	store, err := stores.OpenSQLiteStore(ctx, filepath.Join(dir, "checkpoint.db"))
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	cp, err := store.LatestCheckpoint(ctx, "Example toy increment model")
package stores
