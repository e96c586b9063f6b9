// Package store is the backing store of the search engine: the corpus
// tables searches read, and the durable result store they write.
//
// # Tables
//
//   - transcript, speaker, transcript_speaker: graphs and their participants
//   - anchor: time points, NULL offset when unaligned
//   - annotation_layer_<key>: one table per time-aligned layer (EnsureLayers),
//     with denormalized turn, word and segment ids on every row
//   - annotation_transcript, annotation_participant: attribute values
//   - search, result: search records and their ranked matches
//
// # Drivers
//
// SQLite connections use the SQLiteDriver name, which installs a REGEXP
// function backed by Go's regexp package and applies per-connection
// pragmas:
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// PostgreSQL connections use pgx through database/sql (PostgresDriver).
//
// Statements are written with ? placeholders and rebound per dialect.
package store
