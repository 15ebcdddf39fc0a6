// Package storage provides SQLite-based persistence for profiles, cached
// embeddings and match history.
//
// # Database Schema
//
// Tables:
//   - users: accounts, flagged as student and/or tutor
//   - students, tutors: profile text, list fields stored as JSON arrays
//   - classes, student_classes, tutor_classes: course links with grades
//   - user_availability: weekly slots in minutes after midnight
//   - user_embeddings: one vector per (user, role, field, model) slot
//   - match_runs, matches: ranked match history per student
//
// Deleting a user cascades to every row that references it.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage("tutormatch.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	profile, err := store.GetStudentProfile(ctx, studentID)
//
// # Transactions
//
// Tx embeds Storage, so any operation can be staged in a transaction and
// committed together:
//
//	tx, err := store.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	if err := tx.UpsertStudentProfile(ctx, profile); err != nil {
//	    return err
//	}
//	if err := tx.UpsertEmbedding(ctx, slot); err != nil {
//	    return err
//	}
//	return tx.Commit()
//
// Multi-table writes called directly on SQLiteStorage (profile upserts,
// CreateRunWithMatches, AppendMatch) open their own transaction.
//
// # Concurrency
//
// The pool holds a single connection, so transactions never interleave.
// AppendMatch relies on this to compute the next rank without races.
//
// # Drivers
//
// The default build uses modernc.org/sqlite. Building with the cgo_sqlite
// tag switches to github.com/mattn/go-sqlite3.
package storage
