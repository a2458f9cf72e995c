// Package sqlite implements the storage interfaces over a single SQLite
// database. Guarded mutations put their preconditions in the WHERE clause
// so concurrent writers serialize on the database rather than in process.
package sqlite
