// Package sqlite persists the ledger and the candle archive in a SQLite
// database opened in WAL mode.
package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens (or creates) the database at path and applies the schema.
// A single connection serialises writers.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	log.Printf("[sqlite] opened database at %s", path)
	return db, nil
}

// Decimal amounts are stored as TEXT to keep them exact.
func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS budget (
			id     INTEGER PRIMARY KEY,
			amount TEXT    NOT NULL
		);

		CREATE TABLE IF NOT EXISTS portfolio (
			id           TEXT    PRIMARY KEY,
			ticker       TEXT    NOT NULL,
			quantity     TEXT    NOT NULL,
			bought_price TEXT    NOT NULL,
			stop_loss    TEXT    NOT NULL DEFAULT '0',
			take_profit  TEXT    NOT NULL DEFAULT '0',
			leverage     INTEGER NOT NULL DEFAULT 1,
			opened_at    INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS short_positions (
			id          TEXT    PRIMARY KEY,
			ticker      TEXT    NOT NULL,
			quantity    TEXT    NOT NULL,
			short_price TEXT    NOT NULL,
			leverage    INTEGER NOT NULL DEFAULT 1,
			stop_loss   TEXT    NOT NULL DEFAULT '0',
			take_profit TEXT    NOT NULL DEFAULT '0',
			opened_at   INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS transactions (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			ticker    TEXT    NOT NULL,
			quantity  TEXT    NOT NULL,
			price     TEXT    NOT NULL,
			type      TEXT    NOT NULL CHECK (type IN ('buy', 'sell', 'short', 'cover')),
			timestamp INTEGER NOT NULL,
			leverage  INTEGER NOT NULL DEFAULT 1,
			gain      TEXT    NOT NULL DEFAULT '0',
			lot_id    TEXT    NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_ticker ON transactions (ticker, id);

		CREATE TABLE IF NOT EXISTS candles (
			ticker   TEXT    NOT NULL,
			interval TEXT    NOT NULL,
			ts       INTEGER NOT NULL,
			open     REAL    NOT NULL,
			high     REAL    NOT NULL,
			low      REAL    NOT NULL,
			close    REAL    NOT NULL,
			volume   REAL,
			PRIMARY KEY (ticker, interval, ts)
		);
	`)
	return err
}
