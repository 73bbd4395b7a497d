package database

import (
	"database/sql"
	stdlog "log"

	"github.com/username/navledger/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	if logger.L != nil {
		logger.L.Info("Ensuring database schema", "databasePath", databasePath)
	} else {
		stdlog.Println("Ensuring database schema for:", databasePath)
	}

	createTableStatement := `
	CREATE TABLE IF NOT EXISTS chronological_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_transaction_id TEXT NOT NULL UNIQUE,
		timestamp TEXT NOT NULL,
		date TEXT NOT NULL,
		event_type TEXT NOT NULL,
		symbol TEXT,
		description TEXT,
		quantity TEXT NOT NULL DEFAULT '0',
		cash_impact TEXT NOT NULL DEFAULT '0',
		realized_pnl TEXT NOT NULL DEFAULT '0',
		commission TEXT NOT NULL DEFAULT '0',
		is_synthetic INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_events_date ON chronological_events(date);
	CREATE INDEX IF NOT EXISTS idx_events_symbol ON chronological_events(symbol);

	CREATE TABLE IF NOT EXISTS daily_summaries (
		date TEXT PRIMARY KEY,
		opening_nav TEXT NOT NULL DEFAULT '0',
		closing_nav TEXT NOT NULL DEFAULT '0',
		total_pnl TEXT NOT NULL DEFAULT '0',
		net_cash_flow TEXT NOT NULL DEFAULT '0',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS chart_of_accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_number TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		is_active BOOLEAN DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS journal_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entry_id TEXT NOT NULL UNIQUE,
		entry_number INTEGER NOT NULL UNIQUE,
		description TEXT,
		source_system TEXT,
		source_id TEXT,
		total_debit TEXT NOT NULL,
		total_credit TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS journal_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entry_id INTEGER NOT NULL,
		account_id INTEGER NOT NULL,
		description TEXT,
		debit_amount TEXT NOT NULL DEFAULT '0',
		credit_amount TEXT NOT NULL DEFAULT '0',
		quantity TEXT,
		unit_price TEXT,
		FOREIGN KEY(entry_id) REFERENCES journal_entries(id),
		FOREIGN KEY(account_id) REFERENCES chart_of_accounts(id)
	);
	`

	_, err = DB.Exec(createTableStatement)
	if err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		stdlog.Fatalf("failed to create tables: %v", err)
	}
	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.")
	} else {
		stdlog.Println("Database tables ensured/created.")
	}
}

// ClearLedger drops all events and summaries, for the CLI's rebuild mode.
// Journal entries are immutable postings and are deliberately left alone.
func ClearLedger() error {
	_, err := DB.Exec(`DELETE FROM chronological_events; DELETE FROM daily_summaries;`)
	return err
}
