package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/navledger/src/logger"
	"github.com/username/navledger/src/models"
)

// InsertEvents writes events with insert-or-ignore semantics: a row whose
// source_transaction_id already exists is skipped, so re-running the same
// exports converges instead of duplicating. Returns the number of rows
// actually inserted.
func InsertEvents(events []models.ChronologicalEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	dbTx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.Prepare(`INSERT INTO chronological_events
		(source_transaction_id, timestamp, date, event_type, symbol, description, quantity, cash_impact, realized_pnl, commission, is_synthetic)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("error preparing insert statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, ev := range events {
		_, err := stmt.Exec(
			ev.SourceTransactionID,
			ev.Timestamp.Format(time.RFC3339),
			ev.Date(),
			string(ev.EventType),
			ev.Symbol,
			ev.Description,
			ev.Quantity.String(),
			ev.CashImpact.String(),
			ev.RealizedPNL.String(),
			ev.Commission.String(),
			ev.IsSynthetic,
		)
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "unique constraint failed") {
				logger.L.Debug("Skipping duplicate event", "sourceTransactionID", ev.SourceTransactionID)
				continue
			}
			return 0, fmt.Errorf("error inserting event (sourceTransactionID: %s): %w", ev.SourceTransactionID, err)
		}
		inserted++
	}

	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing events: %w", err)
	}
	return inserted, nil
}

// EventsByDate returns a date's events ordered by timestamp ascending, with
// source id as the tiebreaker so replays are deterministic. Ordering goes
// through strftime so stored UTC offsets compare as instants, not as text;
// raw RFC3339 strings sort wrong across a DST transition.
func EventsByDate(date string) ([]models.ChronologicalEvent, error) {
	rows, err := DB.Query(`SELECT id, source_transaction_id, timestamp, event_type, symbol, description, quantity, cash_impact, realized_pnl, commission, is_synthetic
		FROM chronological_events WHERE date = ? ORDER BY CAST(strftime('%s', timestamp) AS INTEGER) ASC, source_transaction_id ASC`, date)
	if err != nil {
		return nil, fmt.Errorf("error querying events for date %s: %w", date, err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// AllEvents returns every event in chronological order.
func AllEvents() ([]models.ChronologicalEvent, error) {
	rows, err := DB.Query(`SELECT id, source_transaction_id, timestamp, event_type, symbol, description, quantity, cash_impact, realized_pnl, commission, is_synthetic
		FROM chronological_events ORDER BY CAST(strftime('%s', timestamp) AS INTEGER) ASC, source_transaction_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("error querying events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// EventDates returns the distinct calendar dates that carry events, ascending.
func EventDates() ([]string, error) {
	rows, err := DB.Query(`SELECT DISTINCT date FROM chronological_events ORDER BY date ASC`)
	if err != nil {
		return nil, fmt.Errorf("error querying event dates: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

func scanEvents(rows *sql.Rows) ([]models.ChronologicalEvent, error) {
	var events []models.ChronologicalEvent
	for rows.Next() {
		var (
			ev                            models.ChronologicalEvent
			ts, eventType                 string
			qty, cash, pnl, commission    string
			symbol, description, sourceID string
		)
		if err := rows.Scan(&ev.ID, &sourceID, &ts, &eventType, &symbol, &description, &qty, &cash, &pnl, &commission, &ev.IsSynthetic); err != nil {
			return nil, fmt.Errorf("error scanning event row: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("error parsing stored timestamp '%s': %w", ts, err)
		}
		ev.Timestamp = parsed
		ev.EventType = models.EventType(eventType)
		ev.Symbol = symbol
		ev.Description = description
		ev.SourceTransactionID = sourceID
		if ev.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("error parsing stored quantity '%s': %w", qty, err)
		}
		if ev.CashImpact, err = decimal.NewFromString(cash); err != nil {
			return nil, fmt.Errorf("error parsing stored cash_impact '%s': %w", cash, err)
		}
		if ev.RealizedPNL, err = decimal.NewFromString(pnl); err != nil {
			return nil, fmt.Errorf("error parsing stored realized_pnl '%s': %w", pnl, err)
		}
		if ev.Commission, err = decimal.NewFromString(commission); err != nil {
			return nil, fmt.Errorf("error parsing stored commission '%s': %w", commission, err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
