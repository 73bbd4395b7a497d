package database

import (
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/username/navledger/src/models"
)

// UpsertSummary writes a daily summary keyed by date. Re-running over an
// already-summarized date overwrites the row with the latest computed values.
func UpsertSummary(s models.DailySummary) error {
	_, err := DB.Exec(`INSERT INTO daily_summaries (date, opening_nav, closing_nav, total_pnl, net_cash_flow)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			opening_nav = excluded.opening_nav,
			closing_nav = excluded.closing_nav,
			total_pnl = excluded.total_pnl,
			net_cash_flow = excluded.net_cash_flow,
			updated_at = CURRENT_TIMESTAMP`,
		s.Date, s.OpeningNAV.String(), s.ClosingNAV.String(), s.TotalPNL.String(), s.NetCashFlow.String())
	if err != nil {
		return fmt.Errorf("error upserting summary for date %s: %w", s.Date, err)
	}
	return nil
}

// GetSummary returns the summary for a date, or (nil, nil) if absent.
func GetSummary(date string) (*models.DailySummary, error) {
	row := DB.QueryRow(`SELECT date, opening_nav, closing_nav, total_pnl, net_cash_flow
		FROM daily_summaries WHERE date = ?`, date)
	return scanSummary(row)
}

// PreviousSummary returns the latest summary strictly before the given date,
// or (nil, nil) when there is none. The narrative replay seeds its running
// NAV from this row's closing value.
func PreviousSummary(date string) (*models.DailySummary, error) {
	row := DB.QueryRow(`SELECT date, opening_nav, closing_nav, total_pnl, net_cash_flow
		FROM daily_summaries WHERE date < ? ORDER BY date DESC LIMIT 1`, date)
	return scanSummary(row)
}

// AllSummaries returns every summary row ordered by date ascending.
func AllSummaries() ([]models.DailySummary, error) {
	rows, err := DB.Query(`SELECT date, opening_nav, closing_nav, total_pnl, net_cash_flow
		FROM daily_summaries ORDER BY date ASC`)
	if err != nil {
		return nil, fmt.Errorf("error querying summaries: %w", err)
	}
	defer rows.Close()

	var summaries []models.DailySummary
	for rows.Next() {
		var (
			s                          models.DailySummary
			opening, closing, pnl, ncf string
		)
		if err := rows.Scan(&s.Date, &opening, &closing, &pnl, &ncf); err != nil {
			return nil, fmt.Errorf("error scanning summary row: %w", err)
		}
		if err := fillSummary(&s, opening, closing, pnl, ncf); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func scanSummary(row *sql.Row) (*models.DailySummary, error) {
	var (
		s                          models.DailySummary
		opening, closing, pnl, ncf string
	)
	err := row.Scan(&s.Date, &opening, &closing, &pnl, &ncf)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning summary: %w", err)
	}
	if err := fillSummary(&s, opening, closing, pnl, ncf); err != nil {
		return nil, err
	}
	return &s, nil
}

func fillSummary(s *models.DailySummary, opening, closing, pnl, ncf string) error {
	var err error
	if s.OpeningNAV, err = decimal.NewFromString(opening); err != nil {
		return fmt.Errorf("error parsing stored opening_nav '%s': %w", opening, err)
	}
	if s.ClosingNAV, err = decimal.NewFromString(closing); err != nil {
		return fmt.Errorf("error parsing stored closing_nav '%s': %w", closing, err)
	}
	if s.TotalPNL, err = decimal.NewFromString(pnl); err != nil {
		return fmt.Errorf("error parsing stored total_pnl '%s': %w", pnl, err)
	}
	if s.NetCashFlow, err = decimal.NewFromString(ncf); err != nil {
		return fmt.Errorf("error parsing stored net_cash_flow '%s': %w", ncf, err)
	}
	return nil
}
