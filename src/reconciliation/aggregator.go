package reconciliation

import (
	"fmt"
	"sort"

	"github.com/username/navledger/src/config"
	"github.com/username/navledger/src/database"
	"github.com/username/navledger/src/logger"
	"github.com/username/navledger/src/models"
	"github.com/username/navledger/src/utils"
)

// Aggregator folds the event store and the broker's Change-in-NAV statement
// into one DailySummary per calendar date.
type Aggregator struct {
	cfg *config.AppConfig
}

func NewAggregator(cfg *config.AppConfig) *Aggregator {
	return &Aggregator{cfg: cfg}
}

// Result reports what one aggregation pass produced.
type Result struct {
	Summaries       []models.DailySummary
	DerivedInserted int
	Discrepancies   int
}

// Aggregate derives the per-date interest events the NAV statement itemizes,
// then upserts one summary per date. Dates with events but no NAV row still
// get a summary (NAV fields defaulted, warning logged); the plug is computed
// and reported for every date without exception.
func (a *Aggregator) Aggregate(navRows []models.NAVRow) (*Result, error) {
	navByDate := make(map[string]models.NAVRow, len(navRows))
	for _, row := range navRows {
		navByDate[row.Date] = row
	}

	derived := a.deriveInterestEvents(navRows)
	inserted, err := database.InsertEvents(derived)
	if err != nil {
		return nil, fmt.Errorf("error persisting derived interest events: %w", err)
	}

	eventDates, err := database.EventDates()
	if err != nil {
		return nil, err
	}
	dates := unionDates(eventDates, navRows)

	result := &Result{DerivedInserted: inserted}
	for _, date := range dates {
		summary, err := a.summarizeDate(date, navByDate)
		if err != nil {
			return nil, err
		}
		if err := database.UpsertSummary(summary); err != nil {
			return nil, err
		}

		plug := summary.Plug()
		if plug.Abs().GreaterThan(a.cfg.PlugTolerance) {
			result.Discrepancies++
			logger.L.Warn("Reconciliation discrepancy: NAV does not tie out",
				"date", date,
				"openingNAV", summary.OpeningNAV,
				"totalPnl", summary.TotalPNL,
				"netCashFlow", summary.NetCashFlow,
				"closingNAV", summary.ClosingNAV,
				"plug", plug)
		} else {
			logger.L.Info("Daily summary reconciled", "date", date, "plug", plug)
		}
		result.Summaries = append(result.Summaries, summary)
	}
	return result, nil
}

func (a *Aggregator) summarizeDate(date string, navByDate map[string]models.NAVRow) (models.DailySummary, error) {
	summary := models.DailySummary{Date: date}

	nav, hasNAV := navByDate[date]
	if hasNAV {
		summary.OpeningNAV = nav.StartingValue
		summary.ClosingNAV = nav.EndingValue
		// The statement's own components, not the event-level realized P&L:
		// mark-to-market and accrual effects are only reported here.
		summary.TotalPNL = nav.ComponentPNL()
	} else {
		logger.L.Warn("No NAV statement entry for date with activity; summary created with defaulted NAV fields", "date", date)
	}

	events, err := database.EventsByDate(date)
	if err != nil {
		return summary, err
	}
	// Net cash flow counts actual deposits/withdrawals only. Trading cash
	// (premiums, settlement proceeds) is never cash flow.
	for _, ev := range events {
		if ev.EventType == models.EventDepositWithdrawal {
			summary.NetCashFlow = summary.NetCashFlow.Add(ev.CashImpact)
		}
	}
	return summary, nil
}

// deriveInterestEvents materializes the two per-date items the NAV statement
// itemizes but the transaction exports omit: an interest payment (cash and
// P&L) and a change in interest accruals (P&L only). Keys are deterministic
// so re-aggregation never duplicates them.
func (a *Aggregator) deriveInterestEvents(navRows []models.NAVRow) []models.ChronologicalEvent {
	var derived []models.ChronologicalEvent
	for _, row := range navRows {
		ts := utils.AuctionClose(row.Date, a.cfg.ExchangeLocation())
		if !row.Interest.IsZero() {
			derived = append(derived, models.ChronologicalEvent{
				Timestamp:           ts,
				EventType:           models.EventInterestPayment,
				Description:         fmt.Sprintf("Broker interest for %s", row.Date),
				CashImpact:          row.Interest,
				RealizedPNL:         row.Interest,
				SourceTransactionID: fmt.Sprintf("NAV-INT-%s", row.Date),
			})
		}
		if !row.ChangeInInterestAccruals.IsZero() {
			derived = append(derived, models.ChronologicalEvent{
				Timestamp:           ts,
				EventType:           models.EventInterestAccrualChange,
				Description:         fmt.Sprintf("Change in interest accruals for %s", row.Date),
				RealizedPNL:         row.ChangeInInterestAccruals,
				SourceTransactionID: fmt.Sprintf("NAV-ACR-%s", row.Date),
			})
		}
	}
	return derived
}

func unionDates(eventDates []string, navRows []models.NAVRow) []string {
	seen := make(map[string]bool, len(eventDates)+len(navRows))
	var dates []string
	for _, d := range eventDates {
		if !seen[d] {
			seen[d] = true
			dates = append(dates, d)
		}
	}
	for _, row := range navRows {
		if !seen[row.Date] {
			seen[row.Date] = true
			dates = append(dates, row.Date)
		}
	}
	sort.Strings(dates)
	return dates
}
