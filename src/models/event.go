package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType classifies a ledger event. The values mirror the broker's own
// vocabulary so that rendered output stays recognizable next to the raw exports.
type EventType string

const (
	EventTrade                 EventType = "Trade"
	EventDepositWithdrawal     EventType = "Deposit/Withdrawal"
	EventOptionAssignment      EventType = "Option_Assignment"
	EventOptionExercise        EventType = "Option_Exercise"
	EventOptionExpiration      EventType = "Option_Expiration"
	EventInterestAccrual       EventType = "Interest_Accrual"
	EventInterestPayment       EventType = "Interest_Payment"
	EventInterestAccrualChange EventType = "Interest_Accrual_Change"
)

// ChronologicalEvent is the atomic ledger record. Every statement line,
// inferred assignment/expiration and NAV-derived interest item normalizes
// into one of these before anything downstream sees it.
//
// SourceTransactionID is the idempotency key: real events carry the broker's
// transaction id, synthetic events carry a deterministic key built from
// (kind, symbol, date). The event store enforces uniqueness on it, so
// re-ingesting the same exports never duplicates an event.
type ChronologicalEvent struct {
	ID                  int64           `json:"id,omitempty"`
	Timestamp           time.Time       `json:"timestamp"` // exchange-local time
	EventType           EventType       `json:"event_type"`
	Symbol              string          `json:"symbol,omitempty"`
	Description         string          `json:"description"`
	Quantity            decimal.Decimal `json:"quantity"`
	CashImpact          decimal.Decimal `json:"cash_impact"`  // home currency
	RealizedPNL         decimal.Decimal `json:"realized_pnl"` // home currency
	Commission          decimal.Decimal `json:"commission"`   // home currency
	SourceTransactionID string          `json:"source_transaction_id"`
	IsSynthetic         bool            `json:"is_synthetic"`
}

// Date returns the calendar date of the event in its own (exchange-local) zone.
func (e ChronologicalEvent) Date() string {
	return e.Timestamp.Format("2006-01-02")
}

// NAVDelta is the event's contribution to the running NAV during a narrative
// replay: cash plus realized P&L plus commission. Assignment and exercise
// events are NAV-neutral at the event itself; the renderer zeroes their cash
// before applying this.
func (e ChronologicalEvent) NAVDelta() decimal.Decimal {
	return e.CashImpact.Add(e.RealizedPNL).Add(e.Commission)
}

// DailySummary is the per-date reconciliation row. It is derived data,
// rebuildable at any time from the event store plus the broker's NAV
// statement, and persisted with upsert-by-date semantics.
type DailySummary struct {
	Date        string          `json:"date"` // YYYY-MM-DD
	OpeningNAV  decimal.Decimal `json:"opening_nav"`
	ClosingNAV  decimal.Decimal `json:"closing_nav"`
	TotalPNL    decimal.Decimal `json:"total_pnl"`
	NetCashFlow decimal.Decimal `json:"net_cash_flow"`
}

// Plug is the unexplained residual of the day's reconciliation:
// opening + pnl + cashflow - closing. It is always computed and always
// reported; a nonzero plug is the primary data-quality signal.
func (s DailySummary) Plug() decimal.Decimal {
	return s.OpeningNAV.Add(s.TotalPNL).Add(s.NetCashFlow).Sub(s.ClosingNAV)
}

// NAVRow is one date of the broker's own Change-in-NAV statement. TotalPNL for
// a DailySummary is the sum of these components, not the sum of event-level
// realized P&L, because mark-to-market and accrual effects only show up here.
type NAVRow struct {
	Date                     string
	StartingValue            decimal.Decimal
	EndingValue              decimal.Decimal
	MarkToMarket             decimal.Decimal
	Realized                 decimal.Decimal
	Interest                 decimal.Decimal
	ChangeInInterestAccruals decimal.Decimal
	Commissions              decimal.Decimal
	DepositsWithdrawals      decimal.Decimal
}

// ComponentPNL sums the statement's own P&L components for the date.
func (r NAVRow) ComponentPNL() decimal.Decimal {
	return r.MarkToMarket.
		Add(r.Realized).
		Add(r.Interest).
		Add(r.ChangeInInterestAccruals).
		Add(r.Commissions)
}
