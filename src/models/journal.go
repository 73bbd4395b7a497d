package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is one row of the chart of accounts lookup.
type Account struct {
	ID            int64  `json:"id"`
	AccountNumber string `json:"account_number"`
	Name          string `json:"name"`
	IsActive      bool   `json:"is_active"`
}

// JournalEntry is an immutable double-entry posting. Entries are never edited
// after they commit; corrections are new reversing entries.
type JournalEntry struct {
	ID           int64           `json:"id,omitempty"`
	EntryID      string          `json:"entry_id"`     // uuid
	EntryNumber  int64           `json:"entry_number"` // strictly increasing
	Description  string          `json:"description"`
	SourceSystem string          `json:"source_system"`
	SourceID     string          `json:"source_id"`
	TotalDebit   decimal.Decimal `json:"total_debit"`
	TotalCredit  decimal.Decimal `json:"total_credit"`
	CreatedAt    time.Time       `json:"created_at"`
	Lines        []JournalLine   `json:"lines"`
}

// JournalLine carries a debit xor a credit against one account. Quantity and
// unit price are optional context for trade-sourced lines.
type JournalLine struct {
	ID            int64           `json:"id,omitempty"`
	AccountNumber string          `json:"account_number"`
	Description   string          `json:"description"`
	DebitAmount   decimal.Decimal `json:"debit_amount"`
	CreditAmount  decimal.Decimal `json:"credit_amount"`
	Quantity      decimal.Decimal `json:"quantity,omitempty"`
	UnitPrice     decimal.Decimal `json:"unit_price,omitempty"`
}

// Balanced reports whether the entry's lines sum to equal debits and credits,
// and returns both totals so a rejection can say which amounts diverged.
func (e *JournalEntry) Balanced() (debits, credits decimal.Decimal, ok bool) {
	for _, l := range e.Lines {
		debits = debits.Add(l.DebitAmount)
		credits = credits.Add(l.CreditAmount)
	}
	return debits, credits, debits.Equal(credits)
}
