package journal

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/username/navledger/src/database"
	"github.com/username/navledger/src/logger"
	"github.com/username/navledger/src/models"
)

// ErrUnbalancedEntry means an entry's debits and credits diverge. The entry
// is rejected before anything touches the database; the wrapped message
// carries both totals.
var ErrUnbalancedEntry = errors.New("journal entry debits do not equal credits")

const sourceSystem = "trade-lifecycle"

// TradeRecord is the trade lifecycle input the poster consumes. It comes
// straight from execution records, not from the statement pipeline. Premium
// and Commission are positive home-currency amounts; Quantity is contracts.
type TradeRecord struct {
	TradeID    string
	Symbol     string
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Premium    decimal.Decimal
	Commission decimal.Decimal
	Date       string
}

// Poster translates trade lifecycle transitions into balanced double-entry
// postings. Entries are immutable once posted; corrections are reversing
// entries, never edits.
type Poster struct{}

func NewPoster() *Poster {
	return &Poster{}
}

// PostShortOpen books the opening of a short option position: cash receives
// the premium net of commission, the liability account carries the gross
// premium, commission is expensed.
func (p *Poster) PostShortOpen(t TradeRecord) (*models.JournalEntry, error) {
	entry := &models.JournalEntry{
		EntryID:      uuid.NewString(),
		Description:  fmt.Sprintf("Open short option %s x%s @ %s", t.Symbol, t.Quantity, t.Price),
		SourceSystem: sourceSystem,
		SourceID:     t.TradeID,
		Lines: []models.JournalLine{
			{
				AccountNumber: AcctCash,
				Description:   "Premium received net of commission",
				DebitAmount:   t.Premium.Sub(t.Commission),
				Quantity:      t.Quantity,
				UnitPrice:     t.Price,
			},
			{
				AccountNumber: AcctShortOptions,
				Description:   "Gross premium obligation",
				CreditAmount:  t.Premium,
				Quantity:      t.Quantity,
				UnitPrice:     t.Price,
			},
		},
	}
	if t.Commission.IsPositive() {
		entry.Lines = append(entry.Lines, models.JournalLine{
			AccountNumber: AcctCommissionExpense,
			Description:   "Commission on open",
			DebitAmount:   t.Commission,
		})
	}
	return p.post(entry)
}

// PostShortClose books the repurchase of a short option: the liability is
// relieved at the original premium, cash pays the repurchase cost plus
// commission, and the differential lands in gains or losses by sign.
func (p *Poster) PostShortClose(open, closing TradeRecord) (*models.JournalEntry, error) {
	entry := &models.JournalEntry{
		EntryID:      uuid.NewString(),
		Description:  fmt.Sprintf("Close short option %s x%s @ %s", closing.Symbol, closing.Quantity, closing.Price),
		SourceSystem: sourceSystem,
		SourceID:     closing.TradeID,
		Lines: []models.JournalLine{
			{
				AccountNumber: AcctShortOptions,
				Description:   fmt.Sprintf("Relieve premium obligation from trade %s", open.TradeID),
				DebitAmount:   open.Premium,
				Quantity:      closing.Quantity,
				UnitPrice:     open.Price,
			},
			{
				AccountNumber: AcctCash,
				Description:   "Repurchase cost",
				CreditAmount:  closing.Premium,
				Quantity:      closing.Quantity,
				UnitPrice:     closing.Price,
			},
		},
	}

	differential := open.Premium.Sub(closing.Premium)
	switch {
	case differential.IsPositive():
		entry.Lines = append(entry.Lines, models.JournalLine{
			AccountNumber: AcctTradingGains,
			Description:   "Premium/cost differential",
			CreditAmount:  differential,
		})
	case differential.IsNegative():
		entry.Lines = append(entry.Lines, models.JournalLine{
			AccountNumber: AcctTradingLosses,
			Description:   "Premium/cost differential",
			DebitAmount:   differential.Abs(),
		})
	}
	if closing.Commission.IsPositive() {
		entry.Lines = append(entry.Lines,
			models.JournalLine{
				AccountNumber: AcctCommissionExpense,
				Description:   "Commission on close",
				DebitAmount:   closing.Commission,
			},
			models.JournalLine{
				AccountNumber: AcctCash,
				Description:   "Commission paid",
				CreditAmount:  closing.Commission,
			},
		)
	}
	return p.post(entry)
}

// post validates balance and commits the header and all lines as one unit.
// There is no partial-commit path: an unbalanced entry is rejected before
// any persistence, and any insert failure rolls the whole entry back.
func (p *Poster) post(entry *models.JournalEntry) (*models.JournalEntry, error) {
	debits, credits, ok := entry.Balanced()
	if !ok {
		return nil, fmt.Errorf("%w: debits=%s credits=%s (source_id=%s)",
			ErrUnbalancedEntry, debits, credits, entry.SourceID)
	}
	entry.TotalDebit = debits
	entry.TotalCredit = credits

	dbTx, err := database.DB.Begin()
	if err != nil {
		return nil, fmt.Errorf("error beginning journal transaction: %w", err)
	}
	defer dbTx.Rollback()

	// Next sequence number is resolved inside the transaction so postings
	// cannot race to the same number.
	var maxNumber int64
	if err := dbTx.QueryRow(`SELECT COALESCE(MAX(entry_number), 0) FROM journal_entries`).Scan(&maxNumber); err != nil {
		return nil, fmt.Errorf("error resolving next entry number: %w", err)
	}
	entry.EntryNumber = maxNumber + 1

	result, err := dbTx.Exec(`INSERT INTO journal_entries (entry_id, entry_number, description, source_system, source_id, total_debit, total_credit)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.EntryID, entry.EntryNumber, entry.Description, entry.SourceSystem, entry.SourceID,
		entry.TotalDebit.String(), entry.TotalCredit.String())
	if err != nil {
		return nil, fmt.Errorf("error inserting journal entry %s: %w", entry.EntryID, err)
	}
	entryRowID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("error reading journal entry id: %w", err)
	}
	entry.ID = entryRowID

	stmt, err := dbTx.Prepare(`INSERT INTO journal_lines (entry_id, account_id, description, debit_amount, credit_amount, quantity, unit_price)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("error preparing journal line insert: %w", err)
	}
	defer stmt.Close()

	for _, line := range entry.Lines {
		accountID, err := lookupAccountID(dbTx, line.AccountNumber)
		if err != nil {
			return nil, err
		}
		if _, err := stmt.Exec(entryRowID, accountID, line.Description,
			line.DebitAmount.String(), line.CreditAmount.String(),
			line.Quantity.String(), line.UnitPrice.String()); err != nil {
			return nil, fmt.Errorf("error inserting journal line for entry %s: %w", entry.EntryID, err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing journal entry %s: %w", entry.EntryID, err)
	}

	logger.L.Info("Posted journal entry", "entryID", entry.EntryID, "entryNumber", entry.EntryNumber, "sourceID", entry.SourceID, "total", entry.TotalDebit)
	return entry, nil
}

// Discrepancy is one flagged mismatch between a trade record and its posted
// lines. Reconciliation flags; it never auto-corrects.
type Discrepancy struct {
	TradeID  string
	Field    string
	Expected decimal.Decimal
	Posted   decimal.Decimal
}

// Reconcile recomputes the expected premium and commission from the trade
// record and compares them to the sums of its posted lines.
func (p *Poster) Reconcile(t TradeRecord) ([]Discrepancy, error) {
	rows, err := database.DB.Query(`
		SELECT a.account_number, l.debit_amount, l.credit_amount
		FROM journal_lines l
		JOIN journal_entries e ON e.id = l.entry_id
		JOIN chart_of_accounts a ON a.id = l.account_id
		WHERE e.source_id = ?`, t.TradeID)
	if err != nil {
		return nil, fmt.Errorf("error querying posted lines for trade %s: %w", t.TradeID, err)
	}
	defer rows.Close()

	var cashIn, cashOut, postedCommission decimal.Decimal
	found := false
	for rows.Next() {
		var accountNumber, debitStr, creditStr string
		if err := rows.Scan(&accountNumber, &debitStr, &creditStr); err != nil {
			return nil, fmt.Errorf("error scanning posted line: %w", err)
		}
		debit, err := decimal.NewFromString(debitStr)
		if err != nil {
			return nil, fmt.Errorf("error parsing posted debit '%s': %w", debitStr, err)
		}
		credit, err := decimal.NewFromString(creditStr)
		if err != nil {
			return nil, fmt.Errorf("error parsing posted credit '%s': %w", creditStr, err)
		}
		found = true
		switch accountNumber {
		case AcctCash:
			cashIn = cashIn.Add(debit)
			cashOut = cashOut.Add(credit)
		case AcctCommissionExpense:
			postedCommission = postedCommission.Add(debit)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return []Discrepancy{{TradeID: t.TradeID, Field: "entry", Expected: t.Premium, Posted: decimal.Zero}}, nil
	}

	// Gross premium reconstructed from the cash legs: an opening trade took
	// in premium net of commission, a closing trade paid cost plus
	// commission.
	var postedPremium decimal.Decimal
	if cashIn.IsPositive() {
		postedPremium = cashIn.Add(postedCommission)
	} else {
		postedPremium = cashOut.Sub(postedCommission)
	}

	var discrepancies []Discrepancy
	if !postedPremium.Equal(t.Premium) {
		discrepancies = append(discrepancies, Discrepancy{TradeID: t.TradeID, Field: "premium", Expected: t.Premium, Posted: postedPremium})
	}
	if !postedCommission.Equal(t.Commission) {
		discrepancies = append(discrepancies, Discrepancy{TradeID: t.TradeID, Field: "commission", Expected: t.Commission, Posted: postedCommission})
	}
	for _, d := range discrepancies {
		logger.L.Warn("Journal reconciliation mismatch", "tradeID", d.TradeID, "field", d.Field, "expected", d.Expected, "posted", d.Posted)
	}
	return discrepancies, nil
}
