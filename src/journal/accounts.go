package journal

import (
	"database/sql"
	"fmt"

	"github.com/username/navledger/src/database"
)

// Fixed chart of accounts for trade lifecycle postings.
const (
	AcctCash              = "1000" // brokerage cash
	AcctShortOptions      = "2100" // short options liability
	AcctTradingGains      = "4500"
	AcctTradingLosses     = "5500"
	AcctCommissionExpense = "6100"
)

// SeedChartOfAccounts ensures the fixed accounts exist. Safe to call on
// every startup.
func SeedChartOfAccounts() error {
	accounts := []struct {
		number string
		name   string
	}{
		{AcctCash, "Brokerage Cash"},
		{AcctShortOptions, "Short Options Liability"},
		{AcctTradingGains, "Trading Gains"},
		{AcctTradingLosses, "Trading Losses"},
		{AcctCommissionExpense, "Commission Expense"},
	}
	for _, a := range accounts {
		_, err := database.DB.Exec(`INSERT OR IGNORE INTO chart_of_accounts (account_number, name, is_active) VALUES (?, ?, TRUE)`,
			a.number, a.name)
		if err != nil {
			return fmt.Errorf("error seeding account %s: %w", a.number, err)
		}
	}
	return nil
}

// lookupAccountID resolves an account number to its internal id, active
// accounts only.
func lookupAccountID(tx *sql.Tx, accountNumber string) (int64, error) {
	var id int64
	err := tx.QueryRow(`SELECT id FROM chart_of_accounts WHERE account_number = ? AND is_active = TRUE`, accountNumber).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("account %s not found or inactive", accountNumber)
	}
	if err != nil {
		return 0, fmt.Errorf("error resolving account %s: %w", accountNumber, err)
	}
	return id, nil
}
