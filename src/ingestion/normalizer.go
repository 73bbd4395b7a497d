package ingestion

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/username/navledger/src/config"
	"github.com/username/navledger/src/logger"
	"github.com/username/navledger/src/models"
	"github.com/username/navledger/src/parsers/flex"
	"github.com/username/navledger/src/utils"
)

// Normalizer maps each broker-specific export schema into the canonical
// ChronologicalEvent shape once, at the ingestion boundary. Downstream code
// never re-derives structure from rendered text.
type Normalizer struct {
	cfg *config.AppConfig
}

func NewNormalizer(cfg *config.AppConfig) *Normalizer {
	return &Normalizer{cfg: cfg}
}

// NormalizeTrades converts trade records to events. Records without a trade
// date are statement artifacts, not executions, and are skipped; malformed
// records are skipped with a warning and the rest of the file continues.
func (n *Normalizer) NormalizeTrades(trades []flex.Trade) (events []models.ChronologicalEvent, skipped int) {
	for _, t := range trades {
		if t.TradeDate == "" {
			logger.L.Warn("Skipping trade record without trade date (statement artifact)", "symbol", t.Symbol, "transactionID", t.TransactionID)
			skipped++
			continue
		}
		ev, err := n.normalizeTrade(t)
		if err != nil {
			logger.L.Warn("Skipping malformed trade record", "error", err)
			skipped++
			continue
		}
		events = append(events, ev)
	}
	return events, skipped
}

func (n *Normalizer) normalizeTrade(t flex.Trade) (models.ChronologicalEvent, error) {
	recordErr := func(err error) (models.ChronologicalEvent, error) {
		return models.ChronologicalEvent{}, &RecordError{Kind: KindTrades, SourceID: t.TransactionID, Symbol: t.Symbol, Date: t.TradeDate, Err: err}
	}

	datetime := t.DateTime
	if datetime == "" {
		datetime = t.TradeDate
	}
	ts, err := flex.ParseDateTime(datetime, n.cfg.ExchangeLocation())
	if err != nil {
		return recordErr(err)
	}

	qty, err := parseAmount(t.Quantity)
	if err != nil {
		return recordErr(fmt.Errorf("quantity: %w", err))
	}
	price, err := parseAmount(t.TradePrice)
	if err != nil {
		return recordErr(fmt.Errorf("tradePrice: %w", err))
	}
	proceeds, err := parseAmount(t.Proceeds)
	if err != nil {
		return recordErr(fmt.Errorf("proceeds: %w", err))
	}
	commission, err := parseAmount(t.IBCommission)
	if err != nil {
		return recordErr(fmt.Errorf("ibCommission: %w", err))
	}
	pnl, err := parseAmount(t.FifoPnlRealized)
	if err != nil {
		return recordErr(fmt.Errorf("fifoPnlRealized: %w", err))
	}
	if t.TransactionID == "" {
		return recordErr(fmt.Errorf("missing transactionID"))
	}

	return models.ChronologicalEvent{
		Timestamp:           ts,
		EventType:           models.EventTrade,
		Symbol:              t.Symbol,
		Description:         n.ensureActionVerb(t.Description, qty, t.Symbol, price),
		Quantity:            qty,
		CashImpact:          n.toHome(proceeds, t.Currency),
		RealizedPNL:         n.toHome(pnl, t.Currency),
		Commission:          n.toHome(commission, t.Currency),
		SourceTransactionID: t.TransactionID,
	}, nil
}

// NormalizeCashTransactions keeps deposits and withdrawals, at detail level
// only so statement summary rows never double-count.
func (n *Normalizer) NormalizeCashTransactions(cashTxs []flex.CashTransaction) (events []models.ChronologicalEvent, skipped int) {
	for _, c := range cashTxs {
		if c.LevelOfDetail != "" && c.LevelOfDetail != "DETAIL" {
			continue
		}
		if c.Type != "Deposits/Withdrawals" {
			logger.L.Debug("Ignoring cash transaction of unhandled type", "type", c.Type, "transactionID", c.TransactionID)
			continue
		}

		ts, err := flex.ParseDateTime(c.DateTime, n.cfg.ExchangeLocation())
		if err != nil {
			logger.L.Warn("Skipping malformed cash record", "error", &RecordError{Kind: KindCash, SourceID: c.TransactionID, Date: c.DateTime, Err: err})
			skipped++
			continue
		}
		amount, err := parseAmount(c.Amount)
		if err != nil {
			logger.L.Warn("Skipping malformed cash record", "error", &RecordError{Kind: KindCash, SourceID: c.TransactionID, Date: c.DateTime, Err: fmt.Errorf("amount: %w", err)})
			skipped++
			continue
		}
		if c.TransactionID == "" {
			logger.L.Warn("Skipping malformed cash record", "error", &RecordError{Kind: KindCash, Date: c.DateTime, Err: fmt.Errorf("missing transactionID")})
			skipped++
			continue
		}

		description := c.Description
		if description == "" {
			if amount.IsNegative() {
				description = fmt.Sprintf("Withdrawal of %s %s", amount.Abs(), c.Currency)
			} else {
				description = fmt.Sprintf("Deposit of %s %s", amount, c.Currency)
			}
		}
		events = append(events, models.ChronologicalEvent{
			Timestamp:           ts,
			EventType:           models.EventDepositWithdrawal,
			Description:         description,
			CashImpact:          n.toHome(amount, c.Currency),
			SourceTransactionID: c.TransactionID,
		})
	}
	return events, skipped
}

// NormalizeNAV converts the broker's Change-in-NAV rows. All components are
// carried in the home currency.
func (n *Normalizer) NormalizeNAV(rows []flex.ChangeInNAV) (navRows []models.NAVRow, skipped int) {
	for _, r := range rows {
		row, err := n.normalizeNAVRow(r)
		if err != nil {
			logger.L.Warn("Skipping malformed NAV record", "error", err)
			skipped++
			continue
		}
		navRows = append(navRows, row)
	}
	return navRows, skipped
}

func (n *Normalizer) normalizeNAVRow(r flex.ChangeInNAV) (models.NAVRow, error) {
	recordErr := func(err error) (models.NAVRow, error) {
		return models.NAVRow{}, &RecordError{Kind: KindNAV, Date: r.ReportDate, Err: err}
	}

	date, err := flex.ParseDate(r.ReportDate)
	if err != nil {
		return recordErr(err)
	}
	row := models.NAVRow{Date: date}

	fields := []struct {
		name  string
		value string
		dst   *decimal.Decimal
	}{
		{"startingValue", r.StartingValue, &row.StartingValue},
		{"endingValue", r.EndingValue, &row.EndingValue},
		{"mtm", r.MarkToMarket, &row.MarkToMarket},
		{"realized", r.Realized, &row.Realized},
		{"interest", r.Interest, &row.Interest},
		{"changeInInterestAccruals", r.ChangeInInterestAccruals, &row.ChangeInInterestAccruals},
		{"commissions", r.Commissions, &row.Commissions},
		{"depositsWithdrawals", r.DepositsWithdrawals, &row.DepositsWithdrawals},
	}
	for _, f := range fields {
		amount, err := parseAmount(f.value)
		if err != nil {
			return recordErr(fmt.Errorf("%s: %w", f.name, err))
		}
		*f.dst = n.toHome(amount, r.Currency)
	}
	return row, nil
}

// NormalizeExercises converts the broker's own exercise/assignment/expiration
// records. The settlement trade a record pairs with is referenced by trade
// id, never by position in the file.
func (n *Normalizer) NormalizeExercises(records []flex.OptionEAE) (events []models.ChronologicalEvent, skipped int) {
	for _, r := range records {
		ev, err := n.normalizeExercise(r)
		if err != nil {
			logger.L.Warn("Skipping malformed exercise/expiration record", "error", err)
			skipped++
			continue
		}
		events = append(events, ev)
	}
	return events, skipped
}

func (n *Normalizer) normalizeExercise(r flex.OptionEAE) (models.ChronologicalEvent, error) {
	recordErr := func(err error) (models.ChronologicalEvent, error) {
		return models.ChronologicalEvent{}, &RecordError{Kind: KindExercises, SourceID: r.TransactionID, Symbol: r.Symbol, Date: r.Date, Err: err}
	}

	var eventType models.EventType
	switch r.TransactionType {
	case "Assignment":
		eventType = models.EventOptionAssignment
	case "Exercise":
		eventType = models.EventOptionExercise
	case "Expiration":
		eventType = models.EventOptionExpiration
	default:
		return recordErr(fmt.Errorf("unknown transactionType '%s'", r.TransactionType))
	}

	date, err := flex.ParseDate(r.Date)
	if err != nil {
		return recordErr(err)
	}
	qty, err := parseAmount(r.Quantity)
	if err != nil {
		return recordErr(fmt.Errorf("quantity: %w", err))
	}
	proceeds, err := parseAmount(r.Proceeds)
	if err != nil {
		return recordErr(fmt.Errorf("proceeds: %w", err))
	}
	if r.TransactionID == "" {
		return recordErr(fmt.Errorf("missing transactionID"))
	}

	description := fmt.Sprintf("%s: %s x%s", r.TransactionType, r.Symbol, qty.Abs())
	if r.TradeID != "" {
		description += fmt.Sprintf(" (settlement trade %s)", r.TradeID)
	}
	return models.ChronologicalEvent{
		Timestamp:           utils.AuctionClose(date, n.cfg.ExchangeLocation()),
		EventType:           eventType,
		Symbol:              r.Symbol,
		Description:         description,
		Quantity:            qty,
		CashImpact:          n.toHome(proceeds, r.Currency),
		SourceTransactionID: r.TransactionID,
	}, nil
}

// NormalizeInterestAccruals converts accrual movements into P&L-only events.
// The export carries no transaction ids; the idempotency key derives from
// the period end and currency, which is stable across re-exports.
func (n *Normalizer) NormalizeInterestAccruals(records []flex.InterestAccrual) (events []models.ChronologicalEvent, skipped int) {
	for _, r := range records {
		date, err := flex.ParseDate(r.ToDate)
		if err != nil {
			logger.L.Warn("Skipping malformed interest accrual record", "error", &RecordError{Kind: KindInterest, Date: r.ToDate, Err: err})
			skipped++
			continue
		}
		amount, err := parseAmount(r.InterestAccrued)
		if err != nil {
			logger.L.Warn("Skipping malformed interest accrual record", "error", &RecordError{Kind: KindInterest, Date: r.ToDate, Err: fmt.Errorf("interestAccrued: %w", err)})
			skipped++
			continue
		}
		events = append(events, models.ChronologicalEvent{
			Timestamp:           utils.AuctionClose(date, n.cfg.ExchangeLocation()),
			EventType:           models.EventInterestAccrual,
			Description:         fmt.Sprintf("Interest accrued %s to %s (%s)", r.FromDate, r.ToDate, r.Currency),
			RealizedPNL:         n.toHome(amount, r.Currency),
			SourceTransactionID: fmt.Sprintf("IA-%s-%s", date, r.Currency),
		})
	}
	return events, skipped
}

// ensureActionVerb reconstructs a trade description when the source omitted
// the action verb, from the signed quantity and symbol, with the execution
// price appended when available.
func (n *Normalizer) ensureActionVerb(description string, qty decimal.Decimal, symbol string, price decimal.Decimal) string {
	upper := strings.ToUpper(description)
	for _, verb := range []string{"BUY", "SELL", "BOUGHT", "SOLD"} {
		if strings.Contains(upper, verb) {
			return description
		}
	}

	verb := "Bought"
	if qty.IsNegative() {
		verb = "Sold"
	}
	rebuilt := fmt.Sprintf("%s %s %s", verb, qty.Abs(), symbol)
	if !price.IsZero() {
		rebuilt += fmt.Sprintf(" @ %s", price.StringFixed(2))
	}
	return rebuilt
}

// toHome converts a foreign-currency amount into the home currency at the
// run's configured rate. Amounts already in the home currency pass through.
func (n *Normalizer) toHome(amount decimal.Decimal, currency string) decimal.Decimal {
	if currency == "" || strings.EqualFold(currency, n.cfg.HomeCurrency) {
		return amount
	}
	return amount.Mul(n.cfg.ConversionRate)
}

// parseAmount parses a string-typed export attribute as a decimal. Empty
// attributes mean zero, which the exports use freely.
func parseAmount(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(strings.TrimSpace(s))
}
