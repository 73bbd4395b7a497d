package inference

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/username/navledger/src/config"
	"github.com/username/navledger/src/logger"
	"github.com/username/navledger/src/models"
	"github.com/username/navledger/src/utils"
)

// ErrPriceUnavailable means the external closing-price source could not
// produce a price for a (symbol, date). It scopes to one date: inference
// skips that date and the rest of the run continues.
var ErrPriceUnavailable = errors.New("closing price unavailable")

// PriceSource looks up the official close for a symbol on a YYYY-MM-DD date.
// Both underlyings and the option contracts themselves are queried.
type PriceSource interface {
	ClosingPrice(symbol, date string) (decimal.Decimal, error)
}

// contractsPerOption is the standard share deliverable of one contract.
const contractsPerOption = 100

// ReportedKeys are the (symbol, date) pairs the broker's own
// exercises/expirations export did report, keyed "symbol|date". The
// inferencer never materializes an event the broker already covered.
type ReportedKeys struct {
	Assignments map[string]bool
	Expirations map[string]bool
}

// NewReportedKeys builds the key sets from already-normalized exercise and
// expiration events (empty sets when the optional export is absent).
func NewReportedKeys(events []models.ChronologicalEvent) ReportedKeys {
	keys := ReportedKeys{
		Assignments: make(map[string]bool),
		Expirations: make(map[string]bool),
	}
	for _, ev := range events {
		switch ev.EventType {
		case models.EventOptionAssignment, models.EventOptionExercise:
			keys.Assignments[ev.Symbol+"|"+ev.Date()] = true
		case models.EventOptionExpiration:
			keys.Expirations[ev.Symbol+"|"+ev.Date()] = true
		}
	}
	return keys
}

// Inferencer detects option assignments and expirations the broker's export
// omitted, using only the ingested trades plus an external closing price.
type Inferencer struct {
	cfg    *config.AppConfig
	prices PriceSource
}

func NewInferencer(cfg *config.AppConfig, prices PriceSource) *Inferencer {
	return &Inferencer{cfg: cfg, prices: prices}
}

// position is the reconstructed net state of one option symbol.
type position struct {
	contract models.OptionContract
	netQty   decimal.Decimal
	premium  decimal.Decimal // net collected premium, home currency
}

// Infer walks the dates under reconciliation and materializes synthetic
// assignment/expiration events for short options that expired unreported.
// A date whose underlying price cannot be fetched is skipped with a warning;
// other dates are unaffected.
func (inf *Inferencer) Infer(trades []models.ChronologicalEvent, dates []string, reported ReportedKeys) []models.ChronologicalEvent {
	positions := reconstructPositions(trades)

	var synthetic []models.ChronologicalEvent
	for _, date := range dates {
		for symbol, pos := range positions {
			if !pos.netQty.IsNegative() {
				continue // only short holders can be assigned
			}
			if pos.contract.ExpiryDate() != date {
				continue
			}
			key := symbol + "|" + date
			if reported.Assignments[key] || reported.Expirations[key] {
				continue
			}

			events, err := inf.inferForSymbol(symbol, pos, date)
			if err != nil {
				if errors.Is(err, ErrPriceUnavailable) {
					logger.L.Warn("Skipping synthetic inference for date, closing price unavailable",
						"date", date, "symbol", pos.contract.Underlying, "error", err)
					break // this date only; move on to the next date
				}
				logger.L.Warn("Skipping synthetic inference for symbol", "symbol", symbol, "date", date, "error", err)
				continue
			}
			synthetic = append(synthetic, events...)
		}
	}
	return synthetic
}

func (inf *Inferencer) inferForSymbol(symbol string, pos position, date string) ([]models.ChronologicalEvent, error) {
	underlyingClose, err := inf.prices.ClosingPrice(pos.contract.Underlying, date)
	if err != nil {
		return nil, err
	}

	// The option's own close decides between "expired worthless" and the
	// near-the-money guard. An unavailable contract quote is treated as zero.
	optionClose, err := inf.prices.ClosingPrice(symbol, date)
	if err != nil {
		optionClose = decimal.Zero
	}

	strike := pos.contract.Strike
	isCall := pos.contract.Right == models.Call

	itm := (isCall && underlyingClose.GreaterThan(strike)) ||
		(!isCall && underlyingClose.LessThan(strike))
	nearMoney := underlyingClose.Sub(strike).Abs().LessThan(inf.cfg.NearMoneyBand) &&
		optionClose.GreaterThanOrEqual(inf.cfg.MinOptionClose)

	switch {
	case itm || nearMoney:
		logger.L.Info("Inferred unreported option assignment",
			"symbol", symbol, "date", date, "underlyingClose", underlyingClose, "strike", strike, "nearMoney", nearMoney && !itm)
		return inf.synthesizeAssignment(pos, date, underlyingClose), nil
	case optionClose.IsZero():
		logger.L.Info("Inferred unreported option expiration", "symbol", symbol, "date", date)
		return inf.synthesizeExpiration(pos, date), nil
	default:
		// Out of the money but the contract still carried a price; nothing
		// can be concluded from the evidence at hand.
		return nil, nil
	}
}

// synthesizeExpiration emits the worthless-expiry pair: the expiration event
// itself (no cash, no P&L) and a zero-price closing trade whose realized P&L
// is the premium originally collected.
func (inf *Inferencer) synthesizeExpiration(pos position, date string) []models.ChronologicalEvent {
	symbol := models.FormatOptionSymbol(pos.contract)
	ts := utils.AuctionClose(date, inf.cfg.ExchangeLocation())
	qty := pos.netQty.Abs()

	expiration := models.ChronologicalEvent{
		Timestamp:           ts,
		EventType:           models.EventOptionExpiration,
		Symbol:              symbol,
		Description:         fmt.Sprintf("Expired worthless: %s x%s", symbol, qty),
		Quantity:            qty,
		SourceTransactionID: syntheticKey("EXP", symbol, date),
		IsSynthetic:         true,
	}
	closeTrade := models.ChronologicalEvent{
		Timestamp:           ts,
		EventType:           models.EventTrade,
		Symbol:              symbol,
		Description:         fmt.Sprintf("Bought %s %s @ 0.00 (close expired short)", qty, symbol),
		Quantity:            qty,
		RealizedPNL:         pos.premium,
		SourceTransactionID: syntheticKey("EXPTRADE", symbol, date),
		IsSynthetic:         true,
	}
	return []models.ChronologicalEvent{expiration, closeTrade}
}

// synthesizeAssignment emits the assignment event plus its paired stock
// settlement: share delivery for a short call, share receipt for a short put.
// The assignment itself carries the P&L; the settlement carries the cash.
func (inf *Inferencer) synthesizeAssignment(pos position, date string, underlyingClose decimal.Decimal) []models.ChronologicalEvent {
	symbol := models.FormatOptionSymbol(pos.contract)
	ts := utils.AuctionClose(date, inf.cfg.ExchangeLocation())
	qty := pos.netQty.Abs()
	shares := qty.Mul(decimal.NewFromInt(contractsPerOption))
	rate := inf.cfg.ConversionRate
	strike := pos.contract.Strike
	isCall := pos.contract.Right == models.Call

	var pnl, settlementCash, settlementShares decimal.Decimal
	var action string
	if isCall {
		// Short call: shares delivered at strike, loss when close > strike.
		pnl = strike.Sub(underlyingClose).Mul(shares).Mul(rate)
		settlementCash = strike.Mul(shares).Mul(rate)
		settlementShares = shares.Neg()
		action = "Delivered"
	} else {
		// Short put: shares received at strike, loss when close < strike.
		pnl = underlyingClose.Sub(strike).Mul(shares).Mul(rate)
		settlementCash = strike.Mul(shares).Mul(rate).Neg()
		settlementShares = shares
		action = "Received"
	}

	assignment := models.ChronologicalEvent{
		Timestamp:           ts,
		EventType:           models.EventOptionAssignment,
		Symbol:              symbol,
		Description:         fmt.Sprintf("Assigned: %s x%s, underlying closed %s vs strike %s", symbol, qty, underlyingClose, strike),
		Quantity:            qty,
		RealizedPNL:         pnl,
		SourceTransactionID: syntheticKey("ASSIGN", symbol, date),
		IsSynthetic:         true,
	}
	settlement := models.ChronologicalEvent{
		Timestamp:           ts,
		EventType:           models.EventTrade,
		Symbol:              pos.contract.Underlying,
		Description:         fmt.Sprintf("%s %s %s @ %s (assignment settlement for %s)", action, shares, pos.contract.Underlying, strike, symbol),
		Quantity:            settlementShares,
		CashImpact:          settlementCash,
		SourceTransactionID: syntheticKey("ASSIGNTRADE", symbol, date),
		IsSynthetic:         true,
	}
	return []models.ChronologicalEvent{assignment, settlement}
}

// reconstructPositions nets every option symbol's traded quantity and
// collected premium from the trade events.
func reconstructPositions(trades []models.ChronologicalEvent) map[string]position {
	positions := make(map[string]position)
	for _, ev := range trades {
		if ev.EventType != models.EventTrade || ev.IsSynthetic {
			continue
		}
		contract, ok := models.ParseOptionSymbol(ev.Symbol)
		if !ok {
			continue
		}
		pos, exists := positions[ev.Symbol]
		if !exists {
			pos = position{contract: contract}
		}
		pos.netQty = pos.netQty.Add(ev.Quantity)
		pos.premium = pos.premium.Add(ev.CashImpact)
		positions[ev.Symbol] = pos
	}
	return positions
}

// syntheticKey is the deterministic idempotency key for inferred events, so
// repeated runs converge on the same event set.
func syntheticKey(kind, symbol, date string) string {
	return fmt.Sprintf("SYN-%s-%s-%s", kind, symbol, date)
}
