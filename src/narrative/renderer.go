package narrative

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/navledger/src/config"
	"github.com/username/navledger/src/database"
	"github.com/username/navledger/src/logger"
	"github.com/username/navledger/src/models"
	"github.com/username/navledger/src/utils"
)

// groupWindow is how close together consecutive same-kind trades must be to
// merge into one narrative line. Partial fills of one order land seconds
// apart; unrelated trades do not.
const groupWindow = 90 * time.Second

// Renderer replays one date's events into a running-NAV audit narrative.
// It is strictly read-only: nothing it does mutates events or summaries.
type Renderer struct {
	cfg *config.AppConfig
}

func NewRenderer(cfg *config.AppConfig) *Renderer {
	return &Renderer{cfg: cfg}
}

// SummaryRow is the compact tabular digest of one replayed date.
type SummaryRow struct {
	Date          string
	OpeningNAV    decimal.Decimal // previous date's official close (the seed)
	NetCashFlow   decimal.Decimal
	GrossPNL      decimal.Decimal
	Commissions   decimal.Decimal
	NetPNLPct     decimal.Decimal
	ClosingNAV    decimal.Decimal // official close when known, else replayed
	Plug          decimal.Decimal // official close minus replayed close
	HadAssignment bool
}

// Report is the full narrative output: ordered text blocks plus the summary.
// Derived, never authoritative.
type Report struct {
	Date    string
	Blocks  []string
	Summary SummaryRow
}

// assignmentPosition tracks shares created by an assignment until an
// offsetting stock trade settles them. It lives only for one replay.
type assignmentPosition struct {
	strike decimal.Decimal
	shares decimal.Decimal
	at     time.Time
}

// Render replays the date's events in strict timestamp order. The running
// NAV seeds from the previous date's official closing NAV, so pre-market
// drift shows up as its own delta instead of disappearing into the open.
func (r *Renderer) Render(date string) (*Report, error) {
	prev, err := database.PreviousSummary(date)
	if err != nil {
		return nil, err
	}
	seed := decimal.Zero
	if prev != nil {
		seed = prev.ClosingNAV
	} else {
		logger.L.Warn("No prior daily summary; narrative seeds from zero NAV", "date", date)
	}

	events, err := database.EventsByDate(date)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Date:    date,
		Summary: SummaryRow{Date: date, OpeningNAV: seed},
	}
	running := seed
	positions := make(map[string]assignmentPosition)

	for i := 0; i < len(events); {
		group := r.takeGroup(events, i)
		var groupDelta decimal.Decimal
		for _, ev := range group {
			groupDelta = groupDelta.Add(r.eventDelta(ev))
			r.accumulate(&report.Summary, ev)
		}
		running = running.Add(groupDelta)
		// Describe before tracking so a settlement trade still sees the open
		// assignment position it is closing.
		report.Blocks = append(report.Blocks, r.describe(group, positions, groupDelta, running))
		for _, ev := range group {
			r.trackAssignment(positions, ev)
		}
		i += len(group)
	}

	report.Summary.ClosingNAV = running
	official, err := database.GetSummary(date)
	if err != nil {
		return nil, err
	}
	if official != nil {
		report.Summary.ClosingNAV = official.ClosingNAV
		report.Summary.Plug = official.ClosingNAV.Sub(running)
	}

	netPNL := report.Summary.GrossPNL.Add(report.Summary.Commissions)
	if !seed.IsZero() {
		report.Summary.NetPNLPct = netPNL.Div(seed).Mul(decimal.NewFromInt(100)).Round(4)
	}
	return report, nil
}

// eventDelta is the event's NAV contribution during replay. Assignment and
// exercise events are NAV-neutral at the event itself: their cash is forced
// to zero and the economics surface through the settlement trade.
func (r *Renderer) eventDelta(ev models.ChronologicalEvent) decimal.Decimal {
	if ev.EventType == models.EventOptionAssignment || ev.EventType == models.EventOptionExercise {
		return ev.RealizedPNL.Add(ev.Commission)
	}
	return ev.NAVDelta()
}

func (r *Renderer) accumulate(row *SummaryRow, ev models.ChronologicalEvent) {
	row.GrossPNL = row.GrossPNL.Add(ev.RealizedPNL)
	row.Commissions = row.Commissions.Add(ev.Commission)
	if ev.EventType == models.EventDepositWithdrawal {
		row.NetCashFlow = row.NetCashFlow.Add(ev.CashImpact)
	}
	if ev.EventType == models.EventOptionAssignment || ev.EventType == models.EventOptionExercise {
		row.HadAssignment = true
	}
}

// trackAssignment keeps the transient symbol -> physical-position map: an
// assignment opens it, the offsetting stock settlement closes it.
func (r *Renderer) trackAssignment(positions map[string]assignmentPosition, ev models.ChronologicalEvent) {
	switch ev.EventType {
	case models.EventOptionAssignment, models.EventOptionExercise:
		contract, ok := models.ParseOptionSymbol(ev.Symbol)
		if !ok {
			return
		}
		shares := ev.Quantity.Abs().Mul(decimal.NewFromInt(100))
		if contract.Right == models.Call {
			shares = shares.Neg() // delivery obligation
		}
		positions[contract.Underlying] = assignmentPosition{
			strike: contract.Strike,
			shares: shares,
			at:     ev.Timestamp,
		}
	case models.EventTrade:
		if _, isOption := models.ParseOptionSymbol(ev.Symbol); isOption {
			return
		}
		if pos, open := positions[ev.Symbol]; open && ev.Quantity.Sign() == pos.shares.Sign() {
			delete(positions, ev.Symbol)
		}
	}
}

// takeGroup returns the maximal run of consecutive trade events of the same
// kind (all-option or all-stock) within the grouping window, or a single
// event for everything else. Grouping is presentational only.
func (r *Renderer) takeGroup(events []models.ChronologicalEvent, start int) []models.ChronologicalEvent {
	first := events[start]
	if first.EventType != models.EventTrade {
		return events[start : start+1]
	}
	_, firstIsOption := models.ParseOptionSymbol(first.Symbol)

	end := start + 1
	for end < len(events) {
		next := events[end]
		if next.EventType != models.EventTrade {
			break
		}
		_, nextIsOption := models.ParseOptionSymbol(next.Symbol)
		if nextIsOption != firstIsOption {
			break
		}
		if next.Timestamp.Sub(events[end-1].Timestamp) > groupWindow {
			break
		}
		end++
	}
	return events[start:end]
}

func (r *Renderer) describe(group []models.ChronologicalEvent, positions map[string]assignmentPosition, delta, running decimal.Decimal) string {
	if len(group) == 1 {
		ev := group[0]
		label := string(ev.EventType)
		if r.looksLikeExpiration(ev) {
			label = string(models.EventOptionExpiration)
		}
		note := ""
		if ev.EventType == models.EventTrade {
			if pos, open := positions[ev.Symbol]; open && ev.Quantity.Sign() == pos.shares.Sign() {
				note = fmt.Sprintf(" (settles assignment @ %s)", pos.strike)
			}
		}
		return fmt.Sprintf("[%s] %-24s %s%s | delta %s | NAV %s",
			ev.Timestamp.Format("15:04:05"), label, ev.Description, note, formatSigned(delta), running.StringFixed(2))
	}

	var premium, pnl, commission decimal.Decimal
	for _, ev := range group {
		premium = premium.Add(ev.CashImpact)
		pnl = pnl.Add(ev.RealizedPNL)
		commission = commission.Add(ev.Commission)
	}
	kind := "stock"
	if _, isOption := models.ParseOptionSymbol(group[0].Symbol); isOption {
		kind = "option"
	}
	return fmt.Sprintf("[%s-%s] %d %s trades | net premium %s | P&L %s | comm %s | delta %s | NAV %s",
		group[0].Timestamp.Format("15:04:05"), group[len(group)-1].Timestamp.Format("15:04:05"),
		len(group), kind, formatSigned(premium), formatSigned(pnl), formatSigned(commission),
		formatSigned(delta), running.StringFixed(2))
}

// looksLikeExpiration labels an event as an expiration for narrative
// purposes: either its type says so, or it is an option trade at the
// end-of-day auction with zero cash and a positive P&L equal to the premium
// it pays back. Labeling only; ledger state is untouched.
func (r *Renderer) looksLikeExpiration(ev models.ChronologicalEvent) bool {
	if ev.EventType == models.EventOptionExpiration {
		return true
	}
	if ev.EventType != models.EventTrade {
		return false
	}
	if _, isOption := models.ParseOptionSymbol(ev.Symbol); !isOption {
		return false
	}
	auction := utils.AuctionClose(ev.Date(), r.cfg.ExchangeLocation())
	return ev.Timestamp.Equal(auction) && ev.CashImpact.IsZero() && ev.RealizedPNL.IsPositive()
}

// Write renders the narrative blocks followed by the tabular summary.
func (rep *Report) Write(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "Narrative for %s\n%s\n", rep.Date, strings.Repeat("-", 72)); err != nil {
		return err
	}
	for _, block := range rep.Blocks {
		if _, err := fmt.Fprintln(w, block); err != nil {
			return err
		}
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tOPEN NAV\tCASHFLOW\tGROSS P&L\tCOMM\tNET P&L %\tCLOSE NAV\tPLUG\tASSIGNED")
	assigned := "no"
	if rep.Summary.HadAssignment {
		assigned = "yes"
	}
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s%%\t%s\t%s\t%s\n",
		rep.Summary.Date,
		rep.Summary.OpeningNAV.StringFixed(2),
		formatSigned(rep.Summary.NetCashFlow),
		formatSigned(rep.Summary.GrossPNL),
		formatSigned(rep.Summary.Commissions),
		rep.Summary.NetPNLPct,
		rep.Summary.ClosingNAV.StringFixed(2),
		formatSigned(rep.Summary.Plug),
		assigned)
	return tw.Flush()
}

func formatSigned(d decimal.Decimal) string {
	if d.Sign() > 0 {
		return "+" + d.StringFixed(2)
	}
	return d.StringFixed(2)
}
