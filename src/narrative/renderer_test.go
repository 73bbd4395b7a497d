package narrative

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/navledger/src/config"
	"github.com/username/navledger/src/database"
	"github.com/username/navledger/src/logger"
	"github.com/username/navledger/src/models"
)

func setupTest(t *testing.T) *Renderer {
	t.Helper()
	logger.InitLogger("error")
	config.LoadConfig()
	database.InitDB(filepath.Join(t.TempDir(), "test.db"))
	t.Cleanup(func() { database.DB.Close() })
	return NewRenderer(config.Cfg)
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func at(t *testing.T, hour, minute, second int) time.Time {
	t.Helper()
	return time.Date(2025, 8, 29, hour, minute, second, 0, config.Cfg.ExchangeLocation())
}

func mustInsert(t *testing.T, events ...models.ChronologicalEvent) {
	t.Helper()
	_, err := database.InsertEvents(events)
	require.NoError(t, err)
}

func TestRenderReplaysRunningNAV(t *testing.T) {
	r := setupTest(t)

	require.NoError(t, database.UpsertSummary(models.DailySummary{
		Date:       "2025-08-28",
		ClosingNAV: d("100000"),
	}))
	mustInsert(t,
		models.ChronologicalEvent{
			Timestamp:           at(t, 9, 0, 0),
			EventType:           models.EventDepositWithdrawal,
			Description:         "Deposit of 1000 HKD",
			CashImpact:          d("1000"),
			SourceTransactionID: "200001",
		},
		models.ChronologicalEvent{
			Timestamp:           at(t, 10, 5, 0),
			EventType:           models.EventTrade,
			Symbol:              "QQQ 250829C00628000",
			Description:         "Sold 1 QQQ 250829C00628000 @ 2.50",
			Quantity:            d("-1"),
			CashImpact:          d("250"),
			Commission:          d("-1"),
			SourceTransactionID: "100001",
		},
		models.ChronologicalEvent{
			Timestamp:           at(t, 10, 5, 30),
			EventType:           models.EventTrade,
			Symbol:              "QQQ 250829C00629000",
			Description:         "Sold 1 QQQ 250829C00629000 @ 2.50",
			Quantity:            d("-1"),
			CashImpact:          d("250"),
			Commission:          d("-1"),
			SourceTransactionID: "100002",
		},
		models.ChronologicalEvent{
			Timestamp:   at(t, 16, 0, 0),
			EventType:   models.EventOptionAssignment,
			Symbol:      "QQQ 250829C00628000",
			Description: "Assigned: QQQ 250829C00628000 x1, underlying closed 629.50 vs strike 628",
			Quantity:    d("1"),
			// A nonzero cash here must NOT move the running NAV: assignment
			// economics surface through the settlement trade.
			CashImpact:          d("492804.16"),
			RealizedPNL:         d("-1177.08"),
			SourceTransactionID: "SYN-ASSIGN-QQQ 250829C00628000-2025-08-29",
			IsSynthetic:         true,
		},
		models.ChronologicalEvent{
			Timestamp:           at(t, 16, 0, 0),
			EventType:           models.EventTrade,
			Symbol:              "QQQ",
			Description:         "Delivered 100 QQQ @ 628 (assignment settlement for QQQ 250829C00628000)",
			Quantity:            d("-100"),
			CashImpact:          d("492804.16"),
			SourceTransactionID: "SYN-ASSIGNTRADE-QQQ 250829C00628000-2025-08-29",
			IsSynthetic:         true,
		},
	)
	require.NoError(t, database.UpsertSummary(models.DailySummary{
		Date:       "2025-08-29",
		OpeningNAV: d("100000"),
		ClosingNAV: d("593125.08"),
	}))

	report, err := r.Render("2025-08-29")
	require.NoError(t, err)

	// deposit, grouped option trades, assignment, settlement
	require.Len(t, report.Blocks, 4)
	assert.Contains(t, report.Blocks[1], "2 option trades")
	assert.Contains(t, report.Blocks[3], "settles assignment @ 628")

	s := report.Summary
	assert.True(t, s.OpeningNAV.Equal(d("100000")), "seeds from the previous official close")
	assert.True(t, s.NetCashFlow.Equal(d("1000")))
	assert.True(t, s.GrossPNL.Equal(d("-1177.08")))
	assert.True(t, s.Commissions.Equal(d("-2")))
	assert.True(t, s.ClosingNAV.Equal(d("593125.08")))
	assert.True(t, s.Plug.IsZero(), "replay must land exactly on the official close, plug=%s", s.Plug)
	assert.Equal(t, "-1.1791", s.NetPNLPct.String())
	assert.True(t, s.HadAssignment)

	var buf bytes.Buffer
	require.NoError(t, report.Write(&buf))
	assert.Contains(t, buf.String(), "Narrative for 2025-08-29")
	assert.Contains(t, buf.String(), "yes")
}

func TestRenderGroupingRespectsWindow(t *testing.T) {
	r := setupTest(t)

	mustInsert(t,
		models.ChronologicalEvent{
			Timestamp:           at(t, 10, 0, 0),
			EventType:           models.EventTrade,
			Symbol:              "QQQ 250829C00628000",
			Description:         "Sold 1 QQQ 250829C00628000",
			Quantity:            d("-1"),
			CashImpact:          d("250"),
			SourceTransactionID: "100001",
		},
		models.ChronologicalEvent{
			Timestamp:           at(t, 10, 3, 0),
			EventType:           models.EventTrade,
			Symbol:              "QQQ 250829C00629000",
			Description:         "Sold 1 QQQ 250829C00629000",
			Quantity:            d("-1"),
			CashImpact:          d("250"),
			SourceTransactionID: "100002",
		},
	)

	report, err := r.Render("2025-08-29")
	require.NoError(t, err)
	assert.Len(t, report.Blocks, 2, "trades outside the grouping window stay separate")
}

func TestRenderLabelsAuctionCloseExpirations(t *testing.T) {
	r := setupTest(t)

	mustInsert(t, models.ChronologicalEvent{
		Timestamp:           at(t, 16, 0, 0),
		EventType:           models.EventTrade,
		Symbol:              "QQQ 250829P00620000",
		Description:         "Bought 1 QQQ 250829P00620000 @ 0.00 (close expired short)",
		Quantity:            d("1"),
		RealizedPNL:         d("1500"),
		SourceTransactionID: "SYN-EXPTRADE-QQQ 250829P00620000-2025-08-29",
		IsSynthetic:         true,
	})

	report, err := r.Render("2025-08-29")
	require.NoError(t, err)
	require.Len(t, report.Blocks, 1)
	assert.Contains(t, report.Blocks[0], string(models.EventOptionExpiration))
}

func TestRenderWithoutPriorSummarySeedsFromZero(t *testing.T) {
	r := setupTest(t)

	mustInsert(t, models.ChronologicalEvent{
		Timestamp:           at(t, 12, 0, 0),
		EventType:           models.EventDepositWithdrawal,
		Description:         "Deposit of 1000 HKD",
		CashImpact:          d("1000"),
		SourceTransactionID: "200001",
	})

	report, err := r.Render("2025-08-29")
	require.NoError(t, err)
	assert.True(t, report.Summary.OpeningNAV.IsZero())
	assert.True(t, report.Summary.NetPNLPct.IsZero())
	assert.True(t, report.Summary.ClosingNAV.Equal(d("1000")), "replayed close stands in when no official summary exists")
}
