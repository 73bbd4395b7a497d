package reconciliation

import (
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

func setupTest(t *testing.T) *Aggregator {
	t.Helper()
	logger.InitLogger("error")
	config.LoadConfig()
	config.Cfg.PlugTolerance = decimal.RequireFromString("0.01")
	database.InitDB(filepath.Join(t.TempDir(), "test.db"))
	t.Cleanup(func() { database.DB.Close() })
	return NewAggregator(config.Cfg)
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func navRow(date, opening, closing, mtm, realized string) models.NAVRow {
	return models.NAVRow{
		Date:          date,
		StartingValue: d(opening),
		EndingValue:   d(closing),
		MarkToMarket:  d(mtm),
		Realized:      d(realized),
	}
}

func TestAggregateTiesOutCleanDay(t *testing.T) {
	a := setupTest(t)

	result, err := a.Aggregate([]models.NAVRow{navRow("2025-08-29", "100000", "100500", "300", "200")})
	require.NoError(t, err)
	require.Len(t, result.Summaries, 1)
	assert.Zero(t, result.Discrepancies)

	s := result.Summaries[0]
	assert.True(t, s.TotalPNL.Equal(d("500")))
	assert.True(t, s.Plug().IsZero())

	stored, err := database.GetSummary("2025-08-29")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.ClosingNAV.Equal(d("100500")))
}

func TestAggregateFlagsDiscrepancy(t *testing.T) {
	a := setupTest(t)

	// Ending value is 100 off from what the components explain.
	result, err := a.Aggregate([]models.NAVRow{navRow("2025-08-29", "100000", "100600", "300", "200")})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Discrepancies)
	assert.True(t, result.Summaries[0].Plug().Equal(d("-100")))
}

func TestAggregateCountsOnlyDepositsAsCashFlow(t *testing.T) {
	a := setupTest(t)
	ts := time.Date(2025, 8, 29, 12, 0, 0, 0, time.UTC)

	_, err := database.InsertEvents([]models.ChronologicalEvent{
		{
			Timestamp:           ts,
			EventType:           models.EventDepositWithdrawal,
			Description:         "Deposit",
			CashImpact:          d("10000"),
			SourceTransactionID: "200001",
		},
		{
			Timestamp:           ts.Add(time.Hour),
			EventType:           models.EventTrade,
			Symbol:              "QQQ 250829C00628000",
			Description:         "Sold 1 QQQ 250829C00628000",
			Quantity:            d("-1"),
			CashImpact:          d("3923.60"),
			SourceTransactionID: "100001",
		},
	})
	require.NoError(t, err)

	result, err := a.Aggregate([]models.NAVRow{navRow("2025-08-29", "100000", "110500", "300", "200")})
	require.NoError(t, err)
	require.Len(t, result.Summaries, 1)

	s := result.Summaries[0]
	assert.True(t, s.NetCashFlow.Equal(d("10000")), "trading cash must never count as cash flow, got %s", s.NetCashFlow)
	assert.True(t, s.Plug().IsZero())
}

func TestAggregateDerivesInterestEventsOnce(t *testing.T) {
	a := setupTest(t)

	row := navRow("2025-08-29", "100000", "100010", "0", "0")
	row.Interest = d("12.34")
	row.ChangeInInterestAccruals = d("-2.34")

	result, err := a.Aggregate([]models.NAVRow{row})
	require.NoError(t, err)
	assert.Equal(t, 2, result.DerivedInserted)
	assert.Zero(t, result.Discrepancies)

	events, err := database.EventsByDate("2025-08-29")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "NAV-ACR-2025-08-29", events[0].SourceTransactionID)
	assert.Equal(t, "NAV-INT-2025-08-29", events[1].SourceTransactionID)

	// Re-aggregation converges: the derived events already exist.
	again, err := a.Aggregate([]models.NAVRow{row})
	require.NoError(t, err)
	assert.Zero(t, again.DerivedInserted)
}

func TestAggregateSummarizesEventDatesWithoutNAVRows(t *testing.T) {
	a := setupTest(t)

	_, err := database.InsertEvents([]models.ChronologicalEvent{{
		Timestamp:           time.Date(2025, 8, 28, 12, 0, 0, 0, time.UTC),
		EventType:           models.EventDepositWithdrawal,
		Description:         "Deposit",
		CashImpact:          d("5000"),
		SourceTransactionID: "200002",
	}})
	require.NoError(t, err)

	result, err := a.Aggregate([]models.NAVRow{navRow("2025-08-29", "100000", "100500", "300", "200")})
	require.NoError(t, err)
	require.Len(t, result.Summaries, 2)

	orphan := result.Summaries[0]
	assert.Equal(t, "2025-08-28", orphan.Date)
	assert.True(t, orphan.OpeningNAV.IsZero())
	assert.True(t, orphan.NetCashFlow.Equal(d("5000")))
}
