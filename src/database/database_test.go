package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/navledger/src/logger"
	"github.com/username/navledger/src/models"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	logger.InitLogger("error")
	InitDB(filepath.Join(t.TempDir(), "test.db"))
	t.Cleanup(func() { DB.Close() })
}

func testEvent(txID string, ts time.Time, eventType models.EventType, cash string) models.ChronologicalEvent {
	return models.ChronologicalEvent{
		Timestamp:           ts,
		EventType:           eventType,
		Symbol:              "QQQ",
		Description:         "test event",
		CashImpact:          decimal.RequireFromString(cash),
		SourceTransactionID: txID,
	}
}

func TestInsertEventsSkipsDuplicates(t *testing.T) {
	setupTestDB(t)
	ts := time.Date(2025, 8, 29, 10, 0, 0, 0, time.UTC)

	batch := []models.ChronologicalEvent{
		testEvent("100001", ts, models.EventTrade, "500"),
		testEvent("100002", ts.Add(time.Minute), models.EventTrade, "250"),
	}
	inserted, err := InsertEvents(batch)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	// Re-running the same batch plus one new event only inserts the new one.
	batch = append(batch, testEvent("100003", ts.Add(2*time.Minute), models.EventTrade, "100"))
	inserted, err = InsertEvents(batch)
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	all, err := AllEvents()
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestEventsByDateOrdersDeterministically(t *testing.T) {
	setupTestDB(t)
	ts := time.Date(2025, 8, 29, 16, 0, 0, 0, time.UTC)

	_, err := InsertEvents([]models.ChronologicalEvent{
		testEvent("B-second", ts, models.EventTrade, "2"),
		testEvent("A-first", ts, models.EventTrade, "1"),
		testEvent("earlier", ts.Add(-6*time.Hour), models.EventTrade, "0"),
		testEvent("other-day", ts.Add(24*time.Hour), models.EventTrade, "9"),
	})
	require.NoError(t, err)

	events, err := EventsByDate("2025-08-29")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "earlier", events[0].SourceTransactionID)
	assert.Equal(t, "A-first", events[1].SourceTransactionID)
	assert.Equal(t, "B-second", events[2].SourceTransactionID)

	dates, err := EventDates()
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-08-29", "2025-08-30"}, dates)
}

func TestEventsByDateOrdersByInstantAcrossOffsets(t *testing.T) {
	setupTestDB(t)

	// 18:00Z precedes 15:00-04:00 (19:00Z) as an instant, but follows it as
	// an RFC3339 string. Ordering must go by the instant.
	utc := testEvent("utc-event", time.Date(2025, 11, 2, 18, 0, 0, 0, time.UTC), models.EventTrade, "1")
	offset := testEvent("offset-event", time.Date(2025, 11, 2, 15, 0, 0, 0, time.FixedZone("EDT", -4*3600)), models.EventTrade, "2")

	_, err := InsertEvents([]models.ChronologicalEvent{offset, utc})
	require.NoError(t, err)

	events, err := EventsByDate("2025-11-02")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "utc-event", events[0].SourceTransactionID)
	assert.Equal(t, "offset-event", events[1].SourceTransactionID)
}

func TestEventRoundTripPreservesDecimals(t *testing.T) {
	setupTestDB(t)

	ev := models.ChronologicalEvent{
		Timestamp:           time.Date(2025, 8, 29, 16, 0, 0, 0, time.UTC),
		EventType:           models.EventOptionAssignment,
		Symbol:              "QQQ 250829C00628000",
		Description:         "Assigned",
		Quantity:            decimal.RequireFromString("1"),
		RealizedPNL:         decimal.RequireFromString("-1177.08"),
		Commission:          decimal.RequireFromString("-1.10"),
		SourceTransactionID: "SYN-ASSIGN-QQQ 250829C00628000-2025-08-29",
		IsSynthetic:         true,
	}
	_, err := InsertEvents([]models.ChronologicalEvent{ev})
	require.NoError(t, err)

	stored, err := EventsByDate("2025-08-29")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, models.EventOptionAssignment, stored[0].EventType)
	assert.True(t, stored[0].RealizedPNL.Equal(ev.RealizedPNL))
	assert.True(t, stored[0].IsSynthetic)
}

func TestUpsertSummaryOverwritesByDate(t *testing.T) {
	setupTestDB(t)

	first := models.DailySummary{
		Date:       "2025-08-29",
		OpeningNAV: decimal.RequireFromString("100000"),
		ClosingNAV: decimal.RequireFromString("100500"),
		TotalPNL:   decimal.RequireFromString("500"),
	}
	require.NoError(t, UpsertSummary(first))

	first.ClosingNAV = decimal.RequireFromString("100600")
	first.TotalPNL = decimal.RequireFromString("600")
	require.NoError(t, UpsertSummary(first))

	stored, err := GetSummary("2025-08-29")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.ClosingNAV.Equal(decimal.RequireFromString("100600")))

	summaries, err := AllSummaries()
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}

func TestGetSummaryReturnsNilWhenAbsent(t *testing.T) {
	setupTestDB(t)

	stored, err := GetSummary("2025-08-29")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestPreviousSummaryPicksLatestEarlierDate(t *testing.T) {
	setupTestDB(t)

	for _, date := range []string{"2025-08-26", "2025-08-27", "2025-08-29"} {
		require.NoError(t, UpsertSummary(models.DailySummary{
			Date:       date,
			ClosingNAV: decimal.RequireFromString("100000"),
		}))
	}

	prev, err := PreviousSummary("2025-08-29")
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, "2025-08-27", prev.Date)

	none, err := PreviousSummary("2025-08-26")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestClearLedgerKeepsJournal(t *testing.T) {
	setupTestDB(t)

	_, err := InsertEvents([]models.ChronologicalEvent{
		testEvent("100001", time.Date(2025, 8, 29, 10, 0, 0, 0, time.UTC), models.EventTrade, "1"),
	})
	require.NoError(t, err)
	require.NoError(t, UpsertSummary(models.DailySummary{Date: "2025-08-29"}))

	_, err = DB.Exec(`INSERT INTO journal_entries (entry_id, entry_number, total_debit, total_credit) VALUES ('e1', 1, '10', '10')`)
	require.NoError(t, err)

	require.NoError(t, ClearLedger())

	events, err := AllEvents()
	require.NoError(t, err)
	assert.Empty(t, events)
	summaries, err := AllSummaries()
	require.NoError(t, err)
	assert.Empty(t, summaries)

	var journalCount int
	require.NoError(t, DB.QueryRow(`SELECT COUNT(*) FROM journal_entries`).Scan(&journalCount))
	assert.Equal(t, 1, journalCount)
}
