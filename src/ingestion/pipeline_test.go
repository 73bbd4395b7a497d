package ingestion

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/navledger/src/config"
	"github.com/username/navledger/src/database"
	"github.com/username/navledger/src/inference"
	"github.com/username/navledger/src/logger"
	"github.com/username/navledger/src/models"
)

type stubPrices map[string]string

func (s stubPrices) ClosingPrice(symbol, date string) (decimal.Decimal, error) {
	if close, ok := s[symbol+"|"+date]; ok {
		return decimal.RequireFromString(close), nil
	}
	return decimal.Zero, inference.ErrPriceUnavailable
}

const tradesExport = `<FlexQueryResponse queryName="trades">
  <FlexStatements count="1">
    <FlexStatement accountId="U1234567" fromDate="20250825" toDate="20250829">
      <Trades>
        <Trade transactionID="100001" symbol="QQQ 250829C00628000" description="Sold 1 QQQ 250829C00628000 @ 5.00"
          tradeDate="20250825" dateTime="20250825;103000" quantity="-1" tradePrice="5.00"
          proceeds="3923.60" ibCommission="-8.63" fifoPnlRealized="0" currency="HKD"/>
      </Trades>
    </FlexStatement>
  </FlexStatements>
</FlexQueryResponse>`

const cashExport = `<FlexQueryResponse queryName="cash">
  <FlexStatements count="1">
    <FlexStatement accountId="U1234567" fromDate="20250825" toDate="20250829">
      <CashTransactions>
        <CashTransaction transactionID="200001" type="Deposits/Withdrawals" description="CASH RECEIPT"
          dateTime="20250826;120000" amount="10000" currency="HKD" levelOfDetail="DETAIL"/>
      </CashTransactions>
    </FlexStatement>
  </FlexStatements>
</FlexQueryResponse>`

const navExport = `<FlexQueryResponse queryName="nav">
  <FlexStatements count="1">
    <FlexStatement accountId="U1234567" fromDate="20250825" toDate="20250829">
      <ChangeInNAVs>
        <ChangeInNAV reportDate="20250825" startingValue="100000" endingValue="103914.97"
          mtm="3914.97" realized="0" interest="0" changeInInterestAccruals="0"
          commissions="0" depositsWithdrawals="0" currency="HKD"/>
        <ChangeInNAV reportDate="20250829" startingValue="113914.97" endingValue="112737.89"
          mtm="0" realized="-1177.08" interest="0" changeInInterestAccruals="0"
          commissions="0" depositsWithdrawals="0" currency="HKD"/>
      </ChangeInNAVs>
    </FlexStatement>
  </FlexStatements>
</FlexQueryResponse>`

func writeExports(t *testing.T, dir string, kinds map[ExportKind]string) {
	t.Helper()
	for kind, content := range kinds {
		require.NoError(t, os.WriteFile(filepath.Join(dir, kind.Filename()), []byte(content), 0644))
	}
}

func setupPipeline(t *testing.T, prices stubPrices) *Pipeline {
	t.Helper()
	logger.InitLogger("error")
	config.LoadConfig()
	config.Cfg.HomeCurrency = "HKD"
	config.Cfg.ConversionRate = decimal.RequireFromString("7.8472")
	config.Cfg.SourceDir = t.TempDir()
	database.InitDB(filepath.Join(t.TempDir(), "test.db"))
	t.Cleanup(func() { database.DB.Close() })
	return NewPipeline(config.Cfg, prices)
}

func TestRunIngestsInfersAndReconciles(t *testing.T) {
	p := setupPipeline(t, stubPrices{"QQQ|2025-08-29": "629.50"})
	writeExports(t, p.cfg.SourceDir, map[ExportKind]string{
		KindTrades: tradesExport,
		KindCash:   cashExport,
		KindNAV:    navExport,
	})

	result, err := p.Run(ModeAppend)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Normalized[KindTrades])
	assert.Equal(t, 1, result.Normalized[KindCash])
	assert.Equal(t, 2, result.Normalized[KindNAV])
	assert.Equal(t, 2, result.EventsInserted)
	// The short 628 call expires in the money on 2025-08-29 with nothing
	// reported by the broker: assignment plus settlement get synthesized.
	assert.Equal(t, 2, result.SyntheticInserted)

	events, err := database.EventsByDate("2025-08-29")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.EventOptionAssignment, events[0].EventType)
	assert.Equal(t, "-1177.08", events[0].RealizedPNL.StringFixed(2))

	require.NotNil(t, result.Reconciliation)
	assert.Len(t, result.Reconciliation.Summaries, 3)
}

func TestRunIsIdempotent(t *testing.T) {
	p := setupPipeline(t, stubPrices{"QQQ|2025-08-29": "629.50"})
	writeExports(t, p.cfg.SourceDir, map[ExportKind]string{
		KindTrades: tradesExport,
		KindCash:   cashExport,
		KindNAV:    navExport,
	})

	first, err := p.Run(ModeAppend)
	require.NoError(t, err)
	require.Positive(t, first.EventsInserted)

	second, err := p.Run(ModeAppend)
	require.NoError(t, err)
	assert.Zero(t, second.EventsInserted, "re-ingesting the same exports must not duplicate events")
	assert.Zero(t, second.SyntheticInserted, "the stored assignment suppresses re-inference")

	all, err := database.AllEvents()
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestRunRebuildClearsAndReconverges(t *testing.T) {
	p := setupPipeline(t, stubPrices{"QQQ|2025-08-29": "629.50"})
	writeExports(t, p.cfg.SourceDir, map[ExportKind]string{
		KindTrades: tradesExport,
		KindCash:   cashExport,
		KindNAV:    navExport,
	})

	_, err := p.Run(ModeAppend)
	require.NoError(t, err)

	rebuilt, err := p.Run(ModeRebuild)
	require.NoError(t, err)
	assert.Equal(t, 2, rebuilt.EventsInserted)
	assert.Equal(t, 2, rebuilt.SyntheticInserted)

	all, err := database.AllEvents()
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestRunAbortsOnMissingRequiredExport(t *testing.T) {
	p := setupPipeline(t, stubPrices{})
	writeExports(t, p.cfg.SourceDir, map[ExportKind]string{
		KindCash: cashExport,
		KindNAV:  navExport,
	})

	_, err := p.Run(ModeAppend)
	require.ErrorIs(t, err, ErrMissingRequiredInput)

	all, err := database.AllEvents()
	require.NoError(t, err)
	assert.Empty(t, all, "nothing may be written before the input check passes")
}

func TestRunContinuesWithoutOptionalExports(t *testing.T) {
	p := setupPipeline(t, stubPrices{})
	writeExports(t, p.cfg.SourceDir, map[ExportKind]string{
		KindTrades: tradesExport,
		KindCash:   cashExport,
		KindNAV:    navExport,
	})

	result, err := p.Run(ModeAppend)
	require.NoError(t, err)
	assert.Zero(t, result.Normalized[KindExercises])
	assert.Zero(t, result.Normalized[KindInterest])
}
